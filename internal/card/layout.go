package card

// TextMetrics measures a string in the active font.
type TextMetrics interface {
	Bounds(text string) (width, height int)
}

// MetricsFunc adapts a function to TextMetrics.
type MetricsFunc func(text string) (width, height int)

func (f MetricsFunc) Bounds(text string) (int, int) { return f(text) }

// Color tags a line for the renderer.
type Color int

const (
	Primary Color = iota
	Accent
)

func (c Color) String() string {
	if c == Accent {
		return "accent"
	}
	return "primary"
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Line is a positioned string. Y is the text baseline.
type Line struct {
	Text  string `json:"text"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color Color  `json:"color"`
}

// RenderPlan is a fully positioned card ready for a renderer.
type RenderPlan struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	Header       [2]Line `json:"header"`
	HeaderBottom int     `json:"header_bottom"`
	LineGap      int     `json:"line_gap"`

	// Lines holds exactly three lines, or none for Unrecognized.
	Lines []Line `json:"lines"`

	Format Format `json:"-"`
}

// Empty reports whether the plan carries no content lines.
func (p RenderPlan) Empty() bool {
	return len(p.Lines) == 0
}

// Geometry of the 2.9" landscape panel the card was designed for.
const (
	SurfaceWidth  = 296
	SurfaceHeight = 128

	headerTopMargin = 6
	headerGap       = 6
	headerPadding   = 4
	linePadding     = 8
	leftMargin      = 10

	// referenceGlyph sets the line pitch for every line, independent of the
	// characters that are actually printed. Descenders are not accounted for.
	referenceGlyph = "A"

	DefaultHeaderTop = "AASTMT"
	DefaultHeaderSub = "College Of Artificial Intelligence"
)

// LayoutEngine places a header and three content lines on the surface.
type LayoutEngine struct {
	Width, Height        int
	HeaderTop, HeaderSub string
}

// NewLayoutEngine returns an engine for the default surface. Empty header
// strings fall back to the defaults.
func NewLayoutEngine(headerTop, headerSub string) *LayoutEngine {
	if headerTop == "" {
		headerTop = DefaultHeaderTop
	}
	if headerSub == "" {
		headerSub = DefaultHeaderSub
	}
	return &LayoutEngine{
		Width:     SurfaceWidth,
		Height:    SurfaceHeight,
		HeaderTop: headerTop,
		HeaderSub: headerSub,
	}
}

// Layout computes the plan for ev. It never fails; events without content
// (Unrecognized, or an unresolved ScheduleList) get a header-only plan.
func (e *LayoutEngine) Layout(ev Event, m TextMetrics) RenderPlan {
	plan := RenderPlan{
		Width:  e.Width,
		Height: e.Height,
		Format: FormatUnknown,
	}
	if ev != nil {
		plan.Format = ev.Format()
	}

	plan.Header, plan.HeaderBottom = e.header(m)

	_, refH := m.Bounds(referenceGlyph)
	plan.LineGap = refH + linePadding

	texts, ok := contentLines(ev)
	if !ok {
		return plan
	}

	plan.Lines = make([]Line, 0, len(texts))
	for i, text := range texts {
		plan.Lines = append(plan.Lines, Line{
			Text:  text,
			X:     leftMargin,
			Y:     plan.HeaderBottom + plan.LineGap*(i+1),
			Color: Primary,
		})
	}
	return plan
}

// header centers both header lines and returns the y below which content
// may start.
func (e *LayoutEngine) header(m TextMetrics) ([2]Line, int) {
	w1, h1 := m.Bounds(e.HeaderTop)
	w2, h2 := m.Bounds(e.HeaderSub)

	centerX := e.Width / 2
	topY := headerTopMargin + h1
	subY := topY + h2 + headerGap

	lines := [2]Line{
		{Text: e.HeaderTop, X: centerX - w1/2, Y: topY, Color: Accent},
		{Text: e.HeaderSub, X: centerX - w2/2, Y: subY, Color: Accent},
	}
	return lines, subY + headerPadding
}

func contentLines(ev Event) ([3]string, bool) {
	switch v := ev.(type) {
	case Schedule:
		return [3]string{
			"Dr: " + v.Entry.Instructor,
			"Subj: " + v.Entry.Subject,
			timeLine(v.Entry.From, v.Entry.To),
		}, true
	case Meeting:
		return [3]string{
			"Meeting",
			"Subject: " + v.Subject,
			timeLine(v.From, v.To),
		}, true
	case Talk:
		return [3]string{
			v.Name,
			"Speaker: " + v.Speaker,
			timeLine(v.From, v.To),
		}, true
	case SeatCard:
		return [3]string{
			v.Name,
			jobLine(v.Title, v.Department),
			v.Country,
		}, true
	default:
		return [3]string{}, false
	}
}

func timeLine(from, to string) string {
	return "Time: " + from + " - " + to
}

// jobLine joins title and department with " - " when both are present.
func jobLine(title, department string) string {
	switch {
	case title != "" && department != "":
		return title + " - " + department
	case title != "":
		return title
	default:
		return department
	}
}
