// Package card decides when the display is redrawn, what a polled document
// means, and where every line of the card goes.
//
// Nothing in this package performs I/O. Text measurement is injected through
// TextMetrics so the geometry can be exercised without a font backend.
package card

// Format is the closed set of recognized document formats.
type Format int

const (
	FormatUnknown Format = iota
	FormatSchedule
	FormatMeeting
	FormatTalk
	FormatSeats
)

var formatNames = map[string]Format{
	"schedule": FormatSchedule,
	"meeting":  FormatMeeting,
	"talk":     FormatTalk,
	"seats":    FormatSeats,
}

// ParseFormat maps a format discriminator to a Format. Matching is exact;
// anything else, including "", is FormatUnknown.
func ParseFormat(s string) Format {
	if f, ok := formatNames[s]; ok {
		return f
	}
	return FormatUnknown
}

func (f Format) String() string {
	switch f {
	case FormatSchedule:
		return "schedule"
	case FormatMeeting:
		return "meeting"
	case FormatTalk:
		return "talk"
	case FormatSeats:
		return "seats"
	default:
		return "unknown"
	}
}

// Event is one classified card. Implementations are immutable values.
type Event interface {
	Format() Format
	isEvent()
}

// ScheduleEntry is one lecture in a schedule document.
type ScheduleEntry struct {
	Instructor string `json:"dr"`
	Subject    string `json:"subject"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// ScheduleList is the classification result of a schedule document. The
// runner turns it into a Schedule via a ScheduleCursor; it is never laid out
// itself.
type ScheduleList struct {
	Entries []ScheduleEntry
}

// Schedule is the selected schedule entry.
type Schedule struct {
	Entry ScheduleEntry
}

type Meeting struct {
	Subject string
	From    string
	To      string
}

type Talk struct {
	// Name is the resolved headline: event, else speaker, else "Talk".
	Name    string
	Speaker string
	From    string
	To      string
}

type SeatCard struct {
	Name       string
	Country    string
	Title      string
	Department string
}

// Unrecognized stands for any document that could not be classified.
type Unrecognized struct {
	// Reason is a short diagnostic for logs.
	Reason string
}

func (ScheduleList) Format() Format { return FormatSchedule }
func (Schedule) Format() Format     { return FormatSchedule }
func (Meeting) Format() Format      { return FormatMeeting }
func (Talk) Format() Format         { return FormatTalk }
func (SeatCard) Format() Format     { return FormatSeats }
func (Unrecognized) Format() Format { return FormatUnknown }

func (ScheduleList) isEvent() {}
func (Schedule) isEvent()     {}
func (Meeting) isEvent()      {}
func (Talk) isEvent()         {}
func (SeatCard) isEvent()     {}
func (Unrecognized) isEvent() {}
