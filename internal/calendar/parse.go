package calendar

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "epdcard/internal/log"
)

var (
	// ErrEmptyFeed is returned by Parse for a zero-length body.
	ErrEmptyFeed = errors.New("calendar: empty ICS body")
	// ErrNotCalendar is returned when the body has no VCALENDAR.
	ErrNotCalendar = errors.New("calendar: body is not an iCalendar stream")
)

// Event is a VEVENT reduced to what the schedule card needs. Recurrences
// are kept as raw RRULE/EXDATE data and expanded by Expand.
type Event struct {
	UID string
	Seq int

	Summary   string
	Location  string
	Organizer string // CN parameter, or the address without "mailto:"

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, if this VEVENT overrides an instance
}

// IsOverride reports whether ev replaces one instance of a recurring event.
func (ev Event) IsOverride() bool { return ev.Recurrence != nil }

// Parse decodes an ICS payload. VEVENTs that cannot be read are logged and
// skipped; only a payload that is not a calendar at all is an error.
func Parse(body []byte) ([]Event, error) {
	if len(body) == 0 {
		return nil, ErrEmptyFeed
	}
	if !bytes.Contains(bytes.ToUpper(body), []byte("BEGIN:VCALENDAR")) {
		return nil, ErrNotCalendar
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0)
	for _, comp := range cal.Events() {
		ev, err := parseVEvent(comp)
		if err != nil {
			appLog.Warn("ics vevent skipped", "err", err)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (Event, error) {
	var out Event

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		out.Organizer = organizerName(p.Value, p.ICalParameters)
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	end, err := ve.GetEndAt()
	if err != nil {
		// DTEND is optional; a timed event without it has zero duration.
		end = start
	}
	out.Start, out.End = start, end

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
		if !strings.Contains(p.Value, "T") {
			out.AllDay = true
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, tzidLocation(p.ICalParameters, start.Location())); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, tzidLocation(p.ICalParameters, start.Location())); err == nil {
			out.Recurrence = &t
		}
	}

	return out, nil
}

func organizerName(value string, params map[string][]string) string {
	if cn := params["CN"]; len(cn) > 0 && strings.TrimSpace(cn[0]) != "" {
		return strings.Trim(strings.TrimSpace(cn[0]), `"`)
	}
	v := strings.TrimSpace(value)
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		v = v[7:]
	}
	return v
}

// tzidLocation resolves the TZID parameter, falling back to def.
func tzidLocation(params map[string][]string, def *time.Location) *time.Location {
	if tz := params["TZID"]; len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	if def == nil {
		return time.UTC
	}
	return def
}

// parseICSTime parses an ICS DATE or DATE-TIME value. Floating values are
// read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
