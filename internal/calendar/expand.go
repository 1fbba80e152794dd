package calendar

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "epdcard/internal/log"
	"epdcard/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// Window is the half-open range [Start, End) occurrences must overlap.
type Window struct {
	Start time.Time
	End   time.Time
}

// Day returns the calendar day containing t, in loc.
func Day(t time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Expand turns parsed events into concrete occurrences overlapping w,
// converted to loc and sorted by start time. It applies RRULE, EXDATE
// and RECURRENCE-ID overrides.
func Expand(events []Event, w Window, loc *time.Location) ([]model.Occurrence, error) {
	if w.End.Before(w.Start) {
		return nil, errors.New("calendar: window end is before start")
	}
	if loc == nil {
		loc = time.Local
	}

	baseByUID := make(map[string][]Event)
	overridesByUID := make(map[string][]Event)
	for _, ev := range events {
		if ev.IsOverride() {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	out := make([]model.Occurrence, 0)
	for uid, bases := range baseByUID {
		for _, ev := range bases {
			occ, hitCap := expandEvent(ev, overridesByUID[uid], w, loc)
			if hitCap {
				appLog.Warn("ics occurrences truncated", "uid", uid, "cap", defaultMaxOccurrencesPerEvent)
			}
			out = append(out, occ...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].UID < out[j].UID
	})
	return out, nil
}

func expandEvent(ev Event, overrides []Event, w Window, loc *time.Location) ([]model.Occurrence, bool) {
	if ev.RawRRule == "" {
		start, end := ev.Start, ev.End
		if o, ok := findOverride(overrides, start); ok {
			ev, start, end = o, o.Start, o.End
		}
		if !overlaps(start, end, w) {
			return nil, false
		}
		return []model.Occurrence{makeOccurrence(ev, start, end, loc)}, false
	}
	return expandRecurring(ev, overrides, w, loc)
}

func expandRecurring(ev Event, overrides []Event, w Window, loc *time.Location) ([]model.Occurrence, bool) {
	opt, err := rrule.StrToROption(ev.RawRRule)
	if err != nil {
		appLog.Warn("ics rrule parse failed", "uid", ev.UID, "rrule", ev.RawRRule, "err", err)
		return nil, false
	}
	opt.Dtstart = ev.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		appLog.Warn("ics rrule invalid", "uid", ev.UID, "rrule", ev.RawRRule, "err", err)
		return nil, false
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	// Widen the lower bound by the duration so instances that started
	// before the window but are still running are included.
	from := w.Start.Add(-dur).In(ev.Start.Location())
	to := w.End.In(ev.Start.Location())

	times := set.Between(from, to, true)
	hitCap := false
	if len(times) > defaultMaxOccurrencesPerEvent {
		times = times[:defaultMaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.Occurrence, 0, len(times))
	for _, start := range times {
		end := start.Add(dur)
		base := ev
		if o, ok := findOverride(overrides, start); ok {
			base, start, end = o, o.Start, o.End
		}
		if !overlaps(start, end, w) {
			continue
		}
		out = append(out, makeOccurrence(base, start, end, loc))
	}
	return out, hitCap
}

// findOverride returns the override whose RECURRENCE-ID equals start.
func findOverride(overrides []Event, start time.Time) (Event, bool) {
	for _, o := range overrides {
		if o.Recurrence != nil && o.Recurrence.Equal(start) {
			return o, true
		}
	}
	return Event{}, false
}

func makeOccurrence(ev Event, start, end time.Time, loc *time.Location) model.Occurrence {
	return model.Occurrence{
		UID:       ev.UID,
		Summary:   ev.Summary,
		Location:  ev.Location,
		Organizer: ev.Organizer,
		AllDay:    ev.AllDay,
		Start:     start.In(loc),
		End:       end.In(loc),
	}
}

// overlaps reports whether [start, end) intersects w. Zero-length events
// count when they start inside w.
func overlaps(start, end time.Time, w Window) bool {
	if !end.After(start) {
		return !start.Before(w.Start) && start.Before(w.End)
	}
	return start.Before(w.End) && end.After(w.Start)
}
