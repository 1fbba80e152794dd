package card

import (
	"strconv"

	"epdcard/internal/document"
)

// DefaultTalkName is shown when a talk has neither an event name nor a speaker.
const DefaultTalkName = "Talk"

// Classify maps a parsed document to an Event. It never fails: unknown
// formats and absent or malformed sub-objects yield Unrecognized, and
// missing string fields read as "".
func Classify(doc document.Document) Event {
	format := ParseFormat(doc.FormatToken)

	switch format {
	case FormatSchedule:
		items, ok := document.Array(doc.Schedule)
		if !ok {
			return Unrecognized{Reason: "schedule is not a list"}
		}
		entries := make([]ScheduleEntry, 0, len(items))
		for _, it := range items {
			entries = append(entries, ScheduleEntry{
				Instructor: it.Str("dr"),
				Subject:    it.Str("subject"),
				From:       it.Str("from"),
				To:         it.Str("to"),
			})
		}
		return ScheduleList{Entries: entries}

	case FormatMeeting:
		m, ok := document.Object(doc.Meeting)
		if !ok {
			return Unrecognized{Reason: "meeting is not an object"}
		}
		return Meeting{
			Subject: m.Str("subject"),
			From:    m.Str("from"),
			To:      m.Str("to"),
		}

	case FormatTalk:
		t, ok := document.Object(doc.Talk)
		if !ok {
			return Unrecognized{Reason: "talk is not an object"}
		}
		speaker := t.Str("speaker")
		return Talk{
			Name:    talkName(t.Str("event"), speaker),
			Speaker: speaker,
			From:    t.Str("from"),
			To:      t.Str("to"),
		}

	case FormatSeats:
		s, ok := document.Object(doc.Seats)
		if !ok {
			return Unrecognized{Reason: "seats is not an object"}
		}
		return SeatCard{
			Name:       s.Str("name"),
			Country:    s.Str("country"),
			Title:      s.Str("title"),
			Department: s.Str("department"),
		}

	case FormatUnknown:
		return Unrecognized{Reason: "unknown format " + strconv.Quote(doc.FormatToken)}
	}

	return Unrecognized{Reason: "unhandled format " + format.String()}
}

// talkName resolves the talk headline: event, then speaker, then "Talk".
func talkName(event, speaker string) string {
	if event != "" {
		return event
	}
	if speaker != "" {
		return speaker
	}
	return DefaultTalkName
}
