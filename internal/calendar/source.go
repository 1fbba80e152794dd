// Package calendar turns an ICS feed into a schedule card document, so a
// room calendar can drive the display without a separate publishing
// service.
package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	appLog "epdcard/internal/log"
	"epdcard/internal/model"
	"epdcard/internal/source"
)

const timeLayout = "15:04"

// Source fetches an ICS feed and synthesizes a schedule document listing
// today's timed events that have not ended yet. All-day events are left
// out.
type Source struct {
	url     string
	fetcher *Fetcher
	loc     *time.Location
	now     func() time.Time
}

// NewSource builds a Source for url. loc decides what "today" means and
// the zone the from/to times are printed in.
func NewSource(url string, fetcher *Fetcher, loc *time.Location) *Source {
	if loc == nil {
		loc = time.Local
	}
	return &Source{url: url, fetcher: fetcher, loc: loc, now: time.Now}
}

// Fetch implements the poller's content source. Feed errors are returned
// as errors; a readable feed always yields a 200 response.
func (s *Source) Fetch(ctx context.Context) (source.Response, error) {
	res, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		return source.Response{}, err
	}

	events, err := Parse(res.Body)
	if err != nil {
		return source.Response{}, fmt.Errorf("calendar: parse feed: %w", err)
	}

	now := s.now()
	day := Day(now, s.loc)
	occs, err := Expand(events, day, s.loc)
	if err != nil {
		return source.Response{}, err
	}

	doc := Document(day, pending(occs, now))
	body, err := json.Marshal(doc)
	if err != nil {
		return source.Response{}, fmt.Errorf("calendar: encode document: %w", err)
	}

	appLog.Debug("ics schedule built",
		"day", day.Start.Format("2006-01-02"),
		"entries", len(doc.Schedule),
		"from_cache", res.FromCache,
	)

	return source.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       body,
		FetchedAt:  now,
	}, nil
}

// Document builds the schedule card for day from occs. The refresh token
// is a digest of the day and its entries, so it changes exactly when the
// rendered content would.
func Document(day Window, occs []model.Occurrence) model.Card {
	lectures := make([]model.Lecture, 0, len(occs))
	for _, o := range occs {
		if o.AllDay {
			continue
		}
		lectures = append(lectures, model.Lecture{
			Dr:      instructor(o),
			Subject: o.Summary,
			From:    o.Start.Format(timeLayout),
			To:      o.End.Format(timeLayout),
		})
	}

	return model.Card{
		RefreshToken: token(day, lectures),
		FormatToken:  "schedule",
		Schedule:     lectures,
	}
}

// pending drops occurrences that ended at or before now.
func pending(occs []model.Occurrence, now time.Time) []model.Occurrence {
	out := occs[:0:0]
	for _, o := range occs {
		if o.End.After(now) {
			out = append(out, o)
		}
	}
	return out
}

func instructor(o model.Occurrence) string {
	if o.Organizer != "" {
		return o.Organizer
	}
	return o.Location
}

func token(day Window, lectures []model.Lecture) string {
	h := sha256.New()
	h.Write([]byte(day.Start.Format("2006-01-02")))
	for _, l := range lectures {
		fmt.Fprintf(h, "\x00%s\x1f%s\x1f%s\x1f%s", l.Dr, l.Subject, l.From, l.To)
	}
	return "ics-" + hex.EncodeToString(h.Sum(nil)[:12])
}
