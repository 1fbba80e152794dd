package card

import (
	"errors"

	"epdcard/internal/document"
)

// ErrNoContent is returned by ScheduleCursor.Select for an empty schedule.
var ErrNoContent = errors.New("card: schedule has no entries")

// ChangeDetector remembers the last token that reached the display.
type ChangeDetector struct {
	lastToken string
}

// ShouldUpdate reports whether doc carries a token different from the last
// committed one.
func (d *ChangeDetector) ShouldUpdate(doc document.Document) bool {
	return doc.RefreshToken != d.lastToken
}

// Commit records token as shown. Call it only once the cycle for token has
// reached its final outcome.
func (d *ChangeDetector) Commit(token string) {
	d.lastToken = token
}

func (d *ChangeDetector) LastToken() string {
	return d.lastToken
}

// ScheduleCursor walks a schedule round-robin, one entry per successful
// render.
type ScheduleCursor struct {
	index int
}

// Select returns the entry to show and the index to store after it has been
// rendered. It does not mutate the cursor; call Advance with next.
// An index left over from a longer list restarts at 0.
func (c *ScheduleCursor) Select(entries []ScheduleEntry) (ScheduleEntry, int, error) {
	if len(entries) == 0 {
		return ScheduleEntry{}, c.index, ErrNoContent
	}
	i := c.index
	if i < 0 || i >= len(entries) {
		i = 0
	}
	return entries[i], (i + 1) % len(entries), nil
}

// Advance stores next as the position for the following selection.
func (c *ScheduleCursor) Advance(next int) {
	if next < 0 {
		next = 0
	}
	c.index = next
}

func (c *ScheduleCursor) Index() int {
	return c.index
}

// State is everything that survives between poll cycles. The zero value is
// the state of a fresh process: empty token, cursor at 0.
type State struct {
	Detector ChangeDetector
	Cursor   ScheduleCursor
}
