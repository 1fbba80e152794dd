package model

import "time"

// Card is the schedule document the calendar source publishes.
type Card struct {
	RefreshToken string `json:"refresh_token"`
	FormatToken  string `json:"format_token"`

	// Schedule is always emitted so that an empty day encodes as [] rather
	// than a missing key.
	Schedule []Lecture `json:"schedule"`
}

// Lecture is one schedule entry.
type Lecture struct {
	Dr      string `json:"dr"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// Occurrence is a single concrete calendar event instance (after recurrence
// expansion and timezone normalization).
type Occurrence struct {
	UID string

	Summary   string
	Location  string
	Organizer string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}
