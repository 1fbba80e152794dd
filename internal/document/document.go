// Package document parses the polled card document. Parsing is lenient:
// only the top level has to be a JSON object. Sub-objects are kept raw and
// interpreted later by the classifier, so a malformed "meeting" never fails
// the whole document.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrParse is returned (wrapped) for bodies that are not a JSON object.
var ErrParse = errors.New("document: parse failed")

// Wire keys of the top-level document.
const (
	KeyRefreshToken = "refresh_token"
	KeyFormatToken  = "format_token"
	KeySchedule     = "schedule"
	KeyMeeting      = "meeting"
	KeyTalk         = "talk"
	KeySeats        = "seats"
)

// Document is a parsed card document.
type Document struct {
	// RefreshToken changes whenever the publisher wants the card redrawn.
	RefreshToken string
	// FormatToken selects which sub-object is active.
	FormatToken string

	Schedule json.RawMessage
	Meeting  json.RawMessage
	Talk     json.RawMessage
	Seats    json.RawMessage
}

// Parse decodes body into a Document. Non-string token fields read as "".
func Parse(body []byte) (Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if top == nil {
		// literal null
		return Document{}, fmt.Errorf("%w: not an object", ErrParse)
	}

	return Document{
		RefreshToken: String(top[KeyRefreshToken]),
		FormatToken:  String(top[KeyFormatToken]),
		Schedule:     top[KeySchedule],
		Meeting:      top[KeyMeeting],
		Talk:         top[KeyTalk],
		Seats:        top[KeySeats],
	}, nil
}

// Fields is a decoded JSON object with lazily interpreted values.
type Fields map[string]json.RawMessage

// Str returns the string value of key, or "" when absent or not a string.
func (f Fields) Str(key string) string {
	return String(f[key])
}

// String returns raw as a Go string, or "" when raw is not a JSON string.
func String(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Object decodes raw as a JSON object. ok is false for absent, null or
// non-object values.
func Object(raw json.RawMessage) (Fields, bool) {
	if isNull(raw) {
		return nil, false
	}
	var f Fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, false
	}
	return f, true
}

// Array decodes raw as a JSON array of objects. Elements that are not
// objects decode as empty Fields so positions are preserved.
func Array(raw json.RawMessage) ([]Fields, bool) {
	if isNull(raw) {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	out := make([]Fields, 0, len(items))
	for _, item := range items {
		f, ok := Object(item)
		if !ok {
			f = Fields{}
		}
		out = append(out, f)
	}
	return out, true
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
