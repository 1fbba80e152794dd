package document

import (
	"errors"
	"testing"
)

func TestParseMeetingDocument(t *testing.T) {
	body := []byte(`{"refresh_token":"t1","format_token":"meeting","meeting":{"subject":"Budget","from":"10:00","to":"11:00"}}`)

	doc, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.RefreshToken != "t1" || doc.FormatToken != "meeting" {
		t.Fatalf("tokens=%q/%q", doc.RefreshToken, doc.FormatToken)
	}
	m, ok := Object(doc.Meeting)
	if !ok {
		t.Fatal("meeting should decode as object")
	}
	if m.Str("subject") != "Budget" || m.Str("to") != "11:00" {
		t.Fatalf("meeting=%v", m)
	}
}

func TestParseRejectsNonObjects(t *testing.T) {
	for _, body := range []string{``, `not json`, `[1,2]`, `"str"`, `null`, `{"a":`} {
		_, err := Parse([]byte(body))
		if !errors.Is(err, ErrParse) {
			t.Errorf("Parse(%q) err=%v, want ErrParse", body, err)
		}
	}
}

func TestNonStringTokensReadEmpty(t *testing.T) {
	doc, err := Parse([]byte(`{"refresh_token":42,"format_token":null}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.RefreshToken != "" || doc.FormatToken != "" {
		t.Fatalf("tokens=%q/%q", doc.RefreshToken, doc.FormatToken)
	}
}

func TestArrayKeepsPositions(t *testing.T) {
	items, ok := Array([]byte(`[{"dr":"A"}, 7, {"dr":"C"}]`))
	if !ok {
		t.Fatal("expected array")
	}
	if len(items) != 3 {
		t.Fatalf("len=%d", len(items))
	}
	if items[0].Str("dr") != "A" || items[1].Str("dr") != "" || items[2].Str("dr") != "C" {
		t.Fatalf("items=%v", items)
	}

	if _, ok := Array([]byte(`{"dr":"A"}`)); ok {
		t.Fatal("object is not an array")
	}
	if _, ok := Array(nil); ok {
		t.Fatal("absent is not an array")
	}
}

func TestObjectRejectsNull(t *testing.T) {
	if _, ok := Object([]byte(` null `)); ok {
		t.Fatal("null is not an object")
	}
	if _, ok := Object([]byte(`"x"`)); ok {
		t.Fatal("string is not an object")
	}
}
