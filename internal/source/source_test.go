package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method=%s", r.Method)
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "epdcard/") {
			t.Fatalf("ua=%q", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"refresh_token":"t1"}`)
	}))
	defer srv.Close()

	resp, err := NewHTTP(srv.URL+"/schedule.json").Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !resp.OK() || resp.Err() != nil {
		t.Fatalf("status=%d err=%v", resp.StatusCode, resp.Err())
	}
	if string(resp.Body) != `{"refresh_token":"t1"}` {
		t.Fatalf("body=%q", resp.Body)
	}
	if resp.FetchedAt.IsZero() {
		t.Fatal("FetchedAt not set")
	}
}

func TestFetchNonOKIsNotTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	resp, err := NewHTTP(srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.OK() {
		t.Fatal("503 must not be OK")
	}
	var se *StatusError
	if !errors.As(resp.Err(), &se) || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("err=%v", resp.Err())
	}
	if !errors.Is(resp.Err(), ErrStatus) {
		t.Fatal("StatusError should match ErrStatus")
	}
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, WithTimeout(20*time.Millisecond)).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestFetchEmptyURL(t *testing.T) {
	if _, err := NewHTTP("  ").Fetch(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRedactURL(t *testing.T) {
	cases := map[string]string{
		"https://example.com/path/private.json?token=abcd": "https://example.com/...(redacted)",
		"http://host:8080":  "http://host:8080/...(redacted)",
		"no-scheme/at/all":  "url://...(redacted)",
	}
	for in, want := range cases {
		if got := RedactURL(in); got != want {
			t.Errorf("RedactURL(%q)=%q want %q", in, got, want)
		}
	}
}
