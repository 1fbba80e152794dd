package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q)=%s want %s", in, got, want)
		}
	}
}

func TestSetupWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	Setup(Options{Level: LevelInfo, Output: &buf})
	defer Setup(Options{})

	Debug("hidden")
	Info("cycle done", "outcome", "rendered")
	Error("fetch failed", errors.New("boom"), "status", 500)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
	if !strings.Contains(out, "outcome=rendered") {
		t.Fatalf("missing kv in %q", out)
	}
	if !strings.Contains(out, "err=boom") || !strings.Contains(out, "status=500") {
		t.Fatalf("missing error kv in %q", out)
	}
}

func TestSetupFileOutput(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "epdcard.log")
	Setup(Options{Level: LevelDebug, Output: &buf, File: path})
	defer Setup(Options{})

	Debug("to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("log file content=%q", data)
	}
}
