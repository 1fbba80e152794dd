package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"epdcard/internal/card"
)

func TestLoadCreatesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Poll != defaultPoll || cfg.Source.Kind != SourceJSON {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm=%o", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("poll: \"@every 30s\"\nsource:\n  kind: bogus\n  url: http://example.test/card.json\ndisplay:\n  driver: preview\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Poll != "@every 30s" {
		t.Fatalf("poll=%q", cfg.Poll)
	}
	if cfg.Source.Kind != SourceJSON {
		t.Fatalf("unknown kind should fall back to json, got %q", cfg.Source.Kind)
	}
	if cfg.Source.URL != "http://example.test/card.json" {
		t.Fatalf("url=%q", cfg.Source.URL)
	}
	if cfg.Display.Driver != DriverPreview {
		t.Fatalf("driver=%q", cfg.Display.Driver)
	}
	if cfg.Header.Top != card.DefaultHeaderTop || cfg.Header.Sub != card.DefaultHeaderSub {
		t.Fatalf("header=%+v", cfg.Header)
	}
	if cfg.FetchTimeout() != 15*time.Second {
		t.Fatalf("fetch timeout=%s", cfg.FetchTimeout())
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Header.Top = "LAB 3"
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Header.Top != "LAB 3" {
		t.Fatalf("header top=%q", got.Header.Top)
	}
	if got.BasicAuth == nil || got.BasicAuth.Username != "u" {
		t.Fatalf("basic auth=%+v", got.BasicAuth)
	}
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error")
	}
}
