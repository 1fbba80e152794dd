package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"epdcard/internal/card"
)

// Source kinds.
const (
	SourceJSON = "json"
	SourceICS  = "ics"
)

// Display drivers.
const (
	DriverEPD     = "epd"
	DriverPreview = "preview"
)

// SourceConfig describes where card content comes from.
type SourceConfig struct {
	// Kind is "json" (a card document) or "ics" (a calendar feed that is
	// turned into a schedule card).
	Kind string `yaml:"kind" json:"kind"`
	// URL is the document or ICS endpoint.
	URL string `yaml:"url" json:"url"`
	// TimeoutSeconds bounds a single fetch.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
	// Timezone is the IANA zone used to pick "today" for ICS sources.
	Timezone string `yaml:"timezone" json:"timezone"`
	// CacheDir holds the ETag/Last-Modified cache for ICS sources.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// HeaderConfig holds the two fixed header lines.
type HeaderConfig struct {
	Top string `yaml:"top" json:"top"`
	Sub string `yaml:"sub" json:"sub"`
}

// DisplayConfig selects and wires the output surface.
type DisplayConfig struct {
	// Driver is "epd" for the SPI panel or "preview" for PNG output only.
	Driver string `yaml:"driver" json:"driver"`

	// SPIPort is the periph.io SPI port name ("" = first available).
	SPIPort string `yaml:"spi_port" json:"spi_port"`
	DCPin   string `yaml:"dc_pin" json:"dc_pin"`
	RSTPin  string `yaml:"rst_pin" json:"rst_pin"`
	BusyPin string `yaml:"busy_pin" json:"busy_pin"`

	// PreviewPath is where the last rendered frame is written as PNG.
	PreviewPath string `yaml:"preview_path" json:"preview_path"`
	// DumpDir, if set, receives black.bin/red.bin plane dumps.
	DumpDir string `yaml:"dump_dir" json:"dump_dir"`

	PaintTimeoutSeconds int `yaml:"paint_timeout_seconds" json:"paint_timeout_seconds"`
}

// PowerConfig configures the optional battery gauge.
type PowerConfig struct {
	I2CBus  string `yaml:"i2c_bus" json:"i2c_bus"`
	I2CAddr uint16 `yaml:"i2c_addr" json:"i2c_addr"`
}

// LogConfig controls log level and optional rotating file output.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status server.
	Listen string `yaml:"listen" json:"listen"`

	// Poll is a cron-style schedule for the poll loop, e.g. "@every 10s".
	Poll string `yaml:"poll" json:"poll"`

	Source  SourceConfig  `yaml:"source" json:"source"`
	Header  HeaderConfig  `yaml:"header" json:"header"`
	Display DisplayConfig `yaml:"display" json:"display"`
	Power   PowerConfig   `yaml:"power" json:"power"`
	Log     LogConfig     `yaml:"log" json:"log"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen       = "127.0.0.1:8080"
	defaultPoll         = "@every 10s"
	defaultSourceURL    = "https://asmaa-eg.github.io/room-schedule/schedule.json"
	defaultFetchTimeout = 15
	defaultTimezone     = "Africa/Cairo"
	defaultPreviewPath  = "/var/lib/epdcard/preview.png"
	defaultCacheDir     = "/var/lib/epdcard/ics-cache"
	defaultPaintTimeout = 60
	defaultPowerAddr    = 0x57
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Poll == "" {
		c.Poll = defaultPoll
	}

	switch c.Source.Kind {
	case SourceJSON, SourceICS:
	default:
		c.Source.Kind = SourceJSON
	}
	if c.Source.URL == "" {
		c.Source.URL = defaultSourceURL
	}
	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = defaultFetchTimeout
	}
	if c.Source.Timezone == "" {
		c.Source.Timezone = defaultTimezone
	}
	if c.Source.CacheDir == "" {
		c.Source.CacheDir = defaultCacheDir
	}

	if c.Header.Top == "" {
		c.Header.Top = card.DefaultHeaderTop
	}
	if c.Header.Sub == "" {
		c.Header.Sub = card.DefaultHeaderSub
	}

	switch c.Display.Driver {
	case DriverEPD, DriverPreview:
	default:
		c.Display.Driver = DriverEPD
	}
	// Waveshare e-Paper HAT wiring (BCM numbering).
	if c.Display.DCPin == "" {
		c.Display.DCPin = "GPIO25"
	}
	if c.Display.RSTPin == "" {
		c.Display.RSTPin = "GPIO17"
	}
	if c.Display.BusyPin == "" {
		c.Display.BusyPin = "GPIO24"
	}
	if c.Display.PreviewPath == "" {
		c.Display.PreviewPath = defaultPreviewPath
	}
	if c.Display.PaintTimeoutSeconds <= 0 {
		c.Display.PaintTimeoutSeconds = defaultPaintTimeout
	}

	if c.Power.I2CAddr == 0 {
		c.Power.I2CAddr = defaultPowerAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// FetchTimeout returns the per-fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// PaintTimeout returns the per-paint timeout.
func (c *Config) PaintTimeout() time.Duration {
	return time.Duration(c.Display.PaintTimeoutSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to path atomically (temp file +
// rename) with 0600 permissions, creating the parent directory (0700).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".epdcard-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
