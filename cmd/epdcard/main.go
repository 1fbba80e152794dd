package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/alecthomas/kong"

	"epdcard/internal/app"
	"epdcard/internal/calendar"
	"epdcard/internal/card"
	"epdcard/internal/config"
	"epdcard/internal/display"
	"epdcard/internal/epd"
	appLog "epdcard/internal/log"
	"epdcard/internal/power"
	"epdcard/internal/render"
	"epdcard/internal/source"
	"epdcard/internal/web"
)

var version = "0.1.0-dev"

var CLI struct {
	Version    kong.VersionFlag
	Config     string `help:"Path to config file." type:"path" default:"/etc/epdcard/config.yaml"`
	Listen     string `help:"HTTP listen address (overrides config if set)."`
	Once       bool   `help:"Run one fetch+render(+display) cycle and exit."`
	RenderOnly bool   `help:"Render to the preview PNG only; do not touch display hardware."`
	Dump       bool   `help:"Dump debug artifacts (black.bin, red.bin, preview.png)."`
	DumpDir    string `help:"Directory for --dump artifacts." default:"./dump" type:"path"`
	Debug      bool   `help:"Enable debug logging."`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("epdcard"),
		kong.Description("Room card poller for a 2.9\" tri-color e-paper panel"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	conf, err := config.Load(CLI.Config)
	if err != nil {
		if conf == nil {
			fmt.Fprintf(os.Stderr, "Error: load config %s: %v\n", CLI.Config, err)
			os.Exit(1)
		}
		// Default config could not be written; keep running with it.
		appLog.Warn("failed to save default config", "config_path", CLI.Config, "err", err)
	}
	applyFlags(conf)

	level := appLog.ParseLevel(conf.Log.Level)
	if CLI.Debug {
		level = appLog.LevelDebug
	}
	appLog.Setup(appLog.Options{Level: level, File: conf.Log.File})

	appLog.Info("epdcard starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"poll", conf.Poll,
		"source_kind", conf.Source.Kind,
		"source_url", source.RedactURL(conf.Source.URL),
		"driver", conf.Display.Driver,
		"once", CLI.Once,
		"dump_dir", conf.Display.DumpDir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf); err != nil {
		appLog.Error("epdcard exiting with error", err)
		os.Exit(1)
	}
	appLog.Info("epdcard exiting")
}

// applyFlags lets CLI flags override the loaded config.
func applyFlags(conf *config.Config) {
	if CLI.Listen != "" {
		conf.Listen = CLI.Listen
	}
	if CLI.RenderOnly {
		conf.Display.Driver = config.DriverPreview
	}
	if CLI.Dump && conf.Display.DumpDir == "" {
		conf.Display.DumpDir = CLI.DumpDir
	}
}

func run(ctx context.Context, conf *config.Config) error {
	face, err := render.NewDefaultFace()
	if err != nil {
		return fmt.Errorf("load font: %w", err)
	}

	src, err := newSource(conf)
	if err != nil {
		return err
	}

	renderer, closeRenderer, err := newRenderer(conf, face)
	if err != nil {
		return err
	}
	defer closeRenderer()

	runner, err := app.NewRunner(app.Options{
		Source:       src,
		Layout:       card.NewLayoutEngine(conf.Header.Top, conf.Header.Sub),
		Metrics:      face,
		Renderer:     renderer,
		PaintTimeout: conf.PaintTimeout(),
	})
	if err != nil {
		return err
	}

	if CLI.Once {
		res := runner.Cycle(ctx)
		switch res.Outcome {
		case app.OutcomeRendered, app.OutcomeUnchanged:
			return nil
		default:
			if res.Err() != nil {
				return res.Err()
			}
			return fmt.Errorf("cycle ended with %s", res.Outcome)
		}
	}

	battery, err := power.Detect(ctx, conf.Power.I2CBus, conf.Power.I2CAddr)
	if err != nil && !errors.Is(err, power.ErrUnavailable) {
		appLog.Debug("battery gauge not detected", "err", err)
	}

	srv := web.NewServer(conf, runner, face, battery)
	webErr := make(chan error, 1)
	go func() { webErr <- srv.Serve(ctx) }()

	loopErr := runner.Run(ctx, conf.Poll)
	if loopErr != nil {
		return loopErr
	}

	select {
	case err := <-webErr:
		return err
	case <-time.After(10 * time.Second):
		return errors.New("http server did not stop in time")
	}
}

func newSource(conf *config.Config) (app.ContentSource, error) {
	switch conf.Source.Kind {
	case config.SourceICS:
		loc, err := time.LoadLocation(conf.Source.Timezone)
		if err != nil {
			appLog.Warn("unknown timezone, using local time", "timezone", conf.Source.Timezone, "err", err)
			loc = time.Local
		}
		fetcher := calendar.NewFetcher(conf.Source.CacheDir, conf.FetchTimeout())
		return calendar.NewSource(conf.Source.URL, fetcher, loc), nil
	case config.SourceJSON:
		return source.NewHTTP(conf.Source.URL, source.WithTimeout(conf.FetchTimeout())), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", conf.Source.Kind)
	}
}

// newRenderer builds the paint target for the configured driver. The
// returned func releases hardware and is safe to call once.
func newRenderer(conf *config.Config, face *render.Face) (display.Renderer, func(), error) {
	preview := display.NewPreview(face, conf.Display.PreviewPath, conf.Display.DumpDir)
	if conf.Display.Driver == config.DriverPreview {
		return preview, func() {}, nil
	}

	bus, err := epd.OpenSPI(epd.Pins{
		SPIPort: conf.Display.SPIPort,
		DC:      conf.Display.DCPin,
		RST:     conf.Display.RSTPin,
		Busy:    conf.Display.BusyPin,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open display: %w", err)
	}
	drv := epd.New(bus)
	closeFn := func() {
		if err := drv.Close(); err != nil {
			appLog.Error("display close failed", err)
		}
	}

	panel := display.NewPanel(face, drv)
	if conf.Display.DumpDir != "" {
		return display.Multi{Primary: panel, Mirrors: []display.Renderer{preview}}, closeFn, nil
	}
	return panel, closeFn, nil
}
