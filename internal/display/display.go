// Package display turns render plans into pixels on a surface: the e-paper
// panel, a PNG preview on disk, or both.
package display

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"epdcard/internal/card"
	"epdcard/internal/convert"
	appLog "epdcard/internal/log"
)

// Renderer paints a plan. A nil error means the whole surface was updated.
type Renderer interface {
	Paint(ctx context.Context, plan card.RenderPlan) error
}

// Rasterizer draws a plan into an image.
type Rasterizer interface {
	Draw(plan card.RenderPlan) *image.NRGBA
}

// Device is a tri-color panel taking packed planes (see convert.Pack).
type Device interface {
	Display(ctx context.Context, black, red []byte) error
	Sleep() error
}

// Panel paints plans on an e-paper Device.
type Panel struct {
	raster Rasterizer
	dev    Device
}

func NewPanel(raster Rasterizer, dev Device) *Panel {
	return &Panel{raster: raster, dev: dev}
}

// Paint rasterizes, packs and pushes one full frame, then puts the panel to
// sleep. A failed sleep does not fail the paint; the image is already on
// the glass.
func (p *Panel) Paint(ctx context.Context, plan card.RenderPlan) error {
	img := p.raster.Draw(plan)
	black, red, err := convert.Pack(img)
	if err != nil {
		return err
	}
	if err := p.dev.Display(ctx, black, red); err != nil {
		return fmt.Errorf("display: panel refresh: %w", err)
	}
	if err := p.dev.Sleep(); err != nil {
		appLog.Error("display: panel sleep failed", err)
	}
	return nil
}

// Preview writes each frame as a PNG, optionally with the packed planes
// (black.bin, red.bin) next to it for debugging.
type Preview struct {
	raster  Rasterizer
	path    string
	dumpDir string
}

func NewPreview(raster Rasterizer, path, dumpDir string) *Preview {
	return &Preview{raster: raster, path: path, dumpDir: dumpDir}
}

func (p *Preview) Paint(_ context.Context, plan card.RenderPlan) error {
	img := p.raster.Draw(plan)

	if p.path != "" {
		if err := writePNG(p.path, img); err != nil {
			return fmt.Errorf("display: write preview: %w", err)
		}
	}

	if p.dumpDir != "" {
		black, red, err := convert.Pack(img)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(p.dumpDir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(p.dumpDir, "black.bin"), black, 0o644); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(p.dumpDir, "red.bin"), red, 0o644); err != nil {
			return err
		}
		if err := writePNG(filepath.Join(p.dumpDir, "preview.png"), img); err != nil {
			return err
		}
	}
	return nil
}

// Multi paints on Primary and, once that succeeds, on each mirror. Only
// the primary's error is returned; mirror failures are logged.
type Multi struct {
	Primary Renderer
	Mirrors []Renderer
}

func (m Multi) Paint(ctx context.Context, plan card.RenderPlan) error {
	if err := m.Primary.Paint(ctx, plan); err != nil {
		return err
	}
	for i, r := range m.Mirrors {
		if err := r.Paint(ctx, plan); err != nil {
			appLog.Error("display: mirror paint failed", err, "mirror", i)
		}
	}
	return nil
}

// writePNG writes img to path via a temp file and rename so readers never
// see a partial file.
func writePNG(path string, img image.Image) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".preview-*.png")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
