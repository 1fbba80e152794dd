// Package render measures and draws card text with a TrueType face.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"epdcard/internal/card"
)

// Default face parameters. At 96 DPI an 11pt Go Regular "A" is about as tall
// as the 9pt FreeSans bitmap font the card geometry was tuned for.
const (
	DefaultFontSize = 11
	DefaultDPI      = 96
)

var (
	White = color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	Black = color.NRGBA{A: 0xFF}
	Red   = color.NRGBA{R: 0xCC, A: 0xFF}
)

// Face wraps a font.Face for measuring and drawing. font.Face is not safe
// for concurrent use, so every access goes through mu.
type Face struct {
	mu   sync.Mutex
	face font.Face
}

// NewFace returns the Go Regular face at size points and dpi.
func NewFace(size, dpi float64) (*Face, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("render: parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     dpi,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("render: build face: %w", err)
	}
	return &Face{face: face}, nil
}

// NewDefaultFace returns the face used by the card.
func NewDefaultFace() (*Face, error) {
	return NewFace(DefaultFontSize, DefaultDPI)
}

// FromFace wraps an existing font.Face, e.g. basicfont.Face7x13 in tests.
func FromFace(face font.Face) *Face {
	return &Face{face: face}
}

// Bounds returns the ink bounding box size of text. It implements
// card.TextMetrics.
func (f *Face) Bounds(text string) (width, height int) {
	if text == "" {
		return 0, 0
	}
	f.mu.Lock()
	b, _ := font.BoundString(f.face, text)
	f.mu.Unlock()
	return (b.Max.X - b.Min.X).Ceil(), (b.Max.Y - b.Min.Y).Ceil()
}

// Draw paints plan onto a new white NRGBA image of the plan's size.
// Accent lines are red, primary lines black.
func (f *Face) Draw(plan card.RenderPlan) *image.NRGBA {
	w, h := plan.Width, plan.Height
	if w <= 0 || h <= 0 {
		w, h = card.SurfaceWidth, card.SurfaceHeight
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(White), image.Point{}, draw.Src)

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, l := range plan.Header {
		f.drawLine(img, l)
	}
	for _, l := range plan.Lines {
		f.drawLine(img, l)
	}
	return img
}

func (f *Face) drawLine(dst draw.Image, l card.Line) {
	if l.Text == "" {
		return
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(ink(l.Color)),
		Face: f.face,
		Dot:  fixed.P(l.X, l.Y),
	}
	d.DrawString(l.Text)
}

func ink(c card.Color) color.Color {
	if c == card.Accent {
		return Red
	}
	return Black
}

var _ card.TextMetrics = (*Face)(nil)
