package convert

import (
	"fmt"
	"image"
	"image/color"
)

// Panel geometry of the 2.9" tri-color SSD1680 panel. The controller RAM is
// portrait (128x296); the card is drawn landscape (296x128) and rotated
// while packing.
const (
	PanelWidth  = 128
	PanelHeight = 296
	ByteStride  = PanelWidth / 8 // 16 bytes per row
	PlaneSize   = ByteStride * PanelHeight

	LandscapeWidth  = PanelHeight
	LandscapeHeight = PanelWidth
)

// Pack converts a landscape 296x128 image into the two RAM planes of the
// panel.
//
//   - black plane: 1 = white, 0 = black ink (SSD1680 RAM 0x24)
//   - red plane:   1 = red ink, 0 = no red  (SSD1680 RAM 0x26)
//
// Both planes are y-major, MSB-first 1bpp in panel coordinates. A landscape
// pixel (x, y) lands on panel pixel (127-y, x), matching a 90 degree
// clockwise mounting.
func Pack(img image.Image) (black, red []byte, err error) {
	b := img.Bounds()
	if b.Dx() != LandscapeWidth || b.Dy() != LandscapeHeight {
		return nil, nil, fmt.Errorf("convert: expected %dx%d image, got %dx%d",
			LandscapeWidth, LandscapeHeight, b.Dx(), b.Dy())
	}

	black = make([]byte, PlaneSize)
	red = make([]byte, PlaneSize)
	for i := range black {
		black[i] = 0xFF
	}

	for y := 0; y < LandscapeHeight; y++ {
		for x := 0; x < LandscapeWidth; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)

			// Mostly transparent pixels are paper.
			if c.A < 128 {
				continue
			}

			px := PanelWidth - 1 - y
			py := x
			idx := py*ByteStride + (px >> 3)
			mask := byte(0x80 >> (px & 7))

			switch classifyPixel(c) {
			case inkBlack:
				black[idx] &^= mask
			case inkRed:
				red[idx] |= mask
			}
		}
	}

	return black, red, nil
}

// inkColor indicates which plane a pixel should be drawn to.
type inkColor int

const (
	inkWhite inkColor = iota
	inkBlack
	inkRed
)

// classifyPixel maps a color to the nearest panel ink using luma
// (0.299R + 0.587G + 0.114B) and red dominance (R - max(G, B)).
func classifyPixel(c color.NRGBA) inkColor {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)

	y := 0.299*r + 0.587*g + 0.114*b

	maxGB := g
	if b > maxGB {
		maxGB = b
	}
	redness := r - maxGB

	if r > 128 && redness > 32 {
		return inkRed
	}
	if y < 96 {
		return inkBlack
	}
	return inkWhite
}
