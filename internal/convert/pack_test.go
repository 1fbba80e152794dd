package convert

import (
	"image"
	"image/color"
	"testing"
)

func blank() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, LandscapeWidth, LandscapeHeight))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	return img
}

func bit(plane []byte, px, py int) bool {
	return plane[py*ByteStride+(px>>3)]&(0x80>>(px&7)) != 0
}

func TestPackWhiteImage(t *testing.T) {
	black, red, err := Pack(blank())
	if err != nil {
		t.Fatal(err)
	}
	if len(black) != PlaneSize || len(red) != PlaneSize {
		t.Fatalf("sizes %d/%d", len(black), len(red))
	}
	for i := range black {
		if black[i] != 0xFF || red[i] != 0x00 {
			t.Fatalf("byte %d black=%#x red=%#x", i, black[i], red[i])
		}
	}
}

func TestPackRotatesIntoPanelRAM(t *testing.T) {
	img := blank()
	img.SetNRGBA(0, 0, color.NRGBA{A: 0xFF})                  // black, top-left
	img.SetNRGBA(295, 127, color.NRGBA{R: 0xCC, A: 0xFF})     // red, bottom-right
	img.SetNRGBA(10, 20, color.NRGBA{R: 0x10, G: 0x10, B: 0x10}) // transparent

	black, red, err := Pack(img)
	if err != nil {
		t.Fatal(err)
	}

	// (0,0) -> panel (127, 0)
	if bit(black, 127, 0) {
		t.Fatal("expected black ink at panel (127,0)")
	}
	// (295,127) -> panel (0, 295)
	if !bit(red, 0, 295) {
		t.Fatal("expected red ink at panel (0,295)")
	}
	if bit(red, 127, 0) {
		t.Fatal("black pixel leaked into red plane")
	}
	// transparent pixel stays paper: (10,20) -> panel (107, 10)
	if !bit(black, 107, 10) {
		t.Fatal("transparent pixel must stay white")
	}
}

func TestPackRejectsWrongSize(t *testing.T) {
	if _, _, err := Pack(image.NewNRGBA(image.Rect(0, 0, 128, 296))); err == nil {
		t.Fatal("expected size error for portrait image")
	}
}

func TestClassifyPixel(t *testing.T) {
	cases := []struct {
		c    color.NRGBA
		want inkColor
	}{
		{color.NRGBA{A: 0xFF}, inkBlack},
		{color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}, inkWhite},
		{color.NRGBA{R: 0xCC, A: 0xFF}, inkRed},
		{color.NRGBA{R: 0xFF, G: 0x20, B: 0x20, A: 0xFF}, inkRed},
		{color.NRGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xFF}, inkBlack},
		{color.NRGBA{R: 0xC0, G: 0xC0, B: 0xC0, A: 0xFF}, inkWhite},
	}
	for _, tc := range cases {
		if got := classifyPixel(tc.c); got != tc.want {
			t.Errorf("classifyPixel(%v)=%d want %d", tc.c, got, tc.want)
		}
	}
}
