package tim

import "image/color"

// PSXColor is a 15-bit BGR frame buffer color with the semi-transparency bit on top
type PSXColor uint16

const stpBit = 0x8000

// ToRGBA converts the color to 8-bit RGBA. Black without STP is fully
// transparent and any color with STP set is half transparent.
func (c PSXColor) ToRGBA() color.RGBA {
	r := uint8(c&0x1F) << 3
	g := uint8((c>>5)&0x1F) << 3
	b := uint8((c>>10)&0x1F) << 3

	switch {
	case c&stpBit != 0:
		return color.RGBA{r, g, b, 0x7F}
	case c == 0:
		return color.RGBA{0, 0, 0, 0}
	default:
		return color.RGBA{r, g, b, 0xFF}
	}
}

// PSXColorFromRGBA converts 8-bit RGBA components to a PSX color
func PSXColorFromRGBA(r, g, b, a uint8) PSXColor {
	if a == 0 {
		return 0
	}
	c := PSXColor(r>>3) | PSXColor(g>>3)<<5 | PSXColor(b>>3)<<10
	// Opaque black needs STP so it is not read back as transparent
	if c == 0 || a < 0x80 {
		c |= stpBit
	}
	return c
}

// Palette is one row of a CLUT
type Palette []PSXColor

// Palette returns CLUT row n
func (img *Image) Palette(n int) Palette {
	if img.CLUT == nil || n < 0 || n >= img.NumPalettes() {
		return nil
	}
	width := int(img.CLUT.Width)
	row := img.CLUT.Data[n*width*2 : (n+1)*width*2]
	palette := make(Palette, width)
	for i := range palette {
		palette[i] = PSXColor(uint16(row[i*2]) | uint16(row[i*2+1])<<8)
	}
	return palette
}
