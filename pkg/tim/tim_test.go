// Package tim provides tests for TIM parsing and color conversion
package tim

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPSXColor_ToRGBA(t *testing.T) {
	tests := []struct {
		name     string
		psxColor PSXColor
		expected color.RGBA
	}{
		{
			name:     "transparent color",
			psxColor: PSXColor(0),
			expected: color.RGBA{0, 0, 0, 0},
		},
		{
			name:     "white color",
			psxColor: PSXColor(0x7FFF), // All bits set in 15-bit format
			expected: color.RGBA{248, 248, 248, 255},
		},
		{
			name:     "red color",
			psxColor: PSXColor(0x001F), // Only red bits set
			expected: color.RGBA{248, 0, 0, 255},
		},
		{
			name:     "green color",
			psxColor: PSXColor(0x03E0), // Only green bits set
			expected: color.RGBA{0, 248, 0, 255},
		},
		{
			name:     "blue color",
			psxColor: PSXColor(0x7C00), // Only blue bits set
			expected: color.RGBA{0, 0, 248, 255},
		},
		{
			name:     "semi transparent",
			psxColor: PSXColor(0x801F),
			expected: color.RGBA{248, 0, 0, 0x7F},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.psxColor.ToRGBA()
			if result != tt.expected {
				t.Errorf("PSXColor.ToRGBA() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestPSXColorFromRGBA(t *testing.T) {
	tests := []struct {
		name       string
		r, g, b, a uint8
		expected   PSXColor
	}{
		{name: "transparent color", r: 255, g: 255, b: 255, a: 0, expected: PSXColor(0)},
		{name: "white color", r: 248, g: 248, b: 248, a: 255, expected: PSXColor(0x7FFF)},
		{name: "red color", r: 248, g: 0, b: 0, a: 255, expected: PSXColor(0x001F)},
		{name: "green color", r: 0, g: 248, b: 0, a: 255, expected: PSXColor(0x03E0)},
		{name: "blue color", r: 0, g: 0, b: 248, a: 255, expected: PSXColor(0x7C00)},
		{name: "opaque black", r: 0, g: 0, b: 0, a: 255, expected: PSXColor(0x8000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PSXColorFromRGBA(tt.r, tt.g, tt.b, tt.a)
			if result != tt.expected {
				t.Errorf("PSXColorFromRGBA(%d, %d, %d, %d) = %d, want %d",
					tt.r, tt.g, tt.b, tt.a, result, tt.expected)
			}
		})
	}
}

// indexed4 builds a 4x2 4bpp TIM with one 16-color palette
func indexed4() []byte {
	img := &Image{
		Flags: FlagCLUT | uint32(BPP4),
		CLUT: &Block{X: 0, Y: 480, Width: 16, Height: 1, Data: func() []byte {
			clut := make([]byte, 32)
			clut[2], clut[3] = 0x1F, 0x00 // 1: red
			clut[4], clut[5] = 0xE0, 0x03 // 2: green
			return clut
		}()},
		Pixel: Block{X: 320, Y: 0, Width: 1, Height: 2, Data: []byte{0x21, 0x00, 0x00, 0x12}},
	}
	return img.Bytes()
}

func TestParse(t *testing.T) {
	data := indexed4()
	img, err := Parse(data)
	require.NoError(t, err)

	assert.True(t, img.HasCLUT())
	assert.Equal(t, BPP4, img.BPP())
	assert.Equal(t, 4, img.PixelWidth())
	assert.Equal(t, 2, img.PixelHeight())
	assert.Equal(t, 1, img.NumPalettes())
	assert.Equal(t, len(data), img.Size)
	assert.Equal(t, uint16(480), img.CLUT.Y)

	// Trailing data is ignored
	size, ok := Size(append(data, 0xAA, 0xBB))
	assert.True(t, ok)
	assert.Equal(t, len(data), size)
}

func TestParse_Invalid(t *testing.T) {
	valid := indexed4()

	badBlock := append([]byte{}, valid...)
	badBlock[8] = 0xFF // CLUT block size past the end

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte{0x11}, valid[1:]...)},
		{"bad version", append([]byte{0x10, 0x01}, valid[2:]...)},
		{"unknown flags", append(append([]byte{}, valid[:4]...), append([]byte{0x08, 0x01, 0, 0}, valid[8:]...)...)},
		{"truncated", valid[:len(valid)-1]},
		{"block size", badBlock},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.data)
			assert.Error(t, err)
		})
	}
}

func TestToImage_Indexed(t *testing.T) {
	img, err := Parse(indexed4())
	require.NoError(t, err)

	rgba, err := img.ToImage(0)
	require.NoError(t, err)

	// Low nibble is the left pixel
	assert.Equal(t, color.RGBA{248, 0, 0, 255}, rgba.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{0, 248, 0, 255}, rgba.RGBAAt(1, 0))
	assert.Equal(t, color.RGBA{0, 0, 0, 0}, rgba.RGBAAt(2, 0))
	assert.Equal(t, color.RGBA{0, 248, 0, 255}, rgba.RGBAAt(2, 1))
	assert.Equal(t, color.RGBA{248, 0, 0, 255}, rgba.RGBAAt(3, 1))

	_, err = img.ToImage(1)
	assert.Error(t, err)
}

func TestFromImage_ToImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.RGBA{0, 0, 0, 0})     // Transparent
	src.Set(1, 0, color.RGBA{248, 0, 0, 255}) // Red
	src.Set(0, 1, color.RGBA{0, 248, 0, 255}) // Green
	src.Set(1, 1, color.RGBA{0, 0, 248, 255}) // Blue

	img, err := FromImage(src)
	require.NoError(t, err)

	parsed, err := Parse(img.Bytes())
	require.NoError(t, err)
	assert.Equal(t, BPP16, parsed.BPP())

	result, err := parsed.ToImage(0)
	require.NoError(t, err)

	for _, pt := range []image.Point{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		got := result.RGBAAt(pt.X, pt.Y)
		want := src.RGBAAt(pt.X, pt.Y)
		if got != want {
			t.Errorf("Image color at (%d, %d) = %v, want %v", pt.X, pt.Y, got, want)
		}
	}
}

func TestDetector(t *testing.T) {
	data := indexed4()
	d := Detector{}

	v, ok := d.Detect(data)
	assert.True(t, ok)
	assert.EqualValues(t, Name, v)

	_, ok = d.Detect(append(append([]byte{}, data...), 0, 0, 0, 0))
	assert.True(t, ok, "zero padding should be accepted")

	_, ok = d.Detect(append(append([]byte{}, data...), data...))
	assert.False(t, ok, "a second image is not a single TIM")
}

func TestProcessor_PNGRoundTrip(t *testing.T) {
	dir := t.TempDir()
	timPath := filepath.Join(dir, "in.TIM")
	pngPath := filepath.Join(dir, "out.png")
	backPath := filepath.Join(dir, "back.TIM")

	img, err := New16(2, 1, []PSXColor{0x001F, 0x7C00})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(timPath, img.Bytes(), 0644))

	p := NewProcessor()
	require.NoError(t, p.ExportPNG(timPath, pngPath, 0))
	require.NoError(t, p.ImportPNG(pngPath, backPath))

	back, err := os.ReadFile(backPath)
	require.NoError(t, err)
	assert.Equal(t, img.Bytes(), back)
}
