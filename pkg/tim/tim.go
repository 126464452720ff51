// Package tim provides parsing and conversion of PlayStation TIM images.
// This file contains the TIM header and block layout.
package tim

import (
	"encoding/binary"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/common"
)

// Name identifies the format in detector results and errors
const Name = "tim"

const (
	// Magic is the first byte of every TIM
	Magic   = 0x10
	Version = 0x00

	// FlagCLUT marks a TIM carrying a color lookup table
	FlagCLUT = 0x08
	// FlagBPPMask selects the pixel depth bits of the flags word
	FlagBPPMask = 0x03

	HeaderSize      = 8
	BlockHeaderSize = 12
)

// BitsPerPixel is the pixel depth encoded in the flags word
type BitsPerPixel int

const (
	BPP4 BitsPerPixel = iota
	BPP8
	BPP16
	BPP24
)

func (b BitsPerPixel) String() string {
	switch b {
	case BPP4:
		return "4bpp"
	case BPP8:
		return "8bpp"
	case BPP16:
		return "16bpp"
	default:
		return "24bpp"
	}
}

// Block is a rectangle of frame buffer data. Width is in 16-bit units.
type Block struct {
	X, Y          uint16
	Width, Height uint16
	Data          []byte
}

// Image is a parsed TIM
type Image struct {
	Flags uint32
	CLUT  *Block
	Pixel Block
	// Size is the number of bytes the TIM occupies
	Size int
}

// BPP returns the pixel depth
func (img *Image) BPP() BitsPerPixel {
	return BitsPerPixel(img.Flags & FlagBPPMask)
}

// HasCLUT reports whether the image carries palettes
func (img *Image) HasCLUT() bool {
	return img.Flags&FlagCLUT != 0
}

// PixelWidth returns the image width in pixels
func (img *Image) PixelWidth() int {
	w := int(img.Pixel.Width)
	switch img.BPP() {
	case BPP4:
		return w * 4
	case BPP8:
		return w * 2
	case BPP16:
		return w
	default:
		return w * 2 / 3
	}
}

// PixelHeight returns the image height in pixels
func (img *Image) PixelHeight() int {
	return int(img.Pixel.Height)
}

// NumPalettes returns the number of palettes in the CLUT
func (img *Image) NumPalettes() int {
	if img.CLUT == nil {
		return 0
	}
	return int(img.CLUT.Height)
}

// Parse reads the TIM at the start of data. Bytes after the image are ignored.
func Parse(data []byte) (*Image, error) {
	if len(data) < HeaderSize {
		return nil, common.NewFormatError(Name, common.NoIndex, 0, "need %d header bytes, have %d", HeaderSize, len(data))
	}
	if data[0] != Magic {
		return nil, common.NewFormatError(Name, common.NoIndex, 0, "bad magic 0x%02X", data[0])
	}
	if data[1] != Version {
		return nil, common.NewFormatError(Name, common.NoIndex, 1, "unsupported version %d", data[1])
	}

	img := &Image{Flags: binary.LittleEndian.Uint32(data[4:])}
	if img.Flags&^(FlagCLUT|FlagBPPMask) != 0 {
		return nil, common.NewFormatError(Name, common.NoIndex, 4, "unknown flags 0x%08X", img.Flags)
	}

	pos := HeaderSize
	if img.HasCLUT() {
		clut, n, err := parseBlock(data, pos)
		if err != nil {
			return nil, err
		}
		img.CLUT = clut
		pos += n
	}

	pixel, n, err := parseBlock(data, pos)
	if err != nil {
		return nil, err
	}
	img.Pixel = *pixel
	img.Size = pos + n
	return img, nil
}

func parseBlock(data []byte, pos int) (*Block, int, error) {
	if len(data)-pos < BlockHeaderSize {
		return nil, 0, common.NewFormatError(Name, common.NoIndex, int64(pos), "truncated block header")
	}
	size := int(binary.LittleEndian.Uint32(data[pos:]))
	if size < BlockHeaderSize || size > len(data)-pos {
		return nil, 0, common.NewFormatError(Name, common.NoIndex, int64(pos),
			"block size %d outside %d available bytes", size, len(data)-pos)
	}

	block := &Block{
		X:      binary.LittleEndian.Uint16(data[pos+4:]),
		Y:      binary.LittleEndian.Uint16(data[pos+6:]),
		Width:  binary.LittleEndian.Uint16(data[pos+8:]),
		Height: binary.LittleEndian.Uint16(data[pos+10:]),
		Data:   data[pos+BlockHeaderSize : pos+size],
	}
	if int(block.Width)*int(block.Height)*2 > len(block.Data) {
		return nil, 0, common.NewFormatError(Name, common.NoIndex, int64(pos),
			"%dx%d block does not fit in %d bytes", block.Width, block.Height, len(block.Data))
	}
	return block, size, nil
}

// Size returns the length of the TIM at the start of data, or false when
// data does not start with a valid TIM.
func Size(data []byte) (int, bool) {
	img, err := Parse(data)
	if err != nil {
		return 0, false
	}
	return img.Size, true
}

// Detector recognises a buffer holding exactly one TIM, allowing zero padding
type Detector struct{}

// Name implements archive.Detector
func (Detector) Name() string { return Name }

// Detect implements archive.Detector
func (Detector) Detect(data []byte) (archive.Variant, bool) {
	size, ok := Size(data)
	if !ok || !common.IsZero(data[size:]) {
		return "", false
	}
	return Name, true
}
