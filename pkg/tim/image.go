package tim

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/hansbonini/galtools/pkg/common"
)

// ToImage converts the TIM to an RGBA image using CLUT row clut for indexed depths
func (img *Image) ToImage(clut int) (*image.RGBA, error) {
	width, height := img.PixelWidth(), img.PixelHeight()
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	data := img.Pixel.Data
	rowBytes := int(img.Pixel.Width) * 2

	var palette Palette
	if bpp := img.BPP(); bpp == BPP4 || bpp == BPP8 {
		palette = img.Palette(clut)
		if palette == nil {
			return nil, fmt.Errorf("TIM has %d palettes, palette %d requested", img.NumPalettes(), clut)
		}
	}
	lookup := func(index int) color.RGBA {
		if index >= len(palette) {
			return color.RGBA{}
		}
		return palette[index].ToRGBA()
	}

	for y := 0; y < height; y++ {
		row := data[y*rowBytes : (y+1)*rowBytes]
		for x := 0; x < width; x++ {
			var c color.RGBA
			switch img.BPP() {
			case BPP4:
				c = lookup(int(row[x/2]>>(4*(x%2))) & 0x0F)
			case BPP8:
				c = lookup(int(row[x]))
			case BPP16:
				c = PSXColor(binary.LittleEndian.Uint16(row[x*2:])).ToRGBA()
			default:
				c = color.RGBA{row[x*3], row[x*3+1], row[x*3+2], 0xFF}
			}
			out.SetRGBA(x, y, c)
		}
	}
	return out, nil
}

// Bytes serializes the TIM
func (img *Image) Bytes() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{Magic, Version, 0, 0})
	binary.Write(&buf, binary.LittleEndian, img.Flags)
	if img.CLUT != nil {
		writeBlock(&buf, img.CLUT)
	}
	writeBlock(&buf, &img.Pixel)
	return buf.Bytes()
}

func writeBlock(buf *bytes.Buffer, b *Block) {
	binary.Write(buf, binary.LittleEndian, uint32(BlockHeaderSize+len(b.Data)))
	binary.Write(buf, binary.LittleEndian, [4]uint16{b.X, b.Y, b.Width, b.Height})
	buf.Write(b.Data)
}

// New16 builds a 16bpp TIM from PSX colors laid out row by row
func New16(width, height int, pixels []PSXColor) (*Image, error) {
	if len(pixels) != width*height {
		return nil, fmt.Errorf("expected %d pixels, got %d", width*height, len(pixels))
	}
	w, err := common.SafeIntToUint16(width)
	if err != nil {
		return nil, err
	}
	h, err := common.SafeIntToUint16(height)
	if err != nil {
		return nil, err
	}

	data := make([]byte, len(pixels)*2)
	for i, p := range pixels {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(p))
	}
	img := &Image{Flags: uint32(BPP16), Pixel: Block{Width: w, Height: h, Data: data}}
	img.Size = HeaderSize + BlockHeaderSize + len(data)
	return img, nil
}

// FromImage builds a 16bpp TIM from any image
func FromImage(src image.Image) (*Image, error) {
	bounds := src.Bounds()
	pixels := make([]PSXColor, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.RGBAModel.Convert(src.At(x, y)).(color.RGBA)
			pixels = append(pixels, PSXColorFromRGBA(c.R, c.G, c.B, c.A))
		}
	}
	return New16(bounds.Dx(), bounds.Dy(), pixels)
}

// Processor handles TIM conversions on files
type Processor struct{}

// NewProcessor creates a new TIM processor instance
func NewProcessor() *Processor {
	return &Processor{}
}

// ExportPNG writes the TIM in inputFile to outputFile as a PNG
func (p *Processor) ExportPNG(inputFile, outputFile string, clut int) error {
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return fmt.Errorf("failed to read TIM file: %w", err)
	}

	img, err := Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse TIM file: %w", err)
	}

	rgba, err := img.ToImage(clut)
	if err != nil {
		return fmt.Errorf("failed to convert TIM: %w", err)
	}

	file, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, rgba); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}

	common.LogInfo("Exported %s (%dx%d %s, %d palettes) to %s",
		inputFile, img.PixelWidth(), img.PixelHeight(), img.BPP(), img.NumPalettes(), outputFile)
	return nil
}

// ImportPNG converts the PNG in inputFile to a 16bpp TIM in outputFile
func (p *Processor) ImportPNG(inputFile, outputFile string) error {
	file, err := os.Open(inputFile)
	if err != nil {
		return fmt.Errorf("failed to open PNG file: %w", err)
	}
	defer file.Close()

	src, err := png.Decode(file)
	if err != nil {
		return fmt.Errorf("failed to decode PNG: %w", err)
	}

	img, err := FromImage(src)
	if err != nil {
		return fmt.Errorf("failed to convert image: %w", err)
	}

	if err := os.WriteFile(outputFile, img.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write TIM file: %w", err)
	}

	common.LogInfo("Imported %s as %dx%d 16bpp TIM %s", inputFile, img.PixelWidth(), img.PixelHeight(), outputFile)
	return nil
}
