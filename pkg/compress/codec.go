// Package compress provides file-level access to the codecs used by GalTools.
// This file contains the codec registry and the Processor used by the CLI.
package compress

import (
	"fmt"
	"os"
	"sort"

	"github.com/hansbonini/galtools/pkg/common"
	"github.com/hansbonini/galtools/pkg/compress/dictionary"
	"github.com/hansbonini/galtools/pkg/compress/lz"
)

// Codec compresses and decompresses whole buffers
type Codec interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

type codecFuncs struct {
	name       string
	compress   func([]byte) ([]byte, error)
	decompress func([]byte) ([]byte, error)
}

func (c codecFuncs) Name() string                           { return c.name }
func (c codecFuncs) Compress(data []byte) ([]byte, error)   { return c.compress(data) }
func (c codecFuncs) Decompress(data []byte) ([]byte, error) { return c.decompress(data) }

var codecs = map[string]Codec{
	dictionary.Name: codecFuncs{dictionary.Name, dictionary.Compress, decompressAllFrames},
	lz.Name:         codecFuncs{lz.Name, lz.Compress, lz.Decompress},
}

// decompressAllFrames joins every frame of a dictionary stream
func decompressAllFrames(data []byte) ([]byte, error) {
	blocks, err := dictionary.DecompressAll(data)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, block := range blocks {
		out = append(out, block.Data...)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// Lookup returns the codec registered under name
func Lookup(name string) (Codec, error) {
	codec, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown compression method %q (available: %v)", name, Names())
	}
	return codec, nil
}

// Names lists the registered codecs in sorted order
func Names() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Processor handles codec operations on files
type Processor struct {
	codec Codec
}

// NewProcessor creates a new processor for the named codec
func NewProcessor(method string) (*Processor, error) {
	codec, err := Lookup(method)
	if err != nil {
		return nil, err
	}
	return &Processor{codec: codec}, nil
}

// CompressFile compresses inputFile into outputFile
func (p *Processor) CompressFile(inputFile, outputFile string) error {
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	compressed, err := p.codec.Compress(data)
	if err != nil {
		return common.WrapError(common.ErrFailedToCompress, err)
	}

	if err := os.WriteFile(outputFile, compressed, 0644); err != nil {
		return fmt.Errorf("failed to write compressed data: %w", err)
	}

	common.LogInfo(common.InfoCompressionResult, inputFile, len(data), len(compressed))
	return nil
}

// DecompressFile decompresses inputFile into outputFile
func (p *Processor) DecompressFile(inputFile, outputFile string) error {
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	decompressed, err := p.codec.Decompress(data)
	if err != nil {
		return common.WrapError(common.ErrFailedToDecompress, err)
	}

	if err := os.WriteFile(outputFile, decompressed, 0644); err != nil {
		return fmt.Errorf("failed to write decompressed data: %w", err)
	}

	common.LogInfo(common.InfoCompressionResult, inputFile, len(data), len(decompressed))
	return nil
}
