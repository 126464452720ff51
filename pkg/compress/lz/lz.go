// Package lz implements a sliding-window LZ codec with 16-token flag groups.
// This file contains the frame layout, the decompressor and the greedy compressor.
package lz

import (
	"encoding/binary"

	"github.com/hansbonini/galtools/pkg/common"
)

// Name identifies the codec in errors and logs
const Name = "lz"

const (
	headerSize   = 4   // u32 LE decompressed length
	groupTokens  = 16  // tokens per flag word
	windowSize   = 255 // maximum back-reference distance
	maxMatch     = 255 // maximum back-reference length
	minMatch     = 2   // shortest match worth a reference
	flagWordSize = 2
)

// Decompress expands a frame produced by Compress.
func Decompress(data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, common.NewCorruptDataError(Name, 0, "frame is %d bytes, header needs %d", len(data), headerSize)
	}

	targetSize := int(binary.LittleEndian.Uint32(data))
	compressed := data[headerSize:]
	// A token produces at least one byte and costs at least one byte, references up to 255
	if targetSize > len(compressed)*maxMatch {
		return nil, common.NewCorruptDataError(Name, 0, "declared length %d exceeds what %d bytes can produce",
			targetSize, len(compressed))
	}

	output := make([]byte, 0, targetSize)
	compPos := 0

	common.LogDebug("Starting LZ decompression: target size = %d bytes", targetSize)

	for len(output) < targetSize {
		if compPos+flagWordSize > len(compressed) {
			return nil, truncated(compPos, len(output), targetSize)
		}

		flags := binary.LittleEndian.Uint16(compressed[compPos:])
		compPos += flagWordSize

		for bit := 0; bit < groupTokens && len(output) < targetSize; bit++ {
			if flags&(1<<bit) == 0 {
				if compPos >= len(compressed) {
					return nil, truncated(compPos, len(output), targetSize)
				}
				output = append(output, compressed[compPos])
				compPos++
				continue
			}

			if compPos+2 > len(compressed) {
				return nil, truncated(compPos, len(output), targetSize)
			}
			distance := int(compressed[compPos])
			length := int(compressed[compPos+1])
			if distance == 0 || distance > len(output) {
				return nil, common.NewCorruptDataError(Name, int64(headerSize+compPos),
					"reference distance %d outside %d bytes of output", distance, len(output))
			}
			compPos += 2

			// Overlapping copies repeat the last distance bytes
			srcPos := len(output) - distance
			for i := 0; i < length && len(output) < targetSize; i++ {
				output = append(output, output[srcPos+i])
			}
		}
	}

	common.LogDebug("LZ decompression completed: %d -> %d bytes", len(compressed), len(output))
	return output, nil
}

func truncated(pos, produced, target int) error {
	return common.NewCorruptDataError(Name, int64(headerSize+pos),
		"stream ended after %d of %d bytes", produced, target)
}

// Compress encodes data as a single frame.
func Compress(data []byte) ([]byte, error) {
	size, err := common.SafeIntToUint32(len(data))
	if err != nil {
		return nil, err
	}

	output := make([]byte, headerSize, headerSize+len(data)+len(data)/8+2)
	binary.LittleEndian.PutUint32(output, size)

	pos := 0
	common.LogDebug("Starting LZ compression: input size = %d bytes", len(data))

	for pos < len(data) {
		flags := uint16(0)
		flagsPos := len(output)
		output = append(output, 0, 0)

		for bit := 0; bit < groupTokens && pos < len(data); bit++ {
			distance, length := findBestMatch(data, pos)
			if length >= minMatch {
				flags |= 1 << bit
				output = append(output, byte(distance), byte(length))
				pos += length
			} else {
				output = append(output, data[pos])
				pos++
			}
		}

		binary.LittleEndian.PutUint16(output[flagsPos:], flags)
	}

	common.LogDebug("LZ compression completed: %d -> %d bytes", len(data), len(output))
	return output, nil
}

// findBestMatch returns the longest match for data[pos:] within the window.
// Matches may run past pos, repeating the source period.
func findBestMatch(data []byte, pos int) (distance, length int) {
	maxDistance := pos
	if maxDistance > windowSize {
		maxDistance = windowSize
	}

	for d := 1; d <= maxDistance; d++ {
		srcPos := pos - d
		n := 0
		for n < maxMatch && pos+n < len(data) && data[srcPos+n%d] == data[pos+n] {
			n++
		}
		if n > length {
			distance, length = d, n
		}
	}
	return distance, length
}
