// Package common provides bounds-checked helpers for reading and aligning
// little-endian binary layouts.
package common

import "encoding/binary"

// Uint16At returns the little-endian uint16 at offset, or false when the
// buffer is too short.
func Uint16At(data []byte, offset int) (uint16, bool) {
	if offset < 0 || offset+2 > len(data) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(data[offset:]), true
}

// Uint32At returns the little-endian uint32 at offset, or false when the
// buffer is too short.
func Uint32At(data []byte, offset int) (uint32, bool) {
	if offset < 0 || offset+4 > len(data) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data[offset:]), true
}

// AlignUp rounds size up to the next multiple of align.
func AlignUp(size, align int) int {
	if align <= 0 {
		return size
	}
	return (size + align - 1) / align * align
}

// PadTo appends zero bytes to data until its length is a multiple of align.
func PadTo(data []byte, align int) []byte {
	padded := AlignUp(len(data), align)
	if padded == len(data) {
		return data
	}
	return append(data, make([]byte, padded-len(data))...)
}

// IsZero reports whether every byte in data is zero.
func IsZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
