// Package common provides common utilities for CD-ROM operations.
// This file contains functions for MSF conversion and CD-ROM related utilities.
package common

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Pregap is the number of frames before LBA 0 on a data track.
const Pregap = 150

// LBAToMSFParts splits an LBA into minutes, seconds and frames (pregap included)
func LBAToMSFParts(lba uint32) (minutes, seconds, frames uint8) {
	totalFrames := lba + Pregap
	return uint8(totalFrames / (60 * 75)), uint8((totalFrames % (60 * 75)) / 75), uint8(totalFrames % 75)
}

// LBAToMSF formats an LBA as MM:SS:FF, pregap included
func LBAToMSF(lba uint32) string {
	minutes, seconds, frames := LBAToMSFParts(lba)
	return fmt.Sprintf("%02d:%02d:%02d", minutes, seconds, frames)
}

// MSFToLBA converts a BCD-encoded MSF sector address back to an LBA
func MSFToLBA(m, s, f byte) int64 {
	return int64(FromBCD(m))*60*75 + int64(FromBCD(s))*75 + int64(FromBCD(f)) - Pregap
}

// ToBCD encodes a value below 100 as binary-coded decimal
func ToBCD(v uint8) byte {
	return (v/10)<<4 | v%10
}

// FromBCD decodes a binary-coded decimal byte
func FromBCD(b byte) uint8 {
	return (b>>4)*10 + b&0x0F
}

// GetSizeInSectors returns the number of 2048-byte sectors holding sizeBytes
func GetSizeInSectors(sizeBytes uint32) uint32 {
	return uint32((uint64(sizeBytes) + 2047) / 2048)
}

// CleanFileName strips the ";N" version suffix of an ISO9660 file name
// and the trailing dot of a name without extension
func CleanFileName(fileName string) string {
	if i := strings.LastIndexByte(fileName, ';'); i >= 0 {
		fileName = fileName[:i]
	}
	return strings.TrimSuffix(fileName, ".")
}

// IsSpecialDirEntry reports whether a record name is the "." (0x00) or
// ".." (0x01) entry of a directory
func IsSpecialDirEntry(fileName string) bool {
	return fileName == "\x00" || fileName == "\x01"
}

// IsValidFileName reports whether a cleaned record name can be used as a
// path component. Mastering tools are not strict about d-characters, so
// lower case, spaces and dashes are accepted; separators, control bytes and
// high-bit bytes are not.
func IsValidFileName(fileName string) bool {
	if fileName == "" || fileName == "." || fileName == ".." || len(fileName) > 255 {
		return false
	}
	for i := 0; i < len(fileName); i++ {
		b := fileName[i]
		switch {
		case b < 0x20, b >= 0x7F:
			return false
		case strings.IndexByte(`/\:*?"<>|`, b) >= 0:
			return false
		}
	}
	return strings.TrimSpace(fileName) != ""
}

// ExtractLBAFromDirRecord returns the little-endian extent LBA of a
// directory record, or 0 when the record is truncated
func ExtractLBAFromDirRecord(dirRecord []byte) uint32 {
	if len(dirRecord) < 6 {
		return 0
	}
	return binary.LittleEndian.Uint32(dirRecord[2:])
}

// ExtractSizeFromDirRecord returns the little-endian data length of a
// directory record, or 0 when the record is truncated
func ExtractSizeFromDirRecord(dirRecord []byte) uint32 {
	if len(dirRecord) < 14 {
		return 0
	}
	return binary.LittleEndian.Uint32(dirRecord[10:])
}
