// Package common provides shared utilities for GalTools.
// This file contains the error types reported by the codecs, container drivers,
// the format sniffer and the CD image model.
package common

import (
	"errors"
	"fmt"
)

// NoIndex marks an error that is not tied to a specific container entry.
const NoIndex = -1

// FormatError reports a container header or offset table that is inconsistent
// with the buffer it describes.
type FormatError struct {
	Format string // driver name, e.g. "cdb"
	Index  int    // entry index, or NoIndex
	Offset int64  // byte offset of the offending field
	Reason string
}

func (e *FormatError) Error() string {
	if e.Index == NoIndex {
		return fmt.Sprintf("%s: invalid format at offset 0x%X: %s", e.Format, e.Offset, e.Reason)
	}
	return fmt.Sprintf("%s: invalid entry %d at offset 0x%X: %s", e.Format, e.Index, e.Offset, e.Reason)
}

// NewFormatError creates a FormatError for the given driver.
func NewFormatError(format string, index int, offset int64, reason string, args ...interface{}) *FormatError {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return &FormatError{Format: format, Index: index, Offset: offset, Reason: reason}
}

// CorruptDataError reports a malformed compressed stream.
type CorruptDataError struct {
	Codec  string
	Offset int64
	Reason string
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("%s: corrupt data at offset 0x%X: %s", e.Codec, e.Offset, e.Reason)
}

// NewCorruptDataError creates a CorruptDataError for the given codec.
func NewCorruptDataError(codec string, offset int64, reason string, args ...interface{}) *CorruptDataError {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return &CorruptDataError{Codec: codec, Offset: offset, Reason: reason}
}

// ImageFormatError reports a disc image without a usable volume descriptor or
// directory structure.
type ImageFormatError struct {
	Path   string
	Sector int64
	Reason string
}

func (e *ImageFormatError) Error() string {
	if e.Sector < 0 {
		return fmt.Sprintf("%s: invalid disc image: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("%s: invalid disc image at sector %d: %s", e.Path, e.Sector, e.Reason)
}

// InsufficientSpaceError reports a relocation that cannot fit in the image.
type InsufficientSpaceError struct {
	Path        string // file being relocated
	Needed      uint32 // sectors required
	LargestFree uint32 // largest free extent available at that point
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("not enough free space to relocate %s: need %d sectors, largest free extent is %d sectors",
		e.Path, e.Needed, e.LargestFree)
}

// UnknownFormatError is returned when no format matches the given data.
type UnknownFormatError struct {
	Name string
	Size int
}

func (e *UnknownFormatError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("unknown format (%d bytes)", e.Size)
	}
	return fmt.Sprintf("%s: unknown format (%d bytes)", e.Name, e.Size)
}

// Process exit codes
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitFormatError       = 2
	ExitImageFormatError  = 3
	ExitInsufficientSpace = 4
	ExitUnknownFormat     = 5
)

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var formatErr *FormatError
	var corruptErr *CorruptDataError
	var imageErr *ImageFormatError
	var spaceErr *InsufficientSpaceError
	var unknownErr *UnknownFormatError

	switch {
	case errors.As(err, &spaceErr):
		return ExitInsufficientSpace
	case errors.As(err, &imageErr):
		return ExitImageFormatError
	case errors.As(err, &formatErr), errors.As(err, &corruptErr):
		return ExitFormatError
	case errors.As(err, &unknownErr):
		return ExitUnknownFormat
	default:
		return ExitFailure
	}
}
