package common

import (
	"fmt"
	"log"
)

// Global variable to control debug output
var VerboseMode bool = false

// SetVerboseMode enables or disables verbose/debug output
func SetVerboseMode(verbose bool) {
	VerboseMode = verbose
}

// Error messages
const (
	ErrFailedToOpenImage       = "failed to open disc image"
	ErrFailedToReadFile        = "failed to read file"
	ErrFailedToWriteFile       = "failed to write file"
	ErrFailedToCreateDirectory = "failed to create directory"
	ErrFailedToUnpack          = "failed to unpack archive"
	ErrFailedToPack            = "failed to pack archive"
	ErrFailedToCompress        = "failed to compress data"
	ErrFailedToDecompress      = "failed to decompress data"
	ErrFailedToReadIndex       = "failed to read archive index"
	ErrFailedToWriteIndex      = "failed to write archive index"
	ErrFailedToLoadProject     = "failed to load project"
	ErrFailedToSaveProject     = "failed to save project"
	ErrFailedToReplaceFile     = "failed to replace file in disc image"
	ErrFailedToFlushImage      = "failed to write patched disc image"
	ErrFailedToParseCue        = "failed to parse cue sheet"
	ErrUnknownVariant          = "unknown format variant"
	ErrTooManyEntries          = "too many entries"
	ErrInvalidEntryName        = "invalid archive entry name"
)

// Info messages
const (
	InfoImageLoaded       = "Loaded disc image %s: %d sectors of %d bytes, %d files"
	InfoFileExtracted     = "Extracted %s (%d bytes)"
	InfoArchiveUnpacked   = "Unpacked %d entries (%s/%s) to %s"
	InfoArchivePacked     = "Packed %d entries (%s/%s) into %s (%d bytes)"
	InfoFormatDetected    = "%s: %s (%s)"
	InfoFileReplaced      = "Replaced %s (%d bytes, %s)"
	InfoFileRelocated     = "Relocated %s: sector %d -> %d (%d sectors)"
	InfoImageWritten      = "Wrote patched disc image %s"
	InfoProjectCreated    = "Created project %s with %d files (%d unpacked)"
	InfoProjectExported   = "Exported %d changed files to %s"
	InfoNothingToExport   = "No files changed since last export"
	InfoBatchSummary      = "Processed %d items: %d succeeded, %d failed"
	InfoVerifySummary     = "Checked %d sectors: %d with invalid EDC"
	InfoCompressionResult = "%s: %d -> %d bytes"
)

// Debug messages
const (
	DebugDirectoryRecord   = "Directory record %s: LBA=%d size=%d dir=%v (record at sector %d offset %d)"
	DebugPathTable         = "Path table (%s) at sector %d, %d bytes"
	DebugVolumeDescriptor  = "Volume descriptor type %d at sector %d"
	DebugFreeExtent        = "Free extent: sectors %d-%d (%d sectors)"
	DebugEntryRead         = "Entry %d: offset=0x%X size=%d present=%v"
	DebugEntryWritten      = "Entry %d written at 0x%X (%d bytes)"
	DebugEntryExported     = "Entry %d exported to %s (%d bytes)"
	DebugChunkCompressed   = "Chunk at %d: %d bytes, %d dictionary entries, %d stream bytes"
	DebugDetectorRejected  = "%s rejected: %v"
	DebugFileUnchanged     = "%s: content unchanged since baseline, skipping"
	DebugFileChanged       = "%s: modified %s (baseline %s)"
	DebugSectorWritten     = "Sector %d written (mode %d, submode 0x%02X)"
	DebugRecordUpdated     = "Directory record for %s updated: LBA=%d size=%d"
	DebugConfigLoaded      = "Loaded configuration from %s"
	DebugTemporaryFile     = "Writing temporary image %s"
	DebugUnpackedAsArchive = "%s stored unpacked as %s/%s"
	DebugPlaceholderFilled = "Entry %d: placeholder %s filled in (%d bytes), packing as present"
)

// Warning messages
const (
	WarnBatchItemFailed    = "Skipping %s: %v"
	WarnUnpackFallback     = "%s could not be unpacked, keeping packed form: %v"
	WarnInvalidSectorEDC   = "Sector %d has an invalid EDC"
	WarnPathTableMismatch  = "Path table entry %s at sector %d: %s"
	WarnRecordSkipped      = "Skipping directory record at sector %d offset %d: %v"
	WarnCueTrackIgnored    = "Ignoring track %d (%s): only the first data track is used"
	WarnUnterminatedString = "%s: string %d at 0x%X runs to end of file without a terminator"
	WarnProjectOutputGone  = "Last output %s is missing, exporting from %s"
)

// LogInfo logs an informational message
func LogInfo(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[INFO] "+message, args...)
	} else {
		log.Printf("[INFO] %s", message)
	}
}

// LogWarn logs a warning message
func LogWarn(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[WARN] "+message, args...)
	} else {
		log.Printf("[WARN] %s", message)
	}
}

// LogError logs an error message
func LogError(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[ERROR] "+message, args...)
	} else {
		log.Printf("[ERROR] %s", message)
	}
}

// LogDebug logs a debug message (only if VerboseMode is enabled)
func LogDebug(message string, args ...interface{}) {
	if !VerboseMode {
		return
	}
	if len(args) > 0 {
		log.Printf("[DEBUG] "+message, args...)
	} else {
		log.Printf("[DEBUG] %s", message)
	}
}

// WrapError creates an error with additional context, wrapping details when it is an error
func WrapError(baseMessage string, details interface{}) error {
	if err, ok := details.(error); ok {
		return fmt.Errorf("%s: %w", baseMessage, err)
	}
	return fmt.Errorf("%s: %v", baseMessage, details)
}

// WrapErrorf creates an error with formatted string details
func WrapErrorf(baseMessage, details string, args ...interface{}) error {
	if len(args) > 0 {
		return fmt.Errorf("%s: "+details, append([]interface{}{baseMessage}, args...)...)
	}
	return fmt.Errorf("%s: %s", baseMessage, details)
}
