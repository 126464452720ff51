// Package psx provides PlayStation-specific structures and functionality.
// This file contains CD-ROM and ISO9660 structures for PlayStation disc images.
package psx

// Sector size constants for PlayStation CD-ROM
const (
	CD_SECTOR_SIZE    = 2352 // Full CD sector size
	CD_DATA_SIZE      = 2048 // Data portion of Mode 1 and Mode 2 Form 1 sectors
	CD_FORM2_SIZE     = 2324 // Data portion of Mode 2 Form 2 sector
	CD_SYNC_SIZE      = 12   // Sync pattern size
	CD_HEADER_SIZE    = 4    // Header size (3 address bytes + 1 mode byte)
	CD_SUBHEADER_SIZE = 8    // XA subheader, stored twice
)

// ISO9660 layout
const (
	// SystemAreaSectors precede the first volume descriptor
	SystemAreaSectors = 16
	// maxDescriptors bounds the volume descriptor walk
	maxDescriptors = 32

	descriptorPrimary    = 1
	descriptorTerminator = 255

	dirRecordHeaderSize = 33
	rootRecordOffset    = 156
	rootRecordSize      = 34

	flagDirectory = 0x02
)

var standardID = []byte("CD001")

// VolumeDescriptor holds the primary volume descriptor fields the image
// model needs
type VolumeDescriptor struct {
	Sector          int64  // sector the descriptor was read from
	SystemID        string // e.g. "PLAYSTATION"
	VolumeID        string
	VolumeSpaceSize uint32 // sectors
	LogicalBlock    uint16
	PathTableSize   uint32
	PathTableL      uint32 // LBA of the little-endian path table
	PathTableLOpt   uint32
	PathTableM      uint32 // LBA of the big-endian path table
	PathTableMOpt   uint32
	Root            DirRecord
	Terminator      int64 // sector of the set terminator
}

// DirRecord is a parsed ISO9660 directory record
type DirRecord struct {
	Length byte
	LBA    uint32
	Size   uint32
	Flags  byte
	Name   string // raw identifier, version suffix included
}

// IsDir reports whether the record describes a directory
func (r DirRecord) IsDir() bool {
	return r.Flags&flagDirectory != 0
}

// PathTableEntry represents an entry in the path table
type PathTableEntry struct {
	NameLength         byte
	ExtendedAttrLength byte
	DirLocation        uint32
	ParentDir          uint16
	Name               string
}

// FileEntry represents a file or directory of the disc image
type FileEntry struct {
	Name       string // File name without version suffix
	Path       string // Full path within CD, '/' separated, no leading slash
	LBA        uint32 // Logical Block Address
	MSF        string // Minutes:Seconds:Frames format
	Size       uint32 // File size in bytes
	IsDir      bool   // Whether this is a directory
	ExtentSize uint32 // Size in sectors

	recordSector uint32 // sector holding this entry's directory record
	recordOffset int    // offset of the record inside that sector's data
}
