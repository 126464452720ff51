// Package psx provides PlayStation-specific CD-ROM reading functionality.
package psx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hansbonini/galtools/pkg/common"
)

// CDReader reads the sectors of a single data track. It is safe for
// concurrent use; reads are serialised because not every afero file
// supports parallel ReadAt.
type CDReader struct {
	mu           sync.Mutex
	src          io.ReaderAt
	size         int64
	format       SectorFormat
	totalSectors int64
	sectorBuffer []byte
}

// NewCDReader creates a reader over src, which holds size bytes of sectors
// stored in the given format
func NewCDReader(src io.ReaderAt, size int64, format SectorFormat) *CDReader {
	return &CDReader{
		src:          src,
		size:         size,
		format:       format,
		totalSectors: size / int64(format.Size()),
		sectorBuffer: make([]byte, format.Size()),
	}
}

// Format returns the sector format of the track
func (r *CDReader) Format() SectorFormat {
	return r.format
}

// TotalSectors returns the number of whole sectors in the track
func (r *CDReader) TotalSectors() int64 {
	return r.totalSectors
}

// Size returns the size of the underlying image in bytes
func (r *CDReader) Size() int64 {
	return r.size
}

// ReadAt reads raw image bytes
func (r *CDReader) ReadAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.ReadAt(p, off)
}

// ReadRawSector copies the stored form of sector lba into raw, which must be
// Format().Size() bytes long
func (r *CDReader) ReadRawSector(lba int64, raw []byte) error {
	if lba < 0 || lba >= r.totalSectors {
		return fmt.Errorf("LBA %d out of bounds (total: %d)", lba, r.totalSectors)
	}
	if len(raw) != r.format.Size() {
		return fmt.Errorf("sector buffer of %d bytes, want %d", len(raw), r.format.Size())
	}
	_, err := r.ReadAt(raw, lba*int64(r.format.Size()))
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read sector %d: %w", lba, err)
	}
	return nil
}

// ReadSector copies the 2048 user data bytes of sector lba into data
func (r *CDReader) ReadSector(lba int64, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lba < 0 || lba >= r.totalSectors {
		return fmt.Errorf("LBA %d out of bounds (total: %d)", lba, r.totalSectors)
	}
	if _, err := r.src.ReadAt(r.sectorBuffer, lba*int64(r.format.Size())); err != nil && err != io.EOF {
		return fmt.Errorf("failed to read sector %d: %w", lba, err)
	}
	start := r.format.DataOffset()
	copy(data, r.sectorBuffer[start:start+CD_DATA_SIZE])
	return nil
}

// ReadExtent reads size bytes of user data starting at sector lba
func (r *CDReader) ReadExtent(lba uint32, size uint32) ([]byte, error) {
	sectors := common.GetSizeInSectors(size)
	if int64(lba)+int64(sectors) > r.totalSectors {
		return nil, fmt.Errorf("extent at LBA %d (%d sectors) exceeds image of %d sectors", lba, sectors, r.totalSectors)
	}

	out := make([]byte, int(sectors)*CD_DATA_SIZE)
	for i := uint32(0); i < sectors; i++ {
		if err := r.ReadSector(int64(lba+i), out[int(i)*CD_DATA_SIZE:]); err != nil {
			return nil, err
		}
	}
	return out[:size], nil
}

// ReadVolumeDescriptor walks the volume descriptor set from sector 16 up to
// its terminator and returns the primary volume descriptor
func (r *CDReader) ReadVolumeDescriptor() (*VolumeDescriptor, error) {
	data := make([]byte, CD_DATA_SIZE)
	var primary *VolumeDescriptor

	for sector := int64(SystemAreaSectors); sector < SystemAreaSectors+maxDescriptors; sector++ {
		if err := r.ReadSector(sector, data); err != nil {
			return nil, &common.ImageFormatError{Sector: sector, Reason: err.Error()}
		}
		if !bytes.Equal(data[1:6], standardID) {
			return nil, &common.ImageFormatError{Sector: sector, Reason: "missing CD001 volume descriptor signature"}
		}

		common.LogDebug(common.DebugVolumeDescriptor, data[0], sector)
		switch data[0] {
		case descriptorPrimary:
			if primary != nil {
				continue
			}
			vd, err := parseVolumeDescriptor(sector, data)
			if err != nil {
				return nil, err
			}
			primary = vd
		case descriptorTerminator:
			if primary == nil {
				return nil, &common.ImageFormatError{Sector: sector, Reason: "no primary volume descriptor"}
			}
			primary.Terminator = sector
			return primary, nil
		}
	}

	return nil, &common.ImageFormatError{Sector: SystemAreaSectors, Reason: "volume descriptor set has no terminator"}
}

// ReadPathTable reads the path table stored at lba. bigEndian selects the
// M-type table.
func (r *CDReader) ReadPathTable(lba uint32, size uint32, bigEndian bool) ([]PathTableEntry, error) {
	data, err := r.ReadExtent(lba, size)
	if err != nil {
		return nil, err
	}

	var order binary.ByteOrder = binary.LittleEndian
	if bigEndian {
		order = binary.BigEndian
	}
	return parsePathTable(data, order), nil
}

func parsePathTable(data []byte, order binary.ByteOrder) []PathTableEntry {
	var entries []PathTableEntry
	offset := 0

	for offset+8 <= len(data) {
		entry := PathTableEntry{NameLength: data[offset]}

		// End of path table
		if entry.NameLength == 0 {
			break
		}

		entry.ExtendedAttrLength = data[offset+1]
		entry.DirLocation = order.Uint32(data[offset+2 : offset+6])
		entry.ParentDir = order.Uint16(data[offset+6 : offset+8])

		nameStart := offset + 8
		nameEnd := nameStart + int(entry.NameLength)
		if nameEnd > len(data) {
			break
		}
		entry.Name = string(data[nameStart:nameEnd])
		entries = append(entries, entry)

		// Align to even boundary
		offset = nameEnd
		if offset%2 != 0 {
			offset++
		}
	}

	return entries
}

// BuildDirectoryPath builds the full path for a directory using the path table
func BuildDirectoryPath(entry PathTableEntry, pathTable []PathTableEntry) string {
	var parts []string
	for steps := 0; steps <= len(pathTable); steps++ {
		if entry.Name == "\x00" {
			break
		}
		parts = append([]string{entry.Name}, parts...)
		parent := int(entry.ParentDir) - 1
		if entry.ParentDir <= 1 || parent >= len(pathTable) {
			break
		}
		entry = pathTable[parent]
	}
	return strings.Join(parts, "/")
}
