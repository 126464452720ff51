// Package cdb implements the generic sector-aligned database container.
// This file contains the header layout, unpack, pack and detection.
package cdb

import (
	"encoding/binary"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/common"
)

// Name is the format family
const Name = "cdb"

// Layouts
const (
	// Sector records sizes in whole sectors
	Sector archive.Variant = "sector"
	// Extended also records the length of the final sector
	Extended archive.Variant = "extended"
)

// SectorSize is the allocation unit of entry data
const SectorSize = 0x800

const (
	sectorRecordSize   = 4
	extendedRecordSize = 8
	sectorHeaderSize   = 4
	extendedHeaderSize = 8
	maxSectors         = 0xFFFF
)

// Driver implements archive.Driver for CDB files
type Driver struct{}

// New returns the CDB driver
func New() *Driver {
	return &Driver{}
}

// Name implements archive.Detector
func (d *Driver) Name() string { return Name }

// Variants implements archive.Driver
func (d *Driver) Variants() []archive.Variant {
	return []archive.Variant{Sector, Extended}
}

type record struct {
	start, sectors uint16
	finalLen       uint32
}

// header parses the directory, checking only that it fits in the first sector
func header(data []byte) (archive.Variant, []record, error) {
	count, ok := common.Uint16At(data, 0)
	if !ok {
		return "", nil, common.NewFormatError(Name, common.NoIndex, 0, "missing header")
	}
	flag, ok := common.Uint16At(data, 2)
	if !ok || flag > 1 {
		return "", nil, common.NewFormatError(Name, common.NoIndex, 2, "invalid extended flag %d", flag)
	}

	variant, headerSize, recordSize := Sector, sectorHeaderSize, sectorRecordSize
	if flag == 1 {
		variant, headerSize, recordSize = Extended, extendedHeaderSize, extendedRecordSize
	}
	end := headerSize + int(count)*recordSize
	if end > SectorSize || end > len(data) {
		return "", nil, common.NewFormatError(Name, common.NoIndex, 0,
			"directory of %d entries ends at 0x%X past the first sector or file size 0x%X", count, end, len(data))
	}

	records := make([]record, count)
	for i := range records {
		pos := headerSize + i*recordSize
		records[i].start = binary.LittleEndian.Uint16(data[pos:])
		records[i].sectors = binary.LittleEndian.Uint16(data[pos+2:])
		records[i].finalLen = SectorSize
		if variant == Extended {
			// Only the low 16 bits are meaningful
			records[i].finalLen = uint32(binary.LittleEndian.Uint16(data[pos+4:]))
			if records[i].finalLen == 0 {
				records[i].finalLen = SectorSize
			}
		}
	}
	return variant, records, nil
}

func (r record) size() int {
	return (int(r.sectors)-1)*SectorSize + int(r.finalLen)
}

// Detect implements archive.Detector. The file must end exactly where the
// last entry's sectors end.
func (d *Driver) Detect(data []byte) (archive.Variant, bool) {
	variant, records, err := header(data)
	if err != nil || len(records) == 0 {
		return "", false
	}
	if variant == Extended && !common.IsZero(data[4:8]) {
		return "", false
	}

	maxEnd := 1
	for _, r := range records {
		if r.sectors == 0 {
			continue
		}
		if r.start < 1 || r.finalLen > SectorSize {
			return "", false
		}
		if end := int(r.start) + int(r.sectors); end > maxEnd {
			maxEnd = end
		}
	}
	if maxEnd < 2 || len(data) != maxEnd*SectorSize {
		return "", false
	}
	if _, err := d.Unpack(data, variant); err != nil {
		return "", false
	}
	return variant, true
}

// Unpack implements archive.Driver
func (d *Driver) Unpack(data []byte, variant archive.Variant) ([]archive.Entry, error) {
	detected, records, err := header(data)
	if err != nil {
		return nil, err
	}
	if variant != "" && variant != detected {
		return nil, common.NewFormatError(Name, common.NoIndex, 2, "header is %s, not %s", detected, variant)
	}

	entries := make([]archive.Entry, len(records))
	for i, r := range records {
		name := archive.EntryName(i, "")
		if r.sectors == 0 {
			entries[i] = archive.Gap(name)
			common.LogDebug(common.DebugEntryRead, i, int(r.start)*SectorSize, 0, false)
			continue
		}

		offset := int(r.start) * SectorSize
		size := r.size()
		if r.start == 0 || r.finalLen > SectorSize || offset+size > len(data) {
			return nil, common.NewFormatError(Name, i, int64(offset),
				"entry of %d bytes at sector %d outside file size 0x%X", size, r.start, len(data))
		}
		entries[i] = archive.NewEntry(name, data[offset:offset+size])
		common.LogDebug(common.DebugEntryRead, i, offset, size, true)
	}
	return entries, nil
}

// Pack implements archive.Driver
func (d *Driver) Pack(entries []archive.Entry, opts archive.Options) ([]byte, error) {
	variant, err := archive.ResolveVariant(d, opts.Variant)
	if err != nil {
		return nil, err
	}
	entries = opts.Prepare(entries)

	count, err := common.SafeIntToUint16(len(entries))
	if err != nil {
		return nil, common.NewFormatError(Name, common.NoIndex, 0, "%s: %v", common.ErrTooManyEntries, err)
	}

	headerSize, recordSize := sectorHeaderSize, sectorRecordSize
	if variant == Extended {
		headerSize, recordSize = extendedHeaderSize, extendedRecordSize
	}
	if headerSize+len(entries)*recordSize > SectorSize {
		return nil, common.NewFormatError(Name, common.NoIndex, 0, "%s: %d entries do not fit in one sector",
			common.ErrTooManyEntries, len(entries))
	}

	out := make([]byte, SectorSize)
	binary.LittleEndian.PutUint16(out, count)
	if variant == Extended {
		binary.LittleEndian.PutUint16(out[2:], 1)
	}

	current := 1
	for i, entry := range entries {
		sectors := 0
		if entry.Present {
			sectors = (len(entry.Data) + SectorSize - 1) / SectorSize
		}
		if current+sectors > maxSectors {
			return nil, common.NewFormatError(Name, i, 0, "entry ends past sector 0x%X", maxSectors)
		}

		pos := headerSize + i*recordSize
		binary.LittleEndian.PutUint16(out[pos:], uint16(current))
		binary.LittleEndian.PutUint16(out[pos+2:], uint16(sectors))
		if variant == Extended {
			binary.LittleEndian.PutUint32(out[pos+4:], uint32(len(entry.Data)%SectorSize))
		}
		current += sectors

		if sectors > 0 {
			out = append(out, common.PadTo(append([]byte(nil), entry.Data...), SectorSize)...)
		}
	}
	return out, nil
}
