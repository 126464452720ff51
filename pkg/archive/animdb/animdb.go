// Package animdb implements the animation database container.
// The first sector is a directory of 256 (header offset, data offset) pairs,
// followed by the data size and the data block the offsets point into.
package animdb

import (
	"encoding/binary"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/common"
)

// Name is the format family
const Name = "animdb"

// Default is the only layout
const Default archive.Variant = "adb"

// AttrHeaderSize is the distance from an entry's header to its frame data
const AttrHeaderSize = "header_size"

// DefaultHeaderSize is used when an entry carries no header size
const DefaultHeaderSize = 72

const (
	directorySize = 0x800
	// MaxEntries is the number of directory slots
	MaxEntries = directorySize / 8
	dataStart  = directorySize + 4
)

type slot struct {
	header, data uint32
}

func (s slot) empty() bool { return s.header == 0 && s.data == 0 }

// Driver implements archive.Driver for animation databases
type Driver struct{}

// New returns the animation database driver
func New() *Driver {
	return &Driver{}
}

// Name implements archive.Detector
func (d *Driver) Name() string { return Name }

// Variants implements archive.Driver
func (d *Driver) Variants() []archive.Variant {
	return []archive.Variant{Default}
}

// Detect implements archive.Detector. The data block must end the file and
// hold at least one entry.
func (d *Driver) Detect(data []byte) (archive.Variant, bool) {
	size, ok := common.Uint32At(data, directorySize)
	if !ok || int64(len(data)) != dataStart+int64(size) {
		return "", false
	}
	entries, err := d.Unpack(data, Default)
	if err != nil {
		common.LogDebug(common.DebugDetectorRejected, Name, err)
		return "", false
	}
	if archive.CountPresent(entries) == 0 {
		return "", false
	}
	return Default, true
}

// Unpack implements archive.Driver. Trailing empty slots are dropped.
func (d *Driver) Unpack(data []byte, variant archive.Variant) ([]archive.Entry, error) {
	if _, err := archive.ResolveVariant(d, variant); err != nil {
		return nil, err
	}
	size, ok := common.Uint32At(data, directorySize)
	if !ok {
		return nil, common.NewFormatError(Name, common.NoIndex, 0, "file of %d bytes is shorter than the directory", len(data))
	}
	if dataStart+int64(size) > int64(len(data)) {
		return nil, common.NewFormatError(Name, common.NoIndex, directorySize,
			"data block of 0x%X bytes exceeds file size 0x%X", size, len(data))
	}
	block := data[dataStart : dataStart+int64(size)]

	slots := make([]slot, MaxEntries)
	for i := range slots {
		slots[i].header = binary.LittleEndian.Uint32(data[8*i:])
		slots[i].data = binary.LittleEndian.Uint32(data[8*i+4:])
	}

	entries := make([]archive.Entry, 0, MaxEntries)
	for i, s := range slots {
		name := archive.EntryName(i, "")
		if s.empty() {
			entries = append(entries, archive.Gap(name))
			continue
		}

		end := size
		for _, next := range slots[i+1:] {
			if next.header > 0 {
				end = next.header
				break
			}
		}
		if s.header > end || end > size || s.data < s.header || s.data > end {
			return nil, common.NewFormatError(Name, i, int64(8*i),
				"entry 0x%X-0x%X with data at 0x%X outside block of 0x%X bytes", s.header, end, s.data, size)
		}

		entry := archive.NewEntry(name, block[s.header:end])
		if headerSize := int(s.data - s.header); headerSize != DefaultHeaderSize {
			entry.SetAttr(AttrHeaderSize, headerSize)
		}
		entries = append(entries, entry)
		common.LogDebug(common.DebugEntryRead, i, dataStart+int64(s.header), end-s.header, true)
	}

	for len(entries) > 0 && !entries[len(entries)-1].Present {
		entries = entries[:len(entries)-1]
	}
	return entries, nil
}

// Pack implements archive.Driver. Entries are padded to 4 bytes.
func (d *Driver) Pack(entries []archive.Entry, opts archive.Options) ([]byte, error) {
	if _, err := archive.ResolveVariant(d, opts.Variant); err != nil {
		return nil, err
	}
	entries = opts.Prepare(entries)
	if len(entries) > MaxEntries {
		return nil, common.NewFormatError(Name, common.NoIndex, 0, "%s: %d entries, at most %d slots",
			common.ErrTooManyEntries, len(entries), MaxEntries)
	}

	out := make([]byte, dataStart)
	offset := 0
	for i, entry := range entries {
		if !entry.Present {
			continue
		}
		headerSize := entry.Attr(AttrHeaderSize, DefaultHeaderSize)
		if headerSize < 0 || headerSize > len(entry.Data) || (offset == 0 && headerSize == 0) {
			return nil, common.NewFormatError(Name, i, int64(8*i), "invalid header size %d for %d bytes", headerSize, len(entry.Data))
		}
		header, err := common.SafeIntToUint32(offset)
		if err != nil {
			return nil, common.NewFormatError(Name, i, int64(8*i), "%v", err)
		}
		binary.LittleEndian.PutUint32(out[8*i:], header)
		binary.LittleEndian.PutUint32(out[8*i+4:], header+uint32(headerSize))

		body := common.PadTo(append([]byte(nil), entry.Data...), 4)
		out = append(out, body...)
		offset += len(body)
		common.LogDebug(common.DebugEntryWritten, i, dataStart+int(header), len(body))
	}

	size, err := common.SafeIntToUint32(offset)
	if err != nil {
		return nil, common.NewFormatError(Name, common.NoIndex, directorySize, "%v", err)
	}
	binary.LittleEndian.PutUint32(out[directorySize:], size)
	return out, nil
}
