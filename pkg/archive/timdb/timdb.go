// Package timdb implements the TIM database containers.
//
// Five layouts exist. TDB is a count followed by (offset, size) pairs, TDA a
// count followed by word offsets relative to the end of the header, TDC the
// TDB layout holding dictionary-compressed TIM streams, TMC a run of
// dictionary frames and TMM a run of raw TIMs.
package timdb

import (
	"bytes"
	"encoding/binary"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/common"
	"github.com/hansbonini/galtools/pkg/compress/dictionary"
	"github.com/hansbonini/galtools/pkg/tim"
)

// Name is the format family
const Name = "timdb"

// Layouts
const (
	TDB archive.Variant = "tdb"
	TDA archive.Variant = "tda"
	TDC archive.Variant = "tdc"
	TMC archive.Variant = "tmc"
	TMM archive.Variant = "tmm"
)

// AttrFlags holds the high byte of a TDB/TDC size field
const AttrFlags = "flags"

const sizeMask = 0x00FFFFFF

// Driver implements archive.Driver for TIM databases
type Driver struct{}

// New returns the TIM database driver
func New() *Driver {
	return &Driver{}
}

// Name implements archive.Detector
func (d *Driver) Name() string { return Name }

// Variants implements archive.Driver
func (d *Driver) Variants() []archive.Variant {
	return []archive.Variant{TDB, TDA, TDC, TMC, TMM}
}

// IsCompressed reports whether the layout stores dictionary-compressed entries
func IsCompressed(v archive.Variant) bool {
	return v == TDC || v == TMC
}

// Detect implements archive.Detector. Layouts are tried from the most to the
// least constrained.
func (d *Driver) Detect(data []byte) (archive.Variant, bool) {
	for _, v := range []archive.Variant{TDB, TDC, TDA, TMC, TMM} {
		entries, err := d.Unpack(data, v)
		if err != nil {
			common.LogDebug(common.DebugDetectorRejected, string(v), err)
			continue
		}
		if len(entries) == 0 || (v == TMM && len(entries) < 2) {
			continue
		}
		return v, true
	}
	return "", false
}

// Unpack implements archive.Driver
func (d *Driver) Unpack(data []byte, variant archive.Variant) ([]archive.Entry, error) {
	variant, err := archive.DetectVariant(d, data, variant)
	if err != nil {
		return nil, err
	}

	switch variant {
	case TDB, TDC:
		return unpackTable(data, variant)
	case TDA:
		return unpackAlternate(data)
	case TMC:
		return unpackCompressedStream(data)
	default:
		return unpackStream(data)
	}
}

func unpackTable(data []byte, variant archive.Variant) ([]archive.Entry, error) {
	count, ok := common.Uint32At(data, 0)
	if !ok {
		return nil, common.NewFormatError(string(variant), common.NoIndex, 0, "missing entry count")
	}
	headerSize := 4 + 8*int64(count)
	if headerSize > int64(len(data)) {
		return nil, common.NewFormatError(string(variant), common.NoIndex, 0,
			"%d entries need a %d byte header, file is %d bytes", count, headerSize, len(data))
	}

	entries := make([]archive.Entry, count)
	for i := range entries {
		pos := 4 + 8*i
		offset, _ := common.Uint32At(data, pos)
		rawSize, _ := common.Uint32At(data, pos+4)
		size := rawSize & sizeMask

		if int64(offset) < headerSize || int64(offset)+int64(size) > int64(len(data)) {
			return nil, common.NewFormatError(string(variant), i, int64(pos),
				"entry 0x%X+0x%X outside header end 0x%X and file size 0x%X", offset, size, headerSize, len(data))
		}
		body := data[offset : offset+size]
		common.LogDebug(common.DebugEntryRead, i, offset, size, true)

		var entry archive.Entry
		if variant == TDC {
			if err := checkCompressedStream(body); err != nil {
				return nil, common.NewFormatError(string(variant), i, int64(offset), "%v", err)
			}
			entry = archive.NewEntry(archive.EntryName(i, "TMC"), body)
		} else {
			if _, err := tim.Parse(body); err != nil {
				return nil, common.NewFormatError(string(variant), i, int64(offset), "%v", err)
			}
			entry = archive.NewEntry(archive.EntryName(i, "TIM"), body)
		}
		if flags := int(rawSize >> 24); flags != 0 {
			entry.SetAttr(AttrFlags, flags)
		}
		entries[i] = entry
	}
	return entries, nil
}

func unpackAlternate(data []byte) ([]archive.Entry, error) {
	count, ok := common.Uint32At(data, 0)
	if !ok {
		return nil, common.NewFormatError(string(TDA), common.NoIndex, 0, "missing entry count")
	}
	headerSize := 4 * (int64(count) + 1)
	if headerSize > int64(len(data)) {
		return nil, common.NewFormatError(string(TDA), common.NoIndex, 0,
			"%d entries need a %d byte header, file is %d bytes", count, headerSize, len(data))
	}

	offsets := make([]int64, count+1)
	for i := 0; i < int(count); i++ {
		word, _ := common.Uint32At(data, 4+4*i)
		offsets[i] = headerSize + int64(word)*4
		if offsets[i] > int64(len(data)) || (i > 0 && offsets[i] < offsets[i-1]) {
			return nil, common.NewFormatError(string(TDA), i, int64(4+4*i),
				"offset 0x%X out of order or past file size 0x%X", offsets[i], len(data))
		}
	}
	offsets[count] = int64(len(data))

	entries := make([]archive.Entry, count)
	for i := range entries {
		body := data[offsets[i]:offsets[i+1]]
		if _, err := tim.Parse(body); err != nil {
			return nil, common.NewFormatError(string(TDA), i, offsets[i], "%v", err)
		}
		entries[i] = archive.NewEntry(archive.EntryName(i, "TIM"), body)
	}
	return entries, nil
}

func unpackCompressedStream(data []byte) ([]archive.Entry, error) {
	blocks, err := dictionary.DecompressAll(data)
	if err != nil {
		return nil, err
	}

	entries := make([]archive.Entry, len(blocks))
	for i, block := range blocks {
		if _, err := tim.Parse(block.Data); err != nil {
			return nil, common.NewFormatError(string(TMC), i, int64(block.Offset), "%v", err)
		}
		entries[i] = archive.NewEntry(archive.EntryName(i, "TIM"), block.Data)
	}
	return entries, nil
}

// checkCompressedStream verifies that data is a run of frames holding TIMs
func checkCompressedStream(data []byte) error {
	entries, err := unpackCompressedStream(data)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return common.NewFormatError(string(TMC), common.NoIndex, 0, "no compressed images")
	}
	return nil
}

func unpackStream(data []byte) ([]archive.Entry, error) {
	var entries []archive.Entry
	pos := 0
	for pos < len(data) {
		size, ok := tim.Size(data[pos:])
		if !ok {
			_, err := tim.Parse(data[pos:])
			return nil, common.NewFormatError(string(TMM), len(entries), int64(pos), "%v", err)
		}

		// Padding up to the next magic byte stays with this image
		next := pos + size
		if i := bytes.IndexByte(data[next:], tim.Magic); i >= 0 {
			next += i
		} else {
			next = len(data)
		}

		entries = append(entries, archive.NewEntry(archive.EntryName(len(entries), "TIM"), data[pos:next]))
		pos = next
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

	bodies := make([][]byte, len(entries))
	for i, entry := range entries {
		if !entry.Present {
			return nil, common.NewFormatError(string(variant), i, 0, "%s cannot hold a gap", variant)
		}
		body, err := prepareEntry(entry.Data, variant)
		if err != nil {
			return nil, common.NewFormatError(string(variant), i, 0, "%v", err)
		}
		bodies[i] = body
	}

	switch variant {
	case TDB, TDC:
		return packTable(entries, bodies)
	case TDA:
		return packAlternate(bodies)
	default:
		return bytes.Join(bodies, nil), nil
	}
}

// prepareEntry converts entry data to what the layout stores
func prepareEntry(data []byte, variant archive.Variant) ([]byte, error) {
	_, timErr := tim.Parse(data)

	switch variant {
	case TMC:
		if timErr != nil {
			return nil, timErr
		}
		return dictionary.Compress(data)
	case TDC:
		if timErr == nil {
			return dictionary.Compress(data)
		}
		if err := checkCompressedStream(data); err != nil {
			return nil, err
		}
		return data, nil
	default:
		return data, timErr
	}
}

func packTable(entries []archive.Entry, bodies [][]byte) ([]byte, error) {
	headerSize := 4 + 8*len(bodies)
	out := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(out, uint32(len(bodies)))

	offset := headerSize
	for i, body := range bodies {
		if len(body) > sizeMask {
			return nil, common.NewFormatError(Name, i, 0, "entry of %d bytes does not fit a 24-bit size", len(body))
		}
		size := uint32(len(body)) | uint32(entries[i].Attr(AttrFlags, 0)&0xFF)<<24
		off, err := common.SafeIntToUint32(offset)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(out[4+8*i:], off)
		binary.LittleEndian.PutUint32(out[8+8*i:], size)
		offset += len(body)
	}

	for _, body := range bodies {
		out = append(out, body...)
	}
	return out, nil
}

func packAlternate(bodies [][]byte) ([]byte, error) {
	out := make([]byte, 4*(len(bodies)+1))
	binary.LittleEndian.PutUint32(out, uint32(len(bodies)))

	// Word offsets need every entry but the last to end on a 4-byte boundary
	for i := 0; i+1 < len(bodies); i++ {
		bodies[i] = common.PadTo(append([]byte(nil), bodies[i]...), 4)
	}

	offset := 0
	for i, body := range bodies {
		word, err := common.SafeIntToUint32(offset / 4)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(out[4+4*i:], word)
		offset += len(body)
	}

	for _, body := range bodies {
		out = append(out, body...)
	}
	return out, nil
}
