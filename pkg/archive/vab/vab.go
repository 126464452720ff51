// Package vab implements the VAB sound bank databases.
//
// A bank is split into a VH (header, "pBAV" magic), an optional SEQ
// (sequence, "pQES" magic) and a VB (sample body). The VDB layout stores any
// number of each behind an offset table. The VDA layout is a single
// VB + VH + SEQ run with no header at all.
package vab

import (
	"bytes"
	"encoding/binary"
	"path"
	"slices"
	"strings"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/common"
)

// Name is the format family
const Name = "vab"

// Layouts
const (
	VDB archive.Variant = "vdb"
	VDA archive.Variant = "vda"
)

// Entry extensions
const (
	ExtVH  = "VH"
	ExtVB  = "VB"
	ExtSEQ = "SEQ"
)

// AttrTOCLength keeps the first header word, which is not always 0x18
const AttrTOCLength = "toc_len"

// Magics of the VH and SEQ parts as stored on disc
var (
	MagicVH  = []byte("pBAV")
	MagicSEQ = []byte("pQES")
)

const (
	tocLength  = 0x18
	headerSize = 0x1C
)

// Driver implements archive.Driver for VAB databases
type Driver struct{}

// New returns the VAB database driver
func New() *Driver {
	return &Driver{}
}

// Name implements archive.Detector
func (d *Driver) Name() string { return Name }

// Variants implements archive.Driver
func (d *Driver) Variants() []archive.Variant {
	return []archive.Variant{VDB, VDA}
}

// Detect implements archive.Detector. Every VH found must carry its magic.
func (d *Driver) Detect(data []byte) (archive.Variant, bool) {
	for _, v := range d.Variants() {
		if _, err := d.Unpack(data, v); err != nil {
			common.LogDebug(common.DebugDetectorRejected, string(v), err)
			continue
		}
		return v, true
	}
	return "", false
}

// Unpack implements archive.Driver. Entries are ordered VH, VB, SEQ.
func (d *Driver) Unpack(data []byte, variant archive.Variant) ([]archive.Entry, error) {
	variant, err := archive.DetectVariant(d, data, variant)
	if err != nil {
		return nil, err
	}
	if variant == VDA {
		return unpackAlternate(data)
	}
	return unpackTable(data)
}

type vdbHeader struct {
	toc                   uint32
	vhLen, seqLen, vbLen  uint32
	vhCount, seqCount     uint32
	vbCount               int32
	vhOffsets, seqOffsets []uint32
	vbOffsets             []uint32
	dataStart, dataLen    int64
}

func readHeader(data []byte) (h *vdbHeader, err error) {
	if len(data) < headerSize {
		return nil, common.NewFormatError(string(VDB), common.NoIndex, 0, "file of %d bytes is shorter than the header", len(data))
	}
	word := func(i int) uint32 { return binary.LittleEndian.Uint32(data[4*i:]) }

	h = &vdbHeader{
		toc:      word(0),
		vhLen:    word(1),
		vhCount:  word(2),
		seqLen:   word(3),
		seqCount: word(4),
		vbLen:    word(5),
		vbCount:  int32(word(6)),
	}
	if int64(h.toc)+int64(h.vhLen)+int64(h.seqLen) == 0 || h.vbCount <= 0 {
		return nil, common.NewFormatError(string(VDB), common.NoIndex, 0, "no table of contents")
	}

	total := int64(h.vhCount) + int64(h.seqCount) + int64(h.vbCount)
	h.dataStart = headerSize + 4*total
	h.dataLen = int64(h.vhLen) + int64(h.seqLen) + int64(h.vbLen)
	if h.dataStart+h.dataLen > int64(len(data)) {
		return nil, common.NewFormatError(string(VDB), common.NoIndex, 0,
			"%d offsets and 0x%X data bytes exceed file size 0x%X", total, h.dataLen, len(data))
	}

	pos := headerSize
	next := func() uint32 {
		v := binary.LittleEndian.Uint32(data[pos:])
		pos += 4
		if int64(v) > h.dataLen && err == nil {
			err = common.NewFormatError(string(VDB), common.NoIndex, int64(pos-4),
				"offset 0x%X outside data block of 0x%X bytes", v, h.dataLen)
		}
		return v
	}
	for i := uint32(0); i < h.vhCount; i++ {
		if offset := next(); i == 0 || offset != 0 {
			h.vhOffsets = append(h.vhOffsets, offset)
		}
	}
	for i := uint32(0); i < h.seqCount; i++ {
		if offset := next(); offset != 0 {
			h.seqOffsets = append(h.seqOffsets, offset)
		}
	}
	for i := int32(0); i < h.vbCount; i++ {
		if offset := next(); offset != 0 {
			h.vbOffsets = append(h.vbOffsets, offset)
		}
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// sizes maps each offset to the distance to the next one, the last running
// to the end of the data block
func (h *vdbHeader) sizes() map[uint32]int64 {
	var all []uint32
	all = append(all, h.vhOffsets...)
	all = append(all, h.seqOffsets...)
	all = append(all, h.vbOffsets...)
	slices.Sort(all)

	sizes := make(map[uint32]int64, len(all))
	for i, offset := range all {
		if i+1 < len(all) {
			sizes[offset] = int64(all[i+1]) - int64(offset)
		} else {
			sizes[offset] = h.dataLen - int64(offset)
		}
	}
	return sizes
}

func unpackTable(data []byte) ([]archive.Entry, error) {
	h, err := readHeader(data)
	if err != nil {
		return nil, err
	}
	if len(h.vhOffsets) == 0 {
		return nil, common.NewFormatError(string(VDB), common.NoIndex, 8, "no VH entries")
	}
	sizes := h.sizes()

	var entries []archive.Entry
	add := func(offsets []uint32, ext string, magic []byte) error {
		for _, offset := range offsets {
			index := len(entries)
			size := sizes[offset]
			start := h.dataStart + int64(offset)
			body := data[start : start+size]
			if magic != nil && !bytes.HasPrefix(body, magic) {
				return common.NewFormatError(string(VDB), index, start, "%s entry does not start with %q", ext, magic)
			}
			entries = append(entries, archive.NewEntry(archive.EntryName(index, ext), body))
			common.LogDebug(common.DebugEntryRead, index, start, size, true)
		}
		return nil
	}
	if err := add(h.vhOffsets, ExtVH, MagicVH); err != nil {
		return nil, err
	}
	if err := add(h.vbOffsets, ExtVB, nil); err != nil {
		return nil, err
	}
	if err := add(h.seqOffsets, ExtSEQ, MagicSEQ); err != nil {
		return nil, err
	}

	if h.toc != tocLength {
		entries[0].SetAttr(AttrTOCLength, int(h.toc))
	}
	return entries, nil
}

func unpackAlternate(data []byte) ([]archive.Entry, error) {
	if n := bytes.Count(data, MagicVH); n != 1 {
		return nil, common.NewFormatError(string(VDA), common.NoIndex, 0, "found %d VH headers, want exactly one", n)
	}
	if n := bytes.Count(data, MagicSEQ); n > 1 {
		return nil, common.NewFormatError(string(VDA), common.NoIndex, 0, "found %d SEQ headers, want at most one", n)
	}

	vhOffset := bytes.LastIndex(data, MagicVH)
	if vhOffset == 0 {
		return nil, common.NewFormatError(string(VDA), common.NoIndex, 0, "no VB before the VH")
	}
	seqOffset := bytes.LastIndex(data, MagicSEQ)
	if seqOffset == -1 {
		seqOffset = len(data)
	} else if seqOffset < vhOffset {
		return nil, common.NewFormatError(string(VDA), common.NoIndex, int64(seqOffset), "SEQ precedes VH")
	}

	entries := []archive.Entry{
		archive.NewEntry(archive.EntryName(0, ExtVH), data[vhOffset:seqOffset]),
		archive.NewEntry(archive.EntryName(1, ExtVB), data[:vhOffset]),
	}
	if seqOffset < len(data) {
		entries = append(entries, archive.NewEntry(archive.EntryName(2, ExtSEQ), data[seqOffset:]))
	}
	return entries, nil
}

// Kind classifies an entry as VH, VB or SEQ, by extension first and then
// by magic
func Kind(entry archive.Entry) string {
	switch strings.ToUpper(strings.TrimPrefix(path.Ext(entry.Name), ".")) {
	case ExtVH:
		return ExtVH
	case ExtVB:
		return ExtVB
	case ExtSEQ:
		return ExtSEQ
	}
	switch {
	case bytes.HasPrefix(entry.Data, MagicVH):
		return ExtVH
	case bytes.HasPrefix(entry.Data, MagicSEQ):
		return ExtSEQ
	default:
		return ExtVB
	}
}

type bank struct {
	vhs, seqs, vbs [][]byte
	toc            uint32
}

func split(entries []archive.Entry) bank {
	b := bank{toc: tocLength}
	for _, entry := range entries {
		if !entry.Present {
			continue
		}
		if toc := entry.Attr(AttrTOCLength, -1); toc >= 0 {
			b.toc = uint32(toc)
		}
		switch Kind(entry) {
		case ExtVH:
			b.vhs = append(b.vhs, entry.Data)
		case ExtSEQ:
			b.seqs = append(b.seqs, entry.Data)
		default:
			b.vbs = append(b.vbs, entry.Data)
		}
	}
	return b
}

// Pack implements archive.Driver. Gaps have no representation and are skipped.
func (d *Driver) Pack(entries []archive.Entry, opts archive.Options) ([]byte, error) {
	variant, err := archive.ResolveVariant(d, opts.Variant)
	if err != nil {
		return nil, err
	}
	b := split(entries)

	if variant == VDA {
		if len(b.vhs) != 1 || len(b.vbs) > 1 || len(b.seqs) > 1 {
			return nil, common.NewFormatError(string(VDA), common.NoIndex, 0,
				"holds one VB, one VH and at most one SEQ, got %d, %d and %d", len(b.vbs), len(b.vhs), len(b.seqs))
		}
		var out []byte
		for _, part := range [][][]byte{b.vbs, b.vhs, b.seqs} {
			for _, data := range part {
				out = append(out, data...)
			}
		}
		return out, nil
	}
	return b.packTable()
}

func (b bank) packTable() ([]byte, error) {
	if len(b.vhs) == 0 || len(b.vbs) == 0 {
		return nil, common.NewFormatError(string(VDB), common.NoIndex, 0,
			"needs at least one VH and one VB, got %d and %d", len(b.vhs), len(b.vbs))
	}

	var data []byte
	place := func(parts [][]byte) ([]uint32, uint32, error) {
		start := len(data)
		offsets := make([]uint32, len(parts))
		for i, part := range parts {
			offset, err := common.SafeIntToUint32(len(data))
			if err != nil {
				return nil, 0, err
			}
			offsets[i] = offset
			data = append(data, part...)
		}
		size, err := common.SafeIntToUint32(len(data) - start)
		return offsets, size, err
	}

	vhOffsets, vhLen, err := place(b.vhs)
	if err != nil {
		return nil, err
	}
	seqOffsets, seqLen, err := place(b.seqs)
	if err != nil {
		return nil, err
	}
	// The SEQ table is as long as the VH table, padded with leading zeros
	if extra := len(vhOffsets) - len(seqOffsets); extra > 0 {
		seqOffsets = append(make([]uint32, extra), seqOffsets...)
	}
	vbOffsets, vbLen, err := place(b.vbs)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	words := []uint32{
		b.toc,
		vhLen, uint32(len(vhOffsets)),
		seqLen, uint32(len(seqOffsets)),
		vbLen, uint32(len(vbOffsets)),
	}
	words = append(words, vhOffsets...)
	words = append(words, seqOffsets...)
	words = append(words, vbOffsets...)
	if err := binary.Write(&out, binary.LittleEndian, words); err != nil {
		return nil, err
	}
	out.Write(data)
	return out.Bytes(), nil
}
