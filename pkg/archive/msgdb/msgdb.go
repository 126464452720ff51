// Package msgdb implements the message string databases.
//
// Western releases use an indexed table of NUL-terminated Windows-1252
// strings behind a two byte magic. The Japanese release stores a bare run of
// 16-bit code strings, each closed by 0xFFFF, and addresses them by byte
// offset.
package msgdb

import (
	"bytes"
	"encoding/binary"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/common"
)

// Name is the format family
const Name = "msgdb"

// Layouts
const (
	Latin    archive.Variant = "latin"
	Japanese archive.Variant = "japanese"
)

// Magic opens a Latin message database
var Magic = []byte{0x41, 0x84}

// AttrUnterminated marks a string that ran to the end of the file without
// a terminator
const AttrUnterminated = "unterminated"

const terminator = 0xFFFF

// Driver implements archive.Driver for message databases
type Driver struct{}

// New returns the message database driver
func New() *Driver {
	return &Driver{}
}

// Name implements archive.Detector
func (d *Driver) Name() string { return Name }

// Variants implements archive.Driver
func (d *Driver) Variants() []archive.Variant {
	return []archive.Variant{Latin, Japanese}
}

// Detect implements archive.Detector
func (d *Driver) Detect(data []byte) (archive.Variant, bool) {
	if DetectLatin(data) {
		return Latin, true
	}
	if DetectJapanese(data) {
		return Japanese, true
	}
	return "", false
}

// DetectLatin reports whether data is an indexed Latin database with at
// least one string
func DetectLatin(data []byte) bool {
	entries, err := unpackLatin(data)
	return err == nil && len(entries) > 0
}

// DetectJapanese reports whether data is a run of Japanese strings using
// only codes the game defines
func DetectJapanese(data []byte) bool {
	entries, err := unpackJapanese(data)
	if err != nil || len(entries) == 0 {
		return false
	}
	for _, entry := range entries {
		for _, code := range Codes(entry.Data) {
			if !plausibleCode(code) {
				return false
			}
		}
	}
	return true
}

func plausibleCode(code uint16) bool {
	switch {
	case code > 0xFF && code < 0x800:
		return false
	case code > 0x8FF && code < 0x8000:
		return false
	case code&0xC000 != 0 && code&0xFF > 6:
		return false
	}
	return true
}

// Unpack implements archive.Driver. Each string becomes one entry holding
// its raw encoded bytes without the terminator.
func (d *Driver) Unpack(data []byte, variant archive.Variant) ([]archive.Entry, error) {
	variant, err := archive.DetectVariant(d, data, variant)
	if err != nil {
		return nil, err
	}
	var entries []archive.Entry
	if variant == Japanese {
		entries, err = unpackJapanese(data)
	} else {
		entries, err = unpackLatin(data)
	}
	if err != nil {
		return nil, err
	}
	for i, entry := range entries {
		if entry.Attr(AttrUnterminated, 0) != 0 {
			common.LogWarn(common.WarnUnterminatedString, variant, i, len(data)-len(entry.Data))
		}
	}
	return entries, nil
}

func unpackLatin(data []byte) ([]archive.Entry, error) {
	if !bytes.HasPrefix(data, Magic) {
		return nil, common.NewFormatError(string(Latin), common.NoIndex, 0, "missing magic %X", Magic)
	}
	count, ok := common.Uint16At(data, 2)
	if !ok {
		return nil, common.NewFormatError(string(Latin), common.NoIndex, 2, "missing string count")
	}
	headerSize := (int(count) + 1) * 4
	if headerSize > len(data) {
		return nil, common.NewFormatError(string(Latin), common.NoIndex, 2,
			"%d strings need a %d byte header, file is %d bytes", count, headerSize, len(data))
	}

	entries := make([]archive.Entry, count)
	for i := range entries {
		offset := int(binary.LittleEndian.Uint32(data[4+4*i:]))
		if offset < headerSize || offset >= len(data) {
			return nil, common.NewFormatError(string(Latin), i, int64(4+4*i),
				"string offset 0x%X outside 0x%X-0x%X", offset, headerSize, len(data))
		}
		end := bytes.IndexByte(data[offset:], 0)
		unterminated := end < 0
		if unterminated {
			end = len(data) - offset
		}
		entries[i] = archive.NewEntry(archive.EntryName(i, ""), data[offset:offset+end])
		if unterminated {
			entries[i].SetAttr(AttrUnterminated, 1)
		}
		common.LogDebug(common.DebugEntryRead, i, offset, end, true)
	}
	return entries, nil
}

func unpackJapanese(data []byte) ([]archive.Entry, error) {
	if len(data) == 0 || len(data)%2 != 0 {
		return nil, common.NewFormatError(string(Japanese), common.NoIndex, 0, "%d bytes is not a whole number of codes", len(data))
	}

	var entries []archive.Entry
	start := 0
	for pos := 0; pos < len(data); pos += 2 {
		if binary.LittleEndian.Uint16(data[pos:]) != terminator {
			continue
		}
		index := len(entries)
		entries = append(entries, archive.NewEntry(archive.EntryName(index, ""), data[start:pos]))
		common.LogDebug(common.DebugEntryRead, index, start, pos-start, true)
		start = pos + 2
	}
	if len(entries) == 0 {
		return nil, common.NewFormatError(string(Japanese), common.NoIndex, 0, "no string terminator")
	}
	if start < len(data) {
		entry := archive.NewEntry(archive.EntryName(len(entries), ""), data[start:])
		entry.SetAttr(AttrUnterminated, 1)
		entries = append(entries, entry)
	}
	return entries, nil
}

// Pack implements archive.Driver. Gaps are written as empty strings so that
// later strings keep their position.
func (d *Driver) Pack(entries []archive.Entry, opts archive.Options) ([]byte, error) {
	variant, err := archive.ResolveVariant(d, opts.Variant)
	if err != nil {
		return nil, err
	}
	entries = opts.Prepare(entries)
	if variant == Japanese {
		return packJapanese(entries)
	}
	return packLatin(entries)
}

func packLatin(entries []archive.Entry) ([]byte, error) {
	count, err := common.SafeIntToUint16(len(entries))
	if err != nil {
		return nil, common.NewFormatError(string(Latin), common.NoIndex, 2, "%s: %v", common.ErrTooManyEntries, err)
	}

	headerSize := (len(entries) + 1) * 4
	out := make([]byte, headerSize)
	copy(out, Magic)
	binary.LittleEndian.PutUint16(out[2:], count)
	for i, entry := range entries {
		if bytes.IndexByte(entry.Data, 0) >= 0 {
			return nil, common.NewFormatError(string(Latin), i, 0, "string contains a NUL byte")
		}
		offset, err := common.SafeIntToUint32(len(out))
		if err != nil {
			return nil, common.NewFormatError(string(Latin), i, 0, "%v", err)
		}
		binary.LittleEndian.PutUint32(out[4+4*i:], offset)
		out = append(out, entry.Data...)
		if i == len(entries)-1 && entry.Attr(AttrUnterminated, 0) != 0 {
			break
		}
		out = append(out, 0)
	}
	return out, nil
}

func packJapanese(entries []archive.Entry) ([]byte, error) {
	var out []byte
	for i, entry := range entries {
		if len(entry.Data)%2 != 0 {
			return nil, common.NewFormatError(string(Japanese), i, int64(len(out)), "odd string length %d", len(entry.Data))
		}
		for _, code := range Codes(entry.Data) {
			if code == terminator {
				return nil, common.NewFormatError(string(Japanese), i, int64(len(out)), "string contains a terminator")
			}
		}
		out = append(out, entry.Data...)
		if i == len(entries)-1 && entry.Attr(AttrUnterminated, 0) != 0 {
			break
		}
		out = binary.LittleEndian.AppendUint16(out, terminator)
	}
	return out, nil
}

// Codes splits a raw Japanese string into its 16-bit codes. A trailing odd
// byte is ignored.
func Codes(data []byte) []uint16 {
	codes := make([]uint16, len(data)/2)
	for i := range codes {
		codes[i] = binary.LittleEndian.Uint16(data[2*i:])
	}
	return codes
}

// IDs returns the byte offset of each Japanese string, which is how the game
// refers to it
func IDs(entries []archive.Entry) []int {
	ids := make([]int, len(entries))
	offset := 0
	for i, entry := range entries {
		ids[i] = offset
		offset += len(entry.Data) + 2
	}
	return ids
}
