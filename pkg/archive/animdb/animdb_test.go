// Package animdb provides tests for the animation database container
package animdb

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// animation returns a header of headerSize bytes followed by frames bytes
func animation(headerSize, frames int, seed byte) []byte {
	out := make([]byte, headerSize+frames)
	for i := range out {
		out[i] = seed + byte(i)
	}
	return out
}

func TestPack_Directory(t *testing.T) {
	custom := archive.NewEntry("002", animation(16, 4, 0x40))
	custom.SetAttr(AttrHeaderSize, 16)
	entries := []archive.Entry{
		archive.NewEntry("000", animation(DefaultHeaderSize, 8, 1)),
		archive.Gap("001"),
		custom,
	}

	packed, err := New().Pack(entries, archive.DefaultOptions())
	require.NoError(t, err)

	slots := []uint32{0, 72, 0, 0, 80, 96}
	for i, want := range slots {
		assert.Equal(t, want, binary.LittleEndian.Uint32(packed[4*i:]), "directory word %d", i)
	}
	assert.True(t, common.IsZero(packed[4*len(slots):directorySize]))
	assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(packed[directorySize:]))
	assert.Len(t, packed, dataStart+100)
}

func TestRoundTrip(t *testing.T) {
	d := New()
	custom := archive.NewEntry("003", animation(24, 0, 0x80))
	custom.SetAttr(AttrHeaderSize, 24)
	entries := []archive.Entry{
		archive.Gap("000"),
		archive.NewEntry("001", animation(DefaultHeaderSize, 12, 1)),
		archive.NewEntry("002", animation(DefaultHeaderSize, 40, 2)),
		custom,
	}

	packed, err := d.Pack(entries, archive.DefaultOptions())
	require.NoError(t, err)

	variant, ok := d.Detect(packed)
	require.True(t, ok)
	assert.Equal(t, Default, variant)

	unpacked, err := d.Unpack(packed, "")
	require.NoError(t, err)
	require.Len(t, unpacked, 4)
	assert.False(t, unpacked[0].Present)
	assert.Equal(t, entries[1].Data, unpacked[1].Data)
	assert.Equal(t, 24, unpacked[3].Attr(AttrHeaderSize, DefaultHeaderSize))
	_, hasAttr := unpacked[1].Attrs[AttrHeaderSize]
	assert.False(t, hasAttr)

	repacked, err := d.Pack(unpacked, archive.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, packed, repacked)
}

func TestUnpack_TrimsTrailingGaps(t *testing.T) {
	d := New()
	packed, err := d.Pack([]archive.Entry{
		archive.NewEntry("000", animation(DefaultHeaderSize, 4, 0)),
		archive.Gap("001"),
		archive.Gap("002"),
	}, archive.DefaultOptions())
	require.NoError(t, err)

	unpacked, err := d.Unpack(packed, Default)
	require.NoError(t, err)
	assert.Len(t, unpacked, 1)
}

func TestPack_PadsEntries(t *testing.T) {
	d := New()
	packed, err := d.Pack([]archive.Entry{
		archive.NewEntry("000", animation(DefaultHeaderSize, 1, 0)),
		archive.NewEntry("001", animation(DefaultHeaderSize, 0, 0)),
	}, archive.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, uint32(76), binary.LittleEndian.Uint32(packed[8:]))

	unpacked, err := d.Unpack(packed, Default)
	require.NoError(t, err)
	assert.Len(t, unpacked[0].Data, 76)
	assert.Equal(t, byte(0), unpacked[0].Data[75])
}

func TestPack_Errors(t *testing.T) {
	d := New()

	tooMany := make([]archive.Entry, MaxEntries+1)
	for i := range tooMany {
		tooMany[i] = archive.NewEntry(archive.EntryName(i, ""), animation(DefaultHeaderSize, 0, 0))
	}
	_, err := d.Pack(tooMany, archive.DefaultOptions())
	assert.ErrorContains(t, err, common.ErrTooManyEntries)

	_, err = d.Pack([]archive.Entry{archive.NewEntry("000", []byte{1, 2, 3})}, archive.DefaultOptions())
	assert.Error(t, err)
}

func TestDetect_Rejects(t *testing.T) {
	d := New()
	valid, err := d.Pack([]archive.Entry{archive.NewEntry("000", animation(DefaultHeaderSize, 8, 0))}, archive.DefaultOptions())
	require.NoError(t, err)

	testCases := []struct {
		name string
		data []byte
	}{
		{"short", make([]byte, 0x100)},
		{"empty directory", make([]byte, dataStart)},
		{"trailing data", append(append([]byte(nil), valid...), 0)},
		{"truncated", valid[:len(valid)-4]},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := d.Detect(tc.data); ok {
				t.Errorf("Detect() = true, want false")
			}
		})
	}
}

func TestUnpack_FormatErrors(t *testing.T) {
	d := New()
	valid, err := d.Pack([]archive.Entry{archive.NewEntry("000", animation(DefaultHeaderSize, 8, 0))}, archive.DefaultOptions())
	require.NoError(t, err)

	dataPastEnd := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(dataPastEnd[4:], 0x1000)

	oversized := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(oversized[directorySize:], 0x1000)

	for name, data := range map[string][]byte{
		"short":          {1, 2, 3},
		"data past end":  dataPastEnd,
		"oversized data": oversized,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := d.Unpack(data, Default)
			var formatErr *common.FormatError
			if !errors.As(err, &formatErr) {
				t.Errorf("Unpack() error = %v, want FormatError", err)
			}
		})
	}
}
