// Package cdb provides tests for the CDB container
package cdb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/common"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGapRoundTrip_EndToEnd(t *testing.T) {
	d := New()
	payload := bytes.Repeat([]byte{0xAB}, 100)
	original, err := d.Pack([]archive.Entry{
		archive.NewEntry("000", payload),
		archive.Gap("001"),
	}, archive.Options{Variant: Extended, Placeholders: true})
	require.NoError(t, err)
	assert.Len(t, original, 2*SectorSize)

	// Header: count 2, extended, record (1, 1, 100), gap record (2, 0, 0)
	assert.Equal(t, []byte{2, 0, 1, 0, 0, 0, 0, 0, 1, 0, 1, 0, 100, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0}, original[:24])

	fs := afero.NewMemMapFs()
	p := archive.NewProcessor(fs)
	index, err := p.UnpackBytes(d, original, "/out", archive.UnpackOptions{All: true})
	require.NoError(t, err)
	require.Len(t, index.Entries, 2)
	assert.True(t, index.Entries[0].Present)
	assert.False(t, index.Entries[1].Present)

	placeholder, err := afero.ReadFile(fs, filepath.Join("/out", "001"))
	require.NoError(t, err)
	assert.Empty(t, placeholder)

	repacked, _, err := p.PackDir(d, "/out", archive.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, original, repacked)
}

func TestRoundTrip(t *testing.T) {
	d := New()
	entries := []archive.Entry{
		archive.NewEntry("000", bytes.Repeat([]byte{1}, SectorSize)),
		archive.Gap("001"),
		archive.NewEntry("002", bytes.Repeat([]byte{2}, SectorSize*2+5)),
		archive.NewEntry("003", []byte{3}),
	}

	for _, variant := range d.Variants() {
		t.Run(string(variant), func(t *testing.T) {
			packed, err := d.Pack(entries, archive.Options{Variant: variant, Placeholders: true})
			require.NoError(t, err)
			assert.Zero(t, len(packed)%SectorSize)

			detected, ok := d.Detect(packed)
			require.True(t, ok)
			assert.Equal(t, variant, detected)

			unpacked, err := d.Unpack(packed, "")
			require.NoError(t, err)
			require.Len(t, unpacked, 4)
			assert.False(t, unpacked[1].Present)

			if variant == Extended {
				assert.Equal(t, entries[0].Data, unpacked[0].Data, "full final sector")
				assert.Equal(t, entries[2].Data, unpacked[2].Data)
				assert.Equal(t, entries[3].Data, unpacked[3].Data)
			} else {
				assert.Len(t, unpacked[2].Data, SectorSize*3)
				assert.Len(t, unpacked[3].Data, SectorSize)
			}

			repacked, err := d.Pack(unpacked, archive.Options{Variant: variant, Placeholders: true})
			require.NoError(t, err)
			assert.Equal(t, packed, repacked)
		})
	}
}

func TestPack_DropsGapsWithoutPlaceholders(t *testing.T) {
	d := New()
	packed, err := d.Pack([]archive.Entry{archive.Gap("000"), archive.NewEntry("001", []byte{9})}, archive.Options{})
	require.NoError(t, err)

	count := binary.LittleEndian.Uint16(packed)
	assert.Equal(t, uint16(1), count)
}

func TestPack_TooManyEntries(t *testing.T) {
	entries := make([]archive.Entry, (SectorSize-extendedHeaderSize)/extendedRecordSize+1)
	for i := range entries {
		entries[i] = archive.NewEntry(archive.EntryName(i, ""), []byte{byte(i)})
	}

	_, err := New().Pack(entries, archive.Options{Variant: Extended})
	require.Error(t, err)
	assert.Contains(t, err.Error(), common.ErrTooManyEntries)

	// The same count fits the shorter sector records
	_, err = New().Pack(entries, archive.Options{Variant: Sector})
	assert.NoError(t, err)
}

func TestUnpack_FormatErrors(t *testing.T) {
	valid, err := New().Pack([]archive.Entry{archive.NewEntry("000", []byte("x"))}, archive.Options{Variant: Extended})
	require.NoError(t, err)

	pastEnd := append([]byte{}, valid...)
	binary.LittleEndian.PutUint16(pastEnd[10:], 2) // two sectors, file holds one

	zeroStart := append([]byte{}, valid...)
	binary.LittleEndian.PutUint16(zeroStart[8:], 0)

	bigFinal := append([]byte{}, valid...)
	binary.LittleEndian.PutUint16(bigFinal[12:], SectorSize+1)

	testCases := []struct {
		name string
		data []byte
	}{
		{"short", []byte{1}},
		{"bad flag", []byte{1, 0, 2, 0}},
		{"directory past sector", append([]byte{0xFF, 0x02, 0, 0}, make([]byte, SectorSize*2)...)},
		{"entry past end", pastEnd},
		{"entry in header sector", zeroStart},
		{"final length too large", bigFinal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New().Unpack(tc.data, "")
			require.Error(t, err)

			var formatErr *common.FormatError
			assert.True(t, errors.As(err, &formatErr), "Unpack() error = %v, want FormatError", err)
		})
	}
}

func TestDetect_Rejects(t *testing.T) {
	valid, err := New().Pack([]archive.Entry{archive.NewEntry("000", []byte("x"))}, archive.DefaultOptions())
	require.NoError(t, err)

	testCases := []struct {
		name string
		data []byte
	}{
		{"trailing data", append(append([]byte{}, valid...), 0)},
		{"truncated", valid[:SectorSize+10]},
		{"no entries", make([]byte, SectorSize)},
		{"header only", valid[:SectorSize]},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := New().Detect(tc.data)
			assert.False(t, ok)
		})
	}
}
