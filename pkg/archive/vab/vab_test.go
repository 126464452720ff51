// Package vab provides tests for the VAB database layouts
package vab

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	vh0  = []byte("pBAV\x07\x00\x00\x00")
	vh1  = []byte("pBAV\x01\x02")
	seq0 = []byte("pQES")
	vb0  = []byte{0x10, 0x20, 0x30, 0x40, 0x50}
)

func bankEntries() []archive.Entry {
	return []archive.Entry{
		archive.NewEntry("000.VH", vh0),
		archive.NewEntry("001.VH", vh1),
		archive.NewEntry("002.VB", vb0),
		archive.NewEntry("003.SEQ", seq0),
	}
}

func TestPack_TableLayout(t *testing.T) {
	packed, err := New().Pack(bankEntries(), archive.DefaultOptions())
	require.NoError(t, err)

	want := []uint32{0x18, 14, 2, 4, 2, 5, 1, 0, 8, 0, 14, 18}
	for i, w := range want {
		assert.Equal(t, w, binary.LittleEndian.Uint32(packed[4*i:]), "header word %d", i)
	}
	require.Len(t, packed, 48+23)
	assert.Equal(t, vh0, packed[48:56])
	assert.Equal(t, seq0, packed[62:66])
	assert.Equal(t, vb0, packed[66:])
}

func TestRoundTrip_Table(t *testing.T) {
	d := New()
	packed, err := d.Pack(bankEntries(), archive.DefaultOptions())
	require.NoError(t, err)

	variant, ok := d.Detect(packed)
	require.True(t, ok)
	assert.Equal(t, VDB, variant)

	unpacked, err := d.Unpack(packed, "")
	require.NoError(t, err)
	require.Len(t, unpacked, 4)
	assert.Equal(t, "000.VH", unpacked[0].Name)
	assert.Equal(t, "001.VH", unpacked[1].Name)
	assert.Equal(t, "002.VB", unpacked[2].Name)
	assert.Equal(t, "003.SEQ", unpacked[3].Name)
	assert.Equal(t, vh1, unpacked[1].Data)
	assert.Equal(t, vb0, unpacked[2].Data)

	repacked, err := d.Pack(unpacked, archive.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, packed, repacked)
}

func TestRoundTrip_TOCLengthPreserved(t *testing.T) {
	d := New()
	packed, err := d.Pack(bankEntries(), archive.DefaultOptions())
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(packed, 0x20)

	unpacked, err := d.Unpack(packed, VDB)
	require.NoError(t, err)
	assert.Equal(t, 0x20, unpacked[0].Attr(AttrTOCLength, 0))

	repacked, err := d.Pack(unpacked, archive.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, packed, repacked)
}

func TestRoundTrip_Alternate(t *testing.T) {
	d := New()
	raw := append(append(append([]byte{}, vb0...), vh0...), []byte("pQES\x01\x00")...)

	variant, ok := d.Detect(raw)
	require.True(t, ok)
	assert.Equal(t, VDA, variant)

	unpacked, err := d.Unpack(raw, "")
	require.NoError(t, err)
	require.Len(t, unpacked, 3)
	assert.Equal(t, vh0, unpacked[0].Data)
	assert.Equal(t, vb0, unpacked[1].Data)
	assert.Equal(t, "002.SEQ", unpacked[2].Name)

	repacked, err := d.Pack(unpacked, archive.Options{Variant: VDA})
	require.NoError(t, err)
	assert.Equal(t, raw, repacked)
}

func TestUnpack_AlternateWithoutSEQ(t *testing.T) {
	raw := append(append([]byte{}, vb0...), vh0...)
	unpacked, err := New().Unpack(raw, VDA)
	require.NoError(t, err)
	require.Len(t, unpacked, 2)
	assert.Equal(t, vh0, unpacked[0].Data)
}

func TestKind(t *testing.T) {
	testCases := []struct {
		name  string
		entry archive.Entry
		want  string
	}{
		{"extension wins", archive.NewEntry("bank.vb", vh0), ExtVB},
		{"vh magic", archive.NewEntry("bank.bin", vh0), ExtVH},
		{"seq magic", archive.NewEntry("bank", seq0), ExtSEQ},
		{"body", archive.NewEntry("bank", vb0), ExtVB},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Kind(tc.entry); got != tc.want {
				t.Errorf("Kind() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPack_ClassifiesByMagic(t *testing.T) {
	d := New()
	entries := []archive.Entry{
		archive.NewEntry("a", vb0),
		archive.NewEntry("b", seq0),
		archive.NewEntry("c", vh0),
	}
	packed, err := d.Pack(entries, archive.Options{Variant: VDA})
	require.NoError(t, err)
	assert.Equal(t, append(append(append([]byte{}, vb0...), vh0...), seq0...), packed)
}

func TestPack_Errors(t *testing.T) {
	d := New()

	_, err := d.Pack([]archive.Entry{archive.NewEntry("000.VB", vb0)}, archive.DefaultOptions())
	assert.Error(t, err)

	_, err = d.Pack([]archive.Entry{
		archive.NewEntry("000.VH", vh0),
		archive.NewEntry("001.VH", vh1),
		archive.NewEntry("002.VB", vb0),
	}, archive.Options{Variant: VDA})
	assert.Error(t, err)

	_, err = d.Pack(bankEntries(), archive.Options{Variant: "vxx"})
	assert.Error(t, err)
}

func TestUnpack_FormatErrors(t *testing.T) {
	d := New()
	packed, err := d.Pack(bankEntries(), archive.DefaultOptions())
	require.NoError(t, err)

	badMagic := append([]byte(nil), packed...)
	copy(badMagic[48:], "xxxx")

	badOffset := append([]byte(nil), packed...)
	binary.LittleEndian.PutUint32(badOffset[32:], 0x1000)

	testCases := []struct {
		name    string
		data    []byte
		variant archive.Variant
	}{
		{"short header", []byte{0x18, 0, 0, 0}, VDB},
		{"truncated data", packed[:len(packed)-1], VDB},
		{"vh without magic", badMagic, VDB},
		{"offset past data", badOffset, VDB},
		{"two vh", append(append(append([]byte{}, vb0...), vh0...), vh1...), VDA},
		{"seq before vh", append(append(append([]byte{}, vb0...), seq0...), vh0...), VDA},
		{"no vb", append([]byte{}, vh0...), VDA},
		{"nothing", vb0, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Unpack(tc.data, tc.variant)
			var formatErr *common.FormatError
			if !errors.As(err, &formatErr) {
				t.Errorf("Unpack() error = %v, want FormatError", err)
			}
		})
	}
}
