// Package lz provides tests for the sliding-window codec
package lz

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/hansbonini/galtools/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	random := make([]byte, 4096)
	rand.New(rand.NewSource(7)).Read(random)

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"single byte", []byte{0x42}},
		{"no repeats", []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"run", bytes.Repeat([]byte{0xAA}, 1000)},
		{"text", []byte("the quick brown fox jumps over the lazy dog, the quick brown fox")},
		{"random", random},
		{"exact group", bytes.Repeat([]byte{1, 2}, 8)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			compressed, err := Compress(tc.data)
			require.NoError(t, err)

			result, err := Decompress(compressed)
			require.NoError(t, err)
			assert.Equal(t, tc.data, result)
		})
	}
}

func TestCompress_UsesReferences(t *testing.T) {
	data := bytes.Repeat([]byte("ABCD"), 200)
	compressed, err := Compress(data)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(data)/4)
}

func TestDecompress_Literals(t *testing.T) {
	// 3 bytes, one flag word with all literal bits
	frame := []byte{3, 0, 0, 0, 0x00, 0x00, 'a', 'b', 'c'}
	result, err := Decompress(frame)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), result)
}

func TestDecompress_OverlappingReference(t *testing.T) {
	// literal 'x', then reference distance 1 length 4
	frame := []byte{5, 0, 0, 0, 0x02, 0x00, 'x', 1, 4}
	result, err := Decompress(frame)
	require.NoError(t, err)
	assert.Equal(t, []byte("xxxxx"), result)
}

func TestDecompress_Corrupt(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"short header", []byte{1, 0}},
		{"missing flags", []byte{1, 0, 0, 0}},
		{"missing literal", []byte{2, 0, 0, 0, 0, 0, 'a'}},
		{"zero distance", []byte{4, 0, 0, 0, 0x01, 0x00, 0, 4}},
		{"distance past output", []byte{4, 0, 0, 0, 0x02, 0x00, 'a', 2, 3}},
		{"truncated reference", []byte{4, 0, 0, 0, 0x02, 0x00, 'a', 1}},
		{"declared length too large", []byte{0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x00, 'a'}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decompress(tc.data)
			require.Error(t, err)

			var corrupt *common.CorruptDataError
			assert.True(t, errors.As(err, &corrupt), "Decompress() error = %v, want CorruptDataError", err)
		})
	}
}

func TestFindBestMatch(t *testing.T) {
	data := []byte("abcabcabc")
	distance, length := findBestMatch(data, 3)
	assert.Equal(t, 3, distance)
	assert.Equal(t, 6, length)

	distance, length = findBestMatch(data, 0)
	assert.Equal(t, 0, distance)
	assert.Equal(t, 0, length)
}
