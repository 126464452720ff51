// Package compress provides tests for the codec registry and file processor
package compress

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"dictionary", "lz"} {
		codec, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, codec.Name())
	}

	_, err := Lookup("zip")
	assert.Error(t, err)
	assert.Equal(t, []string{"dictionary", "lz"}, Names())
}

func TestProcessor_FileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.bin")
	packed := filepath.Join(dir, "in.cmp")
	output := filepath.Join(dir, "out.bin")

	data := []byte("PSX PSX PSX PSX PSX PSX PSX PSX PSX PSX")
	require.NoError(t, os.WriteFile(input, data, 0644))

	for _, method := range Names() {
		t.Run(method, func(t *testing.T) {
			p, err := NewProcessor(method)
			require.NoError(t, err)

			require.NoError(t, p.CompressFile(input, packed))
			require.NoError(t, p.DecompressFile(packed, output))

			result, err := os.ReadFile(output)
			require.NoError(t, err)
			assert.Equal(t, data, result)
		})
	}
}

func TestProcessor_CorruptInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "bad.cmp")
	require.NoError(t, os.WriteFile(input, []byte{0xFF, 0xFF, 0, 0, 1}, 0644))

	p, err := NewProcessor("lz")
	require.NoError(t, err)
	assert.Error(t, p.DecompressFile(input, filepath.Join(dir, "out")))
}
