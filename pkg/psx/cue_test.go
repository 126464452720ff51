// Package psx provides tests for cue sheet handling
package psx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const galeriansCue = `FILE "Galerians (Disc 1).bin" BINARY
  TRACK 01 MODE2/2352
    INDEX 01 00:00:00
  TRACK 02 AUDIO
    PREGAP 00:02:00
    INDEX 01 52:10:44
`

func TestParseCue(t *testing.T) {
	sheet, err := ParseCue(strings.NewReader(galeriansCue))
	require.NoError(t, err)

	assert.Equal(t, "Galerians (Disc 1).bin", sheet.File)
	assert.Equal(t, "BINARY", sheet.FileType)
	assert.Equal(t, []CueTrack{{Number: 1, Mode: "MODE2/2352"}, {Number: 2, Mode: "AUDIO"}}, sheet.Tracks)

	track, format, err := sheet.DataTrack()
	require.NoError(t, err)
	assert.Equal(t, 1, track.Number)
	assert.Equal(t, FormatMode2, format)
}

func TestParseCue_FirstFileOnly(t *testing.T) {
	cue := "FILE \"track1.bin\" BINARY\r\n  TRACK 01 MODE1/2352\r\n    INDEX 01 00:00:00\r\n" +
		"FILE \"track2.bin\" BINARY\r\n  TRACK 02 AUDIO\r\n    INDEX 01 00:00:00\r\n"

	sheet, err := ParseCue(strings.NewReader(cue))
	require.NoError(t, err)
	assert.Equal(t, "track1.bin", sheet.File)
	require.Len(t, sheet.Tracks, 1)

	_, format, err := sheet.DataTrack()
	require.NoError(t, err)
	assert.Equal(t, FormatMode1, format)
}

func TestParseCue_Errors(t *testing.T) {
	testCases := []struct {
		name string
		cue  string
	}{
		{"empty", ""},
		{"no track", "FILE \"a.bin\" BINARY\n"},
		{"track before file", "TRACK 01 MODE2/2352\nFILE \"a.bin\" BINARY\n"},
		{"bad track number", "FILE \"a.bin\" BINARY\nTRACK one MODE2/2352\n"},
		{"unterminated quote", "FILE \"a.bin BINARY\nTRACK 01 MODE2/2352\n"},
		{"missing mode", "FILE \"a.bin\" BINARY\nTRACK 01\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseCue(strings.NewReader(tc.cue)); err == nil {
				t.Errorf("ParseCue() expected error")
			}
		})
	}
}

func TestCueTrack_SectorFormat(t *testing.T) {
	testCases := []struct {
		mode    string
		want    SectorFormat
		wantErr bool
	}{
		{"MODE2/2352", FormatMode2, false},
		{"mode1/2352", FormatMode1, false},
		{"MODE1/2048", FormatCooked, false},
		{"MODE2/2048", FormatCooked, false},
		{"AUDIO", FormatCooked, true},
		{"MODE2/2336", FormatCooked, true},
	}

	for _, tc := range testCases {
		t.Run(tc.mode, func(t *testing.T) {
			got, err := CueTrack{Number: 1, Mode: tc.mode}.SectorFormat()
			if (err != nil) != tc.wantErr {
				t.Fatalf("SectorFormat() error = %v, wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && got != tc.want {
				t.Errorf("SectorFormat() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCueSheet_Rewrite(t *testing.T) {
	sheet, err := ParseCue(strings.NewReader(galeriansCue))
	require.NoError(t, err)

	out := sheet.Rewrite("patched.bin")
	assert.True(t, strings.HasPrefix(out, "FILE \"patched.bin\" BINARY\n"))
	assert.Contains(t, out, "  TRACK 02 AUDIO\n")

	// The rewritten sheet parses back
	again, err := ParseCue(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "patched.bin", again.File)
	assert.Equal(t, sheet.Tracks, again.Tracks)
}

func TestNewCue(t *testing.T) {
	sheet, err := ParseCue(strings.NewReader(NewCue("disc.bin", FormatMode2)))
	require.NoError(t, err)
	assert.Equal(t, "disc.bin", sheet.File)
	_, format, err := sheet.DataTrack()
	require.NoError(t, err)
	assert.Equal(t, FormatMode2, format)
}
