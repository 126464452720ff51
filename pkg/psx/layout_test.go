// Package psx_test provides tests for image layout and verification
package psx_test

import (
	"bytes"
	"testing"

	"github.com/hansbonini/galtools/pkg/psx"
	"github.com/hansbonini/galtools/pkg/psx/psxtest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImage_Layout(t *testing.T) {
	_, img := openFixture(t, psx.FormatMode2)

	want := []psx.Region{
		{Kind: psx.RegionSystem, Extent: psx.Extent{Start: 0, Count: 16}},
		{Kind: psx.RegionDescriptors, Extent: psx.Extent{Start: 16, Count: 2}},
		{Kind: psx.RegionPathTable, Extent: psx.Extent{Start: 18, Count: 1}, Path: "L"},
		{Kind: psx.RegionPathTable, Extent: psx.Extent{Start: 19, Count: 1}, Path: "M"},
		{Kind: psx.RegionDirectory, Extent: psx.Extent{Start: 20, Count: 1}, Path: "/"},
		{Kind: psx.RegionDirectory, Extent: psx.Extent{Start: 21, Count: 1}, Path: "/DATA"},
		{Kind: psx.RegionFile, Extent: psx.Extent{Start: 22, Count: 1}, Path: "SYSTEM.CNF"},
		{Kind: psx.RegionFile, Extent: psx.Extent{Start: 23, Count: 1}, Path: "A.BIN"},
		{Kind: psx.RegionFile, Extent: psx.Extent{Start: 24, Count: 2}, Path: "B.BIN"},
		{Kind: psx.RegionFile, Extent: psx.Extent{Start: 26, Count: 1}, Path: "DATA/C.BIN"},
		{Kind: psx.RegionFree, Extent: psx.Extent{Start: 27, Count: 4}},
	}
	assert.Equal(t, want, img.Layout())
	assert.Equal(t, []psx.Extent{{Start: 27, Count: 4}}, img.FreeSectors())
}

func TestImage_SkippedRecordKeepsItsSectors(t *testing.T) {
	fs := afero.NewMemMapFs()
	built := psxtest.MustBuild(t, psxtest.Options{Format: psx.FormatCooked, Files: fixtureFiles(), FreeSectors: 4})

	// Give A.BIN a name the reader refuses
	root := built.Data[20*psx.CD_DATA_SIZE : 21*psx.CD_DATA_SIZE]
	at := bytes.Index(root, []byte("A.BIN;1"))
	require.GreaterOrEqual(t, at, 0)
	root[at] = '*'
	require.NoError(t, afero.WriteFile(fs, "/disc.iso", built.Data, 0644))

	img := reopen(t, fs, "/disc.iso")
	_, err := img.Lookup("A.BIN")
	assert.Error(t, err)

	assert.Contains(t, img.Layout(), psx.Region{Kind: psx.RegionUnlisted, Extent: psx.Extent{Start: 23, Count: 1}, Path: `"*.BIN;1"`})
	assert.Equal(t, []psx.Extent{{Start: 27, Count: 4}}, img.FreeSectors())
}

func TestImage_FreeSpaceStopsAtVolumeEnd(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "/disc.bin", psxtest.Options{Format: psx.FormatMode2, Files: fixtureFiles(), FreeSectors: 2, Padding: 10})
	img := reopen(t, fs, "/disc.bin")

	assert.Equal(t, int64(39), img.TotalSectors())
	assert.Equal(t, []psx.Extent{{Start: 27, Count: 2}}, img.FreeSectors())
}

func TestImage_Verify(t *testing.T) {
	fs := afero.NewMemMapFs()
	built := psxtest.MustBuild(t, psxtest.Options{Format: psx.FormatMode2, Files: fixtureFiles()})

	// Damage the payload of A.BIN
	built.Data[23*psx.CD_SECTOR_SIZE+100] ^= 0x01
	require.NoError(t, afero.WriteFile(fs, "/disc.bin", built.Data, 0644))

	img := reopen(t, fs, "/disc.bin")
	report, err := img.Verify()
	require.NoError(t, err)
	assert.Equal(t, img.TotalSectors(), report.Checked)
	assert.Equal(t, []int64{23}, report.Invalid)
	assert.False(t, report.OK())
}

func TestImage_VerifyCooked(t *testing.T) {
	_, img := openFixture(t, psx.FormatCooked)
	report, err := img.Verify()
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Checked)
	assert.Empty(t, report.PathTable)
	assert.True(t, report.OK())
}

func TestImage_VerifyPathTable(t *testing.T) {
	fs := afero.NewMemMapFs()
	built := psxtest.MustBuild(t, psxtest.Options{Format: psx.FormatCooked, Files: fixtureFiles()})

	// The DATA entry follows the 10-byte root entry of the L table at sector 18
	built.Data[18*psx.CD_DATA_SIZE+12] = 25
	require.NoError(t, afero.WriteFile(fs, "/disc.iso", built.Data, 0644))

	img := reopen(t, fs, "/disc.iso")
	report, err := img.Verify()
	require.NoError(t, err)
	assert.Empty(t, report.Invalid)
	assert.Equal(t, []string{"/DATA at sector 25: directory record points to sector 21"}, report.PathTable)
	assert.False(t, report.OK())
}
