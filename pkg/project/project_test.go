// Package project provides tests for the patch pipeline
package project

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/archive/cdb"
	"github.com/hansbonini/galtools/pkg/archive/msgdb"
	"github.com/hansbonini/galtools/pkg/common"
	"github.com/hansbonini/galtools/pkg/psx"
	"github.com/hansbonini/galtools/pkg/psx/psxtest"
	"github.com/hansbonini/galtools/pkg/sniff"
	digest "github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	imagePath   = "/disc/galerians.bin"
	projectRoot = "/work/galerians"
)

var (
	systemCNF = []byte("BOOT = cdrom:\\SLUS_010.98;1\r\nTCB = 4\r\n")
	readme    = []byte("Galerians patch test.\n")
)

func messages(t *testing.T, lines ...string) []byte {
	t.Helper()
	entries := make([]archive.Entry, len(lines))
	for i, line := range lines {
		entries[i] = archive.NewEntry(archive.EntryName(i, ""), []byte(line))
	}
	data, err := msgdb.New().Pack(entries, archive.Options{Variant: msgdb.Latin, Placeholders: true})
	require.NoError(t, err)
	return data
}

func setup(t *testing.T) (afero.Fs, *psx.Image) {
	t.Helper()
	fs := afero.NewMemMapFs()
	built := psxtest.MustBuild(t, psxtest.Options{
		Format: psx.FormatMode2,
		Files: []psxtest.File{
			{Path: "SYSTEM.CNF", Data: systemCNF},
			{Path: "README.TXT", Data: readme},
			{Path: "DATA/MSG.DAT", Data: messages(t, "Rion", "Lilia", "Lem")},
		},
		FreeSectors: 4,
	})
	require.NoError(t, afero.WriteFile(fs, imagePath, built.Data, 0644))

	img, err := psx.OpenFs(fs, imagePath)
	require.NoError(t, err)
	t.Cleanup(func() { img.Close() })
	return fs, img
}

// touch moves a file's modification time past any recorded baseline
func touch(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	later := time.Now().Add(time.Hour)
	require.NoError(t, fs.Chtimes(path, later, later))
}

func edit(t *testing.T, fs afero.Fs, path string, data []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, data, 0644))
	touch(t, fs, path)
}

func TestCreate_Packed(t *testing.T) {
	fs, img := setup(t)

	p, result, err := Create(context.Background(), fs, img, projectRoot, Options{Workers: 2})
	require.NoError(t, err)
	assert.NoError(t, result.Err())
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, imagePath, p.Source)
	require.Len(t, p.Files, 3)

	// Sorted by disc path
	assert.Equal(t, "DATA/MSG.DAT", p.Files[0].Path)
	assert.Equal(t, "README.TXT", p.Files[1].Path)
	assert.Equal(t, "SYSTEM.CNF", p.Files[2].Path)

	rec := p.Files[2]
	assert.Equal(t, FormPacked, rec.Form)
	assert.Equal(t, "files/SYSTEM.CNF", rec.Local)
	assert.Equal(t, digest.FromBytes(systemCNF), rec.Digest)

	got, err := afero.ReadFile(fs, filepath.Join(projectRoot, "files", "SYSTEM.CNF"))
	require.NoError(t, err)
	assert.Equal(t, systemCNF, got)

	loaded, err := Load(fs, projectRoot)
	require.NoError(t, err)
	assert.Equal(t, p.ID, loaded.ID)
	assert.Equal(t, len(p.Files), len(loaded.Files))
	assert.True(t, p.Files[0].Baseline.Equal(loaded.Files[0].Baseline))

	changed, err := loaded.Diff()
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestCreate_Unpacked(t *testing.T) {
	fs, img := setup(t)

	p, _, err := Create(context.Background(), fs, img, projectRoot, Options{Unpack: true})
	require.NoError(t, err)

	i, ok := p.record("DATA/MSG.DAT")
	require.True(t, ok)
	rec := p.Files[i]
	assert.Equal(t, FormUnpacked, rec.Form)
	assert.Equal(t, msgdb.Name, rec.Format)
	assert.Equal(t, msgdb.Latin, rec.Variant)
	assert.Equal(t, "files/DATA/MSG.DAT.d", rec.Local)

	dir := filepath.Join(projectRoot, "files", "DATA", "MSG.DAT.d")
	got, err := afero.ReadFile(fs, filepath.Join(dir, "001"))
	require.NoError(t, err)
	assert.Equal(t, []byte("Lilia"), got)
	exists, err := afero.Exists(fs, filepath.Join(dir, archive.IndexFile))
	require.NoError(t, err)
	assert.True(t, exists)

	// Plain files stay packed
	i, _ = p.record("README.TXT")
	assert.Equal(t, FormPacked, p.Files[i].Form)

	changed, err := p.Diff()
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestCreate_Existing(t *testing.T) {
	fs, img := setup(t)
	_, _, err := Create(context.Background(), fs, img, projectRoot, Options{})
	require.NoError(t, err)

	_, _, err = Create(context.Background(), fs, img, projectRoot, Options{})
	assert.Error(t, err)
}

// claimsCDB recognises everything as a CDB, which only real CDBs unpack as
type claimsCDB struct{}

func (claimsCDB) Name() string { return cdb.Name }

func (claimsCDB) Detect([]byte) (archive.Variant, bool) { return cdb.Sector, true }

func TestCreate_UnpackFallback(t *testing.T) {
	fs, img := setup(t)

	opts := Options{Unpack: true, Sniffer: sniff.New(claimsCDB{})}
	p, result, err := Create(context.Background(), fs, img, projectRoot, opts)
	require.NoError(t, err)
	assert.Len(t, result.Failed, 3)
	assert.Error(t, result.Err())

	for _, rec := range p.Files {
		assert.Equal(t, FormPacked, rec.Form, rec.Path)
	}
	got, err := afero.ReadFile(fs, filepath.Join(projectRoot, "files", "README.TXT"))
	require.NoError(t, err)
	assert.Equal(t, readme, got)
}

func TestCreate_Strict(t *testing.T) {
	fs, img := setup(t)

	opts := Options{Unpack: true, Strict: true, Workers: 1, Sniffer: sniff.New(claimsCDB{})}
	_, _, err := Create(context.Background(), fs, img, projectRoot, opts)
	assert.Error(t, err)

	exists, err := afero.Exists(fs, filepath.Join(projectRoot, SidecarFile))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDiff(t *testing.T) {
	fs, img := setup(t)
	p, _, err := Create(context.Background(), fs, img, projectRoot, Options{Unpack: true})
	require.NoError(t, err)

	touch(t, fs, filepath.Join(projectRoot, "files", "README.TXT"))
	// Any file inside an unpacked container marks it changed
	touch(t, fs, filepath.Join(projectRoot, "files", "DATA", "MSG.DAT.d", "002"))

	changed, err := p.Diff()
	require.NoError(t, err)
	assert.Equal(t, []string{"DATA/MSG.DAT", "README.TXT"}, changed)

	require.NoError(t, fs.Remove(filepath.Join(projectRoot, "files", "SYSTEM.CNF")))
	_, err = p.Diff()
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	fs, img := setup(t)
	p, _, err := Create(context.Background(), fs, img, projectRoot, Options{Unpack: true})
	require.NoError(t, err)

	patched := []byte("BOOT = cdrom:\\GALERIAN.EXE;1\r\nTCB = 4\r\nEVENT = 10\r\n")
	edit(t, fs, filepath.Join(projectRoot, "files", "SYSTEM.CNF"), patched)
	edit(t, fs, filepath.Join(projectRoot, "files", "DATA", "MSG.DAT.d", "001"), []byte("Lilia Pascalle"))
	// Touched but identical
	touch(t, fs, filepath.Join(projectRoot, "files", "README.TXT"))

	report, err := p.Export(img, "/out/patched.bin")
	require.NoError(t, err)
	assert.Equal(t, []string{"DATA/MSG.DAT", "SYSTEM.CNF"}, report.Replaced)
	assert.Equal(t, []string{"README.TXT"}, report.Unchanged)
	require.NotNil(t, report.Flush)

	out, err := psx.OpenFs(fs, "/out/patched.bin")
	require.NoError(t, err)
	defer out.Close()

	got, err := out.ReadFile("SYSTEM.CNF")
	require.NoError(t, err)
	assert.Equal(t, patched, got)

	msgs, err := out.ReadFile("DATA/MSG.DAT")
	require.NoError(t, err)
	entries, err := msgdb.New().Unpack(msgs, msgdb.Latin)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []byte("Lilia Pascalle"), entries[1].Data)

	// Baselines moved forward and were persisted
	loaded, err := Load(fs, projectRoot)
	require.NoError(t, err)
	assert.Equal(t, "/out/patched.bin", loaded.LastOutput)
	assert.False(t, loaded.LastExport.IsZero())
	changed, err := loaded.Diff()
	require.NoError(t, err)
	assert.Empty(t, changed)

	i, _ := loaded.record("SYSTEM.CNF")
	assert.Equal(t, digest.FromBytes(patched), loaded.Files[i].Digest)
}

func TestExport_NothingChanged(t *testing.T) {
	fs, img := setup(t)
	p, _, err := Create(context.Background(), fs, img, projectRoot, Options{})
	require.NoError(t, err)

	report, err := p.Export(img, "/out/patched.bin")
	require.NoError(t, err)
	assert.Empty(t, report.Replaced)
	assert.Nil(t, report.Flush)

	exists, err := afero.Exists(fs, "/out/patched.bin")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExport_FailedFlushKeepsBaselines(t *testing.T) {
	fs, img := setup(t)
	p, _, err := Create(context.Background(), fs, img, projectRoot, Options{})
	require.NoError(t, err)

	before, err := afero.ReadFile(fs, filepath.Join(projectRoot, SidecarFile))
	require.NoError(t, err)

	// Larger than every free extent of the image
	edit(t, fs, filepath.Join(projectRoot, "files", "README.TXT"), make([]byte, 10*psx.CD_DATA_SIZE))

	_, err = p.Export(img, "/out/patched.bin")
	var spaceErr *common.InsufficientSpaceError
	require.True(t, errors.As(err, &spaceErr), "Export() error = %v", err)

	after, err := afero.ReadFile(fs, filepath.Join(projectRoot, SidecarFile))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, img.Pending())
	assert.Empty(t, p.LastOutput)

	changed, err := p.Diff()
	require.NoError(t, err)
	assert.Equal(t, []string{"README.TXT"}, changed)
}

func TestExport_Accumulates(t *testing.T) {
	fs, img := setup(t)
	p, _, err := Create(context.Background(), fs, img, projectRoot, Options{})
	require.NoError(t, err)
	assert.Equal(t, imagePath, p.ImagePath())

	first := []byte("BOOT = cdrom:\\GALERIAN.EXE;1\r\n")
	edit(t, fs, filepath.Join(projectRoot, "files", "SYSTEM.CNF"), first)
	_, err = p.Export(img, "/out/patched.bin")
	require.NoError(t, err)
	assert.Equal(t, "/out/patched.bin", p.ImagePath())

	// The second export starts from the first one's output
	next, err := p.OpenImage()
	require.NoError(t, err)
	defer next.Close()

	second := []byte("Patched twice.\n")
	edit(t, fs, filepath.Join(projectRoot, "files", "README.TXT"), second)
	_, err = p.Export(next, "/out/patched.bin")
	require.NoError(t, err)

	out, err := psx.OpenFs(fs, "/out/patched.bin")
	require.NoError(t, err)
	defer out.Close()
	got, err := out.ReadFile("SYSTEM.CNF")
	require.NoError(t, err)
	assert.Equal(t, first, got)
	got, err = out.ReadFile("README.TXT")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	// A vanished output falls back to the source image
	require.NoError(t, fs.Remove("/out/patched.bin"))
	assert.Equal(t, imagePath, p.ImagePath())
}

func TestExport_MissingOutputKeepsEarlierEdits(t *testing.T) {
	fs, img := setup(t)
	p, _, err := Create(context.Background(), fs, img, projectRoot, Options{})
	require.NoError(t, err)

	first := []byte("BOOT = cdrom:\\GALERIAN.EXE;1\r\n")
	edit(t, fs, filepath.Join(projectRoot, "files", "SYSTEM.CNF"), first)
	_, err = p.Export(img, "/out/patched.bin")
	require.NoError(t, err)

	require.NoError(t, fs.Remove("/out/patched.bin"))
	second := []byte("Patched after the output was lost.\n")
	edit(t, fs, filepath.Join(projectRoot, "files", "README.TXT"), second)

	// Reload so the rebase starts from the saved sidecar
	p, err = Load(fs, projectRoot)
	require.NoError(t, err)
	src, err := p.OpenImage()
	require.NoError(t, err)
	defer src.Close()

	report, err := p.Export(src, "/out/patched.bin")
	require.NoError(t, err)
	assert.Equal(t, []string{"README.TXT", "SYSTEM.CNF"}, report.Replaced)
	assert.Equal(t, []string{"DATA/MSG.DAT"}, report.Unchanged)

	out, err := psx.OpenFs(fs, "/out/patched.bin")
	require.NoError(t, err)
	defer out.Close()
	got, err := out.ReadFile("SYSTEM.CNF")
	require.NoError(t, err)
	assert.Equal(t, first, got)
	got, err = out.ReadFile("README.TXT")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	reloaded, err := Load(fs, projectRoot)
	require.NoError(t, err)
	assert.Equal(t, "/out/patched.bin", reloaded.LastOutput)
	changed, err := reloaded.Diff()
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestLoad_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Load(fs, projectRoot)
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, filepath.Join(projectRoot, SidecarFile),
		[]byte("id: x\nfiles:\n  - path: A.BIN\n    digest: md5:nope\n"), 0644))
	_, err = Load(fs, projectRoot)
	assert.Error(t, err)
}
