package project

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/common"
	"github.com/hansbonini/galtools/pkg/psx"
	"github.com/hansbonini/galtools/pkg/sniff"
	digest "github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
)

// Options control Create
type Options struct {
	// Unpack stores recognised containers as unpacked directories
	Unpack bool
	// All writes empty placeholder files for container gaps
	All bool
	// Workers bounds the batch pool; zero runs one worker per file
	Workers int
	// Strict aborts on the first file that fails
	Strict bool
	// Sniffer identifies containers; nil uses sniff.Default()
	Sniffer *sniff.Sniffer
}

// Create mirrors img under root and writes the project sidecar. Per-file
// unpack failures fall back to the packed form and are reported in the
// batch result.
func Create(ctx context.Context, fs afero.Fs, img *psx.Image, root string, opts Options) (*Project, *archive.BatchResult, error) {
	if _, err := fs.Stat(filepath.Join(root, SidecarFile)); err == nil {
		return nil, nil, fmt.Errorf("%s: project already exists in %s", common.ErrFailedToSaveProject, root)
	}
	if err := fs.MkdirAll(filepath.Join(root, FilesDir), 0755); err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", common.ErrFailedToCreateDirectory, root, err)
	}
	if opts.Sniffer == nil {
		opts.Sniffer = sniff.Default()
	}

	p := &Project{
		ID:      uuid.NewString(),
		Source:  img.Path(),
		Created: time.Now().UTC(),
		fs:      fs,
		root:    root,
	}

	var mu sync.Mutex
	unpacked := 0
	files := img.Files()
	items := make([]archive.BatchItem, 0, len(files))
	for _, entry := range files {
		items = append(items, archive.BatchItem{
			Name: entry.Path,
			Run: func(ctx context.Context) error {
				rec, err := p.mirror(img, entry, opts)
				if rec == nil {
					return err
				}

				mu.Lock()
				defer mu.Unlock()
				p.Files = append(p.Files, *rec)
				if rec.Form == FormUnpacked {
					unpacked++
				}
				return err
			},
		})
	}

	result, err := archive.Batch(ctx, items, archive.BatchOptions{Workers: opts.Workers, Strict: opts.Strict})
	if err != nil {
		return nil, result, err
	}
	if err := p.Save(); err != nil {
		return nil, result, err
	}

	common.LogInfo(common.InfoProjectCreated, root, len(p.Files), unpacked)
	return p, result, nil
}

// mirror writes one disc file into the working tree. When unpacking fails
// the file is still stored packed and both the record and the error are
// returned.
func (p *Project) mirror(img *psx.Image, entry psx.FileEntry, opts Options) (*FileRecord, error) {
	data, err := img.ReadFile(entry.Path)
	if err != nil {
		return nil, err
	}

	var unpackErr error
	if opts.Unpack {
		result := opts.Sniffer.Sniff(data)
		if sniff.Unpackable(result) {
			rec, err := p.storeUnpacked(entry.Path, data, result, opts.All)
			if err == nil {
				return rec, nil
			}
			common.LogWarn(common.WarnUnpackFallback, entry.Path, err)
			unpackErr = err
		}
	}

	rec, err := p.storePacked(entry.Path, data)
	if err != nil {
		return nil, err
	}
	return rec, unpackErr
}

func (p *Project) storePacked(discPath string, data []byte) (*FileRecord, error) {
	sum := digest.FromBytes(data)
	rec := FileRecord{
		Path:   discPath,
		Local:  path.Join(FilesDir, discPath),
		Form:   FormPacked,
		Digest: sum,
		Origin: sum,
	}

	local := p.localPath(rec)
	if err := p.fs.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return nil, fmt.Errorf("%s %s: %w", common.ErrFailedToCreateDirectory, local, err)
	}
	if err := afero.WriteFile(p.fs, local, data, 0644); err != nil {
		return nil, fmt.Errorf("%s %s: %w", common.ErrFailedToWriteFile, local, err)
	}

	mtime, err := p.modTime(rec)
	if err != nil {
		return nil, err
	}
	rec.Baseline = mtime
	return &rec, nil
}

// storeUnpacked exports the entries of a container and takes the baseline
// digest from a repack of the exported tree, so an untouched directory
// never counts as changed
func (p *Project) storeUnpacked(discPath string, data []byte, result sniff.Result, all bool) (*FileRecord, error) {
	driver, err := sniff.Lookup(result.Format)
	if err != nil {
		return nil, err
	}
	entries, err := driver.Unpack(data, result.Variant)
	if err != nil {
		return nil, err
	}

	rec := FileRecord{
		Path:    discPath,
		Local:   path.Join(FilesDir, discPath+UnpackedSuffix),
		Form:    FormUnpacked,
		Format:  result.Format,
		Variant: result.Variant,
	}
	local := p.localPath(rec)

	processor := archive.NewProcessor(p.fs)
	if _, err := processor.Export(local, driver.Name(), result.Variant, entries, all); err != nil {
		p.fs.RemoveAll(local)
		return nil, err
	}

	repacked, err := p.content(rec)
	if err != nil {
		p.fs.RemoveAll(local)
		return nil, err
	}
	rec.Digest = digest.FromBytes(repacked)
	rec.Origin = rec.Digest

	mtime, err := p.modTime(rec)
	if err != nil {
		return nil, err
	}
	rec.Baseline = mtime

	common.LogDebug(common.DebugUnpackedAsArchive, discPath, result.Format, result.Variant)
	return &rec, nil
}
