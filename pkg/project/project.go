// Package project implements the patch pipeline: a disc image is mirrored
// into a working tree, edited there, and exported back into a patched image.
//
// A project directory holds project.yaml and a files/ tree. Containers the
// sniffer recognises can be stored unpacked as <name>.d/ directories with
// an index.yaml, so their entries can be edited one by one.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/common"
	"github.com/hansbonini/galtools/pkg/psx"
	"github.com/hansbonini/galtools/pkg/sniff"
	digest "github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	// SidecarFile holds the project state
	SidecarFile = "project.yaml"
	// FilesDir is the mirrored disc tree below the project root
	FilesDir = "files"
	// UnpackedSuffix marks the directory of an unpacked container
	UnpackedSuffix = ".d"
)

// Form tells how a file is stored in the working tree
type Form string

const (
	FormPacked   Form = "packed"
	FormUnpacked Form = "unpacked"
)

// FileRecord tracks one file of the disc
type FileRecord struct {
	Path     string          `yaml:"path"`  // logical disc path
	Local    string          `yaml:"local"` // slash separated, relative to the project root
	Form     Form            `yaml:"form"`
	Format   string          `yaml:"format,omitempty"`
	Variant  archive.Variant `yaml:"variant,omitempty"`
	Baseline time.Time       `yaml:"baseline"`
	Digest   digest.Digest   `yaml:"digest"`
	Origin   digest.Digest   `yaml:"origin,omitempty"` // digest of the content on the source image
}

// Project is a loaded project sidecar
type Project struct {
	ID         string       `yaml:"id"`
	Source     string       `yaml:"source"`
	Created    time.Time    `yaml:"created"`
	LastExport time.Time    `yaml:"last_export,omitempty"`
	LastOutput string       `yaml:"last_output,omitempty"`
	Files      []FileRecord `yaml:"files"`

	fs   afero.Fs
	root string
}

// Load reads the project rooted at root
func Load(fs afero.Fs, root string) (*Project, error) {
	raw, err := afero.ReadFile(fs, filepath.Join(root, SidecarFile))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", common.ErrFailedToLoadProject, err)
	}

	p := &Project{}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%s: %w", common.ErrFailedToLoadProject, err)
	}
	for _, rec := range p.Files {
		if err := rec.Digest.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", common.ErrFailedToLoadProject, rec.Path, err)
		}
		if rec.Origin == "" {
			continue
		}
		if err := rec.Origin.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", common.ErrFailedToLoadProject, rec.Path, err)
		}
	}

	p.fs = fs
	p.root = root
	return p, nil
}

// Root returns the project directory
func (p *Project) Root() string {
	return p.root
}

// Save writes the sidecar. The previous sidecar stays in place until the
// new one is complete.
func (p *Project) Save() error {
	sort.Slice(p.Files, func(i, j int) bool { return p.Files[i].Path < p.Files[j].Path })

	out, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("%s: %w", common.ErrFailedToSaveProject, err)
	}

	target := filepath.Join(p.root, SidecarFile)
	tmp := target + ".tmp"
	if err := afero.WriteFile(p.fs, tmp, out, 0644); err != nil {
		return fmt.Errorf("%s: %w", common.ErrFailedToSaveProject, err)
	}
	if err := p.fs.Rename(tmp, target); err != nil {
		p.fs.Remove(tmp)
		return fmt.Errorf("%s: %w", common.ErrFailedToSaveProject, err)
	}
	return nil
}

// localPath resolves a record's working tree path
func (p *Project) localPath(rec FileRecord) string {
	return filepath.Join(p.root, filepath.FromSlash(rec.Local))
}

// ImagePath returns the image the next export starts from: the last output
// when it still exists, otherwise the original source
func (p *Project) ImagePath() string {
	if p.LastOutput == "" {
		return p.Source
	}
	if _, err := p.fs.Stat(p.LastOutput); err != nil {
		common.LogWarn(common.WarnProjectOutputGone, p.LastOutput, p.Source)
		return p.Source
	}
	return p.LastOutput
}

// OpenImage opens the image returned by ImagePath. When that is the source
// because the last output is gone, the project is rebased on the source so
// the next export carries every edit made since creation.
func (p *Project) OpenImage() (*psx.Image, error) {
	path := p.ImagePath()
	img, err := psx.OpenFs(p.fs, path)
	if err != nil {
		return nil, err
	}
	if p.LastOutput != "" && path != p.LastOutput {
		p.rebase()
	}
	return img, nil
}

// rebase resets every record to its source state. Nothing is saved until
// the next export succeeds.
func (p *Project) rebase() {
	for i := range p.Files {
		p.Files[i].Baseline = time.Time{}
		p.Files[i].Digest = p.Files[i].Origin
	}
	p.LastOutput = ""
}

// modTime returns the modification time of a record's local copy. For an
// unpacked container it is the newest time found in its directory.
func (p *Project) modTime(rec FileRecord) (time.Time, error) {
	local := p.localPath(rec)
	if rec.Form != FormUnpacked {
		info, err := p.fs.Stat(local)
		if err != nil {
			return time.Time{}, err
		}
		return info.ModTime(), nil
	}

	var newest time.Time
	err := afero.Walk(p.fs, local, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return newest, err
}

// Diff returns the disc paths whose local copy changed after its baseline
func (p *Project) Diff() ([]string, error) {
	var changed []string
	for _, rec := range p.Files {
		mtime, err := p.modTime(rec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rec.Path, err)
		}
		if mtime.After(rec.Baseline) {
			common.LogDebug(common.DebugFileChanged, rec.Path, mtime.Format(time.RFC3339Nano), rec.Baseline.Format(time.RFC3339Nano))
			changed = append(changed, rec.Path)
		}
	}
	return changed, nil
}

// content returns the bytes a record contributes to the disc, repacking
// unpacked containers with their recorded driver and variant
func (p *Project) content(rec FileRecord) ([]byte, error) {
	local := p.localPath(rec)
	if rec.Form != FormUnpacked {
		data, err := afero.ReadFile(p.fs, local)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", common.ErrFailedToReadFile, local, err)
		}
		return data, nil
	}

	driver, err := sniff.Lookup(rec.Format)
	if err != nil {
		return nil, err
	}
	data, _, err := archive.NewProcessor(p.fs).PackDir(driver, local, archive.Options{Variant: rec.Variant, Placeholders: true})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rec.Path, err)
	}
	return data, nil
}

func (p *Project) record(path string) (int, bool) {
	for i, rec := range p.Files {
		if rec.Path == path {
			return i, true
		}
	}
	return 0, false
}
