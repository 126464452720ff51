package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hansbonini/galtools/pkg/common"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// IndexFile is the sidecar written next to unpacked entries
const IndexFile = "index.yaml"

// Index records what is needed to repack an unpacked directory
type Index struct {
	Format  string       `yaml:"format"`
	Variant Variant      `yaml:"variant"`
	Entries []IndexEntry `yaml:"entries"`
}

// IndexEntry describes one slot of the container
type IndexEntry struct {
	Name    string         `yaml:"name"`
	Present bool           `yaml:"present"`
	Attrs   map[string]int `yaml:"attrs,omitempty"`
}

// UnpackOptions control Processor.Unpack
type UnpackOptions struct {
	Variant Variant
	// All writes empty placeholder files for gaps
	All bool
}

// Processor moves containers between packed files and unpacked directories
type Processor struct {
	fs afero.Fs
}

// NewProcessor creates a processor working on fs
func NewProcessor(fs afero.Fs) *Processor {
	return &Processor{fs: fs}
}

// NewOsProcessor creates a processor on the local filesystem
func NewOsProcessor() *Processor {
	return NewProcessor(afero.NewOsFs())
}

// Fs returns the filesystem the processor works on
func (p *Processor) Fs() afero.Fs {
	return p.fs
}

// UnpackFile unpacks the container at inputFile into outputDir
func (p *Processor) UnpackFile(d Driver, inputFile, outputDir string, opts UnpackOptions) (*Index, error) {
	data, err := afero.ReadFile(p.fs, inputFile)
	if err != nil {
		return nil, common.WrapError(common.ErrFailedToReadFile, err)
	}
	return p.UnpackBytes(d, data, outputDir, opts)
}

// UnpackBytes unpacks data into outputDir
func (p *Processor) UnpackBytes(d Driver, data []byte, outputDir string, opts UnpackOptions) (*Index, error) {
	variant, err := DetectVariant(d, data, opts.Variant)
	if err != nil {
		return nil, err
	}

	entries, err := d.Unpack(data, variant)
	if err != nil {
		return nil, common.WrapError(common.ErrFailedToUnpack, err)
	}

	index, err := p.Export(outputDir, d.Name(), variant, entries, opts.All)
	if err != nil {
		return nil, err
	}

	common.LogInfo(common.InfoArchiveUnpacked, CountPresent(entries), d.Name(), variant, outputDir)
	return index, nil
}

// Export writes entries and the index sidecar into dir
func (p *Processor) Export(dir, format string, variant Variant, entries []Entry, all bool) (*Index, error) {
	if err := p.fs.MkdirAll(dir, 0755); err != nil {
		return nil, common.WrapError(common.ErrFailedToCreateDirectory, err)
	}

	index := &Index{Format: format, Variant: variant, Entries: make([]IndexEntry, len(entries))}
	for i, entry := range entries {
		if err := checkEntryName(entry.Name); err != nil {
			return nil, err
		}
		index.Entries[i] = IndexEntry{Name: entry.Name, Present: entry.Present, Attrs: entry.Attrs}
		if !entry.Present && !all {
			continue
		}

		path := filepath.Join(dir, entry.Name)
		var data []byte
		if entry.Present {
			data = entry.Data
		}
		if err := afero.WriteFile(p.fs, path, data, 0644); err != nil {
			return nil, common.WrapError(common.ErrFailedToWriteFile, err)
		}
		common.LogDebug(common.DebugEntryExported, i, path, len(data))
	}

	if err := p.WriteIndex(dir, index); err != nil {
		return nil, err
	}
	return index, nil
}

// WriteIndex stores the index sidecar in dir
func (p *Processor) WriteIndex(dir string, index *Index) error {
	out, err := yaml.Marshal(index)
	if err != nil {
		return common.WrapError(common.ErrFailedToWriteIndex, err)
	}
	if err := afero.WriteFile(p.fs, filepath.Join(dir, IndexFile), out, 0644); err != nil {
		return common.WrapError(common.ErrFailedToWriteIndex, err)
	}
	return nil
}

// ReadIndex loads the index sidecar from dir
func (p *Processor) ReadIndex(dir string) (*Index, error) {
	raw, err := afero.ReadFile(p.fs, filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, common.WrapError(common.ErrFailedToReadIndex, err)
	}
	var index Index
	if err := yaml.Unmarshal(raw, &index); err != nil {
		return nil, common.WrapError(common.ErrFailedToReadIndex, err)
	}
	return &index, nil
}

// Import reads the entries of an unpacked directory. Without an index every
// regular file is taken as a present entry in name order.
func (p *Processor) Import(dir string) (*Index, []Entry, error) {
	index, err := p.ReadIndex(dir)
	if err != nil {
		if _, statErr := p.fs.Stat(filepath.Join(dir, IndexFile)); !os.IsNotExist(statErr) {
			return nil, nil, err
		}
		if index, err = p.scanIndex(dir); err != nil {
			return nil, nil, err
		}
	}

	entries := make([]Entry, len(index.Entries))
	for i, item := range index.Entries {
		if err := checkEntryName(item.Name); err != nil {
			return nil, nil, err
		}
		entries[i] = Entry{Name: item.Name, Present: item.Present, Attrs: item.Attrs}
		path := filepath.Join(dir, item.Name)
		if !item.Present {
			// a filled-in placeholder turns the gap into an entry
			info, err := p.fs.Stat(path)
			if err != nil || info.IsDir() || info.Size() == 0 {
				continue
			}
			common.LogDebug(common.DebugPlaceholderFilled, i, path, info.Size())
			entries[i].Present = true
		}
		data, err := afero.ReadFile(p.fs, path)
		if err != nil {
			return nil, nil, common.WrapError(common.ErrFailedToReadFile, err)
		}
		entries[i].Data = data
	}
	return index, entries, nil
}

// checkEntryName rejects names that would leave the unpacked directory
func checkEntryName(name string) error {
	if name == "" || name == "." || name == ".." || name == IndexFile ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return common.WrapErrorf(common.ErrInvalidEntryName, "%q", name)
	}
	return nil
}

func (p *Processor) scanIndex(dir string) (*Index, error) {
	infos, err := afero.ReadDir(p.fs, dir)
	if err != nil {
		return nil, common.WrapError(common.ErrFailedToReadFile, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	index := &Index{}
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		index.Entries = append(index.Entries, IndexEntry{Name: info.Name(), Present: true})
	}
	return index, nil
}

// PackDir builds a container from an unpacked directory. A variant in opts
// overrides the one recorded in the index.
func (p *Processor) PackDir(d Driver, dir string, opts Options) ([]byte, *Index, error) {
	index, entries, err := p.Import(dir)
	if err != nil {
		return nil, nil, err
	}
	if index.Format != "" && index.Format != d.Name() {
		return nil, nil, fmt.Errorf("%s was unpacked as %s, not %s", dir, index.Format, d.Name())
	}
	if opts.Variant == "" {
		opts.Variant = index.Variant
	}

	data, err := d.Pack(entries, opts)
	if err != nil {
		return nil, nil, common.WrapError(common.ErrFailedToPack, err)
	}
	return data, index, nil
}

// PackFile packs dir into outputFile
func (p *Processor) PackFile(d Driver, dir, outputFile string, opts Options) error {
	data, index, err := p.PackDir(d, dir, opts)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(p.fs, outputFile, data, 0644); err != nil {
		return common.WrapError(common.ErrFailedToWriteFile, err)
	}

	variant := opts.Variant
	if variant == "" {
		variant = index.Variant
	}
	common.LogInfo(common.InfoArchivePacked, len(index.Entries), d.Name(), variant, outputFile, len(data))
	return nil
}
