package psx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hansbonini/galtools/pkg/common"
	"github.com/spf13/afero"
)

// ErrNotFound is returned for paths that name no file of the image
var ErrNotFound = errors.New("file not found in disc image")

// Image is a loaded disc image. Replacements are kept in memory until Flush
// writes a patched copy; the source file is never modified.
type Image struct {
	fs       afero.Fs
	path     string // path passed to Open
	dataPath string // file holding the sectors
	cue      *CueSheet

	file   afero.File
	reader *CDReader
	volume *VolumeDescriptor

	pathTable []PathTableEntry
	files     []FileEntry
	dirs      []FileEntry
	skipped   []Region
	byPath    map[string]int // normalized path -> index into files

	pending map[string][]byte // normalized path -> replacement data
}

// Open loads a disc image from the operating system filesystem
func Open(path string) (*Image, error) {
	return OpenFs(afero.NewOsFs(), path)
}

// OpenFs loads a .cue sheet, a raw .bin image or a cooked .iso image
func OpenFs(fs afero.Fs, imagePath string) (*Image, error) {
	img := &Image{
		fs:       fs,
		path:     imagePath,
		dataPath: imagePath,
		byPath:   make(map[string]int),
		pending:  make(map[string][]byte),
	}

	format := FormatCooked
	if strings.EqualFold(filepath.Ext(imagePath), ".cue") {
		sheet, err := readCue(fs, imagePath)
		if err != nil {
			return nil, &common.ImageFormatError{Path: imagePath, Sector: -1, Reason: fmt.Sprintf("%s: %v", common.ErrFailedToParseCue, err)}
		}
		_, trackFormat, err := sheet.DataTrack()
		if err != nil {
			return nil, &common.ImageFormatError{Path: imagePath, Sector: -1, Reason: err.Error()}
		}
		img.cue = sheet
		img.dataPath = filepath.Join(filepath.Dir(imagePath), filepath.FromSlash(sheet.File))
		format = trackFormat
	}

	file, err := fs.Open(img.dataPath)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", common.ErrFailedToOpenImage, img.dataPath, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s %s: %w", common.ErrFailedToOpenImage, img.dataPath, err)
	}
	img.file = file

	if img.cue == nil {
		format, err = detectFormat(file, info.Size())
		if err != nil {
			file.Close()
			return nil, img.imageError(err)
		}
	}
	img.reader = NewCDReader(file, info.Size(), format)

	if err := img.load(); err != nil {
		file.Close()
		return nil, img.imageError(err)
	}

	common.LogInfo(common.InfoImageLoaded, imagePath, img.reader.TotalSectors(), format.Size(), len(img.files))
	return img, nil
}

func readCue(fs afero.Fs, cuePath string) (*CueSheet, error) {
	f, err := fs.Open(cuePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCue(f)
}

// detectFormat tells raw sectors from cooked ones by looking for the sync
// pattern in front of the first volume descriptor
func detectFormat(r io.ReaderAt, size int64) (SectorFormat, error) {
	minimum := int64(SystemAreaSectors + 2)

	if size >= minimum*CD_SECTOR_SIZE {
		header := make([]byte, CD_SYNC_SIZE+CD_HEADER_SIZE)
		if _, err := r.ReadAt(header, SystemAreaSectors*CD_SECTOR_SIZE); err == nil && bytes.Equal(header[:CD_SYNC_SIZE], syncPattern[:]) {
			switch header[15] {
			case 1:
				return FormatMode1, nil
			case 2:
				return FormatMode2, nil
			default:
				return FormatCooked, &common.ImageFormatError{Sector: SystemAreaSectors, Reason: fmt.Sprintf("unsupported sector mode %d", header[15])}
			}
		}
	}
	if size >= minimum*CD_DATA_SIZE && size%CD_DATA_SIZE == 0 {
		return FormatCooked, nil
	}
	return FormatCooked, &common.ImageFormatError{Sector: -1, Reason: fmt.Sprintf("%d bytes is neither a raw nor a cooked sector image", size)}
}

func (img *Image) load() error {
	vd, err := img.reader.ReadVolumeDescriptor()
	if err != nil {
		return err
	}
	img.volume = vd

	if vd.PathTableL != 0 && vd.PathTableSize > 0 {
		common.LogDebug(common.DebugPathTable, "L", vd.PathTableL, vd.PathTableSize)
		table, err := img.reader.ReadPathTable(vd.PathTableL, vd.PathTableSize, false)
		if err != nil {
			return &common.ImageFormatError{Sector: int64(vd.PathTableL), Reason: fmt.Sprintf("path table: %v", err)}
		}
		img.pathTable = table
	}

	files, dirs, skipped, err := readTree(img.reader, vd)
	if err != nil {
		return err
	}
	img.files = files
	img.dirs = dirs
	img.skipped = skipped
	for i, f := range files {
		img.byPath[normalizePath(f.Path)] = i
	}
	return nil
}

// imageError fills in the image path of format errors raised below Open
func (img *Image) imageError(err error) error {
	var imageErr *common.ImageFormatError
	if errors.As(err, &imageErr) && imageErr.Path == "" {
		imageErr.Path = img.path
	}
	return err
}

// normalizePath maps the accepted spellings of a disc path to one key:
// case-insensitive, '/' or '\' separated, optional ";1" and "cdrom:" prefix
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if len(p) >= 6 && strings.EqualFold(p[:6], "cdrom:") {
		p = p[6:]
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if i := strings.LastIndexByte(p, ';'); i > strings.LastIndexByte(p, '/') {
		p = p[:i]
	}
	p = strings.Trim(path.Clean("/"+p), "/")
	return strings.ToUpper(p)
}

// Close releases the image file
func (img *Image) Close() error {
	if img.file != nil {
		return img.file.Close()
	}
	return nil
}

// Path returns the path the image was opened from
func (img *Image) Path() string {
	return img.path
}

// Format returns the sector format of the data track
func (img *Image) Format() SectorFormat {
	return img.reader.Format()
}

// TotalSectors returns the number of sectors in the data track
func (img *Image) TotalSectors() int64 {
	return img.reader.TotalSectors()
}

// Volume returns the primary volume descriptor
func (img *Image) Volume() VolumeDescriptor {
	return *img.volume
}

// Files returns every file of the image in directory order
func (img *Image) Files() []FileEntry {
	return append([]FileEntry(nil), img.files...)
}

// Directories returns every directory, the root (empty path) first
func (img *Image) Directories() []FileEntry {
	return append([]FileEntry(nil), img.dirs...)
}

// Lookup finds a file by path
func (img *Image) Lookup(p string) (FileEntry, error) {
	i, ok := img.byPath[normalizePath(p)]
	if !ok {
		return FileEntry{}, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return img.files[i], nil
}

// ReadFile returns the contents of a file. Pending replacements are
// returned in place of the stored data.
func (img *Image) ReadFile(p string) ([]byte, error) {
	entry, err := img.Lookup(p)
	if err != nil {
		return nil, err
	}
	if data, ok := img.pending[normalizePath(p)]; ok {
		return append([]byte(nil), data...), nil
	}

	data, err := img.reader.ReadExtent(entry.LBA, entry.Size)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", common.ErrFailedToReadFile, entry.Path, err)
	}
	return data, nil
}

// ReplaceFile records new contents for a file. Nothing is written until
// Flush.
func (img *Image) ReplaceFile(p string, data []byte) error {
	entry, err := img.Lookup(p)
	if err != nil {
		return fmt.Errorf("%s: %w", common.ErrFailedToReplaceFile, err)
	}
	if _, err := common.SafeIntToUint32(len(data)); err != nil {
		return fmt.Errorf("%s %s: %w", common.ErrFailedToReplaceFile, entry.Path, err)
	}

	img.pending[normalizePath(p)] = append([]byte(nil), data...)

	mode := "in place"
	if common.GetSizeInSectors(uint32(len(data))) > entry.ExtentSize {
		mode = "relocation pending"
	}
	common.LogInfo(common.InfoFileReplaced, entry.Path, len(data), mode)
	return nil
}

// Pending returns the paths of the replaced files, sorted
func (img *Image) Pending() []string {
	paths := make([]string, 0, len(img.pending))
	for key := range img.pending {
		paths = append(paths, img.files[img.byPath[key]].Path)
	}
	sort.Strings(paths)
	return paths
}

// Reset drops every pending replacement
func (img *Image) Reset() {
	clear(img.pending)
}

// Extract writes every file below dir, keeping the directory hierarchy.
// It returns the number of files written.
func (img *Image) Extract(fs afero.Fs, dir string) (int, error) {
	for _, d := range img.dirs {
		target := filepath.Join(dir, filepath.FromSlash(d.Path))
		if err := fs.MkdirAll(target, 0755); err != nil {
			return 0, fmt.Errorf("%s %s: %w", common.ErrFailedToCreateDirectory, target, err)
		}
	}

	for i, f := range img.files {
		data, err := img.ReadFile(f.Path)
		if err != nil {
			return i, err
		}
		target := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := afero.WriteFile(fs, target, data, 0644); err != nil {
			return i, fmt.Errorf("%s %s: %w", common.ErrFailedToWriteFile, target, err)
		}
		common.LogDebug(common.InfoFileExtracted, f.Path, len(data))
	}
	return len(img.files), nil
}
