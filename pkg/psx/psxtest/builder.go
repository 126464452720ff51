// Package psxtest builds small synthetic ISO9660 disc images for tests.
//
// The layout is fixed: system area, primary volume descriptor at sector 16,
// terminator at 17, L and M path tables at 18 and 19, one sector per
// directory from 20, then the files in the order given and finally any
// requested free sectors.
package psxtest

import (
	"encoding/binary"
	"fmt"
	"path"
	"sort"
	"strings"
	"testing"

	"github.com/hansbonini/galtools/pkg/common"
	"github.com/hansbonini/galtools/pkg/psx"
	"github.com/stretchr/testify/require"
)

const (
	pvdSector        = 16
	terminatorSector = 17
	pathTableL       = 18
	pathTableM       = 19
	firstDirSector   = 20
)

// File is a file to place on the image
type File struct {
	Path string // '/' separated, upper case
	Data []byte
	// Alias points the record at the extent of another file instead of
	// storing Data
	Alias string
}

// Options describes the image to build
type Options struct {
	Format      psx.SectorFormat
	VolumeID    string
	Files       []File
	FreeSectors int // empty sectors after the last file, inside the volume
	Padding     int // sectors after the end of the volume space
}

// Image is a built disc image
type Image struct {
	Data        []byte
	Files       map[string]uint32 // file path -> LBA
	Dirs        map[string]uint32 // directory path -> LBA, root is ""
	VolumeSpace uint32
	FirstFree   uint32
}

type dirNode struct {
	path     string
	number   int
	parent   int
	lba      uint32
	children []string
}

// Build lays out and encodes an image
func Build(opts Options) (*Image, error) {
	if opts.VolumeID == "" {
		opts.VolumeID = "GALTOOLS"
	}

	dirs, order, err := collectDirs(opts.Files)
	if err != nil {
		return nil, err
	}

	img := &Image{Files: make(map[string]uint32), Dirs: make(map[string]uint32)}
	next := uint32(firstDirSector)
	for i, p := range order {
		d := dirs[p]
		d.number = i + 1
		d.lba = next
		img.Dirs[p] = next
		next++
	}
	for _, p := range order {
		if p != "" {
			dirs[p].parent = dirs[parentOf(p)].number
		} else {
			dirs[p].parent = 1
		}
	}

	sizes := make(map[string]uint32)
	for _, f := range opts.Files {
		if f.Alias != "" {
			continue
		}
		size := uint32(len(f.Data))
		img.Files[f.Path] = next
		sizes[f.Path] = size
		next += common.GetSizeInSectors(size)
	}
	for _, f := range opts.Files {
		if f.Alias == "" {
			continue
		}
		lba, ok := img.Files[f.Alias]
		if !ok {
			return nil, fmt.Errorf("%s aliases unknown file %s", f.Path, f.Alias)
		}
		img.Files[f.Path] = lba
		sizes[f.Path] = sizes[f.Alias]
	}
	img.FirstFree = next
	img.VolumeSpace = next + uint32(opts.FreeSectors)
	total := img.VolumeSpace + uint32(opts.Padding)

	sectors := make([][]byte, total)
	submodes := make([]byte, total)
	for i := range sectors {
		sectors[i] = make([]byte, psx.CD_DATA_SIZE)
	}

	lTable, mTable := pathTables(dirs, order)
	copy(sectors[pathTableL], lTable)
	copy(sectors[pathTableM], mTable)
	submodes[pathTableL], submodes[pathTableM] = psx.SubmodeLast, psx.SubmodeLast

	for _, p := range order {
		d := dirs[p]
		data, err := directory(d, dirs, img.Files, sizes)
		if err != nil {
			return nil, err
		}
		copy(sectors[d.lba], data)
		submodes[d.lba] = psx.SubmodeLast
	}

	for _, f := range opts.Files {
		if f.Alias != "" {
			continue
		}
		lba := img.Files[f.Path]
		count := common.GetSizeInSectors(uint32(len(f.Data)))
		for i := uint32(0); i < count; i++ {
			copy(sectors[lba+i], f.Data[i*psx.CD_DATA_SIZE:])
			submodes[lba+i] = psx.SubmodeData
		}
		if count > 0 {
			submodes[lba+count-1] = psx.SubmodeLast
		}
	}

	root := dirs[""]
	copy(sectors[pvdSector], primaryDescriptor(opts.VolumeID, img.VolumeSpace, len(lTable), root.lba))
	submodes[pvdSector] = psx.SubmodeData | psx.SubmodeEOR
	copy(sectors[terminatorSector], terminator())
	submodes[terminatorSector] = psx.SubmodeLast

	size := opts.Format.Size()
	img.Data = make([]byte, int(total)*size)
	for lba, data := range sectors {
		raw := img.Data[lba*size : (lba+1)*size]
		if err := psx.EncodeSector(opts.Format, raw, int64(lba), data, submodes[lba]); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// MustBuild is Build for tests
func MustBuild(t testing.TB, opts Options) *Image {
	t.Helper()
	img, err := Build(opts)
	require.NoError(t, err)
	return img
}

func parentOf(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}

func collectDirs(files []File) (map[string]*dirNode, []string, error) {
	dirs := map[string]*dirNode{"": {path: ""}}
	seen := make(map[string]bool)

	for _, f := range files {
		if f.Path == "" || strings.HasPrefix(f.Path, "/") {
			return nil, nil, fmt.Errorf("invalid file path %q", f.Path)
		}
		if seen[f.Path] {
			return nil, nil, fmt.Errorf("duplicate file %s", f.Path)
		}
		seen[f.Path] = true

		child := f.Path
		for {
			parent := parentOf(child)
			d, ok := dirs[parent]
			if !ok {
				d = &dirNode{path: parent}
				dirs[parent] = d
			}
			if !contains(d.children, child) {
				d.children = append(d.children, child)
			}
			if parent == "" {
				break
			}
			child = parent
		}
	}

	order := make([]string, 0, len(dirs))
	for p := range dirs {
		order = append(order, p)
	}
	sort.Slice(order, func(i, j int) bool {
		di, dj := depth(order[i]), depth(order[j])
		if di != dj {
			return di < dj
		}
		return order[i] < order[j]
	})
	for _, d := range dirs {
		sort.Strings(d.children)
	}
	return dirs, order, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func depth(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}

func directory(d *dirNode, dirs map[string]*dirNode, files map[string]uint32, sizes map[string]uint32) ([]byte, error) {
	parent := dirs[parentOf(d.path)]
	if d.path == "" {
		parent = d
	}

	records := []psx.DirRecord{
		{LBA: d.lba, Size: psx.CD_DATA_SIZE, Flags: 0x02, Name: "\x00"},
		{LBA: parent.lba, Size: psx.CD_DATA_SIZE, Flags: 0x02, Name: "\x01"},
	}
	for _, child := range d.children {
		name := path.Base(child)
		if sub, ok := dirs[child]; ok {
			records = append(records, psx.DirRecord{LBA: sub.lba, Size: psx.CD_DATA_SIZE, Flags: 0x02, Name: name})
			continue
		}
		records = append(records, psx.DirRecord{LBA: files[child], Size: sizes[child], Name: name + ";1"})
	}

	var out []byte
	for _, r := range records {
		b, err := psx.EncodeDirRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	if len(out) > psx.CD_DATA_SIZE {
		return nil, fmt.Errorf("directory %q does not fit one sector", d.path)
	}
	return out, nil
}

func pathTables(dirs map[string]*dirNode, order []string) (l, m []byte) {
	for _, p := range order {
		d := dirs[p]
		name := path.Base(p)
		if p == "" {
			name = "\x00"
		}
		entry := func(order binary.ByteOrder) []byte {
			b := make([]byte, 8+len(name)+len(name)%2)
			b[0] = byte(len(name))
			order.PutUint32(b[2:], d.lba)
			order.PutUint16(b[6:], uint16(d.parent))
			copy(b[8:], name)
			return b
		}
		l = append(l, entry(binary.LittleEndian)...)
		m = append(m, entry(binary.BigEndian)...)
	}
	return l, m
}

func primaryDescriptor(volumeID string, volumeSpace uint32, pathTableSize int, rootLBA uint32) []byte {
	b := make([]byte, psx.CD_DATA_SIZE)
	b[0] = 1
	copy(b[1:6], "CD001")
	b[6] = 1
	copy(b[8:40], fmt.Sprintf("%-32s", "PLAYSTATION"))
	copy(b[40:72], fmt.Sprintf("%-32s", volumeID))
	psx.PutBothEndian32(b[80:], volumeSpace)
	psx.PutBothEndian16(b[120:], 1)
	psx.PutBothEndian16(b[124:], 1)
	psx.PutBothEndian16(b[128:], psx.CD_DATA_SIZE)
	psx.PutBothEndian32(b[132:], uint32(pathTableSize))
	binary.LittleEndian.PutUint32(b[140:], pathTableL)
	binary.BigEndian.PutUint32(b[148:], pathTableM)

	root, _ := psx.EncodeDirRecord(psx.DirRecord{LBA: rootLBA, Size: psx.CD_DATA_SIZE, Flags: 0x02, Name: "\x00"})
	copy(b[156:190], root)
	b[881] = 1
	return b
}

func terminator() []byte {
	b := make([]byte, psx.CD_DATA_SIZE)
	b[0] = 255
	copy(b[1:6], "CD001")
	b[6] = 1
	return b
}
