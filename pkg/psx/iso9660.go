package psx

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/hansbonini/galtools/pkg/common"
)

// Directory record field offsets
const (
	recordLBA     = 2
	recordSize    = 10
	recordFlags   = 25
	recordVolSeq  = 28
	recordNameLen = 32
)

// PutBothEndian32 stores v as an ISO9660 both-endian word (LE then BE)
func PutBothEndian32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
	binary.BigEndian.PutUint32(b[4:], v)
}

// PutBothEndian16 stores v as an ISO9660 both-endian half word
func PutBothEndian16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
	binary.BigEndian.PutUint16(b[2:], v)
}

func parseVolumeDescriptor(sector int64, data []byte) (*VolumeDescriptor, error) {
	vd := &VolumeDescriptor{
		Sector:          sector,
		SystemID:        strings.TrimRight(string(data[8:40]), " \x00"),
		VolumeID:        strings.TrimRight(string(data[40:72]), " \x00"),
		VolumeSpaceSize: binary.LittleEndian.Uint32(data[80:84]),
		LogicalBlock:    binary.LittleEndian.Uint16(data[128:130]),
		PathTableSize:   binary.LittleEndian.Uint32(data[132:136]),
		PathTableL:      binary.LittleEndian.Uint32(data[140:144]),
		PathTableLOpt:   binary.LittleEndian.Uint32(data[144:148]),
		PathTableM:      binary.BigEndian.Uint32(data[148:152]),
		PathTableMOpt:   binary.BigEndian.Uint32(data[152:156]),
	}

	if vd.LogicalBlock != CD_DATA_SIZE {
		return nil, &common.ImageFormatError{Sector: sector, Reason: fmt.Sprintf("unsupported logical block size %d", vd.LogicalBlock)}
	}
	if vd.VolumeSpaceSize == 0 {
		return nil, &common.ImageFormatError{Sector: sector, Reason: "empty volume"}
	}

	root, err := parseDirRecord(data[rootRecordOffset : rootRecordOffset+rootRecordSize])
	if err != nil {
		return nil, &common.ImageFormatError{Sector: sector, Reason: fmt.Sprintf("root directory record: %v", err)}
	}
	if !root.IsDir() {
		return nil, &common.ImageFormatError{Sector: sector, Reason: "root directory record is not a directory"}
	}
	vd.Root = root
	return vd, nil
}

// parseDirRecord decodes the record at the start of b. Trailing bytes past
// the record length are ignored.
func parseDirRecord(b []byte) (DirRecord, error) {
	if len(b) == 0 || b[0] == 0 {
		return DirRecord{}, fmt.Errorf("empty record")
	}
	length := int(b[0])
	if length < dirRecordHeaderSize {
		return DirRecord{}, fmt.Errorf("record of %d bytes is too short", length)
	}
	if length > len(b) {
		return DirRecord{}, fmt.Errorf("record of %d bytes exceeds the %d bytes available", length, len(b))
	}

	nameLength := int(b[recordNameLen])
	if dirRecordHeaderSize+nameLength > length {
		return DirRecord{}, fmt.Errorf("filename exceeds entry bounds")
	}

	return DirRecord{
		Length: b[0],
		LBA:    common.ExtractLBAFromDirRecord(b),
		Size:   common.ExtractSizeFromDirRecord(b),
		Flags:  b[recordFlags],
		Name:   string(b[dirRecordHeaderSize : dirRecordHeaderSize+nameLength]),
	}, nil
}

// EncodeDirRecord serialises a directory record. The record is padded to an
// even length; dates are left zero.
func EncodeDirRecord(r DirRecord) ([]byte, error) {
	length := dirRecordHeaderSize + len(r.Name)
	if length%2 != 0 {
		length++
	}
	if length > 255 {
		return nil, fmt.Errorf("name %q is too long for a directory record", r.Name)
	}

	b := make([]byte, length)
	b[0] = byte(length)
	PutBothEndian32(b[recordLBA:], r.LBA)
	PutBothEndian32(b[recordSize:], r.Size)
	b[recordFlags] = r.Flags
	PutBothEndian16(b[recordVolSeq:], 1)
	b[recordNameLen] = byte(len(r.Name))
	copy(b[dirRecordHeaderSize:], r.Name)
	return b, nil
}

// patchDirRecord rewrites the extent and size of the record at the start
// of b
func patchDirRecord(b []byte, lba, size uint32) {
	PutBothEndian32(b[recordLBA:], lba)
	PutBothEndian32(b[recordSize:], size)
}

// walker collects the directory tree below a root record
type walker struct {
	reader  *CDReader
	files   []FileEntry
	dirs    []FileEntry
	skipped []Region // extents of records left out of the tree
	visited map[uint32]bool
}

func (w *walker) walk(dir FileEntry) error {
	if w.visited[dir.LBA] {
		return &common.ImageFormatError{Sector: int64(dir.LBA), Reason: fmt.Sprintf("directory %q is linked more than once", dir.Path)}
	}
	w.visited[dir.LBA] = true
	w.dirs = append(w.dirs, dir)

	data := make([]byte, CD_DATA_SIZE)
	var children []FileEntry

	for i := uint32(0); i < dir.ExtentSize; i++ {
		sector := dir.LBA + i
		if err := w.reader.ReadSector(int64(sector), data); err != nil {
			return &common.ImageFormatError{Sector: int64(sector), Reason: fmt.Sprintf("directory %q: %v", dir.Path, err)}
		}

		// Records never cross a sector boundary; a zero length byte ends the sector
		for offset := 0; offset < CD_DATA_SIZE && data[offset] != 0; {
			record, err := parseDirRecord(data[offset:])
			if err != nil {
				common.LogWarn(common.WarnRecordSkipped, sector, offset, err)
				break
			}

			entry, ok := w.entry(dir, record, sector, offset)
			if ok {
				children = append(children, entry)
			}
			offset += int(record.Length)
		}
	}

	for _, child := range children {
		if child.IsDir {
			if err := w.walk(child); err != nil {
				return err
			}
			continue
		}
		w.files = append(w.files, child)
	}
	return nil
}

func (w *walker) entry(parent FileEntry, record DirRecord, sector uint32, offset int) (FileEntry, bool) {
	if common.IsSpecialDirEntry(record.Name) {
		return FileEntry{}, false
	}

	name := common.CleanFileName(record.Name)
	if !common.IsValidFileName(name) {
		common.LogWarn(common.WarnRecordSkipped, sector, offset, fmt.Errorf("invalid name %q", record.Name))
		w.claim(record)
		return FileEntry{}, false
	}

	entry := FileEntry{
		Name:         name,
		Path:         name,
		LBA:          record.LBA,
		MSF:          common.LBAToMSF(record.LBA),
		Size:         record.Size,
		IsDir:        record.IsDir(),
		ExtentSize:   common.GetSizeInSectors(record.Size),
		recordSector: sector,
		recordOffset: offset,
	}
	if parent.Path != "" {
		entry.Path = parent.Path + "/" + name
	}

	if entry.ExtentSize > 0 && int64(entry.LBA)+int64(entry.ExtentSize) > w.reader.TotalSectors() {
		common.LogWarn(common.WarnRecordSkipped, sector, offset,
			fmt.Errorf("%s: extent at LBA %d (%d sectors) is outside the image", entry.Path, entry.LBA, entry.ExtentSize))
		w.claim(record)
		return FileEntry{}, false
	}

	common.LogDebug(common.DebugDirectoryRecord, entry.Path, entry.LBA, entry.Size, entry.IsDir, sector, offset)
	return entry, true
}

// claim keeps the in-image part of a skipped record's extent out of the
// free space, since the disc may still read it
func (w *walker) claim(record DirRecord) {
	total := w.reader.TotalSectors()
	if int64(record.LBA) >= total {
		return
	}
	count := int64(common.GetSizeInSectors(record.Size))
	count = min(count, total-int64(record.LBA))
	if count == 0 {
		return
	}
	w.skipped = append(w.skipped, Region{
		Kind:   RegionUnlisted,
		Extent: Extent{Start: record.LBA, Count: uint32(count)},
		Path:   fmt.Sprintf("%q", record.Name),
	})
}

// readTree walks the directory hierarchy rooted at the volume's root record
func readTree(reader *CDReader, vd *VolumeDescriptor) (files, dirs []FileEntry, skipped []Region, err error) {
	root := FileEntry{
		Name:       "",
		LBA:        vd.Root.LBA,
		MSF:        common.LBAToMSF(vd.Root.LBA),
		Size:       vd.Root.Size,
		IsDir:      true,
		ExtentSize: common.GetSizeInSectors(vd.Root.Size),

		recordSector: uint32(vd.Sector),
		recordOffset: rootRecordOffset,
	}
	if root.ExtentSize == 0 || int64(root.LBA)+int64(root.ExtentSize) > reader.TotalSectors() {
		return nil, nil, nil, &common.ImageFormatError{Sector: vd.Sector, Reason: fmt.Sprintf("root directory at LBA %d is outside the image", root.LBA)}
	}

	w := &walker{reader: reader, visited: make(map[uint32]bool)}
	if err := w.walk(root); err != nil {
		return nil, nil, nil, err
	}
	return w.files, w.dirs, w.skipped, nil
}
