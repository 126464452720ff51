package psx

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hansbonini/galtools/pkg/common"
	"github.com/spf13/afero"
)

// FileWrite describes where a replaced file is written
type FileWrite struct {
	Path      string
	OldLBA    uint32
	LBA       uint32
	Sectors   uint32
	Size      uint32
	Relocated bool
}

// FlushReport summarises the placement of the pending replacements
type FlushReport struct {
	Output string
	Writes []FileWrite
	Free   []Extent // free extents left once every file is placed
}

// Relocated counts the files moved to a new extent
func (r *FlushReport) Relocated() int {
	n := 0
	for _, w := range r.Writes {
		if w.Relocated {
			n++
		}
	}
	return n
}

type placement struct {
	entry FileEntry
	data  []byte
	write FileWrite
}

// Plan computes where Flush would place every pending replacement without
// writing anything
func (img *Image) Plan() (*FlushReport, error) {
	report, _, err := img.plan()
	return report, err
}

func (img *Image) plan() (*FlushReport, []placement, error) {
	placements := make([]placement, 0, len(img.pending))
	for key, data := range img.pending {
		entry := img.files[img.byPath[key]]
		size, err := common.SafeIntToUint32(len(data))
		if err != nil {
			return nil, nil, err
		}
		placements = append(placements, placement{
			entry: entry,
			data:  data,
			write: FileWrite{
				Path:    entry.Path,
				OldLBA:  entry.LBA,
				LBA:     entry.LBA,
				Sectors: common.GetSizeInSectors(size),
				Size:    size,
			},
		})
	}
	sort.Slice(placements, func(i, j int) bool {
		a, b := placements[i].entry, placements[j].entry
		if a.LBA != b.LBA {
			return a.LBA < b.LBA
		}
		return a.Path < b.Path
	})

	sectors := img.baselineMap()

	// Free every old extent and slack tail before allocating anything
	for i := range placements {
		p := &placements[i]
		old := Extent{Start: p.entry.LBA, Count: p.entry.ExtentSize}
		if p.write.Sectors <= old.Count && !sectors.shared(Extent{Start: old.Start, Count: p.write.Sectors}) {
			sectors.release(Extent{Start: old.Start + p.write.Sectors, Count: old.Count - p.write.Sectors})
			continue
		}
		p.write.Relocated = true
		sectors.release(old)
	}

	for i := range placements {
		p := &placements[i]
		if !p.write.Relocated {
			continue
		}
		lba, ok := sectors.allocate(p.write.Sectors)
		if !ok {
			return nil, nil, &common.InsufficientSpaceError{
				Path:        p.entry.Path,
				Needed:      p.write.Sectors,
				LargestFree: sectors.largest(),
			}
		}
		p.write.LBA = lba
	}

	report := &FlushReport{Free: sectors.free()}
	for _, p := range placements {
		report.Writes = append(report.Writes, p.write)
	}
	return report, placements, nil
}

// Flush writes a patched copy of the image to outPath. When outPath is a
// .cue sheet the sectors go to a .bin file beside it. Space is checked
// before anything is written and the output only appears once complete.
func (img *Image) Flush(outPath string) (*FlushReport, error) {
	report, placements, err := img.plan()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", common.ErrFailedToFlushImage, err)
	}

	dataOut := outPath
	cueText := ""
	if strings.EqualFold(filepath.Ext(outPath), ".cue") {
		dataOut = strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".bin"
		if img.cue != nil {
			cueText = img.cue.Rewrite(filepath.Base(dataOut))
		} else {
			cueText = NewCue(filepath.Base(dataOut), img.Format())
		}
	}

	data, err := stageWrite(img.fs, dataOut, func(out afero.File) error {
		return img.writeImage(out, placements)
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", common.ErrFailedToFlushImage, dataOut, err)
	}
	staged := []stagedFile{data}
	if cueText != "" {
		cue, err := stageWrite(img.fs, outPath, func(out afero.File) error {
			_, err := io.WriteString(out, cueText)
			return err
		})
		if err != nil {
			discard(img.fs, staged)
			return nil, fmt.Errorf("%s %s: %w", common.ErrFailedToFlushImage, outPath, err)
		}
		staged = append(staged, cue)
	}
	if err := commit(img.fs, staged); err != nil {
		return nil, fmt.Errorf("%s %s: %w", common.ErrFailedToFlushImage, outPath, err)
	}

	for _, w := range report.Writes {
		if w.Relocated {
			common.LogInfo(common.InfoFileRelocated, w.Path, w.OldLBA, w.LBA, w.Sectors)
		}
	}
	report.Output = outPath
	common.LogInfo(common.InfoImageWritten, outPath)
	return report, nil
}

// stagedFile is a complete temporary file waiting to replace target
type stagedFile struct {
	tmp    string
	target string
}

// stageWrite fills and syncs a temporary file beside target
func stageWrite(fs afero.Fs, target string, fill func(afero.File) error) (stagedFile, error) {
	if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return stagedFile{}, err
	}
	tmp, err := afero.TempFile(fs, filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return stagedFile{}, err
	}
	staged := stagedFile{tmp: tmp.Name(), target: target}
	common.LogDebug(common.DebugTemporaryFile, staged.tmp)

	if err := fill(tmp); err != nil {
		tmp.Close()
		fs.Remove(staged.tmp)
		return stagedFile{}, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		fs.Remove(staged.tmp)
		return stagedFile{}, err
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(staged.tmp)
		return stagedFile{}, err
	}
	return staged, nil
}

// commit renames every staged file into place. Files not yet renamed when
// a rename fails are removed.
func commit(fs afero.Fs, staged []stagedFile) error {
	for i, f := range staged {
		if err := fs.Rename(f.tmp, f.target); err != nil {
			discard(fs, staged[i:])
			return err
		}
	}
	return nil
}

func discard(fs afero.Fs, staged []stagedFile) {
	for _, f := range staged {
		fs.Remove(f.tmp)
	}
}

func (img *Image) writeImage(out afero.File, placements []placement) error {
	if _, err := io.Copy(out, io.NewSectionReader(img.reader, 0, img.reader.Size())); err != nil {
		return fmt.Errorf("failed to copy source image: %w", err)
	}

	raw := make([]byte, img.Format().Size())
	for _, p := range placements {
		for i := uint32(0); i < p.write.Sectors; i++ {
			start := int(i) * CD_DATA_SIZE
			end := min(start+CD_DATA_SIZE, len(p.data))
			submode := byte(SubmodeData)
			if i == p.write.Sectors-1 {
				submode = SubmodeLast
			}
			if err := img.writeSector(out, raw, p.write.LBA+i, p.data[start:end], submode); err != nil {
				return err
			}
		}
	}

	return img.updateRecords(out, raw, placements)
}

// updateRecords rewrites the directory records of the placed files. Each
// directory sector keeps its original XA submode.
func (img *Image) updateRecords(out afero.File, raw []byte, placements []placement) error {
	dirty := make(map[uint32][]byte)
	for _, p := range placements {
		sector := p.entry.recordSector
		data, ok := dirty[sector]
		if !ok {
			data = make([]byte, CD_DATA_SIZE)
			if err := img.reader.ReadSector(int64(sector), data); err != nil {
				return err
			}
			dirty[sector] = data
		}
		patchDirRecord(data[p.entry.recordOffset:], p.write.LBA, p.write.Size)
		common.LogDebug(common.DebugRecordUpdated, p.entry.Path, p.write.LBA, p.write.Size)
	}

	sectors := make([]uint32, 0, len(dirty))
	for sector := range dirty {
		sectors = append(sectors, sector)
	}
	sort.Slice(sectors, func(i, j int) bool { return sectors[i] < sectors[j] })

	for _, sector := range sectors {
		submode := byte(SubmodeLast)
		if img.Format() == FormatMode2 {
			if err := img.reader.ReadRawSector(int64(sector), raw); err != nil {
				return err
			}
			submode = raw[submodeOffset]
		}
		if err := img.writeSector(out, raw, sector, dirty[sector], submode); err != nil {
			return err
		}
	}
	return nil
}

func (img *Image) writeSector(out io.WriterAt, raw []byte, lba uint32, data []byte, submode byte) error {
	if err := EncodeSector(img.Format(), raw, int64(lba), data, submode); err != nil {
		return err
	}
	if _, err := out.WriteAt(raw, int64(lba)*int64(len(raw))); err != nil {
		return fmt.Errorf("failed to write sector %d: %w", lba, err)
	}
	common.LogDebug(common.DebugSectorWritten, lba, img.Format(), submode)
	return nil
}
