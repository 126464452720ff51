package psx

import (
	"fmt"
	"sort"

	"github.com/hansbonini/galtools/pkg/common"
)

// RegionKind classifies the sectors of a volume
type RegionKind string

const (
	RegionSystem      RegionKind = "system"
	RegionDescriptors RegionKind = "descriptors"
	RegionPathTable   RegionKind = "path-table"
	RegionDirectory   RegionKind = "directory"
	RegionFile        RegionKind = "file"
	RegionUnlisted    RegionKind = "unlisted" // extent of a directory record left out of the tree
	RegionFree        RegionKind = "free"
)

// Region is a run of sectors with a single use
type Region struct {
	Kind RegionKind
	Extent
	Path string // file or directory path, path table name
}

// volumeLimit is the number of sectors usable for file data
func (img *Image) volumeLimit() uint32 {
	limit := img.volume.VolumeSpaceSize
	if total := img.reader.TotalSectors(); int64(limit) > total {
		limit = uint32(total)
	}
	return limit
}

// usedRegions lists every region the baseline image needs
func (img *Image) usedRegions() []Region {
	vd := img.volume
	regions := []Region{
		{Kind: RegionSystem, Extent: Extent{Start: 0, Count: SystemAreaSectors}},
		{Kind: RegionDescriptors, Extent: Extent{Start: SystemAreaSectors, Count: uint32(vd.Terminator) - SystemAreaSectors + 1}},
	}

	tableSectors := common.GetSizeInSectors(vd.PathTableSize)
	for _, table := range []struct {
		name string
		lba  uint32
	}{
		{"L", vd.PathTableL},
		{"L (optional)", vd.PathTableLOpt},
		{"M", vd.PathTableM},
		{"M (optional)", vd.PathTableMOpt},
	} {
		if table.lba != 0 && tableSectors > 0 {
			regions = append(regions, Region{Kind: RegionPathTable, Extent: Extent{Start: table.lba, Count: tableSectors}, Path: table.name})
		}
	}

	for _, d := range img.dirs {
		regions = append(regions, Region{Kind: RegionDirectory, Extent: Extent{Start: d.LBA, Count: d.ExtentSize}, Path: "/" + d.Path})
	}
	for _, f := range img.files {
		if f.ExtentSize > 0 {
			regions = append(regions, Region{Kind: RegionFile, Extent: Extent{Start: f.LBA, Count: f.ExtentSize}, Path: f.Path})
		}
	}
	return append(regions, img.skipped...)
}

// baselineMap claims the sectors of every region of the loaded image
func (img *Image) baselineMap() *sectorMap {
	m := newSectorMap(img.volumeLimit())
	for _, r := range img.usedRegions() {
		m.mark(r.Extent)
	}
	return m
}

// Layout lists the regions of the loaded image, free extents included,
// ordered by start sector
func (img *Image) Layout() []Region {
	regions := img.usedRegions()
	for _, e := range img.baselineMap().free() {
		common.LogDebug(common.DebugFreeExtent, e.Start, e.End()-1, e.Count)
		regions = append(regions, Region{Kind: RegionFree, Extent: e})
	}
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Start < regions[j].Start
	})
	return regions
}

// FreeSectors returns the free extents of the loaded image
func (img *Image) FreeSectors() []Extent {
	return img.baselineMap().free()
}

// VerifyReport lists the sectors whose EDC does not match their contents and
// the path table entries that disagree with the directory tree
type VerifyReport struct {
	Checked   int64
	Invalid   []int64
	PathTable []string
}

// OK reports whether every checked sector and path table entry passed
func (r *VerifyReport) OK() bool {
	return len(r.Invalid) == 0 && len(r.PathTable) == 0
}

// Verify checks the EDC of every sector of a raw image and cross-checks the
// path table against the directory records. Cooked images carry no EDC, so
// only the path table is checked for them.
func (img *Image) Verify() (*VerifyReport, error) {
	report := &VerifyReport{PathTable: img.checkPathTable()}
	if img.Format() == FormatCooked {
		common.LogInfo(common.InfoVerifySummary, report.Checked, len(report.Invalid))
		return report, nil
	}

	raw := make([]byte, CD_SECTOR_SIZE)
	for lba := int64(0); lba < img.reader.TotalSectors(); lba++ {
		if err := img.reader.ReadRawSector(lba, raw); err != nil {
			return nil, err
		}
		report.Checked++
		if !CheckEDC(raw) {
			common.LogWarn(common.WarnInvalidSectorEDC, lba)
			report.Invalid = append(report.Invalid, lba)
		}
	}

	common.LogInfo(common.InfoVerifySummary, report.Checked, len(report.Invalid))
	return report, nil
}

// checkPathTable returns one line per path table entry whose directory is
// missing from the tree or recorded at another sector
func (img *Image) checkPathTable() []string {
	tree := make(map[string]uint32, len(img.dirs))
	for _, d := range img.dirs {
		tree[normalizePath(d.Path)] = d.LBA
	}

	var problems []string
	for _, entry := range img.pathTable {
		name := BuildDirectoryPath(entry, img.pathTable)
		lba, ok := tree[normalizePath(name)]
		var problem string
		switch {
		case !ok:
			problem = "no such directory record"
		case lba != entry.DirLocation:
			problem = fmt.Sprintf("directory record points to sector %d", lba)
		default:
			continue
		}
		common.LogWarn(common.WarnPathTableMismatch, "/"+name, entry.DirLocation, problem)
		problems = append(problems, fmt.Sprintf("/%s at sector %d: %s", name, entry.DirLocation, problem))
	}
	return problems
}
