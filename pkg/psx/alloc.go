package psx

import "github.com/hansbonini/galtools/pkg/common"

// Extent is a run of consecutive sectors
type Extent struct {
	Start uint32
	Count uint32
}

// End returns the first sector after the extent
func (e Extent) End() uint32 {
	return e.Start + e.Count
}

// sectorMap tracks how many regions claim each sector of the volume.
// Files sharing sectors are common on pressed discs, so a sector only
// becomes free once every owner released it.
type sectorMap struct {
	refs []uint16
}

func newSectorMap(limit uint32) *sectorMap {
	return &sectorMap{refs: make([]uint16, limit)}
}

func (m *sectorMap) clip(e Extent) (uint32, uint32) {
	limit := uint32(len(m.refs))
	start, end := e.Start, e.Start+e.Count
	if start > limit {
		start = limit
	}
	if end > limit || end < e.Start {
		end = limit
	}
	return start, end
}

func (m *sectorMap) mark(e Extent) {
	start, end := m.clip(e)
	for s := start; s < end; s++ {
		if m.refs[s] < ^uint16(0) {
			m.refs[s]++
		}
	}
}

func (m *sectorMap) release(e Extent) {
	start, end := m.clip(e)
	for s := start; s < end; s++ {
		if m.refs[s] > 0 {
			m.refs[s]--
		}
	}
}

// free returns the unclaimed extents in ascending order
func (m *sectorMap) free() []Extent {
	var extents []Extent
	for s := 0; s < len(m.refs); {
		if m.refs[s] != 0 {
			s++
			continue
		}
		start := s
		for s < len(m.refs) && m.refs[s] == 0 {
			s++
		}
		extents = append(extents, Extent{Start: uint32(start), Count: uint32(s - start)})
	}
	return extents
}

// largest returns the size of the biggest free extent
func (m *sectorMap) largest() uint32 {
	var best uint32
	for _, e := range m.free() {
		if e.Count > best {
			best = e.Count
		}
	}
	return best
}

// allocate claims the lowest-addressed free extent of at least n sectors
func (m *sectorMap) allocate(n uint32) (uint32, bool) {
	for _, e := range m.free() {
		if e.Count >= n {
			m.mark(Extent{Start: e.Start, Count: n})
			common.LogDebug(common.DebugFreeExtent, e.Start, e.End()-1, e.Count)
			return e.Start, true
		}
	}
	return 0, false
}

// shared reports whether any sector of e has more than one owner
func (m *sectorMap) shared(e Extent) bool {
	start, end := m.clip(e)
	for s := start; s < end; s++ {
		if m.refs[s] > 1 {
			return true
		}
	}
	return false
}
