package heap

import (
	"sync"
	"sync/atomic"
)

// Manager owns the region table, the master free list, the generation sets,
// the card table, and the heap-wide usage counters. It is the single owner
// of every Region for the lifetime of the heap.
type Manager struct {
	regions     []*Region
	regionBytes uint64
	cardTable   *CardTable

	usedBytes atomic.Uint64

	freeMu   sync.Mutex
	freeList []uint32
	onFree   []bool

	// The old sets lock guards old-generation membership. It is the only
	// lock taken on the parallel cleanup path (failed-region insertion).
	oldMu           sync.Mutex
	oldSet          map[uint32]struct{}
	oldRegionCount  uint32
	humRegionCount  uint32
	humObjectCount  uint32
	humCandidates   []bool
	numHumCandidate uint32

	edenMu   sync.Mutex
	edenList []uint32

	candStatsMu sync.Mutex
	candStats   RemSetMemStats
}

// Region set names used for containment tracking.
const (
	SetNameOld       = "old"
	SetNameHumongous = "humongous"
	SetNameEden      = "eden"
)

// NewManager creates a heap of numRegions regions of regionBytes each, all
// initially free.
func NewManager(numRegions uint32, regionBytes uint64) *Manager {
	Guarantee(numRegions > 0, "heap must have at least one region")
	Guarantee(regionBytes > 0 && regionBytes%CardBytes == 0,
		"region size %d must be a positive multiple of the card size", regionBytes)

	m := &Manager{
		regions:       make([]*Region, numRegions),
		regionBytes:   regionBytes,
		cardTable:     NewCardTable(uint64(numRegions) * regionBytes),
		freeList:      make([]uint32, 0, numRegions),
		onFree:        make([]bool, numRegions),
		oldSet:        make(map[uint32]struct{}),
		humCandidates: make([]bool, numRegions),
	}
	for i := uint32(0); i < numRegions; i++ {
		m.regions[i] = newRegion(i, regionBytes)
		m.freeList = append(m.freeList, i)
		m.onFree[i] = true
	}
	return m
}

// NumRegions returns the size of the region table.
func (m *Manager) NumRegions() uint32 { return uint32(len(m.regions)) }

// RegionBytes returns the fixed region size in bytes.
func (m *Manager) RegionBytes() uint64 { return m.regionBytes }

// RegionWords returns the fixed region size in words.
func (m *Manager) RegionWords() uint64 { return m.regionBytes / WordSize }

// RegionAt returns the region at the given table index.
func (m *Manager) RegionAt(idx uint32) *Region {
	Guarantee(idx < uint32(len(m.regions)), "region index %d out of bounds", idx)
	return m.regions[idx]
}

// RegionContaining returns the region covering the given heap address.
func (m *Manager) RegionContaining(addr uint64) *Region {
	idx := addr / m.regionBytes
	Guarantee(idx < uint64(len(m.regions)), "address %#x outside the heap", addr)
	return m.regions[idx]
}

// CardTable returns the heap's card table.
func (m *Manager) CardTable() *CardTable { return m.cardTable }

// UsedBytes returns the heap-wide used-bytes summary counter.
func (m *Manager) UsedBytes() uint64 { return m.usedBytes.Load() }

// IncreaseUsed bumps the used-bytes summary counter, called when a region
// is populated.
func (m *Manager) IncreaseUsed(n uint64) { m.usedBytes.Add(n) }

// DecrementSummaryBytes subtracts freed bytes from the used-bytes summary.
func (m *Manager) DecrementSummaryBytes(n uint64) {
	Guarantee(n <= m.usedBytes.Load(), "summary bytes underflow: -%d from %d", n, m.usedBytes.Load())
	m.usedBytes.Add(^(n - 1))
}

// UpdateUsedAfterGC recomputes the used-bytes summary by walking the region
// table. With no evacuation failure the counter is already exact and only
// verified.
func (m *Manager) UpdateUsedAfterGC(evacuationFailed bool) {
	var total uint64
	for _, r := range m.regions {
		if !r.IsFree() {
			total += r.Used()
		}
	}
	if !evacuationFailed {
		Guarantee(total == m.usedBytes.Load(),
			"used bytes summary %d does not match recomputed %d", m.usedBytes.Load(), total)
	}
	m.usedBytes.Store(total)
}

// MakeYoung populates a free region as young with the given occupancy and
// appends it to the eden list.
func (m *Manager) MakeYoung(idx uint32, used, live uint64) *Region {
	r := m.takeFree(idx)
	r.kind = KindYoung
	r.SetUsed(used)
	r.SetLiveBytes(live)
	r.SetContainingSet(SetNameEden)
	m.edenMu.Lock()
	m.edenList = append(m.edenList, idx)
	m.edenMu.Unlock()
	m.IncreaseUsed(used)
	return r
}

// MakeOld populates a free region as old with the given occupancy and adds
// it to the old set.
func (m *Manager) MakeOld(idx uint32, used, live uint64) *Region {
	r := m.takeFree(idx)
	r.kind = KindOld
	r.SetUsed(used)
	r.SetLiveBytes(live)
	m.IncreaseUsed(used)
	m.OldSetAdd(r)
	return r
}

// AllocHumongous populates spanRegions consecutive free regions starting at
// startIdx with one humongous object of the given kind and word size.
func (m *Manager) AllocHumongous(startIdx uint32, spanRegions uint32, sizeWords uint64, kind ObjectKind) *Region {
	Guarantee(spanRegions > 0, "humongous object must span at least one region")
	Guarantee(sizeWords*WordSize <= uint64(spanRegions)*m.regionBytes,
		"humongous object of %d words does not fit in %d regions", sizeWords, spanRegions)

	start := m.takeFree(startIdx)
	start.kind = KindHumongousStart
	start.objKind = kind
	start.objSizeWords = sizeWords
	start.SetContainingSet(SetNameHumongous)

	remaining := sizeWords * WordSize
	for i := uint32(0); i < spanRegions; i++ {
		r := start
		if i > 0 {
			r = m.takeFree(startIdx + i)
			r.kind = KindHumongousCont
			r.SetContainingSet(SetNameHumongous)
		}
		chunk := remaining
		if chunk > m.regionBytes {
			chunk = m.regionBytes
		}
		r.SetUsed(chunk)
		remaining -= chunk
		m.IncreaseUsed(chunk)
	}

	m.oldMu.Lock()
	m.humRegionCount += spanRegions
	m.humObjectCount++
	m.oldMu.Unlock()
	return start
}

func (m *Manager) takeFree(idx uint32) *Region {
	r := m.RegionAt(idx)
	Guarantee(r.IsFree(), "region %d is %s, expected free", idx, r.Kind())

	m.freeMu.Lock()
	defer m.freeMu.Unlock()
	Guarantee(m.onFree[idx], "region %d free but not on the free list", idx)
	for i, fi := range m.freeList {
		if fi == idx {
			m.freeList = append(m.freeList[:i], m.freeList[i+1:]...)
			break
		}
	}
	m.onFree[idx] = false
	return r
}

// FreeRegion returns an evacuated region to the master free list and clears
// its remembered set. Not valid for humongous regions.
func (m *Manager) FreeRegion(r *Region) {
	Guarantee(!r.IsHumongousStart() && !r.IsHumongousCont(),
		"region %d is humongous, use FreeHumongousRegion", r.Index())
	m.freeRegionImpl(r)
}

// FreeHumongousRegion returns one region of a humongous object to the
// master free list.
func (m *Manager) FreeHumongousRegion(r *Region) {
	Guarantee(r.IsHumongousStart() || r.IsHumongousCont(),
		"region %d is %s, expected humongous", r.Index(), r.Kind())
	m.freeRegionImpl(r)
}

func (m *Manager) freeRegionImpl(r *Region) {
	Guarantee(!r.IsFree(), "double free of region %d", r.Index())

	r.remSet.Clear()
	r.kind = KindFree
	r.objKind = ObjectKindNone
	r.objSizeWords = 0
	r.SetUsed(0)
	r.SetLiveBytes(0)
	r.SetContainingSet("")
	r.ResetScanState()
	r.ResetTopAtMarkStart()

	m.freeMu.Lock()
	Guarantee(!m.onFree[r.Index()], "region %d already on the free list", r.Index())
	m.freeList = append(m.freeList, r.Index())
	m.onFree[r.Index()] = true
	m.freeMu.Unlock()
}

// IsOnFreeList reports whether the region is on the master free list.
func (m *Manager) IsOnFreeList(r *Region) bool {
	m.freeMu.Lock()
	defer m.freeMu.Unlock()
	return m.onFree[r.Index()]
}

// FreeListLength returns the number of regions on the master free list.
func (m *Manager) FreeListLength() int {
	m.freeMu.Lock()
	defer m.freeMu.Unlock()
	return len(m.freeList)
}

// OldSetAdd inserts a region into the old-generation set under the old sets
// lock. This is the single step of the parallel cleanup path that requires
// mutual exclusion.
func (m *Manager) OldSetAdd(r *Region) {
	Guarantee(r.IsOld(), "region %d is %s, expected old", r.Index(), r.Kind())
	m.oldMu.Lock()
	defer m.oldMu.Unlock()
	_, dup := m.oldSet[r.Index()]
	Guarantee(!dup, "region %d already in the old set", r.Index())
	m.oldSet[r.Index()] = struct{}{}
	m.oldRegionCount++
	r.SetContainingSet(SetNameOld)
}

// OldSetRemove takes a region out of the old-generation set, called when an
// old region is selected into the collection set.
func (m *Manager) OldSetRemove(r *Region) {
	m.oldMu.Lock()
	defer m.oldMu.Unlock()
	_, ok := m.oldSet[r.Index()]
	Guarantee(ok, "region %d is not in the old set", r.Index())
	delete(m.oldSet, r.Index())
	m.oldRegionCount--
	r.SetContainingSet("")
}

// OldSetContains reports old-set membership for the region.
func (m *Manager) OldSetContains(r *Region) bool {
	m.oldMu.Lock()
	defer m.oldMu.Unlock()
	_, ok := m.oldSet[r.Index()]
	return ok
}

// OldSetLength returns the number of regions in the old set.
func (m *Manager) OldSetLength() int {
	m.oldMu.Lock()
	defer m.oldMu.Unlock()
	return len(m.oldSet)
}

// RemoveFromOldGenSets decrements the old-generation region counters after
// eager reclaim, which frees humongous regions without visiting the sets.
func (m *Manager) RemoveFromOldGenSets(oldRegions, humongousRegions uint32) {
	m.oldMu.Lock()
	defer m.oldMu.Unlock()
	Guarantee(oldRegions <= m.oldRegionCount, "old region count underflow")
	Guarantee(humongousRegions <= m.humRegionCount, "humongous region count underflow")
	m.oldRegionCount -= oldRegions
	m.humRegionCount -= humongousRegions
}

// OldRegionCount returns the number of old-generation regions tracked.
func (m *Manager) OldRegionCount() uint32 {
	m.oldMu.Lock()
	defer m.oldMu.Unlock()
	return m.oldRegionCount
}

// HumongousRegionCount returns the number of humongous regions tracked.
func (m *Manager) HumongousRegionCount() uint32 {
	m.oldMu.Lock()
	defer m.oldMu.Unlock()
	return m.humRegionCount
}

// NumHumongousObjects returns the number of live humongous objects.
func (m *Manager) NumHumongousObjects() uint32 {
	m.oldMu.Lock()
	defer m.oldMu.Unlock()
	return m.humObjectCount
}

// HumongousObjectReclaimed decrements the live humongous object counter.
func (m *Manager) HumongousObjectReclaimed() {
	m.oldMu.Lock()
	defer m.oldMu.Unlock()
	Guarantee(m.humObjectCount > 0, "humongous object count underflow")
	m.humObjectCount--
}

// SetHumongousReclaimCandidate flags or unflags the humongous start region
// at idx as an eager-reclaim candidate.
func (m *Manager) SetHumongousReclaimCandidate(idx uint32, candidate bool) {
	m.oldMu.Lock()
	defer m.oldMu.Unlock()
	if m.humCandidates[idx] == candidate {
		return
	}
	m.humCandidates[idx] = candidate
	if candidate {
		m.numHumCandidate++
	} else {
		m.numHumCandidate--
	}
}

// IsHumongousReclaimCandidate reports whether the region at idx is still an
// eager-reclaim candidate.
func (m *Manager) IsHumongousReclaimCandidate(idx uint32) bool {
	m.oldMu.Lock()
	defer m.oldMu.Unlock()
	return m.humCandidates[idx]
}

// HasHumongousReclaimCandidates reports whether any candidate remains.
func (m *Manager) HasHumongousReclaimCandidates() bool {
	m.oldMu.Lock()
	defer m.oldMu.Unlock()
	return m.numHumCandidate > 0
}

// NumHumongousReclaimCandidates returns the candidate count.
func (m *Manager) NumHumongousReclaimCandidates() uint32 {
	m.oldMu.Lock()
	defer m.oldMu.Unlock()
	return m.numHumCandidate
}

// HumongousObjRegionsIterate applies fn to every region spanned by the
// humongous object starting at start: the start region and all following
// continuation regions.
func (m *Manager) HumongousObjRegionsIterate(start *Region, fn func(*Region)) {
	Guarantee(start.IsHumongousStart(), "region %d is %s, expected humongous start",
		start.Index(), start.Kind())
	fn(start)
	for idx := start.Index() + 1; idx < m.NumRegions(); idx++ {
		r := m.RegionAt(idx)
		if !r.IsHumongousCont() {
			break
		}
		fn(r)
	}
}

// ClearEden drops the transient eden list. The member regions themselves
// are freed by collection-set freeing.
func (m *Manager) ClearEden() {
	m.edenMu.Lock()
	m.edenList = nil
	m.edenMu.Unlock()
}

// EdenLength returns the number of regions on the eden list.
func (m *Manager) EdenLength() int {
	m.edenMu.Lock()
	defer m.edenMu.Unlock()
	return len(m.edenList)
}

// SetCollectionSetCandidatesStats stores the sampled remembered-set memory
// totals over the collection set candidates.
func (m *Manager) SetCollectionSetCandidatesStats(stats RemSetMemStats) {
	m.candStatsMu.Lock()
	m.candStats = stats
	m.candStatsMu.Unlock()
}

// CollectionSetCandidatesStats returns the last sampled candidate stats.
func (m *Manager) CollectionSetCandidatesStats() RemSetMemStats {
	m.candStatsMu.Lock()
	defer m.candStatsMu.Unlock()
	return m.candStats
}
