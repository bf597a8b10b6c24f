// Package heap implements the region-based heap model: fixed-size regions,
// per-region remembered sets, the card table, allocation buffers, and the
// region manager that owns the free list and the generation sets.
package heap

import "fmt"

// WordSize is the size in bytes of a heap word.
const WordSize = 8

// CardBytes is the number of heap bytes covered by one card table entry.
const CardBytes = 512

// RegionKind classifies a heap region. Kind and collection-set membership
// are mutually exclusive invariants checked at every pause.
type RegionKind int

const (
	KindFree RegionKind = iota
	KindYoung
	KindOld
	KindHumongousStart
	KindHumongousCont
)

func (k RegionKind) String() string {
	switch k {
	case KindFree:
		return "free"
	case KindYoung:
		return "young"
	case KindOld:
		return "old"
	case KindHumongousStart:
		return "humongous-start"
	case KindHumongousCont:
		return "humongous-cont"
	default:
		return "unknown"
	}
}

// ObjectKind classifies the single object occupying a humongous region.
// Only primitive arrays are eligible for eager reclaim: they hold no
// outward references, so no other region's remembered set needs scrubbing.
type ObjectKind int

const (
	ObjectKindNone ObjectKind = iota
	ObjectKindTypeArray
	ObjectKindObjArray
	ObjectKindPlain
)

func (k ObjectKind) String() string {
	switch k {
	case ObjectKindNone:
		return "none"
	case ObjectKindTypeArray:
		return "type-array"
	case ObjectKindObjArray:
		return "obj-array"
	case ObjectKindPlain:
		return "plain"
	default:
		return "unknown"
	}
}

// Region is a fixed-size heap segment. Exactly one owner (the Manager's
// region table) at all times; a freed region returns to the free list.
type Region struct {
	idx        uint32
	kind       RegionKind
	bottom     uint64
	regionSize uint64

	used      uint64 // bytes occupied
	liveBytes uint64 // liveness estimate from the last marking

	remSet *RemSet

	// Collection-set bookkeeping for the current pause.
	inCSet           bool
	youngIndexInCSet int
	survWordsInGroup uint64
	evacFailed       bool

	// Remembered-set scan state written during evacuation, reset by the
	// post-scan cleanup subtask.
	scanTop uint64

	// Mark state: "top at mark start" address for the running cycle.
	topAtMarkStart uint64

	// Humongous object occupying this start region.
	objKind      ObjectKind
	objSizeWords uint64

	// Name of the region set containing this region, empty if none.
	containingSet string
}

func newRegion(idx uint32, regionSize uint64) *Region {
	bottom := uint64(idx) * regionSize
	return &Region{
		idx:            idx,
		kind:           KindFree,
		bottom:         bottom,
		regionSize:     regionSize,
		remSet:         NewRemSet(),
		topAtMarkStart: bottom,
	}
}

// Index returns the region's position in the heap region table.
func (r *Region) Index() uint32 { return r.idx }

// Kind returns the region's current kind.
func (r *Region) Kind() RegionKind { return r.kind }

// Bottom returns the lowest address covered by the region.
func (r *Region) Bottom() uint64 { return r.bottom }

// End returns the address one past the region.
func (r *Region) End() uint64 { return r.bottom + r.regionSize }

// Used returns the occupied bytes.
func (r *Region) Used() uint64 { return r.used }

// SetUsed records the occupied bytes.
func (r *Region) SetUsed(n uint64) {
	Guarantee(n <= r.regionSize, "region %d used %d exceeds region size %d", r.idx, n, r.regionSize)
	r.used = n
}

// LiveBytes returns the liveness estimate for the region.
func (r *Region) LiveBytes() uint64 { return r.liveBytes }

// SetLiveBytes records the liveness estimate for the region.
func (r *Region) SetLiveBytes(n uint64) { r.liveBytes = n }

// RemSet returns the region's remembered set.
func (r *Region) RemSet() *RemSet { return r.remSet }

// IsFree reports whether the region is on the free list.
func (r *Region) IsFree() bool { return r.kind == KindFree }

// IsYoung reports whether the region belongs to the young generation.
func (r *Region) IsYoung() bool { return r.kind == KindYoung }

// IsOld reports whether the region belongs to the old generation.
func (r *Region) IsOld() bool { return r.kind == KindOld }

// IsHumongousStart reports whether the region starts a humongous object.
func (r *Region) IsHumongousStart() bool { return r.kind == KindHumongousStart }

// IsHumongousCont reports whether the region continues a humongous object.
func (r *Region) IsHumongousCont() bool { return r.kind == KindHumongousCont }

// IsEmpty reports whether the region has no occupied bytes.
func (r *Region) IsEmpty() bool { return r.used == 0 }

// InCollectionSet reports whether the region is a member of the current
// pause's collection set.
func (r *Region) InCollectionSet() bool { return r.inCSet }

// EnterCollectionSet marks the region as a member of the current pause's
// collection set. youngIndex is the 1-based young position, 0 for old
// regions.
func (r *Region) EnterCollectionSet(youngIndex int) {
	Guarantee(!r.inCSet, "region %d already in the collection set", r.idx)
	Guarantee(!r.IsFree() && !r.IsHumongousStart() && !r.IsHumongousCont(),
		"region %d of kind %s cannot join the collection set", r.idx, r.kind)
	r.inCSet = true
	r.youngIndexInCSet = youngIndex
}

// LeaveCollectionSet clears all per-pause collection-set state.
func (r *Region) LeaveCollectionSet() {
	r.inCSet = false
	r.youngIndexInCSet = 0
	r.survWordsInGroup = 0
	r.evacFailed = false
}

// YoungIndexInCSet returns the 1-based position of a young region in the
// collection set, 0 for non-young regions.
func (r *Region) YoungIndexInCSet() int { return r.youngIndexInCSet }

// RecordSurvWordsInGroup stores the post-evacuation surviving word count
// for a young region.
func (r *Region) RecordSurvWordsInGroup(words uint64) { r.survWordsInGroup = words }

// SurvWordsInGroup returns the recorded surviving word count.
func (r *Region) SurvWordsInGroup() uint64 { return r.survWordsInGroup }

// EvacuationFailed reports whether the region's evacuation-failure handling
// has completed this pause.
func (r *Region) EvacuationFailed() bool { return r.evacFailed }

// HandleEvacuationFailure transitions a region that could not be evacuated.
// A failed region is always retained as old generation regardless of its
// prior kind.
func (r *Region) HandleEvacuationFailure() {
	Guarantee(r.inCSet, "evacuation failure handling for region %d outside the collection set", r.idx)
	Guarantee(!r.evacFailed, "double evacuation failure handling for region %d", r.idx)
	r.kind = KindOld
	r.evacFailed = true
}

// ScanTop returns the remembered-set scan watermark for the region.
func (r *Region) ScanTop() uint64 { return r.scanTop }

// SetScanTop records the remembered-set scan watermark.
func (r *Region) SetScanTop(addr uint64) { r.scanTop = addr }

// ResetScanState clears the remembered-set scan watermark after heap-root
// scanning is complete.
func (r *Region) ResetScanState() { r.scanTop = 0 }

// TopAtMarkStart returns the TAMS address for the region.
func (r *Region) TopAtMarkStart() uint64 { return r.topAtMarkStart }

// SetTopAtMarkStart records the TAMS address for the region.
func (r *Region) SetTopAtMarkStart(addr uint64) { r.topAtMarkStart = addr }

// ResetTopAtMarkStart moves TAMS back to the region bottom.
func (r *Region) ResetTopAtMarkStart() { r.topAtMarkStart = r.bottom }

// ObjectKind returns the kind of the humongous object starting in this
// region, ObjectKindNone otherwise.
func (r *Region) ObjectKind() ObjectKind { return r.objKind }

// ObjectSizeWords returns the word size of the humongous object starting
// in this region.
func (r *Region) ObjectSizeWords() uint64 { return r.objSizeWords }

// SetContainingSet records the name of the region set holding this region.
func (r *Region) SetContainingSet(name string) { r.containingSet = name }

// ContainingSet returns the name of the region set holding this region.
func (r *Region) ContainingSet() string { return r.containingSet }

// ShortTypeStr returns a compact kind tag used in fatal messages.
func (r *Region) ShortTypeStr() string {
	switch r.kind {
	case KindFree:
		return "F"
	case KindYoung:
		return "Y"
	case KindOld:
		return "O"
	case KindHumongousStart:
		return "HS"
	case KindHumongousCont:
		return "HC"
	default:
		return "?"
	}
}

func (r *Region) String() string {
	return fmt.Sprintf("region %d [%s, used=%d]", r.idx, r.kind, r.used)
}
