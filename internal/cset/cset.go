// Package cset holds the collection set chosen for the current pause and
// the subset of its regions where evacuation failed.
package cset

import (
	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/task"
)

// CollectionSet is the ordered set of regions selected for the current
// pause: a young subset followed by an old subset, plus the old candidate
// regions considered for future pauses.
type CollectionSet struct {
	hm          *heap.Manager
	regions     []uint32
	youngLength int
	candidates  []uint32
}

// New creates an empty collection set over the heap.
func New(hm *heap.Manager) *CollectionSet {
	return &CollectionSet{hm: hm}
}

// AddYoung appends a young region to the collection set, assigning its
// 1-based young index.
func (cs *CollectionSet) AddYoung(r *heap.Region) {
	heap.Guarantee(r.IsYoung(), "region %d is %s, expected young", r.Index(), r.Kind())
	cs.youngLength++
	r.EnterCollectionSet(cs.youngLength)
	cs.regions = append(cs.regions, r.Index())
}

// AddOld appends an old region to the collection set. The region leaves
// the old set; it either ends up freed or is re-added on failure.
func (cs *CollectionSet) AddOld(r *heap.Region) {
	heap.Guarantee(r.IsOld(), "region %d is %s, expected old", r.Index(), r.Kind())
	cs.hm.OldSetRemove(r)
	r.EnterCollectionSet(0)
	cs.regions = append(cs.regions, r.Index())
}

// AddCandidate records an old region as a collection candidate for future
// pauses. Candidates are not members of the current collection set.
func (cs *CollectionSet) AddCandidate(r *heap.Region) {
	cs.candidates = append(cs.candidates, r.Index())
}

// RegionLength returns the number of member regions.
func (cs *CollectionSet) RegionLength() int { return len(cs.regions) }

// YoungRegionLength returns the number of young member regions.
func (cs *CollectionSet) YoungRegionLength() int { return cs.youngLength }

// RegionAtPosition returns the member region at the given position.
func (cs *CollectionSet) RegionAtPosition(pos int) *heap.Region {
	return cs.hm.RegionAt(cs.regions[pos])
}

// Iterate visits every member region in order on the calling goroutine.
func (cs *CollectionSet) Iterate(fn func(*heap.Region)) {
	for _, idx := range cs.regions {
		fn(cs.hm.RegionAt(idx))
	}
}

// ParIterateAll visits, on behalf of workerID, every member region the
// worker claims. Each region is visited by exactly one worker.
func (cs *CollectionSet) ParIterateAll(claimer *task.RegionClaimer, workerID int, fn func(*heap.Region)) {
	heap.Guarantee(claimer.Length() == len(cs.regions),
		"claimer over %d positions does not match collection set of %d regions",
		claimer.Length(), len(cs.regions))
	claimer.Iterate(workerID, func(pos int) {
		fn(cs.hm.RegionAt(cs.regions[pos]))
	})
}

// Candidates visits the candidate regions in order.
func (cs *CollectionSet) Candidates(fn func(*heap.Region)) {
	for _, idx := range cs.candidates {
		fn(cs.hm.RegionAt(idx))
	}
}

// NumCandidates returns the number of candidate regions.
func (cs *CollectionSet) NumCandidates() int { return len(cs.candidates) }

// Clear empties the collection set container and resets the per-pause
// collection-set state of every member region. Candidates survive across
// pauses.
func (cs *CollectionSet) Clear() {
	for _, idx := range cs.regions {
		cs.hm.RegionAt(idx).LeaveCollectionSet()
	}
	cs.regions = nil
	cs.youngLength = 0
}
