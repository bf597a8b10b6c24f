package cset

import (
	"sync/atomic"

	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/task"
)

// EvacFailureRegions tracks the collection-set regions where at least one
// object could not be copied. Membership is all-or-nothing per region and
// recorded at most once; the set is computed during evacuation and
// immutable for the remainder of the pause.
type EvacFailureRegions struct {
	hm      *heap.Manager
	bits    []atomic.Bool
	indexes []uint32
	count   atomic.Uint32
}

// NewEvacFailureRegions creates an empty failure set over the heap.
func NewEvacFailureRegions(hm *heap.Manager) *EvacFailureRegions {
	return &EvacFailureRegions{
		hm:      hm,
		bits:    make([]atomic.Bool, hm.NumRegions()),
		indexes: make([]uint32, hm.NumRegions()),
	}
}

// Record marks the region as failed. Safe to call from concurrent
// evacuation workers; only the first call per region takes effect. It
// reports whether this call was the first.
func (ef *EvacFailureRegions) Record(idx uint32) bool {
	if !ef.bits[idx].CompareAndSwap(false, true) {
		return false
	}
	slot := ef.count.Add(1) - 1
	ef.indexes[slot] = idx
	return true
}

// Contains reports failure-set membership for the region index.
func (ef *EvacFailureRegions) Contains(idx uint32) bool {
	return ef.bits[idx].Load()
}

// EvacuationFailed reports whether any region failed evacuation this pause.
func (ef *EvacFailureRegions) EvacuationFailed() bool {
	return ef.count.Load() > 0
}

// NumRegionsFailed returns the number of failed regions.
func (ef *EvacFailureRegions) NumRegionsFailed() uint32 {
	return ef.count.Load()
}

// ParIterate visits, on behalf of workerID, every failed region the worker
// claims. Each failed region is visited by exactly one worker.
func (ef *EvacFailureRegions) ParIterate(claimer *task.RegionClaimer, workerID int, fn func(*heap.Region)) {
	heap.Guarantee(claimer.Length() == int(ef.count.Load()),
		"claimer over %d positions does not match %d failed regions",
		claimer.Length(), ef.count.Load())
	claimer.Iterate(workerID, func(pos int) {
		fn(ef.hm.RegionAt(ef.indexes[pos]))
	})
}

// Iterate visits every failed region on the calling goroutine.
func (ef *EvacFailureRegions) Iterate(fn func(*heap.Region)) {
	n := ef.count.Load()
	for i := uint32(0); i < n; i++ {
		fn(ef.hm.RegionAt(ef.indexes[i]))
	}
}
