// Package mark is the concurrent-marking collaborator of the cleanup
// pipeline: the mark bitmap, per-region bitmap clearing, the eager-reclaim
// notification, and the collector state flag the pipeline consults.
package mark

import (
	"sync/atomic"

	"github.com/regia-io/regia/internal/heap"
)

// Bitmap tracks marked objects at word granularity over the heap address
// space. Bits are set with atomic or-stores so marking workers never tear
// each other's writes.
type Bitmap struct {
	words     []atomic.Uint64
	heapBytes uint64
}

// NewBitmap creates a clear bitmap covering heapBytes of address space.
func NewBitmap(heapBytes uint64) *Bitmap {
	bits := heapBytes / heap.WordSize
	return &Bitmap{
		words:     make([]atomic.Uint64, (bits+63)/64),
		heapBytes: heapBytes,
	}
}

func (b *Bitmap) bitFor(addr uint64) (word, mask uint64) {
	heap.Guarantee(addr < b.heapBytes, "address %#x outside the heap", addr)
	bit := addr / heap.WordSize
	return bit / 64, uint64(1) << (bit % 64)
}

// Mark sets the bit for addr.
func (b *Bitmap) Mark(addr uint64) {
	word, mask := b.bitFor(addr)
	for {
		old := b.words[word].Load()
		if b.words[word].CompareAndSwap(old, old|mask) {
			return
		}
	}
}

// IsMarked reports whether the bit for addr is set.
func (b *Bitmap) IsMarked(addr uint64) bool {
	word, mask := b.bitFor(addr)
	return b.words[word].Load()&mask != 0
}

// ClearRange clears all bits in [start, end).
func (b *Bitmap) ClearRange(start, end uint64) {
	for addr := start; addr < end; addr += heap.WordSize {
		word, mask := b.bitFor(addr)
		for {
			old := b.words[word].Load()
			if b.words[word].CompareAndSwap(old, old&^mask) {
				break
			}
		}
	}
}

// ConcurrentMark is the marking subsystem surface the cleanup pipeline
// uses.
type ConcurrentMark struct {
	hm     *heap.Manager
	bitmap *Bitmap

	eagerlyReclaimed atomic.Uint32
}

// NewConcurrentMark creates the marking collaborator for the heap.
func NewConcurrentMark(hm *heap.Manager) *ConcurrentMark {
	return &ConcurrentMark{
		hm:     hm,
		bitmap: NewBitmap(uint64(hm.NumRegions()) * hm.RegionBytes()),
	}
}

// Bitmap returns the mark bitmap.
func (cm *ConcurrentMark) Bitmap() *Bitmap { return cm.bitmap }

// IsMarkedInBitmap reports whether the object at addr carries a mark bit.
func (cm *ConcurrentMark) IsMarkedInBitmap(addr uint64) bool {
	return cm.bitmap.IsMarked(addr)
}

// ClearBitmapForRegion clears all mark bits covering the region.
func (cm *ConcurrentMark) ClearBitmapForRegion(r *heap.Region) {
	cm.bitmap.ClearRange(r.Bottom(), r.End())
}

// HumongousObjectEagerlyReclaimed tells the marking subsystem the humongous
// object starting in r is gone, so marking must not visit it again.
func (cm *ConcurrentMark) HumongousObjectEagerlyReclaimed(r *heap.Region) {
	heap.Guarantee(r.IsHumongousStart(),
		"eager reclaim notification for region %d of kind %s", r.Index(), r.Kind())
	cm.eagerlyReclaimed.Add(1)
}

// NumEagerlyReclaimed returns how many eager-reclaim notifications were
// delivered. Diagnostic use only.
func (cm *ConcurrentMark) NumEagerlyReclaimed() uint32 {
	return cm.eagerlyReclaimed.Load()
}

// CollectorState carries the pause-global collector flags the cleanup
// pipeline consults.
type CollectorState struct {
	inConcurrentStartGC bool
}

// SetInConcurrentStartGC flags the current pause as the start of a
// concurrent marking cycle.
func (s *CollectorState) SetInConcurrentStartGC(v bool) { s.inConcurrentStartGC = v }

// InConcurrentStartGC reports whether the current pause starts a concurrent
// marking cycle. Retained-region bitmaps must survive into that cycle.
func (s *CollectorState) InConcurrentStartGC() bool { return s.inConcurrentStartGC }
