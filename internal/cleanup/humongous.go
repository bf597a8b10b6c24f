package cleanup

import (
	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/logging"
	"github.com/regia-io/regia/internal/phases"
)

// freeHumongousVisitor scans the whole region table and frees humongous
// objects that are still flagged as reclaim candidates.
//
// At this point in the pause, checking candidacy alone is sufficient:
//
//   - an object that was not a candidate at the start of the pause never
//     becomes one (and live) during it;
//   - any outstanding reference discovered during the pause (in the dirty
//     card queues or a remembered set) revoked the candidate flag;
//   - no reference can originate from inside a humongous start region,
//     because nothing else is ever allocated into one;
//   - only object kinds that hold no outward references are eligible, so no
//     other region's remembered set needs scrubbing afterwards.
//
// Whether marking found the object dead is irrelevant: objects allocated
// during a concurrent cycle count as live there, and the snapshot marking
// is more conservative than the remembered set anyway. Absence of any
// discovered reference is the sufficient condition; remembered sets were
// fully up to date at the start of the pause after the refinement logs were
// flushed, so re-checking their size here would add nothing.
type freeHumongousVisitor struct {
	ctx *Context

	objectsReclaimed uint32
	regionsReclaimed uint32
	freedBytes       uint64
}

func (v *freeHumongousVisitor) visitIndex(idx uint32) {
	hm := v.ctx.Heap
	if !hm.IsHumongousReclaimCandidate(idx) {
		return
	}

	r := hm.RegionAt(idx)
	heap.Guarantee(r.ObjectKind() == heap.ObjectKindTypeArray,
		"only eagerly reclaiming primitive arrays is supported, but region %d holds a %s",
		idx, r.ObjectKind())

	logging.Debugf("reclaimed humongous region", map[string]any{
		"region":    idx,
		"sizeBytes": r.ObjectSizeWords() * heap.WordSize,
	})

	cm := v.ctx.Mark
	cm.HumongousObjectEagerlyReclaimed(r)
	heap.Guarantee(!cm.IsMarkedInBitmap(r.Bottom()),
		"eagerly reclaimed humongous region %d should not be marked at all", idx)
	hm.HumongousObjectReclaimed()
	hm.SetHumongousReclaimCandidate(idx, false)
	v.objectsReclaimed++

	hm.HumongousObjRegionsIterate(r, func(rr *heap.Region) {
		v.freedBytes += rr.Used()
		rr.SetContainingSet("")
		v.regionsReclaimed++
		hm.FreeHumongousRegion(rr)
	})
}

// EagerlyReclaimHumongousObjectsTask frees humongous objects that became
// unreferenced during the pause. Finalize removes the freed regions from
// the old-generation counters and the used-bytes summary.
type EagerlyReclaimHumongousObjectsTask struct {
	ctx *Context

	regionsReclaimed uint32
	bytesFreed       uint64
}

// NewEagerlyReclaimHumongousObjectsTask creates the reclaim subtask.
func NewEagerlyReclaimHumongousObjectsTask(ctx *Context) *EagerlyReclaimHumongousObjectsTask {
	return &EagerlyReclaimHumongousObjectsTask{ctx: ctx}
}

// Phase implements task.SubTask.
func (t *EagerlyReclaimHumongousObjectsTask) Phase() phases.Phase {
	return phases.EagerlyReclaimHumongous
}

// WorkerCost implements task.SubTask.
func (t *EagerlyReclaimHumongousObjectsTask) WorkerCost() float64 { return 1.0 }

// DoWork implements task.SubTask.
func (t *EagerlyReclaimHumongousObjectsTask) DoWork(workerID int) {
	hm := t.ctx.Heap

	numTotal := uint64(hm.NumHumongousObjects())
	numCandidates := uint64(hm.NumHumongousReclaimCandidates())

	v := &freeHumongousVisitor{ctx: t.ctx}
	for idx := uint32(0); idx < hm.NumRegions(); idx++ {
		v.visitIndex(idx)
	}

	rec := t.ctx.Phases
	rec.RecordOrAddWorkItem(phases.EagerlyReclaimHumongous, workerID, numTotal,
		phases.EagerlyReclaimNumTotal)
	rec.RecordOrAddWorkItem(phases.EagerlyReclaimHumongous, workerID, numCandidates,
		phases.EagerlyReclaimNumCandidates)
	rec.RecordOrAddWorkItem(phases.EagerlyReclaimHumongous, workerID, uint64(v.objectsReclaimed),
		phases.EagerlyReclaimNumReclaimed)

	t.regionsReclaimed = v.regionsReclaimed
	t.bytesFreed = v.freedBytes
}

// Finalize decrements the heap-wide counters by the accumulated totals.
func (t *EagerlyReclaimHumongousObjectsTask) Finalize() {
	t.ctx.Heap.RemoveFromOldGenSets(0, t.regionsReclaimed)
	t.ctx.Heap.DecrementSummaryBytes(t.bytesFreed)
}
