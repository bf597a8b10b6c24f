package cleanup

import (
	"github.com/regia-io/regia/internal/phases"
	"github.com/regia-io/regia/internal/task"
)

// updateDerivedPointersTask flushes the compiler's derived-pointer table.
type updateDerivedPointersTask struct {
	ctx *Context
}

func (t *updateDerivedPointersTask) Phase() phases.Phase { return phases.UpdateDerivedPointers }
func (t *updateDerivedPointersTask) WorkerCost() float64 { return 1.0 }
func (t *updateDerivedPointersTask) DoWork(workerID int) { t.ctx.DerivedPointers.UpdatePointers() }

// NewCleanupBatch2 builds the second post-evacuation batch: derived
// pointer fixups, humongous reclamation, the evacuation-failure recovery
// cluster, card redirtying, allocation-buffer resizing, and collection-set
// freeing. The recovery cluster only exists when this pause had failures.
func NewCleanupBatch2(ctx *Context) *task.Batch {
	ctx.Validate()

	b := task.NewBatch("post evacuate cleanup 2", ctx.Phases)
	b.AddSerial(&updateDerivedPointersTask{ctx: ctx})
	if ctx.Heap.HasHumongousReclaimCandidates() {
		b.AddSerial(NewEagerlyReclaimHumongousObjectsTask(ctx))
	}

	if ctx.EvacFailures.EvacuationFailed() {
		b.AddParallel(newRestorePreservedMarksTask(ctx))
		// Marks on retained-region bitmaps survive into a starting
		// concurrent cycle: those regions will all be old there.
		if !ctx.State.InConcurrentStartGC() {
			b.AddParallel(newClearRetainedRegionBitmapsTask(ctx))
		}
	}
	b.AddParallel(NewRedirtyLoggedCardsTask(ctx))
	if ctx.Tuning.ResizeAllocBuffers {
		b.AddParallel(NewResizeAllocBuffersTask(ctx))
	}
	b.AddParallel(NewFreeCollectionSetTask(ctx))
	return b
}

// RunPostEvacuateCleanup runs both cleanup batches back to back on the
// pool. Each batch is a synchronous fork-join; the caller blocks until the
// heap is consistent again.
func RunPostEvacuateCleanup(ctx *Context, pool *task.WorkerPool) {
	NewCleanupBatch1(ctx).Run(pool)
	NewCleanupBatch2(ctx).Run(pool)
}
