package cleanup

import (
	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/phases"
	"github.com/regia-io/regia/internal/task"
)

// mergeWorkerStatsTask flushes the per-worker evacuation states into the
// heap totals. Strictly first: later subtasks read the merged numbers.
type mergeWorkerStatsTask struct {
	ctx *Context
}

func (t *mergeWorkerStatsTask) Phase() phases.Phase { return phases.MergeWorkerStats }
func (t *mergeWorkerStatsTask) WorkerCost() float64 { return 1.0 }
func (t *mergeWorkerStatsTask) DoWork(workerID int) { t.ctx.Workers.FlushStats() }

// recalculateUsedTask recomputes the heap used-bytes summary. Without an
// evacuation failure there is almost nothing to do.
type recalculateUsedTask struct {
	ctx        *Context
	evacFailed bool
}

func (t *recalculateUsedTask) Phase() phases.Phase { return phases.RecalculateUsed }

func (t *recalculateUsedTask) WorkerCost() float64 {
	if t.evacFailed {
		return 1.0
	}
	return task.AlmostNoWork
}

func (t *recalculateUsedTask) DoWork(workerID int) {
	t.ctx.Heap.UpdateUsedAfterGC(t.evacFailed)
}

// sampleCSetCandidatesTask sums remembered-set memory statistics over the
// collection-set candidates. Only scheduled when the policy asks for a
// sample.
type sampleCSetCandidatesTask struct {
	ctx *Context
}

func (t *sampleCSetCandidatesTask) Phase() phases.Phase { return phases.SampleCSetCandidates }
func (t *sampleCSetCandidatesTask) WorkerCost() float64 { return 1.0 }

func (t *sampleCSetCandidatesTask) DoWork(workerID int) {
	var total heap.RemSetMemStats
	t.ctx.CSet.Candidates(func(r *heap.Region) {
		total.Add(r.RemSet().MemStats())
	})
	t.ctx.Heap.SetCollectionSetCandidatesStats(total)
}

// remSetScanCleanupTask resets the per-region remembered-set scan state
// written while scanning heap roots. Every region is claimed by exactly
// one worker; the per-region work is a few stores, so many regions go to
// each worker.
type remSetScanCleanupTask struct {
	ctx     *Context
	claimer *task.RegionClaimer
}

// regionsPerScanCleanupWorker controls how much of the region table one
// worker's cost share represents.
const regionsPerScanCleanupWorker = 512

func newRemSetScanCleanupTask(ctx *Context) *remSetScanCleanupTask {
	return &remSetScanCleanupTask{
		ctx:     ctx,
		claimer: task.NewRegionClaimer(int(ctx.Heap.NumRegions())),
	}
}

func (t *remSetScanCleanupTask) Phase() phases.Phase { return phases.RemSetScanCleanup }

func (t *remSetScanCleanupTask) WorkerCost() float64 {
	return float64(t.ctx.Heap.NumRegions()) / regionsPerScanCleanupWorker
}

func (t *remSetScanCleanupTask) SetMaxWorkers(n int) {
	t.claimer.SetNumWorkers(n)
}

func (t *remSetScanCleanupTask) DoWork(workerID int) {
	t.claimer.Iterate(workerID, func(i int) {
		t.ctx.Heap.RegionAt(uint32(i)).ResetScanState()
	})
}

// NewCleanupBatch1 builds the first post-evacuation batch: statistics
// flush, used-bytes recomputation, optional candidate sampling, remembered
// set scan cleanup, and, when evacuation failed, self-forward removal.
func NewCleanupBatch1(ctx *Context) *task.Batch {
	ctx.Validate()
	evacFailed := ctx.EvacFailures.EvacuationFailed()

	b := task.NewBatch("post evacuate cleanup 1", ctx.Phases)
	b.AddSerial(&mergeWorkerStatsTask{ctx: ctx})
	b.AddSerial(&recalculateUsedTask{ctx: ctx, evacFailed: evacFailed})
	if ctx.Policy.ShouldSampleCandidates() {
		b.AddSerial(&sampleCSetCandidatesTask{ctx: ctx})
	}
	b.AddParallel(newRemSetScanCleanupTask(ctx))
	if evacFailed {
		b.AddParallel(newRestoreRetainedRegionsTask(ctx))
	}
	return b
}
