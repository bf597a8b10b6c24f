package cleanup

import (
	"time"

	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/phases"
	"github.com/regia-io/regia/internal/task"
)

// FreeCSetStats keeps one worker's collection-set freeing statistics. They
// are merged into heap-wide counters exactly once, at subtask finalize,
// never on the hot path.
type FreeCSetStats struct {
	beforeUsedBytes     uint64 // usage in regions successfully evacuated
	afterUsedBytes      uint64 // usage in regions failing evacuation
	bytesAllocatedInOld uint64 // size of young regions turned into old
	failureUsedWords    uint64 // live size in failed regions
	failureWasteWords   uint64 // wasted size in failed regions
	rsLength            uint64 // remembered set size
	regionsFreed        uint32
}

// MergeStats accumulates another worker's statistics.
func (s *FreeCSetStats) MergeStats(other *FreeCSetStats) {
	heap.Guarantee(other != nil, "merging nil free cset stats")
	s.beforeUsedBytes += other.beforeUsedBytes
	s.afterUsedBytes += other.afterUsedBytes
	s.bytesAllocatedInOld += other.bytesAllocatedInOld
	s.failureUsedWords += other.failureUsedWords
	s.failureWasteWords += other.failureWasteWords
	s.rsLength += other.rsLength
	s.regionsFreed += other.regionsFreed
}

// Report pushes the merged totals into the heap counters, the policy, and
// the pause summary.
func (s *FreeCSetStats) Report(ctx *Context) {
	ctx.EvacInfo.SetRegionsFreed(s.regionsFreed)
	ctx.EvacInfo.SetCollectionSetUsedBefore(s.beforeUsedBytes + s.afterUsedBytes)
	ctx.EvacInfo.IncrementCollectionSetUsedAfter(s.afterUsedBytes)

	ctx.Heap.DecrementSummaryBytes(s.beforeUsedBytes)
	ctx.Policy.OldEvacStats().AddFailureUsedAndWaste(s.failureUsedWords, s.failureWasteWords)
	ctx.Policy.OldGenAllocTracker().AddAllocatedBytesSinceLastGC(s.bytesAllocatedInOld)
	ctx.Policy.RecordRSLength(s.rsLength)
	ctx.Policy.CSetRegionsFreed()
}

// AccountFailedRegion derives live and wasted words from the region's
// liveness estimate. Moving a young region to old gen "allocates" the whole
// region there, in addition to any already evacuated objects; old regions
// cause no additional allocation since their bytes are accounted elsewhere.
func (s *FreeCSetStats) AccountFailedRegion(r *heap.Region, regionWords, regionBytes uint64) {
	usedWords := r.LiveBytes() / heap.WordSize
	s.failureUsedWords += usedWords
	s.failureWasteWords += regionWords - usedWords
	s.afterUsedBytes += r.Used()

	if r.IsYoung() {
		s.bytesAllocatedInOld += regionBytes
	}
}

// AccountEvacuatedRegion accumulates the prior usage of a region about to
// be freed.
func (s *FreeCSetStats) AccountEvacuatedRegion(r *heap.Region) {
	used := r.Used()
	heap.Guarantee(used > 0, "region %d %s zero used", r.Index(), r.ShortTypeStr())
	s.beforeUsedBytes += used
	s.regionsFreed++
}

// AccountRSLength samples the region's remembered-set occupancy.
func (s *FreeCSetStats) AccountRSLength(r *heap.Region) {
	s.rsLength += r.RemSet().Occupied()
}

// RegionsFreed returns the freed-region counter.
func (s *FreeCSetStats) RegionsFreed() uint32 { return s.regionsFreed }

// freeCSetVisitor is applied to every collection-set region claimed by one
// worker.
type freeCSetVisitor struct {
	ctx      *Context
	workerID int
	stats    *FreeCSetStats

	youngTime    time.Duration
	nonYoungTime time.Duration
}

func (v *freeCSetVisitor) visit(r *heap.Region) {
	heap.Guarantee(r.InCollectionSet(), "region %d missing from the collection set", r.Index())
	start := time.Now()

	v.stats.AccountRSLength(r)

	young := r.IsYoung()
	if young {
		idx := r.YoungIndexInCSet()
		heap.Guarantee(idx != 0 && idx <= v.ctx.CSet.YoungRegionLength(),
			"young index %d is wrong for region %d with %d young regions",
			idx, r.Index(), v.ctx.CSet.YoungRegionLength())
		r.RecordSurvWordsInGroup(v.ctx.Workers.SurvivingYoungWords()[idx])
	}

	if v.ctx.EvacFailures.Contains(r.Index()) {
		v.handleFailedRegion(r)
	} else {
		v.handleEvacuatedRegion(r)
	}

	if young {
		v.youngTime += time.Since(start)
	} else {
		v.nonYoungTime += time.Since(start)
	}
}

func (v *freeCSetVisitor) handleEvacuatedRegion(r *heap.Region) {
	heap.Guarantee(!r.IsEmpty(), "region %d is an empty region in the collection set", r.Index())
	v.stats.AccountEvacuatedRegion(r)

	// Free the region and its remembered set.
	v.ctx.Heap.FreeRegion(r)
}

func (v *freeCSetVisitor) handleFailedRegion(r *heap.Region) {
	// Failed regions are always made old, so only old gen statistics need
	// updating.
	v.stats.AccountFailedRegion(r, v.ctx.Heap.RegionWords(), v.ctx.Heap.RegionBytes())

	v.ctx.Phases.RecordOrAddWorkItem(phases.RestoreRetainedRegions, v.workerID, 1,
		phases.RestoreRetainedRegionsNum)

	// Update the region state due to the failed evacuation, then insert it
	// into the old set. The insertion takes the old sets lock.
	r.HandleEvacuationFailure()
	v.ctx.Heap.OldSetAdd(r)

	heap.Guarantee(!v.ctx.Heap.IsOnFreeList(r), "retained region %d on the free list", r.Index())
}

func (v *freeCSetVisitor) reportTiming() {
	if v.youngTime > 0 {
		v.ctx.Phases.RecordTimeSecs(phases.YoungFreeCSet, v.workerID, v.youngTime.Seconds())
	}
	if v.nonYoungTime > 0 {
		v.ctx.Phases.RecordTimeSecs(phases.NonYoungFreeCSet, v.workerID, v.nonYoungTime.Seconds())
	}
}

// FreeCollectionSetTask frees every successfully evacuated collection-set
// region and routes failed regions into the old generation. Claiming is
// per region; per-worker statistics merge at finalize.
type FreeCollectionSetTask struct {
	ctx           *Context
	workerStats   []*FreeCSetStats
	claimer       *task.RegionClaimer
	activeWorkers int
}

// NewFreeCollectionSetTask creates the freeing subtask and clears the
// transient eden set, which only tracked the members about to be freed.
func NewFreeCollectionSetTask(ctx *Context) *FreeCollectionSetTask {
	ctx.Heap.ClearEden()
	return &FreeCollectionSetTask{ctx: ctx}
}

// Phase implements task.SubTask.
func (t *FreeCollectionSetTask) Phase() phases.Phase { return phases.FreeCollectionSet }

// WorkerCost is the number of member regions.
func (t *FreeCollectionSetTask) WorkerCost() float64 {
	return float64(t.ctx.CSet.RegionLength())
}

// SetMaxWorkers sizes the per-worker statistics and the region claimer.
func (t *FreeCollectionSetTask) SetMaxWorkers(n int) {
	t.activeWorkers = n
	t.workerStats = make([]*FreeCSetStats, n)
	for i := range t.workerStats {
		t.workerStats[i] = &FreeCSetStats{}
	}
	t.claimer = task.NewRegionClaimer(t.ctx.CSet.RegionLength())
	t.claimer.SetNumWorkers(n)
}

// DoWork implements task.SubTask.
func (t *FreeCollectionSetTask) DoWork(workerID int) {
	v := &freeCSetVisitor{
		ctx:      t.ctx,
		workerID: workerID,
		stats:    t.workerStats[workerID],
	}
	t.ctx.CSet.ParIterateAll(t.claimer, workerID, v.visit)
	v.reportTiming()
}

// Finalize merges the per-worker statistics, reports the totals, and
// clears the collection-set container. Runs once, after the join.
func (t *FreeCollectionSetTask) Finalize() {
	total := &FreeCSetStats{}
	for _, ws := range t.workerStats {
		total.MergeStats(ws)
	}
	total.Report(t.ctx)
	t.ctx.CSet.Clear()
}
