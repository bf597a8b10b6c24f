// Package phases records per-phase, per-worker elapsed time and counted
// work items for a collection pause. It is the timing sink consumed by the
// cleanup batches; aggregation happens after the pause, so recording only
// needs to be cheap, not lock-free.
package phases

import "sync"

// Phase identifies a named cleanup phase.
type Phase int

const (
	MergeWorkerStats Phase = iota
	RecalculateUsed
	SampleCSetCandidates
	RemSetScanCleanup
	RestoreRetainedRegions
	UpdateDerivedPointers
	EagerlyReclaimHumongous
	RestorePreservedMarks
	ClearRetainedBitmaps
	RedirtyCards
	ResizeAllocBuffers
	FreeCollectionSet
	YoungFreeCSet
	NonYoungFreeCSet

	numPhases
)

var phaseNames = [numPhases]string{
	"merge_worker_stats",
	"recalculate_used",
	"sample_cset_candidates",
	"remset_scan_cleanup",
	"restore_retained_regions",
	"update_derived_pointers",
	"eagerly_reclaim_humongous",
	"restore_preserved_marks",
	"clear_retained_bitmaps",
	"redirty_cards",
	"resize_alloc_buffers",
	"free_collection_set",
	"young_free_cset",
	"non_young_free_cset",
}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// NumPhases returns the number of defined phases.
func NumPhases() int { return int(numPhases) }

// Work item indexes within a phase.
const (
	RestoreRetainedRegionsNum = iota
	EagerlyReclaimNumTotal
	EagerlyReclaimNumCandidates
	EagerlyReclaimNumReclaimed
	RedirtyNumDirtied
)

type itemKey struct {
	phase Phase
	index int
}

// Recorder accumulates phase timings and work items keyed by worker index.
type Recorder struct {
	numWorkers int

	mu    sync.Mutex
	secs  map[Phase][]float64
	items map[itemKey][]uint64
}

// NewRecorder creates a recorder for the given worker pool size.
func NewRecorder(numWorkers int) *Recorder {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Recorder{
		numWorkers: numWorkers,
		secs:       make(map[Phase][]float64),
		items:      make(map[itemKey][]uint64),
	}
}

// NumWorkers returns the pool size the recorder was created for.
func (r *Recorder) NumWorkers() int { return r.numWorkers }

// RecordTimeSecs adds elapsed seconds for the phase on the given worker.
func (r *Recorder) RecordTimeSecs(p Phase, worker int, secs float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.secs[p]
	if !ok {
		s = make([]float64, r.numWorkers)
		r.secs[p] = s
	}
	s[worker] += secs
}

// RecordOrAddWorkItem adds a counted work item for the phase on the given
// worker, under the given item index.
func (r *Recorder) RecordOrAddWorkItem(p Phase, worker int, count uint64, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := itemKey{phase: p, index: index}
	s, ok := r.items[k]
	if !ok {
		s = make([]uint64, r.numWorkers)
		r.items[k] = s
	}
	s[worker] += count
}

// WorkerSecs returns the elapsed seconds recorded for the phase on one
// worker.
func (r *Recorder) WorkerSecs(p Phase, worker int) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.secs[p]; ok {
		return s[worker]
	}
	return 0
}

// SumSecs returns the elapsed seconds recorded for the phase across all
// workers.
func (r *Recorder) SumSecs(p Phase) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	for _, v := range r.secs[p] {
		total += v
	}
	return total
}

// SumWorkItems returns the total of the work item across all workers.
func (r *Recorder) SumWorkItems(p Phase, index int) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total uint64
	for _, v := range r.items[itemKey{phase: p, index: index}] {
		total += v
	}
	return total
}

// RecordedPhases returns the phases with at least one time sample, in phase
// order.
func (r *Recorder) RecordedPhases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Phase
	for p := Phase(0); p < numPhases; p++ {
		if _, ok := r.secs[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
