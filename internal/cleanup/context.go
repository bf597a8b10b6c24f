// Package cleanup implements the two post-evacuation batches that restore
// heap consistency after a pause has copied live objects out of the
// collection set: freeing evacuated regions, recovering regions that
// failed evacuation, eagerly reclaiming dead humongous objects, redirtying
// logged cards, and resizing allocation buffers.
package cleanup

import (
	"sync"

	"github.com/regia-io/regia/internal/cardq"
	"github.com/regia-io/regia/internal/cset"
	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/mark"
	"github.com/regia-io/regia/internal/phases"
	"github.com/regia-io/regia/internal/policy"
)

// Tuning carries the cleanup knobs with per-pause stable values.
type Tuning struct {
	// ChunksPerRegion is the parallel granularity of self-forward removal
	// inside one failed region.
	ChunksPerRegion int

	// ChunksPerWorker is the target number of such chunks per worker.
	ChunksPerWorker int

	// ThreadsPerWorker is the claim batch size for allocation-buffer
	// resizing. There is little work per thread, so the batch is large.
	ThreadsPerWorker int

	// ResizeAllocBuffers enables the allocation-buffer resizing subtask.
	ResizeAllocBuffers bool
}

// DefaultTuning returns the default cleanup knobs.
func DefaultTuning() Tuning {
	return Tuning{
		ChunksPerRegion:    16,
		ChunksPerWorker:    16,
		ThreadsPerWorker:   250,
		ResizeAllocBuffers: true,
	}
}

func (t Tuning) withDefaults() Tuning {
	d := DefaultTuning()
	if t.ChunksPerRegion <= 0 {
		t.ChunksPerRegion = d.ChunksPerRegion
	}
	if t.ChunksPerWorker <= 0 {
		t.ChunksPerWorker = d.ChunksPerWorker
	}
	if t.ThreadsPerWorker <= 0 {
		t.ThreadsPerWorker = d.ThreadsPerWorker
	}
	return t
}

// DerivedPointerUpdater is the compiler-side collaborator flushed at the
// start of the second batch.
type DerivedPointerUpdater interface {
	UpdatePointers()
}

// NoopDerivedPointers satisfies DerivedPointerUpdater for builds without a
// derived-pointer table.
type NoopDerivedPointers struct{}

// UpdatePointers does nothing.
func (NoopDerivedPointers) UpdatePointers() {}

// Context hands every subtask its collaborators explicitly. Nothing in the
// pipeline reaches for ambient global state, so the whole core runs against
// a synthetic heap in tests.
type Context struct {
	Heap         *heap.Manager
	CSet         *cset.CollectionSet
	EvacFailures *cset.EvacFailureRegions
	Mark         *mark.ConcurrentMark
	State        *mark.CollectorState
	Policy       *policy.Policy
	EvacInfo     *policy.EvacInfo
	Phases       *phases.Recorder

	Workers *EvacWorkerStates

	// RDCQS holds the cards logged during this pause's evacuation; leftover
	// buffers are merged into DirtyCards at teardown for the next pause.
	RDCQS      *cardq.QueueSet
	DirtyCards *cardq.QueueSet

	Threads *heap.ThreadRegistry

	Headers      *HeaderTable
	SelfForwards *SelfForwardLog

	DerivedPointers DerivedPointerUpdater

	Tuning Tuning
}

// Validate normalizes the tuning knobs and checks the required
// collaborators are present.
func (c *Context) Validate() {
	heap.Guarantee(c.Heap != nil, "cleanup context without a heap")
	heap.Guarantee(c.CSet != nil, "cleanup context without a collection set")
	heap.Guarantee(c.EvacFailures != nil, "cleanup context without a failure set")
	heap.Guarantee(c.Mark != nil, "cleanup context without a marking subsystem")
	heap.Guarantee(c.Policy != nil, "cleanup context without a policy")
	heap.Guarantee(c.Phases != nil, "cleanup context without a phase recorder")
	heap.Guarantee(c.Workers != nil, "cleanup context without worker states")
	if c.State == nil {
		c.State = &mark.CollectorState{}
	}
	if c.EvacInfo == nil {
		c.EvacInfo = policy.NewEvacInfo("")
	}
	if c.RDCQS == nil {
		c.RDCQS = cardq.NewQueueSet()
	}
	if c.DirtyCards == nil {
		c.DirtyCards = cardq.NewQueueSet()
	}
	if c.Threads == nil {
		c.Threads = heap.NewThreadRegistry()
	}
	if c.Headers == nil {
		c.Headers = NewHeaderTable()
	}
	if c.SelfForwards == nil {
		c.SelfForwards = NewSelfForwardLog()
	}
	if c.DerivedPointers == nil {
		c.DerivedPointers = NoopDerivedPointers{}
	}
	c.Tuning = c.Tuning.withDefaults()
}

// EvacWorkerStates is the per-worker scratch state the evacuation phase
// produced: surviving word counts per young region, preserved mark logs,
// and the redirty card queues. The cleanup batches consume it; FlushStats
// merges the per-worker surviving word counts exactly once.
type EvacWorkerStates struct {
	numWorkers  int
	youngLength int

	mu        sync.Mutex
	perWorker [][]uint64 // surviving words, indexed by 1-based young index
	total     []uint64
	flushed   bool

	preserved *PreservedMarksSet
}

// NewEvacWorkerStates creates scratch state for numWorkers workers over a
// collection set with youngLength young regions.
func NewEvacWorkerStates(numWorkers, youngLength int) *EvacWorkerStates {
	s := &EvacWorkerStates{
		numWorkers:  numWorkers,
		youngLength: youngLength,
		perWorker:   make([][]uint64, numWorkers),
		total:       make([]uint64, youngLength+1),
		preserved:   NewPreservedMarksSet(numWorkers),
	}
	for w := range s.perWorker {
		s.perWorker[w] = make([]uint64, youngLength+1)
	}
	return s
}

// AddSurvivingWords accrues surviving words observed by a worker for the
// young region with the given 1-based young index.
func (s *EvacWorkerStates) AddSurvivingWords(worker, youngIndex int, words uint64) {
	heap.Guarantee(youngIndex >= 1 && youngIndex <= s.youngLength,
		"young index %d out of range 1..%d", youngIndex, s.youngLength)
	s.perWorker[worker][youngIndex] += words
}

// FlushStats merges the per-worker surviving word counts into the totals.
// Called once, by the serial merge subtask.
func (s *EvacWorkerStates) FlushStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Guarantee(!s.flushed, "worker states flushed twice")
	s.flushed = true
	for _, per := range s.perWorker {
		for i, v := range per {
			s.total[i] += v
		}
	}
}

// SurvivingYoungWords returns the merged surviving word counts, indexed by
// 1-based young index. Valid only after FlushStats.
func (s *EvacWorkerStates) SurvivingYoungWords() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Guarantee(s.flushed, "surviving young words read before flush")
	return s.total
}

// Flushed reports whether FlushStats has run.
func (s *EvacWorkerStates) Flushed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushed
}

// PreservedMarks returns the per-worker preserved mark logs.
func (s *EvacWorkerStates) PreservedMarks() *PreservedMarksSet {
	return s.preserved
}

// NumWorkers returns the number of per-worker states.
func (s *EvacWorkerStates) NumWorkers() int { return s.numWorkers }
