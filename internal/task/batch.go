package task

import (
	"sort"
	"time"

	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/phases"
)

// Batch is an ordered list of serial subtasks plus a set of subtasks
// eligible for parallel execution. Run executes serial subtasks first, in
// registration order, then distributes the worker pool across the parallel
// subtasks proportionally to their relative cost and joins.
type Batch struct {
	name     string
	rec      *phases.Recorder
	serial   []SubTask
	parallel []SubTask
}

// NewBatch creates an empty batch reporting timings to rec.
func NewBatch(name string, rec *phases.Recorder) *Batch {
	return &Batch{name: name, rec: rec}
}

// Name returns the batch name.
func (b *Batch) Name() string { return b.name }

// AddSerial appends a subtask to the strictly ordered serial list.
func (b *Batch) AddSerial(st SubTask) {
	b.serial = append(b.serial, st)
}

// AddParallel adds a subtask to the parallel set.
func (b *Batch) AddParallel(st SubTask) {
	b.parallel = append(b.parallel, st)
}

// NumSubTasks returns the total number of registered subtasks.
func (b *Batch) NumSubTasks() int { return len(b.serial) + len(b.parallel) }

// Run executes the batch on the pool and blocks until every worker has
// exhausted all subtasks assigned to it. After the join each subtask's
// Finalize runs exactly once, in registration order; that is the designated
// place to merge per-worker statistics into shared counters.
func (b *Batch) Run(pool *WorkerPool) {
	for _, st := range b.serial {
		b.timedWork(st, 0)
	}

	if len(b.parallel) > 0 {
		counts := b.assignWorkers(pool.NumWorkers())

		for _, st := range b.parallel {
			if aware, ok := st.(WorkerCountAware); ok {
				aware.SetMaxWorkers(pool.NumWorkers())
			}
		}

		// Contiguous worker ranges per subtask. Worker indexes are
		// pool-wide, so per-worker state indexed by worker ID stays
		// disjoint across subtasks.
		byWorker := make([][]SubTask, pool.NumWorkers())
		next := 0
		for i, st := range b.parallel {
			for k := 0; k < counts[i]; k++ {
				byWorker[next] = append(byWorker[next], st)
				next++
			}
		}

		pool.Run(next, func(workerID int) {
			for _, st := range byWorker[workerID] {
				b.timedWork(st, workerID)
			}
		})
	}

	for _, st := range b.serial {
		if f, ok := st.(Finalizer); ok {
			f.Finalize()
		}
	}
	for _, st := range b.parallel {
		if f, ok := st.(Finalizer); ok {
			f.Finalize()
		}
	}
}

func (b *Batch) timedWork(st SubTask, workerID int) {
	start := time.Now()
	st.DoWork(workerID)
	b.rec.RecordTimeSecs(st.Phase(), workerID, time.Since(start).Seconds())
}

// assignWorkers computes per-subtask worker counts: every subtask gets at
// least one worker, subtasks reporting AlmostNoWork get exactly one, and
// the remaining budget is split proportionally to cost using largest
// remainders. The sum never exceeds the available workers.
func (b *Batch) assignWorkers(available int) []int {
	n := len(b.parallel)
	heap.Guarantee(n <= available,
		"batch %q has %d parallel subtasks but only %d workers", b.name, n, available)

	counts := make([]int, n)
	costs := make([]float64, n)
	var positive []int
	var total float64
	for i, st := range b.parallel {
		costs[i] = st.WorkerCost()
		if costs[i] > AlmostNoWork {
			positive = append(positive, i)
			total += costs[i]
		} else {
			counts[i] = 1
		}
	}
	if len(positive) == 0 {
		return counts
	}

	budget := available - (n - len(positive))
	sum := 0
	remainders := make([]float64, n)
	for _, i := range positive {
		raw := costs[i] / total * float64(budget)
		base := int(raw)
		remainders[i] = raw - float64(base)
		if base < 1 {
			base = 1
		}
		counts[i] = base
		sum += base
	}

	// Bumping tiny shares to one worker can overshoot; shrink the largest
	// assignments until the budget holds.
	for sum > budget {
		largest := -1
		for _, i := range positive {
			if counts[i] > 1 && (largest == -1 || counts[i] > counts[largest]) {
				largest = i
			}
		}
		heap.Guarantee(largest >= 0, "cannot shrink worker assignment below one per subtask")
		counts[largest]--
		sum--
	}

	// Hand out the leftover by descending fractional remainder, ties by
	// registration order.
	order := append([]int(nil), positive...)
	sort.SliceStable(order, func(a, c int) bool {
		return remainders[order[a]] > remainders[order[c]]
	})
	for k := 0; sum < budget; k++ {
		counts[order[k%len(order)]]++
		sum++
	}
	return counts
}
