// Package task provides the parallel batching abstraction used by the
// post-evacuation cleanup: subtasks with relative worker costs, a batch
// that runs serial subtasks in order and splits a worker pool across
// parallel subtasks proportionally to cost, a fixed fork-join worker pool,
// and the claimers subtasks use to partition their own work.
package task

import "github.com/regia-io/regia/internal/phases"

// AlmostNoWork is the worker cost reported by a subtask that must still run
// once but should not be allocated a proportional worker share.
const AlmostNoWork = 0.0

// SubTask is one unit of cleanup work. DoWork is invoked once per assigned
// worker with that worker's pool-wide index; subtasks claim finer-grained
// chunks internally, so the assigned worker count is a target, not a
// partition.
type SubTask interface {
	// Phase names the subtask for timing purposes.
	Phase() phases.Phase

	// WorkerCost returns the relative amount of parallel work, or
	// AlmostNoWork for subtasks that only need to run once.
	WorkerCost() float64

	// DoWork performs the subtask on behalf of the given worker.
	DoWork(workerID int)
}

// WorkerCountAware is implemented by subtasks that size per-worker state
// before dispatch. SetMaxWorkers receives the pool size, not the assigned
// worker count, since DoWork sees pool-wide worker indexes.
type WorkerCountAware interface {
	SetMaxWorkers(n int)
}

// Finalizer is implemented by subtasks with a teardown effect: merging
// per-worker statistics into shared counters, returning buffers, clearing
// transient sets. The batch invokes Finalize exactly once after the join,
// never during work execution.
type Finalizer interface {
	Finalize()
}
