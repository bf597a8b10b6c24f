package cleanup

import (
	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/phases"
	"github.com/regia-io/regia/internal/task"
)

// ResizeAllocBuffersTask resizes every mutator thread's allocation buffer.
// Threads are claimed in large fixed-size batches because the per-thread
// work is tiny; beyond the claim cursor the work is fully independent.
type ResizeAllocBuffersTask struct {
	threads []*heap.MutatorThread
	claimer *task.ThreadsListClaimer
}

// NewResizeAllocBuffersTask creates the resizing subtask over the current
// thread list.
func NewResizeAllocBuffersTask(ctx *Context) *ResizeAllocBuffersTask {
	threads := ctx.Threads.Snapshot()
	return &ResizeAllocBuffersTask{
		threads: threads,
		claimer: task.NewThreadsListClaimer(len(threads), ctx.Tuning.ThreadsPerWorker),
	}
}

// Phase implements task.SubTask.
func (t *ResizeAllocBuffersTask) Phase() phases.Phase { return phases.ResizeAllocBuffers }

// WorkerCost implements task.SubTask.
func (t *ResizeAllocBuffersTask) WorkerCost() float64 {
	return float64(t.claimer.Length()) / float64(t.claimer.BatchSize())
}

// DoWork implements task.SubTask.
func (t *ResizeAllocBuffersTask) DoWork(workerID int) {
	for {
		start, end, ok := t.claimer.ClaimBatch()
		if !ok {
			return
		}
		for i := start; i < end; i++ {
			t.threads[i].Buffer.Resize()
		}
	}
}
