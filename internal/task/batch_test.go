package task

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/regia-io/regia/internal/phases"
)

// fakeSubTask records how it was driven by the batch.
type fakeSubTask struct {
	phase phases.Phase
	cost  float64

	mu         sync.Mutex
	workers    []int
	maxWorkers int
	finalized  int32
	workDone   int32
	onWork     func(workerID int)
}

func (f *fakeSubTask) Phase() phases.Phase { return f.phase }
func (f *fakeSubTask) WorkerCost() float64 { return f.cost }

func (f *fakeSubTask) DoWork(workerID int) {
	f.mu.Lock()
	f.workers = append(f.workers, workerID)
	f.mu.Unlock()
	atomic.AddInt32(&f.workDone, 1)
	if f.onWork != nil {
		f.onWork(workerID)
	}
}

func (f *fakeSubTask) SetMaxWorkers(n int) { f.maxWorkers = n }

func (f *fakeSubTask) Finalize() {
	if atomic.LoadInt32(&f.workDone) == 0 {
		panic("finalize before any work")
	}
	atomic.AddInt32(&f.finalized, 1)
}

func runBatch(t *testing.T, b *Batch, workers int) {
	t.Helper()
	pool := NewWorkerPool(workers)
	defer pool.Stop()
	b.Run(pool)
}

func TestBatchSerialOrderAndWorkerZero(t *testing.T) {
	rec := phases.NewRecorder(4)
	b := NewBatch("test", rec)

	var order []phases.Phase
	for _, p := range []phases.Phase{phases.MergeWorkerStats, phases.RecalculateUsed, phases.SampleCSetCandidates} {
		p := p
		b.AddSerial(&fakeSubTask{phase: p, cost: 1, onWork: func(w int) {
			if w != 0 {
				t.Errorf("serial subtask ran on worker %d", w)
			}
			order = append(order, p)
		}})
	}
	runBatch(t, b, 4)

	want := []phases.Phase{phases.MergeWorkerStats, phases.RecalculateUsed, phases.SampleCSetCandidates}
	if len(order) != len(want) {
		t.Fatalf("expected %d serial runs, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("serial order %v, want %v", order, want)
		}
	}
}

func TestBatchProportionalAssignment(t *testing.T) {
	rec := phases.NewRecorder(8)
	b := NewBatch("test", rec)

	big := &fakeSubTask{phase: phases.FreeCollectionSet, cost: 90}
	small := &fakeSubTask{phase: phases.RedirtyCards, cost: 10}
	none := &fakeSubTask{phase: phases.RecalculateUsed, cost: AlmostNoWork}
	b.AddParallel(big)
	b.AddParallel(small)
	b.AddParallel(none)

	counts := b.assignWorkers(8)
	total := 0
	for i, c := range counts {
		if c < 1 {
			t.Errorf("subtask %d assigned %d workers, want >= 1", i, c)
		}
		total += c
	}
	if total > 8 {
		t.Fatalf("assigned %d workers, only 8 available", total)
	}
	if counts[2] != 1 {
		t.Errorf("AlmostNoWork subtask assigned %d workers, want exactly 1", counts[2])
	}
	if counts[0] <= counts[1] {
		t.Errorf("dominant subtask got %d workers, smaller got %d", counts[0], counts[1])
	}
}

func TestBatchAssignmentExactWorkerSplit(t *testing.T) {
	rec := phases.NewRecorder(4)
	b := NewBatch("test", rec)
	b.AddParallel(&fakeSubTask{phase: phases.FreeCollectionSet, cost: 1})
	b.AddParallel(&fakeSubTask{phase: phases.RedirtyCards, cost: 1})
	b.AddParallel(&fakeSubTask{phase: phases.ResizeAllocBuffers, cost: 1})
	b.AddParallel(&fakeSubTask{phase: phases.RestorePreservedMarks, cost: 1})

	counts := b.assignWorkers(4)
	for i, c := range counts {
		if c != 1 {
			t.Errorf("subtask %d: expected 1 worker, got %d", i, c)
		}
	}
}

func TestBatchRunsEachAssignedWorkerOnce(t *testing.T) {
	rec := phases.NewRecorder(6)
	b := NewBatch("test", rec)

	st := &fakeSubTask{phase: phases.FreeCollectionSet, cost: 100}
	b.AddParallel(st)
	runBatch(t, b, 6)

	seen := make(map[int]bool)
	for _, w := range st.workers {
		if seen[w] {
			t.Fatalf("worker %d invoked twice for the same subtask", w)
		}
		seen[w] = true
	}
	if len(st.workers) != 6 {
		t.Fatalf("expected 6 worker invocations, got %d", len(st.workers))
	}
	if st.maxWorkers != 6 {
		t.Fatalf("SetMaxWorkers got %d, want pool size 6", st.maxWorkers)
	}
}

func TestBatchFinalizeExactlyOnceAfterJoin(t *testing.T) {
	rec := phases.NewRecorder(4)
	b := NewBatch("test", rec)

	serial := &fakeSubTask{phase: phases.MergeWorkerStats, cost: 1}
	par := &fakeSubTask{phase: phases.FreeCollectionSet, cost: 10}
	b.AddSerial(serial)
	b.AddParallel(par)
	runBatch(t, b, 4)

	if serial.finalized != 1 {
		t.Fatalf("serial finalized %d times, want 1", serial.finalized)
	}
	if par.finalized != 1 {
		t.Fatalf("parallel finalized %d times, want 1", par.finalized)
	}
}

func TestBatchRecordsPhaseTimes(t *testing.T) {
	rec := phases.NewRecorder(2)
	b := NewBatch("test", rec)
	b.AddSerial(&fakeSubTask{phase: phases.RecalculateUsed, cost: 1})
	b.AddParallel(&fakeSubTask{phase: phases.RedirtyCards, cost: 1})
	runBatch(t, b, 2)

	got := rec.RecordedPhases()
	if len(got) != 2 {
		t.Fatalf("expected 2 recorded phases, got %v", got)
	}
}

func TestBatchTooManySubtasksPanics(t *testing.T) {
	rec := phases.NewRecorder(1)
	b := NewBatch("test", rec)
	b.AddParallel(&fakeSubTask{phase: phases.FreeCollectionSet, cost: 1})
	b.AddParallel(&fakeSubTask{phase: phases.RedirtyCards, cost: 1})

	defer func() {
		if recover() == nil {
			t.Fatal("expected guarantee failure with more subtasks than workers")
		}
	}()
	b.assignWorkers(1)
}
