package cleanup

import (
	"testing"

	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/phases"
)

func TestResizeAllocBuffersResizesEveryThreadOnce(t *testing.T) {
	e := newEnv(t, 1)
	member := e.hm.MakeYoung(1, 4096, 2048)
	e.cs.AddYoung(member)

	// More threads than one claim batch, so several workers share the list.
	threads := make([]*heap.MutatorThread, 0, 600)
	for i := 0; i < 600; i++ {
		th := e.ctx.Threads.Register(i)
		th.Buffer.RecordAllocation(uint64(i+1) * 100 * 1024)
		threads = append(threads, th)
	}

	e.run(t)

	for _, th := range threads {
		if got := th.Buffer.ResizeCount(); got != 1 {
			t.Fatalf("thread %d resized %d times, expected exactly once", th.ID, got)
		}
	}

	// A heavy allocator gets a bigger buffer than a light one, both within
	// the clamp bounds.
	light := threads[0].Buffer.DesiredBytes()
	heavy := threads[500].Buffer.DesiredBytes()
	if light >= heavy {
		t.Errorf("light allocator buffer %d >= heavy allocator buffer %d", light, heavy)
	}
	for _, th := range threads {
		d := th.Buffer.DesiredBytes()
		if d < heap.MinAllocBufferBytes || d > heap.MaxAllocBufferBytes {
			t.Fatalf("thread %d desired bytes %d outside bounds", th.ID, d)
		}
	}
}

func TestResizeAllocBuffersCanBeDisabled(t *testing.T) {
	e := newEnv(t, 1)
	member := e.hm.MakeYoung(1, 4096, 2048)
	e.cs.AddYoung(member)
	e.ctx.Tuning.ResizeAllocBuffers = false

	th := e.ctx.Threads.Register(0)
	th.Buffer.RecordAllocation(1 << 20)

	e.run(t)

	if got := th.Buffer.ResizeCount(); got != 0 {
		t.Errorf("buffer resized %d times with resizing disabled", got)
	}
	for _, p := range e.rec.RecordedPhases() {
		if p == phases.ResizeAllocBuffers {
			t.Error("resize phase ran while disabled")
		}
	}
}
