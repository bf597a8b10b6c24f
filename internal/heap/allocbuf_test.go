package heap

import "testing"

func TestAllocBufferResizeAdapts(t *testing.T) {
	b := NewAllocBuffer()

	b.RecordAllocation(allocBufferTargetRefills * 64 * 1024)
	b.Resize()
	if b.DesiredBytes() != 64*1024 {
		t.Fatalf("expected desired 64KiB, got %d", b.DesiredBytes())
	}
	if b.ResizeCount() != 1 {
		t.Fatalf("expected resize count 1, got %d", b.ResizeCount())
	}

	// No allocation since the last pause clamps to the minimum.
	b.Resize()
	if b.DesiredBytes() != MinAllocBufferBytes {
		t.Fatalf("expected min %d, got %d", MinAllocBufferBytes, b.DesiredBytes())
	}
}

func TestAllocBufferResizeClampsToMax(t *testing.T) {
	b := NewAllocBuffer()
	b.RecordAllocation(1 << 40)
	b.Resize()
	if b.DesiredBytes() != MaxAllocBufferBytes {
		t.Fatalf("expected max %d, got %d", MaxAllocBufferBytes, b.DesiredBytes())
	}
}

func TestThreadRegistry(t *testing.T) {
	tr := NewThreadRegistry()
	for i := 0; i < 5; i++ {
		tr.Register(i)
	}
	if tr.Len() != 5 {
		t.Fatalf("expected 5 threads, got %d", tr.Len())
	}
	snap := tr.Snapshot()
	if len(snap) != 5 || snap[2].ID != 2 {
		t.Fatalf("unexpected snapshot %v", snap)
	}
}
