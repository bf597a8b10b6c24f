package mark

import (
	"testing"

	"github.com/regia-io/regia/internal/heap"
)

func TestBitmapMarkAndClear(t *testing.T) {
	b := NewBitmap(1024 * 1024)

	b.Mark(0)
	b.Mark(512)
	b.Mark(520)
	if !b.IsMarked(0) || !b.IsMarked(512) || !b.IsMarked(520) {
		t.Fatal("expected marks set")
	}
	if b.IsMarked(8) {
		t.Fatal("unexpected mark at 8")
	}

	b.ClearRange(512, 1024)
	if b.IsMarked(512) || b.IsMarked(520) {
		t.Fatal("marks survive cleared range")
	}
	if !b.IsMarked(0) {
		t.Fatal("mark outside cleared range lost")
	}
}

func TestClearBitmapForRegion(t *testing.T) {
	hm := heap.NewManager(4, 1024*1024)
	cm := NewConcurrentMark(hm)

	r1 := hm.RegionAt(1)
	cm.Bitmap().Mark(r1.Bottom())
	cm.Bitmap().Mark(r1.Bottom() + 4096)
	cm.Bitmap().Mark(hm.RegionAt(2).Bottom())

	cm.ClearBitmapForRegion(r1)
	if cm.IsMarkedInBitmap(r1.Bottom()) || cm.IsMarkedInBitmap(r1.Bottom()+4096) {
		t.Fatal("region bitmap not cleared")
	}
	if !cm.IsMarkedInBitmap(hm.RegionAt(2).Bottom()) {
		t.Fatal("neighbor region bitmap damaged")
	}
}

func TestHumongousEagerReclaimNotification(t *testing.T) {
	hm := heap.NewManager(4, 1024*1024)
	cm := NewConcurrentMark(hm)
	start := hm.AllocHumongous(0, 1, 128, heap.ObjectKindTypeArray)

	cm.HumongousObjectEagerlyReclaimed(start)
	if cm.NumEagerlyReclaimed() != 1 {
		t.Fatalf("expected 1 notification, got %d", cm.NumEagerlyReclaimed())
	}
}

func TestCollectorState(t *testing.T) {
	var s CollectorState
	if s.InConcurrentStartGC() {
		t.Fatal("fresh state must not be concurrent start")
	}
	s.SetInConcurrentStartGC(true)
	if !s.InConcurrentStartGC() {
		t.Fatal("flag not recorded")
	}
}
