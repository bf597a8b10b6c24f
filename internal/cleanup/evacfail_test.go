package cleanup

import (
	"testing"

	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/phases"
)

func TestSelfForwardedMarkEncoding(t *testing.T) {
	addr := uint64(0x1000)
	mark := SelfForwardedMark(addr)

	if !IsSelfForwarded(mark) {
		t.Error("self-forwarded mark does not carry the tag")
	}
	if IsSelfForwarded(MarkWordDefault) {
		t.Error("default mark must not look self-forwarded")
	}
	if mark&^forwardTagMask != addr {
		t.Errorf("mark %#x does not preserve the address %#x", mark, addr)
	}
}

func TestSelfForwardedMarkRejectsUnaligned(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unaligned address")
		}
	}()
	SelfForwardedMark(0x1001)
}

func TestSelfForwardLogRange(t *testing.T) {
	l := NewSelfForwardLog()
	l.Record(3, 0x100)
	l.Record(3, 0x200)
	l.Record(3, 0x300)
	l.Record(4, 0x150)

	if got := l.NumObjects(3); got != 3 {
		t.Errorf("expected 3 objects in region 3, got %d", got)
	}
	in := l.ObjectsInRange(3, 0x150, 0x300)
	if len(in) != 1 || in[0] != 0x200 {
		t.Errorf("expected [0x200], got %#v", in)
	}
	if got := l.ObjectsInRange(5, 0, ^uint64(0)); got != nil {
		t.Errorf("expected no objects in region 5, got %#v", got)
	}
}

func TestRestoreRetainedRegionsResetsSelfForwards(t *testing.T) {
	e := newEnv(t, 1)

	failed := e.hm.MakeYoung(2, 8192, 4096)
	e.cs.AddYoung(failed)
	e.ef.Record(2)
	failed.SetTopAtMarkStart(failed.End())

	// Self-forwarded objects spread across the region so several chunks
	// carry work.
	addrs := []uint64{
		failed.Bottom() + 8*heap.WordSize,
		failed.Bottom() + e.hm.RegionBytes()/2,
		failed.End() - 16*heap.WordSize,
	}
	for _, a := range addrs {
		e.ctx.SelfForwards.Record(2, a)
		e.ctx.Headers.Set(a, SelfForwardedMark(a))
	}

	e.run(t)

	for _, a := range addrs {
		h, ok := e.ctx.Headers.Get(a)
		if !ok {
			t.Fatalf("object %#x lost its header", a)
		}
		if h != MarkWordDefault {
			t.Errorf("object %#x header %#x, expected default", a, h)
		}
	}
	if failed.TopAtMarkStart() != failed.Bottom() {
		t.Errorf("TAMS %#x not reset to bottom %#x", failed.TopAtMarkStart(), failed.Bottom())
	}
}

func TestPreservedMarksReplayAfterSelfForwardRemoval(t *testing.T) {
	e := newEnv(t, 1)

	failed := e.hm.MakeYoung(2, 8192, 4096)
	e.cs.AddYoung(failed)
	e.ef.Record(2)

	// An object whose original header was displaced before the failed copy:
	// the stash wins over the default written by self-forward removal.
	addr := failed.Bottom() + 32*heap.WordSize
	original := uint64(0x5)
	e.ctx.SelfForwards.Record(2, addr)
	e.ctx.Headers.Set(addr, SelfForwardedMark(addr))
	e.ctx.Workers.PreservedMarks().Get(3).Push(addr, original)

	e.run(t)

	h, ok := e.ctx.Headers.Get(addr)
	if !ok {
		t.Fatal("object lost its header")
	}
	if h != original {
		t.Errorf("header %#x, expected preserved %#x", h, original)
	}
}

func TestRetainedRegionBitmapsCleared(t *testing.T) {
	e := newEnv(t, 1)

	failed := e.hm.MakeYoung(2, 8192, 4096)
	e.cs.AddYoung(failed)
	e.ef.Record(2)

	untouched := e.hm.MakeOld(9, 8192, 8000)

	inFailed := failed.Bottom() + 128*heap.WordSize
	inOld := untouched.Bottom() + 128*heap.WordSize
	e.cm.Bitmap().Mark(inFailed)
	e.cm.Bitmap().Mark(inOld)

	e.run(t)

	if e.cm.IsMarkedInBitmap(inFailed) {
		t.Error("mark in retained region should be cleared")
	}
	if !e.cm.IsMarkedInBitmap(inOld) {
		t.Error("mark outside retained regions must survive")
	}
}

func TestRetainedRegionBitmapsKeptDuringConcurrentStart(t *testing.T) {
	e := newEnv(t, 1)

	failed := e.hm.MakeYoung(2, 8192, 4096)
	e.cs.AddYoung(failed)
	e.ef.Record(2)
	e.ctx.State.SetInConcurrentStartGC(true)

	inFailed := failed.Bottom() + 128*heap.WordSize
	e.cm.Bitmap().Mark(inFailed)

	e.run(t)

	if !e.cm.IsMarkedInBitmap(inFailed) {
		t.Error("marks must survive into a starting concurrent cycle")
	}
	for _, p := range e.rec.RecordedPhases() {
		if p == phases.ClearRetainedBitmaps {
			t.Error("bitmap clearing ran during concurrent start")
		}
	}
}

func TestHeaderTable(t *testing.T) {
	ht := NewHeaderTable()
	if _, ok := ht.Get(0x100); ok {
		t.Error("empty table returned a header")
	}

	ht.Set(0x100, 0x1)
	ht.Set(0x200, 0x5)

	if h, ok := ht.Get(0x200); !ok || h != 0x5 {
		t.Errorf("Get(0x200) = %#x, %v", h, ok)
	}

	var n int
	ht.ForEach(func(addr, header uint64) { n++ })
	if n != 2 {
		t.Errorf("expected 2 entries, visited %d", n)
	}
}

func TestPreservedMarksSet(t *testing.T) {
	s := NewPreservedMarksSet(4)
	if s.Num() != 4 {
		t.Fatalf("expected 4 logs, got %d", s.Num())
	}

	s.Get(0).Push(0x100, 0x7)
	s.Get(2).Push(0x200, 0x9)
	s.Get(2).Push(0x300, 0xB)

	if got := s.TotalEntries(); got != 3 {
		t.Errorf("expected 3 stashed entries, got %d", got)
	}
	if got := s.Get(2).Len(); got != 2 {
		t.Errorf("expected 2 entries on worker 2, got %d", got)
	}
}
