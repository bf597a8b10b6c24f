package cleanup

import (
	"testing"

	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/phases"
)

func TestEagerReclaimFreesOnlyCandidates(t *testing.T) {
	e := newEnv(t, 1)

	young := e.hm.MakeYoung(1, 4096, 2048)
	e.cs.AddYoung(young)

	// A dead primitive array spanning one and a half regions, flagged as
	// reclaim candidate, and a live one that is not.
	regionWords := e.hm.RegionWords()
	dead := e.hm.AllocHumongous(5, 2, regionWords+regionWords/2, heap.ObjectKindTypeArray)
	live := e.hm.AllocHumongous(8, 1, 1000, heap.ObjectKindTypeArray)
	e.hm.SetHumongousReclaimCandidate(5, true)

	e.run(t)

	if !dead.IsFree() || !e.hm.IsOnFreeList(dead) {
		t.Error("candidate start region should be freed")
	}
	cont := e.hm.RegionAt(6)
	if !cont.IsFree() || !e.hm.IsOnFreeList(cont) {
		t.Error("candidate continuation region should be freed")
	}

	if !live.IsHumongousStart() {
		t.Errorf("non-candidate region is %s, expected humongous start", live.Kind())
	}
	if live.Used() != 8000 {
		t.Errorf("non-candidate object lost bytes: %d used", live.Used())
	}

	if got := e.hm.NumHumongousObjects(); got != 1 {
		t.Errorf("expected 1 live humongous object, got %d", got)
	}
	if got := e.hm.HumongousRegionCount(); got != 1 {
		t.Errorf("expected 1 humongous region tracked, got %d", got)
	}
	if e.hm.IsHumongousReclaimCandidate(5) {
		t.Error("candidate flag should be cleared after reclaim")
	}
	if got := e.cm.NumEagerlyReclaimed(); got != 1 {
		t.Errorf("expected 1 eager reclaim notification, got %d", got)
	}

	if got := e.rec.SumWorkItems(phases.EagerlyReclaimHumongous, phases.EagerlyReclaimNumTotal); got != 2 {
		t.Errorf("expected 2 total humongous objects recorded, got %d", got)
	}
	if got := e.rec.SumWorkItems(phases.EagerlyReclaimHumongous, phases.EagerlyReclaimNumCandidates); got != 1 {
		t.Errorf("expected 1 candidate recorded, got %d", got)
	}
	if got := e.rec.SumWorkItems(phases.EagerlyReclaimHumongous, phases.EagerlyReclaimNumReclaimed); got != 1 {
		t.Errorf("expected 1 reclaim recorded, got %d", got)
	}

	// Only the live object's bytes remain.
	if got := e.hm.UsedBytes(); got != 8000 {
		t.Errorf("expected 8000 used bytes after cleanup, got %d", got)
	}
}

func TestEagerReclaimSkippedWithoutCandidates(t *testing.T) {
	e := newEnv(t, 1)

	young := e.hm.MakeYoung(1, 4096, 2048)
	e.cs.AddYoung(young)
	obj := e.hm.AllocHumongous(5, 1, 1000, heap.ObjectKindTypeArray)

	e.run(t)

	for _, p := range e.rec.RecordedPhases() {
		if p == phases.EagerlyReclaimHumongous {
			t.Error("eager reclaim ran without any candidates")
		}
	}
	if !obj.IsHumongousStart() {
		t.Error("humongous object should be untouched")
	}
	if got := e.hm.NumHumongousObjects(); got != 1 {
		t.Errorf("expected 1 humongous object, got %d", got)
	}
}
