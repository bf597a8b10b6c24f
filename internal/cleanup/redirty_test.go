package cleanup

import (
	"testing"

	"github.com/regia-io/regia/internal/cardq"
	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/phases"
)

func TestRedirtyKeepsSurvivorsDropsFreed(t *testing.T) {
	e := newEnv(t, 1)

	// One collection-set region that will be freed and one old region that
	// survives the pause.
	member := e.hm.MakeYoung(1, 4096, 2048)
	e.cs.AddYoung(member)
	survivor := e.hm.MakeOld(3, 8192, 4096)

	inFreed := member.Bottom() + 100*heap.WordSize
	inSurvivorA := survivor.Bottom() + 10*heap.WordSize
	inSurvivorB := survivor.Bottom() + 4*heap.CardBytes

	e.ctx.RDCQS.Enqueue(cardq.NewBufferNode([]uint64{inSurvivorA, inFreed}))
	e.ctx.RDCQS.Enqueue(cardq.NewBufferNode([]uint64{inSurvivorB}))

	e.run(t)

	ct := e.hm.CardTable()
	if got := ct.CountDirty(); got != 2 {
		t.Errorf("expected 2 dirty cards, got %d", got)
	}
	if !ct.IsDirty(ct.CardFor(inSurvivorA)) || !ct.IsDirty(ct.CardFor(inSurvivorB)) {
		t.Error("cards in the surviving region should be dirty")
	}
	if ct.IsDirty(ct.CardFor(inFreed)) {
		t.Error("card in the freed region should have been dropped")
	}

	if got := e.rec.SumWorkItems(phases.RedirtyCards, phases.RedirtyNumDirtied); got != 2 {
		t.Errorf("expected 2 dirtied cards recorded, got %d", got)
	}

	// The working set was handed over for the next pause.
	if !e.ctx.RDCQS.IsEmpty() {
		t.Error("pause-local queue set should be empty after finalize")
	}
	if got := e.ctx.DirtyCards.NumBuffers(); got != 2 {
		t.Errorf("expected 2 buffers handed over, got %d", got)
	}
	if got := e.ctx.DirtyCards.NumCards(); got != 3 {
		t.Errorf("expected 3 cards handed over, got %d", got)
	}
}

func TestRedirtyKeepsCardsOfRetainedRegions(t *testing.T) {
	e := newEnv(t, 1)

	retained := e.hm.MakeYoung(1, 4096, 2048)
	e.cs.AddYoung(retained)
	e.ef.Record(1)

	addr := retained.Bottom() + 64*heap.WordSize
	e.ctx.RDCQS.Enqueue(cardq.NewBufferNode([]uint64{addr}))

	e.run(t)

	ct := e.hm.CardTable()
	if !ct.IsDirty(ct.CardFor(addr)) {
		t.Error("card in a retained region must stay dirty")
	}
	if got := e.rec.SumWorkItems(phases.RedirtyCards, phases.RedirtyNumDirtied); got != 1 {
		t.Errorf("expected 1 dirtied card recorded, got %d", got)
	}
}

func TestRedirtySameCardTwiceStaysSingleDirty(t *testing.T) {
	e := newEnv(t, 1)

	member := e.hm.MakeYoung(1, 4096, 2048)
	e.cs.AddYoung(member)
	survivor := e.hm.MakeOld(3, 8192, 4096)

	// Two addresses on the same card: dirtying is idempotent.
	a := survivor.Bottom() + 8
	b := survivor.Bottom() + 16
	e.ctx.RDCQS.Enqueue(cardq.NewBufferNode([]uint64{a, b}))

	e.run(t)

	ct := e.hm.CardTable()
	if got := ct.CountDirty(); got != 1 {
		t.Errorf("expected a single dirty card, got %d", got)
	}
}
