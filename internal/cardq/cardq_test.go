package cardq

import (
	"sync"
	"testing"
)

func TestQueueSetEnqueueCounts(t *testing.T) {
	qs := NewQueueSet()
	qs.Enqueue(NewBufferNode([]uint64{1, 2, 3}))
	qs.Enqueue(NewBufferNode([]uint64{4}))

	if qs.NumBuffers() != 2 || qs.NumCards() != 4 {
		t.Fatalf("counts (%d,%d), want (2,4)", qs.NumBuffers(), qs.NumCards())
	}
	if qs.IsEmpty() {
		t.Fatal("queue reported empty")
	}
}

func TestClaimerDrainsEachNodeExactlyOnce(t *testing.T) {
	qs := NewQueueSet()
	want := make(map[uint64]bool)
	for i := 0; i < 500; i++ {
		n := NewBufferNode([]uint64{uint64(i)})
		want[n.ID()] = true
		qs.Enqueue(n)
	}

	claimer := NewClaimer(qs.AllCompletedBuffers())

	var mu sync.Mutex
	got := make(map[uint64]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				node := claimer.Claim()
				if node == nil {
					return
				}
				mu.Lock()
				got[node.ID()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(got) != len(want) {
		t.Fatalf("claimed %d nodes, want %d", len(got), len(want))
	}
	for id := range want {
		if got[id] != 1 {
			t.Fatalf("node %d claimed %d times", id, got[id])
		}
	}
}

func TestMergeIntoMovesChainAndEmpties(t *testing.T) {
	src := NewQueueSet()
	dst := NewQueueSet()
	dst.Enqueue(NewBufferNode([]uint64{99}))
	for i := 0; i < 10; i++ {
		src.Enqueue(NewBufferNode([]uint64{uint64(i)}))
	}

	src.MergeInto(dst)
	src.VerifyEmpty()

	if dst.NumBuffers() != 11 || dst.NumCards() != 11 {
		t.Fatalf("target counts (%d,%d), want (11,11)", dst.NumBuffers(), dst.NumCards())
	}
	n := 0
	for node := dst.AllCompletedBuffers(); node != nil; node = node.Next() {
		n++
	}
	if n != 11 {
		t.Fatalf("target chain length %d, want 11", n)
	}
}

func TestVerifyEmptyPanicsOnLeftovers(t *testing.T) {
	qs := NewQueueSet()
	qs.Enqueue(NewBufferNode([]uint64{1}))

	defer func() {
		if recover() == nil {
			t.Fatal("expected guarantee failure on non-empty queue")
		}
	}()
	qs.VerifyEmpty()
}

func TestMergeEmptySourceIsNoop(t *testing.T) {
	src := NewQueueSet()
	dst := NewQueueSet()
	src.MergeInto(dst)
	if !dst.IsEmpty() {
		t.Fatal("target gained nodes from empty source")
	}
}
