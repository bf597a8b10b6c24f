package task

import (
	"sync"
	"testing"
)

func TestRegionClaimerEachIndexExactlyOnce(t *testing.T) {
	const n = 1000
	const workers = 8

	c := NewRegionClaimer(n)
	c.SetNumWorkers(workers)

	var mu sync.Mutex
	visits := make(map[int]int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			c.Iterate(worker, func(i int) {
				mu.Lock()
				visits[i]++
				mu.Unlock()
			})
		}(w)
	}
	wg.Wait()

	if len(visits) != n {
		t.Fatalf("expected %d claimed indexes, got %d", n, len(visits))
	}
	for i, count := range visits {
		if count != 1 {
			t.Fatalf("index %d visited %d times", i, count)
		}
	}
}

func TestRegionClaimerOffsetsSpread(t *testing.T) {
	c := NewRegionClaimer(100)
	c.SetNumWorkers(4)

	if c.OffsetForWorker(0) != 0 || c.OffsetForWorker(1) != 25 ||
		c.OffsetForWorker(2) != 50 || c.OffsetForWorker(3) != 75 {
		t.Fatalf("unexpected offsets %d %d %d %d",
			c.OffsetForWorker(0), c.OffsetForWorker(1), c.OffsetForWorker(2), c.OffsetForWorker(3))
	}
}

func TestThreadsListClaimerCoversListOnce(t *testing.T) {
	const length = 1037
	const batch = 250

	c := NewThreadsListClaimer(length, batch)

	var mu sync.Mutex
	covered := make([]bool, length)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				start, end, ok := c.ClaimBatch()
				if !ok {
					return
				}
				mu.Lock()
				for i := start; i < end; i++ {
					if covered[i] {
						t.Errorf("index %d claimed twice", i)
					}
					covered[i] = true
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for i, ok := range covered {
		if !ok {
			t.Fatalf("index %d never claimed", i)
		}
	}
}

func TestWorkerPoolForkJoin(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Stop()

	var mu sync.Mutex
	seen := make(map[int]bool)
	pool.Run(4, func(w int) {
		mu.Lock()
		seen[w] = true
		mu.Unlock()
	})

	if len(seen) != 4 {
		t.Fatalf("expected 4 workers to run, got %d", len(seen))
	}
}

func TestWorkerPoolPartialDispatch(t *testing.T) {
	pool := NewWorkerPool(8)
	defer pool.Stop()

	var mu sync.Mutex
	var ids []int
	pool.Run(3, func(w int) {
		mu.Lock()
		ids = append(ids, w)
		mu.Unlock()
	})

	if len(ids) != 3 {
		t.Fatalf("expected 3 workers, got %d", len(ids))
	}
	for _, id := range ids {
		if id < 0 || id >= 3 {
			t.Fatalf("unexpected worker id %d", id)
		}
	}
}
