package main

import (
	"testing"

	"github.com/regia-io/regia/internal/config"
	"github.com/regia-io/regia/internal/heap"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Heap.NumRegions = 128
	cfg.Heap.RegionBytes = 1 << 20
	return cfg
}

// checkHeapConsistent verifies the postconditions every pause must leave
// behind: no region still in the collection set, no young regions, every
// region accounted for by exactly one ownership state, and the used-bytes
// counter matching the per-region sums.
func checkHeapConsistent(t *testing.T, hm *heap.Manager) {
	t.Helper()

	var usedSum uint64
	for idx := uint32(0); idx < hm.NumRegions(); idx++ {
		r := hm.RegionAt(idx)
		if r.InCollectionSet() {
			t.Fatalf("region %d still in the collection set after the pause", idx)
		}
		if r.IsYoung() {
			t.Fatalf("region %d still young after the pause", idx)
		}
		usedSum += r.Used()

		switch {
		case r.IsFree():
			if !hm.IsOnFreeList(r) {
				t.Fatalf("free region %d not on the free list", idx)
			}
			if hm.OldSetContains(r) {
				t.Fatalf("free region %d still in the old set", idx)
			}
		case r.IsOld():
			if !hm.OldSetContains(r) {
				t.Fatalf("old region %d not in the old set", idx)
			}
			if hm.IsOnFreeList(r) {
				t.Fatalf("old region %d on the free list", idx)
			}
		case r.IsHumongousStart(), r.IsHumongousCont():
			if hm.IsOnFreeList(r) {
				t.Fatalf("humongous region %d on the free list", idx)
			}
		default:
			t.Fatalf("region %d has unexpected kind %s", idx, r.Kind())
		}
	}
	if got := hm.UsedBytes(); got != usedSum {
		t.Fatalf("used counter %d, per-region sum %d", got, usedSum)
	}
}

func TestSimulatedPausesLeaveHeapConsistent(t *testing.T) {
	sim := newSimulation(testConfig(), 42, nil)
	defer sim.Close()

	for i := 0; i < 5; i++ {
		res := sim.RunPause()
		if res.PauseID == "" {
			t.Fatal("pause has no ID")
		}
		if res.RegionsFreed == 0 {
			t.Fatalf("pause %d freed no regions", i+1)
		}
		checkHeapConsistent(t, sim.hm)
	}
}

func TestSimulationIsDeterministicForSeed(t *testing.T) {
	run := func() []pauseResult {
		sim := newSimulation(testConfig(), 7, nil)
		defer sim.Close()
		var out []pauseResult
		for i := 0; i < 3; i++ {
			r := sim.RunPause()
			out = append(out, pauseResult{
				RegionsFreed: r.RegionsFreed,
				EvacFailed:   r.EvacFailed,
				UsedBefore:   r.UsedBefore,
				UsedAfter:    r.UsedAfter,
				CardsLogged:  r.CardsLogged,
			})
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("pause %d diverged between runs: %+v vs %+v", i+1, a[i], b[i])
		}
	}
}

func TestSimulationPoolNeverSmallerThanWidestBatch(t *testing.T) {
	cfg := testConfig()
	cfg.Workers.NumWorkers = 2
	sim := newSimulation(cfg, 1, nil)
	defer sim.Close()

	if got := sim.pool.NumWorkers(); got < minPoolWorkers {
		t.Fatalf("pool has %d workers, want at least %d", got, minPoolWorkers)
	}
	sim.RunPause()
	checkHeapConsistent(t, sim.hm)
}
