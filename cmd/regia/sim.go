package main

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/regia-io/regia/internal/cardq"
	"github.com/regia-io/regia/internal/cleanup"
	"github.com/regia-io/regia/internal/config"
	"github.com/regia-io/regia/internal/cset"
	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/mark"
	"github.com/regia-io/regia/internal/metrics"
	"github.com/regia-io/regia/internal/phases"
	"github.com/regia-io/regia/internal/policy"
	"github.com/regia-io/regia/internal/task"
)

// minPoolWorkers is the smallest pool that can host the widest cleanup
// batch, which schedules up to five parallel subtasks.
const minPoolWorkers = 6

const simThreads = 64

// simulation drives synthetic collection pauses against one heap. Each
// pause fabricates an evacuated collection set, optional failures, logged
// cards, and humongous candidates, then runs the real cleanup pipeline.
type simulation struct {
	cfg *config.Config
	rng *rand.Rand

	hm         *heap.Manager
	cm         *mark.ConcurrentMark
	pol        *policy.Policy
	threads    *heap.ThreadRegistry
	dirtyCards *cardq.QueueSet
	pool       *task.WorkerPool

	metrics *metrics.PauseMetrics // nil disables recording

	pausesRun int
}

// pauseResult summarizes one simulated pause.
type pauseResult struct {
	PauseID      string
	RegionsFreed uint32
	EvacFailed   uint32
	UsedBefore   uint64
	UsedAfter    uint64
	CardsLogged  int64
	Recorder     *phases.Recorder
}

func newSimulation(cfg *config.Config, seed int64, pm *metrics.PauseMetrics) *simulation {
	poolSize := cfg.Workers.NumWorkers
	if poolSize < minPoolWorkers {
		poolSize = minPoolWorkers
	}

	hm := heap.NewManager(uint32(cfg.Heap.NumRegions), uint64(cfg.Heap.RegionBytes))
	s := &simulation{
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(seed)),
		hm:         hm,
		cm:         mark.NewConcurrentMark(hm),
		pol:        policy.New(),
		threads:    heap.NewThreadRegistry(),
		dirtyCards: cardq.NewQueueSet(),
		pool:       task.NewWorkerPool(poolSize),
		metrics:    pm,
	}
	for i := 0; i < simThreads; i++ {
		s.threads.Register(i)
	}
	return s
}

func (s *simulation) Close() {
	s.pool.Stop()
}

// takeFreeIdx picks a random free region, or reports failure when the heap
// is full.
func (s *simulation) takeFreeIdx() (uint32, bool) {
	n := s.hm.NumRegions()
	start := uint32(s.rng.Intn(int(n)))
	for i := uint32(0); i < n; i++ {
		idx := (start + i) % n
		if s.hm.RegionAt(idx).IsFree() {
			return idx, true
		}
	}
	return 0, false
}

// freeRun finds spanRegions consecutive free regions.
func (s *simulation) freeRun(spanRegions uint32) (uint32, bool) {
	n := s.hm.NumRegions()
	for idx := uint32(0); idx+spanRegions <= n; idx++ {
		ok := true
		for i := uint32(0); i < spanRegions; i++ {
			if !s.hm.RegionAt(idx + i).IsFree() {
				ok = false
				break
			}
		}
		if ok {
			return idx, true
		}
	}
	return 0, false
}

func (s *simulation) wordAligned(n uint64) uint64 {
	return n &^ (heap.WordSize - 1)
}

// RunPause fabricates one pause and runs both cleanup batches.
func (s *simulation) RunPause() *pauseResult {
	s.pausesRun++
	pauseID := uuid.New().String()

	cs := cset.New(s.hm)
	ef := cset.NewEvacFailureRegions(s.hm)
	rec := phases.NewRecorder(s.pool.NumWorkers())

	regionBytes := s.hm.RegionBytes()

	// Young regions filled by the mutator since the last pause.
	var young []*heap.Region
	for i := 0; i < s.cfg.Heap.YoungRegions; i++ {
		idx, ok := s.takeFreeIdx()
		if !ok {
			break
		}
		used := s.wordAligned(regionBytes/4 + uint64(s.rng.Int63n(int64(regionBytes/2))))
		live := s.wordAligned(uint64(float64(used) * s.rng.Float64() * 0.5))
		r := s.hm.MakeYoung(idx, used, live)
		cs.AddYoung(r)
		young = append(young, r)
	}

	// Old regions picked into this collection set.
	for i := 0; i < s.cfg.Heap.OldCSetRegions; i++ {
		idx, ok := s.takeFreeIdx()
		if !ok {
			break
		}
		used := s.wordAligned(regionBytes/2 + uint64(s.rng.Int63n(int64(regionBytes/4))))
		live := s.wordAligned(used / 2)
		r := s.hm.MakeOld(idx, used, live)
		cs.AddOld(r)
	}

	// An old region kept as a candidate for future pauses.
	if idx, ok := s.takeFreeIdx(); ok {
		cand := s.hm.MakeOld(idx, s.wordAligned(regionBytes/2), s.wordAligned(regionBytes/3))
		cand.RemSet().AddReference(idx+1, uint64(s.rng.Int63n(1000)))
		cs.AddCandidate(cand)
	}
	s.pol.SetSampleCandidates(s.pausesRun%2 == 0)

	workers := cleanup.NewEvacWorkerStates(s.pool.NumWorkers(), cs.YoungRegionLength())
	headers := cleanup.NewHeaderTable()
	selfForwards := cleanup.NewSelfForwardLog()

	// Surviving words per young region, spread over the workers.
	for yi, r := range young {
		surv := r.LiveBytes() / heap.WordSize
		for surv > 0 {
			w := s.rng.Intn(s.pool.NumWorkers())
			part := surv/2 + 1
			workers.AddSurvivingWords(w, yi+1, part)
			surv -= part
		}
	}

	// Evacuation failures, with the self-forwarded objects the failed copy
	// attempt left behind.
	if s.cfg.Cleanup.FailureRate > 0 {
		cs.Iterate(func(r *heap.Region) {
			if s.rng.Float64() >= s.cfg.Cleanup.FailureRate {
				return
			}
			ef.Record(r.Index())
			for i := 0; i < 1+s.rng.Intn(4); i++ {
				addr := r.Bottom() + s.wordAligned(uint64(s.rng.Int63n(int64(regionBytes))))
				selfForwards.Record(r.Index(), addr)
				headers.Set(addr, cleanup.SelfForwardedMark(addr))
				if s.rng.Intn(2) == 0 {
					// Displaced original header, stashed before the copy.
					original := uint64(s.rng.Int63())<<3 | 0x1
					workers.PreservedMarks().Get(s.rng.Intn(workers.NumWorkers())).Push(addr, original)
				}
			}
		})
	}

	// A humongous allocation now and then; dead primitive arrays become
	// reclaim candidates.
	if s.cfg.Cleanup.EagerReclaim && s.pausesRun%3 == 1 {
		span := uint32(1 + s.rng.Intn(3))
		if idx, ok := s.freeRun(span); ok {
			sizeWords := (uint64(span-1)*regionBytes + regionBytes/2) / heap.WordSize
			kind := heap.ObjectKindTypeArray
			if s.rng.Intn(4) == 0 {
				kind = heap.ObjectKindObjArray
			}
			s.hm.AllocHumongous(idx, span, sizeWords, kind)
			if kind == heap.ObjectKindTypeArray && s.rng.Intn(2) == 0 {
				s.hm.SetHumongousReclaimCandidate(idx, true)
			}
		}
	}

	// Cards logged while evacuating, pointing into collection set and
	// survivor regions alike.
	rdcqs := cardq.NewQueueSet()
	numBuffers := 1 + s.rng.Intn(4)
	if cs.RegionLength() == 0 {
		// Heap full, nothing was evacuated this pause.
		numBuffers = 0
	}
	for i := 0; i < numBuffers; i++ {
		cards := make([]uint64, 0, 32)
		for j := 0; j < 32; j++ {
			r := cs.RegionAtPosition(s.rng.Intn(cs.RegionLength()))
			cards = append(cards, r.Bottom()+s.wordAligned(uint64(s.rng.Int63n(int64(regionBytes)))))
		}
		rdcqs.Enqueue(cardq.NewBufferNode(cards))
	}
	cardsLogged := rdcqs.NumCards()

	// Mutator allocation since the last pause, for buffer resizing.
	for _, th := range s.threads.Snapshot() {
		th.Buffer.RecordAllocation(uint64(s.rng.Int63n(64 << 20)))
	}

	usedBefore := s.hm.UsedBytes()
	evacInfo := policy.NewEvacInfo(pauseID)

	ctx := &cleanup.Context{
		Heap:         s.hm,
		CSet:         cs,
		EvacFailures: ef,
		Mark:         s.cm,
		Policy:       s.pol,
		EvacInfo:     evacInfo,
		Phases:       rec,
		Workers:      workers,
		RDCQS:        rdcqs,
		DirtyCards:   s.dirtyCards,
		Threads:      s.threads,
		Headers:      headers,
		SelfForwards: selfForwards,
		Tuning: cleanup.Tuning{
			ChunksPerRegion:    s.cfg.Cleanup.ChunksPerRegion,
			ChunksPerWorker:    s.cfg.Cleanup.ChunksPerWorker,
			ThreadsPerWorker:   s.cfg.Cleanup.ThreadsPerWorker,
			ResizeAllocBuffers: s.cfg.Cleanup.ResizeAllocBuffers,
		},
	}

	numFailed := ef.NumRegionsFailed()
	cleanup.RunPostEvacuateCleanup(ctx, s.pool)

	if s.metrics != nil {
		s.metrics.ObserveRecorder(rec)
		s.metrics.RecordPause(int(evacInfo.RegionsFreed()), int(numFailed), int64(s.hm.UsedBytes()))
	}

	return &pauseResult{
		PauseID:      pauseID,
		RegionsFreed: evacInfo.RegionsFreed(),
		EvacFailed:   numFailed,
		UsedBefore:   usedBefore,
		UsedAfter:    s.hm.UsedBytes(),
		CardsLogged:  cardsLogged,
		Recorder:     rec,
	}
}

// phaseTable renders the recorded phase times of one pause.
func phaseTable(rec *phases.Recorder) string {
	out := ""
	for _, p := range rec.RecordedPhases() {
		out += fmt.Sprintf("  %-28s %8.3fms\n", p, rec.SumSecs(p)*1000)
	}
	return out
}
