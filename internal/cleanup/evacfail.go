package cleanup

import (
	"sync"
	"sync/atomic"

	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/phases"
	"github.com/regia-io/regia/internal/task"
)

// Object header (mark word) encoding. The low two bits tag forwarding; a
// failed copy leaves an object forwarded to itself.
const (
	MarkWordDefault uint64 = 0x1
	forwardTagMask  uint64 = 0x3
	forwardTag      uint64 = 0x3
)

// SelfForwardedMark returns the header of an object forwarded to itself at
// addr. Object addresses are word aligned, so the tag bits are free.
func SelfForwardedMark(addr uint64) uint64 {
	heap.Guarantee(addr%heap.WordSize == 0, "unaligned object address %#x", addr)
	return addr | forwardTag
}

// IsSelfForwarded reports whether the header carries the self-forward tag.
func IsSelfForwarded(header uint64) bool {
	return header&forwardTagMask == forwardTag
}

// HeaderTable maps object addresses to their header words. It stands in
// for in-object headers; chunk workers touch disjoint objects but share
// the map, hence the lock.
type HeaderTable struct {
	mu    sync.RWMutex
	words map[uint64]uint64
}

// NewHeaderTable returns an empty table.
func NewHeaderTable() *HeaderTable {
	return &HeaderTable{words: make(map[uint64]uint64)}
}

// Set stores the header for the object at addr.
func (ht *HeaderTable) Set(addr, header uint64) {
	ht.mu.Lock()
	ht.words[addr] = header
	ht.mu.Unlock()
}

// Get returns the header for the object at addr.
func (ht *HeaderTable) Get(addr uint64) (uint64, bool) {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	h, ok := ht.words[addr]
	return h, ok
}

// ForEach visits every (addr, header) pair. Diagnostic use only.
func (ht *HeaderTable) ForEach(fn func(addr, header uint64)) {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	for a, h := range ht.words {
		fn(a, h)
	}
}

// SelfForwardLog records, per failed region, the objects whose headers were
// overwritten with self-forwarding pointers during the failed evacuation
// attempt. Written by evacuation workers, read-only during cleanup.
type SelfForwardLog struct {
	mu       sync.Mutex
	byRegion map[uint32][]uint64
}

// NewSelfForwardLog returns an empty log.
func NewSelfForwardLog() *SelfForwardLog {
	return &SelfForwardLog{byRegion: make(map[uint32][]uint64)}
}

// Record notes a self-forwarded object at addr inside the region.
func (l *SelfForwardLog) Record(regionIdx uint32, addr uint64) {
	l.mu.Lock()
	l.byRegion[regionIdx] = append(l.byRegion[regionIdx], addr)
	l.mu.Unlock()
}

// ObjectsInRange returns the logged objects of the region with addresses
// in [start, end).
func (l *SelfForwardLog) ObjectsInRange(regionIdx uint32, start, end uint64) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []uint64
	for _, addr := range l.byRegion[regionIdx] {
		if addr >= start && addr < end {
			out = append(out, addr)
		}
	}
	return out
}

// NumObjects returns how many self-forwarded objects the region logged.
func (l *SelfForwardLog) NumObjects(regionIdx uint32) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byRegion[regionIdx])
}

// PreservedMark is one stashed original header word.
type PreservedMark struct {
	Addr uint64
	Mark uint64
}

// PreservedMarks is one worker's log of headers stashed before evacuation.
type PreservedMarks struct {
	mu      sync.Mutex
	entries []PreservedMark
}

// Push stashes the original header for the object at addr.
func (pm *PreservedMarks) Push(addr, markWord uint64) {
	pm.mu.Lock()
	pm.entries = append(pm.entries, PreservedMark{Addr: addr, Mark: markWord})
	pm.mu.Unlock()
}

// Len returns the number of stashed entries.
func (pm *PreservedMarks) Len() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.entries)
}

func (pm *PreservedMarks) restoreInto(ht *HeaderTable) {
	pm.mu.Lock()
	entries := pm.entries
	pm.entries = nil
	pm.mu.Unlock()
	for _, e := range entries {
		ht.Set(e.Addr, e.Mark)
	}
}

// PreservedMarksSet holds one PreservedMarks log per evacuation worker.
type PreservedMarksSet struct {
	sets []*PreservedMarks
}

// NewPreservedMarksSet creates n empty logs.
func NewPreservedMarksSet(n int) *PreservedMarksSet {
	s := &PreservedMarksSet{sets: make([]*PreservedMarks, n)}
	for i := range s.sets {
		s.sets[i] = &PreservedMarks{}
	}
	return s
}

// Get returns the log of the given evacuation worker.
func (s *PreservedMarksSet) Get(i int) *PreservedMarks { return s.sets[i] }

// Num returns the number of logs.
func (s *PreservedMarksSet) Num() int { return len(s.sets) }

// TotalEntries returns the number of stashed entries across all logs.
func (s *PreservedMarksSet) TotalEntries() int {
	var n int
	for _, pm := range s.sets {
		n += pm.Len()
	}
	return n
}

// restoreRetainedRegionsTask removes self-forwarding pointers from regions
// that failed evacuation. Parallel granularity is chunks per region, so a
// single large failed region still spreads across workers. Processing a
// region's first chunk also resets its TAMS, keeping the later bitmap
// clearing subtask's precondition local to this cluster.
type restoreRetainedRegionsTask struct {
	ctx     *Context
	claimer *task.RegionClaimer

	restored atomic.Uint64
}

func newRestoreRetainedRegionsTask(ctx *Context) *restoreRetainedRegionsTask {
	heap.Guarantee(ctx.EvacFailures.EvacuationFailed(),
		"restore retained regions scheduled without evacuation failures")
	numChunks := int(ctx.EvacFailures.NumRegionsFailed()) * ctx.Tuning.ChunksPerRegion
	return &restoreRetainedRegionsTask{
		ctx:     ctx,
		claimer: task.NewRegionClaimer(numChunks),
	}
}

func (t *restoreRetainedRegionsTask) Phase() phases.Phase { return phases.RestoreRetainedRegions }

func (t *restoreRetainedRegionsTask) WorkerCost() float64 {
	workersPerRegion := float64(t.ctx.Tuning.ChunksPerRegion) / float64(t.ctx.Tuning.ChunksPerWorker)
	return workersPerRegion * float64(t.ctx.EvacFailures.NumRegionsFailed())
}

func (t *restoreRetainedRegionsTask) SetMaxWorkers(n int) {
	t.claimer.SetNumWorkers(n)
}

func (t *restoreRetainedRegionsTask) DoWork(workerID int) {
	chunksPerRegion := t.ctx.Tuning.ChunksPerRegion
	regionBytes := t.ctx.Heap.RegionBytes()
	chunkBytes := regionBytes / uint64(chunksPerRegion)

	// Failed regions in recording order; chunk index c maps to
	// (region c/chunksPerRegion, chunk c%chunksPerRegion).
	var failed []*heap.Region
	t.ctx.EvacFailures.Iterate(func(r *heap.Region) { failed = append(failed, r) })

	t.claimer.Iterate(workerID, func(c int) {
		r := failed[c/chunksPerRegion]
		chunk := c % chunksPerRegion
		if chunk == 0 {
			r.ResetTopAtMarkStart()
		}
		start := r.Bottom() + uint64(chunk)*chunkBytes
		end := start + chunkBytes
		if chunk == chunksPerRegion-1 {
			end = r.End()
		}
		for _, addr := range t.ctx.SelfForwards.ObjectsInRange(r.Index(), start, end) {
			header, ok := t.ctx.Headers.Get(addr)
			heap.Guarantee(ok, "self-forwarded object %#x has no header", addr)
			heap.Guarantee(IsSelfForwarded(header),
				"object %#x in failed region %d is not self-forwarded", addr, r.Index())
			t.ctx.Headers.Set(addr, MarkWordDefault)
			t.restored.Add(1)
		}
	})
}

// NumRestored returns how many self-forwarded headers were reset.
func (t *restoreRetainedRegionsTask) NumRestored() uint64 { return t.restored.Load() }

// restorePreservedMarksTask replays the per-worker logs of stashed header
// words back onto their original objects. Runs after self-forward removal
// (previous batch), so a restored header is never clobbered by the default.
type restorePreservedMarksTask struct {
	ctx    *Context
	cursor atomic.Int64
}

func newRestorePreservedMarksTask(ctx *Context) *restorePreservedMarksTask {
	heap.Guarantee(ctx.EvacFailures.EvacuationFailed(),
		"restore preserved marks scheduled without evacuation failures")
	return &restorePreservedMarksTask{ctx: ctx}
}

func (t *restorePreservedMarksTask) Phase() phases.Phase { return phases.RestorePreservedMarks }

func (t *restorePreservedMarksTask) WorkerCost() float64 {
	return float64(t.ctx.Workers.PreservedMarks().Num())
}

func (t *restorePreservedMarksTask) DoWork(workerID int) {
	set := t.ctx.Workers.PreservedMarks()
	for {
		i := t.cursor.Add(1) - 1
		if i >= int64(set.Num()) {
			return
		}
		set.Get(int(i)).restoreInto(t.ctx.Headers)
	}
}

// clearRetainedRegionBitmapsTask clears concurrent-mark bitmap state for
// retained regions. Marks in retained regions must survive into a starting
// concurrent cycle, so this subtask is never scheduled then.
type clearRetainedRegionBitmapsTask struct {
	ctx     *Context
	claimer *task.RegionClaimer
}

func newClearRetainedRegionBitmapsTask(ctx *Context) *clearRetainedRegionBitmapsTask {
	heap.Guarantee(ctx.EvacFailures.EvacuationFailed(),
		"clear retained bitmaps scheduled without evacuation failures")
	heap.Guarantee(!ctx.State.InConcurrentStartGC(),
		"must not clear retained region bitmaps during concurrent start")
	return &clearRetainedRegionBitmapsTask{
		ctx:     ctx,
		claimer: task.NewRegionClaimer(int(ctx.EvacFailures.NumRegionsFailed())),
	}
}

func (t *clearRetainedRegionBitmapsTask) Phase() phases.Phase { return phases.ClearRetainedBitmaps }

func (t *clearRetainedRegionBitmapsTask) WorkerCost() float64 {
	return float64(t.ctx.EvacFailures.NumRegionsFailed())
}

func (t *clearRetainedRegionBitmapsTask) SetMaxWorkers(n int) {
	t.claimer.SetNumWorkers(n)
}

func (t *clearRetainedRegionBitmapsTask) DoWork(workerID int) {
	t.ctx.EvacFailures.ParIterate(t.claimer, workerID, func(r *heap.Region) {
		heap.Guarantee(r.Bottom() == r.TopAtMarkStart(),
			"TAMS should have been reset for region %d", r.Index())
		t.ctx.Mark.ClearBitmapForRegion(r)
	})
}
