package task

import "sync/atomic"

// RegionClaimer partitions an index space [0, n) across workers. Each index
// is claimed by exactly one worker exactly once; workers start at spread
// offsets to reduce contention, then wrap around.
type RegionClaimer struct {
	claims     []atomic.Bool
	numWorkers int
}

// NewRegionClaimer creates a claimer over n indexes.
func NewRegionClaimer(n int) *RegionClaimer {
	return &RegionClaimer{claims: make([]atomic.Bool, n)}
}

// SetNumWorkers records the worker count used to spread start offsets.
// Must be called before the first claim.
func (c *RegionClaimer) SetNumWorkers(n int) {
	if n < 1 {
		n = 1
	}
	c.numWorkers = n
}

// Length returns the size of the index space.
func (c *RegionClaimer) Length() int { return len(c.claims) }

// OffsetForWorker returns the starting index for a worker.
func (c *RegionClaimer) OffsetForWorker(workerID int) int {
	if c.numWorkers <= 1 || len(c.claims) == 0 {
		return 0
	}
	return workerID * len(c.claims) / c.numWorkers
}

// ClaimIndex attempts to claim one index; it reports whether the caller
// now owns it.
func (c *RegionClaimer) ClaimIndex(i int) bool {
	return c.claims[i].CompareAndSwap(false, true)
}

// IsClaimed reports whether the index has been claimed.
func (c *RegionClaimer) IsClaimed(i int) bool {
	return c.claims[i].Load()
}

// Iterate visits, on behalf of workerID, every index the worker manages to
// claim, starting from the worker's offset and wrapping.
func (c *RegionClaimer) Iterate(workerID int, fn func(index int)) {
	n := len(c.claims)
	if n == 0 {
		return
	}
	start := c.OffsetForWorker(workerID)
	for k := 0; k < n; k++ {
		i := (start + k) % n
		if c.ClaimIndex(i) {
			fn(i)
		}
	}
}

// ThreadsListClaimer hands out fixed-size batches of a shared list to
// workers via an atomic cursor. Used where per-item work is small, so the
// batch size is large.
type ThreadsListClaimer struct {
	length    int
	batchSize int
	cursor    atomic.Int64
}

// NewThreadsListClaimer creates a claimer over a list of the given length
// with the given claim batch size.
func NewThreadsListClaimer(length, batchSize int) *ThreadsListClaimer {
	if batchSize < 1 {
		batchSize = 1
	}
	return &ThreadsListClaimer{length: length, batchSize: batchSize}
}

// Length returns the list length.
func (c *ThreadsListClaimer) Length() int { return c.length }

// BatchSize returns the claim batch size.
func (c *ThreadsListClaimer) BatchSize() int { return c.batchSize }

// ClaimBatch returns the next unclaimed [start, end) range, or ok=false
// when the list is exhausted.
func (c *ThreadsListClaimer) ClaimBatch() (start, end int, ok bool) {
	for {
		cur := c.cursor.Load()
		if cur >= int64(c.length) {
			return 0, 0, false
		}
		next := cur + int64(c.batchSize)
		if next > int64(c.length) {
			next = int64(c.length)
		}
		if c.cursor.CompareAndSwap(cur, next) {
			return int(cur), int(next), true
		}
	}
}
