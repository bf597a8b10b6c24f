package heap

import "sync"

// RemSet is a per-region remembered set: it records which other regions hold
// pointers into this region. Occupancy (the number of tracked cards) feeds
// the pause policy; the backing memory statistics feed candidate sampling.
type RemSet struct {
	mu       sync.Mutex
	cards    map[uint64]struct{} // card indexes with at least one incoming pointer
	fromRgns map[uint32]struct{}
}

// RemSetMemStats describes the memory backing a remembered set.
type RemSetMemStats struct {
	UsedBytes     uint64
	ReservedBytes uint64
}

// Add accumulates another stats sample.
func (s *RemSetMemStats) Add(other RemSetMemStats) {
	s.UsedBytes += other.UsedBytes
	s.ReservedBytes += other.ReservedBytes
}

// NewRemSet returns an empty remembered set.
func NewRemSet() *RemSet {
	return &RemSet{
		cards:    make(map[uint64]struct{}),
		fromRgns: make(map[uint32]struct{}),
	}
}

// AddReference records an incoming pointer from the given card in the given
// region.
func (rs *RemSet) AddReference(fromRegion uint32, card uint64) {
	rs.mu.Lock()
	rs.cards[card] = struct{}{}
	rs.fromRgns[fromRegion] = struct{}{}
	rs.mu.Unlock()
}

// Occupied returns the number of tracked cards.
func (rs *RemSet) Occupied() uint64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return uint64(len(rs.cards))
}

// Clear drops all tracked entries, returning the backing memory.
func (rs *RemSet) Clear() {
	rs.mu.Lock()
	rs.cards = make(map[uint64]struct{})
	rs.fromRgns = make(map[uint32]struct{})
	rs.mu.Unlock()
}

// MemStats returns the memory statistics of the set's backing storage.
// Each tracked card costs one entry; reservation is rounded up to the
// allocator granule.
func (rs *RemSet) MemStats() RemSetMemStats {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	const entryBytes = 16
	const granuleBytes = 4096

	used := uint64(len(rs.cards)+len(rs.fromRgns)) * entryBytes
	reserved := (used + granuleBytes - 1) / granuleBytes * granuleBytes
	return RemSetMemStats{UsedBytes: used, ReservedBytes: reserved}
}
