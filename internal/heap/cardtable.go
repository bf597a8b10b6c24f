package heap

import "sync/atomic"

// Card table entry values.
const (
	CleanCard byte = 0
	DirtyCard byte = 1
)

// CardTable is a byte map over the heap address space, one entry per
// CardBytes-sized card. Entries are written with atomic stores so
// concurrent redirtying workers never tear each other's writes.
type CardTable struct {
	entries   []atomicByte
	heapBytes uint64
}

// atomicByte wraps a uint32 because there is no atomic byte store; only the
// low 8 bits are meaningful.
type atomicByte struct{ v atomic.Uint32 }

// NewCardTable creates a clean card table covering heapBytes of address
// space.
func NewCardTable(heapBytes uint64) *CardTable {
	n := heapBytes / CardBytes
	return &CardTable{
		entries:   make([]atomicByte, n),
		heapBytes: heapBytes,
	}
}

// NumCards returns the number of card entries.
func (ct *CardTable) NumCards() uint64 { return uint64(len(ct.entries)) }

// CardFor returns the card index covering addr.
func (ct *CardTable) CardFor(addr uint64) uint64 {
	Guarantee(addr < ct.heapBytes, "address %#x outside the heap", addr)
	return addr / CardBytes
}

// AddrFor returns the first heap address covered by the card.
func (ct *CardTable) AddrFor(card uint64) uint64 {
	Guarantee(card < uint64(len(ct.entries)), "card %d outside the table", card)
	return card * CardBytes
}

// MarkDirty sets the card to the dirty value.
func (ct *CardTable) MarkDirty(card uint64) {
	ct.entries[card].v.Store(uint32(DirtyCard))
}

// ClearCard resets the card to clean.
func (ct *CardTable) ClearCard(card uint64) {
	ct.entries[card].v.Store(uint32(CleanCard))
}

// IsDirty reports whether the card holds the dirty value.
func (ct *CardTable) IsDirty(card uint64) bool {
	return byte(ct.entries[card].v.Load()) == DirtyCard
}

// CountDirty returns the number of dirty cards. Diagnostic use only.
func (ct *CardTable) CountDirty() uint64 {
	var n uint64
	for i := range ct.entries {
		if byte(ct.entries[i].v.Load()) == DirtyCard {
			n++
		}
	}
	return n
}
