package policy

import "sync"

// EvacInfo summarizes one pause for reporting: regions freed, collection
// set usage before the pause, and usage retained after it (failed
// regions).
type EvacInfo struct {
	mu            sync.Mutex
	pauseID       string
	regionsFreed  uint32
	csetUsedBefor uint64
	csetUsedAfter uint64
}

// NewEvacInfo creates an EvacInfo tagged with the pause ID.
func NewEvacInfo(pauseID string) *EvacInfo {
	return &EvacInfo{pauseID: pauseID}
}

// PauseID returns the pause identifier.
func (e *EvacInfo) PauseID() string { return e.pauseID }

// SetRegionsFreed records the number of regions freed.
func (e *EvacInfo) SetRegionsFreed(n uint32) {
	e.mu.Lock()
	e.regionsFreed = n
	e.mu.Unlock()
}

// RegionsFreed returns the number of regions freed.
func (e *EvacInfo) RegionsFreed() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regionsFreed
}

// SetCollectionSetUsedBefore records the collection set usage before the
// pause.
func (e *EvacInfo) SetCollectionSetUsedBefore(n uint64) {
	e.mu.Lock()
	e.csetUsedBefor = n
	e.mu.Unlock()
}

// CollectionSetUsedBefore returns the recorded pre-pause usage.
func (e *EvacInfo) CollectionSetUsedBefore() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.csetUsedBefor
}

// IncrementCollectionSetUsedAfter accrues usage retained after the pause.
func (e *EvacInfo) IncrementCollectionSetUsedAfter(n uint64) {
	e.mu.Lock()
	e.csetUsedAfter += n
	e.mu.Unlock()
}

// CollectionSetUsedAfter returns the retained usage.
func (e *EvacInfo) CollectionSetUsedAfter() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.csetUsedAfter
}
