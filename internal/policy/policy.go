// Package policy is the pause-policy collaborator: it receives the
// feedback the cleanup pipeline produces (remembered-set lengths, old-gen
// allocation volume, freed-region notifications) and answers the sampling
// decision. The numbers steer future collection-set selection; they are
// never read back by the pipeline itself.
package policy

import "sync"

// OldGenAllocTracker accumulates bytes allocated into the old generation
// since the last pause. Regions retained after evacuation failure count as
// freshly allocated old-gen space.
type OldGenAllocTracker struct {
	mu    sync.Mutex
	bytes uint64
}

// AddAllocatedBytesSinceLastGC accrues old-gen allocation volume.
func (t *OldGenAllocTracker) AddAllocatedBytesSinceLastGC(n uint64) {
	t.mu.Lock()
	t.bytes += n
	t.mu.Unlock()
}

// AllocatedBytesSinceLastGC returns the accrued volume.
func (t *OldGenAllocTracker) AllocatedBytesSinceLastGC() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes
}

// Reset clears the tracker at the start of a new mutator phase.
func (t *OldGenAllocTracker) Reset() {
	t.mu.Lock()
	t.bytes = 0
	t.mu.Unlock()
}

// EvacStats aggregates allocation-buffer statistics per generation. The
// cleanup pipeline only feeds the failure terms of the old generation.
type EvacStats struct {
	mu                sync.Mutex
	failureUsedWords  uint64
	failureWasteWords uint64
}

// AddFailureUsedAndWaste accrues live and wasted words of regions that
// failed evacuation.
func (s *EvacStats) AddFailureUsedAndWaste(usedWords, wasteWords uint64) {
	s.mu.Lock()
	s.failureUsedWords += usedWords
	s.failureWasteWords += wasteWords
	s.mu.Unlock()
}

// FailureUsedWords returns the accrued live words of failed regions.
func (s *EvacStats) FailureUsedWords() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failureUsedWords
}

// FailureWasteWords returns the accrued wasted words of failed regions.
func (s *EvacStats) FailureWasteWords() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failureWasteWords
}

// Policy receives cleanup feedback for adaptive collection-set selection.
type Policy struct {
	oldGenAllocTracker OldGenAllocTracker
	oldEvacStats       EvacStats

	mu               sync.Mutex
	rsLength         uint64
	csetFreedPauses  int
	sampleCandidates bool
}

// New creates a policy.
func New() *Policy {
	return &Policy{}
}

// OldGenAllocTracker returns the old-generation allocation tracker.
func (p *Policy) OldGenAllocTracker() *OldGenAllocTracker {
	return &p.oldGenAllocTracker
}

// OldEvacStats returns the old-generation allocation buffer statistics.
func (p *Policy) OldEvacStats() *EvacStats {
	return &p.oldEvacStats
}

// RecordRSLength records the total remembered-set length observed over the
// collection set.
func (p *Policy) RecordRSLength(length uint64) {
	p.mu.Lock()
	p.rsLength = length
	p.mu.Unlock()
}

// LastRSLength returns the last recorded remembered-set length.
func (p *Policy) LastRSLength() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rsLength
}

// CSetRegionsFreed notifies the policy that the pause's collection set has
// been freed.
func (p *Policy) CSetRegionsFreed() {
	p.mu.Lock()
	p.csetFreedPauses++
	p.mu.Unlock()
}

// NumCSetFreedNotifications returns how many freed notifications arrived.
func (p *Policy) NumCSetFreedNotifications() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.csetFreedPauses
}

// SetSampleCandidates controls the candidate-sampling decision.
func (p *Policy) SetSampleCandidates(v bool) {
	p.mu.Lock()
	p.sampleCandidates = v
	p.mu.Unlock()
}

// ShouldSampleCandidates reports whether this pause should sample
// remembered-set memory statistics over the collection-set candidates.
func (p *Policy) ShouldSampleCandidates() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sampleCandidates
}
