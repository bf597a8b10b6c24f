package policy

import "testing"

func TestOldGenAllocTracker(t *testing.T) {
	p := New()
	p.OldGenAllocTracker().AddAllocatedBytesSinceLastGC(1024)
	p.OldGenAllocTracker().AddAllocatedBytesSinceLastGC(512)
	if got := p.OldGenAllocTracker().AllocatedBytesSinceLastGC(); got != 1536 {
		t.Fatalf("expected 1536, got %d", got)
	}
	p.OldGenAllocTracker().Reset()
	if got := p.OldGenAllocTracker().AllocatedBytesSinceLastGC(); got != 0 {
		t.Fatalf("expected 0 after reset, got %d", got)
	}
}

func TestEvacStatsFailureTerms(t *testing.T) {
	p := New()
	p.OldEvacStats().AddFailureUsedAndWaste(128, 1000)
	p.OldEvacStats().AddFailureUsedAndWaste(2, 3)
	if p.OldEvacStats().FailureUsedWords() != 130 {
		t.Fatalf("used words: got %d", p.OldEvacStats().FailureUsedWords())
	}
	if p.OldEvacStats().FailureWasteWords() != 1003 {
		t.Fatalf("waste words: got %d", p.OldEvacStats().FailureWasteWords())
	}
}

func TestPolicyFeedback(t *testing.T) {
	p := New()
	p.RecordRSLength(77)
	p.CSetRegionsFreed()
	p.CSetRegionsFreed()
	if p.LastRSLength() != 77 {
		t.Fatalf("rs length: got %d", p.LastRSLength())
	}
	if p.NumCSetFreedNotifications() != 2 {
		t.Fatalf("freed notifications: got %d", p.NumCSetFreedNotifications())
	}
}

func TestSampleCandidatesDecision(t *testing.T) {
	p := New()
	if p.ShouldSampleCandidates() {
		t.Fatal("sampling must default off")
	}
	p.SetSampleCandidates(true)
	if !p.ShouldSampleCandidates() {
		t.Fatal("sampling decision not recorded")
	}
}

func TestEvacInfo(t *testing.T) {
	e := NewEvacInfo("pause-1")
	e.SetRegionsFreed(3)
	e.SetCollectionSetUsedBefore(8192)
	e.IncrementCollectionSetUsedAfter(4096)
	e.IncrementCollectionSetUsedAfter(1024)

	if e.PauseID() != "pause-1" || e.RegionsFreed() != 3 {
		t.Fatal("basic fields wrong")
	}
	if e.CollectionSetUsedBefore() != 8192 || e.CollectionSetUsedAfter() != 5120 {
		t.Fatal("usage accounting wrong")
	}
}
