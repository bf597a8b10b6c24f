package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestPauseIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := PauseIDFrom(ctx); got != "" {
		t.Errorf("expected empty pause ID, got %q", got)
	}

	ctx = WithPauseID(ctx, "pause-42")
	if got := PauseIDFrom(ctx); got != "pause-42" {
		t.Errorf("expected pause-42, got %q", got)
	}
}

func TestCycleIDRoundTrip(t *testing.T) {
	ctx := WithCycleID(context.Background(), "cycle-3")
	if got := CycleIDFrom(ctx); got != "cycle-3" {
		t.Errorf("expected cycle-3, got %q", got)
	}
}

func TestFromContextAppliesIDs(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: LevelDebug, Format: FormatJSON, Output: &buf})

	ctx := WithLogger(context.Background(), base)
	ctx = WithPauseID(ctx, "p7")
	ctx = WithCycleID(ctx, "c2")

	FromContext(ctx).Info("post evacuate cleanup")

	var e Entry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.PauseID != "p7" {
		t.Errorf("expected pause ID p7, got %q", e.PauseID)
	}
	if e.CycleID != "c2" {
		t.Errorf("expected cycle ID c2, got %q", e.CycleID)
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	if got := FromContext(context.Background()); got != Global() {
		t.Error("expected global logger when none stored on context")
	}
}
