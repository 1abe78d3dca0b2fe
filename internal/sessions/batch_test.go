package sessions

import "testing"

func TestCombinedTextJoinsPendingMessages(t *testing.T) {
	b := NewBatch()
	b.PendingMessages = []PendingMessage{{Text: "hello"}, {Text: "world"}}
	got := b.CombinedText()
	want := "hello\nworld"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCombinedTextEmptyBatch(t *testing.T) {
	b := NewBatch()
	if got := b.CombinedText(); got != "" {
		t.Fatalf("expected empty string for a batch with no messages, got %q", got)
	}
	var nilBatch *Batch
	if got := nilBatch.CombinedText(); got != "" {
		t.Fatalf("expected nil-safe CombinedText to return empty string, got %q", got)
	}
}

func TestRequestIDsNilSafe(t *testing.T) {
	var nilBatch *Batch
	ids := nilBatch.RequestIDs()
	if len(ids) != 0 {
		t.Fatalf("expected empty set for a nil batch, got %v", ids)
	}
}

func TestRequestIDsCollectsAllPending(t *testing.T) {
	b := NewBatch()
	b.PendingMessages = []PendingMessage{{RequestID: "r1"}, {RequestID: "r2"}}
	ids := b.RequestIDs()
	if !ids["r1"] || !ids["r2"] {
		t.Fatalf("expected both request IDs present, got %v", ids)
	}
}

func TestPushStageAppendsHistory(t *testing.T) {
	b := NewBatch()
	b.pushStage(StageProcessing)
	b.pushStage(StageDone)
	if b.CurrentStage != StageDone {
		t.Fatalf("expected current stage to be the last pushed, got %v", b.CurrentStage)
	}
	want := []Stage{StageProcessing, StageDone}
	if len(b.StageHistory) != len(want) {
		t.Fatalf("got history %v, want %v", b.StageHistory, want)
	}
	for i, s := range want {
		if b.StageHistory[i] != s {
			t.Fatalf("got history %v, want %v", b.StageHistory, want)
		}
	}
}
