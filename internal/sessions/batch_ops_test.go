package sessions

import (
	"testing"
	"time"
)

func TestDedupWindowEvictsOldest(t *testing.T) {
	mgr := NewManager("")
	mgr.SetDedupWindowSize(3)
	defer mgr.SetDedupWindowSize(maxProcessedRequestIDs)

	mgr.WithBatches("sess-1", func(s *Session) {
		s.MarkProcessed("r1", "r2", "r3", "r4")
	})

	mgr.WithBatches("sess-1", func(s *Session) {
		if s.HasProcessed("r1") {
			t.Fatal("expected oldest request ID to be evicted once window is full")
		}
		if !s.HasProcessed("r4") {
			t.Fatal("expected most recent request ID to remain")
		}
	})
}

func TestSweepWorkflowsEvictsStaleEntries(t *testing.T) {
	mgr := NewManager("")
	start := time.Now()

	mgr.WithBatches("sess-1", func(s *Session) {
		s.RegisterWorkflow("fresh", "worker", start)
		s.RegisterWorkflow("stale", "worker", start.Add(-defaultWorkflowTTL-time.Minute))
	})

	mgr.WithBatches("sess-1", func(s *Session) {
		s.SweepWorkflows(start)
		if _, ok := s.ActiveWorkflows["stale"]; ok {
			t.Fatal("expected stale workflow ref to be swept")
		}
		if _, ok := s.ActiveWorkflows["fresh"]; !ok {
			t.Fatal("expected fresh workflow ref to survive the sweep")
		}
	})
}

func TestCompleteWorkflowRemovesRef(t *testing.T) {
	mgr := NewManager("")
	mgr.WithBatches("sess-1", func(s *Session) {
		s.RegisterWorkflow("exec-1", "worker", time.Now())
		s.CompleteWorkflow("exec-1")
		if _, ok := s.ActiveWorkflows["exec-1"]; ok {
			t.Fatal("expected workflow ref to be removed after completion callback")
		}
	})
}

func TestWithBatchesCreatesSessionOnDemand(t *testing.T) {
	mgr := NewManager("")
	var sawNilBatches bool
	mgr.WithBatches("new-session", func(s *Session) {
		sawNilBatches = s.ActiveBatch == nil && s.PendingBatch == nil
	})
	if !sawNilBatches {
		t.Fatal("expected a freshly created session to start with no batches")
	}
}
