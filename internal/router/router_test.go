package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/processor"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

type stubWorker struct {
	execResult   WorkResult
	execErr      error
	scheduleID   string
	scheduleErr  error
	executed     bool
	scheduled    bool
	lastRequest  WorkRequest
}

func (w *stubWorker) Execute(ctx context.Context, req WorkRequest) (WorkResult, error) {
	w.executed = true
	w.lastRequest = req
	return w.execResult, w.execErr
}

func (w *stubWorker) ScheduleExecution(ctx context.Context, req WorkRequest, resp ResponseTarget) (string, error) {
	w.scheduled = true
	w.lastRequest = req
	return w.scheduleID, w.scheduleErr
}

func TestClassifyRulesThenFallback(t *testing.T) {
	c := &Classifier{
		Rules: []Rule{
			{Name: "code", Matches: func(q string) bool { return strings.Contains(q, "func ") }, Result: Classification{Type: "code", Target: TargetCode}},
		},
		Fallback: func(ctx context.Context, query string) (Classification, error) {
			return Classification{Type: "general", Target: TargetGeneral}, nil
		},
	}

	cl, err := c.Classify(context.Background(), "please review this func () {}")
	if err != nil || cl.Target != TargetCode {
		t.Fatalf("expected rule match to classify as code, got %+v err=%v", cl, err)
	}

	cl2, err := c.Classify(context.Background(), "hello there")
	if err != nil || cl2.Target != TargetGeneral {
		t.Fatalf("expected fallback classification, got %+v err=%v", cl2, err)
	}
}

func TestRouterDispatchesSynchronously(t *testing.T) {
	mgr := sessions.NewManager("")
	simple := &stubWorker{execResult: WorkResult{Success: true, Content: "answer"}}
	classifier := &Classifier{Rules: []Rule{{Matches: func(string) bool { return true }, Result: Classification{Target: TargetSimple}}}}
	r := New(classifier, Registry{TargetSimple: simple}, mgr, 0, nil)

	outcome, err := r.Execute(context.Background(), processor.AgentContext{Query: "hi", SessionKey: "sess-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || outcome.Content != "answer" {
		t.Fatalf("expected synchronous success with content, got %+v", outcome)
	}
	if !simple.executed {
		t.Fatal("expected worker.Execute to be called")
	}
}

func TestRouterAsyncTargetSchedulesAndTracksWorkflow(t *testing.T) {
	mgr := sessions.NewManager("")
	orch := &stubWorker{scheduleID: "exec-1"}
	classifier := &Classifier{Rules: []Rule{{Matches: func(string) bool { return true }, Result: Classification{Target: TargetOrchestrator}}}}
	r := New(classifier, Registry{TargetOrchestrator: orch}, mgr, 0, nil)

	outcome, err := r.Execute(context.Background(), processor.AgentContext{Query: "long task", SessionKey: "sess-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Delegated {
		t.Fatalf("expected TargetOrchestrator to be dispatched asynchronously, got %+v", outcome)
	}
	if !orch.scheduled {
		t.Fatal("expected worker.ScheduleExecution to be called")
	}

	mgr.WithBatches("sess-1", func(s *sessions.Session) {
		if _, ok := s.ActiveWorkflows["exec-1"]; !ok {
			t.Fatal("expected the scheduled execution to be tracked as an active workflow")
		}
	})
}

func TestRouterHandoffPinsTarget(t *testing.T) {
	mgr := sessions.NewManager("")
	mgr.WithBatches("sess-1", func(s *sessions.Session) {
		s.HandoffTarget = string(TargetCode)
	})

	codeWorker := &stubWorker{execResult: WorkResult{Success: true, Content: "handled"}}
	generalWorker := &stubWorker{execResult: WorkResult{Success: true, Content: "should not be reached"}}
	classifier := &Classifier{Rules: []Rule{{Matches: func(string) bool { return true }, Result: Classification{Target: TargetGeneral}}}}
	r := New(classifier, Registry{TargetCode: codeWorker, TargetGeneral: generalWorker}, mgr, 0, nil)

	outcome, err := r.Execute(context.Background(), processor.AgentContext{Query: "anything", SessionKey: "sess-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || outcome.Content != "handled" {
		t.Fatalf("expected handoff target to receive the dispatch, got %+v", outcome)
	}
	if generalWorker.executed {
		t.Fatal("did not expect the classifier's own target to run once a handoff is pinned")
	}
}

func TestRouterHandoffResultPinsFutureTarget(t *testing.T) {
	mgr := sessions.NewManager("")
	research := &stubWorker{execResult: WorkResult{Success: true, Content: "researched", Handoff: TargetCode}}
	classifier := &Classifier{Rules: []Rule{{Matches: func(string) bool { return true }, Result: Classification{Target: TargetResearch}}}}
	r := New(classifier, Registry{TargetResearch: research}, mgr, 0, nil)

	_, err := r.Execute(context.Background(), processor.AgentContext{Query: "look into this", SessionKey: "sess-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mgr.WithBatches("sess-1", func(s *sessions.Session) {
		if s.HandoffTarget != string(TargetCode) {
			t.Fatalf("expected handoff target to be pinned to code, got %q", s.HandoffTarget)
		}
	})
}

func TestRouterDispatchErrorWhenNoWorkerRegistered(t *testing.T) {
	mgr := sessions.NewManager("")
	classifier := &Classifier{Rules: []Rule{{Matches: func(string) bool { return true }, Result: Classification{Target: TargetCode}}}}
	r := New(classifier, Registry{}, mgr, 0, nil)

	_, err := r.Execute(context.Background(), processor.AgentContext{Query: "x", SessionKey: "sess-1"})
	if err == nil {
		t.Fatal("expected an error when no worker is registered for the classified target")
	}
}

func TestRouterPropagatesClassifyError(t *testing.T) {
	mgr := sessions.NewManager("")
	wantErr := errors.New("classification backend down")
	classifier := &Classifier{Fallback: func(ctx context.Context, query string) (Classification, error) {
		return Classification{}, wantErr
	}}
	r := New(classifier, Registry{}, mgr, 0, nil)

	_, err := r.Execute(context.Background(), processor.AgentContext{Query: "x", SessionKey: "sess-1"})
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("expected classify error to propagate, got %v", err)
	}
}
