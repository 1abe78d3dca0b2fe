package command

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

type fakeCanceler struct {
	canceledSessions []string
	cancelAllFor     string
	cancelAllCount   int
}

func (c *fakeCanceler) CancelSession(sessionKey string) {
	c.canceledSessions = append(c.canceledSessions, sessionKey)
}

func (c *fakeCanceler) CancelAllFor(agentID string) int {
	c.cancelAllFor = agentID
	return c.cancelAllCount
}

func newTestRegistry(cancel *fakeCanceler) (*Registry, *clock.Fake) {
	fc := clock.NewFake(time.Now())
	mgr := sessions.NewManager("")
	return New(mgr, fc, cancel), fc
}

func TestDispatchIgnoresNonCommandText(t *testing.T) {
	r, _ := newTestRegistry(&fakeCanceler{})
	res := r.Dispatch(context.Background(), "sess-1", "agent-1", false, "just chatting")
	if res.Handled {
		t.Fatal("expected plain text not to be handled as a command")
	}
}

func TestDispatchHelpAndStart(t *testing.T) {
	r, _ := newTestRegistry(&fakeCanceler{})
	if res := r.Dispatch(context.Background(), "sess-1", "agent-1", false, "/start"); !res.Handled || res.Text == "" {
		t.Fatalf("expected /start to be handled with text, got %+v", res)
	}
	if res := r.Dispatch(context.Background(), "sess-1", "agent-1", false, "/help"); !res.Handled || !strings.Contains(res.Text, "/clear") {
		t.Fatalf("expected /help to list commands, got %+v", res)
	}
}

func TestDispatchClearClearsHistory(t *testing.T) {
	r, _ := newTestRegistry(&fakeCanceler{})
	r.sessions.WithBatches("sess-1", func(s *sessions.Session) {
		s.HandoffTarget = "code"
	})

	res := r.Dispatch(context.Background(), "sess-1", "agent-1", false, "/clear")
	if !res.Handled {
		t.Fatal("expected /clear to be handled")
	}
	r.sessions.WithBatches("sess-1", func(s *sessions.Session) {
		if s.HandoffTarget != "" {
			t.Fatal("expected /clear to reset a pinned handoff target")
		}
	})
}

func TestDispatchStopCancelsSchedulerAndSession(t *testing.T) {
	cancel := &fakeCanceler{}
	r, fc := newTestRegistry(cancel)
	fc.Schedule("sess-1", time.Now().Add(time.Minute), func() {})

	res := r.Dispatch(context.Background(), "sess-1", "agent-1", false, "/stop")
	if !res.Handled {
		t.Fatal("expected /stop to be handled")
	}
	if fc.Pending("sess-1") {
		t.Fatal("expected /stop to cancel the pending alarm")
	}
	if len(cancel.canceledSessions) != 1 || cancel.canceledSessions[0] != "sess-1" {
		t.Fatalf("expected session cancellation to be requested, got %v", cancel.canceledSessions)
	}
}

func TestDispatchStopallRequiresAdmin(t *testing.T) {
	cancel := &fakeCanceler{cancelAllCount: 3}
	r, _ := newTestRegistry(cancel)

	res := r.Dispatch(context.Background(), "sess-1", "agent-1", false, "/stopall")
	if !res.Handled || !strings.Contains(res.Text, "admin") {
		t.Fatalf("expected non-admin /stopall to be refused, got %+v", res)
	}
	if cancel.cancelAllFor != "" {
		t.Fatal("did not expect CancelAllFor to be invoked for a non-admin caller")
	}

	res = r.Dispatch(context.Background(), "sess-1", "agent-1", true, "/stopall")
	if !res.Handled || !strings.Contains(res.Text, "3") {
		t.Fatalf("expected admin /stopall to report the cancellation count, got %+v", res)
	}
	if cancel.cancelAllFor != "agent-1" {
		t.Fatalf("expected CancelAllFor to be called with the agent ID, got %q", cancel.cancelAllFor)
	}
}

func TestDispatchRecoverClearsStuckBatch(t *testing.T) {
	r, fc := newTestRegistry(&fakeCanceler{})
	r.sessions.WithBatches("sess-1", func(s *sessions.Session) {
		s.ActiveBatch = sessions.NewBatch()
	})
	fc.Schedule("sess-1", time.Now().Add(time.Minute), func() {})

	res := r.Dispatch(context.Background(), "sess-1", "agent-1", false, "/recover")
	if !res.Handled || !strings.Contains(res.Text, "Cleared") {
		t.Fatalf("expected /recover to report clearing a stuck batch, got %+v", res)
	}
	r.sessions.WithBatches("sess-1", func(s *sessions.Session) {
		if s.ActiveBatch != nil {
			t.Fatal("expected active batch to be cleared")
		}
	})

	again := r.Dispatch(context.Background(), "sess-1", "agent-1", false, "/recover")
	if !strings.Contains(again.Text, "Nothing") {
		t.Fatalf("expected second /recover with nothing to clear to say so, got %+v", again)
	}
}

func TestDispatchDebugReportsSessionState(t *testing.T) {
	r, _ := newTestRegistry(&fakeCanceler{})
	r.sessions.WithBatches("sess-1", func(s *sessions.Session) {
		s.PendingBatch = sessions.NewBatch()
		s.PendingBatch.PendingMessages = append(s.PendingBatch.PendingMessages, sessions.PendingMessage{Text: "hi"})
	})

	res := r.Dispatch(context.Background(), "sess-1", "agent-1", true, "/debug")
	if !res.Handled || !strings.Contains(res.Text, "pendingBatch messages: 1") {
		t.Fatalf("expected /debug to report pending message count, got %+v", res)
	}
}
