package runtime

import (
	"testing"
)

func TestSessionCanceler_TrackAndCancelSession(t *testing.T) {
	c := newSessionCanceler()
	canceled := false
	cleanup := c.track("agent:default:telegram:direct:1", func() { canceled = true })
	defer cleanup()

	c.CancelSession("agent:default:telegram:direct:1")
	if !canceled {
		t.Error("CancelSession() did not invoke the tracked cancel func")
	}
}

func TestSessionCanceler_CancelSession_UnknownKeyIsNoop(t *testing.T) {
	c := newSessionCanceler()
	c.CancelSession("agent:default:telegram:direct:nope") // must not panic
}

func TestSessionCanceler_CleanupRemovesEntry(t *testing.T) {
	c := newSessionCanceler()
	calls := 0
	cleanup := c.track("agent:default:telegram:direct:1", func() { calls++ })
	cleanup()

	c.CancelSession("agent:default:telegram:direct:1")
	if calls != 0 {
		t.Errorf("CancelSession() after cleanup invoked the cancel func %d times, want 0", calls)
	}
}

func TestSessionCanceler_CancelAllFor_ScopesByAgentID(t *testing.T) {
	c := newSessionCanceler()
	var canceledA, canceledB, canceledOther int
	c.track("agent:a:telegram:direct:1", func() { canceledA++ })
	c.track("agent:a:telegram:direct:2", func() { canceledB++ })
	c.track("agent:other:telegram:direct:1", func() { canceledOther++ })

	n := c.CancelAllFor("a")
	if n != 2 {
		t.Errorf("CancelAllFor(\"a\") returned %d, want 2", n)
	}
	if canceledA == 0 || canceledB == 0 {
		t.Error("CancelAllFor(\"a\") did not cancel all sessions for agent \"a\"")
	}
	if canceledOther != 0 {
		t.Error("CancelAllFor(\"a\") canceled a session belonging to a different agent")
	}
}
