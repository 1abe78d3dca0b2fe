// Package command implements the built-in command set (spec §6.2):
// /start, /help, /clear, /recover, /debug, plus the supplemented /stop and
// /stopall teammate-cancellation commands already present in the
// teacher's command-dispatch block in cmd/gateway_consumer.go.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

// Result is what a command handler produces; Text is sent back to the
// user directly (commands never go through the Chat Loop or Router).
type Result struct {
	Text    string
	Handled bool
}

// Canceler cancels in-flight work for a session (single session for
// /stop, every session owned by the caller for /stopall).
type Canceler interface {
	CancelSession(sessionKey string)
	CancelAllFor(agentID string) int
}

// Registry dispatches a raw message to the matching built-in command, or
// reports Handled=false so the caller falls through to the Batch Queue.
type Registry struct {
	sessions  *sessions.Manager
	scheduler clock.AlarmScheduler
	cancel    Canceler
}

func New(mgr *sessions.Manager, scheduler clock.AlarmScheduler, cancel Canceler) *Registry {
	return &Registry{sessions: mgr, scheduler: scheduler, cancel: cancel}
}

// Dispatch recognizes a leading "/"-command and runs it. text is the raw,
// untrimmed message text as received from the transport.
func (r *Registry) Dispatch(ctx context.Context, sessionKey, agentID string, isAdmin bool, text string) Result {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return Result{Handled: false}
	}

	fields := strings.Fields(trimmed)
	switch strings.ToLower(fields[0]) {
	case "/start":
		return Result{Handled: true, Text: "Hi! Send me a message and I'll get back to you."}

	case "/help":
		return Result{Handled: true, Text: helpText}

	case "/clear":
		r.sessions.ClearHistory(sessionKey)
		return Result{Handled: true, Text: "Conversation history cleared."}

	case "/recover":
		return r.recover(sessionKey)

	case "/debug":
		if !isAdmin {
			return Result{Handled: true, Text: "Only admins can use /debug."}
		}
		return r.debug(sessionKey)

	case "/stop":
		r.scheduler.Cancel(sessionKey)
		r.cancel.CancelSession(sessionKey)
		return Result{Handled: true, Text: "Stopped the current run for this conversation."}

	case "/stopall":
		if !isAdmin {
			return Result{Handled: true, Text: "Only admins can use /stopall."}
		}
		n := r.cancel.CancelAllFor(agentID)
		return Result{Handled: true, Text: fmt.Sprintf("Stopped %d in-flight run(s).", n)}

	default:
		return Result{Handled: false}
	}
}

const helpText = "Commands:\n" +
	"/start - say hello\n" +
	"/help - show this message\n" +
	"/clear - clear conversation history\n" +
	"/recover - clear a stuck batch for this conversation\n" +
	"/debug - (admin) show session diagnostics\n" +
	"/stop - cancel the current run\n" +
	"/stopall - (admin) cancel every in-flight run"

// recover implements an explicit user-triggered escape hatch for a wedged
// batch, independent of the automatic stuck-detection in the Batch Queue.
func (r *Registry) recover(sessionKey string) Result {
	cleared := false
	r.sessions.WithBatches(sessionKey, func(s *sessions.Session) {
		if s.ActiveBatch != nil {
			s.ActiveBatch = nil
			cleared = true
		}
	})
	r.scheduler.Cancel(sessionKey)
	if cleared {
		return Result{Handled: true, Text: "Cleared a stuck run. You can try again."}
	}
	return Result{Handled: true, Text: "Nothing to recover."}
}

// debug reports session diagnostics for admin users (spec §4.4's debug
// footer, surfaced on demand rather than only appended to replies).
func (r *Registry) debug(sessionKey string) Result {
	var b strings.Builder
	r.sessions.WithBatches(sessionKey, func(s *sessions.Session) {
		fmt.Fprintf(&b, "session: %s\n", s.Key)
		fmt.Fprintf(&b, "messages: %d\n", len(s.Messages))
		fmt.Fprintf(&b, "activeBatch: %v\n", s.ActiveBatch != nil)
		fmt.Fprintf(&b, "pendingBatch messages: %d\n", pendingCount(s.PendingBatch))
		fmt.Fprintf(&b, "activeWorkflows: %d\n", len(s.ActiveWorkflows))
		fmt.Fprintf(&b, "compactions: %d\n", s.CompactionCount)
	})
	return Result{Handled: true, Text: b.String()}
}

func pendingCount(b *sessions.Batch) int {
	if b == nil {
		return 0
	}
	return len(b.PendingMessages)
}
