// Package router implements the Router / Dispatcher (spec §4.3):
// classifying a combined query, dispatching it either synchronously or
// fire-and-forget to a worker, and merging the result back into session
// history. Grounded on the sync/async delegation contract in
// internal/tools/delegate.go (AgentRunFunc / DelegateOpts.Mode) and on the
// two dispatch styles already present in cmd/gateway_consumer.go's
// resolveAgentRoute.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/processor"
	"github.com/nextlevelbuilder/goclaw/internal/progress"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

// Target is the classification outcome's routing destination.
type Target string

const (
	TargetSimple       Target = "simple"
	TargetCode         Target = "code"
	TargetResearch     Target = "research"
	TargetGeneral      Target = "general"
	TargetOrchestrator Target = "orchestrator"
)

// Classification is the deterministic-rules-plus-LLM-fallback tuple
// produced for every query.
type Classification struct {
	Type       string
	Category   string
	Complexity string
	Target     Target

	// DelegateTo names a worker registered under a Target outside the
	// five built-in ones — a peer agent or specialist wired into the
	// Registry under its own name. When set it overrides Target. Runs
	// dispatched this way are tracked for /stop and /stopall the same as
	// any other WorkerClient execution.
	DelegateTo Target
}

// Classifier assigns a Classification to a query. Deterministic rules run
// first; Fallback is consulted only when no rule matches.
type Classifier struct {
	Rules    []Rule
	Fallback func(ctx context.Context, query string) (Classification, error)
}

// Rule is a single deterministic classification rule.
type Rule struct {
	Name    string
	Matches func(query string) bool
	Result  Classification
}

// Classify runs the deterministic rules in order, falling back to the LLM
// fallback when none match.
func (c *Classifier) Classify(ctx context.Context, query string) (Classification, error) {
	for _, r := range c.Rules {
		if r.Matches != nil && r.Matches(query) {
			cl := r.Result
			if cl.Target == "" {
				cl.Target = TargetGeneral
			}
			return cl, nil
		}
	}
	if c.Fallback != nil {
		return c.Fallback(ctx, query)
	}
	return Classification{Type: "general", Category: "general", Complexity: "simple", Target: TargetGeneral}, nil
}

// ResponseTarget carries everything a fire-and-forget worker needs to
// deliver its own final reply later (spec §4.3).
type ResponseTarget struct {
	ChatID      string
	MessageRef  processor.MessageRef
	Platform    string
	Credentials map[string]string // injected from env at dispatch time, never persisted
	IsAdmin     bool
}

// WorkerClient is a routing destination: a named worker namespace capable
// of either blocking synchronous execution or a fire-and-forget schedule.
type WorkerClient interface {
	// Execute runs synchronously and returns a result.
	Execute(ctx context.Context, req WorkRequest) (WorkResult, error)
	// ScheduleExecution fires the work off asynchronously; the worker is
	// responsible for delivering its own final reply to resp via the
	// transport. Used when total execution may exceed the host's request
	// deadline.
	ScheduleExecution(ctx context.Context, req WorkRequest, resp ResponseTarget) (executionID string, err error)
}

// WorkRequest is what a WorkerClient receives.
type WorkRequest struct {
	TraceID        string
	SessionKey     string
	Query          string
	Classification Classification
}

// WorkResult is what a synchronous WorkerClient.Execute returns.
type WorkResult struct {
	Success     bool
	Content     string
	NewMessages []providers.Message
	ErrorKind   string
	Timeline    *progress.Timeline

	// Handoff, when non-empty, redirects every subsequent message in this
	// session to the named Target instead of re-classifying, until the
	// session clears (spec's supplemental "handoff / teammate routing").
	Handoff Target
}

// Registry maps a Target to the WorkerClient handling it.
type Registry map[Target]WorkerClient

// Router ties classification, dispatch, and history write-back together,
// and implements processor.Router so the Batch Processor can call it
// uniformly regardless of sync/async dispatch style.
type Router struct {
	classifier *Classifier
	workers    Registry
	sessionsM  *sessions.Manager
	maxHistory int
	// asyncTargets marks which Targets must always use fire-and-forget
	// dispatch (spec §4.3b: "MUST be used when the worker's total
	// execution may exceed the host's request deadline").
	asyncTargets map[Target]bool
}

// New constructs a Router.
func New(classifier *Classifier, workers Registry, sessionsM *sessions.Manager, maxHistory int, asyncTargets map[Target]bool) *Router {
	if asyncTargets == nil {
		asyncTargets = map[Target]bool{TargetOrchestrator: true}
	}
	return &Router{classifier: classifier, workers: workers, sessionsM: sessionsM, maxHistory: maxHistory, asyncTargets: asyncTargets}
}

// workerID derives a stable identity for a dispatched unit of work, used
// by callers that need idempotent worker-side keys.
func workerID(traceID, sessionKey string) string {
	return fmt.Sprintf("%s:%s", sessionKey, traceID)
}

// Execute implements processor.Router: classify, dispatch, merge. A prior
// handoff pins the Target before classification runs at all; a
// DelegateTo on the classification result (or a rule match) overrides
// the classifier's own Target.
func (r *Router) Execute(ctx context.Context, ac processor.AgentContext) (processor.RouteOutcome, error) {
	if pinned := r.handoffTarget(ac.SessionKey); pinned != "" {
		if _, ok := r.workers[pinned]; ok {
			return r.dispatch(ctx, ac, Classification{Type: "handoff", Category: "handoff", Target: pinned})
		}
		r.clearHandoff(ac.SessionKey) // target no longer registered, fall through to normal routing
	}

	cl, err := r.classifier.Classify(ctx, ac.Query)
	if err != nil {
		return processor.RouteOutcome{}, fmt.Errorf("router: classify: %w", err)
	}
	if cl.DelegateTo != "" {
		cl.Target = cl.DelegateTo
	}
	return r.dispatch(ctx, ac, cl)
}

func (r *Router) handoffTarget(sessionKey string) Target {
	var t Target
	r.sessionsM.WithBatches(sessionKey, func(s *sessions.Session) {
		t = Target(s.HandoffTarget)
	})
	return t
}

func (r *Router) clearHandoff(sessionKey string) {
	r.sessionsM.WithBatches(sessionKey, func(s *sessions.Session) {
		s.HandoffTarget = ""
	})
}

func (r *Router) dispatch(ctx context.Context, ac processor.AgentContext, cl Classification) (processor.RouteOutcome, error) {
	worker, ok := r.workers[cl.Target]
	if !ok {
		return processor.RouteOutcome{}, fmt.Errorf("router: no worker registered for target %q", cl.Target)
	}

	traceID := uuid.New().String()
	req := WorkRequest{TraceID: traceID, SessionKey: ac.SessionKey, Query: ac.Query, Classification: cl}

	if r.asyncTargets[cl.Target] {
		resp := ResponseTarget{ChatID: ac.SessionKey, Platform: "", IsAdmin: batchIsAdmin(ac.Batch)}
		execID, err := worker.ScheduleExecution(ctx, req, resp)
		if err != nil {
			return processor.RouteOutcome{}, fmt.Errorf("router: schedule execution: %w", err)
		}
		r.sessionsM.WithBatches(ac.SessionKey, func(s *sessions.Session) {
			s.RegisterWorkflow(execID, string(cl.Target), time.Now())
		})
		return processor.RouteOutcome{Success: true, Delegated: true}, nil
	}

	result, err := worker.Execute(ctx, req)
	if err != nil {
		return processor.RouteOutcome{ErrorKind: "worker_error"}, err
	}
	if !result.Success {
		return processor.RouteOutcome{Success: false, ErrorKind: result.ErrorKind}, nil
	}

	// Session-history write-back: append worker-contributed messages,
	// trimmed, atomically with the state update (spec §4.3). A non-empty
	// Handoff pins the session's Target for every future message too.
	if len(result.NewMessages) > 0 || result.Handoff != "" {
		r.sessionsM.WithBatches(ac.SessionKey, func(s *sessions.Session) {
			s.Messages = append(s.Messages, result.NewMessages...)
			if r.maxHistory > 0 && len(s.Messages) > r.maxHistory {
				s.Messages = s.Messages[len(s.Messages)-r.maxHistory:]
			}
			if result.Handoff != "" {
				s.HandoffTarget = string(result.Handoff)
			}
		})
	}

	return processor.RouteOutcome{Success: true, Content: result.Content, NewMessages: result.NewMessages, Timeline: result.Timeline}, nil
}

func batchIsAdmin(b *sessions.Batch) bool {
	if b == nil || len(b.PendingMessages) == 0 {
		return false
	}
	return b.PendingMessages[0].IsAdmin
}
