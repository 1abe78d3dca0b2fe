// Package processor implements the Batch Processor (spec §4.2): single-flight
// execution of one batch with retry, heartbeat, and failover. State names
// follow the BatchState vocabulary established for LLM batch jobs in
// nevindra-oasis's batch provider, adapted here to message-batch coalescing
// rather than an LLM provider's async job API.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/progress"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

// Defaults for the closed configuration set (spec §6.6).
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
	DefaultBackoff    = 2.0
	DefaultCapDelay   = 60 * time.Second
)

// Config carries the retry/backoff tunables plus the model name recorded in
// the admin debug footer.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	Backoff    float64
	CapDelay   time.Duration
	Model      string
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.CapDelay <= 0 {
		c.CapDelay = DefaultCapDelay
	}
	return c
}

// MessageRef identifies a rendered progress message on some transport, so
// it can later be edited or re-sent.
type MessageRef struct {
	Channel string
	ChatID  string
	Extra   map[string]string
}

// Transport is the subset of the Transport Adapter (spec §6.3) the
// processor needs to render progress and final replies.
type Transport interface {
	Send(ctx context.Context, sessionKey, text string) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string) error
	NotifyAdmin(ctx context.Context, text string)
}

// AgentContext is passed to a configured Router for execution (spec §4.3).
type AgentContext struct {
	Query      string
	SessionKey string
	Batch      *sessions.Batch
}

// RouteOutcome is what a Router/ChatLoop execution reports back.
type RouteOutcome struct {
	Success     bool
	Content     string
	Delegated   bool // true when the router fired-and-forgot; final reply arrives out of band
	ErrorKind   string
	NewMessages []providers.Message
	Timeline    *progress.Timeline
}

// Router executes (or schedules) routed work for a combined batch query.
// When Delegated is requested the router is expected to have already
// called its own ScheduleExecution and returns promptly with
// RouteOutcome{Delegated: true}.
type Router interface {
	Execute(ctx context.Context, ac AgentContext) (RouteOutcome, error)
}

// ChatLoop is the fallback execution path when no Router is configured
// (spec §4.5).
type ChatLoop interface {
	Run(ctx context.Context, sessionKey, combinedText string) (string, *progress.Timeline, string, error)
}

// ClearHandler processes a standalone "/clear" batch (spec §4.2 step 6).
type ClearHandler func(ctx context.Context, sessionKey string) string

// Processor implements onBatchAlarm.
type Processor struct {
	sessions  *sessions.Manager
	scheduler clock.AlarmScheduler
	clockSrc  clock.Clock
	cfg       Config
	transport Transport
	router    Router // nil => fall back to ChatLoop
	chatLoop  ChatLoop
	onClear   ClearHandler
	group     singleflight.Group
	log       *slog.Logger
}

// New constructs a Processor. router may be nil, in which case every batch
// runs through chatLoop.
func New(
	mgr *sessions.Manager,
	scheduler clock.AlarmScheduler,
	c clock.Clock,
	cfg Config,
	transport Transport,
	router Router,
	chatLoop ChatLoop,
	onClear ClearHandler,
	log *slog.Logger,
) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		sessions:  mgr,
		scheduler: scheduler,
		clockSrc:  c,
		cfg:       cfg.withDefaults(),
		transport: transport,
		router:    router,
		chatLoop:  chatLoop,
		onClear:   onClear,
		log:       log,
	}
}

// OnBatchAlarm implements spec §4.2's onBatchAlarm, single-flighted per
// sessionKey so a scheduler replay or a fallback-triggered re-entry never
// runs two passes concurrently for the same session.
func (p *Processor) OnBatchAlarm(ctx context.Context, sessionKey string) {
	_, _, _ = p.group.Do(sessionKey, func() (interface{}, error) {
		p.run(ctx, sessionKey)
		return nil, nil
	})
}

func (p *Processor) run(ctx context.Context, sessionKey string) {
	now := p.clockSrc.Now()

	// Steps 1-4: healthy-active check, reclaim, nothing-to-do, promotion.
	var active *sessions.Batch
	var rotator *progress.Rotator
	promoted := false

	p.sessions.WithBatches(sessionKey, func(s *sessions.Session) {
		if s.ActiveBatch != nil && s.ActiveBatch.Status == sessions.BatchRetrying {
			// A retry alarm fired: re-run the same active batch directly,
			// it never went back through the pending-batch promotion path.
			b := s.ActiveBatch
			b.Status = sessions.BatchProcessing
			b.LastHeartbeat = now
			b.pushStage(sessions.StageProcessing)
			active = b
			promoted = true
			return
		}
		if s.ActiveBatch != nil && !isStuck(s.ActiveBatch, now) {
			return // step 1: healthy active batch, nothing to do this pass
		}
		if s.ActiveBatch != nil {
			p.log.Warn("batch processor reclaiming stuck batch", "sessionKey", sessionKey, "batchId", s.ActiveBatch.BatchID)
			s.ActiveBatch = nil // step 2
		}
		if s.PendingBatch == nil || len(s.PendingBatch.PendingMessages) == 0 {
			return // step 3
		}

		// Step 4: atomic promotion.
		b := s.PendingBatch
		b.Status = sessions.BatchProcessing
		b.LastHeartbeat = now
		b.pushStage(sessions.StageProcessing)
		s.ActiveBatch = b
		s.PendingBatch = sessions.NewBatch()
		active = b
		promoted = true
	})

	if !promoted || active == nil {
		return
	}

	// Step 5: combine.
	combinedText := active.CombinedText()

	// Step 6: special-case /clear.
	if p.onClear != nil && len(active.PendingMessages) > 0 && active.PendingMessages[0].Text == "/clear" {
		reply := p.onClear(ctx, sessionKey)
		p.finishBatch(ctx, sessionKey, active, true, reply, nil)
		return
	}

	// Step 7: render initial progress message.
	rotator = progress.NewRotator(progress.DefaultMessages, func() {
		p.sessions.WithBatches(sessionKey, func(s *sessions.Session) {
			if s.ActiveBatch != nil && s.ActiveBatch.BatchID == active.BatchID {
				s.ActiveBatch.LastHeartbeat = p.clockSrc.Now()
			}
		})
	})

	ref, err := p.transport.Send(ctx, sessionKey, rotator.CurrentMessage())
	if err != nil {
		p.log.Warn("failed to render initial progress message", "sessionKey", sessionKey, "err", err)
	}

	// Step 8: start rotator ticking (heartbeat independent of edit success).
	rotator.Start(func(msg string) {
		if ref != (MessageRef{}) {
			if editErr := p.transport.Edit(ctx, ref, msg); editErr != nil {
				p.log.Debug("progress rotator edit failed, heartbeat still recorded", "sessionKey", sessionKey, "err", editErr)
			}
		}
	})
	defer func() {
		rotator.Stop()
		rotator.WaitForPending()
	}()

	// Step 9: execute.
	var outcome RouteOutcome
	var execErr error
	if p.router != nil {
		outcome, execErr = p.router.Execute(ctx, AgentContext{Query: combinedText, SessionKey: sessionKey, Batch: active})
	} else {
		var text string
		var tl *progress.Timeline
		text, tl, _, execErr = p.chatLoop.Run(ctx, sessionKey, combinedText)
		outcome = RouteOutcome{Success: execErr == nil, Content: text, Timeline: tl}
	}

	if execErr == nil && outcome.Delegated {
		p.sessions.WithBatches(sessionKey, func(s *sessions.Session) {
			if s.ActiveBatch != nil && s.ActiveBatch.BatchID == active.BatchID {
				s.ActiveBatch.Status = sessions.BatchDelegated
			}
		})
		return // worker owns delivery and eventual CompleteWorkflow callback
	}

	if execErr != nil || !outcome.Success {
		p.handleFailure(ctx, sessionKey, active, execErr, outcome)
		return
	}

	// Step 10: render final reply. Sanitize for the transport and, for
	// admin senders, append the step timeline and run stats as a debug
	// footer (spec §4.4's "final render").
	rotator.Stop()
	rotator.WaitForPending()
	isAdmin := false
	if len(active.PendingMessages) > 0 {
		isAdmin = active.PendingMessages[0].IsAdmin
	}
	footer := &progress.DebugFooter{
		Timeline:   outcome.Timeline,
		DurationMs: p.clockSrc.Now().Sub(active.BatchStartedAt).Milliseconds(),
		Model:      p.cfg.Model,
	}
	finalText := progress.RenderFinal(outcome.Content, progress.Plain, isAdmin, footer)

	finalErr := (error)(nil)
	if ref != (MessageRef{}) {
		finalErr = p.transport.Edit(ctx, ref, finalText)
	}
	if ref == (MessageRef{}) || finalErr != nil {
		_, _ = p.transport.Send(ctx, sessionKey, finalText)
	}

	p.finishBatch(ctx, sessionKey, active, true, outcome.Content, nil)
}

// finishBatch implements step 11: success path.
func (p *Processor) finishBatch(ctx context.Context, sessionKey string, active *sessions.Batch, success bool, finalText string, failure error) {
	var reschedule bool
	p.sessions.WithBatches(sessionKey, func(s *sessions.Session) {
		s.MarkProcessed(batchRequestIDs(active)...)
		if s.ActiveBatch != nil && s.ActiveBatch.BatchID == active.BatchID {
			s.ActiveBatch.pushStage(sessions.StageDone)
			s.ActiveBatch = nil
		}
		reschedule = s.PendingBatch != nil && len(s.PendingBatch.PendingMessages) > 0
	})
	if reschedule {
		if err := p.scheduler.Schedule(sessionKey, p.clockSrc.Now(), func() { p.OnBatchAlarm(ctx, sessionKey) }); err != nil {
			p.log.Error("failed to schedule follow-up batch alarm", "sessionKey", sessionKey, "err", err)
			p.OnBatchAlarm(ctx, sessionKey)
		}
	}
}

// handleFailure implements step 12: failure path (retry/backoff/notify).
func (p *Processor) handleFailure(ctx context.Context, sessionKey string, active *sessions.Batch, execErr error, outcome RouteOutcome) {
	msg := "execution failed"
	if execErr != nil {
		msg = execErr.Error()
	} else if outcome.ErrorKind != "" {
		msg = outcome.ErrorKind
	}
	now := p.clockSrc.Now()

	var shouldRetry bool
	var delay time.Duration
	var isAdmin bool

	p.sessions.WithBatches(sessionKey, func(s *sessions.Session) {
		if s.ActiveBatch == nil || s.ActiveBatch.BatchID != active.BatchID {
			return
		}
		b := s.ActiveBatch
		b.RetryErrors = append(b.RetryErrors, sessions.RetryError{At: now, Message: msg})
		if len(active.PendingMessages) > 0 {
			isAdmin = active.PendingMessages[0].IsAdmin
		}
		if b.RetryCount < p.cfg.MaxRetries {
			b.RetryCount++
			b.Status = sessions.BatchRetrying
			b.pushStage(sessions.StageRetrying)
			delay = backoffDelay(p.cfg, b.RetryCount)
			shouldRetry = true
		} else {
			b.Status = sessions.BatchFailed
			b.pushStage(sessions.StageFailed)
		}
	})

	if shouldRetry {
		at := now.Add(delay)
		if err := p.scheduler.Schedule(sessionKey, at, func() { p.OnBatchAlarm(ctx, sessionKey) }); err != nil {
			p.log.Error("failed to schedule retry alarm", "sessionKey", sessionKey, "err", err)
			p.OnBatchAlarm(ctx, sessionKey)
		}
		return
	}

	// Exhausted retries: notify the user, optionally alert admins, clear.
	errText := fmt.Sprintf("Sorry, I ran into a problem and couldn't finish: %s", msg)
	_, _ = p.transport.Send(ctx, sessionKey, errText)
	if isAdmin {
		p.transport.NotifyAdmin(ctx, fmt.Sprintf("batch failed for session %s after %d retries: %s", sessionKey, p.cfg.MaxRetries, msg))
	}

	p.sessions.WithBatches(sessionKey, func(s *sessions.Session) {
		if s.ActiveBatch != nil && s.ActiveBatch.BatchID == active.BatchID {
			s.ActiveBatch.pushStage(sessions.StageNotified)
			s.MarkProcessed(batchRequestIDs(s.ActiveBatch)...)
			s.ActiveBatch = nil
		}
	})
}

func batchRequestIDs(b *sessions.Batch) []string {
	ids := make([]string, 0, len(b.PendingMessages))
	for _, m := range b.PendingMessages {
		if m.RequestID != "" {
			ids = append(ids, m.RequestID)
		}
	}
	return ids
}

func backoffDelay(cfg Config, retryCount int) time.Duration {
	d := float64(cfg.BaseDelay) * math.Pow(cfg.Backoff, float64(retryCount-1))
	if d > float64(cfg.CapDelay) {
		d = float64(cfg.CapDelay)
	}
	return time.Duration(d)
}

func isStuck(b *sessions.Batch, now time.Time) bool {
	switch b.Status {
	case sessions.BatchProcessing, sessions.BatchDelegated:
		if !b.LastHeartbeat.IsZero() && now.Sub(b.LastHeartbeat) > 30*time.Second {
			return true
		}
		if b.Status == sessions.BatchProcessing && b.LastHeartbeat.IsZero() && now.Sub(b.BatchStartedAt) > 5*time.Minute {
			return true
		}
	}
	return false
}

var errNotDelegatable = errors.New("processor: router did not delegate and returned no content")
