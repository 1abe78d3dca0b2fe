// Package queue implements the Batch Queue (spec §4.1): it absorbs a burst
// of user messages arriving within a short window, deduplicates them,
// detects a wedged predecessor batch, and schedules exactly one processor
// pass per session. It is grounded on the dedupe/debounce handling in
// the teacher's cmd/gateway_consumer.go consumeInboundMessages loop, made
// explicit and testable as a standalone operation.
package queue

import (
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

// Defaults for the closed configuration set (spec §6.6).
const (
	DefaultHeartbeatTimeout = 30 * time.Second
	DefaultHardCeiling      = 5 * time.Minute
)

// Config carries the tunables this package's stuck-detection and
// scheduling decisions depend on.
type Config struct {
	HeartbeatTimeout time.Duration
	HardCeiling      time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.HardCeiling <= 0 {
		c.HardCeiling = DefaultHardCeiling
	}
	return c
}

// Input is the minimal subset of a ParsedInput the queue needs. Transport
// adapters translate their platform-specific payload into this shape.
type Input struct {
	RequestID string
	Text      string
	UserID    string
	ChatID    string
	Username  string
	IsAdmin   bool
	EventID   string
	Channel   string
}

// Result mirrors spec §4.1's receiveMessage return shape.
type Result struct {
	TraceID   string
	Queued    bool
	BatchID   string
	Recovered bool
}

// AlarmFn is invoked to run one batch-processor pass for a session,
// either via the scheduler (async) or directly (fallback/fire-and-forget).
type AlarmFn func(sessionKey string)

// Queue wires the session store and alarm scheduler together to implement
// receiveMessage. It holds no state of its own — all durable state lives
// on the Session via sessions.Manager.
type Queue struct {
	sessions  *sessions.Manager
	scheduler clock.AlarmScheduler
	clock     clock.Clock
	cfg       Config
	onAlarm   AlarmFn
	log       *slog.Logger
}

// New creates a Queue. onAlarm is called (possibly synchronously, as a
// fallback) to run the Batch Processor for a session.
func New(mgr *sessions.Manager, scheduler clock.AlarmScheduler, c clock.Clock, cfg Config, onAlarm AlarmFn, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		sessions:  mgr,
		scheduler: scheduler,
		clock:     c,
		cfg:       cfg.withDefaults(),
		onAlarm:   onAlarm,
		log:       log,
	}
}

// stuck implements spec §4.1's stuck-detection predicate.
func stuck(b *sessions.Batch, now time.Time, cfg Config) bool {
	if b == nil {
		return false
	}
	switch b.Status {
	case sessions.BatchProcessing, sessions.BatchDelegated:
		if !b.LastHeartbeat.IsZero() && now.Sub(b.LastHeartbeat) > cfg.HeartbeatTimeout {
			return true
		}
		if b.Status == sessions.BatchProcessing && b.LastHeartbeat.IsZero() && now.Sub(b.BatchStartedAt) > cfg.HardCeiling {
			return true
		}
	}
	return false
}

// ReceiveMessage implements spec §4.1 verbatim.
func (q *Queue) ReceiveMessage(sessionKey string, in Input) Result {
	now := q.clock.Now()
	traceID := in.RequestID
	if traceID == "" {
		traceID = sessions.FreshUUID()
	}

	var result Result
	var fallbackNeeded bool

	q.sessions.WithBatches(sessionKey, func(s *sessions.Session) {
		s.SweepWorkflows(now)

		recovered := false
		// Step 2: stuck detection on activeBatch.
		if s.ActiveBatch != nil && stuck(s.ActiveBatch, now, q.cfg) {
			q.log.Warn("reclaiming stuck batch", "sessionKey", sessionKey, "batchId", s.ActiveBatch.BatchID, "status", s.ActiveBatch.Status)
			s.ActiveBatch = nil
			recovered = true
		}

		// Step 3: pending batch (create if absent).
		pending := s.PendingBatch
		if pending == nil {
			pending = sessions.NewBatch()
			s.PendingBatch = pending
		}

		// Step 4: dedup against both batches' request IDs, plus the
		// coarse rolling window for requests whose batch already
		// finished entirely.
		if s.ActiveBatch != nil && s.ActiveBatch.RequestIDs()[traceID] {
			result = Result{TraceID: traceID, Queued: false}
			return
		}
		if pending.RequestIDs()[traceID] {
			result = Result{TraceID: traceID, Queued: false}
			return
		}
		if s.HasProcessed(traceID) {
			result = Result{TraceID: traceID, Queued: false}
			return
		}

		// Step 5: append.
		isFirst := len(pending.PendingMessages) == 0
		pending.PendingMessages = append(pending.PendingMessages, sessions.PendingMessage{
			Text:      in.Text,
			Timestamp: now,
			RequestID: traceID,
			UserID:    in.UserID,
			ChatID:    in.ChatID,
			Username:  in.Username,
			IsAdmin:   in.IsAdmin,
			EventID:   in.EventID,
		})
		pending.LastMessageAt = now

		// Step 6.
		if pending.Status == sessions.BatchIdle {
			pending.Status = sessions.BatchCollecting
			pending.BatchID = sessions.FreshUUID()
			pending.BatchStartedAt = now
		}

		// Step 7: scheduling decision.
		shouldSchedule := (s.ActiveBatch == nil && isFirst) || // normal
			(recovered && len(pending.PendingMessages) > 0) || // recovery
			(s.ActiveBatch == nil && len(pending.PendingMessages) > 0 && !isFirst) // orphan

		if shouldSchedule {
			alarmAt := now
			err := q.scheduler.Schedule(sessionKey, alarmAt, func() { q.onAlarm(sessionKey) })
			if err != nil {
				q.log.Error("alarm scheduling failed, falling back to immediate invocation", "sessionKey", sessionKey, "err", err)
				fallbackNeeded = true
			}
		}

		result = Result{TraceID: traceID, Queued: true, BatchID: pending.BatchID, Recovered: recovered}
	})

	// Step 8: fall back outside the critical section — onAlarm re-enters
	// WithBatches itself via the Batch Processor's own locking.
	if fallbackNeeded {
		q.onAlarm(sessionKey)
	}

	return result
}
