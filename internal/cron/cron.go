// Package cron implements recurring batch triggers: a user-configured cron
// expression that feeds a synthetic message into a session's Batch Queue on
// schedule, the same way an inbound channel message would (spec §4.1's
// receiveMessage has no notion of "where a message came from" beyond the
// session key, so a cron tick is just another caller).
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// RetryConfig bounds how many times a failed trigger delivery is retried
// and how its backoff grows, mirroring the retry/backoff shape
// internal/processor.Config already uses for batch execution so the two
// retry policies in this codebase read the same way.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns the package defaults (3 retries, 2s..30s
// exponential backoff).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

func (rc RetryConfig) delay(attempt int) time.Duration {
	d := rc.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > rc.MaxDelay {
			return rc.MaxDelay
		}
	}
	return d
}

// Receiver is what a Trigger needs: feed one input into a session as if it
// arrived from a channel. The runtime adapts queue.Queue to it.
type Receiver interface {
	ReceiveMessage(sessionKey string, text string) error
}

// Trigger is one recurring job: run Expr's schedule against SessionKey,
// injecting Text into the Batch Queue each time it fires.
type Trigger struct {
	Name       string
	Expr       string
	SessionKey string
	Text       string
}

// Scheduler polls a set of Triggers once a minute (gronx's cron grammar is
// minute-grained) and fires any whose expression is due, retrying a failed
// delivery per Retry before giving up and logging it.
type Scheduler struct {
	mu       sync.Mutex
	triggers map[string]Trigger
	recv     Receiver
	gron     gronx.Gronx
	retry    RetryConfig
	log      *slog.Logger
	interval time.Duration
}

// NewScheduler creates a Scheduler that delivers due triggers to recv.
func NewScheduler(recv Receiver, retry RetryConfig, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		triggers: make(map[string]Trigger),
		recv:     recv,
		gron:     gronx.New(),
		retry:    retry,
		log:      log,
		interval: time.Minute,
	}
}

// Add registers or replaces a trigger by name. Returns an error if expr is
// not a valid cron expression (validated eagerly so a config mistake is
// caught at load time, not at the next tick).
func (s *Scheduler) Add(t Trigger) error {
	if !s.gron.IsValid(t.Expr) {
		return &InvalidExprError{Expr: t.Expr}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers[t.Name] = t
	return nil
}

// Remove unregisters a trigger by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.triggers, name)
}

// Run blocks, checking every trigger once per tick interval until ctx is
// canceled. Meant to run on its own goroutine for the lifetime of the
// process.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]Trigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		ok, err := s.gron.IsDue(t.Expr, now)
		if err != nil {
			s.log.Warn("cron: invalid expression at tick", "trigger", t.Name, "expr", t.Expr, "err", err)
			continue
		}
		if ok {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		go s.fireWithRetry(ctx, t)
	}
}

func (s *Scheduler) fireWithRetry(ctx context.Context, t Trigger) {
	var lastErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retry.delay(attempt - 1)):
			}
		}
		s.log.Info("cron: firing trigger", "trigger", t.Name, "sessionKey", t.SessionKey, "attempt", attempt)
		if err := s.recv.ReceiveMessage(t.SessionKey, t.Text); err != nil {
			lastErr = err
			s.log.Warn("cron: trigger delivery failed", "trigger", t.Name, "attempt", attempt, "err", err)
			continue
		}
		return
	}
	s.log.Error("cron: trigger exhausted retries", "trigger", t.Name, "err", lastErr)
}

// InvalidExprError reports a cron expression gronx rejected.
type InvalidExprError struct {
	Expr string
}

func (e *InvalidExprError) Error() string {
	return "cron: invalid expression " + e.Expr
}
