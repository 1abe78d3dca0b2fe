// Package clock implements the "Clock & Timer" leaf component (spec §2):
// a monotonic now() and a per-session one-shot delayed callback, standing
// in for the durable-object alarm the original system schedules on the
// same session actor.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time. Production code uses SystemClock;
// property tests use a Fake clock that advances manually.
type Clock interface {
	Now() time.Time
}

// AlarmFunc is invoked when a scheduled alarm fires.
type AlarmFunc func()

// AlarmScheduler schedules at most one pending alarm per session key
// (spec invariant I4: "activeBatch exists ⇒ exactly one alarm is
// scheduled OR executing for that batchId"). Scheduling a new alarm for a
// session that already has one pending replaces it.
type AlarmScheduler interface {
	// Schedule arranges for fn to run at or after `at`. Returns an error
	// only if the scheduler itself is unable to accept more work (spec
	// §4.1 step 8: callers must fall back to an immediate synchronous
	// invocation when this happens).
	Schedule(sessionKey string, at time.Time, fn AlarmFunc) error
	// Cancel cancels any pending alarm for sessionKey. Safe to call when
	// none is pending.
	Cancel(sessionKey string)
	// Pending reports whether an alarm is currently scheduled (not yet
	// fired) for sessionKey.
	Pending(sessionKey string) bool
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// InProcessScheduler is the production AlarmScheduler. It stands in for a
// durable-object alarm: the callback runs on a goroutine via time.AfterFunc,
// bound to this process. A session actor that is "evicted" in the source
// system has no equivalent here — the process either keeps running or a
// restart loses in-flight alarms entirely, which is acceptable because
// every alarm's effect (stuck detection, re-promotion) is re-derived from
// durable SessionState on the next receiveMessage, not from alarm state.
type InProcessScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewInProcessScheduler creates a ready-to-use AlarmScheduler.
func NewInProcessScheduler() *InProcessScheduler {
	return &InProcessScheduler{timers: make(map[string]*time.Timer)}
}

func (s *InProcessScheduler) Schedule(sessionKey string, at time.Time, fn AlarmFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[sessionKey]; ok {
		existing.Stop()
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.timers[sessionKey] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, sessionKey)
		s.mu.Unlock()
		fn()
	})
	return nil
}

func (s *InProcessScheduler) Cancel(sessionKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[sessionKey]; ok {
		t.Stop()
		delete(s.timers, sessionKey)
	}
}

func (s *InProcessScheduler) Pending(sessionKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[sessionKey]
	return ok
}
