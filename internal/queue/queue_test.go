package queue

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

func newTestQueue(fc *clock.Fake, onAlarm AlarmFn) *Queue {
	mgr := sessions.NewManager("")
	if onAlarm == nil {
		onAlarm = func(string) {}
	}
	return New(mgr, fc, fc, Config{}, onAlarm, nil)
}

// S1: two messages arriving in quick succession coalesce into one pending
// batch and schedule exactly one alarm.
func TestReceiveMessageCoalescesBurst(t *testing.T) {
	start := time.Now()
	fc := clock.NewFake(start)
	q := newTestQueue(fc, nil)

	r1 := q.ReceiveMessage("sess-1", Input{RequestID: "r1", Text: "hello"})
	if !r1.Queued {
		t.Fatal("expected first message to be queued")
	}
	r2 := q.ReceiveMessage("sess-1", Input{RequestID: "r2", Text: "world"})
	if !r2.Queued {
		t.Fatal("expected second message to be queued")
	}
	if r1.BatchID != r2.BatchID {
		t.Fatalf("expected both messages to join the same pending batch, got %s vs %s", r1.BatchID, r2.BatchID)
	}
	if !fc.Pending("sess-1") {
		t.Fatal("expected exactly one alarm scheduled for the session")
	}
}

// S2: a repeated request ID, whether still in an open batch or already
// recorded as processed, is not queued twice.
func TestReceiveMessageDedup(t *testing.T) {
	start := time.Now()
	fc := clock.NewFake(start)
	q := newTestQueue(fc, nil)

	q.ReceiveMessage("sess-1", Input{RequestID: "dup", Text: "first"})
	again := q.ReceiveMessage("sess-1", Input{RequestID: "dup", Text: "first-retry"})
	if again.Queued {
		t.Fatal("expected duplicate request ID already in the pending batch to be rejected")
	}

	mgr := sessions.NewManager("")
	q2 := New(mgr, fc, fc, Config{}, func(string) {}, nil)
	q2.sessions.WithBatches("sess-2", func(s *sessions.Session) {
		s.MarkProcessed("processed-1")
	})
	res := q2.ReceiveMessage("sess-2", Input{RequestID: "processed-1", Text: "late retry"})
	if res.Queued {
		t.Fatal("expected a request ID already in the processed window to be rejected")
	}
}

// S3: a batch stuck in BatchProcessing past the heartbeat timeout is
// reclaimed so a new message can proceed, and the result reports recovery.
func TestReceiveMessageReclaimsStuckBatch(t *testing.T) {
	start := time.Now()
	fc := clock.NewFake(start)
	q := newTestQueue(fc, nil)

	q.sessions.WithBatches("sess-1", func(s *sessions.Session) {
		b := sessions.NewBatch()
		b.Status = sessions.BatchProcessing
		b.BatchStartedAt = start
		b.LastHeartbeat = start
		s.ActiveBatch = b
	})

	fc.Advance(DefaultHeartbeatTimeout + time.Second)

	res := q.ReceiveMessage("sess-1", Input{RequestID: "r1", Text: "still here?"})
	if !res.Queued || !res.Recovered {
		t.Fatalf("expected message to be queued with recovery, got %+v", res)
	}

	q.sessions.WithBatches("sess-1", func(s *sessions.Session) {
		if s.ActiveBatch != nil {
			t.Fatal("expected stuck active batch to be cleared")
		}
	})
}

// A healthy active batch (heartbeat well within the timeout) is left
// alone; the incoming message still joins the pending batch without
// triggering a reclaim.
func TestReceiveMessageLeavesHealthyActiveBatchAlone(t *testing.T) {
	start := time.Now()
	fc := clock.NewFake(start)
	q := newTestQueue(fc, nil)

	q.sessions.WithBatches("sess-1", func(s *sessions.Session) {
		b := sessions.NewBatch()
		b.Status = sessions.BatchProcessing
		b.BatchStartedAt = start
		b.LastHeartbeat = start
		s.ActiveBatch = b
	})

	res := q.ReceiveMessage("sess-1", Input{RequestID: "r1", Text: "hi"})
	if res.Recovered {
		t.Fatal("did not expect a recovery for a healthy active batch")
	}

	q.sessions.WithBatches("sess-1", func(s *sessions.Session) {
		if s.ActiveBatch == nil {
			t.Fatal("expected healthy active batch to remain")
		}
	})
}

// When the scheduler itself fails to accept work, ReceiveMessage falls
// back to invoking onAlarm synchronously (spec §4.1 step 8).
func TestReceiveMessageFallsBackWhenSchedulerFails(t *testing.T) {
	start := time.Now()
	fc := clock.NewFake(start)
	mgr := sessions.NewManager("")

	var invoked string
	onAlarm := func(sessionKey string) { invoked = sessionKey }

	q := New(mgr, failingScheduler{}, fc, Config{}, onAlarm, nil)
	res := q.ReceiveMessage("sess-1", Input{RequestID: "r1", Text: "hi"})
	if !res.Queued {
		t.Fatal("expected message to still be recorded as queued")
	}
	if invoked != "sess-1" {
		t.Fatalf("expected fallback to invoke onAlarm synchronously, got %q", invoked)
	}
}

type failingScheduler struct{}

func (failingScheduler) Schedule(string, time.Time, clock.AlarmFunc) error {
	return errScheduleFailed
}
func (failingScheduler) Cancel(string)      {}
func (failingScheduler) Pending(string) bool { return false }

var errScheduleFailed = &scheduleError{"scheduler unavailable"}

type scheduleError struct{ msg string }

func (e *scheduleError) Error() string { return e.msg }
