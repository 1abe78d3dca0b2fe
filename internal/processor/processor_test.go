package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

type fakeTransport struct {
	mu    sync.Mutex
	sent  []string
	edits []string
	admin []string
}

func (t *fakeTransport) Send(ctx context.Context, sessionKey, text string) (MessageRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, text)
	return MessageRef{Channel: "test", ChatID: sessionKey}, nil
}

func (t *fakeTransport) Edit(ctx context.Context, ref MessageRef, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.edits = append(t.edits, text)
	return nil
}

func (t *fakeTransport) NotifyAdmin(ctx context.Context, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.admin = append(t.admin, text)
}

type scriptedRouter struct {
	mu      sync.Mutex
	calls   int
	results []func() (RouteOutcome, error)
}

func (r *scriptedRouter) Execute(ctx context.Context, ac AgentContext) (RouteOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	r.calls++
	if i >= len(r.results) {
		i = len(r.results) - 1
	}
	return r.results[i]()
}

func seedPendingBatch(mgr *sessions.Manager, sessionKey string, text string) {
	mgr.WithBatches(sessionKey, func(s *sessions.Session) {
		b := sessions.NewBatch()
		b.Status = sessions.BatchCollecting
		b.BatchID = sessions.FreshUUID()
		b.PendingMessages = append(b.PendingMessages, sessions.PendingMessage{Text: text, RequestID: "r1"})
		s.PendingBatch = b
	})
}

// S4: a router call that fails once, then succeeds on retry, ends with the
// final content delivered and no pending retry left.
func TestProcessorRetryThenSucceed(t *testing.T) {
	start := time.Now()
	fc := clock.NewFake(start)
	mgr := sessions.NewManager("")
	seedPendingBatch(mgr, "sess-1", "do the thing")

	transport := &fakeTransport{}
	router := &scriptedRouter{results: []func() (RouteOutcome, error){
		func() (RouteOutcome, error) { return RouteOutcome{}, errors.New("transient failure") },
		func() (RouteOutcome, error) { return RouteOutcome{Success: true, Content: "done"}, nil },
	}}

	p := New(mgr, fc, fc, Config{BaseDelay: time.Second, MaxRetries: 3}, transport, router, nil, nil, nil)

	p.OnBatchAlarm(context.Background(), "sess-1")

	mgr.WithBatches("sess-1", func(s *sessions.Session) {
		if s.ActiveBatch == nil || s.ActiveBatch.Status != sessions.BatchRetrying {
			t.Fatalf("expected batch to be retrying after first failure, got %+v", s.ActiveBatch)
		}
	})

	fc.Advance(2 * time.Second)

	mgr.WithBatches("sess-1", func(s *sessions.Session) {
		if s.ActiveBatch != nil {
			t.Fatalf("expected batch to be cleared after eventual success, got %+v", s.ActiveBatch)
		}
	})

	transport.mu.Lock()
	defer transport.mu.Unlock()
	found := false
	for _, e := range transport.edits {
		if e == "done" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected final content to be delivered via edit, got edits=%v sent=%v", transport.edits, transport.sent)
	}
}

// Exhausted retries: the batch is marked failed, the user is notified, and
// the active batch is cleared rather than retried forever.
func TestProcessorExhaustsRetriesAndNotifies(t *testing.T) {
	start := time.Now()
	fc := clock.NewFake(start)
	mgr := sessions.NewManager("")
	seedPendingBatch(mgr, "sess-1", "do the thing")
	mgr.WithBatches("sess-1", func(s *sessions.Session) {
		s.PendingBatch.PendingMessages[0].IsAdmin = true
	})

	transport := &fakeTransport{}
	alwaysFail := &scriptedRouter{results: []func() (RouteOutcome, error){
		func() (RouteOutcome, error) { return RouteOutcome{}, errors.New("permanent failure") },
	}}

	p := New(mgr, fc, fc, Config{BaseDelay: time.Second, MaxRetries: 1}, transport, alwaysFail, nil, nil, nil)

	p.OnBatchAlarm(context.Background(), "sess-1")
	fc.Advance(10 * time.Second)

	mgr.WithBatches("sess-1", func(s *sessions.Session) {
		if s.ActiveBatch != nil {
			t.Fatalf("expected active batch to be cleared after exhausting retries, got %+v", s.ActiveBatch)
		}
	})

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.admin) == 0 {
		t.Fatal("expected an admin notification after exhausting retries for an admin sender")
	}
}

// Delegated fire-and-forget: the router hands off and the batch moves to
// BatchDelegated without the processor rendering a final reply itself.
func TestProcessorDelegatedFireAndForget(t *testing.T) {
	start := time.Now()
	fc := clock.NewFake(start)
	mgr := sessions.NewManager("")
	seedPendingBatch(mgr, "sess-1", "long running task")

	transport := &fakeTransport{}
	router := &scriptedRouter{results: []func() (RouteOutcome, error){
		func() (RouteOutcome, error) { return RouteOutcome{Success: true, Delegated: true}, nil },
	}}

	p := New(mgr, fc, fc, Config{}, transport, router, nil, nil, nil)
	p.OnBatchAlarm(context.Background(), "sess-1")

	mgr.WithBatches("sess-1", func(s *sessions.Session) {
		if s.ActiveBatch == nil || s.ActiveBatch.Status != sessions.BatchDelegated {
			t.Fatalf("expected batch left delegated, got %+v", s.ActiveBatch)
		}
	})
}

// A healthy already-processing batch causes OnBatchAlarm to be a no-op:
// no promotion, no double-execution.
func TestProcessorSkipsHealthyActiveBatch(t *testing.T) {
	start := time.Now()
	fc := clock.NewFake(start)
	mgr := sessions.NewManager("")
	mgr.WithBatches("sess-1", func(s *sessions.Session) {
		b := sessions.NewBatch()
		b.Status = sessions.BatchProcessing
		b.BatchStartedAt = start
		b.LastHeartbeat = start
		s.ActiveBatch = b
	})

	router := &scriptedRouter{results: []func() (RouteOutcome, error){
		func() (RouteOutcome, error) {
			t.Fatal("router should not be invoked while a healthy batch is active")
			return RouteOutcome{}, nil
		},
	}}

	p := New(mgr, fc, fc, Config{}, &fakeTransport{}, router, nil, nil, nil)
	p.OnBatchAlarm(context.Background(), "sess-1")
}
