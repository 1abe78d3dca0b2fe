package sessions

import (
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// maxProcessedRequestIDs bounds the rolling dedup window (spec §4.1,
// "coarse dedup"). Centralized here per the Open Question decision in
// DESIGN.md instead of scattered literals.
const maxProcessedRequestIDs = 256

// defaultWorkflowTTL bounds how long an activeWorkflows entry survives
// without a callback before it is swept (DESIGN.md Open Question #2).
const defaultWorkflowTTL = 30 * time.Minute

// WithBatches runs fn with exclusive access to the session's batch state
// and metadata; mutations made inside fn stay in memory and nothing is
// written to storage here. This is the
// single critical section every Batch Queue / Batch Processor operation
// goes through, enforcing that at most one goroutine observes or mutates
// activeBatch/pendingBatch for a given session at a time (the "single
// writer per session" requirement in spec §5).
func (m *Manager) WithBatches(key string, fn func(s *Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		s = &Session{
			Key:      key,
			Messages: []providers.Message{},
			Created:  time.Now(),
			Updated:  time.Now(),
		}
		m.sessions[key] = s
	}
	fn(s)
	s.Updated = time.Now()
}

// dedupWindowSize is the effective rolling-window cap, overridable via
// Manager.SetDedupWindowSize (spec §6.6 Config.DedupWindowSize).
var dedupWindowSize = maxProcessedRequestIDs

// SetDedupWindowSize overrides the rolling dedup window cap (spec §6.6).
func (m *Manager) SetDedupWindowSize(n int) {
	if n > 0 {
		dedupWindowSize = n
	}
}

// markProcessed appends requestID to the rolling dedup window, evicting
// the oldest entry once the window is full.
func (s *Session) markProcessed(requestID string) {
	if requestID == "" {
		return
	}
	s.ProcessedRequestIDs = append(s.ProcessedRequestIDs, requestID)
	if over := len(s.ProcessedRequestIDs) - dedupWindowSize; over > 0 {
		s.ProcessedRequestIDs = s.ProcessedRequestIDs[over:]
	}
}

// HasProcessed reports whether requestID is in the rolling dedup window.
func (s *Session) HasProcessed(requestID string) bool {
	if requestID == "" {
		return false
	}
	for _, id := range s.ProcessedRequestIDs {
		if id == requestID {
			return true
		}
	}
	return false
}

// MarkProcessed is the exported form of markProcessed, used once a batch
// finishes (success or notified-failure) to record its request IDs.
func (s *Session) MarkProcessed(requestIDs ...string) {
	for _, id := range requestIDs {
		s.markProcessed(id)
	}
}

// SweepWorkflows evicts activeWorkflows entries older than defaultWorkflowTTL.
// Called opportunistically from receiveMessage (DESIGN.md Open Question #2).
func (s *Session) SweepWorkflows(now time.Time) {
	if len(s.ActiveWorkflows) == 0 {
		return
	}
	for id, ref := range s.ActiveWorkflows {
		if now.Sub(ref.StartedAt) > defaultWorkflowTTL {
			delete(s.ActiveWorkflows, id)
		}
	}
}

// RegisterWorkflow records a delegated, fire-and-forget execution awaiting
// a worker callback.
func (s *Session) RegisterWorkflow(executionID, workerType string, now time.Time) {
	if s.ActiveWorkflows == nil {
		s.ActiveWorkflows = make(map[string]WorkflowRef)
	}
	s.ActiveWorkflows[executionID] = WorkflowRef{
		ExecutionID: executionID,
		WorkerType:  workerType,
		StartedAt:   now,
	}
}

// CompleteWorkflow removes a workflow ref once its callback has arrived.
func (s *Session) CompleteWorkflow(executionID string) {
	delete(s.ActiveWorkflows, executionID)
}
