package sessions

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of a Batch (spec §3/§4.2).
type BatchStatus string

const (
	BatchIdle       BatchStatus = "idle"
	BatchCollecting BatchStatus = "collecting"
	BatchProcessing BatchStatus = "processing"
	BatchDelegated  BatchStatus = "delegated"
	BatchRetrying   BatchStatus = "retrying"
	BatchFailed     BatchStatus = "failed"
	BatchDone       BatchStatus = "done"
)

// Stage is a coarse-grained timeline marker recorded in Batch.StageHistory.
type Stage string

const (
	StageQueued    Stage = "queued"
	StageProcessing Stage = "processing"
	StageRetrying  Stage = "retrying"
	StageFailed    Stage = "failed"
	StageNotified  Stage = "notified"
	StageDone      Stage = "done"
)

// MessageRef is an opaque transport-specific handle to the progress message.
// Concrete transports populate this with whatever they need to later edit
// the same message (e.g. chat ID + message ID pair).
type MessageRef struct {
	Channel string            `json:"channel"`
	ChatID  string            `json:"chatId"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// RetryError records one failed attempt at processing a batch.
type RetryError struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// PendingMessage is one inbound message coalesced into a Batch (spec §3).
type PendingMessage struct {
	Text            string            `json:"text"`
	Timestamp       time.Time         `json:"timestamp"`
	RequestID       string            `json:"requestId"`
	UserID          string            `json:"userId"`
	ChatID          string            `json:"chatId"`
	Username        string            `json:"username,omitempty"`
	IsAdmin         bool              `json:"isAdmin,omitempty"`
	EventID         string            `json:"eventId,omitempty"`
	OriginalContext map[string]string `json:"originalContext,omitempty"`
}

// Batch is a coalesced group of user messages processed as one LLM turn
// (spec §3/§4.2).
type Batch struct {
	BatchID         string           `json:"batchId"`
	Status          BatchStatus      `json:"status"`
	PendingMessages []PendingMessage `json:"pendingMessages"`
	BatchStartedAt  time.Time        `json:"batchStartedAt"`
	LastMessageAt   time.Time        `json:"lastMessageAt"`
	LastHeartbeat   time.Time        `json:"lastHeartbeat"`
	MessageRef      *MessageRef      `json:"messageRef,omitempty"`
	RetryCount      int              `json:"retryCount"`
	RetryErrors     []RetryError     `json:"retryErrors,omitempty"`
	CurrentStage    Stage            `json:"currentStage"`
	StageHistory    []Stage          `json:"stageHistory,omitempty"`
}

// NewBatch creates an empty, idle batch awaiting its first message.
func NewBatch() *Batch {
	return &Batch{
		Status:       BatchIdle,
		CurrentStage: StageQueued,
	}
}

// RequestIDs returns the set of request IDs carried by this batch (for
// dedup checks). Nil-safe.
func (b *Batch) RequestIDs() map[string]bool {
	if b == nil {
		return map[string]bool{}
	}
	ids := make(map[string]bool, len(b.PendingMessages))
	for _, m := range b.PendingMessages {
		ids[m.RequestID] = true
	}
	return ids
}

// CombinedText joins every pending message's text with newlines (spec §4.2
// step 5 — "Combine").
func (b *Batch) CombinedText() string {
	if b == nil || len(b.PendingMessages) == 0 {
		return ""
	}
	out := b.PendingMessages[0].Text
	for _, m := range b.PendingMessages[1:] {
		out += "\n" + m.Text
	}
	return out
}

// pushStage appends a new stage marker to the history and sets it current.
func (b *Batch) pushStage(s Stage) {
	b.CurrentStage = s
	b.StageHistory = append(b.StageHistory, s)
}

// WorkflowRef tracks a delegated execution awaiting an async worker callback.
type WorkflowRef struct {
	ExecutionID string    `json:"executionId"`
	WorkerType  string    `json:"workerType"`
	StartedAt   time.Time `json:"startedAt"`
}

// FreshUUID returns a fresh, time-ordered UUID used for batchId/executionId/traceId.
func FreshUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
