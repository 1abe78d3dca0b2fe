package store

import (
	"context"

	"github.com/google/uuid"
)

// AgentData is the minimal agent record a channel needs to resolve its
// own identity and manage group-scoped file-writer permissions.
type AgentData struct {
	ID  uuid.UUID
	Key string
}

// GroupFileWriter is one user permitted to write files on behalf of a
// group conversation (Telegram's /addwriter / /writers commands).
type GroupFileWriter struct {
	UserID      string
	Username    *string
	DisplayName *string
}

// AgentStore resolves an agent's identity from its configured key and
// tracks which users may act as file writers for a given group.
type AgentStore interface {
	GetByKey(ctx context.Context, key string) (*AgentData, error)
	IsGroupFileWriter(ctx context.Context, agentID uuid.UUID, groupID, userID string) (bool, error)
	AddGroupFileWriter(ctx context.Context, agentID uuid.UUID, groupID, userID, firstName, username string) error
	RemoveGroupFileWriter(ctx context.Context, agentID uuid.UUID, groupID, userID string) error
	ListGroupFileWriters(ctx context.Context, agentID uuid.UUID, groupID string) ([]GroupFileWriter, error)
}

// PairingStore links an external channel identity (Telegram user ID,
// Discord snowflake, ...) to a pairing code a user redeems elsewhere to
// prove ownership. IsPaired gates behavior that should only run once a
// sender has completed that flow.
type PairingStore interface {
	RequestPairing(userID, channel, chatID, scope string) (code string, err error)
	IsPaired(userID, channel string) bool
}
