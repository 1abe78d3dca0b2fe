package file

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// FileAgentStore is an in-memory AgentStore for standalone mode: agent
// identity is just the configured agent key hashed into a stable UUID
// (deterministic, so the same key always resolves the same ID across
// restarts), and group file-writer lists live only in process memory.
type FileAgentStore struct {
	mu      sync.Mutex
	writers map[string][]store.GroupFileWriter // "agentID:groupID" -> writers
}

func NewFileAgentStore() *FileAgentStore {
	return &FileAgentStore{writers: make(map[string][]store.GroupFileWriter)}
}

func (s *FileAgentStore) GetByKey(ctx context.Context, key string) (*store.AgentData, error) {
	if key == "" {
		return nil, fmt.Errorf("empty agent key")
	}
	return &store.AgentData{ID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)), Key: key}, nil
}

func (s *FileAgentStore) IsGroupFileWriter(ctx context.Context, agentID uuid.UUID, groupID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writers := s.writers[writerKey(agentID, groupID)]
	if len(writers) == 0 {
		// An empty writer list allows every user; no writer is recorded here.
		return true, nil
	}
	for _, w := range writers {
		if w.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *FileAgentStore) AddGroupFileWriter(ctx context.Context, agentID uuid.UUID, groupID, userID, firstName, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := writerKey(agentID, groupID)
	for _, w := range s.writers[key] {
		if w.UserID == userID {
			return nil
		}
	}
	var usernamePtr, displayNamePtr *string
	if username != "" {
		usernamePtr = &username
	}
	if firstName != "" {
		displayNamePtr = &firstName
	}
	s.writers[key] = append(s.writers[key], store.GroupFileWriter{
		UserID:      userID,
		Username:    usernamePtr,
		DisplayName: displayNamePtr,
	})
	return nil
}

func (s *FileAgentStore) RemoveGroupFileWriter(ctx context.Context, agentID uuid.UUID, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := writerKey(agentID, groupID)
	writers := s.writers[key]
	for i, w := range writers {
		if w.UserID == userID {
			s.writers[key] = append(writers[:i], writers[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *FileAgentStore) ListGroupFileWriters(ctx context.Context, agentID uuid.UUID, groupID string) ([]store.GroupFileWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.GroupFileWriter(nil), s.writers[writerKey(agentID, groupID)]...), nil
}

func writerKey(agentID uuid.UUID, groupID string) string {
	return agentID.String() + ":" + groupID
}
