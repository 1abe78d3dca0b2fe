package sessions

import (
	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// AppendTurn appends messages to a session's history and trims it down to
// maxHistory, oldest-first (spec invariant I5: len(messages) <= maxHistory
// after any write). maxHistory <= 0 means unbounded.
func (m *Manager) AppendTurn(key string, maxHistory int, msgs ...providers.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		s = &Session{Key: key}
		m.sessions[key] = s
	}
	s.Messages = append(s.Messages, msgs...)
	if maxHistory > 0 && len(s.Messages) > maxHistory {
		s.Messages = s.Messages[len(s.Messages)-maxHistory:]
	}
}

// ClearHistory empties a session's message history, preserving identity
// fields (userID/chatID) and batch state, matching the /clear command
// (spec §5, "Cancellation").
func (m *Manager) ClearHistory(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		s.Messages = []providers.Message{}
		s.Summary = ""
		s.HandoffTarget = ""
	}
}
