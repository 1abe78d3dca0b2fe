package runtime

import (
	"context"
	"strings"
	"sync"
)

// sessionCanceler implements command.Canceler by tracking one
// context.CancelFunc per in-flight session, registered for the duration
// of a router/chat-loop call. /stop cancels one session's context; /stopall
// cancels every session whose key is scoped to the caller's agentID.
type sessionCanceler struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func newSessionCanceler() *sessionCanceler {
	return &sessionCanceler{active: make(map[string]context.CancelFunc)}
}

// track registers the cancel func for sessionKey's in-flight run and
// returns a cleanup to call once that run finishes.
func (c *sessionCanceler) track(sessionKey string, cancel context.CancelFunc) (cleanup func()) {
	c.mu.Lock()
	c.active[sessionKey] = cancel
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.active, sessionKey)
		c.mu.Unlock()
	}
}

func (c *sessionCanceler) CancelSession(sessionKey string) {
	c.mu.Lock()
	cancel, ok := c.active[sessionKey]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *sessionCanceler) CancelAllFor(agentID string) int {
	prefix := "agent:" + agentID + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, cancel := range c.active {
		if strings.HasPrefix(key, prefix) {
			cancel()
			n++
		}
	}
	return n
}
