package channels

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
	// memory exhaustion from a sender that rotates identifiers.
	maxTrackedKeys = 4096

	// webhookRPS/webhookBurst bound inbound webhook processing per sender
	// key (chat/user ID): sustained rate plus a small burst allowance for
	// normal back-to-back messages.
	webhookRPS   = 0.5
	webhookBurst = 10
)

// WebhookRateLimiter bounds how often a single sender key (chat or user
// ID) may push an inbound webhook event through, using one
// golang.org/x/time/rate token bucket per key. Safe for concurrent use.
type WebhookRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewWebhookRateLimiter creates a bounded webhook rate limiter using the
// package's default rate/burst.
func NewWebhookRateLimiter() *WebhookRateLimiter {
	return &WebhookRateLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether key is within its rate limit. Evicts an arbitrary
// tracked key before inserting a new one once the tracked-key cap is hit,
// so a sender rotating keys can't grow this unbounded.
func (r *WebhookRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	lim, ok := r.limiters[key]
	if !ok {
		if len(r.limiters) >= maxTrackedKeys {
			for k := range r.limiters {
				delete(r.limiters, k)
				break
			}
		}
		lim = rate.NewLimiter(rate.Limit(webhookRPS), webhookBurst)
		r.limiters[key] = lim
	}
	return lim.Allow()
}
