// Package progress implements the Progress Reporter (spec §4.4): a
// thinking-message rotator that doubles as the batch's liveness beacon,
// plus a step timeline and final-render sanitizer. Grounded on the
// StreamingChannel/ReactionChannel contracts in internal/channels/channel.go,
// generalized into a transport-agnostic ticker.
package progress

import (
	"sync"
	"time"
)

// DefaultMessages is the cyclic sequence of short, semantically-neutral
// strings shown while the Chat Loop or Router is working.
var DefaultMessages = []string{
	"Thinking…",
	"Still working on it…",
	"Just a moment…",
	"Putting this together…",
}

// DefaultRotationInterval is the default tick period (spec §6.6).
const DefaultRotationInterval = 5 * time.Second

// TickFn is called on every rotation tick with the next message to show.
type TickFn func(message string)

// HeartbeatFn records that the owning batch is still alive. It MUST be
// called before TickFn on every tick, and MUST run even if the caller
// later decides the edit itself failed (spec §4.4, "must run regardless
// of whether the edit succeeds").
type HeartbeatFn func()

// Rotator drives the thinking-message cycle and the batch heartbeat.
type Rotator struct {
	mu       sync.Mutex
	messages []string
	idx      int
	interval time.Duration
	heartbeat HeartbeatFn

	timer   *time.Timer
	stopCh  chan struct{}
	pending sync.WaitGroup
	started bool
}

// NewRotator creates a Rotator over messages (DefaultMessages if empty),
// calling heartbeat on every tick before anything else.
func NewRotator(messages []string, heartbeat HeartbeatFn) *Rotator {
	if len(messages) == 0 {
		messages = DefaultMessages
	}
	return &Rotator{
		messages:  messages,
		interval:  DefaultRotationInterval,
		heartbeat: heartbeat,
		stopCh:    make(chan struct{}),
	}
}

// WithInterval overrides the rotation interval before Start is called.
func (r *Rotator) WithInterval(d time.Duration) *Rotator {
	if d > 0 {
		r.interval = d
	}
	return r
}

// CurrentMessage returns the message to render for the initial progress
// send, without advancing the cycle.
func (r *Rotator) CurrentMessage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[r.idx%len(r.messages)]
}

// Start begins periodic ticking. onTick receives the next message in the
// cycle; the heartbeat callback supplied to NewRotator runs first on
// every tick, unconditionally.
func (r *Rotator) Start(onTick TickFn) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	var loop func()
	loop = func() {
		select {
		case <-r.stopCh:
			return
		default:
		}

		r.mu.Lock()
		r.idx++
		msg := r.messages[r.idx%len(r.messages)]
		interval := r.interval
		r.mu.Unlock()

		r.pending.Add(1)
		r.timer = time.AfterFunc(interval, func() {
			defer r.pending.Done()
			if r.heartbeat != nil {
				r.heartbeat()
			}
			select {
			case <-r.stopCh:
				return
			default:
			}
			if onTick != nil {
				onTick(msg)
			}
			loop()
		})
	}
	loop()
}

// Stop cancels future ticks. In-flight ticks are not interrupted; call
// WaitForPending after Stop to await them.
func (r *Rotator) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	if r.timer != nil && r.timer.Stop() {
		// The stopped tick never runs, so release its pending count here.
		r.pending.Done()
	}
}

// WaitForPending blocks until any in-flight tick completes, so a final
// render is never clobbered by a stale rotator edit racing behind it.
func (r *Rotator) WaitForPending() {
	r.pending.Wait()
}
