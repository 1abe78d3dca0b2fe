package bus

import (
	"context"
	"sync"
)

// MessageBus is the in-process pub/sub backbone wiring channels to the
// runtime: inbound messages flow channel -> bus -> runtime, outbound
// messages flow runtime -> bus -> channel, and broadcast events flow to
// any number of WebSocket-style subscribers (admin event stream).
//
// Buffered channels absorb bursts from multiple concurrently-polling
// channels without blocking their receive loops; a full buffer blocks
// the publisher, which is the correct backpressure behavior here.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu       sync.RWMutex
	handlers map[string]EventHandler
}

const busBufferSize = 256

// New creates a MessageBus ready to publish and consume on both queues.
func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, busBufferSize),
		outbound: make(chan OutboundMessage, busBufferSize),
		handlers: make(map[string]EventHandler),
	}
}

// PublishInbound enqueues a message received from a channel for the
// runtime to consume. Blocks if the inbound queue is full.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound blocks until an inbound message is available or ctx is
// done. ok is false only when ctx ended first.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a reply for delivery back through a channel.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound blocks until an outbound message is available or ctx
// is done, matching the channel manager's dispatch loop shape.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// Subscribe registers a handler for broadcast events under id, replacing
// any handler previously registered under the same id.
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = handler
}

// Unsubscribe removes the handler registered under id, if any.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Broadcast fans an event out to every subscribed handler synchronously.
// Handlers that need to do blocking work must hop into their own
// goroutine (the channel cache-invalidation handler does this).
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers {
		h(event)
	}
}

var _ EventPublisher = (*MessageBus)(nil)
var _ MessageRouter = (*MessageBus)(nil)
