package bus

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestPublishConsumeInbound(t *testing.T) {
	b := New()
	want := InboundMessage{Channel: "telegram", ChatID: "123", Content: "hello"}
	b.PublishInbound(want)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("ConsumeInbound() ok = false, want true")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ConsumeInbound() = %+v, want %+v", got, want)
	}
}

func TestConsumeInbound_CtxCanceled(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := b.ConsumeInbound(ctx)
	if ok {
		t.Error("ConsumeInbound() ok = true after ctx canceled, want false")
	}
}

func TestPublishSubscribeOutbound(t *testing.T) {
	b := New()
	want := OutboundMessage{Channel: "discord", ChatID: "456", Content: "reply"}
	b.PublishOutbound(want)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := b.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("SubscribeOutbound() ok = false, want true")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SubscribeOutbound() = %+v, want %+v", got, want)
	}
}

func TestBroadcast_FansOutToAllSubscribers(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var gotA, gotB Event

	b.Subscribe("a", func(e Event) { mu.Lock(); gotA = e; mu.Unlock() })
	b.Subscribe("b", func(e Event) { mu.Lock(); gotB = e; mu.Unlock() })

	ev := Event{Name: "health", Payload: "ok"}
	b.Broadcast(ev)

	mu.Lock()
	defer mu.Unlock()
	if gotA != ev || gotB != ev {
		t.Errorf("handlers got %+v / %+v, want both %+v", gotA, gotB, ev)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	b := New()
	called := false
	b.Subscribe("x", func(e Event) { called = true })
	b.Unsubscribe("x")

	b.Broadcast(Event{Name: "health"})
	if called {
		t.Error("handler called after Unsubscribe, want no calls")
	}
}

func TestSubscribe_ReplacesExistingHandler(t *testing.T) {
	b := New()
	var calls int
	b.Subscribe("x", func(e Event) { calls++ })
	b.Subscribe("x", func(e Event) { calls += 10 })

	b.Broadcast(Event{Name: "health"})
	if calls != 10 {
		t.Errorf("calls = %d, want 10 (only the replacement handler should fire)", calls)
	}
}
