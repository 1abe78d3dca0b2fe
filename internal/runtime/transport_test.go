package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/processor"
	"github.com/nextlevelbuilder/goclaw/internal/router"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDestination_DirectSession(t *testing.T) {
	channel, chatID, ok := destination("agent:default:telegram:direct:123")
	if !ok {
		t.Fatal("destination() ok = false, want true")
	}
	if channel != "telegram" || chatID != "123" {
		t.Errorf("destination() = (%q, %q), want (%q, %q)", channel, chatID, "telegram", "123")
	}
}

func TestDestination_GroupSessionWithTopic(t *testing.T) {
	channel, chatID, ok := destination("agent:default:telegram:group:-100:topic:9")
	if !ok {
		t.Fatal("destination() ok = false, want true")
	}
	if channel != "telegram" || chatID != "-100" {
		t.Errorf("destination() = (%q, %q), want (%q, %q)", channel, chatID, "telegram", "-100")
	}
}

func TestDestination_SubagentSessionHasNoDestination(t *testing.T) {
	_, _, ok := destination("agent:default:subagent:my-task")
	if ok {
		t.Error("destination() ok = true for a subagent session key, want false")
	}
}

func TestDestination_MalformedKey(t *testing.T) {
	_, _, ok := destination("not-a-session-key")
	if ok {
		t.Error("destination() ok = true for a malformed key, want false")
	}
}

func TestBusTransport_Send_PublishesOutbound(t *testing.T) {
	b := bus.New()
	tr := newBusTransport(b, discardLogger())

	ref, err := tr.Send(context.Background(), "agent:default:telegram:direct:42", "hi")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if ref.Channel != "telegram" || ref.ChatID != "42" {
		t.Errorf("Send() ref = %+v, want channel=telegram chatID=42", ref)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("SubscribeOutbound() ok = false, want true")
	}
	if msg.Channel != "telegram" || msg.ChatID != "42" || msg.Content != "hi" {
		t.Errorf("SubscribeOutbound() = %+v, want channel=telegram chatID=42 content=hi", msg)
	}
}

func TestBusTransport_Send_UndeliverableKeyIsNoop(t *testing.T) {
	b := bus.New()
	tr := newBusTransport(b, discardLogger())

	if _, err := tr.Send(context.Background(), "agent:default:subagent:x", "hi"); err != nil {
		t.Fatalf("Send() error = %v, want nil (silently skipped)", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, ok := b.SubscribeOutbound(ctx); ok {
		t.Error("SubscribeOutbound() delivered a message for an undeliverable session key")
	}
}

func TestBusTransport_Edit_Unsupported(t *testing.T) {
	tr := newBusTransport(bus.New(), discardLogger())
	if err := tr.Edit(context.Background(), processor.MessageRef{}, "updated text"); err == nil {
		t.Error("Edit() error = nil, want errEditUnsupported so callers fall back to Send")
	}
}

func TestDeliverResponseTarget(t *testing.T) {
	b := bus.New()
	deliverResponseTarget(b, router.ResponseTarget{Platform: "discord", ChatID: "9"}, "final reply")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("SubscribeOutbound() ok = false, want true")
	}
	if msg.Channel != "discord" || msg.ChatID != "9" || msg.Content != "final reply" {
		t.Errorf("SubscribeOutbound() = %+v, want channel=discord chatID=9 content=\"final reply\"", msg)
	}
}
