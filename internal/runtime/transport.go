package runtime

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/processor"
	"github.com/nextlevelbuilder/goclaw/internal/router"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

// busTransport is the single Transport every session shares: it has no
// per-destination binding, unlike transport.ChannelAdapter, because it
// derives the outbound channel + chatID from the session key itself
// (spec §6.1's canonical `agent:{agentId}:{channel}:{direct|group}:{chatID}`
// shape) rather than being constructed fresh per conversation.
type busTransport struct {
	bus *bus.MessageBus
	log *slog.Logger
}

func newBusTransport(b *bus.MessageBus, log *slog.Logger) *busTransport {
	return &busTransport{bus: b, log: log}
}

// destination parses a session key's channel + chatID, skipping the
// agentID and peer-kind segments. Returns ok=false for subagent/cron
// session keys, which never need a transport.
func destination(sessionKey string) (channel, chatID string, ok bool) {
	_, rest := sessions.ParseSessionKey(sessionKey)
	if rest == "" {
		return "", "", false
	}
	// rest is "{channel}:{direct|group}:{chatID}[:topic:{topicID}]"
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) < 3 {
		return "", "", false
	}
	if parts[1] != "direct" && parts[1] != "group" {
		return "", "", false
	}
	return parts[0], parts[2], true
}

func (t *busTransport) Send(ctx context.Context, sessionKey, text string) (processor.MessageRef, error) {
	channel, chatID, ok := destination(sessionKey)
	if !ok {
		t.log.Warn("transport: session key has no deliverable destination", "sessionKey", sessionKey)
		return processor.MessageRef{}, nil
	}
	t.bus.PublishOutbound(bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: text})
	return processor.MessageRef{Channel: channel, ChatID: chatID}, nil
}

// Edit is unsupported: the bus has no reply from the channel carrying a
// message ID back, so every edit attempt falls back to Send (spec §6.3's
// documented degrade path for EditFn == nil).
func (t *busTransport) Edit(ctx context.Context, ref processor.MessageRef, text string) error {
	return errEditUnsupported
}

func (t *busTransport) NotifyAdmin(ctx context.Context, text string) {
	t.log.Warn("admin notification", "text", text)
}

type transportError string

func (e transportError) Error() string { return string(e) }

const errEditUnsupported = transportError("runtime: edit not supported by bus transport")

// deliverResponseTarget publishes a fire-and-forget worker's final reply
// straight to the platform/chatID the Router captured in ResponseTarget
// (spec §4.3), bypassing the session-key-derived destination since the
// worker may finish long after the triggering request returned.
func deliverResponseTarget(b *bus.MessageBus, resp router.ResponseTarget, content string) {
	b.PublishOutbound(bus.OutboundMessage{Channel: resp.Platform, ChatID: resp.ChatID, Content: content})
}
