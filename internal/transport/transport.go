// Package transport implements the Transport Adapter (spec §6.3): a
// capability interface generalizing internal/channels.Channel /
// StreamingChannel / ReactionChannel into the single surface the Batch
// Processor and Progress Reporter need (send, edit, react, notify admin),
// plus the ParsedInput tagged union each platform decodes its webhook
// payload into (per REDESIGN FLAGS: per-platform metadata instead of one
// flat struct).
package transport

import (
	"context"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/processor"
)

// PlatformConfig carries platform credentials and routing hints injected
// from env at dispatch time — never persisted on the session (spec §4.3's
// ResponseTarget requirement).
type PlatformConfig struct {
	Platform    string
	Credentials map[string]string
}

// Metadata is a tagged union of per-platform parsed payload shapes. Every
// transport decodes its own webhook/update into the matching field and
// leaves the rest nil, instead of forcing one flat struct with optional
// fields for every platform (REDESIGN FLAGS).
type Metadata struct {
	Telegram *TelegramMetadata
	Discord  *DiscordMetadata
	Slack    *SlackMetadata
	WhatsApp *WhatsAppMetadata
}

type TelegramMetadata struct {
	UpdateID  int
	MessageID int
	ChatType  string
}

type DiscordMetadata struct {
	GuildID   string
	ChannelID string
	MessageID string
}

type SlackMetadata struct {
	TeamID  string
	Channel string
	ThreadTS string
}

type WhatsAppMetadata struct {
	JID       string
	IsGroup   bool
	MessageID string
}

// ParsedInput is a platform's decoded inbound payload, normalized enough
// for the Batch Queue to act on (spec §4.1's receiveMessage input).
type ParsedInput struct {
	RequestID string
	Text      string
	UserID    string
	ChatID    string
	Username  string
	IsAdmin   bool
	EventID   string
	Channel   string
	Metadata  Metadata
}

// Transport is the capability set the Batch Processor and Progress
// Reporter depend on, generalizing internal/channels.Channel (Send),
// StreamingChannel (OnChunkEvent-as-edit), and ReactionChannel
// (OnReactionEvent-as-react) into one interface per session's transport
// target.
type Transport interface {
	// Send delivers a new message and returns a ref that can later be
	// edited.
	Send(ctx context.Context, sessionKey, text string) (processor.MessageRef, error)
	// Edit updates a previously sent message in place.
	Edit(ctx context.Context, ref processor.MessageRef, text string) error
	// React sets a status reaction on the originating user message, when
	// the underlying platform supports it. No-op otherwise.
	React(ctx context.Context, ref processor.MessageRef, status string) error
	// NotifyAdmin delivers an out-of-band alert (spec §4.2 step 12).
	NotifyAdmin(ctx context.Context, text string)
}

// ChannelAdapter adapts a concrete internal/channels.Channel (plus its
// optional StreamingChannel/ReactionChannel capabilities) into Transport.
// One adapter instance is bound to a single outbound destination
// (channel + chatID), matching how MessageRef is constructed.
type ChannelAdapter struct {
	ChannelName string
	ChatID      string
	SendFn      func(ctx context.Context, msg bus.OutboundMessage) error
	EditFn      func(ctx context.Context, chatID, messageID, text string) error
	ReactFn     func(ctx context.Context, chatID, messageID, status string) error
	NotifyFn    func(ctx context.Context, text string)
}

func (a *ChannelAdapter) Send(ctx context.Context, sessionKey, text string) (processor.MessageRef, error) {
	if err := a.SendFn(ctx, bus.OutboundMessage{Channel: a.ChannelName, ChatID: a.ChatID, Content: text}); err != nil {
		return processor.MessageRef{}, err
	}
	return processor.MessageRef{Channel: a.ChannelName, ChatID: a.ChatID}, nil
}

func (a *ChannelAdapter) Edit(ctx context.Context, ref processor.MessageRef, text string) error {
	if a.EditFn == nil {
		return errNotSupported
	}
	messageID := ""
	if ref.Extra != nil {
		messageID = ref.Extra["messageId"]
	}
	return a.EditFn(ctx, ref.ChatID, messageID, text)
}

func (a *ChannelAdapter) React(ctx context.Context, ref processor.MessageRef, status string) error {
	if a.ReactFn == nil {
		return nil // optional capability; silently ignored (spec: "No-op otherwise")
	}
	messageID := ""
	if ref.Extra != nil {
		messageID = ref.Extra["messageId"]
	}
	return a.ReactFn(ctx, ref.ChatID, messageID, status)
}

func (a *ChannelAdapter) NotifyAdmin(ctx context.Context, text string) {
	if a.NotifyFn != nil {
		a.NotifyFn(ctx, text)
	}
}

var errNotSupported = transportErr("transport: edit not supported by this channel")

type transportErr string

func (e transportErr) Error() string { return string(e) }
