package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/chatloop"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/router"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

type stubProvider struct{ reply string }

func (p *stubProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return &providers.ChatResponse{Content: p.reply, FinishReason: "stop"}, nil
}

func (p *stubProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return p.Chat(ctx, req)
}

func (p *stubProvider) DefaultModel() string { return "stub-model" }
func (p *stubProvider) Name() string         { return "stub" }

type emptyToolSource struct{}

func (emptyToolSource) Tools() []chatloop.Tool { return nil }

func newTestLoop(reply string) *chatloop.Loop {
	mgr := sessions.NewManager("") // "" keeps the manager in-memory, no disk I/O
	return chatloop.New(mgr, &stubProvider{reply: reply}, emptyToolSource{}, nil, chatloop.Config{}, discardLogger())
}

func TestChatLoopWorker_Execute(t *testing.T) {
	loop := newTestLoop("hello there")
	w := newChatLoopWorker(loop, bus.New(), newSessionCanceler(), discardLogger())

	res, err := w.Execute(context.Background(), router.WorkRequest{
		SessionKey: "agent:default:telegram:direct:1",
		Query:      "hi",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success || res.Content != "hello there" {
		t.Errorf("Execute() = %+v, want Success=true Content=%q", res, "hello there")
	}
}

func TestChatLoopWorker_ScheduleExecution_DeliversViaResponseTarget(t *testing.T) {
	loop := newTestLoop("async reply")
	b := bus.New()
	w := newChatLoopWorker(loop, b, newSessionCanceler(), discardLogger())

	_, err := w.ScheduleExecution(context.Background(), router.WorkRequest{
		SessionKey: "agent:default:telegram:direct:1",
		Query:      "hi",
		TraceID:    "trace-1",
	}, router.ResponseTarget{Platform: "telegram", ChatID: "1"})
	if err != nil {
		t.Fatalf("ScheduleExecution() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := b.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("SubscribeOutbound() ok = false, want the worker's reply delivered")
	}
	if msg.Content != "async reply" {
		t.Errorf("delivered content = %q, want %q", msg.Content, "async reply")
	}
}

func TestOrchestratorWorker_Execute_RunsSingleStepPlan(t *testing.T) {
	loop := newTestLoop("plan result")
	w := newOrchestratorWorker(loop, bus.New(), newSessionCanceler(), discardLogger())

	res, err := w.Execute(context.Background(), router.WorkRequest{
		SessionKey: "agent:default:telegram:direct:1",
		Query:      "do the multi-step thing",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success || res.Content != "plan result" {
		t.Errorf("Execute() = %+v, want Success=true Content=%q", res, "plan result")
	}
}
