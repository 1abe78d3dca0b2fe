// Package runtime wires the Batch Queue, Batch Processor, Router, Chat
// Loop, and Transport/Command layers together into the single consumer
// loop the gateway process runs: a channel's inbound message reaches the
// message bus, the command registry intercepts "/"-prefixed text, and
// everything else flows through the batch queue into a batch-processor
// pass that dispatches via the router (falling back straight to the
// chat loop when no router targets are configured).
package runtime

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/chatloop"
	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/command"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/cron"
	"github.com/nextlevelbuilder/goclaw/internal/processor"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/queue"
	"github.com/nextlevelbuilder/goclaw/internal/router"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/tools"
)

// defaultAgentID names the single agent this runtime serves when the
// config carries no per-agent bindings (spec §6.1's single-agent mode).
const defaultAgentID = "default"

// Runtime owns every long-lived component of the consumer loop and the
// goroutine that drains the message bus's inbound queue.
type Runtime struct {
	cfg       *config.Config
	bus       *bus.MessageBus
	sessions  *sessions.Manager
	queue     *queue.Queue
	processor *processor.Processor
	commands  *command.Registry
	cancel    *sessionCanceler
	cron      *cron.Scheduler
	log       *slog.Logger

	cancelLoop context.CancelFunc
	done       chan struct{}
	cronCancel context.CancelFunc
}

// queueReceiver adapts queue.Queue to cron.Receiver: a cron tick is fed
// into the Batch Queue exactly like an inbound channel message, just
// without a channel/user identity.
type queueReceiver struct {
	q *queue.Queue
}

func (r queueReceiver) ReceiveMessage(sessionKey, text string) error {
	r.q.ReceiveMessage(sessionKey, queue.Input{Text: text, Channel: "cron"})
	return nil
}

// Deps bundles the already-constructed shared components the runtime
// needs but does not own: the provider registry (populated by
// registerProviders), the tool registry (populated with every built-in
// tool), and the message bus every channel publishes onto.
type Deps struct {
	Config    *config.Config
	Bus       *bus.MessageBus
	Providers *providers.Registry
	Tools     *tools.Registry
	Log       *slog.Logger

	// Sessions lets the caller share one sessions.Manager with tools that
	// were wired against it before the runtime existed (sessions_list,
	// sessions_send, ...). A nil value gets a fresh Manager of its own.
	Sessions *sessions.Manager
}

// New constructs a Runtime: session manager, clock/scheduler, batch
// queue, router (one worker per Target, all backed by the same Chat
// Loop machinery with the default provider), and batch processor.
func New(deps Deps) (*Runtime, error) {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	cfg := deps.Config

	mgr := deps.Sessions
	if mgr == nil {
		mgr = sessions.NewManager(cfg.Sessions.Storage)
	}
	scheduler := clock.NewInProcessScheduler()
	sysClock := clock.SystemClock{}

	provider, err := deps.Providers.Default()
	if err != nil {
		return nil, err
	}

	builtins := tools.NewChatLoopSource(deps.Tools)

	loopCfg := chatloop.Config{
		MaxToolIterations: cfg.ChatLoop.MaxToolIterations,
		MaxTools:          cfg.ChatLoop.MaxTools,
		MaxHistory:        cfg.Sessions.MaxHistory,
		HistoryStrategy:   chatloop.HistoryStrategy(cfg.ChatLoop.HistoryStrategy),
		Model:             cfg.Agents.Defaults.Model,
	}
	loop := chatloop.New(mgr, provider, builtins, nil, loopCfg, log)

	transport := newBusTransport(deps.Bus, log)
	canceler := newSessionCanceler()

	workers := router.Registry{
		router.TargetSimple:       newChatLoopWorker(loop, deps.Bus, canceler, log),
		router.TargetCode:         newChatLoopWorker(loop, deps.Bus, canceler, log),
		router.TargetResearch:     newChatLoopWorker(loop, deps.Bus, canceler, log),
		router.TargetGeneral:      newChatLoopWorker(loop, deps.Bus, canceler, log),
		router.TargetOrchestrator: newOrchestratorWorker(loop, deps.Bus, canceler, log),
	}
	classifier := defaultClassifier()
	rt := router.New(classifier, workers, mgr, cfg.Sessions.MaxHistory, nil)

	procCfg := processor.Config{
		MaxRetries: cfg.Batch.MaxRetries,
		BaseDelay:  time.Duration(cfg.Batch.BaseDelayMs) * time.Millisecond,
		Backoff:    cfg.Batch.Backoff,
		CapDelay:   time.Duration(cfg.Batch.CapDelayMs) * time.Millisecond,
		Model:      cfg.Agents.Defaults.Model,
	}
	onClear := func(ctx context.Context, sessionKey string) string {
		mgr.ClearHistory(sessionKey)
		return "Conversation history cleared."
	}
	proc := processor.New(mgr, scheduler, sysClock, procCfg, transport, rt, loop, onClear, log)

	q := queue.New(mgr, scheduler, sysClock, queue.Config{
		HeartbeatTimeout: time.Duration(cfg.Sessions.HeartbeatTimeoutMs) * time.Millisecond,
		HardCeiling:      time.Duration(cfg.Sessions.HardCeilingMs) * time.Millisecond,
	}, func(sessionKey string) {
		proc.OnBatchAlarm(context.Background(), sessionKey)
	}, log)

	commands := command.New(mgr, scheduler, canceler)

	cronSched := cron.NewScheduler(queueReceiver{q: q}, cfg.Cron.ToRetryConfig(), log)
	for _, job := range cfg.Cron.Jobs {
		if err := cronSched.Add(cron.Trigger{Name: job.Name, Expr: job.Expr, SessionKey: job.SessionKey, Text: job.Text}); err != nil {
			log.Error("invalid cron job, skipping", "job", job.Name, "err", err)
		}
	}

	return &Runtime{
		cfg:       cfg,
		bus:       deps.Bus,
		sessions:  mgr,
		queue:     q,
		processor: proc,
		commands:  commands,
		cancel:    canceler,
		cron:      cronSched,
		log:       log,
	}, nil
}

// Start launches the goroutine that drains the message bus's inbound
// queue and feeds each message through command-check -> batch queue.
func (r *Runtime) Start(ctx context.Context) {
	cronCtx, cronCancel := context.WithCancel(ctx)
	r.cronCancel = cronCancel
	go r.cron.Run(cronCtx)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelLoop = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		for {
			msg, ok := r.bus.ConsumeInbound(ctx)
			if !ok {
				return
			}
			r.handleInbound(ctx, msg)
		}
	}()
}

// Stop cancels the consumer loop and waits for it to exit.
func (r *Runtime) Stop() {
	if r.cronCancel != nil {
		r.cronCancel()
	}
	if r.cancelLoop != nil {
		r.cancelLoop()
	}
	if r.done != nil {
		<-r.done
	}
}

func (r *Runtime) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	agentID := msg.AgentID
	if agentID == "" {
		agentID = defaultAgentID
	}
	kind := sessions.PeerKindFromGroup(msg.PeerKind == "group")
	sessionKey := sessions.BuildScopedSessionKey(
		agentID, msg.Channel, kind, msg.ChatID,
		r.cfg.Sessions.Scope, r.cfg.Sessions.DmScope, r.cfg.Sessions.MainKey,
	)

	isAdmin := isOwner(r.cfg.Gateway.OwnerIDs, msg.SenderID)

	if res := r.commands.Dispatch(ctx, sessionKey, agentID, isAdmin, msg.Content); res.Handled {
		if res.Text != "" {
			r.bus.PublishOutbound(bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: res.Text})
		}
		return
	}

	r.queue.ReceiveMessage(sessionKey, queue.Input{
		RequestID: msg.Metadata["request_id"],
		Text:      rewriteUnknownCommand(msg.Content),
		UserID:    msg.SenderID,
		ChatID:    msg.ChatID,
		IsAdmin:   isAdmin,
		Channel:   msg.Channel,
	})
}

// rewriteUnknownCommand implements spec §6.2: anything starting with "/"
// that the command registry didn't recognize is rewritten as "command:
// args" before it reaches the chat loop, so the LLM sees an unrecognized
// slash command as ordinary instruction text rather than literal syntax.
func rewriteUnknownCommand(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return text
	}
	rest := strings.TrimPrefix(trimmed, "/")
	name, args, _ := strings.Cut(rest, " ")
	if name == "" {
		return text
	}
	if args == "" {
		return name + ":"
	}
	return name + ": " + args
}

func isOwner(ownerIDs []string, senderID string) bool {
	for _, id := range ownerIDs {
		if id == senderID {
			return true
		}
	}
	return false
}

// defaultClassifier implements the deterministic rule set from spec
// §4.3: short/no-tool-keyword queries go to the simple worker, anything
// mentioning code or multi-step work escalates. Everything else falls
// through to general.
func defaultClassifier() *router.Classifier {
	return &router.Classifier{
		Rules: []router.Rule{
			{
				Name:    "code",
				Matches: matchesAny("code", "function", "bug", "refactor", "compile", "stack trace"),
				Result:  router.Classification{Type: "code", Category: "code", Complexity: "moderate", Target: router.TargetCode},
			},
			{
				Name:    "research",
				Matches: matchesAny("research", "compare", "summarize", "find sources", "look up"),
				Result:  router.Classification{Type: "research", Category: "research", Complexity: "moderate", Target: router.TargetResearch},
			},
			{
				Name:    "orchestrate",
				Matches: matchesAny("step by step", "multi-step", "then", "plan out"),
				Result:  router.Classification{Type: "multi-step", Category: "orchestrator", Complexity: "complex", Target: router.TargetOrchestrator},
			},
		},
		Fallback: func(ctx context.Context, query string) (router.Classification, error) {
			return router.Classification{Type: "general", Category: "general", Complexity: "simple", Target: router.TargetGeneral}, nil
		},
	}
}

func matchesAny(keywords ...string) func(string) bool {
	return func(query string) bool {
		lower := strings.ToLower(query)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}
}
