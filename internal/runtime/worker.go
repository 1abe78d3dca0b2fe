package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/chatloop"
	"github.com/nextlevelbuilder/goclaw/internal/progress"
	"github.com/nextlevelbuilder/goclaw/internal/router"
	"github.com/nextlevelbuilder/goclaw/internal/router/orchestrator"
)

// chatLoopWorker exposes a chatloop.Loop as a router.WorkerClient: the
// simple/code/research/general Targets all resolve to one of these,
// parameterized only by which provider-backed Loop they wrap (spec §4.3's
// "distinct worker pools, one per Target").
type chatLoopWorker struct {
	loop     *chatloop.Loop
	bus      *bus.MessageBus
	canceler *sessionCanceler
	log      *slog.Logger
}

func newChatLoopWorker(loop *chatloop.Loop, b *bus.MessageBus, canceler *sessionCanceler, log *slog.Logger) *chatLoopWorker {
	return &chatLoopWorker{loop: loop, bus: b, canceler: canceler, log: log}
}

func (w *chatLoopWorker) Execute(ctx context.Context, req router.WorkRequest) (router.WorkResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	cleanup := w.canceler.track(req.SessionKey, cancel)
	defer cleanup()

	content, tl, handoff, err := w.loop.Run(runCtx, req.SessionKey, req.Query)
	if err != nil {
		return router.WorkResult{Success: false, ErrorKind: "worker_error"}, err
	}
	return router.WorkResult{Success: true, Content: content, Timeline: tl, Handoff: router.Target(handoff)}, nil
}

// ScheduleExecution runs the same work on a goroutine and delivers the
// final reply itself via resp, matching the fire-and-forget contract
// WorkerClient documents for Targets the Router always dispatches async.
func (w *chatLoopWorker) ScheduleExecution(ctx context.Context, req router.WorkRequest, resp router.ResponseTarget) (string, error) {
	executionID := req.TraceID
	go func() {
		runCtx, cancel := context.WithCancel(context.Background())
		cleanup := w.canceler.track(req.SessionKey, cancel)
		defer cleanup()

		content, _, _, err := w.loop.Run(runCtx, req.SessionKey, req.Query)
		if err != nil {
			w.log.Warn("chat loop worker failed", "sessionKey", req.SessionKey, "err", err)
			content = fmt.Sprintf("Sorry, something went wrong: %s", err)
		}
		deliverResponseTarget(w.bus, resp, progress.Plain(content))
	}()
	return executionID, nil
}

// orchestratorWorker exposes the orchestrator package as the
// TargetOrchestrator WorkerClient. It builds a single-step plan that
// hands the whole query to the general-purpose Loop — the Router's
// classifier decides a query needs orchestration, but decomposing it
// into an explicit multi-step DAG is left to the LLM itself via normal
// tool calls (sessions_spawn et al.), not a separate planner here.
type orchestratorWorker struct {
	loop     *chatloop.Loop
	bus      *bus.MessageBus
	canceler *sessionCanceler
	log      *slog.Logger
}

func newOrchestratorWorker(loop *chatloop.Loop, b *bus.MessageBus, canceler *sessionCanceler, log *slog.Logger) *orchestratorWorker {
	return &orchestratorWorker{loop: loop, bus: b, canceler: canceler, log: log}
}

// runPlan runs the single-step plan and hands back the query's own
// timeline alongside the content — the orchestrator itself has no step
// notion of its own, so the Loop's timeline for its one step stands in
// for the whole plan's.
func (w *orchestratorWorker) runPlan(ctx context.Context, req router.WorkRequest) (string, *progress.Timeline, string, error) {
	plan := &orchestrator.Plan{
		Steps: []orchestrator.Step{
			{ID: "main", WorkerType: "general", Task: req.Query, Description: "handle the full request"},
		},
		MaxParallel:     1,
		ContinueOnError: false,
	}
	var tl *progress.Timeline
	var handoff string
	runner := func(ctx context.Context, s orchestrator.Step) (string, error) {
		content, stepTl, stepHandoff, err := w.loop.Run(ctx, req.SessionKey, s.Task)
		tl = stepTl
		handoff = stepHandoff
		return content, err
	}
	content, _, err := orchestrator.Execute(ctx, plan, runner, nil)
	return content, tl, handoff, err
}

func (w *orchestratorWorker) Execute(ctx context.Context, req router.WorkRequest) (router.WorkResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	cleanup := w.canceler.track(req.SessionKey, cancel)
	defer cleanup()

	content, tl, handoff, err := w.runPlan(runCtx, req)
	if err != nil {
		return router.WorkResult{Success: false, ErrorKind: "orchestrator_error"}, err
	}
	return router.WorkResult{Success: true, Content: content, Timeline: tl, Handoff: router.Target(handoff)}, nil
}

func (w *orchestratorWorker) ScheduleExecution(ctx context.Context, req router.WorkRequest, resp router.ResponseTarget) (string, error) {
	executionID := req.TraceID
	go func() {
		runCtx, cancel := context.WithCancel(context.Background())
		cleanup := w.canceler.track(req.SessionKey, cancel)
		defer cleanup()

		content, _, _, err := w.runPlan(runCtx, req)
		if err != nil {
			w.log.Warn("orchestrator worker failed", "sessionKey", req.SessionKey, "err", err)
			content = fmt.Sprintf("Sorry, something went wrong: %s", err)
		}
		deliverResponseTarget(w.bus, resp, progress.Plain(content))
	}()
	return executionID, nil
}
