// Package chatloop implements the Chat Loop (spec §4.5): given combined
// text and session history, build the LLM input, enumerate tools, and
// iterate tool calls up to a bound. Generalizes internal/agent/loop.go's
// runLoop into a provider-agnostic contract driven by the Batch Processor
// instead of a single fixed agent.
package chatloop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/goclaw/internal/progress"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

// Defaults for the closed configuration set (spec §6.6).
const (
	DefaultMaxToolIterations = 5
	DefaultMaxTools          = 128
	DefaultMaxHistory        = 200
)

// HandoffToolName must match tools.HandoffToolName. The Chat Loop
// special-cases a call to this exact tool: besides running it like any
// other tool (so the model gets its confirmation text), it captures the
// "target" argument and returns it to the caller as the run's requested
// handoff target.
const HandoffToolName = "handoff_to_agent"

// HistoryStrategy controls how prior turns are presented to the LLM.
type HistoryStrategy string

const (
	// HistoryNative passes history as separate messages (multi-turn).
	HistoryNative HistoryStrategy = "native"
	// HistoryInline embeds history as XML-tagged text inside the single
	// user message, for backend gateways that don't support multi-turn
	// well (spec §4.5 step 2).
	HistoryInline HistoryStrategy = "inline"
)

// Tool is one callable tool definition plus its executor, merged from
// built-in and remote (MCP) sources.
type Tool struct {
	Definition providers.ToolDefinition
	Execute    func(ctx context.Context, args map[string]interface{}) (string, error)
}

// ToolSource supplies a set of Tools. Built-in and remote registries both
// implement this so the loop can merge them uniformly.
type ToolSource interface {
	Tools() []Tool
}

// Config carries the closed configuration set this package consumes.
type Config struct {
	MaxToolIterations int
	MaxTools          int
	MaxHistory        int
	HistoryStrategy   HistoryStrategy
	SystemPrompt      string
	Model             string
}

func (c Config) withDefaults() Config {
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = DefaultMaxToolIterations
	}
	if c.MaxTools <= 0 {
		c.MaxTools = DefaultMaxTools
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = DefaultMaxHistory
	}
	if c.HistoryStrategy == "" {
		c.HistoryStrategy = HistoryNative
	}
	return c
}

// Loop runs the Chat Loop against a session.
type Loop struct {
	sessions *sessions.Manager
	provider providers.Provider
	builtins ToolSource
	remote   ToolSource
	cfg      Config
	log      *slog.Logger
}

// New constructs a Loop. remote may be nil when no MCP/remote tool source
// is configured.
func New(mgr *sessions.Manager, provider providers.Provider, builtins, remote ToolSource, cfg Config, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		sessions: mgr,
		provider: provider,
		builtins: builtins,
		remote:   remote,
		cfg:      cfg.withDefaults(),
		log:      log,
	}
}

// mergedTools enumerates built-in ∪ remote, deduplicated by name — first
// definition wins with a logged warning on collision (spec §4.5 edge
// cases), capped by MaxTools.
func (l *Loop) mergedTools() map[string]Tool {
	out := make(map[string]Tool)
	add := func(src ToolSource) {
		if src == nil {
			return
		}
		for _, t := range src.Tools() {
			if len(out) >= l.cfg.MaxTools {
				return
			}
			name := t.Definition.Function.Name
			if _, dup := out[name]; dup {
				l.log.Warn("tool name collision, keeping first definition", "tool", name)
				continue
			}
			out[name] = t
		}
	}
	add(l.builtins)
	add(l.remote)
	return out
}

func step(tl *progress.Timeline, s progress.Step) {
	if tl != nil {
		tl.Append(s)
	}
}

// Run executes the full Chat Loop for one combined batch text and returns
// the assistant's final reply, the timeline of steps taken along the way
// (spec §4.5/§4.4), and a handoff target if the model called the handoff
// tool during this run (empty otherwise). Each call gets its own Timeline
// so concurrent runs against the same Loop never interleave another
// session's steps.
func (l *Loop) Run(ctx context.Context, sessionKey, combinedText string) (string, *progress.Timeline, string, error) {
	tl := &progress.Timeline{}
	var handoffTarget string

	// Step 1: trim history to maxHistory.
	history := l.sessions.GetHistory(sessionKey)
	if len(history) > l.cfg.MaxHistory {
		history = history[len(history)-l.cfg.MaxHistory:]
	}

	// Step 2: build LLM input.
	messages := l.buildMessages(history, combinedText)

	// Step 3: enumerate tools.
	tools := l.mergedTools()
	toolDefs := make([]providers.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		toolDefs = append(toolDefs, t.Definition)
	}

	step(tl, progress.Step{Kind: progress.StepPreparing})

	iteration := 0
	var finalContent string

	for iteration < l.cfg.MaxToolIterations {
		iteration++
		step(tl, progress.Step{Kind: progress.StepLLMIteration, Iteration: iteration, Max: l.cfg.MaxToolIterations})

		// Step 4: call the LLM.
		resp, err := l.provider.Chat(ctx, providers.ChatRequest{
			Messages: messages,
			Tools:    toolDefs,
			Model:    l.cfg.Model,
		})
		if err != nil {
			return "", tl, "", fmt.Errorf("chatloop: llm call failed (iteration %d): %w", iteration, err)
		}

		if len(resp.ToolCalls) == 0 {
			finalContent = resp.Content
			break
		}

		assistantMsg := providers.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}
		messages = append(messages, assistantMsg)

		// Step 5: tool-call iteration.
		for _, tc := range resp.ToolCalls {
			step(tl, progress.Step{Kind: progress.StepToolStart, Name: tc.Name})

			tool, ok := tools[tc.Name]
			var result string
			var toolErr error
			if !ok {
				toolErr = fmt.Errorf("unknown tool %q", tc.Name)
			} else {
				result, toolErr = tool.Execute(ctx, tc.Arguments)
			}

			if toolErr != nil {
				step(tl, progress.Step{Kind: progress.StepToolError, Name: tc.Name, Err: toolErr.Error()})
				messages = append(messages, providers.Message{Role: "tool", Content: "error: " + toolErr.Error(), ToolCallID: tc.ID})
				continue
			}

			step(tl, progress.Step{Kind: progress.StepToolComplete, Name: tc.Name, Result: result})
			messages = append(messages, providers.Message{Role: "tool", Content: result, ToolCallID: tc.ID})

			if tc.Name == HandoffToolName {
				if target, ok := tc.Arguments["target"].(string); ok && target != "" {
					handoffTarget = target
				}
			}
		}
		// loop continues: re-call the LLM with the extended context.
	}

	if finalContent == "" && iteration >= l.cfg.MaxToolIterations {
		l.log.Warn("chatloop: hit max tool iterations without a final answer", "sessionKey", sessionKey, "iterations", iteration)
	}

	// Step 6: append to session history, trimmed.
	l.sessions.AppendTurn(sessionKey, l.cfg.MaxHistory,
		providers.Message{Role: "user", Content: combinedText},
		providers.Message{Role: "assistant", Content: finalContent},
	)

	return finalContent, tl, handoffTarget, nil
}

func (l *Loop) buildMessages(history []providers.Message, combinedText string) []providers.Message {
	var messages []providers.Message
	if l.cfg.SystemPrompt != "" {
		messages = append(messages, providers.Message{Role: "system", Content: l.cfg.SystemPrompt})
	}

	if l.cfg.HistoryStrategy == HistoryInline {
		var embedded string
		for _, m := range history {
			embedded += fmt.Sprintf("<message role=%q>%s</message>\n", m.Role, m.Content)
		}
		userContent := combinedText
		if embedded != "" {
			userContent = fmt.Sprintf("<history>\n%s</history>\n%s", embedded, combinedText)
		}
		messages = append(messages, providers.Message{Role: "user", Content: userContent})
		return messages
	}

	messages = append(messages, history...)
	messages = append(messages, providers.Message{Role: "user", Content: combinedText})
	return messages
}
