package tools

import (
	"context"

	"github.com/nextlevelbuilder/goclaw/internal/chatloop"
)

// ChatLoopSource adapts a Registry into a chatloop.ToolSource, converting
// the unified Result each tool returns into the (string, error) shape the
// Chat Loop expects. One instance wraps the built-in registry; MCP/remote
// tool sets get their own ToolSource built the same way.
type ChatLoopSource struct {
	registry *Registry
}

func NewChatLoopSource(registry *Registry) *ChatLoopSource {
	return &ChatLoopSource{registry: registry}
}

func (s *ChatLoopSource) Tools() []chatloop.Tool {
	all := s.registry.All()
	out := make([]chatloop.Tool, 0, len(all))
	for _, t := range all {
		t := t
		out = append(out, chatloop.Tool{
			Definition: ToProviderDef(t),
			Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
				res := t.Execute(ctx, args)
				if res.IsError {
					if res.Err != nil {
						return "", res.Err
					}
					return "", toolExecutionError(res.ForLLM)
				}
				return res.ForLLM, nil
			},
		})
	}
	return out
}

// toolExecutionError carries a tool's ForLLM message as the error text,
// since chatloop's iteration loop only prepends "error: " to err.Error().
type toolExecutionError string

func (e toolExecutionError) Error() string { return string(e) }
