package tools

import (
	"context"
	"fmt"
)

// HandoffToolName must match chatloop.HandoffToolName: the Chat Loop
// special-cases this exact tool name to pin the session's router target
// after the current reply, instead of treating it as an ordinary tool
// result (spec's supplemental "handoff / teammate routing").
const HandoffToolName = "handoff_to_agent"

// HandoffTool lets the model redirect the rest of a conversation to a
// named peer worker target (e.g. "code", "research", or a custom
// delegate registered alongside the five built-in Targets).
type HandoffTool struct{}

func NewHandoffTool() *HandoffTool { return &HandoffTool{} }

func (t *HandoffTool) Name() string { return HandoffToolName }

func (t *HandoffTool) Description() string {
	return "Hand off the rest of this conversation to a different worker target. " +
		"Every later message in this session routes straight there until the user clears history."
}

func (t *HandoffTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"target": map[string]interface{}{
				"type":        "string",
				"description": "Worker target to hand off to, e.g. \"code\", \"research\", or a registered delegate name",
			},
			"reason": map[string]interface{}{
				"type":        "string",
				"description": "Short explanation of why this conversation is being handed off",
			},
		},
		"required": []string{"target"},
	}
}

// Execute only produces the confirmation text the LLM sees; the Chat Loop
// reads the same "target" argument straight off the tool call to update
// routing, since a tool's Result has no side channel back to the caller.
func (t *HandoffTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	target, _ := args["target"].(string)
	if target == "" {
		return ErrorResult("target is required")
	}
	reason, _ := args["reason"].(string)
	if reason == "" {
		return SilentResult(fmt.Sprintf("handing off to %q", target))
	}
	return SilentResult(fmt.Sprintf("handing off to %q: %s", target, reason))
}
