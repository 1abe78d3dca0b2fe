package progress

import (
	"fmt"
	"strings"
	"time"
)

// StepKind enumerates the typed steps the processor emits as execution
// proceeds (spec §4.4).
type StepKind string

const (
	StepThinking      StepKind = "thinking"
	StepToolStart     StepKind = "tool_start"
	StepToolComplete  StepKind = "tool_complete"
	StepToolError     StepKind = "tool_error"
	StepLLMIteration  StepKind = "llm_iteration"
	StepRouting       StepKind = "routing"
	StepPreparing     StepKind = "preparing"
	StepParallelTools StepKind = "parallel_tools"
	StepSubagent      StepKind = "subagent"
)

// Step is one entry in a batch's execution timeline.
type Step struct {
	Kind       StepKind
	At         time.Time
	Name       string        // tool/agent name, when applicable
	Result     string        // tool_complete result, truncated by the caller
	Err        string        // tool_error / subagent error text
	DurationMs int64         // tool_complete / overall duration
	Iteration  int           // llm_iteration
	Max        int           // llm_iteration
	Names      []string      // parallel_tools
	Status     string        // subagent status
}

// Timeline accumulates Steps for a single batch execution.
type Timeline struct {
	steps []Step
}

func (t *Timeline) Append(s Step) { t.steps = append(t.steps, s) }

func (t *Timeline) Steps() []Step { return t.steps }

// RenderAdmin produces a compact, collapsible rendering of the full
// timeline, suitable for the admin debug footer.
func (t *Timeline) RenderAdmin() string {
	if len(t.steps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<details><summary>steps</summary>\n")
	for _, s := range t.steps {
		b.WriteString(renderStepLine(s))
		b.WriteString("\n")
	}
	b.WriteString("</details>")
	return b.String()
}

// RenderSummary produces a one-line summary for non-admin users: a count
// of tool calls, nothing more.
func (t *Timeline) RenderSummary() string {
	toolCalls := 0
	for _, s := range t.steps {
		if s.Kind == StepToolStart {
			toolCalls++
		}
	}
	if toolCalls == 0 {
		return ""
	}
	return fmt.Sprintf("(used %d tool call(s))", toolCalls)
}

func renderStepLine(s Step) string {
	switch s.Kind {
	case StepToolStart:
		return fmt.Sprintf("- tool_start %s", s.Name)
	case StepToolComplete:
		return fmt.Sprintf("- tool_complete %s (%dms)", s.Name, s.DurationMs)
	case StepToolError:
		return fmt.Sprintf("- tool_error %s: %s", s.Name, s.Err)
	case StepLLMIteration:
		return fmt.Sprintf("- llm_iteration %d/%d", s.Iteration, s.Max)
	case StepRouting:
		return fmt.Sprintf("- routing -> %s", s.Name)
	case StepPreparing:
		return "- preparing"
	case StepParallelTools:
		return fmt.Sprintf("- parallel_tools [%s]", strings.Join(s.Names, ", "))
	case StepSubagent:
		return fmt.Sprintf("- subagent %s: %s", s.Name, s.Status)
	default:
		return "- thinking"
	}
}

// DebugFooter holds the extra fields appended for admin users (spec §4.4,
// "final render").
type DebugFooter struct {
	Timeline    *Timeline
	InputTokens int64
	OutputTokens int64
	DurationMs  int64
	Model       string
	WorkflowURL string
}

func (f DebugFooter) render() string {
	var b strings.Builder
	if f.Timeline != nil {
		if rendered := f.Timeline.RenderAdmin(); rendered != "" {
			b.WriteString(rendered)
			b.WriteString("\n")
		}
	}
	b.WriteString(fmt.Sprintf("tokens: %d in / %d out | duration: %dms", f.InputTokens, f.OutputTokens, f.DurationMs))
	if f.Model != "" {
		b.WriteString(" | model: " + f.Model)
	}
	if f.WorkflowURL != "" {
		b.WriteString(" | " + f.WorkflowURL)
	}
	return b.String()
}

// sanitizer strips or translates markup a transport cannot safely render.
// Transports register their own by platform name; Plain is the default.
type Sanitizer func(text string) string

// Plain strips common Markdown emphasis markers, leaving prose untouched.
func Plain(text string) string {
	replacer := strings.NewReplacer("**", "", "__", "", "`", "")
	return replacer.Replace(text)
}

// RenderFinal sanitizes the assistant's text for the target transport and,
// for admin senders, appends the debug footer (spec §4.4).
func RenderFinal(text string, sanitize Sanitizer, isAdmin bool, footer *DebugFooter) string {
	if sanitize == nil {
		sanitize = Plain
	}
	out := sanitize(text)
	if isAdmin && footer != nil {
		out = out + "\n\n---\n" + footer.render()
	}
	return out
}
