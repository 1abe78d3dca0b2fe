package progress

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRotatorCurrentMessageDoesNotAdvance(t *testing.T) {
	r := NewRotator([]string{"a", "b", "c"}, func() {})
	first := r.CurrentMessage()
	second := r.CurrentMessage()
	if first != second || first != "a" {
		t.Fatalf("expected CurrentMessage to stay at the first entry without ticking, got %q then %q", first, second)
	}
}

func TestRotatorHeartbeatRunsBeforeEachTick(t *testing.T) {
	var mu sync.Mutex
	var heartbeats int
	var ticks []string

	r := NewRotator([]string{"one", "two"}, func() {
		mu.Lock()
		heartbeats++
		mu.Unlock()
	}).WithInterval(5 * time.Millisecond)

	done := make(chan struct{})
	r.Start(func(msg string) {
		mu.Lock()
		ticks = append(ticks, msg)
		n := len(ticks)
		mu.Unlock()
		if n >= 2 {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	<-done
	r.Stop()
	r.WaitForPending()

	mu.Lock()
	defer mu.Unlock()
	if heartbeats < len(ticks) {
		t.Fatalf("expected at least one heartbeat per tick, got %d heartbeats for %d ticks", heartbeats, len(ticks))
	}
}

func TestRotatorStopPreventsFurtherTicks(t *testing.T) {
	var mu sync.Mutex
	var ticks int
	r := NewRotator([]string{"a", "b"}, func() {}).WithInterval(5 * time.Millisecond)
	r.Start(func(string) {
		mu.Lock()
		ticks++
		mu.Unlock()
	})
	r.Stop()
	r.WaitForPending()
	mu.Lock()
	after := ticks
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if ticks != after {
		t.Fatalf("expected no ticks after Stop, went from %d to %d", after, ticks)
	}
}

func TestTimelineRenderAdminAndSummary(t *testing.T) {
	tl := &Timeline{}
	tl.Append(Step{Kind: StepToolStart, Name: "web_fetch"})
	tl.Append(Step{Kind: StepToolComplete, Name: "web_fetch", DurationMs: 120})

	admin := tl.RenderAdmin()
	if !strings.Contains(admin, "tool_start web_fetch") || !strings.Contains(admin, "tool_complete web_fetch (120ms)") {
		t.Fatalf("expected admin render to include both steps, got %q", admin)
	}

	summary := tl.RenderSummary()
	if summary != "(used 1 tool call(s))" {
		t.Fatalf("expected summary to count tool_start entries, got %q", summary)
	}
}

func TestTimelineEmptyRendersNothing(t *testing.T) {
	tl := &Timeline{}
	if got := tl.RenderAdmin(); got != "" {
		t.Fatalf("expected empty admin render for no steps, got %q", got)
	}
	if got := tl.RenderSummary(); got != "" {
		t.Fatalf("expected empty summary for no tool calls, got %q", got)
	}
}

func TestRenderFinalAppendsFooterOnlyForAdmin(t *testing.T) {
	tl := &Timeline{}
	tl.Append(Step{Kind: StepToolStart, Name: "x"})
	footer := &DebugFooter{Timeline: tl, DurationMs: 42, Model: "test-model"}

	nonAdmin := RenderFinal("**hello**", Plain, false, footer)
	if strings.Contains(nonAdmin, "duration:") {
		t.Fatalf("did not expect debug footer for non-admin sender, got %q", nonAdmin)
	}
	if nonAdmin != "hello" {
		t.Fatalf("expected markdown emphasis stripped, got %q", nonAdmin)
	}

	admin := RenderFinal("**hello**", Plain, true, footer)
	if !strings.Contains(admin, "duration: 42ms") || !strings.Contains(admin, "model: test-model") {
		t.Fatalf("expected debug footer for admin sender, got %q", admin)
	}
}

func TestPlainStripsMarkdownEmphasis(t *testing.T) {
	got := Plain("**bold** __also__ `code`")
	want := "bold also code"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
