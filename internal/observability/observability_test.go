package observability

import (
	"context"
	"strings"
	"testing"
)

func TestNilSinkMethodsAreNoOps(t *testing.T) {
	var s *Sink
	// Must not panic: a nil Sink is the zero-config default when Init was
	// never called (e.g. in tests or when OTEL_* env vars are unset).
	s.UpsertEvent(context.Background(), "sess-1", "batch_promoted", map[string]string{"k": "v"})
	s.AppendMessage(context.Background(), "sess-1", "user", "hello")
}

func TestTruncateLeavesShortStringsAlone(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateCutsLongStrings(t *testing.T) {
	long := strings.Repeat("a", 50)
	got := truncate(long, 10)
	if !strings.HasPrefix(got, strings.Repeat("a", 10)) || !strings.HasSuffix(got, "…") {
		t.Fatalf("expected the first 10 chars followed by an ellipsis, got %q", got)
	}
}
