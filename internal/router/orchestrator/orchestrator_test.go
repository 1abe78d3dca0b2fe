package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestExecuteRunsWavesInDependencyOrder(t *testing.T) {
	plan := &Plan{
		MaxParallel: 2,
		Steps: []Step{
			{ID: "a", Task: "first"},
			{ID: "b", Task: "second", Dependencies: []string{"a"}},
			{ID: "c", Task: "third", Dependencies: []string{"a"}},
			{ID: "d", Task: "fourth", Dependencies: []string{"b", "c"}},
		},
	}

	var mu sync.Mutex
	var order []string
	run := func(ctx context.Context, s Step) (string, error) {
		mu.Lock()
		order = append(order, s.ID)
		mu.Unlock()
		return s.ID + "-done", nil
	}

	out, results, err := Execute(context.Background(), plan, run, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 step results, got %d", len(results))
	}

	posA, posD := indexOf(order, "a"), indexOf(order, "d")
	if posA != 0 {
		t.Fatalf("expected step a to run first, order=%v", order)
	}
	if posD != len(order)-1 {
		t.Fatalf("expected step d to run last (depends on b and c), order=%v", order)
	}
	if out == "" {
		t.Fatal("expected non-empty concatenated output")
	}
}

func TestExecuteLimitsConcurrencyPerWave(t *testing.T) {
	plan := &Plan{
		MaxParallel: 2,
		Steps: []Step{
			{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"},
		},
	}

	var inFlight int32
	var maxSeen int32
	start := make(chan struct{})
	run := func(ctx context.Context, s Step) (string, error) {
		<-start
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
				break
			}
		}
		atomic.AddInt32(&inFlight, -1)
		return s.ID, nil
	}

	go func() { close(start) }()
	_, _, err := Execute(context.Background(), plan, run, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if maxSeen > int32(plan.MaxParallel) {
		t.Fatalf("expected at most %d concurrent steps, saw %d", plan.MaxParallel, maxSeen)
	}
}

func TestExecuteSkipsDependentsOfFailedStepWithoutContinueOnError(t *testing.T) {
	plan := &Plan{
		MaxParallel: 1,
		Steps: []Step{
			{ID: "a"},
			{ID: "b", Dependencies: []string{"a"}},
		},
	}
	run := func(ctx context.Context, s Step) (string, error) {
		if s.ID == "a" {
			return "", errors.New("boom")
		}
		return "unreachable", nil
	}

	_, results, err := Execute(context.Background(), plan, run, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byID := map[string]StepResult{}
	for _, r := range results {
		byID[r.StepID] = r
	}
	if byID["a"].Status != StepFailed {
		t.Fatalf("expected step a to fail, got %+v", byID["a"])
	}
	if byID["b"].Status != StepSkipped {
		t.Fatalf("expected step b to be skipped after its dependency failed, got %+v", byID["b"])
	}
}

func TestExecuteRejectsCycles(t *testing.T) {
	plan := &Plan{
		Steps: []Step{
			{ID: "a", Dependencies: []string{"b"}},
			{ID: "b", Dependencies: []string{"a"}},
		},
	}
	_, _, err := Execute(context.Background(), plan, func(ctx context.Context, s Step) (string, error) { return "", nil }, nil)
	if err == nil {
		t.Fatal("expected an error for a cyclic plan")
	}
}

func TestExecuteRejectsUndefinedDependency(t *testing.T) {
	plan := &Plan{Steps: []Step{{ID: "a", Dependencies: []string{"missing"}}}}
	_, _, err := Execute(context.Background(), plan, func(ctx context.Context, s Step) (string, error) { return "", nil }, nil)
	if err == nil {
		t.Fatal("expected an error for a dependency on an undefined step")
	}
}

func TestExecuteUsesCustomAggregator(t *testing.T) {
	plan := &Plan{Steps: []Step{{ID: "a"}}}
	run := func(ctx context.Context, s Step) (string, error) { return "x", nil }
	aggregate := func(ctx context.Context, results []StepResult) (string, error) { return "aggregated", nil }

	out, _, err := Execute(context.Background(), plan, run, aggregate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "aggregated" {
		t.Fatalf("expected custom aggregator output, got %q", out)
	}
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
