// Package orchestrator implements the orchestrator Target (spec §4.3): for
// multi-step tasks it builds an execution plan DAG, validates it, and runs
// it in topological waves bounded by maxParallel concurrency per wave.
// Acyclic validation and wave ordering are grounded on
// voocel-mas/coordination/coordination.go's Plan.OrderedSteps; wave
// concurrency is implemented with golang.org/x/sync/errgroup, mirroring
// that package's planner/reflector Option style.
package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Step is one node in an execution plan.
type Step struct {
	ID           string
	WorkerType   string
	Task         string
	Description  string
	Dependencies []string
}

// Plan is a DAG of Steps submitted by the classifier/router for
// multi-step execution.
type Plan struct {
	Steps          []Step
	MaxParallel    int
	ContinueOnError bool
}

// StepStatus is the terminal state of one executed step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepResult is the outcome of running one Step.
type StepResult struct {
	StepID string
	Status StepStatus
	Output string
	Err    error
}

// StepRunner executes a single step's task and returns its output text.
type StepRunner func(ctx context.Context, s Step) (string, error)

// Aggregator combines per-step outputs into one reply. Concatenation is
// the default; an LLM-assisted aggregator can be substituted (spec §4.3,
// "Results are aggregated (LLM-assisted or concatenation) into one reply").
type Aggregator func(ctx context.Context, results []StepResult) (string, error)

// waves checks that the plan's dependencies are acyclic and defined,
// returning the steps in topological waves (each wave independently
// parallelizable). Grounded on coordination.Plan.OrderedSteps, generalized
// from a single ordering into waves of simultaneously-ready steps.
func (p *Plan) waves() ([][]Step, error) {
	byID := make(map[string]Step, len(p.Steps))
	for _, s := range p.Steps {
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate step id %q", s.ID)
		}
		byID[s.ID] = s
	}
	for _, s := range p.Steps {
		for _, dep := range s.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("orchestrator: step %q depends on undefined step %q", s.ID, dep)
			}
		}
	}

	remaining := make(map[string]Step, len(byID))
	for id, s := range byID {
		remaining[id] = s
	}

	var result [][]Step
	for len(remaining) > 0 {
		var ready []Step
		for id, s := range remaining {
			if allSatisfied(s.Dependencies, remaining) {
				ready = append(ready, s)
				_ = id
			}
		}
		if len(ready) == 0 {
			return nil, fmt.Errorf("orchestrator: plan contains a cycle or unsatisfiable dependency")
		}
		for _, s := range ready {
			delete(remaining, s.ID)
		}
		result = append(result, ready)
	}
	return result, nil
}

// allSatisfied reports whether none of deps are still present in remaining
// (i.e. all of a step's dependencies have already been scheduled in an
// earlier wave).
func allSatisfied(deps []string, remaining map[string]Step) bool {
	for _, d := range deps {
		if _, stillPending := remaining[d]; stillPending {
			return false
		}
	}
	return true
}

// Execute runs the plan in topological waves, up to MaxParallel steps
// concurrently within a wave, and aggregates the results.
func Execute(ctx context.Context, plan *Plan, run StepRunner, aggregate Aggregator) (string, []StepResult, error) {
	waves, err := plan.waves()
	if err != nil {
		return "", nil, err
	}

	maxParallel := plan.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}

	var allResults []StepResult
	failed := make(map[string]bool)

	for _, wave := range waves {
		results := make([]StepResult, len(wave))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallel)

		for i, step := range wave {
			i, step := i, step
			g.Go(func() error {
				if !plan.ContinueOnError && dependsOnFailed(step.Dependencies, failed) {
					results[i] = StepResult{StepID: step.ID, Status: StepSkipped}
					return nil
				}
				out, err := run(gctx, step)
				if err != nil {
					results[i] = StepResult{StepID: step.ID, Status: StepFailed, Err: err}
					return nil
				}
				results[i] = StepResult{StepID: step.ID, Status: StepSucceeded, Output: out}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return "", allResults, err
		}

		for _, r := range results {
			if r.Status == StepFailed {
				failed[r.StepID] = true
			}
			allResults = append(allResults, r)
		}
	}

	if aggregate != nil {
		out, err := aggregate(ctx, allResults)
		return out, allResults, err
	}
	return concatenate(allResults), allResults, nil
}

func dependsOnFailed(deps []string, failed map[string]bool) bool {
	for _, d := range deps {
		if failed[d] {
			return true
		}
	}
	return false
}

func concatenate(results []StepResult) string {
	out := ""
	for _, r := range results {
		switch r.Status {
		case StepSucceeded:
			out += r.Output + "\n"
		case StepFailed:
			out += fmt.Sprintf("[%s failed: %v]\n", r.StepID, r.Err)
		case StepSkipped:
			out += fmt.Sprintf("[%s skipped]\n", r.StepID)
		}
	}
	return out
}
