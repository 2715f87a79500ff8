package domain

import (
	"context"
	"time"
)

// Status represents the outcome of a step or of a whole run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// WorkUnit is the opaque unit of work a step drives, typically one external
// package-manager invocation. Implementations must observe ctx for
// cooperative cancellation; the engine cannot forcibly terminate work that
// ignores it.
type WorkUnit interface {
	Execute(ctx context.Context) ([]byte, error)
}

// WorkFunc adapts a plain function to the WorkUnit interface.
type WorkFunc func(ctx context.Context) ([]byte, error)

// Execute implements WorkUnit.
func (f WorkFunc) Execute(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// HookEvent carries the context a hook is invoked with. StepID is empty for
// run-level hooks; Result is nil for pre-hooks.
type HookEvent struct {
	RunID  string
	StepID string
	Result *StepResult
}

// Hook is a caller-supplied callback invoked around step and run execution.
// Returned errors are logged and swallowed; a hook can never abort a run.
type Hook func(ctx context.Context, ev HookEvent) error

// Step is one named unit of orchestrated work together with its execution
// policy. Dependency identifiers must reference other steps in the same plan.
type Step struct {
	ID        string
	DependsOn []string
	Work      WorkUnit

	// Timeout bounds a single attempt. Zero means no per-step timeout.
	Timeout time.Duration

	// Retries is the number of additional attempts after a failure.
	// Timeouts are only retried when RetryOnTimeout is set.
	Retries        int
	RetryOnTimeout bool

	// CacheKey enables result caching when non-empty.
	CacheKey string
	CacheTTL time.Duration

	PreHooks  []Hook
	PostHooks []Hook

	// Skip marks the step to be recorded as skipped instead of executed.
	Skip       bool
	SkipReason string
}

// RunOptions are the scheduler-level settings for one run.
type RunOptions struct {
	// Parallel launches all steps of a wave concurrently. When false, steps
	// within a wave run one at a time (wave ordering is unaffected).
	Parallel bool

	// StopOnFailure aborts scheduling of subsequent waves once any step in
	// the current wave fails; the wave itself always runs to completion.
	StopOnFailure bool

	// NoCache forces recomputation of every cached step, overwriting entries.
	NoCache bool

	// DryRun replaces each step's work with a no-op that reports success.
	DryRun bool

	// SkipSteps lists step identifiers to record as skipped.
	SkipSteps []string
}

// Plan is the caller-supplied input for one run: named steps, declared
// dependency edges and run options.
type Plan struct {
	Steps   []Step
	Options RunOptions
}
