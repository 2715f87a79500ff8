package hooks

import (
	"context"

	"go.uber.org/zap"

	"github.com/tomaasz/update-ultra/pkg/domain"
)

// Dispatcher invokes caller-supplied hooks at defined points around step and
// run execution. Hooks run synchronously in registration order; global hooks
// fire before step-specific ones. Hook errors are logged and swallowed,
// never aborting the run.
type Dispatcher struct {
	logger *zap.Logger

	runPre  []domain.Hook
	runPost []domain.Hook
	pre     []domain.Hook
	post    []domain.Hook
}

// New creates an empty dispatcher.
func New(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// OnRunStart registers a hook fired once before the first wave.
func (d *Dispatcher) OnRunStart(h domain.Hook) {
	d.runPre = append(d.runPre, h)
}

// OnRunEnd registers a hook fired once after the last wave or upon abort.
func (d *Dispatcher) OnRunEnd(h domain.Hook) {
	d.runPost = append(d.runPost, h)
}

// OnStepStart registers a global pre-hook fired before every step attempt.
func (d *Dispatcher) OnStepStart(h domain.Hook) {
	d.pre = append(d.pre, h)
}

// OnStepEnd registers a global post-hook fired with every step's result.
func (d *Dispatcher) OnStepEnd(h domain.Hook) {
	d.post = append(d.post, h)
}

// FireRunStart fires the run-level pre-hooks.
func (d *Dispatcher) FireRunStart(ctx context.Context, runID string) {
	d.invoke(ctx, d.runPre, domain.HookEvent{RunID: runID})
}

// FireRunEnd fires the run-level post-hooks.
func (d *Dispatcher) FireRunEnd(ctx context.Context, runID string) {
	d.invoke(ctx, d.runPost, domain.HookEvent{RunID: runID})
}

// FireStepPre fires global pre-hooks, then the step's own pre-hooks.
func (d *Dispatcher) FireStepPre(ctx context.Context, runID string, step domain.Step) {
	ev := domain.HookEvent{RunID: runID, StepID: step.ID}
	d.invoke(ctx, d.pre, ev)
	d.invoke(ctx, step.PreHooks, ev)
}

// FireStepPost fires global post-hooks, then the step's own post-hooks,
// passing the recorded result so hooks can react to success or failure.
func (d *Dispatcher) FireStepPost(ctx context.Context, runID string, step domain.Step, result *domain.StepResult) {
	ev := domain.HookEvent{RunID: runID, StepID: step.ID, Result: result}
	d.invoke(ctx, d.post, ev)
	d.invoke(ctx, step.PostHooks, ev)
}

func (d *Dispatcher) invoke(ctx context.Context, hs []domain.Hook, ev domain.HookEvent) {
	for _, h := range hs {
		if err := h(ctx, ev); err != nil {
			d.logger.Warn("hook error",
				zap.String("run_id", ev.RunID),
				zap.String("step_id", ev.StepID),
				zap.Error(err))
		}
	}
}
