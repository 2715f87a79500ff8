package scheduler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tomaasz/update-ultra/internal/application/executor"
	"github.com/tomaasz/update-ultra/internal/application/hooks"
	"github.com/tomaasz/update-ultra/internal/application/planner"
	"github.com/tomaasz/update-ultra/pkg/domain"
)

// Options holds scheduler configuration for one run.
type Options struct {
	// Parallel launches all steps of a wave concurrently; otherwise steps
	// run one at a time in wave order.
	Parallel bool

	// StopOnFailure marks all subsequent waves Skipped once any step in the
	// current wave fails. The failing wave itself runs to completion.
	StopOnFailure bool
}

// Scheduler drives waves through the step executor using a wave-barrier
// model: parallel execution within a wave, a full join at each wave boundary.
// It is the only writer of the RunSummary it produces.
type Scheduler struct {
	executor *executor.Executor
	hooks    *hooks.Dispatcher
	logger   *zap.Logger
	opts     Options
}

// New creates a new scheduler.
func New(exec *executor.Executor, dispatcher *hooks.Dispatcher, logger *zap.Logger, opts Options) *Scheduler {
	return &Scheduler{
		executor: exec,
		hooks:    dispatcher,
		logger:   logger,
		opts:     opts,
	}
}

// Execute runs all waves in order and returns the finalized run summary.
// Cancellation is checked before each wave starts: not-yet-started steps are
// recorded Skipped with reason "canceled", completed waves keep their
// recorded outcomes.
func (s *Scheduler) Execute(ctx context.Context, runID string, waves []planner.Wave) *domain.RunSummary {
	agg := newAggregator(runID)
	s.hooks.FireRunStart(ctx, runID)

	stopped := false
	for _, wave := range waves {
		if err := ctx.Err(); err != nil {
			agg.appendWave(wave.Index, skipAll(wave.Steps, domain.SkipReasonCanceled))
			continue
		}
		if stopped {
			agg.appendWave(wave.Index, skipAll(wave.Steps, domain.SkipReasonStopOnFailure))
			continue
		}

		s.logger.Debug("wave starting",
			zap.String("run_id", runID),
			zap.Int("wave", wave.Index),
			zap.Int("steps", len(wave.Steps)))

		results := s.runWave(ctx, runID, wave)
		agg.appendWave(wave.Index, results)

		if s.opts.StopOnFailure && anyFailed(results) {
			s.logger.Warn("stopping on first failure",
				zap.String("run_id", runID),
				zap.Int("wave", wave.Index))
			stopped = true
		}
	}

	summary := agg.finalize()
	s.hooks.FireRunEnd(ctx, runID)
	return summary
}

// runWave executes every step of the wave and joins before returning.
// Results are collected in completion order.
func (s *Scheduler) runWave(ctx context.Context, runID string, wave planner.Wave) []domain.StepResult {
	if !s.opts.Parallel || len(wave.Steps) == 1 {
		results := make([]domain.StepResult, 0, len(wave.Steps))
		for _, step := range wave.Steps {
			if ctx.Err() != nil {
				step.Skip = true
				step.SkipReason = domain.SkipReasonCanceled
			}
			results = append(results, s.executor.Run(ctx, runID, step))
		}
		return results
	}

	resCh := make(chan domain.StepResult, len(wave.Steps))
	var wg sync.WaitGroup
	for _, step := range wave.Steps {
		wg.Add(1)
		go func(step domain.Step) {
			defer wg.Done()
			resCh <- s.executor.Run(ctx, runID, step)
		}(step)
	}
	wg.Wait()
	close(resCh)

	results := make([]domain.StepResult, 0, len(wave.Steps))
	for res := range resCh {
		results = append(results, res)
	}
	return results
}

func skipAll(steps []domain.Step, reason string) []domain.StepResult {
	results := make([]domain.StepResult, 0, len(steps))
	for _, step := range steps {
		results = append(results, domain.StepResult{
			StepID: step.ID,
			Status: domain.StatusSkipped,
			Meta:   domain.ResultMeta{SkipReason: reason},
		})
	}
	return results
}

func anyFailed(results []domain.StepResult) bool {
	for _, r := range results {
		if r.Status == domain.StatusFailed {
			return true
		}
	}
	return false
}
