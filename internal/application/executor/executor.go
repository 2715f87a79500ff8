package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tomaasz/update-ultra/internal/application/hooks"
	"github.com/tomaasz/update-ultra/pkg/cache"
	"github.com/tomaasz/update-ultra/pkg/domain"
)

// Executor runs one step to completion, applying hooks, cache lookups,
// timeout and retry policy.
//
// Timeout handling is cooperative: the work receives a context that is
// canceled when the per-step timeout expires. Work that does not observe the
// context keeps running in the background until it returns on its own; the
// executor records the timeout and stops waiting.
type Executor struct {
	cache        *cache.Cache
	hooks        *hooks.Dispatcher
	logger       *zap.Logger
	forceRefresh bool
}

// Config holds executor configuration.
type Config struct {
	Cache  *cache.Cache
	Hooks  *hooks.Dispatcher
	Logger *zap.Logger

	// ForceRefresh bypasses cache validity checking for every cached step
	// (an uncached run): values are always recomputed and overwritten.
	ForceRefresh bool
}

// New creates a new step executor.
func New(cfg Config) *Executor {
	return &Executor{
		cache:        cfg.Cache,
		hooks:        cfg.Hooks,
		logger:       cfg.Logger,
		forceRefresh: cfg.ForceRefresh,
	}
}

type attemptOutcome struct {
	output    []byte
	fromCache bool
	err       error
}

// Run executes one step and returns its immutable result. A failure is
// captured into the result, never returned; sibling steps are unaffected.
func (e *Executor) Run(ctx context.Context, runID string, step domain.Step) domain.StepResult {
	start := time.Now()

	if step.Skip {
		reason := step.SkipReason
		if reason == "" {
			reason = domain.SkipReasonConfigured
		}
		result := domain.StepResult{
			StepID:    step.ID,
			Status:    domain.StatusSkipped,
			StartedAt: start,
			Meta:      domain.ResultMeta{SkipReason: reason},
		}
		e.hooks.FireStepPost(ctx, runID, step, &result)
		return result
	}

	maxAttempts := step.Retries + 1
	attempts := 0
	var outcome attemptOutcome

	for attempts < maxAttempts {
		attempts++
		e.hooks.FireStepPre(ctx, runID, step)

		outcome = e.attempt(ctx, step)
		if outcome.err == nil {
			break
		}
		if !e.retryable(step, outcome.err) || attempts == maxAttempts || ctx.Err() != nil {
			break
		}

		e.logger.Warn("step attempt failed, retrying",
			zap.String("run_id", runID),
			zap.String("step_id", step.ID),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(outcome.err))
	}

	result := domain.StepResult{
		StepID:     step.ID,
		StartedAt:  start,
		DurationMs: time.Since(start).Milliseconds(),
		Output:     string(outcome.output),
		Meta: domain.ResultMeta{
			Attempts:  attempts,
			FromCache: outcome.fromCache,
		},
	}
	if outcome.err != nil {
		result.Status = domain.StatusFailed
		result.Error = outcome.err.Error()
		result.ErrorKind = e.classify(step, outcome.err)
	} else {
		result.Status = domain.StatusSuccess
	}

	e.logger.Debug("step finished",
		zap.String("run_id", runID),
		zap.String("step_id", step.ID),
		zap.String("status", string(result.Status)),
		zap.Int("attempts", attempts),
		zap.Bool("from_cache", result.Meta.FromCache))

	e.hooks.FireStepPost(ctx, runID, step, &result)
	return result
}

// attempt performs a single invocation of the step's work, bounded by the
// per-step timeout. On timeout the executor detaches: the work's goroutine
// drains into a buffered channel and its eventual result is discarded.
func (e *Executor) attempt(ctx context.Context, step domain.Step) attemptOutcome {
	runCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	done := make(chan attemptOutcome, 1)
	go func() {
		done <- e.invoke(runCtx, step)
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) {
			o.err = fmt.Errorf("%w after %s", domain.ErrTimeout, step.Timeout)
		}
		return o
	case <-runCtx.Done():
		// Prefer a result that completed at the same instant.
		select {
		case o := <-done:
			if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) {
				o.err = fmt.Errorf("%w after %s", domain.ErrTimeout, step.Timeout)
			}
			return o
		default:
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return attemptOutcome{err: fmt.Errorf("%w after %s", domain.ErrTimeout, step.Timeout)}
		}
		return attemptOutcome{err: fmt.Errorf("run canceled: %w", runCtx.Err())}
	}
}

func (e *Executor) invoke(ctx context.Context, step domain.Step) attemptOutcome {
	if step.CacheKey == "" {
		output, err := step.Work.Execute(ctx)
		return attemptOutcome{output: output, err: err}
	}

	if e.forceRefresh {
		output, err := e.cache.ForceRefresh(ctx, step.CacheKey, step.CacheTTL, step.Work.Execute)
		return attemptOutcome{output: output, err: err}
	}

	output, fromCache, err := e.cache.GetOrCompute(ctx, step.CacheKey, step.CacheTTL, step.Work.Execute)
	return attemptOutcome{output: output, fromCache: fromCache, err: err}
}

func (e *Executor) retryable(step domain.Step, err error) bool {
	if errors.Is(err, domain.ErrTimeout) {
		return step.RetryOnTimeout
	}
	return true
}

func (e *Executor) classify(step domain.Step, err error) string {
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return domain.ErrorKindTimeout
	case step.CacheKey != "":
		return domain.ErrorKindCacheCompute
	default:
		return domain.ErrorKindStepFailure
	}
}
