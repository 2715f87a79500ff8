package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomaasz/update-ultra/internal/application/executor"
	"github.com/tomaasz/update-ultra/internal/application/hooks"
	"github.com/tomaasz/update-ultra/internal/application/planner"
	"github.com/tomaasz/update-ultra/internal/application/scheduler"
	"github.com/tomaasz/update-ultra/pkg/cache"
	"github.com/tomaasz/update-ultra/pkg/domain"
	"github.com/tomaasz/update-ultra/pkg/ports"
)

// RunState is the lifecycle state of a tracked run.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateCancelled RunState = "cancelled"
)

// Manager coordinates run execution: it validates submitted plans into waves,
// tracks active runs, and drives each run through the scheduler in the
// background.
type Manager struct {
	storage  ports.StateStorage
	eventBus ports.EventBus
	metrics  ports.MetricsCollector
	cache    *cache.Cache
	logger   *zap.Logger

	runTimeout         time.Duration
	defaultStepTimeout time.Duration
	defaultCacheTTL    time.Duration

	executions sync.Map // map[string]*execution
	activeRuns atomic.Int64
}

// execution holds state for a single tracked run.
type execution struct {
	runID      string
	state      RunState
	startedAt  time.Time
	cancelFunc context.CancelFunc
	mu         sync.Mutex
}

// Config holds manager configuration.
type Config struct {
	Storage  ports.StateStorage
	EventBus ports.EventBus
	Metrics  ports.MetricsCollector
	Cache    *cache.Cache
	Logger   *zap.Logger

	// RunTimeout bounds a whole run; zero means no bound.
	RunTimeout time.Duration

	// DefaultStepTimeout applies to steps that declare none.
	DefaultStepTimeout time.Duration

	// DefaultCacheTTL applies to cached steps that declare no TTL.
	DefaultCacheTTL time.Duration
}

// NewManager creates a new run manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		storage:            cfg.Storage,
		eventBus:           cfg.EventBus,
		metrics:            cfg.Metrics,
		cache:              cfg.Cache,
		logger:             cfg.Logger,
		runTimeout:         cfg.RunTimeout,
		defaultStepTimeout: cfg.DefaultStepTimeout,
		defaultCacheTTL:    cfg.DefaultCacheTTL,
	}
}

// SubmitPlan validates a plan into waves and starts executing it in the
// background. It returns the generated run ID; validation failures reject the
// plan before anything runs.
func (m *Manager) SubmitPlan(ctx context.Context, plan *domain.Plan) (string, error) {
	steps := m.applyOptions(plan)

	waves, err := planner.BuildWaves(steps)
	if err != nil {
		m.logger.Error("plan validation failed", zap.Error(err))
		m.metrics.RecordRunSubmitted("rejected")
		return "", fmt.Errorf("invalid plan: %w", err)
	}

	runID := uuid.New().String()

	if err := m.eventBus.Publish(ctx, "run.events", ports.Event{
		ID:        uuid.New().String(),
		Type:      ports.EventTypeRunSubmitted,
		RunID:     runID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"steps": len(steps),
			"waves": len(waves),
		},
	}); err != nil {
		m.logger.Error("failed to publish run submitted event",
			zap.String("run_id", runID),
			zap.Error(err))
		return "", fmt.Errorf("failed to publish event: %w", err)
	}

	runCtx := context.Background()
	var cancel context.CancelFunc
	if m.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, m.runTimeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}

	m.executions.Store(runID, &execution{
		runID:      runID,
		state:      RunStateRunning,
		startedAt:  time.Now(),
		cancelFunc: cancel,
	})
	m.metrics.RecordRunSubmitted("accepted")
	m.metrics.SetActiveRuns(int(m.activeRuns.Add(1)))

	m.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.Int("steps", len(steps)),
		zap.Int("waves", len(waves)))

	go m.run(runCtx, runID, plan.Options, waves)

	return runID, nil
}

// applyOptions resolves plan options into per-step settings: configured skips,
// dry-run work substitution, and engine-level defaults.
func (m *Manager) applyOptions(plan *domain.Plan) []domain.Step {
	skip := make(map[string]bool, len(plan.Options.SkipSteps))
	for _, id := range plan.Options.SkipSteps {
		skip[id] = true
	}

	steps := make([]domain.Step, len(plan.Steps))
	copy(steps, plan.Steps)
	for i := range steps {
		if skip[steps[i].ID] {
			steps[i].Skip = true
			if steps[i].SkipReason == "" {
				steps[i].SkipReason = domain.SkipReasonConfigured
			}
		}
		if plan.Options.DryRun {
			steps[i].Work = domain.WorkFunc(func(ctx context.Context) ([]byte, error) {
				return []byte("dry run"), nil
			})
			steps[i].CacheKey = ""
		}
		if steps[i].Timeout == 0 {
			steps[i].Timeout = m.defaultStepTimeout
		}
		if steps[i].CacheKey != "" && steps[i].CacheTTL == 0 {
			steps[i].CacheTTL = m.defaultCacheTTL
		}
	}
	return steps
}

// run executes the plan's waves and persists the finalized summary. It is the
// only goroutine that writes the run's terminal state.
func (m *Manager) run(ctx context.Context, runID string, opts domain.RunOptions, waves []planner.Wave) {
	dispatcher := hooks.New(m.logger)
	dispatcher.OnStepStart(func(hookCtx context.Context, ev domain.HookEvent) error {
		return m.eventBus.Publish(hookCtx, "step.events", ports.Event{
			ID:        uuid.New().String(),
			Type:      ports.EventTypeStepStarted,
			RunID:     ev.RunID,
			StepID:    ev.StepID,
			Timestamp: time.Now(),
		})
	})
	dispatcher.OnStepEnd(func(hookCtx context.Context, ev domain.HookEvent) error {
		if ev.Result != nil {
			m.metrics.RecordStepExecuted(string(ev.Result.Status),
				time.Duration(ev.Result.DurationMs)*time.Millisecond)
		}
		data := map[string]interface{}{}
		if ev.Result != nil {
			data["status"] = string(ev.Result.Status)
			if ev.Result.Error != "" {
				data["error"] = ev.Result.Error
			}
		}
		return m.eventBus.Publish(hookCtx, "step.events", ports.Event{
			ID:        uuid.New().String(),
			Type:      ports.EventTypeStepFinished,
			RunID:     ev.RunID,
			StepID:    ev.StepID,
			Timestamp: time.Now(),
			Data:      data,
		})
	})

	exec := executor.New(executor.Config{
		Cache:        m.cache,
		Hooks:        dispatcher,
		Logger:       m.logger,
		ForceRefresh: opts.NoCache,
	})
	sched := scheduler.New(exec, dispatcher, m.logger, scheduler.Options{
		Parallel:      opts.Parallel,
		StopOnFailure: opts.StopOnFailure,
	})

	summary := sched.Execute(ctx, runID, waves)

	// The run context may already be canceled; persist with a fresh one.
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.storage.SaveSummary(saveCtx, summary); err != nil {
		m.logger.Error("failed to save run summary",
			zap.String("run_id", runID),
			zap.Error(err))
	}

	if err := m.eventBus.Publish(saveCtx, "run.events", ports.Event{
		ID:        uuid.New().String(),
		Type:      ports.EventTypeRunCompleted,
		RunID:     runID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"status":  string(summary.Status),
			"ok":      summary.Counts.OK,
			"failed":  summary.Counts.Failed,
			"skipped": summary.Counts.Skipped,
		},
	}); err != nil {
		m.logger.Error("failed to publish run completed event",
			zap.String("run_id", runID),
			zap.Error(err))
	}

	m.metrics.RecordRunCompleted(string(summary.Status),
		time.Duration(summary.DurationMs)*time.Millisecond)
	m.metrics.SetActiveRuns(int(m.activeRuns.Add(-1)))
	m.executions.Delete(runID)

	m.logger.Info("run completed",
		zap.String("run_id", runID),
		zap.String("status", string(summary.Status)),
		zap.Int("ok", summary.Counts.OK),
		zap.Int("failed", summary.Counts.Failed),
		zap.Int("skipped", summary.Counts.Skipped))
}

// GetSummary retrieves the finalized summary of a run.
func (m *Manager) GetSummary(ctx context.Context, runID string) (*domain.RunSummary, error) {
	return m.storage.GetSummary(ctx, runID)
}

// GetStatus returns the run's current lifecycle status: a tracked state while
// the run is active, the summary status once finalized.
func (m *Manager) GetStatus(ctx context.Context, runID string) (string, error) {
	if val, ok := m.executions.Load(runID); ok {
		exec := val.(*execution)
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return string(exec.state), nil
	}

	summary, err := m.storage.GetSummary(ctx, runID)
	if err != nil {
		return "", err
	}
	return string(summary.Status), nil
}

// ListRuns returns the IDs of all stored runs.
func (m *Manager) ListRuns(ctx context.Context) ([]string, error) {
	return m.storage.ListRuns(ctx)
}

// CancelRun requests cooperative cancellation of an active run. Waves already
// completed keep their outcomes; the summary is still produced and saved.
func (m *Manager) CancelRun(ctx context.Context, runID string) error {
	val, ok := m.executions.Load(runID)
	if !ok {
		if _, err := m.storage.GetSummary(ctx, runID); err == nil {
			return fmt.Errorf("run already in terminal state: %s", runID)
		}
		return fmt.Errorf("run not found: %s", runID)
	}

	exec := val.(*execution)
	exec.mu.Lock()
	defer exec.mu.Unlock()

	if exec.state == RunStateCancelled {
		return fmt.Errorf("run already cancelled: %s", runID)
	}

	exec.cancelFunc()
	exec.state = RunStateCancelled

	if err := m.eventBus.Publish(ctx, "run.events", ports.Event{
		ID:        uuid.New().String(),
		Type:      ports.EventTypeRunCancelled,
		RunID:     runID,
		Timestamp: time.Now(),
	}); err != nil {
		m.logger.Error("failed to publish run cancelled event",
			zap.String("run_id", runID),
			zap.Error(err))
	}

	m.logger.Info("run cancellation requested", zap.String("run_id", runID))
	return nil
}

// Shutdown cancels all active runs.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down run manager")

	m.executions.Range(func(key, value interface{}) bool {
		exec := value.(*execution)
		exec.mu.Lock()
		exec.cancelFunc()
		exec.state = RunStateCancelled
		exec.mu.Unlock()
		return true
	})

	m.logger.Info("run manager shut down complete")
	return nil
}
