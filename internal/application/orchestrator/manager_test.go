package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	eventsmemory "github.com/tomaasz/update-ultra/pkg/adapters/events/memory"
	storagememory "github.com/tomaasz/update-ultra/pkg/adapters/storage/memory"
	"github.com/tomaasz/update-ultra/pkg/cache"
	"github.com/tomaasz/update-ultra/pkg/domain"
	"github.com/tomaasz/update-ultra/pkg/ports"
)

// fakeMetrics records calls without a real registry.
type fakeMetrics struct {
	mu            sync.Mutex
	runsSubmitted []string
	runsCompleted []string
	stepsExecuted []string
	activeRuns    int
}

func (f *fakeMetrics) RecordRunSubmitted(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runsSubmitted = append(f.runsSubmitted, status)
}

func (f *fakeMetrics) RecordRunCompleted(status string, duration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runsCompleted = append(f.runsCompleted, status)
}

func (f *fakeMetrics) RecordStepExecuted(status string, duration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stepsExecuted = append(f.stepsExecuted, status)
}

func (f *fakeMetrics) RecordCacheLookup(hit bool) {}

func (f *fakeMetrics) SetActiveRuns(count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeRuns = count
}

func newTestManager(t *testing.T) (*Manager, *storagememory.SummaryStorage, *eventsmemory.EventBus, *fakeMetrics) {
	t.Helper()
	logger := zap.NewNop()
	storage := storagememory.NewSummaryStorage()
	bus := eventsmemory.NewEventBus()
	metrics := &fakeMetrics{}
	m := NewManager(Config{
		Storage:            storage,
		EventBus:           bus,
		Metrics:            metrics,
		Cache:              cache.New(logger),
		Logger:             logger,
		RunTimeout:         time.Minute,
		DefaultStepTimeout: 10 * time.Second,
		DefaultCacheTTL:    time.Minute,
	})
	return m, storage, bus, metrics
}

func waitForSummary(t *testing.T, m *Manager, runID string) *domain.RunSummary {
	t.Helper()
	var summary *domain.RunSummary
	require.Eventually(t, func() bool {
		s, err := m.GetSummary(context.Background(), runID)
		if err != nil {
			return false
		}
		summary = s
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return summary
}

func TestSubmitPlanRunsToCompletion(t *testing.T) {
	m, _, _, metrics := newTestManager(t)

	plan := &domain.Plan{
		Steps: []domain.Step{
			{ID: "a", Work: domain.WorkFunc(func(ctx context.Context) ([]byte, error) {
				return []byte("ok"), nil
			})},
			{ID: "b", DependsOn: []string{"a"}, Work: domain.WorkFunc(func(ctx context.Context) ([]byte, error) {
				return []byte("ok"), nil
			})},
		},
		Options: domain.RunOptions{Parallel: true},
	}

	runID, err := m.SubmitPlan(context.Background(), plan)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	summary := waitForSummary(t, m, runID)
	assert.Equal(t, domain.StatusSuccess, summary.Status)
	assert.Equal(t, domain.Counts{OK: 2}, summary.Counts)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, []string{"accepted"}, metrics.runsSubmitted)
	assert.Equal(t, []string{string(domain.StatusSuccess)}, metrics.runsCompleted)
}

func TestSubmitPlanRejectsCycle(t *testing.T) {
	m, _, _, metrics := newTestManager(t)

	noop := domain.WorkFunc(func(ctx context.Context) ([]byte, error) { return nil, nil })
	plan := &domain.Plan{
		Steps: []domain.Step{
			{ID: "a", DependsOn: []string{"b"}, Work: noop},
			{ID: "b", DependsOn: []string{"a"}, Work: noop},
		},
	}

	_, err := m.SubmitPlan(context.Background(), plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid plan")

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, []string{"rejected"}, metrics.runsSubmitted)
}

func TestSubmitPlanSkipStepsOption(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	var executed atomic.Bool
	plan := &domain.Plan{
		Steps: []domain.Step{
			{ID: "a", Work: domain.WorkFunc(func(ctx context.Context) ([]byte, error) {
				executed.Store(true)
				return nil, nil
			})},
			{ID: "b", Work: domain.WorkFunc(func(ctx context.Context) ([]byte, error) {
				return nil, nil
			})},
		},
		Options: domain.RunOptions{Parallel: true, SkipSteps: []string{"a"}},
	}

	runID, err := m.SubmitPlan(context.Background(), plan)
	require.NoError(t, err)

	summary := waitForSummary(t, m, runID)
	assert.False(t, executed.Load(), "skipped step must not run")
	assert.Equal(t, domain.Counts{OK: 1, Skipped: 1}, summary.Counts)

	for _, wave := range summary.Waves {
		for _, res := range wave.Steps {
			if res.StepID == "a" {
				assert.Equal(t, domain.StatusSkipped, res.Status)
				assert.Equal(t, domain.SkipReasonConfigured, res.Meta.SkipReason)
			}
		}
	}
}

func TestSubmitPlanDryRun(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	var executed atomic.Bool
	plan := &domain.Plan{
		Steps: []domain.Step{
			{ID: "a", CacheKey: "a-key", Work: domain.WorkFunc(func(ctx context.Context) ([]byte, error) {
				executed.Store(true)
				return nil, nil
			})},
		},
		Options: domain.RunOptions{Parallel: true, DryRun: true},
	}

	runID, err := m.SubmitPlan(context.Background(), plan)
	require.NoError(t, err)

	summary := waitForSummary(t, m, runID)
	assert.False(t, executed.Load(), "dry run must not execute real work")
	assert.Equal(t, domain.StatusSuccess, summary.Status)
	assert.Equal(t, "dry run", summary.Waves[0].Steps[0].Output)
	assert.False(t, summary.Waves[0].Steps[0].Meta.FromCache, "dry run must not touch the cache")
}

func TestGetStatusWhileRunningAndAfter(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	release := make(chan struct{})
	plan := &domain.Plan{
		Steps: []domain.Step{
			{ID: "a", Work: domain.WorkFunc(func(ctx context.Context) ([]byte, error) {
				<-release
				return nil, nil
			})},
		},
		Options: domain.RunOptions{Parallel: true},
	}

	runID, err := m.SubmitPlan(context.Background(), plan)
	require.NoError(t, err)

	status, err := m.GetStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, string(RunStateRunning), status)

	close(release)
	waitForSummary(t, m, runID)

	require.Eventually(t, func() bool {
		status, err = m.GetStatus(context.Background(), runID)
		return err == nil && status == string(domain.StatusSuccess)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCancelRun(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	started := make(chan struct{})
	plan := &domain.Plan{
		Steps: []domain.Step{
			{ID: "slow", Work: domain.WorkFunc(func(ctx context.Context) ([]byte, error) {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			})},
			{ID: "after", DependsOn: []string{"slow"}, Work: domain.WorkFunc(func(ctx context.Context) ([]byte, error) {
				t.Error("dependent step must not run after cancellation")
				return nil, nil
			})},
		},
		Options: domain.RunOptions{Parallel: true},
	}

	runID, err := m.SubmitPlan(context.Background(), plan)
	require.NoError(t, err)

	<-started
	require.NoError(t, m.CancelRun(context.Background(), runID))

	summary := waitForSummary(t, m, runID)
	assert.Equal(t, domain.StatusFailed, summary.Status)

	found := false
	for _, wave := range summary.Waves {
		for _, res := range wave.Steps {
			if res.StepID == "after" {
				found = true
				assert.Equal(t, domain.StatusSkipped, res.Status)
				assert.Equal(t, domain.SkipReasonCanceled, res.Meta.SkipReason)
			}
		}
	}
	assert.True(t, found)
}

func TestCancelRunNotFound(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	err := m.CancelRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCancelRunTerminal(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	plan := &domain.Plan{
		Steps: []domain.Step{
			{ID: "a", Work: domain.WorkFunc(func(ctx context.Context) ([]byte, error) { return nil, nil })},
		},
		Options: domain.RunOptions{Parallel: true},
	}

	runID, err := m.SubmitPlan(context.Background(), plan)
	require.NoError(t, err)
	waitForSummary(t, m, runID)

	require.Eventually(t, func() bool {
		err = m.CancelRun(context.Background(), runID)
		return err != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, err.Error(), "terminal state")
}

func TestRunAndStepEventsPublished(t *testing.T) {
	m, _, bus, _ := newTestManager(t)

	var mu sync.Mutex
	var runEvents, stepEvents []ports.EventType
	require.NoError(t, bus.Subscribe(context.Background(), "run.events", func(ctx context.Context, ev ports.Event) error {
		mu.Lock()
		defer mu.Unlock()
		runEvents = append(runEvents, ev.Type)
		return nil
	}))
	require.NoError(t, bus.Subscribe(context.Background(), "step.events", func(ctx context.Context, ev ports.Event) error {
		mu.Lock()
		defer mu.Unlock()
		stepEvents = append(stepEvents, ev.Type)
		return nil
	}))

	plan := &domain.Plan{
		Steps: []domain.Step{
			{ID: "a", Work: domain.WorkFunc(func(ctx context.Context) ([]byte, error) { return nil, nil })},
		},
		Options: domain.RunOptions{Parallel: true},
	}

	runID, err := m.SubmitPlan(context.Background(), plan)
	require.NoError(t, err)
	waitForSummary(t, m, runID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(runEvents) >= 2 && len(stepEvents) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, runEvents, ports.EventTypeRunSubmitted)
	assert.Contains(t, runEvents, ports.EventTypeRunCompleted)
	assert.Contains(t, stepEvents, ports.EventTypeStepStarted)
	assert.Contains(t, stepEvents, ports.EventTypeStepFinished)
}

func TestListRuns(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	plan := &domain.Plan{
		Steps: []domain.Step{
			{ID: "a", Work: domain.WorkFunc(func(ctx context.Context) ([]byte, error) { return nil, nil })},
		},
		Options: domain.RunOptions{Parallel: true},
	}

	first, err := m.SubmitPlan(context.Background(), plan)
	require.NoError(t, err)
	second, err := m.SubmitPlan(context.Background(), plan)
	require.NoError(t, err)

	waitForSummary(t, m, first)
	waitForSummary(t, m, second)

	ids, err := m.ListRuns(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first, second}, ids)
}
