package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tomaasz/update-ultra/pkg/domain"
)

func recording(order *[]string, name string) domain.Hook {
	return func(ctx context.Context, ev domain.HookEvent) error {
		*order = append(*order, name)
		return nil
	}
}

func TestGlobalHooksFireBeforeStepHooks(t *testing.T) {
	d := New(zap.NewNop())
	var order []string

	d.OnStepStart(recording(&order, "global-pre"))
	d.OnStepEnd(recording(&order, "global-post"))

	step := domain.Step{
		ID:        "apt",
		PreHooks:  []domain.Hook{recording(&order, "step-pre")},
		PostHooks: []domain.Hook{recording(&order, "step-post")},
	}

	d.FireStepPre(context.Background(), "run-1", step)
	d.FireStepPost(context.Background(), "run-1", step, &domain.StepResult{StepID: "apt"})

	assert.Equal(t, []string{"global-pre", "step-pre", "global-post", "step-post"}, order)
}

func TestHookErrorIsSwallowed(t *testing.T) {
	d := New(zap.NewNop())
	var reached bool

	d.OnStepStart(func(ctx context.Context, ev domain.HookEvent) error {
		return errors.New("notification transport down")
	})
	d.OnStepStart(func(ctx context.Context, ev domain.HookEvent) error {
		reached = true
		return nil
	})

	d.FireStepPre(context.Background(), "run-1", domain.Step{ID: "s"})
	assert.True(t, reached, "later hooks must still run after an earlier hook fails")
}

func TestRunHooksCarryNoStepID(t *testing.T) {
	d := New(zap.NewNop())
	var got domain.HookEvent

	d.OnRunStart(func(ctx context.Context, ev domain.HookEvent) error {
		got = ev
		return nil
	})

	d.FireRunStart(context.Background(), "run-9")
	require.Equal(t, "run-9", got.RunID)
	assert.Empty(t, got.StepID)
	assert.Nil(t, got.Result)
}

func TestPostHookReceivesResult(t *testing.T) {
	d := New(zap.NewNop())
	var got *domain.StepResult

	d.OnStepEnd(func(ctx context.Context, ev domain.HookEvent) error {
		got = ev.Result
		return nil
	})

	res := &domain.StepResult{StepID: "brew", Status: domain.StatusFailed, Error: "exit 1"}
	d.FireStepPost(context.Background(), "run-1", domain.Step{ID: "brew"}, res)

	require.NotNil(t, got)
	assert.Equal(t, domain.StatusFailed, got.Status)
}
