package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomaasz/update-ultra/pkg/domain"
)

func sampleSummary(runID string) *domain.RunSummary {
	return &domain.RunSummary{
		RunID:     runID,
		Status:    domain.StatusSuccess,
		StartedAt: time.Now(),
		Counts:    domain.Counts{OK: 2},
	}
}

func TestSaveAndGetSummary(t *testing.T) {
	s := NewSummaryStorage()
	ctx := context.Background()

	require.NoError(t, s.SaveSummary(ctx, sampleSummary("run-1")))

	got, err := s.GetSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, domain.StatusSuccess, got.Status)
}

func TestGetSummaryNotFound(t *testing.T) {
	s := NewSummaryStorage()

	_, err := s.GetSummary(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDeleteSummary(t *testing.T) {
	s := NewSummaryStorage()
	ctx := context.Background()

	require.NoError(t, s.SaveSummary(ctx, sampleSummary("run-1")))
	require.NoError(t, s.DeleteSummary(ctx, "run-1"))

	_, err := s.GetSummary(ctx, "run-1")
	assert.Error(t, err)
}

func TestListRuns(t *testing.T) {
	s := NewSummaryStorage()
	ctx := context.Background()

	require.NoError(t, s.SaveSummary(ctx, sampleSummary("run-1")))
	require.NoError(t, s.SaveSummary(ctx, sampleSummary("run-2")))

	ids, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"run-1", "run-2"}, ids)
}

func TestStoredSummaryIsolatedFromCaller(t *testing.T) {
	s := NewSummaryStorage()
	ctx := context.Background()

	summary := sampleSummary("run-1")
	require.NoError(t, s.SaveSummary(ctx, summary))
	summary.Status = domain.StatusFailed

	got, err := s.GetSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, got.Status)
}
