package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomaasz/update-ultra/pkg/domain"
)

// SummaryStorage implements ports.StateStorage with an in-memory map. It is
// the backend for single-process deployments and tests.
type SummaryStorage struct {
	summaries map[string]*domain.RunSummary
	mu        sync.RWMutex
}

// NewSummaryStorage creates a new in-memory summary storage.
func NewSummaryStorage() *SummaryStorage {
	return &SummaryStorage{
		summaries: make(map[string]*domain.RunSummary),
	}
}

// SaveSummary persists a finalized run summary (ports.StateStorage interface).
func (s *SummaryStorage) SaveSummary(ctx context.Context, summary *domain.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Shallow copy so later caller mutations don't leak into storage.
	stored := *summary
	s.summaries[summary.RunID] = &stored
	return nil
}

// GetSummary retrieves a run summary (ports.StateStorage interface).
func (s *SummaryStorage) GetSummary(ctx context.Context, runID string) (*domain.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[runID]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	out := *summary
	return &out, nil
}

// DeleteSummary removes a run summary (ports.StateStorage interface).
func (s *SummaryStorage) DeleteSummary(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.summaries, runID)
	return nil
}

// ListRuns returns the IDs of all stored runs (ports.StateStorage interface).
func (s *SummaryStorage) ListRuns(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runIDs := make([]string, 0, len(s.summaries))
	for id := range s.summaries {
		runIDs = append(runIDs, id)
	}
	return runIDs, nil
}
