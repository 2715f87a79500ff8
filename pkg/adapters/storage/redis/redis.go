package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tomaasz/update-ultra/pkg/domain"
)

const summaryKeyPrefix = "updultra:run:"

// SummaryStorage implements ports.StateStorage using Redis. Summaries expire
// after the configured TTL so finished runs age out on their own.
type SummaryStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewSummaryStorage creates a new Redis summary storage.
func NewSummaryStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SummaryStorage {
	return &SummaryStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveSummary persists a finalized run summary (ports.StateStorage interface).
func (s *SummaryStorage) SaveSummary(ctx context.Context, summary *domain.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if err := s.client.Set(ctx, summaryKey(summary.RunID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}

	s.logger.Debug("summary saved",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)))

	return nil
}

// GetSummary retrieves a run summary (ports.StateStorage interface).
func (s *SummaryStorage) GetSummary(ctx context.Context, runID string) (*domain.RunSummary, error) {
	data, err := s.client.Get(ctx, summaryKey(runID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	var summary domain.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}

	return &summary, nil
}

// DeleteSummary removes a run summary (ports.StateStorage interface).
func (s *SummaryStorage) DeleteSummary(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, summaryKey(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete summary: %w", err)
	}

	s.logger.Debug("summary deleted", zap.String("run_id", runID))
	return nil
}

// ListRuns returns the IDs of all stored runs (ports.StateStorage interface).
func (s *SummaryStorage) ListRuns(ctx context.Context) ([]string, error) {
	pattern := summaryKeyPrefix + "*"

	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	runIDs := make([]string, 0, len(keys))
	for _, key := range keys {
		if len(key) > len(summaryKeyPrefix) {
			runIDs = append(runIDs, key[len(summaryKeyPrefix):])
		}
	}

	return runIDs, nil
}

func summaryKey(runID string) string {
	return summaryKeyPrefix + runID
}
