package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store implements CacheBackend using Redis. Entries are not given a Redis
// TTL: the cache layer decides validity at read time, so stale entries are
// simply ignored until overwritten (lazy expiry).
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

type payload struct {
	Value    []byte    `json:"value"`
	StoredAt time.Time `json:"storedAt"`
}

// NewStore creates a new Redis cache backing store.
func NewStore(client *redis.Client, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		logger: logger,
	}
}

// Load retrieves the entry for key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	data, err := s.client.Get(ctx, getCacheKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, fmt.Errorf("failed to load cache entry: %w", err)
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	return p.Value, p.StoredAt, true, nil
}

// Store writes or overwrites the entry for key.
func (s *Store) Store(ctx context.Context, key string, value []byte, storedAt time.Time) error {
	data, err := json.Marshal(payload{Value: value, StoredAt: storedAt})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := s.client.Set(ctx, getCacheKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	s.logger.Debug("cache entry stored",
		zap.String("key", key))

	return nil
}

// Clear removes all cache entries.
func (s *Store) Clear(ctx context.Context) error {
	pattern := "updultra:cache:*"

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}

		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return nil
}

// getCacheKey returns the Redis key for a cache entry.
func getCacheKey(key string) string {
	return fmt.Sprintf("updultra:cache:%s", key)
}
