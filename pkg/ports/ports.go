package ports

import (
	"context"
	"time"

	"github.com/tomaasz/update-ultra/pkg/domain"
)

// CacheBackend persists cache entries so they survive process restarts.
// Entries past their TTL are treated as absent by the cache layer on load
// rather than deleted eagerly.
type CacheBackend interface {
	// Load returns the stored value and its storage timestamp, or ok=false
	// when no entry exists for key.
	Load(ctx context.Context, key string) (value []byte, storedAt time.Time, ok bool, err error)

	// Store writes or overwrites the entry for key.
	Store(ctx context.Context, key string, value []byte, storedAt time.Time) error

	// Clear removes all entries.
	Clear(ctx context.Context) error
}

// EventType identifies a run or step lifecycle event.
type EventType string

const (
	EventTypeRunSubmitted EventType = "run.submitted"
	EventTypeRunCompleted EventType = "run.completed"
	EventTypeRunCancelled EventType = "run.cancelled"
	EventTypeStepStarted  EventType = "step.started"
	EventTypeStepFinished EventType = "step.finished"
)

// Event is the wire form of a lifecycle notification.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id"`
	StepID    string                 `json:"step_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler processes a single event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus delivers lifecycle events to notification collaborators.
type EventBus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// MetricsCollector records engine metrics.
type MetricsCollector interface {
	RecordRunSubmitted(status string)
	RecordRunCompleted(status string, duration time.Duration)
	RecordStepExecuted(status string, duration time.Duration)
	RecordCacheLookup(hit bool)
	SetActiveRuns(count int)
}

// StateStorage persists finalized run summaries for reporting and
// delta-comparison collaborators. Consumers must treat stored summaries as
// read-only input.
type StateStorage interface {
	SaveSummary(ctx context.Context, summary *domain.RunSummary) error
	GetSummary(ctx context.Context, runID string) (*domain.RunSummary, error)
	DeleteSummary(ctx context.Context, runID string) error
	ListRuns(ctx context.Context) ([]string, error)
}
