package scheduler

import (
	"time"

	"github.com/tomaasz/update-ultra/pkg/domain"
)

// aggregator collects per-step outcomes into the run summary. It is owned by
// the scheduler for the duration of one run; no other component writes to
// the summary.
type aggregator struct {
	summary *domain.RunSummary
}

func newAggregator(runID string) *aggregator {
	return &aggregator{
		summary: &domain.RunSummary{
			RunID:     runID,
			StartedAt: time.Now(),
			Waves:     []domain.WaveResult{},
		},
	}
}

func (a *aggregator) appendWave(index int, results []domain.StepResult) {
	a.summary.Waves = append(a.summary.Waves, domain.WaveResult{
		Index: index,
		Steps: results,
	})
}

// finalize computes counts and overall status. Overall status is success iff
// every step ended Success or Skipped.
func (a *aggregator) finalize() *domain.RunSummary {
	a.summary.CompletedAt = time.Now()
	a.summary.DurationMs = a.summary.CompletedAt.Sub(a.summary.StartedAt).Milliseconds()

	var counts domain.Counts
	for _, wave := range a.summary.Waves {
		for _, res := range wave.Steps {
			switch res.Status {
			case domain.StatusSuccess:
				counts.OK++
			case domain.StatusFailed:
				counts.Failed++
			case domain.StatusSkipped:
				counts.Skipped++
			}
		}
	}
	a.summary.Counts = counts

	if counts.Failed > 0 {
		a.summary.Status = domain.StatusFailed
	} else {
		a.summary.Status = domain.StatusSuccess
	}
	return a.summary
}
