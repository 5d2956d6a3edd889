package extraction

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunMetrics aggregates per-run timing and cost without blocking the
// outcome stream; extractor goroutines record under a short lock.
type RunMetrics struct {
	runID uuid.UUID

	mu        sync.Mutex
	elapsed   map[string]time.Duration
	totalCost float64
	completed int
	failed    int
}

func newRunMetrics(runID uuid.UUID) *RunMetrics {
	return &RunMetrics{runID: runID, elapsed: map[string]time.Duration{}}
}

func (m *RunMetrics) record(oc Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elapsed[oc.ExtractorID] = oc.Elapsed
	m.totalCost += oc.Cost
	m.completed++
	if oc.Err != nil {
		m.failed++
	}
}

// MetricsSnapshot is a point-in-time copy safe to hand out.
type MetricsSnapshot struct {
	RunID     uuid.UUID
	Elapsed   map[string]time.Duration
	TotalCost float64
	Completed int
	Failed    int
}

func (m *RunMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	elapsed := make(map[string]time.Duration, len(m.elapsed))
	for k, v := range m.elapsed {
		elapsed[k] = v
	}
	return MetricsSnapshot{
		RunID:     m.runID,
		Elapsed:   elapsed,
		TotalCost: m.totalCost,
		Completed: m.completed,
		Failed:    m.failed,
	}
}
