package pipeline

import (
	"log/slog"
	"sync"
	"time"
)

// etaWindow is how many recent document durations feed the moving average.
const etaWindow = 50

// monitor tracks per-document completions and logs progress with an ETA
// derived from a moving average of recent durations.
type monitor struct {
	mu        sync.Mutex
	logger    *slog.Logger
	window    []time.Duration
	next      int
	filled    int
	processed int
}

func newMonitor(logger *slog.Logger) *monitor {
	return &monitor{
		logger: logger,
		window: make([]time.Duration, etaWindow),
	}
}

// observe records one finished document and logs run progress. Skipped
// documents count toward progress but not toward the duration average.
func (m *monitor) observe(r docResult, discovered int) {
	m.mu.Lock()
	m.processed++
	if r.status != docSkipped {
		m.window[m.next] = r.duration
		m.next = (m.next + 1) % len(m.window)
		if m.filled < len(m.window) {
			m.filled++
		}
	}
	processed := m.processed
	avg := m.averageLocked()
	m.mu.Unlock()

	if r.status == docSkipped {
		m.logger.Debug("pipeline: document skipped", "document_id", r.id)
		return
	}

	attrs := []any{
		"document_id", r.id,
		"progress", processed,
		"discovered", discovered,
		"elapsed", r.duration.Round(time.Millisecond),
	}
	if remaining := discovered - processed; remaining > 0 && avg > 0 {
		attrs = append(attrs, "eta", (avg * time.Duration(remaining)).Round(time.Second))
	}
	if r.status == docFailed {
		m.logger.Warn("pipeline: document failed", append(attrs, "error", r.err)...)
		return
	}
	m.logger.Info("pipeline: document completed", attrs...)
}

func (m *monitor) averageLocked() time.Duration {
	if m.filled == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < m.filled; i++ {
		sum += m.window[i]
	}
	return sum / time.Duration(m.filled)
}
