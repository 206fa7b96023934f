package gamelog

import (
	"sync"
	"time"
)

// Metrics tracks gamelog parsing throughput for the stats endpoint.
type Metrics struct {
	mu              sync.Mutex
	startTime       time.Time
	totalLines      int64
	matchingLines   int64
	lastMinuteLines []time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// Record accounts for one parsed chunk: how many lines were processed and
// how many produced events.
func (m *Metrics) Record(lines, matching int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.totalLines += int64(lines)
	m.matchingLines += int64(matching)
	for i := 0; i < lines; i++ {
		m.lastMinuteLines = append(m.lastMinuteLines, now)
	}
	m.cleanupOldEntries(now)
}

func (m *Metrics) cleanupOldEntries(now time.Time) {
	oneMinuteAgo := now.Add(-time.Minute)
	keep := m.lastMinuteLines[:0]
	for _, t := range m.lastMinuteLines {
		if t.After(oneMinuteAgo) {
			keep = append(keep, t)
		}
	}
	m.lastMinuteLines = keep
}

// Snapshot returns the current metrics.
func (m *Metrics) Snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanupOldEntries(time.Now())
	return map[string]interface{}{
		"linesPerMinute": float64(len(m.lastMinuteLines)),
		"totalLines":     m.totalLines,
		"matchingLines":  m.matchingLines,
		"uptime":         time.Since(m.startTime).Seconds(),
	}
}
