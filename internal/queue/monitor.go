package queue

import (
	"fmt"
	"sync"
	"time"
)

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is a threshold violation observed by the monitor.
type Alert struct {
	Kind     string    `json:"kind"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// MonitorConfig tunes the queue health thresholds.
type MonitorConfig struct {
	MaxQueueSize      int
	WarningFraction   float64       // fraction of max that triggers a warning
	MinProcessingRate float64       // items/sec below which a busy queue warns
	StalledTimeout    time.Duration // no progress for this long is critical
	AlertCooldown     time.Duration // per-kind minimum interval between alerts
}

// Monitor evaluates queue metrics against thresholds and derives a health
// score. Alert emission is rate-limited per alert kind.
type Monitor struct {
	mu              sync.Mutex
	cfg             MonitorConfig
	lastFired       map[string]time.Time
	persistFailures int
	now             func() time.Time
}

// NewMonitor creates a monitor with defaults filled in.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultMaxQueueSize
	}
	if cfg.WarningFraction <= 0 {
		cfg.WarningFraction = 0.9
	}
	if cfg.StalledTimeout <= 0 {
		cfg.StalledTimeout = 5 * time.Minute
	}
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = 30 * time.Second
	}
	return &Monitor{
		cfg:       cfg,
		lastFired: map[string]time.Time{},
		now:       time.Now,
	}
}

// Check evaluates the metrics snapshot and returns any alerts not suppressed
// by the cooldown.
func (m *Monitor) Check(metrics MetricsSnapshot) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	alerts := []Alert{}

	add := func(kind, severity, message string) {
		if fired, ok := m.lastFired[kind]; ok && now.Sub(fired) < m.cfg.AlertCooldown {
			return
		}
		m.lastFired[kind] = now
		alerts = append(alerts, Alert{Kind: kind, Severity: severity, Message: message, At: now})
	}

	size := metrics.CurrentQueueSize
	switch {
	case size >= m.cfg.MaxQueueSize:
		add("queue-size", SeverityCritical,
			fmt.Sprintf("queue size %d reached limit %d", size, m.cfg.MaxQueueSize))
	case float64(size) >= m.cfg.WarningFraction*float64(m.cfg.MaxQueueSize):
		add("queue-size", SeverityWarning,
			fmt.Sprintf("queue size %d above %.0f%% of limit %d", size, m.cfg.WarningFraction*100, m.cfg.MaxQueueSize))
	}

	if m.cfg.MinProcessingRate > 0 && size > 0 && metrics.ProcessingRate < m.cfg.MinProcessingRate {
		add("processing-rate", SeverityWarning,
			fmt.Sprintf("processing rate %.2f/s below minimum %.2f/s with %d items queued",
				metrics.ProcessingRate, m.cfg.MinProcessingRate, size))
	}

	if size > 0 && !metrics.LastProgressAt.IsZero() && now.Sub(metrics.LastProgressAt) > m.cfg.StalledTimeout {
		add("stalled", SeverityCritical,
			fmt.Sprintf("no progress for %s with %d items queued", now.Sub(metrics.LastProgressAt).Round(time.Second), size))
	}

	return alerts
}

// ReportPersistOutcome tracks state-persistence outcomes. A success resets
// the streak; the second consecutive failure escalates to a critical
// persistence alert, rate-limited by the cooldown like every other kind.
func (m *Monitor) ReportPersistOutcome(err error) (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		m.persistFailures = 0
		return Alert{}, false
	}
	m.persistFailures++
	if m.persistFailures < 2 {
		return Alert{}, false
	}

	now := m.now()
	if fired, ok := m.lastFired["persistence"]; ok && now.Sub(fired) < m.cfg.AlertCooldown {
		return Alert{}, false
	}
	m.lastFired["persistence"] = now
	return Alert{
		Kind:     "persistence",
		Severity: SeverityCritical,
		Message:  fmt.Sprintf("state persistence failed %d times in a row: %v", m.persistFailures, err),
		At:       now,
	}, true
}

// HealthScore derives a 0-100 score from the current metrics. Each warning
// condition costs 20 points, each critical 40.
func (m *Monitor) HealthScore(metrics MetricsSnapshot) int {
	score := 100
	now := m.now()

	size := metrics.CurrentQueueSize
	switch {
	case size >= m.cfg.MaxQueueSize:
		score -= 40
	case float64(size) >= m.cfg.WarningFraction*float64(m.cfg.MaxQueueSize):
		score -= 20
	}
	if m.cfg.MinProcessingRate > 0 && size > 0 && metrics.ProcessingRate < m.cfg.MinProcessingRate {
		score -= 20
	}
	if size > 0 && !metrics.LastProgressAt.IsZero() && now.Sub(metrics.LastProgressAt) > m.cfg.StalledTimeout {
		score -= 40
	}

	if score < 0 {
		score = 0
	}
	return score
}
