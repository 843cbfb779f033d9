package queue

import "time"

// metricsWindow is the rolling window over which rates are computed.
const metricsWindow = 60 * time.Second

// MetricsSnapshot is a point-in-time copy of queue metrics.
type MetricsSnapshot struct {
	TotalDiscovered  int       `json:"totalDiscovered"`
	TotalProcessed   int       `json:"totalProcessed"`
	TotalFailed      int       `json:"totalFailed"`
	TotalRetries     int       `json:"totalRetries"`
	CurrentQueueSize int       `json:"currentQueueSize"`
	PeakQueueSize    int       `json:"peakQueueSize"`
	DiscoveryRate    float64   `json:"discoveryRate"`
	ProcessingRate   float64   `json:"processingRate"`
	LastProgressAt   time.Time `json:"lastProgressAt,omitempty"`
}

type sample struct {
	at    time.Time
	total int
}

// Metrics tracks queue counters and rolling-window rates. Callers hold the
// queue mutex; Metrics itself is not locked.
type Metrics struct {
	totalDiscovered int
	totalProcessed  int
	totalFailed     int
	totalRetries    int
	peakQueueSize   int
	lastProgressAt  time.Time

	discoverySamples  []sample
	processingSamples []sample

	now func() time.Time
}

func newMetrics() *Metrics {
	return &Metrics{now: time.Now}
}

func (m *Metrics) recordDiscovered(queueSize int) {
	m.totalDiscovered++
	if queueSize > m.peakQueueSize {
		m.peakQueueSize = queueSize
	}
	m.discoverySamples = appendSample(m.discoverySamples, m.now(), m.totalDiscovered)
}

func (m *Metrics) recordProcessed(queueSize int) {
	m.totalProcessed++
	m.lastProgressAt = m.now()
	if queueSize > m.peakQueueSize {
		m.peakQueueSize = queueSize
	}
	m.processingSamples = appendSample(m.processingSamples, m.now(), m.totalProcessed)
}

func (m *Metrics) recordFailed(queueSize int) {
	m.totalFailed++
	m.lastProgressAt = m.now()
	if queueSize > m.peakQueueSize {
		m.peakQueueSize = queueSize
	}
}

func (m *Metrics) recordRetry() {
	m.totalRetries++
}

func (m *Metrics) snapshot(queueSize int) MetricsSnapshot {
	now := m.now()
	return MetricsSnapshot{
		TotalDiscovered:  m.totalDiscovered,
		TotalProcessed:   m.totalProcessed,
		TotalFailed:      m.totalFailed,
		TotalRetries:     m.totalRetries,
		CurrentQueueSize: queueSize,
		PeakQueueSize:    m.peakQueueSize,
		DiscoveryRate:    windowRate(m.discoverySamples, now),
		ProcessingRate:   windowRate(m.processingSamples, now),
		LastProgressAt:   m.lastProgressAt,
	}
}

func (m *Metrics) restore(snapshot MetricsSnapshot) {
	m.totalDiscovered = snapshot.TotalDiscovered
	m.totalProcessed = snapshot.TotalProcessed
	m.totalFailed = snapshot.TotalFailed
	m.totalRetries = snapshot.TotalRetries
	m.peakQueueSize = snapshot.PeakQueueSize
	m.lastProgressAt = snapshot.LastProgressAt
	m.discoverySamples = nil
	m.processingSamples = nil
}

func appendSample(samples []sample, at time.Time, total int) []sample {
	samples = append(samples, sample{at: at, total: total})
	return pruneSamples(samples, at)
}

func pruneSamples(samples []sample, now time.Time) []sample {
	cutoff := now.Add(-metricsWindow)
	idx := 0
	for idx < len(samples) && samples[idx].at.Before(cutoff) {
		idx++
	}
	// Keep one sample before the cutoff so the window always has a baseline.
	if idx > 0 {
		idx--
	}
	return samples[idx:]
}

// windowRate computes items/second between the oldest and newest retained
// samples.
func windowRate(samples []sample, now time.Time) float64 {
	samples = pruneSamples(samples, now)
	if len(samples) < 2 {
		return 0
	}
	first := samples[0]
	last := samples[len(samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(last.total-first.total) / elapsed
}
