package metrics

import (
	"sync"
	"time"
)

// sampleWindow is the rolling-window size for PerfMetrics samples.
const sampleWindow = 512

// sample is one recorded message observation.
type sample struct {
	at        time.Time
	kind      string
	bytes     int
	latencyMs float64
}

// PerfMetrics is a bounded ring of recent message samples, single-writer
// per side (master or slave) per spec.md's concurrency model. Latency is
// advisory only — clocks are unsynchronized between master and slave, so
// it is computed as now-minus-envelope-timestamp on whichever side
// records the sample, not a true round trip.
type PerfMetrics struct {
	mu      sync.Mutex
	samples [sampleWindow]sample
	next    int
	count   int
	total   int64
	totalBytes int64
}

// NewPerfMetrics constructs an empty rolling window.
func NewPerfMetrics() *PerfMetrics {
	return &PerfMetrics{}
}

// Record appends one observation, overwriting the oldest sample once the
// window is full.
func (p *PerfMetrics) Record(kind string, bytes int, latencyMs float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.samples[p.next] = sample{at: time.Now(), kind: kind, bytes: bytes, latencyMs: latencyMs}
	p.next = (p.next + 1) % sampleWindow
	if p.count < sampleWindow {
		p.count++
	}
	p.total++
	p.totalBytes += int64(bytes)
}

// Aggregate summarizes the current window: average latency, messages per
// second over the window's observed time span, and lifetime totals.
func (p *PerfMetrics) Aggregate() Aggregate {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.count == 0 {
		return Aggregate{}
	}

	var sumLatency float64
	oldest := p.samples[0].at
	newest := p.samples[0].at
	for i := 0; i < p.count; i++ {
		s := p.samples[i]
		sumLatency += s.latencyMs
		if s.at.Before(oldest) {
			oldest = s.at
		}
		if s.at.After(newest) {
			newest = s.at
		}
	}

	span := newest.Sub(oldest).Seconds()
	rate := float64(p.count)
	if span > 0 {
		rate = float64(p.count) / span
	}

	return Aggregate{
		AverageLatencyMs: sumLatency / float64(p.count),
		MessagesPerSec:   rate,
		TotalMessages:    p.total,
		TotalBytes:       p.totalBytes,
	}
}

// Aggregate is the computed summary returned by get_performance_metrics().
type Aggregate struct {
	AverageLatencyMs float64
	MessagesPerSec   float64
	TotalMessages    int64
	TotalBytes       int64
}
