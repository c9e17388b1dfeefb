package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spaghettifunk/assetloader/engine/containers"
	"golang.org/x/exp/constraints"
)

// AVG_COUNT is the number of most recent loads kept for the rolling average.
const AVG_COUNT int = 30

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// LoadMetrics tracks load outcomes and durations. Counters are exported through
// Prometheus; the rolling average is kept locally for log lines and the CLI summary.
type LoadMetrics struct {
	mu     sync.Mutex
	window *containers.RingQueue[float64]

	succeeded atomic.Int64
	failed    atomic.Int64

	loads    *prometheus.CounterVec
	duration prometheus.Histogram
	inflight prometheus.Gauge
}

// NewLoadMetrics registers the loader collectors on reg. A nil reg skips registration.
func NewLoadMetrics(reg prometheus.Registerer) (*LoadMetrics, error) {
	m := &LoadMetrics{
		window: containers.NewRingQueue[float64](AVG_COUNT),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetloader",
			Name:      "loads_total",
			Help:      "Number of completed asset loads by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "assetloader",
			Name:      "load_duration_seconds",
			Help:      "Time between starting a load and its settlement.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "assetloader",
			Name:      "loads_in_flight",
			Help:      "Loads started but not yet settled.",
		}),
	}
	if err := m.Register(reg); err != nil {
		return nil, err
	}
	return m, nil
}

// Register adds the collectors to reg. A nil reg is a no-op. When one of the
// collectors is rejected, the ones already added are removed again.
func (m *LoadMetrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		return nil
	}
	collectors := []prometheus.Collector{m.loads, m.duration, m.inflight}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			for _, added := range collectors[:i] {
				reg.Unregister(added)
			}
			return err
		}
	}
	return nil
}

func (m *LoadMetrics) Started() {
	m.inflight.Inc()
}

func (m *LoadMetrics) Finished(elapsed time.Duration, err error) {
	m.inflight.Dec()
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.loads.WithLabelValues(outcome).Inc()
	if err != nil {
		m.failed.Add(1)
	} else {
		m.succeeded.Add(1)
	}
	m.duration.Observe(elapsed.Seconds())

	m.mu.Lock()
	m.window.Push(float64(elapsed) / float64(time.Millisecond))
	m.mu.Unlock()
}

// AverageMS returns the mean duration of the last AVG_COUNT loads in milliseconds.
func (m *LoadMetrics) AverageMS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return mean(m.window.Values())
}

// Count returns the number of loads that settled with the given outcome.
func (m *LoadMetrics) Count(outcome string) int64 {
	switch outcome {
	case OutcomeSuccess:
		return m.succeeded.Load()
	case OutcomeFailure:
		return m.failed.Load()
	}
	return 0
}

func mean[T constraints.Integer | constraints.Float](values []T) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return sum / float64(len(values))
}
