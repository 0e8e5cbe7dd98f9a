package fetch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch outcomes as reported in jobscope_fetch_total.
const (
	outcomeHTML         = "html"
	outcomeCacheHit     = "cache_hit"
	outcomeBlocked      = "blocked"
	outcomeShortCircuit = "short_circuit"
	outcomeError        = "error"
	outcomeQueueFull    = "queue_full"
)

// Metrics exposes scheduler activity to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	fetches    *prometheus.CounterVec
	queueDepth prometheus.Gauge
	delay      prometheus.Gauge
}

// NewMetrics creates the scheduler collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobscope_fetch_total",
			Help: "Detail page fetch jobs by outcome.",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobscope_fetch_queue_depth",
			Help: "Fetch jobs waiting for the worker.",
		}),
		delay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobscope_fetch_delay_seconds",
			Help: "Current pause between fetches.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.fetches, m.queueDepth, m.delay)
	}
	return m
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) setDelay(d time.Duration) {
	if m == nil {
		return
	}
	m.delay.Set(d.Seconds())
}
