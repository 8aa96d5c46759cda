package capture

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the capture service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	captures  *prometheus.CounterVec
	duration  prometheus.Histogram
	launches  prometheus.Counter
	pageReuse prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg (skipped when
// reg is nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagesnap",
			Name:      "captures_total",
			Help:      "Screenshot captures by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pagesnap",
			Name:      "capture_duration_seconds",
			Help:      "Wall time of a capture, launch included.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		launches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pagesnap",
			Name:      "browser_launches_total",
			Help:      "Browser processes launched or connected.",
		}),
		pageReuse: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pagesnap",
			Name:      "page_reuse_total",
			Help:      "Captures served by an already open cached page.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.captures, m.duration, m.launches, m.pageReuse)
	}
	return m
}

func (m *Metrics) observeCapture(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) launched() {
	if m == nil {
		return
	}
	m.launches.Inc()
}

func (m *Metrics) reused() {
	if m == nil {
		return
	}
	m.pageReuse.Inc()
}
