package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the coordinator's Prometheus collectors. A nil *metrics is
// valid and records nothing.
type metrics struct {
	runs         *prometheus.CounterVec
	events       *prometheus.CounterVec
	driverErrors *prometheus.CounterVec
	advance      prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "observer",
			Name:      "runs_total",
			Help:      "Runs finished, by final state.",
		}, []string{"state"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "observer",
			Name:      "events_total",
			Help:      "Timeline events processed, by kind.",
		}, []string{"kind"}),
		driverErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "observer",
			Name:      "driver_errors_total",
			Help:      "Driver calls that failed, by operation.",
		}, []string{"op"}),
		advance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "observer",
			Name:      "driver_advance_seconds",
			Help:      "Wall time spent in Driver.AdvanceTo.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
	m.runs = register(reg, m.runs)
	m.events = register(reg, m.events)
	m.driverErrors = register(reg, m.driverErrors)
	m.advance = register(reg, m.advance)
	return m
}

// register adds c to reg, reusing an identical collector that another
// coordinator already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *metrics) runFinished(s State) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(s)).Inc()
}

func (m *metrics) event(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *metrics) driverError(op string) {
	if m == nil {
		return
	}
	m.driverErrors.WithLabelValues(op).Inc()
}

func (m *metrics) observeAdvance(d time.Duration) {
	if m == nil {
		return
	}
	m.advance.Observe(d.Seconds())
}
