package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "weatherstation"

// Metrics groups the node's collectors. A nil *Metrics is valid and records
// nothing, so components can be used without instrumentation.
type Metrics struct {
	startTime time.Time

	samplesAdded   prometheus.Counter
	rollups        *prometheus.CounterVec
	rollupsSkipped *prometheus.CounterVec
	sensorErrors   prometheus.Counter

	queries     *prometheus.CounterVec
	activeConns prometheus.Gauge
	connErrors  prometheus.Counter

	flushDuration *prometheus.HistogramVec
	flushRecords  *prometheus.GaugeVec
	flushFailures prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		startTime: time.Now(),
		samplesAdded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_added_total",
			Help:      "Raw samples accepted by the rollup store.",
		}),
		rollups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollups_total",
			Help:      "Averaged samples produced, by resolution.",
		}, []string{"resolution"}),
		rollupsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollups_skipped_total",
			Help:      "Rollovers that produced no sample because the source bucket was empty.",
		}, []string{"resolution"}),
		sensorErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_read_errors_total",
			Help:      "Sampling cycles skipped because the source failed.",
		}),
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Query server responses, by route.",
		}, []string{"route"}),
		activeConns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Query server connections currently open.",
		}),
		connErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_errors_total",
			Help:      "Query server connections aborted by a socket error.",
		}),
		flushDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent writing one persisted view.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"view"}),
		flushRecords: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flush_records",
			Help:      "Samples written for each view by the last flush.",
		}, []string{"view"}),
		flushFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_failures_total",
			Help:      "Flushes in which at least one view could not be written.",
		}),
	}
}

func (m *Metrics) SampleAdded() {
	if m == nil {
		return
	}
	m.samplesAdded.Inc()
}

func (m *Metrics) Rollup(resolution string) {
	if m == nil {
		return
	}
	m.rollups.WithLabelValues(resolution).Inc()
}

func (m *Metrics) RollupSkipped(resolution string) {
	if m == nil {
		return
	}
	m.rollupsSkipped.WithLabelValues(resolution).Inc()
}

func (m *Metrics) SensorError() {
	if m == nil {
		return
	}
	m.sensorErrors.Inc()
}

func (m *Metrics) Query(route string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(route).Inc()
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.activeConns.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.activeConns.Dec()
}

func (m *Metrics) ConnError() {
	if m == nil {
		return
	}
	m.connErrors.Inc()
}

func (m *Metrics) FlushView(view string, d time.Duration, records int) {
	if m == nil {
		return
	}
	m.flushDuration.WithLabelValues(view).Observe(d.Seconds())
	m.flushRecords.WithLabelValues(view).Set(float64(records))
}

func (m *Metrics) FlushFailed() {
	if m == nil {
		return
	}
	m.flushFailures.Inc()
}

func (m *Metrics) Uptime() time.Duration {
	if m == nil {
		return 0
	}
	return time.Since(m.startTime)
}
