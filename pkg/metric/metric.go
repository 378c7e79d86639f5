// Package metric holds the gateway's prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "datapulse"

type Metrics struct {
	registry *prometheus.Registry

	ConnectionUp   prometheus.Gauge
	AlarmCycles    *prometheus.CounterVec
	ActiveAlarms   prometheus.Gauge
	ReadErrors     *prometheus.CounterVec
	ScanChunks     *prometheus.CounterVec
	ScanDuration   prometheus.Histogram
	LoggedSamples  prometheus.Counter
	LoggerFailures *prometheus.CounterVec
	Published      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConnectionUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "up",
			Help:      "Device connection status (0=disconnected, 1=connected)",
		}),
		AlarmCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "cycles_total",
			Help:      "Alarm evaluation cycles by outcome",
		}, []string{"result"}),
		ActiveAlarms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "active",
			Help:      "Number of currently active alarms",
		}),
		ReadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "read_errors_total",
			Help:      "Failed device reads by component and point kind",
		}, []string{"component", "kind"}),
		ScanChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "chunks_total",
			Help:      "Scan chunk requests by point kind and outcome",
		}, []string{"kind", "result"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Duration of completed scans",
			Buckets:   prometheus.DefBuckets,
		}),
		LoggedSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logger",
			Name:      "samples_total",
			Help:      "Samples appended to the sink",
		}),
		LoggerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logger",
			Name:      "failures_total",
			Help:      "Logger cycles that failed, by stage",
		}, []string{"stage"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "published_total",
			Help:      "MQTT publishes by topic and outcome",
		}, []string{"topic", "result"}),
	}
	m.registry.MustRegister(
		m.ConnectionUp, m.AlarmCycles, m.ActiveAlarms, m.ReadErrors,
		m.ScanChunks, m.ScanDuration, m.LoggedSamples, m.LoggerFailures, m.Published,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.ConnectionUp.Set(1)
	} else {
		m.ConnectionUp.Set(0)
	}
}

func (m *Metrics) AlarmCycle(result string, active int) {
	if m == nil {
		return
	}
	m.AlarmCycles.WithLabelValues(result).Inc()
	if result == ResultOK {
		m.ActiveAlarms.Set(float64(active))
	}
}

func (m *Metrics) ReadError(component, kind string) {
	if m == nil {
		return
	}
	m.ReadErrors.WithLabelValues(component, kind).Inc()
}

func (m *Metrics) ScanChunk(kind, result string) {
	if m == nil {
		return
	}
	m.ScanChunks.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ScanFinished(seconds float64) {
	if m == nil {
		return
	}
	m.ScanDuration.Observe(seconds)
}

func (m *Metrics) SamplesLogged(n int) {
	if m == nil {
		return
	}
	m.LoggedSamples.Add(float64(n))
}

func (m *Metrics) LoggerFailure(stage string) {
	if m == nil {
		return
	}
	m.LoggerFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) Publish(topic, result string) {
	if m == nil {
		return
	}
	m.Published.WithLabelValues(topic, result).Inc()
}

// outcomes
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
	ResultDropped = "dropped"
)
