package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Статусы запусков в метриках.
const (
	runStatusSuccess = "success"
	runStatusFailed  = "failed"
	runStatusTimeout = "timeout"
)

// metrics — счётчики сервера. Каждый сервер держит собственный
// реестр, чтобы несколько серверов в одном процессе не конфликтовали
// при регистрации.
type metrics struct {
	registry *prometheus.Registry

	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	inFlight    prometheus.Gauge
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(registry)
	return &metrics{
		registry: registry,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskflow_flow_runs_total",
			Help: "Total flow runs handled by the server, by flow and status.",
		}, []string{"flow", "status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskflow_flow_run_duration_seconds",
			Help:    "Duration of flow runs in seconds, by flow.",
			Buckets: prometheus.DefBuckets,
		}, []string{"flow"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskflow_flow_runs_in_flight",
			Help: "Number of flow runs currently executing.",
		}),
	}
}

// observeRun фиксирует исход одного запуска flow.
func (m *metrics) observeRun(flow, status string, seconds float64) {
	m.runsTotal.WithLabelValues(flow, status).Inc()
	m.runDuration.WithLabelValues(flow).Observe(seconds)
}
