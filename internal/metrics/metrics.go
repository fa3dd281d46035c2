// Package metrics provides Prometheus metrics collection for the pipeline
// engine, mirroring the teacher's infrastructure/metrics package structure.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector the service exposes.
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Pipeline execution metrics
	PipelinesExecutedTotal *prometheus.CounterVec
	PipelineDuration       *prometheus.HistogramVec
	NodesExecutedTotal     *prometheus.CounterVec
	PipelinesInFlight      prometheus.Gauge

	// Device metrics
	DeviceConnectionsTotal *prometheus.CounterVec
	DeviceFunctionErrors   *prometheus.CounterVec
	DevicesConnected       prometheus.Gauge
}

// New creates a Metrics instance and registers every collector against the
// default Prometheus registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer,
// allowing tests to use a scratch registry instead of the global default.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipelinecore_http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipelinecore_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipelinecore_http_requests_in_flight",
				Help: "Current number of in-flight HTTP requests.",
			},
		),

		PipelinesExecutedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipelinecore_pipelines_executed_total",
				Help: "Total number of pipeline executions, labeled by outcome.",
			},
			[]string{"success"},
		),
		PipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipelinecore_pipeline_duration_seconds",
				Help:    "Pipeline execution duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pipeline_id"},
		),
		NodesExecutedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipelinecore_nodes_executed_total",
				Help: "Total number of nodes executed, labeled by node type.",
			},
			[]string{"node_type"},
		),
		PipelinesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipelinecore_pipelines_in_flight",
				Help: "Current number of pipelines being executed.",
			},
		),

		DeviceConnectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipelinecore_device_connections_total",
				Help: "Total device connect attempts, labeled by outcome.",
			},
			[]string{"plugin_id", "outcome"},
		),
		DeviceFunctionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipelinecore_device_function_errors_total",
				Help: "Total device function execution errors.",
			},
			[]string{"plugin_id", "function_id"},
		),
		DevicesConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipelinecore_devices_connected",
				Help: "Current number of connected device instances.",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.RequestsTotal, m.RequestDuration, m.RequestsInFlight,
		m.PipelinesExecutedTotal, m.PipelineDuration, m.NodesExecutedTotal, m.PipelinesInFlight,
		m.DeviceConnectionsTotal, m.DeviceFunctionErrors, m.DevicesConnected,
	}
	for _, c := range collectors {
		registerer.MustRegister(c)
	}

	return m
}
