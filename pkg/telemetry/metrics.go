package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Metrics = struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	GatewayCalls      *prometheus.CounterVec
	GatewayLatency    *prometheus.HistogramVec
	Evaluations       *prometheus.CounterVec
	EvaluationScore   *prometheus.HistogramVec
	DirectoryAgents   prometheus.Gauge
	Channels          prometheus.Gauge
	ActiveEscrows     prometheus.Gauge
	MessagesTotal     *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	ActiveConnections prometheus.Gauge
	ErrorsTotal       *prometheus.CounterVec
}{
	OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clawnet",
		Name:      "operations_total",
		Help:      "Total coordinator operations by name and error kind.",
	}, []string{"op", "status"}),

	OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clawnet",
		Name:      "operation_duration_seconds",
		Help:      "Coordinator operation duration in seconds, gateway time included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"}),

	GatewayCalls: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clawnet",
		Name:      "gateway_calls_total",
		Help:      "Total blockchain gateway calls by method and status.",
	}, []string{"method", "status"}),

	GatewayLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clawnet",
		Name:      "gateway_latency_seconds",
		Help:      "Blockchain gateway round trip latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method"}),

	Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clawnet",
		Name:      "evaluations_total",
		Help:      "Total evaluator runs by evaluator and categorical outcome.",
	}, []string{"evaluator", "outcome"}),

	EvaluationScore: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clawnet",
		Name:      "evaluation_score",
		Help:      "Distribution of normalized evaluator scores.",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
	}, []string{"evaluator"}),

	DirectoryAgents: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "clawnet",
		Name:      "directory_agents",
		Help:      "Number of remote agents cached in the directory.",
	}),

	Channels: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "clawnet",
		Name:      "channels",
		Help:      "Number of channels in the registry.",
	}),

	ActiveEscrows: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "clawnet",
		Name:      "active_escrows",
		Help:      "Number of escrows in created or funded state.",
	}),

	MessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clawnet",
		Name:      "messages_total",
		Help:      "Total messages appended to the log by type.",
	}, []string{"type"}),

	HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clawnet",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by route and status code.",
	}, []string{"route", "code"}),

	ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "clawnet",
		Name:      "active_websocket_connections",
		Help:      "Number of active event stream connections.",
	}),

	ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clawnet",
		Name:      "errors_total",
		Help:      "Total errors by component.",
	}, []string{"component"}),
}
