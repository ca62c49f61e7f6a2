// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// FlowTurnsTotal counts interpreter turns by operation and reply kind.
	FlowTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_turns_total",
			Help: "Total flow interpreter turns",
		},
		[]string{"operation", "kind"},
	)

	// FlowTurnDuration tracks how long a turn takes, external calls included.
	FlowTurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flow_turn_duration_seconds",
			Help:    "Flow interpreter turn duration in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// FlowTransfersTotal counts hand-offs to human queues.
	FlowTransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_transfers_total",
			Help: "Total conversations transferred to a human queue",
		},
		[]string{"queue"},
	)

	// GatewayCallsTotal counts external ERP calls by shape and outcome.
	GatewayCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Total external action gateway calls",
		},
		[]string{"shape", "action", "outcome"},
	)

	// GatewayCallDuration tracks external ERP call latency.
	GatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "External action gateway call duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"shape"},
	)

	// VariableUpsertsTotal counts conversation variables written.
	VariableUpsertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_variable_upserts_total",
			Help: "Total conversation variable upserts",
		},
	)

	// NATSPublishedTotal counts records published to the conversations stream.
	NATSPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_published_total",
			Help: "Total records published to the conversations stream",
		},
		[]string{"kind"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTurn records metrics for one interpreter turn.
func RecordTurn(operation, kind string, duration float64) {
	FlowTurnsTotal.WithLabelValues(operation, kind).Inc()
	FlowTurnDuration.WithLabelValues(operation).Observe(duration)
}

// RecordGatewayCall records metrics for an external call.
func RecordGatewayCall(shape, action, outcome string, duration float64) {
	GatewayCallsTotal.WithLabelValues(shape, action, outcome).Inc()
	GatewayCallDuration.WithLabelValues(shape).Observe(duration)
}
