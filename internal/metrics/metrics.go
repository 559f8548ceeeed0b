package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchesTotal tracks finished dispatches per method, mode and outcome
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calldispatch_dispatches_total",
			Help: "Total number of dispatches by method, mode and outcome",
		},
		[]string{"method", "mode", "outcome"},
	)

	// DispatchErrorsTotal tracks failed dispatches by error kind
	DispatchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calldispatch_dispatch_errors_total",
			Help: "Total number of failed dispatches",
		},
		[]string{"kind"},
	)

	// FallbacksTotal tracks fallback steps taken by the dispatcher
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calldispatch_fallbacks_total",
			Help: "Total number of dispatch fallbacks",
		},
		[]string{"from", "to"},
	)

	// DispatchLatency tracks time from dispatch start to wallet handle
	DispatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calldispatch_dispatch_latency_seconds",
			Help:    "Dispatch latency in seconds, including wallet prompts",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)

	// CapabilityDetections tracks capability detection results and their source
	CapabilityDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calldispatch_capability_detections_total",
			Help: "Total number of capability detections",
		},
		[]string{"support", "source"},
	)

	// StatusTransitions tracks status tracker transitions
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calldispatch_status_transitions_total",
			Help: "Total number of status transitions",
		},
		[]string{"from", "to"},
	)

	// PollAttempts tracks confirmation poll attempts
	PollAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calldispatch_poll_attempts_total",
			Help: "Total number of confirmation poll attempts",
		},
		[]string{"poller", "result"},
	)

	// RPCCallsTotal tracks read RPC calls per chain and provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calldispatch_rpc_calls_total",
			Help: "Total number of read RPC calls",
		},
		[]string{"chain", "method"},
	)

	// RPCErrorsTotal tracks read RPC errors
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calldispatch_rpc_errors_total",
			Help: "Total number of read RPC errors",
		},
		[]string{"chain", "method"},
	)

	// RPCLatency tracks read RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calldispatch_rpc_latency_seconds",
			Help:    "Read RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "method"},
	)

	// DBConnectionPoolUsage tracks the percentage of open database connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "calldispatch_db_connection_pool_usage_percent",
			Help: "Percentage of the database connection pool in use",
		},
	)
)
