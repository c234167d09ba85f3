// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nnfix"

var (
	// IdentifyCalls counts identification calls by outcome (ok, error).
	IdentifyCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identify_calls_total",
			Help:      "Language identification calls.",
		},
		[]string{"outcome"},
	)

	// CorrectCalls counts correction calls by outcome (changed, unchanged, error).
	CorrectCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correct_calls_total",
			Help:      "Text unit correction calls.",
		},
		[]string{"outcome"},
	)

	CorrectInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "correct_in_flight",
			Help:      "Correction calls currently waiting on the remote service.",
		},
	)

	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Auto-detection gate outcomes by final state.",
		},
		[]string{"state"},
	)

	// Units counts processed text units by result.
	Units = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Text units processed by correction runs.",
		},
		[]string{"result"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of correction runs.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Requests served by the trigger API.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of trigger API requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
