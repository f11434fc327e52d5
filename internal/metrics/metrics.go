// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal counts probe attempts by phase, packet variant and result
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uoaprobe_attempts_total",
			Help: "Total number of probe attempts",
		},
		[]string{"phase", "variant", "result"},
	)

	// AttemptLatencySeconds measures time from send to verdict
	AttemptLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uoaprobe_attempt_latency_seconds",
			Help:    "Latency of probe attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
		},
		[]string{"mode"},
	)

	// ScenariosTotal counts finished scenarios by group and final status
	ScenariosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uoaprobe_scenarios_total",
			Help: "Total number of finished scenarios",
		},
		[]string{"group", "status"},
	)

	// EchoDatagramsTotal counts datagrams answered by the echo service
	EchoDatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uoaprobe_echo_datagrams_total",
			Help: "Total number of datagrams answered by the echo service",
		},
		[]string{"family"},
	)

	// ResolverLookupsTotal counts real address lookups by outcome
	ResolverLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uoaprobe_resolver_lookups_total",
			Help: "Total number of real address lookups",
		},
		[]string{"outcome"},
	)
)

// Resolver lookup outcomes
const (
	LookupResolved = "resolved"
	LookupMissing  = "missing"
	LookupFailed   = "failed"
)
