// Package metrics exposes convoy's prometheus collectors. They are
// registered on the default registry and served by the status server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeploysTotal counts finished deployments by outcome.
	DeploysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convoy_deploys_total",
		Help: "Finished deployments by outcome.",
	}, []string{"outcome"})

	// ProbeAttempts counts individual readiness probe connection attempts.
	ProbeAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convoy_probe_attempts_total",
		Help: "Readiness probe connection attempts.",
	})

	// GateWaitSeconds observes how long services wait on their dependency
	// gates.
	GateWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "convoy_gate_wait_seconds",
		Help:    "Time services spend waiting for their dependencies.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// ServicesStarted counts containers started by the driver.
	ServicesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convoy_services_started_total",
		Help: "Containers started by the deployment driver.",
	})
)
