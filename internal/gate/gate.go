// Package gate blocks a service's startup until everything it depends on is
// reachable. It is the in-process replacement for the wait-for-it wrapper
// scripts that usually sit in front of each container's real entry command.
package gate

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"convoy/internal/core"
	"convoy/internal/metrics"
	"convoy/internal/probe"
)

// Gate awaits a service's dependency endpoints. All probes must succeed; a
// single global timeout bounds the whole wait, measured from the first
// attempt rather than per edge.
type Gate struct {
	prober   probe.Prober
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
}

// New creates a gate with the given probe interval and global timeout.
func New(prober probe.Prober, interval, timeout time.Duration, logger zerolog.Logger) *Gate {
	return &Gate{
		prober:   prober,
		interval: interval,
		timeout:  timeout,
		log:      logger.With().Str("component", "gate").Logger(),
	}
}

// Await probes every dependency endpoint concurrently and returns nil once
// all are reachable. If the timeout fires first it returns a ReadinessError
// naming the endpoints that were still unreachable. A cancelled ctx is
// reported as ctx.Err() so an aborted deployment is distinguishable from a
// timed-out one.
func (g *Gate) Await(ctx context.Context, service string, deps []core.Dependency) error {
	if len(deps) == 0 {
		return nil
	}

	start := time.Now()
	g.log.Info().Str("service", service).Int("dependencies", len(deps)).Msg("waiting for dependencies")

	// Sibling edges have no ordering requirement, so probe them all at once.
	// Each result slot is owned by exactly one goroutine.
	results := make([]error, len(deps))
	done := make(chan int, len(deps))
	for i, dep := range deps {
		go func(i int, ep core.Endpoint) {
			results[i] = g.prober.Wait(ctx, ep, g.interval, g.timeout)
			done <- i
		}(i, dep.Endpoint)
	}
	for range deps {
		<-done
	}

	metrics.GateWaitSeconds.Observe(time.Since(start).Seconds())

	// "db" and "db:5432" may resolve to the same endpoint; report it once.
	var failed []core.Endpoint
	seen := make(map[string]bool)
	for i, err := range results {
		if err != nil && !seen[deps[i].Endpoint.Address()] {
			seen[deps[i].Endpoint.Address()] = true
			failed = append(failed, deps[i].Endpoint)
		}
	}
	if len(failed) == 0 {
		g.log.Info().Str("service", service).Dur("waited", time.Since(start)).Msg("dependencies satisfied")
		return nil
	}

	if ctx.Err() != nil {
		// The deployment was aborted; the endpoints did not get their full
		// window, so a timeout verdict would be misleading.
		return ctx.Err()
	}

	sort.Slice(failed, func(i, j int) bool { return failed[i].Address() < failed[j].Address() })
	err := &core.ReadinessError{Service: service, Failed: failed, Timeout: g.timeout}
	g.log.Error().Str("service", service).Int("failed", len(failed)).Msg("dependencies not satisfied")
	return err
}
