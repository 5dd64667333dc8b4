// Package deploy implements the deployment driver: it builds the service
// graph, brings services up batch by batch behind their dependency gates,
// and hands the compiled routing table to the reverse proxy.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"convoy/internal/core"
	"convoy/internal/gate"
	"convoy/internal/graph"
	"convoy/internal/metrics"
	"convoy/internal/routing"
)

// Registrar publishes the deployment's entrypoint host in DNS. The dns
// package provides the Cloudflare implementation.
type Registrar interface {
	EnsureRecord(ctx context.Context, host string) error
	DeleteRecord(ctx context.Context, host string) error
}

// Driver is the top-level orchestrator.
type Driver struct {
	runtime  core.Runtime
	gate     *gate.Gate
	compiler *routing.Compiler
	applier  core.ProxyApplier
	log      zerolog.Logger

	registrar Registrar
	entryHost string
}

// NewDriver creates a deployment driver.
func NewDriver(runtime core.Runtime, g *gate.Gate, compiler *routing.Compiler, applier core.ProxyApplier, logger zerolog.Logger) *Driver {
	return &Driver{
		runtime:  runtime,
		gate:     g,
		compiler: compiler,
		applier:  applier,
		log:      logger.With().Str("component", "deploy").Logger(),
	}
}

// SetRegistrar enables DNS registration of the entrypoint host around
// deploys and teardowns.
func (d *Driver) SetRegistrar(r Registrar, host string) {
	d.registrar = r
	d.entryHost = host
}

// Deploy brings up the declared services in dependency order and applies the
// compiled routing table. Configuration defects (bad graph, route conflicts)
// fail before any container starts. If a service fails its gate or its
// start, the remaining startups are aborted and the returned DeployError
// names the failed services; batches already fully started keep running, and
// the partial handle is returned alongside the error so the caller can
// inspect or tear down what did start.
func (d *Driver) Deploy(ctx context.Context, services []*core.Service, probeHost string) (*Handle, error) {
	g, err := graph.Build(services, probeHost)
	if err != nil {
		metrics.DeploysTotal.WithLabelValues("config_error").Inc()
		return nil, err
	}

	// Compile up front: an ambiguous routing table must never cost a
	// container start.
	table, err := d.compiler.Compile(g.Services())
	if err != nil {
		metrics.DeploysTotal.WithLabelValues("config_error").Inc()
		return nil, err
	}

	batches := g.TopologicalBatches()
	handle := newHandle(g, batches)
	d.log.Info().Int("services", len(services)).Int("batches", len(batches)).Msg("starting deployment")

	for i, batch := range batches {
		if err := d.startBatch(ctx, g, handle, i, batch); err != nil {
			metrics.DeploysTotal.WithLabelValues("failure").Inc()
			return handle, err
		}
		d.log.Info().Int("batch", i).Int("services", len(batch)).Msg("batch running")
	}

	if d.registrar != nil && d.entryHost != "" {
		if err := d.registrar.EnsureRecord(ctx, d.entryHost); err != nil {
			metrics.DeploysTotal.WithLabelValues("failure").Inc()
			return handle, fmt.Errorf("failed to register entrypoint host: %w", err)
		}
	}

	if err := d.applier.Apply(ctx, table); err != nil {
		metrics.DeploysTotal.WithLabelValues("failure").Inc()
		return handle, fmt.Errorf("failed to apply routing table: %w", err)
	}
	handle.setTable(table)

	metrics.DeploysTotal.WithLabelValues("success").Inc()
	d.log.Info().Msg("deployment complete")
	return handle, nil
}

// startBatch gates and starts every service of one batch concurrently. The
// next batch is never entered unless every member reports running. On
// failure, in-flight sibling gate waits are cancelled promptly through the
// group context.
func (d *Driver) startBatch(ctx context.Context, g *graph.Graph, handle *Handle, batch int, services []*core.Service) error {
	eg, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	failed := make(map[string]error)

	for _, svc := range services {
		svc := svc
		eg.Go(func() error {
			if err := d.gate.Await(gctx, svc.Name, g.Dependencies(svc.Name)); err != nil {
				if errors.Is(err, context.Canceled) && gctx.Err() != nil {
					// aborted because a sibling failed, not a failure itself
					return err
				}
				handle.setFailed(svc.Name)
				mu.Lock()
				failed[svc.Name] = err
				mu.Unlock()
				return err
			}

			id, err := d.runtime.Start(gctx, svc)
			if err != nil {
				if errors.Is(err, context.Canceled) && gctx.Err() != nil {
					return err
				}
				startErr := &core.StartError{Service: svc.Name, Err: err}
				handle.setFailed(svc.Name)
				mu.Lock()
				failed[svc.Name] = startErr
				mu.Unlock()
				return startErr
			}

			metrics.ServicesStarted.Inc()
			handle.setRunning(svc.Name, id)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		if len(failed) == 0 {
			// only cancellation bubbled up (parent ctx ended)
			return err
		}
		deployErr := &core.DeployError{Failed: failed}
		d.log.Error().Int("batch", batch).Strs("services", deployErr.Services()).Msg("batch failed")
		return deployErr
	}
	return nil
}

// Teardown stops services in reverse batch order and removes the entrypoint
// DNS record. Stop failures are collected rather than aborting the sweep.
func (d *Driver) Teardown(ctx context.Context, g *graph.Graph) error {
	batches := g.TopologicalBatches()
	var errs []error
	for i := len(batches) - 1; i >= 0; i-- {
		for _, svc := range batches[i] {
			if err := d.runtime.Stop(ctx, svc.Name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if d.registrar != nil && d.entryHost != "" {
		if err := d.registrar.DeleteRecord(ctx, d.entryHost); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("teardown incomplete: %w", errors.Join(errs...))
	}
	d.log.Info().Msg("teardown complete")
	return nil
}

// Restart restarts every service's container in dependency order without
// re-pulling images or recompiling routes.
func (d *Driver) Restart(ctx context.Context, g *graph.Graph) error {
	for _, batch := range g.TopologicalBatches() {
		for _, svc := range batch {
			if err := d.runtime.Restart(ctx, svc.Name); err != nil {
				return err
			}
		}
	}
	d.log.Info().Msg("restart complete")
	return nil
}
