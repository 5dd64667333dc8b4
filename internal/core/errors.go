package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ConfigError is a fatal descriptor defect detected before any container
// starts: a malformed service, a duplicate name, an unresolvable dependency
// reference, or a dependency cycle. Names carries the offending services in
// a meaningful order (for a cycle, the cycle path).
type ConfigError struct {
	Reason string
	Names  []string
}

func (e *ConfigError) Error() string {
	if len(e.Names) == 0 {
		return e.Reason
	}
	if e.Reason == "dependency cycle" {
		// a -> b -> a reads better than a list for cycles
		return fmt.Sprintf("dependency cycle: %s -> %s", strings.Join(e.Names, " -> "), e.Names[0])
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Names, ", "))
}

// RouteConflictError reports two route intents claiming the same
// (entrypoint, prefix) pair. Ambiguous ownership is a configuration defect,
// never resolved by declaration order.
type RouteConflictError struct {
	Entrypoint string
	PathPrefix string
	Services   []string
}

func (e *RouteConflictError) Error() string {
	return fmt.Sprintf("route conflict on %s %s: claimed by %s",
		e.Entrypoint, e.PathPrefix, strings.Join(e.Services, " and "))
}

// ReadinessError reports that a service's dependencies never became
// reachable within the gate's window. Failed names the endpoints that were
// still unreachable when the timeout fired.
type ReadinessError struct {
	Service string
	Failed  []Endpoint
	Timeout time.Duration
}

func (e *ReadinessError) Error() string {
	addrs := make([]string, len(e.Failed))
	for i, ep := range e.Failed {
		addrs[i] = ep.Address()
	}
	return fmt.Sprintf("service %s: dependencies not ready after %s: %s",
		e.Service, e.Timeout, strings.Join(addrs, ", "))
}

// StartError reports that the container runtime refused to start a service.
// It propagates exactly like a readiness timeout.
type StartError struct {
	Service string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("service %s: start failed: %v", e.Service, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// DeployError is the driver's structured failure: every service that failed
// its gate or start, with the underlying cause. Services already running
// from earlier batches are not part of it.
type DeployError struct {
	Failed map[string]error
}

func (e *DeployError) Error() string {
	names := e.Services()
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s (%v)", name, e.Failed[name])
	}
	return "deploy failed: " + strings.Join(parts, "; ")
}

// Services returns the failed service names in sorted order.
func (e *DeployError) Services() []string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
