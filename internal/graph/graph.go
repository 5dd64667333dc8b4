// Package graph builds the service dependency graph from declared services,
// validates it, and computes the batched bring-up order.
package graph

import (
	"sort"
	"strconv"
	"strings"

	"convoy/internal/core"
)

// Graph is the validated set of services plus their resolved dependency
// edges. It is built once per deployment and read-only afterwards.
type Graph struct {
	services map[string]*core.Service
	names    []string // sorted, for deterministic iteration
	deps     map[string][]core.Dependency
	managed  map[string][]string // service -> managed dependency names
}

// Build validates the declared services and resolves their dependency edges.
// Managed dependencies probe probeHost (where the runtime publishes each
// service's port); external dependencies keep their declared host.
//
// Build fails with a ConfigError on duplicate names, unresolvable dependency
// references, and dependency cycles. A cycle is reported with the offending
// service names in order.
func Build(services []*core.Service, probeHost string) (*Graph, error) {
	g := &Graph{
		services: make(map[string]*core.Service, len(services)),
		deps:     make(map[string][]core.Dependency, len(services)),
		managed:  make(map[string][]string, len(services)),
	}

	var dups []string
	for _, svc := range services {
		if _, seen := g.services[svc.Name]; seen {
			dups = append(dups, svc.Name)
			continue
		}
		g.services[svc.Name] = svc
		g.names = append(g.names, svc.Name)
	}
	if len(dups) > 0 {
		return nil, &core.ConfigError{Reason: "duplicate service name", Names: dups}
	}
	sort.Strings(g.names)

	var unresolved []string
	for _, name := range g.names {
		svc := g.services[name]
		for _, raw := range svc.DependsOn {
			dep, ok := g.resolve(raw, probeHost)
			if !ok {
				unresolved = append(unresolved, name+" -> "+raw)
				continue
			}
			g.deps[name] = append(g.deps[name], dep)
			if dep.Service != "" {
				g.managed[name] = append(g.managed[name], dep.Service)
			}
		}
	}
	if len(unresolved) > 0 {
		return nil, &core.ConfigError{Reason: "unresolved dependency reference", Names: unresolved}
	}

	if cycle := g.findCycle(); len(cycle) > 0 {
		return nil, &core.ConfigError{Reason: "dependency cycle", Names: cycle}
	}

	return g, nil
}

// resolve turns a raw dependency declaration into an edge. Accepted forms:
// "name" (managed service, probes its declared port), "name:port" (managed
// service, explicit port), and "host:port" (external endpoint).
func (g *Graph) resolve(raw string, probeHost string) (core.Dependency, bool) {
	host := raw
	port := 0
	if idx := strings.LastIndex(raw, ":"); idx >= 0 {
		parsed, err := strconv.Atoi(raw[idx+1:])
		if err != nil || parsed < 1 || parsed > 65535 {
			return core.Dependency{}, false
		}
		host = raw[:idx]
		port = parsed
	}

	if target, ok := g.services[host]; ok {
		if port == 0 {
			port = target.Port
		}
		if port == 0 {
			// bare reference to a service that declares no port
			return core.Dependency{}, false
		}
		return core.Dependency{Raw: raw, Service: host, Endpoint: core.Endpoint{Host: probeHost, Port: port}}, true
	}

	if port == 0 {
		// an unmanaged name with no port is not probeable
		return core.Dependency{}, false
	}
	return core.Dependency{Raw: raw, Endpoint: core.Endpoint{Host: host, Port: port}}, true
}

// findCycle runs a DFS over managed edges and returns the first cycle found
// as the service names along it, or nil if the graph is acyclic.
func (g *Graph) findCycle() []string {
	const (
		white = iota // unvisited
		gray         // on the current path
		black        // done
	)
	color := make(map[string]int, len(g.names))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		stack = append(stack, name)
		for _, dep := range g.managed[name] {
			switch color[dep] {
			case gray:
				// back edge: the cycle is the stack suffix starting at dep
				for i, on := range stack {
					if on == dep {
						cycle = append(cycle, stack[i:]...)
						break
					}
				}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for _, name := range g.names {
		if color[name] == white && visit(name) {
			return cycle
		}
	}
	return nil
}

// Service returns the named service, or nil.
func (g *Graph) Service(name string) *core.Service {
	return g.services[name]
}

// Services returns all services in name order.
func (g *Graph) Services() []*core.Service {
	out := make([]*core.Service, 0, len(g.names))
	for _, name := range g.names {
		out = append(out, g.services[name])
	}
	return out
}

// Dependencies returns the resolved dependency edges of the named service.
func (g *Graph) Dependencies(name string) []core.Dependency {
	return g.deps[name]
}

// TopologicalBatches returns services grouped into startable batches: every
// service's managed dependencies live in strictly earlier batches, and
// services within one batch have no ordering constraint relative to each
// other. Batches and their members are deterministic (name order).
func (g *Graph) TopologicalBatches() [][]*core.Service {
	if len(g.names) == 0 {
		return nil
	}
	level := make(map[string]int, len(g.names))
	var levelOf func(name string) int
	levelOf = func(name string) int {
		if lvl, ok := level[name]; ok {
			return lvl
		}
		lvl := 0
		for _, dep := range g.managed[name] {
			if l := levelOf(dep) + 1; l > lvl {
				lvl = l
			}
		}
		level[name] = lvl
		return lvl
	}

	maxLevel := 0
	for _, name := range g.names {
		if l := levelOf(name); l > maxLevel {
			maxLevel = l
		}
	}

	batches := make([][]*core.Service, maxLevel+1)
	for _, name := range g.names {
		lvl := level[name]
		batches[lvl] = append(batches[lvl], g.services[name])
	}
	return batches
}
