package deploy

import (
	"sync"

	"convoy/internal/core"
	"convoy/internal/graph"
)

// Handle is the live view of a deployment: which services are up, in which
// batch they started, and the routing table that was applied. The status
// server reads it; the driver writes it.
type Handle struct {
	mu     sync.RWMutex
	graph  *graph.Graph
	batch  map[string]int
	order  []string // batch order, then name order
	states map[string]*serviceState
	table  *core.RoutingTable
}

type serviceState struct {
	containerID string
	state       string
}

func newHandle(g *graph.Graph, batches [][]*core.Service) *Handle {
	h := &Handle{
		graph:  g,
		batch:  make(map[string]int),
		states: make(map[string]*serviceState),
	}
	for i, batch := range batches {
		for _, svc := range batch {
			h.batch[svc.Name] = i
			h.order = append(h.order, svc.Name)
			h.states[svc.Name] = &serviceState{state: core.StatePending}
		}
	}
	return h
}

func (h *Handle) setRunning(name, containerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states[name].containerID = containerID
	h.states[name].state = core.StateRunning
}

func (h *Handle) setFailed(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states[name].state = core.StateFailed
}

func (h *Handle) setTable(table *core.RoutingTable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.table = table
}

// Status returns a snapshot of every service, in batch order.
func (h *Handle) Status() []core.ServiceStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]core.ServiceStatus, 0, len(h.order))
	for _, name := range h.order {
		svc := h.graph.Service(name)
		st := h.states[name]
		out = append(out, core.ServiceStatus{
			Name:        name,
			Image:       svc.Image,
			Batch:       h.batch[name],
			ContainerID: st.containerID,
			State:       st.state,
		})
	}
	return out
}

// Routes returns the applied routing table, or nil if the deployment never
// got that far.
func (h *Handle) Routes() *core.RoutingTable {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.table
}
