package core

import "context"

// Runtime starts and stops service processes. The Docker implementation
// lives in internal/runtime; tests substitute fakes.
type Runtime interface {
	// Start brings up the service's container and returns its runtime ID.
	Start(ctx context.Context, svc *Service) (string, error)
	// Stop stops and removes the named service's container.
	Stop(ctx context.Context, name string) error
	// Restart restarts the named service's container in place.
	Restart(ctx context.Context, name string) error
}

// ProxyApplier hands a compiled routing table to the external reverse proxy
// in whatever form it consumes.
type ProxyApplier interface {
	Apply(ctx context.Context, table *RoutingTable) error
}
