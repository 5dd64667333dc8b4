package core

import (
	"net"
	"strconv"
)

// Entrypoint names as the reverse proxy knows them.
const (
	EntrypointHTTP  = "web"
	EntrypointHTTPS = "websecure"
)

// Middleware names accepted in route intents. Anything else is rejected at
// compile time rather than passed through to the proxy.
const (
	MiddlewareStripPrefix      = "strip-prefix"
	MiddlewareRedirectToSecure = "redirect-to-secure"
	MiddlewareBodySizeLimit    = "body-size-limit"
)

// Endpoint is a reachability target. It is not necessarily a managed
// service; a dependency may point at an externally hosted database.
type Endpoint struct {
	Host string
	Port int
}

// Address returns the endpoint in host:port form.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Address()
}

// Service is one managed unit of deployment as declared in the descriptor.
type Service struct {
	Name      string
	Image     string
	Port      int
	Env       map[string]string
	Volumes   []string
	DependsOn []string // raw dependency declarations: "db", "db:5432", "ext.example.com:443"
	Routes    []RouteIntent
}

// Dependency is a resolved dependency edge from a service to an endpoint.
// Service is the managed target's name, or empty for an external endpoint.
type Dependency struct {
	Raw      string
	Service  string
	Endpoint Endpoint
}

// RouteIntent is a service's declared desire to be exposed under a path
// prefix through the reverse proxy. Secure is an explicit field: precedence
// between the secure and plain variants of a prefix never depends on
// declaration order.
type RouteIntent struct {
	Service     string
	PathPrefix  string
	Secure      bool
	Middlewares []string
	Priority    int
}

// Row is one compiled routing rule. The proxy evaluates rows in table order
// and takes the first match.
type Row struct {
	Entrypoint  string
	PathPrefix  string
	Service     string
	Target      Endpoint
	Middlewares []string
}

// RoutingTable is the compiled routing artifact, rebuilt on every deployment.
// SecurePort is the externally visible TLS port that redirect-to-secure
// middlewares point at.
type RoutingTable struct {
	SecurePort int
	Rows       []Row
}

// ServiceStatus is a read-only snapshot of one service's deployment state.
type ServiceStatus struct {
	Name        string `json:"name"`
	Image       string `json:"image"`
	Batch       int    `json:"batch"`
	ContainerID string `json:"container_id,omitempty"`
	State       string `json:"state"`
}

// Service lifecycle states reported by the driver.
const (
	StatePending = "pending"
	StateRunning = "running"
	StateFailed  = "failed"
	StateStopped = "stopped"
)
