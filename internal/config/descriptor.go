package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"convoy/internal/core"
)

// Default readiness gate tuning, used when the descriptor does not set its
// own.
const (
	DefaultProbeInterval = 2 * time.Second
	DefaultGateTimeout   = 60 * time.Second
)

// Descriptor is the deployment descriptor: the declarative document
// enumerating services, their wiring, and their route intents. Syntax is
// YAML; semantic validation (duplicate names, cycles, route overlaps) is the
// service graph's and route compiler's job.
type Descriptor struct {
	Name        string        `yaml:"name"`
	Network     string        `yaml:"network"`
	Entrypoints Entrypoints   `yaml:"entrypoints"`
	Readiness   Readiness     `yaml:"readiness"`
	Services    []ServiceSpec `yaml:"services"`
}

// Entrypoints describes the externally visible surface of the reverse proxy.
type Entrypoints struct {
	Host      string `yaml:"host"`
	HTTPPort  int    `yaml:"http_port"`
	HTTPSPort int    `yaml:"https_port"`
}

// Readiness tunes the dependency gate.
type Readiness struct {
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
}

// ServiceSpec is one service declaration.
type ServiceSpec struct {
	Name      string            `yaml:"name"`
	Image     string            `yaml:"image"`
	Port      int               `yaml:"port"`
	Env       map[string]string `yaml:"env"`
	Volumes   []string          `yaml:"volumes"`
	DependsOn []string          `yaml:"depends_on"`
	Routes    []RouteSpec       `yaml:"routes"`
}

// RouteSpec is one route intent declaration. Secure is explicit; the
// compiled precedence of secure over plain never depends on the order routes
// appear in the file.
type RouteSpec struct {
	PathPrefix  string   `yaml:"path_prefix"`
	Secure      bool     `yaml:"secure"`
	Middlewares []string `yaml:"middlewares"`
	Priority    int      `yaml:"priority"`
}

// Duration is a time.Duration that unmarshals from strings like "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoadDescriptor reads and structurally validates a deployment descriptor.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate rejects structurally incomplete descriptors before graph
// construction. A service is never partially defined: name and image are
// required, and a declared route needs a non-empty prefix.
func (d *Descriptor) Validate() error {
	if d.Entrypoints.HTTPPort == 0 {
		d.Entrypoints.HTTPPort = 80
	}
	if d.Entrypoints.HTTPSPort == 0 {
		d.Entrypoints.HTTPSPort = 443
	}
	var bad []string
	for i, svc := range d.Services {
		switch {
		case svc.Name == "":
			bad = append(bad, fmt.Sprintf("services[%d]: missing name", i))
		case svc.Image == "":
			bad = append(bad, fmt.Sprintf("%s: missing image", svc.Name))
		}
		for _, route := range svc.Routes {
			if route.PathPrefix == "" {
				bad = append(bad, fmt.Sprintf("%s: route with empty path_prefix", svc.Name))
			}
		}
	}
	if len(bad) > 0 {
		return &core.ConfigError{Reason: "invalid descriptor", Names: bad}
	}
	return nil
}

// ProbeInterval returns the descriptor's probe interval or the default.
func (d *Descriptor) ProbeInterval() time.Duration {
	if d.Readiness.Interval > 0 {
		return time.Duration(d.Readiness.Interval)
	}
	return DefaultProbeInterval
}

// GateTimeout returns the descriptor's gate timeout or the default.
func (d *Descriptor) GateTimeout() time.Duration {
	if d.Readiness.Timeout > 0 {
		return time.Duration(d.Readiness.Timeout)
	}
	return DefaultGateTimeout
}

// CoreServices converts the descriptor's service specs to domain services.
func (d *Descriptor) CoreServices() []*core.Service {
	services := make([]*core.Service, 0, len(d.Services))
	for _, spec := range d.Services {
		svc := &core.Service{
			Name:      spec.Name,
			Image:     spec.Image,
			Port:      spec.Port,
			Env:       spec.Env,
			Volumes:   spec.Volumes,
			DependsOn: spec.DependsOn,
		}
		for _, route := range spec.Routes {
			svc.Routes = append(svc.Routes, core.RouteIntent{
				Service:     spec.Name,
				PathPrefix:  route.PathPrefix,
				Secure:      route.Secure,
				Middlewares: route.Middlewares,
				Priority:    route.Priority,
			})
		}
		services = append(services, svc)
	}
	return services
}
