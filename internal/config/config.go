package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the tool's own configuration, as opposed to the deployment
// descriptor which describes the services being deployed.
type Config struct {
	// ProxyConfigPath is where the compiled routing table is written as
	// traefik dynamic configuration.
	ProxyConfigPath string `yaml:"proxy_config_path"`
	// StatusPort is the port of the read-only status HTTP server.
	StatusPort int `yaml:"status_port"`
	// ServerAddress is the public address DNS records point at.
	ServerAddress string `yaml:"server_address"`
	// ProbeHost is the address managed-service readiness probes dial,
	// since published container ports are bound there.
	ProbeHost string `yaml:"probe_host"`
	// Network is the container network services are attached to.
	Network string `yaml:"network"`

	Cloudflare CloudflareConfig `yaml:"cloudflare"`
}

// CloudflareConfig controls optional DNS registration of the deployment's
// entrypoint host.
type CloudflareConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIToken string `yaml:"api_token"`
	ZoneID   string `yaml:"zone_id"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		ProxyConfigPath: "/etc/traefik/dynamic/convoy.yml",
		StatusPort:      8081,
		ServerAddress:   "localhost",
		ProbeHost:       "127.0.0.1",
		Network:         "convoy",
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// CONVOY_* environment overrides, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	overrideFromEnv(&cfg)
	return cfg, nil
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(cfg *Config) {
	if val := os.Getenv("CONVOY_PROXY_CONFIG"); val != "" {
		cfg.ProxyConfigPath = val
	}
	if val := os.Getenv("CONVOY_STATUS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.StatusPort = port
		}
	}
	if val := os.Getenv("CONVOY_SERVER_ADDRESS"); val != "" {
		cfg.ServerAddress = val
	}
	if val := os.Getenv("CONVOY_PROBE_HOST"); val != "" {
		cfg.ProbeHost = val
	}
	if val := os.Getenv("CONVOY_NETWORK"); val != "" {
		cfg.Network = val
	}
	if val := os.Getenv("CONVOY_CLOUDFLARE_ENABLED"); val != "" {
		cfg.Cloudflare.Enabled = strings.EqualFold(val, "true")
	}
	if val := os.Getenv("CONVOY_CLOUDFLARE_API_TOKEN"); val != "" {
		cfg.Cloudflare.APIToken = val
	}
	if val := os.Getenv("CONVOY_CLOUDFLARE_ZONE_ID"); val != "" {
		cfg.Cloudflare.ZoneID = val
	}
}
