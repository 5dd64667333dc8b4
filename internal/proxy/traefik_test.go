package proxy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"convoy/internal/core"
)

func sampleTable() *core.RoutingTable {
	return &core.RoutingTable{
		SecurePort: 8443,
		Rows: []core.Row{
			{
				Entrypoint:  core.EntrypointHTTPS,
				PathPrefix:  "/api",
				Service:     "api",
				Target:      core.Endpoint{Host: "api", Port: 5000},
				Middlewares: []string{core.MiddlewareStripPrefix},
			},
			{
				Entrypoint:  core.EntrypointHTTP,
				PathPrefix:  "/api",
				Service:     "api",
				Target:      core.Endpoint{Host: "api", Port: 5000},
				Middlewares: []string{core.MiddlewareRedirectToSecure},
			},
			{
				Entrypoint: core.EntrypointHTTP,
				PathPrefix: "/dashboard",
				Service:    "dash",
				Target:     core.Endpoint{Host: "dash", Port: 8000},
			},
		},
	}
}

func TestRenderStructure(t *testing.T) {
	data, err := Render(sampleTable())
	require.NoError(t, err)

	var doc struct {
		HTTP struct {
			Routers map[string]struct {
				Rule        string   `yaml:"rule"`
				EntryPoints []string `yaml:"entryPoints"`
				Priority    int      `yaml:"priority"`
				Service     string   `yaml:"service"`
				Middlewares []string `yaml:"middlewares"`
			} `yaml:"routers"`
			Middlewares map[string]map[string]map[string]any `yaml:"middlewares"`
			Services    map[string]struct {
				LoadBalancer struct {
					Servers []struct {
						URL string `yaml:"url"`
					} `yaml:"servers"`
				} `yaml:"loadBalancer"`
			} `yaml:"services"`
		} `yaml:"http"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))

	require.Len(t, doc.HTTP.Routers, 3)

	secure := doc.HTTP.Routers["api-websecure"]
	assert.Equal(t, "PathPrefix(`/api`)", secure.Rule)
	assert.Equal(t, []string{"websecure"}, secure.EntryPoints)
	assert.Equal(t, "api", secure.Service)

	plain := doc.HTTP.Routers["api-web"]
	assert.Greater(t, secure.Priority, plain.Priority,
		"secure row must outrank its plain counterpart")
	require.Len(t, plain.Middlewares, 1)

	redirect := doc.HTTP.Middlewares[plain.Middlewares[0]]
	require.Contains(t, redirect, "redirectScheme")
	assert.Equal(t, "https", redirect["redirectScheme"]["scheme"])
	assert.Equal(t, "8443", redirect["redirectScheme"]["port"])

	api := doc.HTTP.Services["api"]
	require.Len(t, api.LoadBalancer.Servers, 1)
	assert.Equal(t, "http://api:5000", api.LoadBalancer.Servers[0].URL)
}

func TestRenderRowOrderEncodedAsPriority(t *testing.T) {
	data, err := Render(sampleTable())
	require.NoError(t, err)

	var doc struct {
		HTTP struct {
			Routers map[string]struct {
				Priority int `yaml:"priority"`
			} `yaml:"routers"`
		} `yaml:"http"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))

	assert.Greater(t, doc.HTTP.Routers["api-websecure"].Priority, doc.HTTP.Routers["api-web"].Priority)
	assert.Greater(t, doc.HTTP.Routers["api-web"].Priority, doc.HTTP.Routers["dashboard-web"].Priority)
}

func TestRenderByteIdentical(t *testing.T) {
	first, err := Render(sampleTable())
	require.NoError(t, err)
	second, err := Render(sampleTable())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFileApplierWritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynamic", "convoy.yml")
	applier := NewFileApplier(path, zerolog.Nop())

	require.NoError(t, applier.Apply(context.Background(), sampleTable()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "PathPrefix")

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not linger")
}
