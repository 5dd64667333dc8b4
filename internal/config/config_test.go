package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8081, cfg.StatusPort)
	assert.Equal(t, "127.0.0.1", cfg.ProbeHost)
	assert.Equal(t, "convoy", cfg.Network)
	assert.False(t, cfg.Cloudflare.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convoy.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
proxy_config_path: /tmp/dynamic.yml
status_port: 9999
cloudflare:
  enabled: true
  zone_id: abc123
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/dynamic.yml", cfg.ProxyConfigPath)
	assert.Equal(t, 9999, cfg.StatusPort)
	assert.True(t, cfg.Cloudflare.Enabled)
	assert.Equal(t, "abc123", cfg.Cloudflare.ZoneID)
	// untouched fields keep defaults
	assert.Equal(t, "127.0.0.1", cfg.ProbeHost)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yml")
	require.Error(t, err)
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("CONVOY_STATUS_PORT", "7777")
	t.Setenv("CONVOY_PROBE_HOST", "10.0.0.5")
	t.Setenv("CONVOY_CLOUDFLARE_ENABLED", "TRUE")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.StatusPort)
	assert.Equal(t, "10.0.0.5", cfg.ProbeHost)
	assert.True(t, cfg.Cloudflare.Enabled)
}

func TestOverrideFromEnvBadInt(t *testing.T) {
	t.Setenv("CONVOY_STATUS_PORT", "not-a-port")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().StatusPort, cfg.StatusPort)
}
