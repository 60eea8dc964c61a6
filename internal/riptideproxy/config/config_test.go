package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
proxy:
  url: riptide.test
  ports:
    http: 80
    https: 443
  autostart: true
  compression: false
  autostart_restrict:
    - 192.168.1.0/24
engine: docker
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "riptide.test", cfg.Proxy.URL)
	assert.Equal(t, 80, cfg.Proxy.Ports.HTTP)
	assert.Equal(t, 443, cfg.Proxy.Ports.HTTPS)
	assert.True(t, cfg.Proxy.Autostart)
	assert.Equal(t, []string{"192.168.1.0/24"}, cfg.Proxy.AutostartRestrict)
	assert.Equal(t, "docker", cfg.Engine)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := []Config{
		{},
		{Proxy: Proxy{URL: "x"}},
		{Proxy: Proxy{URL: "x", Ports: Ports{HTTP: 80}}},
		{Proxy: Proxy{URL: "x", Ports: Ports{HTTP: 80, HTTPS: -1}}, Engine: "docker"},
	}
	for _, c := range cases {
		require.Error(t, c.Validate())
	}
}
