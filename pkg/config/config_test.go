package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 62658, cfg.Port)
	assert.Equal(t, uint(100), cfg.Concurrency)
	assert.Equal(t, 15, cfg.ConnectTimeout)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boltserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: 0.0.0.0
port: 8080
loglevel: debug
concurrency: 10
file_server: http://files.internal:8140
icmp_probe: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint(10), cfg.Concurrency)
	assert.Equal(t, "http://files.internal:8140", cfg.FileServer)
	assert.True(t, cfg.ICMPProbe)
	// 没写的字段保持默认
	assert.Equal(t, 15, cfg.ConnectTimeout)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 70000\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
