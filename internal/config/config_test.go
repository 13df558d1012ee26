package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/gridwire/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultServiceConfig()
	require.NoError(t, cfg.Validate())

	c := cfg.Circuit()
	assert.Equal(t, cfg.ListenAddr, c.ListenAddr)
	assert.Equal(t, 5*time.Second, c.WriteTimeout)
	assert.Equal(t, time.Minute, c.PeerIdleAfter)
	assert.Equal(t, 128*1024, cfg.Limits().MaxDatagramSize)
}

func TestValidateCollectsErrors(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultServiceConfig()
	cfg.Node = " "
	cfg.ListenAddr = "no-port"
	cfg.ReadBufferSize = 10
	cfg.LogLevel = "loud"
	cfg.CapturePath = "captures.db"
	cfg.CaptureBucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"node is required", "listen_addr", "read_buffer_size", "log_level", "capture_bucket"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, WriteTemplate(path, false))
	assert.Error(t, WriteTemplate(path, false))
	require.NoError(t, WriteTemplate(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultServiceConfig(), cfg)
}

func TestLoadOverridesAndRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
node = "sim-a"
listen_addr = "0.0.0.0:13005"
capture_path = "/var/lib/gridwire/captures.db"
respond_to_pings = false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sim-a", cfg.Node)
	assert.Equal(t, "0.0.0.0:13005", cfg.ListenAddr)
	assert.False(t, cfg.RespondToPings)
	assert.Equal(t, "circuit", cfg.CaptureBucket)
	assert.Equal(t, "127.0.0.1:9180", cfg.AdminAddr)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("nodes = \"x\"\n"), 0o644))
	_, err = Load(bad)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "config parse failed"))
}
