package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "memory", cfg.Bus.Driver)
	assert.Equal(t, "kick", cfg.Backpressure)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 2*time.Second, cfg.CleanupTimeout)
	assert.NotEmpty(t, cfg.NodeID)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers[0].URLs)
}

func TestLoadFrom_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := `
mode: debug
port: 9000
backpressure: drop
node_id: node-1
allowed_origins:
  - https://app.example.com
rate_limit:
  limit: 5
  interval: 2s
bus:
  driver: nats
  url: nats://bus:4222
ice_servers:
  - urls: ["turn:turn.example.com:3478"]
    username: u
    credential: p
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("RELAY_PORT", "9100")
	t.Setenv("RELAY_BUS_BUFFER", "16")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9100, cfg.Port, "environment wins over the file")
	assert.Equal(t, "drop", cfg.Backpressure)
	assert.Equal(t, "node-1", cfg.NodeID)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, RateLimit{Limit: 5, Interval: 2 * time.Second}, cfg.RateLimit)
	assert.Equal(t, Bus{Driver: "nats", URL: "nats://bus:4222", Buffer: 16}, cfg.Bus)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, "u", cfg.ICEServers[0].Username)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:           8080,
			ReadLimit:      1024,
			PingPeriod:     time.Second,
			PongWait:       2 * time.Second,
			WriteWait:      time.Second,
			SendBuffer:     8,
			RateLimit:      RateLimit{Limit: 10, Interval: time.Second},
			Backpressure:   "kick",
			CleanupTimeout: time.Second,
			Bus:            Bus{Driver: "memory", Buffer: 8},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"driver", func(c *Config) { c.Bus.Driver = "kafka" }},
		{"policy", func(c *Config) { c.Backpressure = "block" }},
		{"ping after pong", func(c *Config) { c.PingPeriod = 3 * time.Second }},
		{"cleanup timeout", func(c *Config) { c.CleanupTimeout = 0 }},
		{"send buffer", func(c *Config) { c.SendBuffer = 0 }},
		{"rate limit", func(c *Config) { c.RateLimit.Limit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
