package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "disabled is always valid",
			mutate: func(c *Config) { c.Enabled = false; c.Endpoint = "" },
		},
		{
			name:   "enabled with defaults",
			mutate: func(c *Config) { c.Enabled = true },
		},
		{
			name:    "missing endpoint",
			mutate:  func(c *Config) { c.Enabled = true; c.Endpoint = "" },
			wantErr: "endpoint is required",
		},
		{
			name:    "bad protocol",
			mutate:  func(c *Config) { c.Enabled = true; c.Protocol = "thrift" },
			wantErr: "protocol",
		},
		{
			name: "insecure remote endpoint",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Endpoint = "collector.example.com:4317"
				c.Insecure = true
			},
			wantErr: "local endpoints",
		},
		{
			name: "secure remote endpoint",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Endpoint = "collector.example.com:4317"
				c.Insecure = false
			},
		},
		{
			name:    "sample rate out of range",
			mutate:  func(c *Config) { c.Enabled = true; c.SampleRate = 1.5 },
			wantErr: "sample_rate",
		},
		{
			name:    "nonpositive metric interval",
			mutate:  func(c *Config) { c.Enabled = true; c.MetricInterval = -time.Second },
			wantErr: "metric_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     bool
	}{
		{"localhost:4317", true},
		{"127.0.0.1:4317", true},
		{"127.0.0.53:4317", true},
		{"[::1]:4317", true},
		{"[::1]", true},
		{"::1", true},
		{"collector.example.com:4317", false},
		{"10.0.0.5:4317", false},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, isLocalEndpoint(tt.endpoint))
		})
	}
}

func TestDisabledTelemetryIsNoop(t *testing.T) {
	cfg := NewDefaultConfig()
	tel, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *Telemetry
	assert.False(t, tel.Enabled())
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "collector.example.com:4317"
	cfg.Insecure = true

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, "octoquest", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 15*time.Second, cfg.MetricInterval)
}
