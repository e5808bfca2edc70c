package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "octoquest", cfg.Fields["service"])
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid console format",
			mutate: func(c *Config) { c.Format = "console" },
		},
		{
			name:    "bad format",
			mutate:  func(c *Config) { c.Format = "xml" },
			wantErr: "format must be",
		},
		{
			name:    "bad level",
			mutate:  func(c *Config) { c.Level = "verbose" },
			wantErr: "invalid level",
		},
		{
			name:    "negative caller skip",
			mutate:  func(c *Config) { c.Caller = CallerConfig{Enabled: true, Skip: -1} },
			wantErr: "caller skip",
		},
		{
			name:    "empty field value",
			mutate:  func(c *Config) { c.Fields = map[string]string{"env": ""} },
			wantErr: "empty value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = "debug"

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Debug("hello")
	assert.NoError(t, Sync(logger))
}

func TestNewLoggerNilConfigUsesDefaults(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewLoggerRejectsInvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "yaml"

	_, err := NewLogger(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNewTestLoggerCaptures(t *testing.T) {
	logger, logs := NewTestLogger()

	logger.Info("captured")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "captured", logs.All()[0].Message)
}
