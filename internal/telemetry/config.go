// Package telemetry provides OpenTelemetry instrumentation for octoquest.
package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// Config holds telemetry configuration. Telemetry is off by default; when
// disabled every instrumented component falls back to no-op tracers and
// meters.
type Config struct {
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP collector address, host:port.
	Endpoint string `koanf:"endpoint"`

	// Protocol selects the OTLP transport: "grpc" or "http/protobuf".
	Protocol string `koanf:"protocol"`

	// Insecure disables TLS. Only allowed for local endpoints.
	Insecure bool `koanf:"insecure"`

	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`

	// SampleRate is the trace sampling ratio, 0.0 to 1.0.
	SampleRate float64 `koanf:"sample_rate"`

	// MetricInterval is the metric export period.
	MetricInterval time.Duration `koanf:"metric_interval"`

	// ShutdownTimeout bounds the final flush on shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// NewDefaultConfig returns defaults suitable for a local collector.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		Endpoint:        "localhost:4317",
		Protocol:        "grpc",
		Insecure:        true,
		ServiceName:     "octoquest",
		ServiceVersion:  "0.1.0",
		SampleRate:      1.0,
		MetricInterval:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	defaults := NewDefaultConfig()
	if c.Endpoint == "" {
		c.Endpoint = defaults.Endpoint
	}
	if c.Protocol == "" {
		c.Protocol = defaults.Protocol
	}
	if c.ServiceName == "" {
		c.ServiceName = defaults.ServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = defaults.ServiceVersion
	}
	if c.SampleRate == 0 {
		c.SampleRate = defaults.SampleRate
	}
	if c.MetricInterval == 0 {
		c.MetricInterval = defaults.MetricInterval
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
}

// Validate checks configuration for errors. A disabled config is always
// valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.Protocol != "grpc" && c.Protocol != "http/protobuf" {
		return fmt.Errorf("protocol must be 'grpc' or 'http/protobuf', got %q", c.Protocol)
	}
	if c.Insecure && !isLocalEndpoint(c.Endpoint) {
		return fmt.Errorf("insecure connections are only allowed to local endpoints, got %q", c.Endpoint)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0 and 1, got %f", c.SampleRate)
	}
	if c.MetricInterval <= 0 {
		return fmt.Errorf("metric_interval must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	return nil
}

// isLocalEndpoint reports whether the endpoint points at this machine.
func isLocalEndpoint(endpoint string) bool {
	host := endpoint

	if strings.HasPrefix(host, "[") {
		// Bracketed IPv6, with or without port.
		if idx := strings.Index(host, "]:"); idx != -1 {
			host = host[1:idx]
		} else if strings.HasSuffix(host, "]") {
			host = host[1 : len(host)-1]
		}
	} else if strings.Count(host, ":") == 1 {
		if idx := strings.LastIndex(host, ":"); idx != -1 {
			host = host[:idx]
		}
	}

	return host == "localhost" ||
		host == "::1" ||
		strings.HasPrefix(host, "127.") ||
		strings.HasPrefix(endpoint, "::1")
}
