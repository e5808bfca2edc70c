package ratelimit

import (
	"strings"
	"time"
)

// Category is a quota bucket for a class of API endpoints. GitHub meters
// each bucket separately.
type Category string

const (
	CategoryCore     Category = "core"
	CategorySearch   Category = "search"
	CategoryGraphQL  Category = "graphql"
	CategoryManifest Category = "integration_manifest"
)

// categoryLimit mirrors GitHub's published quota for a bucket.
type categoryLimit struct {
	limit  int
	window time.Duration
}

var categoryLimits = map[Category]categoryLimit{
	CategoryCore:     {limit: 5000, window: time.Hour},
	CategorySearch:   {limit: 30, window: time.Minute},
	CategoryGraphQL:  {limit: 5000, window: time.Hour},
	CategoryManifest: {limit: 5000, window: time.Hour},
}

// Categories returns the fixed set of quota buckets.
func Categories() []Category {
	return []Category{CategoryCore, CategorySearch, CategoryGraphQL, CategoryManifest}
}

// Categorize maps a request path to its quota bucket. Unrecognized paths
// fall into the core bucket.
func Categorize(path string) Category {
	switch {
	case path == "":
		return CategoryCore
	case strings.Contains(path, "/search/") || strings.HasPrefix(path, "search/"):
		return CategorySearch
	case strings.Contains(path, "graphql"):
		return CategoryGraphQL
	case strings.Contains(path, "app-manifests"):
		return CategoryManifest
	default:
		return CategoryCore
	}
}

// Config configures the limiter.
type Config struct {
	// Buffer is the number of remote quota units kept in reserve. When the
	// reported remaining count drops below it, calls wait for the reset.
	// Default: 100
	Buffer int `koanf:"buffer"`

	// WindowSize bounds each timestamp sequence. Default: 1000
	WindowSize int `koanf:"window_size"`

	// BurstThreshold caps requests inside BurstWindow. Default: 30
	BurstThreshold int `koanf:"burst_threshold"`

	// BurstWindow is the burst accounting span. Default: 1 minute
	BurstWindow time.Duration `koanf:"burst_window"`

	// InitialBackoff is the first backoff after a quota error.
	// Default: 1 second
	InitialBackoff time.Duration `koanf:"initial_backoff"`

	// MaxBackoff caps the computed backoff. Default: 5 minutes
	MaxBackoff time.Duration `koanf:"max_backoff"`

	// BackoffMultiplier is the exponential backoff base. Default: 2
	BackoffMultiplier float64 `koanf:"backoff_multiplier"`

	// QuotaCacheTTL is how long a fetched quota snapshot stays fresh.
	// Default: 60 seconds
	QuotaCacheTTL time.Duration `koanf:"quota_cache_ttl"`

	// PredictionWindow is the sample span for predictive throttling.
	// Default: 5 minutes
	PredictionWindow time.Duration `koanf:"prediction_window"`

	// MinPredictionSamples is the minimum tracked request count before
	// prediction kicks in. Default: 10
	MinPredictionSamples int `koanf:"min_prediction_samples"`

	// MaxAttempts is the total attempt budget in Do, shared between quota
	// and transient failures. Default: 3
	MaxAttempts int `koanf:"max_attempts"`

	// RetryWaitMin is the floor for the transient-error retry wait.
	// Default: 4 seconds
	RetryWaitMin time.Duration `koanf:"retry_wait_min"`

	// RetryWaitMax is the ceiling for the transient-error retry wait.
	// Default: 10 seconds
	RetryWaitMax time.Duration `koanf:"retry_wait_max"`
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() *Config {
	return &Config{
		Buffer:               100,
		WindowSize:           1000,
		BurstThreshold:       30,
		BurstWindow:          time.Minute,
		InitialBackoff:       time.Second,
		MaxBackoff:           5 * time.Minute,
		BackoffMultiplier:    2.0,
		QuotaCacheTTL:        60 * time.Second,
		PredictionWindow:     5 * time.Minute,
		MinPredictionSamples: 10,
		MaxAttempts:          3,
		RetryWaitMin:         4 * time.Second,
		RetryWaitMax:         10 * time.Second,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.Buffer == 0 {
		c.Buffer = defaults.Buffer
	}
	if c.WindowSize == 0 {
		c.WindowSize = defaults.WindowSize
	}
	if c.BurstThreshold == 0 {
		c.BurstThreshold = defaults.BurstThreshold
	}
	if c.BurstWindow == 0 {
		c.BurstWindow = defaults.BurstWindow
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if c.QuotaCacheTTL == 0 {
		c.QuotaCacheTTL = defaults.QuotaCacheTTL
	}
	if c.PredictionWindow == 0 {
		c.PredictionWindow = defaults.PredictionWindow
	}
	if c.MinPredictionSamples == 0 {
		c.MinPredictionSamples = defaults.MinPredictionSamples
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.RetryWaitMin == 0 {
		c.RetryWaitMin = defaults.RetryWaitMin
	}
	if c.RetryWaitMax == 0 {
		c.RetryWaitMax = defaults.RetryWaitMax
	}
}
