package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/octoquest/internal/logging"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix scopes environment overrides to octoquest.
	envPrefix = "OCTOQUEST_"
)

// DefaultPath returns the default config file location,
// ~/.config/octoquest/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "octoquest", "config.yaml"), nil
}

// Load loads configuration from a YAML file, then overrides with environment
// variables.
//
// Configuration precedence (highest to lowest):
//  1. OCTOQUEST_-prefixed environment variables (OCTOQUEST_GITHUB_TOKEN, ...)
//  2. GITHUB_TOKEN / GITHUB_USERNAME fallbacks for the github section
//  3. YAML config file
//  4. Hardcoded defaults
//
// configPath names the YAML file to load; empty means the default path. A
// missing file is not an error, but an existing file must be owner-only
// (0600 or 0400) and under 1MB.
//
// Environment variables map to config keys by splitting on the first
// underscore after the prefix:
//
//	OCTOQUEST_GITHUB_TOKEN          -> github.token
//	OCTOQUEST_RATELIMIT_MAX_BACKOFF -> ratelimit.max_backoff
//	OCTOQUEST_LOGGING_LEVEL         -> logging.level
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate through the descriptor to avoid a
		// TOCTOU race between the check and the read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// transformEnvKey maps OCTOQUEST_SECTION_FIELD_NAME to section.field_name.
// Only the first underscore after the prefix separates section from field,
// so compound field names keep their underscores.
func transformEnvKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// EnsureConfigDir creates the octoquest config directory if it doesn't
// exist, with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", "octoquest")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigFileProperties checks file permissions and size. Only runs
// when the file exists.
func validateConfigFileProperties(info os.FileInfo) error {
	// Different permission model on Windows.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0o600 && perm != 0o400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// The bare GITHUB_TOKEN and GITHUB_USERNAME variables are widely set by
	// CI systems and shell profiles; honor them when the octoquest-specific
	// settings are absent.
	if !cfg.GitHub.Token.IsSet() {
		cfg.GitHub.Token = Secret(os.Getenv("GITHUB_TOKEN"))
	}
	if cfg.GitHub.Username == "" {
		cfg.GitHub.Username = os.Getenv("GITHUB_USERNAME")
	}
	if cfg.GitHub.DefaultBranch == "" {
		cfg.GitHub.DefaultBranch = "main"
	}

	cfg.RateLimit.ApplyDefaults()
	cfg.Progress.ApplyDefaults()
	cfg.Telemetry.ApplyDefaults()

	logDefaults := logging.NewDefaultConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = logDefaults.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = logDefaults.Format
	}
	if cfg.Logging.Fields == nil {
		cfg.Logging.Fields = logDefaults.Fields
	}
}
