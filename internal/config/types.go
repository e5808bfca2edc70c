// Package config provides configuration loading for octoquest.
package config

import (
	"encoding/json"

	"github.com/fyrsmithlabs/octoquest/internal/ghclient"
	"github.com/fyrsmithlabs/octoquest/internal/logging"
	"github.com/fyrsmithlabs/octoquest/internal/progress"
	"github.com/fyrsmithlabs/octoquest/internal/ratelimit"
	"github.com/fyrsmithlabs/octoquest/internal/telemetry"
)

// Secret wraps strings that should be redacted in logs and serialization.
// Use Value() to access the actual secret value.
type Secret string

// String implements fmt.Stringer. Always returns redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret value. Use sparingly.
func (s Secret) Value() string {
	return string(s)
}

// IsSet returns true if the secret has a non-empty value.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON implements json.Marshaler. Always returns redacted value.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}

// MarshalText implements encoding.TextMarshaler. Always returns redacted value.
func (s Secret) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(""), nil
	}
	return []byte("[REDACTED]"), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Accepts raw secret values.
func (s *Secret) UnmarshalText(data []byte) error {
	*s = Secret(data)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Accepts raw secret values.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Secret(raw)
	return nil
}

// GitHubConfig holds account and endpoint settings.
type GitHubConfig struct {
	Username      string `koanf:"username"`
	Token         Secret `koanf:"token"`
	BaseURL       string `koanf:"base_url"`
	DefaultBranch string `koanf:"default_branch"`
}

// ClientConfig converts the section into the client wrapper's config.
func (c GitHubConfig) ClientConfig() ghclient.Config {
	return ghclient.Config{
		Username:      c.Username,
		Token:         c.Token.Value(),
		BaseURL:       c.BaseURL,
		DefaultBranch: c.DefaultBranch,
	}
}

// Config is the full octoquest configuration.
type Config struct {
	GitHub    GitHubConfig     `koanf:"github"`
	RateLimit ratelimit.Config `koanf:"ratelimit"`
	Progress  progress.Config  `koanf:"progress"`
	Logging   logging.Config   `koanf:"logging"`
	Telemetry telemetry.Config `koanf:"telemetry"`
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	clientCfg := c.GitHub.ClientConfig()
	if err := clientCfg.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return c.Telemetry.Validate()
}
