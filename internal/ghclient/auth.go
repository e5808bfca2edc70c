package ghclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
)

// ErrBadCredentials indicates the token was rejected by the API.
var ErrBadCredentials = errors.New("bad credentials")

// requiredScopes are the classic-token scopes the toolkit needs to create
// repositories and manage discussions.
var requiredScopes = []string{"repo", "write:discussion"}

// MissingScopesError reports required token scopes the token does not grant.
type MissingScopesError struct {
	Missing []string
}

func (e *MissingScopesError) Error() string {
	return "token missing required scopes: " + strings.Join(e.Missing, ", ")
}

// TokenIdentity describes the validated token.
type TokenIdentity struct {
	Login  string
	Name   string
	Scopes []string
}

// ValidateToken verifies the token authenticates, belongs to the configured
// username, and carries the required scopes.
//
// Fine-grained tokens do not expose an X-OAuth-Scopes header; when the header
// is absent the scope check is skipped with a warning rather than failed,
// since the token may still hold equivalent permissions.
func (c *Client) ValidateToken(ctx context.Context) (*TokenIdentity, error) {
	var (
		user *github.User
		resp *github.Response
	)
	err := c.do(ctx, "validate_token", "/user", func() error {
		var err error
		user, resp, err = c.gh.Users.Get(ctx, "")
		return err
	})
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %v", ErrBadCredentials, err)
		}
		return nil, fmt.Errorf("validate token: %w", err)
	}

	login := user.GetLogin()
	if !strings.EqualFold(login, c.cfg.Username) {
		return nil, fmt.Errorf("token belongs to %q, configured username is %q", login, c.cfg.Username)
	}

	identity := &TokenIdentity{
		Login: login,
		Name:  user.GetName(),
	}

	header := resp.Header.Get("X-OAuth-Scopes")
	if header == "" {
		c.logger.Warn("token does not report scopes, skipping scope check",
			zap.String("login", login))
		return identity, nil
	}

	granted := parseScopes(header)
	identity.Scopes = granted
	if missing := missingScopes(granted, requiredScopes); len(missing) > 0 {
		return nil, &MissingScopesError{Missing: missing}
	}

	c.logger.Info("token validated",
		zap.String("login", login),
		zap.Strings("scopes", granted))
	return identity, nil
}

func parseScopes(header string) []string {
	parts := strings.Split(header, ",")
	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

func missingScopes(granted, required []string) []string {
	have := make(map[string]bool, len(granted))
	for _, s := range granted {
		have[s] = true
	}
	var missing []string
	for _, s := range required {
		if !have[s] {
			missing = append(missing, s)
		}
	}
	return missing
}
