package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/octoquest/internal/ghclient"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configured GitHub token",
	Long: `Check that the configured token authenticates, belongs to the
configured username, and carries the required scopes.

Examples:
  octoquest validate`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer syncLogger(logger)

	shutdown, err := setupTelemetry(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	client, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}

	identity, err := client.ValidateToken(cmd.Context())
	if err != nil {
		var missing *ghclient.MissingScopesError
		switch {
		case errors.Is(err, ghclient.ErrBadCredentials):
			return fmt.Errorf("token rejected by GitHub: %w", err)
		case errors.As(err, &missing):
			return fmt.Errorf("token lacks scopes: %s", strings.Join(missing.Missing, ", "))
		default:
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Token valid for %s", identity.Login)
	if identity.Name != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " (%s)", identity.Name)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	if len(identity.Scopes) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Scopes: %s\n", strings.Join(identity.Scopes, ", "))
	}
	return nil
}
