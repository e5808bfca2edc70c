package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show current API rate limit quota",
	Long: `Fetch and display the current GitHub API quota for every tracked
category.

Examples:
  octoquest quota`,
	RunE: runQuota,
}

func runQuota(cmd *cobra.Command, args []string) error {
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

	infos := client.RateLimitSummary(cmd.Context())
	for _, info := range infos {
		fmt.Fprintf(cmd.OutOrStdout(), "%-22s %5d/%5d remaining, resets in %s\n",
			string(info.Category)+":", info.Remaining, info.Limit,
			info.ResetIn.Round(time.Second))
	}
	return nil
}
