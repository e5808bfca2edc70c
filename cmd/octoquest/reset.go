package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetConfirmed bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset all progress to defaults",
	Long: `Reset the progress document to its initial state.

The current state is backed up first. The command refuses to run without
the --confirm flag.

Examples:
  octoquest reset --confirm`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirmed, "confirm", false, "confirm the reset")
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetConfirmed {
		return fmt.Errorf("refusing to reset without --confirm")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer syncLogger(logger)

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	if err := store.Reset(cmd.Context(), true); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Progress reset to defaults (previous state backed up)")
	return nil
}
