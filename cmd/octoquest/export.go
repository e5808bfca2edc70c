package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export the full progress document",
	Long: `Export a complete dump of the progress document to a file.

Examples:
  octoquest export progress-dump.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
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

	if err := store.Export(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported progress to %s\n", args[0])
	return nil
}
