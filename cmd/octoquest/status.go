package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/octoquest/internal/progress"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show achievement progress",
	Long: `Show a summary of achievement progress from the local progress file.

Examples:
  # Human-readable summary
  octoquest status

  # Machine-readable summary
  octoquest status --json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit the summary as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	summary := store.Summarize()
	if statusJSON {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), formatSummary(summary))
	return nil
}

// formatSummary renders the summary for terminal output.
func formatSummary(s progress.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Achievements: %d/%d completed (%.1f%%)\n",
		s.CompletedAchievements, s.TotalAchievements, s.CompletionPercent)
	if len(s.Completed) > 0 {
		fmt.Fprintf(&b, "Completed: %s\n", strings.Join(s.Completed, ", "))
	}
	if s.RepositoryCreated {
		fmt.Fprintf(&b, "Repository: %s\n", s.RepositoryName)
	} else {
		b.WriteString("Repository: not created\n")
	}
	if s.LastUpdated != "" {
		fmt.Fprintf(&b, "Last updated: %s\n", s.LastUpdated)
	}

	if len(s.Statistics) > 0 {
		b.WriteString("Statistics:\n")
		for _, name := range statisticOrder(s.Statistics) {
			fmt.Fprintf(&b, "  %s: %d\n", name, s.Statistics[name])
		}
	}
	return b.String()
}

func statisticOrder(stats map[string]int64) []string {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	// Stable output for scripting and tests.
	sort.Strings(names)
	return names
}
