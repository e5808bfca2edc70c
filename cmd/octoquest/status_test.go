package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/octoquest/internal/progress"
)

func TestFormatSummary(t *testing.T) {
	out := formatSummary(progress.Summary{
		TotalAchievements:     7,
		CompletedAchievements: 2,
		CompletionPercent:     28.571428,
		Completed:             []string{"quickdraw", "yolo"},
		RepositoryCreated:     true,
		RepositoryName:        "achievement-sandbox",
		LastUpdated:           "2025-06-01T12:00:00Z",
		Statistics: map[string]int64{
			"total_api_calls":    42,
			"errors_encountered": 1,
			"session_count":      3,
		},
	})

	assert.Contains(t, out, "Achievements: 2/7 completed (28.6%)")
	assert.Contains(t, out, "Completed: quickdraw, yolo")
	assert.Contains(t, out, "Repository: achievement-sandbox")
	assert.Contains(t, out, "Last updated: 2025-06-01T12:00:00Z")
	// Statistics print in sorted order.
	assert.Regexp(t, `(?s)errors_encountered: 1.*session_count: 3.*total_api_calls: 42`, out)
}

func TestFormatSummaryEmpty(t *testing.T) {
	out := formatSummary(progress.Summary{TotalAchievements: 7})

	assert.Contains(t, out, "Achievements: 0/7 completed (0.0%)")
	assert.Contains(t, out, "Repository: not created")
	assert.NotContains(t, out, "Completed:")
	assert.NotContains(t, out, "Statistics:")
}
