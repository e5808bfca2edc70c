package progress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion identifies the on-disk document layout.
const SchemaVersion = "1.0"

// timeLayout is the timestamp format used throughout the document.
const timeLayout = time.RFC3339

// achievementNames is the closed set of trackable achievements. Referencing
// any other name is a programming error.
var achievementNames = []string{
	"pull_shark",
	"quickdraw",
	"pair_extraordinaire",
	"galaxy_brain",
	"yolo",
	"starstruck",
	"public_sponsor",
}

// Document is the versioned progress record persisted between runs.
type Document struct {
	Metadata     Metadata                  `json:"metadata"`
	Achievements map[string]map[string]any `json:"achievements"`
	Repository   RepositoryState           `json:"repository"`
	Statistics   map[string]int64          `json:"statistics"`
}

// Metadata carries document-level bookkeeping.
type Metadata struct {
	ID            string `json:"id"`
	SchemaVersion string `json:"schema_version"`
	CreatedAt     string `json:"created_at"`
	LastUpdated   string `json:"last_updated"`
}

// RepositoryState tracks the working repository used for achievement runs.
type RepositoryState struct {
	Name      string `json:"name"`
	Created   bool   `json:"created"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
}

// RepositoryUpdate is a partial update of RepositoryState. Nil fields are
// left untouched.
type RepositoryUpdate struct {
	Name      *string
	Created   *bool
	URL       *string
	CreatedAt *string
}

// DefaultDocument builds a fresh document with every achievement at its
// starting state.
func DefaultDocument(now time.Time) Document {
	stamp := now.UTC().Format(timeLayout)

	doc := Document{
		Metadata: Metadata{
			ID:            uuid.New().String(),
			SchemaVersion: SchemaVersion,
			CreatedAt:     stamp,
			LastUpdated:   stamp,
		},
		Achievements: map[string]map[string]any{
			"pull_shark":          {"count": 0, "completed": false, "last_updated": nil},
			"quickdraw":           {"completed": false, "last_updated": nil},
			"pair_extraordinaire": {"count": 0, "completed": false, "collaborators": []any{}, "last_updated": nil},
			"galaxy_brain":        {"count": 0, "completed": false, "discussions": []any{}, "last_updated": nil},
			"yolo":                {"completed": false, "last_updated": nil},
			"starstruck":          {"count": 0, "completed": false, "last_updated": nil},
			"public_sponsor":      {"completed": false, "last_updated": nil},
		},
		Repository: RepositoryState{},
		Statistics: map[string]int64{
			"total_api_calls":    0,
			"session_count":      0,
			"errors_encountered": 0,
		},
	}

	// Round-trip through JSON so in-memory values carry the same types a
	// reload would produce (numbers in attribute bags become float64).
	normalized, err := normalizeDocument(doc)
	if err != nil {
		// Marshaling a literal struct cannot fail.
		panic(fmt.Sprintf("progress: normalize default document: %v", err))
	}
	return normalized
}

func normalizeDocument(doc Document) (Document, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return Document{}, err
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return Document{}, err
	}
	return out, nil
}

// copyDocument returns a deep copy, so callers never hold live references
// into the store's state.
func copyDocument(doc Document) Document {
	out, err := normalizeDocument(doc)
	if err != nil {
		panic(fmt.Sprintf("progress: copy document: %v", err))
	}
	return out
}

// normalizeBag deep-copies an achievement attribute bag through JSON,
// canonicalizing value types the same way a reload would.
func normalizeBag(bag map[string]any) (map[string]any, error) {
	data, err := json.Marshal(bag)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// copyBag deep-copies a bag already known to be JSON-canonical.
func copyBag(bag map[string]any) map[string]any {
	out, err := normalizeBag(bag)
	if err != nil {
		panic(fmt.Sprintf("progress: copy attribute bag: %v", err))
	}
	return out
}
