// Package store holds the read-side collaborators the engine consumes: the
// artifact store of summaries, the saved-search/run metadata store, and the
// originals fetcher. LocalStore backs all three with a single SQLite file;
// DirStore is the listing fallback over a plain folder of YAML artifacts.
package store

import (
	"context"
	"errors"

	"timelined/internal/timeline"
)

// ErrNotFound is returned when an artifact or original does not exist.
var ErrNotFound = errors.New("not found")

// ArtifactStore reads stored summary artifacts. Implementations are read-only
// and idempotent from the engine's point of view.
type ArtifactStore interface {
	ListSummaries(ctx context.Context, folder string) ([]timeline.Summary, error)
	Get(ctx context.Context, artifactID string) (timeline.Summary, error)
}

// MetadataStore reads saved-search and run-history metadata.
type MetadataStore interface {
	ListSelectionSets(ctx context.Context, folder string) ([]timeline.SelectionSetMeta, error)
	ListRuns(ctx context.Context, folder string) ([]timeline.RunMeta, error)
}

// Original is a fetched source document.
type Original struct {
	Text      string
	Truncated bool
}

// OriginalsFetcher retrieves the original document behind a summary artifact.
type OriginalsFetcher interface {
	Fetch(ctx context.Context, artifactID string) (Original, error)
}
