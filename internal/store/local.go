package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"timelined/internal/timeline"
)

// LocalStore implements ArtifactStore, MetadataStore and OriginalsFetcher over
// a local SQLite file. Single-writer with WAL, matching the usage pattern of a
// personal store: one process, many cheap reads.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore opens (and if needed creates) the SQLite database at path.
// ":memory:" is supported for tests.
func NewLocalStore(path string) (*LocalStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal_mode: %w", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS summaries (
			artifact_id TEXT PRIMARY KEY,
			folder      TEXT NOT NULL,
			title       TEXT NOT NULL,
			date_iso    TEXT,
			snippet     TEXT,
			source      TEXT,
			source_id   TEXT,
			summary     TEXT,
			highlights  TEXT,
			metadata    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_folder ON summaries(folder)`,
		`CREATE TABLE IF NOT EXISTS selection_sets (
			id         TEXT PRIMARY KEY,
			folder     TEXT NOT NULL,
			title      TEXT NOT NULL,
			source     TEXT,
			query      TEXT,
			updated_at TEXT,
			text       TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id               TEXT PRIMARY KEY,
			folder           TEXT NOT NULL,
			action           TEXT,
			selection_set_id TEXT,
			started_at       TEXT,
			finished_at      TEXT,
			status           TEXT,
			counts           TEXT,
			request_ids      TEXT,
			text             TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS originals (
			artifact_id TEXT PRIMARY KEY,
			text        TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error { return s.db.Close() }

// ListSummaries returns every summary artifact in the folder, newest first.
func (s *LocalStore) ListSummaries(ctx context.Context, folder string) ([]timeline.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT artifact_id, title, date_iso, snippet, source, source_id, summary, highlights, metadata
		FROM summaries WHERE folder = ?
		ORDER BY date_iso DESC, artifact_id`, folder)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	var out []timeline.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Get returns one summary artifact by id.
func (s *LocalStore) Get(ctx context.Context, artifactID string) (timeline.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT artifact_id, title, date_iso, snippet, source, source_id, summary, highlights, metadata
		FROM summaries WHERE artifact_id = ?`, artifactID)
	sum, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return timeline.Summary{}, fmt.Errorf("summary %s: %w", artifactID, ErrNotFound)
	}
	return sum, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(r rowScanner) (timeline.Summary, error) {
	var sum timeline.Summary
	var dateISO, snippet, source, sourceID, body, highlights, metadata sql.NullString
	if err := r.Scan(&sum.ArtifactID, &sum.Title, &dateISO, &snippet, &source, &sourceID, &body, &highlights, &metadata); err != nil {
		if err == sql.ErrNoRows {
			return timeline.Summary{}, err
		}
		return timeline.Summary{}, fmt.Errorf("failed to scan summary: %w", err)
	}
	sum.DateISO = dateISO.String
	sum.Snippet = snippet.String
	sum.Source = source.String
	sum.SourceID = sourceID.String
	sum.SummaryText = body.String
	if highlights.String != "" {
		if err := json.Unmarshal([]byte(highlights.String), &sum.Highlights); err != nil {
			return timeline.Summary{}, fmt.Errorf("corrupt highlights for %s: %w", sum.ArtifactID, err)
		}
	}
	if metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &sum.Metadata); err != nil {
			return timeline.Summary{}, fmt.Errorf("corrupt metadata for %s: %w", sum.ArtifactID, err)
		}
	}
	return sum, nil
}

// ListSelectionSets returns the saved searches in the folder.
func (s *LocalStore) ListSelectionSets(ctx context.Context, folder string) ([]timeline.SelectionSetMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, source, query, updated_at, text
		FROM selection_sets WHERE folder = ? ORDER BY updated_at DESC, id`, folder)
	if err != nil {
		return nil, fmt.Errorf("failed to list selection sets: %w", err)
	}
	defer rows.Close()

	var out []timeline.SelectionSetMeta
	for rows.Next() {
		var m timeline.SelectionSetMeta
		var source, query, updated, text sql.NullString
		if err := rows.Scan(&m.ID, &m.Title, &source, &query, &updated, &text); err != nil {
			return nil, fmt.Errorf("failed to scan selection set: %w", err)
		}
		m.Source = source.String
		m.Query = query.String
		m.UpdatedAtISO = updated.String
		m.Text = text.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListRuns returns the run history in the folder.
func (s *LocalStore) ListRuns(ctx context.Context, folder string) ([]timeline.RunMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, selection_set_id, started_at, finished_at, status, counts, request_ids, text
		FROM runs WHERE folder = ? ORDER BY started_at DESC, id`, folder)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []timeline.RunMeta
	for rows.Next() {
		var r timeline.RunMeta
		var action, setID, started, finished, status, counts, reqIDs, text sql.NullString
		if err := rows.Scan(&r.ID, &action, &setID, &started, &finished, &status, &counts, &reqIDs, &text); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Action = action.String
		r.SelectionSetRef = setID.String
		r.StartedAtISO = started.String
		r.FinishedAtISO = finished.String
		r.Status = status.String
		r.Text = text.String
		if counts.String != "" {
			if err := json.Unmarshal([]byte(counts.String), &r.Counts); err != nil {
				return nil, fmt.Errorf("corrupt counts for run %s: %w", r.ID, err)
			}
		}
		if reqIDs.String != "" {
			r.RequestIDs = strings.Split(reqIDs.String, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Fetch returns the original document text for an artifact.
func (s *LocalStore) Fetch(ctx context.Context, artifactID string) (Original, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT text FROM originals WHERE artifact_id = ?`, artifactID).Scan(&text)
	if err == sql.ErrNoRows {
		return Original{}, fmt.Errorf("original %s: %w", artifactID, ErrNotFound)
	}
	if err != nil {
		return Original{}, fmt.Errorf("failed to fetch original: %w", err)
	}
	return Original{Text: text}, nil
}

// PutSummary inserts or replaces a summary artifact. Used by seeding.
func (s *LocalStore) PutSummary(ctx context.Context, folder string, sum timeline.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	highlights, err := json.Marshal(sum.Highlights)
	if err != nil {
		return fmt.Errorf("failed to encode highlights: %w", err)
	}
	metadata, err := json.Marshal(sum.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO summaries
		(artifact_id, folder, title, date_iso, snippet, source, source_id, summary, highlights, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ArtifactID, folder, sum.Title, sum.DateISO, sum.Snippet,
		sum.Source, sum.SourceID, sum.SummaryText, string(highlights), string(metadata))
	if err != nil {
		return fmt.Errorf("failed to store summary: %w", err)
	}
	return nil
}

// PutSelectionSet inserts or replaces saved-search metadata.
func (s *LocalStore) PutSelectionSet(ctx context.Context, folder string, m timeline.SelectionSetMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO selection_sets (id, folder, title, source, query, updated_at, text)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, folder, m.Title, m.Source, m.Query, m.UpdatedAtISO, m.Text)
	if err != nil {
		return fmt.Errorf("failed to store selection set: %w", err)
	}
	return nil
}

// PutRun inserts or replaces run metadata.
func (s *LocalStore) PutRun(ctx context.Context, folder string, r timeline.RunMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts, err := json.Marshal(r.Counts)
	if err != nil {
		return fmt.Errorf("failed to encode counts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		(id, folder, action, selection_set_id, started_at, finished_at, status, counts, request_ids, text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, folder, r.Action, r.SelectionSetRef, r.StartedAtISO, r.FinishedAtISO,
		r.Status, string(counts), strings.Join(r.RequestIDs, ","), r.Text)
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}
	return nil
}

// PutOriginal inserts or replaces an original document.
func (s *LocalStore) PutOriginal(ctx context.Context, artifactID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO originals (artifact_id, text) VALUES (?, ?)`, artifactID, text)
	if err != nil {
		return fmt.Errorf("failed to store original: %w", err)
	}
	return nil
}
