package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"timelined/internal/timeline"
)

// readConcurrency caps parallel per-file reads in the listing fallback.
const readConcurrency = 4

// DirStore is the listing-fallback ArtifactStore for folders with no
// precomputed index: every *.yaml artifact under folder/summaries is read
// individually. Reads are fanned out with a small concurrency cap; ordering of
// completion does not matter because the result set is sorted before return.
type DirStore struct {
	root string
}

// NewDirStore creates a DirStore rooted at the given directory.
func NewDirStore(root string) *DirStore { return &DirStore{root: root} }

// ListSummaries reads each artifact file in the folder concurrently.
func (d *DirStore) ListSummaries(ctx context.Context, folder string) ([]timeline.Summary, error) {
	dir := filepath.Join(d.root, folder, "summaries")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var (
		mu  sync.Mutex
		out []timeline.Summary
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sum, err := readSummaryFile(path)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, sum)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DateISO != out[j].DateISO {
			return out[i].DateISO > out[j].DateISO
		}
		return out[i].ArtifactID < out[j].ArtifactID
	})
	return out, nil
}

// Get reads a single artifact file by id.
func (d *DirStore) Get(ctx context.Context, artifactID string) (timeline.Summary, error) {
	matches, err := filepath.Glob(filepath.Join(d.root, "*", "summaries", artifactID+".yaml"))
	if err != nil || len(matches) == 0 {
		return timeline.Summary{}, fmt.Errorf("summary %s: %w", artifactID, ErrNotFound)
	}
	return readSummaryFile(matches[0])
}

func readSummaryFile(path string) (timeline.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return timeline.Summary{}, fmt.Errorf("failed to read artifact: %w", err)
	}
	var sum timeline.Summary
	if err := yaml.Unmarshal(data, &sum); err != nil {
		return timeline.Summary{}, fmt.Errorf("failed to parse artifact %s: %w", filepath.Base(path), err)
	}
	if sum.ArtifactID == "" {
		sum.ArtifactID = strings.TrimSuffix(filepath.Base(path), ".yaml")
	}
	return sum, nil
}
