package engine

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"timelined/internal/config"
	"timelined/internal/llm"
	"timelined/internal/store"
	"timelined/internal/timeline"
)

// fakeStore backs all three store collaborators with in-memory slices.
type fakeStore struct {
	mu            sync.Mutex
	summaries     []timeline.Summary
	selectionSets []timeline.SelectionSetMeta
	runs          []timeline.RunMeta
	originals     map[string]store.Original
	fetchErr      map[string]error
	fetches       []string
}

func (f *fakeStore) ListSummaries(ctx context.Context, folder string) ([]timeline.Summary, error) {
	return f.summaries, nil
}

func (f *fakeStore) Get(ctx context.Context, artifactID string) (timeline.Summary, error) {
	for _, s := range f.summaries {
		if s.ArtifactID == artifactID {
			return s, nil
		}
	}
	return timeline.Summary{}, store.ErrNotFound
}

func (f *fakeStore) ListSelectionSets(ctx context.Context, folder string) ([]timeline.SelectionSetMeta, error) {
	return f.selectionSets, nil
}

func (f *fakeStore) ListRuns(ctx context.Context, folder string) ([]timeline.RunMeta, error) {
	return f.runs, nil
}

func (f *fakeStore) Fetch(ctx context.Context, artifactID string) (store.Original, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, artifactID)
	f.mu.Unlock()
	if err, ok := f.fetchErr[artifactID]; ok {
		return store.Original{}, err
	}
	if o, ok := f.originals[artifactID]; ok {
		return o, nil
	}
	return store.Original{}, store.ErrNotFound
}

// scriptedGateway replays a fixed sequence of responses and records every
// call it receives.
type scriptedGateway struct {
	mu        sync.Mutex
	script    []scriptedResponse
	calls     []scriptedCall
	callCount int
}

type scriptedResponse struct {
	text string
	err  error
}

type scriptedCall struct {
	provider string
	req      llm.Request
}

func (g *scriptedGateway) Call(ctx context.Context, provider string, req llm.Request) (llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, scriptedCall{provider: provider, req: req})
	if g.callCount >= len(g.script) {
		return llm.Response{Text: "unscripted response"}, nil
	}
	r := g.script[g.callCount]
	g.callCount++
	if r.err != nil {
		return llm.Response{}, r.err
	}
	return llm.Response{Text: r.text}, nil
}

func testSettings() config.ChatSettings {
	return config.ChatSettings{
		Provider:        "gemini",
		Model:           "gemini-2.0-flash",
		Temperature:     0.2,
		MaxContextItems: 8,
		MaxContextChars: 12000,
	}
}

func newTestEngine(t *testing.T, st *fakeStore, gw llm.Gateway, settings config.ChatSettings) *Engine {
	t.Helper()
	eng, err := New(Deps{
		Artifacts: st,
		Metadata:  st,
		Originals: st,
		Gateway:   gw,
		Settings:  config.StaticSettings(settings),
		Folder:    "default",
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return eng
}

func sum(id, title, date, body string) timeline.Summary {
	return timeline.Summary{
		ArtifactID:  id,
		Title:       title,
		DateISO:     date,
		Source:      "gmail",
		SourceID:    "msg-" + id,
		SummaryText: body,
	}
}
