package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"timelined/internal/config"
	"timelined/internal/llm"
	"timelined/internal/store"
	"timelined/internal/timeline"
)

// SettingsSource hands out the admin-configured chat settings. The engine
// takes exactly one snapshot per request and threads it as a value.
type SettingsSource interface {
	Snapshot() config.ChatSettings
}

// Deps are the collaborators the engine consumes. All of them are required
// except Logger, which defaults to a no-op.
type Deps struct {
	Artifacts store.ArtifactStore
	Metadata  store.MetadataStore
	Originals store.OriginalsFetcher
	Gateway   llm.Gateway
	Settings  SettingsSource
	Folder    string
	Logger    *zap.Logger
}

// Engine answers chat requests from the artifact store through the multi-pass
// LLM pipeline. It holds no per-request state; every request materializes its
// own pass context and discards it when the reply is composed.
type Engine struct {
	deps   Deps
	ranker RankerConfig
	log    *zap.Logger
	now    func() time.Time
}

// New creates an engine with the default ranking heuristics.
func New(deps Deps) (*Engine, error) {
	if deps.Artifacts == nil || deps.Metadata == nil || deps.Originals == nil ||
		deps.Gateway == nil || deps.Settings == nil {
		return nil, fmt.Errorf("engine: missing collaborator")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{deps: deps, ranker: DefaultRankerConfig(), log: log, now: time.Now}, nil
}

// WithRankerConfig overrides the ranking heuristics.
func (e *Engine) WithRankerConfig(cfg RankerConfig) *Engine {
	e.ranker = cfg
	return e
}

// sources is the fully materialized read-side input of one request.
type sources struct {
	summaries     []timeline.Summary
	selectionSets []timeline.SelectionSetMeta
	runs          []timeline.RunMeta
}

// gather fans out the two metadata listings concurrently and joins before
// ranking begins; the summaries listing runs alongside them. Ranking is
// computed from the materialized result set, so completion order is
// irrelevant.
func (e *Engine) gather(ctx context.Context) (sources, error) {
	var src sources
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		src.summaries, err = e.deps.Artifacts.ListSummaries(ctx, e.deps.Folder)
		return err
	})
	g.Go(func() error {
		var err error
		src.selectionSets, err = e.deps.Metadata.ListSelectionSets(ctx, e.deps.Folder)
		return err
	})
	g.Go(func() error {
		var err error
		src.runs, err = e.deps.Metadata.ListRuns(ctx, e.deps.Folder)
		return err
	})
	if err := g.Wait(); err != nil {
		return sources{}, fmt.Errorf("failed to read stores: %w", err)
	}
	return src, nil
}

// pack ranks the matched summaries, blends in the scored metadata, and packs
// everything into the evidence block; the returned index is the request's
// source index.
func (e *Engine) pack(req timeline.Request, query string, matched []timeline.ContextItem, src sources, settings config.ChatSettings) (string, SourceIndex) {
	summarySlots, metaSlots := AllocateSlots(settings.MaxContextItems, req.SynthesisMode)
	ranked := Rank(Candidates(matched), summarySlots, e.ranker, e.now())

	metadata := append(ScoreSelectionSets(query, src.selectionSets), ScoreRuns(query, src.runs)...)
	sort.SliceStable(metadata, func(i, j int) bool { return metadata[i].Score > metadata[j].Score })
	if len(metadata) > metaSlots {
		metadata = metadata[:metaSlots]
	}

	items := Items(ranked)
	for _, m := range metadata {
		items = append(items, m.Item)
	}

	packed, included := Pack(items, settings.MaxContextChars)
	return packed, NewSourceIndex(included)
}

// matchedSummaries applies the query matcher, with the synthesis-mode
// fallback to the full set when nothing matched: a broad "build my timeline"
// still has material to work with.
func matchedSummaries(req timeline.Request, query string, src sources) []timeline.ContextItem {
	matched := MatchSummaries(query, src.summaries)
	if len(matched) == 0 && req.SynthesisMode {
		matched = AllSummaries(src.summaries)
	}
	return matched
}

// Answer handles one chat request end to end.
func (e *Engine) Answer(ctx context.Context, req timeline.Request) (timeline.Reply, error) {
	rc := &requestContext{
		engine:    e,
		req:       req,
		requestID: uuid.NewString(),
		settings:  e.deps.Settings.Snapshot().Normalize(),
		state:     stateIdle,
	}
	rc.query = normalizeText(req.Message)
	if rc.query == "" {
		rc.query = RecentPlaceholder
	}

	e.log.Debug("chat request",
		zap.String("request_id", rc.requestID),
		zap.String("query", rc.query),
		zap.Bool("advisor", req.AdvisorMode),
		zap.Bool("synthesis", req.SynthesisMode),
		zap.Bool("allow_originals", req.AllowOriginals))

	return rc.run(ctx)
}
