package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"timelined/internal/config"
	"timelined/internal/llm"
	"timelined/internal/timeline"
)

// state enumerates the orchestrator's per-request positions. Transitions are
// explicit so tests can drive individual passes.
type state int

const (
	stateIdle state = iota
	stateMatching
	stateNoSources
	stateMatched
	stateFirstPass
	stateCountingPass
	stateRouterParsed
	stateOriginalsPass
	stateSynthesisPass
	stateDone
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateMatching:
		return "matching"
	case stateNoSources:
		return "no_sources"
	case stateMatched:
		return "matched"
	case stateFirstPass:
		return "first_pass"
	case stateCountingPass:
		return "counting_pass"
	case stateRouterParsed:
		return "router_parsed"
	case stateOriginalsPass:
		return "originals_pass"
	case stateSynthesisPass:
		return "synthesis_pass"
	case stateDone:
		return "done"
	}
	return "unknown"
}

// requestContext is the orchestrator's cross-pass state for one request. It is
// created fresh per request and discarded once the reply is composed.
type requestContext struct {
	engine    *Engine
	req       timeline.Request
	requestID string
	settings  config.ChatSettings
	query     string
	state     state

	packed string
	index  SourceIndex

	provider  timeline.ProviderInfo
	decision  *RouterDecision
	answer    string
	suggested []string
	citations []timeline.Citation
	notes     []string
	llmCalls  int
}

func (rc *requestContext) transition(to state) {
	rc.engine.log.Debug("state transition",
		zap.String("request_id", rc.requestID),
		zap.Stringer("from", rc.state),
		zap.Stringer("to", to))
	rc.state = to
}

// run drives the request through the state machine.
func (rc *requestContext) run(ctx context.Context) (timeline.Reply, error) {
	rc.provider = timeline.ProviderInfo{Name: rc.settings.Provider, Model: rc.settings.Model}

	rc.transition(stateMatching)
	src, err := rc.engine.gather(ctx)
	if err != nil {
		return timeline.Reply{}, err
	}

	matched := matchedSummaries(rc.req, rc.query, src)

	// Entry guards: no LLM call is made for either canned reply.
	if len(matched) == 0 {
		rc.transition(stateNoSources)
		return rc.guardReply(noSourcesReply), nil
	}
	if rc.req.SynthesisMode && len(matched) < 2 {
		rc.transition(stateNoSources)
		return rc.guardReply(needTwoSourcesReply), nil
	}

	rc.transition(stateMatched)
	rc.packed, rc.index = rc.engine.pack(rc.req, rc.query, matched, src, rc.settings)

	// Counting replaces the first pass entirely and is mutually exclusive
	// with synthesis.
	if IsCountingQuery(rc.req.Message) && !rc.req.SynthesisMode {
		rc.transition(stateCountingPass)
		if err := rc.countingPass(ctx); err != nil {
			return timeline.Reply{}, err
		}
		rc.transition(stateDone)
		return rc.compose(), nil
	}

	rc.transition(stateFirstPass)
	resp, err := rc.callWithFallback(ctx, rc.firstPassMessages(routerInstruction))
	if err != nil {
		return timeline.Reply{}, err
	}

	rc.transition(stateRouterParsed)
	rc.parseRouter(resp.Text)

	if rc.req.SynthesisMode {
		rc.transition(stateSynthesisPass)
		rc.synthesisPass(ctx)
	} else if rc.shouldFetchOriginals() {
		rc.transition(stateOriginalsPass)
		rc.originalsPass(ctx)
	}

	rc.transition(stateDone)
	return rc.compose(), nil
}

// systemPrompt builds base rules plus the mode addenda. An admin-configured
// system prompt replaces the base rules but keeps the addenda.
func (rc *requestContext) systemPrompt() string {
	base := baseSystemPrompt
	if strings.TrimSpace(rc.settings.SystemPrompt) != "" {
		base = rc.settings.SystemPrompt
	}
	if rc.req.AdvisorMode || rc.req.SynthesisMode {
		base += advisorAddendum
	}
	if rc.req.SynthesisMode {
		base += synthesisAddendum
	}
	return base
}

func (rc *requestContext) firstPassMessages(instruction string) []llm.Message {
	return []llm.Message{
		{Role: "user", Content: contextBlockMessage(rc.packed)},
		{Role: "user", Content: "Question: " + rc.query},
		{Role: "user", Content: instruction},
	}
}

// callWithFallback performs the first-pass gateway call with the single
// provider-fallback rule: not_configured for a non-admin caller retries once
// against the stub provider, and the reported provider follows whichever
// produced the text.
func (rc *requestContext) callWithFallback(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	req := llm.Request{
		Model:        rc.settings.Model,
		SystemPrompt: rc.systemPrompt(),
		Messages:     msgs,
		Temperature:  rc.settings.Temperature,
	}
	rc.llmCalls++
	resp, err := rc.engine.deps.Gateway.Call(ctx, rc.settings.Provider, req)
	if err == nil {
		return resp, nil
	}

	pe, ok := llm.AsProviderError(err)
	if !ok {
		return llm.Response{}, &llm.ProviderError{
			Code: llm.CodeUpstreamError, Provider: rc.settings.Provider, Message: err.Error(),
		}
	}
	if pe.Code != llm.CodeNotConfigured || rc.req.Admin || rc.settings.Provider == llm.StubProviderName {
		return llm.Response{}, pe
	}

	rc.engine.log.Info("provider not configured, falling back to stub",
		zap.String("request_id", rc.requestID),
		zap.String("provider", rc.settings.Provider))
	req.Model = "stub"
	rc.llmCalls++
	resp, err = rc.engine.deps.Gateway.Call(ctx, llm.StubProviderName, req)
	if err != nil {
		return llm.Response{}, err
	}
	rc.provider = timeline.ProviderInfo{Name: llm.StubProviderName, Model: "stub"}
	return resp, nil
}

// call performs a follow-up pass call on the provider that answered the first
// pass. No fallback applies here.
func (rc *requestContext) call(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	rc.llmCalls++
	return rc.engine.deps.Gateway.Call(ctx, rc.provider.Name, llm.Request{
		Model:        rc.provider.Model,
		SystemPrompt: rc.systemPrompt(),
		Messages:     msgs,
		Temperature:  rc.settings.Temperature,
	})
}

// parseRouter interprets the first-pass text. Stub output is deterministic
// and already well-formed prose, so it is trusted as-is; other providers go
// through the tolerant router parser with a canned fallback per mode.
func (rc *requestContext) parseRouter(text string) {
	if rc.provider.Name == llm.StubProviderName {
		rc.answer = text
		return
	}
	decision, ok := ParseRouterDecision(text, rc.index.Len())
	if !ok {
		rc.engine.log.Info("router parse failed, using canned fallback",
			zap.String("request_id", rc.requestID))
		rc.answer = rc.fallbackAnswer()
		return
	}
	rc.decision = decision
	rc.answer = decision.Answer
	rc.suggested = decision.SuggestedActions
}

func (rc *requestContext) fallbackAnswer() string {
	switch {
	case rc.req.SynthesisMode:
		return synthesisFallbackReply
	case rc.req.AdvisorMode:
		return advisorFallbackReply
	}
	return plainFallbackReply
}

func (rc *requestContext) shouldFetchOriginals() bool {
	return rc.req.AllowOriginals &&
		rc.decision != nil &&
		rc.decision.NeedsOriginals &&
		rc.provider.Name != llm.StubProviderName
}

// originalsPass fetches up to three requested originals, enforces the
// per-item and cumulative character caps, and issues one augmented call.
// Individual fetch failures become user-visible notes; a failed pass keeps
// the first-pass answer.
func (rc *requestContext) originalsPass(ctx context.Context) {
	known := rc.index.SummaryArtifactIDs()

	type fetched struct {
		artifactID string
		title      string
		text       string
		truncated  bool
	}
	var originals []fetched
	budget := maxOriginalsTotalChars

	for _, id := range rc.decision.RequestedArtifactIDs {
		if len(originals) == maxRequestedArtifacts {
			break
		}
		pos, ok := known[id]
		if !ok {
			continue // never fetch outside the packed source index
		}
		item, _ := rc.index.At(pos)
		if budget <= 0 {
			break
		}

		orig, err := rc.engine.deps.Originals.Fetch(ctx, id)
		if err != nil {
			rc.engine.log.Warn("original fetch failed",
				zap.String("request_id", rc.requestID),
				zap.String("artifact_id", id),
				zap.Error(err))
			rc.notes = append(rc.notes, fmt.Sprintf("Couldn't load the original document for %q.", item.Title()))
			continue
		}

		text := orig.Text
		truncated := orig.Truncated
		limit := maxOriginalChars
		if budget < limit {
			limit = budget
		}
		if len(text) > limit {
			text = text[:limit]
			truncated = true
		}
		budget -= len(text)
		originals = append(originals, fetched{artifactID: id, title: item.Title(), text: text, truncated: truncated})
	}

	if len(originals) == 0 {
		return
	}

	var blocks []string
	for i, o := range originals {
		blocks = append(blocks, originalBlock(i+1, o.title, o.text, o.truncated))
	}
	msgs := []llm.Message{
		{Role: "user", Content: contextBlockMessage(rc.packed)},
		{Role: "user", Content: "Question: " + rc.query},
		{Role: "user", Content: originalsInstruction + "\n\n" + strings.Join(blocks, "\n\n")},
	}
	resp, err := rc.call(ctx, msgs)
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		rc.engine.log.Warn("originals pass failed, keeping first-pass answer",
			zap.String("request_id", rc.requestID), zap.Error(err))
		rc.notes = append(rc.notes, "The original-document pass failed; this answer uses summaries only.")
		return
	}

	rc.answer = resp.Text
	rc.citations = rc.index.Citations()
	for i, o := range originals {
		rc.citations = append(rc.citations, timeline.OriginalCitation(i+1, o.artifactID, o.title))
	}
}

// synthesisPass runs the plan extraction and write-up sub-pipeline. Every
// failure path degrades to the answer already computed; synthesis never
// blocks the response.
func (rc *requestContext) synthesisPass(ctx context.Context) {
	if rc.provider.Name == llm.StubProviderName {
		return
	}

	extractMsgs := []llm.Message{
		{Role: "user", Content: contextBlockMessage(rc.packed)},
		{Role: "user", Content: "Question: " + rc.query},
		{Role: "user", Content: synthesisExtractionInstruction},
	}
	resp, err := rc.call(ctx, extractMsgs)
	if err != nil {
		rc.engine.log.Warn("synthesis extraction failed",
			zap.String("request_id", rc.requestID), zap.Error(err))
		return
	}
	plan, ok := ParseSynthesisPlan(resp.Text, rc.index.Len())
	if !ok {
		rc.engine.log.Info("synthesis plan parse failed",
			zap.String("request_id", rc.requestID))
		return
	}

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return
	}
	writeMsgs := []llm.Message{
		{Role: "user", Content: contextBlockMessage(rc.packed)},
		{Role: "user", Content: synthesisWriteUpInstruction(string(planJSON))},
	}
	writeResp, err := rc.call(ctx, writeMsgs)
	if err != nil || !hasHeadingsInOrder(writeResp.Text) {
		rc.engine.log.Warn("synthesis write-up failed or malformed",
			zap.String("request_id", rc.requestID), zap.Error(err))
		return
	}
	rc.answer = writeResp.Text
}

// hasHeadingsInOrder verifies the write-up kept the required section order.
func hasHeadingsInOrder(text string) bool {
	pos := 0
	for _, h := range writeUpHeadings {
		i := strings.Index(text[pos:], h)
		if i == -1 {
			return false
		}
		pos += i + len(h)
	}
	return true
}

// countingPass replaces the first pass for counting questions: one strict
// extraction call, citation filtering, deduplication, and a deterministic
// composed count.
func (rc *requestContext) countingPass(ctx context.Context) error {
	resp, err := rc.callWithFallback(ctx, rc.firstPassMessages(countingInstruction))
	if err != nil {
		return err
	}

	extraction, ok := ParseCountingExtraction(resp.Text, rc.index.Len())
	var occs []Occurrence
	if ok {
		occs = DedupeOccurrences(extraction.Occurrences)
	}
	rc.answer = ComposeCountingReply(occs)
	rc.citations = rc.citationsForOccurrences(occs)
	if rc.citations == nil {
		rc.citations = []timeline.Citation{}
	}
	return nil
}

// citationsForOccurrences cites only the sources the kept occurrences are
// grounded on.
func (rc *requestContext) citationsForOccurrences(occs []Occurrence) []timeline.Citation {
	seen := make(map[int]bool)
	var out []timeline.Citation
	for _, occ := range occs {
		for _, c := range occ.Citations {
			if seen[c] {
				continue
			}
			seen[c] = true
			if item, ok := rc.index.At(c); ok {
				out = append(out, timeline.CitationFor(c, item))
			}
		}
	}
	return out
}
