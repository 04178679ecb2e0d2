package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timelined/internal/llm"
	"timelined/internal/store"
	"timelined/internal/timeline"
)

const routerOK = `{"answer":"The claim was approved on May 3 [1].","needsOriginals":false,` +
	`"requestedArtifactIds":[],"reason":"summaries suffice",` +
	`"suggestedActions":["Search for the approval letter"]}`

func insuranceStore() *fakeStore {
	return &fakeStore{
		summaries: []timeline.Summary{
			sum("a1", "Insurance claim filed", "2024-05-01", "Claim #123 filed with Acme Insurance."),
			sum("a2", "Insurance claim approved", "2024-05-03", "Acme approved claim #123."),
		},
		selectionSets: []timeline.SelectionSetMeta{
			{ID: "s1", Title: "Insurance mail", Source: "gmail", Query: "from:acme", UpdatedAtISO: "2024-05-04", Text: "saved search"},
		},
	}
}

func TestAnswer_NoSources_NoLLMCall(t *testing.T) {
	gw := &scriptedGateway{}
	st := &fakeStore{
		selectionSets: []timeline.SelectionSetMeta{{ID: "s1", Title: "Insurance mail"}},
	}
	eng := newTestEngine(t, st, gw, testSettings())

	reply, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance"})
	require.NoError(t, err)
	assert.Equal(t, noSourcesReply, reply.Reply)
	assert.Empty(t, reply.Citations)
	assert.Empty(t, reply.SuggestedActions)
	assert.NotEmpty(t, reply.RequestID)
	assert.Zero(t, gw.callCount)
}

func TestAnswer_SynthesisNeedsTwoSources_NoLLMCall(t *testing.T) {
	gw := &scriptedGateway{}
	st := &fakeStore{summaries: []timeline.Summary{
		sum("a1", "Insurance claim filed", "2024-05-01", "Claim #123 filed."),
	}}
	eng := newTestEngine(t, st, gw, testSettings())

	reply, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance", SynthesisMode: true})
	require.NoError(t, err)
	assert.Equal(t, needTwoSourcesReply, reply.Reply)
	assert.Empty(t, reply.Citations)
	assert.Zero(t, gw.callCount)
}

func TestAnswer_PlainFlow(t *testing.T) {
	gw := &scriptedGateway{script: []scriptedResponse{{text: routerOK}}}
	st := insuranceStore()
	eng := newTestEngine(t, st, gw, testSettings())

	reply, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance"})
	require.NoError(t, err)

	assert.Equal(t, "The claim was approved on May 3 [1].", reply.Reply)
	assert.Equal(t, []string{"Search for the approval letter"}, reply.SuggestedActions)
	assert.Equal(t, "gemini", reply.Provider.Name)
	assert.Equal(t, 1, gw.callCount)

	// Citations cover the whole pack: both summaries plus the scored saved
	// search, in pack order.
	require.Len(t, reply.Citations, 3)
	assert.Equal(t, "summary", reply.Citations[0].Kind)
	assert.Equal(t, 1, reply.Citations[0].Index)
	assert.Equal(t, "selection_set", reply.Citations[2].Kind)
	assert.Equal(t, "s1", reply.Citations[2].SelectionSetID)

	// First-pass request shape: grounding rules, context block, question,
	// router instruction.
	call := gw.calls[0]
	assert.Equal(t, "gemini", call.provider)
	assert.Contains(t, call.req.SystemPrompt, "Answer ONLY from the numbered sources")
	assert.NotContains(t, call.req.SystemPrompt, "Advisor mode")
	require.Len(t, call.req.Messages, 3)
	assert.Contains(t, call.req.Messages[0].Content, "SOURCE 1 (SUMMARY):")
	assert.Equal(t, "Question: insurance", call.req.Messages[1].Content)
	assert.Contains(t, call.req.Messages[2].Content, "needsOriginals")
}

func TestAnswer_BlankMessageMatchesRecent(t *testing.T) {
	gw := &scriptedGateway{script: []scriptedResponse{{text: routerOK}}}
	eng := newTestEngine(t, insuranceStore(), gw, testSettings())

	reply, err := eng.Answer(context.Background(), timeline.Request{Message: "   "})
	require.NoError(t, err)
	assert.Equal(t, 1, gw.callCount)
	assert.Equal(t, "Question: recent", gw.calls[0].req.Messages[1].Content)
	assert.NotEmpty(t, reply.Citations)
}

func TestAnswer_RouterParseFailure_FallbackPerMode(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		gw := &scriptedGateway{script: []scriptedResponse{{text: "no json in sight"}}}
		eng := newTestEngine(t, insuranceStore(), gw, testSettings())
		reply, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance"})
		require.NoError(t, err)
		assert.Equal(t, plainFallbackReply, reply.Reply)
		assert.Len(t, reply.Citations, 3)
	})

	t.Run("advisor", func(t *testing.T) {
		gw := &scriptedGateway{script: []scriptedResponse{{text: "no json in sight"}}}
		eng := newTestEngine(t, insuranceStore(), gw, testSettings())
		reply, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance", AdvisorMode: true})
		require.NoError(t, err)
		assert.Equal(t, advisorFallbackReply, reply.Reply)
		assert.Contains(t, gw.calls[0].req.SystemPrompt, "Advisor mode")
	})

	t.Run("synthesis", func(t *testing.T) {
		gw := &scriptedGateway{script: []scriptedResponse{
			{text: "no json in sight"}, // router
			{text: "still no json"},    // plan extraction
		}}
		eng := newTestEngine(t, insuranceStore(), gw, testSettings())
		reply, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance", SynthesisMode: true})
		require.NoError(t, err)
		assert.Equal(t, synthesisFallbackReply, reply.Reply)
		assert.Equal(t, 2, gw.callCount)
	})
}

func TestAnswer_NotConfiguredFallsBackToStub(t *testing.T) {
	// Real registry with only the stub registered; "gemini" is unknown.
	gw := llm.NewRegistry(0, llm.NewStubClient())
	eng := newTestEngine(t, insuranceStore(), gw, testSettings())

	reply, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance"})
	require.NoError(t, err)
	assert.Equal(t, llm.StubProviderName, reply.Provider.Name)
	assert.Equal(t, "stub", reply.Provider.Model)
	assert.Contains(t, reply.Reply, "offline summary of the matched sources")
	// Stub prose is trusted as-is; citations are the full pack.
	assert.Len(t, reply.Citations, 3)
}

func TestAnswer_AdminSeesNotConfigured(t *testing.T) {
	gw := llm.NewRegistry(0, llm.NewStubClient())
	eng := newTestEngine(t, insuranceStore(), gw, testSettings())

	_, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance", Admin: true})
	require.Error(t, err)
	pe, ok := llm.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, llm.CodeNotConfigured, pe.Code)
	assert.Equal(t, "gemini", pe.Provider)
}

func TestAnswer_OtherProviderErrorsSurface(t *testing.T) {
	gw := &scriptedGateway{script: []scriptedResponse{
		{err: &llm.ProviderError{Code: llm.CodeRateLimited, Provider: "gemini"}},
	}}
	eng := newTestEngine(t, insuranceStore(), gw, testSettings())

	_, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance"})
	require.Error(t, err)
	pe, ok := llm.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, llm.CodeRateLimited, pe.Code)
	assert.Equal(t, 1, gw.callCount)
}

func TestAnswer_OriginalsPass(t *testing.T) {
	router := `{"answer":"Filed in May [1].","needsOriginals":true,` +
		`"requestedArtifactIds":["a1","ghost"],"reason":"claim numbers missing"}`
	gw := &scriptedGateway{script: []scriptedResponse{
		{text: router},
		{text: "The original confirms claim #123 was filed on May 1 [O1][1]."},
	}}
	st := insuranceStore()
	st.originals = map[string]store.Original{
		"a1": {Text: "Full text of the claim form for #123."},
	}
	eng := newTestEngine(t, st, gw, testSettings())

	reply, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance", AllowOriginals: true})
	require.NoError(t, err)

	// Only artifacts present in the packed index are fetched.
	assert.Equal(t, []string{"a1"}, st.fetches)
	assert.Equal(t, 2, gw.callCount)
	assert.Contains(t, gw.calls[1].req.Messages[2].Content, "ORIGINAL 1: Insurance claim filed")

	assert.Equal(t, "The original confirms claim #123 was filed on May 1 [O1][1].", reply.Reply)
	require.Len(t, reply.Citations, 4)
	last := reply.Citations[3]
	assert.Equal(t, "original", last.Kind)
	assert.Equal(t, 1, last.Index)
	assert.Equal(t, "a1", last.ArtifactID)
}

func TestAnswer_OriginalsDisabledByFlag(t *testing.T) {
	router := `{"answer":"Filed in May [1].","needsOriginals":true,"requestedArtifactIds":["a1"]}`
	gw := &scriptedGateway{script: []scriptedResponse{{text: router}}}
	st := insuranceStore()
	eng := newTestEngine(t, st, gw, testSettings())

	reply, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance"})
	require.NoError(t, err)
	assert.Empty(t, st.fetches)
	assert.Equal(t, 1, gw.callCount)
	assert.Equal(t, "Filed in May [1].", reply.Reply)
}

func TestAnswer_OriginalsFetchFailureNoted(t *testing.T) {
	router := `{"answer":"Filed in May [1].","needsOriginals":true,"requestedArtifactIds":["a1"]}`
	gw := &scriptedGateway{script: []scriptedResponse{{text: router}}}
	st := insuranceStore()
	st.fetchErr = map[string]error{"a1": errors.New("blob missing")}
	eng := newTestEngine(t, st, gw, testSettings())

	reply, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance", AllowOriginals: true})
	require.NoError(t, err)

	// Nothing fetched means no augmented call; the note rides on the
	// first-pass answer.
	assert.Equal(t, 1, gw.callCount)
	assert.True(t, strings.HasPrefix(reply.Reply, "Filed in May [1]."))
	assert.Contains(t, reply.Reply, `Couldn't load the original document for "Insurance claim filed".`)
}

func TestAnswer_OriginalsCallFailureKeepsFirstPass(t *testing.T) {
	router := `{"answer":"Filed in May [1].","needsOriginals":true,"requestedArtifactIds":["a1"]}`
	gw := &scriptedGateway{script: []scriptedResponse{
		{text: router},
		{err: &llm.ProviderError{Code: llm.CodeUpstreamTimeout, Provider: "gemini"}},
	}}
	st := insuranceStore()
	st.originals = map[string]store.Original{"a1": {Text: "Full claim text."}}
	eng := newTestEngine(t, st, gw, testSettings())

	reply, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance", AllowOriginals: true})
	require.NoError(t, err)
	assert.Equal(t, 2, gw.callCount)
	assert.True(t, strings.HasPrefix(reply.Reply, "Filed in May [1]."))
	assert.Contains(t, reply.Reply, "The original-document pass failed; this answer uses summaries only.")
	// No original citation is attached when the pass fails.
	assert.Len(t, reply.Citations, 3)
}

func TestAnswer_SynthesisFlow(t *testing.T) {
	plan := `{"entities":[{"id":"e1","type":"org","canonical":"Acme Insurance","citations":[1]}],` +
		`"events":[{"id":"ev1","dateISO":"2024-05-01","summary":"Claim filed","citations":[1]}]}`
	writeUp := "## Timeline\n- 2024-05-01: Claim filed [1]\n\n## Key Entities\n- Acme Insurance [1]\n\n" +
		"## Themes\n- Insurance claim lifecycle\n\n## Gaps & Caveats\n- Approval letter not in summaries."
	gw := &scriptedGateway{script: []scriptedResponse{
		{text: routerOK},
		{text: plan},
		{text: writeUp},
	}}
	eng := newTestEngine(t, insuranceStore(), gw, testSettings())

	reply, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance", SynthesisMode: true})
	require.NoError(t, err)

	assert.Equal(t, 3, gw.callCount)
	assert.Equal(t, writeUp, reply.Reply)
	assert.Contains(t, gw.calls[0].req.SystemPrompt, "Synthesis mode")
	assert.Contains(t, gw.calls[1].req.Messages[2].Content, "synthesis plan")
	assert.Contains(t, gw.calls[2].req.Messages[1].Content, `"canonical":"Acme Insurance"`)
	assert.Len(t, reply.Citations, 3)
}

func TestAnswer_SynthesisMalformedWriteUpDegrades(t *testing.T) {
	plan := `{"entities":[],"events":[{"id":"ev1","summary":"Claim filed","citations":[1]}]}`
	gw := &scriptedGateway{script: []scriptedResponse{
		{text: routerOK},
		{text: plan},
		{text: "## Timeline\nstuff\n\n## Themes\nmissing the entities section"},
	}}
	eng := newTestEngine(t, insuranceStore(), gw, testSettings())

	reply, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance", SynthesisMode: true})
	require.NoError(t, err)
	assert.Equal(t, 3, gw.callCount)
	assert.Equal(t, "The claim was approved on May 3 [1].", reply.Reply)
}

func TestAnswer_CountingFlow(t *testing.T) {
	extraction := `{"occurrences":[
	  {"who":"Alex","action":"visited the dentist","when":"2024-03-01","citations":[1]},
	  {"who":"Alex","action":"visited the dentist","when":"2024-04-12","citations":[]},
	  {"who":"Alex","action":"visited the dentist","when":"2024-05-20","citations":[99]}
	]}`
	gw := &scriptedGateway{script: []scriptedResponse{{text: extraction}}}
	st := &fakeStore{summaries: []timeline.Summary{
		sum("a1", "Dental billing summary", "2024-06-01", "Overview of how many dentist visits were billed this year."),
	}}
	eng := newTestEngine(t, st, gw, testSettings())

	reply, err := eng.Answer(context.Background(), timeline.Request{Message: "how many dentist visits"})
	require.NoError(t, err)

	// Counting replaces the router pass entirely.
	assert.Equal(t, 1, gw.callCount)
	assert.Contains(t, gw.calls[0].req.Messages[2].Content, "counting question")

	assert.True(t, strings.HasPrefix(reply.Reply, "I found 1 occurrence in your summaries:"))
	assert.Contains(t, reply.Reply, "on 2024-03-01")
	require.Len(t, reply.Citations, 1)
	assert.Equal(t, 1, reply.Citations[0].Index)
	assert.Equal(t, "a1", reply.Citations[0].ArtifactID)
}

func TestAnswer_CountingNoOccurrences(t *testing.T) {
	gw := &scriptedGateway{script: []scriptedResponse{{text: `{"occurrences":[]}`}}}
	st := &fakeStore{summaries: []timeline.Summary{
		sum("a1", "Dental billing summary", "2024-06-01", "Overview of how many dentist visits were billed this year."),
	}}
	eng := newTestEngine(t, st, gw, testSettings())

	reply, err := eng.Answer(context.Background(), timeline.Request{Message: "how many dentist visits"})
	require.NoError(t, err)
	assert.Equal(t, countingUnconfirmedReply, reply.Reply)
	assert.Empty(t, reply.Citations)
}

func TestAnswer_AdminSystemPromptReplacesBase(t *testing.T) {
	settings := testSettings()
	settings.SystemPrompt = "You are a terse archivist. Cite sources as [n]."
	gw := &scriptedGateway{script: []scriptedResponse{{text: routerOK}}}
	eng := newTestEngine(t, insuranceStore(), gw, settings)

	_, err := eng.Answer(context.Background(), timeline.Request{Message: "insurance", AdvisorMode: true})
	require.NoError(t, err)
	sp := gw.calls[0].req.SystemPrompt
	assert.Contains(t, sp, "terse archivist")
	assert.NotContains(t, sp, "Answer ONLY from the numbered sources")
	// The mode addenda survive a prompt override.
	assert.Contains(t, sp, "Advisor mode")
}
