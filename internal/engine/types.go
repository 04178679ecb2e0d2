// Package engine implements the context and grounded-answer orchestration:
// matching stored artifacts against a query, ranking and packing them into a
// numbered evidence block, driving the multi-pass LLM conversation, and
// validating that every extracted claim cites a packed source.
package engine

import (
	"time"

	"timelined/internal/timeline"
)

// RankedCandidate pairs a context item with the ranking bookkeeping the ranker
// needs: the stable dedupe key and the recency timestamp.
type RankedCandidate struct {
	Item        timeline.ContextItem
	ArtifactKey string
	Recency     time.Time

	// score is assigned during ranking; original position breaks ties.
	score    float64
	position int
}

// NewCandidate wraps an item for ranking. Position is the item's index in the
// pre-ranked candidate list (relevance order).
func NewCandidate(item timeline.ContextItem, position int) RankedCandidate {
	return RankedCandidate{
		Item:        item,
		ArtifactKey: item.Key(),
		Recency:     item.Recency(),
		position:    position,
	}
}

// SourceIndex is the ordered 1-based mapping from packed-context position to
// context item. All citation numbers the LLM produces are validated against
// [1, Len()].
type SourceIndex struct {
	items []timeline.ContextItem
}

// NewSourceIndex builds an index over the packed items, in pack order.
func NewSourceIndex(items []timeline.ContextItem) SourceIndex {
	return SourceIndex{items: items}
}

// Len is the number of packed sources.
func (s SourceIndex) Len() int { return len(s.items) }

// At returns the item at the 1-based position n; ok is false out of range.
func (s SourceIndex) At(n int) (timeline.ContextItem, bool) {
	if n < 1 || n > len(s.items) {
		return timeline.ContextItem{}, false
	}
	return s.items[n-1], true
}

// Items returns the packed items in order.
func (s SourceIndex) Items() []timeline.ContextItem { return s.items }

// Citations returns one citation per packed source, in pack order.
func (s SourceIndex) Citations() []timeline.Citation {
	out := make([]timeline.Citation, 0, len(s.items))
	for i, item := range s.items {
		out = append(out, timeline.CitationFor(i+1, item))
	}
	return out
}

// SummaryArtifactIDs returns the artifact ids of the packed summary items.
func (s SourceIndex) SummaryArtifactIDs() map[string]int {
	out := make(map[string]int)
	for i, item := range s.items {
		if item.Kind == timeline.KindSummary {
			out[item.Summary.ArtifactID] = i + 1
		}
	}
	return out
}

// RouterDecision is the parsed first-pass output: the answer itself plus the
// routing verdict on whether original documents are needed.
type RouterDecision struct {
	Answer               string   `json:"answer"`
	NeedsOriginals       bool     `json:"needsOriginals"`
	RequestedArtifactIDs []string `json:"requestedArtifactIds"`
	Reason               string   `json:"reason"`
	SuggestedActions     []string `json:"suggestedActions"`
}

// Entity is one canonical actor/place/matter extracted by the synthesis pass.
type Entity struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"` // person, org, location, matter, document
	Canonical  string   `json:"canonical"`
	Aliases    []string `json:"aliases"`
	Confidence string   `json:"confidence"` // high, medium, low
	Citations  []int    `json:"citations"`
}

// Event is one dated occurrence in the synthesis plan. Events must keep at
// least one in-range citation to survive validation.
type Event struct {
	ID        string   `json:"id"`
	DateISO   string   `json:"dateISO"`
	DateLabel string   `json:"dateLabel"`
	Actors    []string `json:"actors"`
	Summary   string   `json:"summary"`
	Theme     string   `json:"theme"`
	Impact    string   `json:"impact"`
	Citations []int    `json:"citations"`
}

// SynthesisPlan is the intermediate extraction grounding the timeline write-up.
type SynthesisPlan struct {
	Entities []Entity `json:"entities"`
	Events   []Event  `json:"events"`
}

// Occurrence is one discrete counted occurrence from the counting pass.
type Occurrence struct {
	Who       string `json:"who"`
	Action    string `json:"action"`
	When      string `json:"when"`
	Where     string `json:"where"`
	Evidence  string `json:"evidence"`
	Citations []int  `json:"citations"`
}

// CountingExtraction is the parsed counting-pass output.
type CountingExtraction struct {
	Occurrences []Occurrence `json:"occurrences"`
}

// List-length caps enforced by the grounding validators, by truncation.
const (
	maxEntities            = 25
	maxEvents              = 15
	maxRequestedArtifacts  = 3
	maxSuggestedActions    = 5
	maxEntityAliases       = 6
	maxEventActors         = 5
	maxListedOccurrences   = 5
	maxOriginalChars       = 150_000
	maxOriginalsTotalChars = 300_000
)

// RankerConfig carries the ranking heuristics. The recency thresholds and
// per-day caps are tie-breaking knobs, not invariants; defaults match the
// production values.
type RankerConfig struct {
	RecentBoost    float64       // boost for items younger than RecentAge
	RecentAge      time.Duration // default 7 days
	NearBoost      float64       // boost for items younger than NearAge
	NearAge        time.Duration // default 30 days
	BucketCapLarge int           // per-day cap when desired count >= 4
	BucketCapSmall int           // per-day cap otherwise
}

// DefaultRankerConfig returns the production heuristics.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{
		RecentBoost:    0.35,
		RecentAge:      7 * 24 * time.Hour,
		NearBoost:      0.15,
		NearAge:        30 * 24 * time.Hour,
		BucketCapLarge: 2,
		BucketCapSmall: 1,
	}
}
