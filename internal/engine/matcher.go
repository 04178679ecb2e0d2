package engine

import (
	"strings"

	"timelined/internal/timeline"
)

// RecentPlaceholder replaces a blank user message. It matches every summary,
// so a blank query degrades to "tell me about my recent items".
const RecentPlaceholder = "recent"

// normalizeText lowercases and collapses runs of whitespace to single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// queryTokens splits a normalized query into scoring tokens.
func queryTokens(q string) []string {
	return strings.Fields(normalizeText(q))
}

// MatchSummaries returns the summaries relevant to the query, each wrapped as
// a context item carrying the snippet text chosen from the first matching
// field. The placeholder query matches everything.
func MatchSummaries(query string, sums []timeline.Summary) []timeline.ContextItem {
	q := normalizeText(query)
	var out []timeline.ContextItem
	for _, sum := range sums {
		snippet, ok := matchSummary(q, sum)
		if !ok {
			continue
		}
		item := sum
		item.Snippet = snippet
		out = append(out, timeline.NewSummaryItem(item))
	}
	return out
}

// AllSummaries wraps every summary as a context item, preserving list order.
// This is the fallback candidate set when the matched set is empty.
func AllSummaries(sums []timeline.Summary) []timeline.ContextItem {
	out := make([]timeline.ContextItem, 0, len(sums))
	for _, sum := range sums {
		item := sum
		if item.Snippet == "" {
			item.Snippet = item.SummaryText
		}
		out = append(out, timeline.NewSummaryItem(item))
	}
	return out
}

// matchSummary applies the substring rule to a single artifact. The returned
// snippet comes from the first non-empty field that produced the hit.
func matchSummary(q string, sum timeline.Summary) (string, bool) {
	if q == "" || q == RecentPlaceholder {
		return firstNonEmpty(sum.Snippet, sum.SummaryText, sum.Title), true
	}

	// Identity fields: title, artifact id, source label.
	if strings.Contains(normalizeText(sum.Title), q) ||
		strings.Contains(normalizeText(sum.ArtifactID), q) ||
		strings.Contains(normalizeText(sum.Source), q) {
		return firstNonEmpty(sum.Snippet, sum.SummaryText, sum.Title), true
	}

	// Full-text fields, in priority order.
	if sum.SummaryText != "" && strings.Contains(normalizeText(sum.SummaryText), q) {
		return sum.SummaryText, true
	}
	for _, h := range sum.Highlights {
		if h != "" && strings.Contains(normalizeText(h), q) {
			return h, true
		}
	}
	for _, v := range sum.Metadata {
		if v != "" && strings.Contains(normalizeText(v), q) {
			return firstNonEmpty(sum.Snippet, sum.SummaryText, v), true
		}
	}
	return "", false
}

// ScoreSelectionSets scores saved searches by query-token overlap. Items with
// zero score are excluded.
func ScoreSelectionSets(query string, sets []timeline.SelectionSetMeta) []ScoredItem {
	tokens := queryTokens(query)
	var out []ScoredItem
	for _, m := range sets {
		haystack := normalizeText(m.Title + " " + m.Query + " " + m.Source)
		if score := countTokenHits(haystack, tokens); score > 0 {
			out = append(out, ScoredItem{Item: timeline.NewSelectionSetItem(m), Score: score})
		}
	}
	return out
}

// ScoreRuns scores run-history entries by query-token overlap against the
// action, status and selection-set reference.
func ScoreRuns(query string, runs []timeline.RunMeta) []ScoredItem {
	tokens := queryTokens(query)
	var out []ScoredItem
	for _, r := range runs {
		haystack := normalizeText(r.Action + " " + r.Status + " " + r.SelectionSetRef)
		if score := countTokenHits(haystack, tokens); score > 0 {
			out = append(out, ScoredItem{Item: timeline.NewRunItem(r), Score: score})
		}
	}
	return out
}

// ScoredItem is a metadata item with its token-overlap score.
type ScoredItem struct {
	Item  timeline.ContextItem
	Score int
}

func countTokenHits(haystack string, tokens []string) int {
	n := 0
	for _, t := range tokens {
		if strings.Contains(haystack, t) {
			n++
		}
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
