package engine

import (
	"fmt"
	"sort"
	"strings"
)

// countingPhrases are the cues that route a query into the counting pass.
var countingPhrases = []string{
	"how many",
	"how often",
	"number of times",
	"count of",
}

// IsCountingQuery reports whether the query asks for a discrete count.
func IsCountingQuery(query string) bool {
	q := normalizeText(query)
	for _, p := range countingPhrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	return strings.HasPrefix(q, "count ")
}

// occurrenceKey normalizes the identifying fields of an occurrence. Two
// occurrences with the same key count once even when their citation sets or
// evidence text differ.
func occurrenceKey(o Occurrence) string {
	norm := func(s string) string { return strings.TrimSpace(strings.ToLower(s)) }
	return strings.Join([]string{norm(o.Who), norm(o.Action), norm(o.When), norm(o.Where)}, "|")
}

// DedupeOccurrences collapses occurrences that share a normalized
// (who, action, when, where) key, keeping the first of each and merging the
// citation sets so the kept occurrence cites every supporting source.
func DedupeOccurrences(occs []Occurrence) []Occurrence {
	var out []Occurrence
	index := make(map[string]int)
	for _, occ := range occs {
		key := occurrenceKey(occ)
		if i, seen := index[key]; seen {
			out[i].Citations = mergeCitations(out[i].Citations, occ.Citations)
			continue
		}
		index[key] = len(out)
		out = append(out, occ)
	}
	return out
}

func mergeCitations(a, b []int) []int {
	seen := make(map[int]bool, len(a))
	for _, c := range a {
		seen[c] = true
	}
	for _, c := range b {
		if !seen[c] {
			a = append(a, c)
			seen[c] = true
		}
	}
	sort.Ints(a)
	return a
}

// ComposeCountingReply renders the deterministic counting answer. Zero
// occurrences yields the fixed unconfirmed reply, which deliberately does not
// claim the count is zero.
func ComposeCountingReply(occs []Occurrence) string {
	if len(occs) == 0 {
		return countingUnconfirmedReply
	}

	noun := "occurrences"
	if len(occs) == 1 {
		noun = "occurrence"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "I found %d %s in your summaries:\n", len(occs), noun)

	listed := occs
	if len(listed) > maxListedOccurrences {
		listed = listed[:maxListedOccurrences]
	}
	for _, occ := range listed {
		sb.WriteString("\n- ")
		sb.WriteString(describeOccurrence(occ))
		for _, c := range occ.Citations {
			fmt.Fprintf(&sb, " [%d]", c)
		}
	}
	if len(occs) > maxListedOccurrences {
		fmt.Fprintf(&sb, "\n\n(%d more not listed.)", len(occs)-maxListedOccurrences)
	}
	return sb.String()
}

func describeOccurrence(o Occurrence) string {
	parts := []string{strings.TrimSpace(o.Who), strings.TrimSpace(o.Action)}
	if o.When != "" {
		parts = append(parts, "on "+strings.TrimSpace(o.When))
	}
	if o.Where != "" {
		parts = append(parts, "at "+strings.TrimSpace(o.Where))
	}
	desc := strings.Join(nonEmpty(parts), " ")
	if o.Evidence != "" {
		desc += fmt.Sprintf(" (%q)", strings.TrimSpace(o.Evidence))
	}
	return desc
}

func nonEmpty(parts []string) []string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
