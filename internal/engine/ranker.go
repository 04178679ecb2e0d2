package engine

import (
	"sort"
	"time"

	"timelined/internal/timeline"
)

// Rank orders candidates by relevance and recency, then selects the desired
// count under cross-day diversity and duplicate-suppression constraints.
//
// Selection is two-phase: a strict pass with both constraints, then a
// relaxation ladder (drop dedupe, then drop the day-bucket cap) so the packer
// always receives exactly min(desired, available) items.
func Rank(cands []RankedCandidate, desired int, cfg RankerConfig, now time.Time) []RankedCandidate {
	if desired < 1 {
		desired = 1
	}
	ranked := scoreAndSort(cands, cfg, now)

	// Small result sets are never pruned.
	if len(ranked) <= desired {
		return ranked
	}

	bucketCap := cfg.BucketCapSmall
	if desired >= 4 {
		bucketCap = cfg.BucketCapLarge
	}

	selected := make([]RankedCandidate, 0, desired)
	taken := make(map[int]bool, desired) // by original position
	seenKeys := make(map[string]bool)
	seenTitles := make(map[string]bool)
	buckets := make(map[string]int)

	// Strict pass: day-bucket cap and dedupe both active.
	for _, c := range ranked {
		if len(selected) == desired {
			break
		}
		day := dayBucket(c.Recency)
		if day != "" && buckets[day] >= bucketCap {
			continue
		}
		title := normalizeText(c.Item.Title())
		if seenKeys[c.ArtifactKey] || (title != "" && seenTitles[title]) {
			continue
		}
		selected = append(selected, c)
		taken[c.position] = true
		seenKeys[c.ArtifactKey] = true
		if title != "" {
			seenTitles[title] = true
		}
		if day != "" {
			buckets[day]++
		}
	}

	// Relax dedupe: constraints proved too strict for the desired count.
	if len(selected) < desired {
		for _, c := range ranked {
			if len(selected) == desired {
				break
			}
			if taken[c.position] {
				continue
			}
			day := dayBucket(c.Recency)
			if day != "" && buckets[day] >= bucketCap {
				continue
			}
			selected = append(selected, c)
			taken[c.position] = true
			if day != "" {
				buckets[day]++
			}
		}
	}

	// Relax bucket limiting: fill remaining slots in score order.
	if len(selected) < desired {
		for _, c := range ranked {
			if len(selected) == desired {
				break
			}
			if taken[c.position] {
				continue
			}
			selected = append(selected, c)
			taken[c.position] = true
		}
	}

	return selected
}

// scoreAndSort assigns scores and returns candidates sorted descending, ties
// broken by original order.
func scoreAndSort(cands []RankedCandidate, cfg RankerConfig, now time.Time) []RankedCandidate {
	n := len(cands)
	ranked := make([]RankedCandidate, n)
	copy(ranked, cands)
	for i := range ranked {
		// Inverted rank position, normalized so the step between adjacent
		// positions stays below the recency boosts on non-trivial sets.
		ranked[i].score = float64(n-ranked[i].position) / float64(n)
		ranked[i].score += recencyBoost(ranked[i].Recency, cfg, now)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].position < ranked[j].position
	})
	return ranked
}

func recencyBoost(ts time.Time, cfg RankerConfig, now time.Time) float64 {
	if ts.IsZero() {
		return 0
	}
	age := now.Sub(ts)
	switch {
	case age <= cfg.RecentAge:
		return cfg.RecentBoost
	case age <= cfg.NearAge:
		return cfg.NearBoost
	}
	return 0
}

// dayBucket keys a candidate by calendar day. Undated items return "" and are
// exempt from the per-day cap.
func dayBucket(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format("2006-01-02")
}

// Candidates wraps items in ranking bookkeeping, preserving list order as the
// original relevance order.
func Candidates(items []timeline.ContextItem) []RankedCandidate {
	out := make([]RankedCandidate, 0, len(items))
	for i, item := range items {
		out = append(out, NewCandidate(item, i))
	}
	return out
}

// Items unwraps ranked candidates back to context items.
func Items(cands []RankedCandidate) []timeline.ContextItem {
	out := make([]timeline.ContextItem, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Item)
	}
	return out
}
