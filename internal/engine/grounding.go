package engine

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// GROUNDING VALIDATORS
// =============================================================================
//
// LLM text is untyped input: every structured shape is parsed tolerantly and
// then citation-filtered. The validators never return errors; a false result
// means the caller takes its fallback branch. Claims whose citation set ends
// up empty or out of range are dropped, never surfaced with a caveat.

// extractJSONObject recovers the first top-level JSON object from free-form
// model output: direct parse, then fenced-code-block stripping, then a scan
// for the first balanced {...} span.
func extractJSONObject(raw string) ([]byte, bool) {
	s := strings.TrimSpace(raw)
	if json.Valid([]byte(s)) && strings.HasPrefix(s, "{") {
		return []byte(s), true
	}

	// Fenced code block wrapper.
	if i := strings.Index(s, "```"); i != -1 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "JSON")
		if end := strings.Index(rest, "```"); end != -1 {
			rest = rest[:end]
		}
		rest = strings.TrimSpace(rest)
		if json.Valid([]byte(rest)) && strings.HasPrefix(rest, "{") {
			return []byte(rest), true
		}
	}

	// Leading/trailing prose: take the first balanced top-level object.
	start := strings.Index(s, "{")
	if start == -1 {
		return nil, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				span := s[start : i+1]
				if json.Valid([]byte(span)) {
					return []byte(span), true
				}
				return nil, false
			}
		}
	}
	return nil, false
}

// filterCitations keeps only integers in [1, sourceCount].
func filterCitations(cites []int, sourceCount int) []int {
	var out []int
	for _, c := range cites {
		if c >= 1 && c <= sourceCount {
			out = append(out, c)
		}
	}
	return out
}

func capStrings(list []string, max int) []string {
	if len(list) > max {
		return list[:max]
	}
	return list
}

// ParseRouterDecision parses the first-pass output. A decision without answer
// text is useless and reported as a parse failure.
func ParseRouterDecision(raw string, sourceCount int) (*RouterDecision, bool) {
	data, ok := extractJSONObject(raw)
	if !ok {
		return nil, false
	}
	var d RouterDecision
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, false
	}
	if strings.TrimSpace(d.Answer) == "" {
		return nil, false
	}
	d.RequestedArtifactIDs = capStrings(d.RequestedArtifactIDs, maxRequestedArtifacts)
	d.SuggestedActions = capStrings(d.SuggestedActions, maxSuggestedActions)
	_ = sourceCount // router output carries no numeric citations to filter
	return &d, true
}

// ParseSynthesisPlan parses and citation-filters the extraction output.
// Events with no valid citation are dropped; entities survive with an empty
// citation set but still have out-of-range numbers removed.
func ParseSynthesisPlan(raw string, sourceCount int) (*SynthesisPlan, bool) {
	data, ok := extractJSONObject(raw)
	if !ok {
		return nil, false
	}
	var p SynthesisPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false
	}

	if len(p.Entities) > maxEntities {
		p.Entities = p.Entities[:maxEntities]
	}
	for i := range p.Entities {
		p.Entities[i].Aliases = capStrings(p.Entities[i].Aliases, maxEntityAliases)
		p.Entities[i].Citations = filterCitations(p.Entities[i].Citations, sourceCount)
	}

	var events []Event
	for _, ev := range p.Events {
		ev.Citations = filterCitations(ev.Citations, sourceCount)
		if len(ev.Citations) == 0 {
			continue
		}
		ev.Actors = capStrings(ev.Actors, maxEventActors)
		events = append(events, ev)
		if len(events) == maxEvents {
			break
		}
	}
	p.Events = events
	return &p, true
}

// ParseCountingExtraction parses and citation-filters the counting output.
// Occurrences with no valid citation are dropped entirely.
func ParseCountingExtraction(raw string, sourceCount int) (*CountingExtraction, bool) {
	data, ok := extractJSONObject(raw)
	if !ok {
		return nil, false
	}
	var e CountingExtraction
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	var kept []Occurrence
	for _, occ := range e.Occurrences {
		occ.Citations = filterCitations(occ.Citations, sourceCount)
		if len(occ.Citations) == 0 {
			continue
		}
		kept = append(kept, occ)
	}
	e.Occurrences = kept
	return &e, true
}
