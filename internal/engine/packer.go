package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"timelined/internal/timeline"
)

const truncationMarker = " [truncated]"

// headerLabel maps an item kind to its pack-header label.
func headerLabel(kind timeline.ItemKind) string {
	switch kind {
	case timeline.KindSelectionSet:
		return "SAVED SEARCH"
	case timeline.KindRun:
		return "RUN"
	}
	return "SUMMARY"
}

// renderHeader renders the numbered header line for one packed source.
func renderHeader(n int, item timeline.ContextItem) string {
	h := fmt.Sprintf("SOURCE %d (%s): %s", n, headerLabel(item.Kind), item.Title())
	if d := item.DateLabel(); d != "" {
		h += fmt.Sprintf(" [%s]", d)
	}
	return h
}

// Pack assembles the numbered evidence block under the hard character budget.
// Items are taken in order; an item whose header no longer fits ends the pack
// (never a partial header). Bodies are truncated to the remaining budget with
// a marker. The returned items carry their truncated bodies and form the
// request's source index.
func Pack(items []timeline.ContextItem, maxChars int) (string, []timeline.ContextItem) {
	var sb strings.Builder
	var included []timeline.ContextItem

	for _, item := range items {
		n := len(included) + 1
		header := renderHeader(n, item)

		// Block layout: optional separator, header, newline, body.
		overhead := len(header) + 1
		if n > 1 {
			overhead += 2 // "\n\n" between blocks
		}
		remaining := maxChars - sb.Len()
		if overhead > remaining {
			break
		}

		body := strings.TrimSpace(item.Body())
		bodyBudget := remaining - overhead
		if len(body) > bodyBudget {
			cut := bodyBudget - len(truncationMarker)
			if cut < 0 {
				cut = 0
			}
			// Never cut mid-rune: back the byte index off to a rune start.
			for cut > 0 && !utf8.RuneStart(body[cut]) {
				cut--
			}
			body = strings.TrimSpace(body[:cut]) + truncationMarker
			if len(body) > bodyBudget {
				// Only reachable at cut 0, where body is the ASCII marker.
				body = body[:bodyBudget]
			}
		}

		if n > 1 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(header)
		sb.WriteString("\n")
		sb.WriteString(body)

		included = append(included, item.WithBody(body))
	}

	return sb.String(), included
}

// AllocateSlots splits the desired item count between evidentiary summaries
// and contextual metadata. Metadata gets clamp(floor(desired/4), 2, 5) slots;
// synthesis mode needs at least 2 summary slots and shrinks the metadata
// allocation first to get them.
func AllocateSlots(desired int, synthesis bool) (summarySlots, metaSlots int) {
	if desired < 1 {
		desired = 1
	}
	metaSlots = desired / 4
	if metaSlots < 2 {
		metaSlots = 2
	}
	if metaSlots > 5 {
		metaSlots = 5
	}
	if metaSlots >= desired {
		metaSlots = desired - 1
	}
	if metaSlots < 0 {
		metaSlots = 0
	}
	summarySlots = desired - metaSlots

	if synthesis && summarySlots < 2 {
		need := 2 - summarySlots
		if need > metaSlots {
			need = metaSlots
		}
		metaSlots -= need
		summarySlots += need
	}
	return summarySlots, metaSlots
}
