package engine

import (
	"strings"

	"timelined/internal/timeline"
)

// guardReply composes the canned no-LLM replies produced by the entry guards:
// empty citations, configured provider, fixed text.
func (rc *requestContext) guardReply(text string) timeline.Reply {
	rc.transition(stateDone)
	return timeline.Reply{
		Reply:            text,
		Citations:        []timeline.Citation{},
		SuggestedActions: []string{},
		Provider:         rc.provider,
		RequestID:        rc.requestID,
	}
}

// compose merges the validated answer, citations and suggested actions into
// the final reply. Unless a pass narrowed them (counting), the citations are
// the full source index, in pack order, plus any original-document citations
// appended by the originals pass.
func (rc *requestContext) compose() timeline.Reply {
	text := strings.TrimSpace(rc.answer)
	if len(rc.notes) > 0 {
		var sb strings.Builder
		sb.WriteString(text)
		sb.WriteString("\n\nNotes:")
		for _, n := range rc.notes {
			sb.WriteString("\n- ")
			sb.WriteString(n)
		}
		text = sb.String()
	}

	citations := rc.citations
	if citations == nil {
		citations = rc.index.Citations()
	}
	if citations == nil {
		citations = []timeline.Citation{}
	}

	suggested := rc.suggested
	if suggested == nil {
		suggested = []string{}
	}

	return timeline.Reply{
		Reply:            text,
		Citations:        citations,
		SuggestedActions: suggested,
		Provider:         rc.provider,
		RequestID:        rc.requestID,
	}
}
