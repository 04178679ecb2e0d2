package engine

import (
	"fmt"
	"strings"
)

// Canned replies. The guard replies are produced without any LLM call; the
// fallback replies cover router/plan parse failures.
const (
	noSourcesReply      = "No timeline sources available to analyze."
	needTwoSourcesReply = "Need at least 2 sources to synthesize a timeline."

	countingUnconfirmedReply = "I can't confirm any discrete occurrences from the summaries alone. " +
		"The summaries may simply not record them. Enable original documents and ask again to check the full text."

	plainFallbackReply = "I couldn't produce a structured answer from the model output. " +
		"The matched sources are listed below; try rephrasing your question."

	advisorFallbackReply = "I couldn't produce a structured advisory answer from the model output. " +
		"Review the matched sources below and consider narrowing the question."

	synthesisFallbackReply = "I couldn't assemble a synthesized timeline from the model output. " +
		"The matched sources are listed below; try again or narrow the date range."
)

// baseSystemPrompt is the non-negotiable grounding contract for every pass.
const baseSystemPrompt = `You are a timeline assistant answering questions about a user's stored email and document summaries.

Rules:
1. Answer ONLY from the numbered sources provided. Never use outside knowledge.
2. Cite sources inline with bracketed numbers, e.g. [1] or [2][3]. Every factual statement needs at least one citation.
3. If the sources do not contain the answer, say so plainly. Do not speculate.
4. Dates matter: prefer exact dates from the sources, and say when a date is unknown.
5. Never invent source numbers. Valid numbers are exactly those present in the context.`

// advisorAddendum shifts the register toward proactive guidance.
const advisorAddendum = `

Advisor mode:
- After answering, point out patterns, gaps, or follow-ups the user may care about.
- Keep advice grounded: every observation still cites its sources.
- Phrase advice as options, not instructions.`

// synthesisAddendum prepares the model for the timeline write-up contract.
const synthesisAddendum = `

Synthesis mode:
- The user wants a consolidated timeline across multiple sources.
- Resolve duplicate mentions of the same person or event to a single canonical form.
- Order events chronologically; undated events go last with an explicit "date unknown".`

// routerInstruction asks the first pass for strict JSON carrying both the
// answer and the originals-routing verdict.
const routerInstruction = `Respond with a single JSON object and nothing else:
{
  "answer": "your complete answer with [n] citations",
  "needsOriginals": false,
  "requestedArtifactIds": [],
  "reason": "one sentence on why originals are or are not needed",
  "suggestedActions": []
}

Set needsOriginals to true ONLY if the summaries are insufficient and the
original documents would materially improve the answer. List at most 3
requestedArtifactIds, chosen from the artifact ids shown in the sources.
suggestedActions: up to 5 short follow-up actions the user could take.`

// countingInstruction replaces the router instruction for counting questions.
const countingInstruction = `The user is asking a counting question. Extract every discrete occurrence
you can verify in the numbered sources. Respond with a single JSON object and nothing else:
{
  "occurrences": [
    {
      "who": "actor",
      "action": "what happened",
      "when": "date or period, empty if unknown",
      "where": "place, empty if unknown",
      "evidence": "short quote or paraphrase from the source",
      "citations": [1]
    }
  ]
}

Rules:
- Every occurrence MUST include at least one source number in citations.
- Do not list an occurrence twice, even if multiple sources mention it.
- If you cannot verify any occurrence, return {"occurrences": []}.`

// synthesisExtractionInstruction asks for the entity/event plan grounding the
// write-up pass.
const synthesisExtractionInstruction = `Extract a synthesis plan from the numbered sources. Respond with a single
JSON object and nothing else:
{
  "entities": [
    {"id": "e1", "type": "person|org|location|matter|document", "canonical": "name",
     "aliases": [], "confidence": "high|medium|low", "citations": [1]}
  ],
  "events": [
    {"id": "ev1", "dateISO": "2024-01-31", "dateLabel": "Jan 31, 2024",
     "actors": ["e1"], "summary": "what happened", "theme": "short theme",
     "impact": "why it matters", "citations": [1]}
  ]
}

Rules:
- At most 25 entities and 15 events.
- Every event MUST cite at least one source number.
- dateISO may be empty when unknown; dateLabel must still describe the timing.`

// writeUpHeadings is the fixed section order the synthesis write-up must keep.
var writeUpHeadings = []string{"## Timeline", "## Key Entities", "## Themes", "## Gaps & Caveats"}

// synthesisWriteUpInstruction renders the write-up instruction around the
// validated plan.
func synthesisWriteUpInstruction(planJSON string) string {
	return fmt.Sprintf(`Write the user's consolidated timeline using ONLY the validated plan below and
the numbered sources. Keep every [n] citation from the plan.

Required sections, in exactly this order:
%s

Validated plan:
%s`, strings.Join(writeUpHeadings, "\n"), planJSON)
}

// originalsInstruction frames the second pass over fetched original documents.
const originalsInstruction = `Original documents are provided below, numbered as ORIGINAL 1, ORIGINAL 2, ...
Answer again using both the summaries and the originals.
Cite summaries as [n] and originals as [O#], e.g. [O1]. Prefer the originals
where they conflict with a summary, and say so when they do.`

// contextBlockMessage renders the evidence pack as the first user message.
func contextBlockMessage(packed string) string {
	return "Context sources:\n\n" + packed
}

// originalBlock renders one fetched original for the originals pass.
func originalBlock(n int, title, text string, truncated bool) string {
	marker := ""
	if truncated {
		marker = truncationMarker
	}
	return fmt.Sprintf("ORIGINAL %d: %s\n%s%s", n, title, text, marker)
}
