// Package timeline defines the domain types shared across the grounded-answer
// engine: the context-item union packed into evidence blocks, the citations
// that reference them, and the chat request/reply envelopes.
package timeline

import (
	"fmt"
	"strings"
	"time"
)

// ItemKind discriminates the three context-item shapes.
type ItemKind string

const (
	KindSummary      ItemKind = "summary"
	KindSelectionSet ItemKind = "selection_set"
	KindRun          ItemKind = "run"
)

// Summary is a stored summary artifact. Snippet is the short matched excerpt
// used when the item is packed; SummaryText, Highlights and Metadata are the
// full artifact fields the matcher searches.
type Summary struct {
	ArtifactID  string            `yaml:"artifact_id" json:"artifactId"`
	Title       string            `yaml:"title" json:"title"`
	DateISO     string            `yaml:"date_iso" json:"dateISO,omitempty"`
	Snippet     string            `yaml:"snippet" json:"snippet"`
	Source      string            `yaml:"source" json:"source"`
	SourceID    string            `yaml:"source_id" json:"sourceId"`
	SummaryText string            `yaml:"summary" json:"summary,omitempty"`
	Highlights  []string          `yaml:"highlights" json:"highlights,omitempty"`
	Metadata    map[string]string `yaml:"metadata" json:"metadata,omitempty"`
}

// SelectionSetMeta describes a saved search over the user's mailbox/documents.
type SelectionSetMeta struct {
	ID           string `yaml:"id" json:"id"`
	Title        string `yaml:"title" json:"title"`
	Source       string `yaml:"source" json:"source"`
	Query        string `yaml:"query" json:"query"`
	UpdatedAtISO string `yaml:"updated_at" json:"updatedAt"`
	Text         string `yaml:"text" json:"text"`
}

// RunMeta describes one recorded run of a summarize/export action.
type RunMeta struct {
	ID              string         `yaml:"id" json:"id"`
	Action          string         `yaml:"action" json:"action"`
	SelectionSetRef string         `yaml:"selection_set_id" json:"selectionSetId,omitempty"`
	StartedAtISO    string         `yaml:"started_at" json:"startedAt"`
	FinishedAtISO   string         `yaml:"finished_at" json:"finishedAt,omitempty"`
	Status          string         `yaml:"status" json:"status"`
	Counts          map[string]int `yaml:"counts" json:"counts,omitempty"`
	RequestIDs      []string       `yaml:"request_ids" json:"requestIds,omitempty"`
	Text            string         `yaml:"text" json:"text"`
}

// ContextItem is the tagged union of the three evidence shapes. Exactly one of
// Summary, SelectionSet and Run is non-nil, matching Kind; use the New*Item
// constructors to preserve that invariant.
type ContextItem struct {
	Kind         ItemKind
	Summary      *Summary
	SelectionSet *SelectionSetMeta
	Run          *RunMeta
}

// NewSummaryItem wraps a summary artifact as a context item.
func NewSummaryItem(s Summary) ContextItem {
	return ContextItem{Kind: KindSummary, Summary: &s}
}

// NewSelectionSetItem wraps saved-search metadata as a context item.
func NewSelectionSetItem(m SelectionSetMeta) ContextItem {
	return ContextItem{Kind: KindSelectionSet, SelectionSet: &m}
}

// NewRunItem wraps run-history metadata as a context item.
func NewRunItem(r RunMeta) ContextItem {
	return ContextItem{Kind: KindRun, Run: &r}
}

// Title returns the human-readable label rendered in the pack header.
func (c ContextItem) Title() string {
	switch c.Kind {
	case KindSummary:
		return c.Summary.Title
	case KindSelectionSet:
		return c.SelectionSet.Title
	case KindRun:
		if c.Run.Action != "" {
			return c.Run.Action + " run"
		}
		return "run"
	}
	return ""
}

// DateLabel returns the date rendered in the pack header, or "" when unknown.
func (c ContextItem) DateLabel() string {
	switch c.Kind {
	case KindSummary:
		return c.Summary.DateISO
	case KindSelectionSet:
		return c.SelectionSet.UpdatedAtISO
	case KindRun:
		return c.Run.StartedAtISO
	}
	return ""
}

// Body returns the text packed under the item's header.
func (c ContextItem) Body() string {
	switch c.Kind {
	case KindSummary:
		return c.Summary.Snippet
	case KindSelectionSet:
		return c.SelectionSet.Text
	case KindRun:
		return c.Run.Text
	}
	return ""
}

// WithBody returns a copy of the item with its body text replaced. The packer
// uses this to record the truncated text actually included in the pack.
func (c ContextItem) WithBody(text string) ContextItem {
	switch c.Kind {
	case KindSummary:
		s := *c.Summary
		s.Snippet = text
		return ContextItem{Kind: KindSummary, Summary: &s}
	case KindSelectionSet:
		m := *c.SelectionSet
		m.Text = text
		return ContextItem{Kind: KindSelectionSet, SelectionSet: &m}
	case KindRun:
		r := *c.Run
		r.Text = text
		return ContextItem{Kind: KindRun, Run: &r}
	}
	return c
}

// Key returns the stable identity used for deduplication across ranking
// passes. Summaries dedupe on source:sourceId, metadata items on their id.
func (c ContextItem) Key() string {
	switch c.Kind {
	case KindSummary:
		return fmt.Sprintf("summary:%s:%s", strings.ToLower(c.Summary.Source), c.Summary.SourceID)
	case KindSelectionSet:
		return "selection_set:" + c.SelectionSet.ID
	case KindRun:
		return "run:" + c.Run.ID
	}
	return ""
}

// Recency returns the item's timestamp for recency boosts and day-bucket
// grouping. The zero time means the item carries no usable date.
func (c ContextItem) Recency() time.Time {
	return parseWhen(c.DateLabel())
}

func parseWhen(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Citation points one reply fact back at a packed source. Index is the 1-based
// position in the source index; originals use Kind "original" and carry the
// artifact id they were fetched for.
type Citation struct {
	Kind           string `json:"kind"`
	Index          int    `json:"index"`
	Title          string `json:"title,omitempty"`
	DateISO        string `json:"dateISO,omitempty"`
	SelectionSetID string `json:"selectionSetId,omitempty"`
	RunID          string `json:"runId,omitempty"`
	ArtifactID     string `json:"artifactId,omitempty"`
}

// CitationFor builds the citation describing a packed context item.
func CitationFor(index int, item ContextItem) Citation {
	c := Citation{Kind: string(item.Kind), Index: index, Title: item.Title()}
	switch item.Kind {
	case KindSummary:
		c.DateISO = item.Summary.DateISO
		c.ArtifactID = item.Summary.ArtifactID
	case KindSelectionSet:
		c.SelectionSetID = item.SelectionSet.ID
	case KindRun:
		c.RunID = item.Run.ID
	}
	return c
}

// OriginalCitation builds the [O#] citation for a fetched original document.
func OriginalCitation(index int, artifactID, title string) Citation {
	return Citation{Kind: "original", Index: index, Title: title, ArtifactID: artifactID}
}

// Request is the chat request body handled by the engine.
type Request struct {
	Message        string `json:"message"`
	AllowOriginals bool   `json:"allowOriginals"`
	AdvisorMode    bool   `json:"advisorMode"`
	SynthesisMode  bool   `json:"synthesisMode"`

	// Admin marks an elevated caller: configuration errors are surfaced to
	// admins instead of being recovered through the stub provider.
	Admin bool `json:"-"`
}

// ProviderInfo reports which provider/model actually produced the reply text.
type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Reply is the composed chat response.
type Reply struct {
	Reply            string       `json:"reply"`
	Citations        []Citation   `json:"citations"`
	SuggestedActions []string     `json:"suggested_actions"`
	Provider         ProviderInfo `json:"provider"`
	RequestID        string       `json:"requestId"`
}
