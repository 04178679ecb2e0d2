package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timelined/internal/timeline"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello world"},
		{"  lots\t of \n whitespace  ", "lots of whitespace"},
		{"", ""},
		{"MiXeD CaSe", "mixed case"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeText(tt.in))
	}
}

func TestMatchSummaries_TitleMatch(t *testing.T) {
	sums := []timeline.Summary{
		sum("a1", "Lease renewal notice", "2024-03-01", "Landlord sent the renewal."),
		sum("a2", "Dentist appointment", "2024-03-02", "Cleaning on Tuesday."),
	}

	matched := MatchSummaries("lease RENEWAL", sums)
	require.Len(t, matched, 1)
	assert.Equal(t, "a1", matched[0].Summary.ArtifactID)
}

func TestMatchSummaries_FullTextSnippetSource(t *testing.T) {
	s := sum("a1", "March mail", "2024-03-01", "")
	s.Highlights = []string{"Moving truck booked for April 5"}
	matched := MatchSummaries("moving truck", []timeline.Summary{s})
	require.Len(t, matched, 1)
	// The matched highlight becomes the snippet.
	assert.Equal(t, "Moving truck booked for April 5", matched[0].Summary.Snippet)
}

func TestMatchSummaries_MetadataMatchKeepsPreferredSnippet(t *testing.T) {
	s := sum("a1", "March mail", "2024-03-01", "Full summary text here.")
	s.Metadata = map[string]string{"sender": "Acme Insurance"}
	matched := MatchSummaries("acme insurance", []timeline.Summary{s})
	require.Len(t, matched, 1)
	assert.Equal(t, "Full summary text here.", matched[0].Summary.Snippet)
}

func TestMatchSummaries_NoMatchExcluded(t *testing.T) {
	sums := []timeline.Summary{sum("a1", "Lease renewal", "2024-03-01", "Renewal terms.")}
	assert.Empty(t, MatchSummaries("quantum physics", sums))
}

func TestMatchSummaries_RecentPlaceholderMatchesAll(t *testing.T) {
	sums := []timeline.Summary{
		sum("a1", "One", "2024-03-01", "x"),
		sum("a2", "Two", "2024-03-02", "y"),
	}
	assert.Len(t, MatchSummaries(RecentPlaceholder, sums), 2)
}

func TestScoreSelectionSets(t *testing.T) {
	sets := []timeline.SelectionSetMeta{
		{ID: "s1", Title: "Insurance mail", Query: "from:acme", Source: "gmail"},
		{ID: "s2", Title: "Travel receipts", Query: "category:travel", Source: "drive"},
	}
	scored := ScoreSelectionSets("acme insurance claims", sets)
	require.Len(t, scored, 1)
	assert.Equal(t, "s1", scored[0].Item.SelectionSet.ID)
	// "acme" and "insurance" both hit; "claims" does not.
	assert.Equal(t, 2, scored[0].Score)
}

func TestScoreRuns(t *testing.T) {
	runs := []timeline.RunMeta{
		{ID: "r1", Action: "summarize", Status: "completed"},
		{ID: "r2", Action: "export", Status: "failed"},
	}
	scored := ScoreRuns("summarize failures", runs)
	require.Len(t, scored, 1)
	assert.Equal(t, "r1", scored[0].Item.Run.ID)
}
