package note

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string

		want string
	}{
		{
			name:    "single line",
			content: "Hello world",
			want:    "Hello world",
		},
		{
			name:    "first line of multiple",
			content: "Shopping list\n- milk\n- eggs",
			want:    "Shopping list",
		},
		{
			name:    "leading and trailing whitespace trimmed",
			content: "  Trimmed title  \nbody",
			want:    "Trimmed title",
		},
		{
			name:    "empty content",
			content: "",
			want:    "",
		},
		{
			name:    "blank first line",
			content: "   \nactual content below",
			want:    "",
		},
		{
			name:    "exactly fifty characters is kept as-is",
			content: strings.Repeat("a", 50),
			want:    strings.Repeat("a", 50),
		},
		{
			name:    "fifty-one characters is truncated with ellipsis",
			content: strings.Repeat("a", 51),
			want:    strings.Repeat("a", 50) + "…",
		},
		{
			name:    "truncation counts runes, not bytes",
			content: strings.Repeat("あ", 60),
			want:    strings.Repeat("あ", 50) + "…",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFromContent(tt.content))
		})
	}
}

func TestNote_IsInsightsStale(t *testing.T) {
	n := &Note{ID: "n1", Content: "A"}
	assert.True(t, n.IsInsightsStale(), "absent insights are stale")

	n.AIInsights = &Insights{
		Summary:     "about A",
		ContentHash: ContentHash("A"),
	}
	assert.False(t, n.IsInsightsStale())

	n.Content = "B"
	assert.True(t, n.IsInsightsStale(), "content edit makes insights stale")
	assert.NotNil(t, n.AIInsights, "staleness is advisory, bundle is kept")

	n.AIInsights.ContentHash = ContentHash("B")
	assert.False(t, n.IsInsightsStale(), "regeneration clears staleness")
}

func TestNote_Clone(t *testing.T) {
	n := &Note{
		ID:      "n1",
		Tags:    []string{"go", "notes"},
		Content: "body",
		AIInsights: &Insights{
			Definitions:    []Definition{{Term: "x", Explanation: "y"}},
			StudyQuestions: []string{"why?"},
		},
	}

	c := n.Clone()
	c.Tags[0] = "changed"
	c.AIInsights.Definitions[0].Term = "changed"
	c.AIInsights.StudyQuestions[0] = "changed"

	assert.Equal(t, "go", n.Tags[0])
	assert.Equal(t, "x", n.AIInsights.Definitions[0].Term)
	assert.Equal(t, "why?", n.AIInsights.StudyQuestions[0])
}
