package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notesmith/notesmith/internal/note"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "Bare JSON object",
			content: `{"summary": "short"}`,
			want:    `{"summary": "short"}`,
		},
		{
			name:    "Object surrounded by prose",
			content: "Here is the result:\n{\"summary\": \"short\"}\nHope that helps!",
			want:    `{"summary": "short"}`,
		},
		{
			name:    "Fenced code block with language tag",
			content: "```json\n{\"summary\": \"short\"}\n```",
			want:    `{"summary": "short"}`,
		},
		{
			name:    "Fenced code block without language tag",
			content: "```\n{\"summary\": \"short\"}\n```",
			want:    `{"summary": "short"}`,
		},
		{
			name:    "Braces inside string literals are ignored",
			content: `{"summary": "uses { and } freely", "extra": "\" escaped"}`,
			want:    `{"summary": "uses { and } freely", "extra": "\" escaped"}`,
		},
		{
			name:    "Nested objects kept whole",
			content: `before {"a": {"b": 1}} after`,
			want:    `{"a": {"b": 1}}`,
		},
		{
			name:    "No JSON at all",
			content: "just plain text, sorry",
			want:    "",
		},
		{
			name:    "Unbalanced braces",
			content: `{"summary": "oops"`,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.content))
		})
	}
}

func TestParseInsights(t *testing.T) {
	const content = "Photosynthesis converts light into chemical energy."
	const now = int64(1756700000000)

	t.Run("well-formed response", func(t *testing.T) {
		raw := "```json\n" + `{
			"summary": "Light becomes sugar.",
			"definitions": [{"term": "photosynthesis", "explanation": "light to energy"}],
			"additionalContext": "Happens in chloroplasts.",
			"studyQuestions": ["What is the input?", "What is the output?"]
		}` + "\n```"

		got := parseInsights(raw, content, now)
		assert.Equal(t, "Light becomes sugar.", got.Summary)
		require.Len(t, got.Definitions, 1)
		assert.Equal(t, "photosynthesis", got.Definitions[0].Term)
		assert.Equal(t, "Happens in chloroplasts.", got.AdditionalContext)
		assert.Equal(t, []string{"What is the input?", "What is the output?"}, got.StudyQuestions)
		assert.Equal(t, now, got.GeneratedAt)
		assert.Equal(t, note.ContentHash(content), got.ContentHash)
	})

	t.Run("malformed response falls back to defaults", func(t *testing.T) {
		for _, raw := range []string{
			"no json here",
			`{"summary": unterminated`,
			"",
			`{"summary": 42}`,
		} {
			got := parseInsights(raw, content, now)
			assert.Equal(t, DefaultSummary, got.Summary)
			assert.Equal(t, []note.Definition{}, got.Definitions)
			assert.Equal(t, "", got.AdditionalContext)
			assert.Equal(t, []string{}, got.StudyQuestions)
			assert.Equal(t, now, got.GeneratedAt)
			assert.Equal(t, note.ContentHash(content), got.ContentHash)
		}
	})

	t.Run("partial response keeps defaults for missing fields", func(t *testing.T) {
		got := parseInsights(`{"summary": "Only a summary."}`, content, now)
		assert.Equal(t, "Only a summary.", got.Summary)
		assert.Equal(t, []note.Definition{}, got.Definitions)
		assert.Equal(t, []string{}, got.StudyQuestions)
	})

	t.Run("blank summary replaced by default", func(t *testing.T) {
		got := parseInsights(`{"summary": "   ", "studyQuestions": ["q"]}`, content, now)
		assert.Equal(t, DefaultSummary, got.Summary)
		assert.Equal(t, []string{"q"}, got.StudyQuestions)
	})
}

func TestParseGrammar(t *testing.T) {
	const original = "Their going to the store."

	t.Run("well-formed response", func(t *testing.T) {
		raw := `{
			"correctedText": "They're going to the store.",
			"issues": [{"original": "Their", "suggestion": "They're", "explanation": "contraction of they are"}]
		}`
		got := parseGrammar(raw, original)
		assert.Equal(t, "They're going to the store.", got.CorrectedText)
		require.Len(t, got.Issues, 1)
		assert.Equal(t, "Their", got.Issues[0].Original)
	})

	t.Run("malformed response returns original unchanged", func(t *testing.T) {
		got := parseGrammar("the model rambled instead", original)
		assert.Equal(t, original, got.CorrectedText)
		assert.Empty(t, got.Issues)
	})

	t.Run("empty correctedText keeps original", func(t *testing.T) {
		got := parseGrammar(`{"correctedText": "", "issues": []}`, original)
		assert.Equal(t, original, got.CorrectedText)
	})
}
