package ai

import (
	"strings"

	"github.com/notesmith/notesmith/internal/note"
)

// Input caps bound request size and remote cost. Longer content is
// truncated before transmission.
const (
	maxSummaryInput         = 6000
	maxInsightsInput        = 6000
	maxGrammarInput         = 6000
	maxContinuationLookback = 4000
	maxTagInput             = 2000

	truncationMarker = "\n…[content truncated]"
)

// truncateHead keeps the first limit runes and appends the truncation
// marker when anything was cut.
func truncateHead(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + truncationMarker
}

// truncateTail keeps the last limit runes. Used for the continuation
// look-back, where the end of the note is what matters; no marker is
// appended since the cut end is never shown to the model as a boundary.
func truncateTail(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[len(runes)-limit:])
}

func subjectFraming(subject note.SubjectType) string {
	switch subject {
	case note.SubjectMath:
		return "The note is about mathematics; preserve formulas and notation as written."
	case note.SubjectChemistry:
		return "The note is about chemistry; preserve chemical formulas and equations as written."
	case note.SubjectCode:
		return "The note is about programming; preserve code snippets verbatim."
	case note.SubjectLanguage:
		return "The note is about language learning; preserve example sentences and translations."
	default:
		return "The note covers a general topic."
	}
}

func summaryRequest(n *note.Note, maxTokens int) Request {
	system := "You are a concise writing assistant. Summarize the user's note in at most three sentences. " +
		subjectFraming(n.SubjectType)
	return Request{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: truncateHead(n.Content, maxSummaryInput)},
		},
		Temperature: 0.3,
		MaxTokens:   maxTokens,
	}
}

func tagsRequest(n *note.Note, maxTokens int) Request {
	system := "You suggest tags for notes. Reply with 3 to 5 short lowercase tags as a comma-separated list, nothing else. " +
		subjectFraming(n.SubjectType)
	return Request{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: truncateHead(n.Content, maxTagInput)},
		},
		Temperature: 0.2,
		MaxTokens:   maxTokens,
	}
}

func continuationRequest(n *note.Note, maxTokens int) Request {
	system := "You continue the user's writing. Pick up exactly where the text ends and write the next one or two sentences in the same voice. Reply with the continuation only. " +
		subjectFraming(n.SubjectType)
	return Request{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: truncateTail(n.Content, maxContinuationLookback)},
		},
		Temperature: 0.8,
		MaxTokens:   maxTokens,
	}
}

func grammarRequest(n *note.Note, maxTokens int) Request {
	system := `You are a grammar checker. Review the user's text and respond with ONLY a JSON object of this shape:
{
  "correctedText": "<the full text with corrections applied>",
  "issues": [
    {"original": "<text with the issue>", "suggestion": "<corrected text>", "explanation": "<brief explanation>"}
  ]
}
If the text has no issues, return it unchanged with an empty issues array. ` + subjectFraming(n.SubjectType)
	return Request{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: truncateHead(n.Content, maxGrammarInput)},
		},
		Temperature: 0.1,
		MaxTokens:   maxTokens,
	}
}

func insightsRequest(n *note.Note, maxTokens int) Request {
	system := `You produce structured study insights for a note. Respond with ONLY a JSON object of this shape:
{
  "summary": "<two or three sentence summary>",
  "definitions": [{"term": "<term>", "explanation": "<short explanation>"}],
  "additionalContext": "<one paragraph of helpful background>",
  "studyQuestions": ["<question>", "<question>", "<question>"]
}
` + subjectFraming(n.SubjectType)
	return Request{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: truncateHead(n.Content, maxInsightsInput)},
		},
		Temperature: 0.3,
		MaxTokens:   maxTokens,
	}
}

// parseTagList splits a model reply into clean tags: comma or newline
// separated, trimmed, lowercased, deduplicated, at most five.
func parseTagList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n'
	})

	tags := make([]string, 0, len(fields))
	seen := map[string]bool{}
	for _, f := range fields {
		tag := strings.ToLower(strings.Trim(strings.TrimSpace(f), `"#.`))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) == 5 {
			break
		}
	}
	return tags
}
