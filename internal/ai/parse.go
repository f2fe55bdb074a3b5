package ai

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/notesmith/notesmith/internal/note"
)

// DefaultSummary is substituted when the model returns no usable summary.
const DefaultSummary = "No summary available."

// GrammarIssue is a single finding from the grammar check.
type GrammarIssue struct {
	Original    string `json:"original"`
	Suggestion  string `json:"suggestion"`
	Explanation string `json:"explanation"`
}

// GrammarResult is the structured grammar-check outcome. When Truncated
// is set, only the head of the note was reviewed and CorrectedText
// covers that view only; it must not replace the full note content.
type GrammarResult struct {
	CorrectedText string         `json:"correctedText"`
	Issues        []GrammarIssue `json:"issues"`
	Truncated     bool           `json:"-"`
}

// extractJSON pulls a single JSON object out of model output. It first
// looks for a fenced code block containing an object, then falls back to
// the first balanced top-level {...} span in the text. The empty string
// means nothing resembling JSON was found.
func extractJSON(content string) string {
	if block := fencedBlock(content); block != "" {
		if obj := balancedObject(block); obj != "" {
			return obj
		}
	}
	return balancedObject(content)
}

// fencedBlock returns the body of the first ``` fenced block, tolerating
// a language tag after the opening fence.
func fencedBlock(content string) string {
	start := strings.Index(content, "```")
	if start < 0 {
		return ""
	}
	rest := content[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line (e.g. "json").
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return rest
	}
	return rest[:end]
}

// balancedObject scans for the first complete top-level JSON object,
// ignoring braces inside string literals.
func balancedObject(content string) string {
	firstBrace := -1
	braceCount := 0
	inString := false
	escapeNext := false

	for i, ch := range content {
		if escapeNext {
			escapeNext = false
			continue
		}
		if ch == '\\' && inString {
			escapeNext = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch ch {
			case '{':
				if firstBrace == -1 {
					firstBrace = i
				}
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 && firstBrace != -1 {
					return content[firstBrace : i+1]
				}
			}
		}
	}

	return ""
}

// parseInsights turns model output into an insight bundle. Malformed or
// missing fields are replaced by defined defaults; this never fails.
func parseInsights(raw, content string, now int64) *note.Insights {
	insights := &note.Insights{
		Summary:           DefaultSummary,
		Definitions:       []note.Definition{},
		AdditionalContext: "",
		StudyQuestions:    []string{},
		GeneratedAt:       now,
		ContentHash:       note.ContentHash(content),
	}

	extracted := extractJSON(raw)
	if extracted == "" {
		slog.Default().Debug("insights response contained no JSON object")
		return insights
	}

	var decoded struct {
		Summary           string            `json:"summary"`
		Definitions       []note.Definition `json:"definitions"`
		AdditionalContext string            `json:"additionalContext"`
		StudyQuestions    []string          `json:"studyQuestions"`
	}
	if err := json.Unmarshal([]byte(extracted), &decoded); err != nil {
		slog.Default().Debug("failed to decode insights JSON", "error", err)
		return insights
	}

	if s := strings.TrimSpace(decoded.Summary); s != "" {
		insights.Summary = s
	}
	if decoded.Definitions != nil {
		insights.Definitions = decoded.Definitions
	}
	insights.AdditionalContext = strings.TrimSpace(decoded.AdditionalContext)
	if decoded.StudyQuestions != nil {
		insights.StudyQuestions = decoded.StudyQuestions
	}
	return insights
}

// parseGrammar turns model output into a grammar result. On malformed
// output the original text is returned unchanged with no issues.
func parseGrammar(raw, original string) GrammarResult {
	result := GrammarResult{
		CorrectedText: original,
		Issues:        []GrammarIssue{},
	}

	extracted := extractJSON(raw)
	if extracted == "" {
		slog.Default().Debug("grammar response contained no JSON object")
		return result
	}

	var decoded GrammarResult
	if err := json.Unmarshal([]byte(extracted), &decoded); err != nil {
		slog.Default().Debug("failed to decode grammar JSON", "error", err)
		return result
	}

	if strings.TrimSpace(decoded.CorrectedText) != "" {
		result.CorrectedText = decoded.CorrectedText
	}
	if decoded.Issues != nil {
		result.Issues = decoded.Issues
	}
	return result
}
