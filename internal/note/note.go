// Package note provides the note domain model shared across the store,
// registry, and AI layers.
package note

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SubjectType frames AI prompts for a note.
type SubjectType string

const (
	SubjectGeneral   SubjectType = "general"
	SubjectMath      SubjectType = "math"
	SubjectChemistry SubjectType = "chemistry"
	SubjectCode      SubjectType = "code"
	SubjectLanguage  SubjectType = "language"
)

// Valid reports whether s is one of the known subject types.
func (s SubjectType) Valid() bool {
	switch s {
	case SubjectGeneral, SubjectMath, SubjectChemistry, SubjectCode, SubjectLanguage:
		return true
	}
	return false
}

// MaxTitleLength is the cap on a derived title before the ellipsis marker
// is appended.
const MaxTitleLength = 50

// Note is the persisted unit of user content. Timestamps are Unix
// milliseconds so the export format and the cross-process wire messages
// carry plain numbers.
type Note struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	Tags        []string    `json:"tags"`
	SubjectType SubjectType `json:"subjectType"`
	UpdatedAt   int64       `json:"updatedAt"`
	Version     int64       `json:"version"`
	AIMetadata  *Metadata   `json:"aiMetadata,omitempty"`
	AIInsights  *Insights   `json:"aiInsights,omitempty"`
}

// Metadata records the last generated summary for a note.
type Metadata struct {
	Summary     string `json:"summary"`
	GeneratedAt int64  `json:"generatedAt"`
}

// Insights is a structured insight bundle generated from note content.
type Insights struct {
	Summary           string       `json:"summary"`
	Definitions       []Definition `json:"definitions"`
	AdditionalContext string       `json:"additionalContext"`
	StudyQuestions    []string     `json:"studyQuestions"`
	GeneratedAt       int64        `json:"generatedAt"`
	ContentHash       string       `json:"contentHash"`
}

// Definition is a term/explanation pair inside an insight bundle.
type Definition struct {
	Term        string `json:"term"`
	Explanation string `json:"explanation"`
}

// TitleFromContent derives a note title from its content: the trimmed
// first line, truncated to MaxTitleLength runes with an ellipsis marker
// when longer. An empty or blank first line yields an empty title.
func TitleFromContent(content string) string {
	firstLine := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		firstLine = content[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)

	runes := []rune(firstLine)
	if len(runes) <= MaxTitleLength {
		return firstLine
	}
	return string(runes[:MaxTitleLength]) + "…"
}

// ContentHash returns the fingerprint used to decide insight staleness.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// IsInsightsStale reports whether the note's insights no longer match its
// content. Absent insights count as stale; staleness is advisory and does
// not delete the bundle.
func (n *Note) IsInsightsStale() bool {
	if n.AIInsights == nil {
		return true
	}
	return n.AIInsights.ContentHash != ContentHash(n.Content)
}

// Clone returns a deep copy so callers can hand notes across goroutines
// without sharing slices.
func (n *Note) Clone() *Note {
	c := *n
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}
	if n.AIMetadata != nil {
		m := *n.AIMetadata
		c.AIMetadata = &m
	}
	if n.AIInsights != nil {
		ins := *n.AIInsights
		if ins.Definitions != nil {
			ins.Definitions = append([]Definition(nil), n.AIInsights.Definitions...)
		}
		if ins.StudyQuestions != nil {
			ins.StudyQuestions = append([]string(nil), n.AIInsights.StudyQuestions...)
		}
		c.AIInsights = &ins
	}
	return &c
}
