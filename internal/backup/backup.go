// Package backup implements the export file format and its fail-closed
// import validation. Persistence of imported notes is delegated to the
// registry.
package backup

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/notesmith/notesmith/internal/note"
)

// FormatVersion is the export envelope version.
const FormatVersion = "1.0"

// Backup is the export envelope.
type Backup struct {
	Version    string       `json:"version"`
	ExportedAt string       `json:"exportedAt"`
	Notes      []*note.Note `json:"notes"`
}

// Filename returns the conventional export filename for a given day.
func Filename(now time.Time) string {
	return fmt.Sprintf("note-taker-backup-%s.json", now.Format("2006-01-02"))
}

// Export wraps a note set in the envelope.
func Export(notes []*note.Note, now time.Time) Backup {
	if notes == nil {
		notes = []*note.Note{}
	}
	return Backup{
		Version:    FormatVersion,
		ExportedAt: now.UTC().Format(time.RFC3339),
		Notes:      notes,
	}
}

// Marshal serializes the envelope with indentation for a readable file.
func (b Backup) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json.MarshalIndent > %w", err)
	}
	return data, nil
}

// Parse validates and decodes an export file. Validation is fail-closed:
// a single malformed note rejects the whole import. The top level must
// carry a string version, a string exportedAt, and a notes array; every
// note needs at minimum string id/title/content and a numeric updatedAt.
func Parse(data []byte) ([]*note.Note, error) {
	var envelope struct {
		Version    any               `json:"version"`
		ExportedAt any               `json:"exportedAt"`
		Notes      []json.RawMessage `json:"notes"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid backup file: %w", err)
	}

	if _, ok := envelope.Version.(string); !ok {
		return nil, fmt.Errorf("invalid backup file: version must be a string")
	}
	if _, ok := envelope.ExportedAt.(string); !ok {
		return nil, fmt.Errorf("invalid backup file: exportedAt must be a string")
	}
	if envelope.Notes == nil {
		return nil, fmt.Errorf("invalid backup file: notes must be an array")
	}

	notes := make([]*note.Note, 0, len(envelope.Notes))
	for i, raw := range envelope.Notes {
		if err := validateNoteShape(raw); err != nil {
			return nil, fmt.Errorf("invalid backup file: note %d: %w", i, err)
		}
		var n note.Note
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("invalid backup file: note %d: %w", i, err)
		}
		notes = append(notes, &n)
	}
	return notes, nil
}

func validateNoteShape(raw json.RawMessage) error {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	for _, key := range []string{"id", "title", "content"} {
		v, ok := fields[key]
		if !ok {
			return fmt.Errorf("missing %s", key)
		}
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%s must be a string", key)
		}
	}
	v, ok := fields["updatedAt"]
	if !ok {
		return fmt.Errorf("missing updatedAt")
	}
	if _, ok := v.(float64); !ok {
		return fmt.Errorf("updatedAt must be a number")
	}
	return nil
}
