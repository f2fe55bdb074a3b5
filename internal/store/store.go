// Package store persists notes in MySQL. It is the durable side of the
// registry: all access goes through the registry, which owns ordering and
// versioning.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/notesmith/notesmith/internal/database"
	"github.com/notesmith/notesmith/internal/note"
)

// Schema creates the notes table. MultiStatements is enabled on the
// connection, so this can run as-is.
const Schema = `
CREATE TABLE IF NOT EXISTS notes (
	id VARCHAR(64) NOT NULL PRIMARY KEY,
	title VARCHAR(255) NOT NULL,
	content MEDIUMTEXT NOT NULL,
	tags JSON NULL,
	subject_type VARCHAR(16) NOT NULL DEFAULT 'general',
	updated_at BIGINT NOT NULL,
	version BIGINT NOT NULL DEFAULT 1,
	content_size BIGINT NOT NULL DEFAULT 0,
	ai_metadata JSON NULL,
	ai_insights JSON NULL,
	KEY idx_notes_updated_at (updated_at)
);`

// Store implements durable note persistence.
type Store struct {
	db *sqlx.DB
}

// New creates a Store on top of an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the backing table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("db.ExecContext(schema) > %w", err)
	}
	return nil
}

type noteRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Content     string         `db:"content"`
	Tags        sql.NullString `db:"tags"`
	SubjectType string         `db:"subject_type"`
	UpdatedAt   int64          `db:"updated_at"`
	Version     int64          `db:"version"`
	ContentSize int64          `db:"content_size"`
	AIMetadata  sql.NullString `db:"ai_metadata"`
	AIInsights  sql.NullString `db:"ai_insights"`
}

const upsertQuery = `INSERT INTO notes
	(id, title, content, tags, subject_type, updated_at, version, content_size, ai_metadata, ai_insights)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
	title = VALUES(title), content = VALUES(content), tags = VALUES(tags),
	subject_type = VALUES(subject_type), updated_at = VALUES(updated_at),
	version = VALUES(version), content_size = VALUES(content_size),
	ai_metadata = VALUES(ai_metadata), ai_insights = VALUES(ai_insights)`

// Put upserts a note by id. The stored content_size column is derived
// from the content so callers can warn about oversized notes without
// loading the body.
func (s *Store) Put(ctx context.Context, n *note.Note) error {
	row, err := toRow(n)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertQuery, row.args()...); err != nil {
		return fmt.Errorf("db.ExecContext(upsert note) > %w", err)
	}
	return nil
}

// PutMany upserts all notes inside a single transaction: either every
// note is persisted or none are.
func (s *Store) PutMany(ctx context.Context, notes []*note.Note) error {
	return database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		for _, n := range notes {
			row, err := toRow(n)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, upsertQuery, row.args()...); err != nil {
				return fmt.Errorf("tx.ExecContext(upsert note %s) > %w", n.ID, err)
			}
		}
		return nil
	})
}

// Get returns one note, or nil when no note has the given id.
func (s *Store) Get(ctx context.Context, id string) (*note.Note, error) {
	var row noteRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM notes WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db.GetContext(note) > %w", err)
	}
	return fromRow(row)
}

// GetAll returns every note ordered by last modification, newest first.
func (s *Store) GetAll(ctx context.Context) ([]*note.Note, error) {
	var rows []noteRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM notes ORDER BY updated_at DESC"); err != nil {
		return nil, fmt.Errorf("db.SelectContext(notes) > %w", err)
	}
	notes := make([]*note.Note, 0, len(rows))
	for _, row := range rows {
		n, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// Delete removes a note by id. Deleting an id that does not exist is not
// an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id); err != nil {
		return fmt.Errorf("db.ExecContext(delete note) > %w", err)
	}
	return nil
}

// Clear removes all notes. Used by replace-mode import.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notes"); err != nil {
		return fmt.Errorf("db.ExecContext(clear notes) > %w", err)
	}
	return nil
}

func (row noteRow) args() []any {
	return []any{
		row.ID, row.Title, row.Content, row.Tags, row.SubjectType,
		row.UpdatedAt, row.Version, row.ContentSize, row.AIMetadata, row.AIInsights,
	}
}

func toRow(n *note.Note) (noteRow, error) {
	row := noteRow{
		ID:          n.ID,
		Title:       n.Title,
		Content:     n.Content,
		SubjectType: string(n.SubjectType),
		UpdatedAt:   n.UpdatedAt,
		Version:     n.Version,
		ContentSize: int64(len(n.Content)),
	}
	if row.SubjectType == "" {
		row.SubjectType = string(note.SubjectGeneral)
	}

	if n.Tags != nil {
		data, err := json.Marshal(n.Tags)
		if err != nil {
			return noteRow{}, fmt.Errorf("json.Marshal(tags) > %w", err)
		}
		row.Tags = sql.NullString{String: string(data), Valid: true}
	}
	if n.AIMetadata != nil {
		data, err := json.Marshal(n.AIMetadata)
		if err != nil {
			return noteRow{}, fmt.Errorf("json.Marshal(ai_metadata) > %w", err)
		}
		row.AIMetadata = sql.NullString{String: string(data), Valid: true}
	}
	if n.AIInsights != nil {
		data, err := json.Marshal(n.AIInsights)
		if err != nil {
			return noteRow{}, fmt.Errorf("json.Marshal(ai_insights) > %w", err)
		}
		row.AIInsights = sql.NullString{String: string(data), Valid: true}
	}
	return row, nil
}

// fromRow converts a stored row to a domain note, defaulting fields that
// records written by older schema versions may be missing. Defaults are
// applied on read, never written back.
func fromRow(row noteRow) (*note.Note, error) {
	n := &note.Note{
		ID:          row.ID,
		Title:       row.Title,
		Content:     row.Content,
		Tags:        []string{},
		SubjectType: note.SubjectType(row.SubjectType),
		UpdatedAt:   row.UpdatedAt,
		Version:     row.Version,
	}
	if n.Version < 1 {
		n.Version = 1
	}
	if !n.SubjectType.Valid() {
		n.SubjectType = note.SubjectGeneral
	}

	if row.Tags.Valid && row.Tags.String != "" {
		if err := json.Unmarshal([]byte(row.Tags.String), &n.Tags); err != nil {
			return nil, fmt.Errorf("json.Unmarshal(tags of note %s) > %w", row.ID, err)
		}
	}
	if row.AIMetadata.Valid && row.AIMetadata.String != "" {
		var meta note.Metadata
		if err := json.Unmarshal([]byte(row.AIMetadata.String), &meta); err != nil {
			return nil, fmt.Errorf("json.Unmarshal(ai_metadata of note %s) > %w", row.ID, err)
		}
		n.AIMetadata = &meta
	}
	if row.AIInsights.Valid && row.AIInsights.String != "" {
		var insights note.Insights
		if err := json.Unmarshal([]byte(row.AIInsights.String), &insights); err != nil {
			return nil, fmt.Errorf("json.Unmarshal(ai_insights of note %s) > %w", row.ID, err)
		}
		n.AIInsights = &insights
	}
	return n, nil
}
