// Package registry holds the in-memory authoritative set of notes for a
// session. It is the only component that mutates note fields; the store
// and the notifier are reached exclusively through it.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notesmith/notesmith/internal/clock"
	"github.com/notesmith/notesmith/internal/note"
)

// DefaultDebounce is the trailing-edge quiet window for content-edit
// persistence.
const DefaultDebounce = 300 * time.Millisecond

// ErrNotFound is returned when an operation targets an unknown note id.
var ErrNotFound = errors.New("note not found")

// Store is the persistence capability the registry needs.
type Store interface {
	Put(ctx context.Context, n *note.Note) error
	PutMany(ctx context.Context, notes []*note.Note) error
	Get(ctx context.Context, id string) (*note.Note, error)
	GetAll(ctx context.Context) ([]*note.Note, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Broadcaster announces persisted versions to other processes.
type Broadcaster interface {
	Broadcast(noteID string, version int64) error
}

// ImportMode selects how imported notes combine with existing ones.
type ImportMode string

const (
	// ImportReplace discards all existing notes first.
	ImportReplace ImportMode = "replace"
	// ImportMerge overwrites by id and adds the rest.
	ImportMerge ImportMode = "merge"
)

// ImportResult reports what an import did.
type ImportResult struct {
	NewCount     int
	UpdatedCount int
}

// Registry mediates all note mutations. Content edits update memory
// synchronously and persist on a debounced timer; discrete updates
// (rename, tags, subject, AI results) persist immediately and broadcast
// only after the write succeeds.
type Registry struct {
	store       Store
	broadcaster Broadcaster
	clock       clock.Clock
	debounce    time.Duration

	mu             sync.Mutex
	notes          []*note.Note
	index          map[string]*note.Note
	activeID       string
	pending        map[string]clock.Timer
	dirty          map[string]bool
	onPersistError func(noteID string, err error)
}

// New wires a registry. A zero debounce selects DefaultDebounce.
func New(store Store, broadcaster Broadcaster, clk clock.Clock, debounce time.Duration) *Registry {
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	return &Registry{
		store:       store,
		broadcaster: broadcaster,
		clock:       clk,
		debounce:    debounce,
		index:       map[string]*note.Note{},
		pending:     map[string]clock.Timer{},
		dirty:       map[string]bool{},
	}
}

// OnPersistError registers a callback invoked when a debounced persist
// fails. The edit stays unsaved in memory and is written again by the
// next quiet window or by Flush.
func (r *Registry) OnPersistError(fn func(noteID string, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPersistError = fn
}

// Load replaces the in-memory set with the store's contents, most
// recently updated first.
func (r *Registry) Load(ctx context.Context) error {
	notes, err := r.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("store.GetAll > %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = notes
	r.index = make(map[string]*note.Note, len(notes))
	for _, n := range notes {
		r.index[n.ID] = n
	}
	return nil
}

// Create allocates a new empty note, persists it immediately so it is
// durable before the user can lose it, puts it at the front of the
// ordering, and makes it active.
func (r *Registry) Create(ctx context.Context) (*note.Note, error) {
	n := &note.Note{
		ID:          uuid.NewString(),
		Tags:        []string{},
		SubjectType: note.SubjectGeneral,
		UpdatedAt:   r.clock.Now().UnixMilli(),
		Version:     1,
	}
	if err := r.store.Put(ctx, n); err != nil {
		return nil, fmt.Errorf("store.Put > %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append([]*note.Note{n}, r.notes...)
	r.index[n.ID] = n
	r.activeID = n.ID
	return n.Clone(), nil
}

// UpdateContent applies a content edit synchronously in memory: title is
// recomputed from the first line and the note moves to the front of the
// ordering. Persistence is debounced; edits inside one quiet window
// coalesce into a single persisted revision, so only the first of them
// bumps the version.
func (r *Registry) UpdateContent(id, content string) (*note.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.index[id]
	if !ok {
		return nil, ErrNotFound
	}
	n.Content = content
	n.Title = note.TitleFromContent(content)
	n.UpdatedAt = r.clock.Now().UnixMilli()
	if !r.dirty[id] {
		r.dirty[id] = true
		n.Version++
	}
	r.moveToFrontLocked(id)
	r.schedulePersistLocked(id)
	return n.Clone(), nil
}

func (r *Registry) moveToFrontLocked(id string) {
	for i, n := range r.notes {
		if n.ID == id {
			copy(r.notes[1:i+1], r.notes[:i])
			r.notes[0] = n
			return
		}
	}
}

func (r *Registry) schedulePersistLocked(id string) {
	if t, ok := r.pending[id]; ok {
		t.Reset(r.debounce)
		return
	}
	r.pending[id] = r.clock.AfterFunc(r.debounce, func() {
		r.persistDebounced(id)
	})
}

func (r *Registry) persistDebounced(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	n, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.dirty, id)
	snapshot := n.Clone()
	r.mu.Unlock()

	if err := r.store.Put(context.Background(), snapshot); err != nil {
		slog.Default().Error("debounced persist failed", "noteID", id, "error", err)
		r.mu.Lock()
		// Keep the edit dirty so Flush writes it again, without a
		// second version bump.
		r.dirty[id] = true
		onErr := r.onPersistError
		r.mu.Unlock()
		if onErr != nil {
			onErr(id, err)
		}
		return
	}
	r.broadcast(snapshot.ID, snapshot.Version)
}

func (r *Registry) broadcast(noteID string, version int64) {
	if r.broadcaster == nil {
		return
	}
	if err := r.broadcaster.Broadcast(noteID, version); err != nil {
		slog.Default().Warn("broadcast failed", "noteID", noteID, "error", err)
	}
}

// mutate applies fn to the note under the lock, bumps version and
// updatedAt, persists immediately, and broadcasts after the write
// succeeds. All discrete updates funnel through here.
func (r *Registry) mutate(ctx context.Context, id string, fn func(n *note.Note) error) (*note.Note, error) {
	r.mu.Lock()
	n, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	if err := fn(n); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	n.UpdatedAt = r.clock.Now().UnixMilli()
	n.Version++
	// The immediate write below also covers any coalesced content edit
	// still waiting on its quiet window.
	if t, ok := r.pending[id]; ok {
		t.Stop()
		delete(r.pending, id)
	}
	delete(r.dirty, id)
	r.moveToFrontLocked(id)
	snapshot := n.Clone()
	r.mu.Unlock()

	if err := r.store.Put(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("store.Put > %w", err)
	}
	r.broadcast(snapshot.ID, snapshot.Version)
	return snapshot, nil
}

// Rename sets a user-chosen title. An empty or whitespace-only title
// silently keeps the previous one; nothing is persisted.
func (r *Registry) Rename(ctx context.Context, id, title string) (*note.Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return r.Get(id)
	}
	return r.mutate(ctx, id, func(n *note.Note) error {
		n.Title = title
		return nil
	})
}

// AddTag appends a tag, preserving insertion order. Adding a tag the
// note already has is a no-op and does not persist or bump the version.
func (r *Registry) AddTag(ctx context.Context, id, tag string) (*note.Note, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, errors.New("empty tag")
	}

	r.mu.Lock()
	if n, ok := r.index[id]; ok {
		for _, existing := range n.Tags {
			if existing == tag {
				snapshot := n.Clone()
				r.mu.Unlock()
				return snapshot, nil
			}
		}
	}
	r.mu.Unlock()

	return r.mutate(ctx, id, func(n *note.Note) error {
		n.Tags = append(n.Tags, tag)
		return nil
	})
}

// RemoveTag removes a tag if present; removing an absent tag is a no-op.
func (r *Registry) RemoveTag(ctx context.Context, id, tag string) (*note.Note, error) {
	r.mu.Lock()
	found := false
	if n, ok := r.index[id]; ok {
		for _, existing := range n.Tags {
			if existing == tag {
				found = true
				break
			}
		}
		if !found {
			snapshot := n.Clone()
			r.mu.Unlock()
			return snapshot, nil
		}
	}
	r.mu.Unlock()

	return r.mutate(ctx, id, func(n *note.Note) error {
		tags := n.Tags[:0]
		for _, existing := range n.Tags {
			if existing != tag {
				tags = append(tags, existing)
			}
		}
		n.Tags = tags
		return nil
	})
}

// SetTags replaces the whole tag set, e.g. when applying suggestions.
func (r *Registry) SetTags(ctx context.Context, id string, tags []string) (*note.Note, error) {
	return r.mutate(ctx, id, func(n *note.Note) error {
		n.Tags = append([]string{}, tags...)
		return nil
	})
}

// SetSubject changes the subject framing used by AI prompts.
func (r *Registry) SetSubject(ctx context.Context, id string, subject note.SubjectType) (*note.Note, error) {
	if !subject.Valid() {
		return nil, fmt.Errorf("unknown subject type %q", subject)
	}
	return r.mutate(ctx, id, func(n *note.Note) error {
		n.SubjectType = subject
		return nil
	})
}

// ApplySummary stores a generated summary on the note.
func (r *Registry) ApplySummary(ctx context.Context, id, summary string) (*note.Note, error) {
	generatedAt := r.clock.Now().UnixMilli()
	return r.mutate(ctx, id, func(n *note.Note) error {
		n.AIMetadata = &note.Metadata{Summary: summary, GeneratedAt: generatedAt}
		return nil
	})
}

// ApplyInsights stores a generated insight bundle on the note.
func (r *Registry) ApplyInsights(ctx context.Context, id string, insights *note.Insights) error {
	_, err := r.mutate(ctx, id, func(n *note.Note) error {
		n.AIInsights = insights
		return nil
	})
	return err
}

// ClearInsights drops a note's insight bundle, e.g. when it failed to
// render and is treated as corrupt.
func (r *Registry) ClearInsights(ctx context.Context, id string) (*note.Note, error) {
	return r.mutate(ctx, id, func(n *note.Note) error {
		n.AIInsights = nil
		return nil
	})
}

// Remove deletes a note from the store and from memory. Removing an
// unknown id is not an error. The active selection is cleared when the
// removed note was active.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("store.Delete > %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.pending[id]; ok {
		t.Stop()
		delete(r.pending, id)
	}
	delete(r.dirty, id)
	if _, ok := r.index[id]; !ok {
		return nil
	}
	delete(r.index, id)
	for i, n := range r.notes {
		if n.ID == id {
			r.notes = append(r.notes[:i], r.notes[i+1:]...)
			break
		}
	}
	if r.activeID == id {
		r.activeID = ""
	}
	return nil
}

// SetActive selects the note the session is editing.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[id]; !ok {
		return ErrNotFound
	}
	r.activeID = id
	return nil
}

// Active returns a copy of the active note, or nil when none is selected.
func (r *Registry) Active() *note.Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.index[r.activeID]; ok {
		return n.Clone()
	}
	return nil
}

// Get returns a copy of one note.
func (r *Registry) Get(id string) (*note.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.index[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n.Clone(), nil
}

// All returns copies of every note in display order.
func (r *Registry) All() []*note.Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*note.Note, len(r.notes))
	for i, n := range r.notes {
		all[i] = n.Clone()
	}
	return all
}

// Version returns the locally held version of a note, for conflict
// comparison against broadcast versions.
func (r *Registry) Version(id string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.index[id]; ok {
		return n.Version, true
	}
	return 0, false
}

// Reload replaces the in-memory copy with the authoritative stored
// record, discarding any unsaved local edits. Used by conflict
// resolution.
func (r *Registry) Reload(ctx context.Context, id string) (*note.Note, error) {
	stored, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("store.Get > %w", err)
	}
	if stored == nil {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.pending[id]; ok {
		t.Stop()
		delete(r.pending, id)
	}
	delete(r.dirty, id)
	if _, ok := r.index[id]; !ok {
		return nil, ErrNotFound
	}
	r.index[id] = stored
	for i, n := range r.notes {
		if n.ID == id {
			r.notes[i] = stored
			break
		}
	}
	return stored.Clone(), nil
}

// Import applies a validated note set. Replace discards everything
// first; merge overwrites matching ids and adds the rest, then re-sorts
// by updatedAt descending. Either all imported notes are persisted or
// the error is surfaced before any are assumed saved.
func (r *Registry) Import(ctx context.Context, notes []*note.Note, mode ImportMode) (ImportResult, error) {
	var result ImportResult

	switch mode {
	case ImportReplace:
		if err := r.store.Clear(ctx); err != nil {
			return result, fmt.Errorf("store.Clear > %w", err)
		}
		if err := r.store.PutMany(ctx, notes); err != nil {
			return result, fmt.Errorf("store.PutMany > %w", err)
		}
		result.NewCount = len(notes)

		r.mu.Lock()
		r.cancelPendingLocked()
		r.notes = make([]*note.Note, len(notes))
		r.index = make(map[string]*note.Note, len(notes))
		for i, n := range notes {
			c := n.Clone()
			r.notes[i] = c
			r.index[n.ID] = c
		}
		r.sortLocked()
		r.activeID = ""
		r.mu.Unlock()
		return result, nil

	case ImportMerge:
		if err := r.store.PutMany(ctx, notes); err != nil {
			return result, fmt.Errorf("store.PutMany > %w", err)
		}

		r.mu.Lock()
		for _, n := range notes {
			c := n.Clone()
			if existing, ok := r.index[n.ID]; ok {
				result.UpdatedCount++
				if t, pending := r.pending[n.ID]; pending {
					t.Stop()
					delete(r.pending, n.ID)
				}
				delete(r.dirty, n.ID)
				*existing = *c
			} else {
				result.NewCount++
				r.notes = append(r.notes, c)
				r.index[n.ID] = c
			}
		}
		r.sortLocked()
		r.mu.Unlock()
		return result, nil

	default:
		return result, fmt.Errorf("unknown import mode %q", mode)
	}
}

func (r *Registry) sortLocked() {
	sort.SliceStable(r.notes, func(i, j int) bool {
		return r.notes[i].UpdatedAt > r.notes[j].UpdatedAt
	})
}

func (r *Registry) cancelPendingLocked() {
	for id, t := range r.pending {
		t.Stop()
		delete(r.pending, id)
	}
	r.dirty = map[string]bool{}
}

// Flush persists every note with an unsaved content edit immediately,
// including edits whose debounced write failed earlier.
func (r *Registry) Flush(ctx context.Context) error {
	r.mu.Lock()
	var snapshots []*note.Note
	for id := range r.dirty {
		if t, ok := r.pending[id]; ok {
			t.Stop()
			delete(r.pending, id)
		}
		delete(r.dirty, id)
		if n, ok := r.index[id]; ok {
			snapshots = append(snapshots, n.Clone())
		}
	}
	r.mu.Unlock()

	for _, snapshot := range snapshots {
		if err := r.store.Put(ctx, snapshot); err != nil {
			return fmt.Errorf("store.Put > %w", err)
		}
		r.broadcast(snapshot.ID, snapshot.Version)
	}
	return nil
}

// Close flushes pending writes on teardown.
func (r *Registry) Close(ctx context.Context) error {
	return r.Flush(ctx)
}
