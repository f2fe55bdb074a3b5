package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notesmith/notesmith/internal/clock"
	"github.com/notesmith/notesmith/internal/note"
)

type fakeStore struct {
	mu     sync.Mutex
	notes  map[string]*note.Note
	puts   []*note.Note
	putErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{notes: map[string]*note.Note{}}
}

func (s *fakeStore) Put(_ context.Context, n *note.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	c := n.Clone()
	s.notes[n.ID] = c
	s.puts = append(s.puts, c)
	return nil
}

func (s *fakeStore) PutMany(ctx context.Context, notes []*note.Note) error {
	for _, n := range notes {
		if err := s.Put(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*note.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.notes[id]; ok {
		return n.Clone(), nil
	}
	return nil, nil
}

func (s *fakeStore) GetAll(_ context.Context) ([]*note.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*note.Note, 0, len(s.notes))
	for _, n := range s.notes {
		all = append(all, n.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt > all[j].UpdatedAt })
	return all, nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes, id)
	return nil
}

func (s *fakeStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = map[string]*note.Note{}
	return nil
}

func (s *fakeStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

func (s *fakeStore) lastPut() *note.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.puts) == 0 {
		return nil
	}
	return s.puts[len(s.puts)-1]
}

type broadcastEvent struct {
	noteID  string
	version int64
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *fakeBroadcaster) Broadcast(noteID string, version int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{noteID: noteID, version: version})
	return nil
}

func (b *fakeBroadcaster) all() []broadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastEvent(nil), b.events...)
}

func newTestRegistry(t *testing.T) (*Registry, *fakeStore, *fakeBroadcaster, *clock.Fake) {
	t.Helper()
	store := newFakeStore()
	broadcaster := &fakeBroadcaster{}
	fake := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(store, broadcaster, fake, 0), store, broadcaster, fake
}

func TestRegistry_createPersistsImmediately(t *testing.T) {
	r, store, _, _ := newTestRegistry(t)
	ctx := context.Background()

	n, err := r.Create(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, int64(1), n.Version)
	assert.Empty(t, n.Content)
	assert.Equal(t, note.SubjectGeneral, n.SubjectType)
	assert.Equal(t, 1, store.putCount(), "creation is durable before any edit")

	active := r.Active()
	require.NotNil(t, active)
	assert.Equal(t, n.ID, active.ID)
}

func TestRegistry_typingScenario(t *testing.T) {
	// Create a note, type "Hello world" in three quick keystrokes, and
	// verify the title, a single version bump from 1 to 2, and a single
	// debounced persist.
	r, store, broadcaster, fake := newTestRegistry(t)
	ctx := context.Background()

	n, err := r.Create(ctx)
	require.NoError(t, err)
	persistsAfterCreate := store.putCount()

	for _, content := range []string{"Hello", "Hello wor", "Hello world"} {
		fake.Advance(100 * time.Millisecond)
		got, err := r.UpdateContent(n.ID, content)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version, "coalesced keystrokes share one version bump")
	}

	got, err := r.Get(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", got.Title)
	assert.Equal(t, persistsAfterCreate, store.putCount(), "typing does not persist synchronously")

	fake.Advance(DefaultDebounce)
	assert.Equal(t, persistsAfterCreate+1, store.putCount(), "one persist per quiet window")
	assert.Equal(t, "Hello world", store.lastPut().Content)
	assert.Equal(t, int64(2), store.lastPut().Version)

	events := broadcaster.all()
	require.Len(t, events, 1)
	assert.Equal(t, broadcastEvent{noteID: n.ID, version: 2}, events[0])
}

func TestRegistry_eachQuietWindowBumpsVersionOnce(t *testing.T) {
	r, store, _, fake := newTestRegistry(t)
	ctx := context.Background()

	n, err := r.Create(ctx)
	require.NoError(t, err)

	_, err = r.UpdateContent(n.ID, "first")
	require.NoError(t, err)
	fake.Advance(DefaultDebounce)
	assert.Equal(t, int64(2), store.lastPut().Version)

	_, err = r.UpdateContent(n.ID, "first second")
	require.NoError(t, err)
	_, err = r.UpdateContent(n.ID, "first second third")
	require.NoError(t, err)
	fake.Advance(DefaultDebounce)
	assert.Equal(t, int64(3), store.lastPut().Version, "one bump per persisted revision")
	assert.Equal(t, "first second third", store.lastPut().Content)
}

func TestRegistry_singleEditBumpsVersionOnce(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)

	n, err := r.Create(context.Background())
	require.NoError(t, err)

	got, err := r.UpdateContent(n.ID, "Hello world")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", got.Title)
	assert.Equal(t, int64(2), got.Version)
}

func TestRegistry_updateContentUnknownID(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)

	_, err := r.UpdateContent("missing", "content")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_editMovesNoteToFront(t *testing.T) {
	r, _, _, fake := newTestRegistry(t)
	ctx := context.Background()

	first, err := r.Create(ctx)
	require.NoError(t, err)
	fake.Advance(time.Second)
	second, err := r.Create(ctx)
	require.NoError(t, err)

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	fake.Advance(time.Second)
	_, err = r.UpdateContent(first.ID, "edited")
	require.NoError(t, err)

	all = r.All()
	assert.Equal(t, first.ID, all[0].ID)
}

func TestRegistry_renamePersistsImmediatelyAndBroadcastsAfter(t *testing.T) {
	r, store, broadcaster, _ := newTestRegistry(t)
	ctx := context.Background()

	n, err := r.Create(ctx)
	require.NoError(t, err)

	renamed, err := r.Rename(ctx, n.ID, "My title")
	require.NoError(t, err)
	assert.Equal(t, "My title", renamed.Title)
	assert.Equal(t, int64(2), renamed.Version)
	assert.Equal(t, 2, store.putCount())

	events := broadcaster.all()
	require.Len(t, events, 1)
	assert.Equal(t, broadcastEvent{noteID: n.ID, version: 2}, events[0])
}

func TestRegistry_renameEmptyKeepsPreviousTitle(t *testing.T) {
	r, store, broadcaster, _ := newTestRegistry(t)
	ctx := context.Background()

	n, err := r.Create(ctx)
	require.NoError(t, err)
	_, err = r.Rename(ctx, n.ID, "Kept")
	require.NoError(t, err)
	persists := store.putCount()

	got, err := r.Rename(ctx, n.ID, "   ")
	require.NoError(t, err)
	assert.Equal(t, "Kept", got.Title)
	assert.Equal(t, int64(2), got.Version, "no version bump for a rejected rename")
	assert.Equal(t, persists, store.putCount())
	assert.Len(t, broadcaster.all(), 1)
}

func TestRegistry_renameDuringTypingPersistsCoalescedEdit(t *testing.T) {
	r, store, _, fake := newTestRegistry(t)
	ctx := context.Background()

	n, err := r.Create(ctx)
	require.NoError(t, err)

	_, err = r.UpdateContent(n.ID, "draft body")
	require.NoError(t, err)

	renamed, err := r.Rename(ctx, n.ID, "My title")
	require.NoError(t, err)
	assert.Equal(t, int64(3), renamed.Version)
	assert.Equal(t, "draft body", store.lastPut().Content, "the immediate write carries the unsaved edit")

	// The coalesced edit was persisted by the rename; the debounce must
	// not write it a second time.
	persists := store.putCount()
	fake.Advance(DefaultDebounce)
	assert.Equal(t, persists, store.putCount())
}

func TestRegistry_persistFailureSurfacedAndRetriedByFlush(t *testing.T) {
	r, store, broadcaster, fake := newTestRegistry(t)
	ctx := context.Background()

	var failedID string
	var failedErr error
	r.OnPersistError(func(noteID string, err error) {
		failedID = noteID
		failedErr = err
	})

	n, err := r.Create(ctx)
	require.NoError(t, err)
	persists := store.putCount()

	_, err = r.UpdateContent(n.ID, "needs saving")
	require.NoError(t, err)

	store.putErr = errors.New("quota exceeded")
	fake.Advance(DefaultDebounce)
	assert.Equal(t, n.ID, failedID)
	require.ErrorContains(t, failedErr, "quota exceeded")
	assert.Empty(t, broadcaster.all(), "a failed persist never broadcasts")

	// The edit stays unsaved and Flush writes it without another bump.
	store.putErr = nil
	require.NoError(t, r.Flush(ctx))
	assert.Equal(t, persists+1, store.putCount())
	assert.Equal(t, "needs saving", store.lastPut().Content)
	assert.Equal(t, int64(2), store.lastPut().Version)
}

func TestRegistry_failedPersistDoesNotBroadcast(t *testing.T) {
	r, store, broadcaster, _ := newTestRegistry(t)
	ctx := context.Background()

	n, err := r.Create(ctx)
	require.NoError(t, err)

	store.putErr = errors.New("quota exceeded")
	_, err = r.Rename(ctx, n.ID, "New title")
	require.Error(t, err)
	assert.Empty(t, broadcaster.all())
}

func TestRegistry_tags(t *testing.T) {
	r, store, _, _ := newTestRegistry(t)
	ctx := context.Background()

	n, err := r.Create(ctx)
	require.NoError(t, err)

	got, err := r.AddTag(ctx, n.ID, "biology")
	require.NoError(t, err)
	got, err = r.AddTag(ctx, n.ID, "plants")
	require.NoError(t, err)
	assert.Equal(t, []string{"biology", "plants"}, got.Tags)
	assert.Equal(t, int64(3), got.Version)
	persists := store.putCount()

	// Duplicate add is a no-op.
	got, err = r.AddTag(ctx, n.ID, "biology")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, persists, store.putCount())

	got, err = r.RemoveTag(ctx, n.ID, "biology")
	require.NoError(t, err)
	assert.Equal(t, []string{"plants"}, got.Tags)

	// Removing an absent tag is a no-op.
	got, err = r.RemoveTag(ctx, n.ID, "nope")
	require.NoError(t, err)
	assert.Equal(t, []string{"plants"}, got.Tags)

	got, err = r.SetTags(ctx, n.ID, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
}

func TestRegistry_setSubject(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	n, err := r.Create(ctx)
	require.NoError(t, err)

	got, err := r.SetSubject(ctx, n.ID, note.SubjectChemistry)
	require.NoError(t, err)
	assert.Equal(t, note.SubjectChemistry, got.SubjectType)

	_, err = r.SetSubject(ctx, n.ID, note.SubjectType("astrology"))
	require.Error(t, err)
}

func TestRegistry_applyAIResults(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	n, err := r.Create(ctx)
	require.NoError(t, err)
	_, err = r.UpdateContent(n.ID, "Photosynthesis converts light.")
	require.NoError(t, err)

	got, err := r.ApplySummary(ctx, n.ID, "Light becomes sugar.")
	require.NoError(t, err)
	require.NotNil(t, got.AIMetadata)
	assert.Equal(t, "Light becomes sugar.", got.AIMetadata.Summary)

	insights := &note.Insights{
		Summary:     "Light becomes sugar.",
		ContentHash: note.ContentHash("Photosynthesis converts light."),
	}
	require.NoError(t, r.ApplyInsights(ctx, n.ID, insights))

	got, err = r.Get(n.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AIInsights)
	assert.False(t, got.IsInsightsStale())

	got, err = r.ClearInsights(ctx, n.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AIInsights)
}

func TestRegistry_removeIsIdempotent(t *testing.T) {
	r, store, _, fake := newTestRegistry(t)
	ctx := context.Background()

	n, err := r.Create(ctx)
	require.NoError(t, err)
	_, err = r.UpdateContent(n.ID, "about to go")
	require.NoError(t, err)

	require.NoError(t, r.Remove(ctx, n.ID))
	assert.Nil(t, r.Active(), "removing the active note clears the selection")

	// The pending debounced persist was cancelled with the note.
	persists := store.putCount()
	fake.Advance(DefaultDebounce)
	assert.Equal(t, persists, store.putCount())

	// Unknown ids are fine.
	require.NoError(t, r.Remove(ctx, "missing"))
	require.NoError(t, r.Remove(ctx, n.ID))
}

func TestRegistry_reloadDiscardsUnsavedEdits(t *testing.T) {
	r, store, _, fake := newTestRegistry(t)
	ctx := context.Background()

	n, err := r.Create(ctx)
	require.NoError(t, err)
	_, err = r.UpdateContent(n.ID, "saved content")
	require.NoError(t, err)
	fake.Advance(DefaultDebounce)

	// Another process wrote a newer version behind our back.
	external := store.lastPut().Clone()
	external.Content = "external edit"
	external.Version = 10
	require.NoError(t, store.Put(ctx, external))

	// Local unsaved typing that will be discarded.
	_, err = r.UpdateContent(n.ID, "unsaved local typing")
	require.NoError(t, err)

	reloaded, err := r.Reload(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "external edit", reloaded.Content)
	assert.Equal(t, int64(10), reloaded.Version)

	// The cancelled debounce never overwrites the reloaded record.
	persists := store.putCount()
	fake.Advance(DefaultDebounce)
	assert.Equal(t, persists, store.putCount())
}

func TestRegistry_flushPersistsPendingEdits(t *testing.T) {
	r, store, _, _ := newTestRegistry(t)
	ctx := context.Background()

	n, err := r.Create(ctx)
	require.NoError(t, err)
	_, err = r.UpdateContent(n.ID, "needs saving")
	require.NoError(t, err)
	persists := store.putCount()

	require.NoError(t, r.Flush(ctx))
	assert.Equal(t, persists+1, store.putCount())
	assert.Equal(t, "needs saving", store.lastPut().Content)
}

func TestRegistry_importReplace(t *testing.T) {
	r, store, _, _ := newTestRegistry(t)
	ctx := context.Background()

	existing, err := r.Create(ctx)
	require.NoError(t, err)

	imported := []*note.Note{
		{ID: "a", Title: "A", Content: "A", UpdatedAt: 100, Version: 1},
		{ID: "b", Title: "B", Content: "B", UpdatedAt: 200, Version: 3},
	}
	result, err := r.Import(ctx, imported, ImportReplace)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{NewCount: 2}, result)

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID, "ordered by updatedAt descending")

	stored, err := store.Get(ctx, existing.ID)
	require.NoError(t, err)
	assert.Nil(t, stored, "replace discards pre-existing notes")
}

func TestRegistry_importMerge(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	existing, err := r.Create(ctx)
	require.NoError(t, err)

	imported := []*note.Note{
		{ID: existing.ID, Title: "Overwritten", Content: "new body", UpdatedAt: 500, Version: 7},
		{ID: "fresh", Title: "Fresh", Content: "hi", UpdatedAt: 100, Version: 1},
	}
	result, err := r.Import(ctx, imported, ImportMerge)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{NewCount: 1, UpdatedCount: 1}, result)
	assert.Equal(t, len(imported), result.NewCount+result.UpdatedCount)

	got, err := r.Get(existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Overwritten", got.Title)
	assert.Equal(t, int64(7), got.Version)

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, existing.ID, all[0].ID)
}

func TestRegistry_loadOrdersByUpdatedAt(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, &note.Note{ID: "old", UpdatedAt: 100, Version: 1}))
	require.NoError(t, store.Put(ctx, &note.Note{ID: "new", UpdatedAt: 200, Version: 1}))

	fake := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	r := New(store, &fakeBroadcaster{}, fake, 0)
	require.NoError(t, r.Load(ctx))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].ID)

	v, ok := r.Version("old")
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)
}
