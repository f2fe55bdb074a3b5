// Package testutil provides shared test helpers: config file fixtures
// and an in-memory note store.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notesmith/notesmith/internal/note"
)

// SetupTestConfig creates a minimal config file and the sync directory
// for testing. Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir string) string {
	t.Helper()

	syncDir := filepath.Join(tmpDir, "sync")
	require.NoError(t, os.MkdirAll(syncDir, 0755))

	configContent := fmt.Sprintf(`database:
  host: localhost
  port: 3306
  database: notesmith_test
  username: user
ai:
  endpoint: http://localhost:8788
  max_tokens: 256
  cooldown_seconds: 3
  retry_delay_seconds: 3
sync:
  directory: %s
auto_insight:
  enabled: false
  idle_seconds: 30
`, syncDir)

	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configContent), 0644))
	return cfgPath
}

// MemoryStore is an in-memory implementation of the registry's Store
// interface for tests that do not need a database.
type MemoryStore struct {
	mu    sync.Mutex
	notes map[string]*note.Note
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notes: map[string]*note.Note{}}
}

func (s *MemoryStore) Put(_ context.Context, n *note.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[n.ID] = n.Clone()
	return nil
}

func (s *MemoryStore) PutMany(ctx context.Context, notes []*note.Note) error {
	for _, n := range notes {
		if err := s.Put(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*note.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.notes[id]; ok {
		return n.Clone(), nil
	}
	return nil, nil
}

func (s *MemoryStore) GetAll(_ context.Context) ([]*note.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*note.Note, 0, len(s.notes))
	for _, n := range s.notes {
		all = append(all, n.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt > all[j].UpdatedAt })
	return all, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes, id)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = map[string]*note.Note{}
	return nil
}
