// Package conflict flags divergence between the locally held version of
// the active note and versions broadcast by other processes.
package conflict

import (
	"sync"

	"github.com/notesmith/notesmith/internal/notify"
)

// Resolution is the user's decision for a flagged conflict.
type Resolution int

const (
	// ResolutionReload discards local in-memory state in favor of the
	// persisted record. The caller performs the actual reload.
	ResolutionReload Resolution = iota
	// ResolutionIgnore keeps the local copy; the next save overwrites
	// the external change.
	ResolutionIgnore
)

// State describes a detected conflict on the active note.
type State struct {
	NoteID          string
	LocalVersion    int64
	ExternalVersion int64
}

// Detector tracks the active note and compares incoming broadcasts
// against its locally held version.
type Detector struct {
	mu           sync.Mutex
	activeID     string
	localVersion int64
	state        *State
}

func NewDetector() *Detector {
	return &Detector{}
}

// SetActive records which note is open and at what version. Switching
// notes clears any pending conflict unconditionally.
func (d *Detector) SetActive(noteID string, version int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activeID = noteID
	d.localVersion = version
	d.state = nil
}

// UpdateLocalVersion follows local edits so the tracked version stays
// current without touching a pending conflict flag.
func (d *Detector) UpdateLocalVersion(version int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.localVersion = version
}

// Observe handles one broadcast. A conflict is flagged iff the message
// targets the active note and carries a strictly greater version; equal
// or lesser versions cover the process's own echoed broadcasts and stale
// duplicates.
func (d *Detector) Observe(msg notify.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.activeID == "" || msg.NoteID != d.activeID {
		return
	}
	if msg.Version <= d.localVersion {
		return
	}
	d.state = &State{
		NoteID:          d.activeID,
		LocalVersion:    d.localVersion,
		ExternalVersion: msg.Version,
	}
}

// State returns the pending conflict, or nil.
func (d *Detector) State() *State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == nil {
		return nil
	}
	s := *d.state
	return &s
}

// Resolve clears the flag and reports what was flagged. The reload
// itself is the caller's job; both resolutions only differ in what the
// caller does next.
func (d *Detector) Resolve(Resolution) (State, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == nil {
		return State{}, false
	}
	s := *d.state
	d.state = nil
	return s, true
}
