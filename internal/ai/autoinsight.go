package ai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/notesmith/notesmith/internal/note"
)

// NoteSource is what the auto-insight flow needs from the note registry.
type NoteSource interface {
	Active() *note.Note
	ApplyInsights(ctx context.Context, noteID string, insights *note.Insights) error
}

// AutoInsight regenerates insights for the active note after a period of
// no editing activity. It is entirely silent: when any precondition
// fails the run is skipped and the next idle period tries again.
type AutoInsight struct {
	orchestrator *Orchestrator
	source       NoteSource
	enabled      bool
}

// NewAutoInsight wires the idle-triggered insight flow.
func NewAutoInsight(orchestrator *Orchestrator, source NoteSource, enabled bool) *AutoInsight {
	return &AutoInsight{
		orchestrator: orchestrator,
		source:       source,
		enabled:      enabled,
	}
}

// Run executes one idle-triggered attempt. Preconditions are checked in
// order: the feature must be enabled, the endpoint reachable, the
// cooldown elapsed, and the active note's insights stale. A manual
// request for the same note supersedes this one.
func (a *AutoInsight) Run(ctx context.Context) {
	if !a.enabled {
		return
	}
	n := a.source.Active()
	if n == nil {
		return
	}
	if !n.IsInsightsStale() {
		return
	}
	if a.orchestrator.CooldownRemaining() > 0 {
		return
	}
	if !a.orchestrator.client.Available(ctx) {
		slog.Default().Debug("auto insight skipped, endpoint unreachable")
		return
	}

	insights, err := a.orchestrator.GenerateInsights(ctx, n)
	if err != nil {
		if !errors.Is(err, ErrCancelled) && !IsCooldown(err) {
			slog.Default().Debug("auto insight generation failed", "noteID", n.ID, "error", err)
		}
		return
	}

	if err := a.source.ApplyInsights(ctx, n.ID, insights); err != nil {
		slog.Default().Debug("auto insight apply failed", "noteID", n.ID, "error", err)
	}
}
