// Package cli implements the interactive editing session that binds the
// registry, conflict detection, idle monitoring, and the AI features
// together for a terminal user.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/notesmith/notesmith/internal/ai"
	"github.com/notesmith/notesmith/internal/conflict"
	"github.com/notesmith/notesmith/internal/idle"
	"github.com/notesmith/notesmith/internal/note"
	"github.com/notesmith/notesmith/internal/registry"
)

// LargeNoteThreshold is the content size in bytes above which the
// session warns that the note is getting large.
const LargeNoteThreshold = 100 * 1024

var errEnd = errors.New("end of session")

// EditSession is a line-based editing loop. Plain input lines append to
// the active note; commands start with a colon.
type EditSession struct {
	registry     *registry.Registry
	detector     *conflict.Detector
	orchestrator *ai.Orchestrator
	monitor      *idle.Monitor

	stdinReader  *bufio.Reader
	stdoutWriter io.Writer
	bold         *color.Color
	italic       *color.Color
	warn         *color.Color

	ghost       string
	largeWarned map[string]bool
}

// NewEditSession wires an interactive session on stdin/stdout.
func NewEditSession(
	reg *registry.Registry,
	detector *conflict.Detector,
	orchestrator *ai.Orchestrator,
	monitor *idle.Monitor,
) *EditSession {
	return &EditSession{
		registry:     reg,
		detector:     detector,
		orchestrator: orchestrator,
		monitor:      monitor,
		stdinReader:  bufio.NewReader(os.Stdin),
		stdoutWriter: os.Stdout,
		bold:         color.New(color.Bold),
		italic:       color.New(color.Italic),
		warn:         color.New(color.FgYellow),
		largeWarned:  map[string]bool{},
	}
}

// Run drives Session until the user quits or an interrupt arrives.
func (s *EditSession) Run(ctx context.Context) error {
	s.registry.OnPersistError(func(noteID string, err error) {
		s.warn.Fprintf(s.stdoutWriter, "Saving failed: %v. Your edits are kept in memory and written again on exit.\n", err)
	})

	ctx, cancel := signal.NotifyContext(
		ctx,
		os.Interrupt,
	)
	defer cancel()

	errCh := make(chan error)
	go func() {
		defer close(errCh)

	LOOP:
		for {
			select {
			case <-ctx.Done():
				break LOOP
			default:
			}

			if err := s.Session(ctx); err != nil {
				if errors.Is(err, errEnd) {
					break
				}
				errCh <- err
				break
			}
		}
	}()
	select {
	case <-ctx.Done():
		fmt.Fprintln(s.stdoutWriter, "Received interrupt signal, exiting...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error: %w", err)
		}
	}

	if err := s.registry.Close(context.Background()); err != nil {
		return fmt.Errorf("registry.Close > %w", err)
	}
	return nil
}

// Session handles one input line.
func (s *EditSession) Session(ctx context.Context) error {
	if state := s.detector.State(); state != nil {
		return s.resolveConflict(ctx, state)
	}

	fmt.Fprint(s.stdoutWriter, "> ")
	line, err := s.stdinReader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errEnd
		}
		return fmt.Errorf("error reading input: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	s.monitor.Touch()

	if strings.HasPrefix(line, ":") {
		return s.runCommand(ctx, line)
	}
	if line == "" {
		return nil
	}
	return s.appendLine(line)
}

func (s *EditSession) resolveConflict(ctx context.Context, state *conflict.State) error {
	s.warn.Fprintf(s.stdoutWriter,
		"This note was changed in another window (version %d, yours is %d).\n",
		state.ExternalVersion, state.LocalVersion)
	fmt.Fprint(s.stdoutWriter, "[r]eload their version / [i]gnore and keep yours: ")

	answer, err := s.stdinReader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "r", "reload":
		s.detector.Resolve(conflict.ResolutionReload)
		reloaded, err := s.registry.Reload(ctx, state.NoteID)
		if err != nil {
			return fmt.Errorf("registry.Reload > %w", err)
		}
		s.detector.SetActive(reloaded.ID, reloaded.Version)
		s.ghost = ""
		fmt.Fprintln(s.stdoutWriter, "Reloaded.")
	default:
		s.detector.Resolve(conflict.ResolutionIgnore)
		fmt.Fprintln(s.stdoutWriter, "Keeping your version.")
	}
	return nil
}

func (s *EditSession) appendLine(line string) error {
	active := s.registry.Active()
	if active == nil {
		s.warn.Fprintln(s.stdoutWriter, "No note selected. Use :new or :open <n>.")
		return nil
	}

	content := active.Content
	if content == "" {
		content = line
	} else {
		content = content + "\n" + line
	}

	updated, err := s.registry.UpdateContent(active.ID, content)
	if err != nil {
		s.warn.Fprintf(s.stdoutWriter, "Could not save the change: %v\n", err)
		return nil
	}
	s.detector.UpdateLocalVersion(updated.Version)

	if len(updated.Content) > LargeNoteThreshold && !s.largeWarned[updated.ID] {
		s.largeWarned[updated.ID] = true
		s.warn.Fprintln(s.stdoutWriter, "This note is getting large; consider splitting it.")
	}
	return nil
}

func (s *EditSession) runCommand(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	command := fields[0]
	arg := strings.TrimSpace(strings.TrimPrefix(line, command))

	switch command {
	case ":quit", ":q", ":exit":
		return errEnd
	case ":help", ":h":
		s.printHelp()
		return nil
	case ":notes", ":list":
		s.printNotes()
		return nil
	case ":new":
		return s.createNote(ctx)
	case ":open":
		return s.openNote(arg)
	case ":show":
		s.printActive()
		return nil
	case ":title":
		return s.rename(ctx, arg)
	case ":tag":
		return s.withActive(func(id string) error {
			_, err := s.registry.AddTag(ctx, id, arg)
			return err
		})
	case ":untag":
		return s.withActive(func(id string) error {
			_, err := s.registry.RemoveTag(ctx, id, arg)
			return err
		})
	case ":subject":
		return s.withActive(func(id string) error {
			_, err := s.registry.SetSubject(ctx, id, note.SubjectType(arg))
			return err
		})
	case ":delete", ":rm":
		return s.deleteActive(ctx)
	case ":summarize":
		return s.summarize(ctx)
	case ":tags":
		return s.suggestTags(ctx)
	case ":continue":
		return s.continueWriting(ctx)
	case ":accept":
		return s.acceptGhost()
	case ":reject":
		s.ghost = ""
		fmt.Fprintln(s.stdoutWriter, "Suggestion discarded.")
		return nil
	case ":grammar":
		return s.checkGrammar(ctx)
	case ":insights":
		return s.generateInsights(ctx)
	default:
		s.warn.Fprintf(s.stdoutWriter, "Unknown command %s (try :help)\n", command)
		return nil
	}
}

func (s *EditSession) printHelp() {
	fmt.Fprintln(s.stdoutWriter, `Type to append to the current note. Commands:
  :notes              list notes
  :open <n>           open note by list position
  :new                create a note
  :show               show the current note
  :title <t>          rename the current note
  :tag <t> :untag <t> add or remove a tag
  :subject <s>        set subject (general, math, chemistry, code, language)
  :summarize          generate a summary
  :tags               suggest tags
  :continue           suggest a continuation (then :accept or :reject)
  :grammar            check grammar
  :insights           generate study insights
  :delete             delete the current note
  :quit               exit`)
}

func (s *EditSession) printNotes() {
	notes := s.registry.All()
	if len(notes) == 0 {
		fmt.Fprintln(s.stdoutWriter, "No notes yet. Use :new to create one.")
		return
	}
	active := s.registry.Active()
	for i, n := range notes {
		marker := " "
		if active != nil && n.ID == active.ID {
			marker = "*"
		}
		title := n.Title
		if title == "" {
			title = "(untitled)"
		}
		updated := time.UnixMilli(n.UpdatedAt).Format("2006-01-02 15:04")
		fmt.Fprintf(s.stdoutWriter, "%s %2d. %s  [%s]", marker, i+1, title, updated)
		if len(n.Tags) > 0 {
			fmt.Fprintf(s.stdoutWriter, "  #%s", strings.Join(n.Tags, " #"))
		}
		fmt.Fprintln(s.stdoutWriter)
	}
}

func (s *EditSession) createNote(ctx context.Context) error {
	previous := s.registry.Active()

	n, err := s.registry.Create(ctx)
	if err != nil {
		s.warn.Fprintf(s.stdoutWriter, "Could not create the note: %v\n", err)
		return nil
	}
	s.switchTo(previous, n)
	fmt.Fprintln(s.stdoutWriter, "Created a new note. Start typing.")
	return nil
}

func (s *EditSession) openNote(arg string) error {
	position, err := strconv.Atoi(arg)
	if err != nil {
		s.warn.Fprintln(s.stdoutWriter, "Usage: :open <n> with n from :notes")
		return nil
	}
	notes := s.registry.All()
	if position < 1 || position > len(notes) {
		s.warn.Fprintf(s.stdoutWriter, "No note at position %d\n", position)
		return nil
	}

	previous := s.registry.Active()
	target := notes[position-1]
	if err := s.registry.SetActive(target.ID); err != nil {
		return fmt.Errorf("registry.SetActive > %w", err)
	}
	s.switchTo(previous, target)
	s.printActive()
	return nil
}

// switchTo clears per-note session state when the selection changes:
// the pending ghost text dies with the old note and any in-flight
// insights request for it is cancelled.
func (s *EditSession) switchTo(previous, next *note.Note) {
	if previous != nil && (next == nil || previous.ID != next.ID) {
		s.orchestrator.CancelNote(previous.ID)
	}
	s.ghost = ""
	if next != nil {
		s.detector.SetActive(next.ID, next.Version)
	}
}

func (s *EditSession) printActive() {
	n := s.registry.Active()
	if n == nil {
		s.warn.Fprintln(s.stdoutWriter, "No note selected.")
		return
	}

	title := n.Title
	if title == "" {
		title = "(untitled)"
	}
	s.bold.Fprintln(s.stdoutWriter, title)
	fmt.Fprintf(s.stdoutWriter, "subject: %s  version: %d", n.SubjectType, n.Version)
	if len(n.Tags) > 0 {
		fmt.Fprintf(s.stdoutWriter, "  tags: #%s", strings.Join(n.Tags, " #"))
	}
	fmt.Fprintln(s.stdoutWriter)
	if n.Content != "" {
		fmt.Fprintln(s.stdoutWriter, n.Content)
	}
	if n.AIMetadata != nil {
		s.italic.Fprintf(s.stdoutWriter, "summary: %s\n", n.AIMetadata.Summary)
	}
	if n.AIInsights != nil {
		freshness := "fresh"
		if n.IsInsightsStale() {
			freshness = "stale"
		}
		s.italic.Fprintf(s.stdoutWriter, "insights (%s): %s\n", freshness, n.AIInsights.Summary)
	}
}

func (s *EditSession) rename(ctx context.Context, title string) error {
	return s.withActive(func(id string) error {
		renamed, err := s.registry.Rename(ctx, id, title)
		if err != nil {
			return err
		}
		s.detector.UpdateLocalVersion(renamed.Version)
		return nil
	})
}

func (s *EditSession) deleteActive(ctx context.Context) error {
	n := s.registry.Active()
	if n == nil {
		s.warn.Fprintln(s.stdoutWriter, "No note selected.")
		return nil
	}

	fmt.Fprintf(s.stdoutWriter, "Delete %q? [y/N]: ", n.Title)
	answer, err := s.stdinReader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		fmt.Fprintln(s.stdoutWriter, "Kept.")
		return nil
	}

	s.orchestrator.CancelNote(n.ID)
	s.ghost = ""
	if err := s.registry.Remove(ctx, n.ID); err != nil {
		s.warn.Fprintf(s.stdoutWriter, "Could not delete the note: %v\n", err)
		return nil
	}
	s.detector.SetActive("", 0)
	fmt.Fprintln(s.stdoutWriter, "Deleted.")
	return nil
}

func (s *EditSession) summarize(ctx context.Context) error {
	n := s.registry.Active()
	if n == nil {
		s.warn.Fprintln(s.stdoutWriter, "No note selected.")
		return nil
	}

	summary, err := s.orchestrator.Summarize(ctx, n, func(chunk string) {
		s.italic.Fprint(s.stdoutWriter, chunk)
	})
	fmt.Fprintln(s.stdoutWriter)
	if err != nil {
		s.printAIError(err)
		return nil
	}

	if updated, err := s.registry.ApplySummary(ctx, n.ID, summary); err != nil {
		s.warn.Fprintf(s.stdoutWriter, "Could not save the summary: %v\n", err)
	} else {
		s.detector.UpdateLocalVersion(updated.Version)
	}
	return nil
}

func (s *EditSession) suggestTags(ctx context.Context) error {
	n := s.registry.Active()
	if n == nil {
		s.warn.Fprintln(s.stdoutWriter, "No note selected.")
		return nil
	}

	tags, err := s.orchestrator.SuggestTags(ctx, n)
	if err != nil {
		s.printAIError(err)
		return nil
	}
	if len(tags) == 0 {
		fmt.Fprintln(s.stdoutWriter, "No tag suggestions.")
		return nil
	}

	fmt.Fprintf(s.stdoutWriter, "Suggested: #%s\nApply? [y/N]: ", strings.Join(tags, " #"))
	answer, err := s.stdinReader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		return nil
	}

	if updated, err := s.registry.SetTags(ctx, n.ID, tags); err != nil {
		s.warn.Fprintf(s.stdoutWriter, "Could not save the tags: %v\n", err)
	} else {
		s.detector.UpdateLocalVersion(updated.Version)
	}
	return nil
}

func (s *EditSession) continueWriting(ctx context.Context) error {
	n := s.registry.Active()
	if n == nil {
		s.warn.Fprintln(s.stdoutWriter, "No note selected.")
		return nil
	}
	if n.Content == "" {
		s.warn.Fprintln(s.stdoutWriter, "Write something first.")
		return nil
	}

	ghost, err := s.orchestrator.ContinueWriting(ctx, n, func(chunk string) {
		s.italic.Fprint(s.stdoutWriter, chunk)
	})
	fmt.Fprintln(s.stdoutWriter)
	if err != nil {
		s.ghost = ""
		s.printAIError(err)
		return nil
	}

	s.ghost = ghost
	fmt.Fprintln(s.stdoutWriter, ":accept to keep it, :reject to discard.")
	return nil
}

func (s *EditSession) acceptGhost() error {
	if s.ghost == "" {
		s.warn.Fprintln(s.stdoutWriter, "Nothing to accept.")
		return nil
	}
	n := s.registry.Active()
	if n == nil {
		s.ghost = ""
		return nil
	}

	content := strings.TrimRight(n.Content, " ") + " " + s.ghost
	updated, err := s.registry.UpdateContent(n.ID, content)
	if err != nil {
		s.warn.Fprintf(s.stdoutWriter, "Could not save the change: %v\n", err)
		return nil
	}
	s.detector.UpdateLocalVersion(updated.Version)
	s.ghost = ""
	fmt.Fprintln(s.stdoutWriter, "Added to the note.")
	return nil
}

func (s *EditSession) checkGrammar(ctx context.Context) error {
	n := s.registry.Active()
	if n == nil {
		s.warn.Fprintln(s.stdoutWriter, "No note selected.")
		return nil
	}

	result, err := s.orchestrator.CheckGrammar(ctx, n)
	if err != nil {
		s.printAIError(err)
		return nil
	}
	if len(result.Issues) == 0 {
		fmt.Fprintln(s.stdoutWriter, "No issues found.")
		return nil
	}

	for _, issue := range result.Issues {
		fmt.Fprintf(s.stdoutWriter, "- %q -> %q (%s)\n", issue.Original, issue.Suggestion, issue.Explanation)
	}
	if result.Truncated {
		s.warn.Fprintln(s.stdoutWriter, "Only the beginning of this long note was checked; the corrections cannot be applied automatically.")
		return nil
	}
	fmt.Fprint(s.stdoutWriter, "Apply the corrected text? [y/N]: ")
	answer, err := s.stdinReader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		return nil
	}

	updated, err := s.registry.UpdateContent(n.ID, result.CorrectedText)
	if err != nil {
		s.warn.Fprintf(s.stdoutWriter, "Could not save the change: %v\n", err)
		return nil
	}
	s.detector.UpdateLocalVersion(updated.Version)
	return nil
}

func (s *EditSession) generateInsights(ctx context.Context) error {
	n := s.registry.Active()
	if n == nil {
		s.warn.Fprintln(s.stdoutWriter, "No note selected.")
		return nil
	}

	insights, err := s.orchestrator.GenerateInsights(ctx, n)
	if err != nil {
		s.printAIError(err)
		return nil
	}

	s.printInsights(insights)
	if err := s.registry.ApplyInsights(ctx, n.ID, insights); err != nil {
		s.warn.Fprintf(s.stdoutWriter, "Could not save the insights: %v\n", err)
		return nil
	}
	if updated, err := s.registry.Get(n.ID); err == nil {
		s.detector.UpdateLocalVersion(updated.Version)
	}
	return nil
}

func (s *EditSession) printInsights(insights *note.Insights) {
	s.bold.Fprintln(s.stdoutWriter, "Insights")
	fmt.Fprintln(s.stdoutWriter, insights.Summary)
	if len(insights.Definitions) > 0 {
		fmt.Fprintln(s.stdoutWriter, "Definitions:")
		for _, d := range insights.Definitions {
			fmt.Fprintf(s.stdoutWriter, "- %s: %s\n", d.Term, d.Explanation)
		}
	}
	if insights.AdditionalContext != "" {
		fmt.Fprintln(s.stdoutWriter, insights.AdditionalContext)
	}
	if len(insights.StudyQuestions) > 0 {
		fmt.Fprintln(s.stdoutWriter, "Study questions:")
		for _, q := range insights.StudyQuestions {
			fmt.Fprintf(s.stdoutWriter, "- %s\n", q)
		}
	}
}

// printAIError renders orchestrator failures as short inline messages
// scoped to the feature that triggered them.
func (s *EditSession) printAIError(err error) {
	var cooldownErr *ai.CooldownError
	var rateLimitErr *ai.RateLimitError
	switch {
	case errors.As(err, &cooldownErr):
		s.warn.Fprintf(s.stdoutWriter, "%s\n", cooldownErr.Error())
	case errors.As(err, &rateLimitErr):
		seconds := int(rateLimitErr.RetryAfter.Seconds())
		s.warn.Fprintf(s.stdoutWriter, "The AI service is busy; try again in %d seconds.\n", seconds)
	case errors.Is(err, ai.ErrCancelled):
		// A superseded request is not worth reporting.
	default:
		s.warn.Fprintf(s.stdoutWriter, "AI request failed: %v\n", err)
	}
}

func (s *EditSession) withActive(fn func(id string) error) error {
	n := s.registry.Active()
	if n == nil {
		s.warn.Fprintln(s.stdoutWriter, "No note selected.")
		return nil
	}
	if err := fn(n.ID); err != nil {
		s.warn.Fprintf(s.stdoutWriter, "Could not update the note: %v\n", err)
	}
	return nil
}
