package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go"

	"github.com/notesmith/notesmith/internal/clock"
	"github.com/notesmith/notesmith/internal/note"
)

const (
	// DefaultCooldown is the minimum interval between consecutive
	// requests across all operation types on one orchestrator.
	DefaultCooldown = 3 * time.Second
	// DefaultRetryDelay is the fixed wait before the single automatic
	// retry of a rate-limited insights request.
	DefaultRetryDelay = 3 * time.Second

	// streamChunkSize is the preview granularity for incremental
	// delivery, in runes.
	streamChunkSize = 48
)

// ErrCancelled is returned when a request was superseded or torn down;
// its result, if any, is discarded.
var ErrCancelled = errors.New("request cancelled")

// CooldownError rejects a request locally before it reaches the network.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	seconds := int(math.Ceil(e.Remaining.Seconds()))
	if seconds == 1 {
		return "please wait 1 second before the next AI request"
	}
	return fmt.Sprintf("please wait %d seconds before the next AI request", seconds)
}

// IsCooldown reports whether err is a local cooldown rejection.
func IsCooldown(err error) bool {
	var cd *CooldownError
	return errors.As(err, &cd)
}

// Options tune an orchestrator; zero values select defaults.
type Options struct {
	Cooldown   time.Duration
	RetryDelay time.Duration
	MaxTokens  int
}

// Orchestrator serializes all AI operations through one cooldown gate
// and owns cancellation of in-flight insights requests.
type Orchestrator struct {
	client     CompletionClient
	clock      clock.Clock
	cooldown   time.Duration
	retryDelay time.Duration
	maxTokens  int

	mu          sync.Mutex
	requested   bool
	lastRequest time.Time
	inflight    map[string]*inflightRequest
}

type inflightRequest struct {
	cancel context.CancelFunc
}

// NewOrchestrator wires a client and a clock.
func NewOrchestrator(client CompletionClient, clk clock.Clock, opts Options) *Orchestrator {
	if opts.Cooldown == 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Orchestrator{
		client:     client,
		clock:      clk,
		cooldown:   opts.Cooldown,
		retryDelay: opts.RetryDelay,
		maxTokens:  opts.MaxTokens,
		inflight:   map[string]*inflightRequest{},
	}
}

// CooldownRemaining returns how long until the next request is allowed;
// zero means the gate is open.
func (o *Orchestrator) CooldownRemaining() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.remainingLocked()
}

func (o *Orchestrator) remainingLocked() time.Duration {
	if !o.requested {
		return 0
	}
	elapsed := o.clock.Now().Sub(o.lastRequest)
	if elapsed >= o.cooldown {
		return 0
	}
	return o.cooldown - elapsed
}

// acquire claims the cooldown gate or rejects locally. The gate is
// stamped at attempt time, so a failed request still starts a cooldown.
func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if remaining := o.remainingLocked(); remaining > 0 {
		return &CooldownError{Remaining: remaining}
	}
	o.requested = true
	o.lastRequest = o.clock.Now()
	return nil
}

// Summarize generates a short summary. Partial output is delivered to
// onChunk in order before the full text is returned; callers treat the
// chunks as overwritable preview state.
func (o *Orchestrator) Summarize(ctx context.Context, n *note.Note, onChunk func(string)) (string, error) {
	if err := o.acquire(); err != nil {
		return "", err
	}
	resp, err := o.client.Complete(ctx, summaryRequest(n, o.maxTokens))
	if err != nil {
		return "", fmt.Errorf("summarize > %w", err)
	}
	text := strings.TrimSpace(resp.Response)
	deliverChunks(text, onChunk)
	return text, nil
}

// SuggestTags proposes up to five tags for the note.
func (o *Orchestrator) SuggestTags(ctx context.Context, n *note.Note) ([]string, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	resp, err := o.client.Complete(ctx, tagsRequest(n, o.maxTokens))
	if err != nil {
		return nil, fmt.Errorf("suggest tags > %w", err)
	}
	return parseTagList(resp.Response), nil
}

// ContinueWriting generates ghost text picking up where the note ends.
// Like Summarize, partial output goes to onChunk as overwritable preview.
func (o *Orchestrator) ContinueWriting(ctx context.Context, n *note.Note, onChunk func(string)) (string, error) {
	if err := o.acquire(); err != nil {
		return "", err
	}
	resp, err := o.client.Complete(ctx, continuationRequest(n, o.maxTokens))
	if err != nil {
		return "", fmt.Errorf("continue writing > %w", err)
	}
	text := strings.TrimSpace(resp.Response)
	deliverChunks(text, onChunk)
	return text, nil
}

// CheckGrammar reviews the note. Malformed model output degrades to the
// original text with no issues rather than an error. Notes longer than
// the input cap are checked partially; the result is marked Truncated
// so callers do not apply the partial correction over the full content.
func (o *Orchestrator) CheckGrammar(ctx context.Context, n *note.Note) (GrammarResult, error) {
	if err := o.acquire(); err != nil {
		return GrammarResult{}, err
	}
	resp, err := o.client.Complete(ctx, grammarRequest(n, o.maxTokens))
	if err != nil {
		return GrammarResult{}, fmt.Errorf("check grammar > %w", err)
	}
	result := parseGrammar(resp.Response, n.Content)
	result.Truncated = utf8.RuneCountInString(n.Content) > maxGrammarInput
	return result, nil
}

// GenerateInsights produces a structured insight bundle. It cancels any
// in-flight insights request for the same note first, and on a
// rate-limit response retries exactly once after the fixed delay instead
// of surfacing the error. Other operation types never auto-retry.
func (o *Orchestrator) GenerateInsights(ctx context.Context, n *note.Note) (*note.Insights, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	entry := &inflightRequest{cancel: cancel}

	o.mu.Lock()
	if previous, ok := o.inflight[n.ID]; ok {
		previous.cancel()
	}
	o.inflight[n.ID] = entry
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		if o.inflight[n.ID] == entry {
			delete(o.inflight, n.ID)
		}
		o.mu.Unlock()
	}()

	req := insightsRequest(n, o.maxTokens)
	var resp Response
	err := retry.Do(
		func() error {
			r, err := o.client.Complete(reqCtx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(reqCtx),
		retry.Attempts(2),
		retry.Delay(o.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool {
			if !IsRateLimit(err) {
				return false
			}
			slog.Default().Info("insights request rate limited, retrying once",
				"noteID", n.ID,
				"delay", o.retryDelay)
			return true
		}),
		retry.LastErrorOnly(true),
	)

	// A superseded or torn-down request must never surface a late
	// result.
	if reqCtx.Err() != nil {
		return nil, ErrCancelled
	}
	if err != nil {
		return nil, fmt.Errorf("generate insights > %w", err)
	}

	return parseInsights(resp.Response, n.Content, o.clock.Now().UnixMilli()), nil
}

// CancelNote cancels any in-flight insights request for the note, e.g.
// when the user switches away from it.
func (o *Orchestrator) CancelNote(noteID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if entry, ok := o.inflight[noteID]; ok {
		entry.cancel()
		delete(o.inflight, noteID)
	}
}

// Close cancels every outstanding request.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, entry := range o.inflight {
		entry.cancel()
		delete(o.inflight, id)
	}
}

// deliverChunks feeds text to onChunk in arrival order. The underlying
// transport is synchronous today; a streaming transport can satisfy the
// same contract by calling onChunk as pieces arrive.
func deliverChunks(text string, onChunk func(string)) {
	if onChunk == nil || text == "" {
		return
	}
	runes := []rune(text)
	for start := 0; start < len(runes); start += streamChunkSize {
		end := start + streamChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		onChunk(string(runes[start:end]))
	}
}
