// Package run owns one analysis run: it drives the event feed through the
// decoder, interpreter, progress aggregator and results engine, and hands
// immutable snapshots to whoever renders them.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/cvsift/internal/match"
	"github.com/kalambet/cvsift/internal/progress"
	"github.com/kalambet/cvsift/internal/results"
	"github.com/kalambet/cvsift/internal/stream"
)

// ErrNoResults is returned by result operations before the result set arrives.
var ErrNoResults = errors.New("no results yet")

const maxWarnings = 50

// Transport opens the connection to the analysis service.
type Transport interface {
	Stream(ctx context.Context, sub match.Submission) (io.ReadCloser, error)
	Submit(ctx context.Context, sub match.Submission) ([]match.MatchResult, error)
}

// Phase is the lifecycle stage of a run.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Done reports whether the run has ended.
func (p Phase) Done() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Options configures a run.
type Options struct {
	// Streaming selects the event feed; otherwise the run waits for the
	// whole result set in one response.
	Streaming bool
	Sort      results.SortKey
	Filter    results.Filter
	Logger    *slog.Logger
}

// Snapshot is a copy of a run's state. It shares nothing with the run.
type Snapshot struct {
	ID          string               `json:"id"`
	Phase       Phase                `json:"phase"`
	Overall     progress.Overall     `json:"overall"`
	Items       []match.AnalysisItem `json:"items"`
	Results     []match.MatchResult  `json:"results"`
	Total       int                  `json:"total_results"`
	HasResults  bool                 `json:"has_results"`
	SortKey     results.SortKey      `json:"sort_key"`
	Filter      results.Filter       `json:"filter"`
	Diagnostics int                  `json:"diagnostics"`
	Warnings    []string             `json:"warnings,omitempty"`
	Err         *Error               `json:"-"`
	Started     time.Time            `json:"started"`
	Finished    time.Time            `json:"finished"`
}

// Run is one submission and everything derived from its feed.
type Run struct {
	id        string
	sub       match.Submission
	transport Transport
	streaming bool
	logger    *slog.Logger

	mu          sync.RWMutex
	phase       Phase
	agg         *progress.Aggregator
	engine      *results.Engine
	sortKey     results.SortKey
	filter      results.Filter
	diagnostics int
	warnings    []string
	err         *Error
	started     time.Time
	finished    time.Time
}

// New prepares a run with one queued item per document.
func New(sub match.Submission, t Transport, opts Options) (*Run, error) {
	agg, err := progress.NewAggregator(sub.Filenames())
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "submission rejected", Err: err}
	}
	if opts.Sort == "" {
		opts.Sort = results.SortOverall
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Run{
		id:        id,
		sub:       sub,
		transport: t,
		streaming: opts.Streaming,
		logger:    logger.With("run", id),
		phase:     PhaseIdle,
		agg:       agg,
		sortKey:   opts.Sort,
		filter:    opts.Filter,
	}, nil
}

// ID returns the run's identifier.
func (r *Run) ID() string {
	return r.id
}

// Execute submits the documents and consumes the feed until a terminal
// event, a transport failure or ctx ends. observe, if set, is called with a
// fresh snapshot after every change. The returned error is the run's
// terminal *Error, or nil when results were installed.
func (r *Run) Execute(ctx context.Context, observe func(Snapshot)) error {
	notify := func() {
		if observe != nil {
			observe(r.Snapshot())
		}
	}

	r.mu.Lock()
	if r.phase != PhaseIdle {
		r.mu.Unlock()
		return fmt.Errorf("run %s already %s", r.id, r.phase)
	}
	r.phase = PhaseRunning
	r.started = time.Now()
	r.mu.Unlock()
	r.logger.Info("run started", "documents", len(r.sub.Documents), "streaming", r.streaming)
	notify()

	var err error
	if r.streaming {
		err = r.consume(ctx, notify)
	} else {
		err = r.collect(ctx)
	}
	notify()
	return err
}

func (r *Run) collect(ctx context.Context) error {
	rs, err := r.transport.Submit(ctx, r.sub)
	if err != nil {
		return r.fail(transportError(ctx, "submitting documents", err))
	}
	return r.installResults(rs)
}

func (r *Run) consume(ctx context.Context, notify func()) error {
	body, err := r.transport.Stream(ctx, r.sub)
	if err != nil {
		return r.fail(transportError(ctx, "opening stream", err))
	}
	defer body.Close()

	dec := stream.NewDecoder(body)
	for {
		payload, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) && ctx.Err() == nil {
				return r.fail(&Error{Kind: KindTransport, Message: "stream ended before results"})
			}
			return r.fail(transportError(ctx, "reading stream", err))
		}

		ev, err := stream.Interpret(payload)
		if err != nil {
			r.diagnose(err, payload)
			notify()
			continue
		}

		switch ev.Kind {
		case stream.KindProgress:
			r.applyProgress(ev.Progress)
		case stream.KindResults:
			return r.installResults(ev.Results)
		case stream.KindFailed:
			return r.fail(&Error{Kind: KindApplication, Message: ev.Message})
		}
		notify()
	}
}

func (r *Run) applyProgress(update match.AnalysisItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	applied, err := r.agg.Apply(update)
	switch {
	case errors.Is(err, progress.ErrUnknownItem):
		r.logger.Warn("progress for unknown document", "filename", update.Filename)
		r.warn(fmt.Sprintf("progress for unknown document %q ignored", update.Filename))
	case err != nil:
		r.logger.Warn("progress rejected", "filename", update.Filename, "error", err)
	case applied.Regressed:
		r.logger.Warn("progress moved backwards",
			"filename", update.Filename,
			"from", applied.Previous.Status,
			"to", applied.Current.Status)
	default:
		r.logger.Debug("progress", "filename", update.Filename, "status", update.Status, "percent", applied.Current.Progress)
	}
}

// installResults checks that every result names a distinct document of the
// run, then freezes the items and installs the set.
func (r *Run) installResults(rs []match.MatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(rs))
	for _, res := range rs {
		if !r.agg.Has(res.Filename) {
			return r.failLocked(&Error{Kind: KindProtocol, Message: fmt.Sprintf("results name unknown document %q", res.Filename)})
		}
		if seen[res.Filename] {
			return r.failLocked(&Error{Kind: KindProtocol, Message: fmt.Sprintf("results name %q twice", res.Filename)})
		}
		seen[res.Filename] = true
	}

	if !r.streaming {
		// Without a feed every document that has a result is reported done.
		for _, res := range rs {
			r.agg.Apply(match.AnalysisItem{
				Filename:    res.Filename,
				Status:      match.StatusCompleted,
				Progress:    100,
				CurrentStep: string(match.StatusCompleted),
			})
		}
	}
	r.agg.Close()

	e := results.NewEngine(rs)
	e.SetSort(r.sortKey)
	e.SetFilter(r.filter)
	r.engine = e
	r.phase = PhaseCompleted
	r.finished = time.Now()
	r.logger.Info("run completed", "results", len(rs), "diagnostics", r.diagnostics)
	return nil
}

func (r *Run) fail(e *Error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failLocked(e)
}

func (r *Run) failLocked(e *Error) error {
	r.agg.Fail()
	r.agg.Close()
	r.phase = PhaseFailed
	r.err = e
	r.finished = time.Now()
	r.logger.Error("run failed", "kind", e.Kind.String(), "error", e)
	return e
}

func (r *Run) diagnose(err error, payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics++
	if len(payload) > 200 {
		payload = payload[:200] + "..."
	}
	r.logger.Warn("malformed event skipped", "error", err, "payload", payload)
}

// warn records a user-visible warning. Callers hold r.mu.
func (r *Run) warn(msg string) {
	if len(r.warnings) < maxWarnings {
		r.warnings = append(r.warnings, msg)
	}
}

func transportError(ctx context.Context, msg string, err error) *Error {
	if ctx.Err() != nil {
		return &Error{Kind: KindTransport, Message: "cancelled", Err: ctx.Err()}
	}
	return &Error{Kind: KindTransport, Message: msg, Err: err}
}

// Snapshot returns a copy of the current state.
func (r *Run) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{
		ID:          r.id,
		Phase:       r.phase,
		Overall:     r.agg.Overall(),
		Items:       r.agg.Items(),
		SortKey:     r.sortKey,
		Filter:      r.filter,
		Diagnostics: r.diagnostics,
		Warnings:    slices.Clone(r.warnings),
		Err:         r.err,
		Started:     r.started,
		Finished:    r.finished,
	}
	if r.engine != nil {
		s.HasResults = true
		s.Results = r.engine.View()
		s.Total = r.engine.Len()
	}
	return s
}

// Err returns the terminal error of a failed run.
func (r *Run) Err() *Error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// SetSort changes the ranking of the displayed results.
func (r *Run) SetSort(key results.SortKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sortKey = key
	if r.engine != nil {
		r.engine.SetSort(key)
	}
}

// SetFilter changes the predicates of the displayed results.
func (r *Run) SetFilter(f results.Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filter = f
	if r.engine != nil {
		r.engine.SetFilter(f)
	}
}

// MoveItem reorders the displayed results. See results.Engine.MoveItem.
func (r *Run) MoveItem(filename string, dir results.Direction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engine == nil {
		return false, ErrNoResults
	}
	return r.engine.MoveItem(filename, dir)
}

// Canonical returns the result set in its canonical order.
func (r *Run) Canonical() ([]match.MatchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.engine == nil {
		return nil, ErrNoResults
	}
	return r.engine.Results(), nil
}
