package run

import (
	"context"
	"errors"
	"sync"

	"github.com/kalambet/cvsift/internal/match"
)

// ErrNoRun is returned when an operation needs a run and none was started.
var ErrNoRun = errors.New("no run started")

// Session tracks the single active run. Starting a run cancels the previous
// one and waits for it to let go of its stream.
type Session struct {
	transport Transport
	opts      Options

	// startMu serialises Start and Stop; mu guards the fields below and is
	// never held while waiting for a run to exit.
	startMu sync.Mutex
	mu      sync.Mutex
	current *Run
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSession creates an idle session.
func NewSession(t Transport, opts Options) *Session {
	return &Session{transport: t, opts: opts}
}

// Start cancels any in-flight run, then launches a new one for sub in the
// background. observe is passed to Execute.
func (s *Session) Start(ctx context.Context, sub match.Submission, observe func(Snapshot)) (*Run, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	r, err := New(sub, s.transport, s.opts)
	if err != nil {
		return nil, err
	}
	s.stop()

	// The run outlives the call that started it; only Stop or the next
	// Start cancel it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.mu.Lock()
	s.current, s.cancel, s.done = r, cancel, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		r.Execute(runCtx, observe)
	}()
	return r, nil
}

// Current returns the latest run.
func (s *Session) Current() (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoRun
	}
	return s.current, nil
}

// Wait blocks until the latest run ends or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return ErrNoRun
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the latest run, if still active, and waits for it to exit.
func (s *Session) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	s.stop()
}

func (s *Session) stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
