// Package cancel provides cancel signals a run polls to stop cooperatively.
package cancel

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// Signal is polled by the scheduler. Once IsSet returns true the run cancels
// every active node and is rejected with WORKFLOW_CANCELLED.
type Signal interface {
	IsSet() bool
}

// Token is a settable signal. The zero value is unset.
type Token struct {
	set atomic.Bool
}

// NewToken returns an unset token.
func NewToken() *Token { return &Token{} }

func (t *Token) Set()        { t.set.Store(true) }
func (t *Token) Reset()      { t.set.Store(false) }
func (t *Token) IsSet() bool { return t.set.Load() }

type contextSignal struct {
	ctx context.Context
}

// FromContext is set once ctx is done.
func FromContext(ctx context.Context) Signal {
	return contextSignal{ctx: ctx}
}

func (s contextSignal) IsSet() bool { return s.ctx.Err() != nil }

// Any is set when one of its signals is set.
func Any(signals ...Signal) Signal {
	return anySignal(signals)
}

type anySignal []Signal

func (a anySignal) IsSet() bool {
	for _, s := range a {
		if s != nil && s.IsSet() {
			return true
		}
	}
	return false
}

// OSSignal is set when the process receives SIGINT or SIGTERM.
type OSSignal struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewOSSignal creates the signal and immediately starts listening.
func NewOSSignal() *OSSignal {
	s := &OSSignal{}
	s.Reset()
	return s
}

// Context is done when a signal arrives or Stop is called.
func (s *OSSignal) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *OSSignal) IsSet() bool {
	return s.Context().Err() != nil
}

// Reset re-arms the listener so subsequent signals are captured again.
func (s *OSSignal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Stop permanently stops listening. The signal reads as set afterwards.
func (s *OSSignal) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
