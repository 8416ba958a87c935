// Package supervisor runs named goroutines under one shared context with
// panic recovery, first-error capture and optional restart-with-backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "rotabot/pkg/logx"
)

// Supervisor owns a group of goroutines tied to one cancellable context.
// The zero value is not usable; construct with New.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	started atomic.Uint64
	active  atomic.Int64

	firstErr atomic.Value
	errOnce  sync.Once

	wg       sync.WaitGroup
	doneOnce sync.Once
	doneCh   chan struct{}
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the whole group when any goroutine fails.
func WithCancelOnError(on bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = on }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	if parent == nil {
		parent = context.Background()
	}
	s := &Supervisor{doneCh: make(chan struct{})}
	s.ctx, s.cancel = context.WithCancel(parent)
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the group context without waiting for goroutines to exit.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first error any goroutine produced, or nil.
func (s *Supervisor) Err() error {
	if err, ok := s.firstErr.Load().(error); ok {
		return err
	}
	return nil
}

// Counters is a best-effort operational snapshot, not a sync primitive.
type Counters struct {
	Active  int64  `json:"active"`
	Started uint64 `json:"started"`
}

func (s *Supervisor) Stats() Counters {
	if s == nil {
		return Counters{}
	}
	return Counters{Active: s.active.Load(), Started: s.started.Load()}
}

// Go runs fn once under the group context. A panic or a non-Canceled error
// becomes the group error; with cancel-on-error it also stops the group.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.started.Add(1)
	s.active.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)
		s.debugf(name, "goroutine started")
		if err := s.runOnce(name, fn); err != nil {
			s.fail(name, err)
		}
		s.debugf(name, "goroutine stopped")
	}()
}

// Go0 is Go for functions with no error return.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// runOnce executes fn, converting a panic into an error. A context.Canceled
// return is a clean shutdown and maps to nil.
func (s *Supervisor) runOnce(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if !s.log.IsZero() {
				s.log.Error("goroutine panicked",
					logx.String("name", name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	err = fn(s.ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (s *Supervisor) fail(name string, err error) {
	s.errOnce.Do(func() {
		s.firstErr.Store(fmt.Errorf("%s: %w", name, err))
	})
	if s.cancelOnErr {
		s.cancel()
	}
}

func (s *Supervisor) debugf(name, msg string) {
	if !s.log.IsZero() {
		s.log.Debug(msg, logx.String("name", name))
	}
}

// RestartOption tunes GoRestart.
type RestartOption func(*restartPolicy)

type restartPolicy struct {
	base         time.Duration
	cap          time.Duration
	stopOnClean  bool
	publishFirst bool
}

// WithRestartBackoff sets the exponential backoff window between restarts.
func WithRestartBackoff(base, ceil time.Duration) RestartOption {
	return func(p *restartPolicy) {
		if base > 0 {
			p.base = base
		}
		if ceil > 0 {
			p.cap = ceil
		}
	}
}

// WithPublishFirstError records the first failure as the group error while
// the loop keeps restarting.
func WithPublishFirstError(on bool) RestartOption {
	return func(p *restartPolicy) { p.publishFirst = on }
}

// WithStopOnCleanExit controls whether a nil return ends the loop.
// Default true.
func WithStopOnCleanExit(on bool) RestartOption {
	return func(p *restartPolicy) { p.stopOnClean = on }
}

// resetAfter is how long a run must survive before the next failure pays
// the minimum backoff again instead of the escalated one.
const resetAfter = 30 * time.Second

// GoRestart keeps fn running until the group context ends, restarting it
// after failures with jittered exponential backoff. Meant for pollers,
// watchers and consumer loops whose transient failures should self-heal.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	pol := restartPolicy{base: 250 * time.Millisecond, cap: 30 * time.Second, stopOnClean: true}
	for _, o := range opts {
		o(&pol)
	}
	if pol.cap < pol.base {
		pol.cap = pol.base
	}

	s.Go0(name+".restart", func(ctx context.Context) {
		delay := pol.base
		for ctx.Err() == nil {
			began := time.Now()
			err := s.runOnce(name, fn)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				if pol.stopOnClean {
					return
				}
				err = errors.New("exited")
			}
			if pol.publishFirst {
				s.errOnce.Do(func() {
					s.firstErr.Store(fmt.Errorf("%s: %w", name, err))
				})
			}
			if time.Since(began) >= resetAfter {
				delay = pol.base
			}
			wait := jitter(delay)
			if !s.log.IsZero() {
				s.log.Warn("goroutine restarting",
					logx.String("name", name),
					logx.Duration("backoff", wait),
					logx.Err(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			if delay *= 2; delay > pol.cap {
				delay = pol.cap
			}
		}
	})
}

// GoRestart0 is GoRestart for functions with no error return.
func (s *Supervisor) GoRestart0(name string, fn func(ctx context.Context), opts ...RestartOption) {
	if fn == nil {
		return
	}
	s.GoRestart(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	}, opts...)
}

// jitter spreads d by +-20% so restarting loops do not synchronize.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	f := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * f)
}

// Stop cancels the group and waits for it to drain, bounded by ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every goroutine has exited or ctx ends. It returns the
// group error on a clean drain and ctx.Err() on timeout.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}
