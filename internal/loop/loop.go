// Package loop drives a trinity.Controller from a single goroutine, the way
// a UI event loop would, for headless and scripted use.
package loop

import (
	"context"
	"errors"
	"log/slog"

	"github.com/san-kum/trinity/internal/trinity"
)

var ErrStopped = errors.New("loop: stopped")

// Stats counts what the loop has seen. Read it through Loop.Stats.
type Stats struct {
	Dispatched int
	Rejected   int
	Outcomes   map[trinity.Outcome]int
}

// Observer is told about every completion and its outcome, on the loop
// goroutine.
type Observer func(c trinity.Completion, o trinity.Outcome)

type job struct {
	fn   func()
	done chan struct{}
}

type Loop struct {
	ctrl     *trinity.Controller
	log      *slog.Logger
	observer Observer

	jobs chan job
	quit chan struct{}
	done chan struct{}

	// owned by the loop goroutine
	pending int
	waiters []chan struct{}
	stats   Stats
}

type Option func(*Loop)

func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) { lp.log = l }
}

func WithObserver(fn Observer) Option {
	return func(lp *Loop) { lp.observer = fn }
}

func New(ctrl *trinity.Controller, opts ...Option) *Loop {
	l := &Loop{
		ctrl:  ctrl,
		log:   slog.Default(),
		jobs:  make(chan job),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		stats: Stats{Outcomes: make(map[trinity.Outcome]int)},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start runs the loop until Stop is called or ctx is done.
func (l *Loop) Start(ctx context.Context) {
	go func() {
		defer close(l.done)
		for {
			select {
			case j := <-l.jobs:
				j.fn()
				close(j.done)
			case <-l.quit:
				l.ctrl.Close()
				return
			case <-ctx.Done():
				l.ctrl.Close()
				return
			}
		}
	}()
}

// Stop tears the panel down. Pending requests are abandoned.
func (l *Loop) Stop() {
	select {
	case <-l.quit:
	default:
		close(l.quit)
	}
	<-l.done
}

// do runs fn on the loop goroutine and waits for it.
func (l *Loop) do(fn func()) error {
	j := job{fn: fn, done: make(chan struct{})}
	select {
	case l.jobs <- j:
	case <-l.done:
		return ErrStopped
	}
	<-j.done
	return nil
}

// SelectPreset handles a preset selection event. It returns the sequence
// number dispatched, or 0 when nothing was dispatched.
func (l *Loop) SelectPreset(name trinity.Preset) (uint64, error) {
	return l.handle(func() (*trinity.Flight, error) { return l.ctrl.SelectPreset(name) })
}

// CommitCustom handles a custom-value commit event.
func (l *Loop) CommitCustom(raw string) (uint64, error) {
	return l.handle(func() (*trinity.Flight, error) { return l.ctrl.SetCustomValue(raw) })
}

func (l *Loop) handle(event func() (*trinity.Flight, error)) (uint64, error) {
	var (
		seq      uint64
		eventErr error
	)
	err := l.do(func() {
		flight, err := event()
		if err != nil {
			if errors.Is(err, trinity.ErrInvalidDamping) {
				l.stats.Rejected++
			}
			eventErr = err
			return
		}
		if flight == nil {
			return
		}
		seq = flight.Request.Seq
		l.stats.Dispatched++
		l.launch(flight)
	})
	if err != nil {
		return 0, err
	}
	return seq, eventErr
}

// launch runs the fetch off the loop and posts its completion back.
func (l *Loop) launch(f *trinity.Flight) {
	l.pending++
	go func() {
		c := f.Run()
		if err := l.do(func() { l.complete(c) }); err != nil {
			l.log.Debug("completion dropped", "seq", c.Request.Seq, "error", err)
		}
	}()
}

func (l *Loop) complete(c trinity.Completion) {
	o := l.ctrl.Complete(c)
	l.stats.Outcomes[o]++
	if l.observer != nil {
		l.observer(c, o)
	}
	l.pending--
	if l.pending == 0 {
		for _, w := range l.waiters {
			close(w)
		}
		l.waiters = nil
	}
}

// Wait blocks until every launched fetch has been reconciled.
func (l *Loop) Wait(ctx context.Context) error {
	idle := make(chan struct{})
	err := l.do(func() {
		if l.pending == 0 {
			close(idle)
			return
		}
		l.waiters = append(l.waiters, idle)
	})
	if err != nil {
		return err
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Stats returns a copy of the loop counters.
func (l *Loop) Stats() Stats {
	var s Stats
	_ = l.do(func() {
		s = Stats{Dispatched: l.stats.Dispatched, Rejected: l.stats.Rejected, Outcomes: make(map[trinity.Outcome]int, len(l.stats.Outcomes))}
		for k, v := range l.stats.Outcomes {
			s.Outcomes[k] = v
		}
	})
	return s
}
