package trinity

import (
	"context"
	"log/slog"
	"time"
)

// Fetcher retrieves a visualization for a request.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Result, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) (*Result, error)

func (f FetcherFunc) Fetch(ctx context.Context, req Request) (*Result, error) { return f(ctx, req) }

// Sink is the display the dispatcher writes into.
type Sink interface {
	// ShowLoading marks req as in flight.
	ShowLoading(req Request)
	// ShowResult replaces the displayed image and diagnostics.
	ShowResult(res *Result)
	// ShowError shows an error indicator. The previous render stays
	// visible, marked stale.
	ShowError(err error)
}

// Flight is a dispatched request whose fetch has not run yet.
type Flight struct {
	Request Request

	ctx     context.Context
	fetcher Fetcher
}

// Run performs the fetch. It touches no dispatcher state and may be called
// from any goroutine; hand the Completion back to Dispatcher.Complete on
// the owning goroutine.
func (f *Flight) Run() Completion {
	start := time.Now()
	res, err := f.fetcher.Fetch(f.ctx, f.Request)
	if err == nil && res == nil {
		err = ErrEmptyResult
	}
	if res != nil {
		res.Seq = f.Request.Seq
	}
	return Completion{Request: f.Request, Result: res, Err: err, Elapsed: time.Since(start)}
}

// Dispatcher issues requests and applies last-request-wins ordering.
type Dispatcher struct {
	fetcher Fetcher
	sink    Sink
	log     *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	seq               uint64
	highestDispatched uint64
	highestRendered   uint64
	inflight          map[uint64]Request
}

type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithContext sets the parent context of every fetch. Cancelling it has
// the same effect on transports as Close.
func WithContext(ctx context.Context) Option {
	return func(d *Dispatcher) { d.ctx = ctx }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(f Fetcher, s Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		fetcher:  f,
		sink:     s,
		log:      slog.Default(),
		now:      time.Now,
		ctx:      context.Background(),
		inflight: make(map[uint64]Request),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx, d.cancel = context.WithCancel(d.ctx)
	return d
}

// Dispatch assigns the next sequence number to snap and returns the flight
// that will fetch it.
func (d *Dispatcher) Dispatch(snap Snapshot) (*Flight, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	d.seq++
	req := Request{Seq: d.seq, Snapshot: snap, IssuedAt: d.now()}
	d.highestDispatched = req.Seq
	d.inflight[req.Seq] = req

	d.log.Debug("dispatch", "seq", req.Seq, "params", snap.String(), "in_flight", len(d.inflight))
	d.sink.ShowLoading(req)

	return &Flight{Request: req, ctx: d.ctx, fetcher: d.fetcher}, nil
}

// Complete reconciles a finished flight with the display.
func (d *Dispatcher) Complete(c Completion) Outcome {
	seq := c.Request.Seq
	if d.closed {
		d.log.Debug("completion after close", "seq", seq)
		return OutcomeAbandoned
	}
	if _, ok := d.inflight[seq]; !ok {
		d.log.Warn("completion for unknown request", "seq", seq)
		return OutcomeUnknown
	}
	delete(d.inflight, seq)

	if seq < d.highestDispatched {
		d.log.Debug("discard stale completion", "seq", seq, "highest", d.highestDispatched, "failed", c.Err != nil)
		return OutcomeSuperseded
	}
	if c.Err != nil {
		d.log.Warn("fetch failed", "seq", seq, "params", c.Request.Snapshot.String(), "error", c.Err)
		d.sink.ShowError(&TransportError{Seq: seq, Wrapped: c.Err})
		return OutcomeErrored
	}
	d.highestRendered = seq
	d.log.Info("rendered", "seq", seq, "params", c.Request.Snapshot.String(), "elapsed", c.Elapsed)
	d.sink.ShowResult(c.Result)
	return OutcomeRendered
}

// Close abandons pending requests and cancels their transports.
func (d *Dispatcher) Close() {
	if d.closed {
		return
	}
	d.closed = true
	d.cancel()
	if n := len(d.inflight); n > 0 {
		d.log.Debug("abandon pending requests", "count", n)
	}
	clear(d.inflight)
}

func (d *Dispatcher) HighestDispatched() uint64 { return d.highestDispatched }

func (d *Dispatcher) HighestRendered() uint64 { return d.highestRendered }

func (d *Dispatcher) InFlight() int { return len(d.inflight) }

func (d *Dispatcher) Closed() bool { return d.closed }
