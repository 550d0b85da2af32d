package loop

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/trinity/internal/trinity"
)

// gatedFetcher holds each fetch until its sequence number is released.
type gatedFetcher struct {
	mu    sync.Mutex
	gates map[uint64]chan error
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{gates: make(map[uint64]chan error)}
}

func (f *gatedFetcher) gate(seq uint64) chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.gates[seq]
	if !ok {
		ch = make(chan error, 1)
		f.gates[seq] = ch
	}
	return ch
}

func (f *gatedFetcher) release(seq uint64, err error) { f.gate(seq) <- err }

func (f *gatedFetcher) Fetch(ctx context.Context, req trinity.Request) (*trinity.Result, error) {
	select {
	case err := <-f.gate(req.Seq):
		if err != nil {
			return nil, err
		}
		return &trinity.Result{Status: "IGNITED", DiagnosticText: req.Snapshot.String()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func startLoop(t *testing.T, f trinity.Fetcher, opts ...Option) (*Loop, *TextSink, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	sink := NewTextSink(&buf)
	l := New(trinity.NewController(trinity.NewDispatcher(f, sink)), opts...)
	l.Start(context.Background())
	t.Cleanup(l.Stop)
	return l, sink, &buf
}

func waitIdle(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Wait(ctx))
}

func TestLoop_OvertakenRequestDiscarded(t *testing.T) {
	f := newGatedFetcher()
	l, sink, _ := startLoop(t, f)

	seq, err := l.SelectPreset(trinity.Custom)
	require.NoError(t, err)
	assert.Zero(t, seq, "custom without a value should not dispatch")

	first, err := l.CommitCustom("0.5")
	require.NoError(t, err)
	second, err := l.SelectPreset(trinity.Amplified)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)

	f.release(second, nil)
	f.release(first, nil)
	waitIdle(t, l)

	require.NotNil(t, sink.Last())
	assert.Equal(t, uint64(2), sink.Last().Seq)
	assert.Equal(t, "Amplified", sink.Last().DiagnosticText)

	stats := l.Stats()
	assert.Equal(t, 2, stats.Dispatched)
	assert.Equal(t, 1, stats.Outcomes[trinity.OutcomeRendered])
	assert.Equal(t, 1, stats.Outcomes[trinity.OutcomeSuperseded])
}

func TestLoop_ValidationRejected(t *testing.T) {
	l, _, buf := startLoop(t, newGatedFetcher())

	seq, err := l.CommitCustom("0.05")
	assert.True(t, IsValidation(err))
	assert.Zero(t, seq)
	assert.Equal(t, 1, l.Stats().Rejected)
	assert.Empty(t, buf.String())
}

func TestLoop_ErrorKeepsStaleRender(t *testing.T) {
	f := newGatedFetcher()
	l, sink, buf := startLoop(t, f)

	seq, _ := l.SelectPreset(trinity.Stable)
	f.release(seq, nil)
	waitIdle(t, l)

	seq, _ = l.SelectPreset(trinity.Balanced)
	f.release(seq, errors.New("connection reset"))
	waitIdle(t, l)

	assert.True(t, sink.Stale())
	assert.Equal(t, uint64(1), sink.Last().Seq)
	assert.ErrorContains(t, sink.Err(), "connection reset")
	assert.Contains(t, buf.String(), "showing stale render #1")
}

func TestLoop_Observer(t *testing.T) {
	f := newGatedFetcher()
	var seen []trinity.Outcome
	l, _, _ := startLoop(t, f, WithObserver(func(_ trinity.Completion, o trinity.Outcome) {
		seen = append(seen, o)
	}))

	seq, _ := l.SelectPreset(trinity.Responsive)
	f.release(seq, nil)
	waitIdle(t, l)
	assert.Equal(t, []trinity.Outcome{trinity.OutcomeRendered}, seen)
}

func TestLoop_StopAbandonsPending(t *testing.T) {
	f := newGatedFetcher()
	var buf bytes.Buffer
	l := New(trinity.NewController(trinity.NewDispatcher(f, NewTextSink(&buf))))
	l.Start(context.Background())

	_, err := l.SelectPreset(trinity.Stable)
	require.NoError(t, err)
	l.Stop()

	_, err = l.SelectPreset(trinity.Balanced)
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, l.Wait(context.Background()), ErrStopped)
	assert.False(t, strings.Contains(buf.String(), "rendered"))
}

func TestLoop_WaitWhenIdle(t *testing.T) {
	l, _, _ := startLoop(t, newGatedFetcher())
	waitIdle(t, l)
}

func TestDescribeImage(t *testing.T) {
	assert.Equal(t, "image/png, 2.0 KB", DescribeImage(trinity.ImageRef{MIME: "image/png", Data: make([]byte, 2048)}))
	assert.Equal(t, "https://x/y.png", DescribeImage(trinity.ImageRef{URI: "https://x/y.png"}))
	assert.Equal(t, "no image", DescribeImage(trinity.ImageRef{}))
}
