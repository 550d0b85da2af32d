// Package client fetches visualizations from a /trinity-viz rendering
// service over HTTP or websocket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/trinity/internal/trinity"
	"github.com/san-kum/trinity/internal/wire"
)

// StatusError is a non-success response from the rendering service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Code == 0 {
		return "render service: " + e.Message
	}
	if e.Message == "" {
		return fmt.Sprintf("render service: status %d", e.Code)
	}
	return fmt.Sprintf("render service: status %d: %s", e.Code, e.Message)
}

// Retryable reports whether a later attempt may succeed.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || (e.Code >= 500 && e.Code < 600)
}

var ErrMissingImage = errors.New("client: response carries no image")

type options struct {
	httpClient *http.Client
	attempts   int
	baseDelay  time.Duration
	log        *slog.Logger
	newID      func() string
}

type Option func(*options)

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.httpClient = &http.Client{Timeout: d} }
}

// WithRetries sets the total number of attempts per fetch and the delay
// before the first retry. Later retries double the delay.
func WithRetries(attempts int, baseDelay time.Duration) Option {
	return func(o *options) { o.attempts, o.baseDelay = attempts, baseDelay }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

func buildOptions(opts []Option) options {
	o := options{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		attempts:   3,
		baseDelay:  500 * time.Millisecond,
		log:        slog.Default(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.attempts < 1 {
		o.attempts = 1
	}
	return o
}

// HTTPFetcher implements trinity.Fetcher against GET /trinity-viz.
type HTTPFetcher struct {
	endpoint string
	opts     options
}

func NewHTTPFetcher(endpoint string, opts ...Option) *HTTPFetcher {
	return &HTTPFetcher{
		endpoint: strings.TrimRight(endpoint, "/"),
		opts:     buildOptions(opts),
	}
}

// URL returns the render URL for a snapshot.
func (f *HTTPFetcher) URL(snap trinity.Snapshot) string {
	return f.endpoint + wire.Path + "?" + wire.Query(snap.Preset().String(), dampingPtr(snap)).Encode()
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req trinity.Request) (*trinity.Result, error) {
	id := f.opts.newID()
	body, err := f.executeWithBackoff(ctx, f.URL(req.Snapshot), id, req.Seq)
	if err != nil {
		return nil, err
	}
	var payload wire.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return DecodePayload(req, &payload, f.opts.log)
}

func (f *HTTPFetcher) executeWithBackoff(ctx context.Context, u, id string, seq uint64) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < f.opts.attempts; attempt++ {
		if attempt > 0 {
			sleep := time.Duration(math.Pow(2, float64(attempt-1))) * f.opts.baseDelay
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := f.do(ctx, u, id)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var serr *StatusError
		if errors.As(err, &serr) && !serr.Retryable() {
			return nil, err
		}
		lastErr = err
		f.opts.log.Warn("render request failed", "seq", seq, "request_id", id, "attempt", attempt+1, "error", err)
	}
	if f.opts.attempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", f.opts.attempts, lastErr)
}

func (f *HTTPFetcher) do(ctx context.Context, u, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", id)

	f.opts.log.Debug("network request", "host", req.URL.Host, "query", req.URL.RawQuery, "request_id", id)
	resp, err := f.opts.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read error: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &StatusError{Code: resp.StatusCode}
		var ep wire.ErrorPayload
		if json.Unmarshal(body, &ep) == nil {
			serr.Message = ep.Error
		}
		return nil, serr
	}
	return body, nil
}

func dampingPtr(snap trinity.Snapshot) *float64 {
	if d, ok := snap.Damping(); ok {
		return &d
	}
	return nil
}

// DecodePayload converts a wire payload into a trinity result for req.
func DecodePayload(req trinity.Request, p *wire.Payload, log *slog.Logger) (*trinity.Result, error) {
	if p.Image == "" {
		return nil, ErrMissingImage
	}
	var img trinity.ImageRef
	if mime, data, err := wire.DecodeDataURI(p.Image); err == nil {
		img = trinity.ImageRef{MIME: mime, Data: data}
	} else if errors.Is(err, wire.ErrNotDataURI) {
		img = trinity.ImageRef{URI: p.Image}
	} else {
		return nil, err
	}

	if p.Preset != "" && !strings.EqualFold(p.Preset, req.Snapshot.Preset().String()) && log != nil {
		log.Warn("response preset differs from request", "seq", req.Seq, "requested", req.Snapshot.Preset(), "got", p.Preset)
	}

	td := p.TrinityData
	return &trinity.Result{
		Seq:            req.Seq,
		Status:         p.Status,
		Image:          img,
		DiagnosticText: DiagnosticText(p),
		Metrics: map[string]float64{
			"ground_state": td.GroundState,
			"difference":   td.Difference,
			"ratio":        td.Ratio,
			"phase":        td.Phase,
			"stability":    td.Stability,
		},
	}, nil
}

// DiagnosticText formats the payload's diagnostic block for display.
func DiagnosticText(p *wire.Payload) string {
	var b strings.Builder
	preset := p.Preset
	if p.CustomDamp != nil {
		preset = fmt.Sprintf("%s (%g)", preset, *p.CustomDamp)
	}
	td := p.TrinityData
	fmt.Fprintf(&b, "%-13s %s\n", "status", p.Status)
	fmt.Fprintf(&b, "%-13s %s\n", "preset", preset)
	fmt.Fprintf(&b, "%-13s %.4f\n", "ground_state", td.GroundState)
	fmt.Fprintf(&b, "%-13s %.4f\n", "difference", td.Difference)
	fmt.Fprintf(&b, "%-13s %.4f\n", "ratio", td.Ratio)
	fmt.Fprintf(&b, "%-13s %.4f\n", "phase", td.Phase)
	fmt.Fprintf(&b, "%-13s %.4f", "stability", td.Stability)
	return b.String()
}
