package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/san-kum/trinity/internal/config"
	"github.com/san-kum/trinity/internal/trinity"
	"github.com/san-kum/trinity/internal/wire"
)

// ErrInjected is returned for renders failed on purpose by FailureRate.
var ErrInjected = errors.New("render: injected failure")

// RequestError is a render request the server refuses.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string { return e.Message }

type Server struct {
	latency     time.Duration
	jitter      time.Duration
	failureRate float64
	sim         SimConfig
	width       int
	height      int
	log         *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand

	upgrader websocket.Upgrader
}

type Option func(*Server)

func WithLatency(base, jitter time.Duration) Option {
	return func(s *Server) { s.latency, s.jitter = base, jitter }
}

func WithFailureRate(rate float64) Option {
	return func(s *Server) { s.failureRate = rate }
}

func WithSeed(seed int64) Option {
	return func(s *Server) { s.rng = rand.New(rand.NewSource(seed)) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithImageSize(width, height int) Option {
	return func(s *Server) { s.width, s.height = width, height }
}

// FromConfig maps the server section of the config onto options.
func FromConfig(cfg config.ServerConfig) []Option {
	return []Option{
		WithLatency(cfg.Latency, cfg.Jitter),
		WithFailureRate(cfg.FailureRate),
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		sim:    DefaultSimConfig(),
		width:  DefaultWidth,
		height: DefaultHeight,
		log:    slog.Default(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveDamping returns the damping ratio to render for a request.
func ResolveDamping(presetName string, custom *float64) (trinity.Preset, float64, error) {
	preset, err := trinity.ParsePreset(presetName)
	if err != nil {
		return "", 0, &RequestError{Message: err.Error()}
	}
	if preset == trinity.Custom {
		if custom == nil {
			return "", 0, &RequestError{Message: "custom preset requires custom_damp"}
		}
		if _, err := trinity.CustomSnapshot(*custom); err != nil {
			return "", 0, &RequestError{Message: err.Error()}
		}
		return preset, *custom, nil
	}
	d, _ := config.NominalDamping(preset)
	return preset, d, nil
}

// Render produces the payload for a preset and optional custom damping.
func (s *Server) Render(ctx context.Context, presetName string, custom *float64) (*wire.Payload, error) {
	preset, zeta, err := ResolveDamping(presetName, custom)
	if err != nil {
		return nil, err
	}

	delay, fail := s.draw()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, ErrInjected
	}

	tr := Simulate(zeta, s.sim)
	img, err := EncodePNG(tr, s.width, s.height)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	data := Analyze(tr, NewOscillator(zeta).NaturalFrequency())

	s.log.Debug("render", "preset", preset, "zeta", zeta, "delay", delay, "bytes", len(img))
	return &wire.Payload{
		Status:      wire.StatusIgnited,
		Preset:      string(preset),
		CustomDamp:  custom,
		TrinityData: data,
		Image:       wire.EncodeDataURI("image/png", img),
	}, nil
}

func (s *Server) draw() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delay := s.latency
	if s.jitter > 0 {
		delay += time.Duration(s.rng.Int63n(int64(s.jitter)))
	}
	return delay, s.failureRate > 0 && s.rng.Float64() < s.failureRate
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+wire.Path, s.handleRender)
	mux.HandleFunc("GET "+wire.WSPath, s.handleWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var custom *float64
	if raw := q.Get(wire.ParamDamping); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, wire.ErrorPayload{Error: "custom_damp must be a number"})
			return
		}
		custom = &v
	}

	payload, err := s.Render(r.Context(), q.Get(wire.ParamPreset), custom)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			s.log.Warn("render failed", "request_id", r.Header.Get("X-Request-ID"), "error", err)
		}
		writeJSON(w, status, wire.ErrorPayload{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func statusFor(err error) int {
	var rerr *RequestError
	switch {
	case errors.As(err, &rerr):
		return http.StatusBadRequest
	case errors.Is(err, ErrInjected):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
