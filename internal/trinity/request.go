package trinity

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Snapshot is an immutable copy of the parameters at dispatch time.
// A damping value is present if and only if the preset is Custom.
type Snapshot struct {
	preset     Preset
	damping    float64
	hasDamping bool
}

// PresetSnapshot builds a snapshot for a named, non-custom preset.
func PresetSnapshot(p Preset) (Snapshot, error) {
	if !p.Valid() {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownPreset, string(p))
	}
	if p == Custom {
		return Snapshot{}, &ValidationError{Reason: "custom preset requires a value"}
	}
	return Snapshot{preset: p}, nil
}

// CustomSnapshot builds a Custom snapshot carrying value.
func CustomSnapshot(value float64) (Snapshot, error) {
	if err := checkDamping(value, ""); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{preset: Custom, damping: value, hasDamping: true}, nil
}

func (s Snapshot) Preset() Preset { return s.preset }

// Damping returns the custom value and whether it is present.
func (s Snapshot) Damping() (float64, bool) { return s.damping, s.hasDamping }

// Validate reports whether s holds the preset/damping invariant.
func (s Snapshot) Validate() error {
	if !s.preset.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, string(s.preset))
	}
	if s.preset == Custom {
		if !s.hasDamping {
			return &ValidationError{Reason: "custom preset requires a value"}
		}
		return checkDamping(s.damping, "")
	}
	if s.hasDamping {
		return &ValidationError{Reason: "damping set for non-custom preset"}
	}
	return nil
}

func (s Snapshot) String() string {
	if s.hasDamping {
		return fmt.Sprintf("%s(%s)", s.preset, strconv.FormatFloat(s.damping, 'g', -1, 64))
	}
	return string(s.preset)
}

func checkDamping(v float64, raw string) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Input: raw, Reason: "not a finite number"}
	}
	if v < MinDamping || v > MaxDamping {
		return &ValidationError{Input: raw, Reason: fmt.Sprintf("must be within [%g, %g]", MinDamping, MaxDamping)}
	}
	return nil
}

// Request is a dispatched snapshot tagged with its sequence number.
type Request struct {
	Seq      uint64
	Snapshot Snapshot
	IssuedAt time.Time
}

// ImageRef points at a rendered image. URI is set for remote images, Data
// for inline ones; a decoded data URI carries both.
type ImageRef struct {
	URI  string
	MIME string
	Data []byte
}

func (i ImageRef) Empty() bool { return i.URI == "" && len(i.Data) == 0 }

// Result is a rendered visualization.
type Result struct {
	Seq            uint64
	Status         string
	Image          ImageRef
	DiagnosticText string
	Metrics        map[string]float64
}

// Completion is what a finished Flight hands back to the event loop.
type Completion struct {
	Request Request
	Result  *Result
	Err     error
	Elapsed time.Duration
}

// Outcome is how the dispatcher disposed of a completion.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeRendered
	OutcomeErrored
	OutcomeSuperseded
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRendered:
		return "rendered"
	case OutcomeErrored:
		return "errored"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeAbandoned:
		return "abandoned"
	}
	return "unknown"
}
