package trinity

import (
	"fmt"
	"strconv"
	"strings"
)

// Params holds the user's current selection.
//
// Selecting Custom without a committed value leaves Params awaiting a value;
// Snapshot reports not ready until SetCustomValue succeeds.
type Params struct {
	preset     Preset
	damping    float64
	hasDamping bool
}

func NewParams() *Params {
	return &Params{preset: DefaultPreset}
}

func (p *Params) Preset() Preset { return p.preset }

func (p *Params) Damping() (float64, bool) { return p.damping, p.hasDamping }

// AwaitingValue reports whether Custom is selected with no committed value.
func (p *Params) AwaitingValue() bool { return p.preset == Custom && !p.hasDamping }

// SelectPreset switches to name. Any preset other than Custom clears the
// damping value. The returned flag reports whether the new selection can be
// dispatched.
func (p *Params) SelectPreset(name Preset) (bool, error) {
	if !name.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownPreset, string(name))
	}
	p.preset = name
	if name != Custom {
		p.damping, p.hasDamping = 0, false
	}
	return !p.AwaitingValue(), nil
}

// SetCustomValue parses raw and, when valid, selects Custom with that
// damping. Invalid input leaves the last valid state untouched.
func (p *Params) SetCustomValue(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return &ValidationError{Input: raw, Reason: "value is required"}
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return &ValidationError{Input: raw, Reason: "not a number"}
	}
	if err := checkDamping(v, raw); err != nil {
		return err
	}
	p.preset, p.damping, p.hasDamping = Custom, v, true
	return nil
}

// Snapshot copies the current selection. ok is false while awaiting a
// custom value.
func (p *Params) Snapshot() (Snapshot, bool) {
	if p.AwaitingValue() {
		return Snapshot{}, false
	}
	return Snapshot{preset: p.preset, damping: p.damping, hasDamping: p.hasDamping}, true
}
