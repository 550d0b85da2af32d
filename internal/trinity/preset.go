package trinity

import (
	"fmt"
	"strings"
)

// Preset names a predefined damping configuration.
type Preset string

const (
	Stable     Preset = "Stable"
	Responsive Preset = "Responsive"
	Balanced   Preset = "Balanced"
	Amplified  Preset = "Amplified"
	Custom     Preset = "Custom"
)

// DefaultPreset is selected when the panel opens.
const DefaultPreset = Balanced

// Damping bounds for custom values, both inclusive.
const (
	MinDamping = 0.1
	MaxDamping = 1.0
)

// Presets lists every preset in display order.
var Presets = []Preset{Stable, Responsive, Balanced, Amplified, Custom}

func (p Preset) Valid() bool {
	switch p {
	case Stable, Responsive, Balanced, Amplified, Custom:
		return true
	}
	return false
}

func (p Preset) String() string { return string(p) }

// ParsePreset resolves a preset name case-insensitively.
func ParsePreset(name string) (Preset, error) {
	name = strings.TrimSpace(name)
	for _, p := range Presets {
		if strings.EqualFold(name, string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}
