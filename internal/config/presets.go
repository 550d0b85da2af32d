package config

import "github.com/san-kum/trinity/internal/trinity"

// PresetInfo describes a named preset for display and for the reference
// renderer.
type PresetInfo struct {
	Name        trinity.Preset
	Damping     float64
	Description string
}

var Presets = map[trinity.Preset]PresetInfo{
	trinity.Stable: {
		Name: trinity.Stable, Damping: 0.9,
		Description: "near-critical damping, no overshoot",
	},
	trinity.Responsive: {
		Name: trinity.Responsive, Damping: 0.35,
		Description: "fast rise, light overshoot",
	},
	trinity.Balanced: {
		Name: trinity.Balanced, Damping: 0.5,
		Description: "moderate settling",
	},
	trinity.Amplified: {
		Name: trinity.Amplified, Damping: 0.15,
		Description: "pronounced ringing",
	},
	trinity.Custom: {
		Name: trinity.Custom,
		Description: "user supplied coefficient",
	},
}

func GetPreset(name trinity.Preset) (PresetInfo, bool) {
	info, ok := Presets[name]
	return info, ok
}

// NominalDamping returns the damping a named preset stands for. Custom has
// no nominal value.
func NominalDamping(name trinity.Preset) (float64, bool) {
	info, ok := Presets[name]
	if !ok || name == trinity.Custom {
		return 0, false
	}
	return info.Damping, true
}

// ListPresets returns the catalogue in display order.
func ListPresets() []PresetInfo {
	out := make([]PresetInfo, 0, len(trinity.Presets))
	for _, p := range trinity.Presets {
		out = append(out, Presets[p])
	}
	return out
}
