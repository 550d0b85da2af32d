// Package viz is the interactive Trinity Dynamics panel.
//
// The panel is a Bubble Tea program. It is the render sink for a
// [trinity.Controller]: every fetch runs as a tea.Cmd and its completion
// comes back into Update, so the controller is only touched from the
// program goroutine.
//
// # Key Bindings
//
//	j/k, ↑/↓  - Move through presets
//	enter     - Select the highlighted preset
//	1-5       - Select a preset directly
//	c         - Edit the custom damping value
//	s         - Save the displayed render
//	t         - Cycle color themes
//	q         - Quit
//
// While editing, enter commits the value and esc leaves it untouched.
// Rejected values are shown under the input and are never sent.
package viz
