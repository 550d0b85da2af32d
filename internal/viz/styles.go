package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// styles is the set of lipgloss styles derived from a Theme.
type styles struct {
	title    lipgloss.Style
	subtle   lipgloss.Style
	cursor   lipgloss.Style
	selected lipgloss.Style
	item     lipgloss.Style
	label    lipgloss.Style
	value    lipgloss.Style
	loading  lipgloss.Style
	errText  lipgloss.Style
	stale    lipgloss.Style
	ok       lipgloss.Style
	key      lipgloss.Style
	panel    lipgloss.Style
	graph    lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title:    lipgloss.NewStyle().Foreground(t.Secondary).Bold(true),
		subtle:   lipgloss.NewStyle().Foreground(t.Muted),
		cursor:   lipgloss.NewStyle().Foreground(t.Secondary).Bold(true),
		selected: lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		item:     lipgloss.NewStyle().Foreground(t.Text),
		label:    lipgloss.NewStyle().Foreground(t.Muted).Width(14),
		value:    lipgloss.NewStyle().Foreground(t.Secondary).Bold(true),
		loading:  lipgloss.NewStyle().Foreground(t.Accent),
		errText:  lipgloss.NewStyle().Foreground(t.Error).Bold(true),
		stale:    lipgloss.NewStyle().Foreground(t.Warning).Italic(true),
		ok:       lipgloss.NewStyle().Foreground(t.Success).Bold(true),
		key:      lipgloss.NewStyle().Foreground(t.Secondary).Bold(true),
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Muted).
			Padding(0, 1),
		graph: lipgloss.NewStyle().Foreground(t.Success).Padding(1, 0, 0, 0),
	}
}

// AnimatedSpinner returns frame of animated spinner
func AnimatedSpinner(frame int) string {
	spinners := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	return spinners[frame%len(spinners)]
}

// ProgressBar renders fraction in [0,1] as a bar of the given width.
func ProgressBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// keyHints renders "key action" pairs on one line.
func (s styles) keyHints(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(s.key.Render(pairs[i]) + s.subtle.Render(" "+pairs[i+1]))
	}
	return b.String()
}

func (s styles) separator(width int) string {
	mid := width / 2
	if mid < 3 {
		return ""
	}
	return s.subtle.Render(strings.Repeat("─", mid-3) + " ◆ " + strings.Repeat("─", width-mid-3))
}
