// Package export writes step-response traces as standalone SVG documents.
package export

import (
	"fmt"
	"strings"

	"github.com/san-kum/trinity/internal/render"
)

const (
	background = "#0a0a0a"
	refColor   = "#444466"
)

// TraceSVG draws the position of tr against time, with a dashed line at the
// ground state. It returns "" for traces shorter than two samples.
func TraceSVG(tr render.Trace, width, height int, stroke string) string {
	if tr.Len() < 2 {
		return ""
	}

	minX, maxX := tr.Times[0], tr.Times[tr.Len()-1]
	minY, maxY := render.GroundState, render.GroundState
	for _, p := range tr.Pos {
		if p < minY {
			minY = p
		}
		if p > maxY {
			maxY = p
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	px := func(t float64) float64 { return (t - minX) / rangeX * float64(width) }
	py := func(v float64) float64 { return float64(height) - (v-minY)/rangeY*float64(height) }

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
<line x1="0" y1="%.1f" x2="%d" y2="%.1f" stroke="%s" stroke-dasharray="4 4"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, background,
		py(render.GroundState), width, py(render.GroundState), refColor,
		stroke)

	for i := range tr.Times {
		if i > 0 {
			sb.WriteString(" L")
		}
		fmt.Fprintf(&sb, "%.1f,%.1f", px(tr.Times[i]), py(tr.Pos[i]))
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}
