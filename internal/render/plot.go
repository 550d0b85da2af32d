package render

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
)

const (
	DefaultWidth  = 640
	DefaultHeight = 320
	plotMargin    = 24
)

var (
	ColorBackground = color.RGBA{0x0a, 0x0a, 0x0a, 0xff}
	ColorGrid       = color.RGBA{0x22, 0x22, 0x2a, 0xff}
	ColorGround     = color.RGBA{0xff, 0x6b, 0x35, 0xff}
	ColorTrace      = color.RGBA{0x00, 0xff, 0xcc, 0xff}
	ColorBand       = color.RGBA{0x4a, 0x90, 0xe2, 0xff}
)

// Plot draws the trace on a dark canvas with the ground state and the
// settle band marked.
func Plot(tr Trace, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{ColorBackground}, image.Point{}, draw.Src)
	if tr.Len() < 2 {
		return img
	}

	lo, hi := 0.0, GroundState*(1+SettleBand)
	for _, p := range tr.Pos {
		lo, hi = math.Min(lo, p), math.Max(hi, p)
	}
	span := hi - lo
	lo, hi = lo-span*0.05, hi+span*0.05

	t0, t1 := tr.Times[0], tr.Times[tr.Len()-1]
	px := func(t float64) int {
		return plotMargin + int((t-t0)/(t1-t0)*float64(width-2*plotMargin))
	}
	py := func(v float64) int {
		return height - plotMargin - int((v-lo)/(hi-lo)*float64(height-2*plotMargin))
	}

	for i := 0; i <= 4; i++ {
		y := plotMargin + i*(height-2*plotMargin)/4
		line(img, plotMargin, y, width-plotMargin, y, ColorGrid)
	}
	for _, v := range []float64{GroundState * (1 - SettleBand), GroundState * (1 + SettleBand)} {
		dashed(img, plotMargin, py(v), width-plotMargin, ColorBand)
	}
	line(img, plotMargin, py(GroundState), width-plotMargin, py(GroundState), ColorGround)

	prevX, prevY := px(tr.Times[0]), py(tr.Pos[0])
	for i := 1; i < tr.Len(); i++ {
		x, y := px(tr.Times[i]), py(tr.Pos[i])
		line(img, prevX, prevY, x, y, ColorTrace)
		line(img, prevX, prevY+1, x, y+1, ColorTrace)
		prevX, prevY = x, y
	}
	return img
}

// EncodePNG plots the trace and encodes it as PNG.
func EncodePNG(tr Trace, width, height int) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Plot(tr, width, height)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func line(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func dashed(img *image.RGBA, x0, y, x1 int, c color.Color) {
	for x := x0; x < x1; x += 8 {
		line(img, x, y, min(x+4, x1), y, c)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
