package viz

import (
	"bytes"
	"image"
	"image/png"
	"strings"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blankCell = 0x2800

// Canvas is a Braille grid of Width x Height cells, two dots wide and
// four dots tall each.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set sets a dot at (x, y) in sub-cell coordinates.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blankCell
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

// litThreshold is the luminance (0..65535) above which a pixel is drawn.
// Rendered plots sit on a near-black background.
const litThreshold = 0x3000

// Preview scales img onto c, lighting a dot wherever the nearest source
// pixel is brighter than the background.
func (c *Canvas) Preview(img image.Image) {
	c.Clear()
	b := img.Bounds()
	dw, dh := c.Width*2, c.Height*4
	if b.Dx() == 0 || b.Dy() == 0 {
		return
	}
	for y := 0; y < dh; y++ {
		sy := b.Min.Y + y*b.Dy()/dh
		for x := 0; x < dw; x++ {
			sx := b.Min.X + x*b.Dx()/dw
			r, g, bl, _ := img.At(sx, sy).RGBA()
			if (299*r+587*g+114*bl)/1000 > litThreshold {
				c.Set(x, y)
			}
		}
	}
}

// PreviewPNG decodes data and previews it on a new w x h canvas.
func PreviewPNG(data []byte, w, h int) (*Canvas, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c := NewCanvas(w, h)
	c.Preview(img)
	return c, nil
}
