package web

import (
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"net/http"
)

// ChallengeRenderer writes an issued verification code to the response.
type ChallengeRenderer interface {
	Render(w http.ResponseWriter, code string) error
}

// TextRenderer writes the code as plain text. It suits development and
// clients that display the code themselves.
type TextRenderer struct{}

func (TextRenderer) Render(w http.ResponseWriter, code string) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err := w.Write([]byte(code))
	return err
}

// digitGlyphs is a 5x7 bitmap font, one row per byte, high bit on the left.
var digitGlyphs = [10][7]byte{
	{0x0e, 0x11, 0x13, 0x15, 0x19, 0x11, 0x0e},
	{0x04, 0x0c, 0x04, 0x04, 0x04, 0x04, 0x0e},
	{0x0e, 0x11, 0x01, 0x02, 0x04, 0x08, 0x1f},
	{0x1f, 0x02, 0x04, 0x02, 0x01, 0x11, 0x0e},
	{0x02, 0x06, 0x0a, 0x12, 0x1f, 0x02, 0x02},
	{0x1f, 0x10, 0x1e, 0x01, 0x01, 0x11, 0x0e},
	{0x06, 0x08, 0x10, 0x1e, 0x11, 0x11, 0x0e},
	{0x1f, 0x01, 0x02, 0x04, 0x08, 0x08, 0x08},
	{0x0e, 0x11, 0x11, 0x0e, 0x11, 0x11, 0x0e},
	{0x0e, 0x11, 0x11, 0x0f, 0x01, 0x02, 0x0c},
}

// PNGRenderer draws the code as a noisy PNG image. Zero dimensions fall
// back to 67x23 per four digits.
type PNGRenderer struct {
	Width  int
	Height int
	// NoiseLines is the number of random lines drawn over the digits.
	NoiseLines int
}

func (p PNGRenderer) Render(w http.ResponseWriter, code string) error {
	img := p.draw(code)
	w.Header().Set("Content-Type", "image/png")
	return png.Encode(w, img)
}

func (p PNGRenderer) draw(code string) *image.RGBA {
	width, height := p.Width, p.Height
	if width <= 0 {
		width = 67 * max(len(code), 4) / 4
	}
	if height <= 0 {
		height = 23
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	bg := color.RGBA{R: uint8(200 + rand.IntN(50)), G: uint8(200 + rand.IntN(50)), B: uint8(200 + rand.IntN(50)), A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, bg)
		}
	}

	for i := 0; i < p.NoiseLines; i++ {
		c := color.RGBA{R: uint8(160 + rand.IntN(60)), G: uint8(160 + rand.IntN(60)), B: uint8(160 + rand.IntN(60)), A: 255}
		line(img, rand.IntN(width), rand.IntN(height), rand.IntN(width), rand.IntN(height), c)
	}

	n := max(len(code), 1)
	cell := width / n
	scale := max(min((height-4)/7, (cell-2)/5), 1)
	for i := 0; i < len(code); i++ {
		d := code[i] - '0'
		if d > 9 {
			continue
		}
		ink := color.RGBA{R: uint8(20 + rand.IntN(110)), G: uint8(20 + rand.IntN(110)), B: uint8(20 + rand.IntN(110)), A: 255}
		ox := i*cell + (cell-5*scale)/2
		oy := (height-7*scale)/2 + rand.IntN(3) - 1
		glyph(img, digitGlyphs[d], ox, oy, scale, ink)
	}
	return img
}

func glyph(img *image.RGBA, rows [7]byte, ox, oy, scale int, c color.RGBA) {
	for row, bits := range rows {
		for col := 0; col < 5; col++ {
			if bits&(0x10>>col) == 0 {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetRGBA(ox+col*scale+dx, oy+row*scale+dy, c)
				}
			}
		}
	}
}

// line is Bresenham's algorithm.
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
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
		img.SetRGBA(x0, y0, c)
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

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
