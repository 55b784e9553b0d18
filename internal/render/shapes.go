package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

// FillRect blends col over the rectangle.
func FillRect(dst draw.Image, r Rect, col color.Color) {
	draw.Draw(dst, r.Image().Intersect(dst.Bounds()), image.NewUniform(col), image.Point{}, draw.Over)
}

// FillAll blends col over the whole image.
func FillAll(dst draw.Image, col color.Color) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(col), image.Point{}, draw.Over)
}

func newRasterizer(dst draw.Image) *vector.Rasterizer {
	b := dst.Bounds()
	return vector.NewRasterizer(b.Dx(), b.Dy())
}

func drawPath(dst draw.Image, z *vector.Rasterizer, col color.Color) {
	b := dst.Bounds()
	z.Draw(dst, b, image.NewUniform(col), image.Point{})
}

// roundRectPath adds a rounded rectangle. Clockwise when ccw is false.
func roundRectPath(z *vector.Rasterizer, r Rect, radius float64, ccw bool) {
	radius = math.Max(0, math.Min(radius, math.Min(r.W, r.H)/2))
	x0, y0 := float32(r.X), float32(r.Y)
	x1, y1 := float32(r.X+r.W), float32(r.Y+r.H)
	rr := float32(radius)
	k := float32(radius * (1 - kappa))

	if !ccw {
		z.MoveTo(x0+rr, y0)
		z.LineTo(x1-rr, y0)
		z.CubeTo(x1-k, y0, x1, y0+k, x1, y0+rr)
		z.LineTo(x1, y1-rr)
		z.CubeTo(x1, y1-k, x1-k, y1, x1-rr, y1)
		z.LineTo(x0+rr, y1)
		z.CubeTo(x0+k, y1, x0, y1-k, x0, y1-rr)
		z.LineTo(x0, y0+rr)
		z.CubeTo(x0, y0+k, x0+k, y0, x0+rr, y0)
	} else {
		z.MoveTo(x0+rr, y0)
		z.CubeTo(x0+k, y0, x0, y0+k, x0, y0+rr)
		z.LineTo(x0, y1-rr)
		z.CubeTo(x0, y1-k, x0+k, y1, x0+rr, y1)
		z.LineTo(x1-rr, y1)
		z.CubeTo(x1-k, y1, x1, y1-k, x1, y1-rr)
		z.LineTo(x1, y0+rr)
		z.CubeTo(x1, y0+k, x1-k, y0, x1-rr, y0)
		z.LineTo(x0+rr, y0)
	}
	z.ClosePath()
}

// FillRoundRect fills a rounded rectangle.
func FillRoundRect(dst draw.Image, r Rect, radius float64, col color.Color) {
	z := newRasterizer(dst)
	roundRectPath(z, r, radius, false)
	drawPath(dst, z, col)
}

// StrokeRoundRect outlines a rounded rectangle with a line of the given
// width centered on its edge.
func StrokeRoundRect(dst draw.Image, r Rect, radius, width float64, col color.Color) {
	h := width / 2
	z := newRasterizer(dst)
	roundRectPath(z, Rect{r.X - h, r.Y - h, r.W + width, r.H + width}, radius+h, false)
	roundRectPath(z, Rect{r.X + h, r.Y + h, r.W - width, r.H - width}, math.Max(0, radius-h), true)
	drawPath(dst, z, col)
}

// FillCircle fills a circle centered at (cx, cy).
func FillCircle(dst draw.Image, cx, cy, radius float64, col color.Color) {
	z := newRasterizer(dst)
	x, y, r := float32(cx), float32(cy), float32(radius)
	k := float32(radius * kappa)
	z.MoveTo(x+r, y)
	z.CubeTo(x+r, y+k, x+k, y+r, x, y+r)
	z.CubeTo(x-k, y+r, x-r, y+k, x-r, y)
	z.CubeTo(x-r, y-k, x-k, y-r, x, y-r)
	z.CubeTo(x+k, y-r, x+r, y-k, x+r, y)
	z.ClosePath()
	drawPath(dst, z, col)
}
