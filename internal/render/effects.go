package render

import (
	"image"
	"image/color"
	"sort"

	"golang.org/x/image/draw"
)

// ColorStop is one stop of a linear gradient.
type ColorStop struct {
	Offset float64
	Color  color.NRGBA
}

func lerp(a, b uint8, t float64) float64 {
	return float64(a) + (float64(b)-float64(a))*t
}

func gradientAt(stops []ColorStop, t float64) (r, g, b, a float64) {
	if t <= stops[0].Offset {
		c := stops[0].Color
		return float64(c.R), float64(c.G), float64(c.B), float64(c.A)
	}
	for i := 1; i < len(stops); i++ {
		if t <= stops[i].Offset {
			s0, s1 := stops[i-1], stops[i]
			span := s1.Offset - s0.Offset
			u := 0.0
			if span > 0 {
				u = (t - s0.Offset) / span
			}
			return lerp(s0.Color.R, s1.Color.R, u), lerp(s0.Color.G, s1.Color.G, u),
				lerp(s0.Color.B, s1.Color.B, u), lerp(s0.Color.A, s1.Color.A, u)
		}
	}
	c := stops[len(stops)-1].Color
	return float64(c.R), float64(c.G), float64(c.B), float64(c.A)
}

// FillLinearGradient blends a gradient running from (x0,y0) to (x1,y1)
// over the whole of dst.
func FillLinearGradient(dst *image.RGBA, x0, y0, x1, y1 float64, stops []ColorStop) {
	if len(stops) == 0 {
		return
	}
	stops = append([]ColorStop(nil), stops...)
	sort.SliceStable(stops, func(i, j int) bool { return stops[i].Offset < stops[j].Offset })

	dx, dy := x1-x0, y1-y0
	den := dx*dx + dy*dy
	b := dst.Bounds()
	for py := b.Min.Y; py < b.Max.Y; py++ {
		row := dst.Pix[dst.PixOffset(b.Min.X, py):]
		for px := b.Min.X; px < b.Max.X; px++ {
			t := 0.0
			if den > 0 {
				t = ((float64(px)+0.5-x0)*dx + (float64(py)+0.5-y0)*dy) / den
			}
			r, g, bl, a := gradientAt(stops, t)
			i := (px - b.Min.X) * 4
			blendPixel(row[i:i+4], r, g, bl, a)
		}
	}
}

// blendPixel composites a non-premultiplied colour over a premultiplied
// RGBA pixel.
func blendPixel(p []uint8, r, g, b, a float64) {
	alpha := a / 255
	inv := 1 - alpha
	p[0] = uint8(r*alpha + float64(p[0])*inv + 0.5)
	p[1] = uint8(g*alpha + float64(p[1])*inv + 0.5)
	p[2] = uint8(b*alpha + float64(p[2])*inv + 0.5)
	p[3] = uint8(a + float64(p[3])*inv + 0.5)
}

// DrawBlurred stretches src over the whole of dst with a heavy blur. The
// blur comes from a round trip through a thumbnail a fraction of the size.
func DrawBlurred(dst *image.RGBA, src image.Image, factor int) {
	if factor < 2 {
		factor = 2
	}
	b := dst.Bounds()
	w, h := b.Dx()/factor, b.Dy()/factor
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), src, src.Bounds(), draw.Src, nil)
	draw.BiLinear.Scale(dst, b, small, small.Bounds(), draw.Src, nil)
}

// DrawCover scales src into the rectangle returned by CoverFit.
func DrawCover(dst *image.RGBA, src image.Image, r Rect) {
	draw.CatmullRom.Scale(dst, r.Image(), src, src.Bounds(), draw.Over, nil)
}
