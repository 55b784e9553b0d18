package render

import (
	"image"
	"math"
)

// Rect is a rectangle in floating-point pixel space.
type Rect struct {
	X, Y, W, H float64
}

// Image returns the smallest integer rectangle containing r.
func (r Rect) Image() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.X+r.W)), int(math.Ceil(r.Y+r.H)),
	)
}

// Offset reports whether the rectangle is displaced from the origin, meaning
// the source aspect ratio differs from the target's.
func (r Rect) Offset() bool {
	return math.Abs(r.X) >= 0.5 || math.Abs(r.Y) >= 0.5
}

// CoverFit returns the draw rectangle that scales a srcW x srcH image to
// cover a dstW x dstH target while preserving aspect ratio. Overflow is split
// evenly, so the rectangle is centered on the axis that overflows.
func CoverFit(srcW, srcH, dstW, dstH float64) Rect {
	if srcW <= 0 || srcH <= 0 {
		return Rect{W: dstW, H: dstH}
	}
	if srcW/srcH > dstW/dstH {
		w := srcW * (dstH / srcH)
		return Rect{X: (dstW - w) / 2, W: w, H: dstH}
	}
	h := srcH * (dstW / srcW)
	return Rect{Y: (dstH - h) / 2, W: dstW, H: h}
}
