// Package render composes export frames on a fixed-size RGBA surface.
//
// Every frame is laid out in a 1280x720 design space and scaled to the
// configured output height. A render call paints one or more frames to its
// Surface and returns only once the last of them is on the surface.
package render

import (
	"fmt"
	"image"
	"image/draw"
	"sync"
)

// Design-space dimensions all layout constants refer to.
const (
	DesignWidth  = 1280
	DesignHeight = 720
)

// Kind identifies what a frame shows.
type Kind int

const (
	KindDayTitle Kind = iota + 1
	KindMedia
	KindMediaError
	KindPlaceholder
	KindEnding
	KindPreview
)

func (k Kind) String() string {
	switch k {
	case KindDayTitle:
		return "day-title"
	case KindMedia:
		return "media"
	case KindMediaError:
		return "media-error"
	case KindPlaceholder:
		return "placeholder"
	case KindEnding:
		return "ending"
	case KindPreview:
		return "preview"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is one composed visual state. Image is owned by the renderer and is
// only valid for the duration of the Paint call.
type Frame struct {
	Kind  Kind
	Label string
	// Final is set on the last frame of a render call.
	Final bool
	Image *image.RGBA
}

// Surface receives composed frames.
type Surface interface {
	Paint(f Frame) error
}

// Canvas is an in-memory Surface that readers can sample concurrently.
type Canvas struct {
	mu      sync.RWMutex
	buf     *image.RGBA
	version uint64
	kind    Kind
}

// NewCanvas returns a black canvas of the given size.
func NewCanvas(width, height int) *Canvas {
	buf := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(buf, buf.Bounds(), image.Black, image.Point{}, draw.Src)
	return &Canvas{buf: buf}
}

// Bounds returns the canvas rectangle.
func (c *Canvas) Bounds() image.Rectangle { return c.buf.Bounds() }

// Paint copies f.Image onto the canvas.
func (c *Canvas) Paint(f Frame) error {
	if f.Image == nil {
		return fmt.Errorf("paint %s: nil image", f.Kind)
	}
	if f.Image.Bounds() != c.buf.Bounds() {
		return fmt.Errorf("paint %s: frame is %v, canvas is %v", f.Kind, f.Image.Bounds(), c.buf.Bounds())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if f.Image.Stride == c.buf.Stride {
		copy(c.buf.Pix, f.Image.Pix)
	} else {
		draw.Draw(c.buf, c.buf.Bounds(), f.Image, f.Image.Bounds().Min, draw.Src)
	}
	c.version++
	c.kind = f.Kind
	return nil
}

// Version increases by one on every paint.
func (c *Canvas) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// ReadInto copies the current pixels into dst, which must match the canvas
// bounds, and returns the version copied.
func (c *Canvas) ReadInto(dst *image.RGBA) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if dst.Stride == c.buf.Stride && dst.Bounds() == c.buf.Bounds() {
		copy(dst.Pix, c.buf.Pix)
	} else {
		draw.Draw(dst, dst.Bounds(), c.buf, c.buf.Bounds().Min, draw.Src)
	}
	return c.version
}

// Snapshot returns a copy of the current pixels.
func (c *Canvas) Snapshot() *image.RGBA {
	out := image.NewRGBA(c.Bounds())
	c.ReadInto(out)
	return out
}
