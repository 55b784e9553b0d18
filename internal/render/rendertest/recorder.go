// Package rendertest provides a recording Surface for tests.
package rendertest

import (
	"image"
	"sync"

	"moodboard/internal/render"
)

// Painted is what the recorder keeps of a painted frame.
type Painted struct {
	Kind  render.Kind
	Label string
	Final bool
	// Image is a copy, kept for final frames only.
	Image *image.RGBA
}

// Recorder is a render.Surface that remembers every paint.
type Recorder struct {
	mu     sync.Mutex
	frames []Painted
	// Err, when set, is returned from every Paint.
	Err error
}

// Paint records f.
func (r *Recorder) Paint(f render.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	p := Painted{Kind: f.Kind, Label: f.Label, Final: f.Final}
	if f.Final && f.Image != nil {
		cp := image.NewRGBA(f.Image.Bounds())
		copy(cp.Pix, f.Image.Pix)
		p.Image = cp
	}
	r.frames = append(r.frames, p)
	return nil
}

// All returns every recorded paint.
func (r *Recorder) All() []Painted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Painted(nil), r.frames...)
}

// Finals returns only the last paint of each render call.
func (r *Recorder) Finals() []Painted {
	var out []Painted
	for _, p := range r.All() {
		if p.Final {
			out = append(out, p)
		}
	}
	return out
}

// Kinds returns the kinds of the final frames in order.
func (r *Recorder) Kinds() []render.Kind {
	var out []render.Kind
	for _, p := range r.Finals() {
		out = append(out, p.Kind)
	}
	return out
}
