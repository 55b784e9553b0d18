package render

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/image/draw"

	"moodboard/internal/clock"
	"moodboard/internal/logging"
)

// ImageLoader resolves a media source to a decoded image.
type ImageLoader interface {
	Load(ctx context.Context, src string) (image.Image, error)
}

// Options configures a Renderer.
type Options struct {
	Width, Height int
	Clock         clock.Clock
	Loader        ImageLoader
	Fonts         *Fonts
	// Rand drives the decorative circles on the ending card.
	Rand   *rand.Rand
	Logger *slog.Logger
}

// Renderer paints day-title, media, ending and preview frames to a Surface.
// Calls must not overlap: each one owns the surface until it returns.
type Renderer struct {
	surface Surface
	clock   clock.Clock
	loader  ImageLoader
	text    *Typesetter
	rng     *rand.Rand
	logger  *slog.Logger

	width, height int
	scale         float64

	frame *image.RGBA
	base  *image.RGBA
}

// New returns a renderer painting to surface.
func New(surface Surface, opts Options) *Renderer {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = DesignWidth, DesignHeight
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Fonts == nil {
		opts.Fonts = MustDefaultFonts()
	}
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	bounds := image.Rect(0, 0, opts.Width, opts.Height)
	return &Renderer{
		surface: surface,
		clock:   opts.Clock,
		loader:  opts.Loader,
		text:    NewTypesetter(opts.Fonts),
		rng:     opts.Rand,
		logger:  logging.WithComponent(opts.Logger, "render"),
		width:   opts.Width,
		height:  opts.Height,
		scale:   float64(opts.Height) / DesignHeight,
		frame:   image.NewRGBA(bounds),
		base:    image.NewRGBA(bounds),
	}
}

// px converts a design-space length to output pixels.
func (r *Renderer) px(v float64) float64 { return v * r.scale }

func (r *Renderer) w() float64 { return float64(r.width) }
func (r *Renderer) h() float64 { return float64(r.height) }

// blackout fills img with opaque black.
func blackout(img *image.RGBA) {
	draw.Draw(img, img.Bounds(), image.Black, image.Point{}, draw.Src)
}

// restore copies the saved base layer into the working frame.
func (r *Renderer) restore() {
	copy(r.frame.Pix, r.base.Pix)
}

// saveBase keeps the working frame as the base layer for an animation.
func (r *Renderer) saveBase() {
	copy(r.base.Pix, r.frame.Pix)
}

func (r *Renderer) paint(kind Kind, label string, final bool) error {
	return r.surface.Paint(Frame{Kind: kind, Label: label, Final: final, Image: r.frame})
}

var (
	white       = color.NRGBA{255, 255, 255, 255}
	white90     = color.NRGBA{255, 255, 255, 230}
	textShadow  = &Shadow{DX: 2, DY: 2, Color: color.NRGBA{0, 0, 0, 128}}
	photoShadow = &Shadow{DX: 1, DY: 1, Color: color.NRGBA{0, 0, 0, 204}}
)

func (r *Renderer) shadow(s *Shadow) *Shadow {
	return &Shadow{DX: r.px(s.DX), DY: r.px(s.DY), Color: s.Color}
}

func withAlpha(c color.NRGBA, a float64) color.NRGBA {
	c.A = uint8(float64(c.A)*clamp01(a) + 0.5)
	return c
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
