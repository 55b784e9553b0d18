package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"

	"golang.org/x/image/draw"
)

// gifEncoder collapses runs of identical samples into one GIF frame whose
// delay covers the whole run.
type gifEncoder struct {
	width, height int
	frameDelay    float64 // hundredths of a second per sample

	anim        gif.GIF
	lastVersion uint64
	pending     float64
	have        bool
}

func newGIFEncoder(opts EncoderOptions) *gifEncoder {
	return &gifEncoder{
		width:      opts.Width,
		height:     opts.Height,
		frameDelay: 100 / float64(opts.FrameRate),
		anim: gif.GIF{
			Config: image.Config{Width: opts.Width, Height: opts.Height},
		},
	}
}

func (e *gifEncoder) WriteFrame(img *image.RGBA, version uint64) error {
	if e.have && version == e.lastVersion {
		e.pending += e.frameDelay
		return nil
	}
	e.commitDelay()

	bounds := img.Bounds()
	paletted := image.NewPaletted(bounds, palette.Plan9)
	draw.FloydSteinberg.Draw(paletted, bounds, img, bounds.Min)
	e.anim.Image = append(e.anim.Image, paletted)
	e.anim.Delay = append(e.anim.Delay, 0)
	e.pending = e.frameDelay
	e.lastVersion = version
	e.have = true
	return nil
}

// commitDelay stores the accumulated delay on the newest frame.
func (e *gifEncoder) commitDelay() {
	if n := len(e.anim.Delay); n > 0 {
		d := int(e.pending + 0.5)
		if d < 1 {
			d = 1
		}
		e.anim.Delay[n-1] = d
	}
}

func (e *gifEncoder) Flush() ([]byte, error) { return nil, nil }

func (e *gifEncoder) Close() ([]byte, error) {
	if len(e.anim.Image) == 0 {
		return nil, fmt.Errorf("no frames to export")
	}
	e.commitDelay()
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, &e.anim); err != nil {
		return nil, fmt.Errorf("failed to encode GIF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *gifEncoder) Abort() {
	e.anim = gif.GIF{}
}
