package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"moodboard/internal/logging"
	"moodboard/internal/trip"
)

// Texts painted when an item cannot be shown.
const (
	LoadErrorText   = "Error loading image"
	PlaceholderText = "Video item (not implemented in this example)"
)

var readabilityGradient = []ColorStop{
	{0, color.NRGBA{0, 0, 0, 179}},
	{0.3, color.NRGBA{0, 0, 0, 26}},
	{0.7, color.NRGBA{0, 0, 0, 26}},
	{1, color.NRGBA{0, 0, 0, 204}},
}

// Caption panel layout in design space.
const (
	captionLines      = 2
	captionLineHeight = 35
	captionFontSize   = 28
)

// RenderMediaItem paints one media item with its overlays and the given
// stickers. A load failure paints an error frame instead and is not
// returned; only cancellation and surface errors are.
func (r *Renderer) RenderMediaItem(ctx context.Context, item trip.MediaItem, stickers []trip.Sticker) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if item.Type == trip.MediaVideo {
		r.paintMessage(color.NRGBA{}, PlaceholderText, "")
		return r.paint(KindPlaceholder, item.ID, true)
	}
	if r.loader == nil {
		r.paintMessage(color.NRGBA{200, 0, 0, 128}, LoadErrorText, "no image loader configured")
		return r.paint(KindMediaError, item.ID, true)
	}

	img, err := r.loader.Load(ctx, item.Src)
	if err == nil && img == nil {
		err = errors.New("loader returned no image")
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("failed to load image", "item_id", item.ID, "src", logging.SanitizeSrc(item.Src), "error", err)
		r.paintMessage(color.NRGBA{200, 0, 0, 128}, LoadErrorText, err.Error())
		return r.paint(KindMediaError, item.ID, true)
	}

	r.composeMedia(img, item, stickers)
	return r.paint(KindMedia, item.ID, true)
}

func (r *Renderer) composeMedia(img image.Image, item trip.MediaItem, stickers []trip.Sticker) {
	blackout(r.frame)
	b := img.Bounds()
	cover := CoverFit(float64(b.Dx()), float64(b.Dy()), r.w(), r.h())
	if cover.Offset() {
		DrawBlurred(r.frame, img, 24)
		FillAll(r.frame, color.NRGBA{0, 0, 0, 179})
	}
	DrawCover(r.frame, img, cover)
	FillLinearGradient(r.frame, 0, 0, 0, r.h(), readabilityGradient)

	if name := item.LocationName(); name != "" {
		r.text.Draw(r.frame, name, TextOptions{
			Style: Bold, Size: r.px(30),
			X: r.px(50), Y: r.px(50),
			Baseline: BaselineTop,
			Color:    white, Shadow: r.shadow(photoShadow),
		})
	}
	if date := trip.FormatItemDate(item.Timestamp); date != "" {
		r.text.Draw(r.frame, date, TextOptions{
			Style: Bold, Size: r.px(22),
			X: r.w() - r.px(50), Y: r.px(50),
			Align: AlignRight, Baseline: BaselineTop,
			Color: white90, Shadow: r.shadow(photoShadow),
		})
	}
	if item.Caption != "" {
		r.drawCaption(item.Caption)
	}
	for _, s := range stickers {
		r.drawSticker(s)
	}
}

func (r *Renderer) drawCaption(caption string) {
	panel := Rect{r.px(40), r.h() - r.px(160), r.w() - r.px(80), r.px(110)}
	FillRoundRect(r.frame, Rect{panel.X, panel.Y + r.px(5), panel.W, panel.H}, r.px(12), color.NRGBA{0, 0, 0, 64})
	FillRoundRect(r.frame, panel, r.px(12), color.NRGBA{0, 0, 0, 179})

	size := r.px(captionFontSize)
	lines := r.text.Wrap(Bold, size, caption, r.w()-r.px(120), captionLines)
	y := r.h() - r.px(140)
	for _, line := range lines {
		r.text.Draw(r.frame, line, TextOptions{
			Style: Bold, Size: size,
			X: r.px(70), Y: y,
			Baseline: BaselineTop,
			Color:    white, Shadow: r.shadow(&Shadow{DX: 1, DY: 1, Color: color.NRGBA{0, 0, 0, 179}}),
		})
		y += r.px(captionLineHeight)
	}
}

// drawSticker renders the sticker onto its own tile, then places the tile
// centered on the sticker position, rotated when the sticker asks for it.
func (r *Renderer) drawSticker(s trip.Sticker) {
	tile := r.stickerTile(s)
	cx := s.Position.X / 100 * r.w()
	cy := s.Position.Y / 100 * r.h()
	tb := tile.Bounds()
	hw, hh := float64(tb.Dx())/2, float64(tb.Dy())/2

	deg := s.Rotation()
	if deg == 0 {
		at := image.Pt(int(math.Round(cx-hw)), int(math.Round(cy-hh)))
		draw.Draw(r.frame, tb.Add(at), tile, image.Point{}, draw.Over)
		return
	}
	sin, cos := math.Sincos(deg * math.Pi / 180)
	m := f64.Aff3{
		cos, -sin, cx - (cos*hw - sin*hh),
		sin, cos, cy - (sin*hw + cos*hh),
	}
	draw.BiLinear.Transform(r.frame, m, tile, tb, draw.Over, nil)
}

func (r *Renderer) stickerTile(s trip.Sticker) *image.RGBA {
	scale := s.Scale() * r.scale
	margin := 8 * scale

	if s.Type == trip.StickerEmoji && r.text.HasEmoji() {
		size := 64 * scale
		w := r.text.Measure(Emoji, size, s.Content) + 2*margin
		h := size*1.3 + 2*margin
		tile := image.NewRGBA(image.Rect(0, 0, int(math.Ceil(w)), int(math.Ceil(h))))
		r.text.Draw(tile, s.Content, TextOptions{
			Style: Emoji, Size: size,
			X: w / 2, Y: h / 2,
			Align: AlignCenter, Baseline: BaselineMiddle,
			Color: white,
		})
		return tile
	}

	// Without an emoji font every sticker is drawn as a pill.
	size := 20 * scale
	pillW := r.text.Measure(Bold, size, s.Content) + 20*scale
	pillH := 36 * scale
	tile := image.NewRGBA(image.Rect(0, 0, int(math.Ceil(pillW+2*margin)), int(math.Ceil(pillH+2*margin))))
	pill := Rect{margin, margin, pillW, pillH}
	FillRoundRect(tile, Rect{pill.X, pill.Y + 2*scale, pill.W, pill.H}, pillH/2, color.NRGBA{0, 0, 0, 90})
	FillRoundRect(tile, pill, pillH/2, color.NRGBA{255, 255, 255, 230})
	r.text.Draw(tile, s.Content, TextOptions{
		Style: Bold, Size: size,
		X: pill.X + pillW/2, Y: pill.Y + pillH/2,
		Align: AlignCenter, Baseline: BaselineMiddle,
		Color: color.NRGBA{0, 0, 0, 204},
	})
	return tile
}

// paintMessage fills the frame with black, tints it and centers a message
// with an optional smaller detail line below.
func (r *Renderer) paintMessage(tint color.NRGBA, message, detail string) {
	blackout(r.frame)
	if tint.A > 0 {
		FillAll(r.frame, tint)
	}
	r.text.Draw(r.frame, message, TextOptions{
		Size: r.px(24),
		X:    r.w() / 2, Y: r.h() / 2,
		Align: AlignCenter, Baseline: BaselineMiddle,
		Color: white,
	})
	if detail == "" {
		return
	}
	lines := r.text.Wrap(Regular, r.px(16), detail, r.w()-r.px(160), 2)
	y := r.h()/2 + r.px(40)
	for _, line := range lines {
		r.text.Draw(r.frame, line, TextOptions{
			Size: r.px(16),
			X:    r.w() / 2, Y: y,
			Align: AlignCenter, Baseline: BaselineMiddle,
			Color: color.NRGBA{255, 255, 255, 179},
		})
		y += r.px(24)
	}
}
