package render

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"time"

	"moodboard/internal/trip"
)

var (
	titleGradient = []ColorStop{
		{0, color.NRGBA{15, 23, 42, 255}},
		{1, color.NRGBA{25, 33, 52, 242}},
	}
	endingGradient = []ColorStop{
		{0, color.NRGBA{15, 23, 42, 255}},
		{0.6, color.NRGBA{25, 33, 52, 242}},
		{1, color.NRGBA{15, 23, 42, 230}},
	}
	previewGradient = []ColorStop{
		{0, color.NRGBA{15, 23, 42, 204}},
		{1, color.NRGBA{25, 33, 52, 230}},
	}
)

// Attribution is the footer line of the ending card.
const Attribution = "Created with Travel Story Maker"

// RenderDayTitle paints the title card for the day at zero-based ordinal:
// "Day N" grows into place, then the formatted date appears beneath it.
func (r *Renderer) RenderDayTitle(ctx context.Context, date string, ordinal int) error {
	label := fmt.Sprintf("Day %d", ordinal+1)

	blackout(r.frame)
	FillLinearGradient(r.frame, 0, 0, r.w(), r.h(), titleGradient)
	glow := color.NRGBA{255, 255, 255, 13}
	FillCircle(r.frame, r.w()*0.2, r.h()*0.3, r.px(150), glow)
	FillCircle(r.frame, r.w()*0.8, r.h()*0.7, r.px(180), glow)
	r.saveBase()

	err := Play(ctx, r.clock, TitleReveal(), func(scale float64) error {
		r.restore()
		r.drawDayLabel(label, scale)
		return r.paint(KindDayTitle, label, false)
	})
	if err != nil {
		return err
	}

	r.restore()
	r.drawDayLabel(label, 1)
	r.text.Draw(r.frame, trip.FormatDayTitle(date), TextOptions{
		Style: Bold, Size: r.px(36),
		X: r.w() / 2, Y: r.h()/2 + r.px(120),
		Align: AlignCenter, Baseline: BaselineMiddle,
		Color: white90, Shadow: r.shadow(textShadow),
	})
	return r.paint(KindDayTitle, label, true)
}

func (r *Renderer) drawDayLabel(label string, scale float64) {
	size := math.Floor(140*scale) * r.scale
	r.text.Draw(r.frame, label, TextOptions{
		Style: Bold, Size: size,
		X: r.w() / 2, Y: r.h() / 2,
		Align: AlignCenter, Baseline: BaselineMiddle,
		Color: white90, Shadow: r.shadow(textShadow),
	})
}

// RenderEnding paints the closing card: the trip title, a fading thank-you
// line and the attribution footer.
func (r *Renderer) RenderEnding(ctx context.Context, title string) error {
	blackout(r.frame)
	FillLinearGradient(r.frame, 0, 0, r.w(), r.h(), endingGradient)
	faint := color.NRGBA{255, 255, 255, 8}
	for i := 0; i < 5; i++ {
		size := r.px(100 + r.rng.Float64()*200)
		FillCircle(r.frame, r.rng.Float64()*r.w(), r.rng.Float64()*r.h(), size, faint)
	}
	StrokeRoundRect(r.frame, Rect{r.px(40), r.px(40), r.w() - r.px(80), r.h() - r.px(80)},
		r.px(20), r.px(4), color.NRGBA{255, 255, 255, 26})
	r.text.Draw(r.frame, title, TextOptions{
		Style: Bold, Size: r.px(60),
		X: r.w() / 2, Y: r.h()/2 - r.px(60),
		Align: AlignCenter, Baseline: BaselineMiddle,
		Color: white, Shadow: r.shadow(textShadow),
	})
	r.saveBase()

	err := Play(ctx, r.clock, FadeIn(), func(opacity float64) error {
		r.restore()
		r.drawThanks(opacity)
		return r.paint(KindEnding, title, false)
	})
	if err != nil {
		return err
	}

	r.restore()
	r.drawThanks(1)
	r.text.Draw(r.frame, Attribution, TextOptions{
		Size: r.px(24),
		X:    r.w() / 2, Y: r.h() - r.px(100),
		Align: AlignCenter, Baseline: BaselineMiddle,
		Color: color.NRGBA{255, 255, 255, 179},
	})
	return r.paint(KindEnding, title, true)
}

func (r *Renderer) drawThanks(opacity float64) {
	var shadow *Shadow
	if opacity > 0 {
		s := r.shadow(textShadow)
		s.Color = withAlpha(s.Color.(color.NRGBA), opacity)
		shadow = s
	}
	r.text.Draw(r.frame, "Thank you for watching", TextOptions{
		Style: Bold, Size: r.px(36),
		X: r.w() / 2, Y: r.h()/2 + r.px(40),
		Align: AlignCenter, Baseline: BaselineMiddle,
		Color: withAlpha(white, opacity), Shadow: shadow,
	})
}

// RenderPreview paints the idle card shown before an export starts.
func (r *Renderer) RenderPreview(ctx context.Context, t trip.Trip, estimate time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blackout(r.frame)
	FillLinearGradient(r.frame, 0, 0, r.w(), r.h(), previewGradient)
	r.text.Draw(r.frame, t.Title, TextOptions{
		Style: Bold, Size: r.px(48),
		X: r.w() / 2, Y: r.h()/2 - r.px(60),
		Align: AlignCenter, Baseline: BaselineMiddle, Color: white,
	})
	r.text.Draw(r.frame, `Click "Generate Story Video" to begin`, TextOptions{
		Size: r.px(24),
		X:    r.w() / 2, Y: r.h()/2 + r.px(20),
		Align: AlignCenter, Baseline: BaselineMiddle,
		Color: color.NRGBA{255, 255, 255, 204},
	})
	r.text.Draw(r.frame, PreviewStats(t, estimate), TextOptions{
		Size: r.px(18),
		X:    r.w() / 2, Y: r.h()/2 + r.px(70),
		Align: AlignCenter, Baseline: BaselineMiddle,
		Color: color.NRGBA{255, 255, 255, 153},
	})
	return r.paint(KindPreview, t.Title, true)
}

// PreviewStats is the summary line of the preview card.
func PreviewStats(t trip.Trip, estimate time.Duration) string {
	secs := int(math.Round(estimate.Seconds()))
	return fmt.Sprintf("%d days · %d images · Est. %ds duration", len(t.Days), t.TotalItems(), secs)
}
