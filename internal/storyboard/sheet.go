package storyboard

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/sunshineplan/imgconv"
	"golang.org/x/image/draw"

	"moodboard/internal/logging"
	"moodboard/internal/render"
	"moodboard/internal/trip"
)

var (
	background = color.NRGBA{0x11, 0x18, 0x27, 0xff}
	cardFill   = color.NRGBA{0x1f, 0x29, 0x37, 0xff}
	cardBorder = color.NRGBA{0x37, 0x41, 0x51, 0xff}
	muted      = color.NRGBA{0x9c, 0xa3, 0xaf, 0xff}
	errorFill  = color.NRGBA{0x7f, 0x1d, 0x1d, 0xff}
	badgeFill  = color.NRGBA{0xff, 0xff, 0xff, 0xe6}
	badgeText  = color.NRGBA{0x11, 0x18, 0x27, 0xff}
	accent     = color.NRGBA{0x63, 0x66, 0xf1, 0xff}
)

// Sheet layout in pixels.
const (
	padding      = 48
	gap          = 24
	headerHeight = 120
	captionArea  = 104
	emptyHeight  = 80
	cornerRadius = 12
)

// layout is the grid geometry of a sheet.
type layout struct {
	width, columns int
	cardW, thumbH  int
	cardH, rows    int
	height         int
}

func newLayout(width, columns, items int) layout {
	l := layout{width: width, columns: columns}
	l.cardW = (width - 2*padding - gap*(columns-1)) / columns
	l.thumbH = l.cardW * 3 / 4
	l.cardH = l.thumbH + captionArea
	l.rows = (items + columns - 1) / columns
	if items == 0 {
		l.height = headerHeight + emptyHeight + padding
	} else {
		l.height = headerHeight + l.rows*l.cardH + (l.rows-1)*gap + padding
	}
	return l
}

// cardOrigin is the top-left corner of the i-th card.
func (l layout) cardOrigin(i int) (x, y int) {
	col, row := i%l.columns, i/l.columns
	return padding + col*(l.cardW+gap), headerHeight + row*(l.cardH+gap)
}

// renderDay draws one day sheet. Image load failures become error tiles;
// only context cancellation is returned as an error.
func (e *Exporter) renderDay(ctx context.Context, day trip.Day, index int) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := newLayout(e.opts.SheetWidth, e.opts.Columns, len(day.Items))
	sheet := image.NewRGBA(image.Rect(0, 0, l.width, l.height))
	render.FillAll(sheet, background)

	// Faces are not safe for concurrent use, so each sheet sets its own type.
	text := render.NewTypesetter(e.opts.Fonts)

	render.FillRoundRect(sheet, render.Rect{X: padding, Y: 36, W: 8, H: 56}, 4, accent)
	text.Draw(sheet, fmt.Sprintf("Day %d", index+1), render.TextOptions{
		Style: render.Bold, Size: 40, X: padding + 24, Y: 36, Baseline: render.BaselineTop,
	})
	text.Draw(sheet, trip.FormatDayTitle(day.Date), render.TextOptions{
		Style: render.Regular, Size: 24, X: padding + 24, Y: 84, Baseline: render.BaselineTop, Color: muted,
	})

	if len(day.Items) == 0 {
		text.Draw(sheet, "No memories captured this day", render.TextOptions{
			Style: render.Regular, Size: 22, X: float64(l.width) / 2, Y: headerHeight + emptyHeight/2,
			Align: render.AlignCenter, Baseline: render.BaselineMiddle, Color: muted,
		})
		return sheet, nil
	}

	for i, item := range day.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x, y := l.cardOrigin(i)
		e.drawCard(ctx, sheet, text, l, item, x, y)
	}
	return sheet, nil
}

func (e *Exporter) drawCard(ctx context.Context, sheet *image.RGBA, text *render.Typesetter, l layout, item trip.MediaItem, x, y int) {
	card := render.Rect{X: float64(x), Y: float64(y), W: float64(l.cardW), H: float64(l.cardH)}
	render.FillRoundRect(sheet, card, cornerRadius, cardFill)
	render.StrokeRoundRect(sheet, card, cornerRadius, 2, cardBorder)

	thumb := e.thumbnail(ctx, text, item, l.cardW-4, l.thumbH-2)
	drawAt(sheet, thumb, x+2, y+2)

	if clock := trip.FormatClock(item.Timestamp); clock != "" {
		w := text.Measure(render.Bold, 16, clock) + 20
		badge := render.Rect{X: float64(x+l.cardW) - w - 12, Y: float64(y) + 12, W: w, H: 30}
		render.FillRoundRect(sheet, badge, 15, badgeFill)
		text.Draw(sheet, clock, render.TextOptions{
			Style: render.Bold, Size: 16, X: badge.X + w/2, Y: badge.Y + badge.H/2,
			Align: render.AlignCenter, Baseline: render.BaselineMiddle, Color: badgeText,
		})
	}

	textX := float64(x) + 16
	textY := float64(y+l.thumbH) + 14
	maxW := float64(l.cardW) - 32
	if item.Caption == "" {
		text.Draw(sheet, "No caption", render.TextOptions{
			Style: render.Regular, Size: 20, X: textX, Y: textY, Baseline: render.BaselineTop, Color: muted,
		})
	} else {
		for j, line := range text.Wrap(render.Regular, 20, item.Caption, maxW, 2) {
			text.Draw(sheet, line, render.TextOptions{
				Style: render.Regular, Size: 20, X: textX, Y: textY + float64(j)*26, Baseline: render.BaselineTop,
			})
		}
	}
	if name := item.LocationName(); name != "" {
		lines := text.Wrap(render.Regular, 16, name, maxW, 1)
		text.Draw(sheet, lines[0], render.TextOptions{
			Style: render.Regular, Size: 16, X: textX, Y: float64(y+l.cardH) - 14, Baseline: render.BaselineAlphabetic, Color: muted,
		})
	}
}

// thumbnail returns a w x h cover-fit rendition of the item.
func (e *Exporter) thumbnail(ctx context.Context, text *render.Typesetter, item trip.MediaItem, w, h int) *image.RGBA {
	thumb := image.NewRGBA(image.Rect(0, 0, w, h))
	message := func(fill color.Color, s string) *image.RGBA {
		render.FillAll(thumb, fill)
		text.Draw(thumb, s, render.TextOptions{
			Style: render.Bold, Size: 20, X: float64(w) / 2, Y: float64(h) / 2,
			Align: render.AlignCenter, Baseline: render.BaselineMiddle,
		})
		return thumb
	}

	if item.Type == trip.MediaVideo {
		return message(color.Black, "Video")
	}
	if e.opts.Loader == nil {
		return message(errorFill, render.LoadErrorText)
	}
	img, err := e.opts.Loader.Load(ctx, item.Src)
	if err != nil {
		e.log.Warn("failed to load image", "item_id", item.ID, "src", logging.SanitizeSrc(item.Src), "error", err)
		return message(errorFill, render.LoadErrorText)
	}

	// Shrink large sources first; cover-fit scaling from full size is slow.
	if b := img.Bounds(); b.Dx() > 2*w {
		img = imgconv.Resize(img, &imgconv.ResizeOption{Width: 2 * w})
	}
	b := img.Bounds()
	render.DrawCover(thumb, img, render.CoverFit(float64(b.Dx()), float64(b.Dy()), float64(w), float64(h)))
	return thumb
}

// coverSheet is the first PDF page: title and date range.
func (e *Exporter) coverSheet(t trip.Trip) *image.RGBA {
	w := e.opts.SheetWidth
	h := w * 3 / 4
	sheet := image.NewRGBA(image.Rect(0, 0, w, h))
	render.FillAll(sheet, background)
	text := render.NewTypesetter(e.opts.Fonts)

	lines := text.Wrap(render.Bold, 56, t.Title, float64(w-2*padding), 2)
	top := float64(h)/2 - float64(len(lines))*34
	for i, line := range lines {
		text.Draw(sheet, line, render.TextOptions{
			Style: render.Bold, Size: 56, X: float64(w) / 2, Y: top + float64(i)*68,
			Align: render.AlignCenter, Baseline: render.BaselineTop,
		})
	}
	dates := fmt.Sprintf("%s to %s", trip.FormatItemDate(t.StartDate), trip.FormatItemDate(t.EndDate))
	text.Draw(sheet, dates, render.TextOptions{
		Style: render.Regular, Size: 28, X: float64(w) / 2, Y: top + float64(len(lines))*68 + 24,
		Align: render.AlignCenter, Baseline: render.BaselineTop, Color: muted,
	})
	summary := fmt.Sprintf("%d days · %d memories", len(t.Days), t.TotalItems())
	text.Draw(sheet, summary, render.TextOptions{
		Style: render.Regular, Size: 22, X: float64(w) / 2, Y: float64(h) - padding,
		Align: render.AlignCenter, Color: muted,
	})
	return sheet
}

func drawAt(dst *image.RGBA, src image.Image, x, y int) {
	b := src.Bounds()
	draw.Draw(dst, image.Rect(x, y, x+b.Dx(), y+b.Dy()), src, b.Min, draw.Over)
}
