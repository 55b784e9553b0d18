// Package storyboard exports a trip as static "day sheets": one tall image
// (PNG or WebP) or a paginated A4 PDF.
package storyboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"moodboard/internal/logging"
	"moodboard/internal/render"
	"moodboard/internal/trip"
)

var (
	// ErrNoDays is returned for a trip without days.
	ErrNoDays = errors.New("trip has no days to export")
	// ErrNothingRendered is returned when every day sheet failed.
	ErrNothingRendered = errors.New("failed to render any days of the trip")
)

// Format is a storyboard output format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts png, webp or pdf in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPNG, FormatWebP, FormatPDF:
		return f, nil
	}
	return "", fmt.Errorf("unsupported storyboard format %q", s)
}

// MIME is the content type of the format.
func (f Format) MIME() string {
	switch f {
	case FormatWebP:
		return "image/webp"
	case FormatPDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}

// Sink stores the finished file and returns a URL for it.
type Sink interface {
	CreateObjectURL(r io.Reader, mime, filename string) (string, error)
}

// Options configures an Exporter.
type Options struct {
	// SheetWidth is the pixel width of every day sheet.
	SheetWidth int
	Columns    int
	// Concurrency bounds how many day sheets render at once.
	Concurrency int
	Loader      render.ImageLoader
	Fonts       *render.Fonts
	Sink        Sink
	Logger      *slog.Logger
}

// Result is a finished storyboard export.
type Result struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	Size     int    `json:"size"`
	Days     int    `json:"days"`
	Skipped  int    `json:"skipped,omitempty"`
}

// Exporter renders storyboards.
type Exporter struct {
	opts Options
	sem  *semaphore.Weighted
	log  *slog.Logger
}

func New(opts Options) *Exporter {
	if opts.SheetWidth <= 0 {
		opts.SheetWidth = 1200
	}
	if opts.Columns <= 0 {
		opts.Columns = 3
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Fonts == nil {
		opts.Fonts = render.MustDefaultFonts()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Exporter{
		opts: opts,
		sem:  semaphore.NewWeighted(int64(opts.Concurrency)),
		log:  logging.WithComponent(opts.Logger, "storyboard"),
	}
}

// Filename is "{title} - {Mon D, YYYY} to {Mon D, YYYY}.{ext}".
func Filename(t trip.Trip, f Format) string {
	title := strings.TrimSpace(t.Title)
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf("%s - %s to %s.%s",
		title, trip.FormatItemDate(t.StartDate), trip.FormatItemDate(t.EndDate), f)
}

// Export renders every day of t and publishes the result in format f.
// progress, when set, sees 10 before rendering, 10..70 while days render
// and then the format's later milestones up to 100.
func (e *Exporter) Export(ctx context.Context, t trip.Trip, f Format, progress func(int)) (Result, error) {
	if progress == nil {
		progress = func(int) {}
	}
	if len(t.Days) == 0 {
		return Result{}, ErrNoDays
	}
	if e.opts.Sink == nil {
		return Result{}, errors.New("storyboard: no sink configured")
	}
	log := logging.WithTripID(e.log, t.ID)
	log.Info("storyboard export started", "format", f, "days", len(t.Days))

	progress(10)
	sheets, errs := e.renderSheets(ctx, t, progress)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var (
		data    []byte
		skipped int
		err     error
	)
	switch f {
	case FormatPDF:
		var kept []*image.RGBA
		for i, s := range sheets {
			if errs[i] != nil {
				log.Warn("skipping day sheet", "day", i+1, "error", errs[i])
				skipped++
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			return Result{}, ErrNothingRendered
		}
		progress(70)
		cover := e.coverSheet(t)
		progress(80)
		data, err = encodePDF(cover, kept, func(done, total int) {
			progress(80 + 15*done/total)
		})
		if err != nil {
			return Result{}, err
		}
		progress(95)
	case FormatPNG, FormatWebP:
		for i, err := range errs {
			if err != nil {
				return Result{}, fmt.Errorf("day %d: %w", i+1, err)
			}
		}
		progress(70)
		combined := Combine(sheets)
		progress(80)
		var buf bytes.Buffer
		if err := encodeImage(&buf, combined, f); err != nil {
			return Result{}, err
		}
		data = buf.Bytes()
		progress(90)
	default:
		return Result{}, fmt.Errorf("unsupported storyboard format %q", f)
	}

	name := Filename(t, f)
	url, err := e.opts.Sink.CreateObjectURL(bytes.NewReader(data), f.MIME(), name)
	if err != nil {
		return Result{}, fmt.Errorf("failed to store storyboard: %w", err)
	}
	progress(100)

	res := Result{URL: url, Filename: name, MIME: f.MIME(), Size: len(data), Days: len(t.Days) - skipped, Skipped: skipped}
	log.Info("storyboard export completed", "format", f, "bytes", res.Size, "skipped", skipped)
	return res, nil
}

// renderSheets rasterizes every day, at most Concurrency at a time. Sheets
// and errors are indexed by day.
func (e *Exporter) renderSheets(ctx context.Context, t trip.Trip, progress func(int)) ([]*image.RGBA, []error) {
	n := len(t.Days)
	sheets := make([]*image.RGBA, n)
	errs := make([]error, n)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for i, day := range t.Days {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			for j := i; j < n; j++ {
				errs[j] = err
			}
			break
		}
		wg.Add(1)
		go func(i int, day trip.Day) {
			defer wg.Done()
			defer e.sem.Release(1)

			sheet, err := e.renderDay(ctx, day, i)
			mu.Lock()
			defer mu.Unlock()
			sheets[i], errs[i] = sheet, err
			done++
			progress(10 + 60*done/n)
		}(i, day)
	}
	wg.Wait()
	return sheets, errs
}

// Combine stacks sheets vertically on the storyboard background, centering
// narrower sheets.
func Combine(sheets []*image.RGBA) *image.RGBA {
	width, height := 0, 0
	for _, s := range sheets {
		b := s.Bounds()
		width = max(width, b.Dx())
		height += b.Dy()
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	render.FillAll(out, background)
	y := 0
	for _, s := range sheets {
		b := s.Bounds()
		x := (width - b.Dx()) / 2
		drawAt(out, s, x, y)
		y += b.Dy()
	}
	return out
}
