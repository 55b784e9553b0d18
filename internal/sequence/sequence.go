// Package sequence walks a trip in playback order, asking a frame renderer
// for each card and holding it on screen for a fixed time.
package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"moodboard/internal/clock"
	"moodboard/internal/logging"
	"moodboard/internal/trip"
)

// Holds are the on-screen durations of each frame kind.
type Holds struct {
	DayTitle time.Duration
	Item     time.Duration
	Ending   time.Duration
}

// DefaultHolds returns 2s per day title, 5s per item and 3s for the ending.
func DefaultHolds() Holds {
	return Holds{
		DayTitle: 2000 * time.Millisecond,
		Item:     5000 * time.Millisecond,
		Ending:   3000 * time.Millisecond,
	}
}

// EstimateDuration is the playback length of t: every day title, every item
// and the ending, each at its hold. It ignores animation and load time.
func EstimateDuration(t trip.Trip, h Holds) time.Duration {
	return time.Duration(len(t.Days))*h.DayTitle +
		time.Duration(t.TotalItems())*h.Item +
		h.Ending
}

// FrameRenderer paints frames. Each call returns once its frame is stable.
type FrameRenderer interface {
	RenderDayTitle(ctx context.Context, date string, ordinal int) error
	RenderMediaItem(ctx context.Context, item trip.MediaItem, stickers []trip.Sticker) error
	RenderEnding(ctx context.Context, title string) error
}

// ProgressFunc receives item progress as an integer percentage.
type ProgressFunc func(percent int)

// Sequencer drives a FrameRenderer through a trip.
type Sequencer struct {
	renderer FrameRenderer
	clock    clock.Clock
	holds    Holds
	logger   *slog.Logger
}

// New returns a sequencer. A nil clock means the wall clock.
func New(renderer FrameRenderer, clk clock.Clock, holds Holds, logger *slog.Logger) *Sequencer {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sequencer{
		renderer: renderer,
		clock:    clk,
		holds:    holds,
		logger:   logging.WithComponent(logger, "sequence"),
	}
}

// Progress returns floor(done*100/total), or 100 when total is zero.
func Progress(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}

// Run plays t: for each day in array order its title card, then each of its
// items in array order with their relevant stickers, then the ending card.
// progress is called after each item's hold. Run returns the first renderer
// or context error.
func (s *Sequencer) Run(ctx context.Context, t trip.Trip, progress ProgressFunc) error {
	total := t.TotalItems()
	done := 0

	for d, day := range t.Days {
		if err := s.renderer.RenderDayTitle(ctx, day.Date, d); err != nil {
			return fmt.Errorf("day %d title: %w", d+1, err)
		}
		if err := s.clock.Sleep(ctx, s.holds.DayTitle); err != nil {
			return err
		}

		for i, item := range day.Items {
			stickers := trip.RelevantStickers(day.Stickers, item)
			if err := s.renderer.RenderMediaItem(ctx, item, stickers); err != nil {
				return fmt.Errorf("day %d item %d: %w", d+1, i+1, err)
			}
			if err := s.clock.Sleep(ctx, s.holds.Item); err != nil {
				return err
			}
			done++
			pct := Progress(done, total)
			s.logger.Debug("item held", "day", d+1, "item", item.ID, "progress", pct)
			if progress != nil {
				progress(pct)
			}
		}
	}

	if err := s.renderer.RenderEnding(ctx, t.Title); err != nil {
		return fmt.Errorf("ending: %w", err)
	}
	return s.clock.Sleep(ctx, s.holds.Ending)
}
