package sequence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodboard/internal/clock"
	"moodboard/internal/trip"
)

// fakeRenderer logs each call and the fake-clock time it happened at.
type fakeRenderer struct {
	clk      *clock.Fake
	start    time.Time
	calls    []string
	at       []time.Duration
	stickers map[string][]string
	failOn   string
}

func newFakeRenderer(clk *clock.Fake) *fakeRenderer {
	return &fakeRenderer{clk: clk, start: clk.Now(), stickers: map[string][]string{}}
}

func (f *fakeRenderer) record(call string) error {
	f.calls = append(f.calls, call)
	f.at = append(f.at, f.clk.Now().Sub(f.start))
	if call == f.failOn {
		return errors.New("surface lost")
	}
	return nil
}

func (f *fakeRenderer) RenderDayTitle(_ context.Context, date string, ordinal int) error {
	return f.record(fmt.Sprintf("day-title(%d)", ordinal+1))
}

func (f *fakeRenderer) RenderMediaItem(_ context.Context, item trip.MediaItem, stickers []trip.Sticker) error {
	for _, s := range stickers {
		f.stickers[item.ID] = append(f.stickers[item.ID], s.ID)
	}
	return f.record("media(" + item.ID + ")")
}

func (f *fakeRenderer) RenderEnding(_ context.Context, title string) error {
	return f.record("ending")
}

func newSequencer(t *testing.T) (*Sequencer, *fakeRenderer, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	r := newFakeRenderer(clk)
	return New(r, clk, DefaultHolds(), nil), r, clk
}

func TestRun_FrameOrderIgnoresTimestamps(t *testing.T) {
	s, r, _ := newSequencer(t)
	tr := trip.Trip{Title: "T", Days: []trip.Day{
		{Date: "2025-01-02", Items: []trip.MediaItem{
			{ID: "A", Timestamp: "2025-01-02T18:00:00Z"},
			{ID: "B", Timestamp: "2025-01-02T06:00:00Z"},
		}},
		{Date: "2025-01-01", Items: []trip.MediaItem{{ID: "C", Timestamp: "2024-12-31T00:00:00Z"}}},
	}}

	require.NoError(t, s.Run(context.Background(), tr, nil))

	assert.Equal(t, []string{
		"day-title(1)", "media(A)", "media(B)",
		"day-title(2)", "media(C)",
		"ending",
	}, r.calls)
}

func TestRun_ProgressIsMonotonicAndEndsAt100(t *testing.T) {
	s, _, _ := newSequencer(t)
	tr := trip.Trip{Days: []trip.Day{
		{Items: make([]trip.MediaItem, 2)},
		{Items: make([]trip.MediaItem, 0)},
		{Items: make([]trip.MediaItem, 4)},
	}}
	var got []int

	require.NoError(t, s.Run(context.Background(), tr, func(p int) { got = append(got, p) }))

	assert.Equal(t, []int{16, 33, 50, 66, 83, 100}, got)
	assert.True(t, sort.IntsAreSorted(got))
}

func TestRun_HoldsEachFrame(t *testing.T) {
	s, r, clk := newSequencer(t)
	tr := trip.Trip{Title: "Scenario", Days: []trip.Day{
		{Date: "2025-01-01", Items: []trip.MediaItem{{ID: "hello", Caption: "Hello"}}},
		{Date: "2025-01-02"},
	}}
	var progress []int

	require.NoError(t, s.Run(context.Background(), tr, func(p int) { progress = append(progress, p) }))

	assert.Equal(t, []string{"day-title(1)", "media(hello)", "day-title(2)", "ending"}, r.calls)
	assert.Equal(t, []time.Duration{0, 2 * time.Second, 7 * time.Second, 9 * time.Second}, r.at)
	assert.Equal(t, 12*time.Second, clk.Elapsed())
	assert.Equal(t, []int{100}, progress)
	// 2 day titles, 1 item and the ending: 2*2s + 5s + 3s.
	assert.Equal(t, 12*time.Second, EstimateDuration(tr, DefaultHolds()))
}

func TestRun_PassesRelevantStickers(t *testing.T) {
	s, r, _ := newSequencer(t)
	tr := trip.Trip{Days: []trip.Day{{
		Items: []trip.MediaItem{
			{ID: "morning", Timestamp: "2025-01-01T08:00:00Z"},
			{ID: "evening", Timestamp: "2025-01-01T20:00:00Z"},
		},
		Stickers: []trip.Sticker{
			{ID: "always"},
			{ID: "breakfast", Timestamp: "2025-01-01T08:30:00Z"},
		},
	}}}

	require.NoError(t, s.Run(context.Background(), tr, nil))

	assert.Equal(t, []string{"always", "breakfast"}, r.stickers["morning"])
	assert.Equal(t, []string{"always"}, r.stickers["evening"])
}

func TestRun_RendererErrorStops(t *testing.T) {
	s, r, _ := newSequencer(t)
	r.failOn = "media(B)"
	tr := trip.Trip{Days: []trip.Day{{Items: []trip.MediaItem{{ID: "A"}, {ID: "B"}, {ID: "C"}}}}}
	var progress []int

	err := s.Run(context.Background(), tr, func(p int) { progress = append(progress, p) })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "day 1 item 2")
	assert.Equal(t, []int{33}, progress)
	assert.NotContains(t, r.calls, "ending")
}

func TestRun_Cancelled(t *testing.T) {
	s, r, _ := newSequencer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, trip.Trip{Days: []trip.Day{{Items: []trip.MediaItem{{ID: "A"}}}}}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"day-title(1)"}, r.calls)
}

func TestRun_EmptyTrip(t *testing.T) {
	s, r, clk := newSequencer(t)
	var progress []int

	require.NoError(t, s.Run(context.Background(), trip.Trip{Title: "Empty"}, func(p int) { progress = append(progress, p) }))

	assert.Equal(t, []string{"ending"}, r.calls)
	assert.Empty(t, progress)
	assert.Equal(t, 3*time.Second, clk.Elapsed())
}

func TestEstimateDuration(t *testing.T) {
	tr := trip.Trip{Days: []trip.Day{{Items: make([]trip.MediaItem, 3)}, {}}}

	assert.Equal(t, 2*2*time.Second+3*5*time.Second+3*time.Second, EstimateDuration(tr, DefaultHolds()))
	assert.Equal(t, 3*time.Second, EstimateDuration(trip.Trip{}, DefaultHolds()))
}
