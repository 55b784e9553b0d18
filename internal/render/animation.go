package render

import (
	"context"
	"time"

	"moodboard/internal/clock"
)

// Step is one visual state of an animation and how long it stays up before
// the next step replaces it.
type Step[S any] struct {
	State S
	Hold  time.Duration
}

// Play paints each step in order and waits out its hold on clk. It stops at
// the first paint error or when ctx is done.
func Play[S any](ctx context.Context, clk clock.Clock, steps []Step[S], paint func(S) error) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := paint(step.State); err != nil {
			return err
		}
		if err := clk.Sleep(ctx, step.Hold); err != nil {
			return err
		}
	}
	return nil
}

// Ramp returns n steps whose states move linearly from `from` to `to`
// inclusive, each held for interval.
func Ramp(n int, interval time.Duration, from, to float64) []Step[float64] {
	if n <= 0 {
		return nil
	}
	steps := make([]Step[float64], n)
	for i := range steps {
		v := to
		if n > 1 {
			v = from + (to-from)*float64(i)/float64(n-1)
		}
		steps[i] = Step[float64]{State: v, Hold: interval}
	}
	return steps
}

// Title reveal: "Day N" grows from half to full size.
const (
	RevealSteps    = 15
	RevealInterval = 25 * time.Millisecond
)

// Ending fade: the thank-you line goes from transparent to opaque.
const (
	FadeSteps    = 10
	FadeInterval = 50 * time.Millisecond
)

// TitleReveal returns the day-title scale animation.
func TitleReveal() []Step[float64] {
	return Ramp(RevealSteps, RevealInterval, 0.5, 1)
}

// FadeIn returns the ending opacity animation. The first step is already
// partly visible and the last is fully opaque.
func FadeIn() []Step[float64] {
	steps := make([]Step[float64], FadeSteps)
	for i := range steps {
		steps[i] = Step[float64]{State: float64(i+1) / FadeSteps, Hold: FadeInterval}
	}
	return steps
}
