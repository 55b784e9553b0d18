package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoverFit_CoversAndCenters(t *testing.T) {
	cases := []struct {
		name       string
		srcW, srcH float64
	}{
		{"wide panorama", 4000, 1000},
		{"portrait", 1080, 1920},
		{"square", 500, 500},
		{"exact 16:9", 1920, 1080},
		{"tiny", 3, 2},
		{"tall sliver", 10, 3000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := CoverFit(tc.srcW, tc.srcH, 1280, 720)

			assert.LessOrEqual(t, r.X, 1e-9)
			assert.LessOrEqual(t, r.Y, 1e-9)
			assert.GreaterOrEqual(t, r.X+r.W, 1280-1e-9)
			assert.GreaterOrEqual(t, r.Y+r.H, 720-1e-9)
			assert.InDelta(t, tc.srcW/tc.srcH, r.W/r.H, 1e-9, "aspect ratio preserved")

			assert.InDelta(t, 0, r.X+(r.X+r.W-1280), 1e-9, "horizontal overflow split evenly")
			assert.InDelta(t, 0, r.Y+(r.Y+r.H-720), 1e-9, "vertical overflow split evenly")
			assert.True(t, r.W == 1280 || r.H == 720, "one axis fits exactly")
		})
	}
}

func TestCoverFit_OffsetOnlyOnAspectMismatch(t *testing.T) {
	assert.False(t, CoverFit(1920, 1080, 1280, 720).Offset())
	assert.True(t, CoverFit(1000, 1000, 1280, 720).Offset())
}

func TestCoverFit_WideImageOverflowsHorizontally(t *testing.T) {
	r := CoverFit(2000, 500, 1280, 720)

	assert.Equal(t, 720.0, r.H)
	assert.Equal(t, 2880.0, r.W)
	assert.Equal(t, -800.0, r.X)
	assert.Equal(t, 0.0, r.Y)
}
