package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestGIFEncoder_CollapsesUnchangedSamples(t *testing.T) {
	enc := newGIFEncoder(EncoderOptions{Width: 8, Height: 8, FrameRate: 10})
	red := filled(8, 8, color.RGBA{255, 0, 0, 255})
	blue := filled(8, 8, color.RGBA{0, 0, 255, 255})

	for i := 0; i < 5; i++ {
		require.NoError(t, enc.WriteFrame(red, 1))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, enc.WriteFrame(blue, 2))
	}
	data, err := enc.Close()
	require.NoError(t, err)

	anim, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, anim.Image, 2)
	assert.Equal(t, []int{50, 30}, anim.Delay)
}

func TestGIFEncoder_EmptyFails(t *testing.T) {
	_, err := newGIFEncoder(EncoderOptions{Width: 8, Height: 8, FrameRate: 30}).Close()
	assert.Error(t, err)
}

func TestMJPEGEncoder_ProducesAVI(t *testing.T) {
	enc, err := NewEncoder(context.Background(), Selection{Codec: CodecTable[3]}, EncoderOptions{
		Width: 16, Height: 16, FrameRate: 30, Quality: 80, TempDir: t.TempDir(),
	})
	require.NoError(t, err)
	frame := filled(16, 16, color.RGBA{10, 200, 30, 255})

	for i := 0; i < 4; i++ {
		require.NoError(t, enc.WriteFrame(frame, 7))
	}
	chunk, err := enc.Flush()
	require.NoError(t, err)
	assert.Empty(t, chunk)

	data, err := enc.Close()
	require.NoError(t, err)
	require.Greater(t, len(data), 12)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "AVI ", string(data[8:12]))
}

func TestNewEncoder_FFmpegWithoutBinary(t *testing.T) {
	_, err := NewEncoder(context.Background(), Selection{Codec: CodecTable[0], FFmpegEncoder: "libx264"}, EncoderOptions{Width: 16, Height: 16, FrameRate: 30})
	assert.Error(t, err)
}
