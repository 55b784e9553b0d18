package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodboard/internal/clock"
)

type fakeSource struct {
	mu      sync.Mutex
	version uint64
}

func (s *fakeSource) Bounds() image.Rectangle { return image.Rect(0, 0, 4, 4) }

func (s *fakeSource) ReadInto(dst *image.RGBA) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

type fakeEncoder struct {
	mu        sync.Mutex
	frames    []uint64
	flushes   int
	failWrite error
	failClose error
	closed    bool
	aborted   bool
}

func (e *fakeEncoder) WriteFrame(_ *image.RGBA, version uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failWrite != nil && len(e.frames) > 0 {
		return e.failWrite
	}
	e.frames = append(e.frames, version)
	return nil
}

func (e *fakeEncoder) Flush() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushes++
	return []byte(fmt.Sprintf("c%d;", e.flushes)), nil
}

func (e *fakeEncoder) Close() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.failClose != nil {
		return nil, e.failClose
	}
	return []byte("end"), nil
}

func (e *fakeEncoder) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aborted = true
}

type fakeSink struct {
	calls    int
	data     string
	mime     string
	filename string
}

func (s *fakeSink) CreateObjectURL(r io.Reader, mime, filename string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.calls++
	s.data, s.mime, s.filename = string(b), mime, filename
	return "blob:test/" + filename, nil
}

func newTestCapturer(enc *fakeEncoder, factoryErr error) (*Capturer, *fakeSink, *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	sink := &fakeSink{}
	c := NewCapturer(&fakeSource{}, Selection{Codec: CodecTable[3]}, sink, Options{
		FrameRate: 30,
		Timeslice: 100 * time.Millisecond,
		Filename:  "Trip - story.avi",
		Clock:     clk,
		Factory: func(context.Context, Selection, EncoderOptions) (Encoder, error) {
			if factoryErr != nil {
				return nil, factoryErr
			}
			return enc, nil
		},
	})
	return c, sink, clk
}

func TestCapturer_StopJoinsChunksInOrder(t *testing.T) {
	enc := &fakeEncoder{}
	c, sink, clk := newTestCapturer(enc, nil)

	require.NoError(t, c.Start(context.Background()))
	clk.Advance(time.Second)
	res, err := c.Stop()
	require.NoError(t, err)

	var want strings.Builder
	for i := 1; i <= enc.flushes; i++ {
		fmt.Fprintf(&want, "c%d;", i)
	}
	want.WriteString("end")

	assert.Equal(t, want.String(), sink.data)
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, "video/x-msvideo", sink.mime)
	assert.Equal(t, "blob:test/Trip - story.avi", res.URL)
	assert.Equal(t, 31, res.Frames, "one frame per 1/30s plus the first")
	assert.Equal(t, enc.flushes+1, res.Chunks)
	assert.True(t, enc.closed)
}

func TestCapturer_InitFailureIsTyped(t *testing.T) {
	c, sink, _ := newTestCapturer(nil, errors.New("codec missing"))

	err := c.Start(context.Background())

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "avi/mjpeg", initErr.Codec)
	_, err = c.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)
	assert.Zero(t, sink.calls)
}

func TestCapturer_AbortDiscards(t *testing.T) {
	enc := &fakeEncoder{}
	c, sink, clk := newTestCapturer(enc, nil)

	require.NoError(t, c.Start(context.Background()))
	clk.Advance(500 * time.Millisecond)
	c.Abort()

	assert.True(t, enc.aborted)
	assert.False(t, enc.closed)
	assert.Zero(t, sink.calls)
	_, err := c.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)
	c.Abort()
}

func TestCapturer_EncoderErrorFailsStop(t *testing.T) {
	enc := &fakeEncoder{failWrite: errors.New("disk full")}
	c, sink, clk := newTestCapturer(enc, nil)

	require.NoError(t, c.Start(context.Background()))
	clk.Advance(200 * time.Millisecond)
	_, err := c.Stop()

	assert.ErrorContains(t, err, "disk full")
	assert.True(t, enc.aborted)
	assert.Zero(t, sink.calls)
}

func TestCapturer_CloseErrorAbortsEncoder(t *testing.T) {
	enc := &fakeEncoder{failClose: errors.New("broken pipe")}
	c, sink, clk := newTestCapturer(enc, nil)

	require.NoError(t, c.Start(context.Background()))
	clk.Advance(200 * time.Millisecond)
	_, err := c.Stop()

	assert.ErrorContains(t, err, "broken pipe")
	assert.True(t, enc.closed)
	assert.True(t, enc.aborted)
	assert.Zero(t, sink.calls)
}

func TestCapturer_StopWithoutStart(t *testing.T) {
	c, _, _ := newTestCapturer(&fakeEncoder{}, nil)

	_, err := c.Stop()

	assert.ErrorIs(t, err, ErrNotRecording)
}
