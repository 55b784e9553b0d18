package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"moodboard/internal/clock"
	"moodboard/internal/logging"
)

// ErrNotRecording is returned by Stop when Start has not succeeded.
var ErrNotRecording = errors.New("capturer is not recording")

// InitError means the encoder could not be brought up. The environment
// lacks support for the chosen output rather than the export itself failing.
type InitError struct {
	Codec string
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("failed to initialize %s encoder: %v", e.Codec, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Source is a surface the capturer can sample.
type Source interface {
	Bounds() image.Rectangle
	ReadInto(dst *image.RGBA) uint64
}

// Sink stores a finished recording and returns a URL for it.
type Sink interface {
	CreateObjectURL(r io.Reader, mime, filename string) (string, error)
}

// Options configures a Capturer.
type Options struct {
	FrameRate int
	Timeslice time.Duration
	Quality   int
	TempDir   string
	// Filename is the suggested download name of the result.
	Filename string
	Clock    clock.Clock
	Factory  EncoderFactory
	Logger   *slog.Logger
}

// Result describes a finished recording.
type Result struct {
	URL    string
	MIME   string
	Ext    string
	Codec  string
	Size   int
	Chunks int
	Frames int
}

type state int

const (
	stateIdle state = iota
	stateRecording
	stateStopped
	stateAborted
)

// Capturer records a Source. It is single use: Start, then Stop or Abort.
type Capturer struct {
	src  Source
	sel  Selection
	sink Sink
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	state   state
	enc     Encoder
	chunks  [][]byte
	err     error
	frames  int
	started time.Time
	sample  *image.RGBA

	stop chan struct{}
	done chan struct{}
}

// NewCapturer returns a capturer for src producing sel's codec.
func NewCapturer(src Source, sel Selection, sink Sink, opts Options) *Capturer {
	if opts.FrameRate <= 0 {
		opts.FrameRate = 30
	}
	if opts.Timeslice <= 0 {
		opts.Timeslice = 100 * time.Millisecond
	}
	if opts.Quality <= 0 {
		opts.Quality = 85
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Factory == nil {
		opts.Factory = NewEncoder
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Capturer{
		src:  src,
		sel:  sel,
		sink: sink,
		opts: opts,
		log:  logging.WithComponent(opts.Logger, "capture"),
	}
}

// Codec returns the codec being recorded.
func (c *Capturer) Codec() Codec { return c.sel.Codec }

// Start brings up the encoder and begins sampling at the frame rate,
// flushing encoded chunks every timeslice. Encoder failures are *InitError.
func (c *Capturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		return errors.New("capturer already started")
	}

	b := c.src.Bounds()
	enc, err := c.opts.Factory(ctx, c.sel, EncoderOptions{
		Width:     b.Dx(),
		Height:    b.Dy(),
		FrameRate: c.opts.FrameRate,
		Quality:   c.opts.Quality,
		TempDir:   c.opts.TempDir,
	})
	if err != nil {
		return &InitError{Codec: c.sel.Codec.ID, Err: err}
	}

	c.enc = enc
	c.sample = image.NewRGBA(b)
	c.started = c.opts.Clock.Now()
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.state = stateRecording

	frameTicks, stopFrames := c.opts.Clock.Ticker(time.Second / time.Duration(c.opts.FrameRate))
	sliceTicks, stopSlices := c.opts.Clock.Ticker(c.opts.Timeslice)

	c.log.Info("capture started", "codec", c.sel.Codec.ID, "fps", c.opts.FrameRate, "timeslice", c.opts.Timeslice)

	// The first sample goes in before any tick so the recording never starts empty.
	c.captureLocked()

	go c.loop(frameTicks, sliceTicks, func() {
		stopFrames()
		stopSlices()
	})
	return nil
}

func (c *Capturer) loop(frameTicks, sliceTicks <-chan time.Time, stopTickers func()) {
	defer close(c.done)
	defer stopTickers()
	for {
		select {
		case <-c.stop:
			return
		case <-frameTicks:
			c.mu.Lock()
			c.captureLocked()
			c.mu.Unlock()
		case <-sliceTicks:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		}
	}
}

// captureLocked writes as many copies of the current canvas as the elapsed
// time calls for, so dropped ticks do not shorten the recording.
func (c *Capturer) captureLocked() {
	if c.err != nil {
		return
	}
	elapsed := c.opts.Clock.Now().Sub(c.started)
	due := int(elapsed*time.Duration(c.opts.FrameRate)/time.Second) + 1
	if due <= c.frames {
		return
	}
	version := c.src.ReadInto(c.sample)
	for c.frames < due {
		if err := c.enc.WriteFrame(c.sample, version); err != nil {
			c.err = err
			return
		}
		c.frames++
	}
}

func (c *Capturer) flushLocked() {
	if c.err != nil {
		return
	}
	chunk, err := c.enc.Flush()
	if err != nil {
		c.err = err
		return
	}
	if len(chunk) > 0 {
		c.chunks = append(c.chunks, chunk)
	}
}

func (c *Capturer) halt() {
	close(c.stop)
	<-c.done
}

// Stop takes a last sample, finalizes the encoder, joins every chunk in
// arrival order and publishes the result to the sink.
func (c *Capturer) Stop() (Result, error) {
	c.mu.Lock()
	if c.state != stateRecording {
		c.mu.Unlock()
		return Result{}, ErrNotRecording
	}
	c.state = stateStopped
	c.mu.Unlock()

	c.halt()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.captureLocked()
	c.flushLocked()
	if c.err != nil {
		c.enc.Abort()
		c.chunks = nil
		return Result{}, fmt.Errorf("capture failed: %w", c.err)
	}
	tail, err := c.enc.Close()
	if err != nil {
		c.enc.Abort()
		c.chunks = nil
		return Result{}, fmt.Errorf("failed to finalize recording: %w", err)
	}
	if len(tail) > 0 {
		c.chunks = append(c.chunks, tail)
	}

	readers := make([]io.Reader, len(c.chunks))
	size := 0
	for i, chunk := range c.chunks {
		readers[i] = bytes.NewReader(chunk)
		size += len(chunk)
	}
	url, err := c.sink.CreateObjectURL(io.MultiReader(readers...), c.sel.Codec.MIME, c.opts.Filename)
	if err != nil {
		return Result{}, fmt.Errorf("failed to store recording: %w", err)
	}
	res := Result{
		URL:    url,
		MIME:   c.sel.Codec.MIME,
		Ext:    c.sel.Codec.Ext,
		Codec:  c.sel.Codec.ID,
		Size:   size,
		Chunks: len(c.chunks),
		Frames: c.frames,
	}
	c.chunks = nil
	c.log.Info("capture finished", "codec", res.Codec, "frames", res.Frames, "chunks", res.Chunks, "bytes", res.Size)
	return res, nil
}

// Abort stops sampling and discards everything recorded. Safe to call in
// any state.
func (c *Capturer) Abort() {
	c.mu.Lock()
	if c.state != stateRecording {
		c.state = stateAborted
		c.mu.Unlock()
		return
	}
	c.state = stateAborted
	c.mu.Unlock()

	c.halt()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.enc.Abort()
	c.chunks = nil
	c.log.Info("capture aborted", "codec", c.sel.Codec.ID, "frames", c.frames)
}
