package export_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodboard/internal/capture"
	"moodboard/internal/clock"
	"moodboard/internal/export"
	"moodboard/internal/jobs"
	"moodboard/internal/render"
	"moodboard/internal/render/rendertest"
	"moodboard/internal/trip"
)

type fakeLoader struct {
	block   bool
	started chan struct{}
	once    sync.Once
}

func (l *fakeLoader) Load(ctx context.Context, src string) (image.Image, error) {
	if l.block {
		l.once.Do(func() { close(l.started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if src == "panic.jpg" {
		panic("decoder exploded")
	}
	if src == "bad.jpg" {
		return nil, errors.New("404 not found")
	}
	return image.NewRGBA(image.Rect(0, 0, 40, 30)), nil
}

// fakeEncoder tags every chunk with the run it belongs to.
type fakeEncoder struct {
	run     int
	mu      sync.Mutex
	flushes int
	aborted bool
	// closing and gate, when set, hold Close until gate is closed.
	closing chan struct{}
	gate    chan struct{}
}

func (e *fakeEncoder) WriteFrame(*image.RGBA, uint64) error { return nil }

func (e *fakeEncoder) Flush() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushes++
	return []byte(fmt.Sprintf("run%d-c%d;", e.run, e.flushes)), nil
}

func (e *fakeEncoder) Close() ([]byte, error) {
	if e.closing != nil {
		close(e.closing)
		<-e.gate
	}
	return []byte(fmt.Sprintf("run%d-end", e.run)), nil
}

func (e *fakeEncoder) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aborted = true
}

type encoders struct {
	mu      sync.Mutex
	all     []*fakeEncoder
	fail    error
	closing chan struct{}
	gate    chan struct{}
}

func (f *encoders) factory(context.Context, capture.Selection, capture.EncoderOptions) (capture.Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	e := &fakeEncoder{run: len(f.all) + 1, closing: f.closing, gate: f.gate}
	f.all = append(f.all, e)
	return e, nil
}

func (f *encoders) last() *fakeEncoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.all[len(f.all)-1]
}

type fakeSink struct {
	mu      sync.Mutex
	blobs   []string
	revoked []string
}

func (s *fakeSink) CreateObjectURL(r io.Reader, mime, filename string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = append(s.blobs, string(b))
	return fmt.Sprintf("http://127.0.0.1/blobs/%d", len(s.blobs)), nil
}

func (s *fakeSink) RevokeObjectURL(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked = append(s.revoked, url)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

type jobLog struct {
	mu       sync.Mutex
	statuses []jobs.Status
}

func (l *jobLog) RecordJob(_ context.Context, j *jobs.Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, j.Status)
	return nil
}

// events records callbacks in the order they fire.
type events struct {
	mu       sync.Mutex
	log      []string
	progress []int
	results  []export.Result
	errors   []string
}

func (e *events) callbacks() export.Callbacks {
	return export.Callbacks{
		OnProgress: func(p int) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.progress = append(e.progress, p)
			e.log = append(e.log, fmt.Sprintf("progress:%d", p))
		},
		OnComplete: func(r export.Result) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.results = append(e.results, r)
			e.log = append(e.log, "complete")
		},
		OnError: func(msg string) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.errors = append(e.errors, msg)
			e.log = append(e.log, "error")
		},
	}
}

type harness struct {
	orch     *export.Orchestrator
	frames   *rendertest.Recorder
	encoders *encoders
	sink     *fakeSink
	events   *events
	jobs     *jobLog
	clock    *clock.Fake
}

func newHarness(t *testing.T, loader render.ImageLoader, mutate func(*export.Options)) *harness {
	t.Helper()
	h := &harness{
		frames:   &rendertest.Recorder{},
		encoders: &encoders{},
		sink:     &fakeSink{},
		events:   &events{},
		jobs:     &jobLog{},
		clock:    clock.NewFake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
	}
	opts := export.Options{
		Width:     160,
		Height:    90,
		Loader:    loader,
		Sink:      h.sink,
		Factory:   h.encoders.factory,
		Clock:     h.clock,
		Rand:      rand.New(rand.NewPCG(7, 9)),
		Observer:  h.frames,
		Recorder:  h.jobs,
		Callbacks: h.events.callbacks(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.orch = export.New(opts)
	return h
}

func item(id, src, ts string) trip.MediaItem {
	return trip.MediaItem{ID: id, Src: src, Type: trip.MediaImage, Timestamp: ts}
}

func scenarioTrip() trip.Trip {
	return trip.Trip{
		ID:    "trip-1",
		Title: "Lisbon",
		Days: []trip.Day{
			{Date: "2024-05-01", Items: []trip.MediaItem{{ID: "a", Src: "a.jpg", Type: trip.MediaImage, Caption: "Hello"}}},
			{Date: "2024-05-02"},
		},
	}
}

func TestExport_TwoDayScenario(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, nil)
	tr := scenarioTrip()

	assert.Equal(t, 12*time.Second, h.orch.Estimate(tr))

	res, err := h.orch.Export(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, []render.Kind{render.KindDayTitle, render.KindMedia, render.KindDayTitle, render.KindEnding}, h.frames.Kinds())
	assert.Equal(t, []string{"progress:0", "progress:100", "complete", "progress:100"}, h.events.log)
	assert.Equal(t, "Lisbon - story.avi", res.Filename)
	assert.Equal(t, "avi/mjpeg", res.Codec)
	assert.Equal(t, "http://127.0.0.1/blobs/1", res.URL)

	st := h.orch.Status()
	assert.Equal(t, export.StateComplete, st.State)
	assert.Equal(t, 100, st.Progress)
	require.NotNil(t, st.Result)
	require.NotNil(t, st.Job)
	assert.Equal(t, jobs.StatusCompleted, st.Job.Status)
	assert.Equal(t, []jobs.Status{jobs.StatusExporting, jobs.StatusCompleted}, h.jobs.statuses)
}

func TestExport_ProgressIsMonotonicAndEndsAt100(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, nil)
	tr := trip.Trip{
		Title: "Three",
		Days: []trip.Day{
			{Date: "2024-01-01", Items: []trip.MediaItem{item("a", "a.jpg", ""), item("b", "b.jpg", "")}},
			{Date: "2024-01-02", Items: []trip.MediaItem{item("c", "c.jpg", "")}},
		},
	}

	_, err := h.orch.Export(context.Background(), tr)
	require.NoError(t, err)

	p := h.events.progress
	require.NotEmpty(t, p)
	for i := 1; i < len(p); i++ {
		assert.GreaterOrEqual(t, p[i], p[i-1], "progress went backwards at %d: %v", i, p)
	}
	assert.Equal(t, []int{0, 33, 66, 100, 100}, p)
}

func TestExport_BadImageStillCompletes(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, nil)
	tr := trip.Trip{
		Title: "Broken",
		Days: []trip.Day{{Date: "2024-01-01", Items: []trip.MediaItem{
			item("ok", "a.jpg", ""),
			item("bad", "bad.jpg", ""),
		}}},
	}

	_, err := h.orch.Export(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, export.StateComplete, h.orch.Status().State)
	assert.Empty(t, h.events.errors)
	assert.Equal(t, []render.Kind{render.KindDayTitle, render.KindMedia, render.KindMediaError, render.KindEnding}, h.frames.Kinds())
}

func TestExport_RestartProducesFreshOutput(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, nil)
	tr := scenarioTrip()

	first, err := h.orch.Export(context.Background(), tr)
	require.NoError(t, err)
	second, err := h.orch.Export(context.Background(), tr)
	require.NoError(t, err)

	assert.NotEqual(t, first.URL, second.URL)
	require.Equal(t, 2, h.sink.count())
	assert.Contains(t, h.sink.blobs[0], "run1-")
	assert.NotContains(t, h.sink.blobs[1], "run1-")
	assert.Contains(t, h.sink.blobs[1], "run2-end")

	// The second run starts back at zero.
	assert.Equal(t, []int{0, 100, 100, 0, 100, 100}, h.events.progress)
}

func TestStart_RejectsWhileExportingAndCancel(t *testing.T) {
	loader := &fakeLoader{block: true, started: make(chan struct{})}
	h := newHarness(t, loader, nil)
	tr := scenarioTrip()

	job, err := h.orch.Start(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusExporting, job.Status)

	select {
	case <-loader.started:
	case <-time.After(5 * time.Second):
		t.Fatal("export never reached the media item")
	}

	assert.Equal(t, export.StateExporting, h.orch.Status().State)
	_, err = h.orch.Start(context.Background(), tr)
	assert.ErrorIs(t, err, export.ErrExportInProgress)

	assert.True(t, h.orch.Cancel())
	h.orch.Wait()

	st := h.orch.Status()
	assert.Equal(t, export.StateIdle, st.State)
	assert.Equal(t, jobs.StatusCancelled, st.Job.Status)
	assert.Empty(t, h.events.results)
	assert.Empty(t, h.events.errors)
	assert.Zero(t, h.sink.count())
	assert.True(t, h.encoders.last().aborted)
	assert.False(t, h.orch.Cancel())
}

func TestStart_FromOnCompleteOwnsProgress(t *testing.T) {
	loader := &fakeLoader{block: true, started: make(chan struct{})}
	next := scenarioTrip()
	next.ID = "trip-2"

	var h *harness
	var second *jobs.Job
	var secondErr error
	h = newHarness(t, loader, func(o *export.Options) {
		onComplete := o.Callbacks.OnComplete
		o.Callbacks.OnComplete = func(r export.Result) {
			onComplete(r)
			second, secondErr = h.orch.Start(context.Background(), next)
		}
	})

	quiet := trip.Trip{ID: "trip-1", Title: "Quiet", Days: []trip.Day{{Date: "2024-05-01"}}}
	_, err := h.orch.Export(context.Background(), quiet)
	require.NoError(t, err)
	require.NoError(t, secondErr)

	select {
	case <-loader.started:
	case <-time.After(5 * time.Second):
		t.Fatal("second export never reached the media item")
	}

	st := h.orch.Status()
	assert.Equal(t, export.StateExporting, st.State)
	assert.Equal(t, 0, st.Progress)
	require.NotNil(t, st.Job)
	assert.Equal(t, second.ID, st.Job.ID)
	assert.Equal(t, []string{"progress:0", "complete", "progress:0"}, h.events.log)

	assert.True(t, h.orch.Cancel())
	h.orch.Wait()
}

func TestCancel_WhileFinalizingDiscardsRecording(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, nil)
	h.encoders.closing = make(chan struct{})
	h.encoders.gate = make(chan struct{})

	_, err := h.orch.Start(context.Background(), scenarioTrip())
	require.NoError(t, err)

	select {
	case <-h.encoders.closing:
	case <-time.After(5 * time.Second):
		t.Fatal("recording never reached finalization")
	}
	assert.True(t, h.orch.Cancel())
	close(h.encoders.gate)
	h.orch.Wait()

	st := h.orch.Status()
	assert.Equal(t, export.StateIdle, st.State)
	assert.Equal(t, 0, st.Progress)
	assert.Equal(t, jobs.StatusCancelled, st.Job.Status)
	assert.Nil(t, st.Result)
	assert.Empty(t, h.events.results)
	assert.Empty(t, h.events.errors)
	assert.Equal(t, []string{"progress:0", "progress:100"}, h.events.log)
	assert.Equal(t, []string{"http://127.0.0.1/blobs/1"}, h.sink.revoked)
	assert.Equal(t, []jobs.Status{jobs.StatusExporting, jobs.StatusCancelled}, h.jobs.statuses)
}

func TestExport_PanicFailsAndAllowsRestart(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, nil)
	tr := scenarioTrip()
	tr.Days[0].Items[0].Src = "panic.jpg"

	_, err := h.orch.Export(context.Background(), tr)
	assert.ErrorIs(t, err, export.ErrUnexpected)

	st := h.orch.Status()
	assert.Equal(t, export.StateFailed, st.State)
	assert.Equal(t, export.UnknownErrorMessage, st.Error)
	assert.Equal(t, []string{export.UnknownErrorMessage}, h.events.errors)
	assert.True(t, h.encoders.last().aborted)
	assert.Zero(t, h.sink.count())

	_, err = h.orch.Export(context.Background(), scenarioTrip())
	require.NoError(t, err)
	assert.Equal(t, export.StateComplete, h.orch.Status().State)
}

func TestExport_UntitledTrip(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, nil)
	tr := scenarioTrip()
	tr.Title = ""

	res, err := h.orch.Export(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, "Untitled - story.avi", res.Filename)
}

func TestExport_NoSupportedEncoding(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, func(o *export.Options) {
		o.Capabilities = capture.Capabilities{NoNative: true}
	})

	_, err := h.orch.Export(context.Background(), scenarioTrip())
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.ErrNoSupportedEncoding)

	st := h.orch.Status()
	assert.Equal(t, export.StateFailed, st.State)
	assert.Equal(t, export.InitFailedMessage, st.Error)
	assert.Equal(t, []string{export.InitFailedMessage}, h.events.errors)
	assert.Empty(t, h.frames.All())
}

func TestExport_EncoderInitFailure(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, nil)
	h.encoders.fail = errors.New("ffmpeg exited")

	_, err := h.orch.Export(context.Background(), scenarioTrip())
	var initErr *capture.InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, []string{export.InitFailedMessage}, h.events.errors)

	// A failed orchestrator accepts a new job.
	h.encoders.fail = nil
	_, err = h.orch.Export(context.Background(), scenarioTrip())
	require.NoError(t, err)
	assert.Equal(t, export.StateComplete, h.orch.Status().State)
	assert.Empty(t, h.orch.Status().Error)
}

func TestExport_SurfaceFailureIsFatal(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, nil)
	h.frames.Err = errors.New("surface lost")

	_, err := h.orch.Export(context.Background(), scenarioTrip())
	require.Error(t, err)

	assert.Equal(t, export.StateFailed, h.orch.Status().State)
	require.Len(t, h.events.errors, 1)
	assert.Contains(t, h.events.errors[0], "surface lost")
	assert.True(t, h.encoders.last().aborted)
	assert.Zero(t, h.sink.count())
	assert.Equal(t, []jobs.Status{jobs.StatusExporting, jobs.StatusFailed}, h.jobs.statuses)
}

func TestExport_InvalidTrip(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, nil)
	tr := scenarioTrip()
	tr.Days[0].Items[0].Type = "audio"
	_, err := h.orch.Export(context.Background(), tr)
	assert.ErrorIs(t, err, trip.ErrValidation)
	assert.Equal(t, export.StateIdle, h.orch.Status().State)
}

func TestPreview_DoesNotTouchJobState(t *testing.T) {
	h := newHarness(t, &fakeLoader{}, nil)
	img, err := h.orch.Preview(context.Background(), scenarioTrip())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 160, 90), img.Bounds())
	assert.Empty(t, h.frames.All())
	assert.Equal(t, export.StateIdle, h.orch.Status().State)
	assert.Zero(t, h.sink.count())
}

func TestMessage(t *testing.T) {
	assert.Equal(t, export.InitFailedMessage, export.Message(&capture.InitError{Codec: "mp4/h264", Err: errors.New("x")}))
	assert.Equal(t, "boom", export.Message(errors.New("boom")))
	assert.Equal(t, export.UnknownErrorMessage, export.Message(errors.New("  ")))
	assert.Equal(t, export.UnknownErrorMessage, export.Message(nil))
	assert.Equal(t, export.UnknownErrorMessage, export.Message(fmt.Errorf("%w: nil map", export.ErrUnexpected)))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "Tokyo 2024 - story.mp4", export.Filename("Tokyo 2024", "mp4"))
	assert.Equal(t, "Untitled - story.webm", export.Filename("  ", "webm"))
}
