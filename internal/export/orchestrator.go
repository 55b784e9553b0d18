// Package export runs the video export of a trip: it paints every frame onto
// an in-memory canvas, records the canvas and publishes the recording.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"moodboard/internal/analytics"
	"moodboard/internal/capture"
	"moodboard/internal/clock"
	"moodboard/internal/jobs"
	"moodboard/internal/logging"
	"moodboard/internal/render"
	"moodboard/internal/sequence"
	"moodboard/internal/trip"
)

var (
	// ErrExportInProgress is returned by Start while a job is exporting.
	ErrExportInProgress = errors.New("export already in progress")
	// ErrUnexpected wraps a panic recovered while a job was running.
	ErrUnexpected = errors.New("unexpected export failure")
)

const (
	// InitFailedMessage is shown when the encoder cannot be brought up.
	InitFailedMessage = "Failed to initialize media recorder. Your system may not support this feature."
	// UnknownErrorMessage is shown when a failure carries no message of its own.
	UnknownErrorMessage = "Unknown error occurred"
)

// State is the orchestrator's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateExporting State = "exporting"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
)

// Callbacks receive job events on the export goroutine. The state has
// already left Exporting when OnComplete or OnError runs, so either may
// start the next job.
type Callbacks struct {
	OnProgress func(percent int)
	OnComplete func(res Result)
	OnError    func(message string)
}

// JobRecorder persists job state transitions.
type JobRecorder interface {
	RecordJob(ctx context.Context, j *jobs.Job) error
}

// Result is a finished export.
type Result struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	Codec    string `json:"codec"`
	Size     int    `json:"size"`
	Frames   int    `json:"frames"`
}

// Options configures an Orchestrator. Zero values take the defaults of
// config.DefaultSettings.
type Options struct {
	Width, Height int
	FrameRate     int
	Timeslice     time.Duration
	Quality       int
	TempDir       string
	Holds         sequence.Holds

	// Capabilities and Formats drive codec selection for each job.
	Capabilities capture.Capabilities
	Formats      []string

	Loader  render.ImageLoader
	Fonts   *render.Fonts
	Sink    capture.Sink
	Factory capture.EncoderFactory
	Clock   clock.Clock
	Rand    *rand.Rand

	// Observer, when set, sees every frame painted during a job.
	Observer render.Surface

	Recorder  JobRecorder
	Tracker   analytics.Tracker
	Callbacks Callbacks
	Logger    *slog.Logger
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State    State     `json:"state"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
	Result   *Result   `json:"result,omitempty"`
	Job      *jobs.Job `json:"job,omitempty"`
}

// Orchestrator owns the export state machine. One job runs at a time.
type Orchestrator struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	state    State
	progress int
	errMsg   string
	result   *Result
	job      *jobs.Job
	cancel   context.CancelFunc
	done     chan struct{}
}

// New returns an idle orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = render.DesignWidth, render.DesignHeight
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 30
	}
	if opts.Timeslice <= 0 {
		opts.Timeslice = 100 * time.Millisecond
	}
	if opts.Holds == (sequence.Holds{}) {
		opts.Holds = sequence.DefaultHolds()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Tracker == nil {
		opts.Tracker = analytics.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	done := make(chan struct{})
	close(done)
	return &Orchestrator{
		opts:  opts,
		log:   logging.WithComponent(opts.Logger, "export"),
		state: StateIdle,
		done:  done,
	}
}

// Status reports the current state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{State: o.state, Progress: o.progress, Error: o.errMsg}
	if o.result != nil {
		r := *o.result
		st.Result = &r
	}
	if o.job != nil {
		j := *o.job
		st.Job = &j
	}
	return st
}

// Estimate is the playback length of t at the configured holds.
func (o *Orchestrator) Estimate(t trip.Trip) time.Duration {
	return sequence.EstimateDuration(t, o.opts.Holds)
}

// Preview renders the idle card for t on a fresh canvas.
func (o *Orchestrator) Preview(ctx context.Context, t trip.Trip) (*image.RGBA, error) {
	canvas := render.NewCanvas(o.opts.Width, o.opts.Height)
	r := render.New(canvas, render.Options{
		Width:  o.opts.Width,
		Height: o.opts.Height,
		Clock:  o.opts.Clock,
		Loader: o.opts.Loader,
		Fonts:  o.opts.Fonts,
		Logger: o.log,
	})
	if err := r.RenderPreview(ctx, t, o.Estimate(t)); err != nil {
		return nil, err
	}
	return canvas.Snapshot(), nil
}

// Start begins exporting a snapshot of t in the background. It fails with
// ErrExportInProgress while another job is exporting; a finished or failed
// orchestrator starts afresh.
func (o *Orchestrator) Start(ctx context.Context, t trip.Trip) (*jobs.Job, error) {
	job, jobCtx, err := o.begin(ctx, t)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	view := *job
	o.mu.Unlock()
	snapshot := t.Clone()
	go func() {
		_, _ = o.run(jobCtx, job, snapshot)
	}()
	return &view, nil
}

// Export runs a job to the end on the calling goroutine.
func (o *Orchestrator) Export(ctx context.Context, t trip.Trip) (Result, error) {
	job, jobCtx, err := o.begin(ctx, t)
	if err != nil {
		return Result{}, err
	}
	return o.run(jobCtx, job, t.Clone())
}

// Cancel stops the running job. Pending holds return early, the recording
// is discarded and the orchestrator goes back to Idle without reporting
// completion or an error. It reports whether a job was running.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateExporting || o.cancel == nil {
		return false
	}
	// Cancelled under the lock so complete sees it before leaving Exporting.
	o.cancel()
	return true
}

// Wait blocks until the current job, if any, has finished.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	<-done
}

func (o *Orchestrator) begin(ctx context.Context, t trip.Trip) (*jobs.Job, context.Context, error) {
	if err := t.Validate(); err != nil {
		return nil, nil, err
	}

	o.mu.Lock()
	if o.state == StateExporting {
		o.mu.Unlock()
		return nil, nil, ErrExportInProgress
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := jobs.New(jobs.KindVideo, t.ID, t.Title, o.opts.Clock.Now())
	job.MarkStarted(o.opts.Clock.Now())

	o.state = StateExporting
	o.progress = 0
	o.errMsg = ""
	o.result = nil
	o.job = job
	o.cancel = cancel
	o.done = make(chan struct{})
	o.mu.Unlock()

	o.record(job)
	o.emitProgress(job, 0)
	o.opts.Tracker.Track(analytics.EventExportStarted, tripProps(t))
	return job, jobCtx, nil
}

func (o *Orchestrator) run(ctx context.Context, job *jobs.Job, t trip.Trip) (Result, error) {
	o.mu.Lock()
	done := o.done
	cancel := o.cancel
	o.mu.Unlock()
	defer close(done)
	defer cancel()

	log := logging.WithTripID(logging.WithJobID(o.log, job.ID), t.ID)
	log.Info("export started", "title", t.Title, "days", len(t.Days), "items", t.TotalItems())

	res, err := o.produce(ctx, log, job, t)
	if err == nil && o.complete(ctx, log, job, t, res) {
		return res, nil
	}
	if ctx.Err() != nil {
		o.discard(log, res.URL)
		o.cancelled(log, job, t)
		return Result{}, ctx.Err()
	}
	return Result{}, o.fail(log, job, t, err)
}

// produce records every frame of t and publishes the recording. A panic
// anywhere below is returned as ErrUnexpected with the capture aborted.
func (o *Orchestrator) produce(ctx context.Context, log *slog.Logger, job *jobs.Job, t trip.Trip) (res Result, err error) {
	var capturer *capture.Capturer
	defer func() {
		if r := recover(); r != nil {
			log.Error("export panicked", "panic", r, "stack", string(debug.Stack()))
			if capturer != nil {
				capturer.Abort()
			}
			res, err = Result{}, fmt.Errorf("%w: %v", ErrUnexpected, r)
		}
	}()

	sel, err := capture.SelectCodec(capture.CodecTable, o.opts.Capabilities, o.opts.Formats)
	if err != nil {
		return Result{}, &capture.InitError{Codec: "none", Err: err}
	}

	canvas := render.NewCanvas(o.opts.Width, o.opts.Height)
	var surface render.Surface = canvas
	if o.opts.Observer != nil {
		surface = tee{canvas, o.opts.Observer}
	}
	renderer := render.New(surface, render.Options{
		Width:  o.opts.Width,
		Height: o.opts.Height,
		Clock:  o.opts.Clock,
		Loader: o.opts.Loader,
		Fonts:  o.opts.Fonts,
		Rand:   o.opts.Rand,
		Logger: log,
	})
	capturer = capture.NewCapturer(canvas, sel, o.opts.Sink, capture.Options{
		FrameRate: o.opts.FrameRate,
		Timeslice: o.opts.Timeslice,
		Quality:   o.opts.Quality,
		TempDir:   o.opts.TempDir,
		Filename:  Filename(t.Title, sel.Codec.Ext),
		Clock:     o.opts.Clock,
		Factory:   o.opts.Factory,
		Logger:    log,
	})

	if err := capturer.Start(ctx); err != nil {
		return Result{}, err
	}

	seq := sequence.New(renderer, o.opts.Clock, o.opts.Holds, log)
	progress := func(percent int) { o.emitProgress(job, percent) }
	if err := seq.Run(ctx, t, progress); err != nil {
		capturer.Abort()
		return Result{}, err
	}

	rec, err := capturer.Stop()
	if err != nil {
		return Result{}, err
	}
	return Result{
		URL:      rec.URL,
		Filename: Filename(t.Title, rec.Ext),
		MIME:     rec.MIME,
		Codec:    rec.Codec,
		Size:     rec.Size,
		Frames:   rec.Frames,
	}, nil
}

// emitProgress reports percent for job unless a newer job has replaced it.
func (o *Orchestrator) emitProgress(job *jobs.Job, percent int) {
	o.mu.Lock()
	if o.job != job {
		o.mu.Unlock()
		return
	}
	if percent < o.progress {
		percent = o.progress
	}
	o.progress = percent
	job.SetProgress(percent)
	o.mu.Unlock()
	if o.opts.Callbacks.OnProgress != nil {
		o.opts.Callbacks.OnProgress(percent)
	}
}

// complete publishes res unless the job was cancelled first. The terminal
// 100 is settled together with the state change.
func (o *Orchestrator) complete(ctx context.Context, log *slog.Logger, job *jobs.Job, t trip.Trip, res Result) bool {
	o.mu.Lock()
	if ctx.Err() != nil {
		o.mu.Unlock()
		return false
	}
	job.MarkCompleted(o.opts.Clock.Now(), res.URL, res.Filename, res.Codec, int64(res.Size))
	o.state = StateComplete
	o.progress = 100
	o.result = &res
	o.mu.Unlock()

	o.record(job)
	log.Info("export completed", "codec", res.Codec, "bytes", res.Size, "frames", res.Frames, "url", res.URL)
	props := tripProps(t)
	props["codec"] = res.Codec
	props["bytes"] = res.Size
	o.opts.Tracker.Track(analytics.EventExportCompleted, props)

	if o.opts.Callbacks.OnComplete != nil {
		o.opts.Callbacks.OnComplete(res)
	}
	// The terminal 100 follows completion even when the last item already
	// reported 100, unless OnComplete started another job.
	o.mu.Lock()
	current := o.job == job
	o.mu.Unlock()
	if current && o.opts.Callbacks.OnProgress != nil {
		o.opts.Callbacks.OnProgress(100)
	}
	return true
}

// discard revokes a recording published by a job that was cancelled while
// it was being finalized.
func (o *Orchestrator) discard(log *slog.Logger, url string) {
	if url == "" {
		return
	}
	r, ok := o.opts.Sink.(interface{ RevokeObjectURL(string) error })
	if !ok {
		return
	}
	if err := r.RevokeObjectURL(url); err != nil {
		log.Warn("failed to revoke cancelled recording", "url", url, "error", err)
	}
}

func (o *Orchestrator) fail(log *slog.Logger, job *jobs.Job, t trip.Trip, err error) error {
	msg := Message(err)

	o.mu.Lock()
	job.MarkFailed(o.opts.Clock.Now(), msg)
	o.state = StateFailed
	o.errMsg = msg
	o.mu.Unlock()

	o.record(job)
	log.Error("export failed", "error", err)
	props := tripProps(t)
	props["error"] = msg
	o.opts.Tracker.Track(analytics.EventExportFailed, props)

	if o.opts.Callbacks.OnError != nil {
		o.opts.Callbacks.OnError(msg)
	}
	return err
}

func (o *Orchestrator) cancelled(log *slog.Logger, job *jobs.Job, t trip.Trip) {
	o.mu.Lock()
	job.MarkCancelled(o.opts.Clock.Now())
	o.state = StateIdle
	o.progress = 0
	o.mu.Unlock()

	o.record(job)
	log.Info("export cancelled")
	o.opts.Tracker.Track(analytics.EventExportCancelled, tripProps(t))
}

func (o *Orchestrator) record(job *jobs.Job) {
	if o.opts.Recorder == nil {
		return
	}
	o.mu.Lock()
	snapshot := *job
	o.mu.Unlock()
	// Recording must outlive a cancelled job context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.opts.Recorder.RecordJob(ctx, &snapshot); err != nil {
		o.log.Warn("failed to record export job", "job_id", job.ID, "error", err)
	}
}

// Message maps an export error to the text shown to the user.
func Message(err error) string {
	var initErr *capture.InitError
	switch {
	case err == nil, errors.Is(err, ErrUnexpected):
		return UnknownErrorMessage
	case errors.As(err, &initErr):
		return InitFailedMessage
	case strings.TrimSpace(err.Error()) == "":
		return UnknownErrorMessage
	default:
		return err.Error()
	}
}

// Filename is the suggested download name "{title} - story.{ext}".
func Filename(title, ext string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf("%s - story.%s", title, ext)
}

func tripProps(t trip.Trip) map[string]any {
	return map[string]any{
		"days":  len(t.Days),
		"items": t.TotalItems(),
	}
}

// tee paints to the recorded canvas first, then to an observer.
type tee struct {
	canvas   render.Surface
	observer render.Surface
}

func (t tee) Paint(f render.Frame) error {
	if err := t.canvas.Paint(f); err != nil {
		return err
	}
	return t.observer.Paint(f)
}
