package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of an export job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExporting Status = "exporting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Kind distinguishes video exports from storyboard exports.
type Kind string

const (
	KindVideo      Kind = "video"
	KindStoryboard Kind = "storyboard"
)

// Job is one export attempt for a trip.
type Job struct {
	ID          string    `json:"id"`
	TripID      string    `json:"tripId"`
	TripTitle   string    `json:"tripTitle"`
	Kind        Kind      `json:"kind"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	Codec       string    `json:"codec,omitempty"`
	OutputURL   string    `json:"outputUrl,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	Size        int64     `json:"size,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// New creates a pending job for the given trip.
func New(kind Kind, tripID, title string, now time.Time) *Job {
	return &Job{
		ID:        uuid.NewString(),
		TripID:    tripID,
		TripTitle: title,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: now,
	}
}

// SetProgress clamps percent into [0,100]. Progress never moves backwards.
func (j *Job) SetProgress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent > j.Progress {
		j.Progress = percent
	}
}

func (j *Job) MarkStarted(now time.Time) {
	j.StartedAt = now
	j.Status = StatusExporting
}

// MarkCompleted records the published output.
func (j *Job) MarkCompleted(now time.Time, url, filename, codec string, size int64) {
	j.CompletedAt = now
	j.Status = StatusCompleted
	j.OutputURL = url
	j.Filename = filename
	j.Codec = codec
	j.Size = size
	j.Progress = 100
}

func (j *Job) MarkFailed(now time.Time, msg string) {
	j.CompletedAt = now
	j.Status = StatusFailed
	j.Error = msg
}

func (j *Job) MarkCancelled(now time.Time) {
	j.CompletedAt = now
	j.Status = StatusCancelled
}

// Duration is the wall time between start and completion, zero while running.
func (j *Job) Duration() time.Duration {
	if j.StartedAt.IsZero() || j.CompletedAt.IsZero() {
		return 0
	}
	return j.CompletedAt.Sub(j.StartedAt)
}

func (j *Job) String() string {
	return fmt.Sprintf("%s %s [%s %d%%]", j.Kind, j.ID, j.Status, j.Progress)
}
