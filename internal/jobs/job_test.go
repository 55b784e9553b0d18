package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobLifecycle(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	j := New(KindVideo, "trip-1", "Tokyo", now)
	assert.Equal(t, StatusPending, j.Status)
	assert.NotEmpty(t, j.ID)

	j.MarkStarted(now)
	assert.Equal(t, StatusExporting, j.Status)
	assert.False(t, j.Status.Terminal())

	j.SetProgress(40)
	j.SetProgress(20)
	assert.Equal(t, 40, j.Progress)
	j.SetProgress(250)
	assert.Equal(t, 100, j.Progress)

	j.MarkCompleted(now.Add(12*time.Second), "http://x/blobs/1", "Tokyo - story.mp4", "mp4/h264", 42)
	assert.True(t, j.Status.Terminal())
	assert.Equal(t, 12*time.Second, j.Duration())
	assert.Equal(t, int64(42), j.Size)
}

func TestJobFailureAndCancel(t *testing.T) {
	now := time.Now()
	j := New(KindStoryboard, "t", "x", now)
	assert.Zero(t, j.Duration())
	j.MarkStarted(now)
	j.MarkFailed(now, "boom")
	assert.Equal(t, StatusFailed, j.Status)
	assert.Equal(t, "boom", j.Error)

	c := New(KindVideo, "t", "x", now)
	c.MarkCancelled(now)
	assert.Equal(t, StatusCancelled, c.Status)
	assert.Contains(t, c.String(), "cancelled")
}
