package analytics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/posthog/posthog-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	posthog.Client
	captured []posthog.Capture
	closed   int
}

func (f *fakeClient) Enqueue(m posthog.Message) error {
	if c, ok := m.(posthog.Capture); ok {
		f.captured = append(f.captured, c)
	}
	return nil
}

func (f *fakeClient) Close() error {
	f.closed++
	return nil
}

func TestNew_WithoutKeyIsNoop(t *testing.T) {
	tr := New("", "", "id", nil)
	assert.IsType(t, Noop{}, tr)
	tr.Track(EventExportStarted, nil)
	assert.NoError(t, tr.Close())
}

func TestPostHog_Track(t *testing.T) {
	fc := &fakeClient{}
	tr := NewWithClient(fc, "install-1", nil)

	tr.Track(EventExportCompleted, map[string]any{"items": 3, "codec": "mp4/h264"})
	require.Len(t, fc.captured, 1)
	c := fc.captured[0]
	assert.Equal(t, "install-1", c.DistinctId)
	assert.Equal(t, EventExportCompleted, c.Event)
	assert.Equal(t, 3, c.Properties["items"])
	assert.Equal(t, "mp4/h264", c.Properties["codec"])
	assert.Contains(t, c.Properties, "os")

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, fc.closed)
}

func TestInstallID_Stable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, err := InstallID(dir)
	require.NoError(t, err)
	second, err := InstallID(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "install-id"), []byte("garbage"), 0644))
	third, err := InstallID(dir)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}
