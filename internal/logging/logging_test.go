package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNew_JSONCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := WithJobID(WithComponent(New(&buf, "info", "json"), "export"), "job-1")

	logger.Info("export started")
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, `"component":"export"`)
	assert.Contains(t, out, `"job_id":"job-1"`)
	assert.NotContains(t, out, "hidden")
}

func TestSanitizeSrc(t *testing.T) {
	assert.Equal(t, "data:image/png;base64,<inline>", SanitizeSrc("data:image/png;base64,iVBORw0KGgo="))
	assert.Equal(t, "https://x/y.jpg", SanitizeSrc("https://x/y.jpg"))
}
