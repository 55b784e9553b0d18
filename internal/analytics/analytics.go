// Package analytics reports export lifecycle events to PostHog.
package analytics

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"

	"moodboard/internal/logging"
)

const (
	EventExportStarted   = "export_started"
	EventExportCompleted = "export_completed"
	EventExportFailed    = "export_failed"
	EventExportCancelled = "export_cancelled"
)

// Tracker records product events.
type Tracker interface {
	Track(event string, props map[string]any)
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Track(string, map[string]any) {}
func (Noop) Close() error                 { return nil }

// PostHog sends events through a posthog client.
type PostHog struct {
	client     posthog.Client
	distinctID string
	logger     *slog.Logger

	closeOnce sync.Once
}

// New returns a PostHog tracker, or Noop when key is empty or the client
// cannot be created.
func New(key, host, distinctID string, logger *slog.Logger) Tracker {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.WithComponent(logger, "analytics")
	if key == "" {
		return Noop{}
	}
	client, err := posthog.NewWithConfig(key, posthog.Config{Endpoint: host})
	if err != nil {
		logger.Warn("failed to initialize posthog", "error", err)
		return Noop{}
	}
	return NewWithClient(client, distinctID, logger)
}

// NewWithClient wraps an existing client.
func NewWithClient(client posthog.Client, distinctID string, logger *slog.Logger) *PostHog {
	if distinctID == "" {
		distinctID = "anonymous"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &PostHog{client: client, distinctID: distinctID, logger: logger}
}

func (p *PostHog) Track(event string, props map[string]any) {
	properties := posthog.NewProperties().
		Set("os", runtime.GOOS).
		Set("arch", runtime.GOARCH)
	for k, v := range props {
		properties.Set(k, v)
	}
	err := p.client.Enqueue(posthog.Capture{
		DistinctId: p.distinctID,
		Event:      event,
		Properties: properties,
	})
	if err != nil {
		p.logger.Debug("failed to enqueue event", "event", event, "error", err)
	}
}

func (p *PostHog) Close() error {
	var err error
	p.closeOnce.Do(func() { err = p.client.Close() })
	return err
}

// InstallID returns a stable anonymous identifier persisted in dir.
func InstallID(dir string) (string, error) {
	path := filepath.Join(dir, "install-id")
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); uuid.Validate(id) == nil {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read install id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0644); err != nil {
		return "", fmt.Errorf("failed to write install id: %w", err)
	}
	return id, nil
}
