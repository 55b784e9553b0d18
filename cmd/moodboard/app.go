package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"moodboard/internal/analytics"
	"moodboard/internal/blobstore"
	"moodboard/internal/capture"
	"moodboard/internal/config"
	"moodboard/internal/export"
	"moodboard/internal/logging"
	"moodboard/internal/media"
	"moodboard/internal/render"
	"moodboard/internal/sequence"
	"moodboard/internal/store"
	"moodboard/internal/storyboard"
)

// App holds the long-lived services shared by every subcommand.
type App struct {
	settings *config.Settings
	logger   *slog.Logger
	store    *store.Store
	blobs    *blobstore.Store
	fonts    *render.Fonts
	tracker  analytics.Tracker
}

func NewApp(settings *config.Settings, logger *slog.Logger) (*App, error) {
	for _, dir := range []string{settings.DataDir, filepath.Join(settings.DataDir, "tmp")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	st, err := store.Open(settings.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	blobs, err := blobstore.New(filepath.Join(settings.DataDir, "blobs"), "")
	if err != nil {
		st.Close()
		return nil, err
	}

	fonts, err := render.LoadFonts(settings.FontPath)
	if err != nil {
		logger.Warn("failed to load emoji font, emoji stickers fall back to pills", "path", logging.SanitizePath(settings.FontPath), "error", err)
		fonts = render.MustDefaultFonts()
	}

	var tracker analytics.Tracker = analytics.Noop{}
	if settings.PostHogKey != "" {
		installID, err := analytics.InstallID(settings.DataDir)
		if err != nil {
			logger.Warn("failed to resolve install id", "error", err)
		}
		tracker = analytics.New(settings.PostHogKey, settings.PostHogHost, installID, logger)
	}

	return &App{
		settings: settings,
		logger:   logger,
		store:    st,
		blobs:    blobs,
		fonts:    fonts,
		tracker:  tracker,
	}, nil
}

func (a *App) Close() {
	if err := a.tracker.Close(); err != nil {
		a.logger.Debug("failed to flush analytics", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

func (a *App) holds() sequence.Holds {
	return sequence.Holds{
		DayTitle: time.Duration(a.settings.DayTitleHoldMs) * time.Millisecond,
		Item:     time.Duration(a.settings.ItemHoldMs) * time.Millisecond,
		Ending:   time.Duration(a.settings.EndingHoldMs) * time.Millisecond,
	}
}

// loader resolves relative media paths against baseDir.
func (a *App) loader(baseDir string) (*media.Loader, error) {
	return media.NewLoader(media.Options{
		BaseDir:   baseDir,
		Timeout:   a.settings.LoadTimeout(),
		CacheSize: a.settings.ImageCacheSize,
		Logger:    a.logger,
	})
}

// videoExporter probes the encoders available on this machine and builds
// an orchestrator around them.
func (a *App) videoExporter(ctx context.Context, loader render.ImageLoader, callbacks export.Callbacks) *export.Orchestrator {
	caps := capture.Probe(ctx, a.settings.FFmpegPath)
	a.logger.Info("encoders probed", "capabilities", caps.Describe())

	return export.New(export.Options{
		Width:        a.settings.Width,
		Height:       a.settings.Height,
		FrameRate:    a.settings.FrameRate,
		Timeslice:    a.settings.Timeslice(),
		Quality:      a.settings.JPEGQuality,
		TempDir:      filepath.Join(a.settings.DataDir, "tmp"),
		Holds:        a.holds(),
		Capabilities: caps,
		Formats:      a.settings.Formats,
		Loader:       loader,
		Fonts:        a.fonts,
		Sink:         a.blobs,
		Recorder:     a.store,
		Tracker:      a.tracker,
		Callbacks:    callbacks,
		Logger:       a.logger,
	})
}

func (a *App) storyboardExporter(loader render.ImageLoader) *storyboard.Exporter {
	return storyboard.New(storyboard.Options{
		Loader: loader,
		Fonts:  a.fonts,
		Sink:   a.blobs,
		Logger: a.logger,
	})
}
