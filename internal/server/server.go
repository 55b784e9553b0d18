// Package server exposes trips, exports and finished recordings over a
// local HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"time"

	"moodboard/internal/blobstore"
	"moodboard/internal/export"
	"moodboard/internal/jobs"
	"moodboard/internal/logging"
	"moodboard/internal/store"
	"moodboard/internal/storyboard"
	"moodboard/internal/trip"
)

// TripStore is the persistence the API needs.
type TripStore interface {
	SaveTrip(ctx context.Context, t *trip.Trip) error
	GetTrip(ctx context.Context, id string) (trip.Trip, error)
	ListTrips(ctx context.Context) ([]store.Summary, error)
	DeleteTrip(ctx context.Context, id string) error
	RecordJob(ctx context.Context, j *jobs.Job) error
	ListJobs(ctx context.Context, limit int) ([]*jobs.Job, error)
}

// VideoExporter runs background video exports.
type VideoExporter interface {
	Start(ctx context.Context, t trip.Trip) (*jobs.Job, error)
	Status() export.Status
	Cancel() bool
	Estimate(t trip.Trip) time.Duration
	Preview(ctx context.Context, t trip.Trip) (*image.RGBA, error)
}

// StoryboardExporter renders static storyboards.
type StoryboardExporter interface {
	Export(ctx context.Context, t trip.Trip, f storyboard.Format, progress func(int)) (storyboard.Result, error)
}

// Config wires the server's collaborators.
type Config struct {
	Addr        string
	Store       TripStore
	Blobs       *blobstore.Store
	Videos      VideoExporter
	Storyboards StoryboardExporter
	// Context outlives requests; background exports run under it.
	Context   context.Context
	Logger    *slog.Logger
	StartTime time.Time
	Version   string
}

type Server struct {
	cfg        Config
	httpServer *http.Server
	listener   net.Listener
	baseURL    string
	logger     *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	logger := logging.WithComponent(cfg.Logger, "server")
	cfg.Logger = logger
	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Handler:     NewRouter(cfg),
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// Start listens on the configured address and serves in the background.
// Blob URLs handed out afterwards point at this server.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	s.baseURL = "http://" + listener.Addr().String()
	if s.cfg.Blobs != nil {
		s.cfg.Blobs.SetBaseURL(s.baseURL)
	}
	s.logger.Info("server started", "url", s.baseURL)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", "error", err)
		}
	}()
	return nil
}

// URL is the base URL, empty until Start succeeds.
func (s *Server) URL() string { return s.baseURL }

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}
