package server

import (
	"errors"
	"fmt"
	"image/png"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"moodboard/internal/blobstore"
	"moodboard/internal/export"
	"moodboard/internal/jobs"
	"moodboard/internal/store"
	"moodboard/internal/storyboard"
	"moodboard/internal/trip"
)

// NewRouter builds the API routes.
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(recoveryMiddleware(cfg.Logger))
	r.Use(loggingMiddleware(cfg.Logger))
	r.Use(corsMiddleware)

	r.Get("/health", healthHandler(cfg))

	r.Get("/blobs/{id}", blobHandler(cfg))
	r.Head("/blobs/{id}", blobHandler(cfg))
	r.Delete("/blobs/{id}", revokeBlobHandler(cfg))

	r.Get("/trips", listTripsHandler(cfg))
	r.Post("/trips", saveTripHandler(cfg))
	r.Get("/trips/{id}", getTripHandler(cfg))
	r.Delete("/trips/{id}", deleteTripHandler(cfg))
	r.Get("/trips/{id}/estimate", estimateHandler(cfg))
	r.Get("/trips/{id}/preview.png", previewHandler(cfg))
	r.Post("/trips/{id}/export", startExportHandler(cfg))
	r.Post("/trips/{id}/storyboard", storyboardHandler(cfg))

	r.Get("/export", exportStatusHandler(cfg))
	r.Delete("/export", cancelExportHandler(cfg))
	r.Get("/exports", listExportsHandler(cfg))

	return r
}

func healthHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func blobHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Blobs == nil {
			writeError(w, http.StatusNotFound, "blob not found", "NOT_FOUND")
			return
		}
		blob, f, err := cfg.Blobs.Open(chi.URLParam(r, "id"))
		if errors.Is(err, blobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "blob not found", "NOT_FOUND")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		defer f.Close()

		if blob.MIME != "" {
			w.Header().Set("Content-Type", blob.MIME)
		}
		if blob.Filename != "" {
			w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": blob.Filename}))
		}
		// ServeContent handles Range and conditional requests.
		http.ServeContent(w, r, blob.Filename, blob.CreatedAt, f)
	}
}

func revokeBlobHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Blobs == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err := cfg.Blobs.Revoke(chi.URLParam(r, "id")); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listTripsHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trips, err := cfg.Store.ListTrips(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if trips == nil {
			trips = []store.Summary{}
		}
		writeJSON(w, http.StatusOK, TripsResponse{Trips: trips})
	}
}

func saveTripHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := trip.Decode(http.MaxBytesReader(w, r.Body, 16<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if err := cfg.Store.SaveTrip(r.Context(), &t); err != nil {
			if errors.Is(err, trip.ErrValidation) {
				writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		writeJSON(w, http.StatusCreated, SavedTripResponse{ID: t.ID, Slug: trip.Slugify(t.Title)})
	}
}

// loadTrip writes the error response itself and reports whether t is usable.
func loadTrip(cfg Config, w http.ResponseWriter, r *http.Request) (trip.Trip, bool) {
	t, err := cfg.Store.GetTrip(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "trip not found", "NOT_FOUND")
		return trip.Trip{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return trip.Trip{}, false
	}
	return t, true
}

func getTripHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if t, ok := loadTrip(cfg, w, r); ok {
			writeJSON(w, http.StatusOK, t)
		}
	}
}

func deleteTripHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := cfg.Store.DeleteTrip(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trip not found", "NOT_FOUND")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func estimateHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := loadTrip(cfg, w, r)
		if !ok {
			return
		}
		d := cfg.Videos.Estimate(t)
		writeJSON(w, http.StatusOK, EstimateResponse{
			Days:       len(t.Days),
			Items:      t.TotalItems(),
			EstimateMs: d.Milliseconds(),
			Estimate:   d.String(),
		})
	}
}

func previewHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := loadTrip(cfg, w, r)
		if !ok {
			return
		}
		img, err := cfg.Videos.Preview(r.Context(), t)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(w, img); err != nil {
			cfg.Logger.Warn("failed to write preview", "trip_id", t.ID, "error", err)
		}
	}
}

func startExportHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := loadTrip(cfg, w, r)
		if !ok {
			return
		}
		job, err := cfg.Videos.Start(cfg.Context, t)
		switch {
		case errors.Is(err, export.ErrExportInProgress):
			writeError(w, http.StatusConflict, err.Error(), "EXPORT_IN_PROGRESS")
			return
		case errors.Is(err, trip.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.Header().Set("Location", "/export")
		writeJSON(w, http.StatusAccepted, job)
	}
}

func storyboardHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Storyboards == nil {
			writeError(w, http.StatusNotImplemented, "storyboard export is not configured", "NOT_CONFIGURED")
			return
		}
		format := r.URL.Query().Get("format")
		if format == "" {
			format = string(storyboard.FormatPNG)
		}
		f, err := storyboard.ParseFormat(format)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		t, ok := loadTrip(cfg, w, r)
		if !ok {
			return
		}

		job := jobs.New(jobs.KindStoryboard, t.ID, t.Title, time.Now())
		job.MarkStarted(time.Now())
		record(cfg, r, job)

		res, err := cfg.Storyboards.Export(r.Context(), t, f, job.SetProgress)
		if err != nil {
			job.MarkFailed(time.Now(), export.Message(err))
			record(cfg, r, job)
			writeError(w, http.StatusInternalServerError, err.Error(), "EXPORT_FAILED")
			return
		}
		job.MarkCompleted(time.Now(), res.URL, res.Filename, string(f), int64(res.Size))
		record(cfg, r, job)
		writeJSON(w, http.StatusOK, StoryboardResponse{Result: res, JobID: job.ID})
	}
}

func record(cfg Config, r *http.Request, j *jobs.Job) {
	if err := cfg.Store.RecordJob(r.Context(), j); err != nil {
		cfg.Logger.Warn("failed to record export job", "job_id", j.ID, "error", err)
	}
}

func exportStatusHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ExportStatusResponse{Status: cfg.Videos.Status()})
	}
}

func cancelExportHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cfg.Videos.Cancel() {
			writeError(w, http.StatusConflict, "no export is running", "NOT_EXPORTING")
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func listExportsHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v), "BAD_REQUEST")
				return
			}
			limit = n
		}
		list, err := cfg.Store.ListJobs(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if list == nil {
			list = []*jobs.Job{}
		}
		writeJSON(w, http.StatusOK, ExportsResponse{Exports: list})
	}
}
