package server

import (
	"moodboard/internal/export"
	"moodboard/internal/jobs"
	"moodboard/internal/store"
	"moodboard/internal/storyboard"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type TripsResponse struct {
	Trips []store.Summary `json:"trips"`
}

type SavedTripResponse struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
}

type EstimateResponse struct {
	Days       int    `json:"days"`
	Items      int    `json:"items"`
	EstimateMs int64  `json:"estimate_ms"`
	Estimate   string `json:"estimate"`
}

type ExportStatusResponse struct {
	export.Status
}

type ExportsResponse struct {
	Exports []*jobs.Job `json:"exports"`
}

type StoryboardResponse struct {
	storyboard.Result
	JobID string `json:"job_id"`
}
