package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"moodboard/internal/jobs"
)

// RecordJob inserts the job or updates its current state.
func (s *Store) RecordJob(ctx context.Context, j *jobs.Job) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO exports (id, trip_id, trip_title, kind, status, progress, codec, output_url, filename, size, error, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			codec = excluded.codec,
			output_url = excluded.output_url,
			filename = excluded.filename,
			size = excluded.size,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, j.ID, j.TripID, j.TripTitle, string(j.Kind), string(j.Status), j.Progress,
		nullString(j.Codec), nullString(j.OutputURL), nullString(j.Filename), j.Size, nullString(j.Error),
		formatTime(j.CreatedAt), nullTime(j.StartedAt), nullTime(j.CompletedAt))
	return err
}

func (s *Store) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, trip_id, trip_title, kind, status, progress, codec, output_url, filename, size, error, created_at, started_at, completed_at
		FROM exports WHERE id = ?
	`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// ListJobs returns the newest exports first. A limit <= 0 returns all of them.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*jobs.Job, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, trip_id, trip_title, kind, status, progress, codec, output_url, filename, size, error, created_at, started_at, completed_at
		FROM exports ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*jobs.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*jobs.Job, error) {
	var (
		j                          jobs.Job
		kind, status               string
		codec, outputURL, filename sql.NullString
		errMsg                     sql.NullString
		createdAt                  string
		startedAt, completedAt     sql.NullString
	)
	if err := row.Scan(&j.ID, &j.TripID, &j.TripTitle, &kind, &status, &j.Progress,
		&codec, &outputURL, &filename, &j.Size, &errMsg, &createdAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	j.Kind = jobs.Kind(kind)
	j.Status = jobs.Status(status)
	j.Codec = codec.String
	j.OutputURL = outputURL.String
	j.Filename = filename.String
	j.Error = errMsg.String
	j.CreatedAt = parseTime(createdAt)
	j.StartedAt = parseTime(startedAt.String)
	j.CompletedAt = parseTime(completedAt.String)
	return &j, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
