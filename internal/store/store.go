// Package store persists trips and export history in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"moodboard/internal/jobs"
	"moodboard/internal/logging"
	"moodboard/internal/trip"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Timestamps are stored fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a trip or job does not exist.
var ErrNotFound = errors.New("not found")

// Summary is the list view of a stored trip.
type Summary struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	Days      int       `json:"days"`
	Items     int       `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at dbPath and applies migrations.
// Export jobs left running by a previous process are marked failed.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	s := &Store{conn: conn, logger: logger, now: time.Now}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if n, err := s.markInterruptedJobs(context.Background()); err != nil {
		logger.Warn("failed to mark interrupted exports", "error", err)
	} else if n > 0 {
		logger.Info("marked interrupted exports as failed", "count", n)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range migrations {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if s.isMigrationApplied(name) {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		s.logger.Info("applied migration", "name", name)
	}
	return nil
}

func (s *Store) isMigrationApplied(name string) bool {
	var exists int
	err := s.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists)
	if err != nil {
		return false
	}
	var applied int
	err = s.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

func (s *Store) markInterruptedJobs(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE exports SET status = ?, error = 'interrupted by restart', completed_at = ?
		WHERE status IN (?, ?)
	`, jobs.StatusFailed, formatTime(s.now()), jobs.StatusExporting, jobs.StatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SaveTrip inserts or replaces a trip. A missing ID is assigned; the slug
// is recomputed from the title on every save.
func (s *Store) SaveTrip(ctx context.Context, t *trip.Trip) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode trip: %w", err)
	}
	now := formatTime(s.now())
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO trips (id, slug, title, start_date, end_date, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			slug = excluded.slug,
			title = excluded.title,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, t.ID, trip.Slugify(t.Title), t.Title, nullString(t.StartDate), nullString(t.EndDate), string(data), now, now)
	if err != nil {
		return fmt.Errorf("failed to save trip %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) GetTrip(ctx context.Context, id string) (trip.Trip, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT data FROM trips WHERE id = ?`, id)
	return scanTrip(row)
}

// GetTripBySlug returns the most recently updated trip with the given slug.
func (s *Store) GetTripBySlug(ctx context.Context, slug string) (trip.Trip, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT data FROM trips WHERE slug = ? ORDER BY updated_at DESC LIMIT 1
	`, slug)
	return scanTrip(row)
}

// ListTrips returns summaries, most recently updated first.
func (s *Store) ListTrips(ctx context.Context) ([]Summary, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, slug, title, start_date, end_date, data, updated_at
		FROM trips ORDER BY updated_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum                Summary
			startDate, endDate sql.NullString
			data, updatedAt    string
		)
		if err := rows.Scan(&sum.ID, &sum.Slug, &sum.Title, &startDate, &endDate, &data, &updatedAt); err != nil {
			return nil, err
		}
		var t trip.Trip
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("failed to decode trip %s: %w", sum.ID, err)
		}
		sum.StartDate = startDate.String
		sum.EndDate = endDate.String
		sum.Days = len(t.Days)
		sum.Items = t.TotalItems()
		sum.UpdatedAt = parseTime(updatedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) DeleteTrip(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM trips WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTrip(row *sql.Row) (trip.Trip, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return trip.Trip{}, ErrNotFound
		}
		return trip.Trip{}, err
	}
	var t trip.Trip
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return trip.Trip{}, fmt.Errorf("failed to decode trip: %w", err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
