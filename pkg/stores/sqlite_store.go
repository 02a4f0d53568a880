package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/alerts"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/events"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists object states, job records, alerts and events. It
// implements engine.ObjectStore, alerts.Store and events.Store.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration. Zero connection settings select
// the defaults.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &SQLiteStore{cfg: cfg}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs embedded database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveObjectState persists a completed transition, inserting the object row
// on its first save.
func (s *SQLiteStore) SaveObjectState(ctx context.Context, ref engine.ObjectRef, state string, modifiedAt time.Time) error {
	query := `
		INSERT INTO objects (kind, id, state, state_modified_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			state = excluded.state,
			state_modified_at = excluded.state_modified_at
	`

	_, err := s.db.ExecContext(ctx, query, ref.Kind, ref.ID, state, modifiedAt)
	if err != nil {
		return fmt.Errorf("failed to save object state: %w", err)
	}
	return nil
}

// LoadObjectState loads the persisted state of an object for rehydration.
func (s *SQLiteStore) LoadObjectState(ctx context.Context, ref engine.ObjectRef) (string, time.Time, error) {
	query := `
		SELECT state, state_modified_at
		FROM objects
		WHERE kind = ? AND id = ?
	`

	var state string
	var modifiedAt time.Time
	err := s.db.QueryRowContext(ctx, query, ref.Kind, ref.ID).Scan(&state, &modifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, fmt.Errorf("object not found: %s", ref)
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to load object state: %w", err)
	}
	return state, modifiedAt, nil
}

// SaveJob upserts a job record; the scheduler calls it on every status
// change.
func (s *SQLiteStore) SaveJob(ctx context.Context, rec *engine.JobRecord) error {
	query := `
		INSERT INTO jobs (id, description, status, failure, requires_confirmation, submitted_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			failure = excluded.failure,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID.String(),
		rec.Description,
		string(rec.Status),
		rec.Failure,
		rec.RequiresConfirmation,
		rec.SubmittedAt,
		rec.StartedAt,
		rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob retrieves a job record by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id uuid.UUID) (*engine.JobRecord, error) {
	query := `
		SELECT id, description, status, failure, requires_confirmation, submitted_at, started_at, completed_at
		FROM jobs
		WHERE id = ?
	`

	rec, err := scanJob(s.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return rec, nil
}

// ListJobs lists job records newest-first with pagination.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit, offset int) ([]*engine.JobRecord, error) {
	query := `
		SELECT id, description, status, failure, requires_confirmation, submitted_at, started_at, completed_at
		FROM jobs
		ORDER BY submitted_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	recs := []*engine.JobRecord{}
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*engine.JobRecord, error) {
	rec := &engine.JobRecord{}
	var id, status string
	err := row.Scan(
		&id,
		&rec.Description,
		&status,
		&rec.Failure,
		&rec.RequiresConfirmation,
		&rec.SubmittedAt,
		&rec.StartedAt,
		&rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", id, err)
	}
	rec.Status = engine.JobStatus(status)
	return rec, nil
}

// ActiveAlert returns the active alert of the given type on the item, or
// (nil, nil) when none exists.
func (s *SQLiteStore) ActiveAlert(ctx context.Context, alertType string, item engine.ObjectRef) (*alerts.Alert, error) {
	query := `
		SELECT id, type, item_kind, item_id, item_label, severity, message, active, began_at, ended_at
		FROM alerts
		WHERE type = ? AND item_kind = ? AND item_id = ? AND active = 1
	`

	alert, err := scanAlert(s.db.QueryRowContext(ctx, query, alertType, item.Kind, item.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active alert: %w", err)
	}
	return alert, nil
}

// SaveAlert upserts an alert row.
func (s *SQLiteStore) SaveAlert(ctx context.Context, alert *alerts.Alert) error {
	query := `
		INSERT INTO alerts (id, type, item_kind, item_id, item_label, severity, message, active, began_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			active = excluded.active,
			ended_at = excluded.ended_at
	`

	_, err := s.db.ExecContext(ctx, query,
		alert.ID.String(),
		alert.Type,
		alert.Item.Kind,
		alert.Item.ID,
		alert.ItemLabel,
		string(alert.Severity),
		alert.Message,
		alert.Active,
		alert.BeganAt,
		alert.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// ListAlerts returns alerts newest-first, optionally only active ones.
func (s *SQLiteStore) ListAlerts(ctx context.Context, activeOnly bool) ([]*alerts.Alert, error) {
	query := `
		SELECT id, type, item_kind, item_id, item_label, severity, message, active, began_at, ended_at
		FROM alerts
	`
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY began_at DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	out := []*alerts.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

func scanAlert(row rowScanner) (*alerts.Alert, error) {
	alert := &alerts.Alert{}
	var id, severity string
	err := row.Scan(
		&id,
		&alert.Type,
		&alert.Item.Kind,
		&alert.Item.ID,
		&alert.ItemLabel,
		&severity,
		&alert.Message,
		&alert.Active,
		&alert.BeganAt,
		&alert.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	alert.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid alert id %q: %w", id, err)
	}
	alert.Severity = events.Severity(severity)
	return alert, nil
}

// AppendEvent writes one immutable event row.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *events.Event) error {
	payload, err := events.EncodePayload(ev.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO events (id, kind, severity, created_at, dismissed, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		ev.ID.String(),
		string(ev.Kind),
		string(ev.Severity),
		ev.CreatedAt,
		ev.Dismissed,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// SetEventDismissed toggles the only mutable field of an event.
func (s *SQLiteStore) SetEventDismissed(ctx context.Context, id uuid.UUID, dismissed bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE events SET dismissed = ? WHERE id = ?", dismissed, id.String())
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("event not found: %s", id)
	}
	return nil
}

// ListEvents returns events newest-first. An empty kind selects all
// variants; limit <= 0 means no limit.
func (s *SQLiteStore) ListEvents(ctx context.Context, kind events.Kind, limit int) ([]*events.Event, error) {
	query := `
		SELECT id, kind, severity, created_at, dismissed, payload
		FROM events
	`
	args := []any{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	out := []*events.Event{}
	for rows.Next() {
		var id, evKind, severity, payload string
		ev := &events.Event{}
		if err := rows.Scan(&id, &evKind, &severity, &ev.CreatedAt, &ev.Dismissed, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid event id %q: %w", id, err)
		}
		ev.Kind = events.Kind(evKind)
		ev.Severity = events.Severity(severity)
		ev.Payload, err = events.DecodePayload(ev.Kind, []byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
