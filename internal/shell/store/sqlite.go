package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Row Types
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID         string  `db:"id"`
	StackName  string  `db:"stack_name"`
	Action     string  `db:"action"`
	Status     string  `db:"status"`
	Error      string  `db:"error"`
	StartedAt  string  `db:"started_at"`
	FinishedAt *string `db:"finished_at"`
}

func (r runRow) toRun() (*Run, error) {
	started, err := time.Parse(time.RFC3339Nano, r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run := &Run{
		ID:        r.ID,
		StackName: r.StackName,
		Action:    RunAction(r.Action),
		Status:    RunStatus(r.Status),
		Error:     r.Error,
		StartedAt: started,
	}
	if r.FinishedAt != nil {
		finished, err := time.Parse(time.RFC3339Nano, *r.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &finished
	}
	return run, nil
}

// eventRow represents a run event row in the database.
type eventRow struct {
	ID          int64  `db:"id"`
	RunID       string `db:"run_id"`
	ServiceName string `db:"service_name"`
	ContainerID string `db:"container_id"`
	EventType   string `db:"event_type"`
	Message     string `db:"message"`
	CreatedAt   string `db:"created_at"`
}

func (r eventRow) toEvent() (*Event, error) {
	created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &Event{
		ID:          r.ID,
		RunID:       r.RunID,
		ServiceName: r.ServiceName,
		ContainerID: r.ContainerID,
		Type:        r.EventType,
		Message:     r.Message,
		CreatedAt:   created,
	}, nil
}

// =============================================================================
// Run Operations
// =============================================================================

// CreateRun inserts a new run. A missing ID, status or start time is filled
// in; the caller usually supplies only the stack name and action.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = RunStatusStarted
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	row := runRow{
		ID:        run.ID,
		StackName: run.StackName,
		Action:    string(run.Action),
		Status:    string(run.Status),
		Error:     run.Error,
		StartedAt: run.StartedAt.Format(time.RFC3339Nano),
	}
	if run.FinishedAt != nil {
		v := run.FinishedAt.Format(time.RFC3339Nano)
		row.FinishedAt = &v
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, stack_name, action, status, error, started_at, finished_at)
		VALUES (:id, :stack_name, :action, :status, :error, :started_at, :finished_at)`,
		row,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return NewStoreError("CreateRun", "run", run.ID, "duplicate id", ErrDuplicateID)
		}
		return NewStoreError("CreateRun", "run", run.ID, err.Error(), err)
	}
	return nil
}

// FinishRun marks a run as succeeded or failed. Finishing twice is an error.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status RunStatus, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		string(status), errMsg, now, id, string(RunStatusStarted),
	)
	if err != nil {
		return NewStoreError("FinishRun", "run", id, err.Error(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return NewStoreError("FinishRun", "run", id, err.Error(), err)
	}
	if affected == 0 {
		// Distinguish missing from already-final
		if _, getErr := s.GetRun(ctx, id); getErr != nil {
			return getErr
		}
		return NewStoreError("FinishRun", "run", id, "already finished", ErrRunFinished)
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRun", "run", id, "not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRun", "run", id, err.Error(), err)
	}
	return row.toRun()
}

// ListRuns returns the most recent runs for a stack, newest first. A zero
// limit means 50. An empty stack name lists runs across all stacks.
func (s *SQLiteStore) ListRuns(ctx context.Context, stackName string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []runRow
	var err error
	if stackName == "" {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT * FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT * FROM runs WHERE stack_name = ?
			ORDER BY started_at DESC, id LIMIT ?`, stackName, limit)
	}
	if err != nil {
		return nil, NewStoreError("ListRuns", "run", "", err.Error(), err)
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.toRun()
		if err != nil {
			return nil, NewStoreError("ListRuns", "run", row.ID, err.Error(), err)
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// LatestRun returns the most recent run for a stack.
func (s *SQLiteStore) LatestRun(ctx context.Context, stackName string) (*Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM runs WHERE stack_name = ?
		ORDER BY started_at DESC, id LIMIT 1`, stackName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("LatestRun", "run", stackName, "not found", ErrNotFound)
		}
		return nil, NewStoreError("LatestRun", "run", stackName, err.Error(), err)
	}
	return row.toRun()
}

// =============================================================================
// Event Operations
// =============================================================================

// AppendEvent records an event within a run.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, service_name, container_id, event_type, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.RunID, event.ServiceName, event.ContainerID, event.Type, event.Message,
		event.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return NewStoreError("AppendEvent", "event", event.RunID, "unknown run", ErrNotFound)
		}
		return NewStoreError("AppendEvent", "event", event.RunID, err.Error(), err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// ListEvents returns a run's events in insertion order.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string) ([]Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM run_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, NewStoreError("ListEvents", "event", runID, err.Error(), err)
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		event, err := row.toEvent()
		if err != nil {
			return nil, NewStoreError("ListEvents", "event", runID, err.Error(), err)
		}
		events = append(events, *event)
	}
	return events, nil
}
