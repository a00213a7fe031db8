package report

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

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/schemaflow/schemaflow/pkg/refresh"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists run reports in a local SQLite database. It
// implements the report sink the orchestrator writes to.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path string `yaml:"path"`
}

// NewSQLiteStore creates a store for the given database path. Init must
// be called before use.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database, enables WAL mode, and runs migrations.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return s.migrate()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate applies the embedded schema migrations.
func (s *SQLiteStore) migrate() error {
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

// RecordRun persists one completed run and its phase results.
func (s *SQLiteStore) RecordRun(ctx context.Context, req *refresh.RefreshRequest, report *refresh.RunReport) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, state, aborted_phase, source_host, source_schema,
			target_host, target_schema, mode, method, transfer_strategy,
			dry_run, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		string(report.State),
		string(report.AbortedPhase),
		req.Source.Host,
		req.SourceSchema,
		req.Target.Host,
		req.TargetSchema,
		string(req.Mode),
		string(req.Method),
		report.TransferStrategy,
		boolToInt(report.DryRun),
		report.StartedAt.UTC(),
		report.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i := range report.Phases {
		p := &report.Phases[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_phases (run_id, seq, phase, status, diagnostics, object_count, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			report.RunID,
			i,
			string(p.Phase),
			string(p.Status),
			p.Diagnostics,
			p.ObjectCount,
			p.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert phase %s: %w", p.Phase, err)
		}
	}

	return tx.Commit()
}

// GetRun loads one run with its phases.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, state, aborted_phase, source_host, source_schema,
			target_host, target_schema, mode, method, transfer_strategy,
			dry_run, started_at, completed_at
		FROM runs WHERE id = ?`, runID)

	record, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, phase, status, diagnostics, object_count, duration_ms
		FROM run_phases WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query phases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p PhaseRecord
		var phase, status string
		var durationMs int64
		if err := rows.Scan(&p.Seq, &phase, &status, &p.Diagnostics, &p.ObjectCount, &durationMs); err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		p.Phase = refresh.Phase(phase)
		p.Status = refresh.PhaseStatus(status)
		p.Duration = time.Duration(durationMs) * time.Millisecond
		record.Phases = append(record.Phases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return record, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, state, aborted_phase, source_host, source_schema,
			target_host, target_schema, mode, method, transfer_strategy,
			dry_run, started_at, completed_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var r RunRecord
	var state, abortedPhase, mode, method string
	var dryRun int

	err := row.Scan(&r.ID, &state, &abortedPhase, &r.SourceHost, &r.SourceSchema,
		&r.TargetHost, &r.TargetSchema, &mode, &method, &r.TransferStrategy,
		&dryRun, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}

	r.State = refresh.RunState(state)
	r.AbortedPhase = refresh.Phase(abortedPhase)
	r.Mode = refresh.OperationMode(mode)
	r.Method = refresh.TransferMethod(method)
	r.DryRun = dryRun != 0
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
