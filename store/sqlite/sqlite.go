// Package sqlite implements reagent.CheckpointStore using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	reagent "github.com/nevindra/reagent"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// ErrNotFound is returned when a run has no stored checkpoints.
var ErrNotFound = errors.New("sqlite: checkpoint not found")

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store persists checkpoint tokens in a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ reagent.CheckpointStore = (*Store)(nil)

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the checkpoints table.
func (s *Store) Init(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		request_id TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL,
		token TEXT NOT NULL,
		issued_at INTEGER NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	idx := `CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id, id DESC)`
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	s.logger.Debug("sqlite: init complete")
	return nil
}

// SaveCheckpoint appends one record.
func (s *Store) SaveCheckpoint(ctx context.Context, rec reagent.CheckpointRecord) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, request_id, status, reason, token, issued_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.RequestID, string(rec.Status), string(rec.Reason), rec.Token, rec.IssuedAt)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	s.logger.Debug("sqlite: checkpoint saved",
		"run", rec.RunID, "reason", string(rec.Reason), "took", time.Since(start))
	return nil
}

// LatestCheckpoint returns the most recent record for a run, or ErrNotFound.
func (s *Store) LatestCheckpoint(ctx context.Context, runID string) (reagent.CheckpointRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, request_id, status, reason, token, issued_at
		 FROM checkpoints WHERE run_id = ? ORDER BY id DESC LIMIT 1`, runID)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return reagent.CheckpointRecord{}, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return reagent.CheckpointRecord{}, fmt.Errorf("latest checkpoint: %w", err)
	}
	return rec, nil
}

// ListCheckpoints returns up to limit records for a run, newest first.
func (s *Store) ListCheckpoints(ctx context.Context, runID string, limit int) ([]reagent.CheckpointRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, request_id, status, reason, token, issued_at
		 FROM checkpoints WHERE run_id = ? ORDER BY id DESC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []reagent.CheckpointRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list checkpoints: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteRun removes all records for a run.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Debug("sqlite: run deleted", "run", runID, "rows", n)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanRecord(scan func(...any) error) (reagent.CheckpointRecord, error) {
	var rec reagent.CheckpointRecord
	var status, reason string
	if err := scan(&rec.RunID, &rec.RequestID, &status, &reason, &rec.Token, &rec.IssuedAt); err != nil {
		return reagent.CheckpointRecord{}, err
	}
	rec.Status = reagent.Status(status)
	rec.Reason = reagent.CheckpointReason(reason)
	return rec, nil
}
