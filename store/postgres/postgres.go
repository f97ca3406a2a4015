// Package postgres implements reagent.CheckpointStore using PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool; Close is a no-op on it.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	reagent "github.com/nevindra/reagent"
)

// ErrNotFound is returned when a run has no stored checkpoints.
var ErrNotFound = errors.New("postgres: checkpoint not found")

// Store persists checkpoint tokens in a PostgreSQL table.
type Store struct {
	pool *pgxpool.Pool
}

var _ reagent.CheckpointStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the checkpoints table and index.
func (s *Store) Init(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS checkpoints (
		id BIGSERIAL PRIMARY KEY,
		run_id TEXT NOT NULL,
		request_id TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL,
		token TEXT NOT NULL,
		issued_at BIGINT NOT NULL
	)`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	idx := `CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id, id DESC)`
	if _, err := s.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// SaveCheckpoint appends one record.
func (s *Store) SaveCheckpoint(ctx context.Context, rec reagent.CheckpointRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO checkpoints (run_id, request_id, status, reason, token, issued_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.RunID, rec.RequestID, string(rec.Status), string(rec.Reason), rec.Token, rec.IssuedAt)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the most recent record for a run, or ErrNotFound.
func (s *Store) LatestCheckpoint(ctx context.Context, runID string) (reagent.CheckpointRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT run_id, request_id, status, reason, token, issued_at
		 FROM checkpoints WHERE run_id = $1 ORDER BY id DESC LIMIT 1`, runID)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
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
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, request_id, status, reason, token, issued_at
		 FROM checkpoints WHERE run_id = $1 ORDER BY id DESC LIMIT $2`, runID, limit)
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
	if _, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }

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
