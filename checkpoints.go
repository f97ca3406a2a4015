package reagent

import "context"

// CheckpointRecord is one persisted checkpoint token with enough metadata to
// query it without decoding. The token remains the source of truth; the
// record is an index entry.
type CheckpointRecord struct {
	RunID     string           `json:"run_id"`
	RequestID string           `json:"request_id"`
	Status    Status           `json:"status"`
	Reason    CheckpointReason `json:"reason"`
	Token     string           `json:"token"`
	IssuedAt  int64            `json:"issued_at"` // unix ms
}

// CheckpointStore persists checkpoint tokens so runs survive their process.
// The engine writes best-effort via WithCheckpointStore; reading back and
// resuming is the caller's business. Implementations live in store/sqlite
// and store/postgres.
type CheckpointStore interface {
	// SaveCheckpoint appends one record.
	SaveCheckpoint(ctx context.Context, rec CheckpointRecord) error
	// LatestCheckpoint returns the most recent record for a run.
	LatestCheckpoint(ctx context.Context, runID string) (CheckpointRecord, error)
	// ListCheckpoints returns up to limit records for a run, newest first.
	ListCheckpoints(ctx context.Context, runID string, limit int) ([]CheckpointRecord, error)
	// DeleteRun removes all records for a run.
	DeleteRun(ctx context.Context, runID string) error

	// Init creates required schema.
	Init(ctx context.Context) error
	Close() error
}
