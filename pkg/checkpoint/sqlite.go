package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kafeai/brigade/pkg/errors"
	"github.com/kafeai/brigade/pkg/workflow"
)

const checkpointTable = "run_checkpoints"

// SQLiteStore persists checkpoints in a SQLite database. The upsert is a
// single statement, so a reader never observes a state inconsistent with
// its cursor.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite checkpoint database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore creates a SQLite-backed checkpoint store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := ensureCheckpointSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the snapshot for the run id.
func (s *SQLiteStore) Save(ctx context.Context, snap workflow.Snapshot) error {
	if snap.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	stateJSON, err := json.Marshal(snap.State)
	if err != nil {
		return err
	}
	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (run_id, state_json, next_stage, awaiting_input, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id) DO UPDATE SET
				state_json = excluded.state_json,
				next_stage = excluded.next_stage,
				awaiting_input = excluded.awaiting_input,
				updated_at = excluded.updated_at`, checkpointTable),
		snap.RunID, stateJSON, snap.NextStage, boolToInt(snap.AwaitingInput), updatedAt.UnixMilli())
	return err
}

// Load returns the snapshot for the run id.
func (s *SQLiteStore) Load(ctx context.Context, runID string) (*workflow.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT run_id, state_json, next_stage, awaiting_input, updated_at FROM %s WHERE run_id = ?", checkpointTable),
		runID,
	)
	var (
		snap        workflow.Snapshot
		stateJSON   []byte
		awaiting    int
		updatedAtMs int64
	)
	if err := row.Scan(&snap.RunID, &stateJSON, &snap.NextStage, &awaiting, &updatedAtMs); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.CodeNotFound,
				fmt.Sprintf("checkpoint %q not found", runID), nil)
		}
		return nil, err
	}
	state := &workflow.State{}
	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, state); err != nil {
			return nil, err
		}
	}
	snap.State = state
	snap.AwaitingInput = awaiting != 0
	snap.UpdatedAt = time.UnixMilli(updatedAtMs).UTC()
	return &snap, nil
}

func ensureCheckpointSchema(db *sql.DB) error {
	_, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT PRIMARY KEY,
			state_json TEXT NOT NULL,
			next_stage INTEGER NOT NULL,
			awaiting_input INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		);
	`, checkpointTable))
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Ensure SQLiteStore implements workflow.CheckpointStore.
var _ workflow.CheckpointStore = (*SQLiteStore)(nil)
