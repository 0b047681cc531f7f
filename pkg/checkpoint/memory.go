// Package checkpoint persists workflow run snapshots so a paused run can be
// resumed across process invocations.
package checkpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/kafeai/brigade/pkg/errors"
	"github.com/kafeai/brigade/pkg/workflow"
)

// MemoryStore keeps checkpoints in memory. Suitable for tests and
// single-process interactive use.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]workflow.Snapshot
}

// NewMemoryStore creates an in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]workflow.Snapshot)}
}

// Save overwrites the snapshot for the run id.
func (s *MemoryStore) Save(_ context.Context, snap workflow.Snapshot) error {
	if snap.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	copied := snap
	copied.State = snap.State.Clone()
	s.mu.Lock()
	s.snapshots[snap.RunID] = copied
	s.mu.Unlock()
	return nil
}

// Load returns the snapshot for the run id.
func (s *MemoryStore) Load(_ context.Context, runID string) (*workflow.Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			fmt.Sprintf("checkpoint %q not found", runID), nil)
	}
	copied := snap
	copied.State = snap.State.Clone()
	return &copied, nil
}

// Ensure MemoryStore implements workflow.CheckpointStore.
var _ workflow.CheckpointStore = (*MemoryStore)(nil)
