package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kafeai/brigade/pkg/errors"
)

// DecisionRecord is one completed run's outcome, as logged for audit.
type DecisionRecord struct {
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
	TargetDate string    `json:"target_date,omitempty"`
	Issue      string    `json:"issue"`
	Decision   string    `json:"decision"`
	PosterPath string    `json:"poster_path,omitempty"`
	Degraded   bool      `json:"degraded,omitempty"`
}

// DecisionLog is an append-only JSONL file of run outcomes.
type DecisionLog struct {
	path string
	mu   sync.Mutex
}

// NewDecisionLog creates a log at the given path.
func NewDecisionLog(path string) *DecisionLog {
	return &DecisionLog{path: path}
}

// Append writes one record as a JSON line.
func (l *DecisionLog) Append(_ context.Context, rec DecisionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.New(errors.CodeStoreError, "create decisions dir", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return errors.New(errors.CodeStoreError, "open decision log", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.New(errors.CodeStoreError, "append decision log", err)
	}
	return nil
}
