// Package memory implements the episodic feedback loop: each ordering
// decision is recorded against its target date, later judged against the
// observed outcome, and the lessons from overturned decisions are fed back
// into future synthesis prompts.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kafeai/brigade/pkg/errors"
)

// Status is the lifecycle of an episode.
type Status string

const (
	// StatusPending means the outcome for the episode's date is not yet
	// observed.
	StatusPending Status = "PENDING"
	// StatusMatch means reality confirmed the prediction and decision.
	StatusMatch Status = "MATCH"
	// StatusOverturned means reality contradicted the prediction; the
	// episode carries a bias correction for future decisions.
	StatusOverturned Status = "OVERTURNED"
)

// DefaultCap bounds the episode collection; oldest entries are evicted
// first, by insertion order.
const DefaultCap = 60

// decisionTruncateLen bounds stored decision text.
const decisionTruncateLen = 500

// Episode links a prediction and decision to its later-observed outcome.
type Episode struct {
	Date              string `json:"date"`
	PredictionSummary string `json:"prediction_summary"`
	Decision          string `json:"decision"`
	Status            Status `json:"status"`
	ActualSummary     string `json:"actual_summary,omitempty"`
	Reflection        string `json:"reflection,omitempty"`
	BiasCorrection    string `json:"bias_correction"`
}

// Judgment is the outcome of comparing an episode against actual metrics.
type Judgment struct {
	Status         Status `json:"status"`
	Reflection     string `json:"reflection"`
	BiasCorrection string `json:"bias_correction"`
}

// Judge compares a pending episode against observed actuals.
type Judge interface {
	Judge(ctx context.Context, episode Episode, actuals string) (*Judgment, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, episode Episode, actuals string) (*Judgment, error)

func (f JudgeFunc) Judge(ctx context.Context, episode Episode, actuals string) (*Judgment, error) {
	return f(ctx, episode, actuals)
}

// Store is the episodic memory contract consumed by the agents.
type Store interface {
	// RecordPending inserts a PENDING episode for the date unless one
	// already exists; it reports whether an insert happened.
	RecordPending(ctx context.Context, date, predictionSummary, decisionText string) (bool, error)
	// Evaluate judges the PENDING episode for the date against actuals and
	// updates it in place. It returns (nil, nil) when no pending episode
	// exists for the date. A judge failure leaves the episode PENDING.
	Evaluate(ctx context.Context, date, actuals string, judge Judge) (*Episode, error)
	// RecentLessons returns the bias corrections of the n most recent
	// OVERTURNED episodes, most recent first.
	RecentLessons(ctx context.Context, n int) ([]string, error)
	// Episodes returns all episodes in insertion order.
	Episodes(ctx context.Context) ([]Episode, error)
}

type memoryDoc struct {
	Episodes []Episode `json:"episodes"`
}

// FileStore persists episodes as one JSON document. All mutations hold an
// exclusive lock for the duration of the read-modify-write, since the file
// is shared across concurrent runs.
type FileStore struct {
	path string
	cap  int
	mu   sync.Mutex
}

// NewFileStore creates a file-backed episodic memory store with the
// default cap.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, cap: DefaultCap}
}

// NewFileStoreWithCap creates a file-backed store with a custom cap.
func NewFileStoreWithCap(path string, cap int) *FileStore {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &FileStore{path: path, cap: cap}
}

// RecordPending implements Store.
func (s *FileStore) RecordPending(_ context.Context, date, predictionSummary, decisionText string) (bool, error) {
	if date == "" {
		return false, errors.New(errors.CodeInvalidInput, "episode date is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return false, err
	}
	for _, ep := range doc.Episodes {
		if ep.Date == date {
			return false, nil
		}
	}

	doc.Episodes = append(doc.Episodes, Episode{
		Date:              date,
		PredictionSummary: predictionSummary,
		Decision:          truncateDecision(decisionText),
		Status:            StatusPending,
	})
	if len(doc.Episodes) > s.cap {
		doc.Episodes = doc.Episodes[len(doc.Episodes)-s.cap:]
	}
	if err := s.write(doc); err != nil {
		return false, err
	}
	return true, nil
}

// Evaluate implements Store.
func (s *FileStore) Evaluate(ctx context.Context, date, actuals string, judge Judge) (*Episode, error) {
	if judge == nil {
		return nil, errors.New(errors.CodeInvalidInput, "judge is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, ep := range doc.Episodes {
		if ep.Date == date && ep.Status == StatusPending {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}

	judgment, err := judge.Judge(ctx, doc.Episodes[idx], actuals)
	if err != nil {
		// Judge failure must not corrupt the entry; it stays PENDING.
		return nil, errors.New(errors.CodeLLMError, "episode judgment failed", err).
			WithContext("date", date)
	}
	status := judgment.Status
	if status != StatusMatch && status != StatusOverturned {
		status = StatusMatch
	}
	doc.Episodes[idx].Status = status
	doc.Episodes[idx].ActualSummary = actuals
	doc.Episodes[idx].Reflection = judgment.Reflection
	doc.Episodes[idx].BiasCorrection = judgment.BiasCorrection

	if err := s.write(doc); err != nil {
		return nil, err
	}
	updated := doc.Episodes[idx]
	return &updated, nil
}

// RecentLessons implements Store.
func (s *FileStore) RecentLessons(_ context.Context, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	lessons := make([]string, 0, n)
	for i := len(doc.Episodes) - 1; i >= 0 && len(lessons) < n; i-- {
		if doc.Episodes[i].Status == StatusOverturned {
			lessons = append(lessons, doc.Episodes[i].BiasCorrection)
		}
	}
	return lessons, nil
}

// Episodes implements Store.
func (s *FileStore) Episodes(_ context.Context) ([]Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return append([]Episode(nil), doc.Episodes...), nil
}

func (s *FileStore) read() (*memoryDoc, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &memoryDoc{}, nil
		}
		return nil, errors.New(errors.CodeStoreError, "read episodic memory", err)
	}
	var doc memoryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.New(errors.CodeStoreError, "decode episodic memory", err)
	}
	return &doc, nil
}

func (s *FileStore) write(doc *memoryDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.New(errors.CodeStoreError, "create memory dir", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.New(errors.CodeStoreError, "write episodic memory", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.New(errors.CodeStoreError, "replace episodic memory", err)
	}
	return nil
}

func truncateDecision(text string) string {
	if len(text) <= decisionTruncateLen {
		return text
	}
	return fmt.Sprintf("%s...", text[:decisionTruncateLen])
}

// Ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)
