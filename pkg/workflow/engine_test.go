package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kafeai/brigade/pkg/errors"
)

// memStore is a minimal in-memory CheckpointStore recording save counts.
type memStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
	saves int
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[string]Snapshot)}
}

func (s *memStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := snap
	copied.State = snap.State.Clone()
	s.snaps[snap.RunID] = copied
	s.saves++
	return nil
}

func (s *memStore) Load(_ context.Context, runID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[runID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "not found", nil)
	}
	copied := snap
	copied.State = snap.State.Clone()
	return &copied, nil
}

// fivePipeline builds a five-stage pipeline pausing before stage "d". Each
// stage appends one context entry; "d" additionally writes the decision.
func fivePipeline(t *testing.T) *Pipeline {
	t.Helper()
	stages := make([]Stage, 0, 5)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		name := name
		fn := func(ctx context.Context, state *State) (*Update, error) {
			u := &Update{Context: []string{name + ": done"}}
			if name == "d" {
				u.Decision = String("decision by d, saw " + fmt.Sprint(len(state.Context)) + " entries")
			}
			return u, nil
		}
		stages = append(stages, StageFunc{StageName: name, Fn: fn})
	}
	return &Pipeline{Name: "test", Stages: stages, PauseBefore: "d"}
}

func newTestEngine(t *testing.T, p *Pipeline, store CheckpointStore) *Engine {
	t.Helper()
	e, err := NewEngine(p, store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestStartPausesAtInterruptionPoint(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, fivePipeline(t), store)

	result, err := e.Start(context.Background(), "run1", &State{Issue: "Weekend Strategy"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if result.Status != StatusAwaitingInput {
		t.Fatalf("status = %s, want %s", result.Status, StatusAwaitingInput)
	}
	if len(result.State.Context) != 3 {
		t.Fatalf("context length = %d, want 3: %v", len(result.State.Context), result.State.Context)
	}

	snap, err := e.Inspect(context.Background(), "run1")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !snap.AwaitingInput || snap.NextStage != 3 {
		t.Fatalf("snapshot = %+v, want awaiting at stage 3", snap)
	}
}

func TestStartDuplicateRunFails(t *testing.T) {
	e := newTestEngine(t, fivePipeline(t), newMemStore())
	ctx := context.Background()

	if _, err := e.Start(ctx, "run1", &State{}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := e.Start(ctx, "run1", &State{})
	if !errors.IsCode(err, errors.CodeDuplicateRun) {
		t.Fatalf("expected duplicate-run error, got %v", err)
	}
}

func TestResumeUnknownRunFails(t *testing.T) {
	e := newTestEngine(t, fivePipeline(t), newMemStore())

	_, err := e.Resume(context.Background(), "missing", nil)
	if !errors.IsCode(err, errors.CodeUnknownRun) {
		t.Fatalf("expected unknown-run error, got %v", err)
	}
}

func TestResumeNotAwaitingFails(t *testing.T) {
	e := newTestEngine(t, fivePipeline(t), newMemStore())
	ctx := context.Background()

	if _, err := e.Start(ctx, "run1", &State{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.Resume(ctx, "run1", nil); err != nil {
		t.Fatalf("first resume: %v", err)
	}
	_, err := e.Resume(ctx, "run1", nil)
	if !errors.IsCode(err, errors.CodeNotAwaitingInput) {
		t.Fatalf("expected not-awaiting-input error, got %v", err)
	}
}

func TestResumeAppendsHumanFeedback(t *testing.T) {
	e := newTestEngine(t, fivePipeline(t), newMemStore())
	ctx := context.Background()

	if _, err := e.Start(ctx, "run1", &State{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	result, err := e.Resume(ctx, "run1", &Update{Feedback: String("add 5 units of X")})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", result.Status, StatusCompleted)
	}
	// 3 before pause + 1 feedback + 2 after pause.
	if len(result.State.Context) != 6 {
		t.Fatalf("context length = %d, want 6: %v", len(result.State.Context), result.State.Context)
	}
	if result.State.Context[3] != "Human Feedback: add 5 units of X" {
		t.Fatalf("feedback entry = %q", result.State.Context[3])
	}
	if result.State.Feedback != "add 5 units of X" {
		t.Fatalf("feedback field = %q", result.State.Feedback)
	}
	// Stage d runs after the feedback entry, so it must have seen it.
	if !strings.Contains(result.State.Decision, "saw 4 entries") {
		t.Fatalf("decision = %q, stage after pause did not see feedback", result.State.Decision)
	}
}

func TestResumeWithoutFeedbackMatchesUninterruptedRun(t *testing.T) {
	// Interrupted run.
	e1 := newTestEngine(t, fivePipeline(t), newMemStore())
	ctx := context.Background()
	if _, err := e1.Start(ctx, "run1", &State{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	interrupted, err := e1.Resume(ctx, "run1", nil)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	// Uninterrupted run of the same stages.
	p := fivePipeline(t)
	p.PauseBefore = ""
	e2 := newTestEngine(t, p, newMemStore())
	straight, err := e2.Start(ctx, "run2", &State{})
	if err != nil {
		t.Fatalf("uninterrupted start: %v", err)
	}

	if len(interrupted.State.Context) != len(straight.State.Context) {
		t.Fatalf("context lengths differ: %d vs %d",
			len(interrupted.State.Context), len(straight.State.Context))
	}
	if interrupted.State.Decision != straight.State.Decision {
		t.Fatalf("decisions differ: %q vs %q",
			interrupted.State.Decision, straight.State.Decision)
	}
}

func TestStageErrorIsAbsorbed(t *testing.T) {
	boom := StageFunc{
		StageName: "Boom",
		Fn: func(ctx context.Context, state *State) (*Update, error) {
			return &Update{Decision: String("should never land")},
				fmt.Errorf("simulated network error")
		},
	}
	ok := StageFunc{
		StageName: "After",
		Fn: func(ctx context.Context, state *State) (*Update, error) {
			return &Update{Context: []string{"After: done"}}, nil
		},
	}
	p := &Pipeline{Name: "test", Stages: []Stage{boom, ok}}
	e := newTestEngine(t, p, newMemStore())

	result, err := e.Start(context.Background(), "run1", &State{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", result.Status)
	}
	if got := result.State.Context[0]; !strings.HasPrefix(got, "Boom Error:") {
		t.Fatalf("absorbed entry = %q, want Boom Error prefix", got)
	}
	if result.State.Decision != "" {
		t.Fatalf("failed stage's other fields leaked: decision = %q", result.State.Decision)
	}
}

func TestStagePanicIsAbsorbed(t *testing.T) {
	panicky := StageFunc{
		StageName: "Panicky",
		Fn: func(ctx context.Context, state *State) (*Update, error) {
			panic("boom")
		},
	}
	p := &Pipeline{Name: "test", Stages: []Stage{panicky}}
	e := newTestEngine(t, p, newMemStore())

	result, err := e.Start(context.Background(), "run1", &State{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.HasPrefix(result.State.Context[0], "Panicky Error:") {
		t.Fatalf("panic not absorbed: %v", result.State.Context)
	}
}

func TestCheckpointSavedAfterEveryStage(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, fivePipeline(t), store)
	ctx := context.Background()

	if _, err := e.Start(ctx, "run1", &State{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	// One save per completed stage (3) plus the paused snapshot.
	if store.saves != 4 {
		t.Fatalf("saves after start = %d, want 4", store.saves)
	}
	if _, err := e.Resume(ctx, "run1", nil); err != nil {
		t.Fatalf("resume: %v", err)
	}
	// Resume persists the merged state, then one save per remaining stage (2).
	if store.saves != 7 {
		t.Fatalf("saves after resume = %d, want 7", store.saves)
	}
}

func TestFinishedRunCanBeRestarted(t *testing.T) {
	e := newTestEngine(t, fivePipeline(t), newMemStore())
	ctx := context.Background()

	if _, err := e.Start(ctx, "run1", &State{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.Resume(ctx, "run1", nil); err != nil {
		t.Fatalf("resume: %v", err)
	}

	result, err := e.Start(ctx, "run1", &State{Issue: "again"})
	if err != nil {
		t.Fatalf("restart of finished run: %v", err)
	}
	if result.Status != StatusAwaitingInput {
		t.Fatalf("restart status = %s", result.Status)
	}
	if result.State.Issue != "again" {
		t.Fatalf("restart did not begin from fresh state: %+v", result.State)
	}
}

func TestStageTimeoutIsAbsorbed(t *testing.T) {
	slow := StageFunc{
		StageName: "Slow",
		Fn: func(ctx context.Context, state *State) (*Update, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	p := &Pipeline{Name: "test", Stages: []Stage{slow}}
	e, err := NewEngine(p, newMemStore(), WithStageTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := e.Start(context.Background(), "run1", &State{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("status = %s", result.Status)
	}
	if !strings.HasPrefix(result.State.Context[0], "Slow Error:") {
		t.Fatalf("timeout not absorbed: %v", result.State.Context)
	}
}

func TestStageReceivesStateCopy(t *testing.T) {
	mutator := StageFunc{
		StageName: "Mutator",
		Fn: func(ctx context.Context, state *State) (*Update, error) {
			state.Context = append(state.Context, "sneaky")
			state.Decision = "sneaky"
			return &Update{Context: []string{"Mutator: done"}}, nil
		},
	}
	p := &Pipeline{Name: "test", Stages: []Stage{mutator}}
	e := newTestEngine(t, p, newMemStore())

	result, err := e.Start(context.Background(), "run1", &State{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if result.State.Decision != "" || len(result.State.Context) != 1 {
		t.Fatalf("stage mutated shared state: %+v", result.State)
	}
}
