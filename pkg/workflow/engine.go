// Package workflow executes a fixed linear pipeline of agent stages over a
// shared accumulating state, with one human-in-the-loop interruption point
// and durable pause/resume through a checkpoint store.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kafeai/brigade/pkg/errors"
	"github.com/kafeai/brigade/pkg/resilience"
	"github.com/kafeai/brigade/pkg/telemetry"
)

// Status reports how an execution ended.
type Status string

const (
	// StatusAwaitingInput means the run is paused at the interruption point
	// and waits for a Resume.
	StatusAwaitingInput Status = "awaiting_input"
	// StatusCompleted means every stage has executed.
	StatusCompleted Status = "completed"
)

// ExecutionResult is returned by Start and Resume.
type ExecutionResult struct {
	RunID  string `json:"run_id"`
	Status Status `json:"status"`
	State  *State `json:"state"`
}

// Snapshot is the durable unit the checkpoint store persists: the shared
// state plus the execution cursor.
type Snapshot struct {
	RunID         string    `json:"run_id"`
	State         *State    `json:"state"`
	NextStage     int       `json:"next_stage"`
	AwaitingInput bool      `json:"awaiting_input"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Finished reports whether the snapshot describes a run that executed all
// stages and is not paused.
func (s *Snapshot) Finished(totalStages int) bool {
	return !s.AwaitingInput && s.NextStage >= totalStages
}

// CheckpointStore persists one snapshot per run id. Save is an atomic
// overwrite; Load returns errors.CodeNotFound when no checkpoint exists.
type CheckpointStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, runID string) (*Snapshot, error)
}

// Engine runs a pipeline with checkpointing and centralized stage-failure
// absorption. A stage failure never aborts the run: it is converted into a
// "<Stage> Error: <detail>" context entry and execution continues. Callers
// detect degraded runs by inspecting context for "Error:" markers.
type Engine struct {
	pipeline     *Pipeline
	store        CheckpointStore
	logger       *slog.Logger
	tracer       trace.Tracer
	metrics      *telemetry.StageMetrics
	stageTimeout time.Duration

	mu   sync.Mutex
	runs map[string]*sync.Mutex
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics enables per-stage metrics.
func WithMetrics(metrics *telemetry.StageMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithStageTimeout bounds each stage invocation. A stage that exceeds the
// bound is treated as a failed stage and absorbed like any other failure.
// Zero means no per-stage bound.
func WithStageTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.stageTimeout = d
	}
}

// NewEngine creates an engine for the given pipeline and checkpoint store.
func NewEngine(pipeline *Pipeline, store CheckpointStore, opts ...EngineOption) (*Engine, error) {
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("checkpoint store is nil")
	}
	e := &Engine{
		pipeline: pipeline,
		store:    store,
		logger:   slog.Default(),
		tracer:   otel.Tracer("brigade/workflow"),
		runs:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Start begins a new run. It fails with errors.CodeDuplicateRun when a
// checkpoint for the run id exists and is not finished; a finished run id
// may be started again from the beginning. Execution proceeds until the
// interruption point or until all stages complete.
func (e *Engine) Start(ctx context.Context, runID string, initial *State) (*ExecutionResult, error) {
	if runID == "" {
		return nil, errors.New(errors.CodeInvalidInput, "run id is required", nil)
	}
	unlock := e.lockRun(runID)
	defer unlock()

	snap, err := e.store.Load(ctx, runID)
	if err != nil && !errors.IsCode(err, errors.CodeNotFound) {
		return nil, err
	}
	if snap != nil && !snap.Finished(len(e.pipeline.Stages)) {
		return nil, errors.New(errors.CodeDuplicateRun,
			fmt.Sprintf("run %q already exists and is not finished; use resume", runID), nil)
	}

	state := initial.Clone()
	if state == nil {
		state = &State{}
	}
	e.logger.InfoContext(ctx, "run started", "run_id", runID, "pipeline", e.pipeline.Name, "issue", state.Issue)
	return e.runFrom(ctx, runID, state, 0, true)
}

// Resume continues a paused run. The update is merged into the stored state
// with the same rules as stage outputs; non-empty feedback additionally
// appends a "Human Feedback: ..." context entry so later stages see it.
func (e *Engine) Resume(ctx context.Context, runID string, update *Update) (*ExecutionResult, error) {
	if runID == "" {
		return nil, errors.New(errors.CodeInvalidInput, "run id is required", nil)
	}
	unlock := e.lockRun(runID)
	defer unlock()

	snap, err := e.store.Load(ctx, runID)
	if err != nil {
		if errors.IsCode(err, errors.CodeNotFound) {
			return nil, errors.New(errors.CodeUnknownRun,
				fmt.Sprintf("no checkpoint for run %q", runID), nil)
		}
		return nil, err
	}
	if !snap.AwaitingInput {
		return nil, errors.New(errors.CodeNotAwaitingInput,
			fmt.Sprintf("run %q is not awaiting input", runID), nil)
	}

	state := snap.State.Clone()
	if update != nil {
		merged := *update
		if update.Feedback != nil && *update.Feedback != "" {
			merged.Context = append(append([]string(nil), update.Context...),
				"Human Feedback: "+*update.Feedback)
		}
		state.Apply(&merged)
	}
	// Persist the merged state before continuing so the human input
	// survives a crash between merge and first stage.
	if err := e.save(ctx, runID, state, snap.NextStage, false); err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "run resumed", "run_id", runID, "next_stage", snap.NextStage)
	return e.runFrom(ctx, runID, state, snap.NextStage, false)
}

// Inspect returns the stored snapshot for a run id.
func (e *Engine) Inspect(ctx context.Context, runID string) (*Snapshot, error) {
	return e.store.Load(ctx, runID)
}

// Pipeline returns the engine's pipeline.
func (e *Engine) Pipeline() *Pipeline {
	return e.pipeline
}

func (e *Engine) runFrom(ctx context.Context, runID string, state *State, from int, stopAtPause bool) (*ExecutionResult, error) {
	pause := e.pipeline.PauseIndex()
	for i := from; i < len(e.pipeline.Stages); i++ {
		if stopAtPause && i == pause {
			if err := e.save(ctx, runID, state, i, true); err != nil {
				return nil, err
			}
			e.logger.InfoContext(ctx, "run awaiting input", "run_id", runID,
				"pause_before", e.pipeline.Stages[i].Name())
			return &ExecutionResult{RunID: runID, Status: StatusAwaitingInput, State: state.Clone()}, nil
		}

		update := e.runStage(ctx, runID, e.pipeline.Stages[i], state)
		state.Apply(update)
		if err := e.save(ctx, runID, state, i+1, false); err != nil {
			return nil, err
		}
	}
	e.logger.InfoContext(ctx, "run completed", "run_id", runID, "context_entries", len(state.Context))
	return &ExecutionResult{RunID: runID, Status: StatusCompleted, State: state.Clone()}, nil
}

// runStage executes one stage and applies the fault-isolation policy: any
// error or panic becomes the stage's entire output, as an error context
// entry, and no other field the stage would have written is populated.
func (e *Engine) runStage(ctx context.Context, runID string, stage Stage, state *State) *Update {
	name := stage.Name()
	stageCtx, span := e.tracer.Start(ctx, "Engine.Stage",
		trace.WithAttributes(
			attribute.String("stage.name", name),
			attribute.String("run.id", runID),
		),
	)
	start := time.Now()
	var update *Update
	err := resilience.WithTimeout(stageCtx, resilience.TimeoutConfig{Duration: e.stageTimeout},
		func(ctx context.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("stage panic: %v", r)
				}
			}()
			update, err = stage.Run(ctx, state.Clone())
			return err
		})
	span.End()

	if e.metrics != nil {
		e.metrics.RecordStage(ctx, name, time.Since(start), err != nil)
	}
	if err != nil {
		e.logger.WarnContext(ctx, "stage failure absorbed", "run_id", runID, "stage", name, "error", err)
		return &Update{Context: []string{fmt.Sprintf("%s Error: %v", name, err)}}
	}
	e.logger.DebugContext(ctx, "stage completed", "run_id", runID, "stage", name,
		"elapsed", time.Since(start).String())
	return update
}

func (e *Engine) save(ctx context.Context, runID string, state *State, nextStage int, awaiting bool) error {
	return e.store.Save(ctx, Snapshot{
		RunID:         runID,
		State:         state.Clone(),
		NextStage:     nextStage,
		AwaitingInput: awaiting,
		UpdatedAt:     time.Now().UTC(),
	})
}

// lockRun serializes Start/Resume per run id.
func (e *Engine) lockRun(runID string) func() {
	e.mu.Lock()
	lock, ok := e.runs[runID]
	if !ok {
		lock = &sync.Mutex{}
		e.runs[runID] = lock
	}
	e.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
