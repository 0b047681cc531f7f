package workflow

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Stage is one unit of the linear pipeline. It reads the accumulated state
// and returns a partial update; it must not mutate the state it receives.
type Stage interface {
	// Name identifies the stage in context entries and error markers.
	Name() string
	// Run executes the stage against the current shared state.
	Run(ctx context.Context, state *State) (*Update, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, state *State) (*Update, error)
}

func (s StageFunc) Name() string { return s.StageName }

func (s StageFunc) Run(ctx context.Context, state *State) (*Update, error) {
	return s.Fn(ctx, state)
}

// Pipeline is a fixed, linear ordering of stages with at most one
// interruption point. Ordering is declared once at construction; there is
// no branching, per-stage retry, or parallel execution.
type Pipeline struct {
	Name        string
	Stages      []Stage
	PauseBefore string // stage name; empty means the pipeline never pauses
}

// Validate ensures the pipeline is well-formed for execution.
func (p *Pipeline) Validate() error {
	if p == nil {
		return fmt.Errorf("pipeline is nil")
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline has no stages")
	}
	seen := make(map[string]bool, len(p.Stages))
	for _, stage := range p.Stages {
		name := stage.Name()
		if name == "" {
			return fmt.Errorf("stage name is required")
		}
		if seen[name] {
			return fmt.Errorf("duplicate stage name %q", name)
		}
		seen[name] = true
	}
	if p.PauseBefore != "" && !seen[p.PauseBefore] {
		return fmt.Errorf("pause stage %q not found", p.PauseBefore)
	}
	return nil
}

// PauseIndex returns the index of the interruption stage, or -1 when the
// pipeline has none.
func (p *Pipeline) PauseIndex() int {
	if p.PauseBefore == "" {
		return -1
	}
	for i, stage := range p.Stages {
		if stage.Name() == p.PauseBefore {
			return i
		}
	}
	return -1
}

// StageNames returns the declared stage ordering.
func (p *Pipeline) StageNames() []string {
	names := make([]string, 0, len(p.Stages))
	for _, stage := range p.Stages {
		names = append(names, stage.Name())
	}
	return names
}

// Definition is a serializable description of a pipeline, for inspection
// tooling.
type Definition struct {
	Name        string   `json:"name" yaml:"name"`
	Stages      []string `json:"stages" yaml:"stages"`
	PauseBefore string   `json:"pause_before,omitempty" yaml:"pause_before,omitempty"`
}

// Definition returns the pipeline's serializable description.
func (p *Pipeline) Definition() Definition {
	return Definition{
		Name:        p.Name,
		Stages:      p.StageNames(),
		PauseBefore: p.PauseBefore,
	}
}

// MarshalYAML serializes the pipeline definition to YAML.
func (p *Pipeline) MarshalYAML() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return yaml.Marshal(p.Definition())
}
