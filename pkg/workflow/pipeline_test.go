package workflow

import (
	"context"
	"strings"
	"testing"
)

func noopStage(name string) Stage {
	return StageFunc{
		StageName: name,
		Fn: func(ctx context.Context, state *State) (*Update, error) {
			return &Update{Context: []string{name + ": ok"}}, nil
		},
	}
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	p := &Pipeline{
		Name:   "test",
		Stages: []Stage{noopStage("a"), noopStage("a")},
	}
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate-name error, got %v", err)
	}
}

func TestValidateRejectsUnknownPauseStage(t *testing.T) {
	p := &Pipeline{
		Name:        "test",
		Stages:      []Stage{noopStage("a")},
		PauseBefore: "missing",
	}
	if err := p.Validate(); err == nil {
		t.Fatalf("expected error for unknown pause stage")
	}
}

func TestPauseIndex(t *testing.T) {
	p := &Pipeline{
		Name:        "test",
		Stages:      []Stage{noopStage("a"), noopStage("b"), noopStage("c")},
		PauseBefore: "b",
	}
	if got := p.PauseIndex(); got != 1 {
		t.Fatalf("pause index = %d, want 1", got)
	}

	p.PauseBefore = ""
	if got := p.PauseIndex(); got != -1 {
		t.Fatalf("pause index without pause = %d, want -1", got)
	}
}

func TestMarshalYAML(t *testing.T) {
	p := &Pipeline{
		Name:        "daily-ops",
		Stages:      []Stage{noopStage("a"), noopStage("b")},
		PauseBefore: "b",
	}
	out, err := p.MarshalYAML()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	text := string(out)
	for _, want := range []string{"daily-ops", "pause_before: b", "- a"} {
		if !strings.Contains(text, want) {
			t.Fatalf("yaml missing %q:\n%s", want, text)
		}
	}
}
