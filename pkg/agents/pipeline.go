package agents

import (
	"fmt"
	"log/slog"

	"github.com/kafeai/brigade/pkg/imagegen"
	"github.com/kafeai/brigade/pkg/llm"
	"github.com/kafeai/brigade/pkg/memory"
	"github.com/kafeai/brigade/pkg/store"
	"github.com/kafeai/brigade/pkg/weather"
	"github.com/kafeai/brigade/pkg/workflow"
)

// PipelineName identifies the daily operating pipeline.
const PipelineName = "daily-ops"

// Deps bundles the external services and stores the pipeline stages need.
type Deps struct {
	LLM       llm.Provider
	Model     string
	Weather   weather.Provider
	City      string
	Images    imagegen.Generator
	Stock     *store.InventoryStore
	Reports   *store.ReportStore
	Memory    memory.Store
	MenuPath  string
	AssetsDir string
	Logger    *slog.Logger
}

func (d *Deps) validate() error {
	switch {
	case d.LLM == nil:
		return fmt.Errorf("llm provider is required")
	case d.Weather == nil:
		return fmt.Errorf("weather provider is required")
	case d.Stock == nil:
		return fmt.Errorf("inventory store is required")
	case d.Reports == nil:
		return fmt.Errorf("report store is required")
	case d.Memory == nil:
		return fmt.Errorf("memory store is required")
	}
	return nil
}

// NewPipeline assembles the daily operating pipeline. The run pauses for
// human review before the pricing stage, the first step with irreversible
// consequences downstream.
func NewPipeline(deps Deps) (*workflow.Pipeline, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	images := deps.Images
	if images == nil {
		images = imagegen.NewPlaceholder()
	}

	p := &workflow.Pipeline{
		Name: PipelineName,
		Stages: []workflow.Stage{
			&ForecastAgent{LLM: deps.LLM, Model: deps.Model, Reports: deps.Reports},
			&PredictorAgent{Weather: deps.Weather, City: deps.City},
			&InventoryAgent{LLM: deps.LLM, Model: deps.Model, Stock: deps.Stock, MenuPath: deps.MenuPath},
			&PricingAgent{LLM: deps.LLM, Model: deps.Model},
			&PosterAgent{Images: images, Fallback: imagegen.NewPlaceholder(), AssetsDir: deps.AssetsDir},
			&ManagerAgent{LLM: deps.LLM, Model: deps.Model, Memory: deps.Memory},
			&OrderExecutionAgent{LLM: deps.LLM, Model: deps.Model, Stock: deps.Stock, Memory: deps.Memory, Logger: deps.Logger},
			&PostMortemAgent{Reports: deps.Reports, Memory: deps.Memory, Judge: &LLMJudge{LLM: deps.LLM, Model: deps.Model}},
		},
		PauseBefore: StagePricing,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
