package agents

import (
	"context"
	"fmt"

	"github.com/kafeai/brigade/pkg/weather"
	"github.com/kafeai/brigade/pkg/workflow"
)

// PredictorAgent fetches tomorrow's weather and sets the run's target date.
// Decisions are made for the next business day, hence the day offset of 1.
type PredictorAgent struct {
	Weather weather.Provider
	City    string
	// Event overrides the "no events" line when a local event is known.
	Event string
}

func (a *PredictorAgent) Name() string { return StagePredictor }

// Run implements workflow.Stage.
func (a *PredictorAgent) Run(ctx context.Context, _ *workflow.State) (*workflow.Update, error) {
	forecast, err := a.Weather.Forecast(ctx, a.City, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch weather: %w", err)
	}

	event := a.Event
	if event == "" {
		event = "No major local events scheduled."
	}
	entry := fmt.Sprintf(
		"%s: Forecast for tomorrow in %s: %s, %.1f°C. Rain Chance: %d%%. | %s",
		StagePredictor, a.City, forecast.Condition, forecast.AvgTempC, forecast.RainChance, event)

	return &workflow.Update{
		Context:    []string{entry},
		TargetDate: workflow.String(forecast.Date),
	}, nil
}
