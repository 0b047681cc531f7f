package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kafeai/brigade/pkg/llm"
	"github.com/kafeai/brigade/pkg/store"
	"github.com/kafeai/brigade/pkg/workflow"
)

// historyWindow is how many recent daily reports feed the forecast.
const historyWindow = 3

// ForecastAgent projects tomorrow's sales targets from recent daily reports.
type ForecastAgent struct {
	LLM     llm.Provider
	Model   string
	Reports *store.ReportStore
}

func (a *ForecastAgent) Name() string { return StageForecast }

// Run implements workflow.Stage.
func (a *ForecastAgent) Run(ctx context.Context, state *workflow.State) (*workflow.Update, error) {
	reports, err := a.Reports.Recent(ctx, historyWindow)
	if err != nil {
		return nil, err
	}

	type daySummary struct {
		Date       string             `json:"date"`
		TotalGross float64            `json:"total_gross"`
		Categories map[string]float64 `json:"categories,omitempty"`
	}
	history := make([]daySummary, 0, len(reports))
	for _, r := range reports {
		history = append(history, daySummary{
			Date:       r.Date,
			TotalGross: r.SalesSummary.TotalGross,
			Categories: r.SalesByCategory,
		})
	}
	historyJSON, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return nil, err
	}

	system := fmt.Sprintf(
		"You are the Sales Forecasting Expert for kafeAI. "+
			"Based on the provided historical sales and weather forecast, predict tomorrow's sales targets. "+
			"Output your prediction in a clear, structured way.\n\n"+
			"History (Last %d days):\n%s\n\n"+
			"Forecast Context:\n%s",
		historyWindow, historyJSON, joinContext(state.Context))

	report, err := llm.Prompt(ctx, a.LLM, a.Model, system,
		"What are the projected sales targets for tomorrow?")
	if err != nil {
		return nil, err
	}
	return &workflow.Update{
		Context: []string{fmt.Sprintf("%s Report:\n%s", StageForecast, report)},
	}, nil
}
