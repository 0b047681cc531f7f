// Package agents contains the stage implementations of the daily operating
// pipeline: sales forecast, weather prediction, inventory analysis, dynamic
// pricing, poster generation, decision synthesis, order execution, and the
// post-mortem reflection.
//
// Each agent is a workflow.Stage: it reads the accumulated state and returns
// a partial update. Failures are reported as errors and absorbed by the
// engine, never handled with local fallbacks that would hide them.
package agents

import "strings"

// joinContext renders the accumulated context entries for prompt injection.
func joinContext(entries []string) string {
	return strings.Join(entries, "\n")
}

// Stage names, as they appear in context entries and error markers.
const (
	StageForecast   = "Sales Forecast"
	StagePredictor  = "Predictor"
	StageInventory  = "Inventory Steward"
	StagePricing    = "Dynamic Pricing"
	StagePoster     = "Poster Agent"
	StageManager    = "Manager"
	StageExecutor   = "Order Execution"
	StagePostMortem = "Post-mortem"
)
