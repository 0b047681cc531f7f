package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kafeai/brigade/pkg/llm"
	"github.com/kafeai/brigade/pkg/store"
	"github.com/kafeai/brigade/pkg/workflow"
)

// InventoryAgent analyzes current stock against the menu and storage
// targets, in the light of the accumulated forecast context.
type InventoryAgent struct {
	LLM      llm.Provider
	Model    string
	Stock    *store.InventoryStore
	MenuPath string
}

func (a *InventoryAgent) Name() string { return StageInventory }

// Run implements workflow.Stage.
func (a *InventoryAgent) Run(ctx context.Context, state *workflow.State) (*workflow.Update, error) {
	menu, err := os.ReadFile(a.MenuPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	stock, err := a.Stock.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	stockJSON, err := json.MarshalIndent(stock, "", "  ")
	if err != nil {
		return nil, err
	}

	system := fmt.Sprintf(
		"You are the Inventory Steward for kafeAI. "+
			"Your goal is to analyze current stock against the menu and storage targets. "+
			"CRITICAL: YOUR REPORT MUST BE IN ENGLISH ONLY.\n\n"+
			"Data provided:\n"+
			"- Menu & Target Storage: (See text below)\n"+
			"- Current Stock: (See JSON below)\n"+
			"- External Context: (Weather, events, etc.)\n\n"+
			"Menu & Target Storage Content:\n%s\n\n"+
			"Current Stock JSON:\n%s\n\n"+
			"Your report should be concise but professional, highlighting:\n"+
			"1. Critical shortages (Current < Target or expected high demand)\n"+
			"2. Recommended replenishment amounts\n"+
			"3. Strategy adjustments based on the forecast provided.",
		menu, stockJSON)

	analysis, err := llm.Prompt(ctx, a.LLM, a.Model, system,
		fmt.Sprintf("Analyze current situation based on context:\n%s", joinContext(state.Context)))
	if err != nil {
		return nil, err
	}
	return &workflow.Update{
		Context: []string{fmt.Sprintf("%s Analysis:\n%s", StageInventory, analysis)},
	}, nil
}
