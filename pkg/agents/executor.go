package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kafeai/brigade/pkg/errors"
	"github.com/kafeai/brigade/pkg/llm"
	"github.com/kafeai/brigade/pkg/memory"
	"github.com/kafeai/brigade/pkg/store"
	"github.com/kafeai/brigade/pkg/workflow"
)

// orderLine is one parsed replenishment instruction.
type orderLine struct {
	Item        string  `json:"item"`
	AmountToAdd float64 `json:"amount_to_add"`
}

// OrderExecutionAgent parses the COO decision into concrete replenishment
// quantities, applies them to the stock ledger, and records the PENDING
// memory episode for the target date.
type OrderExecutionAgent struct {
	LLM    llm.Provider
	Model  string
	Stock  *store.InventoryStore
	Memory memory.Store
	Logger *slog.Logger
}

func (a *OrderExecutionAgent) Name() string { return StageExecutor }

// Run implements workflow.Stage.
func (a *OrderExecutionAgent) Run(ctx context.Context, state *workflow.State) (*workflow.Update, error) {
	stock, err := a.Stock.Read(ctx)
	if err != nil {
		return nil, err
	}
	validItems := make([]string, 0, len(stock.Inventory))
	for _, item := range stock.Inventory {
		validItems = append(validItems, item.Name)
	}

	system := fmt.Sprintf(
		"You are the Order Executioner. Parse the provided COO decision and extract a JSON list of items to order. "+
			"Each object should have 'item' and 'amount_to_add'. "+
			"IMPORTANT: You MUST use the exact item names from this list: %v. "+
			"If an item in the decision is not in the list, try to map it to the closest match or exclude it. "+
			"If no specific order is mentioned, return an empty list: []."+
			"\n\nOutput format example: [{\"item\": \"sallad\", \"amount_to_add\": 10}]",
		validItems)

	text, err := llm.Prompt(ctx, a.LLM, a.Model, system,
		fmt.Sprintf("Decision to parse:\n%s", state.Decision))
	if err != nil {
		return nil, err
	}
	payload, err := llm.ExtractJSONArray(text)
	if err != nil {
		return nil, err
	}
	var orders []orderLine
	if err := json.Unmarshal([]byte(payload), &orders); err != nil {
		return nil, errors.New(errors.CodeParse, "malformed order payload", err)
	}

	a.recordEpisode(ctx, state)

	if len(orders) == 0 {
		return &workflow.Update{
			Context: []string{fmt.Sprintf("%s: No items to order based on decision.", StageExecutor)},
		}, nil
	}

	// Only items already in the ledger are ordered; an unknown name from
	// the model is logged, not created.
	canonical := make(map[string]string, len(validItems))
	for _, name := range validItems {
		canonical[strings.ToLower(name)] = name
	}
	additions := make(map[string]float64)
	updates := make([]string, 0, len(orders))
	for _, order := range orders {
		name, ok := canonical[strings.ToLower(order.Item)]
		if !ok {
			updates = append(updates, fmt.Sprintf("%s (unknown item, ignored)", order.Item))
			continue
		}
		additions[name] += order.AmountToAdd
		updates = append(updates, fmt.Sprintf("%s (+%g)", name, order.AmountToAdd))
	}
	if len(additions) > 0 {
		if _, err := a.Stock.Apply(ctx, additions); err != nil {
			return nil, err
		}
	}

	return &workflow.Update{
		Context: []string{fmt.Sprintf("%s Successful: Updated %s",
			StageExecutor, strings.Join(updates, ", "))},
	}, nil
}

// recordEpisode stores the PENDING memory entry for the target date. A
// memory failure must not fail order execution, so it is only logged.
func (a *OrderExecutionAgent) recordEpisode(ctx context.Context, state *workflow.State) {
	if a.Memory == nil || state.TargetDate == "" {
		return
	}
	prediction := "Unknown Context"
	for _, entry := range state.Context {
		if strings.Contains(entry, StagePredictor+":") {
			prediction = entry
			break
		}
	}
	inserted, err := a.Memory.RecordPending(ctx, state.TargetDate, prediction, state.Decision)
	if err != nil {
		if a.Logger != nil {
			a.Logger.WarnContext(ctx, "failed to record memory episode",
				"date", state.TargetDate, "error", err)
		}
		return
	}
	if inserted && a.Logger != nil {
		a.Logger.InfoContext(ctx, "recorded memory episode", "date", state.TargetDate)
	}
}
