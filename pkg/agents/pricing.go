package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kafeai/brigade/pkg/errors"
	"github.com/kafeai/brigade/pkg/llm"
	"github.com/kafeai/brigade/pkg/workflow"
)

const pricingSystemPrompt = `You are the Revenue Manager for kafeAI. Your goal is to maximize daily revenue.
Analyze the provided context (Weather, Inventory, Events) and decide if a promotion is needed.
Triggers:
- Bad weather (Snow, Rain, Temp < -10C) -> Boost comfort food/warm drinks.
- High perishable inventory (Stock > Target) -> Discount to clear.
- Low traffic expected -> High value offer (BOGO).

If NO promotion is needed, return an empty JSON object: {}.
If a promotion IS needed, return a valid JSON object with this schema:
{
  "promotion_id": "PROMO_NAME",
  "theme": "Marketing Theme (e.g. Cozy Winter)",
  "product_category": "Target Category",
  "product_item": "Specific Item or ALL_CATEGORY",
  "discount_type": "e.g. BOGO_FREE, 50_PERCENT_OFF",
  "valid_until": "YYYY-MM-DD HH:MM:SS",
  "reason": "Brief strategy explanation",
  "visual_prompt": "Keywords for AI image generator (atmosphere, lighting, subject)",
  "marketing_copy_headline": "Catchy Headline (Short)",
  "marketing_copy_body": "Engaging body text (max 20 words)",
  "price_original": "Original Price SEK",
  "price_promo": "Promo Price SEK"
}`

// PricingAgent decides whether to run a promotion. No promotion is a valid
// outcome, reported as a plain context entry with no promotion data.
type PricingAgent struct {
	LLM   llm.Provider
	Model string
}

func (a *PricingAgent) Name() string { return StagePricing }

// Run implements workflow.Stage.
func (a *PricingAgent) Run(ctx context.Context, state *workflow.State) (*workflow.Update, error) {
	text, err := llm.Prompt(ctx, a.LLM, a.Model, pricingSystemPrompt,
		fmt.Sprintf("Current Context:\n%s", joinContext(state.Context)))
	if err != nil {
		return nil, err
	}

	payload, err := llm.ExtractJSONObject(text)
	if err != nil {
		return nil, err
	}
	var promo workflow.Promotion
	if err := json.Unmarshal([]byte(payload), &promo); err != nil {
		return nil, errors.New(errors.CodeParse, "malformed promotion payload", err)
	}
	if promo.PromotionID == "" {
		return &workflow.Update{
			Context: []string{fmt.Sprintf("%s: No promotion active.", StagePricing)},
		}, nil
	}
	return &workflow.Update{
		Promotion: &promo,
		Context: []string{fmt.Sprintf("%s: Active Promo [%s] - %s",
			StagePricing, promo.PromotionID, promo.Reason)},
	}, nil
}
