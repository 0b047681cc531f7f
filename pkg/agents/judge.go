package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kafeai/brigade/pkg/errors"
	"github.com/kafeai/brigade/pkg/llm"
	"github.com/kafeai/brigade/pkg/memory"
)

// LLMJudge compares a pending episode's prediction and decision against the
// observed actuals and classifies it MATCH or OVERTURNED.
type LLMJudge struct {
	LLM   llm.Provider
	Model string
}

// Judge implements memory.Judge.
func (j *LLMJudge) Judge(ctx context.Context, episode memory.Episode, actuals string) (*memory.Judgment, error) {
	system := fmt.Sprintf(
		"You are the Evaluator. Compare the Prediction vs Actuals.\n"+
			"Prediction: %s\n"+
			"Decision Taken: %s\n"+
			"Actual Result: %s.\n\n"+
			"Did we significantly over-predict or under-predict? Was the decision 'OVERTURNED' by reality?\n"+
			"Output JSON: {\"status\": \"MATCH\" or \"OVERTURNED\", \"reflection\": \"...\", \"bias_correction\": \"...\"}",
		episode.PredictionSummary, episode.Decision, actuals)

	text, err := llm.Prompt(ctx, j.LLM, j.Model, system, "Evaluate the episode.")
	if err != nil {
		return nil, err
	}
	payload, err := llm.ExtractJSONObject(text)
	if err != nil {
		return nil, err
	}
	var judgment memory.Judgment
	if err := json.Unmarshal([]byte(payload), &judgment); err != nil {
		return nil, errors.New(errors.CodeParse, "malformed judgment payload", err)
	}
	return &judgment, nil
}

var _ memory.Judge = (*LLMJudge)(nil)
