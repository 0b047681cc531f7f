package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kafeai/brigade/pkg/llm"
	"github.com/kafeai/brigade/pkg/memory"
	"github.com/kafeai/brigade/pkg/workflow"
)

// lessonCount is how many past-mistake corrections feed the COO prompt.
const lessonCount = 3

// ManagerAgent synthesizes the accumulated context, human feedback included,
// into the final operating decision. Lessons from overturned past decisions
// are injected into the persona to bias it away from repeated mistakes.
type ManagerAgent struct {
	LLM    llm.Provider
	Model  string
	Memory memory.Store
}

func (a *ManagerAgent) Name() string { return StageManager }

// Run implements workflow.Stage.
func (a *ManagerAgent) Run(ctx context.Context, state *workflow.State) (*workflow.Update, error) {
	lessons := ""
	if a.Memory != nil {
		corrections, err := a.Memory.RecentLessons(ctx, lessonCount)
		if err == nil && len(corrections) > 0 {
			var b strings.Builder
			b.WriteString("\n\nCRITICAL LESSONS FROM PAST MISTAKES:\n")
			for _, c := range corrections {
				fmt.Fprintf(&b, "- %s\n", c)
			}
			lessons = b.String()
		}
	}

	system := fmt.Sprintf(
		"You are the AI COO of kafeAI, a restaurant in Sweden. "+
			"Your style is sharp, data-driven, and ruthlessly efficient. "+
			"You must weigh the 'Local Event' against the 'Weather Forecast'. "+
			"Note: In Sweden, rain significantly kills terrace (Uteservering) culture. "+
			"If it rains, people stay home; if it's sunny, demand triples.\n%s\n"+
			"Your response MUST include:\n"+
			"1. Analysis (Weather vs Event impact)\n"+
			"2. Action (Specific order quantities & staffing advice)\n"+
			"3. Reasoning (Why this is the most profitable path)",
		lessons)

	decision, err := llm.Prompt(ctx, a.LLM, a.Model, system,
		fmt.Sprintf("Current Context:\n%s", joinContext(state.Context)))
	if err != nil {
		return nil, err
	}
	return &workflow.Update{
		Decision: workflow.String(decision),
		Context:  []string{fmt.Sprintf("%s: Decision issued.", StageManager)},
	}, nil
}
