package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kafeai/brigade/pkg/memory"
	"github.com/kafeai/brigade/pkg/store"
	"github.com/kafeai/brigade/pkg/workflow"
)

// Monthly cost structure of the restaurant, in SEK.
const (
	rentMonthly      = 60000.0
	staffMonthly     = 50000.0
	utilitiesMonthly = 2000.0
	cogsRate         = 0.30
)

// dailyFixedCost is the per-day share of the monthly fixed costs.
const dailyFixedCost = (rentMonthly + staffMonthly + utilitiesMonthly) / 30

// PostMortemAgent evaluates the most recent business day: a financial
// summary of actuals against the cost structure, plus the memory feedback
// step that judges the matching pending episode against reality.
type PostMortemAgent struct {
	Reports *store.ReportStore
	Memory  memory.Store
	Judge   memory.Judge
}

func (a *PostMortemAgent) Name() string { return StagePostMortem }

// Run implements workflow.Stage.
func (a *PostMortemAgent) Run(ctx context.Context, state *workflow.State) (*workflow.Update, error) {
	dates, err := a.Reports.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return &workflow.Update{
			Context: []string{fmt.Sprintf("%s: No daily reports found.", StagePostMortem)},
		}, nil
	}
	report, err := a.Reports.Read(ctx, dates[0])
	if err != nil {
		return nil, err
	}

	gross := report.SalesSummary.TotalGross
	net := report.SalesSummary.TotalNet
	cogs := net * cogsRate
	profit := net - cogs - dailyFixedCost
	if usedMinimumStaffing(state.Decision) {
		profit += (staffMonthly / 30) * 0.4
	}

	summary := fmt.Sprintf(
		"--- Financial %s (%s) ---\n"+
			"Actual Gross Sales: %g SEK\n"+
			"Net Sales: %g SEK\n"+
			"Operating Profit (Daily): %.2f SEK\n",
		StagePostMortem, report.Date, gross, net, profit)

	notes := a.calibrate(ctx, report.Date, gross, net)

	entry := summary
	if len(notes) > 0 {
		entry += "\n" + strings.Join(notes, " | ")
	}
	return &workflow.Update{Context: []string{entry}}, nil
}

// calibrate judges the pending episode for the report date against actual
// sales. Judge failures are reported as notes, not stage failures, so the
// financial summary still lands in context.
func (a *PostMortemAgent) calibrate(ctx context.Context, date string, gross, net float64) []string {
	if a.Memory == nil || a.Judge == nil {
		return nil
	}
	actuals := fmt.Sprintf("Gross: %g, Net: %g", gross, net)
	episode, err := a.Memory.Evaluate(ctx, date, actuals, a.Judge)
	if err != nil {
		return []string{fmt.Sprintf("Calibration failed: %v", err)}
	}
	if episode == nil {
		return nil
	}
	notes := []string{fmt.Sprintf("Memory Update: Episode %s marked as %s.", date, episode.Status)}
	if episode.Status == memory.StatusOverturned {
		notes = append(notes, fmt.Sprintf("Lesson: %s", episode.BiasCorrection))
	}
	return notes
}

// usedMinimumStaffing reports whether the decision invoked the reduced
// staffing plan, which earns the corresponding cost saving.
func usedMinimumStaffing(decision string) bool {
	return strings.Contains(decision, "MVS") ||
		strings.Contains(decision, "Minimum Viable Staffing")
}
