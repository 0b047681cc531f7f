package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kafeai/brigade/pkg/checkpoint"
	"github.com/kafeai/brigade/pkg/imagegen"
	"github.com/kafeai/brigade/pkg/llm"
	"github.com/kafeai/brigade/pkg/memory"
	"github.com/kafeai/brigade/pkg/store"
	"github.com/kafeai/brigade/pkg/weather"
	"github.com/kafeai/brigade/pkg/workflow"
)

type stubWeather struct {
	forecast weather.Forecast
	err      error
}

func (s stubWeather) Forecast(_ context.Context, _ string, _ int) (*weather.Forecast, error) {
	if s.err != nil {
		return nil, s.err
	}
	f := s.forecast
	return &f, nil
}

// fixtures seeds a temp data directory with stock, menu and one report.
type fixtures struct {
	stock   *store.InventoryStore
	reports *store.ReportStore
	memory  *memory.FileStore
	menu    string
	assets  string
}

func newFixtures(t *testing.T) *fixtures {
	t.Helper()
	dir := t.TempDir()

	stockPath := filepath.Join(dir, "stock.json")
	stockSeed := `{
  "inventory": [
    {"item": "sallad", "quantity": 5, "unit": "kg"},
    {"item": "kaffe", "quantity": 12, "unit": "kg"}
  ],
  "metadata": {"last_updated": "2026-08-01 10:00:00"}
}`
	if err := os.WriteFile(stockPath, []byte(stockSeed), 0o600); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	menuPath := filepath.Join(dir, "Menu.md")
	if err := os.WriteFile(menuPath, []byte("# Menu\n- Sallad (target: 20 kg)\n- Kaffe (target: 15 kg)\n"), 0o600); err != nil {
		t.Fatalf("seed menu: %v", err)
	}

	reportsDir := filepath.Join(dir, "daily_reports")
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		t.Fatalf("mkdir reports: %v", err)
	}
	report := store.DailyReport{
		SalesSummary:    store.SalesSummary{TotalGross: 12000, TotalNet: 9600},
		SalesByCategory: map[string]float64{"coffee": 6000},
	}
	data, _ := json.Marshal(report)
	if err := os.WriteFile(filepath.Join(reportsDir, "2026-08-30.json"), data, 0o600); err != nil {
		t.Fatalf("seed report: %v", err)
	}

	return &fixtures{
		stock:   store.NewInventoryStore(stockPath),
		reports: store.NewReportStore(reportsDir),
		memory:  memory.NewFileStore(filepath.Join(dir, "memory.json")),
		menu:    menuPath,
		assets:  filepath.Join(dir, "generated_assets"),
	}
}

func TestPredictorAgent(t *testing.T) {
	agent := &PredictorAgent{
		Weather: stubWeather{forecast: weather.Forecast{
			Date: "2026-09-01", Condition: "Heavy rain", AvgTempC: 9.5, RainChance: 85,
		}},
		City: "Sundsvall",
	}

	update, err := agent.Run(context.Background(), &workflow.State{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if update.TargetDate == nil || *update.TargetDate != "2026-09-01" {
		t.Fatalf("target date = %v", update.TargetDate)
	}
	entry := update.Context[0]
	for _, want := range []string{"Predictor:", "Sundsvall", "Heavy rain", "Rain Chance: 85%"} {
		if !strings.Contains(entry, want) {
			t.Fatalf("entry %q missing %q", entry, want)
		}
	}
}

func TestPredictorAgentWeatherFailure(t *testing.T) {
	agent := &PredictorAgent{
		Weather: stubWeather{err: fmt.Errorf("connection refused")},
		City:    "Sundsvall",
	}
	if _, err := agent.Run(context.Background(), &workflow.State{}); err == nil {
		t.Fatalf("expected weather failure to surface")
	}
}

func TestForecastAgentBuildsHistoryPrompt(t *testing.T) {
	f := newFixtures(t)
	mock := llm.NewScriptedMockProvider("Expect 13k gross tomorrow.")
	agent := &ForecastAgent{LLM: mock, Model: "test", Reports: f.reports}

	update, err := agent.Run(context.Background(), &workflow.State{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(update.Context[0], "Sales Forecast Report:") {
		t.Fatalf("entry = %q", update.Context[0])
	}
	system := mock.Requests[0].Messages[0].Content
	if !strings.Contains(system, "2026-08-30") || !strings.Contains(system, "12000") {
		t.Fatalf("history missing from prompt:\n%s", system)
	}
}

func TestInventoryAgentPromptCarriesMenuAndStock(t *testing.T) {
	f := newFixtures(t)
	mock := llm.NewScriptedMockProvider("Order 15 kg sallad.")
	agent := &InventoryAgent{LLM: mock, Model: "test", Stock: f.stock, MenuPath: f.menu}

	update, err := agent.Run(context.Background(), &workflow.State{
		Context: []string{"Predictor: sunny tomorrow"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(update.Context[0], "Inventory Steward Analysis:") {
		t.Fatalf("entry = %q", update.Context[0])
	}
	system := mock.Requests[0].Messages[0].Content
	for _, want := range []string{"Menu", "sallad", "kaffe"} {
		if !strings.Contains(system, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	user := mock.Requests[0].Messages[1].Content
	if !strings.Contains(user, "Predictor: sunny tomorrow") {
		t.Fatalf("context not passed to model: %q", user)
	}
}

func TestPricingAgentActivePromotion(t *testing.T) {
	promo := `{
  "promotion_id": "PROMO_RAINY_FIKA",
  "theme": "Cozy Rainy Day",
  "product_category": "Hot Drinks",
  "product_item": "kaffe",
  "discount_type": "BOGO_FREE",
  "valid_until": "2026-09-01 20:00:00",
  "reason": "Rain kills terrace traffic, pull guests inside.",
  "visual_prompt": "steaming coffee by a rainy window",
  "marketing_copy_headline": "Rainy Day Fika",
  "marketing_copy_body": "Buy one coffee, get one free.",
  "price_original": "45",
  "price_promo": "45 for two"
}`
	mock := llm.NewScriptedMockProvider("```json\n" + promo + "\n```")
	agent := &PricingAgent{LLM: mock, Model: "test"}

	update, err := agent.Run(context.Background(), &workflow.State{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if update.Promotion == nil || update.Promotion.PromotionID != "PROMO_RAINY_FIKA" {
		t.Fatalf("promotion = %+v", update.Promotion)
	}
	if update.Promotion.Headline != "Rainy Day Fika" {
		t.Fatalf("headline = %q", update.Promotion.Headline)
	}
	if !strings.Contains(update.Context[0], "Active Promo [PROMO_RAINY_FIKA]") {
		t.Fatalf("entry = %q", update.Context[0])
	}
}

func TestPricingAgentNoPromotion(t *testing.T) {
	mock := llm.NewScriptedMockProvider("{}")
	agent := &PricingAgent{LLM: mock, Model: "test"}

	update, err := agent.Run(context.Background(), &workflow.State{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if update.Promotion != nil {
		t.Fatalf("promotion = %+v, want none", update.Promotion)
	}
	if update.Context[0] != "Dynamic Pricing: No promotion active." {
		t.Fatalf("entry = %q", update.Context[0])
	}
}

func TestPricingAgentMalformedResponse(t *testing.T) {
	mock := llm.NewScriptedMockProvider("I cannot answer in JSON today.")
	agent := &PricingAgent{LLM: mock, Model: "test"}

	if _, err := agent.Run(context.Background(), &workflow.State{}); err == nil {
		t.Fatalf("expected parse failure to surface")
	}
}

func TestPosterAgentNoPromotion(t *testing.T) {
	f := newFixtures(t)
	agent := &PosterAgent{Images: nil, Fallback: nil, AssetsDir: f.assets}

	update, err := agent.Run(context.Background(), &workflow.State{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if update.PosterPath != nil {
		t.Fatalf("poster path set without promotion")
	}
	if update.Context[0] != "Poster Agent: No promotion data found." {
		t.Fatalf("entry = %q", update.Context[0])
	}
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("image backend down")
}

func TestPosterAgentFallsBackToPlaceholder(t *testing.T) {
	f := newFixtures(t)
	agent := &PosterAgent{
		Images:    failingGenerator{},
		Fallback:  imagegen.NewPlaceholder(),
		AssetsDir: f.assets,
	}
	state := &workflow.State{Promotion: &workflow.Promotion{
		PromotionID:  "PROMO_RAINY_FIKA",
		VisualPrompt: "steaming coffee by a rainy window",
	}}

	update, err := agent.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if update.PosterPath == nil {
		t.Fatalf("no poster path")
	}
	base := filepath.Base(*update.PosterPath)
	if !strings.HasPrefix(base, "poster_PROMO_RAINY_FIKA_") || !strings.HasSuffix(base, ".png") {
		t.Fatalf("poster name = %q", base)
	}
	if _, err := os.Stat(*update.PosterPath); err != nil {
		t.Fatalf("poster file: %v", err)
	}
}

func TestManagerAgentInjectsLessons(t *testing.T) {
	f := newFixtures(t)
	ctx := context.Background()

	if _, err := f.memory.RecordPending(ctx, "2026-08-20", "p", "d"); err != nil {
		t.Fatalf("record: %v", err)
	}
	overturn := memory.JudgeFunc(func(ctx context.Context, ep memory.Episode, actuals string) (*memory.Judgment, error) {
		return &memory.Judgment{
			Status:         memory.StatusOverturned,
			BiasCorrection: "distrust sunny forecasts in August",
		}, nil
	})
	if _, err := f.memory.Evaluate(ctx, "2026-08-20", "actuals", overturn); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	mock := llm.NewScriptedMockProvider("Order 20 kg sallad. Apply MVS staffing.")
	agent := &ManagerAgent{LLM: mock, Model: "test", Memory: f.memory}

	update, err := agent.Run(ctx, &workflow.State{Context: []string{"Predictor: sunny"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if update.Decision == nil || !strings.Contains(*update.Decision, "MVS") {
		t.Fatalf("decision = %v", update.Decision)
	}
	if update.Context[0] != "Manager: Decision issued." {
		t.Fatalf("entry = %q", update.Context[0])
	}
	system := mock.Requests[0].Messages[0].Content
	if !strings.Contains(system, "CRITICAL LESSONS FROM PAST MISTAKES") ||
		!strings.Contains(system, "distrust sunny forecasts in August") {
		t.Fatalf("lessons missing from prompt:\n%s", system)
	}
}

func TestManagerAgentWithoutLessons(t *testing.T) {
	f := newFixtures(t)
	mock := llm.NewScriptedMockProvider("Hold steady.")
	agent := &ManagerAgent{LLM: mock, Model: "test", Memory: f.memory}

	if _, err := agent.Run(context.Background(), &workflow.State{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Contains(mock.Requests[0].Messages[0].Content, "CRITICAL LESSONS") {
		t.Fatalf("lessons injected with empty memory")
	}
}

func TestOrderExecutionAppliesOrdersAndRecordsEpisode(t *testing.T) {
	f := newFixtures(t)
	mock := llm.NewScriptedMockProvider(`[{"item": "Sallad", "amount_to_add": 10}, {"item": "pizza", "amount_to_add": 3}]`)
	agent := &OrderExecutionAgent{LLM: mock, Model: "test", Stock: f.stock, Memory: f.memory}
	ctx := context.Background()

	state := &workflow.State{
		Context:    []string{"Predictor: Forecast for tomorrow in Sundsvall: Sunny"},
		Decision:   "Order 10 sallad.",
		TargetDate: "2026-09-01",
	}
	update, err := agent.Run(ctx, state)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	entry := update.Context[0]
	if !strings.HasPrefix(entry, "Order Execution Successful:") {
		t.Fatalf("entry = %q", entry)
	}
	if !strings.Contains(entry, "sallad (+10)") || !strings.Contains(entry, "pizza (unknown item, ignored)") {
		t.Fatalf("entry = %q", entry)
	}

	doc, err := f.stock.Read(ctx)
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	if i := doc.Find("sallad"); doc.Inventory[i].Quantity != 15 {
		t.Fatalf("sallad = %g, want 15", doc.Inventory[i].Quantity)
	}
	if doc.Find("pizza") >= 0 {
		t.Fatalf("unknown item created in ledger")
	}

	episodes, err := f.memory.Episodes(ctx)
	if err != nil {
		t.Fatalf("episodes: %v", err)
	}
	if len(episodes) != 1 || episodes[0].Date != "2026-09-01" || episodes[0].Status != memory.StatusPending {
		t.Fatalf("episodes = %+v", episodes)
	}
	if !strings.Contains(episodes[0].PredictionSummary, "Predictor:") {
		t.Fatalf("prediction summary = %q", episodes[0].PredictionSummary)
	}
}

func TestOrderExecutionNoOrders(t *testing.T) {
	f := newFixtures(t)
	mock := llm.NewScriptedMockProvider("[]")
	agent := &OrderExecutionAgent{LLM: mock, Model: "test", Stock: f.stock, Memory: f.memory}

	update, err := agent.Run(context.Background(), &workflow.State{
		Decision:   "No orders today.",
		TargetDate: "2026-09-01",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if update.Context[0] != "Order Execution: No items to order based on decision." {
		t.Fatalf("entry = %q", update.Context[0])
	}
	episodes, _ := f.memory.Episodes(context.Background())
	if len(episodes) != 1 {
		t.Fatalf("episode not recorded for no-order decision")
	}
}

func TestPostMortemFinancialsAndCalibration(t *testing.T) {
	f := newFixtures(t)
	ctx := context.Background()

	// Pending episode matching the latest report date.
	if _, err := f.memory.RecordPending(ctx, "2026-08-30", "Predictor: sunny, demand triples", "triple sallad order"); err != nil {
		t.Fatalf("record: %v", err)
	}
	judgeLLM := llm.NewScriptedMockProvider(`{"status": "OVERTURNED", "reflection": "it rained all day", "bias_correction": "weight rain chance over condition text"}`)
	agent := &PostMortemAgent{
		Reports: f.reports,
		Memory:  f.memory,
		Judge:   &LLMJudge{LLM: judgeLLM, Model: "test"},
	}

	update, err := agent.Run(ctx, &workflow.State{Decision: "plain staffing"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	entry := update.Context[0]
	for _, want := range []string{
		"Financial Post-mortem (2026-08-30)",
		"Actual Gross Sales: 12000 SEK",
		"Episode 2026-08-30 marked as OVERTURNED",
		"Lesson: weight rain chance over condition text",
	} {
		if !strings.Contains(entry, want) {
			t.Fatalf("entry missing %q:\n%s", want, entry)
		}
	}

	episodes, _ := f.memory.Episodes(ctx)
	if episodes[0].Status != memory.StatusOverturned {
		t.Fatalf("episode status = %s", episodes[0].Status)
	}
}

func TestPostMortemProfitMath(t *testing.T) {
	f := newFixtures(t)
	agent := &PostMortemAgent{Reports: f.reports, Memory: f.memory, Judge: nil}

	update, err := agent.Run(context.Background(), &workflow.State{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// net 9600 - cogs 2880 - daily fixed 3733.33 = 2986.67
	if !strings.Contains(update.Context[0], "Operating Profit (Daily): 2986.67 SEK") {
		t.Fatalf("entry = %q", update.Context[0])
	}
}

func TestPostMortemNoReports(t *testing.T) {
	agent := &PostMortemAgent{Reports: store.NewReportStore(t.TempDir())}
	update, err := agent.Run(context.Background(), &workflow.State{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if update.Context[0] != "Post-mortem: No daily reports found." {
		t.Fatalf("entry = %q", update.Context[0])
	}
}

// TestPipelineEndToEnd drives the full assembly through the engine: start
// pauses before pricing with three context entries, resume with feedback
// completes with nine.
func TestPipelineEndToEnd(t *testing.T) {
	f := newFixtures(t)
	script := llm.NewScriptedMockProvider(
		// Phase 1: forecast, inventory.
		"Expect 13k gross tomorrow.",
		"Order 15 kg sallad before the weekend.",
		// Phase 2: pricing, manager, executor.
		"{}",
		"Order 10 sallad. Keep full staffing.",
		`[{"item": "sallad", "amount_to_add": 10}]`,
	)
	pipeline, err := NewPipeline(Deps{
		LLM:       script,
		Model:     "test",
		Weather:   stubWeather{forecast: weather.Forecast{Date: "2026-09-01", Condition: "Sunny", AvgTempC: 18, RainChance: 5}},
		City:      "Sundsvall",
		Stock:     f.stock,
		Reports:   f.reports,
		Memory:    f.memory,
		MenuPath:  f.menu,
		AssetsDir: f.assets,
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	engine, err := workflow.NewEngine(pipeline, checkpoint.NewMemoryStore())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctx := context.Background()

	paused, err := engine.Start(ctx, "run1", &workflow.State{Issue: "Weekend Strategy"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if paused.Status != workflow.StatusAwaitingInput {
		t.Fatalf("status = %s", paused.Status)
	}
	if len(paused.State.Context) != 3 {
		t.Fatalf("context at pause = %v", paused.State.Context)
	}
	if paused.State.TargetDate != "2026-09-01" {
		t.Fatalf("target date = %q", paused.State.TargetDate)
	}

	final, err := engine.Resume(ctx, "run1", &workflow.Update{
		Feedback: workflow.String("add 5 units of kaffe"),
	})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if final.Status != workflow.StatusCompleted {
		t.Fatalf("status = %s", final.Status)
	}
	// 3 at pause + 1 feedback + 5 remaining stages.
	if len(final.State.Context) != 9 {
		t.Fatalf("final context length = %d: %v", len(final.State.Context), final.State.Context)
	}
	if final.State.Context[3] != "Human Feedback: add 5 units of kaffe" {
		t.Fatalf("feedback entry = %q", final.State.Context[3])
	}
	if final.State.Decision == "" {
		t.Fatalf("no decision produced")
	}

	episodes, _ := f.memory.Episodes(ctx)
	if len(episodes) != 1 || episodes[0].Date != "2026-09-01" {
		t.Fatalf("episodes = %+v", episodes)
	}
	doc, _ := f.stock.Read(ctx)
	if i := doc.Find("sallad"); doc.Inventory[i].Quantity != 15 {
		t.Fatalf("stock not updated: %+v", doc.Inventory)
	}
}
