package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kafeai/brigade/pkg/agents"
	"github.com/kafeai/brigade/pkg/checkpoint"
	"github.com/kafeai/brigade/pkg/config"
	"github.com/kafeai/brigade/pkg/imagegen"
	"github.com/kafeai/brigade/pkg/llm"
	"github.com/kafeai/brigade/pkg/llm/gemini"
	"github.com/kafeai/brigade/pkg/memory"
	"github.com/kafeai/brigade/pkg/store"
	"github.com/kafeai/brigade/pkg/telemetry"
	"github.com/kafeai/brigade/pkg/weather"
	"github.com/kafeai/brigade/pkg/workflow"
)

// app holds the wired services behind every subcommand.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	engine    *workflow.Engine
	stock     *store.InventoryStore
	reports   *store.ReportStore
	memory    memory.Store
	judge     memory.Judge
	decisions *store.DecisionLog
	shutdown  func(context.Context)
}

func buildApp(ctx context.Context, global globalFlags) *app {
	cfg, err := config.Load(global.ConfigPath)
	if err != nil {
		fatal(err)
	}
	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	shutdownTelemetry := func(context.Context) {}
	if cfg.Telemetry.Enabled {
		stop, err := telemetry.InitWithConfig("brigade", version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			fatal(err)
		}
		shutdownTelemetry = func(ctx context.Context) {
			if err := stop(ctx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}
	}

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		fatal(err)
	}

	stock := store.NewInventoryStore(cfg.Data.StockPath)
	reports := store.NewReportStore(cfg.Data.ReportsDir)
	mem := memory.NewFileStore(cfg.Data.MemoryPath)

	var images imagegen.Generator
	if cfg.Images.APIKey != "" {
		images = imagegen.NewClient(cfg.Images.BaseURL, cfg.Images.APIKey, cfg.Images.Model)
	}

	pipeline, err := agents.NewPipeline(agents.Deps{
		LLM:       provider,
		Model:     cfg.LLM.Model,
		Weather:   weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.APIKey),
		City:      cfg.Weather.City,
		Images:    images,
		Stock:     stock,
		Reports:   reports,
		Memory:    mem,
		MenuPath:  cfg.Data.MenuPath,
		AssetsDir: cfg.Data.AssetsDir,
		Logger:    logger,
	})
	if err != nil {
		fatal(err)
	}

	checkpoints, err := checkpoint.Open(cfg.Data.CheckpointDB)
	if err != nil {
		fatal(err)
	}

	opts := []workflow.EngineOption{
		workflow.WithLogger(logger),
		workflow.WithStageTimeout(time.Duration(cfg.Engine.StageTimeoutSeconds) * time.Second),
	}
	if cfg.Telemetry.Enabled {
		metrics, err := telemetry.NewStageMetrics()
		if err != nil {
			fatal(err)
		}
		opts = append(opts, workflow.WithMetrics(metrics))
	}
	engine, err := workflow.NewEngine(pipeline, checkpoints, opts...)
	if err != nil {
		fatal(err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		engine:    engine,
		stock:     stock,
		reports:   reports,
		memory:    mem,
		judge:     &agents.LLMJudge{LLM: provider, Model: cfg.LLM.Model},
		decisions: store.NewDecisionLog(cfg.Data.DecisionsPath),
		shutdown: func(ctx context.Context) {
			if err := checkpoints.Close(); err != nil {
				logger.Warn("closing checkpoint store failed", "error", err)
			}
			shutdownTelemetry(ctx)
		},
	}
}

func buildProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		if cfg.LLM.APIKey != "" {
			return gemini.NewWithAPIKey(ctx, cfg.LLM.APIKey, gemini.WithModel(cfg.LLM.Model))
		}
		return gemini.New(ctx, gemini.WithModel(cfg.LLM.Model))
	case "ollama":
		return llm.NewOllama(cfg.LLM.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func runStart(ctx context.Context, global globalFlags, args []string) {
	issue := ""
	runID := ""
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--issue" && i+1 < len(args):
			issue = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--issue="):
			issue = strings.TrimPrefix(args[i], "--issue=")
		case args[i] == "--run-id" && i+1 < len(args):
			runID = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--run-id="):
			runID = strings.TrimPrefix(args[i], "--run-id=")
		default:
			fatal(fmt.Errorf("unknown run flag %q", args[i]))
		}
	}
	if issue == "" {
		fatal(fmt.Errorf("usage: brigade run --issue <text> [--run-id <id>]"))
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()
	a := buildApp(ctx, global)
	defer a.shutdown(context.Background())

	result, err := a.engine.Start(ctx, runID, &workflow.State{Issue: issue})
	if err != nil {
		fatal(err)
	}
	a.report(ctx, global, result)
}

func runResume(ctx context.Context, global globalFlags, args []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fatal(fmt.Errorf("usage: brigade resume <run-id> [--feedback <text>]"))
	}
	runID := args[0]
	feedback := ""
	for i := 1; i < len(args); i++ {
		switch {
		case args[i] == "--feedback" && i+1 < len(args):
			feedback = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--feedback="):
			feedback = strings.TrimPrefix(args[i], "--feedback=")
		default:
			fatal(fmt.Errorf("unknown resume flag %q", args[i]))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()
	a := buildApp(ctx, global)
	defer a.shutdown(context.Background())

	var update *workflow.Update
	if feedback != "" {
		update = &workflow.Update{Feedback: workflow.String(feedback)}
	}
	result, err := a.engine.Resume(ctx, runID, update)
	if err != nil {
		fatal(err)
	}
	a.report(ctx, global, result)
}

func runState(ctx context.Context, global globalFlags, args []string) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: brigade state <run-id>"))
	}
	ctx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()
	a := buildApp(ctx, global)
	defer a.shutdown(context.Background())

	snap, err := a.engine.Inspect(ctx, args[0])
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(snap)
		return
	}
	fmt.Printf("Run: %s\n", snap.RunID)
	fmt.Printf("Awaiting input: %t\n", snap.AwaitingInput)
	fmt.Printf("Next stage: %d of %d\n", snap.NextStage, len(a.engine.Pipeline().Stages))
	fmt.Printf("Updated: %s\n", snap.UpdatedAt.Format(time.RFC3339))
	printState(snap.State)
}

func runMemory(ctx context.Context, global globalFlags, args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: brigade memory <lessons|episodes|evaluate>"))
	}
	ctx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()
	a := buildApp(ctx, global)
	defer a.shutdown(context.Background())

	switch args[0] {
	case "lessons":
		lessons, err := a.memory.RecentLessons(ctx, 3)
		if err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(lessons)
			return
		}
		if len(lessons) == 0 {
			fmt.Println("No lessons recorded.")
			return
		}
		for _, lesson := range lessons {
			fmt.Printf("- %s\n", lesson)
		}
	case "episodes":
		episodes, err := a.memory.Episodes(ctx)
		if err != nil {
			fatal(err)
		}
		if global.JSON {
			printJSON(episodes)
			return
		}
		for _, ep := range episodes {
			fmt.Printf("%s  %-10s  %s\n", ep.Date, ep.Status, ep.PredictionSummary)
		}
	case "evaluate":
		a.runEvaluate(ctx, global, args[1:])
	default:
		fatal(fmt.Errorf("unknown memory command %q", args[0]))
	}
}

// runEvaluate judges the pending episode for a date against that day's
// actual sales, outside of a pipeline run. Defaults to the latest report.
func (a *app) runEvaluate(ctx context.Context, global globalFlags, args []string) {
	date := ""
	if len(args) > 0 {
		date = args[0]
	}
	if len(args) > 1 {
		fatal(fmt.Errorf("usage: brigade memory evaluate [date]"))
	}
	var report *store.DailyReport
	if date == "" {
		recent, err := a.reports.Recent(ctx, 1)
		if err != nil {
			fatal(err)
		}
		if len(recent) == 0 {
			fatal(fmt.Errorf("no daily reports found"))
		}
		report = recent[0]
	} else {
		var err error
		report, err = a.reports.Read(ctx, date)
		if err != nil {
			fatal(err)
		}
	}

	actuals := fmt.Sprintf("Gross: %g, Net: %g",
		report.SalesSummary.TotalGross, report.SalesSummary.TotalNet)
	episode, err := a.memory.Evaluate(ctx, report.Date, actuals, a.judge)
	if err != nil {
		fatal(err)
	}
	if episode == nil {
		fmt.Printf("No pending episode for %s.\n", report.Date)
		return
	}
	if global.JSON {
		printJSON(episode)
		return
	}
	fmt.Printf("Episode %s marked as %s.\n", episode.Date, episode.Status)
	if episode.Reflection != "" {
		fmt.Printf("Reflection: %s\n", episode.Reflection)
	}
	if episode.BiasCorrection != "" {
		fmt.Printf("Lesson: %s\n", episode.BiasCorrection)
	}
}

func runStock(ctx context.Context, global globalFlags) {
	ctx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()
	a := buildApp(ctx, global)
	defer a.shutdown(context.Background())

	doc, err := a.stock.Read(ctx)
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(doc)
		return
	}
	for _, item := range doc.Inventory {
		fmt.Printf("%-20s %8g %s\n", item.Name, item.Quantity, item.Unit)
	}
}

// report prints an execution result and, on completion, appends the audit
// log entry.
func (a *app) report(ctx context.Context, global globalFlags, result *workflow.ExecutionResult) {
	if result.Status == workflow.StatusCompleted {
		if err := a.decisions.Append(ctx, store.DecisionRecord{
			RunID:      result.RunID,
			TargetDate: result.State.TargetDate,
			Issue:      result.State.Issue,
			Decision:   result.State.Decision,
			PosterPath: result.State.PosterPath,
			Degraded:   isDegraded(result.State),
		}); err != nil {
			a.logger.Warn("failed to append decision log", "error", err)
		}
	}

	if global.JSON {
		printJSON(result)
		return
	}
	fmt.Printf("Run: %s\n", result.RunID)
	fmt.Printf("Status: %s\n", result.Status)
	printState(result.State)
	if result.Status == workflow.StatusAwaitingInput {
		fmt.Printf("\nReview the snapshot, then: brigade resume %s [--feedback <text>]\n", result.RunID)
	}
}

func printState(state *workflow.State) {
	if state == nil {
		return
	}
	fmt.Printf("Issue: %s\n", state.Issue)
	if state.TargetDate != "" {
		fmt.Printf("Target date: %s\n", state.TargetDate)
	}
	if promo := state.Promotion; promo != nil {
		fmt.Printf("Promotion: %s (%s on %s)\n", promo.PromotionID, promo.DiscountType, promo.ProductItem)
		fmt.Printf("Headline: %s\n", promo.Headline)
	}
	if state.PosterPath != "" {
		fmt.Printf("Poster: %s\n", state.PosterPath)
	}
	if len(state.Context) > 0 {
		fmt.Println("\nContext:")
		for _, entry := range state.Context {
			fmt.Printf("  - %s\n", entry)
		}
	}
	if state.Decision != "" {
		fmt.Printf("\nDecision:\n%s\n", state.Decision)
	}
}

// isDegraded reports whether any stage failure was absorbed into context.
func isDegraded(state *workflow.State) bool {
	for _, entry := range state.Context {
		if strings.Contains(entry, " Error:") {
			return true
		}
	}
	return false
}
