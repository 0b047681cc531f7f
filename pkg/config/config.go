// Package config loads brigade configuration from file and environment.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Weather   WeatherConfig   `koanf:"weather"`
	Images    ImageConfig     `koanf:"images"`
	Data      DataConfig      `koanf:"data"`
	Engine    EngineConfig    `koanf:"engine"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type EngineConfig struct {
	// StageTimeoutSeconds bounds a single stage; 0 disables the bound.
	StageTimeoutSeconds int `koanf:"stage_timeout_seconds"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // gemini, ollama
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

type WeatherConfig struct {
	APIKey  string `koanf:"api_key"`
	City    string `koanf:"city"`
	BaseURL string `koanf:"base_url"`
}

type ImageConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

type DataConfig struct {
	StockPath     string `koanf:"stock_path"`
	MenuPath      string `koanf:"menu_path"`
	ReportsDir    string `koanf:"reports_dir"`
	MemoryPath    string `koanf:"memory_path"`
	DecisionsPath string `koanf:"decisions_path"`
	CheckpointDB  string `koanf:"checkpoint_db"`
	AssetsDir     string `koanf:"assets_dir"`
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("llm.provider", "gemini")
	k.Set("llm.model", "gemini-flash-latest")
	k.Set("llm.base_url", "http://localhost:11434")

	k.Set("weather.city", "Sundsvall")
	k.Set("weather.base_url", "http://api.weatherapi.com/v1")

	k.Set("images.base_url", "https://api.kie.ai/v1")
	k.Set("images.model", "nano-banana")

	k.Set("data.stock_path", "data/stock.json")
	k.Set("data.menu_path", "data/Menu.md")
	k.Set("data.reports_dir", "data/daily_reports")
	k.Set("data.memory_path", "data/memory.json")
	k.Set("data.decisions_path", "data/decisions.jsonl")
	k.Set("data.checkpoint_db", "data/checkpoints.db")
	k.Set("data.assets_dir", "generated_assets")

	k.Set("engine.stage_timeout_seconds", 120)

	k.Set("telemetry.enabled", false)
	k.Set("telemetry.exporter", "stdout")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (BRIGADE_LLM_PROVIDER -> llm.provider)
	if err := k.Load(env.Provider("BRIGADE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "BRIGADE_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
