package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load(writeConfig(t, "general:\n  log_level: debug\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p := cfg.Pipeline
	if p.MaxClarificationRounds != 5 || p.MinTranscriptForBreadth != 3 || p.MinDistinctCategories != 3 {
		t.Fatalf("clarification defaults = %+v", p)
	}
	if p.LargeDatasetThreshold != 200 || p.BatchSize != 50 || p.BatchWorkers != 4 || p.TopN != 15 || p.SuggestionCount != 3 {
		t.Fatalf("aggregation defaults = %+v", p)
	}
	if len(p.ClosingPhrases) != len(DefaultClosingPhrases) {
		t.Fatalf("closing phrases = %v", p.ClosingPhrases)
	}
	if cfg.Forum.Endpoint != "https://www.reddit.com" || cfg.Forum.CacheTTL != 6*time.Hour || cfg.Forum.TimeWindow != "year" {
		t.Fatalf("forum = %+v", cfg.Forum)
	}
	if cfg.LLM.MaxAttempts != 3 || cfg.LLM.Backoff != 500*time.Millisecond || cfg.LLM.MaxBackoff != 8*time.Second {
		t.Fatalf("llm = %+v", cfg.LLM)
	}
	if cfg.General.DataDir != "./runs" || cfg.General.LogLevel != "debug" || cfg.Server.Address != ":10001" || cfg.Server.RunRetention != time.Hour {
		t.Fatalf("general = %+v server = %+v", cfg.General, cfg.Server)
	}
	if cfg.Storage.Postgres.Enabled() || cfg.Storage.Redis.Enabled() {
		t.Fatalf("storage must be opt-in")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("IDEASCOPE_PIPELINE_MAX_CLARIFICATION_ROUNDS", "7")
	path := writeConfig(t, `
llm:
  providers:
    openai:
      type: openai
      api_key: sk-test
      models:
        fast: {name: gpt-4o-mini}
        deep: {name: gpt-4o}
  routing:
    fallback: fast
    synthesis: deep
pipeline:
  batch_size: 25
  closing_phrases: ["ship it"]
storage:
  postgres:
    url: postgres://u:p@db:5432/ideascope?sslmode=disable
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.MaxClarificationRounds != 7 {
		t.Fatalf("env override ignored: %d", cfg.Pipeline.MaxClarificationRounds)
	}
	if cfg.Pipeline.BatchSize != 25 || len(cfg.Pipeline.ClosingPhrases) != 1 {
		t.Fatalf("pipeline = %+v", cfg.Pipeline)
	}
	r := cfg.LLM.Routing
	if r.Clarify != "fast" || r.Analysis != "fast" || r.Synthesis != "deep" {
		t.Fatalf("routing = %+v", r)
	}
	if err := cfg.LLM.Validate(); err != nil {
		t.Fatalf("llm validate: %v", err)
	}
	if !cfg.Storage.Postgres.Enabled() || cfg.Storage.Postgres.DSN() != "postgres://u:p@db:5432/ideascope?sslmode=disable" {
		t.Fatalf("postgres = %+v", cfg.Storage.Postgres)
	}
}

func TestLoadRejectsInconsistentPipeline(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := Load(writeConfig(t, "pipeline:\n  batch_size: 500\n")); err == nil {
		t.Fatalf("expected batch_size > threshold to fail")
	}
	if _, err := Load(writeConfig(t, "pipeline:\n  max_clarification_rounds: 50\n")); err == nil {
		t.Fatalf("expected round cap to fail")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLLMValidate(t *testing.T) {
	if err := (LLMConfig{}).Validate(); err == nil {
		t.Fatalf("expected error without providers")
	}
	c := LLMConfig{
		Providers: map[string]LLMProvider{"p": {Type: "openai", Models: map[string]LLMModel{"m": {Name: "x"}}}},
		Routing:   LLMRoutingConfig{Fallback: "other"},
	}.Normalize()
	if err := c.Validate(); err == nil {
		t.Fatalf("expected unknown model error")
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "localhost", Port: "5432", User: "u", Password: "p", DBName: "d"}
	if got := p.DSN(); got != "postgres://u:p@localhost:5432/d?sslmode=disable" {
		t.Fatalf("dsn = %s", got)
	}
	if err := (PostgresConfig{Host: "h"}).Validate(); err == nil {
		t.Fatalf("expected missing port error")
	}
}
