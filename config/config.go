package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the analysis engine
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Forum     ForumConfig     `mapstructure:"forum"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"` // where result bundles and reports are written
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
	// RunRetention is how long a finished run stays in memory.
	RunRetention time.Duration `mapstructure:"run_retention"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers   map[string]LLMProvider `mapstructure:"providers"`
	Routing     LLMRoutingConfig       `mapstructure:"routing"`
	MaxAttempts int                    `mapstructure:"max_attempts"`
	Backoff     time.Duration          `mapstructure:"backoff"`
	MaxBackoff  time.Duration          `mapstructure:"max_backoff"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai or any OpenAI-compatible endpoint
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name        string  `mapstructure:"name"`
	APIName     string  `mapstructure:"api_name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LLMRoutingConfig defines which model to use for different tasks
type LLMRoutingConfig struct {
	Clarify    string `mapstructure:"clarify"`    // clarifying questions and the clarified idea
	Analysis   string `mapstructure:"analysis"`   // critique, validation, batch analysis
	Synthesis  string `mapstructure:"synthesis"`  // final report
	Suggestion string `mapstructure:"suggestion"` // answer suggestions for pending questions
	Fallback   string `mapstructure:"fallback"`
}

// Normalize fills empty routes with the fallback model.
func (c LLMConfig) Normalize() LLMConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = c.Backoff
	}
	for _, route := range []*string{&c.Routing.Clarify, &c.Routing.Analysis, &c.Routing.Synthesis, &c.Routing.Suggestion} {
		if strings.TrimSpace(*route) == "" {
			*route = c.Routing.Fallback
		}
	}
	return c
}

// Validate checks every route points at a configured model.
func (c LLMConfig) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("llm.providers must configure at least one provider")
	}
	models := map[string]bool{}
	for name, p := range c.Providers {
		if p.Type != "" && p.Type != "openai" {
			return fmt.Errorf("llm.providers.%s: unsupported type %q", name, p.Type)
		}
		for key := range p.Models {
			models[key] = true
		}
	}
	for task, key := range map[string]string{
		"clarify":    c.Routing.Clarify,
		"analysis":   c.Routing.Analysis,
		"synthesis":  c.Routing.Synthesis,
		"suggestion": c.Routing.Suggestion,
	} {
		if key == "" {
			return fmt.Errorf("llm.routing.%s is empty and no fallback is set", task)
		}
		if !models[key] {
			return fmt.Errorf("llm.routing.%s references unknown model %q", task, key)
		}
	}
	return nil
}

// ForumConfig configures the forum search provider
type ForumConfig struct {
	Endpoint          string        `mapstructure:"endpoint"`
	UserAgent         string        `mapstructure:"user_agent"`
	MaxKeywords       int           `mapstructure:"max_keywords"`
	MaxScopes         int           `mapstructure:"max_scopes"`
	DefaultScopes     []string      `mapstructure:"default_scopes"`
	TimeWindow        string        `mapstructure:"time_window"`
	LimitPerQuery     int           `mapstructure:"limit_per_query"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	Timeout           time.Duration `mapstructure:"timeout"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// Normalize applies defaults for unset forum values.
func (c ForumConfig) Normalize() ForumConfig {
	c.Endpoint = strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")
	if c.Endpoint == "" {
		c.Endpoint = "https://www.reddit.com"
	}
	if c.UserAgent == "" {
		c.UserAgent = "ideascope/1.0"
	}
	if c.MaxKeywords <= 0 {
		c.MaxKeywords = 5
	}
	if c.MaxScopes <= 0 {
		c.MaxScopes = 5
	}
	if c.TimeWindow == "" {
		c.TimeWindow = "year"
	}
	if c.LimitPerQuery <= 0 {
		c.LimitPerQuery = 100
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 30
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}

// Validate ensures forum settings are usable.
func (c ForumConfig) Validate() error {
	switch c.TimeWindow {
	case "hour", "day", "week", "month", "year", "all":
	default:
		return fmt.Errorf("forum.time_window must be one of hour, day, week, month, year, all")
	}
	if c.LimitPerQuery > 100 {
		return fmt.Errorf("forum.limit_per_query cannot exceed 100")
	}
	return nil
}

// PipelineConfig tunes the clarification loop and research aggregation.
type PipelineConfig struct {
	MaxClarificationRounds  int      `mapstructure:"max_clarification_rounds"`
	MinTranscriptForBreadth int      `mapstructure:"min_transcript_for_breadth"`
	MinDistinctCategories   int      `mapstructure:"min_distinct_categories"`
	ClosingPhrases          []string `mapstructure:"closing_phrases"`
	LargeDatasetThreshold   int      `mapstructure:"large_dataset_threshold"`
	BatchSize               int      `mapstructure:"batch_size"`
	BatchWorkers            int      `mapstructure:"batch_workers"`
	TopN                    int      `mapstructure:"top_n"`
	SuggestionCount         int      `mapstructure:"suggestion_count"`
}

// DefaultClosingPhrases end the clarification loop when an answer matches one.
var DefaultClosingPhrases = []string{
	"that's all", "thats all", "that is all", "done", "nothing else", "no more",
	"i'm done", "im done", "finish", "stop", "enough", "let's proceed", "proceed",
}

// Normalize applies defaults for unset pipeline values.
func (c PipelineConfig) Normalize() PipelineConfig {
	if c.MaxClarificationRounds <= 0 {
		c.MaxClarificationRounds = 5
	}
	if c.MinTranscriptForBreadth <= 0 {
		c.MinTranscriptForBreadth = 3
	}
	if c.MinDistinctCategories <= 0 {
		c.MinDistinctCategories = 3
	}
	if len(c.ClosingPhrases) == 0 {
		c.ClosingPhrases = append([]string(nil), DefaultClosingPhrases...)
	}
	if c.LargeDatasetThreshold <= 0 {
		c.LargeDatasetThreshold = 200
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.BatchWorkers <= 0 {
		c.BatchWorkers = 4
	}
	if c.TopN <= 0 {
		c.TopN = 15
	}
	if c.SuggestionCount < 0 {
		c.SuggestionCount = 0
	}
	return c
}

// Validate ensures pipeline bounds are consistent.
func (c PipelineConfig) Validate() error {
	if c.MaxClarificationRounds > 20 {
		return fmt.Errorf("pipeline.max_clarification_rounds cannot exceed 20")
	}
	if c.BatchSize > c.LargeDatasetThreshold {
		return fmt.Errorf("pipeline.batch_size (%d) must not exceed pipeline.large_dataset_threshold (%d)", c.BatchSize, c.LargeDatasetThreshold)
	}
	return nil
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a redis cache is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a postgres store is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

// DSN returns the connection string.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, sslmode)
}

func (p PostgresConfig) Validate() error {
	if !p.Enabled() || strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.data_dir", "./runs")
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.run_retention", "1h")
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.backoff", "500ms")
	v.SetDefault("llm.max_backoff", "8s")
	v.SetDefault("forum.endpoint", "https://www.reddit.com")
	v.SetDefault("forum.user_agent", "ideascope/1.0")
	v.SetDefault("forum.max_keywords", 5)
	v.SetDefault("forum.max_scopes", 5)
	v.SetDefault("forum.time_window", "year")
	v.SetDefault("forum.limit_per_query", 100)
	v.SetDefault("forum.requests_per_minute", 30)
	v.SetDefault("forum.max_attempts", 3)
	v.SetDefault("forum.timeout", "15s")
	v.SetDefault("forum.cache_ttl", "6h")
	v.SetDefault("pipeline.max_clarification_rounds", 5)
	v.SetDefault("pipeline.min_transcript_for_breadth", 3)
	v.SetDefault("pipeline.min_distinct_categories", 3)
	v.SetDefault("pipeline.large_dataset_threshold", 200)
	v.SetDefault("pipeline.batch_size", 50)
	v.SetDefault("pipeline.batch_workers", 4)
	v.SetDefault("pipeline.top_n", 15)
	v.SetDefault("pipeline.suggestion_count", 3)
	v.SetDefault("storage.redis.timeout", "3s")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics_port", 9090)
}

// Load reads configuration from path (or the default search paths when
// empty) and the IDEASCOPE_* environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("IDEASCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" && len(cfg.LLM.Providers) == 0 {
		cfg.LLM.Providers = defaultOpenAIProviders(apiKey)
		if cfg.LLM.Routing.Fallback == "" {
			cfg.LLM.Routing.Fallback = "default"
		}
	}
	cfg.LLM = cfg.LLM.Normalize()
	cfg.Forum = cfg.Forum.Normalize()
	cfg.Pipeline = cfg.Pipeline.Normalize()

	for _, validate := range []func() error{
		cfg.Forum.Validate,
		cfg.Pipeline.Validate,
		cfg.Storage.Redis.Validate,
		cfg.Storage.Postgres.Validate,
		cfg.Telemetry.Validate,
	} {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// LoadConfig loads config and panics on error, for command entry points.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return cfg
}

// defaultOpenAIProviders is used when no providers are configured but
// OPENAI_API_KEY is set.
func defaultOpenAIProviders(apiKey string) map[string]LLMProvider {
	return map[string]LLMProvider{
		"openai": {
			Type:    "openai",
			APIKey:  apiKey,
			Timeout: 60 * time.Second,
			Models: map[string]LLMModel{
				"default": {Name: "gpt-4o-mini", MaxTokens: 4096, Temperature: 0.4},
			},
		},
	}
}
