package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	Sources     SourcesConfig   `toml:"sources"`
	Claude      ClaudeConfig    `toml:"claude"`
	Gemini      GeminiConfig    `toml:"gemini"`
	LLM         LLMConfig       `toml:"llm"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
}

// SQLiteConfig represents SQLite-specific configuration
type SQLiteConfig struct {
	Path          string `toml:"path" validate:"required"` // Database file path
	CacheSizeMB   int    `toml:"cache_size_mb"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
	WALMode       bool   `toml:"wal_mode"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
	Dir    string   `toml:"dir"`    // Log directory (default: <exe dir>/logs)
}

// SchedulerConfig controls the periodic pipeline trigger
type SchedulerConfig struct {
	Enabled      bool   `toml:"enabled"`
	Schedule     string `toml:"schedule"`      // Cron expression (default: "@hourly")
	StartupDelay string `toml:"startup_delay"` // Delay before first run (default: "1m")
	GracePeriod  string `toml:"grace_period"`  // Shutdown grace window for a running pass (default: "2m")
}

// CrawlerConfig contains shared fetch/extract settings for all source adapters
type CrawlerConfig struct {
	UserAgent      string `toml:"user_agent"`
	RequestDelay   string `toml:"request_delay"`    // Minimum delay between requests within one adapter (default: "2s")
	RequestTimeout string `toml:"request_timeout"`  // HTML fetch timeout (default: "60s")
	MaxArticles    int    `toml:"max_articles"`     // Max full-article fetches per adapter per run
	PDFMaxSizeMB   int    `toml:"pdf_max_size_mb"`  // Skip PDFs larger than this (default: 50)
	PDFReadTimeout string `toml:"pdf_read_timeout"` // PDF download timeout (default: "15m")
	DataDir        string `toml:"data_dir"`         // Root directory for raw-dump artifacts
	DumpRaw        bool   `toml:"dump_raw"`         // Write raw fetched payloads under DataDir
}

// SourceConfig enables one upstream source adapter
type SourceConfig struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
}

type SourcesConfig struct {
	SBV       SourceConfig `toml:"sbv"`
	GSO       SourceConfig `toml:"gso"`
	VnEconomy SourceConfig `toml:"vneconomy"`
	Calendar  SourceConfig `toml:"calendar"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`       // Default: "claude-haiku-3-5-20241022"
	MaxTokens   int     `toml:"max_tokens"`  // Default: 8192
	Timeout     string  `toml:"timeout"`     // Duration string (default: "120s")
	Temperature float32 `toml:"temperature"` // Default temperature for calls that do not override it
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`   // Default: "gemini-2.0-flash"
	Timeout     string  `toml:"timeout"` // Duration string (default: "120s")
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderClaude LLMProvider = "claude"
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig selects the provider and controls call-history recording
type LLMConfig struct {
	Provider      string `toml:"provider" validate:"oneof=claude gemini"`
	HistoryBuffer int    `toml:"history_buffer"` // Bounded queue size for call-history writes (default: 256)
}

// PipelineConfig carries the ranker thresholds and stage retry budgets
type PipelineConfig struct {
	ThresholdKeyEvents   float64 `toml:"threshold_key_events"` // Default: 70
	ThresholdOtherNews   float64 `toml:"threshold_other_news"` // Default: 40
	MaxKeyEvents         int     `toml:"max_key_events"`       // Default: 10
	MaxEventAgeDays      int     `toml:"max_event_age_days"`   // Default: 30
	HotTopicWindowDays   int     `toml:"hot_topic_window_days"`
	HotTopicMinCount     int     `toml:"hot_topic_min_count"`
	DedupTitleDays       int     `toml:"dedup_title_days"` // Recent-title window for adapter dedup (default: 7)
	TemplatesPath        string  `toml:"templates_path"`   // Causal template bundle (YAML)
	ClassifierRetries    int     `toml:"classifier_retries"`
	ClassifierRetryDelay string  `toml:"classifier_retry_delay"` // Default: "2s"
	ScorerRetries        int     `toml:"scorer_retries"`
}

// NewDefaultConfig returns a configuration populated with defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/mekong.db",
				CacheSizeMB:   64,
				BusyTimeoutMS: 5000,
				WALMode:       true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			Schedule:     "@hourly",
			StartupDelay: "1m",
			GracePeriod:  "2m",
		},
		Crawler: CrawlerConfig{
			UserAgent:      "Mozilla/5.0 (compatible; Mekong/1.0)",
			RequestDelay:   "2s",
			RequestTimeout: "60s",
			MaxArticles:    20,
			PDFMaxSizeMB:   50,
			PDFReadTimeout: "15m",
			DataDir:        "./data",
			DumpRaw:        false,
		},
		Sources: SourcesConfig{
			SBV:       SourceConfig{Enabled: true, BaseURL: "https://www.sbv.gov.vn"},
			GSO:       SourceConfig{Enabled: true, BaseURL: "https://www.gso.gov.vn"},
			VnEconomy: SourceConfig{Enabled: true, BaseURL: "https://vneconomy.vn"},
			Calendar:  SourceConfig{Enabled: true, BaseURL: "https://economic-calendar.tradingview.com"},
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "120s",
			Temperature: 0.1,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.0-flash",
			Timeout:     "120s",
			Temperature: 0.1,
		},
		LLM: LLMConfig{
			Provider:      "claude",
			HistoryBuffer: 256,
		},
		Pipeline: PipelineConfig{
			ThresholdKeyEvents:   70,
			ThresholdOtherNews:   40,
			MaxKeyEvents:         10,
			MaxEventAgeDays:      30,
			HotTopicWindowDays:   7,
			HotTopicMinCount:     3,
			DedupTitleDays:       7,
			TemplatesPath:        "./config/causal_templates.yaml",
			ClassifierRetries:    3,
			ClassifierRetryDelay: "2s",
			ScorerRetries:        2,
		},
	}
}

// LoadFromFiles loads configuration from defaults, then each TOML file in
// order (later files override earlier ones), then environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Duration strings are parsed eagerly so bad values fail at startup,
	// not mid-run.
	durations := map[string]string{
		"scheduler.startup_delay":         c.Scheduler.StartupDelay,
		"scheduler.grace_period":          c.Scheduler.GracePeriod,
		"crawler.request_delay":           c.Crawler.RequestDelay,
		"crawler.request_timeout":         c.Crawler.RequestTimeout,
		"crawler.pdf_read_timeout":        c.Crawler.PDFReadTimeout,
		"claude.timeout":                  c.Claude.Timeout,
		"gemini.timeout":                  c.Gemini.Timeout,
		"pipeline.classifier_retry_delay": c.Pipeline.ClassifierRetryDelay,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q: %w", key, value, err)
		}
	}

	if c.Pipeline.ThresholdOtherNews > c.Pipeline.ThresholdKeyEvents {
		return fmt.Errorf("pipeline.threshold_other_news (%v) must not exceed pipeline.threshold_key_events (%v)",
			c.Pipeline.ThresholdOtherNews, c.Pipeline.ThresholdKeyEvents)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("MEKONG_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if path := os.Getenv("MEKONG_SQLITE_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}
	if level := os.Getenv("MEKONG_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("MEKONG_LOG_OUTPUT"); output != "" {
		config.Logging.Output = strings.Split(output, ",")
	}
	if schedule := os.Getenv("MEKONG_SCHEDULER_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
	if enabled := os.Getenv("MEKONG_SCHEDULER_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = b
		}
	}
	if dataDir := os.Getenv("MEKONG_DATA_DIR"); dataDir != "" {
		config.Crawler.DataDir = dataDir
	}
	if provider := os.Getenv("MEKONG_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}

	// API keys follow the providers' conventional variables with a
	// MEKONG_-prefixed override.
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("MEKONG_CLAUDE_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && config.Gemini.APIKey == "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("MEKONG_GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, verbose bool) {
	if verbose {
		config.Logging.Level = "debug"
	}
}

// MustDuration parses a duration string, falling back to def on empty or
// invalid input. Config validation already rejects invalid values, so the
// fallback only covers zero-value configs built in tests.
func MustDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
