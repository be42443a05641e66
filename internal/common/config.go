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
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Queue       QueueConfig      `toml:"queue"`
	Crawler     CrawlerConfig    `toml:"crawler"`
	Extraction  ExtractionConfig `toml:"extraction"`
	Analysis    AnalysisConfig   `toml:"analysis"`
	LLM         LLMConfig        `toml:"llm"`
	Claude      ClaudeConfig     `toml:"claude"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Batch       BatchConfig      `toml:"batch"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g. "1s" - how often workers poll for tasks
	Concurrency       int    `toml:"concurrency"`        // Workers per logical queue
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g. "5m" - task redelivery window
	MaxAttempts       int    `toml:"max_attempts"`       // Attempts before a task is dead-lettered
}

// CrawlerConfig holds politeness and fetcher settings shared across companies
type CrawlerConfig struct {
	UserAgent          string        `toml:"user_agent"`
	RequestTimeout     time.Duration `toml:"request_timeout"`      // HTTP fetch timeout
	RobotsTimeout      time.Duration `toml:"robots_timeout"`       // robots.txt fetch timeout
	SitemapTimeout     time.Duration `toml:"sitemap_timeout"`      // sitemap fetch timeout
	RequestsPerSecond  float64       `toml:"requests_per_second"`  // Default per-domain rate
	Burst              int           `toml:"burst"`                // Token bucket burst
	AcquireTimeout     time.Duration `toml:"acquire_timeout"`      // Rate-limit acquire wait cap
	EnableJavaScript   bool          `toml:"enable_javascript"`    // Use chromedp fetcher when true
	IgnoreHTTPSErrors  bool          `toml:"ignore_https_errors"`  // Tolerate bad certs for resilience
	CheckpointPages    int           `toml:"checkpoint_pages"`     // Checkpoint every N pages
	CheckpointInterval time.Duration `toml:"checkpoint_interval"`  // ...or every T elapsed
	MaxSitemapURLs     int           `toml:"max_sitemap_urls"`     // Cap on sitemap-seeded URLs
	MaxSitemapFiles    int           `toml:"max_sitemap_files"`    // Cap on sitemap files fetched
}

// ExtractionConfig controls entity extraction behavior
type ExtractionConfig struct {
	MinConfidence    float64 `toml:"min_confidence"`    // Drop NER entities below this
	SimilarityCutoff float64 `toml:"similarity_cutoff"` // Fuzzy-dedup threshold
	ContextWindow    int     `toml:"context_window"`    // Max context snippet length
	EnableTechStack  bool    `toml:"enable_tech_stack"` // Tech-stack dictionary extraction
	DefaultRegion    string  `toml:"default_region"`    // Phone normalization region
}

// AnalysisConfig controls the synthesizer context budget
type AnalysisConfig struct {
	MaxContextChars  int `toml:"max_context_chars"`  // Aggregated page text cap
	MaxSubsetChars   int `toml:"max_subset_chars"`   // Team/careers subset caps
	MaxEntityListing int `toml:"max_entity_listing"` // Entities per type in context
	MaxSources       int `toml:"max_sources"`        // SOURCES: URLs parsed per section
}

// LLMConfig selects the provider and prices token usage
type LLMConfig struct {
	Provider           string  `toml:"provider"` // "claude" or "gemini"
	InputPricePerMTok  float64 `toml:"input_price_per_mtok"`
	OutputPricePerMTok float64 `toml:"output_price_per_mtok"`
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
}

type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
}

type BatchConfig struct {
	MaxConcurrent int `toml:"max_concurrent"` // Companies in flight per batch
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8085,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/cira",
			},
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4,
			VisibilityTimeout: "5m",
			MaxAttempts:       3,
		},
		Crawler: CrawlerConfig{
			UserAgent:          "CIRABot/1.0 (+https://github.com/cirahq/cira)",
			RequestTimeout:     30 * time.Second,
			RobotsTimeout:      10 * time.Second,
			SitemapTimeout:     30 * time.Second,
			RequestsPerSecond:  1.0,
			Burst:              1,
			AcquireTimeout:     30 * time.Second,
			CheckpointPages:    10,
			CheckpointInterval: 120 * time.Second,
			MaxSitemapURLs:     10000,
			MaxSitemapFiles:    50,
		},
		Extraction: ExtractionConfig{
			MinConfidence:    0.5,
			SimilarityCutoff: 0.85,
			ContextWindow:    100,
			DefaultRegion:    "US",
		},
		Analysis: AnalysisConfig{
			MaxContextChars:  50000,
			MaxSubsetChars:   10000,
			MaxEntityListing: 50,
			MaxSources:       10,
		},
		LLM: LLMConfig{
			Provider:           "claude",
			InputPricePerMTok:  3.0,
			OutputPricePerMTok: 15.0,
		},
		Claude: ClaudeConfig{
			Model:     "claude-sonnet-4-20250514",
			Timeout:   "120s",
			MaxTokens: 8192,
		},
		Gemini: GeminiConfig{
			Model:   "gemini-2.0-flash",
			Timeout: "120s",
		},
		Batch: BatchConfig{
			MaxConcurrent: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadConfig builds the configuration: defaults, then each config file in
// order (later files override earlier ones), then CIRA_* env overrides.
func LoadConfig(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies CIRA_* environment variables over file values.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("CIRA_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("CIRA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("CIRA_STORAGE_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("CIRA_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("CIRA_LLM_PROVIDER"); v != "" {
		config.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && config.Gemini.APIKey == "" {
		config.Gemini.APIKey = v
	}
}

// PollInterval parses the queue poll interval with a 1s fallback.
func (q *QueueConfig) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(q.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// VisibilityTimeoutDuration parses the visibility timeout with a 5m fallback.
func (q *QueueConfig) VisibilityTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(q.VisibilityTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}
