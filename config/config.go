// Package config provides configuration management for the penf-live service.
// It supports loading configuration from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultListenAddress = ":8090"

	DefaultDuplicateThreshold    = 0.90
	DefaultDuplicateWindowSize   = 10
	DefaultDuplicateMaxAge       = 5 * time.Minute
	DefaultExtractionMinScore    = 0.6
	DefaultAnswerAcceptThreshold = 0.7
	DefaultConflictSimilarity    = 0.75
	DefaultConflictMinConfidence = 0.7
	DefaultRepetitionSimilarity  = 0.75
	// Lowered from 0.70 after too many genuine repetitions were missed.
	// Tunable, not structural.
	DefaultRepetitionMinConfidence = 0.65
	DefaultRepetitionMinOccurrence = 3
	DefaultRepetitionWindow        = 10 * time.Minute
	DefaultSegmentInterval         = 10 * time.Minute
	DefaultSilenceThreshold        = 10 * time.Second
	DefaultSegmentCooldown         = 15 * time.Minute
	DefaultMonitorWindow           = 2 * time.Minute
	DefaultIntakeQueueSize         = 64
	DefaultContextWindowSize       = 5
	DefaultSearchCacheTTL          = 30 * time.Second
	DefaultValidatorMinWords       = 3
	DefaultValidatorMinRatio       = 0.3
)

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	// ListenAddress is the host:port the service binds to.
	ListenAddress string `yaml:"listen_address"`

	// ShutdownTimeout bounds graceful shutdown on SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig holds the pub/sub bridge connection settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// Addr returns the host:port address for the Redis client.
func (c RedisConfig) Addr() string {
	port := c.Port
	if port == 0 {
		port = 6379
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// PostgresConfig holds the durable insight projection settings.
// When DSN is empty the service runs without persistence.
type PostgresConfig struct {
	DSN string `yaml:"dsn,omitempty"`
}

// OpenAIConfig holds model provider settings.
type OpenAIConfig struct {
	// APIKey falls back to OPENAI_API_KEY when empty.
	APIKey string `yaml:"api_key,omitempty"`

	// ChatModel is the completion model identifier.
	ChatModel string `yaml:"chat_model"`

	// EmbeddingModel is the embedding model identifier.
	EmbeddingModel string `yaml:"embedding_model"`

	// MaxTokens caps completion length.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature for completions; extraction wants it low.
	Temperature float64 `yaml:"temperature"`

	// RequestTimeout bounds a single provider call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// PipelineConfig holds every detection threshold in one place so tuning
// does not require a rebuild.
type PipelineConfig struct {
	ValidatorMinWords       int           `yaml:"validator_min_words"`
	ValidatorMinRatio       float64       `yaml:"validator_min_ratio"`
	DuplicateThreshold      float64       `yaml:"duplicate_threshold"`
	DuplicateWindowSize     int           `yaml:"duplicate_window_size"`
	DuplicateMaxAge         time.Duration `yaml:"duplicate_max_age"`
	ExtractionMinScore      float64       `yaml:"extraction_min_score"`
	ContextWindowSize       int           `yaml:"context_window_size"`
	AnswerAcceptThreshold   float64       `yaml:"answer_accept_threshold"`
	MonitorWindow           time.Duration `yaml:"monitor_window"`
	ConflictSimilarity      float64       `yaml:"conflict_similarity"`
	ConflictMinConfidence   float64       `yaml:"conflict_min_confidence"`
	RepetitionSimilarity    float64       `yaml:"repetition_similarity"`
	RepetitionMinConfidence float64       `yaml:"repetition_min_confidence"`
	RepetitionMinOccurrence int           `yaml:"repetition_min_occurrence"`
	RepetitionWindow        time.Duration `yaml:"repetition_window"`
	SegmentInterval         time.Duration `yaml:"segment_interval"`
	SilenceThreshold        time.Duration `yaml:"silence_threshold"`
	SegmentCooldown         time.Duration `yaml:"segment_cooldown"`
	IntakeQueueSize         int           `yaml:"intake_queue_size"`
	SearchCacheTTL          time.Duration `yaml:"search_cache_ttl"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	JSONFormat  bool   `yaml:"json_format"`
	Environment string `yaml:"environment"`
}

// Config is the root configuration for the penf-live service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DefaultConfig returns a Config with default values for every tunable.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:   DefaultListenAddress,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		OpenAI: OpenAIConfig{
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			MaxTokens:      2048,
			Temperature:    0.1,
			RequestTimeout: 60 * time.Second,
		},
		Pipeline: PipelineConfig{
			ValidatorMinWords:       DefaultValidatorMinWords,
			ValidatorMinRatio:       DefaultValidatorMinRatio,
			DuplicateThreshold:      DefaultDuplicateThreshold,
			DuplicateWindowSize:     DefaultDuplicateWindowSize,
			DuplicateMaxAge:         DefaultDuplicateMaxAge,
			ExtractionMinScore:      DefaultExtractionMinScore,
			ContextWindowSize:       DefaultContextWindowSize,
			AnswerAcceptThreshold:   DefaultAnswerAcceptThreshold,
			MonitorWindow:           DefaultMonitorWindow,
			ConflictSimilarity:      DefaultConflictSimilarity,
			ConflictMinConfidence:   DefaultConflictMinConfidence,
			RepetitionSimilarity:    DefaultRepetitionSimilarity,
			RepetitionMinConfidence: DefaultRepetitionMinConfidence,
			RepetitionMinOccurrence: DefaultRepetitionMinOccurrence,
			RepetitionWindow:        DefaultRepetitionWindow,
			SegmentInterval:         DefaultSegmentInterval,
			SilenceThreshold:        DefaultSilenceThreshold,
			SegmentCooldown:         DefaultSegmentCooldown,
			IntakeQueueSize:         DefaultIntakeQueueSize,
			SearchCacheTTL:          DefaultSearchCacheTTL,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Environment: "development",
		},
	}
}

// Load reads configuration from the given YAML file, then applies
// environment variable overrides. A missing file is not an error; the
// defaults plus environment are used.
//
// Precedence (later wins): defaults, config file, environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies PENF_LIVE_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PENF_LIVE_LISTEN_ADDRESS"); v != "" {
		cfg.Server.ListenAddress = v
	}
	if v := os.Getenv("PENF_LIVE_REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("PENF_LIVE_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = port
		}
	}
	if v := os.Getenv("PENF_LIVE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PENF_LIVE_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("PENF_LIVE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = v
	}
}

// Validate checks that every threshold is inside its legal range.
func (c *Config) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"pipeline.duplicate_threshold", c.Pipeline.DuplicateThreshold},
		{"pipeline.extraction_min_score", c.Pipeline.ExtractionMinScore},
		{"pipeline.answer_accept_threshold", c.Pipeline.AnswerAcceptThreshold},
		{"pipeline.conflict_similarity", c.Pipeline.ConflictSimilarity},
		{"pipeline.conflict_min_confidence", c.Pipeline.ConflictMinConfidence},
		{"pipeline.repetition_similarity", c.Pipeline.RepetitionSimilarity},
		{"pipeline.repetition_min_confidence", c.Pipeline.RepetitionMinConfidence},
		{"pipeline.validator_min_ratio", c.Pipeline.ValidatorMinRatio},
	}
	for _, check := range checks {
		if check.value < 0 || check.value > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", check.name, check.value)
		}
	}
	if c.Pipeline.RepetitionMinOccurrence < 2 {
		return fmt.Errorf("pipeline.repetition_min_occurrence must be at least 2, got %d", c.Pipeline.RepetitionMinOccurrence)
	}
	if c.Pipeline.IntakeQueueSize < 1 {
		return fmt.Errorf("pipeline.intake_queue_size must be positive, got %d", c.Pipeline.IntakeQueueSize)
	}
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address must not be empty")
	}
	return nil
}
