// Package config provides configuration management for subarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// Translation engine identifiers.
const (
	EngineLLM  = "llm"
	EngineFree = "free"
)

// Default configuration values.
const (
	defaultMaxWorkers        = 4
	maxWorkersCeiling        = 12
	defaultStopGrace         = 5 * time.Second
	defaultExtractTimeout    = 300 * time.Second
	defaultProbeTimeout      = 30 * time.Second
	defaultMaxCharsPerBatch  = 3600
	defaultMaxEntriesRequest = 10
	defaultFreeCharBudget    = 4500
	defaultMaxRetries        = 3
	defaultRetryBaseDelay    = 1 * time.Second
	defaultRetryMaxDelay     = 60 * time.Second
	defaultLLMMaxTokens      = 8000
	defaultChunkSeconds      = 120
	defaultOverlapSeconds    = 15
	defaultModelMinSize      = ByteSize(1_400_000_000)
	defaultModelMaxSize      = ByteSize(2_000_000_000)
	defaultCacheCap          = 1000
)

// DefaultModelName is the ASR model fetched on first use.
const DefaultModelName = "ggml-large-v3-turbo.bin"

// DefaultModelBaseURL is where ASR models are downloaded from.
const DefaultModelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// DefaultSystemPrompt is the translation instruction sent to the LLM provider
// when no custom prompt is configured.
const DefaultSystemPrompt = `You are a professional, authentic translation engine.
Translate the following subtitle text to the target language:
1. Only return the translation, no source text
2. Maintain the natural and accurate translation
Return the translated text directly without any explanations or additional information.`

// Config holds all configuration for the application.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	FFmpeg      FFmpegConfig      `mapstructure:"ffmpeg"`
	ASR         ASRConfig         `mapstructure:"asr"`
	Translation TranslationConfig `mapstructure:"translation"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Watch       WatchConfig       `mapstructure:"watch"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// StorageConfig holds cache and model storage locations.
type StorageConfig struct {
	// CacheDir receives per-file intermediate artifacts (audio, SRT files)
	// and the translation cache.
	CacheDir string `mapstructure:"cache_dir"`
	// ModelDir is where downloaded ASR models live.
	ModelDir string `mapstructure:"model_dir"`
}

// DatabaseConfig holds the job history database configuration.
type DatabaseConfig struct {
	Path     string `mapstructure:"path"`
	LogLevel string `mapstructure:"log_level"` // silent, error, warn, info
}

// FFmpegConfig holds external media tool configuration.
type FFmpegConfig struct {
	BinaryPath      string   `mapstructure:"binary_path"`      // Path to ffmpeg binary (empty = auto-detect)
	ProbePath       string   `mapstructure:"probe_path"`       // Path to ffprobe binary (empty = auto-detect)
	HWAccelPriority []string `mapstructure:"hwaccel_priority"` // Priority order: videotoolbox, vaapi, nvenc, qsv
}

// ASRConfig holds speech recognition configuration.
type ASRConfig struct {
	ModelName      string   `mapstructure:"model_name"`
	ModelBaseURL   string   `mapstructure:"model_base_url"`
	BinaryPath     string   `mapstructure:"binary_path"` // Path to the whisper CLI (empty = auto-detect)
	ChunkSeconds   float64  `mapstructure:"chunk_seconds"`
	OverlapSeconds float64  `mapstructure:"overlap_seconds"`
	Threads        int      `mapstructure:"threads"`   // 0 = recognizer default
	AudioContext   int      `mapstructure:"audio_ctx"` // audio context size, 0 = full
	ModelMinSize   ByteSize `mapstructure:"model_min_size"`
	ModelMaxSize   ByteSize `mapstructure:"model_max_size"`
}

// TranslationConfig holds translator configuration.
type TranslationConfig struct {
	Engine             string        `mapstructure:"engine"` // llm, free
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key"`
	Model              string        `mapstructure:"model"`
	CustomPrompt       string        `mapstructure:"custom_prompt"`
	TargetLanguage     string        `mapstructure:"target_language"` // BCP 47 tag, e.g. zh-CN
	MaxCharsPerBatch   int           `mapstructure:"max_chars_per_batch"`
	MaxEntriesPerBatch int           `mapstructure:"max_entries_per_batch"`
	FreeCharBudget     int           `mapstructure:"free_char_budget"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay      time.Duration `mapstructure:"retry_max_delay"`
	EnableFreeFallback bool          `mapstructure:"enable_free_fallback"`
	CacheEnabled       bool          `mapstructure:"cache_enabled"`
	CacheCap           int           `mapstructure:"cache_cap"`
	ParallelBatches    int           `mapstructure:"parallel_batches"` // concurrent LLM batches per worker, max 3
}

// SchedulerConfig holds task scheduling configuration.
type SchedulerConfig struct {
	MaxWorkers int           `mapstructure:"max_workers"`
	StopGrace  time.Duration `mapstructure:"stop_grace"`
	EventBuf   int           `mapstructure:"event_buffer"`
}

// PipelineConfig holds per-file pipeline configuration.
type PipelineConfig struct {
	SkipBurn        bool          `mapstructure:"skip_burn"`
	SkipTranslation bool          `mapstructure:"skip_translation"`
	ExtractTimeout  time.Duration `mapstructure:"extract_timeout"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
}

// WatchConfig holds drop-directory watch configuration.
type WatchConfig struct {
	// Schedule is a cron expression controlling how often the drop
	// directory is rescanned for new files.
	Schedule string `mapstructure:"schedule"`
	// Extensions lists the accepted video file extensions.
	Extensions []string `mapstructure:"extensions"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with SUBARR_ and use underscores for nesting.
// Example: SUBARR_TRANSLATION_API_KEY=sk-...
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.subarr")
		v.AddConfigPath("/etc/subarr")
	}

	v.SetEnvPrefix("SUBARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".subarr")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Storage defaults
	v.SetDefault("storage.cache_dir", filepath.Join(base, "cache"))
	v.SetDefault("storage.model_dir", filepath.Join(base, "models"))

	// Database defaults
	v.SetDefault("database.path", filepath.Join(base, "subarr.db"))
	v.SetDefault("database.log_level", "warn")

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.hwaccel_priority", []string{"videotoolbox", "vaapi", "nvenc", "qsv"})

	// ASR defaults
	v.SetDefault("asr.model_name", DefaultModelName)
	v.SetDefault("asr.model_base_url", DefaultModelBaseURL)
	v.SetDefault("asr.binary_path", "")
	v.SetDefault("asr.chunk_seconds", defaultChunkSeconds)
	v.SetDefault("asr.overlap_seconds", defaultOverlapSeconds)
	v.SetDefault("asr.threads", 0)
	v.SetDefault("asr.audio_ctx", 0)
	v.SetDefault("asr.model_min_size", int64(defaultModelMinSize))
	v.SetDefault("asr.model_max_size", int64(defaultModelMaxSize))

	// Translation defaults
	v.SetDefault("translation.engine", EngineLLM)
	v.SetDefault("translation.base_url", "https://api.openai.com")
	v.SetDefault("translation.api_key", "")
	v.SetDefault("translation.model", "gpt-4o-mini")
	v.SetDefault("translation.custom_prompt", "")
	v.SetDefault("translation.target_language", "zh-CN")
	v.SetDefault("translation.max_chars_per_batch", defaultMaxCharsPerBatch)
	v.SetDefault("translation.max_entries_per_batch", defaultMaxEntriesRequest)
	v.SetDefault("translation.free_char_budget", defaultFreeCharBudget)
	v.SetDefault("translation.max_retries", defaultMaxRetries)
	v.SetDefault("translation.retry_base_delay", defaultRetryBaseDelay)
	v.SetDefault("translation.retry_max_delay", defaultRetryMaxDelay)
	v.SetDefault("translation.enable_free_fallback", false)
	v.SetDefault("translation.cache_enabled", true)
	v.SetDefault("translation.cache_cap", defaultCacheCap)
	v.SetDefault("translation.parallel_batches", 1)

	// Scheduler defaults
	v.SetDefault("scheduler.max_workers", defaultMaxWorkers)
	v.SetDefault("scheduler.stop_grace", defaultStopGrace)
	v.SetDefault("scheduler.event_buffer", 256)

	// Pipeline defaults
	v.SetDefault("pipeline.skip_burn", false)
	v.SetDefault("pipeline.skip_translation", false)
	v.SetDefault("pipeline.extract_timeout", defaultExtractTimeout)
	v.SetDefault("pipeline.probe_timeout", defaultProbeTimeout)

	// Watch defaults
	v.SetDefault("watch.schedule", "@every 30s")
	v.SetDefault("watch.extensions", []string{".mp4", ".mov", ".mkv", ".avi", ".webm"})
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Translation.Engine {
	case EngineLLM, EngineFree:
	default:
		return fmt.Errorf("translation.engine must be %q or %q, got %q",
			EngineLLM, EngineFree, c.Translation.Engine)
	}

	if c.Translation.Engine == EngineLLM && c.Translation.APIKey == "" {
		return errors.New("translation.api_key is required when translation.engine is \"llm\"")
	}

	if c.Translation.TargetLanguage != "" {
		if _, err := language.Parse(c.Translation.TargetLanguage); err != nil {
			return fmt.Errorf("translation.target_language %q: %w", c.Translation.TargetLanguage, err)
		}
	}

	if c.Translation.MaxCharsPerBatch <= 0 {
		return errors.New("translation.max_chars_per_batch must be positive")
	}
	if c.Translation.MaxEntriesPerBatch <= 0 {
		return errors.New("translation.max_entries_per_batch must be positive")
	}
	if c.Translation.ParallelBatches < 1 || c.Translation.ParallelBatches > 3 {
		return errors.New("translation.parallel_batches must be in [1, 3]")
	}

	if c.Scheduler.MaxWorkers < 1 {
		return errors.New("scheduler.max_workers must be at least 1")
	}

	if c.ASR.ChunkSeconds <= 0 {
		return errors.New("asr.chunk_seconds must be positive")
	}
	if c.ASR.OverlapSeconds < 0 || c.ASR.OverlapSeconds >= c.ASR.ChunkSeconds {
		return errors.New("asr.overlap_seconds must be in [0, chunk_seconds)")
	}

	return nil
}

// MaxWorkersClamped returns the configured worker count clamped to [1, 12].
// The scheduler applies a further CPU-count and task-count cap at runtime.
func (c *Config) MaxWorkersClamped() int {
	n := c.Scheduler.MaxWorkers
	if n < 1 {
		n = 1
	}
	if n > maxWorkersCeiling {
		n = maxWorkersCeiling
	}
	return n
}

// Snapshot is an immutable view of the tunables a pipeline worker needs.
// It is captured by value at job submission time; a config reload only
// affects subsequent submissions.
type Snapshot struct {
	Engine             string
	BaseURL            string
	APIKey             string
	Model              string
	SystemPrompt       string
	TargetLanguage     string
	MaxCharsPerBatch   int
	MaxEntriesPerBatch int
	FreeCharBudget     int
	MaxRetries         int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	EnableFreeFallback bool
	CacheEnabled       bool
	CacheCap           int
	ParallelBatches    int
	SkipBurn           bool
	SkipTranslation    bool
	ExtractTimeout     time.Duration
	ProbeTimeout       time.Duration
	ChunkSeconds       float64
	OverlapSeconds     float64
	CacheDir           string
}

// Snapshot captures the worker-facing tunables from the current config.
func (c *Config) Snapshot() Snapshot {
	prompt := c.Translation.CustomPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	return Snapshot{
		Engine:             c.Translation.Engine,
		BaseURL:            c.Translation.BaseURL,
		APIKey:             c.Translation.APIKey,
		Model:              c.Translation.Model,
		SystemPrompt:       prompt,
		TargetLanguage:     c.Translation.TargetLanguage,
		MaxCharsPerBatch:   c.Translation.MaxCharsPerBatch,
		MaxEntriesPerBatch: c.Translation.MaxEntriesPerBatch,
		FreeCharBudget:     c.Translation.FreeCharBudget,
		MaxRetries:         c.Translation.MaxRetries,
		RetryBaseDelay:     c.Translation.RetryBaseDelay,
		RetryMaxDelay:      c.Translation.RetryMaxDelay,
		EnableFreeFallback: c.Translation.EnableFreeFallback,
		CacheEnabled:       c.Translation.CacheEnabled,
		CacheCap:           c.Translation.CacheCap,
		ParallelBatches:    c.Translation.ParallelBatches,
		SkipBurn:           c.Pipeline.SkipBurn,
		SkipTranslation:    c.Pipeline.SkipTranslation,
		ExtractTimeout:     c.Pipeline.ExtractTimeout,
		ProbeTimeout:       c.Pipeline.ProbeTimeout,
		ChunkSeconds:       c.ASR.ChunkSeconds,
		OverlapSeconds:     c.ASR.OverlapSeconds,
		CacheDir:           c.Storage.CacheDir,
	}
}
