// Package config loads engine settings with viper and builds a MemoryEngine
// with the configured storage, vector, embedding and text providers.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
)

// Provider names accepted by the selection keys.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverChromem  = "chromem"
	DriverLexical  = "lexical"

	ProviderHashing   = "hashing"
	ProviderOpenAI    = "openai"
	ProviderONNX      = "onnx"
	ProviderLocal     = "local"
	ProviderAnthropic = "anthropic"
)

// EnvPrefix prefixes every environment override, e.g. NIM_MEMORY_WORKING_BUDGET.
const EnvPrefix = "NIM_MEMORY"

// Config holds all settings of a memory engine deployment.
type Config struct {
	Memory   *memory.Config
	Logger   LoggerConfig
	Storage  StorageConfig
	Vector   VectorConfig
	Embedder EmbedderConfig
	Text     TextConfig
}

type LoggerConfig struct {
	Level        string
	Mode         string
	Encoding     string
	ColorEnabled bool
}

// StorageConfig selects the DocumentStore for episodic records and profiles.
type StorageConfig struct {
	Driver      string
	SQLitePath  string
	PostgresURL string
}

// VectorConfig selects the similarity backend for long-term items.
type VectorConfig struct {
	Driver string
	// ChromemPath persists the chromem index; empty keeps it in memory.
	ChromemPath  string
	CacheEntries int64
}

type EmbedderConfig struct {
	Provider   string
	Dimensions int
	APIKey     string
	BaseURL    string
	Model      string

	ONNXModelPath     string
	ONNXTokenizerPath string
	ONNXLibraryPath   string
}

// TextConfig selects the TextService. Network providers are always wrapped
// with the local fallback.
type TextConfig struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	RateLimit float64
	Burst     int
}

// Load reads configuration. An empty path searches memory.yaml in ./config,
// . and /etc/nim-memory/; a missing file is not an error. Environment
// variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("memory")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/nim-memory/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{Memory: memory.DefaultConfig()}

	// Budgets and thresholds
	m := cfg.Memory
	m.WorkingBudget = v.GetInt("working.budget")
	m.SessionTimeout = v.GetDuration("working.session_timeout")
	m.EpisodicBudget = v.GetInt("episodic.budget")
	m.NearLimitThreshold = v.GetFloat64("episodic.near_limit")
	m.CompressionTarget = v.GetFloat64("episodic.compression_target")
	m.EpisodicTTL = v.GetDuration("episodic.ttl")
	m.EpisodicPurgeAfter = v.GetDuration("episodic.purge_after")
	m.NarrativeMaxWords = v.GetInt("narrative.max_words")
	m.NarrativePruneThreshold = v.GetFloat64("narrative.prune_threshold")
	m.NarrativePruneFraction = v.GetFloat64("narrative.prune_fraction")
	m.NarrativeMaxEvents = v.GetInt("narrative.max_events")
	m.LongTermPerCategory = v.GetInt("longterm.per_category")
	m.LongTermTotal = v.GetInt("longterm.total")
	m.MinImpactForLongTerm = v.GetFloat64("longterm.min_impact")
	m.MinImpactToKeep = v.GetFloat64("longterm.min_impact_to_keep")
	m.MergeThreshold = v.GetFloat64("longterm.merge_threshold")
	m.RefinedMaxWords = v.GetInt("longterm.refined_max_words")
	m.RetrieveLimit = v.GetInt("longterm.retrieve_limit")
	m.DescriptionMaxWords = v.GetInt("descriptions.max_words")
	m.DescriptionEvery = v.GetInt("descriptions.every")
	m.DescriptionMaxAge = v.GetDuration("descriptions.max_age")
	m.ClassifierFloor = v.GetFloat64("classifier.floor")
	m.ClassifierTopN = v.GetInt("classifier.top_n")
	m.RefineBelowScore = v.GetFloat64("classifier.refine_below")
	m.Workers = v.GetInt("engine.workers")
	m.QueueSize = v.GetInt("engine.queue_size")
	m.SweepInterval = v.GetDuration("engine.sweep_interval")
	m.ExternalTimeout = v.GetDuration("engine.external_timeout")

	cfg.Logger.Level = v.GetString("logger.level")
	cfg.Logger.Mode = v.GetString("logger.mode")
	cfg.Logger.Encoding = v.GetString("logger.encoding")
	cfg.Logger.ColorEnabled = v.GetBool("logger.color_enabled")

	// Providers
	cfg.Storage.Driver = strings.ToLower(v.GetString("storage.driver"))
	cfg.Storage.SQLitePath = v.GetString("storage.sqlite_path")
	cfg.Storage.PostgresURL = v.GetString("storage.postgres_url")

	cfg.Vector.Driver = strings.ToLower(v.GetString("vector.driver"))
	cfg.Vector.ChromemPath = v.GetString("vector.chromem_path")
	cfg.Vector.CacheEntries = v.GetInt64("vector.cache_entries")

	cfg.Embedder.Provider = strings.ToLower(v.GetString("embedder.provider"))
	cfg.Embedder.Dimensions = v.GetInt("embedder.dimensions")
	cfg.Embedder.APIKey = v.GetString("embedder.api_key")
	cfg.Embedder.BaseURL = v.GetString("embedder.base_url")
	cfg.Embedder.Model = v.GetString("embedder.model")
	cfg.Embedder.ONNXModelPath = v.GetString("embedder.onnx_model_path")
	cfg.Embedder.ONNXTokenizerPath = v.GetString("embedder.onnx_tokenizer_path")
	cfg.Embedder.ONNXLibraryPath = v.GetString("embedder.onnx_library_path")

	cfg.Text.Provider = strings.ToLower(v.GetString("text.provider"))
	cfg.Text.APIKey = v.GetString("text.api_key")
	cfg.Text.BaseURL = v.GetString("text.base_url")
	cfg.Text.Model = v.GetString("text.model")
	cfg.Text.RateLimit = v.GetFloat64("text.rate_limit")
	cfg.Text.Burst = v.GetInt("text.burst")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks provider names and the settings each provider needs.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			return errors.New("storage.postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Vector.Driver {
	case DriverChromem, DriverLexical:
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			return errors.New("storage.postgres_url is required for the postgres vector driver")
		}
	default:
		return fmt.Errorf("unknown vector.driver %q", c.Vector.Driver)
	}

	switch c.Embedder.Provider {
	case ProviderHashing:
	case ProviderOpenAI:
		if c.Embedder.APIKey == "" {
			return errors.New("embedder.api_key is required for the openai embedder")
		}
	case ProviderONNX:
		if c.Embedder.ONNXModelPath == "" {
			return errors.New("embedder.onnx_model_path is required for the onnx embedder")
		}
	default:
		return fmt.Errorf("unknown embedder.provider %q", c.Embedder.Provider)
	}

	switch c.Text.Provider {
	case ProviderLocal:
	case ProviderAnthropic, ProviderOpenAI:
		if c.Text.APIKey == "" {
			return fmt.Errorf("text.api_key is required for the %s text provider", c.Text.Provider)
		}
	default:
		return fmt.Errorf("unknown text.provider %q", c.Text.Provider)
	}

	if c.Memory.WorkingBudget <= 0 || c.Memory.EpisodicBudget <= 0 || c.Memory.LongTermPerCategory <= 0 {
		return errors.New("word budgets must be positive")
	}
	return nil
}

// NewLogger builds the logger described by c.Logger.
func (c *Config) NewLogger() log.Logger {
	return log.Init(log.ZapConfig{
		Level:        c.Logger.Level,
		Mode:         c.Logger.Mode,
		Encoding:     c.Logger.Encoding,
		ColorEnabled: c.Logger.ColorEnabled,
	})
}

func setDefaults(v *viper.Viper) {
	d := memory.DefaultConfig()

	v.SetDefault("working.budget", d.WorkingBudget)
	v.SetDefault("working.session_timeout", d.SessionTimeout)
	v.SetDefault("episodic.budget", d.EpisodicBudget)
	v.SetDefault("episodic.near_limit", d.NearLimitThreshold)
	v.SetDefault("episodic.compression_target", d.CompressionTarget)
	v.SetDefault("episodic.ttl", d.EpisodicTTL)
	v.SetDefault("episodic.purge_after", d.EpisodicPurgeAfter)
	v.SetDefault("narrative.max_words", d.NarrativeMaxWords)
	v.SetDefault("narrative.prune_threshold", d.NarrativePruneThreshold)
	v.SetDefault("narrative.prune_fraction", d.NarrativePruneFraction)
	v.SetDefault("narrative.max_events", d.NarrativeMaxEvents)
	v.SetDefault("longterm.per_category", d.LongTermPerCategory)
	v.SetDefault("longterm.total", d.LongTermTotal)
	v.SetDefault("longterm.min_impact", d.MinImpactForLongTerm)
	v.SetDefault("longterm.min_impact_to_keep", d.MinImpactToKeep)
	v.SetDefault("longterm.merge_threshold", d.MergeThreshold)
	v.SetDefault("longterm.refined_max_words", d.RefinedMaxWords)
	v.SetDefault("longterm.retrieve_limit", d.RetrieveLimit)
	v.SetDefault("descriptions.max_words", d.DescriptionMaxWords)
	v.SetDefault("descriptions.every", d.DescriptionEvery)
	v.SetDefault("descriptions.max_age", d.DescriptionMaxAge)
	v.SetDefault("classifier.floor", d.ClassifierFloor)
	v.SetDefault("classifier.top_n", d.ClassifierTopN)
	v.SetDefault("classifier.refine_below", d.RefineBelowScore)
	v.SetDefault("engine.workers", d.Workers)
	v.SetDefault("engine.queue_size", d.QueueSize)
	v.SetDefault("engine.sweep_interval", d.SweepInterval)
	v.SetDefault("engine.external_timeout", d.ExternalTimeout)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.mode", log.ModeProduction)
	v.SetDefault("logger.encoding", log.EncodingJSON)
	v.SetDefault("logger.color_enabled", false)

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("vector.driver", DriverChromem)
	v.SetDefault("vector.cache_entries", 10000)
	v.SetDefault("embedder.provider", ProviderHashing)
	v.SetDefault("embedder.dimensions", 384)
	v.SetDefault("text.provider", ProviderLocal)
	v.SetDefault("text.rate_limit", 5)
	v.SetDefault("text.burst", 10)
}
