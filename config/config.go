package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the knowledge query engine.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Lanes     []LaneConfig    `mapstructure:"lanes"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address        string  `mapstructure:"address"`
	JWTSecret      string  `mapstructure:"jwt_secret"`
	QueryRate      float64 `mapstructure:"query_rate"`       // queries per second admitted to /api/query
	QueryRateBurst int     `mapstructure:"query_rate_burst"` // burst size for the same limiter
	StreamEnabled  bool    `mapstructure:"stream_enabled"`
}

// LLMConfig describes the external embedding/completion service.
type LLMConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	ClassifierModel string        `mapstructure:"classifier_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	CostPer1KInput  float64       `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64       `mapstructure:"cost_per_1k_output"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.CompletionModel) == "" {
		return fmt.Errorf("llm.completion_model is required")
	}
	if strings.TrimSpace(l.EmbeddingModel) == "" {
		return fmt.Errorf("llm.embedding_model is required")
	}
	return nil
}

// EngineConfig controls retrieval and deep-search behaviour.
type EngineConfig struct {
	Domains                  []string      `mapstructure:"domains"`
	DefaultDomain            string        `mapstructure:"default_domain"`
	TopK                     int           `mapstructure:"top_k"`
	MaxContextTokens         int           `mapstructure:"max_context_tokens"`
	ExpectedCompletionTokens int           `mapstructure:"expected_completion_tokens"`
	MaxConcurrency           int           `mapstructure:"max_concurrency"`
	MaxJobAttempts           int           `mapstructure:"max_job_attempts"`
	JobTimeout               time.Duration `mapstructure:"job_timeout"`
}

func (e EngineConfig) Validate() error {
	if len(e.Domains) == 0 {
		return fmt.Errorf("engine.domains must list at least one knowledge domain")
	}
	if strings.TrimSpace(e.DefaultDomain) == "" {
		return fmt.Errorf("engine.default_domain is required")
	}
	var found bool
	for _, d := range e.Domains {
		if d == e.DefaultDomain {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("engine.default_domain %q is not listed in engine.domains", e.DefaultDomain)
	}
	if e.MaxConcurrency <= 0 {
		return fmt.Errorf("engine.max_concurrency must be > 0")
	}
	return nil
}

// LaneConfig describes one independently rate limited execution lane.
// Lanes are built 1:1, in order, from this list.
type LaneConfig struct {
	APIKey            string `mapstructure:"api_key"`
	TokensPerMinute   int    `mapstructure:"tokens_per_minute"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

func (l LaneConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("lanes[].api_key is required")
	}
	if l.TokensPerMinute <= 0 {
		return fmt.Errorf("lanes[].tokens_per_minute must be > 0")
	}
	if l.RequestsPerMinute <= 0 {
		return fmt.Errorf("lanes[].requests_per_minute must be > 0")
	}
	return nil
}

// StorageConfig controls where persisted indexes live and how often they are saved.
type StorageConfig struct {
	IndexDir    string `mapstructure:"index_dir"`
	PersistCron string `mapstructure:"persist_cron"`
}

func (s StorageConfig) Validate() error {
	if strings.TrimSpace(s.IndexDir) == "" {
		return fmt.Errorf("storage.index_dir is required")
	}
	return nil
}

// CacheConfig contains Redis answer cache settings. Host empty disables the cache.
type CacheConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Enabled reports whether a Redis cache is configured.
func (c CacheConfig) Enabled() bool { return strings.TrimSpace(c.Host) != "" }

// Addr returns the host:port address for the Redis client.
func (c CacheConfig) Addr() string {
	port := c.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", c.Host, port)
}

// TelemetryConfig contains monitoring settings.
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// LoadConfig loads configuration from file and REPORTWISE_* environment variables.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "60s")
	viper.SetDefault("server.address", ":10020")
	viper.SetDefault("server.query_rate", 5.0)
	viper.SetDefault("server.query_rate_burst", 10)
	viper.SetDefault("server.stream_enabled", true)
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.timeout", "45s")
	viper.SetDefault("engine.top_k", 6)
	viper.SetDefault("engine.max_context_tokens", 3000)
	viper.SetDefault("engine.expected_completion_tokens", 400)
	viper.SetDefault("engine.max_concurrency", 8)
	viper.SetDefault("engine.max_job_attempts", 3)
	viper.SetDefault("engine.job_timeout", "45s")
	viper.SetDefault("storage.index_dir", "./data/indexes")
	viper.SetDefault("storage.persist_cron", "*/15 * * * *")
	viper.SetDefault("cache.ttl", "10m")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("REPORTWISE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional when everything comes from the environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	for i, lane := range c.Lanes {
		if err := lane.Validate(); err != nil {
			return fmt.Errorf("lane %d: %w", i, err)
		}
	}
	return nil
}
