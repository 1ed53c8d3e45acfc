// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"FAIRRANK_HOST" yaml:"host"`
	Port int    `envconfig:"FAIRRANK_PORT" yaml:"port"`

	// Evaluation configuration
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Report store configuration
	Store StoreConfig `yaml:"store"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Qdrant configuration
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics"`
}

// EvaluationConfig holds limits for fairness evaluations.
type EvaluationConfig struct {
	Workers  int `envconfig:"FAIRRANK_EVAL_WORKERS" yaml:"workers"`
	MaxItems int `envconfig:"FAIRRANK_EVAL_MAX_ITEMS" yaml:"max_items"` // 0 = unlimited
	MaxBatch int `envconfig:"FAIRRANK_EVAL_MAX_BATCH" yaml:"max_batch"`
}

// StoreConfig holds report store settings.
type StoreConfig struct {
	Type      string        `envconfig:"FAIRRANK_STORE_TYPE" yaml:"type"`
	RedisURL  string        `envconfig:"FAIRRANK_REDIS_URL" yaml:"redis_url"`
	KeyPrefix string        `envconfig:"FAIRRANK_REDIS_PREFIX" yaml:"key_prefix"`
	TTL       time.Duration `envconfig:"FAIRRANK_STORE_TTL" yaml:"ttl"` // 0 = no expiry
	MaxItems  int           `envconfig:"FAIRRANK_STORE_MAX_ITEMS" yaml:"max_items"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"FAIRRANK_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"FAIRRANK_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"FAIRRANK_KAFKA_GROUP" yaml:"kafka_group"`
	KafkaVersion string `envconfig:"FAIRRANK_KAFKA_VERSION" yaml:"kafka_version"`
	EventLog     string `envconfig:"FAIRRANK_BUS_EVENT_LOG" yaml:"event_log"` // empty = disabled
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL              string        `envconfig:"QDRANT_URL" yaml:"url"`
	APIKey           string        `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	CollectionPrefix string        `envconfig:"QDRANT_COLLECTION_PREFIX" yaml:"collection_prefix"`
	Timeout          time.Duration `envconfig:"QDRANT_TIMEOUT" yaml:"timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"FAIRRANK_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"FAIRRANK_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit   int    `envconfig:"FAIRRANK_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	CORSOrigins string `envconfig:"FAIRRANK_CORS_ORIGINS" yaml:"cors_origins"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `envconfig:"FAIRRANK_METRICS_ENABLED" yaml:"enabled"`
	Path    string `envconfig:"FAIRRANK_METRICS_PATH" yaml:"path"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// Default returns a configuration holding only the defaults.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Evaluation = EvaluationConfig{
		Workers:  4,
		MaxItems: 100000,
		MaxBatch: 64,
	}

	cfg.Store = StoreConfig{
		Type:      "memory",
		RedisURL:  "redis://localhost:6379",
		KeyPrefix: "fairrank:",
		TTL:       7 * 24 * time.Hour,
		MaxItems:  1000,
	}

	cfg.Bus = BusConfig{
		Type:         "memory",
		KafkaGroup:   "fairrank",
		KafkaVersion: "2.8.0",
	}

	cfg.Qdrant = QdrantConfig{
		URL:     "http://localhost:6333",
		Timeout: 30 * time.Second,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit:   0,
		CORSOrigins: "*",
	}

	cfg.Metrics = MetricsConfig{
		Enabled: true,
		Path:    "/metrics",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.Evaluation.Workers < 1 {
		errs = append(errs, "evaluation.workers must be positive")
	}
	if c.Evaluation.MaxItems < 0 {
		errs = append(errs, "evaluation.max_items must not be negative")
	}
	if c.Evaluation.MaxBatch < 1 {
		errs = append(errs, "evaluation.max_batch must be positive")
	}

	validStoreTypes := map[string]bool{"memory": true, "redis": true}
	if !validStoreTypes[c.Store.Type] {
		errs = append(errs, fmt.Sprintf("invalid store type: %s (must be memory or redis)", c.Store.Type))
	}
	if c.Store.Type == "redis" && c.Store.RedisURL == "" {
		errs = append(errs, "store.redis_url is required for the redis store")
	}
	if c.Store.TTL < 0 {
		errs = append(errs, "store.ttl must not be negative")
	}
	if c.Store.MaxItems < 1 {
		errs = append(errs, "store.max_items must be positive")
	}

	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "bus.kafka_brokers is required for the kafka bus")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Security.RateLimit < 0 {
		errs = append(errs, "security.rate_limit must not be negative")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
