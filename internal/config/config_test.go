package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FAIRRANK_PORT", "9090")
	t.Setenv("FAIRRANK_LOG_LEVEL", "debug")
	t.Setenv("FAIRRANK_STORE_TTL", "2h")
	t.Setenv("FAIRRANK_EVAL_WORKERS", "8")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
	if cfg.Store.TTL != 2*time.Hour {
		t.Errorf("Store.TTL = %v, want 2h", cfg.Store.TTL)
	}
	if cfg.Evaluation.Workers != 8 {
		t.Errorf("Evaluation.Workers = %d, want 8", cfg.Evaluation.Workers)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
host: "127.0.0.1"
port: 8888
log:
  level: warn
  format: json
store:
  type: redis
  redis_url: "redis://cache:6379/2"
  ttl: 36h
bus:
  type: kafka
  kafka_brokers: "k1:9092,k2:9092"
evaluation:
  workers: 2
qdrant:
  url: "http://custom:6333"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Host)
	}
	if cfg.Port != 8888 {
		t.Errorf("Port = %d, want 8888", cfg.Port)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %s, want json", cfg.Log.Format)
	}
	if cfg.Store.Type != "redis" || cfg.Store.TTL != 36*time.Hour {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Bus.KafkaBrokers != "k1:9092,k2:9092" {
		t.Errorf("Bus.KafkaBrokers = %s", cfg.Bus.KafkaBrokers)
	}
	if cfg.Evaluation.Workers != 2 {
		t.Errorf("Evaluation.Workers = %d, want 2", cfg.Evaluation.Workers)
	}
	// Untouched sections keep their defaults.
	if cfg.Evaluation.MaxBatch != 64 {
		t.Errorf("Evaluation.MaxBatch = %d, want default 64", cfg.Evaluation.MaxBatch)
	}
	if cfg.Qdrant.URL != "http://custom:6333" {
		t.Errorf("Qdrant.URL = %s, want http://custom:6333", cfg.Qdrant.URL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("port: 7000\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("FAIRRANK_PORT", "7100")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 7100 {
		t.Errorf("Port = %d, want env value 7100", cfg.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid port",
			modify:  func(c *Config) { c.Port = 0 },
			wantErr: true,
		},
		{
			name:    "no workers",
			modify:  func(c *Config) { c.Evaluation.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Log.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid store type",
			modify:  func(c *Config) { c.Store.Type = "invalid" },
			wantErr: true,
		},
		{
			name: "redis store without url",
			modify: func(c *Config) {
				c.Store.Type = "redis"
				c.Store.RedisURL = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid bus type",
			modify:  func(c *Config) { c.Bus.Type = "nats" },
			wantErr: true,
		},
		{
			name:    "kafka without brokers",
			modify:  func(c *Config) { c.Bus.Type = "kafka" },
			wantErr: true,
		},
		{
			name:    "negative rate limit",
			modify:  func(c *Config) { c.Security.RateLimit = -1 },
			wantErr: true,
		},
		{
			name:    "relative metrics path",
			modify:  func(c *Config) { c.Metrics.Path = "metrics" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidation_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Port = -1
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"port", "log format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestAddress(t *testing.T) {
	cfg := &Config{
		Host: "localhost",
		Port: 8080,
	}

	if addr := cfg.Address(); addr != "localhost:8080" {
		t.Errorf("Address() = %s, want localhost:8080", addr)
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{}

	cfg.Log.Level = "debug"
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true for debug level")
	}

	cfg.Log.Level = "info"
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true, want false for info level")
	}
}
