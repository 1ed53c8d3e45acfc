package qdrant

import (
	"testing"
	"time"

	"github.com/ricesearch/fairrank/internal/config"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()

	if cfg.Host != DefaultHost {
		t.Errorf("expected host %s, got %s", DefaultHost, cfg.Host)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultTimeout, cfg.Timeout)
	}
}

func TestClientConfigFrom(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.QdrantConfig
		wantHost string
		wantPort int
		wantTLS  bool
		wantErr  bool
	}{
		{
			name:     "default localhost",
			cfg:      config.QdrantConfig{URL: "http://localhost:6333"},
			wantHost: "localhost",
			wantPort: 6334,
		},
		{
			name:     "custom host and port",
			cfg:      config.QdrantConfig{URL: "http://qdrant.example.com:7777"},
			wantHost: "qdrant.example.com",
			wantPort: 7778,
		},
		{
			name:     "https enables tls",
			cfg:      config.QdrantConfig{URL: "https://qdrant.cloud:443"},
			wantHost: "qdrant.cloud",
			wantPort: 444,
			wantTLS:  true,
		},
		{
			name:     "no port specified",
			cfg:      config.QdrantConfig{URL: "http://localhost"},
			wantHost: "localhost",
			wantPort: 6334,
		},
		{
			name:     "empty url keeps defaults",
			cfg:      config.QdrantConfig{},
			wantHost: DefaultHost,
			wantPort: DefaultPort,
		},
		{
			name:    "invalid URL",
			cfg:     config.QdrantConfig{URL: "://invalid"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClientConfigFrom(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Host != tt.wantHost || got.Port != tt.wantPort || got.UseTLS != tt.wantTLS {
				t.Errorf("got %s:%d tls=%v, want %s:%d tls=%v",
					got.Host, got.Port, got.UseTLS, tt.wantHost, tt.wantPort, tt.wantTLS)
			}
		})
	}
}

func TestClientConfigFrom_Passthrough(t *testing.T) {
	got, err := ClientConfigFrom(config.QdrantConfig{
		APIKey:           "secret",
		CollectionPrefix: "prod_",
		Timeout:          5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.APIKey != "secret" || got.CollectionPrefix != "prod_" || got.Timeout != 5*time.Second {
		t.Errorf("ClientConfigFrom() = %+v", got)
	}
}

func TestCollectionName(t *testing.T) {
	c := &Client{config: ClientConfig{CollectionPrefix: "fr_"}}

	if got := c.collectionName("jobs"); got != "fr_jobs" {
		t.Errorf("collectionName() = %s, want fr_jobs", got)
	}
}
