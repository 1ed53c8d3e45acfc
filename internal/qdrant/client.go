// Package qdrant wraps the Qdrant Go client to read rankings out of vector
// collections for fairness audits.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/ricesearch/fairrank/internal/config"
)

const (
	// DefaultHost is the default Qdrant host.
	DefaultHost = "localhost"

	// DefaultPort is the default Qdrant gRPC port.
	DefaultPort = 6334

	// DefaultTimeout is the default operation timeout.
	DefaultTimeout = 30 * time.Second
)

// ClientConfig holds configuration for the Qdrant client.
type ClientConfig struct {
	// Host is the Qdrant server host.
	Host string

	// Port is the Qdrant gRPC port.
	Port int

	// APIKey for authentication (optional).
	APIKey string

	// UseTLS enables TLS connection.
	UseTLS bool

	// Timeout for operations.
	Timeout time.Duration

	// CollectionPrefix is prepended to every collection name.
	CollectionPrefix string
}

// DefaultClientConfig returns sensible defaults for local development.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host:    DefaultHost,
		Port:    DefaultPort,
		Timeout: DefaultTimeout,
	}
}

// ClientConfigFrom derives the client configuration from application config.
// The configured URL is Qdrant's HTTP endpoint; the client talks gRPC on the
// next port up.
func ClientConfigFrom(cfg config.QdrantConfig) (ClientConfig, error) {
	out := DefaultClientConfig()
	out.APIKey = cfg.APIKey
	out.CollectionPrefix = cfg.CollectionPrefix
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout
	}
	if cfg.URL == "" {
		return out, nil
	}

	host, port, tls, err := parseURL(cfg.URL)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("invalid Qdrant URL: %w", err)
	}
	out.Host, out.Port, out.UseTLS = host, port, tls
	return out, nil
}

// parseURL extracts host and gRPC port from a Qdrant HTTP URL.
// Example: http://localhost:6333 -> localhost, 6334
func parseURL(rawURL string) (string, int, bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, false, err
	}

	host := u.Hostname()
	if host == "" {
		host = DefaultHost
	}

	httpPort := DefaultPort - 1
	if p := u.Port(); p != "" {
		httpPort, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid port: %s", p)
		}
	}

	return host, httpPort + 1, u.Scheme == "https", nil
}

// pointQuerier is the part of the Qdrant client Rank needs.
type pointQuerier interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// Client wraps the Qdrant Go client.
type Client struct {
	client *qdrant.Client
	points pointQuerier
	config ClientConfig
	mu     sync.RWMutex
	closed bool
}

// NewClient creates a new Qdrant client wrapper.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Client{
		client: client,
		points: client,
		config: cfg,
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// HealthCheck verifies the Qdrant server is reachable and returns its version.
func (c *Client) HealthCheck(ctx context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return "", fmt.Errorf("client is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	reply, err := c.client.HealthCheck(ctx)
	if err != nil {
		return "", fmt.Errorf("health check failed: %w", err)
	}
	if reply.GetTitle() == "" {
		return "", fmt.Errorf("unexpected health check response")
	}

	return reply.GetVersion(), nil
}

// collectionName returns the full collection name with prefix.
func (c *Client) collectionName(name string) string {
	return c.config.CollectionPrefix + name
}
