package typesense

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/typesense/typesense-go/typesense"
)

const DefaultCollection = "wormgraph_documents"

// Config holds Typesense configuration
type Config struct {
	ServerURL           string
	APIKey              string
	Collection          string
	ConnectionTimeout   time.Duration
	NumRetries          int
	RetryInterval       time.Duration
	HealthCheckInterval time.Duration
}

// DefaultConfig returns default Typesense configuration
func DefaultConfig() *Config {
	return &Config{
		Collection:          DefaultCollection,
		ConnectionTimeout:   5 * time.Second,
		NumRetries:          3,
		RetryInterval:       time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server URL is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 5 * time.Second
	}
	if c.NumRetries < 0 {
		c.NumRetries = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
	return nil
}

// NewClient creates a new Typesense client with the given configuration
func NewClient(config *Config) (*typesense.Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := typesense.NewClient(
		typesense.WithServer(config.ServerURL),
		typesense.WithAPIKey(config.APIKey),
		typesense.WithConnectionTimeout(config.ConnectionTimeout),
	)

	return client, nil
}

// HealthChecker polls Typesense and logs when it stops answering.
type HealthChecker struct {
	client   *typesense.Client
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

func NewHealthChecker(client *typesense.Client, interval time.Duration, logger zerolog.Logger) *HealthChecker {
	return &HealthChecker{
		client:   client,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start blocks until Stop is called or ctx is done.
func (h *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := h.check(ctx); err != nil {
				h.logger.Warn().Err(err).Msg("typesense health check failed")
			}
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *HealthChecker) Stop() {
	close(h.stopCh)
}

func (h *HealthChecker) check(ctx context.Context) error {
	healthy, err := h.client.Health(ctx, 5*time.Second)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if !healthy {
		return fmt.Errorf("typesense is not healthy")
	}

	return nil
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *typesense.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status == 404
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}

func isAlreadyExistsError(err error) bool {
	var httpErr *typesense.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status == 409
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}
