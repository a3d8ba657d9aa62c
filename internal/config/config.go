// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port                 string
	DeliveryMode         string // "auto" embeds dequeued text in block reasons, "manual" requires an explicit dequeue
	PollInterval         time.Duration
	WaitTimeout          time.Duration
	EventBufferSize      int
	SSEKeepaliveInterval time.Duration
	RateLimitRequests    int
	RateLimitWindow      time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "8456"),
		DeliveryMode:         strings.ToLower(getEnv("DELIVERY_MODE", "auto")),
		PollInterval:         getEnvDuration("POLL_INTERVAL", 100*time.Millisecond),
		WaitTimeout:          getEnvDuration("WAIT_TIMEOUT", 60*time.Second),
		EventBufferSize:      getEnvInt("EVENT_BUFFER_SIZE", 16),
		SSEKeepaliveInterval: getEnvDuration("SSE_KEEPALIVE_INTERVAL", 30*time.Second),
		RateLimitRequests:    getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:      getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DeliveryMode != "auto" && c.DeliveryMode != "manual" {
		return fmt.Errorf("DELIVERY_MODE must be \"auto\" or \"manual\", got %q", c.DeliveryMode)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("WAIT_TIMEOUT must be > 0")
	}
	if c.WaitTimeout < c.PollInterval {
		return fmt.Errorf("WAIT_TIMEOUT must be >= POLL_INTERVAL")
	}
	if c.EventBufferSize <= 0 {
		return fmt.Errorf("EVENT_BUFFER_SIZE must be > 0")
	}
	if c.SSEKeepaliveInterval <= 0 {
		return fmt.Errorf("SSE_KEEPALIVE_INTERVAL must be > 0")
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
