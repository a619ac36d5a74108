// Package kvstore provides the keyed expiring store used for OTPs, coupons,
// sequence snapshots, live-activity records, and calendar artifacts.
//
// Values are JSON-serialized. Every entry optionally carries a TTL after
// which it is no longer visible to Get/Exists. Transport faults never escape
// this package: operations report success through booleans and a remote
// backend degrades to an in-process fallback map.
package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/signalhub/internal/logger"
)

// Store is the keyed expiring store contract.
//
// Absent keys are a normal result, not a failure: Get returns false for a
// missing or expired key and never surfaces a transport error.
type Store interface {
	// Set serializes value as JSON and stores it under key. A ttl of 0 means
	// no expiry. Overwrites any prior value and resets its TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool

	// Get deserializes the value at key into out. Returns false if the key
	// is absent, expired, or the backend failed.
	Get(ctx context.Context, key string, out any) bool

	// GetRaw returns the raw serialized value at key.
	GetRaw(ctx context.Context, key string) (string, bool)

	// Delete removes the entry and reports whether something was removed.
	Delete(ctx context.Context, key string) bool

	// Exists reports whether a live (non-expired) entry is present.
	Exists(ctx context.Context, key string) bool

	// Increment atomically adds amount to the counter at key, treating an
	// absent key as 0, and returns the new count. Returns 0 on backend failure.
	Increment(ctx context.Context, key string, amount int64) int64

	// Expire sets or resets the TTL of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) bool

	// Keys returns the keys matching a glob pattern (e.g. "otp:*").
	// Re-querying returns current matches, not a snapshot.
	Keys(ctx context.Context, pattern string) []string

	// Close releases backend resources.
	Close() error
}

// Config holds store configuration.
type Config struct {
	// Redis enables the remote backend. When disabled or unreachable at
	// startup the in-memory store is used instead.
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`

	// SweepInterval is how often the in-memory backend evicts expired
	// entries (e.g. "1m").
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	c.Redis.ApplyDefaults()
	if c.SweepInterval == "" {
		c.SweepInterval = "1m"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.SweepInterval); err != nil {
		return fmt.Errorf("kvstore.sweep_interval: %w", err)
	}
	return nil
}

// New selects the store backend once at startup: the Redis-backed store when
// it is enabled and reachable, the in-memory store otherwise.
func New(ctx context.Context, cfg Config, log *logger.Logger) Store {
	cfg.ApplyDefaults()
	sweep, _ := time.ParseDuration(cfg.SweepInterval)

	if !cfg.Redis.Enabled {
		log.Info("Using in-memory store (redis disabled)")
		return NewMemoryStore(sweep, log)
	}

	remote, err := NewRemoteStore(ctx, cfg.Redis, sweep, log)
	if err != nil {
		log.Warn("Redis unreachable, using in-memory store", logger.Fields(
			"addr", cfg.Redis.Addr,
			"error", err.Error(),
		))
		return NewMemoryStore(sweep, log)
	}
	log.Info("Connected to redis store", logger.Fields("addr", cfg.Redis.Addr))
	return remote
}
