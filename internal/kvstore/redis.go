package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/signalhub/internal/logger"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Enabled controls whether the Redis backend is used.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr" mapstructure:"addr"`

	// Password is the Redis server password.
	Password string `yaml:"password" mapstructure:"password"`

	// DB is the Redis database number.
	DB int `yaml:"db" mapstructure:"db"`

	// PoolSize is the maximum number of socket connections.
	PoolSize int `yaml:"pool_size" mapstructure:"pool_size"`

	// DialTimeout is the timeout for establishing new connections (e.g. "5s").
	DialTimeout string `yaml:"dial_timeout" mapstructure:"dial_timeout"`

	// ReadTimeout is the timeout for socket reads (e.g. "3s").
	ReadTimeout string `yaml:"read_timeout" mapstructure:"read_timeout"`

	// WriteTimeout is the timeout for socket writes (e.g. "3s").
	WriteTimeout string `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *RedisConfig) ApplyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == "" {
		c.DialTimeout = "5s"
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "3s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "3s"
	}
}

// Validate checks the configuration for invalid values.
func (c *RedisConfig) Validate() error {
	if c.Enabled && c.Addr == "" {
		return fmt.Errorf("kvstore.redis.addr is required when redis is enabled")
	}
	for name, v := range map[string]string{
		"dial_timeout":  c.DialTimeout,
		"read_timeout":  c.ReadTimeout,
		"write_timeout": c.WriteTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("kvstore.redis.%s: %w", name, err)
		}
	}
	return nil
}

// RemoteStore is the Redis-backed Store implementation. Transport errors
// degrade individual operations to an embedded in-memory fallback so callers
// above the store boundary never see a raw transport fault.
type RemoteStore struct {
	rdb      *goredis.Client
	fallback *MemoryStore
	log      *logger.Logger

	mu       sync.Mutex
	degraded bool
}

// NewRemoteStore connects to Redis and verifies the connection with a ping.
func NewRemoteStore(ctx context.Context, cfg RedisConfig, sweepInterval time.Duration, log *logger.Logger) (*RemoteStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialTimeout, _ := time.ParseDuration(cfg.DialTimeout)
	readTimeout, _ := time.ParseDuration(cfg.ReadTimeout)
	writeTimeout, _ := time.ParseDuration(cfg.WriteTimeout)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RemoteStore{
		rdb:      rdb,
		fallback: NewMemoryStore(sweepInterval, log),
		log:      log.WithComponent("kvstore.redis"),
	}, nil
}

// markDegraded records a transport failure and logs the state transition once.
func (s *RemoteStore) markDegraded(op string, err error) {
	s.mu.Lock()
	was := s.degraded
	s.degraded = true
	s.mu.Unlock()
	if !was {
		s.log.Warn("Redis degraded, falling back to in-memory store", logger.ErrorFields(op, err))
	}
}

// markHealthy clears the degraded flag after a successful call.
func (s *RemoteStore) markHealthy() {
	s.mu.Lock()
	was := s.degraded
	s.degraded = false
	s.mu.Unlock()
	if was {
		s.log.Info("Redis recovered")
	}
}

// Set stores a JSON-serialized value under key with an optional TTL.
func (s *RemoteStore) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		s.log.Error("Failed to serialize value", logger.ErrorFields("set", err))
		return false
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		s.markDegraded("set", err)
		return s.fallback.Set(ctx, key, value, ttl)
	}
	s.markHealthy()
	return true
}

// Get deserializes the value at key into out.
func (s *RemoteStore) Get(ctx context.Context, key string, out any) bool {
	raw, ok := s.GetRaw(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.log.Error("Failed to deserialize value", logger.ErrorFields("get", err))
		return false
	}
	return true
}

// GetRaw returns the raw serialized value at key.
func (s *RemoteStore) GetRaw(ctx context.Context, key string) (string, bool) {
	raw, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			s.markHealthy()
			return "", false
		}
		s.markDegraded("get", err)
		return s.fallback.GetRaw(ctx, key)
	}
	s.markHealthy()
	return raw, true
}

// Delete removes the entry and reports whether something was removed.
func (s *RemoteStore) Delete(ctx context.Context, key string) bool {
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		s.markDegraded("delete", err)
		return s.fallback.Delete(ctx, key)
	}
	s.markHealthy()
	return n > 0
}

// Exists reports whether a live entry is present.
func (s *RemoteStore) Exists(ctx context.Context, key string) bool {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		s.markDegraded("exists", err)
		return s.fallback.Exists(ctx, key)
	}
	s.markHealthy()
	return n > 0
}

// Increment atomically adds amount to the counter at key.
func (s *RemoteStore) Increment(ctx context.Context, key string, amount int64) int64 {
	n, err := s.rdb.IncrBy(ctx, key, amount).Result()
	if err != nil {
		s.markDegraded("increment", err)
		return s.fallback.Increment(ctx, key, amount)
	}
	s.markHealthy()
	return n
}

// Expire sets or resets the TTL of an existing key.
func (s *RemoteStore) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := s.rdb.Expire(ctx, key, ttl).Result()
	if err != nil {
		s.markDegraded("expire", err)
		return s.fallback.Expire(ctx, key, ttl)
	}
	s.markHealthy()
	return ok
}

// Keys returns the keys matching a glob pattern.
func (s *RemoteStore) Keys(ctx context.Context, pattern string) []string {
	keys, err := s.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		s.markDegraded("keys", err)
		return s.fallback.Keys(ctx, pattern)
	}
	s.markHealthy()
	return keys
}

// Close releases the Redis connection and the fallback janitor.
func (s *RemoteStore) Close() error {
	_ = s.fallback.Close()
	return s.rdb.Close()
}

var _ Store = (*RemoteStore)(nil)
