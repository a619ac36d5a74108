package kvstore

import (
	"context"
	"encoding/json"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/kbukum/signalhub/internal/logger"
)

// MemoryStore is the in-process Store implementation. It backs local
// development and acts as the degraded-mode fallback for RemoteStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	stop    chan struct{}
	once    sync.Once
	log     *logger.Logger
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryStore creates an in-memory store. When sweepInterval is positive a
// background janitor evicts expired entries; expiry is also enforced lazily
// on every read so visibility does not depend on the sweep.
func NewMemoryStore(sweepInterval time.Duration, log *logger.Logger) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
		log:     log.WithComponent("kvstore.memory"),
	}
	if sweepInterval > 0 {
		go s.janitor(sweepInterval)
	}
	return s
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Debug("Swept expired entries", logger.Fields("count", n))
			}
		}
	}
}

// Sweep removes expired entries and returns how many were evicted.
func (s *MemoryStore) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Set stores a JSON-serialized value under key.
func (s *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		s.log.Error("Failed to serialize value", logger.ErrorFields("set", err))
		return false
	}
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return true
}

// Get deserializes the value at key into out.
func (s *MemoryStore) Get(ctx context.Context, key string, out any) bool {
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
func (s *MemoryStore) GetRaw(_ context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		return "", false
	}
	return string(e.data), true
}

// Delete removes the entry and reports whether something was removed.
func (s *MemoryStore) Delete(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	delete(s.entries, key)
	return !e.expired(time.Now())
}

// Exists reports whether a live entry is present.
func (s *MemoryStore) Exists(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && !e.expired(time.Now())
}

// Increment atomically adds amount to the counter at key. An absent or
// expired key counts from 0. The entry's TTL is preserved.
func (s *MemoryStore) Increment(_ context.Context, key string, amount int64) int64 {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	entry, ok := s.entries[key]
	if ok && !entry.expired(now) {
		if n, err := strconv.ParseInt(string(entry.data), 10, 64); err == nil {
			current = n
		}
	} else {
		entry = memoryEntry{}
	}

	current += amount
	entry.data = []byte(strconv.FormatInt(current, 10))
	s.entries[key] = entry
	return current
}

// Expire sets or resets the TTL of an existing key.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) bool {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.expired(now) {
		return false
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	s.entries[key] = e
	return true
}

// Keys returns the live keys matching a glob pattern.
func (s *MemoryStore) Keys(_ context.Context, pattern string) []string {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0)
	for k, e := range s.entries {
		if e.expired(now) {
			continue
		}
		if ok, err := path.Match(pattern, k); err == nil && ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Close stops the janitor.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

var _ Store = (*MemoryStore)(nil)
