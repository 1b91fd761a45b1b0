package bitrix

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fivetwenty-io/b24/internal/constants"
)

// Cache errors.
var (
	ErrCacheMiss         = errors.New("cache miss")
	ErrCacheValueTooBig  = errors.New("cache value exceeds size limit")
	ErrNATSURLRequired   = errors.New("NATS URL required")
	ErrNATSBucketInvalid = errors.New("NATS bucket name required")
)

// CacheEntry is one cached value with its expiry.
type CacheEntry struct {
	Value     []byte
	ExpiresAt time.Time
}

// Expired reports whether the entry's lifetime has passed.
func (e *CacheEntry) Expired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// Cache stores byte payloads under string keys with a per-entry TTL. The
// repositories use it to keep entity field schemas between write validations.
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryCache is an in-process cache with a size cap. When full, the entry
// closest to expiry is evicted.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
	maxSize int
}

// NewMemoryCache creates a memory cache holding up to maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = constants.DefaultCacheSize
	}

	return &MemoryCache{
		entries: make(map[string]*CacheEntry),
		maxSize: maxSize,
	}
}

// Get returns the entry for key, or ErrCacheMiss if absent or expired.
func (c *MemoryCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCacheMiss, key)
	}

	if entry.Expired() {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()

		return nil, fmt.Errorf("%w: %q expired", ErrCacheMiss, key)
	}

	return entry, nil
}

// Set stores value under key for ttl. A zero ttl uses the default; a
// negative ttl writes an entry that is already expired.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) > constants.MaxCacheValueSize {
		return fmt.Errorf("%w: %d bytes", ErrCacheValueTooBig, len(value))
	}

	if ttl == 0 {
		ttl = constants.DefaultCacheTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &CacheEntry{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
	}

	return nil
}

// Delete removes the entry for key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	return nil
}

// Close releases all entries.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]*CacheEntry)
	c.mu.Unlock()

	return nil
}

// evictOldest removes the entry closest to expiry. Caller holds the lock.
func (c *MemoryCache) evictOldest() {
	var (
		oldestKey  string
		oldestTime time.Time
	)

	for key, entry := range c.entries {
		if oldestKey == "" || entry.ExpiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.ExpiresAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// NATSKVConfig configures the NATS JetStream key-value cache backend.
type NATSKVConfig struct {
	// URL is the NATS server URL.
	URL string

	// Bucket is the key-value bucket name. Created if missing.
	Bucket string

	// TTL is the bucket-wide entry lifetime.
	TTL time.Duration
}

// NATSKVCache stores entries in a NATS JetStream key-value bucket so several
// processes can share one schema cache.
type NATSKVCache struct {
	conn   *nats.Conn
	bucket nats.KeyValue
}

// NewNATSKVCache connects to NATS and binds (or creates) the bucket.
func NewNATSKVCache(config *NATSKVConfig) (*NATSKVCache, error) {
	if config == nil || config.URL == "" {
		return nil, ErrNATSURLRequired
	}

	if config.Bucket == "" {
		return nil, ErrNATSBucketInvalid
	}

	conn, err := nats.Connect(config.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("opening JetStream context: %w", err)
	}

	bucket, err := js.KeyValue(config.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		ttl := config.TTL
		if ttl <= 0 {
			ttl = constants.DefaultCacheTTL
		}

		bucket, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: config.Bucket,
			TTL:    ttl,
		})
	}

	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("binding KV bucket %q: %w", config.Bucket, err)
	}

	return &NATSKVCache{conn: conn, bucket: bucket}, nil
}

// Get returns the entry for key, or ErrCacheMiss if absent.
func (c *NATSKVCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	kvEntry, err := c.bucket.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrCacheMiss, key)
		}

		return nil, fmt.Errorf("reading KV key %q: %w", key, err)
	}

	// The bucket TTL governs expiry; entries NATS still serves are live.
	return &CacheEntry{Value: kvEntry.Value()}, nil
}

// Set stores value under key. The bucket-wide TTL applies; the per-call ttl
// is accepted for interface symmetry but not narrowed per key.
func (c *NATSKVCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) > constants.MaxCacheValueSize {
		return fmt.Errorf("%w: %d bytes", ErrCacheValueTooBig, len(value))
	}

	_, err := c.bucket.Put(key, value)
	if err != nil {
		return fmt.Errorf("writing KV key %q: %w", key, err)
	}

	return nil
}

// Delete removes the entry for key.
func (c *NATSKVCache) Delete(ctx context.Context, key string) error {
	err := c.bucket.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("deleting KV key %q: %w", key, err)
	}

	return nil
}

// Close drops the NATS connection.
func (c *NATSKVCache) Close() error {
	c.conn.Close()

	return nil
}

// NoOpCache is a cache that stores nothing.
type NoOpCache struct{}

// NewNoOpCache creates a new no-op cache.
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Get always misses.
func (c *NoOpCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	return nil, fmt.Errorf("%w: caching disabled", ErrCacheMiss)
}

// Set discards the value.
func (c *NoOpCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

// Delete does nothing.
func (c *NoOpCache) Delete(ctx context.Context, key string) error {
	return nil
}

// Close does nothing.
func (c *NoOpCache) Close() error {
	return nil
}
