package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayEntry is a prior successful write response
type ReplayEntry struct {
	ETag      string `json:"etag"` // screen etag right after the write
	ScreenKey string `json:"screen_key"`
	Body      []byte `json:"body"`
}

// ReplayCache stores write responses for idempotent replay
type ReplayCache interface {
	// Get returns nil, nil on a miss
	Get(ctx context.Context, key string) (*ReplayEntry, error)
	Put(ctx context.Context, key string, entry *ReplayEntry) error
}

type replayCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReplayCache creates a Redis-backed replay cache
func NewReplayCache(client *redis.Client, ttl time.Duration) ReplayCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &replayCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *replayCache) key(key string) string {
	return fmt.Sprintf("replay:%s", key)
}

func (c *replayCache) Get(ctx context.Context, key string) (*ReplayEntry, error) {
	data, err := c.client.Get(ctx, c.key(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry ReplayEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *replayCache) Put(ctx context.Context, key string, entry *ReplayEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), data, c.ttl).Err()
}

// MemoryReplayCache is the in-process replay cache used without Redis
type MemoryReplayCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	entries   map[string]memoryReplayEntry
	lastSweep time.Time
}

type memoryReplayEntry struct {
	entry     ReplayEntry
	expiresAt time.Time
}

func NewMemoryReplayCache(ttl time.Duration) *MemoryReplayCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryReplayCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryReplayEntry),
	}
}

func (c *MemoryReplayCache) Get(_ context.Context, key string) (*ReplayEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, nil
	}
	entry := e.entry
	return &entry, nil
}

func (c *MemoryReplayCache) Put(_ context.Context, key string, entry *ReplayEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if now.Sub(c.lastSweep) >= c.ttl {
		c.sweep(now)
	}
	c.entries[key] = memoryReplayEntry{entry: *entry, expiresAt: now.Add(c.ttl)}
	return nil
}

// sweep drops expired entries; at most once per ttl
func (c *MemoryReplayCache) sweep(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.lastSweep = now
}
