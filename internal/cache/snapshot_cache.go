// Package cache holds reconstructed aggregates in memory, bounded by size
// (least recently used first) and by age.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
)

const (
	DefaultMaxSize = 1000
	DefaultTTL     = time.Hour
)

// Entry is one cached aggregate
type Entry struct {
	ID            string
	StreamID      string
	AggregateType string
	Version       int
	Aggregate     aggregate.Aggregate
	CreatedAt     time.Time
	LastAccessed  time.Time
	Metadata      map[string]string
}

// Stats describes the cache configuration and fill level
type Stats struct {
	Enabled     bool          `json:"enabled"`
	MaxSize     int           `json:"maxSize"`
	TTL         time.Duration `json:"ttl"`
	CurrentSize int           `json:"currentSize"`
}

type Option func(*SnapshotCache)

func WithMaxSize(n int) Option {
	return func(c *SnapshotCache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *SnapshotCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *SnapshotCache) { c.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *SnapshotCache) { c.logger = logger }
}

// WithEnabled sets the initial state; caching is on by default
func WithEnabled(enabled bool) Option {
	return func(c *SnapshotCache) { c.enabled = enabled }
}

// SnapshotCache is safe for concurrent use. Concurrent Sets of the same key
// resolve last-write-wins.
type SnapshotCache struct {
	mu      sync.Mutex
	enabled bool
	maxSize int
	ttl     time.Duration
	entries *simplelru.LRU[string, *Entry]
	now     func() time.Time
	logger  *zap.Logger
}

func New(opts ...Option) *SnapshotCache {
	c := &SnapshotCache{
		enabled: true,
		maxSize: DefaultMaxSize,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// maxSize is always positive, the only case NewLRU rejects
	c.entries, _ = simplelru.NewLRU[string, *Entry](c.maxSize, nil)
	return c
}

// Key returns the cache key of a stream
func Key(aggregateType, streamID string) string {
	return aggregateType + "-" + streamID
}

// Enable toggles caching. Disabling drops every entry.
func (c *SnapshotCache) Enable(enabled bool) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = enabled
	if !enabled {
		c.entries.Purge()
	}
	c.logger.Info("snapshot caching toggled", zap.Bool("enabled", enabled))
	return c.statsLocked()
}

func (c *SnapshotCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

func (c *SnapshotCache) statsLocked() Stats {
	return Stats{
		Enabled:     c.enabled,
		MaxSize:     c.maxSize,
		TTL:         c.ttl,
		CurrentSize: c.entries.Len(),
	}
}

// Get returns a copy of the entry and marks it as most recently used
func (c *SnapshotCache) Get(aggregateType, streamID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return Entry{}, false
	}
	entry, ok := c.entries.Get(Key(aggregateType, streamID))
	if !ok {
		return Entry{}, false
	}
	entry.LastAccessed = c.now()
	return *entry, true
}

// Set inserts or refreshes an entry. A full cache drops its least recently
// used entry to make room.
func (c *SnapshotCache) Set(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	now := c.now()
	entry.ID = Key(entry.AggregateType, entry.StreamID)
	entry.CreatedAt = now
	entry.LastAccessed = now

	if evicted := c.entries.Add(entry.ID, &entry); evicted {
		c.logger.Debug("evicted least recently used cache entry", zap.Int("maxSize", c.maxSize))
	}
}

func (c *SnapshotCache) Remove(aggregateType, streamID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(Key(aggregateType, streamID))
}

func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// EvictStale drops entries older than the TTL and returns how many it
// removed. Reads do not extend an entry's life.
func (c *SnapshotCache) EvictStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := 0
	for _, key := range c.entries.Keys() {
		entry, ok := c.entries.Peek(key)
		if ok && now.Sub(entry.CreatedAt) > c.ttl {
			c.entries.Remove(key)
			expired++
		}
	}

	if expired > 0 {
		c.logger.Debug("evicted stale cache entries",
			zap.Int("expired", expired),
			zap.Int("remaining", c.entries.Len()),
		)
	}
	return expired
}

// RunJanitor calls EvictStale every interval until ctx is done
func RunJanitor(ctx context.Context, c *SnapshotCache, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.EvictStale()
		}
	}
}
