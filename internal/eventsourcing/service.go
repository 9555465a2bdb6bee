// Package eventsourcing coordinates stream reads and writes, aggregate
// reconstruction, snapshot caching, consistency checks and migrations.
//
// Every method that touches the event log or snapshot store reports port
// failures through its result value. Only structural validation that can be
// done before any I/O is returned as an error.
package eventsourcing

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/scorekeeper-events/internal/cache"
	"github.com/example/scorekeeper-events/internal/domain/aggregate"
	"github.com/example/scorekeeper-events/internal/infrastructure/store"
	"github.com/example/scorekeeper-events/internal/snapshot"
)

// DefaultSource is written to the metadata of appended events
const DefaultSource = "scorekeeper-events"

var ErrValidation = errors.New("validation failed")

// Config wires the collaborators of a Service
type Config struct {
	// Events is the event log. Required.
	Events store.EventLog
	// Snapshots loads and saves snapshots. Optional; without it reconstruction
	// always replays from the cache baseline or the start of the stream.
	Snapshots *snapshot.Manager
	// Cache holds reconstructed aggregates. Optional; defaults to a disabled cache.
	Cache *cache.SnapshotCache
	// Registry knows the replay routine of each aggregate type. Required.
	Registry *aggregate.Registry
	Logger   *zap.Logger
	// Source is recorded as metadata.source on appended events.
	Source string
}

type Service struct {
	events    store.EventLog
	snapshots *snapshot.Manager
	cache     *cache.SnapshotCache
	registry  *aggregate.Registry
	logger    *zap.Logger
	source    string
	now       func() time.Time

	mu           sync.RWMutex
	transformers map[string]Transformer
}

func NewService(cfg Config) *Service {
	s := &Service{
		events:       cfg.Events,
		snapshots:    cfg.Snapshots,
		cache:        cfg.Cache,
		registry:     cfg.Registry,
		logger:       cfg.Logger,
		source:       cfg.Source,
		now:          time.Now,
		transformers: make(map[string]Transformer),
	}
	if s.cache == nil {
		s.cache = cache.New(cache.WithEnabled(false))
	}
	if s.registry == nil {
		s.registry = aggregate.NewRegistry()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.source == "" {
		s.source = DefaultSource
	}
	return s
}

// EnableSnapshotCaching toggles the reconstruction cache; disabling clears it
func (s *Service) EnableSnapshotCaching(enabled bool) cache.Stats {
	return s.cache.Enable(enabled)
}

// CacheStats reports the cache configuration and fill level
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// EvictStaleEntries runs one TTL + LRU eviction pass over the cache
func (s *Service) EvictStaleEntries() int {
	return s.cache.EvictStale()
}
