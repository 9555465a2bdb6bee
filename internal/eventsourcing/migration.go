package eventsourcing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/scorekeeper-events/internal/infrastructure/store"
)

// Transformer rewrites the payload of one event to the next schema version
type Transformer func(event store.Event) (json.RawMessage, error)

// MigrationResult summarizes a schema migration run
type MigrationResult struct {
	Success          bool     `json:"success"`
	EventsMigrated   int      `json:"eventsMigrated"`
	MigrationSkipped bool     `json:"migrationSkipped"`
	Errors           []string `json:"errors,omitempty"`
}

// RegisterTransformer installs the payload upgrade for eventType, replacing
// any previous one
func (s *Service) RegisterTransformer(eventType string, t Transformer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transformers[eventType] = t
}

func (s *Service) transformer(eventType string) (Transformer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transformers[eventType]
	return t, ok
}

// MigrateEvents upgrades every event at schema version from to schema
// version to. Events with a registered transformer are rewritten in place
// when the event log supports it; the rest are only counted.
func (s *Service) MigrateEvents(ctx context.Context, from, to int) MigrationResult {
	log := s.logger.With(
		zap.String("operation", "migrateEvents"),
		zap.Int("fromVersion", from),
		zap.Int("toVersion", to),
	)
	if from < 1 || to <= from {
		msg := fmt.Sprintf("Invalid migration from schema version %d to %d", from, to)
		log.Error("event migration rejected")
		return MigrationResult{Errors: []string{msg}}
	}

	all, err := s.events.GetAllEvents(ctx, time.Time{})
	if err != nil {
		log.Error("failed to scan event log", zap.Error(err))
		return MigrationResult{Errors: []string{err.Error()}}
	}

	var candidates []store.Event
	for _, e := range all {
		if e.EventVersion == from {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		log.Info("no events to migrate")
		return MigrationResult{Success: true, MigrationSkipped: true}
	}

	rewriter, canRewrite := s.events.(store.EventRewriter)
	result := MigrationResult{}
	for _, e := range candidates {
		t, ok := s.transformer(e.EventType)
		if !ok || !canRewrite {
			result.EventsMigrated++
			continue
		}

		data, err := t(e)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Migration failed for event %s: %v", e.EventID, err))
			continue
		}
		e.EventData = data
		e.EventVersion = to
		if err := rewriter.RewriteEvent(ctx, e); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Migration failed for event %s: %v", e.EventID, err))
			continue
		}
		// cached aggregates were folded from the old payload
		s.cache.Remove(e.AggregateType, e.StreamID)
		result.EventsMigrated++
	}

	result.Success = len(result.Errors) == 0
	log.Info("event migration finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("migrated", result.EventsMigrated),
		zap.Int("failed", len(result.Errors)),
	)
	return result
}
