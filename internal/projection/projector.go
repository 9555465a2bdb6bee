// Package projection turns the stream of appended events into snapshots.
package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
	"github.com/example/scorekeeper-events/internal/infrastructure/store"
)

// StreamSnapshotter applies the snapshot policy to one stream
type StreamSnapshotter interface {
	SnapshotStream(ctx context.Context, streamID, aggregateType string) (bool, error)
}

// Projector reacts to appended events by re-evaluating the snapshot policy
// of the stream they were appended to
type Projector struct {
	snapshotter StreamSnapshotter
	registry    *aggregate.Registry
	logger      *zap.Logger
}

func NewProjector(snapshotter StreamSnapshotter, registry *aggregate.Registry, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{snapshotter: snapshotter, registry: registry, logger: logger}
}

// HandleEvent decodes a published envelope; it is a kafka.MessageHandler
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to decode event envelope: %w", err)
	}
	return p.HandleStored(ctx, event)
}

// HandleStored snapshots the stream of event when the policy says so.
// Events of unregistered aggregate types are skipped.
func (p *Projector) HandleStored(ctx context.Context, event store.Event) error {
	log := p.logger.With(
		zap.String("eventId", event.EventID),
		zap.String("eventType", event.EventType),
		zap.String("streamId", event.StreamID),
		zap.String("aggregateType", event.AggregateType),
	)

	if event.StreamID == "" {
		return store.ErrEmptyStreamID
	}
	if _, err := p.registry.Lookup(event.AggregateType); err != nil {
		log.Debug("skipping event of unregistered aggregate type")
		return nil
	}

	created, err := p.snapshotter.SnapshotStream(ctx, event.StreamID, event.AggregateType)
	if err != nil {
		return fmt.Errorf("failed to snapshot %s %s: %w", event.AggregateType, event.StreamID, err)
	}
	if created {
		log.Info("snapshot taken", zap.Int("streamVersion", event.StreamVersion))
	}
	return nil
}
