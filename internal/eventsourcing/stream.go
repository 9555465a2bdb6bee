package eventsourcing

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
	"github.com/example/scorekeeper-events/internal/infrastructure/store"
)

// StreamResult is the outcome of a read from the event log
type StreamResult struct {
	Success       bool          `json:"success"`
	Events        []store.Event `json:"events"`
	StreamVersion int           `json:"streamVersion"`
	Error         string        `json:"error,omitempty"`
}

// AppendResult is the outcome of an append
type AppendResult struct {
	Success        bool   `json:"success"`
	EventsAppended int    `json:"eventsAppended"`
	Error          string `json:"error,omitempty"`
}

// LoadEventStream reads a stream after fromVersion
func (s *Service) LoadEventStream(ctx context.Context, streamID, aggregateType string, fromVersion int) StreamResult {
	if streamID == "" {
		return StreamResult{Error: store.ErrEmptyStreamID.Error()}
	}

	events, err := s.events.GetEvents(ctx, streamID, fromVersion)
	if err != nil {
		s.logger.Error("failed to load event stream",
			zap.String("streamId", streamID),
			zap.String("aggregateType", aggregateType),
			zap.String("operation", "loadEventStream"),
			zap.Error(err),
		)
		return StreamResult{Error: err.Error()}
	}
	return StreamResult{
		Success:       true,
		Events:        events,
		StreamVersion: store.StreamVersion(events),
	}
}

// AppendEvents serializes events and appends them with an optimistic
// concurrency check. Conflicts reported by the log are passed through as-is.
func (s *Service) AppendEvents(ctx context.Context, streamID, aggregateType string, events []aggregate.Event, expectedVersion int) AppendResult {
	if len(events) == 0 {
		return AppendResult{Success: true}
	}

	stored := make([]store.Event, 0, len(events))
	for _, e := range events {
		envelope, err := aggregate.Encode(e)
		if err != nil {
			return AppendResult{Error: err.Error()}
		}
		envelope.Metadata.Source = s.source
		stored = append(stored, envelope)
	}

	err := s.events.Append(ctx, streamID, aggregateType, stored, expectedVersion)
	if errors.Is(err, store.ErrPublishFailed) {
		// the write is durable; only the notification was lost
		s.logger.Warn("events appended but not published",
			zap.String("streamId", streamID),
			zap.String("aggregateType", aggregateType),
			zap.String("operation", "appendEvents"),
			zap.Error(err),
		)
		err = nil
	}
	if err != nil {
		log := s.logger.Error
		if errors.Is(err, store.ErrConcurrencyConflict) {
			log = s.logger.Warn
		}
		log("failed to append events",
			zap.String("streamId", streamID),
			zap.String("aggregateType", aggregateType),
			zap.String("operation", "appendEvents"),
			zap.Int("expectedVersion", expectedVersion),
			zap.Error(err),
		)
		return AppendResult{Error: err.Error()}
	}

	s.logger.Debug("events appended",
		zap.String("streamId", streamID),
		zap.String("aggregateType", aggregateType),
		zap.Int("count", len(stored)),
	)
	return AppendResult{Success: true, EventsAppended: len(stored)}
}

// SaveAggregate appends the uncommitted events of agg, expecting the stream
// to be at the version agg was loaded at. On success the events are cleared
// and the snapshot policy is applied; snapshot failures are only logged.
func (s *Service) SaveAggregate(ctx context.Context, agg aggregate.Aggregate) AppendResult {
	pending := agg.UncommittedEvents()
	expected := agg.GetVersion() - len(pending)

	result := s.AppendEvents(ctx, agg.GetID(), agg.GetAggregateType(), pending, expected)
	if !result.Success || result.EventsAppended == 0 {
		return result
	}
	agg.ClearUncommittedEvents()

	if s.snapshots != nil {
		if _, err := s.snapshots.MaybeSnapshot(ctx, agg); err != nil {
			s.logger.Warn("failed to create snapshot",
				zap.String("aggregateId", agg.GetID()),
				zap.String("aggregateType", agg.GetAggregateType()),
				zap.Error(err),
			)
		}
	}
	return result
}

// GetAllEvents reads the whole log, or the part after since
func (s *Service) GetAllEvents(ctx context.Context, since time.Time) StreamResult {
	events, err := s.events.GetAllEvents(ctx, since)
	return s.queryResult("getAllEvents", events, err)
}

func (s *Service) GetEventsByType(ctx context.Context, eventType string, limit int) StreamResult {
	events, err := s.events.GetEventsByType(ctx, eventType, limit)
	return s.queryResult("getEventsByType", events, err)
}

// GetEventsByAggregateRoot reads the events of a root aggregate and of the
// aggregates that belong to it, optionally restricted to aggregateTypes.
func (s *Service) GetEventsByAggregateRoot(ctx context.Context, rootID string, aggregateTypes []string, since time.Time) StreamResult {
	events, err := s.events.GetEventsByAggregateRoot(ctx, rootID, aggregateTypes, since)
	return s.queryResult("getEventsByAggregateRoot", events, err)
}

func (s *Service) queryResult(operation string, events []store.Event, err error) StreamResult {
	if err != nil {
		s.logger.Error("event query failed", zap.String("operation", operation), zap.Error(err))
		return StreamResult{Error: err.Error()}
	}
	return StreamResult{Success: true, Events: events, StreamVersion: store.StreamVersion(events)}
}
