package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AnyVersion disables the expected-version check on Append.
const AnyVersion = -1

// EventLog defines append-only, per-stream event storage
type EventLog interface {
	// Append stores events at the end of a stream. expectedVersion is the
	// stream version the caller last observed, or AnyVersion.
	Append(ctx context.Context, streamID, aggregateType string, events []Event, expectedVersion int) error
	// GetEvents returns the events of a stream with StreamVersion > fromVersion,
	// ascending.
	GetEvents(ctx context.Context, streamID string, fromVersion int) ([]Event, error)
	// GetAllEvents returns every event with a timestamp after since. A zero
	// since returns the whole log.
	GetAllEvents(ctx context.Context, since time.Time) ([]Event, error)
	GetEventsByType(ctx context.Context, eventType string, limit int) ([]Event, error)
	GetEventsByAggregateRoot(ctx context.Context, rootID string, aggregateTypes []string, since time.Time) ([]Event, error)
}

// SnapshotStore keeps the latest snapshot of each aggregate
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, aggregateID string, snapshot *Snapshot) error
	// GetSnapshot returns nil, nil when no snapshot exists.
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
}

// EventRewriter is implemented by logs that can replace an event's payload
// in place during schema migration.
type EventRewriter interface {
	RewriteEvent(ctx context.Context, event Event) error
}

// Publisher receives every event after it has been stored
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// publishAll hands every stored event to publisher, even after a failure
func publishAll(ctx context.Context, publisher Publisher, streamID string, events []Event) error {
	if publisher == nil {
		return nil
	}
	var errs []error
	for _, e := range events {
		if err := publisher.Publish(ctx, streamID, e); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", e.EventID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrPublishFailed, errors.Join(errs...))
	}
	return nil
}
