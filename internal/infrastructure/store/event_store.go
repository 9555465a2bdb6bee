package store

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Metadata carries envelope information that is not part of the payload
type Metadata struct {
	Source        string            `json:"source,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	RootID        string            `json:"rootId,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// Event is the persisted envelope of a domain event
type Event struct {
	EventID       string          `json:"eventId"`
	StreamID      string          `json:"streamId"`
	AggregateType string          `json:"aggregateType"`
	EventType     string          `json:"eventType"`
	EventData     json.RawMessage `json:"eventData"`
	EventVersion  int             `json:"eventVersion"`  // payload schema version
	StreamVersion int             `json:"streamVersion"` // 1-based position in the stream
	Timestamp     time.Time       `json:"timestamp"`
	Metadata      Metadata        `json:"metadata"`
}

// StreamVersion returns the highest stream version in events, or 0
func StreamVersion(events []Event) int {
	version := 0
	for _, e := range events {
		if e.StreamVersion > version {
			version = e.StreamVersion
		}
	}
	return version
}

// prepare stamps the stream coordinates onto events about to be appended
// after currentVersion.
func prepare(streamID, aggregateType string, events []Event, currentVersion int, now time.Time) []Event {
	prepared := make([]Event, len(events))
	for i, e := range events {
		e.StreamID = streamID
		e.AggregateType = aggregateType
		e.StreamVersion = currentVersion + i + 1
		if e.EventID == "" {
			e.EventID = uuid.New().String()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		if e.EventVersion == 0 {
			e.EventVersion = 1
		}
		if e.Metadata.CreatedAt.IsZero() {
			e.Metadata.CreatedAt = now
		}
		prepared[i] = e
	}
	return prepared
}

func matchesRoot(e Event, rootID string, aggregateTypes []string) bool {
	if e.StreamID != rootID && e.Metadata.RootID != rootID {
		return false
	}
	return len(aggregateTypes) == 0 || slices.Contains(aggregateTypes, e.AggregateType)
}

// EventStore is an in-memory EventLog that publishes appended events
type EventStore struct {
	mu        sync.RWMutex
	streams   map[string][]Event // streamID -> events
	all       []Event            // append order
	publisher Publisher
	now       func() time.Time
}

func NewEventStore(publisher Publisher) *EventStore {
	return &EventStore{
		streams:   make(map[string][]Event),
		publisher: publisher,
		now:       time.Now,
	}
}

// Append stores events and publishes them
func (es *EventStore) Append(ctx context.Context, streamID, aggregateType string, events []Event, expectedVersion int) error {
	if streamID == "" {
		return ErrEmptyStreamID
	}
	if len(events) == 0 {
		return nil
	}

	es.mu.Lock()
	current := len(es.streams[streamID])
	if expectedVersion != AnyVersion && expectedVersion != current {
		es.mu.Unlock()
		return &ConflictError{StreamID: streamID, Expected: expectedVersion, Actual: current}
	}
	prepared := prepare(streamID, aggregateType, events, current, es.now())
	es.streams[streamID] = append(es.streams[streamID], prepared...)
	es.all = append(es.all, prepared...)
	es.mu.Unlock()

	return publishAll(ctx, es.publisher, streamID, prepared)
}

// GetEvents returns the events of a stream after fromVersion
func (es *EventStore) GetEvents(ctx context.Context, streamID string, fromVersion int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var events []Event
	for _, e := range es.streams[streamID] {
		if e.StreamVersion > fromVersion {
			events = append(events, e)
		}
	}
	return events, nil
}

// GetAllEvents returns all events in append order
func (es *EventStore) GetAllEvents(ctx context.Context, since time.Time) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var all []Event
	for _, e := range es.all {
		if since.IsZero() || e.Timestamp.After(since) {
			all = append(all, e)
		}
	}
	return all, nil
}

// GetEventsByType returns up to limit events of one kind; limit <= 0 means all
func (es *EventStore) GetEventsByType(ctx context.Context, eventType string, limit int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var events []Event
	for _, e := range es.all {
		if e.EventType != eventType {
			continue
		}
		events = append(events, e)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

// GetEventsByAggregateRoot returns the events of the root stream and of every
// stream whose metadata points at it.
func (es *EventStore) GetEventsByAggregateRoot(ctx context.Context, rootID string, aggregateTypes []string, since time.Time) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var events []Event
	for _, e := range es.all {
		if !since.IsZero() && !e.Timestamp.After(since) {
			continue
		}
		if matchesRoot(e, rootID, aggregateTypes) {
			events = append(events, e)
		}
	}
	return events, nil
}

// RewriteEvent replaces the payload and schema version of a stored event
func (es *EventStore) RewriteEvent(ctx context.Context, event Event) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	stream := es.streams[event.StreamID]
	idx := slices.IndexFunc(stream, func(e Event) bool { return e.EventID == event.EventID })
	if idx < 0 {
		return ErrEventNotFound
	}
	stream[idx].EventData = event.EventData
	stream[idx].EventVersion = event.EventVersion

	for i := range es.all {
		if es.all[i].EventID == event.EventID {
			es.all[i].EventData = event.EventData
			es.all[i].EventVersion = event.EventVersion
			break
		}
	}
	return nil
}
