package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/scorekeeper-events/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockEventStore is a mock implementation of store.EventLog for testing
type MockEventStore struct {
	mu      sync.RWMutex
	streams map[string][]store.Event
	order   []string // eventIDs in append order

	// For tracking calls in tests
	AppendCalls     []AppendCall
	GetEventsCalls  []GetEventsCall
	AppendErr       error
	GetEventsErr    error
	GetAllEventsErr error
	AppendCallback  func(ctx context.Context, streamID, aggregateType string, events []store.Event, expectedVersion int) error
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	StreamID        string
	AggregateType   string
	Events          []store.Event
	ExpectedVersion int
}

// GetEventsCall records parameters passed to GetEvents
type GetEventsCall struct {
	StreamID    string
	FromVersion int
}

// NewMockEventStore creates a new MockEventStore
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		streams:     make(map[string][]store.Event),
		AppendCalls: make([]AppendCall, 0),
	}
}

// Append stores events in memory, enforcing expectedVersion
func (m *MockEventStore) Append(ctx context.Context, streamID, aggregateType string, events []store.Event, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls = append(m.AppendCalls, AppendCall{
		StreamID:        streamID,
		AggregateType:   aggregateType,
		Events:          events,
		ExpectedVersion: expectedVersion,
	})

	if m.AppendCallback != nil {
		return m.AppendCallback(ctx, streamID, aggregateType, events, expectedVersion)
	}
	if m.AppendErr != nil {
		return m.AppendErr
	}

	current := len(m.streams[streamID])
	if expectedVersion != store.AnyVersion && expectedVersion != current {
		return &store.ConflictError{StreamID: streamID, Expected: expectedVersion, Actual: current}
	}

	for i, e := range events {
		e.StreamID = streamID
		e.AggregateType = aggregateType
		e.StreamVersion = current + i + 1
		if e.EventID == "" {
			e.EventID = uuid.New().String()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now()
		}
		m.streams[streamID] = append(m.streams[streamID], e)
		m.order = append(m.order, e.EventID)
	}
	return nil
}

// GetEvents returns events of a stream after fromVersion
func (m *MockEventStore) GetEvents(ctx context.Context, streamID string, fromVersion int) ([]store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetEventsCalls = append(m.GetEventsCalls, GetEventsCall{StreamID: streamID, FromVersion: fromVersion})
	if m.GetEventsErr != nil {
		return nil, m.GetEventsErr
	}

	var events []store.Event
	for _, e := range m.streams[streamID] {
		if e.StreamVersion > fromVersion {
			events = append(events, e)
		}
	}
	return events, nil
}

// GetAllEvents returns all events in append order
func (m *MockEventStore) GetAllEvents(ctx context.Context, since time.Time) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetAllEventsErr != nil {
		return nil, m.GetAllEventsErr
	}

	var all []store.Event
	for _, e := range m.ordered() {
		if since.IsZero() || e.Timestamp.After(since) {
			all = append(all, e)
		}
	}
	return all, nil
}

// GetEventsByType returns events of one kind
func (m *MockEventStore) GetEventsByType(ctx context.Context, eventType string, limit int) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []store.Event
	for _, e := range m.ordered() {
		if e.EventType == eventType {
			events = append(events, e)
		}
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

// GetEventsByAggregateRoot returns the events of a root and its children
func (m *MockEventStore) GetEventsByAggregateRoot(ctx context.Context, rootID string, aggregateTypes []string, since time.Time) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []store.Event
	for _, e := range m.ordered() {
		if e.StreamID != rootID && e.Metadata.RootID != rootID {
			continue
		}
		if len(aggregateTypes) > 0 && !contains(aggregateTypes, e.AggregateType) {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// RewriteEvent replaces the payload of a stored event
func (m *MockEventStore) RewriteEvent(ctx context.Context, event store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.streams[event.StreamID] {
		if e.EventID == event.EventID {
			m.streams[event.StreamID][i].EventData = event.EventData
			m.streams[event.StreamID][i].EventVersion = event.EventVersion
			return nil
		}
	}
	return store.ErrEventNotFound
}

// Reset clears all events and recorded calls
func (m *MockEventStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = make(map[string][]store.Event)
	m.order = nil
	m.AppendCalls = make([]AppendCall, 0)
	m.GetEventsCalls = nil
	m.AppendErr = nil
	m.GetEventsErr = nil
	m.GetAllEventsErr = nil
	m.AppendCallback = nil
}

// SetEvents sets the events of a stream verbatim, gaps and all
func (m *MockEventStore) SetEvents(streamID string, events []store.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[streamID] = events
	for _, e := range events {
		m.order = append(m.order, e.EventID)
	}
}

// AddEvent appends a single event with the given payload for testing
func (m *MockEventStore) AddEvent(streamID, aggregateType, eventType string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	event := store.Event{
		EventID:       uuid.New().String(),
		StreamID:      streamID,
		AggregateType: aggregateType,
		EventType:     eventType,
		EventData:     jsonData,
		EventVersion:  1,
		StreamVersion: len(m.streams[streamID]) + 1,
		Timestamp:     time.Now(),
	}

	m.streams[streamID] = append(m.streams[streamID], event)
	m.order = append(m.order, event.EventID)
	return nil
}

func (m *MockEventStore) ordered() []store.Event {
	byID := make(map[string]store.Event)
	for _, events := range m.streams {
		for _, e := range events {
			byID[e.EventID] = e
		}
	}
	all := make([]store.Event, 0, len(m.order))
	for _, id := range m.order {
		if e, ok := byID[id]; ok {
			all = append(all, e)
			delete(byID, id)
		}
	}
	return all
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
