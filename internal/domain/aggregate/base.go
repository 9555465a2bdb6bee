// Package aggregate defines the replay contract shared by every event-sourced
// aggregate type.
package aggregate

import (
	"time"

	"github.com/google/uuid"
)

// Event is an immutable domain fact
type Event interface {
	EventID() string
	EventType() string
	OccurredAt() time.Time
}

// EventMeta carries the fields common to every domain event
type EventMeta struct {
	ID        string    `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEventMeta() EventMeta {
	return EventMeta{ID: uuid.New().String(), Timestamp: time.Now().UTC()}
}

func (m EventMeta) EventID() string       { return m.ID }
func (m EventMeta) OccurredAt() time.Time { return m.Timestamp }

// UnknownEvent stands in for a stored event whose kind is not recognised or
// whose payload could not be decoded. Every Applier treats it as a no-op.
type UnknownEvent struct {
	EventMeta
	Kind string
	Err  error
}

func (e UnknownEvent) EventType() string { return e.Kind }

// Aggregate defines the interface for event-sourced aggregates
type Aggregate interface {
	GetID() string
	GetAggregateType() string
	GetVersion() int
	GetState() any
	UncommittedEvents() []Event
	ClearUncommittedEvents()
}

// Applier is a pure state transition
type Applier[S any] func(state S, event Event) S

// Fold applies events to initial in order and returns the final state
func Fold[S any](events []Event, initial S, apply Applier[S]) S {
	state := initial
	for _, e := range events {
		state = apply(state, e)
	}
	return state
}

// Root is the generic Aggregate implementation. Its state only changes
// through Raise, which records the event as uncommitted.
type Root[S any] struct {
	id            string
	aggregateType string
	version       int
	state         S
	apply         Applier[S]
	uncommitted   []Event
}

// NewRoot returns a root holding state at version with no uncommitted events
func NewRoot[S any](id, aggregateType string, state S, version int, apply Applier[S]) *Root[S] {
	return &Root[S]{
		id:            id,
		aggregateType: aggregateType,
		version:       version,
		state:         state,
		apply:         apply,
	}
}

func (r *Root[S]) GetID() string            { return r.id }
func (r *Root[S]) GetAggregateType() string { return r.aggregateType }
func (r *Root[S]) GetVersion() int          { return r.version }
func (r *Root[S]) GetState() any            { return r.state }
func (r *Root[S]) State() S                 { return r.state }

// UncommittedEvents returns a copy of the events raised since the last clear
func (r *Root[S]) UncommittedEvents() []Event {
	events := make([]Event, len(r.uncommitted))
	copy(events, r.uncommitted)
	return events
}

func (r *Root[S]) ClearUncommittedEvents() {
	r.uncommitted = nil
}

// Raise applies a new event and records it for persistence
func (r *Root[S]) Raise(event Event) {
	r.state = r.apply(r.state, event)
	r.version++
	r.uncommitted = append(r.uncommitted, event)
}
