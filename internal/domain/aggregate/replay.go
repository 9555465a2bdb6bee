package aggregate

import (
	"encoding/json"
	"fmt"

	"github.com/example/scorekeeper-events/internal/infrastructure/store"
)

// Decoder turns a stored payload into a typed event. It returns nil for
// kinds it does not know.
type Decoder func(eventType string, data json.RawMessage) (Event, error)

// Replayer is the type-specific replay routine used during reconstruction
type Replayer interface {
	AggregateType() string
	Decode(stored store.Event) Event
	FromEvents(id string, events []Event) (Aggregate, error)
	ReplayOnto(base Aggregate, events []Event) (Aggregate, error)
	FromSnapshot(id string, version int, data json.RawMessage) (Aggregate, error)
}

// Definition describes one aggregate type
type Definition[S any] struct {
	Name          string
	CreationEvent string
	Initial       func(id string) S
	Apply         Applier[S]
	Decode        Decoder
	// Clone deep-copies state that holds slices or maps. Nil means a plain
	// value copy is enough.
	Clone func(S) S
}

func (d Definition[S]) AggregateType() string { return d.Name }

// New returns an empty root at version 0
func (d Definition[S]) New(id string) *Root[S] {
	return NewRoot(id, d.Name, d.Initial(id), 0, d.Apply)
}

// DecodeStored decodes an envelope; unknown kinds and malformed payloads
// become UnknownEvent so replay keeps counting stream positions.
func (d Definition[S]) DecodeStored(stored store.Event) Event {
	event, err := d.Decode(stored.EventType, stored.EventData)
	if err != nil || event == nil {
		return UnknownEvent{
			EventMeta: EventMeta{ID: stored.EventID, Timestamp: stored.Timestamp},
			Kind:      stored.EventType,
			Err:       err,
		}
	}
	return event
}

// Replay builds a root from a full history that starts with the creation event
func (d Definition[S]) Replay(id string, events []Event) (*Root[S], error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}
	if _, unknown := events[0].(UnknownEvent); unknown || events[0].EventType() != d.CreationEvent {
		return nil, invalidInitialEvent(d.CreationEvent)
	}
	state := Fold(events, d.Initial(id), d.Apply)
	return NewRoot(id, d.Name, state, len(events), d.Apply), nil
}

// ReplayTail returns a new root with events folded onto a copy of base's
// state. The two roots share no memory.
func (d Definition[S]) ReplayTail(base *Root[S], events []Event) *Root[S] {
	state := Fold(events, d.copyState(base.state), d.Apply)
	return NewRoot(base.id, d.Name, state, base.version+len(events), d.Apply)
}

func (d Definition[S]) copyState(s S) S {
	if d.Clone == nil {
		return s
	}
	return d.Clone(s)
}

// Restore rebuilds a root from serialized state
func (d Definition[S]) Restore(id string, version int, data json.RawMessage) (*Root[S], error) {
	state := d.Initial(id)
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode %s state: %w", d.Name, err)
	}
	return NewRoot(id, d.Name, state, version, d.Apply), nil
}

// Cast returns agg as a root of this definition
func (d Definition[S]) Cast(agg Aggregate) (*Root[S], error) {
	root, ok := agg.(*Root[S])
	if !ok || root.aggregateType != d.Name {
		return nil, fmt.Errorf("%w: expected %s, got %T", ErrAggregateTypeMismatch, d.Name, agg)
	}
	return root, nil
}

// Replayer adapts the definition to the untyped Replayer interface
func (d Definition[S]) Replayer() Replayer { return replayer[S]{d} }

type replayer[S any] struct{ def Definition[S] }

func (r replayer[S]) AggregateType() string { return r.def.Name }

func (r replayer[S]) Decode(stored store.Event) Event { return r.def.DecodeStored(stored) }

func (r replayer[S]) FromEvents(id string, events []Event) (Aggregate, error) {
	root, err := r.def.Replay(id, events)
	if err != nil {
		return nil, err
	}
	return root, nil
}

func (r replayer[S]) ReplayOnto(base Aggregate, events []Event) (Aggregate, error) {
	root, err := r.def.Cast(base)
	if err != nil {
		return nil, err
	}
	return r.def.ReplayTail(root, events), nil
}

func (r replayer[S]) FromSnapshot(id string, version int, data json.RawMessage) (Aggregate, error) {
	root, err := r.def.Restore(id, version, data)
	if err != nil {
		return nil, err
	}
	return root, nil
}
