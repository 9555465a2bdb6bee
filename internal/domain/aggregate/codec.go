package aggregate

import (
	"encoding/json"
	"fmt"

	"github.com/example/scorekeeper-events/internal/infrastructure/store"
)

// Versioned events report a payload schema version other than 1
type Versioned interface {
	SchemaVersion() int
}

// Rooted events belong to a larger aggregate root (e.g. a game)
type Rooted interface {
	RootID() string
}

// Validator is implemented by events with required fields
type Validator interface {
	Validate() error
}

// Encode builds the envelope for a domain event. Stream coordinates are
// filled in by the event log.
func Encode(e Event) (store.Event, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return store.Event{}, fmt.Errorf("failed to encode %s: %w", e.EventType(), err)
	}

	stored := store.Event{
		EventID:      e.EventID(),
		EventType:    e.EventType(),
		EventData:    data,
		EventVersion: 1,
		Timestamp:    e.OccurredAt(),
	}
	if v, ok := e.(Versioned); ok {
		stored.EventVersion = v.SchemaVersion()
	}
	if r, ok := e.(Rooted); ok {
		stored.Metadata.RootID = r.RootID()
	}
	return stored, nil
}

// Unmarshal decodes data into T and runs its validation, if any
func Unmarshal[T Event](data json.RawMessage) (Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if v, ok := any(e).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return e, nil
}
