package store

import (
	"errors"
	"fmt"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrEmptyStreamID       = errors.New("stream id is required")
	ErrEventNotFound       = errors.New("event not found")
	ErrStoreClosed         = errors.New("store is closed")
	// ErrPublishFailed means the events were stored but at least one could
	// not be handed to the publisher.
	ErrPublishFailed = errors.New("events stored but not published")
)

// ConflictError reports an optimistic concurrency violation on Append
type ConflictError struct {
	StreamID string
	Expected int
	Actual   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Expected version %d but stream is at version %d", e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrencyConflict }
