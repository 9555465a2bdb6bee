package aggregate

import "errors"

var (
	ErrInvalidInitialEvent      = errors.New("invalid initial event")
	ErrUnsupportedAggregateType = errors.New("unsupported aggregate type")
	ErrNoEvents                 = errors.New("no events to replay")
	ErrAggregateTypeMismatch    = errors.New("aggregate type mismatch")
)

// DomainError is a business-rule failure raised before any event is emitted
type DomainError struct {
	Err     error
	Message string
}

func (e *DomainError) Error() string { return e.Message }
func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError wraps a sentinel with a human readable message
func NewDomainError(err error, message string) *DomainError {
	return &DomainError{Err: err, Message: message}
}

func invalidInitialEvent(creationEvent string) error {
	return NewDomainError(ErrInvalidInitialEvent, "First event must be "+creationEvent)
}
