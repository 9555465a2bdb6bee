package inning

import (
	"encoding/json"
	"errors"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
)

const (
	EventInningStarted = "InningStarted"
	EventOutsUpdated   = "OutsUpdated"
	EventRunsScored    = "RunsScored"
	EventInningEnded   = "InningEnded"
)

var errMissingIDs = errors.New("inningId and gameId are required")

type InningStarted struct {
	aggregate.EventMeta
	InningID string `json:"inningId"`
	GameID   string `json:"gameId"`
	Number   int    `json:"number"`
	Half     string `json:"half"`
}

// OutsUpdated sets the out count to an absolute value
type OutsUpdated struct {
	aggregate.EventMeta
	InningID string `json:"inningId"`
	GameID   string `json:"gameId"`
	Outs     int    `json:"outs"`
}

type RunsScored struct {
	aggregate.EventMeta
	InningID string `json:"inningId"`
	GameID   string `json:"gameId"`
	Runs     int    `json:"runs"`
}

type InningEnded struct {
	aggregate.EventMeta
	InningID string `json:"inningId"`
	GameID   string `json:"gameId"`
}

func (InningStarted) EventType() string { return EventInningStarted }
func (OutsUpdated) EventType() string   { return EventOutsUpdated }
func (RunsScored) EventType() string    { return EventRunsScored }
func (InningEnded) EventType() string   { return EventInningEnded }

func (e InningStarted) RootID() string { return e.GameID }
func (e OutsUpdated) RootID() string   { return e.GameID }
func (e RunsScored) RootID() string    { return e.GameID }
func (e InningEnded) RootID() string   { return e.GameID }

func (e InningStarted) Validate() error {
	if e.InningID == "" || e.GameID == "" {
		return errMissingIDs
	}
	if e.Number < 1 {
		return errors.New("inning number must be positive")
	}
	return nil
}

func (e OutsUpdated) Validate() error {
	if e.InningID == "" || e.GameID == "" {
		return errMissingIDs
	}
	if e.Outs < 0 || e.Outs > MaxOuts {
		return errors.New("outs out of range")
	}
	return nil
}

func (e RunsScored) Validate() error {
	if e.InningID == "" || e.GameID == "" {
		return errMissingIDs
	}
	if e.Runs <= 0 {
		return errors.New("runs must be positive")
	}
	return nil
}

func (e InningEnded) Validate() error {
	if e.InningID == "" || e.GameID == "" {
		return errMissingIDs
	}
	return nil
}

func decode(eventType string, data json.RawMessage) (aggregate.Event, error) {
	switch eventType {
	case EventInningStarted:
		return aggregate.Unmarshal[InningStarted](data)
	case EventOutsUpdated:
		return aggregate.Unmarshal[OutsUpdated](data)
	case EventRunsScored:
		return aggregate.Unmarshal[RunsScored](data)
	case EventInningEnded:
		return aggregate.Unmarshal[InningEnded](data)
	}
	return nil, nil
}
