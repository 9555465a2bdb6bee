package game

import (
	"encoding/json"
	"errors"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
)

const (
	EventGameCreated    = "GameCreated"
	EventGameStarted    = "GameStarted"
	EventScoreUpdated   = "ScoreUpdated"
	EventInningAdvanced = "InningAdvanced"
	EventGameCompleted  = "GameCompleted"
)

var errMissingGameID = errors.New("gameId is required")

type GameCreated struct {
	aggregate.EventMeta
	GameID           string `json:"gameId"`
	HomeTeam         string `json:"homeTeam"`
	AwayTeam         string `json:"awayTeam"`
	ScheduledInnings int    `json:"scheduledInnings"`
}

type GameStarted struct {
	aggregate.EventMeta
	GameID string `json:"gameId"`
}

// ScoreUpdated sets both scores to absolute values
type ScoreUpdated struct {
	aggregate.EventMeta
	GameID    string `json:"gameId"`
	HomeScore int    `json:"homeScore"`
	AwayScore int    `json:"awayScore"`
}

type InningAdvanced struct {
	aggregate.EventMeta
	GameID string `json:"gameId"`
	Inning int    `json:"inning"`
	Half   Half   `json:"half"`
}

type GameCompleted struct {
	aggregate.EventMeta
	GameID    string `json:"gameId"`
	HomeScore int    `json:"homeScore"`
	AwayScore int    `json:"awayScore"`
	Reason    string `json:"reason"`
}

func (GameCreated) EventType() string    { return EventGameCreated }
func (GameStarted) EventType() string    { return EventGameStarted }
func (ScoreUpdated) EventType() string   { return EventScoreUpdated }
func (InningAdvanced) EventType() string { return EventInningAdvanced }
func (GameCompleted) EventType() string  { return EventGameCompleted }

func (e GameCreated) RootID() string    { return e.GameID }
func (e GameStarted) RootID() string    { return e.GameID }
func (e ScoreUpdated) RootID() string   { return e.GameID }
func (e InningAdvanced) RootID() string { return e.GameID }
func (e GameCompleted) RootID() string  { return e.GameID }

func (e GameCreated) Validate() error {
	if e.GameID == "" || e.HomeTeam == "" || e.AwayTeam == "" {
		return errors.New("gameId, homeTeam and awayTeam are required")
	}
	return nil
}

func (e GameStarted) Validate() error {
	if e.GameID == "" {
		return errMissingGameID
	}
	return nil
}

func (e ScoreUpdated) Validate() error {
	if e.GameID == "" {
		return errMissingGameID
	}
	if e.HomeScore < 0 || e.AwayScore < 0 {
		return errors.New("scores cannot be negative")
	}
	return nil
}

func (e InningAdvanced) Validate() error {
	if e.GameID == "" {
		return errMissingGameID
	}
	if e.Inning < 1 || (e.Half != HalfTop && e.Half != HalfBottom) {
		return errors.New("inning and half are required")
	}
	return nil
}

func (e GameCompleted) Validate() error {
	if e.GameID == "" {
		return errMissingGameID
	}
	return nil
}

func decode(eventType string, data json.RawMessage) (aggregate.Event, error) {
	switch eventType {
	case EventGameCreated:
		return aggregate.Unmarshal[GameCreated](data)
	case EventGameStarted:
		return aggregate.Unmarshal[GameStarted](data)
	case EventScoreUpdated:
		return aggregate.Unmarshal[ScoreUpdated](data)
	case EventInningAdvanced:
		return aggregate.Unmarshal[InningAdvanced](data)
	case EventGameCompleted:
		return aggregate.Unmarshal[GameCompleted](data)
	}
	return nil, nil
}
