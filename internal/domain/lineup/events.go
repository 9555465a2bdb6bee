package lineup

import (
	"encoding/json"
	"errors"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
)

const (
	EventLineupCreated   = "LineupCreated"
	EventPlayerAdded     = "PlayerAdded"
	EventPlayerRemoved   = "PlayerRemoved"
	EventBattingOrderSet = "BattingOrderSet"
	EventLineupLocked    = "LineupLocked"
)

var errMissingIDs = errors.New("lineupId and gameId are required")

type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Number   int    `json:"number"`
	Position string `json:"position,omitempty"`
}

type LineupCreated struct {
	aggregate.EventMeta
	LineupID string `json:"lineupId"`
	GameID   string `json:"gameId"`
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName"`
}

type PlayerAdded struct {
	aggregate.EventMeta
	LineupID string `json:"lineupId"`
	GameID   string `json:"gameId"`
	Player   Player `json:"player"`
}

type PlayerRemoved struct {
	aggregate.EventMeta
	LineupID string `json:"lineupId"`
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

// BattingOrderSet replaces the whole batting order
type BattingOrderSet struct {
	aggregate.EventMeta
	LineupID string   `json:"lineupId"`
	GameID   string   `json:"gameId"`
	Order    []string `json:"order"`
}

type LineupLocked struct {
	aggregate.EventMeta
	LineupID string `json:"lineupId"`
	GameID   string `json:"gameId"`
}

func (LineupCreated) EventType() string   { return EventLineupCreated }
func (PlayerAdded) EventType() string     { return EventPlayerAdded }
func (PlayerRemoved) EventType() string   { return EventPlayerRemoved }
func (BattingOrderSet) EventType() string { return EventBattingOrderSet }
func (LineupLocked) EventType() string    { return EventLineupLocked }

func (e LineupCreated) RootID() string   { return e.GameID }
func (e PlayerAdded) RootID() string     { return e.GameID }
func (e PlayerRemoved) RootID() string   { return e.GameID }
func (e BattingOrderSet) RootID() string { return e.GameID }
func (e LineupLocked) RootID() string    { return e.GameID }

func (e LineupCreated) Validate() error {
	if e.LineupID == "" || e.GameID == "" || e.TeamID == "" {
		return errors.New("lineupId, gameId and teamId are required")
	}
	return nil
}

func (e PlayerAdded) Validate() error {
	if e.LineupID == "" || e.GameID == "" {
		return errMissingIDs
	}
	if e.Player.ID == "" {
		return errors.New("player id is required")
	}
	return nil
}

func (e PlayerRemoved) Validate() error {
	if e.LineupID == "" || e.GameID == "" || e.PlayerID == "" {
		return errors.New("lineupId, gameId and playerId are required")
	}
	return nil
}

func (e BattingOrderSet) Validate() error {
	if e.LineupID == "" || e.GameID == "" {
		return errMissingIDs
	}
	return nil
}

func (e LineupLocked) Validate() error {
	if e.LineupID == "" || e.GameID == "" {
		return errMissingIDs
	}
	return nil
}

func decode(eventType string, data json.RawMessage) (aggregate.Event, error) {
	switch eventType {
	case EventLineupCreated:
		return aggregate.Unmarshal[LineupCreated](data)
	case EventPlayerAdded:
		return aggregate.Unmarshal[PlayerAdded](data)
	case EventPlayerRemoved:
		return aggregate.Unmarshal[PlayerRemoved](data)
	case EventBattingOrderSet:
		return aggregate.Unmarshal[BattingOrderSet](data)
	case EventLineupLocked:
		return aggregate.Unmarshal[LineupLocked](data)
	}
	return nil, nil
}
