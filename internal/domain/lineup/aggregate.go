package lineup

import (
	"errors"
	"fmt"
	"slices"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
)

const AggregateType = "TeamLineup"

var (
	ErrMissingIDs      = errors.New("lineup, game and team ids are required")
	ErrLineupLocked    = errors.New("lineup is locked")
	ErrInvalidPlayer   = errors.New("player id and name are required")
	ErrDuplicatePlayer = errors.New("player already in lineup")
	ErrUnknownPlayer   = errors.New("player not in lineup")
	ErrEmptyOrder      = errors.New("batting order cannot be empty")
)

// State is the replayable state of a team lineup
type State struct {
	ID           string   `json:"id"`
	GameID       string   `json:"gameId"`
	TeamID       string   `json:"teamId"`
	TeamName     string   `json:"teamName"`
	Players      []Player `json:"players"`
	BattingOrder []string `json:"battingOrder"`
	Locked       bool     `json:"locked"`
}

// HasPlayer reports whether playerID is on the roster
func (s State) HasPlayer(playerID string) bool {
	return slices.ContainsFunc(s.Players, func(p Player) bool { return p.ID == playerID })
}

// Apply is the lineup state transition. Slices are copied before they are
// changed so earlier states stay valid.
func Apply(s State, e aggregate.Event) State {
	switch ev := e.(type) {
	case LineupCreated:
		s.ID = ev.LineupID
		s.GameID = ev.GameID
		s.TeamID = ev.TeamID
		s.TeamName = ev.TeamName
	case PlayerAdded:
		players := slices.DeleteFunc(slices.Clone(s.Players), func(p Player) bool { return p.ID == ev.Player.ID })
		s.Players = append(players, ev.Player)
	case PlayerRemoved:
		s.Players = slices.DeleteFunc(slices.Clone(s.Players), func(p Player) bool { return p.ID == ev.PlayerID })
		s.BattingOrder = slices.DeleteFunc(slices.Clone(s.BattingOrder), func(id string) bool { return id == ev.PlayerID })
	case BattingOrderSet:
		s.BattingOrder = slices.Clone(ev.Order)
	case LineupLocked:
		s.Locked = true
	default:
	}
	return s
}

var Definition = aggregate.Definition[State]{
	Name:          AggregateType,
	CreationEvent: EventLineupCreated,
	Initial:       func(id string) State { return State{ID: id} },
	Apply:         Apply,
	Decode:        decode,
	Clone:         cloneState,
}

func cloneState(s State) State {
	s.Players = slices.Clone(s.Players)
	s.BattingOrder = slices.Clone(s.BattingOrder)
	return s
}

// TeamLineup is the event-sourced lineup of one team in one game
type TeamLineup struct {
	*aggregate.Root[State]
}

func CreateNew(id, gameID, teamID, teamName string) (*TeamLineup, error) {
	if id == "" || gameID == "" || teamID == "" {
		return nil, ErrMissingIDs
	}

	l := &TeamLineup{Root: Definition.New(id)}
	l.Raise(LineupCreated{
		EventMeta: aggregate.NewEventMeta(),
		LineupID:  id,
		GameID:    gameID,
		TeamID:    teamID,
		TeamName:  teamName,
	})
	return l, nil
}

func FromEvents(events []aggregate.Event) (*TeamLineup, error) {
	id := ""
	if len(events) > 0 {
		if created, ok := events[0].(LineupCreated); ok {
			id = created.LineupID
		}
	}
	root, err := Definition.Replay(id, events)
	if err != nil {
		return nil, err
	}
	return &TeamLineup{Root: root}, nil
}

func FromAggregate(agg aggregate.Aggregate) (*TeamLineup, error) {
	root, err := Definition.Cast(agg)
	if err != nil {
		return nil, err
	}
	return &TeamLineup{Root: root}, nil
}

func (l *TeamLineup) AddPlayer(p Player) error {
	s := l.State()
	if s.Locked {
		return ErrLineupLocked
	}
	if p.ID == "" || p.Name == "" {
		return ErrInvalidPlayer
	}
	if s.HasPlayer(p.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicatePlayer, p.ID)
	}
	l.Raise(PlayerAdded{EventMeta: aggregate.NewEventMeta(), LineupID: l.GetID(), GameID: s.GameID, Player: p})
	return nil
}

func (l *TeamLineup) RemovePlayer(playerID string) error {
	s := l.State()
	if s.Locked {
		return ErrLineupLocked
	}
	if !s.HasPlayer(playerID) {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	l.Raise(PlayerRemoved{EventMeta: aggregate.NewEventMeta(), LineupID: l.GetID(), GameID: s.GameID, PlayerID: playerID})
	return nil
}

// SetBattingOrder replaces the batting order; every id must be on the roster
func (l *TeamLineup) SetBattingOrder(order []string) error {
	s := l.State()
	if s.Locked {
		return ErrLineupLocked
	}
	if len(order) == 0 {
		return ErrEmptyOrder
	}
	for _, id := range order {
		if !s.HasPlayer(id) {
			return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
		}
	}
	l.Raise(BattingOrderSet{EventMeta: aggregate.NewEventMeta(), LineupID: l.GetID(), GameID: s.GameID, Order: slices.Clone(order)})
	return nil
}

func (l *TeamLineup) Lock() error {
	s := l.State()
	if s.Locked {
		return ErrLineupLocked
	}
	if len(s.BattingOrder) == 0 {
		return ErrEmptyOrder
	}
	l.Raise(LineupLocked{EventMeta: aggregate.NewEventMeta(), LineupID: l.GetID(), GameID: s.GameID})
	return nil
}
