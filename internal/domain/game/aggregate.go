package game

import (
	"errors"
	"time"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
)

const AggregateType = "Game"

// DefaultInnings is used when a game is created without an inning count
const DefaultInnings = 7

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Half string

const (
	HalfTop    Half = "top"
	HalfBottom Half = "bottom"
)

var (
	ErrMissingTeams       = errors.New("home and away teams are required")
	ErrSameTeams          = errors.New("home and away teams must differ")
	ErrAlreadyStarted     = errors.New("game has already started")
	ErrNotInProgress      = errors.New("game is not in progress")
	ErrNegativeScore      = errors.New("scores cannot be negative")
	ErrMissingCompleteWhy = errors.New("completion reason is required")
)

// State is the replayable state of a game
type State struct {
	ID               string    `json:"id"`
	HomeTeam         string    `json:"homeTeam"`
	AwayTeam         string    `json:"awayTeam"`
	ScheduledInnings int       `json:"scheduledInnings"`
	Status           Status    `json:"status"`
	Inning           int       `json:"inning"`
	Half             Half      `json:"half"`
	HomeScore        int       `json:"homeScore"`
	AwayScore        int       `json:"awayScore"`
	CompletionReason string    `json:"completionReason,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	StartedAt        time.Time `json:"startedAt,omitempty"`
	CompletedAt      time.Time `json:"completedAt,omitempty"`
}

// Apply is the game state transition. Unknown events leave the state untouched.
func Apply(s State, e aggregate.Event) State {
	switch ev := e.(type) {
	case GameCreated:
		s.ID = ev.GameID
		s.HomeTeam = ev.HomeTeam
		s.AwayTeam = ev.AwayTeam
		s.ScheduledInnings = ev.ScheduledInnings
		s.Status = StatusScheduled
		s.CreatedAt = ev.Timestamp
	case GameStarted:
		s.Status = StatusInProgress
		s.Inning = 1
		s.Half = HalfTop
		s.StartedAt = ev.Timestamp
	case ScoreUpdated:
		s.HomeScore = ev.HomeScore
		s.AwayScore = ev.AwayScore
	case InningAdvanced:
		s.Inning = ev.Inning
		s.Half = ev.Half
	case GameCompleted:
		s.Status = StatusCompleted
		s.HomeScore = ev.HomeScore
		s.AwayScore = ev.AwayScore
		s.CompletionReason = ev.Reason
		s.CompletedAt = ev.Timestamp
	default:
	}
	return s
}

var Definition = aggregate.Definition[State]{
	Name:          AggregateType,
	CreationEvent: EventGameCreated,
	Initial:       func(id string) State { return State{ID: id} },
	Apply:         Apply,
	Decode:        decode,
}

// Game is the event-sourced game aggregate
type Game struct {
	*aggregate.Root[State]
}

// CreateNew emits GameCreated for a new game
func CreateNew(id, homeTeam, awayTeam string, innings int) (*Game, error) {
	if homeTeam == "" || awayTeam == "" {
		return nil, ErrMissingTeams
	}
	if homeTeam == awayTeam {
		return nil, ErrSameTeams
	}
	if innings <= 0 {
		innings = DefaultInnings
	}

	g := &Game{Root: Definition.New(id)}
	g.Raise(GameCreated{
		EventMeta:        aggregate.NewEventMeta(),
		GameID:           id,
		HomeTeam:         homeTeam,
		AwayTeam:         awayTeam,
		ScheduledInnings: innings,
	})
	return g, nil
}

// FromEvents replays a full game history
func FromEvents(events []aggregate.Event) (*Game, error) {
	id := ""
	if len(events) > 0 {
		if created, ok := events[0].(GameCreated); ok {
			id = created.GameID
		}
	}
	root, err := Definition.Replay(id, events)
	if err != nil {
		return nil, err
	}
	return &Game{Root: root}, nil
}

// FromAggregate unwraps a reconstructed aggregate
func FromAggregate(agg aggregate.Aggregate) (*Game, error) {
	root, err := Definition.Cast(agg)
	if err != nil {
		return nil, err
	}
	return &Game{Root: root}, nil
}

func (g *Game) Start() error {
	if g.State().Status != StatusScheduled {
		return ErrAlreadyStarted
	}
	g.Raise(GameStarted{EventMeta: aggregate.NewEventMeta(), GameID: g.GetID()})
	return nil
}

func (g *Game) UpdateScore(home, away int) error {
	if g.State().Status != StatusInProgress {
		return ErrNotInProgress
	}
	if home < 0 || away < 0 {
		return ErrNegativeScore
	}
	g.Raise(ScoreUpdated{EventMeta: aggregate.NewEventMeta(), GameID: g.GetID(), HomeScore: home, AwayScore: away})
	return nil
}

// AdvanceInning moves from the top half to the bottom half, or to the top
// of the next inning.
func (g *Game) AdvanceInning() error {
	s := g.State()
	if s.Status != StatusInProgress {
		return ErrNotInProgress
	}
	next := InningAdvanced{EventMeta: aggregate.NewEventMeta(), GameID: g.GetID(), Inning: s.Inning, Half: HalfBottom}
	if s.Half == HalfBottom {
		next.Inning = s.Inning + 1
		next.Half = HalfTop
	}
	g.Raise(next)
	return nil
}

func (g *Game) Complete(reason string) error {
	s := g.State()
	if s.Status != StatusInProgress {
		return ErrNotInProgress
	}
	if reason == "" {
		return ErrMissingCompleteWhy
	}
	g.Raise(GameCompleted{
		EventMeta: aggregate.NewEventMeta(),
		GameID:    g.GetID(),
		HomeScore: s.HomeScore,
		AwayScore: s.AwayScore,
		Reason:    reason,
	})
	return nil
}
