package inning

import (
	"errors"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
)

const AggregateType = "InningState"

// MaxOuts ends a half inning
const MaxOuts = 3

var (
	ErrMissingIDs    = errors.New("inning and game ids are required")
	ErrInvalidNumber = errors.New("inning number must be positive")
	ErrInvalidHalf   = errors.New("half must be top or bottom")
	ErrInningEnded   = errors.New("inning has ended")
	ErrInvalidOuts   = errors.New("outs must be between 0 and 3")
	ErrInvalidRuns   = errors.New("runs must be positive")
)

// State is the replayable state of one half inning
type State struct {
	ID     string `json:"id"`
	GameID string `json:"gameId"`
	Number int    `json:"number"`
	Half   string `json:"half"`
	Outs   int    `json:"outs"`
	Runs   int    `json:"runs"`
	Ended  bool   `json:"ended"`
}

func Apply(s State, e aggregate.Event) State {
	switch ev := e.(type) {
	case InningStarted:
		s.ID = ev.InningID
		s.GameID = ev.GameID
		s.Number = ev.Number
		s.Half = ev.Half
	case OutsUpdated:
		s.Outs = ev.Outs
	case RunsScored:
		s.Runs += ev.Runs
	case InningEnded:
		s.Ended = true
	default:
	}
	return s
}

var Definition = aggregate.Definition[State]{
	Name:          AggregateType,
	CreationEvent: EventInningStarted,
	Initial:       func(id string) State { return State{ID: id} },
	Apply:         Apply,
	Decode:        decode,
}

// InningState tracks outs and runs of one half inning
type InningState struct {
	*aggregate.Root[State]
}

func CreateNew(id, gameID string, number int, half string) (*InningState, error) {
	if id == "" || gameID == "" {
		return nil, ErrMissingIDs
	}
	if number < 1 {
		return nil, ErrInvalidNumber
	}
	if half != "top" && half != "bottom" {
		return nil, ErrInvalidHalf
	}

	i := &InningState{Root: Definition.New(id)}
	i.Raise(InningStarted{EventMeta: aggregate.NewEventMeta(), InningID: id, GameID: gameID, Number: number, Half: half})
	return i, nil
}

func FromEvents(events []aggregate.Event) (*InningState, error) {
	id := ""
	if len(events) > 0 {
		if started, ok := events[0].(InningStarted); ok {
			id = started.InningID
		}
	}
	root, err := Definition.Replay(id, events)
	if err != nil {
		return nil, err
	}
	return &InningState{Root: root}, nil
}

func FromAggregate(agg aggregate.Aggregate) (*InningState, error) {
	root, err := Definition.Cast(agg)
	if err != nil {
		return nil, err
	}
	return &InningState{Root: root}, nil
}

// RecordOuts sets the out count; reaching MaxOuts ends the inning
func (i *InningState) RecordOuts(outs int) error {
	s := i.State()
	if s.Ended {
		return ErrInningEnded
	}
	if outs < 0 || outs > MaxOuts {
		return ErrInvalidOuts
	}
	i.Raise(OutsUpdated{EventMeta: aggregate.NewEventMeta(), InningID: i.GetID(), GameID: s.GameID, Outs: outs})
	if outs == MaxOuts {
		i.Raise(InningEnded{EventMeta: aggregate.NewEventMeta(), InningID: i.GetID(), GameID: s.GameID})
	}
	return nil
}

func (i *InningState) ScoreRuns(runs int) error {
	s := i.State()
	if s.Ended {
		return ErrInningEnded
	}
	if runs <= 0 {
		return ErrInvalidRuns
	}
	i.Raise(RunsScored{EventMeta: aggregate.NewEventMeta(), InningID: i.GetID(), GameID: s.GameID, Runs: runs})
	return nil
}

func (i *InningState) End() error {
	s := i.State()
	if s.Ended {
		return ErrInningEnded
	}
	i.Raise(InningEnded{EventMeta: aggregate.NewEventMeta(), InningID: i.GetID(), GameID: s.GameID})
	return nil
}
