package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
)

func startedGame(t *testing.T) *Game {
	t.Helper()
	g, err := CreateNew("game-1", "Hawks", "Owls", 0)
	require.NoError(t, err)
	require.NoError(t, g.Start())
	return g
}

func TestCreateNew(t *testing.T) {
	g, err := CreateNew("game-1", "Hawks", "Owls", 0)

	require.NoError(t, err)
	assert.Equal(t, 1, g.GetVersion())
	assert.Equal(t, AggregateType, g.GetAggregateType())
	s := g.State()
	assert.Equal(t, StatusScheduled, s.Status)
	assert.Equal(t, DefaultInnings, s.ScheduledInnings)
	require.Len(t, g.UncommittedEvents(), 1)
	assert.Equal(t, EventGameCreated, g.UncommittedEvents()[0].EventType())
}

func TestCreateNew_Validation(t *testing.T) {
	_, err := CreateNew("game-1", "", "Owls", 9)
	assert.ErrorIs(t, err, ErrMissingTeams)
	_, err = CreateNew("game-1", "Owls", "Owls", 9)
	assert.ErrorIs(t, err, ErrSameTeams)
}

func TestCommands(t *testing.T) {
	g := startedGame(t)

	assert.ErrorIs(t, g.Start(), ErrAlreadyStarted)
	assert.ErrorIs(t, g.UpdateScore(-1, 0), ErrNegativeScore)
	require.NoError(t, g.UpdateScore(2, 1))
	require.NoError(t, g.AdvanceInning())
	assert.Equal(t, HalfBottom, g.State().Half)
	assert.Equal(t, 1, g.State().Inning)
	require.NoError(t, g.AdvanceInning())
	assert.Equal(t, HalfTop, g.State().Half)
	assert.Equal(t, 2, g.State().Inning)

	assert.ErrorIs(t, g.Complete(""), ErrMissingCompleteWhy)
	require.NoError(t, g.Complete("rain"))
	s := g.State()
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, "rain", s.CompletionReason)
	assert.Equal(t, 2, s.HomeScore)
	assert.Equal(t, 6, g.GetVersion())

	assert.ErrorIs(t, g.UpdateScore(3, 1), ErrNotInProgress)
	assert.ErrorIs(t, g.AdvanceInning(), ErrNotInProgress)
}

func TestCommands_RequireStartedGame(t *testing.T) {
	g, err := CreateNew("game-1", "Hawks", "Owls", 9)
	require.NoError(t, err)

	assert.ErrorIs(t, g.UpdateScore(1, 0), ErrNotInProgress)
	assert.ErrorIs(t, g.Complete("forfeit"), ErrNotInProgress)
	assert.Equal(t, 1, g.GetVersion())
}

func TestFromEvents(t *testing.T) {
	g := startedGame(t)
	require.NoError(t, g.UpdateScore(1, 0))

	replayed, err := FromEvents(g.UncommittedEvents())

	require.NoError(t, err)
	assert.Equal(t, "game-1", replayed.GetID())
	assert.Equal(t, g.GetVersion(), replayed.GetVersion())
	assert.Equal(t, g.State(), replayed.State())
	assert.Empty(t, replayed.UncommittedEvents())
}

func TestFromEvents_FirstEventMustBeCreation(t *testing.T) {
	_, err := FromEvents([]aggregate.Event{GameStarted{EventMeta: aggregate.NewEventMeta(), GameID: "game-1"}})

	require.Error(t, err)
	assert.Equal(t, "First event must be GameCreated", err.Error())
	assert.ErrorIs(t, err, aggregate.ErrInvalidInitialEvent)
}

func TestDecode_StoredRoundTrip(t *testing.T) {
	g := startedGame(t)
	require.NoError(t, g.UpdateScore(3, 2))
	require.NoError(t, g.AdvanceInning())
	require.NoError(t, g.Complete("mercy rule"))

	for _, e := range g.UncommittedEvents() {
		stored, err := aggregate.Encode(e)
		require.NoError(t, err)
		assert.Equal(t, "game-1", stored.Metadata.RootID)

		decoded := Definition.DecodeStored(stored)
		assert.IsType(t, e, decoded)
		assert.Equal(t, e.EventID(), decoded.EventID())
		assert.True(t, e.OccurredAt().Equal(decoded.OccurredAt()))
	}
}

func TestDecode_MalformedPayloadIsUnknown(t *testing.T) {
	stored, err := aggregate.Encode(ScoreUpdated{EventMeta: aggregate.NewEventMeta(), GameID: "game-1", HomeScore: 1})
	require.NoError(t, err)
	stored.EventData = json.RawMessage(`{"homeScore":1}`)

	decoded := Definition.DecodeStored(stored)

	unknown, ok := decoded.(aggregate.UnknownEvent)
	require.True(t, ok)
	assert.ErrorIs(t, unknown.Err, errMissingGameID)

	state := Apply(State{HomeScore: 5}, decoded)
	assert.Equal(t, 5, state.HomeScore)
}
