package lineup

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
)

func newLineup(t *testing.T, players ...string) *TeamLineup {
	t.Helper()
	l, err := CreateNew("lineup-1", "game-1", "team-1", "Hawks")
	require.NoError(t, err)
	for i, id := range players {
		require.NoError(t, l.AddPlayer(Player{ID: id, Name: "Player " + id, Number: i + 1}))
	}
	return l
}

func TestCreateNew(t *testing.T) {
	l := newLineup(t)

	assert.Equal(t, 1, l.GetVersion())
	assert.Equal(t, AggregateType, l.GetAggregateType())
	assert.Equal(t, "game-1", l.State().GameID)

	_, err := CreateNew("lineup-1", "", "team-1", "Hawks")
	assert.ErrorIs(t, err, ErrMissingIDs)
}

func TestRoster(t *testing.T) {
	l := newLineup(t, "p1", "p2")

	assert.ErrorIs(t, l.AddPlayer(Player{ID: "p1", Name: "Again"}), ErrDuplicatePlayer)
	assert.ErrorIs(t, l.AddPlayer(Player{ID: "p3"}), ErrInvalidPlayer)
	assert.ErrorIs(t, l.RemovePlayer("p9"), ErrUnknownPlayer)

	require.NoError(t, l.SetBattingOrder([]string{"p2", "p1"}))
	require.NoError(t, l.RemovePlayer("p1"))

	s := l.State()
	require.Len(t, s.Players, 1)
	assert.Equal(t, "p2", s.Players[0].ID)
	assert.Equal(t, []string{"p2"}, s.BattingOrder)
	assert.Equal(t, 5, l.GetVersion())
}

func TestBattingOrderAndLock(t *testing.T) {
	l := newLineup(t, "p1", "p2")

	assert.ErrorIs(t, l.Lock(), ErrEmptyOrder)
	assert.ErrorIs(t, l.SetBattingOrder(nil), ErrEmptyOrder)
	assert.ErrorIs(t, l.SetBattingOrder([]string{"p1", "p7"}), ErrUnknownPlayer)

	order := []string{"p1", "p2"}
	require.NoError(t, l.SetBattingOrder(order))
	order[0] = "changed"
	assert.Equal(t, []string{"p1", "p2"}, l.State().BattingOrder)

	require.NoError(t, l.Lock())
	assert.True(t, l.State().Locked)
	assert.ErrorIs(t, l.AddPlayer(Player{ID: "p3", Name: "Late"}), ErrLineupLocked)
	assert.ErrorIs(t, l.RemovePlayer("p1"), ErrLineupLocked)
	assert.ErrorIs(t, l.Lock(), ErrLineupLocked)
}

func TestApply_DoesNotShareSlices(t *testing.T) {
	before := Apply(State{}, PlayerAdded{Player: Player{ID: "p1", Name: "One"}})
	after := Apply(before, PlayerRemoved{PlayerID: "p1"})

	assert.Len(t, before.Players, 1)
	assert.Empty(t, after.Players)
}

func TestFromEvents_StoredRoundTrip(t *testing.T) {
	l := newLineup(t, "p1", "p2")
	require.NoError(t, l.SetBattingOrder([]string{"p2", "p1"}))
	require.NoError(t, l.Lock())

	var decoded []aggregate.Event
	for _, e := range l.UncommittedEvents() {
		stored, err := aggregate.Encode(e)
		require.NoError(t, err)
		assert.Equal(t, "game-1", stored.Metadata.RootID)
		decoded = append(decoded, Definition.DecodeStored(stored))
	}

	replayed, err := FromEvents(decoded)
	require.NoError(t, err)
	assert.Equal(t, l.GetVersion(), replayed.GetVersion())
	assert.Equal(t, l.State(), replayed.State())
}

func TestFromEvents_FirstEventMustBeCreation(t *testing.T) {
	_, err := FromEvents([]aggregate.Event{LineupLocked{LineupID: "lineup-1", GameID: "game-1"}})

	require.Error(t, err)
	assert.Equal(t, "First event must be LineupCreated", err.Error())
}

func TestProperty_PlayerAddedIsIdempotent(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("adding the same player twice leaves one roster entry", prop.ForAll(
		func(id string, number int) bool {
			e := PlayerAdded{LineupID: "lineup-1", GameID: "game-1", Player: Player{ID: id, Name: "N", Number: number}}
			once := Apply(State{}, e)
			twice := Apply(once, e)
			return len(once.Players) == 1 && len(twice.Players) == 1 && twice.Players[0] == once.Players[0]
		},
		gen.Identifier(),
		gen.IntRange(0, 99),
	))

	properties.TestingRun(t)
}

func TestReplayTail_CopiesRoster(t *testing.T) {
	l := newLineup(t, "p1", "p2")
	require.NoError(t, l.SetBattingOrder([]string{"p1", "p2"}))

	replayed, err := FromEvents(l.UncommittedEvents())
	require.NoError(t, err)
	copied := Definition.ReplayTail(replayed.Root, nil)

	s := copied.State()
	s.Players[0].Name = "Changed"
	s.BattingOrder[0] = "p2"

	assert.Equal(t, "Player p1", replayed.State().Players[0].Name)
	assert.Equal(t, []string{"p1", "p2"}, replayed.State().BattingOrder)
}
