package inning

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
)

func TestCreateNew(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		gameID  string
		number  int
		half    string
		wantErr error
	}{
		{name: "valid", id: "inning-1", gameID: "game-1", number: 1, half: "top"},
		{name: "missing game", id: "inning-1", number: 1, half: "top", wantErr: ErrMissingIDs},
		{name: "zero inning", id: "inning-1", gameID: "game-1", half: "top", wantErr: ErrInvalidNumber},
		{name: "bad half", id: "inning-1", gameID: "game-1", number: 2, half: "middle", wantErr: ErrInvalidHalf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, err := CreateNew(tt.id, tt.gameID, tt.number, tt.half)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, i.GetVersion())
			assert.Equal(t, tt.half, i.State().Half)
		})
	}
}

func TestRecordOuts_ThirdOutEndsInning(t *testing.T) {
	i, err := CreateNew("inning-1", "game-1", 3, "bottom")
	require.NoError(t, err)

	require.NoError(t, i.ScoreRuns(2))
	require.NoError(t, i.RecordOuts(1))
	assert.ErrorIs(t, i.RecordOuts(4), ErrInvalidOuts)
	assert.ErrorIs(t, i.ScoreRuns(0), ErrInvalidRuns)
	require.NoError(t, i.RecordOuts(MaxOuts))

	s := i.State()
	assert.True(t, s.Ended)
	assert.Equal(t, 2, s.Runs)
	assert.Equal(t, 5, i.GetVersion())
	assert.ErrorIs(t, i.ScoreRuns(1), ErrInningEnded)
	assert.ErrorIs(t, i.End(), ErrInningEnded)
}

func TestFromEvents_StoredRoundTrip(t *testing.T) {
	i, err := CreateNew("inning-1", "game-1", 1, "top")
	require.NoError(t, err)
	require.NoError(t, i.ScoreRuns(1))
	require.NoError(t, i.RecordOuts(2))
	require.NoError(t, i.End())

	var decoded []aggregate.Event
	for _, e := range i.UncommittedEvents() {
		stored, err := aggregate.Encode(e)
		require.NoError(t, err)
		decoded = append(decoded, Definition.DecodeStored(stored))
	}

	replayed, err := FromEvents(decoded)
	require.NoError(t, err)
	assert.Equal(t, i.State(), replayed.State())
	assert.Equal(t, 4, replayed.GetVersion())
}

func TestProperty_OutsUpdatedIsIdempotent(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("an outs update applied twice equals applying it once", prop.ForAll(
		func(prior, outs int) bool {
			e := OutsUpdated{InningID: "inning-1", GameID: "game-1", Outs: outs}
			once := Apply(State{Outs: prior}, e)
			return Apply(once, e) == once && once.Outs == outs
		},
		gen.IntRange(0, MaxOuts),
		gen.IntRange(0, MaxOuts),
	))

	properties.Property("runs accumulate", prop.ForAll(
		func(runs []int) bool {
			events := []aggregate.Event{InningStarted{InningID: "inning-1", GameID: "game-1", Number: 1, Half: "top"}}
			total := 0
			for _, r := range runs {
				events = append(events, RunsScored{InningID: "inning-1", GameID: "game-1", Runs: r})
				total += r
			}
			replayed, err := FromEvents(events)
			return err == nil && replayed.State().Runs == total && replayed.GetVersion() == len(events)
		},
		gen.SliceOf(gen.IntRange(1, 5)),
	))

	properties.TestingRun(t)
}
