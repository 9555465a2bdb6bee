package projection

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/scorekeeper-events/internal/domain/catalog"
	"github.com/example/scorekeeper-events/internal/domain/game"
	"github.com/example/scorekeeper-events/internal/infrastructure/store"
)

type snapshotCall struct {
	StreamID      string
	AggregateType string
}

type fakeSnapshotter struct {
	calls   []snapshotCall
	created bool
	err     error
}

func (f *fakeSnapshotter) SnapshotStream(ctx context.Context, streamID, aggregateType string) (bool, error) {
	f.calls = append(f.calls, snapshotCall{StreamID: streamID, AggregateType: aggregateType})
	return f.created, f.err
}

func newTestProjector() (*Projector, *fakeSnapshotter) {
	snapshotter := &fakeSnapshotter{}
	return NewProjector(snapshotter, catalog.Registry(), nil), snapshotter
}

func makeEvent(aggregateType, eventType string) []byte {
	event := store.Event{
		EventID:       "event-123",
		StreamID:      "game-1",
		AggregateType: aggregateType,
		EventType:     eventType,
		EventData:     json.RawMessage(`{"gameId":"game-1"}`),
		StreamVersion: 4,
		Timestamp:     time.Now(),
	}
	result, _ := json.Marshal(event)
	return result
}

func TestProjector_HandleEvent_RegisteredType(t *testing.T) {
	projector, snapshotter := newTestProjector()
	snapshotter.created = true

	err := projector.HandleEvent(context.Background(), []byte("game-1"), makeEvent(game.AggregateType, game.EventGameStarted))

	require.NoError(t, err)
	require.Len(t, snapshotter.calls, 1)
	assert.Equal(t, snapshotCall{StreamID: "game-1", AggregateType: game.AggregateType}, snapshotter.calls[0])
}

func TestProjector_HandleEvent_UnregisteredTypeIsSkipped(t *testing.T) {
	projector, snapshotter := newTestProjector()

	err := projector.HandleEvent(context.Background(), nil, makeEvent("Umpire", "UmpireAssigned"))

	require.NoError(t, err)
	assert.Empty(t, snapshotter.calls)
}

func TestProjector_HandleEvent_InvalidJSON(t *testing.T) {
	projector, snapshotter := newTestProjector()

	err := projector.HandleEvent(context.Background(), nil, []byte("not json"))

	assert.Error(t, err)
	assert.Empty(t, snapshotter.calls)
}

func TestProjector_HandleStored_MissingStream(t *testing.T) {
	projector, _ := newTestProjector()

	err := projector.HandleStored(context.Background(), store.Event{AggregateType: game.AggregateType})

	assert.ErrorIs(t, err, store.ErrEmptyStreamID)
}

func TestProjector_HandleStored_SnapshotFailure(t *testing.T) {
	projector, snapshotter := newTestProjector()
	snapshotter.err = errors.New("snapshot store down")

	err := projector.HandleStored(context.Background(), store.Event{StreamID: "game-1", AggregateType: game.AggregateType})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot store down")
}
