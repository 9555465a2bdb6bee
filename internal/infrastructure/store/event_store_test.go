package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	keys     []string
	events   []Event
	attempts int
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, event any) error {
	p.attempts++
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.events = append(p.events, event.(Event))
	return nil
}

func newEvent(eventType, rootID string) Event {
	return Event{
		EventType: eventType,
		EventData: json.RawMessage(`{"gameId":"game-1"}`),
		Metadata:  Metadata{RootID: rootID},
	}
}

func fixedClock(es *EventStore, start time.Time) {
	tick := start
	es.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
}

func TestEventStore_AppendAssignsStreamVersions(t *testing.T) {
	pub := &recordingPublisher{}
	es := NewEventStore(pub)
	ctx := context.Background()

	require.NoError(t, es.Append(ctx, "game-1", "Game", []Event{newEvent("GameCreated", "game-1"), newEvent("GameStarted", "game-1")}, 0))
	require.NoError(t, es.Append(ctx, "game-1", "Game", []Event{newEvent("ScoreUpdated", "game-1")}, 2))

	events, err := es.GetEvents(ctx, "game-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, i+1, e.StreamVersion)
		assert.Equal(t, "Game", e.AggregateType)
		assert.NotEmpty(t, e.EventID)
		assert.Equal(t, 1, e.EventVersion)
		assert.False(t, e.Metadata.CreatedAt.IsZero())
	}
	assert.Equal(t, 3, StreamVersion(events))

	assert.Equal(t, []string{"game-1", "game-1", "game-1"}, pub.keys)
	assert.Equal(t, events, pub.events)
}

func TestEventStore_AppendConflict(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()
	require.NoError(t, es.Append(ctx, "game-1", "Game", []Event{newEvent("GameCreated", "")}, 0))

	err := es.Append(ctx, "game-1", "Game", []Event{newEvent("GameStarted", "")}, 0)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, "Expected version 0 but stream is at version 1", err.Error())

	require.NoError(t, es.Append(ctx, "game-1", "Game", []Event{newEvent("GameStarted", "")}, AnyVersion))
	events, _ := es.GetEvents(ctx, "game-1", 0)
	assert.Len(t, events, 2)
}

func TestEventStore_AppendEdgeCases(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	assert.ErrorIs(t, es.Append(ctx, "", "Game", []Event{newEvent("GameCreated", "")}, 0), ErrEmptyStreamID)
	assert.NoError(t, es.Append(ctx, "game-1", "Game", nil, 5))
}

func TestEventStore_PublishFailureKeepsEvents(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	es := NewEventStore(pub)
	ctx := context.Background()

	err := es.Append(ctx, "game-1", "Game", []Event{newEvent("GameCreated", ""), newEvent("GameStarted", "")}, 0)

	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.NotErrorIs(t, err, ErrConcurrencyConflict)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, 2, pub.attempts, "every stored event is offered to the publisher")
	events, _ := es.GetEvents(ctx, "game-1", 0)
	assert.Len(t, events, 2)
}

func TestEventStore_GetEventsFromVersion(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()
	require.NoError(t, es.Append(ctx, "game-1", "Game", []Event{
		newEvent("GameCreated", ""), newEvent("GameStarted", ""), newEvent("ScoreUpdated", ""),
	}, 0))

	events, err := es.GetEvents(ctx, "game-1", 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].StreamVersion)

	missing, err := es.GetEvents(ctx, "game-404", 0)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestEventStore_Queries(t *testing.T) {
	es := NewEventStore(nil)
	start := time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC)
	fixedClock(es, start)
	ctx := context.Background()

	require.NoError(t, es.Append(ctx, "game-1", "Game", []Event{newEvent("GameCreated", "game-1"), newEvent("ScoreUpdated", "game-1")}, 0))
	require.NoError(t, es.Append(ctx, "lineup-1", "TeamLineup", []Event{newEvent("LineupCreated", "game-1")}, 0))
	require.NoError(t, es.Append(ctx, "game-2", "Game", []Event{newEvent("GameCreated", "game-2"), newEvent("ScoreUpdated", "game-2")}, 0))

	all, err := es.GetAllEvents(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	recent, err := es.GetAllEvents(ctx, start.Add(2*time.Second))
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	scores, err := es.GetEventsByType(ctx, "ScoreUpdated", 0)
	require.NoError(t, err)
	assert.Len(t, scores, 2)
	first, err := es.GetEventsByType(ctx, "ScoreUpdated", 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "game-1", first[0].StreamID)

	rooted, err := es.GetEventsByAggregateRoot(ctx, "game-1", nil, time.Time{})
	require.NoError(t, err)
	assert.Len(t, rooted, 3)

	lineups, err := es.GetEventsByAggregateRoot(ctx, "game-1", []string{"TeamLineup"}, time.Time{})
	require.NoError(t, err)
	require.Len(t, lineups, 1)
	assert.Equal(t, "lineup-1", lineups[0].StreamID)
}

func TestEventStore_RewriteEvent(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()
	require.NoError(t, es.Append(ctx, "game-1", "Game", []Event{newEvent("GameCreated", "")}, 0))
	stored, _ := es.GetEvents(ctx, "game-1", 0)

	upgraded := stored[0]
	upgraded.EventData = json.RawMessage(`{"gameId":"game-1","venue":"Main Field"}`)
	upgraded.EventVersion = 2
	require.NoError(t, es.RewriteEvent(ctx, upgraded))

	events, _ := es.GetEvents(ctx, "game-1", 0)
	assert.Equal(t, 2, events[0].EventVersion)
	assert.JSONEq(t, `{"gameId":"game-1","venue":"Main Field"}`, string(events[0].EventData))
	all, _ := es.GetAllEvents(ctx, time.Time{})
	assert.Equal(t, 2, all[0].EventVersion)

	upgraded.EventID = "missing"
	assert.ErrorIs(t, es.RewriteEvent(ctx, upgraded), ErrEventNotFound)
}
