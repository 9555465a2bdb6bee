package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eventRowColumns = []string{"event_id", "stream_id", "aggregate_type", "event_type", "event_data", "event_version", "stream_version", "metadata", "created_at"}

func newPostgresStore(t *testing.T, pub Publisher) (*PostgresEventStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresEventStore(db, pub), mock
}

func expectVersion(mock sqlmock.Sqlmock, streamID string, version int) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(stream_version), 0) FROM events WHERE stream_id = $1")).
		WithArgs(streamID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(version))
}

func TestPostgresEventStore_Append(t *testing.T) {
	pub := &recordingPublisher{}
	es, mock := newPostgresStore(t, pub)

	mock.ExpectBegin()
	expectVersion(mock, "game-1", 2)
	for _, version := range []int{3, 4} {
		mock.ExpectExec("INSERT INTO events").
			WithArgs(sqlmock.AnyArg(), "game-1", "Game", sqlmock.AnyArg(), sqlmock.AnyArg(), 1, version, "game-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	err := es.Append(context.Background(), "game-1", "Game", []Event{newEvent("ScoreUpdated", "game-1"), newEvent("InningAdvanced", "game-1")}, 2)

	require.NoError(t, err)
	require.Len(t, pub.events, 2)
	assert.Equal(t, 3, pub.events[0].StreamVersion)
	assert.Equal(t, 4, pub.events[1].StreamVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_AppendPublishFailureAfterCommit(t *testing.T) {
	es, mock := newPostgresStore(t, &recordingPublisher{err: errors.New("broker down")})

	mock.ExpectBegin()
	expectVersion(mock, "game-1", 0)
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := es.Append(context.Background(), "game-1", "Game", []Event{newEvent("GameCreated", "")}, 0)

	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_AppendVersionConflict(t *testing.T) {
	es, mock := newPostgresStore(t, nil)

	mock.ExpectBegin()
	expectVersion(mock, "game-1", 7)
	mock.ExpectRollback()

	err := es.Append(context.Background(), "game-1", "Game", []Event{newEvent("ScoreUpdated", "")}, 5)

	assert.EqualError(t, err, "Expected version 5 but stream is at version 7")
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_AppendUniqueViolation(t *testing.T) {
	es, mock := newPostgresStore(t, nil)

	mock.ExpectBegin()
	expectVersion(mock, "game-1", 0)
	mock.ExpectExec("INSERT INTO events").WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()
	// the concurrent writer appended three events
	expectVersion(mock, "game-1", 3)

	err := es.Append(context.Background(), "game-1", "Game", []Event{newEvent("GameCreated", "")}, 0)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 3, conflict.Actual)
	assert.EqualError(t, err, "Expected version 0 but stream is at version 3")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_AppendUniqueViolationVersionUnreadable(t *testing.T) {
	es, mock := newPostgresStore(t, nil)

	mock.ExpectBegin()
	expectVersion(mock, "game-1", 0)
	mock.ExpectExec("INSERT INTO events").WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT COALESCE").WillReturnError(errors.New("connection reset"))

	err := es.Append(context.Background(), "game-1", "Game", []Event{newEvent("GameCreated", "")}, 0)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 1, conflict.Actual)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_GetEvents(t *testing.T) {
	es, mock := newPostgresStore(t, nil)
	created := time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM events\\s+WHERE stream_id = \\$1 AND stream_version > \\$2").
		WithArgs("game-1", 1).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow("e-2", "game-1", "Game", "GameStarted", []byte(`{"gameId":"game-1"}`), 1, 2, []byte(`{"rootId":"game-1","source":"scorer"}`), created).
			AddRow("e-3", "game-1", "Game", "ScoreUpdated", []byte(`{"gameId":"game-1","homeScore":1}`), 1, 3, []byte(`{}`), created))

	events, err := es.GetEvents(context.Background(), "game-1", 1)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e-2", events[0].EventID)
	assert.Equal(t, 2, events[0].StreamVersion)
	assert.Equal(t, "scorer", events[0].Metadata.Source)
	assert.Equal(t, "game-1", events[0].Metadata.RootID)
	assert.JSONEq(t, `{"gameId":"game-1","homeScore":1}`, string(events[1].EventData))
	assert.True(t, created.Equal(events[1].Timestamp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_GetEventsByAggregateRootFiltersTypes(t *testing.T) {
	es, mock := newPostgresStore(t, nil)

	mock.ExpectQuery("aggregate_type = ANY\\(\\$3\\)").
		WithArgs("game-1", sqlmock.AnyArg(), pq.Array([]string{"TeamLineup"})).
		WillReturnRows(sqlmock.NewRows(eventRowColumns))

	events, err := es.GetEventsByAggregateRoot(context.Background(), "game-1", []string{"TeamLineup"}, time.Time{})

	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_RewriteEvent(t *testing.T) {
	es, mock := newPostgresStore(t, nil)
	event := Event{EventID: "e-1", EventData: json.RawMessage(`{"v":2}`), EventVersion: 2}

	mock.ExpectExec("UPDATE events SET event_data").
		WithArgs([]byte(`{"v":2}`), 2, "e-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE events SET event_data").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, es.RewriteEvent(context.Background(), event))
	assert.ErrorIs(t, es.RewriteEvent(context.Background(), event), ErrEventNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_Snapshots(t *testing.T) {
	es, mock := newPostgresStore(t, nil)
	snap := gameSnapshot(100)

	mock.ExpectExec("INSERT INTO snapshots").
		WithArgs("game-1", "Game", 100, []byte(snap.Data), snap.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT aggregate_type, version, data, created_at FROM snapshots").
		WithArgs("game-1").
		WillReturnRows(sqlmock.NewRows([]string{"aggregate_type", "version", "data", "created_at"}).
			AddRow("Game", 100, []byte(snap.Data), snap.Timestamp))
	mock.ExpectQuery("SELECT aggregate_type, version, data, created_at FROM snapshots").
		WithArgs("game-2").
		WillReturnRows(sqlmock.NewRows([]string{"aggregate_type", "version", "data", "created_at"}))

	ctx := context.Background()
	require.NoError(t, es.SaveSnapshot(ctx, "game-1", snap))

	got, err := es.GetSnapshot(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, 100, got.Version)
	assert.JSONEq(t, string(snap.Data), string(got.Data))

	missing, err := es.GetSnapshot(ctx, "game-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}
