package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresSchema creates the tables used by PostgresEventStore
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS events (
	event_id       TEXT PRIMARY KEY,
	stream_id      TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	event_data     JSONB NOT NULL,
	event_version  INTEGER NOT NULL DEFAULT 1,
	stream_version INTEGER NOT NULL,
	root_id        TEXT NOT NULL DEFAULT '',
	metadata       JSONB NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (stream_id, stream_version)
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (event_type);
CREATE INDEX IF NOT EXISTS idx_events_root ON events (root_id);
CREATE INDEX IF NOT EXISTS idx_events_created ON events (created_at);

CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id   TEXT PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	version        INTEGER NOT NULL,
	data           JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);`

const eventColumns = `event_id, stream_id, aggregate_type, event_type, event_data, event_version, stream_version, metadata, created_at`

// uniqueViolation is the SQLSTATE raised when (stream_id, stream_version)
// is already taken by a concurrent writer.
const uniqueViolation = "23505"

// PostgresEventStore stores events and snapshots in PostgreSQL
type PostgresEventStore struct {
	db        *sql.DB
	publisher Publisher
}

func NewPostgresEventStore(db *sql.DB, publisher Publisher) *PostgresEventStore {
	return &PostgresEventStore{
		db:        db,
		publisher: publisher,
	}
}

// EnsureSchema creates the events and snapshots tables if missing
func (es *PostgresEventStore) EnsureSchema(ctx context.Context) error {
	if _, err := es.db.ExecContext(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Append stores events in one transaction and publishes them after commit
func (es *PostgresEventStore) Append(ctx context.Context, streamID, aggregateType string, events []Event, expectedVersion int) error {
	if streamID == "" {
		return ErrEmptyStreamID
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	currentVersion, err := streamVersion(ctx, tx, streamID)
	if err != nil {
		return err
	}
	if expectedVersion != AnyVersion && expectedVersion != currentVersion {
		return &ConflictError{StreamID: streamID, Expected: expectedVersion, Actual: currentVersion}
	}

	prepared := prepare(streamID, aggregateType, events, currentVersion, time.Now())
	for _, e := range prepared {
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (event_id, stream_id, aggregate_type, event_type, event_data, event_version, stream_version, root_id, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.EventID,
			e.StreamID,
			e.AggregateType,
			e.EventType,
			[]byte(e.EventData),
			e.EventVersion,
			e.StreamVersion,
			e.Metadata.RootID,
			metadata,
			e.Timestamp,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return es.conflictAfterRace(ctx, tx, streamID, expectedVersion, e.StreamVersion)
			}
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}

	return publishAll(ctx, es.publisher, streamID, prepared)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func streamVersion(ctx context.Context, q rowQuerier, streamID string) (int, error) {
	var version int
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(stream_version), 0) FROM events WHERE stream_id = $1",
		streamID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read stream version: %w", err)
	}
	return version, nil
}

// conflictAfterRace reports a conflict raised by a concurrent writer that
// took taken. The aborted transaction is rolled back and the stream version
// read again; if that fails, taken is the best known lower bound.
func (es *PostgresEventStore) conflictAfterRace(ctx context.Context, tx *sql.Tx, streamID string, expectedVersion, taken int) error {
	_ = tx.Rollback()
	actual, err := streamVersion(ctx, es.db, streamID)
	if err != nil || actual < taken {
		actual = taken
	}
	return &ConflictError{StreamID: streamID, Expected: expectedVersion, Actual: actual}
}

// GetEvents returns the events of a stream after fromVersion
func (es *PostgresEventStore) GetEvents(ctx context.Context, streamID string, fromVersion int) ([]Event, error) {
	return es.queryEvents(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE stream_id = $1 AND stream_version > $2
		 ORDER BY stream_version ASC`,
		streamID, fromVersion,
	)
}

// GetAllEvents returns all events created after since
func (es *PostgresEventStore) GetAllEvents(ctx context.Context, since time.Time) ([]Event, error) {
	return es.queryEvents(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE created_at > $1
		 ORDER BY created_at ASC, stream_version ASC`,
		since,
	)
}

// GetEventsByType returns events of one kind; limit <= 0 means all
func (es *PostgresEventStore) GetEventsByType(ctx context.Context, eventType string, limit int) ([]Event, error) {
	if limit <= 0 {
		return es.queryEvents(ctx,
			`SELECT `+eventColumns+`
			 FROM events
			 WHERE event_type = $1
			 ORDER BY created_at ASC`,
			eventType,
		)
	}
	return es.queryEvents(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE event_type = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		eventType, limit,
	)
}

// GetEventsByAggregateRoot returns the events belonging to a root aggregate
func (es *PostgresEventStore) GetEventsByAggregateRoot(ctx context.Context, rootID string, aggregateTypes []string, since time.Time) ([]Event, error) {
	if len(aggregateTypes) == 0 {
		return es.queryEvents(ctx,
			`SELECT `+eventColumns+`
			 FROM events
			 WHERE (stream_id = $1 OR root_id = $1) AND created_at > $2
			 ORDER BY created_at ASC, stream_version ASC`,
			rootID, since,
		)
	}
	return es.queryEvents(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE (stream_id = $1 OR root_id = $1) AND created_at > $2 AND aggregate_type = ANY($3)
		 ORDER BY created_at ASC, stream_version ASC`,
		rootID, since, pq.Array(aggregateTypes),
	)
}

// RewriteEvent replaces the payload and schema version of a stored event
func (es *PostgresEventStore) RewriteEvent(ctx context.Context, event Event) error {
	result, err := es.db.ExecContext(ctx,
		"UPDATE events SET event_data = $1, event_version = $2 WHERE event_id = $3",
		[]byte(event.EventData), event.EventVersion, event.EventID,
	)
	if err != nil {
		return fmt.Errorf("failed to rewrite event: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// SaveSnapshot overwrites the snapshot row of an aggregate
func (es *PostgresEventStore) SaveSnapshot(ctx context.Context, aggregateID string, snapshot *Snapshot) error {
	_, err := es.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, aggregate_type, version, data, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (aggregate_id) DO UPDATE
		 SET aggregate_type = EXCLUDED.aggregate_type, version = EXCLUDED.version,
		     data = EXCLUDED.data, created_at = EXCLUDED.created_at`,
		aggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		[]byte(snapshot.Data),
		snapshot.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the snapshot of an aggregate, or nil if none exists
func (es *PostgresEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	s := Snapshot{AggregateID: aggregateID}
	var data []byte
	err := es.db.QueryRowContext(ctx,
		"SELECT aggregate_type, version, data, created_at FROM snapshots WHERE aggregate_id = $1",
		aggregateID,
	).Scan(&s.AggregateType, &s.Version, &data, &s.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	s.Data = json.RawMessage(data)
	return &s, nil
}

func (es *PostgresEventStore) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			data     []byte
			metadata []byte
		)
		if err := rows.Scan(&e.EventID, &e.StreamID, &e.AggregateType, &e.EventType, &data, &e.EventVersion, &e.StreamVersion, &metadata, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.EventData = json.RawMessage(data)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of event %s: %w", e.EventID, err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
