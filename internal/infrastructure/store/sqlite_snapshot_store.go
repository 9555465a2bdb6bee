package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSnapshotStore keeps snapshots in a local SQLite file
type SQLiteSnapshotStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewSQLiteSnapshotStore opens (and if needed creates) the database at dbPath
func NewSQLiteSnapshotStore(dbPath string) (*SQLiteSnapshotStore, error) {
	if dbPath == "" {
		dbPath = ".data/snapshots.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	s := &SQLiteSnapshotStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSnapshotStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			aggregate_id TEXT NOT NULL PRIMARY KEY,
			aggregate_type TEXT NOT NULL,
			version INTEGER NOT NULL,
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_type ON snapshots(aggregate_type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the snapshot row of an aggregate
func (s *SQLiteSnapshotStore) SaveSnapshot(ctx context.Context, aggregateID string, snapshot *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots (aggregate_id, aggregate_type, version, data, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, aggregateID, snapshot.AggregateType, snapshot.Version, []byte(snapshot.Data), snapshot.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteSnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var (
		snapshot  = Snapshot{AggregateID: aggregateID}
		data      []byte
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT aggregate_type, version, data, created_at
		FROM snapshots WHERE aggregate_id = ?
	`, aggregateID).Scan(&snapshot.AggregateType, &snapshot.Version, &data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	snapshot.Data = json.RawMessage(data)
	snapshot.Timestamp = time.Unix(0, createdAt)
	return &snapshot, nil
}

func (s *SQLiteSnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
