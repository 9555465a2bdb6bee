package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Snapshot represents a point-in-time state of an aggregate
type Snapshot struct {
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	Version       int             `json:"version"` // stream version the state reflects
	Data          json.RawMessage `json:"data"`    // serialized aggregate state
	Timestamp     time.Time       `json:"timestamp"`
}

// MemorySnapshotStore keeps one snapshot per aggregate in memory
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[string]Snapshot)}
}

// SaveSnapshot overwrites the snapshot slot of aggregateID
func (s *MemorySnapshotStore) SaveSnapshot(ctx context.Context, aggregateID string, snapshot *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[aggregateID] = *snapshot
	return nil
}

func (s *MemorySnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}
