package mocks

import (
	"context"
	"sync"

	"github.com/example/scorekeeper-events/internal/infrastructure/store"
)

// MockSnapshotStore is a mock implementation of store.SnapshotStore for testing
type MockSnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]store.Snapshot

	SaveCalls []store.Snapshot
	GetCalls  int
	SaveErr   error
	GetErr    error
}

// NewMockSnapshotStore creates a new MockSnapshotStore
func NewMockSnapshotStore() *MockSnapshotStore {
	return &MockSnapshotStore{snapshots: make(map[string]store.Snapshot)}
}

func (m *MockSnapshotStore) SaveSnapshot(ctx context.Context, aggregateID string, snapshot *store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveCalls = append(m.SaveCalls, *snapshot)
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.snapshots[aggregateID] = *snapshot
	return nil
}

func (m *MockSnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	snapshot, ok := m.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

// SetSnapshot stores a snapshot directly for testing
func (m *MockSnapshotStore) SetSnapshot(snapshot store.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.AggregateID] = snapshot
}
