// Package snapshot decides when aggregates are snapshotted and loads
// aggregates from a snapshot plus the events recorded after it.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
	"github.com/example/scorekeeper-events/internal/infrastructure/store"
)

// DefaultFrequency is the number of events between snapshots
const DefaultFrequency = 100

var (
	ErrInvalidAggregate  = errors.New("invalid aggregate")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
	ErrTypeMismatch      = errors.New("snapshot aggregate type mismatch")
	ErrAggregateNotFound = errors.New("aggregate not found")
)

// LoadResult is the raw material for folding an aggregate: the snapshot
// state, if any, and the events recorded after it.
type LoadResult struct {
	SnapshotVersion           int
	Data                      json.RawMessage
	SubsequentEvents          []store.Event
	ReconstructedFromSnapshot bool
}

type Option func(*Manager)

func WithFrequency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.frequency = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type Manager struct {
	events    store.EventLog
	snapshots store.SnapshotStore
	frequency int
	logger    *zap.Logger
	now       func() time.Time
}

func NewManager(events store.EventLog, snapshots store.SnapshotStore, opts ...Option) *Manager {
	m := &Manager{
		events:    events,
		snapshots: snapshots,
		frequency: DefaultFrequency,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Frequency() int { return m.frequency }

// ShouldCreateSnapshot reports whether at least Frequency events were
// recorded since the last snapshot (or since the start of the stream).
func (m *Manager) ShouldCreateSnapshot(ctx context.Context, aggregateID string) (bool, error) {
	var (
		events   []store.Event
		existing *store.Snapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = m.events.GetEvents(gctx, aggregateID, 0)
		return err
	})
	g.Go(func() error {
		var err error
		existing, err = m.snapshots.GetSnapshot(gctx, aggregateID)
		return err
	})
	if err := g.Wait(); err != nil {
		return false, fmt.Errorf("failed to check snapshot policy for %s: %w", aggregateID, err)
	}

	since := len(events)
	if existing != nil {
		since = 0
		for _, e := range events {
			if e.StreamVersion > existing.Version {
				since++
			}
		}
	}
	return since >= m.frequency, nil
}

// CreateSnapshot serializes the aggregate state and overwrites its snapshot
func (m *Manager) CreateSnapshot(ctx context.Context, agg aggregate.Aggregate) (*store.Snapshot, error) {
	if err := validateAggregate(agg); err != nil {
		return nil, err
	}

	data, err := json.Marshal(agg.GetState())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize state: %v", ErrInvalidAggregate, err)
	}

	snap := &store.Snapshot{
		AggregateID:   agg.GetID(),
		AggregateType: agg.GetAggregateType(),
		Version:       agg.GetVersion(),
		Data:          data,
		Timestamp:     m.now(),
	}
	if err := m.snapshots.SaveSnapshot(ctx, snap.AggregateID, snap); err != nil {
		return nil, fmt.Errorf("failed to save snapshot for %s: %w", snap.AggregateID, err)
	}

	m.logger.Info("snapshot created",
		zap.String("aggregateId", snap.AggregateID),
		zap.String("aggregateType", snap.AggregateType),
		zap.Int("version", snap.Version),
	)
	return snap, nil
}

// MaybeSnapshot creates a snapshot when the frequency threshold is reached
func (m *Manager) MaybeSnapshot(ctx context.Context, agg aggregate.Aggregate) (bool, error) {
	if err := validateAggregate(agg); err != nil {
		return false, err
	}
	should, err := m.ShouldCreateSnapshot(ctx, agg.GetID())
	if err != nil || !should {
		return false, err
	}
	if _, err := m.CreateSnapshot(ctx, agg); err != nil {
		return false, err
	}
	return true, nil
}

// Latest returns the validated snapshot of an aggregate, or nil if none exists
func (m *Manager) Latest(ctx context.Context, aggregateID, aggregateType string) (*store.Snapshot, error) {
	snap, err := m.snapshots.GetSnapshot(ctx, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", aggregateID, err)
	}
	if snap == nil {
		return nil, nil
	}
	if err := validateSnapshot(aggregateID, snap); err != nil {
		return nil, err
	}
	if snap.AggregateType != aggregateType {
		return nil, fmt.Errorf("%w: expected %s, found %s", ErrTypeMismatch, aggregateType, snap.AggregateType)
	}
	return snap, nil
}

// LoadAggregate returns the snapshot state and the events after it, or the
// full history when no snapshot exists. Folding is left to the caller.
func (m *Manager) LoadAggregate(ctx context.Context, aggregateID, aggregateType string) (*LoadResult, error) {
	if aggregateID == "" || aggregateType == "" {
		return nil, fmt.Errorf("%w: aggregate id and type are required", ErrInvalidAggregate)
	}

	snap, err := m.Latest(ctx, aggregateID, aggregateType)
	if err != nil {
		return nil, err
	}

	from := 0
	if snap != nil {
		from = snap.Version
	}
	events, err := m.events.GetEvents(ctx, aggregateID, from)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for %s: %w", aggregateID, err)
	}

	if snap == nil {
		if len(events) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrAggregateNotFound, aggregateID)
		}
		return &LoadResult{SubsequentEvents: events}, nil
	}

	m.logger.Debug("aggregate loaded from snapshot",
		zap.String("aggregateId", aggregateID),
		zap.Int("snapshotVersion", snap.Version),
		zap.Int("subsequentEvents", len(events)),
	)
	return &LoadResult{
		SnapshotVersion:           snap.Version,
		Data:                      snap.Data,
		SubsequentEvents:          events,
		ReconstructedFromSnapshot: true,
	}, nil
}

func validateAggregate(agg aggregate.Aggregate) error {
	switch {
	case agg == nil:
		return fmt.Errorf("%w: aggregate is nil", ErrInvalidAggregate)
	case agg.GetID() == "":
		return fmt.Errorf("%w: missing id", ErrInvalidAggregate)
	case agg.GetAggregateType() == "":
		return fmt.Errorf("%w: missing aggregate type", ErrInvalidAggregate)
	case agg.GetVersion() < 1:
		return fmt.Errorf("%w: version %d has no applied events", ErrInvalidAggregate, agg.GetVersion())
	case agg.GetState() == nil:
		return fmt.Errorf("%w: missing state", ErrInvalidAggregate)
	}
	return nil
}

func validateSnapshot(aggregateID string, snap *store.Snapshot) error {
	switch {
	case snap.AggregateID != aggregateID:
		return fmt.Errorf("%w: snapshot belongs to %q, not %q", ErrInvalidSnapshot, snap.AggregateID, aggregateID)
	case snap.AggregateType == "":
		return fmt.Errorf("%w: missing aggregate type", ErrInvalidSnapshot)
	case snap.Version < 1:
		return fmt.Errorf("%w: version %d", ErrInvalidSnapshot, snap.Version)
	case len(snap.Data) == 0 || !json.Valid(snap.Data):
		return fmt.Errorf("%w: data is not valid JSON", ErrInvalidSnapshot)
	}
	return nil
}
