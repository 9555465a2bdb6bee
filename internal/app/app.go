// Package app builds the event log, snapshot store, cache and orchestrator
// selected by the configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/example/scorekeeper-events/internal/cache"
	"github.com/example/scorekeeper-events/internal/config"
	"github.com/example/scorekeeper-events/internal/domain/aggregate"
	"github.com/example/scorekeeper-events/internal/domain/catalog"
	"github.com/example/scorekeeper-events/internal/eventsourcing"
	"github.com/example/scorekeeper-events/internal/infrastructure/kafka"
	"github.com/example/scorekeeper-events/internal/infrastructure/store"
	"github.com/example/scorekeeper-events/internal/snapshot"
)

type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Registry  *aggregate.Registry
	Publisher store.Publisher
	Events    store.EventLog
	Snapshots *snapshot.Manager
	Cache     *cache.SnapshotCache
	Service   *eventsourcing.Service

	closers []func() error
}

// New connects the configured backends. publisher is told about every
// append to the event log; when it is nil and KAFKA_PUBLISH is set, a Kafka
// producer for the configured topic is used instead.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, publisher store.Publisher) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Registry: catalog.Registry()}

	if publisher == nil && cfg.Kafka.Publish {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.closers = append(a.closers, producer.Close)
		publisher = producer
	}
	a.Publisher = publisher

	b := &backends{ctx: ctx, cfg: cfg, publisher: publisher, app: a}
	events, err := b.eventLog()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	snapshots, err := b.snapshotStore()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Events = events
	a.Snapshots = snapshot.NewManager(events, snapshots,
		snapshot.WithFrequency(cfg.Snapshot.Frequency),
		snapshot.WithLogger(logger.Named("snapshot")),
	)
	a.Cache = cache.New(
		cache.WithEnabled(cfg.Cache.Enabled),
		cache.WithMaxSize(cfg.Cache.MaxSize),
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithLogger(logger.Named("cache")),
	)
	a.Service = eventsourcing.NewService(eventsourcing.Config{
		Events:    events,
		Snapshots: a.Snapshots,
		Cache:     a.Cache,
		Registry:  a.Registry,
		Logger:    logger.Named("eventsourcing"),
	})

	logger.Info("backends ready",
		zap.String("eventStore", cfg.Store.Events),
		zap.String("snapshotStore", cfg.Store.Snapshots),
		zap.Int("snapshotFrequency", cfg.Snapshot.Frequency),
		zap.Bool("cacheEnabled", cfg.Cache.Enabled),
		zap.Bool("kafkaPublish", cfg.Kafka.Publish),
	)
	return a, nil
}

// RunJanitor evicts stale cache entries until ctx is done
func (a *App) RunJanitor(ctx context.Context) error {
	return cache.RunJanitor(ctx, a.Cache, a.Config.Cache.JanitorInterval)
}

// Close releases connections in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// backends opens each connection at most once so the event log and the
// snapshot store can share a database.
type backends struct {
	ctx       context.Context
	cfg       *config.Config
	publisher store.Publisher
	app       *App

	postgres *store.PostgresEventStore
	dynamo   *store.DynamoEventStore
}

func (b *backends) eventLog() (store.EventLog, error) {
	switch b.cfg.Store.Events {
	case config.BackendMemory:
		return store.NewEventStore(b.publisher), nil
	case config.BackendPostgres:
		return b.postgresStore()
	case config.BackendDynamo:
		return b.dynamoStore()
	}
	return nil, fmt.Errorf("%w: unknown event store %q", config.ErrInvalidConfig, b.cfg.Store.Events)
}

func (b *backends) snapshotStore() (store.SnapshotStore, error) {
	switch b.cfg.Store.Snapshots {
	case config.BackendMemory:
		return store.NewMemorySnapshotStore(), nil
	case config.BackendPostgres:
		return b.postgresStore()
	case config.BackendDynamo:
		return b.dynamoStore()
	case config.BackendSQLite:
		s, err := store.NewSQLiteSnapshotStore(b.cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		b.app.closers = append(b.app.closers, s.Close)
		return s, nil
	case config.BackendRedis:
		client, err := store.ConnectRedis(b.cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		b.app.closers = append(b.app.closers, client.Close)
		return store.NewRedisSnapshotStore(client, b.cfg.Redis.SnapshotTTL), nil
	}
	return nil, fmt.Errorf("%w: unknown snapshot store %q", config.ErrInvalidConfig, b.cfg.Store.Snapshots)
}

func (b *backends) postgresStore() (*store.PostgresEventStore, error) {
	if b.postgres != nil {
		return b.postgres, nil
	}
	db, err := store.ConnectPostgres(b.cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	b.app.closers = append(b.app.closers, db.Close)

	pg := store.NewPostgresEventStore(db, b.publisher)
	if b.cfg.Postgres.EnsureSchema {
		if err := pg.EnsureSchema(b.ctx); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	b.postgres = pg
	return pg, nil
}

func (b *backends) dynamoStore() (*store.DynamoEventStore, error) {
	if b.dynamo != nil {
		return b.dynamo, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(b.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	b.dynamo = store.NewDynamoEventStore(
		dynamodb.NewFromConfig(awsCfg),
		b.cfg.Dynamo.EventsTable,
		b.cfg.Dynamo.SnapshotsTable,
	)
	return b.dynamo, nil
}

