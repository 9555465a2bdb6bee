package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/scorekeeper-events/internal/app"
	"github.com/example/scorekeeper-events/internal/config"
	"github.com/example/scorekeeper-events/internal/infrastructure/kafka"
	"github.com/example/scorekeeper-events/internal/projection"
	"github.com/example/scorekeeper-events/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		// logger config is part of cfg, so fall back to defaults
		logger.New(logger.Config{}).Fatal("failed to load configuration", zap.Error(err))
	}
	log := logger.WithService(logger.New(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding}), "snapshotter")
	defer func() { _ = log.Sync() }()

	log.Info("starting snapshotter",
		zap.Strings("kafkaBrokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID),
	)

	a, err := app.New(ctx, cfg, log, nil)
	if err != nil {
		log.Fatal("failed to initialize backends", zap.Error(err))
	}
	defer a.Close()

	projector := projection.NewProjector(a.Service, a.Registry, log.Named("projection"))
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, log.Named("kafka"))
	defer consumer.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Consume(gctx, projector.HandleEvent) })
	g.Go(func() error { return a.RunJanitor(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("snapshotter stopped", zap.Error(err))
		os.Exit(1)
	}
	log.Info("shutting down")
}
