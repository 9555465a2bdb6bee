package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/example/scorekeeper-events/internal/app"
	"github.com/example/scorekeeper-events/internal/config"
	"github.com/example/scorekeeper-events/internal/infrastructure/kinesis"
	"github.com/example/scorekeeper-events/internal/projection"
	"github.com/example/scorekeeper-events/pkg/logger"
)

var (
	projector *projection.Projector
	log       *zap.Logger
)

func init() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{}).Fatal("failed to load configuration", zap.Error(err))
	}
	log = logger.WithService(logger.New(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding}), "lambda-snapshotter")

	a, err := app.New(context.Background(), cfg, log, nil)
	if err != nil {
		log.Fatal("failed to initialize backends", zap.Error(err))
	}
	projector = projection.NewProjector(a.Service, a.Registry, log.Named("projection"))

	log.Info("initialized")
}

// handler reports failed records by sequence number so Lambda retries only those
func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	log.Debug("received records", zap.Int("count", len(kinesisEvent.Records)))

	var batchItemFailures []events.KinesisBatchItemFailure
	fail := func(record events.KinesisEventRecord, msg string, err error) {
		log.Error(msg, zap.String("recordId", record.EventID), zap.Error(err))
		batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
			ItemIdentifier: record.Kinesis.SequenceNumber,
		})
	}

	for _, record := range kinesisEvent.Records {
		event, err := kinesis.ConvertFromKinesisRecord(record)
		if err != nil {
			fail(record, "failed to convert record", err)
			continue
		}
		// MODIFY and REMOVE changes are not appends
		if event == nil {
			continue
		}

		if err := projector.HandleStored(ctx, *event); err != nil {
			fail(record, "failed to process event", err)
		}
	}

	log.Info("batch processed",
		zap.Int("records", len(kinesisEvent.Records)),
		zap.Int("failed", len(batchItemFailures)),
	)
	return events.KinesisEventResponse{BatchItemFailures: batchItemFailures}, nil
}

func main() {
	lambda.Start(handler)
}
