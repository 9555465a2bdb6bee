package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// gsi1Partition is the fixed GSI1 partition value that makes the whole log
// queryable in created_at order.
const gsi1Partition = "EVENTS"

// SortableTimeLayout is RFC 3339 with a fixed nine-digit fraction, so that
// string order of UTC values is time order. created_at is a GSI1 sort key
// compared as a string.
const SortableTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatSortableTime renders t in UTC with SortableTimeLayout
func FormatSortableTime(t time.Time) string {
	return t.UTC().Format(SortableTimeLayout)
}

// ParseSortableTime reads a created_at value. It also accepts the shorter
// RFC3339Nano form.
func ParseSortableTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

// maxTransactItems is the DynamoDB limit for one TransactWriteItems call
const maxTransactItems = 100

// DynamoAPI is the subset of the DynamoDB client used by DynamoEventStore
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoEventStore stores events in DynamoDB.
// Events are streamed to Kinesis Data Streams via the DynamoDB Kinesis integration.
type DynamoEventStore struct {
	client            DynamoAPI
	tableName         string
	snapshotTableName string
}

// dynamoEvent represents the DynamoDB item structure
type dynamoEvent struct {
	StreamID      string `dynamodbav:"stream_id"`
	StreamVersion int    `dynamodbav:"stream_version"`
	EventID       string `dynamodbav:"event_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	EventData     string `dynamodbav:"event_data"`
	EventVersion  int    `dynamodbav:"event_version"`
	RootID        string `dynamodbav:"root_id"`
	Metadata      string `dynamodbav:"metadata"`
	CreatedAt     string `dynamodbav:"created_at"`
	GSI1PK        string `dynamodbav:"gsi1pk"`
}

func NewDynamoEventStore(client DynamoAPI, tableName, snapshotTableName string) *DynamoEventStore {
	return &DynamoEventStore{
		client:            client,
		tableName:         tableName,
		snapshotTableName: snapshotTableName,
	}
}

// Append writes all events in one conditional transaction. A concurrent
// writer that took any of the versions cancels the whole transaction.
func (es *DynamoEventStore) Append(ctx context.Context, streamID, aggregateType string, events []Event, expectedVersion int) error {
	if streamID == "" {
		return ErrEmptyStreamID
	}
	if len(events) == 0 {
		return nil
	}
	if len(events) > maxTransactItems {
		return fmt.Errorf("cannot append %d events in one call, limit is %d", len(events), maxTransactItems)
	}

	currentVersion, err := es.currentVersion(ctx, streamID)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if expectedVersion != AnyVersion && expectedVersion != currentVersion {
		return &ConflictError{StreamID: streamID, Expected: expectedVersion, Actual: currentVersion}
	}

	prepared := prepare(streamID, aggregateType, events, currentVersion, time.Now())
	items := make([]types.TransactWriteItem, 0, len(prepared))
	for _, e := range prepared {
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		av, err := attributevalue.MarshalMap(dynamoEvent{
			StreamID:      e.StreamID,
			StreamVersion: e.StreamVersion,
			EventID:       e.EventID,
			AggregateType: e.AggregateType,
			EventType:     e.EventType,
			EventData:     string(e.EventData),
			EventVersion:  e.EventVersion,
			RootID:        e.Metadata.RootID,
			Metadata:      string(metadata),
			CreatedAt:     FormatSortableTime(e.Timestamp),
			GSI1PK:        gsi1Partition,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(es.tableName),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(stream_id) AND attribute_not_exists(stream_version)"),
			},
		})
	}

	_, err = es.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var cancelled *types.TransactionCanceledException
		if errors.As(err, &cancelled) {
			return &ConflictError{StreamID: streamID, Expected: expectedVersion, Actual: currentVersion + 1}
		}
		return fmt.Errorf("failed to put events: %w", err)
	}
	return nil
}

// currentVersion queries for the highest stream version of a stream
func (es *DynamoEventStore) currentVersion(ctx context.Context, streamID string) (int, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("stream_id = :sid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": &types.AttributeValueMemberS{Value: streamID},
		},
		ScanIndexForward:     aws.Bool(false),
		Limit:                aws.Int32(1),
		ProjectionExpression: aws.String("stream_version"),
	})
	if err != nil {
		return 0, err
	}
	if len(result.Items) == 0 {
		return 0, nil
	}

	var item struct {
		StreamVersion int `dynamodbav:"stream_version"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, err
	}
	return item.StreamVersion, nil
}

// GetEvents returns the events of a stream after fromVersion
func (es *DynamoEventStore) GetEvents(ctx context.Context, streamID string, fromVersion int) ([]Event, error) {
	return es.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("stream_id = :sid AND stream_version > :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": &types.AttributeValueMemberS{Value: streamID},
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(fromVersion)},
		},
		ScanIndexForward: aws.Bool(true),
	}, 0)
}

// GetAllEvents returns all events created after since using GSI1
func (es *DynamoEventStore) GetAllEvents(ctx context.Context, since time.Time) ([]Event, error) {
	return es.query(ctx, es.globalQuery(since, "", nil), 0)
}

// GetEventsByType returns events of one kind in created_at order
func (es *DynamoEventStore) GetEventsByType(ctx context.Context, eventType string, limit int) ([]Event, error) {
	input := es.globalQuery(time.Time{}, "event_type = :et", map[string]types.AttributeValue{
		":et": &types.AttributeValueMemberS{Value: eventType},
	})
	return es.query(ctx, input, limit)
}

// GetEventsByAggregateRoot returns the events belonging to a root aggregate
func (es *DynamoEventStore) GetEventsByAggregateRoot(ctx context.Context, rootID string, aggregateTypes []string, since time.Time) ([]Event, error) {
	input := es.globalQuery(since, "stream_id = :rid OR root_id = :rid", map[string]types.AttributeValue{
		":rid": &types.AttributeValueMemberS{Value: rootID},
	})
	events, err := es.query(ctx, input, 0)
	if err != nil || len(aggregateTypes) == 0 {
		return events, err
	}
	return slices.DeleteFunc(events, func(e Event) bool {
		return !slices.Contains(aggregateTypes, e.AggregateType)
	}), nil
}

// RewriteEvent replaces the payload and schema version of a stored event
func (es *DynamoEventStore) RewriteEvent(ctx context.Context, event Event) error {
	_, err := es.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(es.tableName),
		Key: map[string]types.AttributeValue{
			"stream_id":      &types.AttributeValueMemberS{Value: event.StreamID},
			"stream_version": &types.AttributeValueMemberN{Value: strconv.Itoa(event.StreamVersion)},
		},
		UpdateExpression:    aws.String("SET event_data = :data, event_version = :ev"),
		ConditionExpression: aws.String("event_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":data": &types.AttributeValueMemberS{Value: string(event.EventData)},
			":ev":   &types.AttributeValueMemberN{Value: strconv.Itoa(event.EventVersion)},
			":id":   &types.AttributeValueMemberS{Value: event.EventID},
		},
	})
	if err != nil {
		var failed *types.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return ErrEventNotFound
		}
		return fmt.Errorf("failed to rewrite event: %w", err)
	}
	return nil
}

func (es *DynamoEventStore) globalQuery(since time.Time, filter string, values map[string]types.AttributeValue) *dynamodb.QueryInput {
	if values == nil {
		values = make(map[string]types.AttributeValue)
	}
	values[":pk"] = &types.AttributeValueMemberS{Value: gsi1Partition}
	values[":since"] = &types.AttributeValueMemberS{Value: FormatSortableTime(since)}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(es.tableName),
		IndexName:                 aws.String("GSI1"),
		KeyConditionExpression:    aws.String("gsi1pk = :pk AND created_at > :since"),
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(true),
	}
	if filter != "" {
		input.FilterExpression = aws.String(filter)
	}
	return input
}

// query follows pagination until the result set (or limit) is exhausted
func (es *DynamoEventStore) query(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]Event, error) {
	var events []Event
	paginator := dynamodb.NewQueryPaginator(es.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query events: %w", err)
		}
		decoded, err := unmarshalEvents(page.Items)
		if err != nil {
			return nil, err
		}
		events = append(events, decoded...)
		if limit > 0 && len(events) >= limit {
			return events[:limit], nil
		}
	}
	return events, nil
}

// unmarshalEvents converts DynamoDB items to Event slice
func unmarshalEvents(items []map[string]types.AttributeValue) ([]Event, error) {
	events := make([]Event, 0, len(items))

	for _, item := range items {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}

		timestamp, err := ParseSortableTime(de.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at of event %s: %w", de.EventID, err)
		}

		e := Event{
			EventID:       de.EventID,
			StreamID:      de.StreamID,
			AggregateType: de.AggregateType,
			EventType:     de.EventType,
			EventData:     json.RawMessage(de.EventData),
			EventVersion:  de.EventVersion,
			StreamVersion: de.StreamVersion,
			Timestamp:     timestamp,
		}
		if de.Metadata != "" {
			if err := json.Unmarshal([]byte(de.Metadata), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of event %s: %w", de.EventID, err)
			}
		}
		events = append(events, e)
	}

	return events, nil
}

// dynamoSnapshot represents the DynamoDB item structure for snapshots
// Stored in a separate snapshots table with aggregate_id as partition key
type dynamoSnapshot struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	Version       int    `dynamodbav:"version"`
	Data          string `dynamodbav:"data"`
	CreatedAt     string `dynamodbav:"created_at"`
}

// SaveSnapshot stores a snapshot in the dedicated snapshots table
func (es *DynamoEventStore) SaveSnapshot(ctx context.Context, aggregateID string, snapshot *Snapshot) error {
	av, err := attributevalue.MarshalMap(dynamoSnapshot{
		AggregateID:   aggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		Data:          string(snapshot.Data),
		CreatedAt:     FormatSortableTime(snapshot.Timestamp),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Overwrite existing snapshot (no condition)
	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(es.snapshotTableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves the latest snapshot for an aggregate from the snapshots table
func (es *DynamoEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	result, err := es.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(es.snapshotTableName),
		Key: map[string]types.AttributeValue{
			"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	createdAt, err := ParseSortableTime(ds.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at of snapshot %s: %w", aggregateID, err)
	}

	return &Snapshot{
		AggregateID:   ds.AggregateID,
		AggregateType: ds.AggregateType,
		Version:       ds.Version,
		Data:          json.RawMessage(ds.Data),
		Timestamp:     createdAt,
	}, nil
}
