package kinesis

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"github.com/example/scorekeeper-events/internal/infrastructure/store"
)

// ConvertFromKinesisRecord converts a Kinesis record carrying a DynamoDB
// stream change to a store.Event. Only INSERTs are events; the nil event
// returned for anything else (e.g. a migration rewrite) is not an error.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}
	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB stream record directly
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if record.EventName != "INSERT" {
		return nil, nil
	}
	return convertDynamoDBImage(record.Change.NewImage)
}

func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("DynamoDB image is nil")
	}

	event := &store.Event{
		EventID:       stringAttr(image, "event_id"),
		StreamID:      stringAttr(image, "stream_id"),
		AggregateType: stringAttr(image, "aggregate_type"),
		EventType:     stringAttr(image, "event_type"),
	}
	if v := stringAttr(image, "event_data"); v != "" {
		event.EventData = json.RawMessage(v)
	}

	var err error
	if event.StreamVersion, err = intAttr(image, "stream_version"); err != nil {
		return nil, err
	}
	if event.EventVersion, err = intAttr(image, "event_version"); err != nil {
		return nil, err
	}
	if v := stringAttr(image, "created_at"); v != "" {
		if event.Timestamp, err = store.ParseSortableTime(v); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
	}
	if v := stringAttr(image, "metadata"); v != "" {
		if err := json.Unmarshal([]byte(v), &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	if event.EventID == "" || event.StreamID == "" || event.EventType == "" {
		return nil, fmt.Errorf("missing required fields: event_id=%s, stream_id=%s, event_type=%s",
			event.EventID, event.StreamID, event.EventType)
	}
	return event, nil
}

func stringAttr(image map[string]events.DynamoDBAttributeValue, name string) string {
	v, ok := image[name]
	if !ok || v.DataType() != events.DataTypeString {
		return ""
	}
	return v.String()
}

func intAttr(image map[string]events.DynamoDBAttributeValue, name string) (int, error) {
	v, ok := image[name]
	if !ok {
		return 0, nil
	}
	n, err := v.Integer()
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return int(n), nil
}
