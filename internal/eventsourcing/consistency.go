package eventsourcing

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
)

// ConsistencyReport lists the problems found in one stream
type ConsistencyReport struct {
	StreamID          string   `json:"streamId"`
	Valid             bool     `json:"valid"`
	TotalEvents       int      `json:"totalEvents"`
	ConsistencyIssues []string `json:"consistencyIssues"`
}

// ValidateEventStreamConsistency checks that stream versions are contiguous
// from 1, that timestamps do not go backwards and that every payload parses.
// Payloads of registered aggregate types are also decoded into their events.
func (s *Service) ValidateEventStreamConsistency(ctx context.Context, streamID, aggregateType string) ConsistencyReport {
	report := ConsistencyReport{StreamID: streamID, ConsistencyIssues: []string{}}

	loaded := s.LoadEventStream(ctx, streamID, aggregateType, 0)
	if !loaded.Success {
		report.ConsistencyIssues = append(report.ConsistencyIssues, loaded.Error)
		return report
	}
	report.TotalEvents = len(loaded.Events)

	replayer, _ := s.registry.Lookup(aggregateType)

	expected := 1
	for i, e := range loaded.Events {
		if e.StreamVersion != expected {
			report.ConsistencyIssues = append(report.ConsistencyIssues,
				fmt.Sprintf("Version gap detected: expected version %d, found version %d", expected, e.StreamVersion))
		}
		expected = e.StreamVersion + 1

		if i > 0 {
			prev := loaded.Events[i-1]
			if e.Timestamp.Before(prev.Timestamp) {
				report.ConsistencyIssues = append(report.ConsistencyIssues,
					fmt.Sprintf("Event ordering violation: event %s (version %d) is older than version %d",
						e.EventID, e.StreamVersion, prev.StreamVersion))
			}
		}

		var payload map[string]any
		if err := json.Unmarshal(e.EventData, &payload); err != nil {
			report.ConsistencyIssues = append(report.ConsistencyIssues,
				fmt.Sprintf("Event data parsing failed for event %s: %v", e.EventID, err))
			continue
		}
		if replayer != nil {
			if unknown, ok := replayer.Decode(e).(aggregate.UnknownEvent); ok && unknown.Err != nil {
				report.ConsistencyIssues = append(report.ConsistencyIssues,
					fmt.Sprintf("Event data parsing failed for event %s: %v", e.EventID, unknown.Err))
			}
		}
	}

	report.Valid = len(report.ConsistencyIssues) == 0
	if !report.Valid {
		s.logger.Warn("event stream is inconsistent",
			zap.String("streamId", streamID),
			zap.String("aggregateType", aggregateType),
			zap.Strings("issues", report.ConsistencyIssues),
		)
	}
	return report
}
