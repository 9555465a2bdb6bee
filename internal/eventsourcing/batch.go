package eventsourcing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/scorekeeper-events/internal/domain/aggregate"
)

// BatchOperation is one append in a batch
type BatchOperation struct {
	StreamID        string
	AggregateType   string
	Events          []aggregate.Event
	ExpectedVersion int
}

// BatchResult counts the outcome of a batch. Operations are independent:
// a failed append does not undo the ones before it.
type BatchResult struct {
	Success             bool     `json:"success"`
	OperationsCompleted int      `json:"operationsCompleted"`
	OperationsFailed    int      `json:"operationsFailed"`
	Errors              []string `json:"errors,omitempty"`
}

// BatchEventOperations runs the appends in order and attempts every one
func (s *Service) BatchEventOperations(ctx context.Context, ops []BatchOperation) BatchResult {
	var result BatchResult
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			result.OperationsFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("Operation %d (%s): %v", i, op.StreamID, err))
			continue
		}
		res := s.AppendEvents(ctx, op.StreamID, op.AggregateType, op.Events, op.ExpectedVersion)
		if !res.Success {
			result.OperationsFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("Operation %d (%s): %s", i, op.StreamID, res.Error))
			continue
		}
		result.OperationsCompleted++
	}

	result.Success = result.OperationsFailed == 0
	if !result.Success {
		s.logger.Warn("batch finished with failures",
			zap.String("operation", "batchEventOperations"),
			zap.Int("completed", result.OperationsCompleted),
			zap.Int("failed", result.OperationsFailed),
		)
	}
	return result
}
