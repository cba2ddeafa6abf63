// Package stream reacts to primary-store change records, keeping the search
// index and notification consumers eventually consistent with the table.
// Each record is matched against every registered processor; unmatched
// records are skipped with no side effect. Errors are logged and returned
// so the invoking stream harness redelivers the record.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
)

// Processor handles one class of change records.
type Processor interface {
	// Name identifies the processor in logs.
	Name() string
	// SupportsRecord is a pure predicate over the record's source table,
	// entity-type discriminator, and operation kind.
	SupportsRecord(r events.DynamoDBEventRecord) bool
	// ProcessRecord enriches the changed entity and publishes to the search
	// index and/or notification boundary. It is invoked only for records
	// SupportsRecord accepted.
	ProcessRecord(ctx context.Context, r events.DynamoDBEventRecord) error
}

// Dispatcher fans each change record out to the processors that support it.
type Dispatcher struct {
	processors []Processor
	logger     *slog.Logger
}

func NewDispatcher(logger *slog.Logger, processors ...Processor) (*Dispatcher, error) {
	if len(processors) == 0 {
		return nil, errors.New("stream: at least one processor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{processors: processors, logger: logger}, nil
}

// HandleEvent processes every record in the batch. Records are independent;
// a failing record does not stop the others, and all failures are joined
// into the returned error for the harness to redeliver.
func (d *Dispatcher) HandleEvent(ctx context.Context, event events.DynamoDBEvent) error {
	var errs []error
	for _, record := range event.Records {
		for _, p := range d.processors {
			if !p.SupportsRecord(record) {
				continue
			}
			if err := p.ProcessRecord(ctx, record); err != nil {
				d.logger.Error("process record failed",
					"processor", p.Name(),
					"eventId", record.EventID,
					"eventName", record.EventName,
					"err", err,
				)
				errs = append(errs, fmt.Errorf("stream: %s: %w", p.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
