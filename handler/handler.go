// Package handler adapts Lambda-delivered stream events to the dispatcher.
package handler

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"
)

// dispatcher is the record fan-out consumed by the handler.
type dispatcher interface {
	HandleEvent(ctx context.Context, event events.DynamoDBEvent) error
}

// Handler is the Lambda entry point for change-stream batches.
type Handler struct {
	dispatcher dispatcher
}

// NewHandler creates a Handler over the given dispatcher.
func NewHandler(d dispatcher) (*Handler, error) {
	if d == nil {
		return nil, errors.New("handler: dispatcher must not be nil")
	}
	return &Handler{dispatcher: d}, nil
}

// Handle processes one stream batch. A returned error makes the stream
// harness redeliver the batch; processors tolerate the resulting
// duplicates.
func (h *Handler) Handle(ctx context.Context, event events.DynamoDBEvent) error {
	return h.dispatcher.HandleEvent(ctx, event)
}
