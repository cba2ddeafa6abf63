// Package notifier delivers typed notification messages to explicit
// recipient lists. Delivery beyond the publish call (websocket push, mobile
// push) is downstream of the topic and out of scope here.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// Message is a typed notification payload.
type Message struct {
	// Event names the notification kind, e.g. "message_created".
	Event string `json:"event"`
	// Data carries the event-specific payload.
	Data any `json:"data,omitempty"`
}

// envelope is the published JSON shape: the message plus its recipients.
type envelope struct {
	Event      string   `json:"event"`
	Data       any      `json:"data,omitempty"`
	Recipients []string `json:"recipients"`
}

// snsAPI is the minimal SNS interface required by SNSPublisher.
// Defined here for testability.
type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes notification messages to one SNS topic. Delivery
// is at-least-once; consumers must tolerate duplicates.
type SNSPublisher struct {
	api      snsAPI
	topicARN string
	logger   *slog.Logger
}

// NewSNSPublisher creates a publisher for the given topic.
func NewSNSPublisher(api snsAPI, topicARN string, logger *slog.Logger) (*SNSPublisher, error) {
	if api == nil {
		return nil, errors.New("notifier: api must not be nil")
	}
	if strings.TrimSpace(topicARN) == "" {
		return nil, errors.New("notifier: topic ARN must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SNSPublisher{api: api, topicARN: topicARN, logger: logger}, nil
}

// Publish delivers msg to the given recipients. Publishing to an empty
// recipient list is a no-op.
func (p *SNSPublisher) Publish(ctx context.Context, msg Message, recipientIDs []string) error {
	if len(recipientIDs) == 0 {
		return nil
	}

	body, err := json.Marshal(envelope{Event: msg.Event, Data: msg.Data, Recipients: recipientIDs})
	if err != nil {
		return fmt.Errorf("notifier: Publish: %w", err)
	}

	_, err = p.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Event),
			},
		},
	})
	if err != nil {
		p.logger.Error("publish notification failed", "event", msg.Event, "recipients", len(recipientIDs), "err", err)
		return fmt.Errorf("notifier: Publish: %w", err)
	}
	return nil
}
