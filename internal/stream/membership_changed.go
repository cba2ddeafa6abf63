package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"collab-backend/internal/integrations/notifier"
	"collab-backend/internal/repository"
)

// MembershipChangedProcessor notifies a user when they are added to or
// removed from a conversation.
type MembershipChangedProcessor struct {
	table     string
	publisher notificationPublisher
	logger    *slog.Logger
}

func NewMembershipChangedProcessor(table string, publisher notificationPublisher, logger *slog.Logger) (*MembershipChangedProcessor, error) {
	if table == "" {
		return nil, errors.New("stream: table name must not be empty")
	}
	if publisher == nil {
		return nil, errors.New("stream: publisher must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipChangedProcessor{table: table, publisher: publisher, logger: logger}, nil
}

func (p *MembershipChangedProcessor) Name() string { return "membership-changed" }

func (p *MembershipChangedProcessor) SupportsRecord(r events.DynamoDBEventRecord) bool {
	return tableNameOf(r) == p.table &&
		entityTypeOf(r) == repository.EntityTypeConversationUser &&
		(r.EventName == eventInsert || r.EventName == eventRemove)
}

func (p *MembershipChangedProcessor) ProcessRecord(ctx context.Context, r events.DynamoDBEventRecord) error {
	image := recordImage(r)
	conversationID := imageString(image, "conversationId")
	userID := imageString(image, "userId")
	if conversationID == "" || userID == "" {
		return fmt.Errorf("membership record %s is missing conversationId or userId", r.EventID)
	}

	event := EventUserAddedToConversation
	if r.EventName == eventRemove {
		event = EventUserRemovedFromConversation
	}

	msg := notifier.Message{
		Event: event,
		Data: map[string]any{
			"conversationId": conversationID,
			"userId":         userID,
		},
	}
	if err := p.publisher.Publish(ctx, msg, []string{userID}); err != nil {
		p.logger.Error("notify membership change failed", "conversationId", conversationID, "userId", userID, "err", err)
		return err
	}
	return nil
}
