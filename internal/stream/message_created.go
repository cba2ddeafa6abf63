package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"collab-backend/internal/domain"
	"collab-backend/internal/integrations/notifier"
	"collab-backend/internal/repository"
)

// Notification event names.
const (
	EventMessageCreated              = "message_created"
	EventUserAddedToConversation     = "user_added_to_conversation"
	EventUserRemovedFromConversation = "user_removed_from_conversation"
)

// membershipStore is the slice of the conversation-membership repository
// the message processor consumes.
type membershipStore interface {
	GetByConversationID(ctx context.Context, conversationID string, limit int32, cursor string) ([]domain.ConversationUserRelationship, string, error)
	AddUnreadMessage(ctx context.Context, conversationID, userID, messageID string, refreshRecency bool) (domain.ConversationUserRelationship, error)
}

// notificationPublisher is the notification boundary. Delivery is assumed
// at-least-once; everything published here tolerates duplicates.
type notificationPublisher interface {
	Publish(ctx context.Context, msg notifier.Message, recipientIDs []string) error
}

// MessageCreatedProcessor reacts to new message records: it resolves the
// conversation's membership (data not present in the change image), marks
// the message unread for every member except the sender, and notifies the
// recipients. The unread mutation is a set union, so a redelivered record
// converges instead of double-counting.
type MessageCreatedProcessor struct {
	table       string
	memberships membershipStore
	publisher   notificationPublisher
	logger      *slog.Logger
}

func NewMessageCreatedProcessor(table string, memberships membershipStore, publisher notificationPublisher, logger *slog.Logger) (*MessageCreatedProcessor, error) {
	if table == "" {
		return nil, errors.New("stream: table name must not be empty")
	}
	if memberships == nil {
		return nil, errors.New("stream: membership store must not be nil")
	}
	if publisher == nil {
		return nil, errors.New("stream: publisher must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageCreatedProcessor{table: table, memberships: memberships, publisher: publisher, logger: logger}, nil
}

func (p *MessageCreatedProcessor) Name() string { return "message-created" }

func (p *MessageCreatedProcessor) SupportsRecord(r events.DynamoDBEventRecord) bool {
	return tableNameOf(r) == p.table &&
		entityTypeOf(r) == repository.EntityTypeMessage &&
		r.EventName == eventInsert
}

func (p *MessageCreatedProcessor) ProcessRecord(ctx context.Context, r events.DynamoDBEventRecord) error {
	image := r.Change.NewImage
	messageID := imageString(image, "id")
	conversationID := imageString(image, "conversationId")
	sender := imageString(image, "from")
	if messageID == "" || conversationID == "" {
		return fmt.Errorf("message record %s is missing id or conversationId", r.EventID)
	}

	recipients, err := p.fanOutUnread(ctx, conversationID, messageID, sender)
	if err != nil {
		return err
	}

	msg := notifier.Message{
		Event: EventMessageCreated,
		Data: map[string]any{
			"messageId":      messageID,
			"conversationId": conversationID,
			"from":           sender,
		},
	}
	if err := p.publisher.Publish(ctx, msg, recipients); err != nil {
		p.logger.Error("notify message created failed", "messageId", messageID, "conversationId", conversationID, "err", err)
		return err
	}
	return nil
}

// fanOutUnread walks every membership page of the conversation and unions
// the message id into each non-sender member's unread set, returning the
// recipient ids.
func (p *MessageCreatedProcessor) fanOutUnread(ctx context.Context, conversationID, messageID, sender string) ([]string, error) {
	var recipients []string
	cursor := ""
	for {
		members, next, err := p.memberships.GetByConversationID(ctx, conversationID, 0, cursor)
		if err != nil {
			p.logger.Error("resolve conversation membership failed", "conversationId", conversationID, "err", err)
			return nil, err
		}
		for _, member := range members {
			if member.UserID == sender {
				continue
			}
			if _, err := p.memberships.AddUnreadMessage(ctx, conversationID, member.UserID, messageID, true); err != nil {
				p.logger.Error("mark message unread failed", "conversationId", conversationID, "userId", member.UserID, "messageId", messageID, "err", err)
				return nil, err
			}
			recipients = append(recipients, member.UserID)
		}
		if next == "" {
			return recipients, nil
		}
		cursor = next
	}
}
