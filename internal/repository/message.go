package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"collab-backend/internal/domain"
	"collab-backend/internal/storage"
)

// messageItem is the raw storage shape of a delivered message. gsi1 orders
// a conversation's messages by creation time.
type messageItem struct {
	PK             string `dynamodbav:"pk"`
	SK             string `dynamodbav:"sk"`
	EntityType     string `dynamodbav:"entityType"`
	GSI1PK         string `dynamodbav:"gsi1pk"`
	GSI1SK         string `dynamodbav:"gsi1sk"`
	ID             string `dynamodbav:"id"`
	ConversationID string `dynamodbav:"conversationId"`
	From           string `dynamodbav:"from"`
	MimeType       string `dynamodbav:"mimeType"`
	Transcript     string `dynamodbav:"transcript,omitempty"`
	Replies        int    `dynamodbav:"replies"`
	CreatedAt      string `dynamodbav:"createdAt"`
}

// pendingMessageItem is the raw storage shape of a pending-message
// placeholder. It has no index projections; it exists only to reserve the
// message id until the payload upload completes.
type pendingMessageItem struct {
	PK             string `dynamodbav:"pk"`
	SK             string `dynamodbav:"sk"`
	EntityType     string `dynamodbav:"entityType"`
	ID             string `dynamodbav:"id"`
	ConversationID string `dynamodbav:"conversationId"`
	From           string `dynamodbav:"from"`
	MimeType       string `dynamodbav:"mimeType"`
	CreatedAt      string `dynamodbav:"createdAt"`
}

func cleanseMessage(item messageItem) (domain.Message, error) {
	createdAt, err := parseTime(item.CreatedAt)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             item.ID,
		ConversationID: item.ConversationID,
		From:           item.From,
		MimeType:       item.MimeType,
		Transcript:     item.Transcript,
		Replies:        item.Replies,
		CreatedAt:      createdAt,
	}, nil
}

func cleansePendingMessage(item pendingMessageItem) (domain.PendingMessage, error) {
	createdAt, err := parseTime(item.CreatedAt)
	if err != nil {
		return domain.PendingMessage{}, err
	}
	return domain.PendingMessage{
		ID:             item.ID,
		ConversationID: item.ConversationID,
		From:           item.From,
		MimeType:       item.MimeType,
		CreatedAt:      createdAt,
	}, nil
}

// MessageRepository persists messages and pending-message placeholders.
type MessageRepository struct {
	store  entityStore
	logger *slog.Logger
}

func NewMessageRepository(store entityStore, logger *slog.Logger) (*MessageRepository, error) {
	if store == nil {
		return nil, errors.New("repository: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageRepository{store: store, logger: logger}, nil
}

func messageKey(messageID string) storage.Key {
	return storage.Key{PK: messagePK(messageID), SK: EntityTypeMessage}
}

func pendingMessageKey(messageID string) storage.Key {
	return storage.Key{PK: pendingMessagePK(messageID), SK: EntityTypePendingMessage}
}

// CreatePendingMessage reserves a message id while its payload upload is in
// flight. When no id is supplied a fresh one is minted.
func (r *MessageRepository) CreatePendingMessage(ctx context.Context, pending domain.PendingMessage) (domain.PendingMessage, error) {
	if pending.ID == "" {
		pending.ID = uuid.NewString()
	}
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = time.Now()
	}
	item := pendingMessageItem{
		PK:             pendingMessagePK(pending.ID),
		SK:             EntityTypePendingMessage,
		EntityType:     EntityTypePendingMessage,
		ID:             pending.ID,
		ConversationID: pending.ConversationID,
		From:           pending.From,
		MimeType:       pending.MimeType,
		CreatedAt:      formatTime(pending.CreatedAt),
	}

	raw, err := storage.MarshalItem(item)
	if err != nil {
		return domain.PendingMessage{}, fmt.Errorf("repository: CreatePendingMessage: %w", err)
	}
	if err := r.store.Create(ctx, EntityTypePendingMessage, raw); err != nil {
		r.logger.Error("create pending message failed", "messageId", pending.ID, "err", err)
		return domain.PendingMessage{}, fmt.Errorf("repository: CreatePendingMessage: %w", err)
	}
	return cleansePendingMessage(item)
}

// GetPendingMessage reads a pending-message placeholder.
func (r *MessageRepository) GetPendingMessage(ctx context.Context, messageID string) (domain.PendingMessage, error) {
	raw, err := r.store.Get(ctx, EntityTypePendingMessage, pendingMessageKey(messageID))
	if err != nil {
		r.logger.Error("get pending message failed", "messageId", messageID, "err", err)
		return domain.PendingMessage{}, fmt.Errorf("repository: GetPendingMessage: %w", err)
	}
	item, err := storage.UnmarshalItem[pendingMessageItem](raw)
	if err != nil {
		return domain.PendingMessage{}, fmt.Errorf("repository: GetPendingMessage: %w", err)
	}
	return cleansePendingMessage(item)
}

// DeletePendingMessage removes a placeholder after the real message has
// been materialized.
func (r *MessageRepository) DeletePendingMessage(ctx context.Context, messageID string) error {
	if err := r.store.Delete(ctx, EntityTypePendingMessage, pendingMessageKey(messageID)); err != nil {
		r.logger.Error("delete pending message failed", "messageId", messageID, "err", err)
		return fmt.Errorf("repository: DeletePendingMessage: %w", err)
	}
	return nil
}

// CreateMessage writes a delivered message.
func (r *MessageRepository) CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	item := messageItem{
		PK:             messagePK(msg.ID),
		SK:             EntityTypeMessage,
		EntityType:     EntityTypeMessage,
		GSI1PK:         conversationPK(msg.ConversationID),
		GSI1SK:         timeSortKey(msg.CreatedAt),
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		From:           msg.From,
		MimeType:       msg.MimeType,
		Transcript:     msg.Transcript,
		Replies:        msg.Replies,
		CreatedAt:      formatTime(msg.CreatedAt),
	}

	raw, err := storage.MarshalItem(item)
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: CreateMessage: %w", err)
	}
	if err := r.store.Create(ctx, EntityTypeMessage, raw); err != nil {
		r.logger.Error("create message failed", "messageId", msg.ID, "conversationId", msg.ConversationID, "err", err)
		return domain.Message{}, fmt.Errorf("repository: CreateMessage: %w", err)
	}
	return cleanseMessage(item)
}

// ConvertPendingToMessage materializes the delivered message and removes
// its placeholder. The create runs first so a failure between the two
// writes leaves the placeholder behind for redelivery rather than losing
// the message.
func (r *MessageRepository) ConvertPendingToMessage(ctx context.Context, messageID, transcript string) (domain.Message, error) {
	pending, err := r.GetPendingMessage(ctx, messageID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: ConvertPendingToMessage: %w", err)
	}

	msg, err := r.CreateMessage(ctx, domain.Message{
		ID:             pending.ID,
		ConversationID: pending.ConversationID,
		From:           pending.From,
		MimeType:       pending.MimeType,
		Transcript:     transcript,
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: ConvertPendingToMessage: %w", err)
	}

	if err := r.DeletePendingMessage(ctx, messageID); err != nil {
		return domain.Message{}, fmt.Errorf("repository: ConvertPendingToMessage: %w", err)
	}
	return msg, nil
}

// GetMessage reads one delivered message by id.
func (r *MessageRepository) GetMessage(ctx context.Context, messageID string) (domain.Message, error) {
	raw, err := r.store.Get(ctx, EntityTypeMessage, messageKey(messageID))
	if err != nil {
		r.logger.Error("get message failed", "messageId", messageID, "err", err)
		return domain.Message{}, fmt.Errorf("repository: GetMessage: %w", err)
	}
	item, err := storage.UnmarshalItem[messageItem](raw)
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: GetMessage: %w", err)
	}
	return cleanseMessage(item)
}

// IncrementReplies bumps the reply counter on a message.
func (r *MessageRepository) IncrementReplies(ctx context.Context, messageID string, replies int) (domain.Message, error) {
	patch := storage.NewPatch().SetInt("replies", replies)

	raw, err := r.store.Update(ctx, EntityTypeMessage, messageKey(messageID), patch)
	if err != nil {
		r.logger.Error("increment replies failed", "messageId", messageID, "err", err)
		return domain.Message{}, fmt.Errorf("repository: IncrementReplies: %w", err)
	}
	item, err := storage.UnmarshalItem[messageItem](raw)
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: IncrementReplies: %w", err)
	}
	return cleanseMessage(item)
}

// GetByConversationID lists a conversation's messages, newest first.
func (r *MessageRepository) GetByConversationID(ctx context.Context, conversationID string, limit int32, cursor string) ([]domain.Message, string, error) {
	startKey, err := decodeStartKey(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetMessagesByConversationID: %w", err)
	}

	page, err := r.store.Query(ctx, EntityTypeMessage, storage.QueryParams{
		Index:             storage.IndexGSI1,
		PartitionValue:    conversationPK(conversationID),
		SortKeyPrefix:     prefixTimeSort,
		ScanForward:       false,
		Limit:             normalizeLimit(limit),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		r.logger.Error("query messages by conversation failed", "conversationId", conversationID, "err", err)
		return nil, "", fmt.Errorf("repository: GetMessagesByConversationID: %w", err)
	}

	items, err := storage.UnmarshalItems[messageItem](page.Items)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetMessagesByConversationID: %w", err)
	}
	messages := make([]domain.Message, 0, len(items))
	for _, item := range items {
		msg, err := cleanseMessage(item)
		if err != nil {
			return nil, "", fmt.Errorf("repository: GetMessagesByConversationID: %w", err)
		}
		messages = append(messages, msg)
	}

	next, err := encodeNextCursor(page.LastKey)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetMessagesByConversationID: %w", err)
	}
	return messages, next, nil
}
