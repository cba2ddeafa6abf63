package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"collab-backend/internal/domain"
	"collab-backend/internal/storage"
)

// conversationItem is the raw storage shape of a conversation. Teamed
// conversations are projected into gsi1 for "conversations by team"
// listings; friend conversations have no team and no projection.
type conversationItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	EntityType string `dynamodbav:"entityType"`
	GSI1PK     string `dynamodbav:"gsi1pk,omitempty"`
	GSI1SK     string `dynamodbav:"gsi1sk,omitempty"`
	ID         string `dynamodbav:"id"`
	Type       string `dynamodbav:"type"`
	Name       string `dynamodbav:"name,omitempty"`
	TeamID     string `dynamodbav:"teamId,omitempty"`
	CreatedBy  string `dynamodbav:"createdBy"`
	CreatedAt  string `dynamodbav:"createdAt"`
	DueDate    string `dynamodbav:"dueDate,omitempty"`
}

func cleanseConversation(item conversationItem) (domain.Conversation, error) {
	createdAt, err := parseTime(item.CreatedAt)
	if err != nil {
		return domain.Conversation{}, err
	}
	convo := domain.Conversation{
		ID:        item.ID,
		Type:      domain.ConversationType(item.Type),
		Name:      item.Name,
		TeamID:    item.TeamID,
		CreatedBy: item.CreatedBy,
		CreatedAt: createdAt,
	}
	if item.DueDate != "" {
		due, err := parseTime(item.DueDate)
		if err != nil {
			return domain.Conversation{}, err
		}
		convo.DueDate = &due
	}
	return convo, nil
}

// ConversationRepository persists friend, group, and meeting conversations.
type ConversationRepository struct {
	store  entityStore
	logger *slog.Logger
}

func NewConversationRepository(store entityStore, logger *slog.Logger) (*ConversationRepository, error) {
	if store == nil {
		return nil, errors.New("repository: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationRepository{store: store, logger: logger}, nil
}

func conversationKey(conversationID string) storage.Key {
	return storage.Key{PK: conversationPK(conversationID), SK: EntityTypeConversation}
}

// Create writes a new conversation. The id must already carry its variant
// prefix (see domain.FriendConversationID and friends); friend
// conversations being keyed deterministically means the conditional create
// also enforces "at most one friend conversation per user pair".
func (r *ConversationRepository) Create(ctx context.Context, convo domain.Conversation) (domain.Conversation, error) {
	conversationType, ok := domain.ConversationTypeOf(convo.ID)
	if !ok {
		return domain.Conversation{}, fmt.Errorf("repository: CreateConversation: id %q has no variant prefix", convo.ID)
	}
	convo.Type = conversationType
	if convo.CreatedAt.IsZero() {
		convo.CreatedAt = time.Now()
	}

	item := conversationItem{
		PK:         conversationPK(convo.ID),
		SK:         EntityTypeConversation,
		EntityType: EntityTypeConversation,
		ID:         convo.ID,
		Type:       string(convo.Type),
		Name:       convo.Name,
		TeamID:     convo.TeamID,
		CreatedBy:  convo.CreatedBy,
		CreatedAt:  formatTime(convo.CreatedAt),
	}
	if convo.TeamID != "" {
		item.GSI1PK = teamPK(convo.TeamID)
		item.GSI1SK = conversationPK(convo.ID)
	}
	if convo.DueDate != nil {
		item.DueDate = formatTime(*convo.DueDate)
	}

	raw, err := storage.MarshalItem(item)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: CreateConversation: %w", err)
	}
	if err := r.store.Create(ctx, EntityTypeConversation, raw); err != nil {
		r.logger.Error("create conversation failed", "conversationId", convo.ID, "err", err)
		return domain.Conversation{}, fmt.Errorf("repository: CreateConversation: %w", err)
	}
	return cleanseConversation(item)
}

// Get reads one conversation by id.
func (r *ConversationRepository) Get(ctx context.Context, conversationID string) (domain.Conversation, error) {
	raw, err := r.store.Get(ctx, EntityTypeConversation, conversationKey(conversationID))
	if err != nil {
		r.logger.Error("get conversation failed", "conversationId", conversationID, "err", err)
		return domain.Conversation{}, fmt.Errorf("repository: GetConversation: %w", err)
	}
	item, err := storage.UnmarshalItem[conversationItem](raw)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetConversation: %w", err)
	}
	return cleanseConversation(item)
}

// BatchGetByIDs reads many conversations, returning them in the order of
// the input ids with nil entries for missing conversations. Callers zip
// per-user relationship metadata back onto the results positionally.
func (r *ConversationRepository) BatchGetByIDs(ctx context.Context, conversationIDs []string) ([]*domain.Conversation, error) {
	keys := make([]storage.Key, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		keys = append(keys, conversationKey(id))
	}

	rawItems, err := r.store.BatchGet(ctx, EntityTypeConversation, keys)
	if err != nil {
		r.logger.Error("batch get conversations failed", "count", len(conversationIDs), "err", err)
		return nil, fmt.Errorf("repository: BatchGetConversations: %w", err)
	}

	conversations := make([]*domain.Conversation, len(rawItems))
	for i, raw := range rawItems {
		if raw == nil {
			continue
		}
		item, err := storage.UnmarshalItem[conversationItem](raw)
		if err != nil {
			return nil, fmt.Errorf("repository: BatchGetConversations: %w", err)
		}
		convo, err := cleanseConversation(item)
		if err != nil {
			return nil, fmt.Errorf("repository: BatchGetConversations: %w", err)
		}
		conversations[i] = &convo
	}
	return conversations, nil
}

// ConversationUpdate is a merge patch; nil fields are left untouched.
type ConversationUpdate struct {
	Name    *string
	DueDate *time.Time
}

// Update applies a partial update and returns the post-update conversation.
func (r *ConversationRepository) Update(ctx context.Context, conversationID string, update ConversationUpdate) (domain.Conversation, error) {
	patch := storage.NewPatch()
	if update.Name != nil {
		patch.SetString("name", *update.Name)
	}
	if update.DueDate != nil {
		patch.SetString("dueDate", formatTime(*update.DueDate))
	}

	raw, err := r.store.Update(ctx, EntityTypeConversation, conversationKey(conversationID), patch)
	if err != nil {
		r.logger.Error("update conversation failed", "conversationId", conversationID, "err", err)
		return domain.Conversation{}, fmt.Errorf("repository: UpdateConversation: %w", err)
	}
	item, err := storage.UnmarshalItem[conversationItem](raw)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: UpdateConversation: %w", err)
	}
	return cleanseConversation(item)
}

// Delete removes a conversation record.
func (r *ConversationRepository) Delete(ctx context.Context, conversationID string) error {
	if err := r.store.Delete(ctx, EntityTypeConversation, conversationKey(conversationID)); err != nil {
		r.logger.Error("delete conversation failed", "conversationId", conversationID, "err", err)
		return fmt.Errorf("repository: DeleteConversation: %w", err)
	}
	return nil
}

// GetByTeamID lists the conversations attached to a team.
func (r *ConversationRepository) GetByTeamID(ctx context.Context, teamID string, limit int32, cursor string) ([]domain.Conversation, string, error) {
	startKey, err := decodeStartKey(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetConversationsByTeamID: %w", err)
	}

	page, err := r.store.Query(ctx, EntityTypeConversation, storage.QueryParams{
		Index:             storage.IndexGSI1,
		PartitionValue:    teamPK(teamID),
		SortKeyPrefix:     prefixConversation,
		ScanForward:       true,
		Limit:             normalizeLimit(limit),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		r.logger.Error("query conversations by team failed", "teamId", teamID, "err", err)
		return nil, "", fmt.Errorf("repository: GetConversationsByTeamID: %w", err)
	}

	items, err := storage.UnmarshalItems[conversationItem](page.Items)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetConversationsByTeamID: %w", err)
	}
	conversations := make([]domain.Conversation, 0, len(items))
	for _, item := range items {
		convo, err := cleanseConversation(item)
		if err != nil {
			return nil, "", fmt.Errorf("repository: GetConversationsByTeamID: %w", err)
		}
		conversations = append(conversations, convo)
	}

	next, err := encodeNextCursor(page.LastKey)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetConversationsByTeamID: %w", err)
	}
	return conversations, next, nil
}
