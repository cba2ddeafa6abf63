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

// ConversationFilter selects which of a user's conversation memberships a
// query returns, and in what order.
type ConversationFilter string

const (
	// ConversationFilterAll returns every membership, most recent first.
	ConversationFilterAll ConversationFilter = "all"
	// ConversationFilterFriend returns friend memberships, most recent first.
	ConversationFilterFriend ConversationFilter = "friend"
	// ConversationFilterGroup returns group memberships, most recent first.
	ConversationFilterGroup ConversationFilter = "group"
	// ConversationFilterMeeting returns meeting memberships, most recent first.
	ConversationFilterMeeting ConversationFilter = "meeting"
	// ConversationFilterMeetingDueDate returns meeting memberships ordered
	// by due date, soonest first.
	ConversationFilterMeetingDueDate ConversationFilter = "meeting_due_date"
)

// filterRoute binds a filter to the index, sort-key condition, and scan
// direction that serve it. Adding a filter is a data change here plus a row
// in the routing test, not new branching logic.
type filterRoute struct {
	index         string
	sortKeyPrefix string
	scanForward   bool
}

var conversationFilterRoutes = map[ConversationFilter]filterRoute{
	ConversationFilterAll:            {index: storage.IndexGSI1, sortKeyPrefix: prefixTimeSort, scanForward: false},
	ConversationFilterFriend:         {index: storage.IndexGSI2, sortKeyPrefix: conversationTypeSortPrefix(domain.ConversationTypeFriend), scanForward: false},
	ConversationFilterGroup:          {index: storage.IndexGSI2, sortKeyPrefix: conversationTypeSortPrefix(domain.ConversationTypeGroup), scanForward: false},
	ConversationFilterMeeting:        {index: storage.IndexGSI2, sortKeyPrefix: conversationTypeSortPrefix(domain.ConversationTypeMeeting), scanForward: false},
	ConversationFilterMeetingDueDate: {index: storage.IndexGSI3, sortKeyPrefix: prefixDueSort, scanForward: true},
}

// conversationUserItem is the raw storage shape of a conversation
// membership. It carries three independent index projections per record:
// gsi1 orders a user's memberships by recency, gsi2 by recency within one
// conversation type, gsi3 by meeting due date. All sort keys derived from
// updatedAt or dueDate are recomputed in the same write that changes those
// fields; a stale projection silently breaks its query pattern.
type conversationUserItem struct {
	PK             string   `dynamodbav:"pk"`
	SK             string   `dynamodbav:"sk"`
	EntityType     string   `dynamodbav:"entityType"`
	GSI1PK         string   `dynamodbav:"gsi1pk"`
	GSI1SK         string   `dynamodbav:"gsi1sk"`
	GSI2PK         string   `dynamodbav:"gsi2pk"`
	GSI2SK         string   `dynamodbav:"gsi2sk"`
	GSI3PK         string   `dynamodbav:"gsi3pk,omitempty"`
	GSI3SK         string   `dynamodbav:"gsi3sk,omitempty"`
	ConversationID string   `dynamodbav:"conversationId"`
	UserID         string   `dynamodbav:"userId"`
	Type           string   `dynamodbav:"type"`
	Role           string   `dynamodbav:"role"`
	Muted          bool     `dynamodbav:"muted"`
	UpdatedAt      string   `dynamodbav:"updatedAt"`
	UnreadMessages []string `dynamodbav:"unreadMessages,stringset,omitempty"`
	DueDate        string   `dynamodbav:"dueDate,omitempty"`
}

func cleanseConversationUser(item conversationUserItem) (domain.ConversationUserRelationship, error) {
	updatedAt, err := parseTime(item.UpdatedAt)
	if err != nil {
		return domain.ConversationUserRelationship{}, err
	}
	rel := domain.ConversationUserRelationship{
		ConversationID: item.ConversationID,
		UserID:         item.UserID,
		Type:           domain.ConversationType(item.Type),
		Role:           domain.Role(item.Role),
		Muted:          item.Muted,
		UpdatedAt:      updatedAt,
		UnreadMessages: item.UnreadMessages,
	}
	if item.DueDate != "" {
		due, err := parseTime(item.DueDate)
		if err != nil {
			return domain.ConversationUserRelationship{}, err
		}
		rel.DueDate = &due
	}
	return rel, nil
}

// ConversationUserRepository persists conversation memberships.
type ConversationUserRepository struct {
	store  entityStore
	logger *slog.Logger
}

func NewConversationUserRepository(store entityStore, logger *slog.Logger) (*ConversationUserRepository, error) {
	if store == nil {
		return nil, errors.New("repository: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationUserRepository{store: store, logger: logger}, nil
}

func conversationUserKey(conversationID, userID string) storage.Key {
	return storage.Key{PK: conversationPK(conversationID), SK: userSK(userID)}
}

// Create writes a new membership with all of its index projections set in
// one conditional write.
func (r *ConversationUserRepository) Create(ctx context.Context, rel domain.ConversationUserRelationship) (domain.ConversationUserRelationship, error) {
	conversationType, ok := domain.ConversationTypeOf(rel.ConversationID)
	if !ok {
		return domain.ConversationUserRelationship{}, fmt.Errorf("repository: CreateConversationUser: conversation id %q has no variant prefix", rel.ConversationID)
	}
	rel.Type = conversationType
	rel.UpdatedAt = time.Now()
	if rel.Role == "" {
		rel.Role = domain.RoleUser
	}

	item := conversationUserItem{
		PK:             conversationPK(rel.ConversationID),
		SK:             userSK(rel.UserID),
		EntityType:     EntityTypeConversationUser,
		GSI1PK:         userSK(rel.UserID),
		GSI1SK:         timeSortKey(rel.UpdatedAt),
		GSI2PK:         userSK(rel.UserID),
		GSI2SK:         typeTimeSortKey(rel.Type, rel.UpdatedAt),
		ConversationID: rel.ConversationID,
		UserID:         rel.UserID,
		Type:           string(rel.Type),
		Role:           string(rel.Role),
		Muted:          rel.Muted,
		UpdatedAt:      formatTime(rel.UpdatedAt),
		UnreadMessages: rel.UnreadMessages,
	}
	if rel.Type == domain.ConversationTypeMeeting && rel.DueDate != nil {
		item.GSI3PK = userSK(rel.UserID)
		item.GSI3SK = dueSortKey(*rel.DueDate)
		item.DueDate = formatTime(*rel.DueDate)
	}

	raw, err := storage.MarshalItem(item)
	if err != nil {
		return domain.ConversationUserRelationship{}, fmt.Errorf("repository: CreateConversationUser: %w", err)
	}
	if err := r.store.Create(ctx, EntityTypeConversationUser, raw); err != nil {
		r.logger.Error("create conversation membership failed", "conversationId", rel.ConversationID, "userId", rel.UserID, "err", err)
		return domain.ConversationUserRelationship{}, fmt.Errorf("repository: CreateConversationUser: %w", err)
	}
	return cleanseConversationUser(item)
}

// Get reads one membership.
func (r *ConversationUserRepository) Get(ctx context.Context, conversationID, userID string) (domain.ConversationUserRelationship, error) {
	raw, err := r.store.Get(ctx, EntityTypeConversationUser, conversationUserKey(conversationID, userID))
	if err != nil {
		r.logger.Error("get conversation membership failed", "conversationId", conversationID, "userId", userID, "err", err)
		return domain.ConversationUserRelationship{}, fmt.Errorf("repository: GetConversationUser: %w", err)
	}
	item, err := storage.UnmarshalItem[conversationUserItem](raw)
	if err != nil {
		return domain.ConversationUserRelationship{}, fmt.Errorf("repository: GetConversationUser: %w", err)
	}
	return cleanseConversationUser(item)
}

// IsMember probes for a membership, converting a point-read miss into
// false rather than an error.
func (r *ConversationUserRepository) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	_, err := r.Get(ctx, conversationID, userID)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes a membership; the single item delete also removes it from
// every index projection.
func (r *ConversationUserRepository) Delete(ctx context.Context, conversationID, userID string) error {
	if err := r.store.Delete(ctx, EntityTypeConversationUser, conversationUserKey(conversationID, userID)); err != nil {
		r.logger.Error("delete conversation membership failed", "conversationId", conversationID, "userId", userID, "err", err)
		return fmt.Errorf("repository: DeleteConversationUser: %w", err)
	}
	return nil
}

// GetByConversationID lists a conversation's memberships.
func (r *ConversationUserRepository) GetByConversationID(ctx context.Context, conversationID string, limit int32, cursor string) ([]domain.ConversationUserRelationship, string, error) {
	startKey, err := decodeStartKey(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetConversationUsersByConversationID: %w", err)
	}

	page, err := r.store.Query(ctx, EntityTypeConversationUser, storage.QueryParams{
		PartitionValue:    conversationPK(conversationID),
		SortKeyPrefix:     prefixUser,
		ScanForward:       true,
		Limit:             normalizeLimit(limit),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		r.logger.Error("query memberships by conversation failed", "conversationId", conversationID, "err", err)
		return nil, "", fmt.Errorf("repository: GetConversationUsersByConversationID: %w", err)
	}
	return r.cleansePage(page)
}

// GetByUserID lists a user's memberships according to filter. Each filter
// routes to its own index and scan direction; see conversationFilterRoutes.
func (r *ConversationUserRepository) GetByUserID(ctx context.Context, userID string, filter ConversationFilter, limit int32, cursor string) ([]domain.ConversationUserRelationship, string, error) {
	route, ok := conversationFilterRoutes[filter]
	if !ok {
		return nil, "", fmt.Errorf("repository: GetConversationUsersByUserID: unknown filter %q", filter)
	}
	startKey, err := decodeStartKey(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetConversationUsersByUserID: %w", err)
	}

	page, err := r.store.Query(ctx, EntityTypeConversationUser, storage.QueryParams{
		Index:             route.index,
		PartitionValue:    userSK(userID),
		SortKeyPrefix:     route.sortKeyPrefix,
		ScanForward:       route.scanForward,
		Limit:             normalizeLimit(limit),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		r.logger.Error("query memberships by user failed", "userId", userID, "filter", string(filter), "err", err)
		return nil, "", fmt.Errorf("repository: GetConversationUsersByUserID: %w", err)
	}
	return r.cleansePage(page)
}

func (r *ConversationUserRepository) cleansePage(page *storage.QueryPage) ([]domain.ConversationUserRelationship, string, error) {
	items, err := storage.UnmarshalItems[conversationUserItem](page.Items)
	if err != nil {
		return nil, "", fmt.Errorf("repository: cleanse membership page: %w", err)
	}
	rels := make([]domain.ConversationUserRelationship, 0, len(items))
	for _, item := range items {
		rel, err := cleanseConversationUser(item)
		if err != nil {
			return nil, "", fmt.Errorf("repository: cleanse membership page: %w", err)
		}
		rels = append(rels, rel)
	}
	next, err := encodeNextCursor(page.LastKey)
	if err != nil {
		return nil, "", fmt.Errorf("repository: cleanse membership page: %w", err)
	}
	return rels, next, nil
}

// AddUnreadMessage unions one message id into the membership's unread set.
// When refreshRecency is true (a new inbound message, as opposed to the
// sender's own echo) updatedAt and the recency sort keys are recomputed in
// the same write, keeping every projection consistent. The underlying set
// union makes redelivered mutations converge.
func (r *ConversationUserRepository) AddUnreadMessage(ctx context.Context, conversationID, userID, messageID string, refreshRecency bool) (domain.ConversationUserRelationship, error) {
	patch := storage.NewPatch().AddToStringSet("unreadMessages", messageID)
	if refreshRecency {
		conversationType, ok := domain.ConversationTypeOf(conversationID)
		if !ok {
			return domain.ConversationUserRelationship{}, fmt.Errorf("repository: AddUnreadMessage: conversation id %q has no variant prefix", conversationID)
		}
		now := time.Now()
		patch.SetString("updatedAt", formatTime(now)).
			SetString(storage.AttrGSI1SK, timeSortKey(now)).
			SetString(storage.AttrGSI2SK, typeTimeSortKey(conversationType, now))
	}

	raw, err := r.store.Update(ctx, EntityTypeConversationUser, conversationUserKey(conversationID, userID), patch)
	if err != nil {
		r.logger.Error("add unread message failed", "conversationId", conversationID, "userId", userID, "messageId", messageID, "err", err)
		return domain.ConversationUserRelationship{}, fmt.Errorf("repository: AddUnreadMessage: %w", err)
	}
	item, err := storage.UnmarshalItem[conversationUserItem](raw)
	if err != nil {
		return domain.ConversationUserRelationship{}, fmt.Errorf("repository: AddUnreadMessage: %w", err)
	}
	return cleanseConversationUser(item)
}

// RemoveUnreadMessage removes one message id from the unread set. Removing
// an id that is not present is a no-op.
func (r *ConversationUserRepository) RemoveUnreadMessage(ctx context.Context, conversationID, userID, messageID string) (domain.ConversationUserRelationship, error) {
	patch := storage.NewPatch().DeleteFromStringSet("unreadMessages", messageID)

	raw, err := r.store.Update(ctx, EntityTypeConversationUser, conversationUserKey(conversationID, userID), patch)
	if err != nil {
		r.logger.Error("remove unread message failed", "conversationId", conversationID, "userId", userID, "messageId", messageID, "err", err)
		return domain.ConversationUserRelationship{}, fmt.Errorf("repository: RemoveUnreadMessage: %w", err)
	}
	item, err := storage.UnmarshalItem[conversationUserItem](raw)
	if err != nil {
		return domain.ConversationUserRelationship{}, fmt.Errorf("repository: RemoveUnreadMessage: %w", err)
	}
	return cleanseConversationUser(item)
}

// SetMuted toggles the membership's mute flag.
func (r *ConversationUserRepository) SetMuted(ctx context.Context, conversationID, userID string, muted bool) (domain.ConversationUserRelationship, error) {
	patch := storage.NewPatch().SetBool("muted", muted)

	raw, err := r.store.Update(ctx, EntityTypeConversationUser, conversationUserKey(conversationID, userID), patch)
	if err != nil {
		r.logger.Error("set muted failed", "conversationId", conversationID, "userId", userID, "err", err)
		return domain.ConversationUserRelationship{}, fmt.Errorf("repository: SetMuted: %w", err)
	}
	item, err := storage.UnmarshalItem[conversationUserItem](raw)
	if err != nil {
		return domain.ConversationUserRelationship{}, fmt.Errorf("repository: SetMuted: %w", err)
	}
	return cleanseConversationUser(item)
}

// UpdateDueDate changes a meeting membership's due date, recomputing the
// due-date sort key in the same write.
func (r *ConversationUserRepository) UpdateDueDate(ctx context.Context, conversationID, userID string, dueDate time.Time) (domain.ConversationUserRelationship, error) {
	patch := storage.NewPatch().
		SetString("dueDate", formatTime(dueDate)).
		SetString(storage.AttrGSI3PK, userSK(userID)).
		SetString(storage.AttrGSI3SK, dueSortKey(dueDate))

	raw, err := r.store.Update(ctx, EntityTypeConversationUser, conversationUserKey(conversationID, userID), patch)
	if err != nil {
		r.logger.Error("update due date failed", "conversationId", conversationID, "userId", userID, "err", err)
		return domain.ConversationUserRelationship{}, fmt.Errorf("repository: UpdateDueDate: %w", err)
	}
	item, err := storage.UnmarshalItem[conversationUserItem](raw)
	if err != nil {
		return domain.ConversationUserRelationship{}, fmt.Errorf("repository: UpdateDueDate: %w", err)
	}
	return cleanseConversationUser(item)
}
