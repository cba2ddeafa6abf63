package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"collab-backend/internal/domain"
	"collab-backend/internal/storage"
)

// teamUserItem is the raw storage shape of a team membership. gsi1 inverts
// the key for "my teams" queries.
type teamUserItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	EntityType string `dynamodbav:"entityType"`
	GSI1PK     string `dynamodbav:"gsi1pk"`
	GSI1SK     string `dynamodbav:"gsi1sk"`
	TeamID     string `dynamodbav:"teamId"`
	UserID     string `dynamodbav:"userId"`
	Role       string `dynamodbav:"role"`
}

func cleanseTeamUser(item teamUserItem) domain.TeamUserRelationship {
	return domain.TeamUserRelationship{
		TeamID: item.TeamID,
		UserID: item.UserID,
		Role:   domain.Role(item.Role),
	}
}

// TeamUserRepository persists team memberships.
type TeamUserRepository struct {
	store  entityStore
	logger *slog.Logger
}

func NewTeamUserRepository(store entityStore, logger *slog.Logger) (*TeamUserRepository, error) {
	if store == nil {
		return nil, errors.New("repository: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TeamUserRepository{store: store, logger: logger}, nil
}

func teamUserKey(teamID, userID string) storage.Key {
	return storage.Key{PK: teamPK(teamID), SK: userSK(userID)}
}

// Create writes a new team membership.
func (r *TeamUserRepository) Create(ctx context.Context, rel domain.TeamUserRelationship) (domain.TeamUserRelationship, error) {
	if rel.Role == "" {
		rel.Role = domain.RoleUser
	}
	item := teamUserItem{
		PK:         teamPK(rel.TeamID),
		SK:         userSK(rel.UserID),
		EntityType: EntityTypeTeamUser,
		GSI1PK:     userSK(rel.UserID),
		GSI1SK:     teamPK(rel.TeamID),
		TeamID:     rel.TeamID,
		UserID:     rel.UserID,
		Role:       string(rel.Role),
	}

	raw, err := storage.MarshalItem(item)
	if err != nil {
		return domain.TeamUserRelationship{}, fmt.Errorf("repository: CreateTeamUser: %w", err)
	}
	if err := r.store.Create(ctx, EntityTypeTeamUser, raw); err != nil {
		r.logger.Error("create team membership failed", "teamId", rel.TeamID, "userId", rel.UserID, "err", err)
		return domain.TeamUserRelationship{}, fmt.Errorf("repository: CreateTeamUser: %w", err)
	}
	return cleanseTeamUser(item), nil
}

// Get reads one team membership.
func (r *TeamUserRepository) Get(ctx context.Context, teamID, userID string) (domain.TeamUserRelationship, error) {
	raw, err := r.store.Get(ctx, EntityTypeTeamUser, teamUserKey(teamID, userID))
	if err != nil {
		r.logger.Error("get team membership failed", "teamId", teamID, "userId", userID, "err", err)
		return domain.TeamUserRelationship{}, fmt.Errorf("repository: GetTeamUser: %w", err)
	}
	item, err := storage.UnmarshalItem[teamUserItem](raw)
	if err != nil {
		return domain.TeamUserRelationship{}, fmt.Errorf("repository: GetTeamUser: %w", err)
	}
	return cleanseTeamUser(item), nil
}

// IsMember probes for a membership, converting a miss into false.
func (r *TeamUserRepository) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	_, err := r.Get(ctx, teamID, userID)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes a team membership.
func (r *TeamUserRepository) Delete(ctx context.Context, teamID, userID string) error {
	if err := r.store.Delete(ctx, EntityTypeTeamUser, teamUserKey(teamID, userID)); err != nil {
		r.logger.Error("delete team membership failed", "teamId", teamID, "userId", userID, "err", err)
		return fmt.Errorf("repository: DeleteTeamUser: %w", err)
	}
	return nil
}

// GetByTeamID lists a team's memberships.
func (r *TeamUserRepository) GetByTeamID(ctx context.Context, teamID string, limit int32, cursor string) ([]domain.TeamUserRelationship, string, error) {
	startKey, err := decodeStartKey(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetTeamUsersByTeamID: %w", err)
	}

	page, err := r.store.Query(ctx, EntityTypeTeamUser, storage.QueryParams{
		PartitionValue:    teamPK(teamID),
		SortKeyPrefix:     prefixUser,
		ScanForward:       true,
		Limit:             normalizeLimit(limit),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		r.logger.Error("query memberships by team failed", "teamId", teamID, "err", err)
		return nil, "", fmt.Errorf("repository: GetTeamUsersByTeamID: %w", err)
	}
	return cleanseTeamUserPage(page)
}

// GetByUserID lists the teams a user belongs to.
func (r *TeamUserRepository) GetByUserID(ctx context.Context, userID string, limit int32, cursor string) ([]domain.TeamUserRelationship, string, error) {
	startKey, err := decodeStartKey(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetTeamUsersByUserID: %w", err)
	}

	page, err := r.store.Query(ctx, EntityTypeTeamUser, storage.QueryParams{
		Index:             storage.IndexGSI1,
		PartitionValue:    userSK(userID),
		SortKeyPrefix:     prefixTeam,
		ScanForward:       true,
		Limit:             normalizeLimit(limit),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		r.logger.Error("query team memberships by user failed", "userId", userID, "err", err)
		return nil, "", fmt.Errorf("repository: GetTeamUsersByUserID: %w", err)
	}
	return cleanseTeamUserPage(page)
}

func cleanseTeamUserPage(page *storage.QueryPage) ([]domain.TeamUserRelationship, string, error) {
	items, err := storage.UnmarshalItems[teamUserItem](page.Items)
	if err != nil {
		return nil, "", fmt.Errorf("repository: cleanse team membership page: %w", err)
	}
	rels := make([]domain.TeamUserRelationship, 0, len(items))
	for _, item := range items {
		rels = append(rels, cleanseTeamUser(item))
	}
	next, err := encodeNextCursor(page.LastKey)
	if err != nil {
		return nil, "", fmt.Errorf("repository: cleanse team membership page: %w", err)
	}
	return rels, next, nil
}
