package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"collab-backend/internal/domain"
	"collab-backend/internal/storage"
)

// organizationUserItem is the raw storage shape of an organization
// membership. gsi1 inverts the key for "my organizations" queries.
type organizationUserItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	EntityType string `dynamodbav:"entityType"`
	GSI1PK     string `dynamodbav:"gsi1pk"`
	GSI1SK     string `dynamodbav:"gsi1sk"`
	OrgID      string `dynamodbav:"organizationId"`
	UserID     string `dynamodbav:"userId"`
	Role       string `dynamodbav:"role"`
}

func cleanseOrganizationUser(item organizationUserItem) domain.OrganizationUserRelationship {
	return domain.OrganizationUserRelationship{
		OrganizationID: item.OrgID,
		UserID:         item.UserID,
		Role:           domain.Role(item.Role),
	}
}

// OrganizationUserRepository persists organization memberships.
type OrganizationUserRepository struct {
	store  entityStore
	logger *slog.Logger
}

func NewOrganizationUserRepository(store entityStore, logger *slog.Logger) (*OrganizationUserRepository, error) {
	if store == nil {
		return nil, errors.New("repository: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrganizationUserRepository{store: store, logger: logger}, nil
}

func organizationUserKey(orgID, userID string) storage.Key {
	return storage.Key{PK: orgPK(orgID), SK: userSK(userID)}
}

// Create writes a new organization membership.
func (r *OrganizationUserRepository) Create(ctx context.Context, rel domain.OrganizationUserRelationship) (domain.OrganizationUserRelationship, error) {
	if rel.Role == "" {
		rel.Role = domain.RoleUser
	}
	item := organizationUserItem{
		PK:         orgPK(rel.OrganizationID),
		SK:         userSK(rel.UserID),
		EntityType: EntityTypeOrganizationUser,
		GSI1PK:     userSK(rel.UserID),
		GSI1SK:     orgPK(rel.OrganizationID),
		OrgID:      rel.OrganizationID,
		UserID:     rel.UserID,
		Role:       string(rel.Role),
	}

	raw, err := storage.MarshalItem(item)
	if err != nil {
		return domain.OrganizationUserRelationship{}, fmt.Errorf("repository: CreateOrganizationUser: %w", err)
	}
	if err := r.store.Create(ctx, EntityTypeOrganizationUser, raw); err != nil {
		r.logger.Error("create organization membership failed", "orgId", rel.OrganizationID, "userId", rel.UserID, "err", err)
		return domain.OrganizationUserRelationship{}, fmt.Errorf("repository: CreateOrganizationUser: %w", err)
	}
	return cleanseOrganizationUser(item), nil
}

// Get reads one organization membership.
func (r *OrganizationUserRepository) Get(ctx context.Context, orgID, userID string) (domain.OrganizationUserRelationship, error) {
	raw, err := r.store.Get(ctx, EntityTypeOrganizationUser, organizationUserKey(orgID, userID))
	if err != nil {
		r.logger.Error("get organization membership failed", "orgId", orgID, "userId", userID, "err", err)
		return domain.OrganizationUserRelationship{}, fmt.Errorf("repository: GetOrganizationUser: %w", err)
	}
	item, err := storage.UnmarshalItem[organizationUserItem](raw)
	if err != nil {
		return domain.OrganizationUserRelationship{}, fmt.Errorf("repository: GetOrganizationUser: %w", err)
	}
	return cleanseOrganizationUser(item), nil
}

// IsMember probes for a membership, converting a miss into false.
func (r *OrganizationUserRepository) IsMember(ctx context.Context, orgID, userID string) (bool, error) {
	_, err := r.Get(ctx, orgID, userID)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UpdateRole changes a member's role.
func (r *OrganizationUserRepository) UpdateRole(ctx context.Context, orgID, userID string, role domain.Role) (domain.OrganizationUserRelationship, error) {
	patch := storage.NewPatch().SetString("role", string(role))

	raw, err := r.store.Update(ctx, EntityTypeOrganizationUser, organizationUserKey(orgID, userID), patch)
	if err != nil {
		r.logger.Error("update organization role failed", "orgId", orgID, "userId", userID, "err", err)
		return domain.OrganizationUserRelationship{}, fmt.Errorf("repository: UpdateOrganizationUserRole: %w", err)
	}
	item, err := storage.UnmarshalItem[organizationUserItem](raw)
	if err != nil {
		return domain.OrganizationUserRelationship{}, fmt.Errorf("repository: UpdateOrganizationUserRole: %w", err)
	}
	return cleanseOrganizationUser(item), nil
}

// Delete removes an organization membership.
func (r *OrganizationUserRepository) Delete(ctx context.Context, orgID, userID string) error {
	if err := r.store.Delete(ctx, EntityTypeOrganizationUser, organizationUserKey(orgID, userID)); err != nil {
		r.logger.Error("delete organization membership failed", "orgId", orgID, "userId", userID, "err", err)
		return fmt.Errorf("repository: DeleteOrganizationUser: %w", err)
	}
	return nil
}

// GetByOrganizationID lists an organization's memberships.
func (r *OrganizationUserRepository) GetByOrganizationID(ctx context.Context, orgID string, limit int32, cursor string) ([]domain.OrganizationUserRelationship, string, error) {
	startKey, err := decodeStartKey(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetOrganizationUsersByOrganizationID: %w", err)
	}

	page, err := r.store.Query(ctx, EntityTypeOrganizationUser, storage.QueryParams{
		PartitionValue:    orgPK(orgID),
		SortKeyPrefix:     prefixUser,
		ScanForward:       true,
		Limit:             normalizeLimit(limit),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		r.logger.Error("query memberships by organization failed", "orgId", orgID, "err", err)
		return nil, "", fmt.Errorf("repository: GetOrganizationUsersByOrganizationID: %w", err)
	}
	return cleanseOrganizationUserPage(page)
}

// GetByUserID lists the organizations a user belongs to.
func (r *OrganizationUserRepository) GetByUserID(ctx context.Context, userID string, limit int32, cursor string) ([]domain.OrganizationUserRelationship, string, error) {
	startKey, err := decodeStartKey(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetOrganizationUsersByUserID: %w", err)
	}

	page, err := r.store.Query(ctx, EntityTypeOrganizationUser, storage.QueryParams{
		Index:             storage.IndexGSI1,
		PartitionValue:    userSK(userID),
		SortKeyPrefix:     prefixOrg,
		ScanForward:       true,
		Limit:             normalizeLimit(limit),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		r.logger.Error("query memberships by user failed", "userId", userID, "err", err)
		return nil, "", fmt.Errorf("repository: GetOrganizationUsersByUserID: %w", err)
	}
	return cleanseOrganizationUserPage(page)
}

func cleanseOrganizationUserPage(page *storage.QueryPage) ([]domain.OrganizationUserRelationship, string, error) {
	items, err := storage.UnmarshalItems[organizationUserItem](page.Items)
	if err != nil {
		return nil, "", fmt.Errorf("repository: cleanse organization membership page: %w", err)
	}
	rels := make([]domain.OrganizationUserRelationship, 0, len(items))
	for _, item := range items {
		rels = append(rels, cleanseOrganizationUser(item))
	}
	next, err := encodeNextCursor(page.LastKey)
	if err != nil {
		return nil, "", fmt.Errorf("repository: cleanse organization membership page: %w", err)
	}
	return rels, next, nil
}
