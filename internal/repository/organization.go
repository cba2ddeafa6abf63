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

// organizationItem is the raw storage shape of an organization.
type organizationItem struct {
	PK          string `dynamodbav:"pk"`
	SK          string `dynamodbav:"sk"`
	EntityType  string `dynamodbav:"entityType"`
	ID          string `dynamodbav:"id"`
	Name        string `dynamodbav:"name"`
	CreatedBy   string `dynamodbav:"createdBy"`
	BillingPlan string `dynamodbav:"billingPlan,omitempty"`
	ImageID     string `dynamodbav:"imageId,omitempty"`
	CreatedAt   string `dynamodbav:"createdAt"`
}

// cleanseOrganization projects the raw item onto the public entity, listing
// exactly the fields callers may see.
func cleanseOrganization(item organizationItem) (domain.Organization, error) {
	createdAt, err := parseTime(item.CreatedAt)
	if err != nil {
		return domain.Organization{}, err
	}
	return domain.Organization{
		ID:          item.ID,
		Name:        item.Name,
		CreatedBy:   item.CreatedBy,
		BillingPlan: item.BillingPlan,
		ImageID:     item.ImageID,
		CreatedAt:   createdAt,
	}, nil
}

// OrganizationRepository persists organizations.
type OrganizationRepository struct {
	store  entityStore
	logger *slog.Logger
}

func NewOrganizationRepository(store entityStore, logger *slog.Logger) (*OrganizationRepository, error) {
	if store == nil {
		return nil, errors.New("repository: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrganizationRepository{store: store, logger: logger}, nil
}

func organizationKey(orgID string) storage.Key {
	return storage.Key{PK: orgPK(orgID), SK: EntityTypeOrganization}
}

// Create writes a new organization, failing with AlreadyExistsError when
// the id is taken.
func (r *OrganizationRepository) Create(ctx context.Context, org domain.Organization) (domain.Organization, error) {
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now()
	}
	item := organizationItem{
		PK:          orgPK(org.ID),
		SK:          EntityTypeOrganization,
		EntityType:  EntityTypeOrganization,
		ID:          org.ID,
		Name:        org.Name,
		CreatedBy:   org.CreatedBy,
		BillingPlan: org.BillingPlan,
		ImageID:     org.ImageID,
		CreatedAt:   formatTime(org.CreatedAt),
	}

	raw, err := storage.MarshalItem(item)
	if err != nil {
		return domain.Organization{}, fmt.Errorf("repository: CreateOrganization: %w", err)
	}
	if err := r.store.Create(ctx, EntityTypeOrganization, raw); err != nil {
		r.logger.Error("create organization failed", "orgId", org.ID, "err", err)
		return domain.Organization{}, fmt.Errorf("repository: CreateOrganization: %w", err)
	}
	return cleanseOrganization(item)
}

// Get reads one organization by id.
func (r *OrganizationRepository) Get(ctx context.Context, orgID string) (domain.Organization, error) {
	raw, err := r.store.Get(ctx, EntityTypeOrganization, organizationKey(orgID))
	if err != nil {
		r.logger.Error("get organization failed", "orgId", orgID, "err", err)
		return domain.Organization{}, fmt.Errorf("repository: GetOrganization: %w", err)
	}
	item, err := storage.UnmarshalItem[organizationItem](raw)
	if err != nil {
		return domain.Organization{}, fmt.Errorf("repository: GetOrganization: %w", err)
	}
	return cleanseOrganization(item)
}

// OrganizationUpdate is a merge patch; nil fields are left untouched.
type OrganizationUpdate struct {
	Name        *string
	BillingPlan *string
	ImageID     *string
}

// Update applies a partial update and returns the post-update organization.
func (r *OrganizationRepository) Update(ctx context.Context, orgID string, update OrganizationUpdate) (domain.Organization, error) {
	patch := storage.NewPatch()
	if update.Name != nil {
		patch.SetString("name", *update.Name)
	}
	if update.BillingPlan != nil {
		patch.SetString("billingPlan", *update.BillingPlan)
	}
	if update.ImageID != nil {
		patch.SetString("imageId", *update.ImageID)
	}

	raw, err := r.store.Update(ctx, EntityTypeOrganization, organizationKey(orgID), patch)
	if err != nil {
		r.logger.Error("update organization failed", "orgId", orgID, "err", err)
		return domain.Organization{}, fmt.Errorf("repository: UpdateOrganization: %w", err)
	}
	item, err := storage.UnmarshalItem[organizationItem](raw)
	if err != nil {
		return domain.Organization{}, fmt.Errorf("repository: UpdateOrganization: %w", err)
	}
	return cleanseOrganization(item)
}

// Delete removes an organization record.
func (r *OrganizationRepository) Delete(ctx context.Context, orgID string) error {
	if err := r.store.Delete(ctx, EntityTypeOrganization, organizationKey(orgID)); err != nil {
		r.logger.Error("delete organization failed", "orgId", orgID, "err", err)
		return fmt.Errorf("repository: DeleteOrganization: %w", err)
	}
	return nil
}
