package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"collab-backend/internal/domain"
	"collab-backend/internal/storage"
)

// uniquePropertyItem reserves a globally unique property value. The value
// is part of the primary key, so the conditional create IS the uniqueness
// check: a ConditionalCheckFailed means the value is taken.
type uniquePropertyItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	EntityType string `dynamodbav:"entityType"`
	Property   string `dynamodbav:"property"`
	Value      string `dynamodbav:"value"`
	UserID     string `dynamodbav:"userId"`
}

func cleanseUniqueProperty(item uniquePropertyItem) domain.UniqueProperty {
	return domain.UniqueProperty{
		Property: item.Property,
		Value:    item.Value,
		UserID:   item.UserID,
	}
}

// UniquePropertyRepository enforces global uniqueness of user properties
// such as email, phone, and username.
type UniquePropertyRepository struct {
	store  entityStore
	logger *slog.Logger
}

func NewUniquePropertyRepository(store entityStore, logger *slog.Logger) (*UniquePropertyRepository, error) {
	if store == nil {
		return nil, errors.New("repository: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UniquePropertyRepository{store: store, logger: logger}, nil
}

func uniquePropertyKey(property, value string) storage.Key {
	return storage.Key{PK: uniquePropertyPK(property, value), SK: EntityTypeUniqueProperty}
}

// Reserve claims a property value for a user. AlreadyExistsError means the
// value is taken.
func (r *UniquePropertyRepository) Reserve(ctx context.Context, property, value, userID string) (domain.UniqueProperty, error) {
	item := uniquePropertyItem{
		PK:         uniquePropertyPK(property, value),
		SK:         EntityTypeUniqueProperty,
		EntityType: EntityTypeUniqueProperty,
		Property:   property,
		Value:      value,
		UserID:     userID,
	}

	raw, err := storage.MarshalItem(item)
	if err != nil {
		return domain.UniqueProperty{}, fmt.Errorf("repository: ReserveUniqueProperty: %w", err)
	}
	if err := r.store.Create(ctx, EntityTypeUniqueProperty, raw); err != nil {
		r.logger.Error("reserve unique property failed", "property", property, "userId", userID, "err", err)
		return domain.UniqueProperty{}, fmt.Errorf("repository: ReserveUniqueProperty: %w", err)
	}
	return cleanseUniqueProperty(item), nil
}

// Get resolves a property value to its reservation.
func (r *UniquePropertyRepository) Get(ctx context.Context, property, value string) (domain.UniqueProperty, error) {
	raw, err := r.store.Get(ctx, EntityTypeUniqueProperty, uniquePropertyKey(property, value))
	if err != nil {
		r.logger.Error("get unique property failed", "property", property, "err", err)
		return domain.UniqueProperty{}, fmt.Errorf("repository: GetUniqueProperty: %w", err)
	}
	item, err := storage.UnmarshalItem[uniquePropertyItem](raw)
	if err != nil {
		return domain.UniqueProperty{}, fmt.Errorf("repository: GetUniqueProperty: %w", err)
	}
	return cleanseUniqueProperty(item), nil
}

// IsTaken probes whether a property value is reserved.
func (r *UniquePropertyRepository) IsTaken(ctx context.Context, property, value string) (bool, error) {
	_, err := r.Get(ctx, property, value)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Release frees a property value, e.g. after an email change.
func (r *UniquePropertyRepository) Release(ctx context.Context, property, value string) error {
	if err := r.store.Delete(ctx, EntityTypeUniqueProperty, uniquePropertyKey(property, value)); err != nil {
		r.logger.Error("release unique property failed", "property", property, "err", err)
		return fmt.Errorf("repository: ReleaseUniqueProperty: %w", err)
	}
	return nil
}
