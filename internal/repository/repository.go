// Package repository implements the per-entity repositories over the shared
// entity store. Each repository owns its entity's raw storage shape and
// strips the envelope before returning domain values.
package repository

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"collab-backend/internal/storage"
)

// entityStore is the slice of the entity-store core consumed by the
// repositories. Defined here for testability.
type entityStore interface {
	Get(ctx context.Context, entityType string, key storage.Key) (map[string]types.AttributeValue, error)
	BatchGet(ctx context.Context, entityType string, keys []storage.Key) ([]map[string]types.AttributeValue, error)
	Create(ctx context.Context, entityType string, item map[string]types.AttributeValue) error
	Delete(ctx context.Context, entityType string, key storage.Key) error
	Update(ctx context.Context, entityType string, key storage.Key, patch *storage.Patch) (map[string]types.AttributeValue, error)
	Query(ctx context.Context, entityType string, params storage.QueryParams) (*storage.QueryPage, error)
}

var _ entityStore = (*storage.Core)(nil)

// defaultPageSize bounds list queries when the caller does not ask for a
// specific limit.
const defaultPageSize = 25

// decodeStartKey turns an opaque cursor back into a store resume position.
// An empty cursor means "start from the beginning".
func decodeStartKey(cursor string) (map[string]string, error) {
	if cursor == "" {
		return nil, nil
	}
	var startKey map[string]string
	if err := storage.DecodeCursor(cursor, &startKey); err != nil {
		return nil, err
	}
	return startKey, nil
}

// encodeNextCursor produces the opaque cursor for the next page, or "" when
// the page was the last one.
func encodeNextCursor(lastKey map[string]string) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}
	return storage.EncodeCursor(lastKey)
}

func normalizeLimit(limit int32) int32 {
	if limit <= 0 {
		return defaultPageSize
	}
	return limit
}
