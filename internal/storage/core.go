// Package storage implements the single-table entity store: point reads,
// order-preserving batch reads, conditional creates, partial updates, and
// index-backed range queries over one DynamoDB table shared by every entity
// kind. Repositories own their entities' raw item shapes; this package owns
// the envelope (keys, index projections, type discriminator) conventions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Envelope attribute names shared by every item in the table.
const (
	AttrPK         = "pk"
	AttrSK         = "sk"
	AttrEntityType = "entityType"
	AttrGSI1PK     = "gsi1pk"
	AttrGSI1SK     = "gsi1sk"
	AttrGSI2PK     = "gsi2pk"
	AttrGSI2SK     = "gsi2sk"
	AttrGSI3PK     = "gsi3pk"
	AttrGSI3SK     = "gsi3sk"
)

// Secondary index names.
const (
	IndexGSI1 = "gsi1"
	IndexGSI2 = "gsi2"
	IndexGSI3 = "gsi3"
)

const batchGetMaxKeys = 100

// Key addresses one item by partition and sort key.
type Key struct {
	PK string
	SK string
}

// dynamoAPI is the minimal DynamoDB interface required by Core.
// Defined here for testability.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// Core wraps the shared table with the generic entity-store operations.
// It performs no retries; transport errors are logged with the operation
// name and inputs, then returned unchanged for the caller to handle.
type Core struct {
	api    dynamoAPI
	table  string
	logger *slog.Logger
}

// New creates a Core over the given table.
func New(api dynamoAPI, table string, logger *slog.Logger) (*Core, error) {
	if api == nil {
		return nil, errors.New("storage: api must not be nil")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("storage: table name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{api: api, table: table, logger: logger}, nil
}

// TableName returns the backing table name.
func (c *Core) TableName() string {
	return c.table
}

func keyAttrs(key Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: key.PK},
		AttrSK: &types.AttributeValueMemberS{Value: key.SK},
	}
}

// Get performs a point read. A missing item fails with NotFoundError naming
// entityType.
func (c *Core) Get(ctx context.Context, entityType string, key Key) (map[string]types.AttributeValue, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key:       keyAttrs(key),
	})
	if err != nil {
		c.logger.Error("get item failed", "entityType", entityType, "pk", key.PK, "sk", key.SK, "err", err)
		return nil, fmt.Errorf("storage: Get %s: %w", entityType, err)
	}
	if len(out.Item) == 0 {
		return nil, &NotFoundError{EntityType: entityType}
	}
	return out.Item, nil
}

// BatchGet reads up to many items and returns them in the order of the
// input keys, compensating for DynamoDB returning batch results unordered.
// Missing items yield nil entries at their positions. Keys the store leaves
// unprocessed are treated as misses; retrying them is the caller's concern.
func (c *Core) BatchGet(ctx context.Context, entityType string, keys []Key) ([]map[string]types.AttributeValue, error) {
	found := make(map[Key]map[string]types.AttributeValue, len(keys))

	// Dedupe so repeated input keys do not produce an invalid batch request.
	unique := make([]Key, 0, len(keys))
	seen := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}

	for start := 0; start < len(unique); start += batchGetMaxKeys {
		end := start + batchGetMaxKeys
		if end > len(unique) {
			end = len(unique)
		}
		chunk := unique[start:end]

		reqKeys := make([]map[string]types.AttributeValue, 0, len(chunk))
		for _, k := range chunk {
			reqKeys = append(reqKeys, keyAttrs(k))
		}

		out, err := c.api.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				c.table: {Keys: reqKeys},
			},
		})
		if err != nil {
			c.logger.Error("batch get failed", "entityType", entityType, "keyCount", len(chunk), "err", err)
			return nil, fmt.Errorf("storage: BatchGet %s: %w", entityType, err)
		}

		for _, item := range out.Responses[c.table] {
			k, err := itemKey(item)
			if err != nil {
				c.logger.Error("batch get returned unkeyed item", "entityType", entityType, "err", err)
				return nil, fmt.Errorf("storage: BatchGet %s: %w", entityType, err)
			}
			found[k] = item
		}
		if unprocessed := out.UnprocessedKeys[c.table]; len(unprocessed.Keys) > 0 {
			c.logger.Warn("batch get left keys unprocessed", "entityType", entityType, "count", len(unprocessed.Keys))
		}
	}

	ordered := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		ordered[i] = found[k]
	}
	return ordered, nil
}

// Create writes a new item, failing with AlreadyExistsError if an item with
// the same key is present. The "attribute not exists" condition is the only
// concurrency-control mechanism in this layer; creation races on one key
// resolve to exactly one winner.
func (c *Core) Create(ctx context.Context, entityType string, item map[string]types.AttributeValue) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return &AlreadyExistsError{EntityType: entityType}
		}
		c.logger.Error("conditional create failed", "entityType", entityType, "err", err)
		return fmt.Errorf("storage: Create %s: %w", entityType, err)
	}
	return nil
}

// Delete removes an item unconditionally. Deleting an absent item is not an
// error.
func (c *Core) Delete(ctx context.Context, entityType string, key Key) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.table),
		Key:       keyAttrs(key),
	})
	if err != nil {
		c.logger.Error("delete item failed", "entityType", entityType, "pk", key.PK, "sk", key.SK, "err", err)
		return fmt.Errorf("storage: Delete %s: %w", entityType, err)
	}
	return nil
}

// Update applies a partial update and returns the post-update item.
func (c *Core) Update(ctx context.Context, entityType string, key Key, patch *Patch) (map[string]types.AttributeValue, error) {
	expr, names, values, err := patch.Build()
	if err != nil {
		return nil, fmt.Errorf("storage: Update %s: %w", entityType, err)
	}

	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.table),
		Key:                       keyAttrs(key),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		c.logger.Error("update item failed", "entityType", entityType, "pk", key.PK, "sk", key.SK, "err", err)
		return nil, fmt.Errorf("storage: Update %s: %w", entityType, err)
	}
	return out.Attributes, nil
}

// QueryParams describes one index-backed range query.
type QueryParams struct {
	// Index selects a secondary index; empty means the primary key.
	Index string
	// PartitionValue is the exact partition-key value.
	PartitionValue string
	// SortKeyPrefix restricts results with begins_with when non-empty.
	SortKeyPrefix string
	// ScanForward orders results ascending by sort key when true.
	ScanForward bool
	Limit       int32
	// ExclusiveStartKey resumes a previous page. All key attributes in this
	// table are strings, so the resume position is a flat string map.
	ExclusiveStartKey map[string]string
}

// QueryPage is one page of query results. LastKey is set only when more
// results exist beyond the requested limit.
type QueryPage struct {
	Items   []map[string]types.AttributeValue
	LastKey map[string]string
}

// indexKeyAttrs returns the partition and sort attribute names addressed by
// an index.
func indexKeyAttrs(index string) (string, string, error) {
	switch index {
	case "":
		return AttrPK, AttrSK, nil
	case IndexGSI1:
		return AttrGSI1PK, AttrGSI1SK, nil
	case IndexGSI2:
		return AttrGSI2PK, AttrGSI2SK, nil
	case IndexGSI3:
		return AttrGSI3PK, AttrGSI3SK, nil
	default:
		return "", "", fmt.Errorf("storage: unknown index %q", index)
	}
}

// Query runs a range query against the primary key or a secondary index.
func (c *Core) Query(ctx context.Context, entityType string, params QueryParams) (*QueryPage, error) {
	pkAttr, skAttr, err := indexKeyAttrs(params.Index)
	if err != nil {
		return nil, err
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": pkAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: params.PartitionValue},
		},
		ScanIndexForward: aws.Bool(params.ScanForward),
	}
	if params.Index != "" {
		in.IndexName = aws.String(params.Index)
	}
	if params.SortKeyPrefix != "" {
		in.KeyConditionExpression = aws.String("#pk = :pk AND begins_with(#sk, :skPrefix)")
		in.ExpressionAttributeNames["#sk"] = skAttr
		in.ExpressionAttributeValues[":skPrefix"] = &types.AttributeValueMemberS{Value: params.SortKeyPrefix}
	}
	if params.Limit > 0 {
		in.Limit = aws.Int32(params.Limit)
	}
	if len(params.ExclusiveStartKey) > 0 {
		start := make(map[string]types.AttributeValue, len(params.ExclusiveStartKey))
		for name, value := range params.ExclusiveStartKey {
			start[name] = &types.AttributeValueMemberS{Value: value}
		}
		in.ExclusiveStartKey = start
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		c.logger.Error("query failed", "entityType", entityType, "index", params.Index, "partition", params.PartitionValue, "err", err)
		return nil, fmt.Errorf("storage: Query %s: %w", entityType, err)
	}

	page := &QueryPage{Items: out.Items}
	if len(out.LastEvaluatedKey) > 0 {
		page.LastKey = make(map[string]string, len(out.LastEvaluatedKey))
		for name, value := range out.LastEvaluatedKey {
			s, ok := value.(*types.AttributeValueMemberS)
			if !ok {
				return nil, fmt.Errorf("storage: Query %s: non-string key attribute %q", entityType, name)
			}
			page.LastKey[name] = s.Value
		}
	}
	return page, nil
}

// MarshalItem converts a raw item struct into its attribute map.
func MarshalItem(v any) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal item: %w", err)
	}
	return item, nil
}

// UnmarshalItem converts an attribute map into a raw item struct.
func UnmarshalItem[T any](item map[string]types.AttributeValue) (T, error) {
	var v T
	if err := attributevalue.UnmarshalMap(item, &v); err != nil {
		return v, fmt.Errorf("storage: unmarshal item: %w", err)
	}
	return v, nil
}

// UnmarshalItems converts a slice of attribute maps, preserving order.
func UnmarshalItems[T any](items []map[string]types.AttributeValue) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		v, err := UnmarshalItem[T](item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func itemKey(item map[string]types.AttributeValue) (Key, error) {
	pk, ok := item[AttrPK].(*types.AttributeValueMemberS)
	if !ok {
		return Key{}, errors.New("storage: item has no string pk")
	}
	sk, ok := item[AttrSK].(*types.AttributeValueMemberS)
	if !ok {
		return Key{}, errors.New("storage: item has no string sk")
	}
	return Key{PK: pk.Value, SK: sk.Value}, nil
}
