package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	getOut      *dynamodb.GetItemOutput
	getErr      error
	putErr      error
	deleteErr   error
	updateOut   *dynamodb.UpdateItemOutput
	updateErr   error
	queryOut    *dynamodb.QueryOutput
	queryErr    error
	batchOut    *dynamodb.BatchGetItemOutput
	batchErr    error
	lastGetIn   *dynamodb.GetItemInput
	lastPutIn   *dynamodb.PutItemInput
	lastDelIn   *dynamodb.DeleteItemInput
	lastUpdIn   *dynamodb.UpdateItemInput
	lastQueryIn *dynamodb.QueryInput
	lastBatchIn *dynamodb.BatchGetItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetIn = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutIn = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.lastDelIn = in
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdIn = in
	return f.updateOut, f.updateErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.lastBatchIn = in
	return f.batchOut, f.batchErr
}

func mustNewCore(t *testing.T, db *fakeDynamo) *Core {
	t.Helper()
	c, err := New(db, "test-table", nil)
	require.NoError(t, err)
	return c
}

func stringItem(pairs ...string) map[string]types.AttributeValue {
	item := make(map[string]types.AttributeValue, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		item[pairs[i]] = &types.AttributeValueMemberS{Value: pairs[i+1]}
	}
	return item
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, "t", nil)
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, "  ", nil)
	require.Error(t, err)
}

func TestGet_HappyPath(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: stringItem(AttrPK, "ORG#o1", AttrSK, "ORGANIZATION")}}
	c := mustNewCore(t, db)

	item, err := c.Get(context.Background(), "ORGANIZATION", Key{PK: "ORG#o1", SK: "ORGANIZATION"})
	require.NoError(t, err)
	require.Equal(t, "ORG#o1", item[AttrPK].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "ORG#o1", db.lastGetIn.Key[AttrPK].(*types.AttributeValueMemberS).Value)
}

func TestGet_Missing(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewCore(t, db)

	_, err := c.Get(context.Background(), "ORGANIZATION", Key{PK: "ORG#o1", SK: "ORGANIZATION"})
	require.Error(t, err)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "ORGANIZATION", nf.EntityType)
}

func TestGet_TransportError(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("boom")}
	c := mustNewCore(t, db)

	_, err := c.Get(context.Background(), "TEAM", Key{PK: "TEAM#t1", SK: "TEAM"})
	require.Error(t, err)
	require.False(t, IsNotFound(err))
}

func TestCreate_SetsCondition(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewCore(t, db)

	err := c.Create(context.Background(), "TEAM", stringItem(AttrPK, "TEAM#t1", AttrSK, "TEAM"))
	require.NoError(t, err)
	require.Equal(t, "attribute_not_exists(pk)", aws.ToString(db.lastPutIn.ConditionExpression))
}

func TestCreate_ConditionFailedMapsToAlreadyExists(t *testing.T) {
	db := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{}}
	c := mustNewCore(t, db)

	err := c.Create(context.Background(), "UNIQUE_PROPERTY", stringItem(AttrPK, "UNIQUE#EMAIL#a@b.c", AttrSK, "UNIQUE_PROPERTY"))
	require.Error(t, err)
	require.True(t, IsAlreadyExists(err))
}

func TestCreate_TransportErrorIsNotAlreadyExists(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("throttled")}
	c := mustNewCore(t, db)

	err := c.Create(context.Background(), "TEAM", stringItem(AttrPK, "TEAM#t1", AttrSK, "TEAM"))
	require.Error(t, err)
	require.False(t, IsAlreadyExists(err))
}

func TestBatchGet_PreservesInputOrder(t *testing.T) {
	// The store returns items shuffled and omits k2 entirely.
	k1 := Key{PK: "CONVO#group-a", SK: "CONVERSATION"}
	k2 := Key{PK: "CONVO#group-b", SK: "CONVERSATION"}
	k3 := Key{PK: "CONVO#group-c", SK: "CONVERSATION"}
	db := &fakeDynamo{
		batchOut: &dynamodb.BatchGetItemOutput{
			Responses: map[string][]map[string]types.AttributeValue{
				"test-table": {
					stringItem(AttrPK, k3.PK, AttrSK, k3.SK, "id", "group-c"),
					stringItem(AttrPK, k1.PK, AttrSK, k1.SK, "id", "group-a"),
				},
			},
		},
	}
	c := mustNewCore(t, db)

	items, err := c.BatchGet(context.Background(), "CONVERSATION", []Key{k1, k2, k3})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, "group-a", items[0]["id"].(*types.AttributeValueMemberS).Value)
	require.Nil(t, items[1])
	require.Equal(t, "group-c", items[2]["id"].(*types.AttributeValueMemberS).Value)
}

func TestBatchGet_DeduplicatesRequestKeys(t *testing.T) {
	k := Key{PK: "ORG#o1", SK: "ORGANIZATION"}
	db := &fakeDynamo{
		batchOut: &dynamodb.BatchGetItemOutput{
			Responses: map[string][]map[string]types.AttributeValue{
				"test-table": {stringItem(AttrPK, k.PK, AttrSK, k.SK)},
			},
		},
	}
	c := mustNewCore(t, db)

	items, err := c.BatchGet(context.Background(), "ORGANIZATION", []Key{k, k})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NotNil(t, items[0])
	require.NotNil(t, items[1])
	require.Len(t, db.lastBatchIn.RequestItems["test-table"].Keys, 1)
}

func TestQuery_PrimaryKeyWithPrefix(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	c := mustNewCore(t, db)

	_, err := c.Query(context.Background(), "CONVERSATION_USER_RELATIONSHIP", QueryParams{
		PartitionValue: "CONVO#group-a",
		SortKeyPrefix:  "USER#",
		ScanForward:    true,
		Limit:          25,
	})
	require.NoError(t, err)
	require.Nil(t, db.lastQueryIn.IndexName)
	require.Equal(t, "#pk = :pk AND begins_with(#sk, :skPrefix)", aws.ToString(db.lastQueryIn.KeyConditionExpression))
	require.Equal(t, AttrPK, db.lastQueryIn.ExpressionAttributeNames["#pk"])
	require.Equal(t, AttrSK, db.lastQueryIn.ExpressionAttributeNames["#sk"])
	require.True(t, aws.ToBool(db.lastQueryIn.ScanIndexForward))
	require.Equal(t, int32(25), aws.ToInt32(db.lastQueryIn.Limit))
}

func TestQuery_SecondaryIndexAttrs(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	c := mustNewCore(t, db)

	_, err := c.Query(context.Background(), "CONVERSATION_USER_RELATIONSHIP", QueryParams{
		Index:          IndexGSI2,
		PartitionValue: "USER#u1",
		SortKeyPrefix:  "FRIEND#",
		ScanForward:    false,
	})
	require.NoError(t, err)
	require.Equal(t, IndexGSI2, aws.ToString(db.lastQueryIn.IndexName))
	require.Equal(t, AttrGSI2PK, db.lastQueryIn.ExpressionAttributeNames["#pk"])
	require.Equal(t, AttrGSI2SK, db.lastQueryIn.ExpressionAttributeNames["#sk"])
	require.False(t, aws.ToBool(db.lastQueryIn.ScanIndexForward))
}

func TestQuery_UnknownIndex(t *testing.T) {
	c := mustNewCore(t, &fakeDynamo{})
	_, err := c.Query(context.Background(), "TEAM", QueryParams{Index: "gsi9", PartitionValue: "x"})
	require.Error(t, err)
}

func TestQuery_PaginationKeys(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{
		Items:            []map[string]types.AttributeValue{stringItem(AttrPK, "TEAM#t1", AttrSK, "TEAM")},
		LastEvaluatedKey: stringItem(AttrPK, "TEAM#t1", AttrSK, "TEAM", AttrGSI1PK, "ORG#o1", AttrGSI1SK, "TEAM#t1"),
	}}
	c := mustNewCore(t, db)

	page, err := c.Query(context.Background(), "TEAM", QueryParams{
		Index:             IndexGSI1,
		PartitionValue:    "ORG#o1",
		ExclusiveStartKey: map[string]string{AttrPK: "TEAM#t0", AttrSK: "TEAM", AttrGSI1PK: "ORG#o1", AttrGSI1SK: "TEAM#t0"},
	})
	require.NoError(t, err)
	require.Equal(t, "TEAM#t0", db.lastQueryIn.ExclusiveStartKey[AttrPK].(*types.AttributeValueMemberS).Value)
	require.Equal(t, map[string]string{AttrPK: "TEAM#t1", AttrSK: "TEAM", AttrGSI1PK: "ORG#o1", AttrGSI1SK: "TEAM#t1"}, page.LastKey)
}

func TestQuery_NoMoreResultsMeansNoLastKey(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{}}}
	c := mustNewCore(t, db)

	page, err := c.Query(context.Background(), "TEAM", QueryParams{PartitionValue: "ORG#o1"})
	require.NoError(t, err)
	require.Nil(t, page.LastKey)
}

func TestUpdate_ReturnsPostUpdateItem(t *testing.T) {
	db := &fakeDynamo{updateOut: &dynamodb.UpdateItemOutput{
		Attributes: stringItem(AttrPK, "ORG#o1", AttrSK, "ORGANIZATION", "name", "renamed"),
	}}
	c := mustNewCore(t, db)

	item, err := c.Update(context.Background(), "ORGANIZATION", Key{PK: "ORG#o1", SK: "ORGANIZATION"}, NewPatch().SetString("name", "renamed"))
	require.NoError(t, err)
	require.Equal(t, "renamed", item["name"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, types.ReturnValueAllNew, db.lastUpdIn.ReturnValues)
	require.Equal(t, "SET #p0 = :v0", aws.ToString(db.lastUpdIn.UpdateExpression))
}

func TestUpdate_EmptyPatch(t *testing.T) {
	c := mustNewCore(t, &fakeDynamo{})
	_, err := c.Update(context.Background(), "ORGANIZATION", Key{PK: "ORG#o1", SK: "ORGANIZATION"}, NewPatch())
	require.Error(t, err)
}

func TestDelete(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewCore(t, db)

	require.NoError(t, c.Delete(context.Background(), "TEAM", Key{PK: "TEAM#t1", SK: "TEAM"}))
	require.Equal(t, "TEAM#t1", db.lastDelIn.Key[AttrPK].(*types.AttributeValueMemberS).Value)
	require.Nil(t, db.lastDelIn.ConditionExpression)
}
