package storage

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

func TestPatchBuild_SetOnly(t *testing.T) {
	expr, names, values, err := NewPatch().
		SetString("name", "updated").
		SetBool("muted", true).
		Build()
	require.NoError(t, err)
	require.Equal(t, "SET #p0 = :v0, #p1 = :v1", expr)
	require.Equal(t, map[string]string{"#p0": "name", "#p1": "muted"}, names)
	require.Equal(t, &types.AttributeValueMemberS{Value: "updated"}, values[":v0"])
	require.Equal(t, &types.AttributeValueMemberBOOL{Value: true}, values[":v1"])
}

func TestPatchBuild_OmitsAbsentFields(t *testing.T) {
	// A patch with one clause must not mention any other attribute.
	expr, names, _, err := NewPatch().SetString("billingPlan", "pro").Build()
	require.NoError(t, err)
	require.Equal(t, "SET #p0 = :v0", expr)
	require.Len(t, names, 1)
}

func TestPatchBuild_StringSetSections(t *testing.T) {
	expr, names, values, err := NewPatch().
		SetString("updatedAt", "2026-01-02T10:00:00.000Z").
		AddToStringSet("unreadMessages", "msg-1").
		DeleteFromStringSet("unreadMessages", "msg-2").
		Build()
	require.NoError(t, err)
	require.Equal(t, "SET #p0 = :v0 ADD #p1 :v1 DELETE #p2 :v2", expr)
	require.Equal(t, "unreadMessages", names["#p1"])
	require.Equal(t, "unreadMessages", names["#p2"])
	require.Equal(t, &types.AttributeValueMemberSS{Value: []string{"msg-1"}}, values[":v1"])
	require.Equal(t, &types.AttributeValueMemberSS{Value: []string{"msg-2"}}, values[":v2"])
}

func TestPatchBuild_Int(t *testing.T) {
	_, _, values, err := NewPatch().SetInt("replies", 3).Build()
	require.NoError(t, err)
	require.Equal(t, &types.AttributeValueMemberN{Value: "3"}, values[":v0"])
}

func TestPatchBuild_Empty(t *testing.T) {
	_, _, _, err := NewPatch().Build()
	require.Error(t, err)
	require.True(t, NewPatch().IsEmpty())
}
