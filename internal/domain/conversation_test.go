package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFriendConversationID_OrderIndependent(t *testing.T) {
	require.Equal(t, FriendConversationID("alice", "bob"), FriendConversationID("bob", "alice"))
	require.Equal(t, "friend-alice-bob", FriendConversationID("bob", "alice"))
}

func TestConversationTypeOf(t *testing.T) {
	cases := []struct {
		id       string
		wantType ConversationType
		wantOK   bool
	}{
		{"friend-alice-bob", ConversationTypeFriend, true},
		{GroupConversationID("g1"), ConversationTypeGroup, true},
		{MeetingConversationID("m1"), ConversationTypeMeeting, true},
		{"g1", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ConversationTypeOf(tc.id)
		require.Equal(t, tc.wantOK, ok, tc.id)
		require.Equal(t, tc.wantType, got, tc.id)
	}
}
