package domain

import (
	"sort"
	"strings"
	"time"
)

// ConversationType discriminates the three conversation variants. The
// variant is also encoded as the conversation id prefix so that any holder
// of an id can classify it without a read.
type ConversationType string

const (
	ConversationTypeFriend  ConversationType = "friend"
	ConversationTypeGroup   ConversationType = "group"
	ConversationTypeMeeting ConversationType = "meeting"
)

const (
	friendIDPrefix  = "friend-"
	groupIDPrefix   = "group-"
	meetingIDPrefix = "meeting-"
)

// Conversation is a friend, group, or meeting conversation.
type Conversation struct {
	ID        string           `json:"id"`
	Type      ConversationType `json:"type"`
	Name      string           `json:"name,omitempty"`
	TeamID    string           `json:"teamId,omitempty"`
	CreatedBy string           `json:"createdBy"`
	CreatedAt time.Time        `json:"createdAt"`
	// DueDate is set for meeting conversations only.
	DueDate *time.Time `json:"dueDate,omitempty"`
}

// FriendConversationID returns the deterministic id for the friend
// conversation between two users. The member ids are sorted before joining,
// so the id is the same regardless of argument order and at most one friend
// conversation can exist per unordered user pair.
func FriendConversationID(userA, userB string) string {
	members := []string{userA, userB}
	sort.Strings(members)
	return friendIDPrefix + members[0] + "-" + members[1]
}

// GroupConversationID prefixes a fresh id for a group conversation.
func GroupConversationID(id string) string {
	return groupIDPrefix + id
}

// MeetingConversationID prefixes a fresh id for a meeting conversation.
func MeetingConversationID(id string) string {
	return meetingIDPrefix + id
}

// ConversationTypeOf classifies a conversation id by its prefix. The second
// return value is false for ids that carry no known prefix.
func ConversationTypeOf(conversationID string) (ConversationType, bool) {
	switch {
	case strings.HasPrefix(conversationID, friendIDPrefix):
		return ConversationTypeFriend, true
	case strings.HasPrefix(conversationID, groupIDPrefix):
		return ConversationTypeGroup, true
	case strings.HasPrefix(conversationID, meetingIDPrefix):
		return ConversationTypeMeeting, true
	default:
		return "", false
	}
}
