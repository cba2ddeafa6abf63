package repository

import (
	"fmt"
	"strings"
	"time"

	"collab-backend/internal/domain"
)

// Entity type discriminators stored in the envelope. Exported because the
// change-propagation processors match stream records against them.
const (
	EntityTypeOrganization     = "ORGANIZATION"
	EntityTypeTeam             = "TEAM"
	EntityTypeConversation     = "CONVERSATION"
	EntityTypeConversationUser = "CONVERSATION_USER_RELATIONSHIP"
	EntityTypeOrganizationUser = "ORGANIZATION_USER_RELATIONSHIP"
	EntityTypeTeamUser         = "TEAM_USER_RELATIONSHIP"
	EntityTypeMessage          = "MESSAGE"
	EntityTypePendingMessage   = "PENDING_MESSAGE"
	EntityTypeUniqueProperty   = "UNIQUE_PROPERTY"
)

// Key prefixes.
const (
	prefixOrg            = "ORG#"
	prefixTeam           = "TEAM#"
	prefixConversation   = "CONVO#"
	prefixUser           = "USER#"
	prefixMessage        = "MSG#"
	prefixPendingMessage = "PENDING_MSG#"
	prefixUnique         = "UNIQUE#"
	prefixTimeSort       = "TIME#"
	prefixDueSort        = "DUE#"
)

// timeSortLayout is fixed width so lexicographic order over sort keys equals
// chronological order. Times are always rendered in UTC.
const timeSortLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeSortLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeSortLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse time %q: %w", s, err)
	}
	return t, nil
}

func orgPK(orgID string) string                   { return prefixOrg + orgID }
func teamPK(teamID string) string                 { return prefixTeam + teamID }
func conversationPK(conversationID string) string { return prefixConversation + conversationID }
func userSK(userID string) string                 { return prefixUser + userID }
func messagePK(messageID string) string           { return prefixMessage + messageID }
func pendingMessagePK(messageID string) string    { return prefixPendingMessage + messageID }

func uniquePropertyPK(property, value string) string {
	return prefixUnique + strings.ToUpper(property) + "#" + value
}

// timeSortKey renders a recency sort key, e.g. "TIME#2026-01-02T10:00:00.000Z".
func timeSortKey(t time.Time) string {
	return prefixTimeSort + formatTime(t)
}

// typeTimeSortKey renders a recency sort key scoped by conversation type,
// e.g. "FRIEND#TIME#2026-01-02T10:00:00.000Z". Prefix-querying by the type
// segment narrows a user's memberships to one conversation variant.
func typeTimeSortKey(conversationType domain.ConversationType, t time.Time) string {
	return conversationTypeSortPrefix(conversationType) + timeSortKey(t)
}

func conversationTypeSortPrefix(conversationType domain.ConversationType) string {
	return strings.ToUpper(string(conversationType)) + "#"
}

// dueSortKey renders a due-date sort key, e.g. "DUE#2026-01-10T09:00:00.000Z".
func dueSortKey(t time.Time) string {
	return prefixDueSort + formatTime(t)
}
