package domain

import "time"

// Role is the membership role a user holds within an organization, team,
// or conversation.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ConversationUserRelationship is a user's membership record in a
// conversation, including per-user read state.
type ConversationUserRelationship struct {
	ConversationID string           `json:"conversationId"`
	UserID         string           `json:"userId"`
	Type           ConversationType `json:"type"`
	Role           Role             `json:"role"`
	Muted          bool             `json:"muted"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	// UnreadMessages holds ids of messages the user has not viewed yet.
	UnreadMessages []string `json:"unreadMessages,omitempty"`
	// DueDate mirrors the conversation's due date for meeting memberships.
	DueDate *time.Time `json:"dueDate,omitempty"`
}

// OrganizationUserRelationship records a user's membership in an organization.
type OrganizationUserRelationship struct {
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId"`
	Role           Role   `json:"role"`
}

// TeamUserRelationship records a user's membership in a team.
type TeamUserRelationship struct {
	TeamID string `json:"teamId"`
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}
