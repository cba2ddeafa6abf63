// Package domain holds the public entity shapes returned by repositories.
// Storage envelope fields (keys, index projections, type discriminators)
// never appear here; repositories strip them before returning.
package domain

import "time"

// Organization is the top-level tenant.
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatedBy   string    `json:"createdBy"`
	BillingPlan string    `json:"billingPlan,omitempty"`
	ImageID     string    `json:"imageId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Team groups conversations inside an organization.
type Team struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Name           string    `json:"name"`
	CreatedBy      string    `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Message is a delivered conversation message. It exists only once the
// associated payload upload has completed; until then the conversation
// carries a PendingMessage placeholder instead.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	From           string    `json:"from"`
	MimeType       string    `json:"mimeType"`
	Transcript     string    `json:"transcript,omitempty"`
	Replies        int       `json:"replies"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PendingMessage reserves a message id while its payload upload is in
// flight. An out-of-band trigger materializes the real Message and deletes
// the placeholder.
type PendingMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	From           string    `json:"from"`
	MimeType       string    `json:"mimeType"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UniqueProperty reserves a globally unique user property value. The value
// itself is the primary key, so a conditional create doubles as the
// uniqueness check.
type UniqueProperty struct {
	Property string `json:"property"`
	Value    string `json:"value"`
	UserID   string `json:"userId"`
}

// Unique property names.
const (
	UniquePropertyEmail    = "email"
	UniquePropertyPhone    = "phone"
	UniquePropertyUsername = "username"
)
