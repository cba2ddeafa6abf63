package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"collab-backend/internal/repository"
)

// Search index names.
const (
	SearchIndexOrganizations = "organizations"
	SearchIndexTeams         = "teams"
	SearchIndexConversations = "conversations"
)

// searchIndexer is the slice of the search client the processors consume.
type searchIndexer interface {
	IndexDocument(ctx context.Context, index, id string, doc any) error
	DeindexDocument(ctx context.Context, index, id string) error
}

// OrganizationIndexProcessor mirrors organization records into the search
// index: inserts and modifies upsert the document, removals delete it.
type OrganizationIndexProcessor struct {
	table  string
	search searchIndexer
	logger *slog.Logger
}

func NewOrganizationIndexProcessor(table string, search searchIndexer, logger *slog.Logger) (*OrganizationIndexProcessor, error) {
	if err := validateIndexProcessor(table, search); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrganizationIndexProcessor{table: table, search: search, logger: logger}, nil
}

func (p *OrganizationIndexProcessor) Name() string { return "organization-index" }

func (p *OrganizationIndexProcessor) SupportsRecord(r events.DynamoDBEventRecord) bool {
	return tableNameOf(r) == p.table && entityTypeOf(r) == repository.EntityTypeOrganization
}

func (p *OrganizationIndexProcessor) ProcessRecord(ctx context.Context, r events.DynamoDBEventRecord) error {
	image := recordImage(r)
	id := imageString(image, "id")
	if id == "" {
		return fmt.Errorf("organization record %s has no id", r.EventID)
	}

	if r.EventName == eventRemove {
		return p.search.DeindexDocument(ctx, SearchIndexOrganizations, id)
	}
	doc := map[string]any{
		"id":        id,
		"name":      imageString(image, "name"),
		"createdBy": imageString(image, "createdBy"),
	}
	return p.search.IndexDocument(ctx, SearchIndexOrganizations, id, doc)
}

// TeamIndexProcessor mirrors team records into the search index.
type TeamIndexProcessor struct {
	table  string
	search searchIndexer
	logger *slog.Logger
}

func NewTeamIndexProcessor(table string, search searchIndexer, logger *slog.Logger) (*TeamIndexProcessor, error) {
	if err := validateIndexProcessor(table, search); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TeamIndexProcessor{table: table, search: search, logger: logger}, nil
}

func (p *TeamIndexProcessor) Name() string { return "team-index" }

func (p *TeamIndexProcessor) SupportsRecord(r events.DynamoDBEventRecord) bool {
	return tableNameOf(r) == p.table && entityTypeOf(r) == repository.EntityTypeTeam
}

func (p *TeamIndexProcessor) ProcessRecord(ctx context.Context, r events.DynamoDBEventRecord) error {
	image := recordImage(r)
	id := imageString(image, "id")
	if id == "" {
		return fmt.Errorf("team record %s has no id", r.EventID)
	}

	if r.EventName == eventRemove {
		return p.search.DeindexDocument(ctx, SearchIndexTeams, id)
	}
	doc := map[string]any{
		"id":             id,
		"organizationId": imageString(image, "organizationId"),
		"name":           imageString(image, "name"),
		"createdBy":      imageString(image, "createdBy"),
	}
	return p.search.IndexDocument(ctx, SearchIndexTeams, id, doc)
}

// ConversationIndexProcessor mirrors group and meeting conversation records
// into the search index. Friend conversations are not searchable; they are
// skipped at the support check.
type ConversationIndexProcessor struct {
	table  string
	search searchIndexer
	logger *slog.Logger
}

func NewConversationIndexProcessor(table string, search searchIndexer, logger *slog.Logger) (*ConversationIndexProcessor, error) {
	if err := validateIndexProcessor(table, search); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationIndexProcessor{table: table, search: search, logger: logger}, nil
}

func (p *ConversationIndexProcessor) Name() string { return "conversation-index" }

func (p *ConversationIndexProcessor) SupportsRecord(r events.DynamoDBEventRecord) bool {
	if tableNameOf(r) != p.table || entityTypeOf(r) != repository.EntityTypeConversation {
		return false
	}
	return imageString(recordImage(r), "type") != "friend"
}

func (p *ConversationIndexProcessor) ProcessRecord(ctx context.Context, r events.DynamoDBEventRecord) error {
	image := recordImage(r)
	id := imageString(image, "id")
	if id == "" {
		return fmt.Errorf("conversation record %s has no id", r.EventID)
	}

	if r.EventName == eventRemove {
		return p.search.DeindexDocument(ctx, SearchIndexConversations, id)
	}
	doc := map[string]any{
		"id":        id,
		"type":      imageString(image, "type"),
		"name":      imageString(image, "name"),
		"teamId":    imageString(image, "teamId"),
		"createdBy": imageString(image, "createdBy"),
	}
	return p.search.IndexDocument(ctx, SearchIndexConversations, id, doc)
}

func validateIndexProcessor(table string, search searchIndexer) error {
	if table == "" {
		return errors.New("stream: table name must not be empty")
	}
	if search == nil {
		return errors.New("stream: search indexer must not be nil")
	}
	return nil
}
