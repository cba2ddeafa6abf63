package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"collab-backend/internal/domain"
	"collab-backend/internal/storage"
)

// teamItem is the raw storage shape of a team. gsi1 projects teams under
// their organization for "teams by organization" listings.
type teamItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	EntityType string `dynamodbav:"entityType"`
	GSI1PK     string `dynamodbav:"gsi1pk"`
	GSI1SK     string `dynamodbav:"gsi1sk"`
	ID         string `dynamodbav:"id"`
	OrgID      string `dynamodbav:"organizationId"`
	Name       string `dynamodbav:"name"`
	CreatedBy  string `dynamodbav:"createdBy"`
	CreatedAt  string `dynamodbav:"createdAt"`
	UpdatedAt  string `dynamodbav:"updatedAt"`
}

func cleanseTeam(item teamItem) (domain.Team, error) {
	createdAt, err := parseTime(item.CreatedAt)
	if err != nil {
		return domain.Team{}, err
	}
	updatedAt, err := parseTime(item.UpdatedAt)
	if err != nil {
		return domain.Team{}, err
	}
	return domain.Team{
		ID:             item.ID,
		OrganizationID: item.OrgID,
		Name:           item.Name,
		CreatedBy:      item.CreatedBy,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

// TeamRepository persists teams.
type TeamRepository struct {
	store  entityStore
	logger *slog.Logger
}

func NewTeamRepository(store entityStore, logger *slog.Logger) (*TeamRepository, error) {
	if store == nil {
		return nil, errors.New("repository: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TeamRepository{store: store, logger: logger}, nil
}

func teamKey(teamID string) storage.Key {
	return storage.Key{PK: teamPK(teamID), SK: EntityTypeTeam}
}

// Create writes a new team under its organization.
func (r *TeamRepository) Create(ctx context.Context, team domain.Team) (domain.Team, error) {
	now := time.Now()
	if team.CreatedAt.IsZero() {
		team.CreatedAt = now
	}
	team.UpdatedAt = now

	item := teamItem{
		PK:         teamPK(team.ID),
		SK:         EntityTypeTeam,
		EntityType: EntityTypeTeam,
		GSI1PK:     orgPK(team.OrganizationID),
		GSI1SK:     teamPK(team.ID),
		ID:         team.ID,
		OrgID:      team.OrganizationID,
		Name:       team.Name,
		CreatedBy:  team.CreatedBy,
		CreatedAt:  formatTime(team.CreatedAt),
		UpdatedAt:  formatTime(team.UpdatedAt),
	}

	raw, err := storage.MarshalItem(item)
	if err != nil {
		return domain.Team{}, fmt.Errorf("repository: CreateTeam: %w", err)
	}
	if err := r.store.Create(ctx, EntityTypeTeam, raw); err != nil {
		r.logger.Error("create team failed", "teamId", team.ID, "orgId", team.OrganizationID, "err", err)
		return domain.Team{}, fmt.Errorf("repository: CreateTeam: %w", err)
	}
	return cleanseTeam(item)
}

// Get reads one team by id.
func (r *TeamRepository) Get(ctx context.Context, teamID string) (domain.Team, error) {
	raw, err := r.store.Get(ctx, EntityTypeTeam, teamKey(teamID))
	if err != nil {
		r.logger.Error("get team failed", "teamId", teamID, "err", err)
		return domain.Team{}, fmt.Errorf("repository: GetTeam: %w", err)
	}
	item, err := storage.UnmarshalItem[teamItem](raw)
	if err != nil {
		return domain.Team{}, fmt.Errorf("repository: GetTeam: %w", err)
	}
	return cleanseTeam(item)
}

// UpdateName renames a team, refreshing updatedAt in the same write.
func (r *TeamRepository) UpdateName(ctx context.Context, teamID, name string) (domain.Team, error) {
	patch := storage.NewPatch().
		SetString("name", name).
		SetString("updatedAt", formatTime(time.Now()))

	raw, err := r.store.Update(ctx, EntityTypeTeam, teamKey(teamID), patch)
	if err != nil {
		r.logger.Error("update team failed", "teamId", teamID, "err", err)
		return domain.Team{}, fmt.Errorf("repository: UpdateTeamName: %w", err)
	}
	item, err := storage.UnmarshalItem[teamItem](raw)
	if err != nil {
		return domain.Team{}, fmt.Errorf("repository: UpdateTeamName: %w", err)
	}
	return cleanseTeam(item)
}

// Delete removes a team record.
func (r *TeamRepository) Delete(ctx context.Context, teamID string) error {
	if err := r.store.Delete(ctx, EntityTypeTeam, teamKey(teamID)); err != nil {
		r.logger.Error("delete team failed", "teamId", teamID, "err", err)
		return fmt.Errorf("repository: DeleteTeam: %w", err)
	}
	return nil
}

// GetByOrganizationID lists the teams under an organization.
func (r *TeamRepository) GetByOrganizationID(ctx context.Context, orgID string, limit int32, cursor string) ([]domain.Team, string, error) {
	startKey, err := decodeStartKey(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetTeamsByOrganizationID: %w", err)
	}

	page, err := r.store.Query(ctx, EntityTypeTeam, storage.QueryParams{
		Index:             storage.IndexGSI1,
		PartitionValue:    orgPK(orgID),
		SortKeyPrefix:     prefixTeam,
		ScanForward:       true,
		Limit:             normalizeLimit(limit),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		r.logger.Error("query teams by organization failed", "orgId", orgID, "err", err)
		return nil, "", fmt.Errorf("repository: GetTeamsByOrganizationID: %w", err)
	}

	items, err := storage.UnmarshalItems[teamItem](page.Items)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetTeamsByOrganizationID: %w", err)
	}
	teams := make([]domain.Team, 0, len(items))
	for _, item := range items {
		team, err := cleanseTeam(item)
		if err != nil {
			return nil, "", fmt.Errorf("repository: GetTeamsByOrganizationID: %w", err)
		}
		teams = append(teams, team)
	}

	next, err := encodeNextCursor(page.LastKey)
	if err != nil {
		return nil, "", fmt.Errorf("repository: GetTeamsByOrganizationID: %w", err)
	}
	return teams, next, nil
}
