package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"

	"collab-backend/handler"
	"collab-backend/internal/integrations/notifier"
	"collab-backend/internal/integrations/search"
	"collab-backend/internal/repository"
	"collab-backend/internal/storage"
	"collab-backend/internal/stream"
)

func main() {
	ctx := context.Background()
	logger := slog.Default()

	// ---- Configuration (read only here) ----
	tableName := mustEnv("TABLE_NAME")
	searchBaseURL := mustEnv("SEARCH_BASE_URL")
	notificationTopicARN := mustEnv("NOTIFICATION_TOPIC_ARN")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	store, err := storage.New(awsdynamodb.NewFromConfig(cfg), tableName, logger)
	if err != nil {
		logger.Error("failed to create entity store", "err", err)
		os.Exit(1)
	}
	searchClient, err := search.NewClient(searchBaseURL, search.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create search client", "err", err)
		os.Exit(1)
	}
	publisher, err := notifier.NewSNSPublisher(awssns.NewFromConfig(cfg), notificationTopicARN, logger)
	if err != nil {
		logger.Error("failed to create notification publisher", "err", err)
		os.Exit(1)
	}
	memberships, err := repository.NewConversationUserRepository(store, logger)
	if err != nil {
		logger.Error("failed to create membership repository", "err", err)
		os.Exit(1)
	}

	// ---- Processors ----
	orgIndex, err := stream.NewOrganizationIndexProcessor(tableName, searchClient, logger)
	if err != nil {
		logger.Error("failed to create organization index processor", "err", err)
		os.Exit(1)
	}
	teamIndex, err := stream.NewTeamIndexProcessor(tableName, searchClient, logger)
	if err != nil {
		logger.Error("failed to create team index processor", "err", err)
		os.Exit(1)
	}
	convoIndex, err := stream.NewConversationIndexProcessor(tableName, searchClient, logger)
	if err != nil {
		logger.Error("failed to create conversation index processor", "err", err)
		os.Exit(1)
	}
	messageCreated, err := stream.NewMessageCreatedProcessor(tableName, memberships, publisher, logger)
	if err != nil {
		logger.Error("failed to create message processor", "err", err)
		os.Exit(1)
	}
	membershipChanged, err := stream.NewMembershipChangedProcessor(tableName, publisher, logger)
	if err != nil {
		logger.Error("failed to create membership processor", "err", err)
		os.Exit(1)
	}

	dispatcher, err := stream.NewDispatcher(logger, orgIndex, teamIndex, convoIndex, messageCreated, membershipChanged)
	if err != nil {
		logger.Error("failed to create dispatcher", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(dispatcher)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}
