package main

import (
	"context"
	"strings"

	api "clientlens-backend/cmd/api"
	"clientlens-backend/internal/attribution"
	authdomain "clientlens-backend/internal/auth/domain"
	authrepo "clientlens-backend/internal/auth/repository"
	authusecase "clientlens-backend/internal/auth/usecase"
	clientdomain "clientlens-backend/internal/client/domain"
	clientrepo "clientlens-backend/internal/client/repository"
	commdomain "clientlens-backend/internal/communication/domain"
	commrepo "clientlens-backend/internal/communication/repository"
	commusecase "clientlens-backend/internal/communication/usecase"
	insightdomain "clientlens-backend/internal/insight/domain"
	insightrepo "clientlens-backend/internal/insight/repository"
	insightusecase "clientlens-backend/internal/insight/usecase"
	"clientlens-backend/internal/notification"
	"clientlens-backend/pkg/ai"
	"clientlens-backend/pkg/chroma"
	"clientlens-backend/pkg/config"
	"clientlens-backend/pkg/database"
	"clientlens-backend/pkg/fcm"
	"clientlens-backend/pkg/gmail"
	"clientlens-backend/pkg/logger"

	zlog "github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()

	log := logger.New(cfg.LogLevel)
	zlog.Logger = log

	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(
		&authdomain.User{},
		&authdomain.RefreshToken{},
		&authdomain.FCMToken{},
		&clientdomain.Client{},
		&commdomain.Communication{},
		&commdomain.SyncHistory{},
		&insightdomain.Insight{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Repositories
	userRepo := authrepo.NewUserRepository(db)
	fcmTokenRepo := authrepo.NewFCMTokenRepository(db)
	clientRepository := clientrepo.NewClientRepository(db)
	commRepository := commrepo.NewCommunicationRepository(db)
	syncHistoryRepo := commrepo.NewSyncHistoryRepository(db)
	insightRepository := insightrepo.NewInsightRepository(db)

	// LLM completion service with provider fallback
	aiService := ai.NewCompletionService(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiApiKey,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	})

	resolver := attribution.NewResolver(aiService, log)
	extractor := insightusecase.NewExtractor(aiService, log)

	// Vector index is optional; without it semantic search returns an error
	// but ingestion and insights still work.
	var vectorIndex commusecase.VectorIndex
	if cfg.ChromaAPIKey != "" {
		chromaClient, err := chroma.NewChromaClient(cfg, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize Chroma client, semantic search disabled")
		} else {
			vectorIndex = chromaClient
		}
	} else {
		log.Info().Msg("CHROMA_API_KEY not set, semantic search disabled")
	}

	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)

	// Usecases
	authUsecaseInstance := authusecase.NewAuthUsecase(userRepo, gmailService, cfg, log)
	commUsecaseInstance := commusecase.NewCommunicationUsecase(
		commRepository, syncHistoryRepo, clientRepository, userRepo,
		gmailService, resolver, vectorIndex, cfg, log,
	)
	insightUsecaseInstance := insightusecase.NewInsightUsecase(
		insightRepository, commRepository, clientRepository,
		resolver, extractor, log,
	)

	// Pub/Sub notification service, enabled when a project is configured
	if cfg.GoogleProjectID != "" {
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}

		var fcmClient *fcm.Client
		if cfg.FirebaseCredentials != "" {
			fcmClient, err = fcm.NewClient(cfg.FirebaseCredentials, log)
			if err != nil {
				log.Warn().Err(err).Msg("failed to initialize FCM client, push notifications disabled")
			}
		}

		notifService, err := notification.NewService(
			cfg.GoogleProjectID, topicName, cfg.GooglePubSubSubscription, cfg.GoogleCredentials,
			userRepo, fcmTokenRepo, fcmClient,
			commUsecaseInstance, insightUsecaseInstance, log,
		)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize notification service")
		} else {
			go notifService.Start(context.Background())
		}
	} else {
		log.Info().Msg("GOOGLE_PROJECT_ID not configured, notification service disabled")
	}

	handler := api.NewHandler(
		authUsecaseInstance, fcmTokenRepo, clientRepository,
		commUsecaseInstance, insightUsecaseInstance,
	)

	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
