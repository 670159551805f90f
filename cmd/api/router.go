package api

import (
	"net/http"

	authdelivery "clientlens-backend/internal/auth/delivery"
	authrepo "clientlens-backend/internal/auth/repository"
	authusecase "clientlens-backend/internal/auth/usecase"
	clientdelivery "clientlens-backend/internal/client/delivery"
	clientrepo "clientlens-backend/internal/client/repository"
	commdelivery "clientlens-backend/internal/communication/delivery"
	commusecase "clientlens-backend/internal/communication/usecase"
	insightdelivery "clientlens-backend/internal/insight/delivery"
	insightusecase "clientlens-backend/internal/insight/usecase"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	r *gin.Engine,
	authUsecase authusecase.AuthUsecase,
	fcmRepo authrepo.FCMTokenRepository,
	clientRepo clientrepo.ClientRepository,
	commUsecase commusecase.CommunicationUsecase,
	insightUsecase insightusecase.InsightUsecase,
) {
	authHandler := authdelivery.NewAuthHandler(authUsecase, fcmRepo)
	clientHandler := clientdelivery.NewClientHandler(clientRepo)
	commHandler := commdelivery.NewCommunicationHandler(commUsecase)
	insightHandler := insightdelivery.NewInsightHandler(insightUsecase)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", authdelivery.AuthMiddleware(authUsecase), authHandler.Me)
			auth.POST("/gmail", authdelivery.AuthMiddleware(authUsecase), authHandler.ConnectGmail)
			auth.DELETE("/gmail", authdelivery.AuthMiddleware(authUsecase), authHandler.DisconnectGmail)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(authdelivery.AuthMiddleware(authUsecase))
		{
			fcm.POST("/register", authHandler.RegisterFCMToken)
			fcm.DELETE("/:token", authHandler.UnregisterFCMToken)
		}

		// Communication routes (protected)
		comms := api.Group("/communications")
		comms.Use(authdelivery.AuthMiddleware(authUsecase))
		{
			comms.POST("/sync", commHandler.Sync)
			comms.GET("", commHandler.GetCommunications)
			comms.GET("/sync/latest", commHandler.GetSyncHistory)
		}

		// Semantic search (protected)
		search := api.Group("/search")
		search.Use(authdelivery.AuthMiddleware(authUsecase))
		{
			search.POST("/semantic", commHandler.SemanticSearch)
		}

		// Insight routes (protected)
		insights := api.Group("/insights")
		insights.Use(authdelivery.AuthMiddleware(authUsecase))
		{
			insights.POST("/generate", insightHandler.GenerateInsights)
			insights.GET("", insightHandler.GetInsights)
			insights.GET("/:id", insightHandler.GetInsightByID)
			insights.POST("/:id/feedback", insightHandler.SubmitFeedback)
		}

		// Client routes (protected, read-only)
		clients := api.Group("/clients")
		clients.Use(authdelivery.AuthMiddleware(authUsecase))
		{
			clients.GET("", clientHandler.GetClients)
			clients.GET("/:id", clientHandler.GetClientByID)
		}
	}
}
