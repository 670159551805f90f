package api

import (
	authrepo "clientlens-backend/internal/auth/repository"
	authusecase "clientlens-backend/internal/auth/usecase"
	clientrepo "clientlens-backend/internal/client/repository"
	commusecase "clientlens-backend/internal/communication/usecase"
	insightusecase "clientlens-backend/internal/insight/usecase"

	"github.com/gin-gonic/gin"
)

// Handler owns the HTTP server and its route dependencies
type Handler struct {
	authUsecase    authusecase.AuthUsecase
	fcmRepo        authrepo.FCMTokenRepository
	clientRepo     clientrepo.ClientRepository
	commUsecase    commusecase.CommunicationUsecase
	insightUsecase insightusecase.InsightUsecase
}

func NewHandler(
	authUsecase authusecase.AuthUsecase,
	fcmRepo authrepo.FCMTokenRepository,
	clientRepo clientrepo.ClientRepository,
	commUsecase commusecase.CommunicationUsecase,
	insightUsecase insightusecase.InsightUsecase,
) *Handler {
	return &Handler{
		authUsecase:    authUsecase,
		fcmRepo:        fcmRepo,
		clientRepo:     clientRepo,
		commUsecase:    commUsecase,
		insightUsecase: insightUsecase,
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.fcmRepo, h.clientRepo, h.commUsecase, h.insightUsecase)

	return r.Run(addr)
}
