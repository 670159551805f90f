package delivery

import (
	"net/http"
	"strings"

	"clientlens-backend/internal/auth/usecase"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware authenticates the request from its Bearer token and loads
// the owning user into the context under "user" and "userID". Requests
// without a valid token are rejected with 401 before reaching the handler.
func AuthMiddleware(authUsecase usecase.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		user, err := authUsecase.ValidateToken(strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set("user", user)
		c.Set("userID", user.ID)
		c.Next()
	}
}
