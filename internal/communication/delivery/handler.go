package delivery

import (
	"net/http"
	"strconv"

	"clientlens-backend/internal/communication/usecase"

	"github.com/gin-gonic/gin"
)

// CommunicationHandler handles communication-related HTTP requests
type CommunicationHandler struct {
	commUsecase usecase.CommunicationUsecase
}

// NewCommunicationHandler creates a new CommunicationHandler
func NewCommunicationHandler(commUsecase usecase.CommunicationUsecase) *CommunicationHandler {
	return &CommunicationHandler{
		commUsecase: commUsecase,
	}
}

// SemanticSearchRequest represents the request body for semantic search
type SemanticSearchRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

// Sync pulls recent messages from the connected mail account
// POST /api/communications/sync
func (h *CommunicationHandler) Sync(c *gin.Context) {
	userID := c.GetString("userID")

	result, err := h.commUsecase.Sync(c.Request.Context(), userID)
	if err != nil {
		if err.Error() == "no mail account connected" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No mail account connected"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetCommunications returns the user's recent communications
// GET /api/communications?limit=50
func (h *CommunicationHandler) GetCommunications(c *gin.Context) {
	userID := c.GetString("userID")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	comms, err := h.commUsecase.ListRecent(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"communications": comms})
}

// SemanticSearch returns communications semantically matching the query
// POST /api/search/semantic
func (h *CommunicationHandler) SemanticSearch(c *gin.Context) {
	userID := c.GetString("userID")

	var req SemanticSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Limit <= 0 || req.Limit > 50 {
		req.Limit = 10
	}

	comms, err := h.commUsecase.SemanticSearch(c.Request.Context(), userID, req.Query, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"communications": comms})
}

// GetSyncHistory returns the latest sync record
// GET /api/communications/sync/latest
func (h *CommunicationHandler) GetSyncHistory(c *gin.Context) {
	userID := c.GetString("userID")

	history, err := h.commUsecase.LatestSyncHistory(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if history == nil {
		c.JSON(http.StatusOK, gin.H{"history": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}
