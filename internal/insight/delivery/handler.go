package delivery

import (
	"net/http"
	"strconv"

	"clientlens-backend/internal/insight/usecase"

	"github.com/gin-gonic/gin"
)

// InsightHandler handles insight-related HTTP requests
type InsightHandler struct {
	insightUsecase usecase.InsightUsecase
}

// NewInsightHandler creates a new InsightHandler
func NewInsightHandler(insightUsecase usecase.InsightUsecase) *InsightHandler {
	return &InsightHandler{
		insightUsecase: insightUsecase,
	}
}

// FeedbackRequest represents the request body for insight feedback
type FeedbackRequest struct {
	Feedback string `json:"feedback" binding:"required"`
}

// GenerateInsights runs the insight pipeline over recent communications
// POST /api/insights/generate
func (h *InsightHandler) GenerateInsights(c *gin.Context) {
	userID := c.GetString("userID")

	summary, err := h.insightUsecase.GenerateInsights(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// GetInsights returns the user's insights
// GET /api/insights?category=Risk&client_id=...&limit=50&offset=0
func (h *InsightHandler) GetInsights(c *gin.Context) {
	userID := c.GetString("userID")

	category := c.Query("category")
	clientID := c.Query("client_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	var categoryPtr, clientPtr *string
	if category != "" {
		categoryPtr = &category
	}
	if clientID != "" {
		clientPtr = &clientID
	}

	insights, total, err := h.insightUsecase.ListInsights(userID, categoryPtr, clientPtr, limit, offset)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"insights": insights,
		"total":    total,
	})
}

// GetInsightByID returns a specific insight
// GET /api/insights/:id
func (h *InsightHandler) GetInsightByID(c *gin.Context) {
	userID := c.GetString("userID")
	insightID := c.Param("id")

	insight, err := h.insightUsecase.GetInsight(userID, insightID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if insight == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Insight not found"})
		return
	}

	c.JSON(http.StatusOK, insight)
}

// SubmitFeedback records the user's verdict on an insight
// POST /api/insights/:id/feedback
func (h *InsightHandler) SubmitFeedback(c *gin.Context) {
	userID := c.GetString("userID")
	insightID := c.Param("id")

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	insight, err := h.insightUsecase.SubmitFeedback(userID, insightID, req.Feedback)
	if err != nil {
		if err.Error() == "insight not found" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Insight not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, insight)
}
