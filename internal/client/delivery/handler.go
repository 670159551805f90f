package delivery

import (
	"net/http"

	"clientlens-backend/internal/client/repository"

	"github.com/gin-gonic/gin"
)

// ClientHandler handles client-related HTTP requests
type ClientHandler struct {
	clientRepo repository.ClientRepository
}

// NewClientHandler creates a new ClientHandler
func NewClientHandler(clientRepo repository.ClientRepository) *ClientHandler {
	return &ClientHandler{
		clientRepo: clientRepo,
	}
}

// GetClients returns all clients for the authenticated user
// GET /api/clients
func (h *ClientHandler) GetClients(c *gin.Context) {
	userID := c.GetString("userID")

	clients, err := h.clientRepo.FindByUserID(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

// GetClientByID returns a specific client
// GET /api/clients/:id
func (h *ClientHandler) GetClientByID(c *gin.Context) {
	userID := c.GetString("userID")
	clientID := c.Param("id")

	client, err := h.clientRepo.FindByID(userID, clientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if client == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}

	c.JSON(http.StatusOK, client)
}
