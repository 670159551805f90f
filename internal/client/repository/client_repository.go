package repository

import (
	clientdomain "clientlens-backend/internal/client/domain"

	"gorm.io/gorm"
)

// ClientRepository defines read access to client profiles.
// The attribution pipeline treats clients as immutable input.
type ClientRepository interface {
	// FindByUserID returns all clients owned by a user
	FindByUserID(userID string) ([]*clientdomain.Client, error)
	// FindByID returns a single client scoped to its owner
	FindByID(userID, clientID string) (*clientdomain.Client, error)
}

// clientRepository implements ClientRepository using GORM
type clientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new instance of clientRepository
func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{
		db: db,
	}
}

func (r *clientRepository) FindByUserID(userID string) ([]*clientdomain.Client, error) {
	var clients []*clientdomain.Client
	err := r.db.Where("user_id = ?", userID).Order("name ASC").Find(&clients).Error
	return clients, err
}

func (r *clientRepository) FindByID(userID, clientID string) (*clientdomain.Client, error) {
	var client clientdomain.Client
	err := r.db.Where("user_id = ? AND id = ?", userID, clientID).First(&client).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &client, nil
}
