package repository

import (
	"errors"
	"time"

	commdomain "clientlens-backend/internal/communication/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommunicationRepository defines storage access for communications.
type CommunicationRepository interface {
	// Upsert inserts a communication or updates it when (user_id,
	// provider_id) already exists, so re-syncing the same window is
	// idempotent.
	Upsert(comm *commdomain.Communication) error
	// FindByProviderID returns the canonical row for a provider message
	FindByProviderID(userID, providerID string) (*commdomain.Communication, error)
	// FindRecent returns the newest communications for a user
	FindRecent(userID string, limit int) ([]*commdomain.Communication, error)
	// FindByIDs returns communications by ID scoped to the owner
	FindByIDs(userID string, ids []string) ([]*commdomain.Communication, error)
	// UpdateClassification sets the post-hoc client and automated flags
	UpdateClassification(userID, commID string, clientID *string, isAutomated bool) error
}

// communicationRepository implements CommunicationRepository using GORM
type communicationRepository struct {
	db *gorm.DB
}

// NewCommunicationRepository creates a new instance of communicationRepository
func NewCommunicationRepository(db *gorm.DB) CommunicationRepository {
	return &communicationRepository{
		db: db,
	}
}

func (r *communicationRepository) Upsert(comm *commdomain.Communication) error {
	if comm.ID == "" {
		comm.ID = uuid.New().String()
	}
	now := time.Now()
	comm.CreatedAt = now
	comm.UpdatedAt = now

	// Conflict on the provider identity; never clobber the post-hoc
	// classification fields written by the pipeline.
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"thread_id", "from_address", "to_address", "subject", "body", "timestamp", "updated_at",
		}),
	}).Create(comm).Error
}

func (r *communicationRepository) FindByProviderID(userID, providerID string) (*commdomain.Communication, error) {
	var comm commdomain.Communication
	err := r.db.Where("user_id = ? AND provider_id = ?", userID, providerID).First(&comm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &comm, nil
}

func (r *communicationRepository) FindRecent(userID string, limit int) ([]*commdomain.Communication, error) {
	var comms []*commdomain.Communication
	err := r.db.Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&comms).Error
	return comms, err
}

func (r *communicationRepository) FindByIDs(userID string, ids []string) ([]*commdomain.Communication, error) {
	if len(ids) == 0 {
		return []*commdomain.Communication{}, nil
	}
	var comms []*commdomain.Communication
	err := r.db.Where("user_id = ? AND id IN ?", userID, ids).Find(&comms).Error
	return comms, err
}

func (r *communicationRepository) UpdateClassification(userID, commID string, clientID *string, isAutomated bool) error {
	return r.db.Model(&commdomain.Communication{}).
		Where("user_id = ? AND id = ?", userID, commID).
		Updates(map[string]interface{}{
			"client_id":    clientID,
			"is_automated": isAutomated,
			"updated_at":   time.Now(),
		}).Error
}
