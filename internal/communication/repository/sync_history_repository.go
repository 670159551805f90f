package repository

import (
	"time"

	commdomain "clientlens-backend/internal/communication/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncHistoryRepository records completed sync runs.
type SyncHistoryRepository interface {
	// Record stores the outcome of one sync run
	Record(userID string, fetched, inserted, skipped int) error
	// FindLatest returns the most recent sync run for a user
	FindLatest(userID string) (*commdomain.SyncHistory, error)
}

// syncHistoryRepository implements SyncHistoryRepository using GORM
type syncHistoryRepository struct {
	db *gorm.DB
}

// NewSyncHistoryRepository creates a new instance of syncHistoryRepository
func NewSyncHistoryRepository(db *gorm.DB) SyncHistoryRepository {
	return &syncHistoryRepository{
		db: db,
	}
}

func (r *syncHistoryRepository) Record(userID string, fetched, inserted, skipped int) error {
	now := time.Now()
	history := commdomain.SyncHistory{
		ID:          uuid.New().String(),
		UserID:      userID,
		Fetched:     fetched,
		Inserted:    inserted,
		Skipped:     skipped,
		CompletedAt: now,
		CreatedAt:   now,
	}
	return r.db.Create(&history).Error
}

func (r *syncHistoryRepository) FindLatest(userID string) (*commdomain.SyncHistory, error) {
	var history commdomain.SyncHistory
	err := r.db.Where("user_id = ?", userID).Order("completed_at DESC").First(&history).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &history, nil
}
