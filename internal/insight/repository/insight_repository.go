package repository

import (
	"time"

	insightdomain "clientlens-backend/internal/insight/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsightRepository defines storage access for insights.
type InsightRepository interface {
	// UpsertStructured writes a structured insight, atomically keyed on
	// (communication_id, category). On conflict the content fields are
	// replaced but created_at and feedback are preserved.
	UpsertStructured(insight *insightdomain.Insight) error
	// FindAnyForCommunication returns any insight (structured or raw) for
	// a communication
	FindAnyForCommunication(userID, commID string) (*insightdomain.Insight, error)
	// UpdateRawOutput overwrites only the raw model output of a record
	UpdateRawOutput(userID, insightID, rawOutput string) error
	// InsertRaw stores a category-less raw insight
	InsertRaw(insight *insightdomain.Insight) error
	// FindByID returns an insight scoped to its owner
	FindByID(userID, insightID string) (*insightdomain.Insight, error)
	// FindByUserID lists insights with optional category/client filters
	FindByUserID(userID string, category, clientID *string, limit, offset int) ([]*insightdomain.Insight, int64, error)
	// UpdateFeedback sets only the feedback field
	UpdateFeedback(userID, insightID string, feedback insightdomain.Feedback) error
}

// insightRepository implements InsightRepository using GORM
type insightRepository struct {
	db *gorm.DB
}

// NewInsightRepository creates a new instance of insightRepository
func NewInsightRepository(db *gorm.DB) InsightRepository {
	return &insightRepository{
		db: db,
	}
}

func (r *insightRepository) UpsertStructured(insight *insightdomain.Insight) error {
	if insight.ID == "" {
		insight.ID = uuid.New().String()
	}
	now := time.Now()
	insight.CreatedAt = now
	insight.UpdatedAt = now

	// Single atomic upsert on the (communication_id, category) key so two
	// concurrent runs converge instead of duplicating rows. created_at and
	// feedback are deliberately left out of the update set.
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "communication_id"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"client_id", "summary", "evidence", "suggested_action", "confidence", "raw_output", "updated_at",
		}),
	}).Create(insight).Error
}

func (r *insightRepository) FindAnyForCommunication(userID, commID string) (*insightdomain.Insight, error) {
	var insight insightdomain.Insight
	err := r.db.Where("user_id = ? AND communication_id = ?", userID, commID).First(&insight).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &insight, nil
}

func (r *insightRepository) UpdateRawOutput(userID, insightID, rawOutput string) error {
	return r.db.Model(&insightdomain.Insight{}).
		Where("user_id = ? AND id = ?", userID, insightID).
		Updates(map[string]interface{}{
			"raw_output": rawOutput,
			"updated_at": time.Now(),
		}).Error
}

func (r *insightRepository) InsertRaw(insight *insightdomain.Insight) error {
	if insight.ID == "" {
		insight.ID = uuid.New().String()
	}
	now := time.Now()
	insight.CreatedAt = now
	insight.UpdatedAt = now
	insight.Category = nil
	return r.db.Create(insight).Error
}

func (r *insightRepository) FindByID(userID, insightID string) (*insightdomain.Insight, error) {
	var insight insightdomain.Insight
	err := r.db.Where("user_id = ? AND id = ?", userID, insightID).First(&insight).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &insight, nil
}

func (r *insightRepository) FindByUserID(userID string, category, clientID *string, limit, offset int) ([]*insightdomain.Insight, int64, error) {
	var insights []*insightdomain.Insight
	var total int64

	query := r.db.Model(&insightdomain.Insight{}).Where("user_id = ?", userID)
	if category != nil && *category != "" {
		query = query.Where("category = ?", *category)
	}
	if clientID != nil && *clientID != "" {
		query = query.Where("client_id = ?", *clientID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&insights).Error
	return insights, total, err
}

func (r *insightRepository) UpdateFeedback(userID, insightID string, feedback insightdomain.Feedback) error {
	result := r.db.Model(&insightdomain.Insight{}).
		Where("user_id = ? AND id = ?", userID, insightID).
		Updates(map[string]interface{}{
			"feedback":   feedback,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
