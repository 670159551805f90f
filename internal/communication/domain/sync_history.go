package domain

import "time"

// SyncHistory records one sync run against the mail provider for a user.
type SyncHistory struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	UserID      string    `json:"user_id" gorm:"index;not null"`
	Fetched     int       `json:"fetched"`
	Inserted    int       `json:"inserted"`
	Skipped     int       `json:"skipped"`
	CompletedAt time.Time `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (SyncHistory) TableName() string {
	return "communication_sync_history"
}
