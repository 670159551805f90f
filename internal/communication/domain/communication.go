package domain

import "time"

// Communication represents a single inbound message (an email) owned by a
// user. Identity is (user_id, provider_id); the pipeline may populate
// client_id and is_automated after classification, everything else is
// immutable once stored.
type Communication struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	UserID      string    `json:"user_id" gorm:"index:idx_comm_user_provider,unique;not null"`
	ProviderID  string    `json:"provider_id" gorm:"index:idx_comm_user_provider,unique;not null"`
	ThreadID    string    `json:"thread_id" gorm:"index;not null"`
	FromAddress string    `json:"from_address" gorm:"not null"`
	ToAddress   string    `json:"to_address" gorm:"not null"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body" gorm:"type:text"` // sanitized before storage
	Timestamp   time.Time `json:"timestamp" gorm:"index"`
	ClientID    *string   `json:"client_id,omitempty" gorm:"index"`
	IsAutomated bool      `json:"is_automated" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Communication) TableName() string {
	return "communications"
}
