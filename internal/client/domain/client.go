package domain

import "time"

// Client represents a tracked business relationship owned by a user.
// The insight pipeline reads clients but never mutates them.
type Client struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	UserID         string    `json:"user_id" gorm:"index;not null"`
	Name           string    `json:"name" gorm:"not null"`
	Company        string    `json:"company,omitempty"`
	Email          string    `json:"email,omitempty"`
	Domain         string    `json:"domain,omitempty"`
	CurrentProject string    `json:"current_project,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Client) TableName() string {
	return "clients"
}
