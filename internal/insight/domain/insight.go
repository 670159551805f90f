package domain

import "time"

// Category classifies a structured insight.
type Category string

const (
	CategoryRisk      Category = "Risk"
	CategoryUpsell    Category = "Upsell"
	CategoryAlignment Category = "Alignment"
	CategoryNote      Category = "Note"
)

// Categories lists the canonical insight categories.
var Categories = []Category{CategoryRisk, CategoryUpsell, CategoryAlignment, CategoryNote}

// IsValidCategory reports whether s is one of the canonical categories.
func IsValidCategory(s string) bool {
	switch Category(s) {
	case CategoryRisk, CategoryUpsell, CategoryAlignment, CategoryNote:
		return true
	}
	return false
}

// Feedback is the user's verdict on an insight.
type Feedback string

const (
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
)

// IsValidFeedback reports whether s is a recognized feedback value.
func IsValidFeedback(s string) bool {
	return Feedback(s) == FeedbackPositive || Feedback(s) == FeedbackNegative
}

// Insight is an LLM-derived observation about a client relationship. At most
// one structured insight exists per (communication, category) pair; a raw
// insight (nil category) holds unparsed model output when structured
// extraction produced nothing.
type Insight struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	UserID          string    `json:"user_id" gorm:"index;not null"`
	CommunicationID string    `json:"communication_id" gorm:"uniqueIndex:idx_insight_comm_category;not null"`
	ClientID        *string   `json:"client_id,omitempty" gorm:"index"`
	Category        *Category `json:"category,omitempty" gorm:"uniqueIndex:idx_insight_comm_category"`
	Summary         string    `json:"summary"`
	Evidence        string    `json:"evidence"`
	SuggestedAction string    `json:"suggested_action"`
	Confidence      float64   `json:"confidence"`
	Feedback        *Feedback `json:"feedback,omitempty"`
	RawOutput       string    `json:"raw_output,omitempty" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Insight) TableName() string {
	return "insights"
}
