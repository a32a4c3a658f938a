package model

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MinRelevanceScore = 1.0
	MaxRelevanceScore = 10.0
)

// Insight is one scored statement derived from a summary. Its lifetime is
// bound to the parent summary.
type Insight struct {
	ID             string    `gorm:"type:char(36);primaryKey" json:"id" bson:"_id"`
	SummaryID      string    `gorm:"type:char(36);not null;index" json:"summary_id" bson:"summary_id"`
	Position       int       `gorm:"not null" json:"position" bson:"position"`
	Content        string    `gorm:"type:text;not null" json:"content" bson:"content"`
	RelevanceScore float64   `gorm:"not null" json:"relevance_score" bson:"relevance_score"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false" json:"created_at" bson:"created_at"`
}

func (i *Insight) BeforeCreate(tx *gorm.DB) error {
	i.EnsureID()
	return nil
}

func (i *Insight) EnsureID() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
}

// ClampRelevance forces a score into [MinRelevanceScore, MaxRelevanceScore].
func ClampRelevance(score float64) float64 {
	if math.IsNaN(score) || score < MinRelevanceScore {
		return MinRelevanceScore
	}
	if score > MaxRelevanceScore {
		return MaxRelevanceScore
	}
	return score
}
