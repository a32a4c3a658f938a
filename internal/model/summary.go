package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Summary is the persisted condensation of one uploaded document.
// ID is a UUID string so records move between the MySQL and MongoDB stores unchanged.
type Summary struct {
	ID         string    `gorm:"type:char(36);primaryKey" json:"id" bson:"_id"`
	UserID     uint      `gorm:"not null;index" json:"user_id" bson:"user_id"`
	Title      string    `gorm:"size:256;not null" json:"title" bson:"title"`
	Content    string    `gorm:"type:text;not null" json:"content" bson:"content"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false" json:"created_at" bson:"created_at"`
	ModifiedAt time.Time `gorm:"index" json:"modified_at" bson:"modified_at"`
}

func (s *Summary) BeforeCreate(tx *gorm.DB) error {
	s.EnsureID()
	return nil
}

func (s *Summary) EnsureID() {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
}
