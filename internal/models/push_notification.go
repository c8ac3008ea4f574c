package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationRecord is one line of the send history. Aggregate only, written
// once per send.
type NotificationRecord struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title           string    `gorm:"type:text;not null" json:"title"`
	Body            string    `gorm:"type:text;not null" json:"body"`
	URL             string    `gorm:"type:text" json:"url"`
	Icon            string    `gorm:"type:text" json:"icon"`
	Image           string    `gorm:"type:text" json:"image"`
	Tag             string    `gorm:"type:varchar(100)" json:"tag"`
	RecipientsCount int       `gorm:"not null" json:"recipients_count"`
	SuccessCount    int       `gorm:"not null" json:"success_count"`
	FailureCount    int       `gorm:"not null" json:"failure_count"`
	SentAt          time.Time `gorm:"not null;index" json:"sent_at"`
}

func (NotificationRecord) TableName() string {
	return "push_notifications"
}

func (n *NotificationRecord) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}
