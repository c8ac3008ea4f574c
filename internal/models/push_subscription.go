package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PushSubscription is a browser push endpoint. Rows are never hard-deleted:
// unsubscribing or a dead endpoint only flips Active to false.
type PushSubscription struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Endpoint  string    `gorm:"type:text;not null;uniqueIndex" json:"endpoint"`
	P256DH    string    `gorm:"column:keys_p256dh;type:text;not null" json:"p256dh"`
	Auth      string    `gorm:"column:keys_auth;type:text;not null" json:"auth"`
	UserAgent string    `gorm:"type:text" json:"user_agent"`
	Active    bool      `gorm:"not null;default:true;index" json:"active"`
	LastUsed  time.Time `gorm:"column:last_used" json:"last_used"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *PushSubscription) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
