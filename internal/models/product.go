package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Season is the collection season of a product.
// Keep values stable because they are part of the public API.
type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
	SeasonWinter Season = "winter"
)

type Product struct {
	ID           string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Season       Season     `gorm:"type:varchar(16);not null;index" json:"season"`
	Year         int        `gorm:"not null;index" json:"year"`
	Title        string     `gorm:"type:varchar(255);not null" json:"title"`
	Description  string     `gorm:"type:text;not null" json:"description"`
	Images       StringList `gorm:"column:img;not null" json:"images"`
	Sizes        StringList `gorm:"column:sizes;not null" json:"sizes"`
	PurchaseLink *string    `gorm:"type:text" json:"purchase_link"`
	Colors       StringList `gorm:"column:color;not null" json:"colors"`
	VideoURL     *string    `gorm:"column:video_url;type:text" json:"video_url"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
