package push

import (
	"context"
	"fmt"

	"github.com/tariel-x/lookbook/internal/models"

	"gorm.io/gorm"
)

const MaxHistory = 50

// Recorder appends send summaries. There is deliberately no update or delete.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) Record(ctx context.Context, rec *models.NotificationRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

// History returns the latest records, newest first. limit is clamped to
// (0, MaxHistory].
func (r *Recorder) History(ctx context.Context, limit int) ([]models.NotificationRecord, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	var records []models.NotificationRecord
	if err := r.db.WithContext(ctx).Order("sent_at DESC").Order("id").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load notification history: %w", err)
	}
	return records, nil
}
