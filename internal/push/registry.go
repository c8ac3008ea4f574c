package push

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tariel-x/lookbook/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionInput struct {
	Endpoint  string
	P256DH    string
	Auth      string
	UserAgent string
}

type SubscriptionStats struct {
	Total             int64 `json:"total"`
	Active            int64 `json:"active"`
	Inactive          int64 `json:"inactive"`
	NotificationsSent int64 `json:"notifications_sent"`
}

// Registry owns the push_subscriptions table. Rows are only ever flipped
// between active and inactive.
type Registry struct {
	db    *gorm.DB
	nowFn func() time.Time
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db, nowFn: time.Now}
}

// Upsert registers an endpoint or revives an existing one. Keys and user
// agent are refreshed so a re-subscribing browser replaces stale keys.
func (r *Registry) Upsert(ctx context.Context, in SubscriptionInput) (*models.PushSubscription, error) {
	in.Endpoint = strings.TrimSpace(in.Endpoint)
	switch {
	case in.Endpoint == "":
		return nil, &ValidationError{Field: "endpoint", Message: "is required"}
	case in.P256DH == "":
		return nil, &ValidationError{Field: "keys.p256dh", Message: "is required"}
	case in.Auth == "":
		return nil, &ValidationError{Field: "keys.auth", Message: "is required"}
	}

	now := r.nowFn()
	sub := models.PushSubscription{
		Endpoint:  in.Endpoint,
		P256DH:    in.P256DH,
		Auth:      in.Auth,
		UserAgent: in.UserAgent,
		Active:    true,
		LastUsed:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"keys_p256dh", "keys_auth", "user_agent", "active", "last_used", "updated_at"}),
		}).
		Create(&sub).Error
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}

	var stored models.PushSubscription
	if err := r.db.WithContext(ctx).First(&stored, "endpoint = ?", in.Endpoint).Error; err != nil {
		return nil, fmt.Errorf("reload subscription: %w", err)
	}
	return &stored, nil
}

// Deactivate marks an endpoint inactive. Unknown endpoints are not an error.
func (r *Registry) Deactivate(ctx context.Context, endpoint string) error {
	err := r.db.WithContext(ctx).
		Model(&models.PushSubscription{}).
		Where("endpoint = ?", endpoint).
		Updates(map[string]any{"active": false, "updated_at": r.nowFn()}).Error
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	return nil
}

func (r *Registry) ListActive(ctx context.Context) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("created_at").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	return subs, nil
}

func (r *Registry) Stats(ctx context.Context) (SubscriptionStats, error) {
	var stats SubscriptionStats
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.PushSubscription{}).Count(&stats.Total).Error; err != nil {
		return stats, fmt.Errorf("count subscriptions: %w", err)
	}
	if err := db.Model(&models.PushSubscription{}).Where("active = ?", true).Count(&stats.Active).Error; err != nil {
		return stats, fmt.Errorf("count active subscriptions: %w", err)
	}
	if err := db.Model(&models.NotificationRecord{}).Count(&stats.NotificationsSent).Error; err != nil {
		return stats, fmt.Errorf("count notifications: %w", err)
	}
	stats.Inactive = stats.Total - stats.Active
	return stats, nil
}
