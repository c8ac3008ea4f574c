package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/tariel-x/lookbook/internal/models"

	"gorm.io/gorm"
)

type ListFilter struct {
	Season models.Season
	Year   int
	Limit  int
}

// Repository is the relational side of the catalog. Update is a single
// statement and is never wrapped in a transaction with media cleanup.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]models.Product, error)
	Get(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, p *models.Product) error
	Update(ctx context.Context, p *models.Product) error
	Delete(ctx context.Context, id string) error
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) List(ctx context.Context, filter ListFilter) ([]models.Product, error) {
	q := r.db.WithContext(ctx).Model(&models.Product{})
	if filter.Season != "" {
		q = q.Where("season = ?", filter.Season)
	}
	if filter.Year != 0 {
		q = q.Where("year = ?", filter.Year)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var products []models.Product
	if err := q.Order("created_at DESC").Order("id").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (r *GormRepository) Get(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return &p, nil
}

func (r *GormRepository) Create(ctx context.Context, p *models.Product) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *GormRepository) Update(ctx context.Context, p *models.Product) error {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"season":        p.Season,
			"year":          p.Year,
			"title":         p.Title,
			"description":   p.Description,
			"img":           p.Images,
			"sizes":         p.Sizes,
			"purchase_link": p.PurchaseLink,
			"color":         p.Colors,
			"video_url":     p.VideoURL,
			"updated_at":    p.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update product %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *GormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete product %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}
