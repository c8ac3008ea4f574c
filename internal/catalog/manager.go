package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tariel-x/lookbook/internal/events"
	"github.com/tariel-x/lookbook/internal/media"
	"github.com/tariel-x/lookbook/internal/metrics"
	"github.com/tariel-x/lookbook/internal/models"

	lru "github.com/hashicorp/golang-lru/v2"
)

// AssetCleaner is the media side of a mutation. *media.Synchronizer
// satisfies it.
type AssetCleaner interface {
	DeleteAssets(ctx context.Context, refs []string, kind media.Kind) media.Report
}

// CleanupSummary is returned with every update and delete. It never affects
// whether the mutation itself succeeded.
type CleanupSummary struct {
	DeletedImages int           `json:"deleted_images"`
	DeletedVideo  bool          `json:"deleted_video"`
	Images        media.Report  `json:"images"`
	Video         *media.Report `json:"video,omitempty"`
}

type UpdateResult struct {
	Product *models.Product `json:"product"`
	Cleanup CleanupSummary  `json:"cleanup"`
}

type Manager struct {
	repo     Repository
	cleaner  AssetCleaner
	cache    *lru.Cache[string, models.Product]
	cacheMu  sync.Mutex
	cacheGen uint64 // bumped by every invalidation
	events   events.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	nowFn    func() time.Time
}

type Options struct {
	Logger    *slog.Logger
	Events    events.Publisher
	Metrics   *metrics.Metrics
	CacheSize int
}

func NewManager(repo Repository, cleaner AssetCleaner, opts Options) (*Manager, error) {
	m := &Manager{
		repo:    repo,
		cleaner: cleaner,
		events:  opts.Events,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		nowFn:   time.Now,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, models.Product](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("product cache: %w", err)
		}
		m.cache = cache
	}
	return m, nil
}

func (m *Manager) List(ctx context.Context, filter ListFilter) ([]models.Product, error) {
	return m.repo.List(ctx, filter)
}

func (m *Manager) Get(ctx context.Context, id string) (*models.Product, error) {
	if m.cache != nil {
		if p, ok := m.cache.Get(id); ok {
			return &p, nil
		}
	}
	gen := m.generation()
	p, err := m.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: id}
		}
		return nil, err
	}
	m.rememberAt(p, gen)
	return p, nil
}

func (m *Manager) Create(ctx context.Context, input ProductInput) (*models.Product, error) {
	valid, err := input.Validate()
	if err != nil {
		return nil, err
	}

	now := m.nowFn()
	p := &models.Product{CreatedAt: now, UpdatedAt: now}
	valid.apply(p)

	if err := m.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	m.rememberAt(p, m.generation())
	m.metrics.CatalogMutation("create")
	m.publish(events.TypeProductCreated, p)
	m.logger.InfoContext(ctx, "product created", "product_id", p.ID, "images", len(p.Images))
	return p, nil
}

// Update commits the new row first, then removes media the row no longer
// references. Cleanup problems are reported in the summary only.
func (m *Manager) Update(ctx context.Context, id string, input ProductInput) (*UpdateResult, error) {
	current, err := m.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: id}
		}
		return nil, err
	}

	valid, err := input.Validate()
	if err != nil {
		return nil, err
	}

	updated := *current
	valid.apply(&updated)
	updated.UpdatedAt = m.nowFn()

	orphanedImages := OrphanedAssets(current.Images, updated.Images)
	orphanedVideo := orphanedVideo(current.VideoURL, updated.VideoURL)

	if err := m.repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: id}
		}
		return nil, err
	}
	m.forget(id)
	m.metrics.CatalogMutation("update")

	cleanup := m.cleanup(ctx, orphanedImages, orphanedVideo)
	m.logger.InfoContext(ctx, "product updated",
		"product_id", id,
		"orphaned_images", len(orphanedImages),
		"deleted_images", cleanup.DeletedImages,
		"deleted_video", cleanup.DeletedVideo,
	)
	m.publish(events.TypeProductUpdated, &updated)

	return &UpdateResult{Product: &updated, Cleanup: cleanup}, nil
}

// Delete removes the row, then makes a best-effort pass over all of its
// media. The summary is returned whatever the object store says.
func (m *Manager) Delete(ctx context.Context, id string) (*CleanupSummary, error) {
	current, err := m.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: id}
		}
		return nil, err
	}

	if err := m.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: id}
		}
		return nil, err
	}
	m.forget(id)
	m.metrics.CatalogMutation("delete")

	var video []string
	if current.VideoURL != nil {
		video = []string{*current.VideoURL}
	}
	cleanup := m.cleanup(ctx, current.Images, video)
	m.logger.InfoContext(ctx, "product deleted",
		"product_id", id,
		"deleted_images", cleanup.DeletedImages,
		"deleted_video", cleanup.DeletedVideo,
	)
	m.publish(events.TypeProductDeleted, map[string]string{"id": id})

	return &cleanup, nil
}

// cleanup runs after the row is committed, so it must outlive the request.
func (m *Manager) cleanup(ctx context.Context, images, video []string) CleanupSummary {
	ctx = context.WithoutCancel(ctx)

	var summary CleanupSummary
	summary.Images = m.cleaner.DeleteAssets(ctx, images, media.KindImage)
	summary.DeletedImages = summary.Images.Deleted
	if len(video) > 0 {
		report := m.cleaner.DeleteAssets(ctx, video, media.KindVideo)
		summary.Video = &report
		summary.DeletedVideo = report.Deleted > 0
	}
	return summary
}

func (m *Manager) generation() uint64 {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	return m.cacheGen
}

// rememberAt caches p only if nothing was invalidated since gen was read, so
// a read that raced with a commit never outlives it.
func (m *Manager) rememberAt(p *models.Product, gen uint64) {
	if m.cache == nil || p == nil {
		return
	}
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if m.cacheGen != gen {
		return
	}
	m.cache.Add(p.ID, *p)
}

func (m *Manager) forget(id string) {
	if m.cache == nil {
		return
	}
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	m.cacheGen++
	m.cache.Remove(id)
}

func (m *Manager) publish(kind string, data any) {
	if m.events == nil {
		return
	}
	m.events.Publish(events.Event{Type: kind, At: m.nowFn(), Data: data})
}

// OrphanedAssets returns refs present in before but absent from after,
// compared by value. Order changes alone produce nothing, and each orphan is
// listed once.
func OrphanedAssets(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, ref := range after {
		keep[ref] = struct{}{}
	}
	seen := make(map[string]struct{}, len(before))
	var orphans []string
	for _, ref := range before {
		if _, ok := keep[ref]; ok {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		orphans = append(orphans, ref)
	}
	return orphans
}

// orphanedVideo reports the previous video when it was removed or replaced.
func orphanedVideo(before, after *string) []string {
	if before == nil || *before == "" {
		return nil
	}
	if after != nil && *after == *before {
		return nil
	}
	return []string{*before}
}
