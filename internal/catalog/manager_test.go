package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tariel-x/lookbook/internal/database"
	"github.com/tariel-x/lookbook/internal/media"
	"github.com/tariel-x/lookbook/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const assetBase = "https://res.cloudinary.com/lookbook/image/upload/v1700000000/products/"

func asset(name string) string { return assetBase + name + ".jpg" }

type fakeStore struct {
	mu      sync.Mutex
	deleted []string
	failAll bool
}

func (s *fakeStore) Delete(_ context.Context, publicID string, kind media.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, string(kind)+":"+publicID)
	if s.failAll {
		return errors.New("object store unavailable")
	}
	return nil
}

func (s *fakeStore) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.deleted...)
	sort.Strings(out)
	return out
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestManager(t *testing.T, store media.ObjectStore) (*Manager, *GormRepository) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewGormRepository(newTestDB(t))
	m, err := NewManager(repo, media.NewSynchronizer(store, log, nil), Options{Logger: log, CacheSize: 16})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	base := time.Unix(1_780_000_000, 0)
	tick := 0
	m.nowFn = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return m, repo
}

func validInput(images ...string) ProductInput {
	return ProductInput{
		Season:      models.SeasonAutumn,
		Year:        2027,
		Title:       "Wool coat",
		Description: "Double-breasted coat in heavy wool",
		Images:      images,
		Sizes:       []string{"S", "M"},
		Colors:      []string{"camel"},
	}
}

func strPtr(s string) *string { return &s }

func TestCreatePersistsValidProduct(t *testing.T) {
	m, repo := newTestManager(t, &fakeStore{})
	ctx := context.Background()

	p, err := m.Create(ctx, validInput(asset("a"), asset("b")))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if p.ID == "" {
		t.Fatalf("expected generated id")
	}

	stored, err := repo.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(stored.Images) != 2 || stored.Images[0] != asset("a") || stored.Images[1] != asset("b") {
		t.Fatalf("images not round-tripped in order: %v", stored.Images)
	}
	if len(stored.Colors) != 1 || stored.VideoURL != nil {
		t.Fatalf("unexpected stored product %+v", stored)
	}
}

func TestCreateRejectsInvalidInputWithoutWriting(t *testing.T) {
	m, repo := newTestManager(t, &fakeStore{})
	ctx := context.Background()

	tooMany := validInput(asset("1"), asset("2"), asset("3"), asset("4"), asset("5"), asset("6"))
	noColors := validInput(asset("1"))
	noColors.Colors = nil
	badSize := validInput(asset("1"))
	badSize.Sizes = []string{"XXL"}
	badYear := validInput(asset("1"))
	badYear.Year = 2025
	badVideo := validInput(asset("1"))
	badVideo.VideoURL = strPtr("not a url")

	cases := map[string]struct {
		input ProductInput
		field string
	}{
		"too many images": {tooMany, "images"},
		"no images":       {validInput(), "images"},
		"no colors":       {noColors, "colors"},
		"bad size":        {badSize, "sizes[0]"},
		"bad year":        {badYear, "year"},
		"bad video":       {badVideo, "video_url"},
	}

	for name, tc := range cases {
		_, err := m.Create(ctx, tc.input)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", name, err)
		}
		if verr.Field != tc.field {
			t.Fatalf("%s: expected field %q, got %q", name, tc.field, verr.Field)
		}
	}

	products, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("expected no rows after rejected creates, got %d", len(products))
	}
}

func TestUpdateDeletesOnlyOrphanedImages(t *testing.T) {
	store := &fakeStore{}
	m, repo := newTestManager(t, store)
	ctx := context.Background()

	p, err := m.Create(ctx, validInput(asset("a"), asset("b"), asset("c")))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	res, err := m.Update(ctx, p.ID, validInput(asset("b"), asset("c"), asset("d")))
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if got := store.calls(); len(got) != 1 || got[0] != "image:products/a" {
		t.Fatalf("expected exactly one deletion of a, got %v", got)
	}
	if res.Cleanup.DeletedImages != 1 || res.Cleanup.DeletedVideo {
		t.Fatalf("unexpected cleanup summary %+v", res.Cleanup)
	}

	stored, err := repo.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	want := []string{asset("b"), asset("c"), asset("d")}
	for i := range want {
		if stored.Images[i] != want[i] {
			t.Fatalf("stored images = %v, want %v", stored.Images, want)
		}
	}
}

func TestUpdateReorderTriggersNoDeletion(t *testing.T) {
	store := &fakeStore{}
	m, _ := newTestManager(t, store)
	ctx := context.Background()

	p, _ := m.Create(ctx, validInput(asset("a"), asset("b")))
	if _, err := m.Update(ctx, p.ID, validInput(asset("b"), asset("a"))); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if got := store.calls(); len(got) != 0 {
		t.Fatalf("reorder must not delete anything, got %v", got)
	}
}

func TestUpdateRemovedVideoIsCleanedUp(t *testing.T) {
	store := &fakeStore{}
	m, _ := newTestManager(t, store)
	ctx := context.Background()

	in := validInput(asset("a"))
	in.VideoURL = strPtr("https://res.cloudinary.com/lookbook/video/upload/v1/runway/look1.mp4")
	p, _ := m.Create(ctx, in)

	in.VideoURL = strPtr("   ")
	res, err := m.Update(ctx, p.ID, in)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !res.Cleanup.DeletedVideo || res.Product.VideoURL != nil {
		t.Fatalf("expected video removal, got %+v", res.Cleanup)
	}
	if got := store.calls(); len(got) != 1 || got[0] != "video:runway/look1" {
		t.Fatalf("unexpected deletions %v", got)
	}
}

func TestUpdateCommitsEvenWhenCleanupFails(t *testing.T) {
	store := &fakeStore{failAll: true}
	m, repo := newTestManager(t, store)
	ctx := context.Background()

	p, _ := m.Create(ctx, validInput(asset("a"), asset("b")))
	res, err := m.Update(ctx, p.ID, validInput(asset("b")))
	if err != nil {
		t.Fatalf("cleanup failure must not fail update: %v", err)
	}
	if res.Cleanup.Images.Failed != 1 || res.Cleanup.DeletedImages != 0 {
		t.Fatalf("unexpected cleanup summary %+v", res.Cleanup)
	}
	stored, _ := repo.Get(ctx, p.ID)
	if len(stored.Images) != 1 || stored.Images[0] != asset("b") {
		t.Fatalf("row should hold new images, got %v", stored.Images)
	}
}

func TestUpdateUnknownProduct(t *testing.T) {
	store := &fakeStore{}
	m, _ := newTestManager(t, store)

	_, err := m.Update(context.Background(), "missing", validInput(asset("a")))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("NotFoundError should unwrap to ErrProductNotFound")
	}
	if len(store.calls()) != 0 {
		t.Fatalf("no cleanup expected")
	}
}

func TestUpdateInvalidInputLeavesRowUntouched(t *testing.T) {
	store := &fakeStore{}
	m, repo := newTestManager(t, store)
	ctx := context.Background()

	p, _ := m.Create(ctx, validInput(asset("a")))
	bad := validInput(asset("b"))
	bad.Title = "no"
	if _, err := m.Update(ctx, p.ID, bad); err == nil {
		t.Fatalf("expected validation error")
	}
	stored, _ := repo.Get(ctx, p.ID)
	if stored.Images[0] != asset("a") || len(store.calls()) != 0 {
		t.Fatalf("row or media changed after rejected update")
	}
}

func TestDeleteRemovesRowEvenIfCleanupFails(t *testing.T) {
	store := &fakeStore{failAll: true}
	m, repo := newTestManager(t, store)
	ctx := context.Background()

	in := validInput(asset("a"), asset("b"))
	in.VideoURL = strPtr("https://res.cloudinary.com/lookbook/video/upload/v3/runway/v.mp4")
	p, _ := m.Create(ctx, in)
	if _, err := m.Get(ctx, p.ID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	summary, err := m.Delete(ctx, p.ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got := store.calls(); len(got) != 3 {
		t.Fatalf("expected 3 deletion attempts, got %v", got)
	}
	if summary.DeletedImages != 0 || summary.DeletedVideo || summary.Images.Failed != 2 || summary.Video.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if _, err := repo.Get(ctx, p.ID); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("row should be gone, got %v", err)
	}
	if _, err := m.Get(ctx, p.ID); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("cache should be invalidated, got %v", err)
	}
}

func TestDeleteUnknownProduct(t *testing.T) {
	m, _ := newTestManager(t, &fakeStore{})
	if _, err := m.Delete(context.Background(), "nope"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrphanedAssets(t *testing.T) {
	got := OrphanedAssets([]string{"a", "b", "a", "c"}, []string{"c", "d"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected orphans %v", got)
	}
	if got := OrphanedAssets([]string{"a", "b"}, []string{"b", "a"}); len(got) != 0 {
		t.Fatalf("reorder produced orphans %v", got)
	}
}

// pausingRepo holds the first Get after it has read the row until release
// is closed.
type pausingRepo struct {
	*GormRepository
	once    sync.Once
	fetched chan struct{}
	release chan struct{}
}

func (r *pausingRepo) Get(ctx context.Context, id string) (*models.Product, error) {
	p, err := r.GormRepository.Get(ctx, id)
	r.once.Do(func() {
		close(r.fetched)
		<-r.release
	})
	return p, err
}

func TestGetRacingUpdateDoesNotCacheOldRow(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := &pausingRepo{
		GormRepository: NewGormRepository(newTestDB(t)),
		fetched:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	m, err := NewManager(repo, media.NewSynchronizer(&fakeStore{}, log, nil), Options{Logger: log, CacheSize: 16})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	valid, err := validInput(asset("a")).Validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	p := &models.Product{}
	valid.apply(p)
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("seed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Get(ctx, p.ID)
		done <- err
	}()
	<-repo.fetched

	in := validInput(asset("b"))
	in.Title = "Wool coat v2"
	if _, err := m.Update(ctx, p.ID, in); err != nil {
		t.Fatalf("update: %v", err)
	}
	close(repo.release)
	if err := <-done; err != nil {
		t.Fatalf("racing get: %v", err)
	}

	got, err := m.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Wool coat v2" || len(got.Images) != 1 || got.Images[0] != asset("b") {
		t.Fatalf("stale row served: title=%q images=%q", got.Title, got.Images)
	}
}
