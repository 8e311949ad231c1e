package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-import-service/internal/models"
	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cache TTL constants
const (
	RunCacheTTL        = 5 * time.Second // runs change while processing
	RecentRunsCacheTTL = 5 * time.Second
)

var (
	ErrNotFound     = errors.New("not found")
	ErrStateChanged = errors.New("import run is no longer in the expected state")
)

// ImportRepositoryInterface is the persistence surface of the import pipeline
type ImportRepositoryInterface interface {
	WithTransaction(ctx context.Context, fn func(txRepo ImportRepositoryInterface) error) error

	// Run ledger
	CreateRun(ctx context.Context, run *models.ImportRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.ImportRun, error)
	SaveRun(ctx context.Context, run *models.ImportRun) error
	TransitionRun(ctx context.Context, id uuid.UUID, from models.ImportStatus, updates map[string]interface{}) error
	ListRuns(ctx context.Context, limit, offset int) ([]models.ImportRun, int64, error)
	RecentRuns(ctx context.Context, limit int) ([]models.ImportRun, error)
	CreateRowErrors(ctx context.Context, rowErrors []models.RowError) error
	ListRowErrors(ctx context.Context, runID uuid.UUID, attempt int) ([]models.RowError, error)

	// Catalog
	GetOrCreateCategory(ctx context.Context, category *models.Category) (bool, error)
	UpsertProduct(ctx context.Context, product *models.Product) (bool, error)
}

// ImportRepository is the GORM implementation of ImportRepositoryInterface
type ImportRepository struct {
	db    *gorm.DB
	cache *cache.CacheLayer
}

func NewImportRepository(db *gorm.DB, redis *redis.Client) *ImportRepository {
	repo := &ImportRepository{db: db}

	if redis != nil {
		cacheConfig := cache.CacheConfig{
			L1Enabled:  true,
			L1MaxItems: 1000,
			L1TTL:      2 * time.Second,
			DefaultTTL: RunCacheTTL,
			KeyPrefix:  "tesseract:imports:",
		}
		repo.cache = cache.NewCacheLayerFromClient(redis, cacheConfig)
	}

	return repo
}

// WithTransaction runs fn inside a transaction. Calling it on a repository that is
// already bound to a transaction opens a savepoint instead.
func (r *ImportRepository) WithTransaction(ctx context.Context, fn func(txRepo ImportRepositoryInterface) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ImportRepository{db: tx, cache: r.cache})
	})
}

func runCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("run:%s", id.String())
}

func (r *ImportRepository) invalidateRunCaches(ctx context.Context, id uuid.UUID) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, runCacheKey(id))
	_ = r.cache.DeletePattern(ctx, "runs:recent:*")
}

// --- Run ledger ---

func (r *ImportRepository) CreateRun(ctx context.Context, run *models.ImportRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create import run: %w", err)
	}
	r.invalidateRunCaches(ctx, run.ID)
	return nil
}

func (r *ImportRepository) GetRun(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	load := func() (*models.ImportRun, error) {
		var run models.ImportRun
		if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		return &run, nil
	}

	// Transaction-bound reads must see uncommitted state
	if r.cache == nil || r.inTransaction() {
		return load()
	}

	var run models.ImportRun
	err := r.cache.GetOrSetJSON(ctx, runCacheKey(id), &run, RunCacheTTL, func() (any, error) {
		return load()
	})
	if err != nil {
		// the cache layer may not preserve ErrNotFound
		return load()
	}
	return &run, nil
}

// SaveRun writes every column of the run
func (r *ImportRepository) SaveRun(ctx context.Context, run *models.ImportRun) error {
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("failed to save import run %s: %w", run.ID, err)
	}
	r.invalidateRunCaches(ctx, run.ID)
	return nil
}

// TransitionRun applies updates only when the run is currently in state from.
// It returns ErrNotFound for unknown runs and ErrStateChanged when the guard fails.
func (r *ImportRepository) TransitionRun(ctx context.Context, id uuid.UUID, from models.ImportStatus, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.ImportRun{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update import run %s: %w", id, result.Error)
	}
	r.invalidateRunCaches(ctx, id)
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ImportRun{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStateChanged
}

func (r *ImportRepository) ListRuns(ctx context.Context, limit, offset int) ([]models.ImportRun, int64, error) {
	var runs []models.ImportRun
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ImportRun{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&runs).Error
	return runs, total, err
}

func (r *ImportRepository) RecentRuns(ctx context.Context, limit int) ([]models.ImportRun, error) {
	load := func() ([]models.ImportRun, error) {
		var runs []models.ImportRun
		err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&runs).Error
		return runs, err
	}
	if r.cache == nil || r.inTransaction() {
		return load()
	}

	var runs []models.ImportRun
	key := fmt.Sprintf("runs:recent:%d", limit)
	err := r.cache.GetOrSetJSON(ctx, key, &runs, RecentRunsCacheTTL, func() (any, error) {
		return load()
	})
	return runs, err
}

func (r *ImportRepository) CreateRowErrors(ctx context.Context, rowErrors []models.RowError) error {
	if len(rowErrors) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(rowErrors, 200).Error; err != nil {
		return fmt.Errorf("failed to record row errors: %w", err)
	}
	return nil
}

func (r *ImportRepository) ListRowErrors(ctx context.Context, runID uuid.UUID, attempt int) ([]models.RowError, error) {
	var rowErrors []models.RowError
	err := r.db.WithContext(ctx).
		Where("run_id = ? AND attempt = ?", runID, attempt).
		Order("row_number ASC, created_at ASC").
		Find(&rowErrors).Error
	return rowErrors, err
}

// --- Catalog ---

// GetOrCreateCategory inserts the category unless one with the same name exists.
// On return category holds the stored row; the bool reports whether it was created.
func (r *ImportRepository) GetOrCreateCategory(ctx context.Context, category *models.Category) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(category)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create category '%s': %w", category.Name, result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	name := category.Name
	*category = models.Category{}
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(category).Error; err != nil {
		return false, fmt.Errorf("failed to lookup category '%s': %w", name, err)
	}
	return false, nil
}

// UpsertProduct creates the product or updates the row with the same SKU.
// Sale price and description are only overwritten when set on product.
// On return product holds the stored row; the bool reports whether it was created.
func (r *ImportRepository) UpsertProduct(ctx context.Context, product *models.Product) (bool, error) {
	db := r.db.WithContext(ctx)

	// Slugs built from different name/SKU pairs can still coincide
	var owner string
	if err := db.Model(&models.Product{}).
		Select("sku").
		Where("slug = ? AND sku <> ?", product.Slug, product.SKU).
		Limit(1).
		Scan(&owner).Error; err != nil {
		return false, fmt.Errorf("failed to check slug '%s': %w", product.Slug, err)
	}
	if owner != "" {
		product.Slug += "-" + models.SKUDigest(product.SKU)
	}

	result := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sku"}}, DoNothing: true}).
		Create(product)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create product '%s': %w", product.SKU, result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	updates := map[string]interface{}{
		"name":           product.Name,
		"price":          product.Price,
		"stock_quantity": product.StockQuantity,
		"unit":           product.Unit,
		"category_id":    product.CategoryID,
	}
	if product.SalePrice != nil {
		updates["sale_price"] = *product.SalePrice
	}
	if product.Description != nil {
		updates["description"] = *product.Description
	}

	sku := product.SKU
	if err := db.Model(&models.Product{}).Where("sku = ?", sku).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("failed to update product '%s': %w", sku, err)
	}

	*product = models.Product{}
	if err := db.Where("sku = ?", sku).First(product).Error; err != nil {
		return false, fmt.Errorf("failed to reload product '%s': %w", sku, err)
	}
	return false, nil
}

func (r *ImportRepository) inTransaction() bool {
	committer, ok := r.db.Statement.ConnPool.(gorm.TxCommitter)
	return ok && committer != nil
}
