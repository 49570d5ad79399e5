package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"resale_sync_v1_202609/internal/model"
)

// ==================== 刊登仓储 ====================

// ListingRepository 刊登仓储接口
type ListingRepository interface {
	Create(ctx context.Context, listing *model.Listing) error
	GetByID(ctx context.Context, id int64) (*model.Listing, error)
	Update(ctx context.Context, listing *model.Listing) error
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	UpdatePrice(ctx context.Context, id int64, price float64) error
	ListByProduct(ctx context.Context, productID int64) ([]model.Listing, error)
	GetByMarketplaceID(ctx context.Context, m model.Marketplace, marketplaceListingID string) (*model.Listing, error)
	ListActive(ctx context.Context, limit int) ([]model.Listing, error)
	CountByMarketplace(ctx context.Context) (map[model.Marketplace]int64, error)

	// PauseByProduct 将商品全部刊登标记为库存暂停
	PauseByProduct(ctx context.Context, productID int64) error
	// ResumeByProduct 解除商品全部刊登的库存暂停
	ResumeByProduct(ctx context.Context, productID int64) error
}

type listingRepo struct {
	db *gorm.DB
}

// NewListingRepository 创建刊登仓储
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepo{db: db}
}

func (r *listingRepo) Create(ctx context.Context, listing *model.Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *listingRepo) GetByID(ctx context.Context, id int64) (*model.Listing, error) {
	var listing model.Listing
	err := r.db.WithContext(ctx).First(&listing, id).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *listingRepo) Update(ctx context.Context, listing *model.Listing) error {
	return r.db.WithContext(ctx).Save(listing).Error
}

func (r *listingRepo) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *listingRepo) UpdatePrice(ctx context.Context, id int64, price float64) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{"listing_price": price})
}

func (r *listingRepo) ListByProduct(ctx context.Context, productID int64) ([]model.Listing, error) {
	var listings []model.Listing
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Find(&listings).Error
	return listings, err
}

func (r *listingRepo) GetByMarketplaceID(ctx context.Context, m model.Marketplace, marketplaceListingID string) (*model.Listing, error) {
	var listing model.Listing
	err := r.db.WithContext(ctx).
		Where("marketplace = ? AND marketplace_listing_id = ?", m, marketplaceListingID).
		First(&listing).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *listingRepo) ListActive(ctx context.Context, limit int) ([]model.Listing, error) {
	q := r.db.WithContext(ctx).
		Where("status = ?", model.ListingStatusActive).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var listings []model.Listing
	err := q.Find(&listings).Error
	return listings, err
}

func (r *listingRepo) CountByMarketplace(ctx context.Context) (map[model.Marketplace]int64, error) {
	type result struct {
		Marketplace model.Marketplace
		Count       int64
	}
	var results []result

	err := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Select("marketplace, COUNT(*) as count").
		Group("marketplace").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[model.Marketplace]int64)
	for _, row := range results {
		stats[row.Marketplace] = row.Count
	}
	return stats, nil
}

func (r *listingRepo) PauseByProduct(ctx context.Context, productID int64) error {
	return r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("product_id = ?", productID).
		Updates(map[string]interface{}{
			"paused_by_inventory": true,
			"status":              model.ListingStatusPaused,
		}).Error
}

func (r *listingRepo) ResumeByProduct(ctx context.Context, productID int64) error {
	return r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("product_id = ? AND paused_by_inventory = ?", productID, true).
		Updates(map[string]interface{}{
			"paused_by_inventory": false,
			"status":              model.ListingStatusActive,
		}).Error
}

// ==================== 同步状态仓储 ====================

// SyncStateRepository 渠道同步状态仓储接口
type SyncStateRepository interface {
	// Upsert 以 (marketplace, product_id) 为冲突键写入同步结果
	Upsert(ctx context.Context, state *model.MarketplaceSyncState) error
	ListByProduct(ctx context.Context, productID int64) ([]model.MarketplaceSyncState, error)
	CountByStatus(ctx context.Context) (map[model.Marketplace]map[model.SyncStatus]int64, error)
}

type syncStateRepo struct {
	db *gorm.DB
}

// NewSyncStateRepository 创建同步状态仓储
func NewSyncStateRepository(db *gorm.DB) SyncStateRepository {
	return &syncStateRepo{db: db}
}

func (r *syncStateRepo) Upsert(ctx context.Context, state *model.MarketplaceSyncState) error {
	if state.LastSyncAt.IsZero() {
		state.LastSyncAt = time.Now()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "marketplace"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"listing_id", "sync_status", "last_sync_error", "last_sync_at",
			"local_stock", "remote_stock", "updated_at",
		}),
	}).Create(state).Error
}

func (r *syncStateRepo) ListByProduct(ctx context.Context, productID int64) ([]model.MarketplaceSyncState, error) {
	var states []model.MarketplaceSyncState
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Find(&states).Error
	return states, err
}

func (r *syncStateRepo) CountByStatus(ctx context.Context) (map[model.Marketplace]map[model.SyncStatus]int64, error) {
	type result struct {
		Marketplace model.Marketplace
		SyncStatus  model.SyncStatus
		Count       int64
	}
	var results []result

	err := r.db.WithContext(ctx).
		Model(&model.MarketplaceSyncState{}).
		Select("marketplace, sync_status, COUNT(*) as count").
		Group("marketplace, sync_status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[model.Marketplace]map[model.SyncStatus]int64)
	for _, row := range results {
		if stats[row.Marketplace] == nil {
			stats[row.Marketplace] = make(map[model.SyncStatus]int64)
		}
		stats[row.Marketplace][row.SyncStatus] = row.Count
	}
	return stats, nil
}
