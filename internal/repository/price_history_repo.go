package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"resale_sync_v1_202609/internal/model"
)

// ==================== 价格历史仓储 ====================

// PriceHistoryRepository 价格历史仓储接口
// 历史/变更/竞品观测三条流都是 append-only
type PriceHistoryRepository interface {
	RecordPrice(ctx context.Context, point *model.PriceHistory) error
	// ListWindow 返回窗口期内某刊登的价格观测，按时间升序，limit<=0 表示不限
	ListWindow(ctx context.Context, listingID int64, days int, limit int) ([]model.PriceHistory, error)
	LatestPrice(ctx context.Context, listingID int64) (*model.PriceHistory, error)

	RecordChange(ctx context.Context, change *model.PriceChangeLog) error
	ListChanges(ctx context.Context, listingID int64, limit int) ([]model.PriceChangeLog, error)
	CountChangesSince(ctx context.Context, listingID int64, since time.Time) (int64, error)

	RecordObservation(ctx context.Context, obs *model.CompetitorObservation) error
	ListObservations(ctx context.Context, listingID int64, days int) ([]model.CompetitorObservation, error)
	LatestObservation(ctx context.Context, listingID int64) (*model.CompetitorObservation, error)
}

type priceHistoryRepo struct {
	db *gorm.DB
}

// NewPriceHistoryRepository 创建价格历史仓储
func NewPriceHistoryRepository(db *gorm.DB) PriceHistoryRepository {
	return &priceHistoryRepo{db: db}
}

func (r *priceHistoryRepo) RecordPrice(ctx context.Context, point *model.PriceHistory) error {
	if point.RecordedAt.IsZero() {
		point.RecordedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(point).Error
}

func (r *priceHistoryRepo) ListWindow(ctx context.Context, listingID int64, days int, limit int) ([]model.PriceHistory, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	query := r.db.WithContext(ctx).
		Where("listing_id = ? AND recorded_at >= ?", listingID, since).
		Order("recorded_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var points []model.PriceHistory
	err := query.Find(&points).Error
	return points, err
}

func (r *priceHistoryRepo) LatestPrice(ctx context.Context, listingID int64) (*model.PriceHistory, error) {
	var point model.PriceHistory
	err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("recorded_at DESC").
		First(&point).Error
	if err != nil {
		return nil, err
	}
	return &point, nil
}

func (r *priceHistoryRepo) RecordChange(ctx context.Context, change *model.PriceChangeLog) error {
	return r.db.WithContext(ctx).Create(change).Error
}

func (r *priceHistoryRepo) ListChanges(ctx context.Context, listingID int64, limit int) ([]model.PriceChangeLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var changes []model.PriceChangeLog
	err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("created_at DESC").
		Limit(limit).
		Find(&changes).Error
	return changes, err
}

func (r *priceHistoryRepo) CountChangesSince(ctx context.Context, listingID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.PriceChangeLog{}).
		Where("listing_id = ? AND created_at >= ?", listingID, since).
		Count(&count).Error
	return count, err
}

func (r *priceHistoryRepo) RecordObservation(ctx context.Context, obs *model.CompetitorObservation) error {
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(obs).Error
}

func (r *priceHistoryRepo) ListObservations(ctx context.Context, listingID int64, days int) ([]model.CompetitorObservation, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	var observations []model.CompetitorObservation
	err := r.db.WithContext(ctx).
		Where("listing_id = ? AND observed_at >= ?", listingID, since).
		Order("observed_at ASC").
		Find(&observations).Error
	return observations, err
}

func (r *priceHistoryRepo) LatestObservation(ctx context.Context, listingID int64) (*model.CompetitorObservation, error) {
	var obs model.CompetitorObservation
	err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("observed_at DESC").
		First(&obs).Error
	if err != nil {
		return nil, err
	}
	return &obs, nil
}
