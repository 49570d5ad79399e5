package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"resale_sync_v1_202609/internal/model"
)

// ==================== 价格推荐仓储 ====================

// RecommendationFilter 待审推荐过滤条件
type RecommendationFilter struct {
	ListingID     int64
	MinConfidence float64
	Page          int
	PageSize      int
}

// RecommendationRepository 价格推荐仓储接口
type RecommendationRepository interface {
	Create(ctx context.Context, rec *model.PriceRecommendation) error
	GetByID(ctx context.Context, id int64) (*model.PriceRecommendation, error)
	Update(ctx context.Context, rec *model.PriceRecommendation) error

	// ListPending 返回未过期的 PENDING 推荐，按置信度降序
	ListPending(ctx context.Context, filter RecommendationFilter) ([]model.PriceRecommendation, int64, error)
	// ListApprovedUnexpired 返回待落地的 APPROVED 推荐
	ListApprovedUnexpired(ctx context.Context, limit int) ([]model.PriceRecommendation, error)

	// ExpirePending 将所有超过有效期的 PENDING 推荐置为 EXPIRED，返回影响条数
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
	// CancelPendingByListing 规则重算前作废同刊登的旧 PENDING 推荐
	CancelPendingByListing(ctx context.Context, listingID int64) error

	CountByStatus(ctx context.Context) (map[model.RecommendationStatus]int64, error)
	// ListSince 返回窗口期内创建的全部推荐，用于统计
	ListSince(ctx context.Context, since time.Time) ([]model.PriceRecommendation, error)
}

type recommendationRepo struct {
	db *gorm.DB
}

// NewRecommendationRepository 创建价格推荐仓储
func NewRecommendationRepository(db *gorm.DB) RecommendationRepository {
	return &recommendationRepo{db: db}
}

func (r *recommendationRepo) Create(ctx context.Context, rec *model.PriceRecommendation) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *recommendationRepo) GetByID(ctx context.Context, id int64) (*model.PriceRecommendation, error) {
	var rec model.PriceRecommendation
	err := r.db.WithContext(ctx).First(&rec, id).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recommendationRepo) Update(ctx context.Context, rec *model.PriceRecommendation) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

func (r *recommendationRepo) ListPending(ctx context.Context, filter RecommendationFilter) ([]model.PriceRecommendation, int64, error) {
	var recs []model.PriceRecommendation
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.PriceRecommendation{}).
		Where("status = ?", model.RecommendationPending).
		Where("expires_at > ?", time.Now())

	if filter.ListingID > 0 {
		query = query.Where("listing_id = ?", filter.ListingID)
	}
	if filter.MinConfidence > 0 {
		query = query.Where("confidence >= ?", filter.MinConfidence)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	err := query.
		Order("confidence DESC, id ASC").
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Find(&recs).Error
	return recs, total, err
}

func (r *recommendationRepo) ListApprovedUnexpired(ctx context.Context, limit int) ([]model.PriceRecommendation, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []model.PriceRecommendation
	err := r.db.WithContext(ctx).
		Where("status = ?", model.RecommendationApproved).
		Where("expires_at > ?", time.Now()).
		Order("approved_at ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (r *recommendationRepo) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.PriceRecommendation{}).
		Where("status = ? AND expires_at <= ?", model.RecommendationPending, now).
		Update("status", model.RecommendationExpired)
	return result.RowsAffected, result.Error
}

func (r *recommendationRepo) CancelPendingByListing(ctx context.Context, listingID int64) error {
	return r.db.WithContext(ctx).
		Model(&model.PriceRecommendation{}).
		Where("listing_id = ? AND status = ?", listingID, model.RecommendationPending).
		Update("status", model.RecommendationCancelled).Error
}

func (r *recommendationRepo) CountByStatus(ctx context.Context) (map[model.RecommendationStatus]int64, error) {
	type result struct {
		Status model.RecommendationStatus
		Count  int64
	}
	var results []result

	err := r.db.WithContext(ctx).
		Model(&model.PriceRecommendation{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[model.RecommendationStatus]int64)
	for _, row := range results {
		stats[row.Status] = row.Count
	}
	return stats, nil
}

func (r *recommendationRepo) ListSince(ctx context.Context, since time.Time) ([]model.PriceRecommendation, error) {
	var recs []model.PriceRecommendation
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Find(&recs).Error
	return recs, err
}
