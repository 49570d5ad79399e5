package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"resale_sync_v1_202609/internal/model"
)

// ==================== 竞品跟踪仓储 ====================

// CompetitorRepository 竞品跟踪与告警仓储接口
type CompetitorRepository interface {
	CreateTracker(ctx context.Context, tracker *model.CompetitorTracker) error
	GetTracker(ctx context.Context, id int64) (*model.CompetitorTracker, error)
	UpdateTracker(ctx context.Context, tracker *model.CompetitorTracker) error
	DeleteTracker(ctx context.Context, id int64) error
	ListEnabled(ctx context.Context) ([]model.CompetitorTracker, error)
	ListByListing(ctx context.Context, listingID int64) ([]model.CompetitorTracker, error)

	// RecordCheck 落一次检查结果：成功时刷新最新价并清零失败计数
	RecordCheck(ctx context.Context, trackerID int64, price *float64, checkErr error) error

	CreateAlert(ctx context.Context, alert *model.CompetitorAlert) error
	ListUnacknowledged(ctx context.Context, limit int) ([]model.CompetitorAlert, error)
	AcknowledgeAlert(ctx context.Context, id int64) error
}

type competitorRepo struct {
	db *gorm.DB
}

// NewCompetitorRepository 创建竞品跟踪仓储
func NewCompetitorRepository(db *gorm.DB) CompetitorRepository {
	return &competitorRepo{db: db}
}

func (r *competitorRepo) CreateTracker(ctx context.Context, tracker *model.CompetitorTracker) error {
	return r.db.WithContext(ctx).Create(tracker).Error
}

func (r *competitorRepo) GetTracker(ctx context.Context, id int64) (*model.CompetitorTracker, error) {
	var tracker model.CompetitorTracker
	err := r.db.WithContext(ctx).First(&tracker, id).Error
	if err != nil {
		return nil, err
	}
	return &tracker, nil
}

func (r *competitorRepo) UpdateTracker(ctx context.Context, tracker *model.CompetitorTracker) error {
	return r.db.WithContext(ctx).Save(tracker).Error
}

func (r *competitorRepo) DeleteTracker(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.CompetitorTracker{}, id).Error
}

func (r *competitorRepo) ListEnabled(ctx context.Context) ([]model.CompetitorTracker, error) {
	var trackers []model.CompetitorTracker
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Find(&trackers).Error
	return trackers, err
}

func (r *competitorRepo) ListByListing(ctx context.Context, listingID int64) ([]model.CompetitorTracker, error) {
	var trackers []model.CompetitorTracker
	err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Find(&trackers).Error
	return trackers, err
}

func (r *competitorRepo) RecordCheck(ctx context.Context, trackerID int64, price *float64, checkErr error) error {
	now := time.Now()
	updates := map[string]interface{}{
		"last_checked_at": &now,
	}
	if checkErr != nil {
		updates["fail_count"] = gorm.Expr("fail_count + 1")
	} else {
		updates["last_price"] = price
		updates["fail_count"] = 0
	}
	return r.db.WithContext(ctx).
		Model(&model.CompetitorTracker{}).
		Where("id = ?", trackerID).
		Updates(updates).Error
}

func (r *competitorRepo) CreateAlert(ctx context.Context, alert *model.CompetitorAlert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *competitorRepo) ListUnacknowledged(ctx context.Context, limit int) ([]model.CompetitorAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	var alerts []model.CompetitorAlert
	err := r.db.WithContext(ctx).
		Where("acknowledged = ?", false).
		Order("created_at DESC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

func (r *competitorRepo) AcknowledgeAlert(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.CompetitorAlert{}).
		Where("id = ?", id).
		Update("acknowledged", true).Error
}
