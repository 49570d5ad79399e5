package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"resale_sync_v1_202609/internal/model"
)

// ==================== 库存事件仓储 ====================

// InventoryEventRepository 库存事件仓储接口
// 事件为 append-only，唯一允许的更新是补写同步错误
type InventoryEventRepository interface {
	Create(ctx context.Context, event *model.InventoryEvent) error
	AttachSyncErrors(ctx context.Context, eventID int64, syncErrors []string) error
	ListByProduct(ctx context.Context, productID int64, limit int) ([]model.InventoryEvent, error)
	CountByProductSince(ctx context.Context, productID int64, since time.Time) (int64, error)
	CountWithErrors(ctx context.Context) (int64, error)

	// ExistsOrder 该渠道订单是否已产生过库存事件（订单拉取去重）
	ExistsOrder(ctx context.Context, m model.Marketplace, orderID string) (bool, error)
}

type inventoryEventRepo struct {
	db *gorm.DB
}

// NewInventoryEventRepository 创建库存事件仓储
func NewInventoryEventRepository(db *gorm.DB) InventoryEventRepository {
	return &inventoryEventRepo{db: db}
}

func (r *inventoryEventRepo) Create(ctx context.Context, event *model.InventoryEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *inventoryEventRepo) AttachSyncErrors(ctx context.Context, eventID int64, syncErrors []string) error {
	if len(syncErrors) == 0 {
		return nil
	}
	raw, err := json.Marshal(syncErrors)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&model.InventoryEvent{}).
		Where("id = ?", eventID).
		Update("sync_errors", datatypes.JSON(raw)).Error
}

func (r *inventoryEventRepo) ListByProduct(ctx context.Context, productID int64, limit int) ([]model.InventoryEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []model.InventoryEvent
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *inventoryEventRepo) CountByProductSince(ctx context.Context, productID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.InventoryEvent{}).
		Where("product_id = ? AND created_at >= ?", productID, since).
		Count(&count).Error
	return count, err
}

func (r *inventoryEventRepo) CountWithErrors(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.InventoryEvent{}).
		Where("sync_errors IS NOT NULL").
		Count(&count).Error
	return count, err
}

func (r *inventoryEventRepo) ExistsOrder(ctx context.Context, m model.Marketplace, orderID string) (bool, error) {
	if orderID == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.InventoryEvent{}).
		Where("marketplace = ? AND order_id = ?", m, orderID).
		Count(&count).Error
	return count > 0, err
}
