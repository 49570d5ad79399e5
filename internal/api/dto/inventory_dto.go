package dto

import "resale_sync_v1_202609/internal/model"

// ==================== 库存 DTO ====================

// InventoryChangeRequest 库存变更请求
type InventoryChangeRequest struct {
	ProductID   int64                    `json:"product_id" binding:"required"`
	EventType   model.InventoryEventType `json:"event_type" binding:"required"`
	Quantity    int                      `json:"quantity" binding:"required"`
	Marketplace model.Marketplace        `json:"marketplace"`
	OrderID     string                   `json:"order_id"`
	Reason      string                   `json:"reason"`
}

// ==================== 竞品 DTO ====================

// CreateTrackerRequest 创建竞品跟踪请求
type CreateTrackerRequest struct {
	ListingID     int64             `json:"listing_id" binding:"required"`
	Marketplace   model.Marketplace `json:"marketplace"`
	CompetitorRef string            `json:"competitor_ref" binding:"required"`
}
