package model

import "gorm.io/datatypes"

// ==================== 库存事件 ====================

// InventoryEventType 库存变动类型
type InventoryEventType string

const (
	InventoryEventSale       InventoryEventType = "SALE"
	InventoryEventRestock    InventoryEventType = "RESTOCK"
	InventoryEventAdjustment InventoryEventType = "ADJUSTMENT"
	InventoryEventReturn     InventoryEventType = "RETURN"
	InventoryEventSync       InventoryEventType = "SYNC"
	InventoryEventReserved   InventoryEventType = "RESERVED"
)

// InventoryEvent 库存变动流水（append-only）
// 记录决策时刻的库存值；创建后只允许补写 SyncErrors
type InventoryEvent struct {
	BaseModel

	ProductID int64              `gorm:"index;not null" json:"product_id"`
	EventType InventoryEventType `gorm:"size:20;index;not null" json:"event_type"`

	Quantity  int `gorm:"not null" json:"quantity"`
	PrevStock int `gorm:"not null" json:"prev_stock"`
	NewStock  int `gorm:"not null" json:"new_stock"`

	// --- 变动来源 ---
	Marketplace Marketplace `gorm:"size:30" json:"marketplace"`
	OrderID     string      `gorm:"size:100" json:"order_id"`
	Reason      string      `gorm:"size:255" json:"reason"`

	// --- 同步传播中各渠道的错误（事后补写） ---
	SyncErrors datatypes.JSON `gorm:"type:json" json:"sync_errors"`
}

func (InventoryEvent) TableName() string {
	return "inventory_events"
}
