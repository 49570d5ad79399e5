package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ==================== 渠道定义 ====================

// Marketplace 外部销售渠道
type Marketplace string

const (
	MarketplaceEbay    Marketplace = "EBAY"
	MarketplaceJoom    Marketplace = "JOOM"
	MarketplaceEtsy    Marketplace = "ETSY"
	MarketplaceShopify Marketplace = "SHOPIFY"

	// Shopify Hub 子渠道：共享 Shopify 侧同一条库存记录
	MarketplaceInstagramShop Marketplace = "INSTAGRAM_SHOP"
	MarketplaceTiktokShop    Marketplace = "TIKTOK_SHOP"
)

// AllMarketplaces 全部逻辑渠道
var AllMarketplaces = []Marketplace{
	MarketplaceEbay,
	MarketplaceJoom,
	MarketplaceEtsy,
	MarketplaceShopify,
	MarketplaceInstagramShop,
	MarketplaceTiktokShop,
}

// ==================== 刊登状态 ====================

// ListingStatus 刊登状态
type ListingStatus string

const (
	ListingStatusDraft      ListingStatus = "DRAFT"
	ListingStatusPublishing ListingStatus = "PUBLISHING"
	ListingStatusActive     ListingStatus = "ACTIVE"
	ListingStatusPaused     ListingStatus = "PAUSED"
	ListingStatusError      ListingStatus = "ERROR"
	ListingStatusSold       ListingStatus = "SOLD"
)

// ==================== 刊登模型 ====================

// Listing 一个商品在一个渠道上的刊登
// 缺货只会暂停刊登，不会删除；删除仅由显式下架触发
type Listing struct {
	BaseModel

	ProductID   int64       `gorm:"index:idx_product_marketplace,unique;not null" json:"product_id"`
	Product     *Product    `gorm:"foreignKey:ProductID" json:"-"`
	Marketplace Marketplace `gorm:"size:30;index:idx_product_marketplace,unique;not null" json:"marketplace"`

	// --- 渠道侧标识 ---
	MarketplaceListingID string `gorm:"size:100;index" json:"marketplace_listing_id"`

	// --- 价格（渠道币种） ---
	ListingPrice float64 `gorm:"default:0" json:"listing_price"`
	CurrencyCode string  `gorm:"size:5" json:"currency_code"`

	// --- 状态 ---
	Status ListingStatus `gorm:"size:20;index;default:DRAFT" json:"status"`
	// PausedByInventory 库存暂停标记，与人工暂停区分
	PausedByInventory bool   `gorm:"default:false" json:"paused_by_inventory"`
	LastError         string `gorm:"size:1024" json:"last_error"`

	// --- 渠道扩展数据（SKU、hub 库存句柄等） ---
	MarketplaceData datatypes.JSON `gorm:"type:json" json:"marketplace_data"`
}

func (Listing) TableName() string {
	return "listings"
}

// DataField 读取渠道扩展数据中的字符串字段
func (l *Listing) DataField(key string) string {
	if len(l.MarketplaceData) == 0 {
		return ""
	}
	var data map[string]any
	if err := json.Unmarshal(l.MarketplaceData, &data); err != nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// ==================== 渠道同步状态 ====================

// SyncStatus 渠道同步状态
type SyncStatus string

const (
	SyncStatusSynced SyncStatus = "SYNCED"
	SyncStatusError  SyncStatus = "ERROR"
	SyncStatusStale  SyncStatus = "STALE"
)

// MarketplaceSyncState 每个 (渠道, 商品) 一行的同步审计记录
// 每次同步尝试后无论成败都要 upsert，是渠道健康度的事实来源
type MarketplaceSyncState struct {
	BaseModel

	Marketplace Marketplace `gorm:"size:30;index:idx_marketplace_product,unique;not null" json:"marketplace"`
	ProductID   int64       `gorm:"index:idx_marketplace_product,unique;not null" json:"product_id"`

	ListingID     string     `gorm:"size:100" json:"listing_id"`
	SyncStatus    SyncStatus `gorm:"size:20;index" json:"sync_status"`
	LastSyncError string     `gorm:"size:1024" json:"last_sync_error"`
	LastSyncAt    time.Time  `json:"last_sync_at"`

	LocalStock  int  `gorm:"default:0" json:"local_stock"`
	RemoteStock *int `json:"remote_stock"`
}

func (MarketplaceSyncState) TableName() string {
	return "marketplace_sync_states"
}
