package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resale_sync_v1_202609/internal/model"
)

// ==================== 错误定义 ====================

// ErrStockReadUnsupported 渠道不支持读取远端库存
// 对账时遇到该错误按"默认一致"处理，而不是判为失败
var ErrStockReadUnsupported = errors.New("marketplace: 该渠道不支持读取远端库存")

// ErrNotRegistered 渠道未注册连接器
var ErrNotRegistered = errors.New("marketplace: 渠道未注册连接器")

// ==================== 库存句柄 ====================

// StockRef 一条远端库存记录的定位句柄
// Shopify Hub 下多个逻辑渠道共享同一条库存记录，以 Key() 去重远端写
type StockRef struct {
	Marketplace model.Marketplace // 物理渠道
	ListingID   string

	// Shopify 专用：库存项与仓位定位
	InventoryItemID string
	LocationID      string
}

// Key 远端写去重键
func (r StockRef) Key() string {
	if r.InventoryItemID != "" {
		return r.InventoryItemID + ":" + r.LocationID
	}
	return string(r.Marketplace) + ":" + r.ListingID
}

// RefForListing 从刊登记录构造库存句柄
func RefForListing(l *model.Listing) StockRef {
	return StockRef{
		Marketplace:     PhysicalMarketplace(l.Marketplace),
		ListingID:       l.MarketplaceListingID,
		InventoryItemID: l.DataField("inventory_item_id"),
		LocationID:      l.DataField("location_id"),
	}
}

// ==================== 渠道订单 ====================

// Order 渠道侧订单，只取库存联动需要的字段
type Order struct {
	Marketplace model.Marketplace `json:"marketplace"`
	OrderID     string            `json:"order_id"`
	ListingID   string            `json:"listing_id"` // 渠道侧刊登 ID
	Quantity    int               `json:"quantity"`
	OrderedAt   time.Time         `json:"ordered_at"`
}

// ==================== 连接器接口 ====================

// Connector 单一渠道的远端操作接口
// 所有方法只负责远端调用，落库与审计在服务层
type Connector interface {
	Name() model.Marketplace

	// CreateListing 在渠道侧创建刊登，返回渠道侧刊登 ID
	CreateListing(ctx context.Context, product *model.Product, listing *model.Listing) (string, error)

	// SetStock 写远端库存（二值库存下 0 即暂停售卖）
	SetStock(ctx context.Context, ref StockRef, stock int) error

	// GetStock 读远端库存；不支持的渠道返回 ErrStockReadUnsupported
	GetStock(ctx context.Context, ref StockRef) (int, error)

	// UpdateListingPrice 更新渠道侧价格
	UpdateListingPrice(ctx context.Context, ref StockRef, price float64) error

	// GetOrders 拉取指定时刻之后的新订单
	GetOrders(ctx context.Context, since time.Time) ([]Order, error)
}

// ==================== 渠道归属 ====================

// PhysicalMarketplace 逻辑渠道到物理渠道的映射
// INSTAGRAM_SHOP / TIKTOK_SHOP 挂在 Shopify Hub 下
func PhysicalMarketplace(m model.Marketplace) model.Marketplace {
	switch m {
	case model.MarketplaceInstagramShop, model.MarketplaceTiktokShop:
		return model.MarketplaceShopify
	}
	return m
}

// IsHubChannel 是否为 Shopify Hub 的子渠道
func IsHubChannel(m model.Marketplace) bool {
	return PhysicalMarketplace(m) == model.MarketplaceShopify
}

// ==================== 连接器注册表 ====================

// Registry 渠道连接器注册表
type Registry struct {
	connectors map[model.Marketplace]Connector
}

// NewRegistry 创建注册表
func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[model.Marketplace]Connector)}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

// Register 注册连接器（以物理渠道为键）
func (r *Registry) Register(c Connector) {
	r.connectors[c.Name()] = c
}

// All 已注册的全部物理连接器
func (r *Registry) All() []Connector {
	out := make([]Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		out = append(out, c)
	}
	return out
}

// Resolve 按逻辑渠道解析连接器，hub 子渠道解析到 Shopify 连接器
func (r *Registry) Resolve(m model.Marketplace) (Connector, error) {
	physical := PhysicalMarketplace(m)
	c, ok := r.connectors[physical]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, physical)
	}
	return c, nil
}
