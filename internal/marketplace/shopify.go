package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/pkg/utils"
)

// ==================== Shopify 连接器 ====================

// ShopifyConfig Shopify 接入配置
type ShopifyConfig struct {
	ShopDomain  string // 如 example.myshopify.com
	AccessToken string
	RatePerSec  float64
}

// DefaultShopifyConfig 默认配置
func DefaultShopifyConfig() ShopifyConfig {
	return ShopifyConfig{
		RatePerSec: 2, // Shopify REST 标准限额 2 req/s
	}
}

// ShopifyConnector Shopify Hub 物理连接器
// INSTAGRAM_SHOP / TIKTOK_SHOP 的库存写最终都落到这里的同一条库存记录
type ShopifyConnector struct {
	client *resty.Client
	bucket *utils.TokenBucket
	cfg    ShopifyConfig
}

// NewShopifyConnector 创建 Shopify 连接器
func NewShopifyConnector(cfg ShopifyConfig) *ShopifyConnector {
	baseURL := fmt.Sprintf("https://%s/admin/api/2024-01", cfg.ShopDomain)
	client := utils.NewMarketplaceClient(baseURL).
		SetHeader("X-Shopify-Access-Token", cfg.AccessToken)

	return &ShopifyConnector{
		client: client,
		bucket: utils.NewTokenBucket(4, cfg.RatePerSec),
		cfg:    cfg,
	}
}

func (c *ShopifyConnector) Name() model.Marketplace {
	return model.MarketplaceShopify
}

func (c *ShopifyConnector) CreateListing(ctx context.Context, product *model.Product, listing *model.Listing) (string, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return "", err
	}

	body := map[string]any{
		"product": map[string]any{
			"title": product.TitleEn,
			"vendor": product.Brand,
			"variants": []map[string]any{
				{"price": fmt.Sprintf("%.2f", listing.ListingPrice)},
			},
		},
	}
	var result struct {
		Product struct {
			ID int64 `json:"id"`
		} `json:"product"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/products.json")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("shopify: 创建商品失败: %s", resp.Status())
	}
	return fmt.Sprintf("%d", result.Product.ID), nil
}

func (c *ShopifyConnector) SetStock(ctx context.Context, ref StockRef, stock int) error {
	if err := c.bucket.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"inventory_item_id": ref.InventoryItemID,
			"location_id":       ref.LocationID,
			"available":         stock,
		}).
		Post("/inventory_levels/set.json")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("shopify: 设置库存失败: %s", resp.Status())
	}
	return nil
}

func (c *ShopifyConnector) GetStock(ctx context.Context, ref StockRef) (int, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return 0, err
	}

	var result struct {
		InventoryLevels []struct {
			Available int `json:"available"`
		} `json:"inventory_levels"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("inventory_item_ids", ref.InventoryItemID).
		SetQueryParam("location_ids", ref.LocationID).
		SetResult(&result).
		Get("/inventory_levels.json")
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("shopify: 读取库存失败: %s", resp.Status())
	}
	if len(result.InventoryLevels) == 0 {
		return 0, fmt.Errorf("shopify: 库存记录不存在: %s", ref.Key())
	}
	return result.InventoryLevels[0].Available, nil
}

func (c *ShopifyConnector) GetOrders(ctx context.Context, since time.Time) ([]Order, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return nil, err
	}

	var result struct {
		Orders []struct {
			ID        int64     `json:"id"`
			CreatedAt time.Time `json:"created_at"`
			LineItems []struct {
				ProductID int64 `json:"product_id"`
				Quantity  int   `json:"quantity"`
			} `json:"line_items"`
		} `json:"orders"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("created_at_min", since.UTC().Format(time.RFC3339)).
		SetQueryParam("status", "any").
		SetResult(&result).
		Get("/orders.json")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("shopify: 拉取订单失败: %s", resp.Status())
	}

	var orders []Order
	for _, o := range result.Orders {
		for _, item := range o.LineItems {
			orders = append(orders, Order{
				Marketplace: model.MarketplaceShopify,
				OrderID:     fmt.Sprintf("%d", o.ID),
				ListingID:   fmt.Sprintf("%d", item.ProductID),
				Quantity:    item.Quantity,
				OrderedAt:   o.CreatedAt,
			})
		}
	}
	return orders, nil
}

func (c *ShopifyConnector) UpdateListingPrice(ctx context.Context, ref StockRef, price float64) error {
	if err := c.bucket.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"variant": map[string]any{
				"price": fmt.Sprintf("%.2f", price),
			},
		}).
		Put(fmt.Sprintf("/variants/%s.json", ref.ListingID))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("shopify: 更新价格失败: %s", resp.Status())
	}
	return nil
}
