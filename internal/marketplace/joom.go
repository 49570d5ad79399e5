package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/pkg/utils"
)

// ==================== Joom 连接器 ====================

// JoomConfig Joom 接入配置
type JoomConfig struct {
	BaseURL    string
	Token      string
	RatePerSec float64
}

// DefaultJoomConfig 默认配置
func DefaultJoomConfig() JoomConfig {
	return JoomConfig{
		BaseURL:    "https://api-merchant.joom.com/api/v3",
		RatePerSec: 3,
	}
}

// JoomConnector Joom Merchant API 连接器
// Joom 不提供库存查询接口，对账时按默认一致处理
type JoomConnector struct {
	client *resty.Client
	bucket *utils.TokenBucket
}

// NewJoomConnector 创建 Joom 连接器
func NewJoomConnector(cfg JoomConfig) *JoomConnector {
	client := utils.NewMarketplaceClient(cfg.BaseURL).
		SetAuthToken(cfg.Token)

	return &JoomConnector{
		client: client,
		bucket: utils.NewTokenBucket(6, cfg.RatePerSec),
	}
}

func (c *JoomConnector) Name() model.Marketplace {
	return model.MarketplaceJoom
}

func (c *JoomConnector) CreateListing(ctx context.Context, product *model.Product, listing *model.Listing) (string, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return "", err
	}

	var result struct {
		Data struct {
			ProductID string `json:"product_id"`
		} `json:"data"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"name":      product.TitleEn,
			"brand":     product.Brand,
			"price":     listing.ListingPrice,
			"inventory": product.LocalStock(),
		}).
		SetResult(&result).
		Post("/products")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("joom: 创建刊登失败: %s", resp.Status())
	}
	return result.Data.ProductID, nil
}

func (c *JoomConnector) SetStock(ctx context.Context, ref StockRef, stock int) error {
	if err := c.bucket.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"product_id": ref.ListingID,
			"inventory":  stock,
		}).
		Post("/products/update-inventory")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("joom: 设置库存失败: %s", resp.Status())
	}
	return nil
}

func (c *JoomConnector) GetStock(ctx context.Context, ref StockRef) (int, error) {
	return 0, ErrStockReadUnsupported
}

func (c *JoomConnector) GetOrders(ctx context.Context, since time.Time) ([]Order, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return nil, err
	}

	var result struct {
		Data []struct {
			OrderID     string    `json:"order_id"`
			ProductID   string    `json:"product_id"`
			Quantity    int       `json:"quantity"`
			CreatedTime time.Time `json:"created_time"`
		} `json:"data"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("since", since.UTC().Format(time.RFC3339)).
		SetResult(&result).
		Get("/orders")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("joom: 拉取订单失败: %s", resp.Status())
	}

	var orders []Order
	for _, o := range result.Data {
		orders = append(orders, Order{
			Marketplace: model.MarketplaceJoom,
			OrderID:     o.OrderID,
			ListingID:   o.ProductID,
			Quantity:    o.Quantity,
			OrderedAt:   o.CreatedTime,
		})
	}
	return orders, nil
}

func (c *JoomConnector) UpdateListingPrice(ctx context.Context, ref StockRef, price float64) error {
	if err := c.bucket.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"product_id": ref.ListingID,
			"price":      price,
		}).
		Post("/products/update-price")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("joom: 更新价格失败: %s", resp.Status())
	}
	return nil
}
