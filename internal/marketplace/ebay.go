package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/pkg/utils"
)

// ==================== eBay 连接器 ====================

// EbayConfig eBay 接入配置
type EbayConfig struct {
	BaseURL    string
	Token      string
	RatePerSec float64
}

// DefaultEbayConfig 默认配置
func DefaultEbayConfig() EbayConfig {
	return EbayConfig{
		BaseURL:    "https://api.ebay.com",
		RatePerSec: 5,
	}
}

// EbayConnector eBay Sell API 连接器
type EbayConnector struct {
	client *resty.Client
	bucket *utils.TokenBucket
}

// NewEbayConnector 创建 eBay 连接器
func NewEbayConnector(cfg EbayConfig) *EbayConnector {
	client := utils.NewMarketplaceClient(cfg.BaseURL).
		SetAuthToken(cfg.Token)

	return &EbayConnector{
		client: client,
		bucket: utils.NewTokenBucket(10, cfg.RatePerSec),
	}
}

func (c *EbayConnector) Name() model.Marketplace {
	return model.MarketplaceEbay
}

func (c *EbayConnector) CreateListing(ctx context.Context, product *model.Product, listing *model.Listing) (string, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return "", err
	}

	sku := fmt.Sprintf("RS-%d", product.ID)
	body := map[string]any{
		"product": map[string]any{
			"title": product.TitleEn,
			"brand": product.Brand,
		},
		"availability": map[string]any{
			"shipToLocationAvailability": map[string]any{
				"quantity": product.LocalStock(),
			},
		},
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Put("/sell/inventory/v1/inventory_item/" + sku)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("ebay: 创建刊登失败: %s", resp.Status())
	}
	return sku, nil
}

func (c *EbayConnector) SetStock(ctx context.Context, ref StockRef, stock int) error {
	if err := c.bucket.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"availability": map[string]any{
				"shipToLocationAvailability": map[string]any{
					"quantity": stock,
				},
			},
		}).
		Put("/sell/inventory/v1/inventory_item/" + ref.ListingID)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("ebay: 设置库存失败: %s", resp.Status())
	}
	return nil
}

func (c *EbayConnector) GetStock(ctx context.Context, ref StockRef) (int, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return 0, err
	}

	var result struct {
		Availability struct {
			ShipToLocationAvailability struct {
				Quantity int `json:"quantity"`
			} `json:"shipToLocationAvailability"`
		} `json:"availability"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/sell/inventory/v1/inventory_item/" + ref.ListingID)
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("ebay: 读取库存失败: %s", resp.Status())
	}
	return result.Availability.ShipToLocationAvailability.Quantity, nil
}

func (c *EbayConnector) GetOrders(ctx context.Context, since time.Time) ([]Order, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return nil, err
	}

	var result struct {
		Orders []struct {
			OrderID      string    `json:"orderId"`
			CreationDate time.Time `json:"creationDate"`
			LineItems    []struct {
				SKU      string `json:"sku"`
				Quantity int    `json:"quantity"`
			} `json:"lineItems"`
		} `json:"orders"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("filter", "creationdate:["+since.UTC().Format(time.RFC3339)+"..]").
		SetResult(&result).
		Get("/sell/fulfillment/v1/order")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ebay: 拉取订单失败: %s", resp.Status())
	}

	var orders []Order
	for _, o := range result.Orders {
		for _, item := range o.LineItems {
			orders = append(orders, Order{
				Marketplace: model.MarketplaceEbay,
				OrderID:     o.OrderID,
				ListingID:   item.SKU,
				Quantity:    item.Quantity,
				OrderedAt:   o.CreationDate,
			})
		}
	}
	return orders, nil
}

func (c *EbayConnector) UpdateListingPrice(ctx context.Context, ref StockRef, price float64) error {
	if err := c.bucket.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"pricingSummary": map[string]any{
				"price": map[string]any{
					"value":    fmt.Sprintf("%.2f", price),
					"currency": "USD",
				},
			},
		}).
		Put("/sell/inventory/v1/offer/" + ref.ListingID)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("ebay: 更新价格失败: %s", resp.Status())
	}
	return nil
}
