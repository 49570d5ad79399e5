package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/pkg/utils"
)

// ==================== Etsy 连接器 ====================

// EtsyConfig Etsy 接入配置
type EtsyConfig struct {
	BaseURL    string
	APIKey     string
	Token      string
	ShopID     string
	RatePerSec float64
}

// DefaultEtsyConfig 默认配置
func DefaultEtsyConfig() EtsyConfig {
	return EtsyConfig{
		BaseURL:    "https://api.etsy.com/v3/application",
		RatePerSec: 5,
	}
}

// EtsyConnector Etsy Open API v3 连接器
type EtsyConnector struct {
	client *resty.Client
	bucket *utils.TokenBucket
	shopID string
}

// NewEtsyConnector 创建 Etsy 连接器
func NewEtsyConnector(cfg EtsyConfig) *EtsyConnector {
	client := utils.NewMarketplaceClient(cfg.BaseURL).
		SetHeader("x-api-key", cfg.APIKey).
		SetAuthToken(cfg.Token)

	return &EtsyConnector{
		client: client,
		bucket: utils.NewTokenBucket(10, cfg.RatePerSec),
		shopID: cfg.ShopID,
	}
}

func (c *EtsyConnector) Name() model.Marketplace {
	return model.MarketplaceEtsy
}

func (c *EtsyConnector) CreateListing(ctx context.Context, product *model.Product, listing *model.Listing) (string, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return "", err
	}

	var result struct {
		ListingID int64 `json:"listing_id"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"title":    product.TitleEn,
			"price":    listing.ListingPrice,
			"quantity": product.LocalStock(),
			"who_made": "someone_else",
			"when_made": "before_2005",
		}).
		SetResult(&result).
		Post(fmt.Sprintf("/shops/%s/listings", c.shopID))
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("etsy: 创建刊登失败: %s", resp.Status())
	}
	return fmt.Sprintf("%d", result.ListingID), nil
}

func (c *EtsyConnector) SetStock(ctx context.Context, ref StockRef, stock int) error {
	if err := c.bucket.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"quantity": stock,
		}).
		Patch(fmt.Sprintf("/shops/%s/listings/%s", c.shopID, ref.ListingID))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("etsy: 设置库存失败: %s", resp.Status())
	}
	return nil
}

func (c *EtsyConnector) GetStock(ctx context.Context, ref StockRef) (int, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return 0, err
	}

	var result struct {
		Quantity int `json:"quantity"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/listings/" + ref.ListingID)
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("etsy: 读取库存失败: %s", resp.Status())
	}
	return result.Quantity, nil
}

func (c *EtsyConnector) GetOrders(ctx context.Context, since time.Time) ([]Order, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return nil, err
	}

	var result struct {
		Results []struct {
			ReceiptID    int64 `json:"receipt_id"`
			CreateTimestamp int64 `json:"create_timestamp"`
			Transactions []struct {
				ListingID int64 `json:"listing_id"`
				Quantity  int   `json:"quantity"`
			} `json:"transactions"`
		} `json:"results"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("min_created", fmt.Sprintf("%d", since.Unix())).
		SetResult(&result).
		Get(fmt.Sprintf("/shops/%s/receipts", c.shopID))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("etsy: 拉取订单失败: %s", resp.Status())
	}

	var orders []Order
	for _, r := range result.Results {
		for _, tx := range r.Transactions {
			orders = append(orders, Order{
				Marketplace: model.MarketplaceEtsy,
				OrderID:     fmt.Sprintf("%d", r.ReceiptID),
				ListingID:   fmt.Sprintf("%d", tx.ListingID),
				Quantity:    tx.Quantity,
				OrderedAt:   time.Unix(r.CreateTimestamp, 0),
			})
		}
	}
	return orders, nil
}

func (c *EtsyConnector) UpdateListingPrice(ctx context.Context, ref StockRef, price float64) error {
	if err := c.bucket.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"price": price,
		}).
		Patch(fmt.Sprintf("/shops/%s/listings/%s", c.shopID, ref.ListingID))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("etsy: 更新价格失败: %s", resp.Status())
	}
	return nil
}
