package service

import (
	"context"
	"fmt"
	"log"

	"resale_sync_v1_202609/internal/marketplace"
	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
)

// ==================== 刊登结果 ====================

// PublishChannelResult 单渠道刊登结果
type PublishChannelResult struct {
	Marketplace model.Marketplace `json:"marketplace"`
	ListingID   string            `json:"listing_id,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// PublishReport 刊登报告
type PublishReport struct {
	ProductID int64                  `json:"product_id"`
	Channels  []PublishChannelResult `json:"channels"`
	Created   int                    `json:"created"`
	Skipped   int                    `json:"skipped"`
	Errors    int                    `json:"errors"`
}

// ==================== PublishingService ====================

// PublishingService 商品刊登服务
// 路由决定去哪些渠道；hub 子渠道不单独打渠道 API，复用 Shopify 侧刊登
type PublishingService struct {
	productRepo repository.ProductRepository
	listingRepo repository.ListingRepository
	router      *RouterService
	registry    *marketplace.Registry
}

// NewPublishingService 创建刊登服务
func NewPublishingService(
	productRepo repository.ProductRepository,
	listingRepo repository.ListingRepository,
	router *RouterService,
	registry *marketplace.Registry,
) *PublishingService {
	return &PublishingService{
		productRepo: productRepo,
		listingRepo: listingRepo,
		router:      router,
		registry:    registry,
	}
}

// PublishProduct 把商品刊登到路由命中的全部渠道
// 幂等：已有刊登的渠道跳过；单渠道失败不影响其他渠道
func (s *PublishingService) PublishProduct(ctx context.Context, productID int64) (*PublishReport, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("商品 %d 不存在: %w", productID, err)
	}
	if product.LocalStock() == 0 {
		return nil, fmt.Errorf("商品 %d 无库存，不可刊登", productID)
	}

	route := s.router.Route(product)

	existing := make(map[model.Marketplace]*model.Listing)
	listings, err := s.listingRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		existing[listings[i].Marketplace] = &listings[i]
	}

	report := &PublishReport{ProductID: productID}

	// Shopify Hub 侧刊登 ID，子渠道复用
	hubListingID := ""
	if hub, ok := existing[model.MarketplaceShopify]; ok {
		hubListingID = hub.MarketplaceListingID
	}

	for _, target := range route.Targets {
		if _, ok := existing[target]; ok {
			report.Skipped++
			continue
		}

		channelResult := PublishChannelResult{Marketplace: target}

		remoteID, publishErr := s.publishToChannel(ctx, product, target, hubListingID)
		if publishErr != nil {
			channelResult.Error = publishErr.Error()
			report.Errors++
			log.Printf("[PublishingService] 渠道刊登失败 product=%d %s: %v", productID, target, publishErr)
		} else {
			channelResult.ListingID = remoteID
			report.Created++
			if target == model.MarketplaceShopify {
				hubListingID = remoteID
			}
		}

		listing := &model.Listing{
			ProductID:            productID,
			Marketplace:          target,
			MarketplaceListingID: remoteID,
			ListingPrice:         product.Price,
			CurrencyCode:         "JPY",
			Status:               model.ListingStatusActive,
		}
		if publishErr != nil {
			listing.Status = model.ListingStatusError
			listing.LastError = publishErr.Error()
		}
		if err := s.listingRepo.Create(ctx, listing); err != nil {
			log.Printf("[PublishingService] 刊登记录写入失败 product=%d %s: %v", productID, target, err)
		}

		report.Channels = append(report.Channels, channelResult)
	}

	log.Printf("[PublishingService] 商品 %d 刊登完成: 新增 %d, 跳过 %d, 失败 %d",
		productID, report.Created, report.Skipped, report.Errors)
	return report, nil
}

// publishToChannel 单渠道刊登
// hub 子渠道直接挂到 Shopify 侧刊登，不打渠道 API
func (s *PublishingService) publishToChannel(ctx context.Context, product *model.Product, target model.Marketplace, hubListingID string) (string, error) {
	if marketplace.IsHubChannel(target) && target != model.MarketplaceShopify {
		if hubListingID == "" {
			return "", fmt.Errorf("Shopify Hub 刊登尚未建立，%s 无法挂载", target)
		}
		return hubListingID, nil
	}

	connector, err := s.registry.Resolve(target)
	if err != nil {
		return "", err
	}
	draft := &model.Listing{
		ProductID:    product.ID,
		Marketplace:  target,
		ListingPrice: product.Price,
		CurrencyCode: "JPY",
	}
	return connector.CreateListing(ctx, product, draft)
}
