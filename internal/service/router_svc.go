package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
)

// ==================== 渠道路由配置 ====================

// RouterConfig 路由阈值配置
// 阈值是可调策略，不是业务铁律
type RouterConfig struct {
	// JoomMaxPrice Joom 价格上限（日元），超过则不投放 Joom
	JoomMaxPrice float64
	// ShopifyMinPrice 无品牌商品进入 Shopify Hub 的价格下限（日元）
	ShopifyMinPrice float64
	// VintageMinAge 制造年份判定为 vintage 的最小年龄
	VintageMinAge int
}

// DefaultRouterConfig 默认路由配置
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		JoomMaxPrice:    900000,
		ShopifyMinPrice: 100000,
		VintageMinAge:   20,
	}
}

// vintageKeywords 标题/分类中的 vintage 关键词（多语言）
var vintageKeywords = []string{
	"vintage", "antique", "retro",
	"ヴィンテージ", "ビンテージ", "アンティーク", "レトロ", "昭和",
	"古着", "骨董",
}

// ==================== 路由结果 ====================

// RouteResult 路由决策结果
type RouteResult struct {
	Targets []model.Marketplace            `json:"targets"`
	Reasons map[model.Marketplace]string   `json:"reasons"`
}

// ==================== RouterService ====================

// RouterService 渠道路由服务
// Route 本身是纯决策函数；RouteProduct 只多一次商品读取
type RouterService struct {
	productRepo repository.ProductRepository
	config      RouterConfig
}

// NewRouterService 创建路由服务
func NewRouterService(productRepo repository.ProductRepository, config RouterConfig) *RouterService {
	return &RouterService{
		productRepo: productRepo,
		config:      config,
	}
}

// RouteProduct 按商品 ID 路由
func (s *RouterService) RouteProduct(ctx context.Context, productID int64) (*RouteResult, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("商品不存在: %w", err)
	}
	result := s.Route(product)
	log.Printf("[Router] 商品 %d 路由到 %d 个渠道: %v", productID, len(result.Targets), result.Targets)
	return result, nil
}

// Route 纯路由决策，无 I/O、无副作用
// 无匹配渠道时返回空目标集，不报错
func (s *RouterService) Route(product *model.Product) *RouteResult {
	result := &RouteResult{
		Reasons: make(map[model.Marketplace]string),
	}
	add := func(m model.Marketplace, reason string) {
		if _, exists := result.Reasons[m]; exists {
			return // 去重
		}
		result.Targets = append(result.Targets, m)
		result.Reasons[m] = reason
	}

	// eBay 无价格上限，所有商品的基础渠道
	add(model.MarketplaceEbay, "通用渠道，无价格上限")

	// Joom 有价格上限，高价商品会被拒登
	if product.Price <= s.config.JoomMaxPrice {
		add(model.MarketplaceJoom, "通用渠道，价格在上限内")
	}

	// vintage 商品投放 Etsy
	if s.isVintage(product) {
		add(model.MarketplaceEtsy, "vintage 商品")
	}

	// 品牌或中高价位走 Shopify Hub，子渠道共享同一库存记录
	if product.Brand != "" || product.Price > s.config.ShopifyMinPrice {
		reason := "品牌商品"
		if product.Brand == "" {
			reason = "中高价位商品"
		}
		add(model.MarketplaceShopify, reason)
		add(model.MarketplaceInstagramShop, reason+" (Shopify Hub)")
		add(model.MarketplaceTiktokShop, reason+" (Shopify Hub)")
	}

	return result
}

// isVintage 制造年份满 VintageMinAge 年，或标题/分类含 vintage 关键词
func (s *RouterService) isVintage(product *model.Product) bool {
	if year := product.ManufactureYear(); year > 0 {
		if time.Now().Year()-year >= s.config.VintageMinAge {
			return true
		}
	}

	text := strings.ToLower(product.Title + " " + product.TitleEn + " " + product.Category)
	for _, kw := range vintageKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
