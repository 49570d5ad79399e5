package service

import (
	"testing"

	"gorm.io/datatypes"

	"resale_sync_v1_202609/internal/model"
)

// ==================== 测试辅助 ====================

func hasTarget(result *RouteResult, m model.Marketplace) bool {
	for _, t := range result.Targets {
		if t == m {
			return true
		}
	}
	return false
}

// ==================== 单元测试 ====================

func TestRouter_VintageBrandWatch(t *testing.T) {
	svc := NewRouterService(nil, DefaultRouterConfig())

	// 1975 年的 SEIKO 表：品牌 + vintage + 价格在 Joom 上限内 → 全部 6 个渠道
	product := &model.Product{
		Title:      "SEIKO 5 ACTUS 自動巻き 1975年製",
		Brand:      "SEIKO",
		Category:   "watch",
		Price:      50000,
		Attributes: datatypes.JSON([]byte(`{"year": 1975}`)),
	}

	result := svc.Route(product)
	if len(result.Targets) != 6 {
		t.Fatalf("targets = %d, want 6: %v", len(result.Targets), result.Targets)
	}
	for _, m := range []model.Marketplace{
		model.MarketplaceEbay, model.MarketplaceJoom, model.MarketplaceEtsy,
		model.MarketplaceShopify, model.MarketplaceInstagramShop, model.MarketplaceTiktokShop,
	} {
		if !hasTarget(result, m) {
			t.Errorf("缺少渠道 %s", m)
		}
	}
}

func TestRouter_HighPriceSkipsJoom(t *testing.T) {
	svc := NewRouterService(nil, DefaultRouterConfig())

	// 100 万日元超过 Joom 上限，不投放 Joom
	product := &model.Product{
		Title: "Rolex Submariner",
		Brand: "Rolex",
		Price: 1000000,
	}

	result := svc.Route(product)
	if hasTarget(result, model.MarketplaceJoom) {
		t.Errorf("高价商品不应路由到 Joom: %v", result.Targets)
	}
	if !hasTarget(result, model.MarketplaceEbay) {
		t.Errorf("eBay 应始终在目标集内")
	}
	if !hasTarget(result, model.MarketplaceShopify) {
		t.Errorf("品牌商品应路由到 Shopify Hub")
	}
}

func TestRouter_CheapNoBrand(t *testing.T) {
	svc := NewRouterService(nil, DefaultRouterConfig())

	// 低价无品牌非 vintage → 只有通用渠道
	product := &model.Product{
		Title: "中古 湯のみ",
		Price: 1000,
	}

	result := svc.Route(product)
	if len(result.Targets) != 2 {
		t.Fatalf("targets = %d, want 2: %v", len(result.Targets), result.Targets)
	}
	if !hasTarget(result, model.MarketplaceEbay) || !hasTarget(result, model.MarketplaceJoom) {
		t.Errorf("低价无品牌商品应只路由到 eBay 和 Joom: %v", result.Targets)
	}
}

func TestRouter_VintageKeyword(t *testing.T) {
	svc := NewRouterService(nil, DefaultRouterConfig())

	// 标题关键词也能触发 vintage 判定（无制造年份）
	product := &model.Product{
		Title: "ヴィンテージ 花瓶",
		Price: 3000,
	}

	result := svc.Route(product)
	if !hasTarget(result, model.MarketplaceEtsy) {
		t.Errorf("关键词 vintage 商品应路由到 Etsy: %v", result.Targets)
	}
}

func TestRouter_HubShareReason(t *testing.T) {
	svc := NewRouterService(nil, DefaultRouterConfig())

	// 无品牌但中高价位 → Shopify Hub 及子渠道
	product := &model.Product{
		Title: "古伊万里 大皿",
		Price: 200000,
	}

	result := svc.Route(product)
	if !hasTarget(result, model.MarketplaceShopify) ||
		!hasTarget(result, model.MarketplaceInstagramShop) ||
		!hasTarget(result, model.MarketplaceTiktokShop) {
		t.Fatalf("中高价位商品应路由到 Shopify Hub 全家桶: %v", result.Targets)
	}
	if result.Reasons[model.MarketplaceShopify] != "中高价位商品" {
		t.Errorf("reason = %s, want 中高价位商品", result.Reasons[model.MarketplaceShopify])
	}
}
