package service

import (
	"context"
	"log"
	"time"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
)

// ==================== 上下文组装 ====================

// buildPricingContext 从刊登、商品和历史流组装规则求值上下文
// competitorPrice 为空时回落到最近一次竞品观测
func buildPricingContext(
	ctx context.Context,
	listing *model.Listing,
	product *model.Product,
	history *PriceHistoryService,
	competitorPrice *float64,
) (*PricingContext, error) {
	pctx := &PricingContext{
		ListingID:    listing.ID,
		ProductID:    product.ID,
		CurrentPrice: listing.ListingPrice,
		CostPrice:    product.CostPrice,
		Category:     product.Category,
		Marketplace:  listing.Marketplace,
		DaysListed:   int(time.Since(listing.CreatedAt).Hours() / 24),
	}
	stock := product.LocalStock()
	pctx.StockLevel = &stock

	if competitorPrice != nil {
		pctx.CompetitorPrice = competitorPrice
		pctx.CompetitorCount = 1
	} else {
		latest, err := history.LatestCompetitorPrice(ctx, listing.ID)
		if err == nil && latest != nil {
			pctx.CompetitorPrice = latest
			pctx.CompetitorCount = 1
		}
	}

	points, err := history.GetHistory(ctx, listing.ID, 30, 0)
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		pctx.HistoricalPrices = append(pctx.HistoricalPrices, p.Price)
	}
	return pctx, nil
}

// ==================== PricingService ====================

// PricingSweepResult 批量定价求值结果
type PricingSweepResult struct {
	Evaluated   int `json:"evaluated"`
	Recommended int `json:"recommended"`
	Errors      int `json:"errors"`
}

// PricingService 定价流水线编排
// 规则求值 → 推荐创建（含自动批准）；落地永远走审批状态机
type PricingService struct {
	listingRepo repository.ListingRepository
	productRepo repository.ProductRepository
	recRepo     repository.RecommendationRepository
	engine      *RuleEngine
	approval    *ApprovalService
	history     *PriceHistoryService
}

// NewPricingService 创建定价编排服务
func NewPricingService(
	listingRepo repository.ListingRepository,
	productRepo repository.ProductRepository,
	recRepo repository.RecommendationRepository,
	engine *RuleEngine,
	approval *ApprovalService,
	history *PriceHistoryService,
) *PricingService {
	return &PricingService{
		listingRepo: listingRepo,
		productRepo: productRepo,
		recRepo:     recRepo,
		engine:      engine,
		approval:    approval,
		history:     history,
	}
}

// EvaluateListing 对单个刊登走一轮规则求值
// 无规则命中或价格不变时不产生推荐；产生新推荐前作废同刊登的旧 PENDING
func (s *PricingService) EvaluateListing(ctx context.Context, listingID int64) (*model.PriceRecommendation, error) {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	product, err := s.productRepo.GetByID(ctx, listing.ProductID)
	if err != nil {
		return nil, err
	}

	pctx, err := buildPricingContext(ctx, listing, product, s.history, nil)
	if err != nil {
		return nil, err
	}

	evalResult, err := s.engine.Evaluate(ctx, pctx, nil)
	if err != nil {
		return nil, err
	}
	if evalResult == nil || evalResult.RecommendedPrice == listing.ListingPrice {
		return nil, nil
	}

	if err := s.recRepo.CancelPendingByListing(ctx, listing.ID); err != nil {
		log.Printf("[PricingService] 作废旧推荐失败 listing=%d: %v", listing.ID, err)
	}

	ruleID := evalResult.RuleID
	return s.approval.CreateRecommendation(ctx, CreateRecommendationInput{
		ListingID:        listing.ID,
		ProductID:        product.ID,
		CurrentPrice:     listing.ListingPrice,
		RecommendedPrice: evalResult.RecommendedPrice,
		MinPrice:         evalResult.MinPrice,
		MaxPrice:         evalResult.MaxPrice,
		Confidence:       evalResult.Confidence,
		Reason:           evalResult.Reason,
		Impact:           evalResult.Impact,
		RuleID:           &ruleID,
	})
}

// EvaluateAll 对全部活跃刊登走一轮规则求值
func (s *PricingService) EvaluateAll(ctx context.Context, limit int) (*PricingSweepResult, error) {
	listings, err := s.listingRepo.ListActive(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &PricingSweepResult{}
	for _, l := range listings {
		result.Evaluated++
		rec, err := s.EvaluateListing(ctx, l.ID)
		if err != nil {
			result.Errors++
			log.Printf("[PricingService] 求值失败 listing=%d: %v", l.ID, err)
			continue
		}
		if rec != nil {
			result.Recommended++
		}
	}

	log.Printf("[PricingService] 定价求值完成: 求值 %d, 产生推荐 %d, 错误 %d",
		result.Evaluated, result.Recommended, result.Errors)
	return result, nil
}
