package service

import (
	"context"
	"errors"
	"log"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
)

// ==================== 模拟输入输出 ====================

// SimulationInput 单刊登模拟输入
// CompetitorPrice 为空时回落到最近一次竞品观测；RuleIDs 为空时用全部启用规则
type SimulationInput struct {
	ListingID       int64    `json:"listing_id"`
	CompetitorPrice *float64 `json:"competitor_price,omitempty"`
	RuleIDs         []int64  `json:"rule_ids,omitempty"`
}

// SafetyChecks 熔断各维度的试算结果
type SafetyChecks struct {
	WithinDropLimit bool `json:"within_drop_limit"`
	WithinRiseLimit bool `json:"within_rise_limit"`
	AboveFloor      bool `json:"above_floor"`
	DailyLimitOk    bool `json:"daily_limit_ok"`
	CooldownOk      bool `json:"cooldown_ok"`
}

// SimulationResult 单刊登模拟结果
// 无规则命中时模拟价等于现价，不算失败
type SimulationResult struct {
	ListingID       int64                 `json:"listing_id"`
	CurrentPrice    float64               `json:"current_price"`
	SimulatedPrice  float64               `json:"simulated_price"`
	PriceChange     float64               `json:"price_change"`
	ChangePercent   float64               `json:"change_percent"`
	AppliedRule     *string               `json:"applied_rule"`
	Blocked         bool                  `json:"blocked"`
	BlockReason     string                `json:"block_reason,omitempty"`
	SafetyChecks    SafetyChecks          `json:"safety_checks"`
	EstimatedImpact *model.ImpactEstimate `json:"estimated_impact,omitempty"`
}

// BatchSummary 批量模拟汇总
type BatchSummary struct {
	Total            int     `json:"total"`
	Changed          int     `json:"changed"`
	Blocked          int     `json:"blocked"`
	AvgChangePercent float64 `json:"avg_change_percent"`
}

// BatchSimulationResult 批量模拟结果
type BatchSimulationResult struct {
	Results []SimulationResult `json:"results"`
	Summary BatchSummary       `json:"summary"`
}

// ==================== BacktestService ====================

// BacktestService 定价干跑模拟
// 只读取状态，从不写价格、不记熔断计数、不生成推荐
type BacktestService struct {
	listingRepo repository.ListingRepository
	productRepo repository.ProductRepository
	ruleRepo    repository.PricingRuleRepository
	engine      *RuleEngine
	breaker     *CircuitBreaker
	history     *PriceHistoryService
}

// NewBacktestService 创建模拟服务
func NewBacktestService(
	listingRepo repository.ListingRepository,
	productRepo repository.ProductRepository,
	ruleRepo repository.PricingRuleRepository,
	engine *RuleEngine,
	breaker *CircuitBreaker,
	history *PriceHistoryService,
) *BacktestService {
	return &BacktestService{
		listingRepo: listingRepo,
		productRepo: productRepo,
		ruleRepo:    ruleRepo,
		engine:      engine,
		breaker:     breaker,
		history:     history,
	}
}

// SimulateSingle 对单个刊登做一次定价干跑
func (s *BacktestService) SimulateSingle(ctx context.Context, input SimulationInput) (*SimulationResult, error) {
	listing, err := s.listingRepo.GetByID(ctx, input.ListingID)
	if err != nil {
		return nil, errors.New("刊登不存在")
	}
	product, err := s.productRepo.GetByID(ctx, listing.ProductID)
	if err != nil {
		return nil, errors.New("商品不存在")
	}

	pctx, err := buildPricingContext(ctx, listing, product, s.history, input.CompetitorPrice)
	if err != nil {
		return nil, err
	}

	rules, err := s.resolveRules(ctx, input.RuleIDs)
	if err != nil {
		return nil, err
	}

	evalResult, err := s.engine.Evaluate(ctx, pctx, rules)
	if err != nil {
		return nil, err
	}

	result := &SimulationResult{
		ListingID:      listing.ID,
		CurrentPrice:   listing.ListingPrice,
		SimulatedPrice: listing.ListingPrice,
	}
	if evalResult != nil {
		result.SimulatedPrice = evalResult.RecommendedPrice
		result.AppliedRule = &evalResult.RuleName
	}

	result.PriceChange = round2(result.SimulatedPrice - result.CurrentPrice)
	if result.CurrentPrice > 0 {
		result.ChangePercent = round2(result.PriceChange / result.CurrentPrice * 100)
	}
	result.EstimatedImpact = s.engine.EstimateImpact(pctx, result.SimulatedPrice)

	if err := s.fillSafety(ctx, listing.ID, result); err != nil {
		return nil, err
	}
	return result, nil
}

// fillSafety 熔断试算，只查状态不消耗配额
func (s *BacktestService) fillSafety(ctx context.Context, listingID int64, result *SimulationResult) error {
	cfg := s.breaker.Config()
	status, err := s.breaker.GetStatus(ctx, listingID)
	if err != nil {
		return err
	}

	result.SafetyChecks = SafetyChecks{
		WithinDropLimit: result.ChangePercent >= -cfg.MaxPriceDropPercent,
		WithinRiseLimit: result.ChangePercent <= cfg.MaxPriceRisePercent,
		AboveFloor:      result.SimulatedPrice >= cfg.MinPriceAbsolute,
		DailyLimitOk:    status.DailyCount < cfg.MaxDailyChanges,
		CooldownOk:      !status.InCooldown,
	}

	if result.PriceChange == 0 {
		return nil
	}
	check, err := s.breaker.CanApply(ctx, listingID, result.CurrentPrice, result.SimulatedPrice)
	if err != nil {
		return err
	}
	if !check.Allowed {
		result.Blocked = true
		result.BlockReason = check.Reason
	}
	return nil
}

// resolveRules 按指定 ID 加载并解码规则，空 ID 列表返回 nil 交给引擎自行加载
func (s *BacktestService) resolveRules(ctx context.Context, ruleIDs []int64) ([]model.RuleSpec, error) {
	if len(ruleIDs) == 0 {
		return nil, nil
	}
	rows, err := s.ruleRepo.ListByIDs(ctx, ruleIDs)
	if err != nil {
		return nil, err
	}
	specs := make([]model.RuleSpec, 0, len(rows))
	for i := range rows {
		spec, err := rows[i].Decode()
		if err != nil {
			log.Printf("[BacktestService] 规则 %d 解码失败，跳过: %v", rows[i].ID, err)
			continue
		}
		specs = append(specs, *spec)
	}
	return specs, nil
}

// ==================== 批量模拟 ====================

// SimulateBatch 批量干跑，单条失败记入 Blocked 不中断
func (s *BacktestService) SimulateBatch(ctx context.Context, listingIDs []int64, competitorPrice *float64) (*BatchSimulationResult, error) {
	batch := &BatchSimulationResult{
		Results: make([]SimulationResult, 0, len(listingIDs)),
	}

	sumChange := 0.0
	for _, id := range listingIDs {
		result, err := s.SimulateSingle(ctx, SimulationInput{ListingID: id, CompetitorPrice: competitorPrice})
		if err != nil {
			log.Printf("[BacktestService] 模拟失败 listing=%d: %v", id, err)
			continue
		}
		batch.Results = append(batch.Results, *result)

		if result.PriceChange != 0 {
			batch.Summary.Changed++
		}
		if result.Blocked {
			batch.Summary.Blocked++
		}
		sumChange += result.ChangePercent
	}

	batch.Summary.Total = len(batch.Results)
	if batch.Summary.Total > 0 {
		batch.Summary.AvgChangePercent = round2(sumChange / float64(batch.Summary.Total))
	}
	return batch, nil
}
