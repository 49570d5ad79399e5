package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
)

// ==================== 定价上下文 ====================

// PricingContext 规则求值上下文
// 派生字段（competitorDiff 等）在求值时计算，不落库
type PricingContext struct {
	ListingID        int64
	ProductID        int64
	CurrentPrice     float64
	CostPrice        float64
	CompetitorPrice  *float64
	CompetitorCount  int
	DaysListed       int
	SalesVelocity    float64 // 件/日
	ViewCount        *int
	StockLevel       *int
	Category         string
	Marketplace      model.Marketplace
	HistoricalPrices []float64
}

// ==================== 求值结果 ====================

// RuleEvaluationResult 单条规则的求值结果
type RuleEvaluationResult struct {
	Matched          bool
	RuleID           int64
	RuleName         string
	RuleType         model.PricingRuleType
	RecommendedPrice float64
	MinPrice         *float64
	MaxPrice         *float64
	Confidence       float64
	Reason           model.RecommendationReason
	Impact           *model.ImpactEstimate
}

// ==================== RuleEngine ====================

// demandElasticity 需求弹性常数：价格每降 1%，预期销量升 1.5%
const demandElasticity = -1.5

// RuleEngine 定价规则引擎（无状态求值器）
type RuleEngine struct {
	ruleRepo repository.PricingRuleRepository
}

// NewRuleEngine 创建规则引擎
func NewRuleEngine(ruleRepo repository.PricingRuleRepository) *RuleEngine {
	return &RuleEngine{ruleRepo: ruleRepo}
}

// Evaluate 对上下文求值，返回最高优先级的完全匹配，无匹配返回 nil
// rules 为 nil 时从存储加载启用规则（渠道匹配或渠道无关），按优先级降序
func (e *RuleEngine) Evaluate(ctx context.Context, pctx *PricingContext, rules []model.RuleSpec) (*RuleEvaluationResult, error) {
	if rules == nil {
		loaded, err := e.loadApplicableRules(ctx, pctx.Marketplace)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	if len(rules) == 0 {
		return nil, nil
	}

	// 已按优先级降序，首个完全匹配胜出，低优先级不再考虑
	for i := range rules {
		result := e.EvaluateRule(&rules[i], pctx)
		if result.Matched {
			log.Printf("[RuleEngine] 规则命中 listing=%d rule=%s(%d) %.2f -> %.2f",
				pctx.ListingID, result.RuleName, result.RuleID, pctx.CurrentPrice, result.RecommendedPrice)
			return result, nil
		}
	}
	return nil, nil
}

// loadApplicableRules 加载启用规则并解码，按优先级降序
func (e *RuleEngine) loadApplicableRules(ctx context.Context, m model.Marketplace) ([]model.RuleSpec, error) {
	rows, err := e.ruleRepo.ListActive(ctx, m)
	if err != nil {
		return nil, err
	}
	specs := make([]model.RuleSpec, 0, len(rows))
	for i := range rows {
		spec, err := rows[i].Decode()
		if err != nil {
			log.Printf("[RuleEngine] 规则 %d 解码失败，跳过: %v", rows[i].ID, err)
			continue
		}
		specs = append(specs, *spec)
	}
	return specs, nil
}

// GetAllRules 加载全部启用规则（回测用）
func (e *RuleEngine) GetAllRules(ctx context.Context) ([]model.RuleSpec, error) {
	return e.loadApplicableRules(ctx, "")
}

// ==================== 单规则求值 ====================

// EvaluateRule 对单条规则求值
// 条件全部成立才算命中；字段依赖缺失视为不匹配而非报错
func (e *RuleEngine) EvaluateRule(rule *model.RuleSpec, pctx *PricingContext) *RuleEvaluationResult {
	result := &RuleEvaluationResult{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		RuleType: rule.Type,
		Reason: model.RecommendationReason{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			RuleType: rule.Type,
		},
	}

	for _, cond := range rule.Conditions {
		if !e.evaluateCondition(&cond, pctx) {
			return result
		}
	}

	// 动作按声明顺序作用于运行价格
	price := pctx.CurrentPrice
	var factors []model.ReasonFactor
	var minPrice, maxPrice *float64

	for _, action := range rule.Actions {
		var actionFactors []model.ReasonFactor
		price, actionFactors = e.applyAction(&action, pctx, price)
		factors = append(factors, actionFactors...)

		if action.Constraints != nil {
			var constraintFactors []model.ReasonFactor
			price, constraintFactors = e.applyConstraints(price, pctx, action.Constraints)
			factors = append(factors, constraintFactors...)

			if action.Constraints.MinPrice != nil {
				if minPrice == nil || *action.Constraints.MinPrice > *minPrice {
					minPrice = action.Constraints.MinPrice
				}
			}
			if action.Constraints.MaxPrice != nil {
				if maxPrice == nil || *action.Constraints.MaxPrice < *maxPrice {
					maxPrice = action.Constraints.MaxPrice
				}
			}
		}
	}

	// 规则级安全兜底最后生效
	if rule.Safety != nil {
		var safetyFactors []model.ReasonFactor
		price, safetyFactors = e.applySafety(price, pctx.CurrentPrice, rule.Safety)
		factors = append(factors, safetyFactors...)
	}

	price = round2(price)

	result.Matched = true
	result.RecommendedPrice = price
	result.MinPrice = minPrice
	result.MaxPrice = maxPrice
	result.Confidence = e.calculateConfidence(len(rule.Conditions), pctx)
	result.Impact = e.EstimateImpact(pctx, price)
	result.Reason.Factors = factors
	result.Reason.Explanation = e.explain(rule, factors, pctx, price)
	return result
}

// ==================== 条件求值 ====================

func (e *RuleEngine) evaluateCondition(cond *model.RuleCondition, pctx *PricingContext) bool {
	value, ok := e.fieldValue(cond.Field, pctx)
	if !ok {
		return false
	}

	switch actual := value.(type) {
	case string:
		expected, isStr := cond.Value.(string)
		if !isStr {
			return false
		}
		switch cond.Operator {
		case "eq":
			return actual == expected
		case "neq":
			return actual != expected
		}
		return false
	case float64:
		return e.compareNumber(actual, cond.Operator, cond.Value)
	}
	return false
}

// fieldValue 取字段值，依赖缺失返回 ok=false
func (e *RuleEngine) fieldValue(field string, pctx *PricingContext) (any, bool) {
	switch field {
	case "currentPrice":
		return pctx.CurrentPrice, true
	case "competitorPrice":
		if pctx.CompetitorPrice == nil {
			return nil, false
		}
		return *pctx.CompetitorPrice, true
	case "competitorDiff":
		if pctx.CompetitorPrice == nil {
			return nil, false
		}
		return pctx.CurrentPrice - *pctx.CompetitorPrice, true
	case "competitorDiffPercent":
		if pctx.CompetitorPrice == nil || *pctx.CompetitorPrice <= 0 {
			return nil, false
		}
		return (pctx.CurrentPrice - *pctx.CompetitorPrice) / *pctx.CompetitorPrice * 100, true
	case "margin":
		return pctx.CurrentPrice - pctx.CostPrice, true
	case "marginPercent":
		if pctx.CostPrice <= 0 {
			return nil, false
		}
		return (pctx.CurrentPrice - pctx.CostPrice) / pctx.CostPrice * 100, true
	case "daysListed":
		return float64(pctx.DaysListed), true
	case "salesVelocity":
		return pctx.SalesVelocity, true
	case "viewCount":
		if pctx.ViewCount == nil {
			return nil, false
		}
		return float64(*pctx.ViewCount), true
	case "stockLevel":
		if pctx.StockLevel == nil {
			return nil, false
		}
		return float64(*pctx.StockLevel), true
	case "category":
		return pctx.Category, true
	case "marketplace":
		return string(pctx.Marketplace), true
	}
	return nil, false
}

func (e *RuleEngine) compareNumber(actual float64, operator string, expected any) bool {
	if operator == "between" {
		bounds, ok := expected.([]any)
		if !ok || len(bounds) != 2 {
			return false
		}
		low, okLow := toFloat(bounds[0])
		high, okHigh := toFloat(bounds[1])
		return okLow && okHigh && actual >= low && actual <= high
	}

	num, ok := toFloat(expected)
	if !ok {
		return false
	}
	switch operator {
	case "lt":
		return actual < num
	case "lte":
		return actual <= num
	case "gt":
		return actual > num
	case "gte":
		return actual >= num
	case "eq":
		return actual == num
	case "neq":
		return actual != num
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ==================== 动作与约束 ====================

func (e *RuleEngine) applyAction(action *model.RuleAction, pctx *PricingContext, price float64) (float64, []model.ReasonFactor) {
	var factors []model.ReasonFactor

	switch action.Type {
	case "SET_PRICE":
		if action.Value != nil {
			price = *action.Value
			factors = append(factors, model.ReasonFactor{
				Name:        "fixed_price",
				Value:       *action.Value,
				Impact:      "neutral",
				Description: fmt.Sprintf("固定价格 %.2f", *action.Value),
			})
		}
	case "ADJUST_PERCENT":
		if action.Value != nil {
			price = price * (1 + *action.Value/100)
			factors = append(factors, model.ReasonFactor{
				Name:        "percent_adjustment",
				Value:       fmt.Sprintf("%+.1f%%", *action.Value),
				Impact:      impactSign(*action.Value),
				Description: fmt.Sprintf("价格调整 %.1f%%", *action.Value),
			})
		}
	case "ADJUST_AMOUNT":
		if action.Value != nil {
			price += *action.Value
			factors = append(factors, model.ReasonFactor{
				Name:        "amount_adjustment",
				Value:       fmt.Sprintf("%+.2f", *action.Value),
				Impact:      impactSign(*action.Value),
				Description: fmt.Sprintf("价格调整 %.2f", *action.Value),
			})
		}
	case "MATCH_COMPETITOR":
		// 无竞品价时跳过，不报错
		if pctx.CompetitorPrice != nil {
			offset := 0.0
			if action.CompetitorOffset != nil {
				offset = *action.CompetitorOffset
			}
			price = *pctx.CompetitorPrice + offset
			factors = append(factors, model.ReasonFactor{
				Name:        "competitor_match",
				Value:       *pctx.CompetitorPrice,
				Impact:      impactSign(offset),
				Description: fmt.Sprintf("跟随竞品价 %.2f（偏移 %.2f）", *pctx.CompetitorPrice, offset),
			})
		}
	case "NO_ACTION":
		factors = append(factors, model.ReasonFactor{
			Name:        "no_action",
			Value:       "unchanged",
			Impact:      "neutral",
			Description: "维持现价",
		})
	}

	return price, factors
}

func impactSign(v float64) string {
	if v > 0 {
		return "positive"
	}
	if v < 0 {
		return "negative"
	}
	return "neutral"
}

// applyConstraints 动作级约束，每次实际生效的钳制都追加理由因子
func (e *RuleEngine) applyConstraints(price float64, pctx *PricingContext, c *model.RuleConstraints) (float64, []model.ReasonFactor) {
	var factors []model.ReasonFactor
	clamp := func(name string, newPrice float64, desc string) {
		price = newPrice
		factors = append(factors, model.ReasonFactor{
			Name:        "constraint_applied",
			Value:       name,
			Impact:      "neutral",
			Description: desc,
		})
	}

	if c.MinPrice != nil && price < *c.MinPrice {
		clamp("min_price", *c.MinPrice, fmt.Sprintf("钳制到最低价 %.2f", *c.MinPrice))
	}
	if c.MaxPrice != nil && price > *c.MaxPrice {
		clamp("max_price", *c.MaxPrice, fmt.Sprintf("钳制到最高价 %.2f", *c.MaxPrice))
	}
	if c.MinMargin != nil {
		floor := pctx.CostPrice * (1 + *c.MinMargin/100)
		if price < floor {
			clamp("min_margin", floor, fmt.Sprintf("保底利润率 %.1f%%", *c.MinMargin))
		}
	}
	if c.MaxDiscount != nil {
		floor := pctx.CurrentPrice * (1 - *c.MaxDiscount/100)
		if price < floor {
			clamp("max_discount", floor, fmt.Sprintf("降幅限制 %.1f%%", *c.MaxDiscount))
		}
	}
	if c.MaxIncrease != nil {
		ceiling := pctx.CurrentPrice * (1 + *c.MaxIncrease/100)
		if price > ceiling {
			clamp("max_increase", ceiling, fmt.Sprintf("涨幅限制 %.1f%%", *c.MaxIncrease))
		}
	}

	return price, factors
}

// applySafety 规则级安全兜底
func (e *RuleEngine) applySafety(price, currentPrice float64, safety *model.RuleSafety) (float64, []model.ReasonFactor) {
	var factors []model.ReasonFactor

	if safety.MaxPriceDropPercent != nil {
		minAllowed := currentPrice * (1 - *safety.MaxPriceDropPercent/100)
		if price < minAllowed {
			price = minAllowed
			factors = append(factors, model.ReasonFactor{
				Name:        "safety_constraint",
				Value:       "max_drop",
				Impact:      "neutral",
				Description: fmt.Sprintf("安全兜底：单次最大降幅 %.1f%%", *safety.MaxPriceDropPercent),
			})
		}
	}
	if safety.MinPriceFloor != nil && price < *safety.MinPriceFloor {
		price = *safety.MinPriceFloor
		factors = append(factors, model.ReasonFactor{
			Name:        "safety_constraint",
			Value:       "floor",
			Impact:      "neutral",
			Description: fmt.Sprintf("安全兜底：绝对最低价 %.2f", *safety.MinPriceFloor),
		})
	}

	return price, factors
}

// ==================== 信心与影响 ====================

// calculateConfidence 信心值是数据可得性信号，不是统计保证
func (e *RuleEngine) calculateConfidence(conditionCount int, pctx *PricingContext) float64 {
	confidence := 0.5
	confidence += math.Min(float64(conditionCount)*0.1, 0.2)
	if pctx.CompetitorPrice != nil {
		confidence += 0.1
	}
	if pctx.SalesVelocity > 0 {
		confidence += 0.1
	}
	if len(pctx.HistoricalPrices) > 5 {
		confidence += 0.1
	}
	return math.Min(confidence, 1.0)
}

// EstimateImpact 影响试算（固定弹性模型）
func (e *RuleEngine) EstimateImpact(pctx *PricingContext, recommendedPrice float64) *model.ImpactEstimate {
	priceChange := recommendedPrice - pctx.CurrentPrice
	changePercent := 0.0
	if pctx.CurrentPrice > 0 {
		changePercent = priceChange / pctx.CurrentPrice * 100
	}

	expectedSalesChange := changePercent * demandElasticity

	currentMargin := pctx.CurrentPrice - pctx.CostPrice
	newMargin := recommendedPrice - pctx.CostPrice
	marginChange := newMargin - currentMargin

	revenueImpact := priceChange * (1 + expectedSalesChange/100)
	revenueImpactPercent := 0.0
	if pctx.CurrentPrice > 0 {
		revenueImpactPercent = revenueImpact / pctx.CurrentPrice * 100
	}

	profitImpact := marginChange * (1 + expectedSalesChange/100)
	profitImpactPercent := 0.0
	if currentMargin > 0 {
		profitImpactPercent = profitImpact / currentMargin * 100
	}

	// 竞品位置：±5% 区间内算 mid
	position := "mid"
	if pctx.CompetitorPrice != nil {
		if recommendedPrice < *pctx.CompetitorPrice*0.95 {
			position = "cheapest"
		} else if recommendedPrice > *pctx.CompetitorPrice*1.05 {
			position = "premium"
		}
	}

	risk := "low"
	absChange := math.Abs(changePercent)
	if absChange >= 25 {
		risk = "high"
	} else if absChange >= 10 {
		risk = "medium"
	}

	return &model.ImpactEstimate{
		RevenueImpact:        round2(revenueImpact),
		RevenueImpactPercent: round2(revenueImpactPercent),
		ProfitImpact:         round2(profitImpact),
		ProfitImpactPercent:  round2(profitImpactPercent),
		MarginChange:         round2(marginChange),
		ExpectedSalesChange:  round2(expectedSalesChange),
		CompetitorPosition:   position,
		RiskLevel:            risk,
	}
}

func (e *RuleEngine) explain(rule *model.RuleSpec, factors []model.ReasonFactor, pctx *PricingContext, price float64) string {
	change := price - pctx.CurrentPrice
	direction := "维持"
	if change > 0 {
		direction = "上调"
	} else if change < 0 {
		direction = "下调"
	}

	names := make([]string, 0, len(factors))
	for _, f := range factors {
		names = append(names, f.Name)
	}

	explanation := fmt.Sprintf("规则「%s」建议%s价格", rule.Name, direction)
	if change != 0 && pctx.CurrentPrice > 0 {
		explanation += fmt.Sprintf(" %.2f (%.1f%%)", math.Abs(change), change/pctx.CurrentPrice*100)
	}
	explanation += "。因子: " + strings.Join(names, ", ")
	return explanation
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
