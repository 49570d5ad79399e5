package service

import (
	"context"
	"testing"

	"resale_sync_v1_202609/internal/model"
)

// ==================== 测试辅助 ====================

func f64(v float64) *float64 { return &v }

func newTestEngine() *RuleEngine {
	return NewRuleEngine(nil)
}

// ==================== 单元测试 ====================

func TestRuleEngine_PriorityFirstMatchWins(t *testing.T) {
	engine := newTestEngine()

	rules := []model.RuleSpec{
		{
			ID: 2, Name: "高优先级降价", Type: model.RuleTypeTimeBased, Priority: 100,
			Conditions: []model.RuleCondition{{Field: "daysListed", Operator: "gte", Value: 30.0}},
			Actions:    []model.RuleAction{{Type: "ADJUST_PERCENT", Value: f64(-10)}},
		},
		{
			ID: 1, Name: "低优先级降价", Type: model.RuleTypeTimeBased, Priority: 10,
			Conditions: []model.RuleCondition{{Field: "daysListed", Operator: "gte", Value: 30.0}},
			Actions:    []model.RuleAction{{Type: "ADJUST_PERCENT", Value: f64(-50)}},
		},
	}

	pctx := &PricingContext{ListingID: 1, CurrentPrice: 10000, DaysListed: 45}
	result, err := engine.Evaluate(context.Background(), pctx, rules)
	if err != nil {
		t.Fatalf("求值失败: %v", err)
	}
	if result == nil || !result.Matched {
		t.Fatal("应命中高优先级规则")
	}
	if result.RuleID != 2 {
		t.Errorf("ruleID = %d, want 2", result.RuleID)
	}
	if result.RecommendedPrice != 9000 {
		t.Errorf("price = %.2f, want 9000", result.RecommendedPrice)
	}
}

func TestRuleEngine_MinPriceConstraintClamps(t *testing.T) {
	engine := newTestEngine()

	rules := []model.RuleSpec{
		{
			ID: 1, Name: "清仓五折", Type: model.RuleTypeTimeBased, Priority: 1,
			Actions: []model.RuleAction{{
				Type:  "ADJUST_PERCENT",
				Value: f64(-50),
				Constraints: &model.RuleConstraints{
					MinPrice: f64(8000),
				},
			}},
		},
	}

	pctx := &PricingContext{ListingID: 1, CurrentPrice: 10000}
	result, err := engine.Evaluate(context.Background(), pctx, rules)
	if err != nil {
		t.Fatalf("求值失败: %v", err)
	}
	if result.RecommendedPrice != 8000 {
		t.Errorf("price = %.2f, want 8000（被最低价钳制）", result.RecommendedPrice)
	}

	// 钳制应留下理由因子
	found := false
	for _, factor := range result.Reason.Factors {
		if factor.Name == "constraint_applied" {
			found = true
		}
	}
	if !found {
		t.Error("钳制生效时应追加 constraint_applied 因子")
	}
}

func TestRuleEngine_MissingCompetitorDependency(t *testing.T) {
	engine := newTestEngine()

	rules := []model.RuleSpec{
		{
			ID: 1, Name: "跟随竞品", Type: model.RuleTypeCompetitorBased, Priority: 1,
			Conditions: []model.RuleCondition{{Field: "competitorDiffPercent", Operator: "gt", Value: 5.0}},
			Actions:    []model.RuleAction{{Type: "MATCH_COMPETITOR", CompetitorOffset: f64(-100)}},
		},
	}

	// 无竞品价，条件依赖缺失 → 不命中也不报错
	pctx := &PricingContext{ListingID: 1, CurrentPrice: 10000}
	result, err := engine.Evaluate(context.Background(), pctx, rules)
	if err != nil {
		t.Fatalf("求值失败: %v", err)
	}
	if result != nil {
		t.Errorf("依赖缺失时不应命中规则")
	}
}

func TestRuleEngine_MatchCompetitorWithOffset(t *testing.T) {
	engine := newTestEngine()

	rules := []model.RuleSpec{
		{
			ID: 1, Name: "压价跟随", Type: model.RuleTypeCompetitorBased, Priority: 1,
			Conditions: []model.RuleCondition{{Field: "competitorPrice", Operator: "gt", Value: 0.0}},
			Actions:    []model.RuleAction{{Type: "MATCH_COMPETITOR", CompetitorOffset: f64(-200)}},
		},
	}

	pctx := &PricingContext{ListingID: 1, CurrentPrice: 10000, CompetitorPrice: f64(9500)}
	result, err := engine.Evaluate(context.Background(), pctx, rules)
	if err != nil {
		t.Fatalf("求值失败: %v", err)
	}
	if result.RecommendedPrice != 9300 {
		t.Errorf("price = %.2f, want 9300", result.RecommendedPrice)
	}
}

func TestRuleEngine_BetweenOperator(t *testing.T) {
	engine := newTestEngine()

	spec := model.RuleSpec{
		ID: 1, Name: "价格带", Type: model.RuleTypeManual, Priority: 1,
		Conditions: []model.RuleCondition{
			{Field: "currentPrice", Operator: "between", Value: []any{5000.0, 15000.0}},
		},
		Actions: []model.RuleAction{{Type: "NO_ACTION"}},
	}

	inRange := &PricingContext{CurrentPrice: 10000}
	if r := engine.EvaluateRule(&spec, inRange); !r.Matched {
		t.Error("10000 应落在 [5000, 15000] 内")
	}

	outOfRange := &PricingContext{CurrentPrice: 20000}
	if r := engine.EvaluateRule(&spec, outOfRange); r.Matched {
		t.Error("20000 不应落在 [5000, 15000] 内")
	}
}

func TestRuleEngine_SafetyFloorWins(t *testing.T) {
	engine := newTestEngine()

	spec := model.RuleSpec{
		ID: 1, Name: "激进降价", Type: model.RuleTypeTimeBased, Priority: 1,
		Actions: []model.RuleAction{{Type: "ADJUST_PERCENT", Value: f64(-60)}},
		Safety: &model.RuleSafety{
			MaxPriceDropPercent: f64(30),
			MinPriceFloor:       f64(7500),
		},
	}

	pctx := &PricingContext{CurrentPrice: 10000}
	result := engine.EvaluateRule(&spec, pctx)
	if !result.Matched {
		t.Fatal("无条件规则应始终命中")
	}
	// -60% → 4000，先被 MaxDrop 30% 抬到 7000，再被绝对下限抬到 7500
	if result.RecommendedPrice != 7500 {
		t.Errorf("price = %.2f, want 7500", result.RecommendedPrice)
	}
}

func TestRuleEngine_ImpactRiskLevels(t *testing.T) {
	engine := newTestEngine()

	pctx := &PricingContext{CurrentPrice: 10000, CostPrice: 6000}

	impact := engine.EstimateImpact(pctx, 9500)
	if impact.RiskLevel != "low" {
		t.Errorf("5%% 变更 risk = %s, want low", impact.RiskLevel)
	}

	impact = engine.EstimateImpact(pctx, 8500)
	if impact.RiskLevel != "medium" {
		t.Errorf("15%% 变更 risk = %s, want medium", impact.RiskLevel)
	}

	impact = engine.EstimateImpact(pctx, 7000)
	if impact.RiskLevel != "high" {
		t.Errorf("30%% 变更 risk = %s, want high", impact.RiskLevel)
	}
}

func TestRuleEngine_ConfidenceSignals(t *testing.T) {
	engine := newTestEngine()

	bare := engine.calculateConfidence(0, &PricingContext{})
	if bare != 0.5 {
		t.Errorf("无信号 confidence = %.2f, want 0.5", bare)
	}

	rich := engine.calculateConfidence(3, &PricingContext{
		CompetitorPrice:  f64(9000),
		SalesVelocity:    0.5,
		HistoricalPrices: []float64{1, 2, 3, 4, 5, 6},
	})
	if rich != 1.0 {
		t.Errorf("满信号 confidence = %.2f, want 1.0", rich)
	}
}
