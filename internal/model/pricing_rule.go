package model

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// ==================== 规则类型 ====================

// PricingRuleType 定价规则类型
type PricingRuleType string

const (
	RuleTypeCompetitorBased PricingRuleType = "COMPETITOR_BASED"
	RuleTypeTimeBased       PricingRuleType = "TIME_BASED"
	RuleTypeMarginBased     PricingRuleType = "MARGIN_BASED"
	RuleTypeVelocityBased   PricingRuleType = "VELOCITY_BASED"
	RuleTypeManual          PricingRuleType = "MANUAL"
)

// ==================== 条件与动作 ====================

// RuleCondition 规则条件 (field, operator, value)
// operator: lt/lte/gt/gte/eq/neq/between（between 时 Value 为 [low, high]）
// 所有条件 AND 组合；字段依赖缺失时条件视为不匹配而非报错
type RuleCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// RuleConstraints 动作级约束
type RuleConstraints struct {
	MinPrice    *float64 `json:"minPrice,omitempty"`
	MaxPrice    *float64 `json:"maxPrice,omitempty"`
	MinMargin   *float64 `json:"minMargin,omitempty"`   // 最低利润率 %
	MaxDiscount *float64 `json:"maxDiscount,omitempty"` // 相对现价最大降幅 %
	MaxIncrease *float64 `json:"maxIncrease,omitempty"` // 相对现价最大涨幅 %
}

// RuleAction 规则动作，按声明顺序依次作用于运行价格
// type: SET_PRICE / ADJUST_PERCENT / ADJUST_AMOUNT / MATCH_COMPETITOR / NO_ACTION
type RuleAction struct {
	Type             string           `json:"type"`
	Value            *float64         `json:"value,omitempty"`
	CompetitorOffset *float64         `json:"competitorOffset,omitempty"`
	Constraints      *RuleConstraints `json:"constraints,omitempty"`
}

// RuleSafety 规则级安全兜底，任何动作结果都不能越过
type RuleSafety struct {
	MaxPriceDropPercent *float64 `json:"maxPriceDropPercent,omitempty"`
	MinPriceFloor       *float64 `json:"minPriceFloor,omitempty"`
}

// ==================== 规则模型 ====================

// PricingRule 持久化的定价规则
// 条件/动作以 JSON 存储，求值前解码为 RuleSpec
type PricingRule struct {
	BaseModel

	Name     string          `gorm:"size:100;not null" json:"name"`
	RuleType PricingRuleType `gorm:"size:30;index" json:"rule_type"`

	Conditions   datatypes.JSON `gorm:"type:json" json:"conditions"`
	Actions      datatypes.JSON `gorm:"type:json" json:"actions"`
	SafetyConfig datatypes.JSON `gorm:"type:json" json:"safety_config"`

	// Priority 越大越优先；同 Priority 不保证顺序
	Priority int `gorm:"index;default:0" json:"priority"`

	// Marketplace 为空表示对所有渠道生效
	Marketplace Marketplace `gorm:"size:30;index" json:"marketplace"`
	Category    string      `gorm:"size:100" json:"category"`

	IsActive bool `gorm:"index;default:true" json:"is_active"`
}

func (PricingRule) TableName() string {
	return "pricing_rules"
}

// RuleSpec 解码后的内存规则，规则引擎的求值单元
type RuleSpec struct {
	ID          int64
	Name        string
	Type        PricingRuleType
	Conditions  []RuleCondition
	Actions     []RuleAction
	Priority    int
	Marketplace Marketplace
	Category    string
	Safety      *RuleSafety
}

// Decode 将持久化规则解码为 RuleSpec
func (r *PricingRule) Decode() (*RuleSpec, error) {
	spec := &RuleSpec{
		ID:          r.ID,
		Name:        r.Name,
		Type:        r.RuleType,
		Priority:    r.Priority,
		Marketplace: r.Marketplace,
		Category:    r.Category,
	}
	if len(r.Conditions) > 0 {
		if err := json.Unmarshal(r.Conditions, &spec.Conditions); err != nil {
			return nil, err
		}
	}
	if len(r.Actions) > 0 {
		if err := json.Unmarshal(r.Actions, &spec.Actions); err != nil {
			return nil, err
		}
	}
	if len(r.SafetyConfig) > 0 {
		var safety RuleSafety
		if err := json.Unmarshal(r.SafetyConfig, &safety); err != nil {
			return nil, err
		}
		spec.Safety = &safety
	}
	return spec, nil
}
