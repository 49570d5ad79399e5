package model

import (
	"time"

	"gorm.io/datatypes"
)

// ==================== 推荐状态 ====================

// RecommendationStatus 价格推荐生命周期状态
// APPLIED/REJECTED/EXPIRED/CANCELLED 为终态；推荐只改状态，从不删除
type RecommendationStatus string

const (
	RecommendationPending   RecommendationStatus = "PENDING"
	RecommendationApproved  RecommendationStatus = "APPROVED"
	RecommendationApplied   RecommendationStatus = "APPLIED"
	RecommendationRejected  RecommendationStatus = "REJECTED"
	RecommendationExpired   RecommendationStatus = "EXPIRED"
	RecommendationCancelled RecommendationStatus = "CANCELLED"
)

// ==================== 推荐理由与影响 ====================

// ReasonFactor 推荐理由中的单个因子
type ReasonFactor struct {
	Name        string `json:"name"`
	Value       any    `json:"value"`
	Impact      string `json:"impact"` // positive / negative / neutral
	Description string `json:"description"`
}

// RecommendationReason 结构化推荐理由
type RecommendationReason struct {
	RuleID      int64           `json:"ruleId"`
	RuleName    string          `json:"ruleName"`
	RuleType    PricingRuleType `json:"ruleType"`
	Factors     []ReasonFactor  `json:"factors"`
	Explanation string          `json:"explanation"`
}

// ImpactEstimate 影响试算
type ImpactEstimate struct {
	RevenueImpact        float64 `json:"revenueImpact"`
	RevenueImpactPercent float64 `json:"revenueImpactPercent"`
	ProfitImpact         float64 `json:"profitImpact"`
	ProfitImpactPercent  float64 `json:"profitImpactPercent"`
	MarginChange         float64 `json:"marginChange"`
	ExpectedSalesChange  float64 `json:"expectedSalesChange"`
	CompetitorPosition   string  `json:"competitorPosition"` // cheapest / mid / premium
	RiskLevel            string  `json:"riskLevel"`          // low / medium / high
}

// ==================== 推荐模型 ====================

// PriceRecommendation 一次规则求值产出的价格推荐
// 只能通过审批状态机变更，过期是终态而非删除
type PriceRecommendation struct {
	BaseModel

	ListingID int64 `gorm:"index;not null" json:"listing_id"`
	ProductID int64 `gorm:"index" json:"product_id"`

	CurrentPrice     float64  `gorm:"not null" json:"current_price"`
	RecommendedPrice float64  `gorm:"not null" json:"recommended_price"`
	MinPrice         *float64 `json:"min_price"`
	MaxPrice         *float64 `json:"max_price"`

	// Confidence ∈ [0,1]，数据可得性信号而非统计保证
	Confidence float64 `gorm:"default:0" json:"confidence"`

	Status RecommendationStatus `gorm:"size:20;index;default:PENDING" json:"status"`

	Reason datatypes.JSON `gorm:"type:json" json:"reason"`
	Impact datatypes.JSON `gorm:"type:json" json:"impact"`
	RuleID *int64         `gorm:"index" json:"rule_id"`

	ExpiresAt time.Time `gorm:"index" json:"expires_at"`

	// --- 审批轨迹 ---
	AutoApproved   bool       `gorm:"default:false" json:"auto_approved"`
	ApprovedBy     string     `gorm:"size:100" json:"approved_by"`
	ApprovedAt     *time.Time `json:"approved_at"`
	AppliedAt      *time.Time `json:"applied_at"`
	RejectedReason string     `gorm:"size:255" json:"rejected_reason"`
}

func (PriceRecommendation) TableName() string {
	return "price_recommendations"
}

// IsTerminal 是否已进入终态
func (r *PriceRecommendation) IsTerminal() bool {
	switch r.Status {
	case RecommendationApplied, RecommendationRejected, RecommendationExpired, RecommendationCancelled:
		return true
	}
	return false
}

// ChangePercent 推荐价相对现价的变动百分比
func (r *PriceRecommendation) ChangePercent() float64 {
	if r.CurrentPrice <= 0 {
		return 0
	}
	return (r.RecommendedPrice - r.CurrentPrice) / r.CurrentPrice * 100
}
