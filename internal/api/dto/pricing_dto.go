package dto

import "resale_sync_v1_202609/internal/model"

// ==================== 定价规则 DTO ====================

// SaveRuleRequest 创建/更新规则请求
type SaveRuleRequest struct {
	Name        string                `json:"name" binding:"required"`
	RuleType    model.PricingRuleType `json:"rule_type" binding:"required"`
	Conditions  []model.RuleCondition `json:"conditions"`
	Actions     []model.RuleAction    `json:"actions" binding:"required"`
	Safety      *model.RuleSafety     `json:"safety"`
	Priority    int                   `json:"priority"`
	Marketplace model.Marketplace     `json:"marketplace"`
	Category    string                `json:"category"`
	IsActive    *bool                 `json:"is_active"`
}

// SimulateRequest 定价模拟请求
// listing_ids 多于一个时走批量模拟
type SimulateRequest struct {
	ListingIDs      []int64  `json:"listing_ids" binding:"required"`
	CompetitorPrice *float64 `json:"competitor_price"`
	RuleIDs         []int64  `json:"rule_ids"`
}

// ==================== 推荐审批 DTO ====================

// RejectRequest 驳回请求
type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// BulkApproveRequest 批量批准请求
type BulkApproveRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

// ApprovalConfigRequest 审批配置更新请求
type ApprovalConfigRequest struct {
	AutoApproveThreshold float64 `json:"auto_approve_threshold"`
	RequireApprovalAbove float64 `json:"require_approval_above"`
	MinConfidence        float64 `json:"min_confidence"`
	ExpiryHours          int     `json:"expiry_hours"`
}
