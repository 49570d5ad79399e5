package service

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"gorm.io/datatypes"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
)

// ==================== 审批配置 ====================

// ApprovalConfig 审批阈值配置
type ApprovalConfig struct {
	// AutoApproveThreshold 自动批准的涨幅上限 %（带符号比较，降价不受此限）
	AutoApproveThreshold float64
	// RequireApprovalAbove 推荐价达到此值必须人工审批
	RequireApprovalAbove float64
	// MinConfidence 自动批准的最低信心值
	MinConfidence float64
	// ExpiryTTL 推荐有效期
	ExpiryTTL time.Duration
}

// DefaultApprovalConfig 默认审批配置
func DefaultApprovalConfig() ApprovalConfig {
	return ApprovalConfig{
		AutoApproveThreshold: 5,
		RequireApprovalAbove: 50,
		MinConfidence:        0.7,
		ExpiryTTL:            24 * time.Hour,
	}
}

// ==================== 输入与结果 ====================

// CreateRecommendationInput 创建推荐的输入
type CreateRecommendationInput struct {
	ListingID        int64
	ProductID        int64
	CurrentPrice     float64
	RecommendedPrice float64
	MinPrice         *float64
	MaxPrice         *float64
	Confidence       float64
	Reason           model.RecommendationReason
	Impact           *model.ImpactEstimate
	RuleID           *int64
}

// ApprovalResult 审批操作的结构化结果
// 推荐不存在、刊登不存在、熔断拒绝都是可恢复失败，不抛错不中断批处理
type ApprovalResult struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
	NewPrice *float64 `json:"new_price,omitempty"`
}

// BatchResult 批处理结果
type BatchResult struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
}

// ApprovalStats 审批统计
type ApprovalStats struct {
	Total            int64   `json:"total"`
	Pending          int64   `json:"pending"`
	Approved         int64   `json:"approved"`
	Applied          int64   `json:"applied"`
	Rejected         int64   `json:"rejected"`
	Expired          int64   `json:"expired"`
	AvgChangePercent float64 `json:"avg_change_percent"`
	AutoApproveRate  float64 `json:"auto_approve_rate"`
}

// ==================== ApprovalService ====================

// ApprovalService 价格推荐审批状态机
// PENDING → APPROVED → APPLIED；REJECTED/EXPIRED/CANCELLED 为终态
type ApprovalService struct {
	recRepo     repository.RecommendationRepository
	listingRepo repository.ListingRepository
	breaker     *CircuitBreaker
	history     *PriceHistoryService
	eventBus    EventBus

	mu     sync.RWMutex
	config ApprovalConfig
}

// NewApprovalService 创建审批服务
func NewApprovalService(
	recRepo repository.RecommendationRepository,
	listingRepo repository.ListingRepository,
	breaker *CircuitBreaker,
	history *PriceHistoryService,
	eventBus EventBus,
	config ApprovalConfig,
) *ApprovalService {
	return &ApprovalService{
		recRepo:     recRepo,
		listingRepo: listingRepo,
		breaker:     breaker,
		history:     history,
		eventBus:    eventBus,
		config:      config,
	}
}

// UpdateConfig 运行时更新审批阈值
func (s *ApprovalService) UpdateConfig(config ApprovalConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
}

// Config 当前配置快照
func (s *ApprovalService) Config() ApprovalConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// ==================== 创建推荐 ====================

// CreateRecommendation 持久化一条价格推荐
// 三个条件同时满足才自动批准：带符号变动 ≤ 阈值、推荐价低于人工审批线、信心达标
func (s *ApprovalService) CreateRecommendation(ctx context.Context, input CreateRecommendationInput) (*model.PriceRecommendation, error) {
	cfg := s.Config()

	changePercent := 0.0
	if input.CurrentPrice > 0 {
		changePercent = (input.RecommendedPrice - input.CurrentPrice) / input.CurrentPrice * 100
	}

	autoApprove := changePercent <= cfg.AutoApproveThreshold &&
		input.RecommendedPrice < cfg.RequireApprovalAbove &&
		input.Confidence >= cfg.MinConfidence

	rec := &model.PriceRecommendation{
		ListingID:        input.ListingID,
		ProductID:        input.ProductID,
		CurrentPrice:     input.CurrentPrice,
		RecommendedPrice: input.RecommendedPrice,
		MinPrice:         input.MinPrice,
		MaxPrice:         input.MaxPrice,
		Confidence:       input.Confidence,
		Status:           model.RecommendationPending,
		RuleID:           input.RuleID,
		ExpiresAt:        time.Now().Add(cfg.ExpiryTTL),
	}

	if raw, err := json.Marshal(input.Reason); err == nil {
		rec.Reason = datatypes.JSON(raw)
	}
	if input.Impact != nil {
		if raw, err := json.Marshal(input.Impact); err == nil {
			rec.Impact = datatypes.JSON(raw)
		}
	}

	if autoApprove {
		now := time.Now()
		rec.Status = model.RecommendationApproved
		rec.AutoApproved = true
		rec.ApprovedBy = "auto"
		rec.ApprovedAt = &now
	}

	if err := s.recRepo.Create(ctx, rec); err != nil {
		return nil, err
	}

	if autoApprove {
		s.eventBus.PublishPriceChange(ctx, strconv.FormatInt(input.ListingID, 10), map[string]any{
			"status":           "auto_approved",
			"recommendationId": rec.ID,
			"currentPrice":     input.CurrentPrice,
			"recommendedPrice": input.RecommendedPrice,
		})
	}
	return rec, nil
}

// ==================== 状态迁移 ====================

// Approve 批准待审推荐
// 已过期的推荐转为 EXPIRED 并返回失败；已批准的重复批准是幂等成功
func (s *ApprovalService) Approve(ctx context.Context, id int64, approvedBy string) ApprovalResult {
	rec, err := s.recRepo.GetByID(ctx, id)
	if err != nil {
		return ApprovalResult{Message: "推荐不存在"}
	}

	if rec.Status != model.RecommendationPending && rec.Status != model.RecommendationApproved {
		return ApprovalResult{Message: "当前状态不可批准: " + string(rec.Status)}
	}

	if time.Now().After(rec.ExpiresAt) {
		rec.Status = model.RecommendationExpired
		if err := s.recRepo.Update(ctx, rec); err != nil {
			log.Printf("[ApprovalService] 过期状态写入失败 rec=%d: %v", id, err)
		}
		return ApprovalResult{Message: "推荐已过期"}
	}

	now := time.Now()
	rec.Status = model.RecommendationApproved
	rec.ApprovedBy = approvedBy
	rec.ApprovedAt = &now
	if err := s.recRepo.Update(ctx, rec); err != nil {
		return ApprovalResult{Message: "批准写入失败: " + err.Error()}
	}
	return ApprovalResult{Success: true}
}

// Reject 驳回待审推荐，只有 PENDING 可驳回
func (s *ApprovalService) Reject(ctx context.Context, id int64, reason, rejectedBy string) ApprovalResult {
	rec, err := s.recRepo.GetByID(ctx, id)
	if err != nil {
		return ApprovalResult{Message: "推荐不存在"}
	}
	if rec.Status != model.RecommendationPending {
		return ApprovalResult{Message: "当前状态不可驳回: " + string(rec.Status)}
	}

	rec.Status = model.RecommendationRejected
	rec.RejectedReason = reason
	if err := s.recRepo.Update(ctx, rec); err != nil {
		return ApprovalResult{Message: "驳回写入失败: " + err.Error()}
	}
	return ApprovalResult{Success: true}
}

// Apply 把已批准推荐落地为真实价格变更
// 熔断拒绝时推荐保持 APPROVED，冷却结束后可重试；
// 对已 APPLIED 的推荐重复调用返回失败不会二次改价。
func (s *ApprovalService) Apply(ctx context.Context, id int64) ApprovalResult {
	rec, err := s.recRepo.GetByID(ctx, id)
	if err != nil {
		return ApprovalResult{Message: "推荐不存在"}
	}
	if rec.Status != model.RecommendationApproved {
		return ApprovalResult{Message: "当前状态不可应用: " + string(rec.Status)}
	}

	listing, err := s.listingRepo.GetByID(ctx, rec.ListingID)
	if err != nil {
		return ApprovalResult{Message: "刊登不存在"}
	}

	check, err := s.breaker.CanApply(ctx, listing.ID, listing.ListingPrice, rec.RecommendedPrice)
	if err != nil {
		return ApprovalResult{Message: "熔断检查失败: " + err.Error()}
	}
	if !check.Allowed {
		// 状态不迁移，保持 APPROVED 可重试
		return ApprovalResult{Message: check.Reason}
	}

	oldPrice := listing.ListingPrice
	if err := s.listingRepo.UpdatePrice(ctx, listing.ID, rec.RecommendedPrice); err != nil {
		return ApprovalResult{Message: "价格写入失败: " + err.Error()}
	}

	if err := s.history.RecordPrice(ctx, listing.ID, rec.RecommendedPrice, model.PriceSourceRule); err != nil {
		log.Printf("[ApprovalService] 价格历史写入失败 listing=%d: %v", listing.ID, err)
	}
	if err := s.history.LogPriceChange(ctx, &model.PriceChangeLog{
		ListingID:        listing.ID,
		OldPrice:         oldPrice,
		NewPrice:         rec.RecommendedPrice,
		Source:           model.PriceSourceRule,
		RecommendationID: &rec.ID,
		RuleID:           rec.RuleID,
	}); err != nil {
		log.Printf("[ApprovalService] 变更日志写入失败 listing=%d: %v", listing.ID, err)
	}

	// 成功路径必须记账，否则熔断形同虚设
	if err := s.breaker.RecordChange(ctx, listing.ID); err != nil {
		log.Printf("[ApprovalService] 熔断计数失败 listing=%d: %v", listing.ID, err)
	}

	now := time.Now()
	rec.Status = model.RecommendationApplied
	rec.AppliedAt = &now
	if err := s.recRepo.Update(ctx, rec); err != nil {
		return ApprovalResult{Message: "状态写入失败: " + err.Error()}
	}

	s.eventBus.PublishPriceChange(ctx, strconv.FormatInt(listing.ID, 10), map[string]any{
		"status":           "applied",
		"recommendationId": rec.ID,
		"oldPrice":         oldPrice,
		"newPrice":         rec.RecommendedPrice,
	})

	newPrice := rec.RecommendedPrice
	return ApprovalResult{Success: true, NewPrice: &newPrice}
}

// ==================== 批处理 ====================

// ProcessExpired 把超过有效期的 PENDING 推荐批量转为 EXPIRED
func (s *ApprovalService) ProcessExpired(ctx context.Context) (int64, error) {
	expired, err := s.recRepo.ExpirePending(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		log.Printf("[ApprovalService] %d 条推荐已过期", expired)
	}
	return expired, nil
}

// ProcessApproved 自动落地所有已批准未过期的推荐
// 单条失败只计数，不中断批次
func (s *ApprovalService) ProcessApproved(ctx context.Context) (*BatchResult, error) {
	recs, err := s.recRepo.ListApprovedUnexpired(ctx, 0)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for _, rec := range recs {
		if applyResult := s.Apply(ctx, rec.ID); applyResult.Success {
			result.Applied++
		} else {
			result.Failed++
			log.Printf("[ApprovalService] 应用失败 rec=%d: %s", rec.ID, applyResult.Message)
		}
	}
	return result, nil
}

// BulkApprove 批量批准，单条失败只计数
func (s *ApprovalService) BulkApprove(ctx context.Context, ids []int64, approvedBy string) *BatchResult {
	result := &BatchResult{}
	for _, id := range ids {
		if r := s.Approve(ctx, id, approvedBy); r.Success {
			result.Applied++
		} else {
			result.Failed++
		}
	}
	return result
}

// ==================== 查询 ====================

// GetPendingRecommendations 待审推荐列表
func (s *ApprovalService) GetPendingRecommendations(ctx context.Context, filter repository.RecommendationFilter) ([]model.PriceRecommendation, int64, error) {
	return s.recRepo.ListPending(ctx, filter)
}

// GetStats 窗口期审批统计
func (s *ApprovalService) GetStats(ctx context.Context, days int) (*ApprovalStats, error) {
	if days <= 0 {
		days = 7
	}

	counts, err := s.recRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &ApprovalStats{
		Pending:  counts[model.RecommendationPending],
		Approved: counts[model.RecommendationApproved],
		Applied:  counts[model.RecommendationApplied],
		Rejected: counts[model.RecommendationRejected],
		Expired:  counts[model.RecommendationExpired],
	}

	recent, err := s.recRepo.ListSince(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	stats.Total = int64(len(recent))
	if len(recent) == 0 {
		return stats, nil
	}

	sumChange := 0.0
	autoApproved := 0
	for _, rec := range recent {
		sumChange += math.Abs(rec.ChangePercent())
		if rec.AutoApproved {
			autoApproved++
		}
	}
	stats.AvgChangePercent = round2(sumChange / float64(len(recent)))
	stats.AutoApproveRate = round2(float64(autoApproved) / float64(len(recent)) * 100)
	return stats, nil
}
