package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"resale_sync_v1_202609/internal/store"
)

// ==================== 熔断配置 ====================

// BreakerConfig 价格安全熔断配置
// 独立于任何定价规则，规则和人工都不能绕过
type BreakerConfig struct {
	MinPriceAbsolute      float64       // 绝对价格下限
	MaxPriceDropPercent   float64       // 单次最大降幅 %
	MaxPriceRisePercent   float64       // 单次最大涨幅 %
	MaxDailyChanges       int64         // 单刊登 24h 内最大变更次数
	Cooldown              time.Duration // 两次变更间最短间隔
	AlertThresholdPercent float64       // 非阻断告警阈值 %
}

// DefaultBreakerConfig 默认熔断配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MinPriceAbsolute:      1,
		MaxPriceDropPercent:   20,
		MaxPriceRisePercent:   30,
		MaxDailyChanges:       5,
		Cooldown:              time.Hour,
		AlertThresholdPercent: 15,
	}
}

// ==================== 检查结果 ====================

// BreakerCheckResult 熔断检查结果
// 拒绝是结构化结果而非错误，调用方据此决定重试
type BreakerCheckResult struct {
	Allowed        bool     `json:"allowed"`
	Reason         string   `json:"reason,omitempty"`
	SuggestedPrice *float64 `json:"suggested_price,omitempty"`
	Alert          bool     `json:"alert"`
}

// BreakerStatus 单刊登的熔断状态快照
type BreakerStatus struct {
	IsBlocked   bool   `json:"is_blocked"`
	BlockReason string `json:"block_reason,omitempty"`
	DailyCount  int64  `json:"daily_count"`
	InCooldown  bool   `json:"in_cooldown"`
}

// ==================== CircuitBreaker ====================

// CircuitBreaker 刊登级价格安全闸
// 计数器走共享存储的原子自增/过期，多 worker 并发下仍然正确
type CircuitBreaker struct {
	counters store.CounterStore

	mu     sync.RWMutex
	config BreakerConfig
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(counters store.CounterStore, config BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		counters: counters,
		config:   config,
	}
}

// UpdateConfig 运行时更新阈值
func (b *CircuitBreaker) UpdateConfig(config BreakerConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config = config
}

// Config 当前配置快照
func (b *CircuitBreaker) Config() BreakerConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

func dailyKey(listingID int64) string {
	return "breaker:daily:" + strconv.FormatInt(listingID, 10)
}

func cooldownKey(listingID int64) string {
	return "breaker:cooldown:" + strconv.FormatInt(listingID, 10)
}

// ==================== 检查 ====================

// CanApply 检查一次价格变更是否允许
// 按序短路：绝对下限 → 最大降幅 → 最大涨幅 → 日频上限 → 冷却期。
// 变更幅度超过告警阈值时置 Alert，即便变更被放行。
func (b *CircuitBreaker) CanApply(ctx context.Context, listingID int64, currentPrice, newPrice float64) (*BreakerCheckResult, error) {
	cfg := b.Config()

	changePercent := 0.0
	if currentPrice > 0 {
		changePercent = (newPrice - currentPrice) / currentPrice * 100
	}
	result := &BreakerCheckResult{
		Alert: math.Abs(changePercent) >= cfg.AlertThresholdPercent,
	}

	// 1. 绝对价格下限
	if newPrice < cfg.MinPriceAbsolute {
		result.Reason = fmt.Sprintf("新价格 %.2f 低于绝对下限 %.2f", newPrice, cfg.MinPriceAbsolute)
		return result, nil
	}

	// 2. 单次最大降幅
	if changePercent < -cfg.MaxPriceDropPercent {
		suggested := round2(currentPrice * (1 - cfg.MaxPriceDropPercent/100))
		result.Reason = fmt.Sprintf("降幅 %.1f%% 超过上限 %.1f%%", -changePercent, cfg.MaxPriceDropPercent)
		result.SuggestedPrice = &suggested
		return result, nil
	}

	// 3. 单次最大涨幅
	if changePercent > cfg.MaxPriceRisePercent {
		suggested := round2(currentPrice * (1 + cfg.MaxPriceRisePercent/100))
		result.Reason = fmt.Sprintf("涨幅 %.1f%% 超过上限 %.1f%%", changePercent, cfg.MaxPriceRisePercent)
		result.SuggestedPrice = &suggested
		return result, nil
	}

	// 4. 24h 变更次数
	count, err := b.counters.GetCount(ctx, dailyKey(listingID))
	if err != nil {
		return nil, err
	}
	if count >= cfg.MaxDailyChanges {
		result.Reason = fmt.Sprintf("Daily limit: 24h 内已变更 %d 次（上限 %d）", count, cfg.MaxDailyChanges)
		return result, nil
	}

	// 5. 冷却期
	_, inCooldown, err := b.counters.Get(ctx, cooldownKey(listingID))
	if err != nil {
		return nil, err
	}
	if inCooldown {
		result.Reason = fmt.Sprintf("Cooldown: 距上次变更不足 %s", cfg.Cooldown)
		return result, nil
	}

	result.Allowed = true
	if result.Alert {
		log.Printf("[CircuitBreaker] 告警：listing=%d 变更幅度 %.1f%% 超过告警阈值", listingID, changePercent)
	}
	return result, nil
}

// RecordChange 成功落地一次变更后必须调用
// 自增日频计数并重置冷却计时；漏调会使熔断失效
func (b *CircuitBreaker) RecordChange(ctx context.Context, listingID int64) error {
	cfg := b.Config()

	if _, err := b.counters.Incr(ctx, dailyKey(listingID), 24*time.Hour); err != nil {
		return err
	}
	return b.counters.SetWithTTL(ctx, cooldownKey(listingID),
		strconv.FormatInt(time.Now().Unix(), 10), cfg.Cooldown)
}

// GetStatus 当前熔断状态（回测与监控用，不消耗任何计数）
func (b *CircuitBreaker) GetStatus(ctx context.Context, listingID int64) (*BreakerStatus, error) {
	cfg := b.Config()

	count, err := b.counters.GetCount(ctx, dailyKey(listingID))
	if err != nil {
		return nil, err
	}
	_, inCooldown, err := b.counters.Get(ctx, cooldownKey(listingID))
	if err != nil {
		return nil, err
	}

	status := &BreakerStatus{
		DailyCount: count,
		InCooldown: inCooldown,
	}
	if count >= cfg.MaxDailyChanges {
		status.IsBlocked = true
		status.BlockReason = "Daily limit exceeded"
	} else if inCooldown {
		status.IsBlocked = true
		status.BlockReason = "Cooldown period active"
	}
	return status, nil
}
