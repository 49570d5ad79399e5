package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== TriggerRateLimiter 手动触发限流器 ====================

// TriggerRateLimiter 手动触发限流器
// 防止操作员频繁触发对账/巡检把渠道 API 配额打爆
type TriggerRateLimiter struct {
	locks sync.Map // key -> *lockEntry
}

type lockEntry struct {
	lastTime time.Time
	mu       sync.Mutex
}

// 全局限流器实例
var globalLimiter = &TriggerRateLimiter{}

// GetLimiter 获取全局限流器
func GetLimiter() *TriggerRateLimiter {
	return globalLimiter
}

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool          // 是否允许
	RetryAfter time.Duration // 剩余冷却时间
}

// Check 检查是否允许执行，允许时更新最后执行时间
func (r *TriggerRateLimiter) Check(key string, interval time.Duration) CheckResult {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(entry.lastTime)
	if elapsed < interval {
		return CheckResult{
			Allowed:    false,
			RetryAfter: interval - elapsed,
		}
	}

	entry.lastTime = now
	return CheckResult{Allowed: true}
}

// Reset 重置指定 key 的限流
func (r *TriggerRateLimiter) Reset(key string) {
	r.locks.Delete(key)
}

// ==================== 触发类型与 Key ====================

// TriggerType 手动触发类型
type TriggerType string

const (
	TriggerTypeInventory  TriggerType = "inventory"
	TriggerTypeReconcile  TriggerType = "reconcile"
	TriggerTypePricing    TriggerType = "pricing"
	TriggerTypeCompetitor TriggerType = "competitor"
	TriggerTypePublish    TriggerType = "publish"
)

// ProductTriggerKey 商品级触发 Key
func ProductTriggerKey(productID int64, triggerType TriggerType) string {
	return fmt.Sprintf("product:%d:%s", productID, triggerType)
}

// GlobalTriggerKey 全局触发 Key
func GlobalTriggerKey(triggerType TriggerType) string {
	return fmt.Sprintf("global:%s", triggerType)
}

// DefaultIntervals 默认冷却间隔
var DefaultIntervals = map[TriggerType]time.Duration{
	TriggerTypeInventory:  30 * time.Second,
	TriggerTypeReconcile:  5 * time.Minute,
	TriggerTypePricing:    5 * time.Minute,
	TriggerTypeCompetitor: 10 * time.Minute,
	TriggerTypePublish:    time.Minute,
}

// GetInterval 触发类型的默认冷却间隔
func GetInterval(triggerType TriggerType) time.Duration {
	if interval, ok := DefaultIntervals[triggerType]; ok {
		return interval
	}
	return 5 * time.Minute
}

// ==================== Gin 中间件 ====================

// TriggerRateLimit 手动触发限流中间件
// 路径带 :id 时按商品限流，否则全局限流；interval 为 0 用默认值
func TriggerRateLimit(triggerType TriggerType, interval time.Duration) gin.HandlerFunc {
	if interval == 0 {
		interval = GetInterval(triggerType)
	}

	return func(c *gin.Context) {
		key := GlobalTriggerKey(triggerType)
		if idStr := c.Param("id"); idStr != "" {
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"code":    400,
					"message": "无效的 ID",
				})
				c.Abort()
				return
			}
			key = ProductTriggerKey(id, triggerType)
		}

		result := GetLimiter().Check(key, interval)
		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    429,
				"message": formatRetryMessage(result.RetryAfter),
				"data": gin.H{
					"retry_after":  int(result.RetryAfter.Seconds()),
					"trigger_type": triggerType,
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// formatRetryMessage 格式化重试提示信息
func formatRetryMessage(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("触发冷却中，请 %d 秒后重试", seconds)
	}

	minutes := seconds / 60
	remainingSeconds := seconds % 60
	if remainingSeconds == 0 {
		return fmt.Sprintf("触发冷却中，请 %d 分钟后重试", minutes)
	}
	return fmt.Sprintf("触发冷却中，请 %d 分 %d 秒后重试", minutes, remainingSeconds)
}
