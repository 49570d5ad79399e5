package task

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"resale_sync_v1_202609/internal/service"
)

// ==================== PricingSweepTask 定价巡检任务 ====================

// PricingSweepTask 周期性定价巡检
// 每轮：过期推荐清理 → 规则求值产生新推荐 → 已批准推荐自动落地
type PricingSweepTask struct {
	pricing  *service.PricingService
	approval *service.ApprovalService
	cron     *cron.Cron

	batchLimit int
}

// NewPricingSweepTask 创建定价巡检任务
func NewPricingSweepTask(pricing *service.PricingService, approval *service.ApprovalService) *PricingSweepTask {
	return &PricingSweepTask{
		pricing:    pricing,
		approval:   approval,
		cron:       cron.New(cron.WithSeconds()),
		batchLimit: 500,
	}
}

// SetBatchLimit 设置单轮求值的刊登数上限
func (t *PricingSweepTask) SetBatchLimit(limit int) {
	t.batchLimit = limit
}

// Start 启动定时任务
func (t *PricingSweepTask) Start() {
	// 每 30 分钟一轮
	if _, err := t.cron.AddFunc("0 */30 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
		defer cancel()
		t.sweep(ctx)
	}); err != nil {
		log.Printf("[PricingSweepTask] 定时任务启动失败: %v", err)
		return
	}

	t.cron.Start()
	log.Println("[PricingSweepTask] 已启动 (每30分钟)")
}

// Stop 停止任务
func (t *PricingSweepTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	log.Println("[PricingSweepTask] 已停止")
}

// sweep 执行一轮巡检
func (t *PricingSweepTask) sweep(ctx context.Context) {
	log.Println("[PricingSweepTask] 开始定价巡检...")

	expired, err := t.approval.ProcessExpired(ctx)
	if err != nil {
		log.Printf("[PricingSweepTask] 过期推荐清理失败: %v", err)
	}

	sweepResult, err := t.pricing.EvaluateAll(ctx, t.batchLimit)
	if err != nil {
		log.Printf("[PricingSweepTask] 规则求值失败: %v", err)
		return
	}

	applyResult, err := t.approval.ProcessApproved(ctx)
	if err != nil {
		log.Printf("[PricingSweepTask] 推荐落地失败: %v", err)
		return
	}

	log.Printf("[PricingSweepTask] 巡检完成: 过期 %d, 求值 %d, 新推荐 %d, 落地 %d, 落地失败 %d",
		expired, sweepResult.Evaluated, sweepResult.Recommended,
		applyResult.Applied, applyResult.Failed)
}

// ==================== 手动触发 ====================

// SweepNow 立即执行一轮巡检
func (t *PricingSweepTask) SweepNow() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
		defer cancel()
		t.sweep(ctx)
	}()
}
