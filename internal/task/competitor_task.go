package task

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"resale_sync_v1_202609/internal/service"
)

// ==================== CompetitorCheckTask 竞品巡检任务 ====================

// CompetitorCheckTask 周期性竞品价格巡检
type CompetitorCheckTask struct {
	competitor *service.CompetitorService
	cron       *cron.Cron
}

// NewCompetitorCheckTask 创建竞品巡检任务
func NewCompetitorCheckTask(competitor *service.CompetitorService) *CompetitorCheckTask {
	return &CompetitorCheckTask{
		competitor: competitor,
		cron:       cron.New(cron.WithSeconds()),
	}
}

// Start 启动定时任务
func (t *CompetitorCheckTask) Start() {
	// 每小时半点执行，与库存对账错峰
	if _, err := t.cron.AddFunc("0 30 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		t.checkAll(ctx)
	}); err != nil {
		log.Printf("[CompetitorCheckTask] 定时任务启动失败: %v", err)
		return
	}

	t.cron.Start()
	log.Println("[CompetitorCheckTask] 已启动 (每小时)")
}

// Stop 停止任务
func (t *CompetitorCheckTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	log.Println("[CompetitorCheckTask] 已停止")
}

func (t *CompetitorCheckTask) checkAll(ctx context.Context) {
	result, err := t.competitor.CheckAll(ctx)
	if err != nil {
		log.Printf("[CompetitorCheckTask] 全量检查失败: %v", err)
		return
	}
	if result.Alerts > 0 {
		log.Printf("[CompetitorCheckTask] 产生 %d 条竞品告警", result.Alerts)
	}
}

// ==================== 手动触发 ====================

// CheckAllNow 立即执行一轮全量检查
func (t *CompetitorCheckTask) CheckAllNow() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		t.checkAll(ctx)
	}()
}
