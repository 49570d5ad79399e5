package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
)

// ==================== ReconcileTask 库存对账任务 ====================

// ReconcileTask 周期性库存对账与订单拉取
// 对账逐商品入队由队列执行；订单拉取记录上次水位避免重复扫描
type ReconcileTask struct {
	productRepo repository.ProductRepository
	queue       *Queue
	cron        *cron.Cron

	mu            sync.Mutex
	lastOrderPull time.Time
}

// NewReconcileTask 创建对账任务
func NewReconcileTask(productRepo repository.ProductRepository, queue *Queue) *ReconcileTask {
	return &ReconcileTask{
		productRepo:   productRepo,
		queue:         queue,
		cron:          cron.New(cron.WithSeconds()),
		lastOrderPull: time.Now().Add(-24 * time.Hour),
	}
}

// Start 启动定时任务
func (t *ReconcileTask) Start() {
	// 每小时全量对账
	if _, err := t.cron.AddFunc("0 0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		t.enqueueReconcileAll(ctx)
	}); err != nil {
		log.Printf("[ReconcileTask] 对账定时任务启动失败: %v", err)
		return
	}

	// 每 10 分钟拉取新订单
	if _, err := t.cron.AddFunc("0 */10 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		t.enqueueOrderIngest(ctx)
	}); err != nil {
		log.Printf("[ReconcileTask] 订单拉取定时任务启动失败: %v", err)
		return
	}

	t.cron.Start()
	log.Println("[ReconcileTask] 已启动 (对账每小时, 订单每10分钟)")
}

// Stop 停止任务
func (t *ReconcileTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	log.Println("[ReconcileTask] 已停止")
}

// enqueueReconcileAll 为全部活跃商品入队对账任务
func (t *ReconcileTask) enqueueReconcileAll(ctx context.Context) {
	products, _, err := t.productRepo.List(ctx, repository.ProductFilter{
		Status:   model.ProductStatusActive,
		PageSize: 1000,
	})
	if err != nil {
		log.Printf("[ReconcileTask] 获取商品列表失败: %v", err)
		return
	}

	enqueued := 0
	for _, p := range products {
		if _, err := t.queue.Enqueue(ctx, model.JobFamilyInventory, "reconcile_product",
			ProductJobPayload{ProductID: p.ID}); err != nil {
			log.Printf("[ReconcileTask] 对账任务入队失败 product=%d: %v", p.ID, err)
			continue
		}
		enqueued++
	}
	log.Printf("[ReconcileTask] 对账任务入队完成: %d/%d", enqueued, len(products))
}

// enqueueOrderIngest 入队订单拉取任务并推进水位
func (t *ReconcileTask) enqueueOrderIngest(ctx context.Context) {
	t.mu.Lock()
	since := t.lastOrderPull
	t.lastOrderPull = time.Now()
	t.mu.Unlock()

	if _, err := t.queue.Enqueue(ctx, model.JobFamilyInventory, "ingest_orders",
		OrderIngestPayload{SinceUnix: since.Unix()}); err != nil {
		log.Printf("[ReconcileTask] 订单拉取任务入队失败: %v", err)
	}
}

// ==================== 手动触发 ====================

// ReconcileAllNow 立即入队全量对账
func (t *ReconcileTask) ReconcileAllNow() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		t.enqueueReconcileAll(ctx)
	}()
}
