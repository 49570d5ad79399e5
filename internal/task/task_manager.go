package task

import (
	"log"

	"resale_sync_v1_202609/internal/repository"
	"resale_sync_v1_202609/internal/service"
)

// ==================== TaskManager 业务任务管理器 ====================

// TaskManager 统一管理周期任务与持久化队列
// 管理范围：库存对账、订单拉取、定价巡检、竞品巡检、任务队列
type TaskManager struct {
	queue          *Queue
	reconcileTask  *ReconcileTask
	pricingTask    *PricingSweepTask
	competitorTask *CompetitorCheckTask
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	// Repositories
	ProductRepo repository.ProductRepository
	JobRepo     repository.JobRepository

	// Services
	PublishingService *service.PublishingService
	InventoryService  *service.InventoryService
	PricingService    *service.PricingService
	ApprovalService   *service.ApprovalService
	CompetitorService *service.CompetitorService
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	Queue QueueConfig

	ReconcileEnabled  bool
	PricingEnabled    bool
	PricingBatchLimit int
	CompetitorEnabled bool
}

// DefaultConfig 默认配置
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		Queue: DefaultQueueConfig(),

		ReconcileEnabled:  true,
		PricingEnabled:    true,
		PricingBatchLimit: 500,
		CompetitorEnabled: true,
	}
}

// NewTaskManager 创建任务管理器
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	dispatcher := NewDispatcher(
		deps.PublishingService,
		deps.InventoryService,
		deps.PricingService,
		deps.ApprovalService,
		deps.CompetitorService,
	)

	tm := &TaskManager{
		queue: NewQueue(deps.JobRepo, dispatcher, cfg.Queue),
	}

	if cfg.ReconcileEnabled && deps.InventoryService != nil {
		tm.reconcileTask = NewReconcileTask(deps.ProductRepo, tm.queue)
	}
	if cfg.PricingEnabled && deps.PricingService != nil {
		tm.pricingTask = NewPricingSweepTask(deps.PricingService, deps.ApprovalService)
		tm.pricingTask.SetBatchLimit(cfg.PricingBatchLimit)
	}
	if cfg.CompetitorEnabled && deps.CompetitorService != nil {
		tm.competitorTask = NewCompetitorCheckTask(deps.CompetitorService)
	}

	return tm
}

// Queue 队列句柄（入队与统计用）
func (tm *TaskManager) Queue() *Queue {
	return tm.queue
}

// ==================== 生命周期管理 ====================

// Start 启动队列与全部周期任务
func (tm *TaskManager) Start() {
	log.Println("[TaskManager] 正在启动任务...")

	tm.queue.Start()
	if tm.reconcileTask != nil {
		tm.reconcileTask.Start()
	}
	if tm.pricingTask != nil {
		tm.pricingTask.Start()
	}
	if tm.competitorTask != nil {
		tm.competitorTask.Start()
	}

	log.Println("[TaskManager] 任务已全部启动")
}

// Stop 停止全部任务
func (tm *TaskManager) Stop() {
	log.Println("[TaskManager] 正在停止任务...")

	if tm.reconcileTask != nil {
		tm.reconcileTask.Stop()
	}
	if tm.pricingTask != nil {
		tm.pricingTask.Stop()
	}
	if tm.competitorTask != nil {
		tm.competitorTask.Stop()
	}
	tm.queue.Stop()

	log.Println("[TaskManager] 任务已全部停止")
}

// ==================== 手动触发接口 ====================

// TriggerReconcileAll 触发全量库存对账
func (tm *TaskManager) TriggerReconcileAll() error {
	if tm.reconcileTask == nil {
		return ErrTaskDisabled
	}
	tm.reconcileTask.ReconcileAllNow()
	return nil
}

// TriggerPricingSweep 触发一轮定价巡检
func (tm *TaskManager) TriggerPricingSweep() error {
	if tm.pricingTask == nil {
		return ErrTaskDisabled
	}
	tm.pricingTask.SweepNow()
	return nil
}

// TriggerCompetitorCheck 触发一轮竞品全量检查
func (tm *TaskManager) TriggerCompetitorCheck() error {
	if tm.competitorTask == nil {
		return ErrTaskDisabled
	}
	tm.competitorTask.CheckAllNow()
	return nil
}

// ==================== 状态查询 ====================

// Status 任务启用状态
func (tm *TaskManager) Status() map[string]bool {
	return map[string]bool{
		"reconcile":  tm.reconcileTask != nil,
		"pricing":    tm.pricingTask != nil,
		"competitor": tm.competitorTask != nil,
	}
}
