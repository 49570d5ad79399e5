package task

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"resale_sync_v1_202609/internal/marketplace"
	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
	"resale_sync_v1_202609/internal/service"
)

// ==================== 测试辅助 ====================

func setupQueueTest(t *testing.T) (*Queue, repository.JobRepository, repository.ProductRepository) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	db.AutoMigrate(
		&model.SyncJob{}, &model.Product{}, &model.Listing{},
		&model.MarketplaceSyncState{}, &model.InventoryEvent{},
	)

	jobRepo := repository.NewJobRepository(db)
	productRepo := repository.NewProductRepository(db)

	inventory := service.NewInventoryService(
		productRepo,
		repository.NewListingRepository(db),
		repository.NewSyncStateRepository(db),
		repository.NewInventoryEventRepository(db),
		marketplace.NewRegistry(),
		service.NoopEventBus{},
	)

	dispatcher := NewDispatcher(nil, inventory, nil, nil, nil)
	queue := NewQueue(jobRepo, dispatcher, DefaultQueueConfig())
	return queue, jobRepo, productRepo
}

// ==================== 单元测试 ====================

func TestQueue_EnqueueDefaults(t *testing.T) {
	queue, jobRepo, _ := setupQueueTest(t)
	ctx := context.Background()

	job, err := queue.Enqueue(ctx, model.JobFamilyInventory, "reconcile_product", ProductJobPayload{ProductID: 1})
	if err != nil {
		t.Fatalf("入队失败: %v", err)
	}
	if job.JobID == "" {
		t.Error("jobID 不应为空")
	}

	stored, err := jobRepo.GetByJobID(ctx, job.JobID)
	if err != nil {
		t.Fatalf("读取任务失败: %v", err)
	}
	if stored.Status != model.JobStatusPending || stored.MaxAttempts != 3 {
		t.Errorf("job = %+v, want PENDING / maxAttempts=3", stored)
	}
}

func TestQueue_UnknownTypeFailsHard(t *testing.T) {
	queue, jobRepo, _ := setupQueueTest(t)
	ctx := context.Background()

	job, err := queue.Enqueue(ctx, model.JobFamilyPricing, "bogus_type", ListingJobPayload{ListingID: 1})
	if err != nil {
		t.Fatalf("入队失败: %v", err)
	}

	jobRepo.MarkRunning(ctx, job.ID)
	queue.runJob(job)

	after, _ := jobRepo.GetByJobID(ctx, job.JobID)
	if after.Status != model.JobStatusFailed {
		t.Errorf("status = %s, want FAILED（未知类型硬失败）", after.Status)
	}
	if !strings.Contains(after.LastError, "unknown job type") {
		t.Errorf("lastError = %s", after.LastError)
	}

	// 硬失败不回 PENDING，不会被再次取出
	runnable, _ := jobRepo.FetchRunnable(ctx, model.JobFamilyPricing, 10)
	if len(runnable) != 0 {
		t.Errorf("硬失败任务不应可重跑: %d", len(runnable))
	}
}

func TestQueue_RetryableFailureRequeues(t *testing.T) {
	queue, jobRepo, _ := setupQueueTest(t)
	ctx := context.Background()

	// 商品不存在 → 可重试失败
	job, err := queue.Enqueue(ctx, model.JobFamilyInventory, "reconcile_product", ProductJobPayload{ProductID: 999})
	if err != nil {
		t.Fatalf("入队失败: %v", err)
	}

	jobRepo.MarkRunning(ctx, job.ID)
	queue.runJob(job)

	after, _ := jobRepo.GetByJobID(ctx, job.JobID)
	if after.Status != model.JobStatusPending {
		t.Errorf("status = %s, want PENDING（退回待重试）", after.Status)
	}
	if after.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", after.Attempts)
	}
	if after.LastError == "" {
		t.Error("重试任务应记录失败原因")
	}
	if !after.RunAfter.After(time.Now()) {
		t.Error("重试任务 runAfter 应延迟到未来")
	}
}

func TestQueue_ExhaustedAttemptsFail(t *testing.T) {
	queue, jobRepo, _ := setupQueueTest(t)
	ctx := context.Background()

	job, err := queue.Enqueue(ctx, model.JobFamilyInventory, "reconcile_product", ProductJobPayload{ProductID: 999})
	if err != nil {
		t.Fatalf("入队失败: %v", err)
	}

	// 第三次尝试失败后不再重试
	for i := 0; i < 3; i++ {
		jobRepo.MarkRunning(ctx, job.ID)
	}
	queue.runJob(job)

	after, _ := jobRepo.GetByJobID(ctx, job.JobID)
	if after.Status != model.JobStatusFailed {
		t.Errorf("status = %s, want FAILED（尝试耗尽）", after.Status)
	}
}

func TestQueue_SuccessfulDispatchDone(t *testing.T) {
	queue, jobRepo, productRepo := setupQueueTest(t)
	ctx := context.Background()

	product := &model.Product{Title: "テスト商品", Price: 1000, Status: model.ProductStatusActive}
	if err := productRepo.Create(ctx, product); err != nil {
		t.Fatalf("创建商品失败: %v", err)
	}

	job, err := queue.Enqueue(ctx, model.JobFamilyInventory, "reconcile_product", ProductJobPayload{ProductID: product.ID})
	if err != nil {
		t.Fatalf("入队失败: %v", err)
	}

	jobRepo.MarkRunning(ctx, job.ID)
	queue.runJob(job)

	after, _ := jobRepo.GetByJobID(ctx, job.JobID)
	if after.Status != model.JobStatusDone {
		t.Errorf("status = %s, want DONE: %s", after.Status, after.LastError)
	}

	stats, err := queue.Stats(ctx, model.JobFamilyInventory)
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if stats[model.JobStatusDone] != 1 {
		t.Errorf("done = %d, want 1", stats[model.JobStatusDone])
	}
}

func TestQueue_FetchRunnableSkipsDelayed(t *testing.T) {
	_, jobRepo, _ := setupQueueTest(t)
	ctx := context.Background()

	job, err := NewJob(model.JobFamilyPricing, "evaluate_listing", ListingJobPayload{ListingID: 1})
	if err != nil {
		t.Fatalf("构造任务失败: %v", err)
	}
	job.RunAfter = time.Now().Add(time.Hour)
	if err := jobRepo.Enqueue(ctx, job); err != nil {
		t.Fatalf("入队失败: %v", err)
	}

	runnable, err := jobRepo.FetchRunnable(ctx, model.JobFamilyPricing, 10)
	if err != nil {
		t.Fatalf("取任务失败: %v", err)
	}
	if len(runnable) != 0 {
		t.Errorf("延迟任务不应被取出: %d", len(runnable))
	}
}
