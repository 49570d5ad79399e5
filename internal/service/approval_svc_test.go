package service

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
	"resale_sync_v1_202609/internal/store"
)

// ==================== 测试辅助 ====================

func setupApprovalTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}

	db.AutoMigrate(
		&model.Listing{}, &model.PriceRecommendation{},
		&model.PriceHistory{}, &model.PriceChangeLog{},
	)
	return db
}

func newTestApprovalService(t *testing.T, db *gorm.DB) (*ApprovalService, repository.RecommendationRepository, repository.ListingRepository) {
	recRepo := repository.NewRecommendationRepository(db)
	listingRepo := repository.NewListingRepository(db)
	breaker := NewCircuitBreaker(store.NewMemoryCounterStore(), DefaultBreakerConfig())
	history := NewPriceHistoryService(repository.NewPriceHistoryRepository(db))

	svc := NewApprovalService(recRepo, listingRepo, breaker, history, NoopEventBus{}, DefaultApprovalConfig())
	return svc, recRepo, listingRepo
}

// ==================== 单元测试 ====================

func TestApproval_AutoApprove(t *testing.T) {
	db := setupApprovalTestDB(t)
	svc, _, _ := newTestApprovalService(t, db)
	ctx := context.Background()

	// 降价不受涨幅阈值限制、推荐价低于人工审批线、信心达标 → 自动批准
	rec, err := svc.CreateRecommendation(ctx, CreateRecommendationInput{
		ListingID:        1,
		CurrentPrice:     100,
		RecommendedPrice: 48,
		Confidence:       0.85,
	})
	if err != nil {
		t.Fatalf("创建推荐失败: %v", err)
	}
	if rec.Status != model.RecommendationApproved {
		t.Errorf("status = %s, want APPROVED", rec.Status)
	}
	if !rec.AutoApproved || rec.ApprovedBy != "auto" {
		t.Errorf("autoApproved = %v, approvedBy = %s", rec.AutoApproved, rec.ApprovedBy)
	}
}

func TestApproval_HighValueRequiresManual(t *testing.T) {
	db := setupApprovalTestDB(t)
	svc, _, _ := newTestApprovalService(t, db)
	ctx := context.Background()

	// 推荐价高于人工审批线，即便降价也进待审
	rec, err := svc.CreateRecommendation(ctx, CreateRecommendationInput{
		ListingID:        1,
		CurrentPrice:     100,
		RecommendedPrice: 97,
		Confidence:       0.9,
	})
	if err != nil {
		t.Fatalf("创建推荐失败: %v", err)
	}
	if rec.Status != model.RecommendationPending {
		t.Errorf("status = %s, want PENDING", rec.Status)
	}
}

func TestApproval_LowConfidenceRequiresManual(t *testing.T) {
	db := setupApprovalTestDB(t)
	svc, _, _ := newTestApprovalService(t, db)
	ctx := context.Background()

	rec, err := svc.CreateRecommendation(ctx, CreateRecommendationInput{
		ListingID:        1,
		CurrentPrice:     100,
		RecommendedPrice: 48,
		Confidence:       0.5,
	})
	if err != nil {
		t.Fatalf("创建推荐失败: %v", err)
	}
	if rec.Status != model.RecommendationPending {
		t.Errorf("低信心推荐 status = %s, want PENDING", rec.Status)
	}
}

func TestApproval_ApproveAndApply(t *testing.T) {
	db := setupApprovalTestDB(t)
	svc, recRepo, listingRepo := newTestApprovalService(t, db)
	ctx := context.Background()

	listing := &model.Listing{ProductID: 1, Marketplace: model.MarketplaceEbay, ListingPrice: 100, Status: model.ListingStatusActive}
	if err := listingRepo.Create(ctx, listing); err != nil {
		t.Fatalf("创建刊登失败: %v", err)
	}

	rec, err := svc.CreateRecommendation(ctx, CreateRecommendationInput{
		ListingID:        listing.ID,
		CurrentPrice:     100,
		RecommendedPrice: 90,
		Confidence:       0.9,
	})
	if err != nil {
		t.Fatalf("创建推荐失败: %v", err)
	}

	if r := svc.Approve(ctx, rec.ID, "operator"); !r.Success {
		t.Fatalf("批准失败: %s", r.Message)
	}

	applyResult := svc.Apply(ctx, rec.ID)
	if !applyResult.Success {
		t.Fatalf("应用失败: %s", applyResult.Message)
	}
	if applyResult.NewPrice == nil || *applyResult.NewPrice != 90 {
		t.Errorf("newPrice = %v, want 90", applyResult.NewPrice)
	}

	updated, _ := listingRepo.GetByID(ctx, listing.ID)
	if updated.ListingPrice != 90 {
		t.Errorf("listingPrice = %.2f, want 90", updated.ListingPrice)
	}

	final, _ := recRepo.GetByID(ctx, rec.ID)
	if final.Status != model.RecommendationApplied {
		t.Errorf("status = %s, want APPLIED", final.Status)
	}

	// 重复应用不会二次改价
	if again := svc.Apply(ctx, rec.ID); again.Success {
		t.Error("已 APPLIED 的推荐不应再次应用成功")
	}
}

func TestApproval_BreakerBlockKeepsApproved(t *testing.T) {
	db := setupApprovalTestDB(t)
	svc, recRepo, listingRepo := newTestApprovalService(t, db)
	ctx := context.Background()

	listing := &model.Listing{ProductID: 1, Marketplace: model.MarketplaceEbay, ListingPrice: 100, Status: model.ListingStatusActive}
	listingRepo.Create(ctx, listing)

	// 50% 降幅会被熔断拒绝
	rec, _ := svc.CreateRecommendation(ctx, CreateRecommendationInput{
		ListingID:        listing.ID,
		CurrentPrice:     100,
		RecommendedPrice: 50,
		Confidence:       0.3, // 避开自动批准
	})
	svc.Approve(ctx, rec.ID, "operator")

	result := svc.Apply(ctx, rec.ID)
	if result.Success {
		t.Fatal("熔断拒绝时应用应失败")
	}

	// 状态保持 APPROVED，冷却后可重试
	after, _ := recRepo.GetByID(ctx, rec.ID)
	if after.Status != model.RecommendationApproved {
		t.Errorf("status = %s, want APPROVED", after.Status)
	}

	unchanged, _ := listingRepo.GetByID(ctx, listing.ID)
	if unchanged.ListingPrice != 100 {
		t.Errorf("被拒绝的变更不应改价: %.2f", unchanged.ListingPrice)
	}
}

func TestApproval_ExpiredOnApprove(t *testing.T) {
	db := setupApprovalTestDB(t)
	svc, recRepo, _ := newTestApprovalService(t, db)
	ctx := context.Background()

	rec := &model.PriceRecommendation{
		ListingID:        1,
		CurrentPrice:     100,
		RecommendedPrice: 90,
		Status:           model.RecommendationPending,
		ExpiresAt:        time.Now().Add(-time.Hour),
	}
	recRepo.Create(ctx, rec)

	result := svc.Approve(ctx, rec.ID, "operator")
	if result.Success {
		t.Fatal("过期推荐不应批准成功")
	}

	after, _ := recRepo.GetByID(ctx, rec.ID)
	if after.Status != model.RecommendationExpired {
		t.Errorf("status = %s, want EXPIRED", after.Status)
	}
}

func TestApproval_RejectOnlyPending(t *testing.T) {
	db := setupApprovalTestDB(t)
	svc, recRepo, _ := newTestApprovalService(t, db)
	ctx := context.Background()

	rec := &model.PriceRecommendation{
		ListingID:        1,
		CurrentPrice:     100,
		RecommendedPrice: 90,
		Status:           model.RecommendationPending,
		ExpiresAt:        time.Now().Add(time.Hour),
	}
	recRepo.Create(ctx, rec)

	if r := svc.Reject(ctx, rec.ID, "价格太低", "operator"); !r.Success {
		t.Fatalf("驳回失败: %s", r.Message)
	}

	after, _ := recRepo.GetByID(ctx, rec.ID)
	if after.Status != model.RecommendationRejected || after.RejectedReason != "价格太低" {
		t.Errorf("status = %s, reason = %s", after.Status, after.RejectedReason)
	}

	// 终态不可再驳回
	if r := svc.Reject(ctx, rec.ID, "again", "operator"); r.Success {
		t.Error("已驳回的推荐不应再次驳回成功")
	}
}

func TestApproval_ProcessExpired(t *testing.T) {
	db := setupApprovalTestDB(t)
	svc, recRepo, _ := newTestApprovalService(t, db)
	ctx := context.Background()

	recRepo.Create(ctx, &model.PriceRecommendation{
		ListingID: 1, CurrentPrice: 100, RecommendedPrice: 90,
		Status: model.RecommendationPending, ExpiresAt: time.Now().Add(-time.Minute),
	})
	recRepo.Create(ctx, &model.PriceRecommendation{
		ListingID: 2, CurrentPrice: 100, RecommendedPrice: 95,
		Status: model.RecommendationPending, ExpiresAt: time.Now().Add(time.Hour),
	})

	expired, err := svc.ProcessExpired(ctx)
	if err != nil {
		t.Fatalf("过期处理失败: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}
}

func TestApproval_BulkApprove(t *testing.T) {
	db := setupApprovalTestDB(t)
	svc, recRepo, _ := newTestApprovalService(t, db)
	ctx := context.Background()

	rec := &model.PriceRecommendation{
		ListingID: 1, CurrentPrice: 100, RecommendedPrice: 90,
		Status: model.RecommendationPending, ExpiresAt: time.Now().Add(time.Hour),
	}
	recRepo.Create(ctx, rec)

	// 一条有效 + 一条不存在
	batch := svc.BulkApprove(ctx, []int64{rec.ID, 99999}, "operator")
	if batch.Applied != 1 || batch.Failed != 1 {
		t.Errorf("batch = %+v, want Applied=1 Failed=1", batch)
	}
}

func TestApproval_Stats(t *testing.T) {
	db := setupApprovalTestDB(t)
	svc, _, _ := newTestApprovalService(t, db)
	ctx := context.Background()

	svc.CreateRecommendation(ctx, CreateRecommendationInput{
		ListingID: 1, CurrentPrice: 100, RecommendedPrice: 48, Confidence: 0.9, // 自动批准
	})
	svc.CreateRecommendation(ctx, CreateRecommendationInput{
		ListingID: 2, CurrentPrice: 100, RecommendedPrice: 95, Confidence: 0.9, // 待审
	})

	stats, err := svc.GetStats(ctx, 7)
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("total = %d, want 2", stats.Total)
	}
	if stats.AutoApproveRate != 50 {
		t.Errorf("autoApproveRate = %.2f, want 50", stats.AutoApproveRate)
	}
}
