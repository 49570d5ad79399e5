package service

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
)

// ==================== 假抓取器 ====================

// fakePriceFetcher 按 tracker ID 返回预设价格
type fakePriceFetcher struct {
	prices map[int64]float64
	err    error
}

func (f *fakePriceFetcher) FetchPrice(_ context.Context, tracker *model.CompetitorTracker) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.prices[tracker.ID], nil
}

// ==================== 测试辅助 ====================

func setupCompetitorTest(t *testing.T) (*CompetitorService, *fakePriceFetcher, repository.CompetitorRepository, *model.Listing) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	db.AutoMigrate(
		&model.Listing{}, &model.CompetitorTracker{}, &model.CompetitorAlert{},
		&model.PriceHistory{}, &model.PriceChangeLog{}, &model.CompetitorObservation{},
	)

	competitorRepo := repository.NewCompetitorRepository(db)
	listingRepo := repository.NewListingRepository(db)
	history := NewPriceHistoryService(repository.NewPriceHistoryRepository(db))
	fetcher := &fakePriceFetcher{prices: make(map[int64]float64)}

	listing := &model.Listing{
		ProductID: 1, Marketplace: model.MarketplaceEbay,
		ListingPrice: 9000, CurrencyCode: "JPY", Status: model.ListingStatusActive,
	}
	if err := listingRepo.Create(context.Background(), listing); err != nil {
		t.Fatalf("创建刊登失败: %v", err)
	}

	svc := NewCompetitorService(competitorRepo, listingRepo, history, fetcher)
	return svc, fetcher, competitorRepo, listing
}

// ==================== 单元测试 ====================

func TestCompetitor_TrackerRequiresListing(t *testing.T) {
	svc, _, _, _ := setupCompetitorTest(t)

	err := svc.CreateTracker(context.Background(), &model.CompetitorTracker{
		ListingID:     999,
		CompetitorRef: "https://example.com/item/1",
	})
	if err == nil {
		t.Fatal("刊登不存在时不应创建跟踪")
	}
}

func TestCompetitor_UndercutAlert(t *testing.T) {
	svc, fetcher, competitorRepo, listing := setupCompetitorTest(t)
	ctx := context.Background()

	tracker := &model.CompetitorTracker{ListingID: listing.ID, CompetitorRef: "https://example.com/item/1"}
	if err := svc.CreateTracker(ctx, tracker); err != nil {
		t.Fatalf("创建跟踪失败: %v", err)
	}

	// 竞品价低于我方 9000 → UNDERCUT
	fetcher.prices[tracker.ID] = 8500

	result, err := svc.CheckSingle(ctx, tracker.ID)
	if err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if result.Alerts != 1 {
		t.Fatalf("alerts = %d, want 1", result.Alerts)
	}

	alerts, _ := competitorRepo.ListUnacknowledged(ctx, 10)
	if len(alerts) != 1 || alerts[0].AlertType != model.AlertTypeUndercut {
		t.Errorf("alerts = %+v, want UNDERCUT", alerts)
	}

	// 成功检查刷新最新价
	after, _ := competitorRepo.GetTracker(ctx, tracker.ID)
	if after.LastPrice == nil || *after.LastPrice != 8500 {
		t.Errorf("lastPrice = %v, want 8500", after.LastPrice)
	}
}

func TestCompetitor_PriceDropAlert(t *testing.T) {
	svc, fetcher, competitorRepo, listing := setupCompetitorTest(t)
	ctx := context.Background()

	tracker := &model.CompetitorTracker{ListingID: listing.ID, CompetitorRef: "https://example.com/item/1"}
	svc.CreateTracker(ctx, tracker)

	// 首次观测 10000，高于我方价，无告警
	fetcher.prices[tracker.ID] = 10000
	result, err := svc.CheckSingle(ctx, tracker.ID)
	if err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if result.Alerts != 0 {
		t.Fatalf("首次检查 alerts = %d, want 0", result.Alerts)
	}

	// 第二次降到 8500：较上次降 15% 且低于我方价 → 两条告警
	fetcher.prices[tracker.ID] = 8500
	result, err = svc.CheckSingle(ctx, tracker.ID)
	if err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if result.Alerts != 2 {
		t.Fatalf("alerts = %d, want 2", result.Alerts)
	}

	alerts, _ := competitorRepo.ListUnacknowledged(ctx, 10)
	hasDrop := false
	for _, alert := range alerts {
		if alert.AlertType == model.AlertTypePriceDrop {
			hasDrop = true
		}
	}
	if !hasDrop {
		t.Error("应有 PRICE_DROP 告警")
	}
}

func TestCompetitor_FetchFailureCounted(t *testing.T) {
	svc, fetcher, competitorRepo, listing := setupCompetitorTest(t)
	ctx := context.Background()

	tracker := &model.CompetitorTracker{ListingID: listing.ID, CompetitorRef: "https://example.com/item/1"}
	svc.CreateTracker(ctx, tracker)

	fetcher.err = errors.New("连接超时")

	result, err := svc.CheckSingle(ctx, tracker.ID)
	if err != nil {
		t.Fatalf("抓取失败不应上抛: %v", err)
	}
	if result.Error == "" || result.Price != nil {
		t.Errorf("result = %+v, want 仅记录错误", result)
	}

	after, _ := competitorRepo.GetTracker(ctx, tracker.ID)
	if after.FailCount != 1 {
		t.Errorf("failCount = %d, want 1", after.FailCount)
	}
}

func TestCompetitor_CheckAllAggregates(t *testing.T) {
	svc, fetcher, _, listing := setupCompetitorTest(t)
	ctx := context.Background()

	t1 := &model.CompetitorTracker{ListingID: listing.ID, CompetitorRef: "https://example.com/item/1"}
	t2 := &model.CompetitorTracker{ListingID: listing.ID, CompetitorRef: "https://example.com/item/2"}
	svc.CreateTracker(ctx, t1)
	svc.CreateTracker(ctx, t2)
	svc.SetTrackerEnabled(ctx, t2.ID, false)

	fetcher.prices[t1.ID] = 8000

	result, err := svc.CheckAll(ctx)
	if err != nil {
		t.Fatalf("全量检查失败: %v", err)
	}
	// 停用的跟踪不参与检查
	if result.Checked != 1 || result.Failed != 0 {
		t.Errorf("result = %+v, want Checked=1", result)
	}
	if result.Alerts != 1 {
		t.Errorf("alerts = %d, want 1（undercut）", result.Alerts)
	}

	if err := svc.AcknowledgeAlert(ctx, 1); err != nil {
		t.Fatalf("确认告警失败: %v", err)
	}
	alerts, _ := svc.ListAlerts(ctx, 10)
	if len(alerts) != 0 {
		t.Errorf("确认后未读告警 = %d, want 0", len(alerts))
	}
}
