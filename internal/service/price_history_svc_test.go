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
)

// ==================== 测试辅助 ====================

func newTestHistoryService(t *testing.T) (*PriceHistoryService, repository.PriceHistoryRepository) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	db.AutoMigrate(&model.PriceHistory{}, &model.PriceChangeLog{}, &model.CompetitorObservation{})

	repo := repository.NewPriceHistoryRepository(db)
	return NewPriceHistoryService(repo), repo
}

func seedPrices(t *testing.T, repo repository.PriceHistoryRepository, listingID int64, prices ...float64) {
	base := time.Now().Add(-time.Duration(len(prices)) * time.Hour)
	for i, price := range prices {
		err := repo.RecordPrice(context.Background(), &model.PriceHistory{
			ListingID:  listingID,
			Price:      price,
			Source:     model.PriceSourceAuto,
			RecordedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("写入价格点失败: %v", err)
		}
	}
}

// ==================== 单元测试 ====================

func TestPriceHistory_StatsBasics(t *testing.T) {
	svc, repo := newTestHistoryService(t)
	ctx := context.Background()

	seedPrices(t, repo, 1, 100, 110, 90, 100)

	stats, err := svc.GetStats(ctx, 1, 30)
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if stats.Count != 4 {
		t.Errorf("count = %d, want 4", stats.Count)
	}
	if stats.Mean != 100 {
		t.Errorf("mean = %.2f, want 100", stats.Mean)
	}
	if stats.Min != 90 || stats.Max != 110 {
		t.Errorf("min/max = %.2f/%.2f, want 90/110", stats.Min, stats.Max)
	}
	// 总体标准差 sqrt(50) ≈ 7.07
	if stats.StdDev != 7.07 {
		t.Errorf("stdDev = %.2f, want 7.07", stats.StdDev)
	}
	if stats.Volatility != 7.07 {
		t.Errorf("volatility = %.2f, want 7.07", stats.Volatility)
	}
}

func TestPriceHistory_TrendUp(t *testing.T) {
	svc, repo := newTestHistoryService(t)

	seedPrices(t, repo, 1, 100, 102, 105)

	stats, err := svc.GetStats(context.Background(), 1, 30)
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if stats.Trend != "up" {
		t.Errorf("trend = %s, want up", stats.Trend)
	}
}

func TestPriceHistory_TrendDown(t *testing.T) {
	svc, repo := newTestHistoryService(t)

	seedPrices(t, repo, 1, 100, 97, 95)

	stats, err := svc.GetStats(context.Background(), 1, 30)
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if stats.Trend != "down" {
		t.Errorf("trend = %s, want down", stats.Trend)
	}
}

func TestPriceHistory_TrendStableWithinThreshold(t *testing.T) {
	svc, repo := newTestHistoryService(t)

	// 首尾变化 1%，在 ±2% 阈值内
	seedPrices(t, repo, 1, 100, 105, 101)

	stats, err := svc.GetStats(context.Background(), 1, 30)
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if stats.Trend != "stable" {
		t.Errorf("trend = %s, want stable", stats.Trend)
	}
}

func TestPriceHistory_EmptyWindow(t *testing.T) {
	svc, _ := newTestHistoryService(t)

	stats, err := svc.GetStats(context.Background(), 42, 30)
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if stats.Count != 0 || stats.Trend != "stable" {
		t.Errorf("空窗口 stats = %+v", stats)
	}
}

func TestPriceHistory_ChangeLogPercent(t *testing.T) {
	svc, _ := newTestHistoryService(t)
	ctx := context.Background()

	change := &model.PriceChangeLog{
		ListingID: 1,
		OldPrice:  8000,
		NewPrice:  7200,
		Source:    model.PriceSourceRule,
	}
	if err := svc.LogPriceChange(ctx, change); err != nil {
		t.Fatalf("记录变更失败: %v", err)
	}
	if change.ChangePercent != -10 {
		t.Errorf("changePercent = %.2f, want -10", change.ChangePercent)
	}

	changes, err := svc.GetChanges(ctx, 1, 10)
	if err != nil {
		t.Fatalf("读取变更失败: %v", err)
	}
	if len(changes) != 1 {
		t.Errorf("changes = %d, want 1", len(changes))
	}
}

func TestPriceHistory_CompetitorObservation(t *testing.T) {
	svc, _ := newTestHistoryService(t)
	ctx := context.Background()

	// 无观测时返回 nil 而不是错误
	price, err := svc.LatestCompetitorPrice(ctx, 1)
	if err != nil {
		t.Fatalf("读取竞品价失败: %v", err)
	}
	if price != nil {
		t.Errorf("无观测时 price = %v, want nil", price)
	}

	svc.RecordCompetitorPrice(ctx, 1, "ebay-item-1", 9000, "JPY")
	svc.RecordCompetitorPrice(ctx, 1, "ebay-item-1", 8800, "JPY")

	price, err = svc.LatestCompetitorPrice(ctx, 1)
	if err != nil {
		t.Fatalf("读取竞品价失败: %v", err)
	}
	if price == nil || *price != 8800 {
		t.Errorf("price = %v, want 8800", price)
	}
}
