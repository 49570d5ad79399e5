package service

import (
	"context"
	"math"
	"time"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
)

// ==================== 统计结果 ====================

// PriceStats 窗口期价格统计
type PriceStats struct {
	Count      int     `json:"count"`
	Mean       float64 `json:"mean"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	StdDev     float64 `json:"std_dev"`
	Volatility float64 `json:"volatility"` // stdDev/mean ×100
	Trend      string  `json:"trend"`      // up / down / stable
}

// ==================== PriceHistoryService ====================

// PriceHistoryService 价格历史服务
// 三条 append-only 流：价格观测、落地变更、竞品观测
type PriceHistoryService struct {
	historyRepo repository.PriceHistoryRepository
}

// NewPriceHistoryService 创建价格历史服务
func NewPriceHistoryService(historyRepo repository.PriceHistoryRepository) *PriceHistoryService {
	return &PriceHistoryService{historyRepo: historyRepo}
}

// RecordPrice 记录一个价格观测点
func (s *PriceHistoryService) RecordPrice(ctx context.Context, listingID int64, price float64, source model.PriceSource) error {
	return s.historyRepo.RecordPrice(ctx, &model.PriceHistory{
		ListingID:  listingID,
		Price:      price,
		Source:     source,
		RecordedAt: time.Now(),
	})
}

// GetHistory 窗口期价格观测，按时间升序
func (s *PriceHistoryService) GetHistory(ctx context.Context, listingID int64, days, limit int) ([]model.PriceHistory, error) {
	return s.historyRepo.ListWindow(ctx, listingID, days, limit)
}

// LogPriceChange 记录一次已落地的价格变更
func (s *PriceHistoryService) LogPriceChange(ctx context.Context, change *model.PriceChangeLog) error {
	if change.OldPrice > 0 {
		change.ChangePercent = round2((change.NewPrice - change.OldPrice) / change.OldPrice * 100)
	}
	return s.historyRepo.RecordChange(ctx, change)
}

// GetChanges 某刊登最近的落地变更
func (s *PriceHistoryService) GetChanges(ctx context.Context, listingID int64, limit int) ([]model.PriceChangeLog, error) {
	return s.historyRepo.ListChanges(ctx, listingID, limit)
}

// ==================== 统计 ====================

// GetStats 窗口期统计：均值、极值、总体标准差、波动率、趋势
// 趋势比较窗口内最新与最老样本：>+2% up，<-2% down，其余 stable
func (s *PriceHistoryService) GetStats(ctx context.Context, listingID int64, days int) (*PriceStats, error) {
	points, err := s.historyRepo.ListWindow(ctx, listingID, days, 0)
	if err != nil {
		return nil, err
	}

	stats := &PriceStats{Count: len(points), Trend: "stable"}
	if len(points) == 0 {
		return stats, nil
	}

	sum := 0.0
	stats.Min = points[0].Price
	stats.Max = points[0].Price
	for _, p := range points {
		sum += p.Price
		if p.Price < stats.Min {
			stats.Min = p.Price
		}
		if p.Price > stats.Max {
			stats.Max = p.Price
		}
	}
	stats.Mean = sum / float64(len(points))

	variance := 0.0
	for _, p := range points {
		d := p.Price - stats.Mean
		variance += d * d
	}
	variance /= float64(len(points))
	stats.StdDev = math.Sqrt(variance)

	if stats.Mean > 0 {
		stats.Volatility = round2(stats.StdDev / stats.Mean * 100)
	}
	stats.Mean = round2(stats.Mean)
	stats.StdDev = round2(stats.StdDev)

	oldest := points[0].Price
	newest := points[len(points)-1].Price
	if oldest > 0 {
		changePercent := (newest - oldest) / oldest * 100
		if changePercent > 2 {
			stats.Trend = "up"
		} else if changePercent < -2 {
			stats.Trend = "down"
		}
	}

	return stats, nil
}

// ==================== 竞品观测 ====================

// RecordCompetitorPrice 记录一次竞品价格观测
func (s *PriceHistoryService) RecordCompetitorPrice(ctx context.Context, listingID int64, competitorRef string, price float64, currency string) error {
	return s.historyRepo.RecordObservation(ctx, &model.CompetitorObservation{
		ListingID:     listingID,
		CompetitorRef: competitorRef,
		Price:         price,
		CurrencyCode:  currency,
		ObservedAt:    time.Now(),
	})
}

// LatestCompetitorPrice 最近一次竞品观测价，无观测返回 nil
func (s *PriceHistoryService) LatestCompetitorPrice(ctx context.Context, listingID int64) (*float64, error) {
	obs, err := s.historyRepo.LatestObservation(ctx, listingID)
	if err != nil {
		return nil, nil // 无观测记录不是错误
	}
	return &obs.Price, nil
}
