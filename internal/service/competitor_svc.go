package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/go-resty/resty/v2"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
	"resale_sync_v1_202609/pkg/utils"
)

// ==================== 价格抓取 ====================

// PriceFetcher 竞品价格抓取接口
type PriceFetcher interface {
	FetchPrice(ctx context.Context, tracker *model.CompetitorTracker) (float64, error)
}

// HTTPPriceFetcher 通用 HTTP 抓取器
// competitor_ref 即完整 URL，对端返回 {"price": x, "currency": "..."}
type HTTPPriceFetcher struct {
	client *resty.Client
}

// NewHTTPPriceFetcher 创建 HTTP 抓取器
func NewHTTPPriceFetcher() *HTTPPriceFetcher {
	return &HTTPPriceFetcher{client: utils.NewMarketplaceClient("")}
}

func (f *HTTPPriceFetcher) FetchPrice(ctx context.Context, tracker *model.CompetitorTracker) (float64, error) {
	resp, err := f.client.R().SetContext(ctx).Get(tracker.CompetitorRef)
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("竞品抓取失败: %s", resp.Status())
	}

	var body struct {
		Price    float64 `json:"price"`
		Currency string  `json:"currency"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return 0, fmt.Errorf("竞品响应解析失败: %w", err)
	}
	return body.Price, nil
}

// ==================== 检查结果 ====================

// CompetitorCheckResult 单次竞品检查结果
type CompetitorCheckResult struct {
	TrackerID int64    `json:"tracker_id"`
	Price     *float64 `json:"price,omitempty"`
	Alerts    int      `json:"alerts"`
	Error     string   `json:"error,omitempty"`
}

// CompetitorBatchResult 全量检查汇总
type CompetitorBatchResult struct {
	Checked int `json:"checked"`
	Failed  int `json:"failed"`
	Alerts  int `json:"alerts"`
}

// ==================== CompetitorService ====================

// priceDropAlertPercent 竞品降幅超过此值触发 PRICE_DROP 告警
const priceDropAlertPercent = 10.0

// competitorCheckConcurrency 全量检查并发度
const competitorCheckConcurrency = 4

// CompetitorService 竞品价格监控
// 只产出观测值和告警，从不直接改价，改价永远走规则引擎和审批
type CompetitorService struct {
	competitorRepo repository.CompetitorRepository
	listingRepo    repository.ListingRepository
	history        *PriceHistoryService
	fetcher        PriceFetcher
}

// NewCompetitorService 创建竞品监控服务
func NewCompetitorService(
	competitorRepo repository.CompetitorRepository,
	listingRepo repository.ListingRepository,
	history *PriceHistoryService,
	fetcher PriceFetcher,
) *CompetitorService {
	return &CompetitorService{
		competitorRepo: competitorRepo,
		listingRepo:    listingRepo,
		history:        history,
		fetcher:        fetcher,
	}
}

// ==================== 跟踪配置 ====================

// CreateTracker 新建跟踪配置，刊登必须存在
func (s *CompetitorService) CreateTracker(ctx context.Context, tracker *model.CompetitorTracker) error {
	if _, err := s.listingRepo.GetByID(ctx, tracker.ListingID); err != nil {
		return fmt.Errorf("刊登不存在: %d", tracker.ListingID)
	}
	tracker.Enabled = true
	return s.competitorRepo.CreateTracker(ctx, tracker)
}

// ListTrackers 某刊登的全部跟踪配置
func (s *CompetitorService) ListTrackers(ctx context.Context, listingID int64) ([]model.CompetitorTracker, error) {
	return s.competitorRepo.ListByListing(ctx, listingID)
}

// SetTrackerEnabled 启停跟踪
func (s *CompetitorService) SetTrackerEnabled(ctx context.Context, id int64, enabled bool) error {
	tracker, err := s.competitorRepo.GetTracker(ctx, id)
	if err != nil {
		return err
	}
	tracker.Enabled = enabled
	return s.competitorRepo.UpdateTracker(ctx, tracker)
}

// DeleteTracker 删除跟踪配置
func (s *CompetitorService) DeleteTracker(ctx context.Context, id int64) error {
	return s.competitorRepo.DeleteTracker(ctx, id)
}

// ==================== 检查 ====================

// CheckSingle 抓取一个跟踪对象的最新价并评估告警
// 抓取失败只累计失败计数，观测流不写入
func (s *CompetitorService) CheckSingle(ctx context.Context, trackerID int64) (*CompetitorCheckResult, error) {
	tracker, err := s.competitorRepo.GetTracker(ctx, trackerID)
	if err != nil {
		return nil, err
	}

	result := &CompetitorCheckResult{TrackerID: tracker.ID}

	price, fetchErr := s.fetcher.FetchPrice(ctx, tracker)
	if fetchErr != nil {
		result.Error = fetchErr.Error()
		if err := s.competitorRepo.RecordCheck(ctx, tracker.ID, nil, fetchErr); err != nil {
			log.Printf("[CompetitorService] 检查结果写入失败 tracker=%d: %v", tracker.ID, err)
		}
		return result, nil
	}
	result.Price = &price

	listing, err := s.listingRepo.GetByID(ctx, tracker.ListingID)
	if err != nil {
		return nil, err
	}

	if err := s.history.RecordCompetitorPrice(ctx, tracker.ListingID, tracker.CompetitorRef, price, listing.CurrencyCode); err != nil {
		log.Printf("[CompetitorService] 竞品观测写入失败 tracker=%d: %v", tracker.ID, err)
	}

	result.Alerts = s.evaluateAlerts(ctx, tracker, listing, price)

	if err := s.competitorRepo.RecordCheck(ctx, tracker.ID, &price, nil); err != nil {
		log.Printf("[CompetitorService] 检查结果写入失败 tracker=%d: %v", tracker.ID, err)
	}
	return result, nil
}

// evaluateAlerts 评估并落库告警，返回新增告警数
func (s *CompetitorService) evaluateAlerts(ctx context.Context, tracker *model.CompetitorTracker, listing *model.Listing, price float64) int {
	created := 0
	add := func(alertType model.CompetitorAlertType, message string) {
		alert := &model.CompetitorAlert{
			ListingID:  tracker.ListingID,
			TrackerID:  tracker.ID,
			AlertType:  alertType,
			OurPrice:   listing.ListingPrice,
			TheirPrice: price,
			Message:    message,
		}
		if err := s.competitorRepo.CreateAlert(ctx, alert); err != nil {
			log.Printf("[CompetitorService] 告警写入失败 tracker=%d: %v", tracker.ID, err)
			return
		}
		created++
	}

	if listing.ListingPrice > 0 && price < listing.ListingPrice {
		add(model.AlertTypeUndercut,
			fmt.Sprintf("竞品价 %.2f 低于我方价 %.2f", price, listing.ListingPrice))
	}

	if tracker.LastPrice != nil && *tracker.LastPrice > 0 {
		dropPercent := (*tracker.LastPrice - price) / *tracker.LastPrice * 100
		if dropPercent >= priceDropAlertPercent {
			add(model.AlertTypePriceDrop,
				fmt.Sprintf("竞品降价 %.1f%%（%.2f -> %.2f）", dropPercent, *tracker.LastPrice, price))
		}
	}
	return created
}

// CheckAll 并发检查全部启用的跟踪对象
func (s *CompetitorService) CheckAll(ctx context.Context) (*CompetitorBatchResult, error) {
	trackers, err := s.competitorRepo.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	result := &CompetitorBatchResult{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, competitorCheckConcurrency)

	for i := range trackers {
		wg.Add(1)
		sem <- struct{}{}
		go func(tracker *model.CompetitorTracker) {
			defer wg.Done()
			defer func() { <-sem }()

			checkResult, err := s.CheckSingle(ctx, tracker.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil || checkResult.Error != "" {
				result.Failed++
				return
			}
			result.Checked++
			result.Alerts += checkResult.Alerts
		}(&trackers[i])
	}
	wg.Wait()

	log.Printf("[CompetitorService] 全量检查完成: %d 成功 %d 失败 %d 告警",
		result.Checked, result.Failed, result.Alerts)
	return result, nil
}

// ==================== 告警 ====================

// ListAlerts 未确认告警
func (s *CompetitorService) ListAlerts(ctx context.Context, limit int) ([]model.CompetitorAlert, error) {
	return s.competitorRepo.ListUnacknowledged(ctx, limit)
}

// AcknowledgeAlert 确认告警
func (s *CompetitorService) AcknowledgeAlert(ctx context.Context, id int64) error {
	return s.competitorRepo.AcknowledgeAlert(ctx, id)
}
