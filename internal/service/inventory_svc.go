package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"resale_sync_v1_202609/internal/marketplace"
	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
)

// ==================== 输入与结果 ====================

// InventoryChangeInput 库存变更请求
type InventoryChangeInput struct {
	ProductID   int64
	EventType   model.InventoryEventType
	Quantity    int
	Marketplace model.Marketplace
	OrderID     string
	Reason      string
}

// ReconcileChannel 单渠道对账结果
type ReconcileChannel struct {
	Marketplace model.Marketplace `json:"marketplace"`
	RemoteStock *int              `json:"remote_stock"`
	InSync      bool              `json:"in_sync"`
}

// ReconcileReport 对账报告
type ReconcileReport struct {
	ProductID  int64              `json:"product_id"`
	LocalStock int                `json:"local_stock"`
	Channels   []ReconcileChannel `json:"channels"`
	Resynced   bool               `json:"resynced"`
}

// MarketplaceSummary 单渠道库存概览
type MarketplaceSummary struct {
	Listed int64 `json:"listed"`
	Synced int64 `json:"synced"`
	Errors int64 `json:"errors"`
}

// InventorySummary 库存概览
type InventorySummary struct {
	TotalProducts    int64                                    `json:"total_products"`
	InStock          int64                                    `json:"in_stock"`
	OutOfStock       int64                                    `json:"out_of_stock"`
	ByMarketplace    map[model.Marketplace]MarketplaceSummary `json:"by_marketplace"`
	EventsWithErrors int64                                    `json:"events_with_errors"`
}

// ==================== InventoryService ====================

// InventoryService 库存同步引擎
// 同一商品的库存变更在商品粒度上串行化，避免并发丢更新
type InventoryService struct {
	productRepo   repository.ProductRepository
	listingRepo   repository.ListingRepository
	syncStateRepo repository.SyncStateRepository
	eventRepo     repository.InventoryEventRepository
	registry      *marketplace.Registry
	eventBus      EventBus

	productLocks sync.Map // productID -> *sync.Mutex
}

// NewInventoryService 创建库存服务
func NewInventoryService(
	productRepo repository.ProductRepository,
	listingRepo repository.ListingRepository,
	syncStateRepo repository.SyncStateRepository,
	eventRepo repository.InventoryEventRepository,
	registry *marketplace.Registry,
	eventBus EventBus,
) *InventoryService {
	return &InventoryService{
		productRepo:   productRepo,
		listingRepo:   listingRepo,
		syncStateRepo: syncStateRepo,
		eventRepo:     eventRepo,
		registry:      registry,
		eventBus:      eventBus,
	}
}

func (s *InventoryService) lockProduct(productID int64) func() {
	actual, _ := s.productLocks.LoadOrStore(productID, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ==================== 库存变更 ====================

// RecordInventoryChange 记录一次库存变更并同步到所有渠道
// 事件写入反映决策时刻的库存值；同步错误事后补写到事件上
func (s *InventoryService) RecordInventoryChange(ctx context.Context, input InventoryChangeInput) error {
	unlock := s.lockProduct(input.ProductID)
	defer unlock()

	product, err := s.productRepo.GetByID(ctx, input.ProductID)
	if err != nil {
		return fmt.Errorf("商品 %d 不存在: %w", input.ProductID, err)
	}

	prevStock := product.LocalStock()
	newStock := prevStock + input.Quantity
	if newStock < 0 {
		newStock = 0
	}
	if newStock > 1 {
		newStock = 1
	}

	// 库存归零 → OUT_OF_STOCK；回补时 SOLD 恢复 ACTIVE，其余状态保留
	newStatus := product.Status
	if newStock == 0 {
		newStatus = model.ProductStatusOutOfStock
	} else if product.Status == model.ProductStatusSold {
		newStatus = model.ProductStatusActive
	}
	if err := s.productRepo.UpdateStatus(ctx, product.ID, newStatus); err != nil {
		return err
	}

	event := &model.InventoryEvent{
		ProductID:   product.ID,
		EventType:   input.EventType,
		Quantity:    input.Quantity,
		PrevStock:   prevStock,
		NewStock:    newStock,
		Marketplace: input.Marketplace,
		OrderID:     input.OrderID,
		Reason:      input.Reason,
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		return err
	}

	syncErrors := s.SyncToAllChannels(ctx, product.ID, newStock)
	if len(syncErrors) > 0 {
		if err := s.eventRepo.AttachSyncErrors(ctx, event.ID, syncErrors); err != nil {
			log.Printf("[InventoryService] 补写同步错误失败 event=%d: %v", event.ID, err)
		}
	}

	if newStock == 0 {
		s.PauseListings(ctx, product.ID)
	} else if prevStock == 0 {
		s.ResumeListings(ctx, product.ID, newStock)
	}

	s.eventBus.PublishInventoryChange(ctx, strconv.FormatInt(product.ID, 10), map[string]any{
		"eventType": input.EventType,
		"prevStock": prevStock,
		"newStock":  newStock,
		"errors":    len(syncErrors),
	})
	return nil
}

// ==================== 全渠道同步 ====================

// syncGroup 共享同一远端库存记录的刊登组
type syncGroup struct {
	ref      marketplace.StockRef
	listings []model.Listing
}

// SyncToAllChannels 把库存值并发推送到商品所有渠道
// 远端写按库存句柄去重（Shopify Hub 子渠道共用一条记录只打一次 API），
// 单次结果扇出到组内所有逻辑渠道的同步状态；一个渠道失败不阻塞其他渠道。
// 返回渠道级错误列表，空列表即全部成功。
func (s *InventoryService) SyncToAllChannels(ctx context.Context, productID int64, newStock int) []string {
	listings, err := s.listingRepo.ListByProduct(ctx, productID)
	if err != nil {
		return []string{fmt.Sprintf("读取刊登失败: %v", err)}
	}
	if len(listings) == 0 {
		return nil
	}

	// 按远端库存句柄分组去重
	groups := make(map[string]*syncGroup)
	var order []string
	for _, l := range listings {
		ref := marketplace.RefForListing(&l)
		key := ref.Key()
		if g, ok := groups[key]; ok {
			g.listings = append(g.listings, l)
			continue
		}
		groups[key] = &syncGroup{ref: ref, listings: []model.Listing{l}}
		order = append(order, key)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errors []string
	)
	sem := make(chan struct{}, 4)

	for _, key := range order {
		group := groups[key]
		wg.Add(1)
		sem <- struct{}{}
		go func(g *syncGroup) {
			defer wg.Done()
			defer func() { <-sem }()

			syncErr := s.pushGroup(ctx, g, newStock)
			if syncErr != nil {
				msg := fmt.Sprintf("%s sync error: %v", s.groupLabel(g), syncErr)
				mu.Lock()
				errors = append(errors, msg)
				mu.Unlock()
				log.Printf("[InventoryService] 渠道同步失败 product=%d: %s", productID, msg)
			}

			// 无论成败，组内每个逻辑渠道都要落同步状态
			for _, l := range g.listings {
				s.upsertSyncState(ctx, &l, newStock, syncErr)
			}
		}(group)
	}
	wg.Wait()

	// 库存归零时无条件暂停刊登，传播成败不影响本地安全姿态
	if newStock == 0 {
		if err := s.listingRepo.PauseByProduct(ctx, productID); err != nil {
			log.Printf("[InventoryService] 刊登暂停失败 product=%d: %v", productID, err)
		}
	}

	return errors
}

// groupLabel 错误信息里的渠道标签，hub 组标记为 SHOPIFY Hub
func (s *InventoryService) groupLabel(g *syncGroup) string {
	if g.ref.Marketplace == model.MarketplaceShopify {
		return "SHOPIFY Hub"
	}
	return string(g.ref.Marketplace)
}

func (s *InventoryService) pushGroup(ctx context.Context, g *syncGroup, newStock int) error {
	connector, err := s.registry.Resolve(g.ref.Marketplace)
	if err != nil {
		return err
	}
	return connector.SetStock(ctx, g.ref, newStock)
}

func (s *InventoryService) upsertSyncState(ctx context.Context, l *model.Listing, newStock int, syncErr error) {
	state := &model.MarketplaceSyncState{
		Marketplace: l.Marketplace,
		ProductID:   l.ProductID,
		ListingID:   l.MarketplaceListingID,
		LocalStock:  newStock,
	}
	if syncErr == nil {
		state.SyncStatus = model.SyncStatusSynced
		remote := newStock
		state.RemoteStock = &remote
	} else {
		state.SyncStatus = model.SyncStatusError
		state.LastSyncError = syncErr.Error()
	}
	if err := s.syncStateRepo.Upsert(ctx, state); err != nil {
		log.Printf("[InventoryService] 同步状态写入失败 %s/%d: %v", l.Marketplace, l.ProductID, err)
	}
}

// ==================== 暂停 / 恢复 ====================

// PauseListings 库存归零时暂停商品全部刊登并推送库存 0
// 先落本地暂停标记，远端推送尽力而为
func (s *InventoryService) PauseListings(ctx context.Context, productID int64) {
	if err := s.listingRepo.PauseByProduct(ctx, productID); err != nil {
		log.Printf("[InventoryService] 刊登暂停失败 product=%d: %v", productID, err)
	}
	s.pushToAll(ctx, productID, 0)
}

// ResumeListings 回补库存时恢复刊登并推送新库存
func (s *InventoryService) ResumeListings(ctx context.Context, productID int64, newStock int) {
	if err := s.listingRepo.ResumeByProduct(ctx, productID); err != nil {
		log.Printf("[InventoryService] 刊登恢复失败 product=%d: %v", productID, err)
	}
	s.pushToAll(ctx, productID, newStock)
}

// pushToAll 按去重组推送库存值，不落同步状态（由通用同步路径负责）
func (s *InventoryService) pushToAll(ctx context.Context, productID int64, stock int) {
	listings, err := s.listingRepo.ListByProduct(ctx, productID)
	if err != nil {
		log.Printf("[InventoryService] 读取刊登失败 product=%d: %v", productID, err)
		return
	}

	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for _, l := range listings {
		ref := marketplace.RefForListing(&l)
		if seen[ref.Key()] {
			continue
		}
		seen[ref.Key()] = true

		wg.Add(1)
		go func(ref marketplace.StockRef) {
			defer wg.Done()
			connector, err := s.registry.Resolve(ref.Marketplace)
			if err != nil {
				log.Printf("[InventoryService] 渠道未注册 %s: %v", ref.Marketplace, err)
				return
			}
			if err := connector.SetStock(ctx, ref, stock); err != nil {
				log.Printf("[InventoryService] 库存推送失败 %s: %v", ref.Key(), err)
			}
		}(ref)
	}
	wg.Wait()
}

// ==================== 订单拉取 ====================

// IngestOrders 拉取各渠道新订单并转为 SALE 库存事件
// 按 (渠道, 订单号) 去重，重复拉取不会二次扣减
func (s *InventoryService) IngestOrders(ctx context.Context, since time.Time) (int, error) {
	ingested := 0
	for _, connector := range s.registry.All() {
		orders, err := connector.GetOrders(ctx, since)
		if err != nil {
			log.Printf("[InventoryService] 订单拉取失败 %s: %v", connector.Name(), err)
			continue
		}

		for _, order := range orders {
			exists, err := s.eventRepo.ExistsOrder(ctx, order.Marketplace, order.OrderID)
			if err != nil || exists {
				continue
			}

			listing, err := s.listingRepo.GetByMarketplaceID(ctx, order.Marketplace, order.ListingID)
			if err != nil {
				log.Printf("[InventoryService] 订单 %s 找不到对应刊登 %s/%s",
					order.OrderID, order.Marketplace, order.ListingID)
				continue
			}

			if err := s.RecordInventoryChange(ctx, InventoryChangeInput{
				ProductID:   listing.ProductID,
				EventType:   model.InventoryEventSale,
				Quantity:    -order.Quantity,
				Marketplace: order.Marketplace,
				OrderID:     order.OrderID,
				Reason:      "渠道订单售出",
			}); err != nil {
				log.Printf("[InventoryService] 订单 %s 库存扣减失败: %v", order.OrderID, err)
				continue
			}
			ingested++
		}
	}
	return ingested, nil
}

// ==================== 对账 ====================

// ReconcileInventory 对账本地与各渠道库存
// 读不到远端库存的渠道按默认一致处理；发现漂移则写 SYNC 事件并全量重推。
// 幂等：连续执行且无中间变更时，第二次不再产生新事件。
func (s *InventoryService) ReconcileInventory(ctx context.Context, productID int64) (*ReconcileReport, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("商品 %d 不存在: %w", productID, err)
	}
	localStock := product.LocalStock()

	listings, err := s.listingRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		ProductID:  productID,
		LocalStock: localStock,
	}

	// 远端读按句柄去重，读到的值服务于组内所有逻辑渠道
	remoteByKey := make(map[string]*int)
	for _, l := range listings {
		ref := marketplace.RefForListing(&l)
		key := ref.Key()

		remote, cached := remoteByKey[key]
		if !cached {
			remote = s.fetchRemoteStock(ctx, ref)
			remoteByKey[key] = remote
		}

		inSync := remote == nil || *remote == localStock
		report.Channels = append(report.Channels, ReconcileChannel{
			Marketplace: l.Marketplace,
			RemoteStock: remote,
			InSync:      inSync,
		})
	}

	hasDrift := false
	for _, ch := range report.Channels {
		if !ch.InSync {
			hasDrift = true
			break
		}
	}

	if hasDrift {
		event := &model.InventoryEvent{
			ProductID: productID,
			EventType: model.InventoryEventSync,
			Quantity:  0,
			PrevStock: localStock,
			NewStock:  localStock,
			Reason:    "对账发现渠道库存漂移",
		}
		if err := s.eventRepo.Create(ctx, event); err != nil {
			log.Printf("[InventoryService] 对账事件写入失败 product=%d: %v", productID, err)
		}
		s.SyncToAllChannels(ctx, productID, localStock)
		report.Resynced = true
	}

	// 无漂移路径也刷新同步状态（SYNCED / STALE）
	if !hasDrift {
		for i, l := range listings {
			ch := report.Channels[i]
			state := &model.MarketplaceSyncState{
				Marketplace: l.Marketplace,
				ProductID:   productID,
				ListingID:   l.MarketplaceListingID,
				LocalStock:  localStock,
				RemoteStock: ch.RemoteStock,
				SyncStatus:  model.SyncStatusSynced,
			}
			if !ch.InSync {
				state.SyncStatus = model.SyncStatusStale
			}
			if err := s.syncStateRepo.Upsert(ctx, state); err != nil {
				log.Printf("[InventoryService] 同步状态写入失败 %s/%d: %v", l.Marketplace, productID, err)
			}
		}
	}

	return report, nil
}

// fetchRemoteStock 读取远端库存，读不到返回 nil
func (s *InventoryService) fetchRemoteStock(ctx context.Context, ref marketplace.StockRef) *int {
	connector, err := s.registry.Resolve(ref.Marketplace)
	if err != nil {
		return nil
	}
	stock, err := connector.GetStock(ctx, ref)
	if err != nil {
		if err != marketplace.ErrStockReadUnsupported {
			log.Printf("[InventoryService] 远端库存读取失败 %s: %v", ref.Key(), err)
		}
		return nil
	}
	return &stock
}

// ==================== 概览 ====================

// GetInventorySummary 库存与渠道健康度概览
func (s *InventoryService) GetInventorySummary(ctx context.Context) (*InventorySummary, error) {
	total, err := s.productRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	statusCounts, err := s.productRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	var outOfStock int64
	for status, count := range statusCounts {
		switch status {
		case model.ProductStatusSold, model.ProductStatusOutOfStock, model.ProductStatusDeleted:
			outOfStock += count
		}
	}

	summary := &InventorySummary{
		TotalProducts: total,
		InStock:       total - outOfStock,
		OutOfStock:    outOfStock,
		ByMarketplace: make(map[model.Marketplace]MarketplaceSummary),
	}

	listedCounts, err := s.listingRepo.CountByMarketplace(ctx)
	if err != nil {
		return nil, err
	}
	for m, count := range listedCounts {
		entry := summary.ByMarketplace[m]
		entry.Listed = count
		summary.ByMarketplace[m] = entry
	}

	syncCounts, err := s.syncStateRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	for m, byStatus := range syncCounts {
		entry := summary.ByMarketplace[m]
		entry.Synced = byStatus[model.SyncStatusSynced]
		entry.Errors = byStatus[model.SyncStatusError]
		summary.ByMarketplace[m] = entry
	}

	if summary.EventsWithErrors, err = s.eventRepo.CountWithErrors(ctx); err != nil {
		return nil, err
	}

	return summary, nil
}
