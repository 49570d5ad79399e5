package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"resale_sync_v1_202609/internal/marketplace"
	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
)

// ==================== 假连接器 ====================

// fakeConnector 可编程的渠道连接器
type fakeConnector struct {
	name model.Marketplace

	mu         sync.Mutex
	stocks     map[string]int
	setCalls   int
	failStock  error
	orders     []marketplace.Order
	noStockAPI bool
}

func newFakeConnector(name model.Marketplace) *fakeConnector {
	return &fakeConnector{name: name, stocks: make(map[string]int)}
}

func (f *fakeConnector) Name() model.Marketplace { return f.name }

func (f *fakeConnector) CreateListing(_ context.Context, _ *model.Product, _ *model.Listing) (string, error) {
	return "remote-" + string(f.name), nil
}

func (f *fakeConnector) SetStock(_ context.Context, ref marketplace.StockRef, stock int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	if f.failStock != nil {
		return f.failStock
	}
	f.stocks[ref.Key()] = stock
	return nil
}

func (f *fakeConnector) GetStock(_ context.Context, ref marketplace.StockRef) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noStockAPI {
		return 0, marketplace.ErrStockReadUnsupported
	}
	stock, ok := f.stocks[ref.Key()]
	if !ok {
		return 0, errors.New("远端无记录")
	}
	return stock, nil
}

func (f *fakeConnector) UpdateListingPrice(_ context.Context, _ marketplace.StockRef, _ float64) error {
	return nil
}

func (f *fakeConnector) GetOrders(_ context.Context, _ time.Time) ([]marketplace.Order, error) {
	return f.orders, nil
}

func (f *fakeConnector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setCalls
}

// ==================== 测试辅助 ====================

type inventoryFixture struct {
	db      *gorm.DB
	svc     *InventoryService
	repos   struct {
		product repository.ProductRepository
		listing repository.ListingRepository
		sync    repository.SyncStateRepository
		event   repository.InventoryEventRepository
	}
	shopify *fakeConnector
	ebay    *fakeConnector
	joom    *fakeConnector
}

func setupInventoryFixture(t *testing.T) *inventoryFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	db.AutoMigrate(
		&model.Product{}, &model.Listing{},
		&model.MarketplaceSyncState{}, &model.InventoryEvent{},
	)

	fx := &inventoryFixture{db: db}
	fx.repos.product = repository.NewProductRepository(db)
	fx.repos.listing = repository.NewListingRepository(db)
	fx.repos.sync = repository.NewSyncStateRepository(db)
	fx.repos.event = repository.NewInventoryEventRepository(db)

	fx.shopify = newFakeConnector(model.MarketplaceShopify)
	fx.ebay = newFakeConnector(model.MarketplaceEbay)
	fx.joom = newFakeConnector(model.MarketplaceJoom)
	registry := marketplace.NewRegistry(fx.shopify, fx.ebay, fx.joom)

	fx.svc = NewInventoryService(
		fx.repos.product, fx.repos.listing, fx.repos.sync, fx.repos.event,
		registry, NoopEventBus{},
	)
	return fx
}

func (fx *inventoryFixture) createProduct(t *testing.T, status model.ProductStatus) *model.Product {
	product := &model.Product{Title: "テスト商品", Price: 10000, Status: status}
	if err := fx.repos.product.Create(context.Background(), product); err != nil {
		t.Fatalf("创建商品失败: %v", err)
	}
	return product
}

func (fx *inventoryFixture) createListing(t *testing.T, productID int64, m model.Marketplace, remoteID string) *model.Listing {
	listing := &model.Listing{
		ProductID:            productID,
		Marketplace:          m,
		MarketplaceListingID: remoteID,
		ListingPrice:         10000,
		Status:               model.ListingStatusActive,
	}
	if err := fx.repos.listing.Create(context.Background(), listing); err != nil {
		t.Fatalf("创建刊登失败: %v", err)
	}
	return listing
}

// ==================== 单元测试 ====================

func TestInventory_SaleZeroesStockAndPauses(t *testing.T) {
	fx := setupInventoryFixture(t)
	ctx := context.Background()

	product := fx.createProduct(t, model.ProductStatusActive)
	fx.createListing(t, product.ID, model.MarketplaceEbay, "eb-1")

	err := fx.svc.RecordInventoryChange(ctx, InventoryChangeInput{
		ProductID:   product.ID,
		EventType:   model.InventoryEventSale,
		Quantity:    -1,
		Marketplace: model.MarketplaceEbay,
		OrderID:     "order-1",
	})
	if err != nil {
		t.Fatalf("库存变更失败: %v", err)
	}

	after, _ := fx.repos.product.GetByID(ctx, product.ID)
	if after.Status != model.ProductStatusOutOfStock {
		t.Errorf("status = %s, want OUT_OF_STOCK", after.Status)
	}

	listings, _ := fx.repos.listing.ListByProduct(ctx, product.ID)
	if !listings[0].PausedByInventory || listings[0].Status != model.ListingStatusPaused {
		t.Errorf("归零后刊登应被库存暂停: %+v", listings[0])
	}
}

func TestInventory_HubDedupSingleRemoteWrite(t *testing.T) {
	fx := setupInventoryFixture(t)
	ctx := context.Background()

	product := fx.createProduct(t, model.ProductStatusActive)
	// Shopify Hub 三个逻辑渠道共享同一条远端库存记录
	fx.createListing(t, product.ID, model.MarketplaceShopify, "sp-1")
	fx.createListing(t, product.ID, model.MarketplaceInstagramShop, "sp-1")
	fx.createListing(t, product.ID, model.MarketplaceTiktokShop, "sp-1")

	syncErrors := fx.svc.SyncToAllChannels(ctx, product.ID, 1)
	if len(syncErrors) != 0 {
		t.Fatalf("同步错误: %v", syncErrors)
	}

	if calls := fx.shopify.callCount(); calls != 1 {
		t.Errorf("shopify SetStock 调用 %d 次, want 1（hub 去重）", calls)
	}

	// 同步状态扇出到全部 3 个逻辑渠道
	states, _ := fx.repos.sync.ListByProduct(ctx, product.ID)
	if len(states) != 3 {
		t.Errorf("同步状态 %d 条, want 3", len(states))
	}
}

func TestInventory_ChannelFailureIsolated(t *testing.T) {
	fx := setupInventoryFixture(t)
	ctx := context.Background()

	product := fx.createProduct(t, model.ProductStatusActive)
	fx.createListing(t, product.ID, model.MarketplaceEbay, "eb-1")
	fx.createListing(t, product.ID, model.MarketplaceJoom, "jm-1")

	fx.joom.failStock = errors.New("接口超时")

	syncErrors := fx.svc.SyncToAllChannels(ctx, product.ID, 1)
	if len(syncErrors) != 1 {
		t.Fatalf("错误数 = %d, want 1: %v", len(syncErrors), syncErrors)
	}
	if !strings.Contains(syncErrors[0], "JOOM") {
		t.Errorf("错误应标注渠道: %s", syncErrors[0])
	}

	// eBay 不受 Joom 失败影响
	if fx.ebay.callCount() != 1 {
		t.Errorf("eBay 应正常同步")
	}

	states, _ := fx.repos.sync.ListByProduct(ctx, product.ID)
	for _, state := range states {
		switch state.Marketplace {
		case model.MarketplaceEbay:
			if state.SyncStatus != model.SyncStatusSynced {
				t.Errorf("eBay 状态 = %s, want SYNCED", state.SyncStatus)
			}
		case model.MarketplaceJoom:
			if state.SyncStatus != model.SyncStatusError {
				t.Errorf("Joom 状态 = %s, want ERROR", state.SyncStatus)
			}
		}
	}
}

func TestInventory_HubFailureFansOut(t *testing.T) {
	fx := setupInventoryFixture(t)
	ctx := context.Background()

	product := fx.createProduct(t, model.ProductStatusActive)
	fx.createListing(t, product.ID, model.MarketplaceShopify, "sp-1")
	fx.createListing(t, product.ID, model.MarketplaceInstagramShop, "sp-1")

	fx.shopify.failStock = errors.New("hub 不可用")

	syncErrors := fx.svc.SyncToAllChannels(ctx, product.ID, 1)
	if len(syncErrors) != 1 {
		t.Fatalf("hub 组只产生一条错误: %v", syncErrors)
	}
	if !strings.Contains(syncErrors[0], "SHOPIFY Hub") {
		t.Errorf("hub 组错误应标注 SHOPIFY Hub: %s", syncErrors[0])
	}

	// 组内每个逻辑渠道都落 ERROR 状态
	states, _ := fx.repos.sync.ListByProduct(ctx, product.ID)
	if len(states) != 2 {
		t.Fatalf("同步状态 %d 条, want 2", len(states))
	}
	for _, state := range states {
		if state.SyncStatus != model.SyncStatusError {
			t.Errorf("%s 状态 = %s, want ERROR", state.Marketplace, state.SyncStatus)
		}
	}
}

func TestInventory_ReconcileIdempotent(t *testing.T) {
	fx := setupInventoryFixture(t)
	ctx := context.Background()

	product := fx.createProduct(t, model.ProductStatusActive)
	fx.createListing(t, product.ID, model.MarketplaceEbay, "eb-1")

	// 远端库存 0 与本地 1 漂移
	fx.ebay.stocks["EBAY:eb-1"] = 0

	report, err := fx.svc.ReconcileInventory(ctx, product.ID)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if !report.Resynced {
		t.Fatal("漂移时应触发重推")
	}

	// 重推后远端已一致，第二次对账不再产生事件
	report2, err := fx.svc.ReconcileInventory(ctx, product.ID)
	if err != nil {
		t.Fatalf("二次对账失败: %v", err)
	}
	if report2.Resynced {
		t.Error("无漂移时不应重推")
	}

	events, _ := fx.repos.event.ListByProduct(ctx, product.ID, 10)
	syncEvents := 0
	for _, e := range events {
		if e.EventType == model.InventoryEventSync {
			syncEvents++
		}
	}
	if syncEvents != 1 {
		t.Errorf("SYNC 事件 %d 条, want 1", syncEvents)
	}
}

func TestInventory_ReconcileUnsupportedChannelAssumedInSync(t *testing.T) {
	fx := setupInventoryFixture(t)
	ctx := context.Background()

	product := fx.createProduct(t, model.ProductStatusActive)
	fx.createListing(t, product.ID, model.MarketplaceJoom, "jm-1")
	fx.joom.noStockAPI = true

	report, err := fx.svc.ReconcileInventory(ctx, product.ID)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if report.Resynced {
		t.Error("不支持读库存的渠道应按默认一致处理")
	}
	if len(report.Channels) != 1 || !report.Channels[0].InSync {
		t.Errorf("channels = %+v", report.Channels)
	}
}

func TestInventory_OrderIngestDedup(t *testing.T) {
	fx := setupInventoryFixture(t)
	ctx := context.Background()

	product := fx.createProduct(t, model.ProductStatusActive)
	fx.createListing(t, product.ID, model.MarketplaceEbay, "eb-1")

	fx.ebay.orders = []marketplace.Order{
		{Marketplace: model.MarketplaceEbay, OrderID: "order-1", ListingID: "eb-1", Quantity: 1, OrderedAt: time.Now()},
	}

	ingested, err := fx.svc.IngestOrders(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("订单拉取失败: %v", err)
	}
	if ingested != 1 {
		t.Fatalf("ingested = %d, want 1", ingested)
	}

	// 同一订单重复拉取不会二次扣减
	ingested, err = fx.svc.IngestOrders(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("二次拉取失败: %v", err)
	}
	if ingested != 0 {
		t.Errorf("重复订单 ingested = %d, want 0", ingested)
	}

	after, _ := fx.repos.product.GetByID(ctx, product.ID)
	if after.Status != model.ProductStatusOutOfStock {
		t.Errorf("售出后 status = %s, want OUT_OF_STOCK", after.Status)
	}
}

func TestInventory_RestockResumesListings(t *testing.T) {
	fx := setupInventoryFixture(t)
	ctx := context.Background()

	product := fx.createProduct(t, model.ProductStatusSold)
	fx.createListing(t, product.ID, model.MarketplaceEbay, "eb-1")
	fx.db.Model(&model.Listing{}).Where("product_id = ?", product.ID).
		Updates(map[string]any{"status": model.ListingStatusPaused, "paused_by_inventory": true})

	err := fx.svc.RecordInventoryChange(ctx, InventoryChangeInput{
		ProductID: product.ID,
		EventType: model.InventoryEventRestock,
		Quantity:  1,
		Reason:    "退货回补",
	})
	if err != nil {
		t.Fatalf("库存回补失败: %v", err)
	}

	after, _ := fx.repos.product.GetByID(ctx, product.ID)
	if after.Status != model.ProductStatusActive {
		t.Errorf("status = %s, want ACTIVE", after.Status)
	}

	listings, _ := fx.repos.listing.ListByProduct(ctx, product.ID)
	if listings[0].PausedByInventory {
		t.Error("回补后库存暂停标记应清除")
	}
}
