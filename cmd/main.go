package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"resale_sync_v1_202609/internal/controller"
	"resale_sync_v1_202609/internal/marketplace"
	"resale_sync_v1_202609/internal/middleware"
	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
	"resale_sync_v1_202609/internal/router"
	"resale_sync_v1_202609/internal/service"
	"resale_sync_v1_202609/internal/store"
	"resale_sync_v1_202609/internal/task"
	"resale_sync_v1_202609/pkg/database"
)

func main() {
	// 1. 初始化数据库
	db := initDatabase()

	// 2. 初始化依赖
	deps := initDependencies(db)

	// 3. 启动任务队列与周期任务
	deps.TaskManager.Start()
	defer deps.TaskManager.Stop()

	// 4. 初始化路由
	r := gin.Default()
	router.InitRoutes(r,
		deps.Controllers.Auth,
		deps.Controllers.Product,
		deps.Controllers.Inventory,
		deps.Controllers.Rule,
		deps.Controllers.Recommendation,
		deps.Controllers.Competitor,
		deps.Controllers.Sync,
	)

	// 5. 启动服务
	startServer(r)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Repos       *Repositories
	Services    *Services
	Controllers *Controllers
	TaskManager *task.TaskManager
}

// Repositories 仓库集合
type Repositories struct {
	Product        repository.ProductRepository
	Listing        repository.ListingRepository
	SyncState      repository.SyncStateRepository
	InventoryEvent repository.InventoryEventRepository
	PricingRule    repository.PricingRuleRepository
	Recommendation repository.RecommendationRepository
	PriceHistory   repository.PriceHistoryRepository
	Competitor     repository.CompetitorRepository
	Job            repository.JobRepository
	User           repository.UserRepository
}

// Services 服务集合
type Services struct {
	Router     *service.RouterService
	Inventory  *service.InventoryService
	Publishing *service.PublishingService
	Engine     *service.RuleEngine
	Breaker    *service.CircuitBreaker
	History    *service.PriceHistoryService
	Approval   *service.ApprovalService
	Pricing    *service.PricingService
	Backtest   *service.BacktestService
	Competitor *service.CompetitorService
	User       *service.UserService
}

// Controllers 控制器集合
type Controllers struct {
	Auth           *controller.AuthController
	Product        *controller.ProductController
	Inventory      *controller.InventoryController
	Rule           *controller.RuleController
	Recommendation *controller.RecommendationController
	Competitor     *controller.CompetitorController
	Sync           *controller.SyncController
}

// ==================== 初始化函数 ====================

// initDatabase 初始化数据库
func initDatabase() *gorm.DB {
	dsn := getEnv("DATABASE_DSN",
		"host=localhost user=postgres password=postgres dbname=resale_sync port=5432 sslmode=disable")

	return database.InitDB(dsn,
		// Catalog
		&model.Product{}, &model.Listing{},
		// Inventory
		&model.MarketplaceSyncState{}, &model.InventoryEvent{},
		// Pricing
		&model.PricingRule{}, &model.PriceRecommendation{},
		&model.PriceHistory{}, &model.PriceChangeLog{},
		// Competitor
		&model.CompetitorTracker{}, &model.CompetitorObservation{}, &model.CompetitorAlert{},
		// Infra
		&model.SyncJob{}, &model.SysUser{},
	)
}

// initDependencies 初始化所有依赖
func initDependencies(db *gorm.DB) *Dependencies {
	// -------- Redis（可选，不配置时退化为单机实现） --------
	var counterStore store.CounterStore = store.NewMemoryCounterStore()
	var eventBus service.EventBus = service.NoopEventBus{}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		counterStore = store.NewRedisCounterStore(client, "resale")
		eventBus = service.NewRedisEventBus(client)
		log.Printf("Redis 已接入: %s", addr)
	}

	// -------- JWT --------
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg := middleware.DefaultJWTConfig()
		cfg.SecretKey = secret
		middleware.SetJWTConfig(cfg)
	}

	// -------- Repo 层 --------
	repos := initRepositories(db)

	// -------- 渠道连接器 --------
	registry := initRegistry()

	// -------- 业务服务 --------
	services := &Services{}
	services.Router = service.NewRouterService(repos.Product, service.DefaultRouterConfig())
	services.Inventory = service.NewInventoryService(
		repos.Product, repos.Listing, repos.SyncState, repos.InventoryEvent,
		registry, eventBus,
	)
	services.Publishing = service.NewPublishingService(repos.Product, repos.Listing, services.Router, registry)
	services.Engine = service.NewRuleEngine(repos.PricingRule)
	services.Breaker = service.NewCircuitBreaker(counterStore, service.DefaultBreakerConfig())
	services.History = service.NewPriceHistoryService(repos.PriceHistory)
	services.Approval = service.NewApprovalService(
		repos.Recommendation, repos.Listing, services.Breaker, services.History,
		eventBus, service.DefaultApprovalConfig(),
	)
	services.Pricing = service.NewPricingService(
		repos.Listing, repos.Product, repos.Recommendation,
		services.Engine, services.Approval, services.History,
	)
	services.Backtest = service.NewBacktestService(
		repos.Listing, repos.Product, repos.PricingRule,
		services.Engine, services.Breaker, services.History,
	)
	services.Competitor = service.NewCompetitorService(
		repos.Competitor, repos.Listing, services.History, service.NewHTTPPriceFetcher(),
	)
	services.User = service.NewUserService(repos.User)

	// 首次部署引导管理员账号
	if err := services.User.EnsureAdmin(context.Background(),
		getEnv("ADMIN_USERNAME", "admin"),
		getEnv("ADMIN_PASSWORD", "admin123"),
	); err != nil {
		log.Printf("警告: 管理员账号初始化失败: %v", err)
	}

	// -------- 任务层 --------
	taskManager := task.NewTaskManager(&task.TaskManagerDeps{
		ProductRepo:       repos.Product,
		JobRepo:           repos.Job,
		PublishingService: services.Publishing,
		InventoryService:  services.Inventory,
		PricingService:    services.Pricing,
		ApprovalService:   services.Approval,
		CompetitorService: services.Competitor,
	}, task.DefaultConfig())

	// -------- Controller 层 --------
	controllers := &Controllers{
		Auth:           controller.NewAuthController(services.User),
		Product:        controller.NewProductController(repos.Product, services.Router, taskManager.Queue()),
		Inventory:      controller.NewInventoryController(services.Inventory, repos.SyncState, repos.InventoryEvent),
		Rule:           controller.NewRuleController(repos.PricingRule, services.Backtest),
		Recommendation: controller.NewRecommendationController(services.Approval),
		Competitor:     controller.NewCompetitorController(services.Competitor),
		Sync:           controller.NewSyncController(taskManager),
	}

	return &Dependencies{
		DB:          db,
		Repos:       repos,
		Services:    services,
		Controllers: controllers,
		TaskManager: taskManager,
	}
}

// initRepositories 初始化所有仓库
func initRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Product:        repository.NewProductRepository(db),
		Listing:        repository.NewListingRepository(db),
		SyncState:      repository.NewSyncStateRepository(db),
		InventoryEvent: repository.NewInventoryEventRepository(db),
		PricingRule:    repository.NewPricingRuleRepository(db),
		Recommendation: repository.NewRecommendationRepository(db),
		PriceHistory:   repository.NewPriceHistoryRepository(db),
		Competitor:     repository.NewCompetitorRepository(db),
		Job:            repository.NewJobRepository(db),
		User:           repository.NewUserRepository(db),
	}
}

// initRegistry 初始化渠道连接器
func initRegistry() *marketplace.Registry {
	shopifyCfg := marketplace.DefaultShopifyConfig()
	shopifyCfg.ShopDomain = os.Getenv("SHOPIFY_SHOP_DOMAIN")
	shopifyCfg.AccessToken = os.Getenv("SHOPIFY_ACCESS_TOKEN")

	ebayCfg := marketplace.DefaultEbayConfig()
	ebayCfg.Token = os.Getenv("EBAY_TOKEN")

	joomCfg := marketplace.DefaultJoomConfig()
	joomCfg.Token = os.Getenv("JOOM_TOKEN")

	etsyCfg := marketplace.DefaultEtsyConfig()
	etsyCfg.APIKey = os.Getenv("ETSY_API_KEY")
	etsyCfg.Token = os.Getenv("ETSY_TOKEN")
	etsyCfg.ShopID = os.Getenv("ETSY_SHOP_ID")

	return marketplace.NewRegistry(
		marketplace.NewShopifyConnector(shopifyCfg),
		marketplace.NewEbayConnector(ebayCfg),
		marketplace.NewJoomConnector(joomCfg),
		marketplace.NewEtsyConnector(etsyCfg),
	)
}

// ==================== 服务启动 ====================

// startServer 启动服务
func startServer(r *gin.Engine) {
	port := getEnv("SERVER_PORT", "8080")

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		log.Printf("服务启动在 :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 优雅关闭，最多等待 30 秒
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务强制关闭: %v", err)
	}

	log.Println("服务已退出")
}

// ==================== 工具函数 ====================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
