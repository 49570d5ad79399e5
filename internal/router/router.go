package router

import (
	"github.com/gin-gonic/gin"

	"resale_sync_v1_202609/internal/controller"
	"resale_sync_v1_202609/internal/middleware"
)

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine,
	authCtl *controller.AuthController,
	productCtl *controller.ProductController,
	inventoryCtl *controller.InventoryController,
	ruleCtl *controller.RuleController,
	recommendationCtl *controller.RecommendationController,
	competitorCtl *controller.CompetitorController,
	syncCtl *controller.SyncController) {
	api := r.Group("/api")
	{
		// auth 鉴权组（登录与刷新不需要令牌）
		auth := api.Group("/auth")
		{
			// POST /api/auth/login
			auth.POST("/login", authCtl.Login)
			// POST /api/auth/refresh
			auth.POST("/refresh", authCtl.RefreshToken)
			// GET /api/auth/profile
			auth.GET("/profile", middleware.JWTAuth(), authCtl.GetProfile)
		}

		// 以下全部需要访问令牌
		authorized := api.Group("")
		authorized.Use(middleware.JWTAuth())

		// product 商品与刊登
		products := authorized.Group("/products")
		{
			products.GET("", productCtl.List)
			products.POST("", productCtl.Create)
			products.GET("/:id", productCtl.Get)
			// 路由预览，只读不落库
			products.GET("/:id/routing", productCtl.PreviewRouting)
			products.POST("/:id/publish",
				middleware.TriggerRateLimit(middleware.TriggerTypePublish, 0),
				productCtl.Publish)
		}

		// inventory 库存同步
		inventory := authorized.Group("/inventory")
		{
			inventory.POST("/changes", inventoryCtl.RecordChange)
			inventory.GET("/summary", inventoryCtl.GetSummary)
			inventory.POST("/products/:id/reconcile",
				middleware.TriggerRateLimit(middleware.TriggerTypeInventory, 0),
				inventoryCtl.Reconcile)
			inventory.GET("/products/:id/sync-states", inventoryCtl.ListSyncStates)
			inventory.GET("/products/:id/events", inventoryCtl.ListEvents)
		}

		// rules 定价规则与模拟
		rules := authorized.Group("/rules")
		{
			rules.GET("", ruleCtl.List)
			rules.POST("", ruleCtl.Create)
			rules.PUT("/:id", ruleCtl.Update)
			rules.DELETE("/:id", ruleCtl.Delete)
			rules.PUT("/:id/active", ruleCtl.SetActive)
		}
		authorized.POST("/pricing/simulate", ruleCtl.Simulate)

		// recommendations 推荐审批
		recommendations := authorized.Group("/recommendations")
		{
			recommendations.GET("", recommendationCtl.ListPending)
			recommendations.GET("/stats", recommendationCtl.GetStats)
			recommendations.POST("/bulk-approve", recommendationCtl.BulkApprove)
			recommendations.PUT("/config", middleware.RequireRole("admin"), recommendationCtl.UpdateConfig)
			recommendations.POST("/:id/approve", recommendationCtl.Approve)
			recommendations.POST("/:id/reject", recommendationCtl.Reject)
			recommendations.POST("/:id/apply", recommendationCtl.Apply)
		}

		// competitors 竞品跟踪
		competitors := authorized.Group("/competitors")
		{
			competitors.GET("", competitorCtl.ListTrackers)
			competitors.POST("", competitorCtl.CreateTracker)
			competitors.PUT("/:id/enabled", competitorCtl.SetEnabled)
			competitors.DELETE("/:id", competitorCtl.DeleteTracker)
			competitors.POST("/:id/check", competitorCtl.CheckSingle)
			competitors.GET("/alerts", competitorCtl.ListAlerts)
			competitors.POST("/alerts/:id/ack", competitorCtl.AcknowledgeAlert)
		}

		// sync 周期任务手动触发
		sync := authorized.Group("/sync")
		{
			sync.GET("/status", syncCtl.GetStatus)
			sync.POST("/reconcile-all",
				middleware.TriggerRateLimit(middleware.TriggerTypeReconcile, 0),
				syncCtl.TriggerReconcileAll)
			sync.POST("/pricing-sweep",
				middleware.TriggerRateLimit(middleware.TriggerTypePricing, 0),
				syncCtl.TriggerPricingSweep)
			sync.POST("/competitor-check",
				middleware.TriggerRateLimit(middleware.TriggerTypeCompetitor, 0),
				syncCtl.TriggerCompetitorCheck)
		}
	}
}
