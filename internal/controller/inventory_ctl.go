package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"resale_sync_v1_202609/internal/api/dto"
	"resale_sync_v1_202609/internal/repository"
	"resale_sync_v1_202609/internal/service"
)

// ==================== InventoryController 库存控制器 ====================

// InventoryController 库存控制器
type InventoryController struct {
	inventory     *service.InventoryService
	syncStateRepo repository.SyncStateRepository
	eventRepo     repository.InventoryEventRepository
}

// NewInventoryController 创建库存控制器
func NewInventoryController(
	inventory *service.InventoryService,
	syncStateRepo repository.SyncStateRepository,
	eventRepo repository.InventoryEventRepository,
) *InventoryController {
	return &InventoryController{
		inventory:     inventory,
		syncStateRepo: syncStateRepo,
		eventRepo:     eventRepo,
	}
}

// RecordChange 记录库存变更并同步全渠道
func (c *InventoryController) RecordChange(ctx *gin.Context) {
	var req dto.InventoryChangeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	err := c.inventory.RecordInventoryChange(ctx.Request.Context(), service.InventoryChangeInput{
		ProductID:   req.ProductID,
		EventType:   req.EventType,
		Quantity:    req.Quantity,
		Marketplace: req.Marketplace,
		OrderID:     req.OrderID,
		Reason:      req.Reason,
	})
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "库存变更已记录",
	})
}

// Reconcile 对账单个商品
func (c *InventoryController) Reconcile(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	report, err := c.inventory.ReconcileInventory(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": report,
	})
}

// GetSummary 库存同步全局概览
func (c *InventoryController) GetSummary(ctx *gin.Context) {
	summary, err := c.inventory.GetInventorySummary(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": summary,
	})
}

// ListSyncStates 商品各渠道同步状态
func (c *InventoryController) ListSyncStates(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	states, err := c.syncStateRepo.ListByProduct(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": states,
	})
}

// ListEvents 商品库存事件流
func (c *InventoryController) ListEvents(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))

	events, err := c.eventRepo.ListByProduct(ctx.Request.Context(), id, limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": events,
	})
}
