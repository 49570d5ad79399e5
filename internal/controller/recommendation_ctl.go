package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"resale_sync_v1_202609/internal/api/dto"
	"resale_sync_v1_202609/internal/middleware"
	"resale_sync_v1_202609/internal/repository"
	"resale_sync_v1_202609/internal/service"
)

// ==================== RecommendationController 推荐审批控制器 ====================

// RecommendationController 价格推荐审批控制器
type RecommendationController struct {
	approval *service.ApprovalService
}

// NewRecommendationController 创建推荐审批控制器
func NewRecommendationController(approval *service.ApprovalService) *RecommendationController {
	return &RecommendationController{approval: approval}
}

// ListPending 待审推荐列表
func (c *RecommendationController) ListPending(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))
	listingID, _ := strconv.ParseInt(ctx.Query("listing_id"), 10, 64)

	recs, total, err := c.approval.GetPendingRecommendations(ctx.Request.Context(), repository.RecommendationFilter{
		ListingID: listingID,
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	items := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		items = append(items, gin.H{
			"recommendation": rec,
			"change_percent": rec.ChangePercent(),
		})
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": gin.H{
			"list":  items,
			"total": total,
		},
	})
}

// Approve 批准推荐
func (c *RecommendationController) Approve(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	result := c.approval.Approve(ctx.Request.Context(), id, middleware.GetUsername(ctx))
	respondApproval(ctx, result)
}

// Reject 驳回推荐
func (c *RecommendationController) Reject(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	var req dto.RejectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	result := c.approval.Reject(ctx.Request.Context(), id, req.Reason, middleware.GetUsername(ctx))
	respondApproval(ctx, result)
}

// BulkApprove 批量批准
func (c *RecommendationController) BulkApprove(ctx *gin.Context) {
	var req dto.BulkApproveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	batch := c.approval.BulkApprove(ctx.Request.Context(), req.IDs, middleware.GetUsername(ctx))
	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": batch,
	})
}

// Apply 落地已批准的推荐
func (c *RecommendationController) Apply(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	result := c.approval.Apply(ctx.Request.Context(), id)
	respondApproval(ctx, result)
}

// GetStats 审批统计
func (c *RecommendationController) GetStats(ctx *gin.Context) {
	days, _ := strconv.Atoi(ctx.DefaultQuery("days", "30"))

	stats, err := c.approval.GetStats(ctx.Request.Context(), days)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": stats,
	})
}

// UpdateConfig 更新审批配置
func (c *RecommendationController) UpdateConfig(ctx *gin.Context) {
	var req dto.ApprovalConfigRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	config := c.approval.Config()
	if req.AutoApproveThreshold > 0 {
		config.AutoApproveThreshold = req.AutoApproveThreshold
	}
	if req.RequireApprovalAbove > 0 {
		config.RequireApprovalAbove = req.RequireApprovalAbove
	}
	if req.MinConfidence > 0 {
		config.MinConfidence = req.MinConfidence
	}
	if req.ExpiryHours > 0 {
		config.ExpiryTTL = time.Duration(req.ExpiryHours) * time.Hour
	}
	c.approval.UpdateConfig(config)

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "配置已更新",
		"data":    config,
	})
}

// respondApproval 统一审批结果响应
func respondApproval(ctx *gin.Context, result service.ApprovalResult) {
	if !result.Success {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": result.Message,
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": result.Message,
		"data":    result,
	})
}
