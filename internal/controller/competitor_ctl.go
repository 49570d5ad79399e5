package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"resale_sync_v1_202609/internal/api/dto"
	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/service"
)

// ==================== CompetitorController 竞品控制器 ====================

// CompetitorController 竞品跟踪控制器
type CompetitorController struct {
	competitor *service.CompetitorService
}

// NewCompetitorController 创建竞品控制器
func NewCompetitorController(competitor *service.CompetitorService) *CompetitorController {
	return &CompetitorController{competitor: competitor}
}

// CreateTracker 创建竞品跟踪
func (c *CompetitorController) CreateTracker(ctx *gin.Context) {
	var req dto.CreateTrackerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	tracker := &model.CompetitorTracker{
		ListingID:     req.ListingID,
		Marketplace:   req.Marketplace,
		CompetitorRef: req.CompetitorRef,
		Enabled:       true,
	}
	if err := c.competitor.CreateTracker(ctx.Request.Context(), tracker); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "创建成功",
		"data":    tracker,
	})
}

// ListTrackers 跟踪列表，可按刊登过滤
func (c *CompetitorController) ListTrackers(ctx *gin.Context) {
	listingID, _ := strconv.ParseInt(ctx.Query("listing_id"), 10, 64)

	trackers, err := c.competitor.ListTrackers(ctx.Request.Context(), listingID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": trackers,
	})
}

// SetEnabled 启停跟踪
func (c *CompetitorController) SetEnabled(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	if err := c.competitor.SetTrackerEnabled(ctx.Request.Context(), id, req.Enabled); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "更新成功",
	})
}

// DeleteTracker 删除跟踪
func (c *CompetitorController) DeleteTracker(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	if err := c.competitor.DeleteTracker(ctx.Request.Context(), id); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "删除成功",
	})
}

// CheckSingle 立即检查单个竞品
func (c *CompetitorController) CheckSingle(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	result, err := c.competitor.CheckSingle(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": result,
	})
}

// ListAlerts 竞品告警列表
func (c *CompetitorController) ListAlerts(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))

	alerts, err := c.competitor.ListAlerts(ctx.Request.Context(), limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": alerts,
	})
}

// AcknowledgeAlert 确认告警
func (c *CompetitorController) AcknowledgeAlert(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	if err := c.competitor.AcknowledgeAlert(ctx.Request.Context(), id); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "已确认",
	})
}
