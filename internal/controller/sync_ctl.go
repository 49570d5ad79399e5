package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/task"
)

// ==================== SyncController 手动触发控制器 ====================

// SyncController 周期任务手动触发与队列状态查询
type SyncController struct {
	taskManager *task.TaskManager
}

// NewSyncController 创建手动触发控制器
func NewSyncController(taskManager *task.TaskManager) *SyncController {
	return &SyncController{taskManager: taskManager}
}

// TriggerReconcileAll 触发全量库存对账
func (c *SyncController) TriggerReconcileAll(ctx *gin.Context) {
	if err := c.taskManager.TriggerReconcileAll(); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    503,
			"message": err.Error(),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "全量对账已触发",
	})
}

// TriggerPricingSweep 触发定价巡检
func (c *SyncController) TriggerPricingSweep(ctx *gin.Context) {
	if err := c.taskManager.TriggerPricingSweep(); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    503,
			"message": err.Error(),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "定价巡检已触发",
	})
}

// TriggerCompetitorCheck 触发竞品全量检查
func (c *SyncController) TriggerCompetitorCheck(ctx *gin.Context) {
	if err := c.taskManager.TriggerCompetitorCheck(); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    503,
			"message": err.Error(),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "竞品检查已触发",
	})
}

// GetStatus 任务启用状态与各族队列积压
func (c *SyncController) GetStatus(ctx *gin.Context) {
	families := []model.JobFamily{
		model.JobFamilyPublishing,
		model.JobFamilyInventory,
		model.JobFamilyPricing,
		model.JobFamilyCompetitor,
	}

	queues := make(map[model.JobFamily]map[model.JobStatus]int64, len(families))
	for _, family := range families {
		stats, err := c.taskManager.Queue().Stats(ctx.Request.Context(), family)
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{
				"code":    500,
				"message": err.Error(),
			})
			return
		}
		queues[family] = stats
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": gin.H{
			"tasks":  c.taskManager.Status(),
			"queues": queues,
		},
	})
}
