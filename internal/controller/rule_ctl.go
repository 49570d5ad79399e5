package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"resale_sync_v1_202609/internal/api/dto"
	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
	"resale_sync_v1_202609/internal/service"
)

// ==================== RuleController 定价规则控制器 ====================

// RuleController 定价规则与模拟控制器
type RuleController struct {
	ruleRepo repository.PricingRuleRepository
	backtest *service.BacktestService
}

// NewRuleController 创建规则控制器
func NewRuleController(ruleRepo repository.PricingRuleRepository, backtest *service.BacktestService) *RuleController {
	return &RuleController{ruleRepo: ruleRepo, backtest: backtest}
}

// List 规则列表
func (c *RuleController) List(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))

	rules, total, err := c.ruleRepo.List(ctx.Request.Context(), page, pageSize)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": gin.H{
			"list":  rules,
			"total": total,
		},
	})
}

// Create 创建规则
func (c *RuleController) Create(ctx *gin.Context) {
	var req dto.SaveRuleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	rule, err := ruleFromRequest(&req)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "规则编码失败: " + err.Error(),
		})
		return
	}

	if err := c.ruleRepo.Create(ctx.Request.Context(), rule); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "创建成功",
		"data":    rule,
	})
}

// Update 更新规则
func (c *RuleController) Update(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	var req dto.SaveRuleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	existing, err := c.ruleRepo.GetByID(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{
			"code":    404,
			"message": "规则不存在",
		})
		return
	}

	rule, err := ruleFromRequest(&req)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "规则编码失败: " + err.Error(),
		})
		return
	}
	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt

	if err := c.ruleRepo.Update(ctx.Request.Context(), rule); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "更新成功",
		"data":    rule,
	})
}

// Delete 删除规则
func (c *RuleController) Delete(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	if err := c.ruleRepo.Delete(ctx.Request.Context(), id); err != nil {
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

// SetActive 启停规则
func (c *RuleController) SetActive(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	var req struct {
		IsActive bool `json:"is_active"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	if err := c.ruleRepo.SetActive(ctx.Request.Context(), id, req.IsActive); err != nil {
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

// Simulate 定价干跑模拟
func (c *RuleController) Simulate(ctx *gin.Context) {
	var req dto.SimulateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}

	if len(req.ListingIDs) == 1 {
		result, err := c.backtest.SimulateSingle(ctx.Request.Context(), service.SimulationInput{
			ListingID:       req.ListingIDs[0],
			CompetitorPrice: req.CompetitorPrice,
			RuleIDs:         req.RuleIDs,
		})
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"code":    400,
				"message": err.Error(),
			})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"code": 0, "data": result})
		return
	}

	batch, err := c.backtest.SimulateBatch(ctx.Request.Context(), req.ListingIDs, req.CompetitorPrice)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"code": 0, "data": batch})
}

// ==================== 辅助函数 ====================

// ruleFromRequest 把请求编码为持久化规则
func ruleFromRequest(req *dto.SaveRuleRequest) (*model.PricingRule, error) {
	rule := &model.PricingRule{
		Name:        req.Name,
		RuleType:    req.RuleType,
		Priority:    req.Priority,
		Marketplace: req.Marketplace,
		Category:    req.Category,
		IsActive:    true,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if len(req.Conditions) > 0 {
		raw, err := json.Marshal(req.Conditions)
		if err != nil {
			return nil, err
		}
		rule.Conditions = datatypes.JSON(raw)
	}
	raw, err := json.Marshal(req.Actions)
	if err != nil {
		return nil, err
	}
	rule.Actions = datatypes.JSON(raw)

	if req.Safety != nil {
		raw, err := json.Marshal(req.Safety)
		if err != nil {
			return nil, err
		}
		rule.SafetyConfig = datatypes.JSON(raw)
	}
	return rule, nil
}

// parseID 解析路径中的 :id，失败时直接写响应
func parseID(ctx *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "无效的 ID",
		})
		return 0, err
	}
	return id, nil
}
