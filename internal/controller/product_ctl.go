package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
	"resale_sync_v1_202609/internal/service"
	"resale_sync_v1_202609/internal/task"
)

// ==================== ProductController 商品控制器 ====================

// ProductController 商品控制器
type ProductController struct {
	productRepo repository.ProductRepository
	router      *service.RouterService
	queue       *task.Queue
}

// NewProductController 创建商品控制器
func NewProductController(productRepo repository.ProductRepository, router *service.RouterService, queue *task.Queue) *ProductController {
	return &ProductController{productRepo: productRepo, router: router, queue: queue}
}

// List 商品列表
func (c *ProductController) List(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))

	filter := repository.ProductFilter{
		Status:   model.ProductStatus(ctx.Query("status")),
		Brand:    ctx.Query("brand"),
		Category: ctx.Query("category"),
		Keyword:  ctx.Query("keyword"),
		Page:     page,
		PageSize: pageSize,
	}

	products, total, err := c.productRepo.List(ctx.Request.Context(), filter)
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
			"list":  products,
			"total": total,
		},
	})
}

// Create 创建商品
func (c *ProductController) Create(ctx *gin.Context) {
	var product model.Product
	if err := ctx.ShouldBindJSON(&product); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误: " + err.Error(),
		})
		return
	}
	if product.Status == "" {
		product.Status = model.ProductStatusActive
	}

	if err := c.productRepo.Create(ctx.Request.Context(), &product); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "创建成功",
		"data":    product,
	})
}

// Get 商品详情
func (c *ProductController) Get(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	product, err := c.productRepo.GetByID(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{
			"code":    404,
			"message": "商品不存在",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": product,
	})
}

// PreviewRouting 渠道路由预览，不产生任何刊登
func (c *ProductController) PreviewRouting(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	result, err := c.router.RouteProduct(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{
			"code":    404,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": result,
	})
}

// Publish 触发商品刊登（异步入队）
func (c *ProductController) Publish(ctx *gin.Context) {
	id, err := parseID(ctx)
	if err != nil {
		return
	}

	if _, err := c.productRepo.GetByID(ctx.Request.Context(), id); err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{
			"code":    404,
			"message": "商品不存在",
		})
		return
	}

	job, err := c.queue.Enqueue(ctx.Request.Context(), model.JobFamilyPublishing, "publish_product",
		task.ProductJobPayload{ProductID: id})
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "刊登任务已入队",
		"data": gin.H{
			"job_id": job.JobID,
		},
	})
}
