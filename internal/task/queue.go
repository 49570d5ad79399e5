package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
	"resale_sync_v1_202609/internal/service"
)

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	// ErrUnknownJobType 未知任务类型，直接判失败不重试
	ErrUnknownJobType TaskError = "unknown job type"
	ErrTaskDisabled   TaskError = "task is disabled"
)

// ==================== 任务载荷 ====================

// ProductJobPayload 商品粒度任务载荷
type ProductJobPayload struct {
	ProductID int64 `json:"product_id"`
}

// ListingJobPayload 刊登粒度任务载荷
type ListingJobPayload struct {
	ListingID int64 `json:"listing_id"`
}

// RecommendationJobPayload 推荐粒度任务载荷
type RecommendationJobPayload struct {
	RecommendationID int64 `json:"recommendation_id"`
}

// TrackerJobPayload 竞品跟踪任务载荷
type TrackerJobPayload struct {
	TrackerID int64 `json:"tracker_id"`
}

// OrderIngestPayload 订单拉取任务载荷
type OrderIngestPayload struct {
	SinceUnix int64 `json:"since_unix"`
}

// NewJob 组装一个待入队任务
func NewJob(family model.JobFamily, jobType string, payload any) (*model.SyncJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &model.SyncJob{
		JobID:   uuid.NewString(),
		Family:  family,
		Type:    jobType,
		Payload: datatypes.JSON(raw),
	}, nil
}

// ==================== 分发器 ====================

// Dispatcher 任务分发器
// 每个任务族一个 switch；未知类型返回 ErrUnknownJobType 由队列硬失败
type Dispatcher struct {
	publishing *service.PublishingService
	inventory  *service.InventoryService
	pricing    *service.PricingService
	approval   *service.ApprovalService
	competitor *service.CompetitorService
}

// NewDispatcher 创建分发器
func NewDispatcher(
	publishing *service.PublishingService,
	inventory *service.InventoryService,
	pricing *service.PricingService,
	approval *service.ApprovalService,
	competitor *service.CompetitorService,
) *Dispatcher {
	return &Dispatcher{
		publishing: publishing,
		inventory:  inventory,
		pricing:    pricing,
		approval:   approval,
		competitor: competitor,
	}
}

// Dispatch 执行一个任务
func (d *Dispatcher) Dispatch(ctx context.Context, job *model.SyncJob) error {
	switch job.Family {
	case model.JobFamilyPublishing:
		return d.dispatchPublishing(ctx, job)
	case model.JobFamilyInventory:
		return d.dispatchInventory(ctx, job)
	case model.JobFamilyPricing:
		return d.dispatchPricing(ctx, job)
	case model.JobFamilyCompetitor:
		return d.dispatchCompetitor(ctx, job)
	}
	return fmt.Errorf("%w: family %s", ErrUnknownJobType, job.Family)
}

func (d *Dispatcher) dispatchPublishing(ctx context.Context, job *model.SyncJob) error {
	switch job.Type {
	case "publish_product":
		var p ProductJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("%w: %s 载荷非法: %v", ErrUnknownJobType, job.Type, err)
		}
		_, err := d.publishing.PublishProduct(ctx, p.ProductID)
		return err
	}
	return fmt.Errorf("%w: %s/%s", ErrUnknownJobType, job.Family, job.Type)
}

func (d *Dispatcher) dispatchInventory(ctx context.Context, job *model.SyncJob) error {
	switch job.Type {
	case "reconcile_product":
		var p ProductJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("%w: %s 载荷非法: %v", ErrUnknownJobType, job.Type, err)
		}
		_, err := d.inventory.ReconcileInventory(ctx, p.ProductID)
		return err
	case "ingest_orders":
		var p OrderIngestPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("%w: %s 载荷非法: %v", ErrUnknownJobType, job.Type, err)
		}
		_, err := d.inventory.IngestOrders(ctx, time.Unix(p.SinceUnix, 0))
		return err
	}
	return fmt.Errorf("%w: %s/%s", ErrUnknownJobType, job.Family, job.Type)
}

func (d *Dispatcher) dispatchPricing(ctx context.Context, job *model.SyncJob) error {
	switch job.Type {
	case "evaluate_listing":
		var p ListingJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("%w: %s 载荷非法: %v", ErrUnknownJobType, job.Type, err)
		}
		_, err := d.pricing.EvaluateListing(ctx, p.ListingID)
		return err
	case "apply_recommendation":
		var p RecommendationJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("%w: %s 载荷非法: %v", ErrUnknownJobType, job.Type, err)
		}
		if result := d.approval.Apply(ctx, p.RecommendationID); !result.Success {
			return errors.New(result.Message)
		}
		return nil
	}
	return fmt.Errorf("%w: %s/%s", ErrUnknownJobType, job.Family, job.Type)
}

func (d *Dispatcher) dispatchCompetitor(ctx context.Context, job *model.SyncJob) error {
	switch job.Type {
	case "check_tracker":
		var p TrackerJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("%w: %s 载荷非法: %v", ErrUnknownJobType, job.Type, err)
		}
		_, err := d.competitor.CheckSingle(ctx, p.TrackerID)
		return err
	}
	return fmt.Errorf("%w: %s/%s", ErrUnknownJobType, job.Family, job.Type)
}

// ==================== 队列 ====================

// QueueConfig 队列配置
type QueueConfig struct {
	// Concurrency 每个任务族的并发上限
	Concurrency map[model.JobFamily]int
	// PollInterval 轮询间隔
	PollInterval time.Duration
	// FetchBatch 单次取出任务数
	FetchBatch int
	// RetryBackoff 可重试失败的重试延迟
	RetryBackoff time.Duration
	// JobTimeout 单任务执行超时
	JobTimeout time.Duration
}

// DefaultQueueConfig 默认队列配置
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Concurrency: map[model.JobFamily]int{
			model.JobFamilyPublishing: 2,
			model.JobFamilyInventory:  4,
			model.JobFamilyPricing:    4,
			model.JobFamilyCompetitor: 4,
		},
		PollInterval: 5 * time.Second,
		FetchBatch:   20,
		RetryBackoff: time.Minute,
		JobTimeout:   5 * time.Minute,
	}
}

// Queue 持久化任务队列的执行端
// 每个任务族一条轮询协程，族内并发由信号量限制
type Queue struct {
	jobRepo    repository.JobRepository
	dispatcher *Dispatcher
	cfg        QueueConfig

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewQueue 创建队列执行端
func NewQueue(jobRepo repository.JobRepository, dispatcher *Dispatcher, cfg QueueConfig) *Queue {
	if cfg.PollInterval <= 0 {
		cfg = DefaultQueueConfig()
	}
	return &Queue{
		jobRepo:    jobRepo,
		dispatcher: dispatcher,
		cfg:        cfg,
		stop:       make(chan struct{}),
	}
}

// Enqueue 入队一个任务
func (q *Queue) Enqueue(ctx context.Context, family model.JobFamily, jobType string, payload any) (*model.SyncJob, error) {
	job, err := NewJob(family, jobType, payload)
	if err != nil {
		return nil, err
	}
	if err := q.jobRepo.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Start 启动各任务族的轮询协程
func (q *Queue) Start() {
	for family, concurrency := range q.cfg.Concurrency {
		q.wg.Add(1)
		go q.pollLoop(family, concurrency)
	}
	log.Printf("[Queue] 已启动 %d 个任务族", len(q.cfg.Concurrency))
}

// Stop 停止轮询并等待在途任务完成
func (q *Queue) Stop() {
	close(q.stop)
	q.wg.Wait()
	log.Println("[Queue] 已停止")
}

func (q *Queue) pollLoop(family model.JobFamily, concurrency int) {
	defer q.wg.Done()

	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			// 等待族内在途任务
			for i := 0; i < concurrency; i++ {
				sem <- struct{}{}
			}
			return
		case <-ticker.C:
			q.drainOnce(family, sem)
		}
	}
}

func (q *Queue) drainOnce(family model.JobFamily, sem chan struct{}) {
	ctx := context.Background()
	jobs, err := q.jobRepo.FetchRunnable(ctx, family, q.cfg.FetchBatch)
	if err != nil {
		log.Printf("[Queue] 取任务失败 family=%s: %v", family, err)
		return
	}

	for i := range jobs {
		job := jobs[i]
		if err := q.jobRepo.MarkRunning(ctx, job.ID); err != nil {
			continue
		}

		sem <- struct{}{}
		go func(job model.SyncJob) {
			defer func() { <-sem }()
			q.runJob(&job)
		}(job)
	}
}

func (q *Queue) runJob(job *model.SyncJob) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.JobTimeout)
	defer cancel()

	err := q.dispatcher.Dispatch(ctx, job)
	if err == nil {
		if markErr := q.jobRepo.MarkDone(ctx, job.ID); markErr != nil {
			log.Printf("[Queue] 任务完成状态写入失败 job=%s: %v", job.JobID, markErr)
		}
		return
	}

	if errors.Is(err, ErrUnknownJobType) {
		log.Printf("[Queue] 任务类型未知，硬失败 job=%s %s/%s", job.JobID, job.Family, job.Type)
		if markErr := q.jobRepo.MarkFailedHard(ctx, job.ID, err.Error()); markErr != nil {
			log.Printf("[Queue] 硬失败状态写入失败 job=%s: %v", job.JobID, markErr)
		}
		return
	}

	log.Printf("[Queue] 任务执行失败 job=%s %s/%s: %v", job.JobID, job.Family, job.Type, err)
	if markErr := q.jobRepo.MarkFailed(ctx, job.ID, err.Error(), q.cfg.RetryBackoff); markErr != nil {
		log.Printf("[Queue] 失败状态写入失败 job=%s: %v", job.JobID, markErr)
	}
}

// Stats 队列统计
func (q *Queue) Stats(ctx context.Context, family model.JobFamily) (map[model.JobStatus]int64, error) {
	return q.jobRepo.CountByStatus(ctx, family)
}
