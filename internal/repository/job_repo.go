package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"resale_sync_v1_202609/internal/model"
)

// ==================== 任务队列仓储 ====================

// JobRepository 持久化任务队列仓储接口
type JobRepository interface {
	Enqueue(ctx context.Context, job *model.SyncJob) error
	GetByJobID(ctx context.Context, jobID string) (*model.SyncJob, error)

	// FetchRunnable 取出指定任务族中可执行的 PENDING 任务
	FetchRunnable(ctx context.Context, family model.JobFamily, limit int) ([]model.SyncJob, error)

	MarkRunning(ctx context.Context, id int64) error
	MarkDone(ctx context.Context, id int64) error
	// MarkFailed 记录失败；未达最大尝试次数时退回 PENDING 并延迟重试
	MarkFailed(ctx context.Context, id int64, errMsg string, retryAfter time.Duration) error
	// MarkFailedHard 直接判定失败不再重试（未知任务类型等不可恢复错误）
	MarkFailedHard(ctx context.Context, id int64, errMsg string) error

	CountByStatus(ctx context.Context, family model.JobFamily) (map[model.JobStatus]int64, error)
}

type jobRepo struct {
	db *gorm.DB
}

// NewJobRepository 创建任务队列仓储
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepo{db: db}
}

func (r *jobRepo) Enqueue(ctx context.Context, job *model.SyncJob) error {
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 3
	}
	if job.RunAfter.IsZero() {
		job.RunAfter = time.Now()
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *jobRepo) GetByJobID(ctx context.Context, jobID string) (*model.SyncJob, error) {
	var job model.SyncJob
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) FetchRunnable(ctx context.Context, family model.JobFamily, limit int) ([]model.SyncJob, error) {
	if limit <= 0 {
		limit = 10
	}
	var jobs []model.SyncJob
	err := r.db.WithContext(ctx).
		Where("family = ? AND status = ? AND run_after <= ?",
			family, model.JobStatusPending, time.Now()).
		Order("run_after ASC, id ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *jobRepo) MarkRunning(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.SyncJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   model.JobStatusRunning,
			"attempts": gorm.Expr("attempts + 1"),
		}).Error
}

func (r *jobRepo) MarkDone(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.SyncJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.JobStatusDone,
			"last_error": "",
		}).Error
}

func (r *jobRepo) MarkFailed(ctx context.Context, id int64, errMsg string, retryAfter time.Duration) error {
	var job model.SyncJob
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return err
	}

	updates := map[string]interface{}{
		"last_error": errMsg,
	}
	if job.Attempts >= job.MaxAttempts {
		updates["status"] = model.JobStatusFailed
	} else {
		updates["status"] = model.JobStatusPending
		updates["run_after"] = time.Now().Add(retryAfter)
	}
	return r.db.WithContext(ctx).
		Model(&model.SyncJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRepo) MarkFailedHard(ctx context.Context, id int64, errMsg string) error {
	return r.db.WithContext(ctx).
		Model(&model.SyncJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.JobStatusFailed,
			"last_error": errMsg,
		}).Error
}

func (r *jobRepo) CountByStatus(ctx context.Context, family model.JobFamily) (map[model.JobStatus]int64, error) {
	type result struct {
		Status model.JobStatus
		Count  int64
	}
	var results []result

	query := r.db.WithContext(ctx).Model(&model.SyncJob{})
	if family != "" {
		query = query.Where("family = ?", family)
	}
	err := query.
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[model.JobStatus]int64)
	for _, row := range results {
		stats[row.Status] = row.Count
	}
	return stats, nil
}
