package model

import (
	"time"

	"gorm.io/datatypes"
)

// ==================== 任务队列 ====================

// JobFamily 任务族，每族有独立的并发上限
type JobFamily string

const (
	JobFamilyPublishing JobFamily = "publishing"
	JobFamilyInventory  JobFamily = "inventory"
	JobFamilyPricing    JobFamily = "pricing"
	JobFamilyCompetitor JobFamily = "competitor"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)

// SyncJob 持久化任务单元
// Payload 为带 type 标签的 JSON 记录；未知 type 直接判失败，不重试
type SyncJob struct {
	BaseModel

	JobID  string    `gorm:"size:40;uniqueIndex;not null" json:"job_id"`
	Family JobFamily `gorm:"size:20;index:idx_family_status;not null" json:"family"`
	Type   string    `gorm:"size:40;not null" json:"type"`

	Payload datatypes.JSON `gorm:"type:json" json:"payload"`

	Status      JobStatus `gorm:"size:20;index:idx_family_status;default:PENDING" json:"status"`
	Attempts    int       `gorm:"default:0" json:"attempts"`
	MaxAttempts int       `gorm:"default:3" json:"max_attempts"`
	LastError   string    `gorm:"size:1024" json:"last_error"`
	RunAfter    time.Time `gorm:"index" json:"run_after"`
}

func (SyncJob) TableName() string {
	return "sync_jobs"
}
