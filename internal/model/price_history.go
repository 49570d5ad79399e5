package model

import "time"

// ==================== 价格来源 ====================

// PriceSource 价格记录来源
type PriceSource string

const (
	PriceSourceManual     PriceSource = "manual"
	PriceSourceRule       PriceSource = "rule"
	PriceSourceAI         PriceSource = "ai"
	PriceSourceCompetitor PriceSource = "competitor"
	PriceSourceInitial    PriceSource = "initial"
	PriceSourceAuto       PriceSource = "auto"
)

// ==================== 价格历史 ====================

// PriceHistory 价格观测点（append-only 时间序列）
type PriceHistory struct {
	BaseModel

	ListingID  int64       `gorm:"index:idx_listing_recorded;not null" json:"listing_id"`
	Price      float64     `gorm:"not null" json:"price"`
	Source     PriceSource `gorm:"size:20;index" json:"source"`
	RecordedAt time.Time   `gorm:"index:idx_listing_recorded" json:"recorded_at"`
}

func (PriceHistory) TableName() string {
	return "price_histories"
}

// PriceChangeLog 已提交价格变更的不可变记录
// 区别于 PriceHistory：这里是一次落地的变更，不只是一次价格观测
type PriceChangeLog struct {
	BaseModel

	ListingID     int64       `gorm:"index;not null" json:"listing_id"`
	OldPrice      float64     `gorm:"not null" json:"old_price"`
	NewPrice      float64     `gorm:"not null" json:"new_price"`
	ChangePercent float64     `gorm:"not null" json:"change_percent"`
	Source        PriceSource `gorm:"size:20" json:"source"`

	RecommendationID *int64 `gorm:"index" json:"recommendation_id"`
	RuleID           *int64 `json:"rule_id"`
}

func (PriceChangeLog) TableName() string {
	return "price_change_logs"
}

// CompetitorObservation 竞品价格观测流（与自有价格历史分流存储）
type CompetitorObservation struct {
	BaseModel

	ListingID     int64     `gorm:"index:idx_comp_listing_observed;not null" json:"listing_id"`
	CompetitorRef string    `gorm:"size:255" json:"competitor_ref"`
	Price         float64   `gorm:"not null" json:"price"`
	CurrencyCode  string    `gorm:"size:5" json:"currency_code"`
	ObservedAt    time.Time `gorm:"index:idx_comp_listing_observed" json:"observed_at"`
}

func (CompetitorObservation) TableName() string {
	return "competitor_observations"
}
