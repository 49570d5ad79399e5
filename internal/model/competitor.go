package model

import "time"

// ==================== 竞品跟踪 ====================

// CompetitorTracker 一条刊登对一个竞品对象的跟踪配置
// 抓取本身在系统边界之外，这里只管观测值的落库与告警
type CompetitorTracker struct {
	BaseModel

	ListingID     int64       `gorm:"index;not null" json:"listing_id"`
	Marketplace   Marketplace `gorm:"size:30" json:"marketplace"`
	CompetitorRef string      `gorm:"size:255;not null" json:"competitor_ref"`

	Enabled       bool       `gorm:"index;default:true" json:"enabled"`
	LastPrice     *float64   `json:"last_price"`
	LastCheckedAt *time.Time `json:"last_checked_at"`
	FailCount     int        `gorm:"default:0" json:"fail_count"`
}

func (CompetitorTracker) TableName() string {
	return "competitor_trackers"
}

// ==================== 竞品告警 ====================

// CompetitorAlertType 告警类型
type CompetitorAlertType string

const (
	AlertTypeUndercut  CompetitorAlertType = "UNDERCUT"   // 竞品低于我方价格
	AlertTypePriceDrop CompetitorAlertType = "PRICE_DROP" // 竞品明显降价
)

// CompetitorAlert 竞品价格告警
type CompetitorAlert struct {
	BaseModel

	ListingID int64               `gorm:"index;not null" json:"listing_id"`
	TrackerID int64               `gorm:"index;not null" json:"tracker_id"`
	AlertType CompetitorAlertType `gorm:"size:20" json:"alert_type"`

	OurPrice   float64 `json:"our_price"`
	TheirPrice float64 `json:"their_price"`
	Message    string  `gorm:"size:512" json:"message"`

	Acknowledged bool `gorm:"index;default:false" json:"acknowledged"`
}

func (CompetitorAlert) TableName() string {
	return "competitor_alerts"
}
