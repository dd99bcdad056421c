package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySummary 骑手每日汇总，增量 upsert 维护
type DailySummary struct {
	BaseModel
	RiderID int64     `gorm:"not null;uniqueIndex:uniq_daily_summaries_rider_date" json:"rider_id"`
	Date    time.Time `gorm:"type:date;not null;uniqueIndex:uniq_daily_summaries_rider_date" json:"date"`

	// 定位与里程
	LocationCount int             `gorm:"not null;default:0" json:"location_count"`
	DistanceKm    decimal.Decimal `gorm:"type:numeric(10,3);not null;default:0" json:"distance_km"`
	WorkingHours  decimal.Decimal `gorm:"type:numeric(8,2);not null;default:0" json:"working_hours"`

	// 围栏进出
	GeofenceEnterCount int `gorm:"not null;default:0" json:"geofence_enter_count"`
	GeofenceExitCount  int `gorm:"not null;default:0" json:"geofence_exit_count"`

	// 会话
	SessionsTotal     int `gorm:"not null;default:0" json:"sessions_total"`
	SessionsCompleted int `gorm:"not null;default:0" json:"sessions_completed"`
	SessionsAbandoned int `gorm:"not null;default:0" json:"sessions_abandoned"`

	// 收益，按类型拆分
	EarningsTotal    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"earnings_total"`
	EarningsDistance decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"earnings_distance"`
	EarningsTime     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"earnings_time"`
	EarningsFixed    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"earnings_fixed"`
	EarningsOther    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"earnings_other"`

	// 验证
	VerificationsTotal  int `gorm:"not null;default:0" json:"verifications_total"`
	VerificationsPassed int `gorm:"not null;default:0" json:"verifications_passed"`

	// 同步
	SyncBatchCount  int             `gorm:"not null;default:0" json:"sync_batch_count"`
	SyncSuccessRate decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"sync_success_rate"`
}

// TableName 指定表名
func (DailySummary) TableName() string {
	return "daily_summaries"
}
