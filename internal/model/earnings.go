package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// EarningsType 收益类型枚举
type EarningsType string

const (
	EarningsTypeDistance   EarningsType = "distance"
	EarningsTypeTime       EarningsType = "time"
	EarningsTypeFixed      EarningsType = "fixed"
	EarningsTypeHybrid     EarningsType = "hybrid"
	EarningsTypeBonus      EarningsType = "bonus"
	EarningsTypeCorrection EarningsType = "correction"
)

// EarningsStatus 收益记录状态枚举
type EarningsStatus string

const (
	EarningsStatusPending    EarningsStatus = "pending"
	EarningsStatusCalculated EarningsStatus = "calculated"
	EarningsStatusPaid       EarningsStatus = "paid"
	EarningsStatusDisputed   EarningsStatus = "disputed"
)

// EarningsRecord 收益记录模型
// MobileID 为客户端幂等键，手动请求时必填且唯一
type EarningsRecord struct {
	BaseModel
	MobileID               *string         `gorm:"type:varchar(64);uniqueIndex:uniq_earnings_records_mobile_id" json:"mobile_id,omitempty"`
	RiderID                int64           `gorm:"not null;index:idx_earnings_records_rider_earned" json:"rider_id"`
	GeofenceID             int64           `gorm:"not null;index" json:"geofence_id"`
	SessionID              *int64          `gorm:"index" json:"session_id,omitempty"`
	EarningsType           EarningsType    `gorm:"type:varchar(16);not null" json:"earnings_type"`
	Amount                 decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency               string          `gorm:"type:varchar(8);not null" json:"currency"`
	DistanceKm             decimal.Decimal `gorm:"type:numeric(10,3);not null;default:0" json:"distance_km"`
	DurationHours          decimal.Decimal `gorm:"type:numeric(8,2);not null;default:0" json:"duration_hours"`
	RateApplied            decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"rate_applied"`
	EarnedAt               time.Time       `gorm:"not null;index:idx_earnings_records_rider_earned" json:"earned_at"`
	Status                 EarningsStatus  `gorm:"type:varchar(16);not null;default:'calculated'" json:"status"`
	VerificationsCompleted int             `gorm:"not null;default:0" json:"verifications_completed"`
	Metadata               datatypes.JSON  `json:"metadata,omitempty"`
}

// TableName 指定表名
func (EarningsRecord) TableName() string {
	return "earnings_records"
}
