package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus 工作会话状态枚举
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusAbandoned SessionStatus = "abandoned" // 长时间未闭合，由调度器判定
)

// WorkSession 工作会话模型，由 enter/exit 事件开启和闭合
// 同一骑手同一围栏最多一个 active 会话
type WorkSession struct {
	BaseModel
	RiderID           int64           `gorm:"not null;index:idx_work_sessions_rider_geofence_status" json:"rider_id"`
	GeofenceID        int64           `gorm:"not null;index:idx_work_sessions_rider_geofence_status" json:"geofence_id"`
	StartEventID      int64           `gorm:"not null" json:"start_event_id"`
	EndEventID        *int64          `json:"end_event_id,omitempty"`
	StartedAt         time.Time       `gorm:"not null" json:"started_at"`
	EndedAt           *time.Time      `json:"ended_at,omitempty"`
	DurationMinutes   int             `gorm:"not null;default:0" json:"duration_minutes"`
	DistanceKm        decimal.Decimal `gorm:"type:numeric(10,3);not null;default:0" json:"distance_km"`
	VerificationCount int             `gorm:"not null;default:0" json:"verification_count"`
	EarningsAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"earnings_amount"`
	Status            SessionStatus   `gorm:"type:varchar(16);not null;default:'active';index:idx_work_sessions_rider_geofence_status" json:"status"`
}

// TableName 指定表名
func (WorkSession) TableName() string {
	return "work_sessions"
}
