package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// 广告活动子系统拥有这些表，本服务读取围栏几何/费率/容量，
// 只回写 current_riders 占用计数。

// CampaignStatus 活动状态枚举
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// Campaign 广告活动
type Campaign struct {
	BaseModel
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Status      CampaignStatus  `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	StartDate   time.Time       `gorm:"not null" json:"start_date"`
	EndDate     time.Time       `gorm:"not null" json:"end_date"`
	TotalBudget decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total_budget"`
	Spent       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"spent"`
}

// TableName 指定表名
func (Campaign) TableName() string {
	return "campaigns"
}

// IsRunning 活动处于 active 状态且在投放窗口内
func (c *Campaign) IsRunning(now time.Time) bool {
	return c.Status == CampaignStatusActive &&
		!now.Before(c.StartDate) && !now.After(c.EndDate)
}

// RateType 围栏计费类型枚举
type RateType string

const (
	RateTypePerKm      RateType = "per_km"
	RateTypePerHour    RateType = "per_hour"
	RateTypeFixedDaily RateType = "fixed_daily"
	RateTypeHybrid     RateType = "hybrid"
)

// GeofenceStatus 围栏状态枚举
type GeofenceStatus string

const (
	GeofenceStatusActive   GeofenceStatus = "active"
	GeofenceStatusPaused   GeofenceStatus = "paused"
	GeofenceStatusArchived GeofenceStatus = "archived"
)

// Geofence 投放围栏：圆形为主，可选多边形边界
type Geofence struct {
	BaseModel
	CampaignID     int64          `gorm:"not null;index" json:"campaign_id"`
	Name           string         `gorm:"type:varchar(255);not null" json:"name"`
	Status         GeofenceStatus `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	Priority       int            `gorm:"not null;default:100" json:"priority"` // 数值越小优先级越高
	IsHighPriority bool           `gorm:"not null;default:false" json:"is_high_priority"`

	// 几何：圆心 + 半径；Boundary 非空时优先按多边形判定
	CenterLat    float64        `gorm:"not null" json:"center_lat"`
	CenterLng    float64        `gorm:"not null" json:"center_lng"`
	RadiusMeters float64        `gorm:"not null" json:"radius_meters"`
	Boundary     datatypes.JSON `json:"boundary,omitempty"` // [{"lat":..,"lng":..},...]

	// 预算
	Budget decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"budget"`
	Spent  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"spent"`

	// 计费
	RateType       RateType        `gorm:"type:varchar(16);not null" json:"rate_type"`
	RatePerKm      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"rate_per_km"`
	RatePerHour    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"rate_per_hour"`
	FixedDailyRate decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"fixed_daily_rate"`

	// 容量
	MaxRiders     int `gorm:"not null;default:0" json:"max_riders"`
	MinRiders     int `gorm:"not null;default:0" json:"min_riders"`
	CurrentRiders int `gorm:"not null;default:0" json:"current_riders"`

	// 投放窗口
	StartDate time.Time `gorm:"not null" json:"start_date"`
	EndDate   time.Time `gorm:"not null" json:"end_date"`
}

// TableName 指定表名
func (Geofence) TableName() string {
	return "geofences"
}

// IsFull 占用是否已达上限
func (g *Geofence) IsFull() bool {
	return g.MaxRiders > 0 && g.CurrentRiders >= g.MaxRiders
}

// RemainingBudget 剩余预算
func (g *Geofence) RemainingBudget() decimal.Decimal {
	return g.Budget.Sub(g.Spent)
}

// InWindow 是否在投放窗口内
func (g *Geofence) InWindow(now time.Time) bool {
	return !now.Before(g.StartDate) && !now.After(g.EndDate)
}

// AssignmentStatus 指派状态枚举
type AssignmentStatus string

const (
	AssignmentStatusAssigned  AssignmentStatus = "assigned"
	AssignmentStatusActive    AssignmentStatus = "active"
	AssignmentStatusCompleted AssignmentStatus = "completed"
	AssignmentStatusCancelled AssignmentStatus = "cancelled"
)

// CampaignAssignment 活动与骑手的指派关系
type CampaignAssignment struct {
	BaseModel
	CampaignID int64            `gorm:"not null;uniqueIndex:uniq_campaign_assignments_campaign_rider" json:"campaign_id"`
	RiderID    int64            `gorm:"not null;uniqueIndex:uniq_campaign_assignments_campaign_rider" json:"rider_id"`
	Status     AssignmentStatus `gorm:"type:varchar(16);not null;default:'assigned';index" json:"status"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	EndedAt    *time.Time       `json:"ended_at,omitempty"`
}

// TableName 指定表名
func (CampaignAssignment) TableName() string {
	return "campaign_assignments"
}

// GeofenceAssignment 围栏与骑手的指派关系，占用围栏容量
type GeofenceAssignment struct {
	BaseModel
	GeofenceID     int64            `gorm:"not null;uniqueIndex:uniq_geofence_assignments_geofence_rider" json:"geofence_id"`
	RiderID        int64            `gorm:"not null;uniqueIndex:uniq_geofence_assignments_geofence_rider" json:"rider_id"`
	Status         AssignmentStatus `gorm:"type:varchar(16);not null;default:'assigned';index" json:"status"`
	VerificationID *int64           `json:"verification_id,omitempty"` // 通过的加入验证
	ActivatedAt    *time.Time       `json:"activated_at,omitempty"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
}

// TableName 指定表名
func (GeofenceAssignment) TableName() string {
	return "geofence_assignments"
}

// RiderStatus 骑手状态枚举
type RiderStatus string

const (
	RiderStatusActive    RiderStatus = "active"
	RiderStatusSuspended RiderStatus = "suspended"
	RiderStatusInactive  RiderStatus = "inactive"
)

// Rider 骑手档案（账号子系统拥有，这里只读）
type Rider struct {
	BaseModel
	Status                 RiderStatus `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	IsAvailable            bool        `gorm:"not null;default:true" json:"is_available"`
	MaxConcurrentCampaigns int         `gorm:"not null;default:3" json:"max_concurrent_campaigns"`
}

// TableName 指定表名
func (Rider) TableName() string {
	return "riders"
}

// CanAcceptCampaign 骑手是否还能接新活动
func (r *Rider) CanAcceptCampaign(activeCount int) bool {
	return r.Status == RiderStatusActive && r.IsAvailable &&
		activeCount < r.MaxConcurrentCampaigns
}
