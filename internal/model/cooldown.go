package model

import "time"

// CooldownKind 冷却动作类型
type CooldownKind string

const (
	CooldownZoneJoin  CooldownKind = "zone_join"
	CooldownSpotCheck CooldownKind = "spot_check"
	CooldownManual    CooldownKind = "manual"
)

// CooldownRecord 冷却记录，(rider_id, kind) 唯一
// 每次尝试后刷新，无论成功失败
type CooldownRecord struct {
	BaseModel
	RiderID       int64        `gorm:"not null;uniqueIndex:uniq_cooldown_records_rider_kind" json:"rider_id"`
	Kind          CooldownKind `gorm:"type:varchar(16);not null;uniqueIndex:uniq_cooldown_records_rider_kind" json:"kind"`
	LastAttemptAt time.Time    `gorm:"not null" json:"last_attempt_at"`
	ExpiresAt     time.Time    `gorm:"not null;index" json:"expires_at"`
	Attempts      int          `gorm:"not null;default:0" json:"attempts"`
}

// TableName 指定表名
func (CooldownRecord) TableName() string {
	return "cooldown_records"
}
