package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// VerificationKind 验证请求类型
type VerificationKind string

const (
	VerificationSpotCheck VerificationKind = "spot_check"
	VerificationZoneJoin  VerificationKind = "zone_join"
	VerificationManual    VerificationKind = "manual"
)

// VerificationStatus 验证状态机：pending -> processing -> passed/failed/manual_review
type VerificationStatus string

const (
	VerificationStatusPending      VerificationStatus = "pending"
	VerificationStatusProcessing   VerificationStatus = "processing"
	VerificationStatusPassed       VerificationStatus = "passed"
	VerificationStatusFailed       VerificationStatus = "failed"
	VerificationStatusManualReview VerificationStatus = "manual_review"
)

// VerificationRequest 照片验证请求模型
type VerificationRequest struct {
	BaseModel
	RiderID    int64            `gorm:"not null;index:idx_verification_requests_rider_status" json:"rider_id"`
	CampaignID int64            `gorm:"not null;index" json:"campaign_id"`
	GeofenceID *int64           `gorm:"index" json:"geofence_id,omitempty"`
	Kind       VerificationKind `gorm:"type:varchar(16);not null" json:"kind"`

	// 照片
	ImagePath     string         `gorm:"type:varchar(255)" json:"image_path"`
	ImageMetadata datatypes.JSON `json:"image_metadata,omitempty"`

	// 拍摄时的定位
	Latitude  float64   `gorm:"not null" json:"latitude"`
	Longitude float64   `gorm:"not null" json:"longitude"`
	Accuracy  float64   `gorm:"not null" json:"accuracy"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`

	// 结果
	Status          VerificationStatus `gorm:"type:varchar(16);not null;default:'pending';index:idx_verification_requests_rider_status" json:"status"`
	ConfidenceScore decimal.Decimal    `gorm:"type:numeric(5,2);not null;default:0" json:"confidence_score"`
	Analysis        datatypes.JSON     `json:"analysis,omitempty"`

	RetryCount int        `gorm:"not null;default:0" json:"retry_count"`
	RetryAfter *time.Time `json:"retry_after,omitempty"`
}

// TableName 指定表名
func (VerificationRequest) TableName() string {
	return "verification_requests"
}
