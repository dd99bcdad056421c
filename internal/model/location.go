package model

import (
	"time"

	"gorm.io/datatypes"
)

// SyncStatus 采样处理状态枚举
type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"   // 已入库未处理
	SyncStatusProcessed SyncStatus = "processed" // 处理完成
	SyncStatusError     SyncStatus = "error"     // 处理失败
)

// LocationRecord GPS 采样记录模型
type LocationRecord struct {
	BaseModel
	MobileID     string         `gorm:"type:varchar(64);not null;uniqueIndex:uniq_location_records_mobile_id" json:"mobile_id"`
	RiderID      int64          `gorm:"not null;index:idx_location_records_rider_recorded" json:"rider_id"`
	CampaignID   *int64         `gorm:"index" json:"campaign_id,omitempty"`
	Latitude     float64        `gorm:"not null" json:"latitude"`
	Longitude    float64        `gorm:"not null" json:"longitude"`
	Accuracy     float64        `gorm:"not null" json:"accuracy"`
	Speed        *float64       `json:"speed,omitempty"`
	Heading      *float64       `json:"heading,omitempty"`
	Altitude     *float64       `json:"altitude,omitempty"`
	IsWorking    bool           `gorm:"not null;default:false" json:"is_working"`
	RecordedAt   time.Time      `gorm:"not null;index:idx_location_records_rider_recorded" json:"recorded_at"`
	SyncedAt     time.Time      `gorm:"not null" json:"synced_at"`
	SyncStatus   SyncStatus     `gorm:"type:varchar(16);not null;default:'pending'" json:"sync_status"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
}

// TableName 指定表名
func (LocationRecord) TableName() string {
	return "location_records"
}

// BatchStatus 同步批次状态枚举
type BatchStatus string

const (
	BatchStatusReceived   BatchStatus = "received"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed" // 全部采样成功
	BatchStatusPartial    BatchStatus = "partial"   // 部分采样失败
	BatchStatusFailed     BatchStatus = "failed"    // 全部采样失败
)

// SyncBatch 同步批次模型，记录一次批量上报的处理结果
type SyncBatch struct {
	BaseModel
	BatchID             string         `gorm:"type:varchar(64);not null;uniqueIndex:uniq_sync_batches_batch_id" json:"batch_id"`
	RiderID             int64          `gorm:"not null;index:idx_sync_batches_rider" json:"rider_id"`
	TotalCount          int            `gorm:"not null;default:0" json:"total_count"`
	ProcessedCount      int            `gorm:"not null;default:0" json:"processed_count"`
	FailedCount         int            `gorm:"not null;default:0" json:"failed_count"`
	BatchCreatedAt      time.Time      `gorm:"not null" json:"batch_created_at"`
	ReceivedAt          time.Time      `gorm:"not null" json:"received_at"`
	ProcessingStartedAt *time.Time     `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	Status              BatchStatus    `gorm:"type:varchar(16);not null;default:'received'" json:"status"`
	ErrorLog            datatypes.JSON `json:"error_log,omitempty"`
}

// TableName 指定表名
func (SyncBatch) TableName() string {
	return "sync_batches"
}
