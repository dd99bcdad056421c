package dto

import "time"

// SyncSample 批量上报中的单条 GPS 采样
type SyncSample struct {
	MobileID   string                 `json:"mobile_id"`
	Latitude   float64                `json:"latitude"`
	Longitude  float64                `json:"longitude"`
	Accuracy   float64                `json:"accuracy"`
	Speed      *float64               `json:"speed,omitempty"`
	Heading    *float64               `json:"heading,omitempty"`
	Altitude   *float64               `json:"altitude,omitempty"`
	IsWorking  bool                   `json:"is_working"`
	CampaignID *int64                 `json:"campaign_id,omitempty"`
	RecordedAt time.Time              `json:"recorded_at"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// SyncBatchRequest 批量同步请求
type SyncBatchRequest struct {
	BatchID   string       `json:"batch_id"`
	CreatedAt time.Time    `json:"created_at"`
	Samples   []SyncSample `json:"samples"`
}

// SampleError 批次中单条采样的失败详情
type SampleError struct {
	MobileID string `json:"mobile_id"`
	Reason   string `json:"reason"`
}

// SyncBatchResult 批量同步结果
type SyncBatchResult struct {
	BatchID        string        `json:"batch_id"`
	Status         string        `json:"status"` // completed, partial, failed
	TotalCount     int           `json:"total_count"`
	ProcessedCount int           `json:"processed_count"`
	FailedCount    int           `json:"failed_count"`
	SkippedCount   int           `json:"skipped_count"` // 已处理过的 mobile_id，按成功跳过
	Errors         []SampleError `json:"errors,omitempty"`
}

// ManualEarningsRequest 手动收益计算请求
// earned_at 允许离线补传回填到实际发生日
type ManualEarningsRequest struct {
	MobileID               string                 `json:"mobile_id"`
	GeofenceID             int64                  `json:"geofence_id"`
	EarningsType           string                 `json:"earnings_type"`
	DistanceKm             *float64               `json:"distance_km,omitempty"`
	DurationHours          *float64               `json:"duration_hours,omitempty"`
	EarnedAt               *time.Time             `json:"earned_at,omitempty"`
	VerificationsCompleted int                    `json:"verifications_completed"`
	Metadata               map[string]interface{} `json:"metadata,omitempty"`
}

// EarningsItem 收益记录视图
type EarningsItem struct {
	ID            string    `json:"id"`
	GeofenceID    int64     `json:"geofence_id"`
	SessionID     *int64    `json:"session_id,omitempty"`
	EarningsType  string    `json:"earnings_type"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	DistanceKm    string    `json:"distance_km"`
	DurationHours string    `json:"duration_hours"`
	RateApplied   string    `json:"rate_applied"`
	Status        string    `json:"status"`
	EarnedAt      time.Time `json:"earned_at"`
}

// SessionItem 工作会话视图
type SessionItem struct {
	ID              string     `json:"id"`
	GeofenceID      int64      `json:"geofence_id"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	DistanceKm      string     `json:"distance_km"`
	EarningsAmount  string     `json:"earnings_amount"`
}

// SummaryItem 每日汇总视图
type SummaryItem struct {
	Date                string `json:"date"`
	LocationCount       int    `json:"location_count"`
	DistanceKm          string `json:"distance_km"`
	WorkingHours        string `json:"working_hours"`
	SessionsTotal       int    `json:"sessions_total"`
	SessionsCompleted   int    `json:"sessions_completed"`
	SessionsAbandoned   int    `json:"sessions_abandoned"`
	EarningsTotal       string `json:"earnings_total"`
	VerificationsTotal  int    `json:"verifications_total"`
	VerificationsPassed int    `json:"verifications_passed"`
	SyncSuccessRate     string `json:"sync_success_rate"`
}

// PeriodStats 时间段内的里程与收益
type PeriodStats struct {
	DistanceKm string `json:"distance_km"`
	Earnings   string `json:"earnings"`
}

// TrackingStatsResponse 骑手追踪统计
type TrackingStatsResponse struct {
	Today            PeriodStats `json:"today"`
	Week             PeriodStats `json:"week"`
	Month            PeriodStats `json:"month"`
	TodaySessions    int         `json:"today_sessions"`
	ActiveGeofences  []string    `json:"active_geofences"`
	PendingSyncCount int64       `json:"pending_sync_count"`
	LastSyncAt       *time.Time  `json:"last_sync_at,omitempty"`
}
