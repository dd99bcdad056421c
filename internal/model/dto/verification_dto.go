package dto

import "time"

// JoinZoneRequest 加入围栏请求（照片以 multipart 文件上传）
type JoinZoneRequest struct {
	GeofenceID int64   `json:"geofence_id" form:"geofence_id"`
	Latitude   float64 `json:"latitude" form:"latitude"`
	Longitude  float64 `json:"longitude" form:"longitude"`
	Accuracy   float64 `json:"accuracy" form:"accuracy"`
}

// JoinZoneResult 加入围栏结果
type JoinZoneResult struct {
	Status          string  `json:"status"` // passed, failed, duplicate
	VerificationID  int64   `json:"verification_id"`
	Confidence      float64 `json:"confidence"`
	GeofenceID      int64   `json:"geofence_id"`
	AssignmentID    *int64  `json:"assignment_id,omitempty"`
	SessionID       *int64  `json:"session_id,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	CooldownSeconds int     `json:"cooldown_seconds,omitempty"`
	CurrentRiders   int     `json:"current_riders,omitempty"`
	MaxRiders       int     `json:"max_riders,omitempty"`
}

// EligibilityResult 加入资格检查结果
type EligibilityResult struct {
	CanJoin                  bool     `json:"can_join"`
	Reasons                  []string `json:"reasons,omitempty"`
	CooldownRemainingSeconds int      `json:"cooldown_remaining_seconds,omitempty"`
	CurrentRiders            int      `json:"current_riders"`
	MaxRiders                int      `json:"max_riders"`
}

// ZoneItem 可加入围栏视图
type ZoneItem struct {
	GeofenceID     int64   `json:"geofence_id"`
	CampaignID     int64   `json:"campaign_id"`
	Name           string  `json:"name"`
	RateType       string  `json:"rate_type"`
	Priority       int     `json:"priority"`
	IsHighPriority bool    `json:"is_high_priority"`
	CenterLat      float64 `json:"center_lat"`
	CenterLng      float64 `json:"center_lng"`
	RadiusMeters   float64 `json:"radius_meters"`
	CurrentRiders  int     `json:"current_riders"`
	MaxRiders      int     `json:"max_riders"`
}

// SpotCheckRequest 创建抽查请求
type SpotCheckRequest struct {
	CampaignID int64 `json:"campaign_id"`
	GeofenceID int64 `json:"geofence_id"`
}

// PendingVerificationItem 待响应的抽查
type PendingVerificationItem struct {
	VerificationID   int64     `json:"verification_id"`
	CampaignID       int64     `json:"campaign_id"`
	GeofenceID       *int64    `json:"geofence_id,omitempty"`
	Kind             string    `json:"kind"`
	RequestedAt      time.Time `json:"requested_at"`
	Deadline         time.Time `json:"deadline"`
	SecondsRemaining int       `json:"seconds_remaining"`
}

// SubmitVerificationRequest 提交抽查照片（照片以 multipart 文件上传）
type SubmitVerificationRequest struct {
	Latitude  float64 `json:"latitude" form:"latitude"`
	Longitude float64 `json:"longitude" form:"longitude"`
	Accuracy  float64 `json:"accuracy" form:"accuracy"`
}

// SubmitVerificationResult 抽查提交结果
type SubmitVerificationResult struct {
	VerificationID  int64   `json:"verification_id"`
	Status          string  `json:"status"`
	Confidence      float64 `json:"confidence"`
	Reason          string  `json:"reason,omitempty"`
	CooldownSeconds int     `json:"cooldown_seconds,omitempty"`
}

// VerificationHistoryItem 验证历史记录
type VerificationHistoryItem struct {
	VerificationID int64     `json:"verification_id"`
	CampaignID     int64     `json:"campaign_id"`
	Kind           string    `json:"kind"`
	Status         string    `json:"status"`
	Confidence     float64   `json:"confidence"`
	RequestedAt    time.Time `json:"requested_at"`
}

// VerificationStatsResponse 骑手验证统计
type VerificationStatsResponse struct {
	Total              int    `json:"total"`
	Passed             int    `json:"passed"`
	Failed             int    `json:"failed"`
	Pending            int    `json:"pending"`
	PassRate           string `json:"pass_rate"`
	AvgResponseSeconds string `json:"avg_response_seconds"`
}
