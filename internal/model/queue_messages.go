package model

// PresenceEventMessage 围栏进出事件消息
type PresenceEventMessage struct {
	MessageID  string `json:"message_id"`
	EventID    int64  `json:"event_id"`
	RiderID    int64  `json:"rider_id"`
	GeofenceID int64  `json:"geofence_id"`
	Kind       string `json:"kind"` // enter, exit
	RecordedAt string `json:"recorded_at"`
}

// SessionClosedMessage 会话闭合消息
type SessionClosedMessage struct {
	MessageID       string `json:"message_id"`
	SessionID       int64  `json:"session_id"`
	RiderID         int64  `json:"rider_id"`
	GeofenceID      int64  `json:"geofence_id"`
	DurationMinutes int    `json:"duration_minutes"`
	DistanceKm      string `json:"distance_km"`
	Status          string `json:"status"` // completed, abandoned
}

// EarningsCalculatedMessage 收益生成消息，供活动侧记账消费
type EarningsCalculatedMessage struct {
	MessageID    string `json:"message_id"`
	EarningsID   int64  `json:"earnings_id"`
	RiderID      int64  `json:"rider_id"`
	GeofenceID   int64  `json:"geofence_id"`
	CampaignID   int64  `json:"campaign_id"`
	EarningsType string `json:"earnings_type"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	EarnedAt     string `json:"earned_at"`
}

// VerificationOutcomeMessage 验证结果消息，用于骑手通知
type VerificationOutcomeMessage struct {
	MessageID      string  `json:"message_id"`
	VerificationID int64   `json:"verification_id"`
	RiderID        int64   `json:"rider_id"`
	CampaignID     int64   `json:"campaign_id"`
	Kind           string  `json:"kind"`   // spot_check, zone_join, manual
	Status         string  `json:"status"` // passed, failed, manual_review
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason,omitempty"`
}
