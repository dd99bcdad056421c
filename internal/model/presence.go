package model

import "time"

// PresenceEventKind 围栏进出事件类型
type PresenceEventKind string

const (
	PresenceEnter PresenceEventKind = "enter"
	PresenceExit  PresenceEventKind = "exit"
)

// PresenceEvent 围栏进出事件，只追加不修改
type PresenceEvent struct {
	BaseModel
	RiderID          int64             `gorm:"not null;index:idx_presence_events_rider_geofence" json:"rider_id"`
	GeofenceID       int64             `gorm:"not null;index:idx_presence_events_rider_geofence" json:"geofence_id"`
	Kind             PresenceEventKind `gorm:"type:varchar(8);not null" json:"kind"`
	Latitude         float64           `gorm:"not null" json:"latitude"`
	Longitude        float64           `gorm:"not null" json:"longitude"`
	RecordedAt       time.Time         `gorm:"not null;index" json:"recorded_at"`
	SourceLocationID int64             `gorm:"not null" json:"source_location_id"`
	// exit 事件回指配对的 enter 事件
	EntryEventID *int64 `json:"entry_event_id,omitempty"`
}

// TableName 指定表名
func (PresenceEvent) TableName() string {
	return "presence_events"
}
