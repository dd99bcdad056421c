package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stika/config"
	"stika/internal/model"
	"stika/pkg/geo"
	"stika/pkg/logger"
	"stika/pkg/metrics"
	"stika/storage/database"
)

type SessionService struct{}

var (
	sessionService *SessionService
	sessionOnce    sync.Once
)

func Session() *SessionService {
	sessionOnce.Do(func() {
		sessionService = &SessionService{}
	})
	return sessionService
}

// FindActive 查询骑手在指定围栏的 active 会话
func (s *SessionService) FindActive(tx *gorm.DB, riderID, geofenceID int64) (*model.WorkSession, error) {
	var session model.WorkSession
	err := tx.Where("rider_id = ? AND geofence_id = ? AND status = ?",
		riderID, geofenceID, model.SessionStatusActive).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}
	return &session, nil
}

// Open 由 enter 事件开启会话，已有 active 会话时直接复用
func (s *SessionService) Open(
	ctx context.Context,
	tx *gorm.DB,
	event *model.PresenceEvent,
) (*model.WorkSession, error) {
	existing, err := s.FindActive(tx, event.RiderID, event.GeofenceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	session := &model.WorkSession{
		RiderID:      event.RiderID,
		GeofenceID:   event.GeofenceID,
		StartEventID: event.ID,
		StartedAt:    event.RecordedAt,
		Status:       model.SessionStatusActive,
	}

	// 并发开启时撞部分唯一索引，读已有会话复用
	err = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(session).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create work session: %w", err)
	}
	if session.ID == 0 {
		existing, err := s.FindActive(tx, event.RiderID, event.GeofenceID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("work session conflict without active row")
		}
		return existing, nil
	}

	logger.Logger.Info("Work session opened",
		zap.Int64("session_id", session.ID),
		zap.Int64("rider_id", event.RiderID),
		zap.Int64("geofence_id", event.GeofenceID),
	)

	if m := metrics.GetMetrics(); m != nil {
		m.RecordSessionOpened(ctx)
	}

	return session, nil
}

// Close 由 exit 事件闭合会话，累计时长与里程
func (s *SessionService) Close(
	ctx context.Context,
	tx *gorm.DB,
	session *model.WorkSession,
	event *model.PresenceEvent,
) error {
	endedAt := event.RecordedAt
	distance, err := s.ComputeDistance(tx, session.RiderID, session.StartedAt, endedAt)
	if err != nil {
		return err
	}

	duration := int(endedAt.Sub(session.StartedAt).Minutes())
	if duration < 0 {
		duration = 0
	}

	updates := map[string]interface{}{
		"end_event_id":     event.ID,
		"ended_at":         endedAt,
		"duration_minutes": duration,
		"distance_km":      distance,
		"status":           model.SessionStatusCompleted,
	}
	if err := tx.Model(session).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to close work session: %w", err)
	}

	session.EndEventID = &event.ID
	session.EndedAt = &endedAt
	session.DurationMinutes = duration
	session.DistanceKm = distance
	session.Status = model.SessionStatusCompleted

	logger.Logger.Info("Work session closed",
		zap.Int64("session_id", session.ID),
		zap.Int64("rider_id", session.RiderID),
		zap.Int("duration_minutes", duration),
		zap.String("distance_km", distance.String()),
	)

	if m := metrics.GetMetrics(); m != nil {
		m.RecordSessionClosed(ctx, string(model.SessionStatusCompleted), distance.InexactFloat64())
	}

	return nil
}

// ComputeDistance 累计会话时间窗内相邻已处理采样的大圆距离（公里，3 位小数）
func (s *SessionService) ComputeDistance(
	tx *gorm.DB,
	riderID int64,
	startedAt, endedAt time.Time,
) (decimal.Decimal, error) {
	var records []model.LocationRecord
	err := tx.Select("latitude", "longitude").
		Where("rider_id = ? AND sync_status = ? AND recorded_at BETWEEN ? AND ?",
			riderID, model.SyncStatusProcessed, startedAt, endedAt).
		Order("recorded_at ASC").
		Find(&records).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load session locations: %w", err)
	}

	var meters float64
	for i := 1; i < len(records); i++ {
		meters += geo.DistanceMeters(
			geo.Point{Lat: records[i-1].Latitude, Lng: records[i-1].Longitude},
			geo.Point{Lat: records[i].Latitude, Lng: records[i].Longitude},
		)
	}

	return decimal.NewFromFloat(meters / 1000).Round(3), nil
}

// SweepAbandoned 将超时未闭合的会话标记为 abandoned，返回被处理的会话
// abandoned 会话不产生收益
func (s *SessionService) SweepAbandoned(ctx context.Context) ([]*model.WorkSession, error) {
	db := database.DB().WithContext(ctx)
	cutoff := time.Now().Add(-time.Duration(config.Cfg.SessionAbandonHours) * time.Hour)

	var sessions []*model.WorkSession
	err := db.Where("status = ? AND started_at < ?", model.SessionStatusActive, cutoff).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load stale sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	now := time.Now()
	ids := make([]int64, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}

	err = db.Model(&model.WorkSession{}).
		Where("id IN ? AND status = ?", ids, model.SessionStatusActive).
		Updates(map[string]interface{}{
			"status":   model.SessionStatusAbandoned,
			"ended_at": now,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sweep abandoned sessions: %w", err)
	}

	for _, session := range sessions {
		session.Status = model.SessionStatusAbandoned
		session.EndedAt = &now
	}

	logger.Logger.Info("Abandoned sessions swept",
		zap.Int("count", len(sessions)),
	)
	if m := metrics.GetMetrics(); m != nil {
		for range sessions {
			m.RecordSessionClosed(ctx, string(model.SessionStatusAbandoned), 0)
		}
	}

	return sessions, nil
}

// ListByRider 按游标分页查询骑手会话
func (s *SessionService) ListByRider(
	ctx context.Context,
	riderID int64,
	cursorID int64,
	limit int,
) ([]*model.WorkSession, int64, error) {
	db := database.DB().WithContext(ctx)

	q := db.Where("rider_id = ?", riderID)
	if cursorID > 0 {
		q = q.Where("id < ?", cursorID)
	}

	var sessions []*model.WorkSession
	if err := q.Order("id DESC").Limit(limit + 1).Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	var nextCursor int64
	if len(sessions) > limit {
		nextCursor = sessions[limit].ID
		sessions = sessions[:limit]
	}

	return sessions, nextCursor, nil
}
