package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stika/config"
	"stika/internal/model"
	"stika/pkg/geo"
	"stika/pkg/logger"
	"stika/pkg/metrics"
)

// 进出判定只依赖最近一次事件，采样按客户端提交顺序处理

type PresenceService struct{}

var (
	presenceService *PresenceService
	presenceOnce    sync.Once
)

func Presence() *PresenceService {
	presenceOnce.Do(func() {
		presenceService = &PresenceService{}
	})
	return presenceService
}

// Contains 判断坐标是否在围栏内，配置了多边形边界时优先按多边形判定
func (s *PresenceService) Contains(g *model.Geofence, pt geo.Point) bool {
	ring := boundaryRing(g)
	if len(ring) >= 3 {
		return geo.InsidePolygon(pt, ring)
	}

	center := geo.Point{Lat: g.CenterLat, Lng: g.CenterLng}
	return geo.InsideCircle(pt, center, g.RadiusMeters, config.Cfg.GeofenceToleranceMeters)
}

// ResolveTransition 根据当前位置与最近事件推导状态迁移
// 进入：在围栏内且（无历史事件或最近一次为 exit）
// 离开：在围栏外且最近一次为 enter
func (s *PresenceService) ResolveTransition(inside bool, last *model.PresenceEvent) (model.PresenceEventKind, bool) {
	if inside {
		if last == nil || last.Kind == model.PresenceExit {
			return model.PresenceEnter, true
		}
		return "", false
	}

	if last != nil && last.Kind == model.PresenceEnter {
		return model.PresenceExit, true
	}
	return "", false
}

// LastEvent 查询骑手在指定围栏的最近一次进出事件
func (s *PresenceService) LastEvent(tx *gorm.DB, riderID, geofenceID int64) (*model.PresenceEvent, error) {
	var event model.PresenceEvent
	err := tx.Where("rider_id = ? AND geofence_id = ?", riderID, geofenceID).
		Order("recorded_at DESC, id DESC").
		First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query last presence event: %w", err)
	}
	return &event, nil
}

// RecordTransition 对单条采样执行进出判定，发生迁移时写入事件
// exit 事件回指配对的 enter 事件，返回 nil 表示无迁移
func (s *PresenceService) RecordTransition(
	ctx context.Context,
	tx *gorm.DB,
	g *model.Geofence,
	loc *model.LocationRecord,
) (*model.PresenceEvent, error) {
	pt := geo.Point{Lat: loc.Latitude, Lng: loc.Longitude}
	inside := s.Contains(g, pt)

	last, err := s.LastEvent(tx, loc.RiderID, g.ID)
	if err != nil {
		return nil, err
	}

	kind, ok := s.ResolveTransition(inside, last)
	if !ok {
		return nil, nil
	}

	event := &model.PresenceEvent{
		RiderID:          loc.RiderID,
		GeofenceID:       g.ID,
		Kind:             kind,
		Latitude:         loc.Latitude,
		Longitude:        loc.Longitude,
		RecordedAt:       loc.RecordedAt,
		SourceLocationID: loc.ID,
	}
	if kind == model.PresenceExit {
		event.EntryEventID = &last.ID
	}

	if err := tx.Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to create presence event: %w", err)
	}

	logger.Logger.Debug("Presence transition recorded",
		zap.Int64("rider_id", loc.RiderID),
		zap.Int64("geofence_id", g.ID),
		zap.String("kind", string(kind)),
	)

	if m := metrics.GetMetrics(); m != nil {
		m.RecordPresenceEvent(ctx, string(kind))
	}

	return event, nil
}

// boundaryRing 解析围栏的多边形边界，为空或非法时返回 nil
func boundaryRing(g *model.Geofence) []geo.Point {
	if len(g.Boundary) == 0 {
		return nil
	}

	var ring []geo.Point
	if err := json.Unmarshal(g.Boundary, &ring); err != nil {
		logger.Logger.Warn("Invalid geofence boundary, falling back to circle",
			zap.Int64("geofence_id", g.ID),
			zap.Error(err),
		)
		return nil
	}
	return ring
}
