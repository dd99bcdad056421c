package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stika/internal/model"
)

func TestSessionOpenReusesActive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	enter := &model.PresenceEvent{
		RiderID:    42,
		GeofenceID: 7,
		Kind:       model.PresenceEnter,
		RecordedAt: now,
	}
	require.NoError(t, db.Create(enter).Error)

	session, err := Session().Open(ctx, db, enter)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusActive, session.Status)
	assert.Equal(t, enter.ID, session.StartEventID)

	// 重复 enter 不会开第二个会话
	later := &model.PresenceEvent{
		RiderID:    42,
		GeofenceID: 7,
		Kind:       model.PresenceEnter,
		RecordedAt: now.Add(time.Minute),
	}
	require.NoError(t, db.Create(later).Error)

	reused, err := Session().Open(ctx, db, later)
	require.NoError(t, err)
	assert.Equal(t, session.ID, reused.ID)

	var count int64
	require.NoError(t, db.Model(&model.WorkSession{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSessionActiveUniqueGuard(t *testing.T) {
	db := newTestDB(t)

	first := &model.WorkSession{
		RiderID:      42,
		GeofenceID:   7,
		StartEventID: 1,
		StartedAt:    time.Now(),
		Status:       model.SessionStatusActive,
	}
	require.NoError(t, db.Create(first).Error)

	// 同骑手同围栏第二个 active 会话被唯一索引拒绝
	second := &model.WorkSession{
		RiderID:      42,
		GeofenceID:   7,
		StartEventID: 2,
		StartedAt:    time.Now(),
		Status:       model.SessionStatusActive,
	}
	assert.Error(t, db.Create(second).Error)

	// 历史会话不受限制
	closed := &model.WorkSession{
		RiderID:      42,
		GeofenceID:   7,
		StartEventID: 3,
		StartedAt:    time.Now().Add(-time.Hour),
		Status:       model.SessionStatusCompleted,
	}
	require.NoError(t, db.Create(closed).Error)
}

func TestSessionCloseComputesDurationAndDistance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Now().Add(-30 * time.Minute)

	// 相邻采样各偏移 0.001 度纬度，约 111 m 一段
	for i := 0; i < 3; i++ {
		record := &model.LocationRecord{
			MobileID:   fmt.Sprintf("sample-%d", i),
			RiderID:    42,
			Latitude:   testCenterLat + float64(i)*0.001,
			Longitude:  testCenterLng,
			RecordedAt: start.Add(time.Duration(i) * 10 * time.Minute),
			SyncedAt:   time.Now(),
			SyncStatus: model.SyncStatusProcessed,
		}
		require.NoError(t, db.Create(record).Error)
	}

	session := &model.WorkSession{
		RiderID:      42,
		GeofenceID:   7,
		StartEventID: 1,
		StartedAt:    start,
		Status:       model.SessionStatusActive,
	}
	require.NoError(t, db.Create(session).Error)

	exit := &model.PresenceEvent{
		RiderID:    42,
		GeofenceID: 7,
		Kind:       model.PresenceExit,
		RecordedAt: start.Add(30 * time.Minute),
	}
	require.NoError(t, db.Create(exit).Error)

	require.NoError(t, Session().Close(ctx, db, session, exit))

	assert.Equal(t, model.SessionStatusCompleted, session.Status)
	assert.Equal(t, 30, session.DurationMinutes)
	assert.InDelta(t, 0.222, session.DistanceKm.InexactFloat64(), 0.01)
	require.NotNil(t, session.EndEventID)
	assert.Equal(t, exit.ID, *session.EndEventID)
}

func TestSessionCloseClampsNegativeDuration(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	session := &model.WorkSession{
		RiderID:      42,
		GeofenceID:   7,
		StartEventID: 1,
		StartedAt:    now,
		Status:       model.SessionStatusActive,
	}
	require.NoError(t, db.Create(session).Error)

	// 乱序补传可能让 exit 早于会话开始
	exit := &model.PresenceEvent{
		RiderID:    42,
		GeofenceID: 7,
		Kind:       model.PresenceExit,
		RecordedAt: now.Add(-time.Minute),
	}
	require.NoError(t, db.Create(exit).Error)

	require.NoError(t, Session().Close(context.Background(), db, session, exit))
	assert.Equal(t, 0, session.DurationMinutes)
}

func TestSweepAbandoned(t *testing.T) {
	db := newTestDB(t)

	stale := &model.WorkSession{
		RiderID:      42,
		GeofenceID:   7,
		StartEventID: 1,
		StartedAt:    time.Now().Add(-13 * time.Hour),
		Status:       model.SessionStatusActive,
	}
	recent := &model.WorkSession{
		RiderID:      42,
		GeofenceID:   8,
		StartEventID: 2,
		StartedAt:    time.Now().Add(-time.Hour),
		Status:       model.SessionStatusActive,
	}
	require.NoError(t, db.Create(stale).Error)
	require.NoError(t, db.Create(recent).Error)

	swept, err := Session().SweepAbandoned(context.Background())
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, stale.ID, swept[0].ID)
	assert.Equal(t, model.SessionStatusAbandoned, swept[0].Status)

	var reloaded model.WorkSession
	require.NoError(t, db.First(&reloaded, recent.ID).Error)
	assert.Equal(t, model.SessionStatusActive, reloaded.Status)

	// 再扫一遍没有新目标
	swept, err = Session().SweepAbandoned(context.Background())
	require.NoError(t, err)
	assert.Empty(t, swept)
}
