package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stika/internal/model"
	"stika/internal/model/dto"
	pkgerrors "stika/pkg/errors"
)

func sample(mobileID string, lat, lng float64, recordedAt time.Time, working bool) dto.SyncSample {
	return dto.SyncSample{
		MobileID:   mobileID,
		Latitude:   lat,
		Longitude:  lng,
		Accuracy:   5,
		IsWorking:  working,
		RecordedAt: recordedAt,
	}
}

func TestValidateBatch(t *testing.T) {
	now := time.Now()
	duplicate := uuid.NewString()

	t.Run("empty batch", func(t *testing.T) {
		err := Tracking().validateBatch(dto.SyncBatchRequest{BatchID: "b1"})
		assert.ErrorIs(t, err, pkgerrors.InvalidBatch)
	})

	t.Run("missing batch id", func(t *testing.T) {
		err := Tracking().validateBatch(dto.SyncBatchRequest{
			Samples: []dto.SyncSample{sample(uuid.NewString(), 0, 0, now, false)},
		})
		assert.ErrorIs(t, err, pkgerrors.InvalidBatch)
	})

	t.Run("too many samples", func(t *testing.T) {
		samples := make([]dto.SyncSample, 101)
		for i := range samples {
			samples[i] = sample(uuid.NewString(), 0, 0, now, false)
		}
		err := Tracking().validateBatch(dto.SyncBatchRequest{BatchID: "b1", Samples: samples})
		assert.ErrorIs(t, err, pkgerrors.BatchTooLarge)
	})

	t.Run("duplicate mobile id", func(t *testing.T) {
		err := Tracking().validateBatch(dto.SyncBatchRequest{
			BatchID: "b1",
			Samples: []dto.SyncSample{
				sample(duplicate, 0, 0, now, false),
				sample(duplicate, 0, 0, now, false),
			},
		})
		assert.ErrorIs(t, err, pkgerrors.DuplicateInBatch)
	})
}

func TestProcessBatchReplaysDuplicateBatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	req := dto.SyncBatchRequest{
		BatchID:   uuid.NewString(),
		CreatedAt: now,
		Samples: []dto.SyncSample{
			sample(uuid.NewString(), testCenterLat, testCenterLng, now.Add(-2*time.Minute), false),
			sample(uuid.NewString(), testCenterLat, testCenterLng, now.Add(-time.Minute), false),
		},
	}

	result, err := Tracking().ProcessBatch(ctx, 42, req)
	require.NoError(t, err)
	assert.Equal(t, string(model.BatchStatusCompleted), result.Status)
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Zero(t, result.FailedCount)

	// 同一 batch_id 重放，既不重复入库也不重复处理
	replay, err := Tracking().ProcessBatch(ctx, 42, req)
	require.NoError(t, err)
	assert.Equal(t, result.ProcessedCount, replay.ProcessedCount)
	assert.Equal(t, result.Status, replay.Status)

	var locations int64
	require.NoError(t, db.Model(&model.LocationRecord{}).Count(&locations).Error)
	assert.EqualValues(t, 2, locations)

	var batches int64
	require.NoError(t, db.Model(&model.SyncBatch{}).Count(&batches).Error)
	assert.EqualValues(t, 1, batches)
}

func TestProcessBatchSkipsDuplicateSamples(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	shared := sample(uuid.NewString(), testCenterLat, testCenterLng, now.Add(-2*time.Minute), false)

	first, err := Tracking().ProcessBatch(ctx, 42, dto.SyncBatchRequest{
		BatchID:   uuid.NewString(),
		CreatedAt: now,
		Samples:   []dto.SyncSample{shared},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.ProcessedCount)

	// 客户端重传老采样混进新批次，按成功跳过
	second, err := Tracking().ProcessBatch(ctx, 42, dto.SyncBatchRequest{
		BatchID:   uuid.NewString(),
		CreatedAt: now,
		Samples: []dto.SyncSample{
			shared,
			sample(uuid.NewString(), testCenterLat, testCenterLng, now.Add(-time.Minute), false),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.BatchStatusCompleted), second.Status)
	assert.Equal(t, 1, second.ProcessedCount)
	assert.Equal(t, 1, second.SkippedCount)
	assert.Zero(t, second.FailedCount)

	var locations int64
	require.NoError(t, db.Model(&model.LocationRecord{}).Count(&locations).Error)
	assert.EqualValues(t, 2, locations)
}

func TestProcessBatchRecordsSampleErrors(t *testing.T) {
	newTestDB(t)
	now := time.Now()

	result, err := Tracking().ProcessBatch(context.Background(), 42, dto.SyncBatchRequest{
		BatchID:   uuid.NewString(),
		CreatedAt: now,
		Samples: []dto.SyncSample{
			sample(uuid.NewString(), testCenterLat, testCenterLng, now.Add(-2*time.Minute), false),
			sample(uuid.NewString(), 120, testCenterLng, now.Add(-time.Minute), false), // 纬度越界
		},
	})
	require.NoError(t, err)

	assert.Equal(t, string(model.BatchStatusPartial), result.Status)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Reason, "coordinates")
}

func TestProcessBatchPresenceFlow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rider := seedRider(t, db)
	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	require.NoError(t, db.Create(&model.GeofenceAssignment{
		GeofenceID: geofence.ID,
		RiderID:    rider.ID,
		Status:     model.AssignmentStatusActive,
	}).Error)

	start := time.Now().Add(-time.Hour)
	result, err := Tracking().ProcessBatch(ctx, rider.ID, dto.SyncBatchRequest{
		BatchID:   uuid.NewString(),
		CreatedAt: time.Now(),
		Samples: []dto.SyncSample{
			sample(uuid.NewString(), testCenterLat, testCenterLng, start, true),
			sample(uuid.NewString(), testCenterLat+0.001, testCenterLng, start.Add(10*time.Minute), true),
			sample(uuid.NewString(), testCenterLat+0.01, testCenterLng, start.Add(30*time.Minute), true),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.BatchStatusCompleted), result.Status)
	assert.Equal(t, 3, result.ProcessedCount)

	var events []model.PresenceEvent
	require.NoError(t, db.Where("rider_id = ?", rider.ID).Order("recorded_at ASC").Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, model.PresenceEnter, events[0].Kind)
	assert.Equal(t, model.PresenceExit, events[1].Kind)
	require.NotNil(t, events[1].EntryEventID)
	assert.Equal(t, events[0].ID, *events[1].EntryEventID)

	var session model.WorkSession
	require.NoError(t, db.Where("rider_id = ?", rider.ID).First(&session).Error)
	assert.Equal(t, model.SessionStatusCompleted, session.Status)
	assert.Equal(t, 30, session.DurationMinutes)
	assert.True(t, session.StartedAt.Equal(events[0].RecordedAt), "started_at = %s", session.StartedAt)
	assert.Greater(t, session.DistanceKm.InexactFloat64(), 0.0)

	var summary model.DailySummary
	require.NoError(t, db.Where("rider_id = ?", rider.ID).First(&summary).Error)
	assert.Equal(t, 3, summary.LocationCount)
	assert.Equal(t, 1, summary.SyncBatchCount)
}

func TestProcessBatchExitWhileNotWorking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rider := seedRider(t, db)
	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	require.NoError(t, db.Create(&model.GeofenceAssignment{
		GeofenceID: geofence.ID,
		RiderID:    rider.ID,
		Status:     model.AssignmentStatusActive,
	}).Error)

	start := time.Now().Add(-time.Hour)
	_, err := Tracking().ProcessBatch(ctx, rider.ID, dto.SyncBatchRequest{
		BatchID:   uuid.NewString(),
		CreatedAt: time.Now(),
		Samples: []dto.SyncSample{
			sample(uuid.NewString(), testCenterLat, testCenterLng, start, true),
		},
	})
	require.NoError(t, err)

	// 停止接单后离开围栏，exit 照样触发，会话不悬挂
	_, err = Tracking().ProcessBatch(ctx, rider.ID, dto.SyncBatchRequest{
		BatchID:   uuid.NewString(),
		CreatedAt: time.Now(),
		Samples: []dto.SyncSample{
			sample(uuid.NewString(), testCenterLat+0.01, testCenterLng, start.Add(20*time.Minute), false),
		},
	})
	require.NoError(t, err)

	var events []model.PresenceEvent
	require.NoError(t, db.Where("rider_id = ?", rider.ID).Order("id ASC").Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, model.PresenceEnter, events[0].Kind)
	assert.Equal(t, model.PresenceExit, events[1].Kind)

	var session model.WorkSession
	require.NoError(t, db.Where("rider_id = ?", rider.ID).First(&session).Error)
	assert.Equal(t, model.SessionStatusCompleted, session.Status)
	assert.Equal(t, 20, session.DurationMinutes)
}

func TestProcessBatchKeepsSubmissionOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rider := seedRider(t, db)
	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	require.NoError(t, db.Create(&model.GeofenceAssignment{
		GeofenceID: geofence.ID,
		RiderID:    rider.ID,
		Status:     model.AssignmentStatusActive,
	}).Error)

	// 提交顺序在前的采样时间戳更晚，进出判定仍按提交顺序
	now := time.Now()
	result, err := Tracking().ProcessBatch(ctx, rider.ID, dto.SyncBatchRequest{
		BatchID:   uuid.NewString(),
		CreatedAt: now,
		Samples: []dto.SyncSample{
			sample(uuid.NewString(), testCenterLat, testCenterLng, now.Add(-10*time.Minute), true),
			sample(uuid.NewString(), testCenterLat+0.01, testCenterLng, now.Add(-20*time.Minute), true),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ProcessedCount)

	var events []model.PresenceEvent
	require.NoError(t, db.Where("rider_id = ?", rider.ID).Order("id ASC").Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, model.PresenceEnter, events[0].Kind)
	assert.Equal(t, model.PresenceExit, events[1].Kind)
}

func TestGetBatch(t *testing.T) {
	newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	req := dto.SyncBatchRequest{
		BatchID:   uuid.NewString(),
		CreatedAt: now,
		Samples: []dto.SyncSample{
			sample(uuid.NewString(), testCenterLat, testCenterLng, now.Add(-time.Minute), false),
		},
	}

	_, err := Tracking().ProcessBatch(ctx, 42, req)
	require.NoError(t, err)

	result, err := Tracking().GetBatch(ctx, 42, req.BatchID)
	require.NoError(t, err)
	assert.Equal(t, req.BatchID, result.BatchID)
	assert.Equal(t, 1, result.ProcessedCount)

	// 其他骑手查不到
	_, err = Tracking().GetBatch(ctx, 43, req.BatchID)
	assert.ErrorIs(t, err, pkgerrors.BatchNotFound)

	_, err = Tracking().GetBatch(ctx, 42, fmt.Sprintf("missing-%d", now.Unix()))
	assert.ErrorIs(t, err, pkgerrors.BatchNotFound)
}
