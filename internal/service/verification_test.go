package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stika/internal/model"
	"stika/internal/model/dto"
	pkgerrors "stika/pkg/errors"
)

func TestJoinZoneFullFlow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rider := seedRider(t, db)
	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, func(g *model.Geofence) {
		g.MaxRiders = 5
	})

	req := dto.JoinZoneRequest{
		GeofenceID: geofence.ID,
		Latitude:   testCenterLat,
		Longitude:  testCenterLng,
		Accuracy:   5,
	}

	result, err := Verification().JoinZone(ctx, rider.ID, req, testPhoto(t))
	require.NoError(t, err)

	assert.Equal(t, string(model.VerificationStatusPassed), result.Status)
	assert.EqualValues(t, 95, result.Confidence)
	require.NotNil(t, result.AssignmentID)
	assert.Equal(t, 1, result.CurrentRiders)
	assert.Equal(t, 5, result.MaxRiders)

	var reloaded model.Geofence
	require.NoError(t, db.First(&reloaded, geofence.ID).Error)
	assert.Equal(t, 1, reloaded.CurrentRiders)

	var verification model.VerificationRequest
	require.NoError(t, db.First(&verification, result.VerificationID).Error)
	assert.Equal(t, model.VerificationZoneJoin, verification.Kind)
	assert.Equal(t, model.VerificationStatusPassed, verification.Status)
	assert.True(t, verification.ConfidenceScore.Equal(decimal.NewFromInt(95)))

	var assignment model.GeofenceAssignment
	require.NoError(t, db.First(&assignment, *result.AssignmentID).Error)
	assert.Equal(t, model.AssignmentStatusActive, assignment.Status)

	// 加入动作进入冷却，立刻重试被拒
	_, err = Verification().JoinZone(ctx, rider.ID, req, testPhoto(t))
	assert.ErrorIs(t, err, pkgerrors.CooldownActive)
}

func TestJoinZoneOutsideZone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rider := seedRider(t, db)
	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	_, err := Verification().JoinZone(ctx, rider.ID, dto.JoinZoneRequest{
		GeofenceID: geofence.ID,
		Latitude:   testCenterLat + 0.01, // 围栏外约 1.1 km
		Longitude:  testCenterLng,
		Accuracy:   5,
	}, testPhoto(t))
	assert.ErrorIs(t, err, pkgerrors.OutOfZone)

	// 失败尝试留痕并触发冷却
	var verification model.VerificationRequest
	require.NoError(t, db.Where("rider_id = ?", rider.ID).First(&verification).Error)
	assert.Equal(t, model.VerificationStatusFailed, verification.Status)

	remaining, err := Cooldown().Remaining(db, rider.ID, model.CooldownZoneJoin)
	require.NoError(t, err)
	assert.Greater(t, remaining, 0)
}

func TestJoinZoneDuplicateWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rider := seedRider(t, db)
	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	passed := &model.VerificationRequest{
		RiderID:         rider.ID,
		CampaignID:      campaign.ID,
		GeofenceID:      &geofence.ID,
		Kind:            model.VerificationZoneJoin,
		Timestamp:       time.Now(),
		Status:          model.VerificationStatusPassed,
		ConfidenceScore: decimal.NewFromInt(95),
	}
	require.NoError(t, db.Create(passed).Error)

	result, err := Verification().JoinZone(ctx, rider.ID, dto.JoinZoneRequest{
		GeofenceID: geofence.ID,
		Latitude:   testCenterLat,
		Longitude:  testCenterLng,
		Accuracy:   5,
	}, testPhoto(t))
	require.NoError(t, err)

	assert.Equal(t, "duplicate", result.Status)
	assert.Equal(t, passed.ID, result.VerificationID)

	// 幂等重放不占用新名额
	var reloaded model.Geofence
	require.NoError(t, db.First(&reloaded, geofence.ID).Error)
	assert.Equal(t, 0, reloaded.CurrentRiders)
}

func TestRequestSpotCheckNoDuplicatePending(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	verification, err := Verification().RequestSpotCheck(ctx, 42, campaign.ID, geofence.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationStatusPending, verification.Status)
	assert.Equal(t, model.VerificationSpotCheck, verification.Kind)

	_, err = Verification().RequestSpotCheck(ctx, 42, campaign.ID, geofence.ID)
	assert.ErrorIs(t, err, pkgerrors.VerificationPending)
}

func TestPendingComputesDeadline(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	verification, err := Verification().RequestSpotCheck(ctx, 42, campaign.ID, geofence.ID)
	require.NoError(t, err)

	items, err := Verification().Pending(ctx, 42)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, verification.ID, items[0].VerificationID)
	assert.WithinDuration(t, verification.CreatedAt.Add(10*time.Minute), items[0].Deadline, time.Second)
	assert.Greater(t, items[0].SecondsRemaining, 0)
	assert.LessOrEqual(t, items[0].SecondsRemaining, 600)
}

func TestSubmitSpotCheckPasses(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rider := seedRider(t, db)
	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	session := &model.WorkSession{
		RiderID:      rider.ID,
		GeofenceID:   geofence.ID,
		StartEventID: 1,
		StartedAt:    time.Now().Add(-2 * time.Hour),
		Status:       model.SessionStatusActive,
	}
	require.NoError(t, db.Create(session).Error)

	verification, err := Verification().RequestSpotCheck(ctx, rider.ID, campaign.ID, geofence.ID)
	require.NoError(t, err)

	result, err := Verification().Submit(ctx, rider.ID, verification.ID, dto.SubmitVerificationRequest{
		Latitude:  testCenterLat,
		Longitude: testCenterLng,
		Accuracy:  5,
	}, testPhoto(t))
	require.NoError(t, err)

	assert.Equal(t, string(model.VerificationStatusPassed), result.Status)
	assert.EqualValues(t, 90, result.Confidence)

	// 通过的抽查计入当前会话
	var reloaded model.WorkSession
	require.NoError(t, db.First(&reloaded, session.ID).Error)
	assert.Equal(t, 1, reloaded.VerificationCount)
}

func TestSubmitAfterDeadlineFails(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	verification, err := Verification().RequestSpotCheck(ctx, 42, campaign.ID, geofence.ID)
	require.NoError(t, err)

	stale := time.Now().Add(-11 * time.Minute)
	require.NoError(t, db.Model(verification).Update("created_at", stale).Error)

	_, err = Verification().Submit(ctx, 42, verification.ID, dto.SubmitVerificationRequest{
		Latitude:  testCenterLat,
		Longitude: testCenterLng,
		Accuracy:  5,
	}, testPhoto(t))
	assert.ErrorIs(t, err, pkgerrors.VerificationExpired)

	var reloaded model.VerificationRequest
	require.NoError(t, db.First(&reloaded, verification.ID).Error)
	assert.Equal(t, model.VerificationStatusFailed, reloaded.Status)
}

func TestSubmitUnknownVerification(t *testing.T) {
	newTestDB(t)

	_, err := Verification().Submit(context.Background(), 42, 999, dto.SubmitVerificationRequest{}, testPhoto(t))
	assert.ErrorIs(t, err, pkgerrors.VerificationNotFound)
}

func TestExpireOverdue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	overdue, err := Verification().RequestSpotCheck(ctx, 42, campaign.ID, geofence.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(overdue).Update("created_at", time.Now().Add(-11*time.Minute)).Error)

	fresh, err := Verification().RequestSpotCheck(ctx, 43, campaign.ID, geofence.ID)
	require.NoError(t, err)

	expired, err := Verification().ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, expired)

	var failed model.VerificationRequest
	require.NoError(t, db.First(&failed, overdue.ID).Error)
	assert.Equal(t, model.VerificationStatusFailed, failed.Status)

	var pending model.VerificationRequest
	require.NoError(t, db.First(&pending, fresh.ID).Error)
	assert.Equal(t, model.VerificationStatusPending, pending.Status)
}

func TestVerificationStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now()
	rows := []*model.VerificationRequest{
		{RiderID: 42, CampaignID: 1, Kind: model.VerificationSpotCheck, Status: model.VerificationStatusPassed, Timestamp: now},
		{RiderID: 42, CampaignID: 1, Kind: model.VerificationSpotCheck, Status: model.VerificationStatusFailed, Timestamp: now},
		{RiderID: 42, CampaignID: 1, Kind: model.VerificationSpotCheck, Status: model.VerificationStatusPending, Timestamp: now},
	}
	for _, row := range rows {
		require.NoError(t, db.Create(row).Error)
		require.NoError(t, db.Model(row).Update("created_at", now.Add(-time.Minute)).Error)
		require.NoError(t, db.Model(row).Update("timestamp", now).Error)
	}

	stats, err := Verification().Stats(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Passed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, "50", stats.PassRate)

	avg, err := strconv.ParseFloat(stats.AvgResponseSeconds, 64)
	require.NoError(t, err)
	assert.InDelta(t, 60, avg, 2)
}
