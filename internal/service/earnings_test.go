package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stika/internal/model"
	"stika/internal/model/dto"
	pkgerrors "stika/pkg/errors"
	"stika/utils"
)

func TestComputeAmounts(t *testing.T) {
	cases := []struct {
		name            string
		rateType        model.RateType
		distanceKm      string
		durationMinutes int
		wantAmount      string
		wantKind        model.EarningsType
		wantRate        string
	}{
		{
			name:            "per km",
			rateType:        model.RateTypePerKm,
			distanceKm:      "12.5",
			durationMinutes: 180,
			wantAmount:      "2500",
			wantKind:        model.EarningsTypeDistance,
			wantRate:        "200",
		},
		{
			name:            "per hour",
			rateType:        model.RateTypePerHour,
			distanceKm:      "12.5",
			durationMinutes: 180,
			wantAmount:      "1500",
			wantKind:        model.EarningsTypeTime,
			wantRate:        "500",
		},
		{
			name:            "fixed daily",
			rateType:        model.RateTypeFixedDaily,
			distanceKm:      "12.5",
			durationMinutes: 180,
			wantAmount:      "3000",
			wantKind:        model.EarningsTypeFixed,
			wantRate:        "3000",
		},
		{
			// 12.5 km * 200 + 3 h * 500 = 4000
			name:            "hybrid",
			rateType:        model.RateTypeHybrid,
			distanceKm:      "12.5",
			durationMinutes: 180,
			wantAmount:      "4000",
			wantKind:        model.EarningsTypeHybrid,
			wantRate:        "200",
		},
		{
			name:            "per hour rounds to 2dp",
			rateType:        model.RateTypePerHour,
			distanceKm:      "0",
			durationMinutes: 50,
			wantAmount:      "416.67",
			wantKind:        model.EarningsTypeTime,
			wantRate:        "500",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			geofence := &model.Geofence{
				RateType:       tc.rateType,
				RatePerKm:      dec(t, "200"),
				RatePerHour:    dec(t, "500"),
				FixedDailyRate: dec(t, "3000"),
			}

			amount, kind, rate, err := Earnings().Compute(geofence, dec(t, tc.distanceKm), tc.durationMinutes)
			require.NoError(t, err)
			assert.Equal(t, tc.wantKind, kind)
			assert.True(t, amount.Equal(dec(t, tc.wantAmount)), "amount = %s", amount)
			assert.True(t, rate.Equal(dec(t, tc.wantRate)), "rate = %s", rate)
		})
	}
}

func TestComputeUnknownRate(t *testing.T) {
	geofence := &model.Geofence{RateType: "per_stop"}

	_, _, _, err := Earnings().Compute(geofence, dec(t, "1"), 10)
	assert.ErrorIs(t, err, pkgerrors.EarningsUnknownRate)
}

func TestCalculateForSessionIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	endedAt := time.Now()
	session := &model.WorkSession{
		RiderID:         42,
		GeofenceID:      geofence.ID,
		StartEventID:    1,
		StartedAt:       endedAt.Add(-time.Hour),
		EndedAt:         &endedAt,
		DurationMinutes: 60,
		DistanceKm:      dec(t, "10"),
		Status:          model.SessionStatusCompleted,
	}
	require.NoError(t, db.Create(session).Error)

	record, err := Earnings().CalculateForSession(ctx, db, session)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, model.EarningsTypeDistance, record.EarningsType)
	assert.True(t, record.Amount.Equal(dec(t, "2000")), "amount = %s", record.Amount)

	// 同一会话重复结算返回已有记录
	again, err := Earnings().CalculateForSession(ctx, db, session)
	require.NoError(t, err)
	assert.Equal(t, record.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&model.EarningsRecord{}).Where("session_id = ?", session.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var reloaded model.WorkSession
	require.NoError(t, db.First(&reloaded, session.ID).Error)
	assert.True(t, reloaded.EarningsAmount.Equal(dec(t, "2000")))
}

func TestCalculateForSessionSkipsAbandoned(t *testing.T) {
	db := newTestDB(t)

	session := &model.WorkSession{
		RiderID:      42,
		GeofenceID:   1,
		StartEventID: 1,
		StartedAt:    time.Now().Add(-time.Hour),
		Status:       model.SessionStatusAbandoned,
	}
	require.NoError(t, db.Create(session).Error)

	record, err := Earnings().CalculateForSession(context.Background(), db, session)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestCalculateForSessionHybridMetadata(t *testing.T) {
	db := newTestDB(t)

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, func(g *model.Geofence) {
		g.RateType = model.RateTypeHybrid
	})

	endedAt := time.Now()
	session := &model.WorkSession{
		RiderID:         42,
		GeofenceID:      geofence.ID,
		StartEventID:    1,
		StartedAt:       endedAt.Add(-3 * time.Hour),
		EndedAt:         &endedAt,
		DurationMinutes: 180,
		DistanceKm:      dec(t, "12.5"),
		Status:          model.SessionStatusCompleted,
	}
	require.NoError(t, db.Create(session).Error)

	record, err := Earnings().CalculateForSession(context.Background(), db, session)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.True(t, record.Amount.Equal(dec(t, "4000")), "amount = %s", record.Amount)
	assert.True(t, record.RateApplied.Equal(geofence.RatePerKm))

	var meta map[string]string
	require.NoError(t, json.Unmarshal(record.Metadata, &meta))
	assert.Equal(t, "200", meta["rate_per_km"])
	assert.Equal(t, "500", meta["rate_per_hour"])
}

func TestManualEarningsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	distance := 5.0
	req := dto.ManualEarningsRequest{
		MobileID:   uuid.NewString(),
		GeofenceID: geofence.ID,
		DistanceKm: &distance,
	}

	record, err := Earnings().Manual(ctx, 42, req)
	require.NoError(t, err)
	assert.True(t, record.Amount.Equal(dec(t, "1000")), "amount = %s", record.Amount)

	again, err := Earnings().Manual(ctx, 42, req)
	require.NoError(t, err)
	assert.Equal(t, record.ID, again.ID)

	// 幂等重放不会二次叠加当日汇总
	var summary model.DailySummary
	require.NoError(t, db.Where("rider_id = ?", 42).First(&summary).Error)
	assert.True(t, summary.EarningsTotal.Equal(dec(t, "1000")), "earnings_total = %s", summary.EarningsTotal)
	assert.True(t, summary.EarningsDistance.Equal(dec(t, "1000")))
}

func TestManualEarningsBonusKind(t *testing.T) {
	db := newTestDB(t)

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	distance := 2.0
	record, err := Earnings().Manual(context.Background(), 42, dto.ManualEarningsRequest{
		MobileID:     uuid.NewString(),
		GeofenceID:   geofence.ID,
		EarningsType: string(model.EarningsTypeBonus),
		DistanceKm:   &distance,
	})
	require.NoError(t, err)

	// 金额按围栏公式算，类型按请求记录
	assert.Equal(t, model.EarningsTypeBonus, record.EarningsType)
	assert.True(t, record.Amount.Equal(dec(t, "400")), "amount = %s", record.Amount)

	var summary model.DailySummary
	require.NoError(t, db.Where("rider_id = ?", 42).First(&summary).Error)
	assert.True(t, summary.EarningsOther.Equal(dec(t, "400")))
}

func TestManualEarningsBackdated(t *testing.T) {
	db := newTestDB(t)

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	distance := 5.0
	earnedAt := time.Now().AddDate(0, 0, -1)
	record, err := Earnings().Manual(context.Background(), 42, dto.ManualEarningsRequest{
		MobileID:               uuid.NewString(),
		GeofenceID:             geofence.ID,
		DistanceKm:             &distance,
		EarnedAt:               &earnedAt,
		VerificationsCompleted: 2,
	})
	require.NoError(t, err)

	assert.WithinDuration(t, earnedAt, record.EarnedAt, time.Second)
	assert.Equal(t, 2, record.VerificationsCompleted)

	// 补传收益落在发生日的汇总，而不是今天
	var summary model.DailySummary
	require.NoError(t, db.Where("rider_id = ?", 42).First(&summary).Error)
	assert.Equal(t, utils.DayStart(earnedAt).Unix(), summary.Date.Unix())
	assert.True(t, summary.EarningsTotal.Equal(dec(t, "1000")), "earnings_total = %s", summary.EarningsTotal)
}

func TestManualEarningsRejectsBadMobileID(t *testing.T) {
	newTestDB(t)

	_, err := Earnings().Manual(context.Background(), 42, dto.ManualEarningsRequest{
		MobileID:   "not-a-uuid",
		GeofenceID: 1,
	})
	assert.ErrorIs(t, err, pkgerrors.InvalidBatch)
}
