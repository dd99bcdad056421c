package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stika/internal/model"
)

func TestAddLocationsAccumulates(t *testing.T) {
	db := newTestDB(t)
	day := time.Now()

	require.NoError(t, Summary().AddLocations(db, 42, day, 10, dec(t, "1.5")))
	require.NoError(t, Summary().AddLocations(db, 42, day, 5, dec(t, "0.5")))

	var summary model.DailySummary
	require.NoError(t, db.Where("rider_id = ?", 42).First(&summary).Error)
	assert.Equal(t, 15, summary.LocationCount)
	assert.True(t, summary.DistanceKm.Equal(dec(t, "2")), "distance_km = %s", summary.DistanceKm)

	var count int64
	require.NoError(t, db.Model(&model.DailySummary{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAddSessionClosedBuckets(t *testing.T) {
	db := newTestDB(t)
	day := time.Now()

	require.NoError(t, Summary().AddSessionClosed(db, 42, day, model.SessionStatusCompleted, 90))
	require.NoError(t, Summary().AddSessionClosed(db, 42, day, model.SessionStatusAbandoned, 30))

	var summary model.DailySummary
	require.NoError(t, db.Where("rider_id = ?", 42).First(&summary).Error)
	assert.Equal(t, 2, summary.SessionsTotal)
	assert.Equal(t, 1, summary.SessionsCompleted)
	assert.Equal(t, 1, summary.SessionsAbandoned)
	assert.True(t, summary.WorkingHours.Equal(dec(t, "2")), "working_hours = %s", summary.WorkingHours)
}

func TestAddEarningsRecordSplitsHybrid(t *testing.T) {
	db := newTestDB(t)

	record := &model.EarningsRecord{
		RiderID:      42,
		GeofenceID:   7,
		EarningsType: model.EarningsTypeHybrid,
		Amount:       dec(t, "4000"),
		DistanceKm:   dec(t, "12.5"),
		RateApplied:  dec(t, "200"),
		EarnedAt:     time.Now(),
	}

	require.NoError(t, Summary().AddEarningsRecord(db, record))

	var summary model.DailySummary
	require.NoError(t, db.Where("rider_id = ?", 42).First(&summary).Error)
	assert.True(t, summary.EarningsDistance.Equal(dec(t, "2500")), "earnings_distance = %s", summary.EarningsDistance)
	assert.True(t, summary.EarningsTime.Equal(dec(t, "1500")), "earnings_time = %s", summary.EarningsTime)
	assert.True(t, summary.EarningsTotal.Equal(dec(t, "4000")), "earnings_total = %s", summary.EarningsTotal)
}

func TestAddEarningsRecordSimpleKinds(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	records := []*model.EarningsRecord{
		{RiderID: 42, GeofenceID: 7, EarningsType: model.EarningsTypeDistance, Amount: dec(t, "100"), EarnedAt: now},
		{RiderID: 42, GeofenceID: 7, EarningsType: model.EarningsTypeTime, Amount: dec(t, "200"), EarnedAt: now},
		{RiderID: 42, GeofenceID: 7, EarningsType: model.EarningsTypeFixed, Amount: dec(t, "300"), EarnedAt: now},
		{RiderID: 42, GeofenceID: 7, EarningsType: model.EarningsTypeBonus, Amount: dec(t, "50"), EarnedAt: now},
	}
	for _, record := range records {
		require.NoError(t, Summary().AddEarningsRecord(db, record))
	}

	var summary model.DailySummary
	require.NoError(t, db.Where("rider_id = ?", 42).First(&summary).Error)
	assert.True(t, summary.EarningsDistance.Equal(dec(t, "100")))
	assert.True(t, summary.EarningsTime.Equal(dec(t, "200")))
	assert.True(t, summary.EarningsFixed.Equal(dec(t, "300")))
	assert.True(t, summary.EarningsOther.Equal(dec(t, "50")))
	assert.True(t, summary.EarningsTotal.Equal(dec(t, "650")), "earnings_total = %s", summary.EarningsTotal)
}

func TestAddSyncBatchKeepsLatestRate(t *testing.T) {
	db := newTestDB(t)
	day := time.Now()

	require.NoError(t, Summary().AddSyncBatch(db, 42, day, dec(t, "80")))
	require.NoError(t, Summary().AddSyncBatch(db, 42, day, dec(t, "100")))

	var summary model.DailySummary
	require.NoError(t, db.Where("rider_id = ?", 42).First(&summary).Error)
	assert.Equal(t, 2, summary.SyncBatchCount)
	// 成功率记录最近一次，不做累加
	assert.True(t, summary.SyncSuccessRate.Equal(dec(t, "100")), "sync_success_rate = %s", summary.SyncSuccessRate)
}

func TestAddVerificationCounters(t *testing.T) {
	db := newTestDB(t)
	day := time.Now()

	require.NoError(t, Summary().AddVerification(db, 42, day, true))
	require.NoError(t, Summary().AddVerification(db, 42, day, false))

	var summary model.DailySummary
	require.NoError(t, db.Where("rider_id = ?", 42).First(&summary).Error)
	assert.Equal(t, 2, summary.VerificationsTotal)
	assert.Equal(t, 1, summary.VerificationsPassed)
}

func TestSummarySeparateDays(t *testing.T) {
	db := newTestDB(t)
	today := time.Now()
	yesterday := today.AddDate(0, 0, -1)

	require.NoError(t, Summary().AddLocations(db, 42, today, 1, dec(t, "1")))
	require.NoError(t, Summary().AddLocations(db, 42, yesterday, 2, dec(t, "2")))

	var count int64
	require.NoError(t, db.Model(&model.DailySummary{}).Where("rider_id = ?", 42).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}
