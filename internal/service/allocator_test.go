package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stika/internal/model"
	pkgerrors "stika/pkg/errors"
)

func TestClaimSlotHonorsCapacity(t *testing.T) {
	db := newTestDB(t)

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, func(g *model.Geofence) {
		g.MaxRiders = 2
	})

	require.NoError(t, Allocator().ClaimSlot(db, geofence.ID))
	require.NoError(t, Allocator().ClaimSlot(db, geofence.ID))

	err := Allocator().ClaimSlot(db, geofence.ID)
	assert.ErrorIs(t, err, pkgerrors.ZoneAtCapacity)

	var reloaded model.Geofence
	require.NoError(t, db.First(&reloaded, geofence.ID).Error)
	assert.Equal(t, 2, reloaded.CurrentRiders)
}

func TestClaimSlotConcurrentJoins(t *testing.T) {
	db := newTestDB(t)

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, func(g *model.Geofence) {
		g.MaxRiders = 3
	})

	// 10 个并发抢 3 个名额，条件更新保证不超卖
	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = Allocator().ClaimSlot(db, geofence.ID)
		}(i)
	}
	wg.Wait()

	var claimed int
	for _, err := range errs {
		if err == nil {
			claimed++
		} else {
			assert.ErrorIs(t, err, pkgerrors.ZoneAtCapacity)
		}
	}
	assert.Equal(t, 3, claimed)

	var reloaded model.Geofence
	require.NoError(t, db.First(&reloaded, geofence.ID).Error)
	assert.Equal(t, 3, reloaded.CurrentRiders)
}

func TestClaimSlotUnlimitedWhenZero(t *testing.T) {
	db := newTestDB(t)

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil) // max_riders = 0

	for i := 0; i < 5; i++ {
		require.NoError(t, Allocator().ClaimSlot(db, geofence.ID))
	}

	var reloaded model.Geofence
	require.NoError(t, db.First(&reloaded, geofence.ID).Error)
	assert.Equal(t, 5, reloaded.CurrentRiders)
}

func TestReleaseSlotNeverGoesNegative(t *testing.T) {
	db := newTestDB(t)

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	require.NoError(t, Allocator().ReleaseSlot(db, geofence.ID))

	var reloaded model.Geofence
	require.NoError(t, db.First(&reloaded, geofence.ID).Error)
	assert.Equal(t, 0, reloaded.CurrentRiders)
}

func TestEligibleZonesOrdering(t *testing.T) {
	db := newTestDB(t)
	campaign := seedCampaign(t, db)

	crowded := seedGeofence(t, db, campaign.ID, func(g *model.Geofence) {
		g.Name = "crowded"
		g.Priority = 10
		g.CurrentRiders = 3
	})
	quiet := seedGeofence(t, db, campaign.ID, func(g *model.Geofence) {
		g.Name = "quiet"
		g.Priority = 10
	})
	boosted := seedGeofence(t, db, campaign.ID, func(g *model.Geofence) {
		g.Name = "boosted"
		g.Priority = 100
		g.IsHighPriority = true
	})
	full := seedGeofence(t, db, campaign.ID, func(g *model.Geofence) {
		g.Name = "full"
		g.Priority = 1
		g.MaxRiders = 1
		g.CurrentRiders = 1
	})

	zones, err := Allocator().EligibleZones(db, time.Now(), false)
	require.NoError(t, err)
	require.Len(t, zones, 3)

	// 高优先级围栏先行，其余按 priority 数值与占用排序
	assert.Equal(t, boosted.ID, zones[0].ID)
	assert.Equal(t, quiet.ID, zones[1].ID)
	assert.Equal(t, crowded.ID, zones[2].ID)

	// 降级模式把满员围栏也列出来
	zones, err = Allocator().EligibleZones(db, time.Now(), true)
	require.NoError(t, err)
	require.Len(t, zones, 4)
	assert.Equal(t, full.ID, zones[1].ID)

	best, err := Allocator().BestZone(db, time.Now(), false)
	require.NoError(t, err)
	assert.Equal(t, boosted.ID, best.ID)
}

func TestEligibleZonesExcludesExhaustedAndInactive(t *testing.T) {
	db := newTestDB(t)
	campaign := seedCampaign(t, db)

	seedGeofence(t, db, campaign.ID, func(g *model.Geofence) {
		g.Name = "spent out"
		g.Spent = g.Budget
	})
	seedGeofence(t, db, campaign.ID, func(g *model.Geofence) {
		g.Name = "paused"
		g.Status = model.GeofenceStatusPaused
	})
	seedGeofence(t, db, campaign.ID, func(g *model.Geofence) {
		g.Name = "expired"
		g.StartDate = time.Now().Add(-48 * time.Hour)
		g.EndDate = time.Now().Add(-24 * time.Hour)
	})

	zones, err := Allocator().EligibleZones(db, time.Now(), false)
	require.NoError(t, err)
	assert.Empty(t, zones)

	_, err = Allocator().BestZone(db, time.Now(), false)
	assert.ErrorIs(t, err, pkgerrors.NoEligibleZone)
}

func TestCheckEligibilityCollectsReasons(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rider := seedRider(t, db)
	campaign := seedCampaign(t, db)
	full := seedGeofence(t, db, campaign.ID, func(g *model.Geofence) {
		g.MaxRiders = 1
		g.CurrentRiders = 1
	})

	require.NoError(t, Cooldown().Claim(db, rider.ID, model.CooldownZoneJoin, time.Now(), 0))

	result, _, err := Allocator().CheckEligibility(ctx, db, rider.ID, full.ID)
	require.NoError(t, err)

	assert.False(t, result.CanJoin)
	assert.Contains(t, result.Reasons, pkgerrors.ZoneAtCapacity.Code)
	assert.Contains(t, result.Reasons, pkgerrors.CooldownActive.Code)
	assert.Greater(t, result.CooldownRemainingSeconds, 0)
	assert.Equal(t, 1, result.CurrentRiders)
	assert.Equal(t, 1, result.MaxRiders)
}

func TestCheckEligibilityPasses(t *testing.T) {
	db := newTestDB(t)

	rider := seedRider(t, db)
	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	result, loaded, err := Allocator().CheckEligibility(context.Background(), db, rider.ID, geofence.ID)
	require.NoError(t, err)
	assert.True(t, result.CanJoin)
	assert.Empty(t, result.Reasons)
	assert.Equal(t, geofence.ID, loaded.ID)
}

func TestCheckEligibilityRejectsExistingAssignment(t *testing.T) {
	db := newTestDB(t)

	rider := seedRider(t, db)
	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	assignment, err := Allocator().Assign(db, rider.ID, geofence, 1)
	require.NoError(t, err)
	require.NotNil(t, assignment)

	result, _, err := Allocator().CheckEligibility(context.Background(), db, rider.ID, geofence.ID)
	require.NoError(t, err)
	assert.False(t, result.CanJoin)
	assert.Contains(t, result.Reasons, pkgerrors.AlreadyAssigned.Code)
}

func TestCheckEligibilityUnknownGeofence(t *testing.T) {
	db := newTestDB(t)
	seedRider(t, db)

	_, _, err := Allocator().CheckEligibility(context.Background(), db, 1, 999)
	assert.ErrorIs(t, err, pkgerrors.GeofenceNotFound)
}
