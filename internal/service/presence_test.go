package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"stika/internal/model"
	"stika/pkg/geo"
)

func TestResolveTransition(t *testing.T) {
	enter := &model.PresenceEvent{Kind: model.PresenceEnter}
	exit := &model.PresenceEvent{Kind: model.PresenceExit}

	cases := []struct {
		name     string
		inside   bool
		last     *model.PresenceEvent
		wantKind model.PresenceEventKind
		wantOK   bool
	}{
		{name: "first sample inside", inside: true, last: nil, wantKind: model.PresenceEnter, wantOK: true},
		{name: "re-entry after exit", inside: true, last: exit, wantKind: model.PresenceEnter, wantOK: true},
		{name: "still inside", inside: true, last: enter, wantOK: false},
		{name: "leaving", inside: false, last: enter, wantKind: model.PresenceExit, wantOK: true},
		{name: "first sample outside", inside: false, last: nil, wantOK: false},
		{name: "still outside", inside: false, last: exit, wantOK: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, ok := Presence().ResolveTransition(tc.inside, tc.last)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantKind, kind)
			}
		})
	}
}

func TestContainsCircleWithTolerance(t *testing.T) {
	geofence := &model.Geofence{
		CenterLat:    testCenterLat,
		CenterLng:    testCenterLng,
		RadiusMeters: 300,
	}

	assert.True(t, Presence().Contains(geofence, geo.Point{Lat: testCenterLat, Lng: testCenterLng}))

	// 约 333 m：超出半径但在 50 m 容差内
	assert.True(t, Presence().Contains(geofence, geo.Point{Lat: testCenterLat + 0.003, Lng: testCenterLng}))

	// 约 444 m：容差外
	assert.False(t, Presence().Contains(geofence, geo.Point{Lat: testCenterLat + 0.004, Lng: testCenterLng}))
}

func TestContainsPolygonBoundary(t *testing.T) {
	boundary := []byte(`[
		{"lat":6.5144,"lng":3.3692},
		{"lat":6.5144,"lng":3.3892},
		{"lat":6.5344,"lng":3.3892},
		{"lat":6.5344,"lng":3.3692}
	]`)

	geofence := &model.Geofence{
		CenterLat:    testCenterLat,
		CenterLng:    testCenterLng,
		RadiusMeters: 300,
		Boundary:     datatypes.JSON(boundary),
	}

	assert.True(t, Presence().Contains(geofence, geo.Point{Lat: testCenterLat, Lng: testCenterLng}))
	assert.False(t, Presence().Contains(geofence, geo.Point{Lat: testCenterLat + 0.02, Lng: testCenterLng}))
}

func TestContainsInvalidBoundaryFallsBackToCircle(t *testing.T) {
	geofence := &model.Geofence{
		CenterLat:    testCenterLat,
		CenterLng:    testCenterLng,
		RadiusMeters: 300,
		Boundary:     datatypes.JSON([]byte(`[1,2`)),
	}

	assert.True(t, Presence().Contains(geofence, geo.Point{Lat: testCenterLat, Lng: testCenterLng}))
}

func TestRecordTransitionPairsExitWithEnter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	campaign := seedCampaign(t, db)
	geofence := seedGeofence(t, db, campaign.ID, nil)

	now := time.Now()
	inside := &model.LocationRecord{
		MobileID:   "inside-1",
		RiderID:    42,
		Latitude:   testCenterLat,
		Longitude:  testCenterLng,
		RecordedAt: now,
		SyncedAt:   now,
	}
	require.NoError(t, db.Create(inside).Error)

	enter, err := Presence().RecordTransition(ctx, db, geofence, inside)
	require.NoError(t, err)
	require.NotNil(t, enter)
	assert.Equal(t, model.PresenceEnter, enter.Kind)
	assert.Nil(t, enter.EntryEventID)

	outside := &model.LocationRecord{
		MobileID:   "outside-1",
		RiderID:    42,
		Latitude:   testCenterLat + 0.01,
		Longitude:  testCenterLng,
		RecordedAt: now.Add(10 * time.Minute),
		SyncedAt:   now,
	}
	require.NoError(t, db.Create(outside).Error)

	exit, err := Presence().RecordTransition(ctx, db, geofence, outside)
	require.NoError(t, err)
	require.NotNil(t, exit)
	assert.Equal(t, model.PresenceExit, exit.Kind)
	require.NotNil(t, exit.EntryEventID)
	assert.Equal(t, enter.ID, *exit.EntryEventID)

	// 持续在外不再产生事件
	stillOutside := &model.LocationRecord{
		MobileID:   "outside-2",
		RiderID:    42,
		Latitude:   testCenterLat + 0.01,
		Longitude:  testCenterLng,
		RecordedAt: now.Add(20 * time.Minute),
		SyncedAt:   now,
	}
	require.NoError(t, db.Create(stillOutside).Error)

	none, err := Presence().RecordTransition(ctx, db, geofence, stillOutside)
	require.NoError(t, err)
	assert.Nil(t, none)
}
