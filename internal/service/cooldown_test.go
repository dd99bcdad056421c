package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stika/internal/model"
	pkgerrors "stika/pkg/errors"
)

func TestCooldownWindowPerKind(t *testing.T) {
	assert.Equal(t, 60*time.Second, Cooldown().Window(model.CooldownZoneJoin))
	assert.Equal(t, 300*time.Second, Cooldown().Window(model.CooldownSpotCheck))
	assert.Equal(t, time.Duration(0), Cooldown().Window(model.CooldownManual))
}

func TestCooldownClaimAndRemaining(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	remaining, err := Cooldown().Remaining(db, 42, model.CooldownZoneJoin)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	require.NoError(t, Cooldown().Claim(db, 42, model.CooldownZoneJoin, now, 0))

	remaining, err = Cooldown().Remaining(db, 42, model.CooldownZoneJoin)
	require.NoError(t, err)
	assert.Greater(t, remaining, 0)
	assert.LessOrEqual(t, remaining, 60)

	// 窗口内第二次占用被拒，尝试数不变
	err = Cooldown().Claim(db, 42, model.CooldownZoneJoin, time.Now(), 0)
	assert.ErrorIs(t, err, pkgerrors.CooldownActive)

	var record model.CooldownRecord
	require.NoError(t, db.Where("rider_id = ? AND kind = ?", 42, model.CooldownZoneJoin).First(&record).Error)
	assert.Equal(t, 1, record.Attempts)

	// 其他动作互不影响
	remaining, err = Cooldown().Remaining(db, 42, model.CooldownSpotCheck)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestCooldownClaimSingleWinner(t *testing.T) {
	db := newTestDB(t)

	// 并发占用同一窗口只放行一个
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = Cooldown().Claim(db, 42, model.CooldownZoneJoin, time.Now(), 0)
		}(i)
	}
	wg.Wait()

	var admitted, rejected int
	for _, err := range errs {
		if err == nil {
			admitted++
		} else if assert.ErrorIs(t, err, pkgerrors.CooldownActive) {
			rejected++
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, 1, rejected)
}

func TestCooldownClaimCountsAttempts(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	// 零窗口动作每次都放行，尝试数累加在同一行
	require.NoError(t, Cooldown().Claim(db, 42, model.CooldownManual, now, 0))
	require.NoError(t, Cooldown().Claim(db, 42, model.CooldownManual, now.Add(time.Second), 0))

	var record model.CooldownRecord
	require.NoError(t, db.Where("rider_id = ? AND kind = ?", 42, model.CooldownManual).First(&record).Error)
	assert.Equal(t, 2, record.Attempts)

	var count int64
	require.NoError(t, db.Model(&model.CooldownRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCooldownClaimExtraSeconds(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, Cooldown().Claim(db, 42, model.CooldownManual, time.Now(), 30))

	remaining, err := Cooldown().Remaining(db, 42, model.CooldownManual)
	require.NoError(t, err)
	assert.Greater(t, remaining, 0)
	assert.LessOrEqual(t, remaining, 30)
}

func TestCooldownZeroWindowNeverBlocks(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, Cooldown().Claim(db, 42, model.CooldownManual, time.Now(), 0))

	remaining, err := Cooldown().Remaining(db, 42, model.CooldownManual)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}
