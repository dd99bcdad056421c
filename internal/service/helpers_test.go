package service

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"stika/config"
	"stika/internal/model"
	"stika/pkg/logger"
	"stika/pkg/snowflake"
	"stika/pkg/vision"
	"stika/storage/database"
	storageredis "stika/storage/redis"
)

func TestMain(m *testing.M) {
	logger.Init()
	_ = snowflake.Init(1, 1)
	_ = vision.Init()

	// 照片不落盘，redis 指向不可达地址，缓存路径按降级处理
	config.Cfg.VerificationMediaDir = ""
	storageredis.SetClient(goredis.NewClient(&goredis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  50 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
		MaxRetries:   -1,
	}))

	os.Exit(m.Run())
}

// newTestDB 每个测试独立的内存库，单连接避免 shared cache 锁竞争
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Rider{},
		&model.Campaign{},
		&model.Geofence{},
		&model.CampaignAssignment{},
		&model.GeofenceAssignment{},
		&model.SyncBatch{},
		&model.LocationRecord{},
		&model.PresenceEvent{},
		&model.WorkSession{},
		&model.EarningsRecord{},
		&model.DailySummary{},
		&model.CooldownRecord{},
		&model.VerificationRequest{},
	))
	require.NoError(t, database.CreateIndexes(db))

	database.SetDB(db)
	return db
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// 拉各斯市区，测试围栏的默认圆心
const (
	testCenterLat = 6.5244
	testCenterLng = 3.3792
)

func seedRider(t *testing.T, db *gorm.DB) *model.Rider {
	t.Helper()

	rider := &model.Rider{
		Status:                 model.RiderStatusActive,
		IsAvailable:            true,
		MaxConcurrentCampaigns: 3,
	}
	require.NoError(t, db.Create(rider).Error)
	return rider
}

func seedCampaign(t *testing.T, db *gorm.DB) *model.Campaign {
	t.Helper()

	now := time.Now()
	campaign := &model.Campaign{
		Name:        "sticker launch",
		Status:      model.CampaignStatusActive,
		StartDate:   now.Add(-24 * time.Hour),
		EndDate:     now.Add(24 * time.Hour),
		TotalBudget: dec(t, "100000"),
	}
	require.NoError(t, db.Create(campaign).Error)
	return campaign
}

func seedGeofence(t *testing.T, db *gorm.DB, campaignID int64, mutate func(*model.Geofence)) *model.Geofence {
	t.Helper()

	now := time.Now()
	geofence := &model.Geofence{
		CampaignID:   campaignID,
		Name:         "ikeja zone",
		Status:       model.GeofenceStatusActive,
		Priority:     100,
		CenterLat:    testCenterLat,
		CenterLng:    testCenterLng,
		RadiusMeters: 300,
		Budget:       dec(t, "10000"),
		RateType:     model.RateTypePerKm,
		RatePerKm:    dec(t, "200"),
		RatePerHour:  dec(t, "500"),
		StartDate:    now.Add(-24 * time.Hour),
		EndDate:      now.Add(24 * time.Hour),
	}
	if mutate != nil {
		mutate(geofence)
	}
	require.NoError(t, db.Create(geofence).Error)
	return geofence
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testPhoto(t *testing.T) vision.Input {
	t.Helper()

	data := pngBytes(t, 320, 240)
	return vision.Input{
		Filename: "sticker.png",
		Size:     int64(len(data)),
		Data:     data,
	}
}
