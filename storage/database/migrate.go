package database

import (
	"stika/internal/model"
	"stika/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate 运行数据库迁移，创建所有表
func Migrate() error {
	db := DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	// 迁移所有模型
	err := db.AutoMigrate(
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
	)

	if err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	if err := CreateIndexes(db); err != nil {
		logger.Logger.Error("Index creation failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}

// CreateIndexes 创建 AutoMigrate 表达不了的部分索引
func CreateIndexes(db *gorm.DB) error {
	// 同一骑手同一围栏最多一个 active 会话，由部分唯一索引兜底
	return db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS uniq_work_sessions_active " +
			"ON work_sessions (rider_id, geofence_id) WHERE status = 'active'",
	).Error
}
