package service

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stika/config"
	"stika/internal/model"
	pkgerrors "stika/pkg/errors"
)

// 冷却窗口限制骑手发起验证的频率
// 进闸即占用窗口，无论后续结果成功失败

type CooldownService struct{}

var (
	cooldownService *CooldownService
	cooldownOnce    sync.Once
)

func Cooldown() *CooldownService {
	cooldownOnce.Do(func() {
		cooldownService = &CooldownService{}
	})
	return cooldownService
}

// Window 返回指定动作的冷却窗口
func (s *CooldownService) Window(kind model.CooldownKind) time.Duration {
	cfg := config.Cfg
	switch kind {
	case model.CooldownZoneJoin:
		return time.Duration(cfg.CooldownZoneJoinSeconds) * time.Second
	case model.CooldownSpotCheck:
		return time.Duration(cfg.CooldownSpotCheckSeconds) * time.Second
	default:
		return time.Duration(cfg.CooldownManualSeconds) * time.Second
	}
}

// Remaining 返回剩余冷却秒数，0 表示可以发起
func (s *CooldownService) Remaining(tx *gorm.DB, riderID int64, kind model.CooldownKind) (int, error) {
	var record model.CooldownRecord
	err := tx.Where("rider_id = ? AND kind = ?", riderID, kind).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query cooldown record: %w", err)
	}

	remaining := time.Until(record.ExpiresAt)
	if remaining <= 0 {
		return 0, nil
	}

	// 不足 1 秒向上取整，避免返回 0 又被拒绝
	return int((remaining + time.Second - 1) / time.Second), nil
}

// Claim 占用一次冷却窗口，(rider_id, kind) 唯一
// 单条条件 upsert：窗口仍未过期时不更新任何行，返回 CooldownActive
// extraSeconds 在基础窗口上追加额外冷却
func (s *CooldownService) Claim(
	tx *gorm.DB,
	riderID int64,
	kind model.CooldownKind,
	now time.Time,
	extraSeconds int,
) error {
	expiresAt := now.Add(s.Window(kind) + time.Duration(extraSeconds)*time.Second)
	record := &model.CooldownRecord{
		RiderID:       riderID,
		Kind:          kind,
		LastAttemptAt: now,
		ExpiresAt:     expiresAt,
		Attempts:      1,
	}

	res := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "rider_id"}, {Name: "kind"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_attempt_at": now,
			"expires_at":      expiresAt,
			"attempts":        gorm.Expr("cooldown_records.attempts + 1"),
			"updated_at":      now,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("cooldown_records.expires_at <= ?", now),
		}},
	}).Create(record)
	if res.Error != nil {
		return fmt.Errorf("failed to claim cooldown: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.CooldownActive
	}
	return nil
}
