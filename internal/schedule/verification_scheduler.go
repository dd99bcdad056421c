package schedule

// 验证调度器：过期未响应的抽查判失败，并为长会话骑手派发抽查

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"stika/config"
	"stika/internal/cache"
	"stika/internal/model"
	"stika/internal/service"
	pkgerrors "stika/pkg/errors"
	"stika/pkg/logger"
	"stika/storage/database"
)

var (
	verificationSchedulerOnce sync.Once
	verificationSchedulerInst *VerificationScheduler
)

// VerificationScheduler 照片验证调度器
type VerificationScheduler struct {
	logger             *zap.Logger
	expireJobRunning   bool
	expireJobMu        sync.Mutex
	dispatchJobRunning bool
	dispatchJobMu      sync.Mutex
	lastExpireJobTime  time.Time
}

// GetVerificationScheduler 获取验证调度器单例
func GetVerificationScheduler() *VerificationScheduler {
	verificationSchedulerOnce.Do(func() {
		verificationSchedulerInst = &VerificationScheduler{
			logger: logger.Logger,
		}
	})
	return verificationSchedulerInst
}

// ExpireOverdueVerifications 将超过响应窗口仍 pending 的抽查判为失败（定时任务调用）
func (s *VerificationScheduler) ExpireOverdueVerifications(ctx context.Context) error {
	s.expireJobMu.Lock()
	if s.expireJobRunning {
		s.expireJobMu.Unlock()
		s.logger.Info("Verification expire job already running, skipping")
		return nil
	}
	s.expireJobRunning = true
	s.expireJobMu.Unlock()

	defer func() {
		s.expireJobMu.Lock()
		s.expireJobRunning = false
		s.expireJobMu.Unlock()
	}()

	startTime := time.Now()
	s.lastExpireJobTime = startTime

	expired, err := service.Verification().ExpireOverdue(ctx)
	if err != nil {
		s.logger.Error("Failed to expire overdue verifications", zap.Error(err))
		return fmt.Errorf("failed to expire overdue verifications: %w", err)
	}

	if expired > 0 {
		s.logger.Info("Overdue verifications expired",
			zap.Int64("expired_count", expired),
			zap.Duration("duration", time.Since(startTime)),
		)
	}

	return nil
}

// DispatchSpotChecks 为持续工作超过阈值的骑手派发抽查（定时任务调用）
// 同一骑手在派发窗口内最多收到一次抽查
func (s *VerificationScheduler) DispatchSpotChecks(ctx context.Context) error {
	if !config.Cfg.SpotCheckDispatchEnabled {
		return nil
	}

	s.dispatchJobMu.Lock()
	if s.dispatchJobRunning {
		s.dispatchJobMu.Unlock()
		s.logger.Info("Spot check dispatch job already running, skipping")
		return nil
	}
	s.dispatchJobRunning = true
	s.dispatchJobMu.Unlock()

	defer func() {
		s.dispatchJobMu.Lock()
		s.dispatchJobRunning = false
		s.dispatchJobMu.Unlock()
	}()

	// 多实例下用分布式锁保证只有一个实例派发
	locked, err := cache.TryLock(ctx, "spot_check_dispatch", 5*time.Minute)
	if err != nil {
		s.logger.Warn("Failed to acquire spot check dispatch lock, proceeding anyway",
			zap.Error(err),
		)
	} else if !locked {
		s.logger.Info("Spot check dispatch lock held by another instance, skipping")
		return nil
	} else {
		defer func() {
			if err := cache.Unlock(ctx, "spot_check_dispatch"); err != nil {
				s.logger.Warn("Failed to release spot check dispatch lock", zap.Error(err))
			}
		}()
	}

	startTime := time.Now()
	db := database.DB().WithContext(ctx)

	cutoff := startTime.Add(-time.Duration(config.Cfg.SpotCheckMinSessionMinutes) * time.Minute)

	var sessions []*model.WorkSession
	err = db.Where("status = ? AND started_at < ?", model.SessionStatusActive, cutoff).
		Find(&sessions).Error
	if err != nil {
		s.logger.Error("Failed to query long-running sessions", zap.Error(err))
		return fmt.Errorf("failed to query long-running sessions: %w", err)
	}

	if len(sessions) == 0 {
		s.logger.Info("No sessions eligible for spot check")
		return nil
	}

	dispatched := 0
	dispatchWindow := time.Duration(config.Cfg.SpotCheckDispatchMinutes) * time.Minute

	for _, session := range sessions {
		// 派发窗口内已有抽查的骑手跳过
		var recent int64
		err := db.Model(&model.VerificationRequest{}).
			Where("rider_id = ? AND kind = ? AND created_at > ?",
				session.RiderID, model.VerificationSpotCheck, startTime.Add(-dispatchWindow)).
			Count(&recent).Error
		if err != nil {
			s.logger.Warn("Failed to count recent spot checks",
				zap.Int64("rider_id", session.RiderID),
				zap.Error(err),
			)
			continue
		}
		if recent > 0 {
			continue
		}

		var geofence model.Geofence
		if err := db.First(&geofence, session.GeofenceID).Error; err != nil {
			s.logger.Warn("Failed to load geofence for spot check",
				zap.Int64("geofence_id", session.GeofenceID),
				zap.Error(err),
			)
			continue
		}

		_, err = service.Verification().RequestSpotCheck(ctx, session.RiderID, geofence.CampaignID, geofence.ID)
		if err != nil {
			if errors.Is(err, pkgerrors.VerificationPending) {
				continue
			}
			s.logger.Warn("Failed to dispatch spot check",
				zap.Int64("rider_id", session.RiderID),
				zap.Error(err),
			)
			continue
		}
		dispatched++
	}

	s.logger.Info("Spot check dispatch completed",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("session_count", len(sessions)),
		zap.Int("dispatched", dispatched),
	)

	return nil
}
