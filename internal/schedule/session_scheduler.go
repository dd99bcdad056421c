package schedule

// 会话调度器：定期扫描超时未闭合的工作会话，标记 abandoned 并投递闭合消息

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"stika/internal/cache"
	"stika/internal/queue"
	"stika/internal/service"
	"stika/pkg/logger"
)

var (
	sessionSchedulerOnce sync.Once
	sessionSchedulerInst *SessionScheduler
)

// SessionScheduler 工作会话调度器
type SessionScheduler struct {
	logger           *zap.Logger
	sweepJobRunning  bool
	sweepJobMu       sync.Mutex
	lastSweepJobTime time.Time
}

// GetSessionScheduler 获取会话调度器单例
func GetSessionScheduler() *SessionScheduler {
	sessionSchedulerOnce.Do(func() {
		sessionSchedulerInst = &SessionScheduler{
			logger: logger.Logger,
		}
	})
	return sessionSchedulerInst
}

// SweepAbandonedSessions 扫描超时未闭合的会话（定时任务调用）
// abandoned 会话不产生收益，但仍投递闭合消息以更新每日汇总
func (s *SessionScheduler) SweepAbandonedSessions(ctx context.Context) error {
	s.sweepJobMu.Lock()
	if s.sweepJobRunning {
		s.sweepJobMu.Unlock()
		s.logger.Info("Session sweep job already running, skipping")
		return nil
	}
	s.sweepJobRunning = true
	s.sweepJobMu.Unlock()

	defer func() {
		s.sweepJobMu.Lock()
		s.sweepJobRunning = false
		s.sweepJobMu.Unlock()
	}()

	// 多实例下用分布式锁保证只有一个实例执行
	locked, err := cache.TryLock(ctx, "session_sweep", 5*time.Minute)
	if err != nil {
		s.logger.Warn("Failed to acquire session sweep lock, proceeding anyway",
			zap.Error(err),
		)
	} else if !locked {
		s.logger.Info("Session sweep lock held by another instance, skipping")
		return nil
	} else {
		defer func() {
			if err := cache.Unlock(ctx, "session_sweep"); err != nil {
				s.logger.Warn("Failed to release session sweep lock", zap.Error(err))
			}
		}()
	}

	startTime := time.Now()
	s.lastSweepJobTime = startTime

	s.logger.Info("Starting abandoned session sweep",
		zap.Time("start_time", startTime),
	)

	sessions, err := service.Session().SweepAbandoned(ctx)
	if err != nil {
		s.logger.Error("Failed to sweep abandoned sessions", zap.Error(err))
		return fmt.Errorf("failed to sweep abandoned sessions: %w", err)
	}

	if len(sessions) == 0 {
		s.logger.Info("No abandoned sessions found")
		return nil
	}

	publishErrors := 0
	for _, session := range sessions {
		if err := queue.PublishSessionClosed(ctx, session); err != nil {
			// 投递失败不中断，消息幂等，下次扫描仍会兜底
			publishErrors++
		}
	}

	duration := time.Since(startTime)
	s.logger.Info("Abandoned session sweep completed",
		zap.Duration("duration", duration),
		zap.Int("session_count", len(sessions)),
		zap.Int("publish_errors", publishErrors),
	)

	if publishErrors > 0 {
		return fmt.Errorf("session sweep completed with %d publish errors", publishErrors)
	}

	return nil
}
