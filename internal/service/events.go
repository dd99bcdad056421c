package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stika/internal/model"
	"stika/internal/queue"
	pkgerrors "stika/pkg/errors"
	"stika/pkg/logger"
	"stika/storage/database"
)

// EventService 消费侧的领域事件处理，实现 queue.EventProcessor

type EventService struct{}

var (
	eventService *EventService
	eventOnce    sync.Once
)

func Events() *EventService {
	eventOnce.Do(func() {
		eventService = &EventService{}
	})
	return eventService
}

// HandleSessionClosed 会话闭合后结算：生成收益、更新汇总，再发布记账消息
// abandoned 会话只记汇总不产生收益
func (s *EventService) HandleSessionClosed(ctx context.Context, msg model.SessionClosedMessage) error {
	db := database.DB().WithContext(ctx)

	var session model.WorkSession
	if err := db.First(&session, msg.SessionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return &pkgerrors.SkipMessageError{Reason: fmt.Sprintf("session %d not found", msg.SessionID)}
		}
		return fmt.Errorf("failed to load session: %w", err)
	}

	day := time.Now()
	if session.EndedAt != nil {
		day = *session.EndedAt
	}

	var record *model.EarningsRecord
	var campaignID int64

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := Summary().AddSessionClosed(tx, session.RiderID, day, session.Status, session.DurationMinutes); err != nil {
			return err
		}

		if session.Status != model.SessionStatusCompleted {
			return nil
		}

		var err error
		record, err = Earnings().CalculateForSession(ctx, tx, &session)
		if err != nil {
			return err
		}
		if record == nil {
			return nil
		}

		var geofence model.Geofence
		if err := tx.First(&geofence, session.GeofenceID).Error; err != nil {
			return fmt.Errorf("failed to load geofence: %w", err)
		}
		campaignID = geofence.CampaignID

		return Summary().AddEarningsRecord(tx, record)
	})
	if err != nil {
		return err
	}

	if record != nil {
		queue.PublishEarningsCalculated(ctx, record, campaignID)
	}

	return nil
}

// HandlePresenceEvent 叠加每日进出统计
func (s *EventService) HandlePresenceEvent(ctx context.Context, msg model.PresenceEventMessage) error {
	db := database.DB().WithContext(ctx)

	day := time.Now()
	if at, err := time.Parse(time.RFC3339, msg.RecordedAt); err == nil {
		day = at
	}

	kind := model.PresenceEventKind(msg.Kind)
	if kind != model.PresenceEnter && kind != model.PresenceExit {
		return &pkgerrors.SkipMessageError{Reason: fmt.Sprintf("unknown presence kind %q", msg.Kind)}
	}

	return Summary().AddPresence(db, msg.RiderID, day, kind)
}

// HandleEarningsCalculated 将已结算的收益计入围栏与活动花费
func (s *EventService) HandleEarningsCalculated(ctx context.Context, msg model.EarningsCalculatedMessage) error {
	amount, err := decimal.NewFromString(msg.Amount)
	if err != nil {
		return &pkgerrors.SkipMessageError{Reason: fmt.Sprintf("invalid amount %q", msg.Amount)}
	}

	db := database.DB().WithContext(ctx)

	return db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.Geofence{}).
			Where("id = ?", msg.GeofenceID).
			Update("spent", gorm.Expr("spent + ?", amount)).Error
		if err != nil {
			return fmt.Errorf("failed to update geofence spent: %w", err)
		}

		if msg.CampaignID > 0 {
			err = tx.Model(&model.Campaign{}).
				Where("id = ?", msg.CampaignID).
				Update("spent", gorm.Expr("spent + ?", amount)).Error
			if err != nil {
				return fmt.Errorf("failed to update campaign spent: %w", err)
			}
		}

		return nil
	})
}

// HandleVerificationOutcome 叠加每日验证统计
// 骑手侧推送由通知子系统负责，这里只落统计
func (s *EventService) HandleVerificationOutcome(ctx context.Context, msg model.VerificationOutcomeMessage) error {
	db := database.DB().WithContext(ctx)

	passed := msg.Status == string(model.VerificationStatusPassed)
	if err := Summary().AddVerification(db, msg.RiderID, time.Now(), passed); err != nil {
		return err
	}

	logger.Logger.Info("Verification outcome recorded",
		zap.Int64("verification_id", msg.VerificationID),
		zap.Int64("rider_id", msg.RiderID),
		zap.String("status", msg.Status),
	)

	return nil
}
