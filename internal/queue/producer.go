package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stika/internal/model"
	"stika/pkg/logger"
	"stika/pkg/snowflake"
	"stika/storage/mq"
)

// 领域事件统一走 stika.events 交换机，routing key 区分类型

// PublishPresenceEvent 发布围栏进出事件
func PublishPresenceEvent(ctx context.Context, event *model.PresenceEvent) error {
	id, err := snowflake.NextID()
	if err != nil {
		logger.Logger.Error("Failed to generate message ID",
			zap.Int64("event_id", event.ID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to generate message ID: %w", err)
	}

	msg := model.PresenceEventMessage{
		MessageID:  fmt.Sprintf("presence_%d", id),
		EventID:    event.ID,
		RiderID:    event.RiderID,
		GeofenceID: event.GeofenceID,
		Kind:       string(event.Kind),
		RecordedAt: event.RecordedAt.Format(time.RFC3339),
	}

	routingKey := fmt.Sprintf("presence.%s", msg.Kind)
	if err := mq.PublishMessage(ctx, mq.EventsExchange, routingKey, msg); err != nil {
		logger.Logger.Error("Failed to publish presence event",
			zap.String("message_id", msg.MessageID),
			zap.Int64("rider_id", msg.RiderID),
			zap.String("kind", msg.Kind),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published presence event",
		zap.String("message_id", msg.MessageID),
		zap.Int64("rider_id", msg.RiderID),
		zap.Int64("geofence_id", msg.GeofenceID),
		zap.String("kind", msg.Kind),
	)

	return nil
}

// PublishSessionClosed 发布会话闭合消息，worker 消费后结算收益
func PublishSessionClosed(ctx context.Context, session *model.WorkSession) error {
	id, err := snowflake.NextID()
	if err != nil {
		logger.Logger.Error("Failed to generate message ID",
			zap.Int64("session_id", session.ID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to generate message ID: %w", err)
	}

	msg := model.SessionClosedMessage{
		MessageID:       fmt.Sprintf("session_closed_%d", id),
		SessionID:       session.ID,
		RiderID:         session.RiderID,
		GeofenceID:      session.GeofenceID,
		DurationMinutes: session.DurationMinutes,
		DistanceKm:      session.DistanceKm.String(),
		Status:          string(session.Status),
	}

	if err := mq.PublishMessage(ctx, mq.EventsExchange, mq.SessionRouting, msg); err != nil {
		logger.Logger.Error("Failed to publish session closed message",
			zap.String("message_id", msg.MessageID),
			zap.Int64("session_id", msg.SessionID),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published session closed message",
		zap.String("message_id", msg.MessageID),
		zap.Int64("session_id", msg.SessionID),
		zap.Int64("rider_id", msg.RiderID),
		zap.String("status", msg.Status),
	)

	return nil
}

// PublishEarningsCalculated 发布收益生成消息，供活动侧记账消费
func PublishEarningsCalculated(ctx context.Context, record *model.EarningsRecord, campaignID int64) error {
	id, err := snowflake.NextID()
	if err != nil {
		logger.Logger.Error("Failed to generate message ID",
			zap.Int64("earnings_id", record.ID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to generate message ID: %w", err)
	}

	msg := model.EarningsCalculatedMessage{
		MessageID:    fmt.Sprintf("earnings_%d", id),
		EarningsID:   record.ID,
		RiderID:      record.RiderID,
		GeofenceID:   record.GeofenceID,
		CampaignID:   campaignID,
		EarningsType: string(record.EarningsType),
		Amount:       record.Amount.String(),
		Currency:     record.Currency,
		EarnedAt:     record.EarnedAt.Format(time.RFC3339),
	}

	if err := mq.PublishMessage(ctx, mq.EventsExchange, mq.EarningsRouting, msg); err != nil {
		logger.Logger.Error("Failed to publish earnings calculated message",
			zap.String("message_id", msg.MessageID),
			zap.Int64("earnings_id", msg.EarningsID),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published earnings calculated message",
		zap.String("message_id", msg.MessageID),
		zap.Int64("earnings_id", msg.EarningsID),
		zap.String("amount", msg.Amount),
	)

	return nil
}

// PublishVerificationOutcome 发布验证结果消息，用于骑手通知
func PublishVerificationOutcome(ctx context.Context, v *model.VerificationRequest, reason string) error {
	id, err := snowflake.NextID()
	if err != nil {
		logger.Logger.Error("Failed to generate message ID",
			zap.Int64("verification_id", v.ID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to generate message ID: %w", err)
	}

	msg := model.VerificationOutcomeMessage{
		MessageID:      fmt.Sprintf("verification_%d", id),
		VerificationID: v.ID,
		RiderID:        v.RiderID,
		CampaignID:     v.CampaignID,
		Kind:           string(v.Kind),
		Status:         string(v.Status),
		Confidence:     v.ConfidenceScore.InexactFloat64(),
		Reason:         reason,
	}

	if err := mq.PublishMessage(ctx, mq.EventsExchange, mq.OutcomeRouting, msg); err != nil {
		logger.Logger.Error("Failed to publish verification outcome",
			zap.String("message_id", msg.MessageID),
			zap.Int64("verification_id", msg.VerificationID),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published verification outcome",
		zap.String("message_id", msg.MessageID),
		zap.Int64("verification_id", msg.VerificationID),
		zap.String("status", msg.Status),
	)

	return nil
}
