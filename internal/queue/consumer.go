package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"stika/internal/cache"
	"stika/internal/model"
	"stika/pkg/errors"
	"stika/pkg/logger"
	"stika/storage/mq"
)

// EventProcessor 领域事件处理接口，由 worker 启动时注入 service 实现
// 避免 queue 包直接依赖 service 形成环
type EventProcessor interface {
	HandleSessionClosed(ctx context.Context, msg model.SessionClosedMessage) error
	HandlePresenceEvent(ctx context.Context, msg model.PresenceEventMessage) error
	HandleEarningsCalculated(ctx context.Context, msg model.EarningsCalculatedMessage) error
	HandleVerificationOutcome(ctx context.Context, msg model.VerificationOutcomeMessage) error
}

var processor EventProcessor

// SetEventProcessor 设置事件处理器（在 worker 启动时调用）
func SetEventProcessor(p EventProcessor) {
	processor = p
}

// StartSessionClosedConsumer 启动会话闭合消费者，结算收益
func StartSessionClosedConsumer(ctx context.Context) error {
	handler := func(body []byte) error {
		var msg model.SessionClosedMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal session closed message: %w", err)
		}

		// 【幂等性检查】使用 SETNX 原子性地检查并标记消息正在处理
		processed, err := cache.TryMarkMessageProcessing(ctx, msg.MessageID, 24*time.Hour)
		if err != nil {
			logger.Logger.Warn("Failed to check message processed status",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		} else if !processed {
			logger.Logger.Info("Message already processed or being processed, skipping",
				zap.String("message_id", msg.MessageID),
				zap.Int64("session_id", msg.SessionID),
			)
			return &errors.SkipMessageError{Reason: fmt.Sprintf("Message %s already processed", msg.MessageID)}
		}

		logger.Logger.Info("Processing session closed message",
			zap.String("message_id", msg.MessageID),
			zap.Int64("session_id", msg.SessionID),
			zap.String("status", msg.Status),
		)

		if processor == nil {
			cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("event processor not initialized")
		}

		if err := processor.HandleSessionClosed(ctx, msg); err != nil {
			if errors.IsSkipMessageError(err) {
				cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour)
				return err
			}
			// 处理失败，取消标记，允许重试
			cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("failed to handle session closed: %w", err)
		}

		if err := cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour); err != nil {
			logger.Logger.Warn("Failed to mark message as processed",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		}

		return nil
	}

	return mq.Consume(mq.ConsumeOptions{
		Queue:         mq.SessionQueue,
		ConsumerTag:   "session_closed_consumer",
		PrefetchCount: 10,
		Handler:       handler,
	})
}

// StartPresenceEventConsumer 启动进出事件消费者，维护每日汇总
func StartPresenceEventConsumer(ctx context.Context) error {
	handler := func(body []byte) error {
		var msg model.PresenceEventMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal presence event message: %w", err)
		}

		processed, err := cache.TryMarkMessageProcessing(ctx, msg.MessageID, 24*time.Hour)
		if err != nil {
			logger.Logger.Warn("Failed to check message processed status",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		} else if !processed {
			return &errors.SkipMessageError{Reason: fmt.Sprintf("Message %s already processed", msg.MessageID)}
		}

		if processor == nil {
			cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("event processor not initialized")
		}

		if err := processor.HandlePresenceEvent(ctx, msg); err != nil {
			if errors.IsSkipMessageError(err) {
				cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour)
				return err
			}
			cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("failed to handle presence event: %w", err)
		}

		if err := cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour); err != nil {
			logger.Logger.Warn("Failed to mark message as processed",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		}

		return nil
	}

	return mq.Consume(mq.ConsumeOptions{
		Queue:         mq.PresenceQueue,
		ConsumerTag:   "presence_event_consumer",
		PrefetchCount: 20,
		Handler:       handler,
	})
}

// StartEarningsConsumer 启动收益消费者，扣减围栏与活动预算
func StartEarningsConsumer(ctx context.Context) error {
	handler := func(body []byte) error {
		var msg model.EarningsCalculatedMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal earnings message: %w", err)
		}

		processed, err := cache.TryMarkMessageProcessing(ctx, msg.MessageID, 24*time.Hour)
		if err != nil {
			logger.Logger.Warn("Failed to check message processed status",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		} else if !processed {
			return &errors.SkipMessageError{Reason: fmt.Sprintf("Message %s already processed", msg.MessageID)}
		}

		logger.Logger.Info("Processing earnings calculated message",
			zap.String("message_id", msg.MessageID),
			zap.Int64("earnings_id", msg.EarningsID),
			zap.String("amount", msg.Amount),
		)

		if processor == nil {
			cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("event processor not initialized")
		}

		if err := processor.HandleEarningsCalculated(ctx, msg); err != nil {
			if errors.IsSkipMessageError(err) {
				cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour)
				return err
			}
			cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("failed to handle earnings calculated: %w", err)
		}

		if err := cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour); err != nil {
			logger.Logger.Warn("Failed to mark message as processed",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		}

		return nil
	}

	return mq.Consume(mq.ConsumeOptions{
		Queue:         mq.EarningsQueue,
		ConsumerTag:   "earnings_consumer",
		PrefetchCount: 10,
		Handler:       handler,
	})
}

// StartVerificationOutcomeConsumer 启动验证结果消费者
func StartVerificationOutcomeConsumer(ctx context.Context) error {
	handler := func(body []byte) error {
		var msg model.VerificationOutcomeMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal verification outcome message: %w", err)
		}

		processed, err := cache.TryMarkMessageProcessing(ctx, msg.MessageID, 24*time.Hour)
		if err != nil {
			logger.Logger.Warn("Failed to check message processed status",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		} else if !processed {
			return &errors.SkipMessageError{Reason: fmt.Sprintf("Message %s already processed", msg.MessageID)}
		}

		if processor == nil {
			cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("event processor not initialized")
		}

		if err := processor.HandleVerificationOutcome(ctx, msg); err != nil {
			if errors.IsSkipMessageError(err) {
				cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour)
				return err
			}
			cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("failed to handle verification outcome: %w", err)
		}

		if err := cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour); err != nil {
			logger.Logger.Warn("Failed to mark message as processed",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		}

		return nil
	}

	return mq.Consume(mq.ConsumeOptions{
		Queue:         mq.OutcomeQueue,
		ConsumerTag:   "verification_outcome_consumer",
		PrefetchCount: 10,
		Handler:       handler,
	})
}

// StartAllConsumers 启动所有消费者（在 worker 启动时调用）
func StartAllConsumers(ctx context.Context) {
	var wg sync.WaitGroup

	consumers := []struct {
		name     string
		consumer func(context.Context) error
	}{
		{"session_closed", StartSessionClosedConsumer},
		{"presence_event", StartPresenceEventConsumer},
		{"earnings_calculated", StartEarningsConsumer},
		{"verification_outcome", StartVerificationOutcomeConsumer},
	}

	for _, c := range consumers {
		wg.Add(1)
		go func(name string, consumer func(context.Context) error) {
			defer wg.Done()

			logger.Logger.Info("Starting consumer",
				zap.String("consumer_name", name),
			)

			if err := consumer(ctx); err != nil {
				logger.Logger.Error("Consumer exited with error",
					zap.String("consumer_name", name),
					zap.Error(err),
				)
			}
		}(c.name, c.consumer)
	}

	wg.Wait()

	logger.Logger.Info("All consumers started")
}
