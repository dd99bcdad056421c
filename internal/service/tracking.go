package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stika/config"
	"stika/internal/cache"
	"stika/internal/model"
	"stika/internal/model/dto"
	"stika/internal/queue"
	pkgerrors "stika/pkg/errors"
	"stika/pkg/geo"
	"stika/pkg/logger"
	"stika/pkg/metrics"
	"stika/storage/database"
	"stika/utils"
)

type TrackingService struct{}

var (
	trackingService *TrackingService
	trackingOnce    sync.Once
)

func Tracking() *TrackingService {
	trackingOnce.Do(func() {
		trackingService = &TrackingService{}
	})
	return trackingService
}

// ProcessBatch 处理一次批量上报
// batch_id 幂等：重复上报直接回放已有结果；mobile_id 幂等：单条重复按成功跳过
func (s *TrackingService) ProcessBatch(
	ctx context.Context,
	riderID int64,
	req dto.SyncBatchRequest,
) (*dto.SyncBatchResult, error) {
	start := time.Now()

	if err := s.validateBatch(req); err != nil {
		return nil, err
	}

	db := database.DB().WithContext(ctx)

	// 重复批次回放
	existing, err := s.findBatch(db, riderID, req.BatchID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return batchResult(existing), nil
	}

	// 标记批次已接收，redis 不可用时由 batch_id 唯一键兜底
	if _, err := cache.TryMarkBatchReceived(ctx, req.BatchID); err != nil {
		logger.Logger.Warn("Failed to mark batch received",
			zap.String("batch_id", req.BatchID),
			zap.Error(err),
		)
	}

	batch := &model.SyncBatch{
		BatchID:        req.BatchID,
		RiderID:        riderID,
		TotalCount:     len(req.Samples),
		BatchCreatedAt: req.CreatedAt,
		ReceivedAt:     time.Now(),
		Status:         model.BatchStatusProcessing,
	}
	now := time.Now()
	batch.ProcessingStartedAt = &now

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "batch_id"}},
		DoNothing: true,
	}).Create(batch).Error
	if err != nil {
		// 清掉接收标记，允许客户端重试
		if unmarkErr := cache.UnmarkBatchReceived(ctx, req.BatchID); unmarkErr != nil {
			logger.Logger.Warn("Failed to unmark batch received",
				zap.String("batch_id", req.BatchID),
				zap.Error(unmarkErr),
			)
		}
		return nil, fmt.Errorf("failed to create sync batch: %w", err)
	}
	if batch.ID == 0 {
		// 并发重复上报，读已有批次回放
		existing, err := s.findBatch(db, riderID, req.BatchID)
		if err != nil {
			return nil, err
		}
		return batchResult(existing), nil
	}

	geofences, err := Allocator().ActiveGeofences(db, riderID)
	if err != nil {
		return nil, err
	}

	// 按提交顺序处理，客户端负责排好序
	result := &dto.SyncBatchResult{
		BatchID:    req.BatchID,
		TotalCount: len(req.Samples),
	}
	var processedPoints []geo.Point

	for i := range req.Samples {
		sample := &req.Samples[i]

		outcome, err := s.processSample(ctx, riderID, sample, geofences)
		if err != nil {
			result.FailedCount++
			if len(result.Errors) < config.Cfg.SyncBatchErrorLimit {
				result.Errors = append(result.Errors, dto.SampleError{
					MobileID: sample.MobileID,
					Reason:   err.Error(),
				})
			}
			continue
		}
		if outcome == sampleSkipped {
			result.SkippedCount++
			continue
		}

		result.ProcessedCount++
		processedPoints = append(processedPoints, geo.Point{Lat: sample.Latitude, Lng: sample.Longitude})
	}

	result.Status = string(batchStatus(result))
	if err := s.finalizeBatch(ctx, db, batch, result, processedPoints); err != nil {
		return nil, err
	}

	if m := metrics.GetMetrics(); m != nil {
		m.RecordBatchProcessed(ctx, result.Status,
			int64(result.ProcessedCount), int64(result.FailedCount),
			time.Since(start).Seconds())
	}

	return result, nil
}

type sampleOutcome int

const (
	sampleProcessed sampleOutcome = iota
	sampleSkipped
)

// processSample 单条采样独立事务处理，失败不影响批次内其他采样
func (s *TrackingService) processSample(
	ctx context.Context,
	riderID int64,
	sample *dto.SyncSample,
	geofences []*model.Geofence,
) (sampleOutcome, error) {
	if err := validateSample(sample); err != nil {
		return 0, err
	}

	var outcome = sampleProcessed
	var closedSessions []*model.WorkSession
	var events []*model.PresenceEvent

	err := database.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.insertLocation(tx, riderID, sample)
		if err != nil {
			return err
		}
		if record == nil {
			outcome = sampleSkipped
			return nil
		}

		// 每条有效采样都做进出判定，is_working 关闭时照样能触发 exit
		for _, g := range geofences {
			event, err := Presence().RecordTransition(ctx, tx, g, record)
			if err != nil {
				return err
			}
			if event == nil {
				continue
			}
			events = append(events, event)

			switch event.Kind {
			case model.PresenceEnter:
				if _, err := Session().Open(ctx, tx, event); err != nil {
					return err
				}
			case model.PresenceExit:
				session, err := Session().FindActive(tx, riderID, g.ID)
				if err != nil {
					return err
				}
				if session != nil {
					if err := Session().Close(ctx, tx, session, event); err != nil {
						return err
					}
					closedSessions = append(closedSessions, session)
				}
			}
		}

		processedAt := time.Now()
		return tx.Model(record).Updates(map[string]interface{}{
			"sync_status":  model.SyncStatusProcessed,
			"processed_at": processedAt,
		}).Error
	})
	if err != nil {
		s.markSampleError(ctx, sample.MobileID, err)
		return 0, err
	}

	// 事务提交后再发布事件
	for _, event := range events {
		queue.PublishPresenceEvent(ctx, event)
	}
	for _, session := range closedSessions {
		queue.PublishSessionClosed(ctx, session)
	}

	return outcome, nil
}

// insertLocation 入库采样，mobile_id 冲突返回 nil 表示重复
func (s *TrackingService) insertLocation(
	tx *gorm.DB,
	riderID int64,
	sample *dto.SyncSample,
) (*model.LocationRecord, error) {
	var metadata []byte
	if sample.Metadata != nil {
		metadata, _ = json.Marshal(sample.Metadata)
	}

	record := &model.LocationRecord{
		MobileID:   sample.MobileID,
		RiderID:    riderID,
		CampaignID: sample.CampaignID,
		Latitude:   sample.Latitude,
		Longitude:  sample.Longitude,
		Accuracy:   sample.Accuracy,
		Speed:      sample.Speed,
		Heading:    sample.Heading,
		Altitude:   sample.Altitude,
		IsWorking:  sample.IsWorking,
		RecordedAt: sample.RecordedAt,
		SyncedAt:   time.Now(),
		SyncStatus: model.SyncStatusPending,
		Metadata:   metadata,
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mobile_id"}},
		DoNothing: true,
	}).Create(record).Error
	if err != nil {
		return nil, fmt.Errorf("failed to insert location record: %w", err)
	}
	if record.ID == 0 {
		return nil, nil
	}
	return record, nil
}

// markSampleError 采样处理失败时落一条 error 状态记录，事务外执行
func (s *TrackingService) markSampleError(ctx context.Context, mobileID string, cause error) {
	db := database.DB().WithContext(ctx)
	err := db.Model(&model.LocationRecord{}).
		Where("mobile_id = ?", mobileID).
		Updates(map[string]interface{}{
			"sync_status":   model.SyncStatusError,
			"error_message": cause.Error(),
		}).Error
	if err != nil {
		logger.Logger.Warn("Failed to mark sample error",
			zap.String("mobile_id", mobileID),
			zap.Error(err),
		)
	}
}

// finalizeBatch 写回批次结果并更新当日汇总
func (s *TrackingService) finalizeBatch(
	ctx context.Context,
	db *gorm.DB,
	batch *model.SyncBatch,
	result *dto.SyncBatchResult,
	processedPoints []geo.Point,
) error {
	completedAt := time.Now()

	var errorLog []byte
	if len(result.Errors) > 0 {
		errorLog, _ = json.Marshal(result.Errors)
	}

	err := db.Model(batch).Updates(map[string]interface{}{
		"processed_count": result.ProcessedCount,
		"failed_count":    result.FailedCount,
		"status":          result.Status,
		"completed_at":    completedAt,
		"error_log":       errorLog,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to finalize sync batch: %w", err)
	}

	var meters float64
	for i := 1; i < len(processedPoints); i++ {
		meters += geo.DistanceMeters(processedPoints[i-1], processedPoints[i])
	}
	distance := decimal.NewFromFloat(meters / 1000).Round(3)

	successRate := decimal.Zero
	if result.TotalCount > 0 {
		ok := result.ProcessedCount + result.SkippedCount
		successRate = decimal.NewFromInt(int64(ok)).
			Div(decimal.NewFromInt(int64(result.TotalCount))).
			Mul(decimal.NewFromInt(100)).Round(2)
	}

	if err := Summary().AddLocations(db, batch.RiderID, completedAt, result.ProcessedCount, distance); err != nil {
		logger.Logger.Warn("Failed to update location summary", zap.Error(err))
	}
	if err := Summary().AddSyncBatch(db, batch.RiderID, completedAt, successRate); err != nil {
		logger.Logger.Warn("Failed to update sync batch summary", zap.Error(err))
	}

	if err := cache.SetLastSyncAt(ctx, batch.RiderID, completedAt); err != nil {
		logger.Logger.Warn("Failed to cache last sync time", zap.Error(err))
	}
	if err := cache.StatsProtectedCache.Delete(ctx, strconv.FormatInt(batch.RiderID, 10)); err != nil {
		logger.Logger.Warn("Failed to invalidate stats cache", zap.Error(err))
	}

	return nil
}

// GetBatch 查询批次处理结果
func (s *TrackingService) GetBatch(
	ctx context.Context,
	riderID int64,
	batchID string,
) (*dto.SyncBatchResult, error) {
	db := database.DB().WithContext(ctx)

	batch, err := s.findBatch(db, riderID, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, pkgerrors.BatchNotFound
	}
	return batchResult(batch), nil
}

func (s *TrackingService) findBatch(db *gorm.DB, riderID int64, batchID string) (*model.SyncBatch, error) {
	var batch model.SyncBatch
	err := db.Where("batch_id = ? AND rider_id = ?", batchID, riderID).First(&batch).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query sync batch: %w", err)
	}
	return &batch, nil
}

// Stats 汇总骑手今日/本周/本月的里程与收益
func (s *TrackingService) Stats(ctx context.Context, riderID int64) (*dto.TrackingStatsResponse, error) {
	cacheKey := strconv.FormatInt(riderID, 10)

	var cached dto.TrackingStatsResponse
	hit, err := cache.StatsProtectedCache.Get(ctx, cacheKey, &cached)
	if err != nil {
		logger.Logger.Warn("Failed to read stats cache", zap.Error(err))
	}
	if hit {
		return &cached, nil
	}

	db := database.DB().WithContext(ctx)
	now := time.Now()

	today, err := s.periodStats(db, riderID, utils.DayStart(now))
	if err != nil {
		return nil, err
	}
	week, err := s.periodStats(db, riderID, utils.WeekStart(now))
	if err != nil {
		return nil, err
	}
	month, err := s.periodStats(db, riderID, utils.MonthStart(now))
	if err != nil {
		return nil, err
	}

	var todaySessions int64
	err = db.Model(&model.WorkSession{}).
		Where("rider_id = ? AND started_at >= ?", riderID, utils.DayStart(now)).
		Count(&todaySessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count today sessions: %w", err)
	}

	geofences, err := Allocator().ActiveGeofences(db, riderID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(geofences))
	for _, g := range geofences {
		names = append(names, g.Name)
	}

	var pendingSync int64
	err = db.Model(&model.LocationRecord{}).
		Where("rider_id = ? AND sync_status = ?", riderID, model.SyncStatusPending).
		Count(&pendingSync).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count pending locations: %w", err)
	}

	lastSyncAt, err := cache.GetLastSyncAt(ctx, riderID)
	if err != nil {
		logger.Logger.Warn("Failed to read last sync time", zap.Error(err))
	}

	stats := &dto.TrackingStatsResponse{
		Today:            today,
		Week:             week,
		Month:            month,
		TodaySessions:    int(todaySessions),
		ActiveGeofences:  names,
		PendingSyncCount: pendingSync,
		LastSyncAt:       lastSyncAt,
	}

	if err := cache.StatsProtectedCache.Set(ctx, cacheKey, stats); err != nil {
		logger.Logger.Warn("Failed to write stats cache", zap.Error(err))
	}

	return stats, nil
}

func (s *TrackingService) periodStats(db *gorm.DB, riderID int64, since time.Time) (dto.PeriodStats, error) {
	var row struct {
		DistanceKm    decimal.Decimal
		EarningsTotal decimal.Decimal
	}
	err := db.Model(&model.DailySummary{}).
		Select("COALESCE(SUM(distance_km), 0) AS distance_km, COALESCE(SUM(earnings_total), 0) AS earnings_total").
		Where("rider_id = ? AND date >= ?", riderID, since).
		Scan(&row).Error
	if err != nil {
		return dto.PeriodStats{}, fmt.Errorf("failed to aggregate period stats: %w", err)
	}

	return dto.PeriodStats{
		DistanceKm: row.DistanceKm.Round(3).String(),
		Earnings:   row.EarningsTotal.Round(2).String(),
	}, nil
}

func (s *TrackingService) validateBatch(req dto.SyncBatchRequest) error {
	if req.BatchID == "" || len(req.Samples) == 0 {
		return pkgerrors.InvalidBatch
	}
	if len(req.Samples) > config.Cfg.SyncBatchMaxSamples {
		return pkgerrors.BatchTooLarge
	}

	seen := make(map[string]struct{}, len(req.Samples))
	for _, sample := range req.Samples {
		if _, ok := seen[sample.MobileID]; ok {
			return pkgerrors.DuplicateInBatch
		}
		seen[sample.MobileID] = struct{}{}
	}
	return nil
}

func validateSample(sample *dto.SyncSample) error {
	if !utils.ValidateMobileID(sample.MobileID) {
		return fmt.Errorf("invalid mobile_id")
	}
	if !geo.ValidCoordinate(sample.Latitude, sample.Longitude) {
		return fmt.Errorf("coordinates out of range")
	}
	if sample.RecordedAt.IsZero() {
		return fmt.Errorf("recorded_at is required")
	}
	if sample.Accuracy < 0 {
		return fmt.Errorf("accuracy must not be negative")
	}
	return nil
}

func batchStatus(result *dto.SyncBatchResult) model.BatchStatus {
	switch {
	case result.FailedCount == 0:
		return model.BatchStatusCompleted
	case result.ProcessedCount+result.SkippedCount > 0:
		return model.BatchStatusPartial
	default:
		return model.BatchStatusFailed
	}
}

func batchResult(batch *model.SyncBatch) *dto.SyncBatchResult {
	result := &dto.SyncBatchResult{
		BatchID:        batch.BatchID,
		Status:         string(batch.Status),
		TotalCount:     batch.TotalCount,
		ProcessedCount: batch.ProcessedCount,
		FailedCount:    batch.FailedCount,
		SkippedCount:   batch.TotalCount - batch.ProcessedCount - batch.FailedCount,
	}
	if len(batch.ErrorLog) > 0 {
		_ = json.Unmarshal(batch.ErrorLog, &result.Errors)
	}
	return result
}
