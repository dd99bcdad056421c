package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stika/config"
	"stika/internal/model"
	"stika/internal/model/dto"
	pkgerrors "stika/pkg/errors"
	"stika/pkg/logger"
	"stika/pkg/metrics"
	"stika/storage/database"
	"stika/utils"
)

type EarningsService struct{}

var (
	earningsService *EarningsService
	earningsOnce    sync.Once
)

func Earnings() *EarningsService {
	earningsOnce.Do(func() {
		earningsService = &EarningsService{}
	})
	return earningsService
}

var sixty = decimal.NewFromInt(60)

// Compute 按围栏计费类型计算金额，金额保留 2 位小数
func (s *EarningsService) Compute(
	g *model.Geofence,
	distanceKm decimal.Decimal,
	durationMinutes int,
) (amount decimal.Decimal, kind model.EarningsType, rate decimal.Decimal, err error) {
	hours := decimal.NewFromInt(int64(durationMinutes)).Div(sixty)

	switch g.RateType {
	case model.RateTypePerKm:
		return distanceKm.Mul(g.RatePerKm).Round(2), model.EarningsTypeDistance, g.RatePerKm, nil
	case model.RateTypePerHour:
		return hours.Mul(g.RatePerHour).Round(2), model.EarningsTypeTime, g.RatePerHour, nil
	case model.RateTypeFixedDaily:
		return g.FixedDailyRate.Round(2), model.EarningsTypeFixed, g.FixedDailyRate, nil
	case model.RateTypeHybrid:
		total := distanceKm.Mul(g.RatePerKm).Add(hours.Mul(g.RatePerHour))
		return total.Round(2), model.EarningsTypeHybrid, g.RatePerKm, nil
	default:
		return decimal.Zero, "", decimal.Zero, pkgerrors.EarningsUnknownRate
	}
}

// CalculateForSession 为已闭合的会话生成收益记录
// 同一会话只记一次账，abandoned 会话不产生收益
func (s *EarningsService) CalculateForSession(
	ctx context.Context,
	tx *gorm.DB,
	session *model.WorkSession,
) (*model.EarningsRecord, error) {
	if session.Status != model.SessionStatusCompleted {
		return nil, nil
	}

	var existing model.EarningsRecord
	err := tx.Where("session_id = ?", session.ID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to query session earnings: %w", err)
	}

	var geofence model.Geofence
	if err := tx.First(&geofence, session.GeofenceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.GeofenceNotFound
		}
		return nil, fmt.Errorf("failed to load geofence: %w", err)
	}

	amount, kind, rate, err := s.Compute(&geofence, session.DistanceKm, session.DurationMinutes)
	if err != nil {
		return nil, err
	}

	earnedAt := time.Now()
	if session.EndedAt != nil {
		earnedAt = *session.EndedAt
	}

	// hybrid 的 rate_applied 只存每公里费率，两个费率都进 metadata
	var metadata []byte
	if kind == model.EarningsTypeHybrid {
		metadata, _ = json.Marshal(map[string]string{
			"rate_per_km":   geofence.RatePerKm.String(),
			"rate_per_hour": geofence.RatePerHour.String(),
		})
	}

	record := &model.EarningsRecord{
		RiderID:                session.RiderID,
		GeofenceID:             session.GeofenceID,
		SessionID:              &session.ID,
		EarningsType:           kind,
		Amount:                 amount,
		Currency:               config.Cfg.EarningsCurrency,
		DistanceKm:             session.DistanceKm,
		DurationHours:          decimal.NewFromInt(int64(session.DurationMinutes)).Div(sixty).Round(2),
		RateApplied:            rate,
		EarnedAt:               earnedAt,
		Status:                 model.EarningsStatusCalculated,
		VerificationsCompleted: session.VerificationCount,
		Metadata:               metadata,
	}

	if err := tx.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create earnings record: %w", err)
	}

	if err := tx.Model(session).Update("earnings_amount", amount).Error; err != nil {
		return nil, fmt.Errorf("failed to update session earnings: %w", err)
	}

	logger.Logger.Info("Earnings calculated",
		zap.Int64("earnings_id", record.ID),
		zap.Int64("session_id", session.ID),
		zap.String("kind", string(kind)),
		zap.String("amount", amount.String()),
	)

	if m := metrics.GetMetrics(); m != nil {
		m.RecordEarnings(ctx, string(kind), amount.InexactFloat64())
	}

	return record, nil
}

// Manual 手动收益计算，mobile_id 为幂等键，重复请求返回已有记录
func (s *EarningsService) Manual(
	ctx context.Context,
	riderID int64,
	req dto.ManualEarningsRequest,
) (*model.EarningsRecord, error) {
	if !utils.ValidateMobileID(req.MobileID) {
		return nil, pkgerrors.InvalidBatch
	}

	db := database.DB().WithContext(ctx)

	var existing model.EarningsRecord
	err := db.Where("mobile_id = ?", req.MobileID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to query earnings by mobile_id: %w", err)
	}

	var geofence model.Geofence
	if err := db.First(&geofence, req.GeofenceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.GeofenceNotFound
		}
		return nil, fmt.Errorf("failed to load geofence: %w", err)
	}

	var distance decimal.Decimal
	if req.DistanceKm != nil {
		distance = decimal.NewFromFloat(*req.DistanceKm).Round(3)
	}
	var durationMinutes int
	if req.DurationHours != nil {
		durationMinutes = int(*req.DurationHours * 60)
	}

	amount, kind, rate, err := s.Compute(&geofence, distance, durationMinutes)
	if err != nil {
		return nil, err
	}

	// bonus/correction 按围栏公式计算金额，类型按请求记录
	switch model.EarningsType(req.EarningsType) {
	case model.EarningsTypeBonus, model.EarningsTypeCorrection:
		kind = model.EarningsType(req.EarningsType)
	}

	meta := req.Metadata
	if kind == model.EarningsTypeHybrid {
		if meta == nil {
			meta = map[string]interface{}{}
		}
		meta["rate_per_km"] = geofence.RatePerKm.String()
		meta["rate_per_hour"] = geofence.RatePerHour.String()
	}
	var metadata []byte
	if meta != nil {
		metadata, _ = json.Marshal(meta)
	}

	// 离线补传按客户端给的发生时间记账，汇总也落到对应日期
	earnedAt := time.Now()
	if req.EarnedAt != nil {
		earnedAt = *req.EarnedAt
	}

	record := &model.EarningsRecord{
		MobileID:               &req.MobileID,
		RiderID:                riderID,
		GeofenceID:             geofence.ID,
		EarningsType:           kind,
		Amount:                 amount,
		Currency:               config.Cfg.EarningsCurrency,
		DistanceKm:             distance,
		DurationHours:          decimal.NewFromInt(int64(durationMinutes)).Div(sixty).Round(2),
		RateApplied:            rate,
		EarnedAt:               earnedAt,
		Status:                 model.EarningsStatusCalculated,
		VerificationsCompleted: req.VerificationsCompleted,
		Metadata:               metadata,
	}

	// 并发重复请求时靠唯一索引兜底
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mobile_id"}},
		DoNothing: true,
	}).Create(record).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create earnings record: %w", err)
	}

	if record.ID == 0 {
		if err := db.Where("mobile_id = ?", req.MobileID).First(record).Error; err != nil {
			return nil, fmt.Errorf("failed to reload earnings record: %w", err)
		}
		return record, nil
	}

	if err := Summary().AddEarningsRecord(db, record); err != nil {
		logger.Logger.Warn("Failed to update daily summary for manual earnings",
			zap.Int64("earnings_id", record.ID),
			zap.Error(err),
		)
	}

	if m := metrics.GetMetrics(); m != nil {
		m.RecordEarnings(ctx, string(kind), amount.InexactFloat64())
	}

	return record, nil
}

// ListByRider 按游标分页查询骑手收益记录
func (s *EarningsService) ListByRider(
	ctx context.Context,
	riderID int64,
	cursorID int64,
	limit int,
) ([]*model.EarningsRecord, int64, error) {
	db := database.DB().WithContext(ctx)

	q := db.Where("rider_id = ?", riderID)
	if cursorID > 0 {
		q = q.Where("id < ?", cursorID)
	}

	var records []*model.EarningsRecord
	if err := q.Order("id DESC").Limit(limit + 1).Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list earnings: %w", err)
	}

	var nextCursor int64
	if len(records) > limit {
		nextCursor = records[limit].ID
		records = records[:limit]
	}

	return records, nextCursor, nil
}
