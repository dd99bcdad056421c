package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stika/internal/model"
	"stika/storage/database"
	"stika/utils"
)

// 每日汇总按 (rider_id, date) upsert 维护，增量叠加避免全量重算

type SummaryService struct{}

var (
	summaryService *SummaryService
	summaryOnce    sync.Once
)

func Summary() *SummaryService {
	summaryOnce.Do(func() {
		summaryService = &SummaryService{}
	})
	return summaryService
}

var summaryConflict = clause.OnConflict{
	Columns: []clause.Column{{Name: "rider_id"}, {Name: "date"}},
}

// upsert 以增量表达式叠加汇总字段
func (s *SummaryService) upsert(
	tx *gorm.DB,
	row *model.DailySummary,
	assignments map[string]interface{},
) error {
	conflict := summaryConflict
	conflict.DoUpdates = clause.Assignments(assignments)

	if err := tx.Clauses(conflict).Create(row).Error; err != nil {
		return fmt.Errorf("failed to upsert daily summary: %w", err)
	}
	return nil
}

// AddLocations 叠加定位数与里程
func (s *SummaryService) AddLocations(
	tx *gorm.DB,
	riderID int64,
	day time.Time,
	count int,
	distanceKm decimal.Decimal,
) error {
	row := &model.DailySummary{
		RiderID:       riderID,
		Date:          utils.DayStart(day),
		LocationCount: count,
		DistanceKm:    distanceKm,
	}
	return s.upsert(tx, row, map[string]interface{}{
		"location_count": gorm.Expr("daily_summaries.location_count + ?", count),
		"distance_km":    gorm.Expr("daily_summaries.distance_km + ?", distanceKm),
		"updated_at":     time.Now(),
	})
}

// AddPresence 叠加进出围栏次数
func (s *SummaryService) AddPresence(
	tx *gorm.DB,
	riderID int64,
	day time.Time,
	kind model.PresenceEventKind,
) error {
	row := &model.DailySummary{RiderID: riderID, Date: utils.DayStart(day)}
	assignments := map[string]interface{}{"updated_at": time.Now()}

	if kind == model.PresenceEnter {
		row.GeofenceEnterCount = 1
		assignments["geofence_enter_count"] = gorm.Expr("daily_summaries.geofence_enter_count + 1")
	} else {
		row.GeofenceExitCount = 1
		assignments["geofence_exit_count"] = gorm.Expr("daily_summaries.geofence_exit_count + 1")
	}
	return s.upsert(tx, row, assignments)
}

// AddSessionClosed 叠加会话闭合统计与工作时长
func (s *SummaryService) AddSessionClosed(
	tx *gorm.DB,
	riderID int64,
	day time.Time,
	status model.SessionStatus,
	durationMinutes int,
) error {
	workingHours := decimal.NewFromInt(int64(durationMinutes)).Div(sixty).Round(2)

	row := &model.DailySummary{
		RiderID:       riderID,
		Date:          utils.DayStart(day),
		SessionsTotal: 1,
		WorkingHours:  workingHours,
	}
	assignments := map[string]interface{}{
		"sessions_total": gorm.Expr("daily_summaries.sessions_total + 1"),
		"working_hours":  gorm.Expr("daily_summaries.working_hours + ?", workingHours),
		"updated_at":     time.Now(),
	}

	switch status {
	case model.SessionStatusCompleted:
		row.SessionsCompleted = 1
		assignments["sessions_completed"] = gorm.Expr("daily_summaries.sessions_completed + 1")
	case model.SessionStatusAbandoned:
		row.SessionsAbandoned = 1
		assignments["sessions_abandoned"] = gorm.Expr("daily_summaries.sessions_abandoned + 1")
	}
	return s.upsert(tx, row, assignments)
}

// AddEarnings 按收益类型叠加金额
func (s *SummaryService) AddEarnings(
	tx *gorm.DB,
	riderID int64,
	day time.Time,
	kind model.EarningsType,
	amount decimal.Decimal,
) error {
	row := &model.DailySummary{
		RiderID:       riderID,
		Date:          utils.DayStart(day),
		EarningsTotal: amount,
	}
	assignments := map[string]interface{}{
		"earnings_total": gorm.Expr("daily_summaries.earnings_total + ?", amount),
		"updated_at":     time.Now(),
	}

	switch kind {
	case model.EarningsTypeDistance:
		row.EarningsDistance = amount
		assignments["earnings_distance"] = gorm.Expr("daily_summaries.earnings_distance + ?", amount)
	case model.EarningsTypeTime:
		row.EarningsTime = amount
		assignments["earnings_time"] = gorm.Expr("daily_summaries.earnings_time + ?", amount)
	case model.EarningsTypeFixed:
		row.EarningsFixed = amount
		assignments["earnings_fixed"] = gorm.Expr("daily_summaries.earnings_fixed + ?", amount)
	default:
		row.EarningsOther = amount
		assignments["earnings_other"] = gorm.Expr("daily_summaries.earnings_other + ?", amount)
	}
	return s.upsert(tx, row, assignments)
}

// AddEarningsRecord 叠加一条收益记录
// hybrid 记录按里程与时长两部分拆入对应桶，RateApplied 为每公里费率
func (s *SummaryService) AddEarningsRecord(tx *gorm.DB, record *model.EarningsRecord) error {
	if record.EarningsType != model.EarningsTypeHybrid {
		return s.AddEarnings(tx, record.RiderID, record.EarnedAt, record.EarningsType, record.Amount)
	}

	distancePortion := record.DistanceKm.Mul(record.RateApplied).Round(2)
	timePortion := record.Amount.Sub(distancePortion)
	if timePortion.IsNegative() {
		timePortion = decimal.Zero
	}

	if err := s.AddEarnings(tx, record.RiderID, record.EarnedAt, model.EarningsTypeDistance, distancePortion); err != nil {
		return err
	}
	return s.AddEarnings(tx, record.RiderID, record.EarnedAt, model.EarningsTypeTime, timePortion)
}

// AddVerification 叠加验证次数
func (s *SummaryService) AddVerification(
	tx *gorm.DB,
	riderID int64,
	day time.Time,
	passed bool,
) error {
	row := &model.DailySummary{
		RiderID:            riderID,
		Date:               utils.DayStart(day),
		VerificationsTotal: 1,
	}
	assignments := map[string]interface{}{
		"verifications_total": gorm.Expr("daily_summaries.verifications_total + 1"),
		"updated_at":          time.Now(),
	}
	if passed {
		row.VerificationsPassed = 1
		assignments["verifications_passed"] = gorm.Expr("daily_summaries.verifications_passed + 1")
	}
	return s.upsert(tx, row, assignments)
}

// AddSyncBatch 叠加批次数并记录最近一次批次成功率
func (s *SummaryService) AddSyncBatch(
	tx *gorm.DB,
	riderID int64,
	day time.Time,
	successRate decimal.Decimal,
) error {
	row := &model.DailySummary{
		RiderID:         riderID,
		Date:            utils.DayStart(day),
		SyncBatchCount:  1,
		SyncSuccessRate: successRate,
	}
	return s.upsert(tx, row, map[string]interface{}{
		"sync_batch_count":  gorm.Expr("daily_summaries.sync_batch_count + 1"),
		"sync_success_rate": successRate,
		"updated_at":        time.Now(),
	})
}

// ListByRider 查询骑手最近的每日汇总
func (s *SummaryService) ListByRider(
	ctx context.Context,
	riderID int64,
	days int,
) ([]*model.DailySummary, error) {
	db := database.DB().WithContext(ctx)

	since := utils.DayStart(time.Now()).AddDate(0, 0, -(days - 1))

	var summaries []*model.DailySummary
	err := db.Where("rider_id = ? AND date >= ?", riderID, since).
		Order("date DESC").
		Find(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list daily summaries: %w", err)
	}

	return summaries, nil
}
