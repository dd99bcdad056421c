package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"stika/internal/middleware"
	"stika/internal/model"
	"stika/internal/model/dto"
	"stika/internal/service"
	"stika/pkg/response"
)

// SyncBatch 批量上报 GPS 采样
// POST /v1/tracking/sync
func SyncBatch(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	var req dto.SyncBatchRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	result, err := service.Tracking().ProcessBatch(ctx, riderID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// GetSyncBatch 查询批次处理结果，客户端可用于重传后的状态确认
// GET /v1/tracking/batches/:batch_id
func GetSyncBatch(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	result, err := service.Tracking().GetBatch(ctx, riderID, c.Param("batch_id"))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// CreateManualEarnings 手动收益补录
// POST /v1/tracking/earnings
func CreateManualEarnings(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	var req dto.ManualEarningsRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	record, err := service.Earnings().Manual(ctx, riderID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, earningsItem(record))
}

// GetTrackingStats 骑手追踪统计
// GET /v1/tracking/stats
func GetTrackingStats(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	stats, err := service.Tracking().Stats(ctx, riderID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, stats)
}

// ListSessions 游标分页查询工作会话
// GET /v1/tracking/sessions
func ListSessions(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	cursor, limit := pagination(c)
	sessions, nextCursor, err := service.Session().ListByRider(ctx, riderID, cursor, limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	items := make([]dto.SessionItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, dto.SessionItem{
			ID:              strconv.FormatInt(s.ID, 10),
			GeofenceID:      s.GeofenceID,
			Status:          string(s.Status),
			StartedAt:       s.StartedAt,
			EndedAt:         s.EndedAt,
			DurationMinutes: s.DurationMinutes,
			DistanceKm:      s.DistanceKm.String(),
			EarningsAmount:  s.EarningsAmount.String(),
		})
	}

	response.SuccessWithMeta(ctx, c, items, paginationMeta(nextCursor))
}

// ListEarnings 游标分页查询收益记录
// GET /v1/tracking/earnings
func ListEarnings(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	cursor, limit := pagination(c)
	records, nextCursor, err := service.Earnings().ListByRider(ctx, riderID, cursor, limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	items := make([]dto.EarningsItem, 0, len(records))
	for _, r := range records {
		items = append(items, earningsItem(r))
	}

	response.SuccessWithMeta(ctx, c, items, paginationMeta(nextCursor))
}

// ListSummaries 查询近 N 天每日汇总
// GET /v1/tracking/summaries
func ListSummaries(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 {
		days = 7
	}
	if days > 90 {
		days = 90
	}

	summaries, err := service.Summary().ListByRider(ctx, riderID, days)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	items := make([]dto.SummaryItem, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, dto.SummaryItem{
			Date:                s.Date.Format("2006-01-02"),
			LocationCount:       s.LocationCount,
			DistanceKm:          s.DistanceKm.String(),
			WorkingHours:        s.WorkingHours.String(),
			SessionsTotal:       s.SessionsTotal,
			SessionsCompleted:   s.SessionsCompleted,
			SessionsAbandoned:   s.SessionsAbandoned,
			EarningsTotal:       s.EarningsTotal.String(),
			VerificationsTotal:  s.VerificationsTotal,
			VerificationsPassed: s.VerificationsPassed,
			SyncSuccessRate:     s.SyncSuccessRate.String(),
		})
	}

	response.Success(ctx, c, items)
}

func earningsItem(r *model.EarningsRecord) dto.EarningsItem {
	return dto.EarningsItem{
		ID:            strconv.FormatInt(r.ID, 10),
		GeofenceID:    r.GeofenceID,
		SessionID:     r.SessionID,
		EarningsType:  string(r.EarningsType),
		Amount:        r.Amount.String(),
		Currency:      r.Currency,
		DistanceKm:    r.DistanceKm.String(),
		DurationHours: r.DurationHours.String(),
		RateApplied:   r.RateApplied.String(),
		Status:        string(r.Status),
		EarnedAt:      r.EarnedAt,
	}
}

func pagination(c *app.RequestContext) (int64, int) {
	cursor, err := strconv.ParseInt(c.DefaultQuery("cursor", "0"), 10, 64)
	if err != nil || cursor < 0 {
		cursor = 0
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return cursor, limit
}

func paginationMeta(nextCursor int64) map[string]interface{} {
	meta := map[string]interface{}{
		"has_more": nextCursor > 0,
	}
	if nextCursor > 0 {
		meta["next_cursor"] = strconv.FormatInt(nextCursor, 10)
	}
	return meta
}
