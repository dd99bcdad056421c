package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"stika/internal/middleware"
	"stika/internal/model/dto"
	"stika/internal/service"
	"stika/pkg/response"
)

// RequestSpotCheck 创建一次抽查请求
// POST /v1/verifications/spot-check
func RequestSpotCheck(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	var req dto.SpotCheckRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	verification, err := service.Verification().RequestSpotCheck(ctx, riderID, req.CampaignID, req.GeofenceID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, verification)
}

// ListPendingVerifications 查询待响应的抽查
// GET /v1/verifications/pending
func ListPendingVerifications(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	items, err := service.Verification().Pending(ctx, riderID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, items)
}

// SubmitVerification 提交抽查照片，multipart 表单携带定位与照片
// POST /v1/verifications/:verification_id/submit
func SubmitVerification(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	verificationID, err := strconv.ParseInt(c.Param("verification_id"), 10, 64)
	if err != nil {
		response.BindError(ctx, c, fmt.Errorf("invalid verification_id: %w", err))
		return
	}

	var req dto.SubmitVerificationRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	photo, err := readPhoto(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	result, err := service.Verification().Submit(ctx, riderID, verificationID, req, photo)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// ListVerificationHistory 游标分页查询验证历史
// GET /v1/verifications/history
func ListVerificationHistory(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	cursor, limit := pagination(c)
	items, nextCursor, err := service.Verification().History(ctx, riderID, cursor, limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.SuccessWithMeta(ctx, c, items, paginationMeta(nextCursor))
}

// GetVerificationStats 骑手验证统计
// GET /v1/verifications/stats
func GetVerificationStats(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	stats, err := service.Verification().Stats(ctx, riderID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, stats)
}
