package handler

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"stika/internal/middleware"
	"stika/internal/model/dto"
	"stika/internal/service"
	pkgerrors "stika/pkg/errors"
	"stika/pkg/response"
	"stika/pkg/vision"
	"stika/storage/database"
)

// JoinGeofence 骑手申请加入围栏，multipart 表单携带定位与照片
// POST /v1/geofences/:geofence_id/join
func JoinGeofence(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	geofenceID, err := strconv.ParseInt(c.Param("geofence_id"), 10, 64)
	if err != nil {
		response.BindError(ctx, c, fmt.Errorf("invalid geofence_id: %w", err))
		return
	}

	var req dto.JoinZoneRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	req.GeofenceID = geofenceID

	photo, err := readPhoto(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	result, err := service.Verification().JoinZone(ctx, riderID, req, photo)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// CheckEligibility 预检骑手能否加入围栏，不产生副作用
// POST /v1/geofences/:geofence_id/eligibility
func CheckEligibility(ctx context.Context, c *app.RequestContext) {
	riderID, ok := middleware.GetRiderID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	geofenceID, err := strconv.ParseInt(c.Param("geofence_id"), 10, 64)
	if err != nil {
		response.BindError(ctx, c, fmt.Errorf("invalid geofence_id: %w", err))
		return
	}

	result, err := service.Verification().Eligibility(ctx, riderID, geofenceID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// GetGeofence 围栏详情
// GET /v1/geofences/:geofence_id
func GetGeofence(ctx context.Context, c *app.RequestContext) {
	if _, ok := middleware.GetRiderID(ctx, c); !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	geofenceID, err := strconv.ParseInt(c.Param("geofence_id"), 10, 64)
	if err != nil {
		response.BindError(ctx, c, fmt.Errorf("invalid geofence_id: %w", err))
		return
	}

	item, err := service.Allocator().ZoneDetail(ctx, geofenceID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, item)
}

// ListRecommendedZones 按优先级列出当前可加入的围栏
// include_full=true 为降级模式，忽略容量上限
// GET /v1/geofences/recommended
func ListRecommendedZones(ctx context.Context, c *app.RequestContext) {
	if _, ok := middleware.GetRiderID(ctx, c); !ok {
		response.Error(ctx, c, fmt.Errorf("rider ID not found in context"))
		return
	}

	ignoreCapacity := c.Query("include_full") == "true"

	db := database.DB().WithContext(ctx)
	zones, err := service.Allocator().EligibleZones(db, time.Now(), ignoreCapacity)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	items := make([]dto.ZoneItem, 0, len(zones))
	for _, g := range zones {
		items = append(items, dto.ZoneItem{
			GeofenceID:     g.ID,
			CampaignID:     g.CampaignID,
			Name:           g.Name,
			RateType:       string(g.RateType),
			Priority:       g.Priority,
			IsHighPriority: g.IsHighPriority,
			CenterLat:      g.CenterLat,
			CenterLng:      g.CenterLng,
			RadiusMeters:   g.RadiusMeters,
			CurrentRiders:  g.CurrentRiders,
			MaxRiders:      g.MaxRiders,
		})
	}

	response.Success(ctx, c, items)
}

// readPhoto 读取 multipart 表单中的 photo 字段
// 大小、格式与分辨率校验交给 vision
func readPhoto(c *app.RequestContext) (vision.Input, error) {
	header, err := c.FormFile("photo")
	if err != nil {
		return vision.Input{}, pkgerrors.InvalidImage
	}

	file, err := header.Open()
	if err != nil {
		return vision.Input{}, fmt.Errorf("failed to open uploaded photo: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return vision.Input{}, fmt.Errorf("failed to read uploaded photo: %w", err)
	}

	return vision.Input{
		Filename: header.Filename,
		Size:     header.Size,
		Data:     data,
	}, nil
}
