package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stika/internal/cache"
	"stika/internal/model"
	"stika/internal/model/dto"
	pkgerrors "stika/pkg/errors"
	"stika/pkg/logger"
	"stika/storage/database"
)

// 围栏容量分配
// 占用计数通过条件 UPDATE 原子递增，并发加入不会超卖

type AllocatorService struct{}

var (
	allocatorService *AllocatorService
	allocatorOnce    sync.Once
)

func Allocator() *AllocatorService {
	allocatorOnce.Do(func() {
		allocatorService = &AllocatorService{}
	})
	return allocatorService
}

// ZoneDetail 围栏详情视图
// 几何与费率变动少，走短 TTL 缓存；occupancy 计数允许轻微滞后
func (s *AllocatorService) ZoneDetail(ctx context.Context, geofenceID int64) (*dto.ZoneItem, error) {
	key := strconv.FormatInt(geofenceID, 10)

	var cached dto.ZoneItem
	hit, err := cache.GeofenceProtectedCache.Get(ctx, key, &cached)
	if err != nil {
		logger.Logger.Warn("Failed to read geofence cache", zap.Error(err))
	}
	if hit {
		return &cached, nil
	}

	geofence, err := s.LoadGeofence(database.DB().WithContext(ctx), geofenceID)
	if err != nil {
		return nil, err
	}

	item := &dto.ZoneItem{
		GeofenceID:     geofence.ID,
		CampaignID:     geofence.CampaignID,
		Name:           geofence.Name,
		RateType:       string(geofence.RateType),
		Priority:       geofence.Priority,
		IsHighPriority: geofence.IsHighPriority,
		CenterLat:      geofence.CenterLat,
		CenterLng:      geofence.CenterLng,
		RadiusMeters:   geofence.RadiusMeters,
		CurrentRiders:  geofence.CurrentRiders,
		MaxRiders:      geofence.MaxRiders,
	}
	if err := cache.GeofenceProtectedCache.Set(ctx, key, item); err != nil {
		logger.Logger.Warn("Failed to write geofence cache", zap.Error(err))
	}

	return item, nil
}

// LoadGeofence 加载围栏，不存在时返回业务错误
func (s *AllocatorService) LoadGeofence(tx *gorm.DB, geofenceID int64) (*model.Geofence, error) {
	var geofence model.Geofence
	if err := tx.First(&geofence, geofenceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.GeofenceNotFound
		}
		return nil, fmt.Errorf("failed to load geofence: %w", err)
	}
	return &geofence, nil
}

// CheckEligibility 汇总骑手加入围栏的全部前置条件
// 返回的 reasons 面向客户端展示，不中断后续检查
func (s *AllocatorService) CheckEligibility(
	ctx context.Context,
	tx *gorm.DB,
	riderID int64,
	geofenceID int64,
) (*dto.EligibilityResult, *model.Geofence, error) {
	geofence, err := s.LoadGeofence(tx, geofenceID)
	if err != nil {
		return nil, nil, err
	}

	result := &dto.EligibilityResult{
		CanJoin:       true,
		CurrentRiders: geofence.CurrentRiders,
		MaxRiders:     geofence.MaxRiders,
	}
	now := time.Now()

	fail := func(reason string) {
		result.CanJoin = false
		result.Reasons = append(result.Reasons, reason)
	}

	if geofence.Status != model.GeofenceStatusActive {
		fail(pkgerrors.ZoneInactive.Code)
	}
	if !geofence.InWindow(now) {
		fail(pkgerrors.ZoneInactive.Code)
	}
	if geofence.IsFull() {
		fail(pkgerrors.ZoneAtCapacity.Code)
	}
	if !geofence.RemainingBudget().IsPositive() {
		fail(pkgerrors.NoRemainingBudget.Code)
	}

	var campaign model.Campaign
	if err := tx.First(&campaign, geofence.CampaignID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			fail(pkgerrors.ZoneInactive.Code)
		} else {
			return nil, nil, fmt.Errorf("failed to load campaign: %w", err)
		}
	} else if !campaign.IsRunning(now) {
		fail(pkgerrors.ZoneInactive.Code)
	}

	rider, err := s.loadRider(tx, riderID)
	if err != nil {
		return nil, nil, err
	}

	var activeCount int64
	err = tx.Model(&model.CampaignAssignment{}).
		Where("rider_id = ? AND status IN ?", riderID,
			[]model.AssignmentStatus{model.AssignmentStatusAssigned, model.AssignmentStatusActive}).
		Count(&activeCount).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count active assignments: %w", err)
	}
	if !rider.CanAcceptCampaign(int(activeCount)) {
		fail(pkgerrors.NotARider.Code)
	}

	assigned, err := s.hasActiveAssignment(tx, riderID, geofenceID)
	if err != nil {
		return nil, nil, err
	}
	if assigned {
		fail(pkgerrors.AlreadyAssigned.Code)
	}

	remaining, err := Cooldown().Remaining(tx, riderID, model.CooldownZoneJoin)
	if err != nil {
		return nil, nil, err
	}
	if remaining > 0 {
		fail(pkgerrors.CooldownActive.Code)
		result.CooldownRemainingSeconds = remaining
	}

	return result, geofence, nil
}

// EligibleZones 列出当前可加入的围栏
// 排序：is_high_priority 降序，priority 升序（数值小优先），current_riders 升序
// ignoreCapacity 是降级模式，忽略容量上限，只在调用方明确要求时使用
func (s *AllocatorService) EligibleZones(tx *gorm.DB, now time.Time, ignoreCapacity bool) ([]*model.Geofence, error) {
	q := tx.
		Joins("JOIN campaigns ON campaigns.id = geofences.campaign_id AND campaigns.deleted_at IS NULL").
		Where("geofences.status = ?", model.GeofenceStatusActive).
		Where("geofences.start_date <= ? AND geofences.end_date >= ?", now, now).
		Where("geofences.budget > geofences.spent").
		Where("campaigns.status = ?", model.CampaignStatusActive).
		Where("campaigns.start_date <= ? AND campaigns.end_date >= ?", now, now)

	if !ignoreCapacity {
		q = q.Where("geofences.max_riders = 0 OR geofences.current_riders < geofences.max_riders")
	}

	var zones []*model.Geofence
	err := q.Order("geofences.is_high_priority DESC, geofences.priority ASC, geofences.current_riders ASC").
		Find(&zones).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible zones: %w", err)
	}

	if ignoreCapacity {
		logger.Logger.Warn("Eligible zones listed in capacity-unaware mode",
			zap.Int("zone_count", len(zones)),
		)
	}

	return zones, nil
}

// BestZone 返回排序后的首个可加入围栏
func (s *AllocatorService) BestZone(tx *gorm.DB, now time.Time, ignoreCapacity bool) (*model.Geofence, error) {
	zones, err := s.EligibleZones(tx, now, ignoreCapacity)
	if err != nil {
		return nil, err
	}
	if len(zones) == 0 {
		return nil, pkgerrors.NoEligibleZone
	}
	return zones[0], nil
}

// ClaimSlot 原子占用一个围栏名额
// max_riders 为 0 表示不限容量
func (s *AllocatorService) ClaimSlot(tx *gorm.DB, geofenceID int64) error {
	result := tx.Model(&model.Geofence{}).
		Where("id = ? AND (max_riders = 0 OR current_riders < max_riders)", geofenceID).
		Update("current_riders", gorm.Expr("current_riders + 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to claim geofence slot: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ZoneAtCapacity
	}
	return nil
}

// ReleaseSlot 释放一个围栏名额，计数不会降到负数
func (s *AllocatorService) ReleaseSlot(tx *gorm.DB, geofenceID int64) error {
	result := tx.Model(&model.Geofence{}).
		Where("id = ? AND current_riders > 0", geofenceID).
		Update("current_riders", gorm.Expr("current_riders - 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to release geofence slot: %w", result.Error)
	}
	return nil
}

// Assign 创建围栏指派并保证活动指派存在
func (s *AllocatorService) Assign(
	tx *gorm.DB,
	riderID int64,
	geofence *model.Geofence,
	verificationID int64,
) (*model.GeofenceAssignment, error) {
	now := time.Now()

	assignment := &model.GeofenceAssignment{
		GeofenceID:     geofence.ID,
		RiderID:        riderID,
		Status:         model.AssignmentStatusActive,
		VerificationID: &verificationID,
		ActivatedAt:    &now,
	}
	if err := tx.Create(assignment).Error; err != nil {
		return nil, fmt.Errorf("failed to create geofence assignment: %w", err)
	}

	var campaignAssignment model.CampaignAssignment
	err := tx.Where("campaign_id = ? AND rider_id = ?", geofence.CampaignID, riderID).
		First(&campaignAssignment).Error
	if err == gorm.ErrRecordNotFound {
		campaignAssignment = model.CampaignAssignment{
			CampaignID: geofence.CampaignID,
			RiderID:    riderID,
			Status:     model.AssignmentStatusActive,
			StartedAt:  &now,
		}
		if err := tx.Create(&campaignAssignment).Error; err != nil {
			return nil, fmt.Errorf("failed to create campaign assignment: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to query campaign assignment: %w", err)
	}

	return assignment, nil
}

// ActiveGeofences 查询骑手当前有效指派的全部围栏
func (s *AllocatorService) ActiveGeofences(tx *gorm.DB, riderID int64) ([]*model.Geofence, error) {
	var geofences []*model.Geofence
	err := tx.
		Joins("JOIN geofence_assignments ON geofence_assignments.geofence_id = geofences.id").
		Where("geofence_assignments.rider_id = ? AND geofence_assignments.status IN ? AND geofence_assignments.deleted_at IS NULL",
			riderID,
			[]model.AssignmentStatus{model.AssignmentStatusAssigned, model.AssignmentStatusActive}).
		Find(&geofences).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active geofences: %w", err)
	}
	return geofences, nil
}

func (s *AllocatorService) loadRider(tx *gorm.DB, riderID int64) (*model.Rider, error) {
	var rider model.Rider
	if err := tx.First(&rider, riderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.NotARider
		}
		return nil, fmt.Errorf("failed to load rider: %w", err)
	}
	return &rider, nil
}

func (s *AllocatorService) hasActiveAssignment(tx *gorm.DB, riderID, geofenceID int64) (bool, error) {
	var count int64
	err := tx.Model(&model.GeofenceAssignment{}).
		Where("rider_id = ? AND geofence_id = ? AND status IN ?", riderID, geofenceID,
			[]model.AssignmentStatus{model.AssignmentStatusAssigned, model.AssignmentStatusActive}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count geofence assignments: %w", err)
	}
	return count > 0, nil
}
