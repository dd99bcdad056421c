package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stika/config"
	"stika/internal/model"
	"stika/internal/model/dto"
	"stika/internal/queue"
	pkgerrors "stika/pkg/errors"
	"stika/pkg/geo"
	"stika/pkg/logger"
	"stika/pkg/metrics"
	"stika/pkg/vision"
	"stika/storage/database"
)

// 照片验证
// 加入围栏与抽查共用同一状态机：pending -> processing -> passed/failed/manual_review
// 置信度约定：加入通过 95，抽查通过 90，未通过 0

const (
	joinPassConfidence      = 95
	spotCheckPassConfidence = 90
)

var (
	verificationService *VerificationService
	verifyOnce          sync.Once
)

func Verification() *VerificationService {
	verifyOnce.Do(func() {
		verificationService = &VerificationService{}
	})

	return verificationService
}

type VerificationService struct{}

// JoinZone 骑手申请加入围栏：冷却、资格、定位、照片依次闸门
// 幂等窗口内重复加入直接返回已有结果
func (s *VerificationService) JoinZone(
	ctx context.Context,
	riderID int64,
	req dto.JoinZoneRequest,
	photo vision.Input,
) (*dto.JoinZoneResult, error) {
	db := database.DB().WithContext(ctx)
	now := time.Now()

	// 进闸原子占用冷却窗口，窗口内并发请求只放行一个
	if err := Cooldown().Claim(db, riderID, model.CooldownZoneJoin, now, 0); err != nil {
		return nil, err
	}

	// 幂等窗口内已有通过的加入验证
	if dup, err := s.recentPassedJoin(db, riderID, req.GeofenceID, now); err != nil {
		return nil, err
	} else if dup != nil {
		return &dto.JoinZoneResult{
			Status:         "duplicate",
			VerificationID: dup.ID,
			Confidence:     dup.ConfidenceScore.InexactFloat64(),
			GeofenceID:     req.GeofenceID,
		}, nil
	}

	eligibility, geofence, err := Allocator().CheckEligibility(ctx, db, riderID, req.GeofenceID)
	if err != nil {
		return nil, err
	}
	if !eligibility.CanJoin {
		return nil, eligibilityError(eligibility)
	}

	if !geo.ValidCoordinate(req.Latitude, req.Longitude) {
		return nil, pkgerrors.InvalidBatch
	}
	if !Presence().Contains(geofence, geo.Point{Lat: req.Latitude, Lng: req.Longitude}) {
		s.recordFailedAttempt(ctx, db, riderID, geofence, model.VerificationZoneJoin, req, pkgerrors.OutOfZone.Code)
		return nil, pkgerrors.OutOfZone
	}

	analysis, err := vision.Analyze(ctx, photo)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze photo: %w", err)
	}
	if !analysis.OK {
		v := s.recordFailedAttempt(ctx, db, riderID, geofence, model.VerificationZoneJoin, req, analysis.Reason)
		result := &dto.JoinZoneResult{
			Status:          string(model.VerificationStatusFailed),
			Confidence:      0,
			GeofenceID:      geofence.ID,
			Reason:          analysis.Reason,
			CooldownSeconds: config.Cfg.CooldownZoneJoinSeconds,
		}
		if v != nil {
			result.VerificationID = v.ID
		}
		return result, nil
	}

	imagePath, err := s.saveImage(photo)
	if err != nil {
		logger.Logger.Warn("Failed to persist verification image", zap.Error(err))
	}

	verification := &model.VerificationRequest{
		RiderID:         riderID,
		CampaignID:      geofence.CampaignID,
		GeofenceID:      &geofence.ID,
		Kind:            model.VerificationZoneJoin,
		ImagePath:       imagePath,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		Accuracy:        req.Accuracy,
		Timestamp:       now,
		Status:          model.VerificationStatusPassed,
		ConfidenceScore: decimal.NewFromInt(joinPassConfidence),
		Analysis:        marshalAnalysis(analysis),
	}

	var assignment *model.GeofenceAssignment
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := Allocator().ClaimSlot(tx, geofence.ID); err != nil {
			return err
		}

		if err := tx.Create(verification).Error; err != nil {
			return fmt.Errorf("failed to create verification request: %w", err)
		}

		var err error
		assignment, err = Allocator().Assign(tx, riderID, geofence, verification.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	queue.PublishVerificationOutcome(ctx, verification, "")
	if m := metrics.GetMetrics(); m != nil {
		m.RecordVerification(ctx, string(model.VerificationZoneJoin), string(model.VerificationStatusPassed))
	}

	logger.Logger.Info("Rider joined geofence",
		zap.Int64("rider_id", riderID),
		zap.Int64("geofence_id", geofence.ID),
		zap.Int64("verification_id", verification.ID),
	)

	return &dto.JoinZoneResult{
		Status:         string(model.VerificationStatusPassed),
		VerificationID: verification.ID,
		Confidence:     joinPassConfidence,
		GeofenceID:     geofence.ID,
		AssignmentID:   &assignment.ID,
		CurrentRiders:  geofence.CurrentRiders + 1,
		MaxRiders:      geofence.MaxRiders,
	}, nil
}

// Eligibility 加入资格预检，不产生副作用
func (s *VerificationService) Eligibility(
	ctx context.Context,
	riderID int64,
	geofenceID int64,
) (*dto.EligibilityResult, error) {
	db := database.DB().WithContext(ctx)

	result, _, err := Allocator().CheckEligibility(ctx, db, riderID, geofenceID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RequestSpotCheck 为骑手创建一次抽查请求
// 已有未过期的 pending 请求时不重复创建
func (s *VerificationService) RequestSpotCheck(
	ctx context.Context,
	riderID int64,
	campaignID int64,
	geofenceID int64,
) (*model.VerificationRequest, error) {
	db := database.DB().WithContext(ctx)

	var pending int64
	err := db.Model(&model.VerificationRequest{}).
		Where("rider_id = ? AND kind = ? AND status = ?",
			riderID, model.VerificationSpotCheck, model.VerificationStatusPending).
		Count(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count pending verifications: %w", err)
	}
	if pending > 0 {
		return nil, pkgerrors.VerificationPending
	}

	verification := &model.VerificationRequest{
		RiderID:    riderID,
		CampaignID: campaignID,
		GeofenceID: &geofenceID,
		Kind:       model.VerificationSpotCheck,
		Timestamp:  time.Now(),
		Status:     model.VerificationStatusPending,
	}
	if err := db.Create(verification).Error; err != nil {
		return nil, fmt.Errorf("failed to create spot check request: %w", err)
	}

	logger.Logger.Info("Spot check requested",
		zap.Int64("rider_id", riderID),
		zap.Int64("verification_id", verification.ID),
	)

	return verification, nil
}

// Pending 查询骑手待响应的抽查请求
func (s *VerificationService) Pending(ctx context.Context, riderID int64) ([]dto.PendingVerificationItem, error) {
	db := database.DB().WithContext(ctx)
	window := time.Duration(config.Cfg.VerificationResponseSeconds) * time.Second

	var requests []model.VerificationRequest
	err := db.Where("rider_id = ? AND status = ?", riderID, model.VerificationStatusPending).
		Order("created_at ASC").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending verifications: %w", err)
	}

	now := time.Now()
	items := make([]dto.PendingVerificationItem, 0, len(requests))
	for _, req := range requests {
		deadline := req.CreatedAt.Add(window)
		remaining := int(deadline.Sub(now).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		items = append(items, dto.PendingVerificationItem{
			VerificationID:   req.ID,
			CampaignID:       req.CampaignID,
			GeofenceID:       req.GeofenceID,
			Kind:             string(req.Kind),
			RequestedAt:      req.CreatedAt,
			Deadline:         deadline,
			SecondsRemaining: remaining,
		})
	}

	return items, nil
}

// Submit 骑手提交抽查照片
// 超过响应窗口的请求直接判失败
func (s *VerificationService) Submit(
	ctx context.Context,
	riderID int64,
	verificationID int64,
	req dto.SubmitVerificationRequest,
	photo vision.Input,
) (*dto.SubmitVerificationResult, error) {
	db := database.DB().WithContext(ctx)
	now := time.Now()

	var verification model.VerificationRequest
	err := db.Where("id = ? AND rider_id = ?", verificationID, riderID).First(&verification).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.VerificationNotFound
		}
		return nil, fmt.Errorf("failed to load verification request: %w", err)
	}
	if verification.Status != model.VerificationStatusPending {
		return nil, pkgerrors.VerificationNotFound
	}

	window := time.Duration(config.Cfg.VerificationResponseSeconds) * time.Second
	if now.After(verification.CreatedAt.Add(window)) {
		if err := s.failVerification(ctx, db, &verification, "response window passed"); err != nil {
			return nil, err
		}
		return nil, pkgerrors.VerificationExpired
	}

	if err := Cooldown().Claim(db, riderID, model.CooldownSpotCheck, now, 0); err != nil {
		return nil, err
	}

	analysis, err := vision.Analyze(ctx, photo)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze photo: %w", err)
	}

	imagePath, err := s.saveImage(photo)
	if err != nil {
		logger.Logger.Warn("Failed to persist verification image", zap.Error(err))
	}

	status := model.VerificationStatusPassed
	confidence := decimal.NewFromInt(spotCheckPassConfidence)
	reason := ""
	if !analysis.OK {
		status = model.VerificationStatusFailed
		confidence = decimal.Zero
		reason = analysis.Reason
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":           status,
			"confidence_score": confidence,
			"image_path":       imagePath,
			"latitude":         req.Latitude,
			"longitude":        req.Longitude,
			"accuracy":         req.Accuracy,
			"timestamp":        now,
			"analysis":         marshalAnalysis(analysis),
		}
		if err := tx.Model(&verification).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update verification request: %w", err)
		}

		if status == model.VerificationStatusPassed && verification.GeofenceID != nil {
			err := tx.Model(&model.WorkSession{}).
				Where("rider_id = ? AND geofence_id = ? AND status = ?",
					riderID, *verification.GeofenceID, model.SessionStatusActive).
				Update("verification_count", gorm.Expr("verification_count + 1")).Error
			if err != nil {
				return fmt.Errorf("failed to bump session verification count: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	verification.Status = status
	verification.ConfidenceScore = confidence
	queue.PublishVerificationOutcome(ctx, &verification, reason)
	if m := metrics.GetMetrics(); m != nil {
		m.RecordVerification(ctx, string(verification.Kind), string(status))
	}

	return &dto.SubmitVerificationResult{
		VerificationID:  verification.ID,
		Status:          string(status),
		Confidence:      confidence.InexactFloat64(),
		Reason:          reason,
		CooldownSeconds: config.Cfg.CooldownSpotCheckSeconds,
	}, nil
}

// ExpireOverdue 将超过响应窗口仍 pending 的请求判为失败，调度器周期调用
func (s *VerificationService) ExpireOverdue(ctx context.Context) (int64, error) {
	db := database.DB().WithContext(ctx)
	window := time.Duration(config.Cfg.VerificationResponseSeconds) * time.Second
	cutoff := time.Now().Add(-window)

	var overdue []model.VerificationRequest
	err := db.Where("status = ? AND created_at < ?", model.VerificationStatusPending, cutoff).
		Find(&overdue).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load overdue verifications: %w", err)
	}

	var expired int64
	for i := range overdue {
		if err := s.failVerification(ctx, db, &overdue[i], "response window passed"); err != nil {
			logger.Logger.Warn("Failed to expire verification",
				zap.Int64("verification_id", overdue[i].ID),
				zap.Error(err),
			)
			continue
		}
		expired++
	}

	if expired > 0 {
		logger.Logger.Info("Overdue verifications expired",
			zap.Int64("count", expired),
		)
	}

	return expired, nil
}

// History 查询骑手验证历史
func (s *VerificationService) History(
	ctx context.Context,
	riderID int64,
	cursorID int64,
	limit int,
) ([]dto.VerificationHistoryItem, int64, error) {
	db := database.DB().WithContext(ctx)

	q := db.Where("rider_id = ?", riderID)
	if cursorID > 0 {
		q = q.Where("id < ?", cursorID)
	}

	var requests []model.VerificationRequest
	if err := q.Order("id DESC").Limit(limit + 1).Find(&requests).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list verification history: %w", err)
	}

	var nextCursor int64
	if len(requests) > limit {
		nextCursor = requests[limit].ID
		requests = requests[:limit]
	}

	items := make([]dto.VerificationHistoryItem, 0, len(requests))
	for _, req := range requests {
		items = append(items, dto.VerificationHistoryItem{
			VerificationID: req.ID,
			CampaignID:     req.CampaignID,
			Kind:           string(req.Kind),
			Status:         string(req.Status),
			Confidence:     req.ConfidenceScore.InexactFloat64(),
			RequestedAt:    req.CreatedAt,
		})
	}

	return items, nextCursor, nil
}

// Stats 汇总骑手验证统计
func (s *VerificationService) Stats(ctx context.Context, riderID int64) (*dto.VerificationStatsResponse, error) {
	db := database.DB().WithContext(ctx)

	var rows []struct {
		Status string
		Count  int
	}
	err := db.Model(&model.VerificationRequest{}).
		Select("status, COUNT(*) AS count").
		Where("rider_id = ?", riderID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate verification stats: %w", err)
	}

	stats := &dto.VerificationStatsResponse{}
	for _, row := range rows {
		stats.Total += row.Count
		switch model.VerificationStatus(row.Status) {
		case model.VerificationStatusPassed:
			stats.Passed += row.Count
		case model.VerificationStatusFailed:
			stats.Failed += row.Count
		case model.VerificationStatusPending, model.VerificationStatusProcessing:
			stats.Pending += row.Count
		}
	}

	decided := stats.Passed + stats.Failed
	if decided > 0 {
		stats.PassRate = decimal.NewFromInt(int64(stats.Passed)).
			Div(decimal.NewFromInt(int64(decided))).
			Mul(decimal.NewFromInt(100)).Round(2).String()
	} else {
		stats.PassRate = "0"
	}

	// 抽查平均响应时长：提交时间与请求时间的差
	var avgSeconds float64
	err = db.Model(&model.VerificationRequest{}).
		Select("COALESCE(AVG(" + responseSecondsExpr(db) + "), 0)").
		Where("rider_id = ? AND kind = ? AND status IN ?",
			riderID, model.VerificationSpotCheck,
			[]model.VerificationStatus{model.VerificationStatusPassed, model.VerificationStatusFailed}).
		Scan(&avgSeconds).Error
	if err != nil {
		logger.Logger.Warn("Failed to compute average response time", zap.Error(err))
	}
	stats.AvgResponseSeconds = decimal.NewFromFloat(avgSeconds).Round(1).String()

	return stats, nil
}

// recentPassedJoin 幂等窗口内已通过的加入验证
func (s *VerificationService) recentPassedJoin(
	db *gorm.DB,
	riderID, geofenceID int64,
	now time.Time,
) (*model.VerificationRequest, error) {
	window := time.Duration(config.Cfg.DuplicateJoinWindowMinutes) * time.Minute

	var verification model.VerificationRequest
	err := db.Where("rider_id = ? AND geofence_id = ? AND kind = ? AND status = ? AND created_at > ?",
		riderID, geofenceID, model.VerificationZoneJoin, model.VerificationStatusPassed, now.Add(-window)).
		Order("created_at DESC").
		First(&verification).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query recent join verification: %w", err)
	}
	return &verification, nil
}

// recordFailedAttempt 落一条失败的验证记录，尽力而为
// 冷却已在进闸时占用，这里只留痕
func (s *VerificationService) recordFailedAttempt(
	ctx context.Context,
	db *gorm.DB,
	riderID int64,
	geofence *model.Geofence,
	kind model.VerificationKind,
	req dto.JoinZoneRequest,
	reason string,
) *model.VerificationRequest {
	verification := &model.VerificationRequest{
		RiderID:         riderID,
		CampaignID:      geofence.CampaignID,
		GeofenceID:      &geofence.ID,
		Kind:            kind,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		Accuracy:        req.Accuracy,
		Timestamp:       time.Now(),
		Status:          model.VerificationStatusFailed,
		ConfidenceScore: decimal.Zero,
	}

	if err := db.Create(verification).Error; err != nil {
		logger.Logger.Warn("Failed to record failed verification attempt",
			zap.Int64("rider_id", riderID),
			zap.Error(err),
		)
		return nil
	}

	queue.PublishVerificationOutcome(ctx, verification, reason)
	if m := metrics.GetMetrics(); m != nil {
		m.RecordVerification(ctx, string(kind), string(model.VerificationStatusFailed))
	}

	return verification
}

func (s *VerificationService) failVerification(
	ctx context.Context,
	db *gorm.DB,
	verification *model.VerificationRequest,
	reason string,
) error {
	err := db.Model(verification).Updates(map[string]interface{}{
		"status":           model.VerificationStatusFailed,
		"confidence_score": decimal.Zero,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to fail verification: %w", err)
	}

	verification.Status = model.VerificationStatusFailed
	verification.ConfidenceScore = decimal.Zero
	queue.PublishVerificationOutcome(ctx, verification, reason)
	if m := metrics.GetMetrics(); m != nil {
		m.RecordVerification(ctx, string(verification.Kind), string(model.VerificationStatusFailed))
	}

	return nil
}

// saveImage 保存照片到媒体目录，目录未配置时跳过
func (s *VerificationService) saveImage(photo vision.Input) (string, error) {
	dir := config.Cfg.VerificationMediaDir
	if dir == "" || len(photo.Data) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create media dir: %w", err)
	}

	name := uuid.NewString() + filepath.Ext(photo.Filename)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, photo.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	return path, nil
}

// eligibilityError 将资格检查的首要原因映射为业务错误
func eligibilityError(result *dto.EligibilityResult) error {
	if len(result.Reasons) == 0 {
		return pkgerrors.NoEligibleZone
	}
	return pkgerrors.Get(result.Reasons[0])
}

func marshalAnalysis(result *vision.Result) []byte {
	if result == nil {
		return nil
	}
	data, _ := json.Marshal(map[string]interface{}{
		"ok":     result.OK,
		"reason": result.Reason,
		"width":  result.Width,
		"height": result.Height,
		"format": result.Format,
	})
	return data
}

// responseSecondsExpr 提交与请求的时间差（秒），postgres 与 sqlite 语法不同
func responseSecondsExpr(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return "(julianday(timestamp) - julianday(created_at)) * 86400"
	}
	return "EXTRACT(EPOCH FROM (timestamp - created_at))"
}
