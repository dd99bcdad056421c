package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"stika/internal/handler"
	"stika/internal/middleware"
)

func Register(h *server.Hertz) {

	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())
	v1 := h.Group("/v1")

	// 轨迹同步路由
	tracking := v1.Group("/tracking")
	tracking.Use(middleware.AuthMiddleware())
	{
		tracking.POST("/sync", middleware.SyncRateLimitMiddleware(), handler.SyncBatch) // 批量上报限流
		tracking.GET("/batches/:batch_id", handler.GetSyncBatch)
		tracking.POST("/earnings", handler.CreateManualEarnings)
		tracking.GET("/earnings", handler.ListEarnings)
		tracking.GET("/stats", handler.GetTrackingStats)
		tracking.GET("/sessions", handler.ListSessions)
		tracking.GET("/summaries", handler.ListSummaries)
	}

	// 围栏加入路由
	geofences := v1.Group("/geofences")
	geofences.Use(middleware.AuthMiddleware())
	{
		geofences.POST("/:geofence_id/join", middleware.JoinRateLimitMiddleware(), handler.JoinGeofence) // 加入动作限流
		geofences.POST("/:geofence_id/eligibility", handler.CheckEligibility)
		geofences.GET("/:geofence_id", handler.GetGeofence)
		geofences.GET("/recommended", handler.ListRecommendedZones)
	}

	// 照片验证路由
	verifications := v1.Group("/verifications")
	verifications.Use(middleware.AuthMiddleware())
	{
		verifications.POST("/spot-check", handler.RequestSpotCheck)
		verifications.GET("/pending", handler.ListPendingVerifications)
		verifications.POST("/:verification_id/submit", middleware.VerificationRateLimitMiddleware(), handler.SubmitVerification)
		verifications.GET("/history", handler.ListVerificationHistory)
		verifications.GET("/stats", handler.GetVerificationStats)
	}
}
