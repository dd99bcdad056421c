package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stika/config"
	"stika/internal/schedule"
	"stika/pkg/logger"
	"stika/pkg/metrics"
	pkgotel "stika/pkg/otel"
	"stika/pkg/snowflake"
	"stika/storage"
)

func main() {

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownOtel, err := pkgotel.InitOpenTelemetry(ctx, pkgotel.Config{
		ServiceName:  config.Cfg.ServiceName + "-scheduler",
		Environment:  config.Cfg.Environment,
		OTLPEndpoint: config.Cfg.OTLPEndpoint,
		SampleRatio:  config.Cfg.OTLPSampler,
	})
	if err != nil {
		logger.Logger.Warn("Failed to initialize OpenTelemetry, tracing disabled", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownOtel(shutdownCtx); err != nil {
				logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
			}
		}()
	}

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Fatal("Failed to initialize domain metrics", zap.Error(err))
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	// 考虑与 worker 和 server 作区分
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
	)

	go runSessionSweepLoop(ctx)
	go runVerificationExpireLoop(ctx)
	go runSpotCheckDispatchLoop(ctx)

	<-ctx.Done()

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

// runSessionSweepLoop 周期性扫描超时未闭合的工作会话
func runSessionSweepLoop(ctx context.Context) {
	s := schedule.GetSessionScheduler()

	interval := time.Duration(config.Cfg.SessionSweepMinutes) * time.Minute
	if config.Cfg.Environment == "development" {
		interval = 1 * time.Minute
		logger.Logger.Info("Session sweep loop running in development mode with 1m interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			if err := s.SweepAbandonedSessions(runCtx); err != nil {
				logger.Logger.Error("Session sweep run failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// runVerificationExpireLoop 周期性将超过响应窗口的抽查判为失败
// 响应窗口只有 10 分钟，扫描间隔要明显小于窗口
func runVerificationExpireLoop(ctx context.Context) {
	s := schedule.GetVerificationScheduler()

	interval := time.Duration(config.Cfg.VerificationSweepMinutes) * time.Minute

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			if err := s.ExpireOverdueVerifications(runCtx); err != nil {
				logger.Logger.Error("Verification expire run failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// runSpotCheckDispatchLoop 周期性为长会话骑手派发抽查
func runSpotCheckDispatchLoop(ctx context.Context) {
	s := schedule.GetVerificationScheduler()

	interval := time.Duration(config.Cfg.SpotCheckDispatchMinutes) * time.Minute
	if config.Cfg.Environment == "development" {
		interval = 1 * time.Minute
		logger.Logger.Info("Spot check dispatch loop running in development mode with 1m interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			if err := s.DispatchSpotChecks(runCtx); err != nil {
				logger.Logger.Error("Spot check dispatch run failed", zap.Error(err))
			}
			cancel()
		}
	}
}
