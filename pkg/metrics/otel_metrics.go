package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 定位同步相关指标
	SamplesProcessedTotal metric.Int64Counter
	SampleFailuresTotal   metric.Int64Counter
	SyncBatchDuration     metric.Float64Histogram

	// 围栏与会话相关指标
	PresenceEventsTotal  metric.Int64Counter
	SessionsClosedTotal  metric.Int64Counter
	SessionDistanceKm    metric.Float64Histogram
	ActiveSessions       metric.Int64UpDownCounter

	// 收益相关指标
	EarningsRecordsTotal metric.Int64Counter
	EarningsAmount       metric.Float64Histogram

	// 验证与冷却相关指标
	VerificationsTotal      metric.Int64Counter
	CooldownRejectionsTotal metric.Int64Counter
}

var (
	// 全局指标实例
	metrics *OTelMetrics
	// meter 用于创建指标
	meter = otel.Meter("stika")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	var err error

	metrics = &OTelMetrics{}

	metrics.SamplesProcessedTotal, err = meter.Int64Counter(
		"tracking_samples_processed_total",
		metric.WithDescription("Total number of GPS samples processed"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return err
	}

	metrics.SampleFailuresTotal, err = meter.Int64Counter(
		"tracking_sample_failures_total",
		metric.WithDescription("Total number of GPS samples that failed processing"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return err
	}

	metrics.SyncBatchDuration, err = meter.Float64Histogram(
		"tracking_sync_batch_duration_seconds",
		metric.WithDescription("Time spent processing a sync batch in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	metrics.PresenceEventsTotal, err = meter.Int64Counter(
		"geofence_presence_events_total",
		metric.WithDescription("Total number of geofence enter/exit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	metrics.SessionsClosedTotal, err = meter.Int64Counter(
		"work_sessions_closed_total",
		metric.WithDescription("Total number of work sessions closed"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return err
	}

	metrics.SessionDistanceKm, err = meter.Float64Histogram(
		"work_session_distance_km",
		metric.WithDescription("Distance accumulated per closed work session"),
		metric.WithUnit("km"),
	)
	if err != nil {
		return err
	}

	metrics.ActiveSessions, err = meter.Int64UpDownCounter(
		"work_sessions_active",
		metric.WithDescription("Number of currently active work sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return err
	}

	metrics.EarningsRecordsTotal, err = meter.Int64Counter(
		"earnings_records_total",
		metric.WithDescription("Total number of earnings records created"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return err
	}

	metrics.EarningsAmount, err = meter.Float64Histogram(
		"earnings_amount",
		metric.WithDescription("Amount per earnings record"),
	)
	if err != nil {
		return err
	}

	metrics.VerificationsTotal, err = meter.Int64Counter(
		"verifications_total",
		metric.WithDescription("Total number of photo verification outcomes"),
		metric.WithUnit("{verification}"),
	)
	if err != nil {
		return err
	}

	metrics.CooldownRejectionsTotal, err = meter.Int64Counter(
		"cooldown_rejections_total",
		metric.WithDescription("Total number of attempts rejected by cooldown"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// GetMetrics 获取全局指标实例
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordBatchProcessed 记录批次处理结果
func (m *OTelMetrics) RecordBatchProcessed(ctx context.Context, status string, processed, failed int64, duration float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))

	m.SamplesProcessedTotal.Add(ctx, processed, attrs)
	m.SampleFailuresTotal.Add(ctx, failed, attrs)
	m.SyncBatchDuration.Record(ctx, duration, attrs)
}

// RecordPresenceEvent 记录围栏进出事件
func (m *OTelMetrics) RecordPresenceEvent(ctx context.Context, kind string) {
	m.PresenceEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordSessionClosed 记录会话关闭
func (m *OTelMetrics) RecordSessionClosed(ctx context.Context, status string, distanceKm float64) {
	m.SessionsClosedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
	m.SessionDistanceKm.Record(ctx, distanceKm)
	m.ActiveSessions.Add(ctx, -1)
}

// RecordSessionOpened 记录会话开启
func (m *OTelMetrics) RecordSessionOpened(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// RecordEarnings 记录收益生成
func (m *OTelMetrics) RecordEarnings(ctx context.Context, kind string, amount float64) {
	m.EarningsRecordsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
	m.EarningsAmount.Record(ctx, amount, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordVerification 记录验证结果
func (m *OTelMetrics) RecordVerification(ctx context.Context, kind, status string) {
	m.VerificationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordCooldownRejection 记录冷却拦截
func (m *OTelMetrics) RecordCooldownRejection(ctx context.Context, kind string) {
	m.CooldownRejectionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}
