package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	TracerName = "licensegate/license"
	MeterName  = "licensegate/license"
)

// Metrics holds the pipeline instruments
type Metrics struct {
	Attempts              metric.Int64Counter
	Duration              metric.Float64Histogram
	ExpirationActivations metric.Int64Counter
	BlacklistHits         metric.Int64Counter
	WatermarkCalls        metric.Int64Counter
	DeliveredBytes        metric.Int64Counter
}

// NewMetrics creates the pipeline instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	attempts, err := meter.Int64Counter(
		"license_pipeline_attempts_total",
		metric.WithDescription("Pipeline runs by operation and outcome code"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create attempts counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"license_pipeline_duration_seconds",
		metric.WithDescription("Pipeline run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	activations, err := meter.Int64Counter(
		"license_expiration_activations_total",
		metric.WithDescription("Duration licenses activated on first use"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activations counter: %w", err)
	}

	blacklistHits, err := meter.Int64Counter(
		"license_blacklist_hits_total",
		metric.WithDescription("Requests denied by a blacklist entry"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blacklist counter: %w", err)
	}

	watermarkCalls, err := meter.Int64Counter(
		"license_watermark_calls_total",
		metric.WithDescription("Calls to the watermark service by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watermark counter: %w", err)
	}

	deliveredBytes, err := meter.Int64Counter(
		"license_delivered_bytes_total",
		metric.WithDescription("Encrypted bytes written to download clients"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivered bytes counter: %w", err)
	}

	return &Metrics{
		Attempts:              attempts,
		Duration:              duration,
		ExpirationActivations: activations,
		BlacklistHits:         blacklistHits,
		WatermarkCalls:        watermarkCalls,
		DeliveredBytes:        deliveredBytes,
	}, nil
}

// RecordAttempt records one finished pipeline run
func (m *Metrics) RecordAttempt(ctx context.Context, operation string, code Code, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("code", string(code)),
	)
	m.Attempts.Add(ctx, 1, attrs)
	m.Duration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) recordActivation(ctx context.Context) {
	if m == nil {
		return
	}
	m.ExpirationActivations.Add(ctx, 1)
}

func (m *Metrics) recordBlacklistHit(ctx context.Context, code Code) {
	if m == nil {
		return
	}
	m.BlacklistHits.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(code))))
}

func (m *Metrics) recordWatermark(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.WatermarkCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordDelivered adds streamed bytes
func (m *Metrics) RecordDelivered(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.DeliveredBytes.Add(ctx, n)
}
