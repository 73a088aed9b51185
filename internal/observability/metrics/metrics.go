package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes ledger engine instruments.
type Metrics struct {
	transactions     metric.Int64Counter
	earnedPoints     metric.Int64Counter
	burnedPoints     metric.Int64Counter
	expiredPoints    metric.Int64Counter
	conflictRetries  metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "loyara"
	}
	meter := provider.Meter(name)

	transactions, err := meter.Int64Counter("loyara_ledger_transactions_total")
	if err != nil {
		return nil, err
	}
	earnedPoints, err := meter.Int64Counter("loyara_points_earned_total")
	if err != nil {
		return nil, err
	}
	burnedPoints, err := meter.Int64Counter("loyara_points_burned_total")
	if err != nil {
		return nil, err
	}
	expiredPoints, err := meter.Int64Counter("loyara_points_expired_total")
	if err != nil {
		return nil, err
	}
	conflictRetries, err := meter.Int64Counter("loyara_ledger_conflict_retries_total")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("loyara_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("loyara_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		transactions:     transactions,
		earnedPoints:     earnedPoints,
		burnedPoints:     burnedPoints,
		expiredPoints:    expiredPoints,
		conflictRetries:  conflictRetries,
		rateLimitAllowed: rateLimitAllowed,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordTransaction increments completed ledger transaction counts.
func (m *Metrics) RecordTransaction(ctx context.Context, txType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("type", strings.TrimSpace(txType)))
	m.transactions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEarnedPoints adds earned points by merchant.
func (m *Metrics) RecordEarnedPoints(ctx context.Context, merchantID string, points int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("merchant_id", strings.TrimSpace(merchantID)))
	m.earnedPoints.Add(ctx, points, metric.WithAttributes(attrs...))
}

// RecordBurnedPoints adds burned points by merchant.
func (m *Metrics) RecordBurnedPoints(ctx context.Context, merchantID string, points int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("merchant_id", strings.TrimSpace(merchantID)))
	m.burnedPoints.Add(ctx, points, metric.WithAttributes(attrs...))
}

// RecordExpiredPoints adds retired points from the expiry sweep.
func (m *Metrics) RecordExpiredPoints(ctx context.Context, points int64) {
	if m == nil {
		return
	}
	m.expiredPoints.Add(ctx, points)
}

// RecordConflictRetry increments conflict retry counts per operation.
func (m *Metrics) RecordConflictRetry(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.conflictRetries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"type":        {},
	"operation":   {},
	"merchant_id": {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
