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

// Metrics exposes procurement domain instruments.
type Metrics struct {
	decisions       metric.Int64Counter
	reconciliations metric.Int64Counter
	notifications   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled || cfg.ExporterEndpoint == "" {
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

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down meter provider")
			return provider.Shutdown(ctx)
		},
	})

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "procura"
	}
	meter := provider.Meter(name)

	decisions, err := meter.Int64Counter("procura_approval_decisions_total")
	if err != nil {
		return nil, err
	}
	reconciliations, err := meter.Int64Counter("procura_reconciliations_total")
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("procura_notifications_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		decisions:       decisions,
		reconciliations: reconciliations,
		notifications:   notifications,
	}, nil
}

// NewNoop returns instruments bound to a no-op provider, for tests.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordDecision counts approve/reject outcomes per level.
func (m *Metrics) RecordDecision(ctx context.Context, action string, level int, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("action", strings.ToLower(action)),
		attribute.Int("level", level),
		attribute.String("outcome", outcome),
	)
	m.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconciliation counts reconciliation verdicts.
func (m *Metrics) RecordReconciliation(ctx context.Context, valid bool) {
	if m == nil {
		return
	}
	result := "discrepancy"
	if valid {
		result = "valid"
	}
	m.reconciliations.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("result", result))...))
}

// RecordNotification counts notification attempts by kind and outcome.
func (m *Metrics) RecordNotification(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	)
	m.notifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	case "grpc", "grpc/protobuf", "":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"action":  {},
	"level":   {},
	"outcome": {},
	"result":  {},
	"kind":    {},
	"task":    {},
	"route":   {},
	"method":  {},
	"status":  {},
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
