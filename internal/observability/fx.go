package observability

import (
	"github.com/smallbiznis/procura/internal/observability/logger"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	"github.com/smallbiznis/procura/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		provideMiddlewareConfig,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		provideTaskMetrics,
	),
	fx.Invoke(ensureTracingProvider),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

func provideMiddlewareConfig(cfg Config) logger.MiddlewareConfig {
	return logger.MiddlewareConfig{Debug: cfg.Debug()}
}

func provideTracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.Export.Enabled(),
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.Export.Endpoint,
		ExporterProtocol: cfg.Export.Protocol,
		SamplingRatio:    cfg.Export.SamplingRatio,
	}
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.Export.Enabled(),
		ExporterEndpoint: cfg.Export.Endpoint,
		ExporterProtocol: cfg.Export.Protocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}

func provideTaskMetrics(cfg metrics.Config) *metrics.TaskMetrics {
	return metrics.TasksWithConfig(cfg)
}
