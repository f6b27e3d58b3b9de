package tasks

import (
	"context"

	"github.com/smallbiznis/procura/internal/config"
	obsmetrics "github.com/smallbiznis/procura/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("tasks",
	fx.Provide(NewRegistry),
	fx.Provide(provideRunner),
)

func provideRunner(lc fx.Lifecycle, cfg config.Config, registry *Registry, log *zap.Logger, metrics *obsmetrics.TaskMetrics) Runner {
	if cfg.Tasks.Workers <= 0 {
		return NewInlineRunner(registry, log)
	}

	pool := NewPool(cfg.Tasks, registry, log, metrics)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			pool.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return pool.Stop(ctx)
		},
	})
	return pool
}
