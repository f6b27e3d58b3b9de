package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/procura/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(func(client *redis.Client, cfg config.Config) Limiter {
		return New(client, cfg.UploadRate)
	}),
)
