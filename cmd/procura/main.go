package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/audit"
	"github.com/smallbiznis/procura/internal/authorization"
	"github.com/smallbiznis/procura/internal/cache"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/document"
	"github.com/smallbiznis/procura/internal/lock"
	"github.com/smallbiznis/procura/internal/migration"
	"github.com/smallbiznis/procura/internal/notification"
	"github.com/smallbiznis/procura/internal/observability"
	"github.com/smallbiznis/procura/internal/organization"
	"github.com/smallbiznis/procura/internal/providers"
	"github.com/smallbiznis/procura/internal/purchaserequest"
	"github.com/smallbiznis/procura/internal/ratelimit"
	"github.com/smallbiznis/procura/internal/server"
	"github.com/smallbiznis/procura/internal/tasks"
	"github.com/smallbiznis/procura/internal/user"
	"github.com/smallbiznis/procura/internal/workflow"
	"github.com/smallbiznis/procura/pkg/db"
	"github.com/smallbiznis/procura/pkg/log"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		lock.Module,
		ratelimit.Module,
		tasks.Module,
		providers.Module,

		// Domains
		audit.Module,
		authorization.Module,
		organization.Module,
		user.Module,
		purchaserequest.Module,
		workflow.Module,
		document.Module,
		notification.Module,

		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
