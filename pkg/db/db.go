package db

import (
	"context"
	"time"

	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/pkg/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var Module = fx.Module("db",
	fx.Provide(Open),
)

// Open connects gorm to the configured database and ties the pool to the fx lifecycle.
func Open(lc fx.Lifecycle, cfg config.Config, zlog *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if !cfg.IsProduction() {
		level = logger.Info
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         log.NewGormLogger(level, 200*time.Millisecond),
		TranslateError: true,
		NowFunc:        utcNow,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Second)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := sqlDB.PingContext(ctx); err != nil {
				return err
			}
			zlog.Info("database connected", zap.String("type", cfg.DBType))
			return nil
		},
		OnStop: func(context.Context) error {
			return sqlDB.Close()
		},
	})

	return conn, nil
}

func utcNow() time.Time { return time.Now().UTC() }
