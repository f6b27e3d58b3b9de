package migration

import (
	"context"

	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/config"
	orgdomain "github.com/smallbiznis/procura/internal/organization/domain"
	prdomain "github.com/smallbiznis/procura/internal/purchaserequest/domain"
	"github.com/smallbiznis/procura/internal/seed"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Cfg   config.Config
	Log   *zap.Logger
	Orgs  orgdomain.Service
	Users userdomain.Service
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p Params) error {
		if err := Migrate(p.DB, p.Cfg); err != nil {
			return err
		}
		if !p.Cfg.Bootstrap.Enabled {
			return nil
		}
		return seed.EnsureMainOrgAndFinance(context.Background(), p.Cfg.Bootstrap, p.Orgs, p.Users, p.Log.Named("seed"))
	}),
)

// Migrate runs the SQL migrations on postgres and falls back to AutoMigrate
// for mysql and sqlite.
func Migrate(conn *gorm.DB, cfg config.Config) error {
	if cfg.DBType != "postgres" {
		return conn.AutoMigrate(Models()...)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&orgdomain.Organization{},
		&userdomain.User{},
		&prdomain.PurchaseRequest{},
		&prdomain.RequestItem{},
		&prdomain.Approval{},
		&prdomain.Document{},
		&auditdomain.AuditLog{},
	}
}
