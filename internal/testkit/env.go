// Package testkit wires the real services over an in-memory database for
// package tests that need organizations, users and purchase requests.
package testkit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	auditrepository "github.com/smallbiznis/procura/internal/audit/repository"
	auditservice "github.com/smallbiznis/procura/internal/audit/service"
	"github.com/smallbiznis/procura/internal/cache"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/lock"
	"github.com/smallbiznis/procura/internal/migration"
	orgdomain "github.com/smallbiznis/procura/internal/organization/domain"
	orgrepository "github.com/smallbiznis/procura/internal/organization/repository"
	orgservice "github.com/smallbiznis/procura/internal/organization/service"
	"github.com/smallbiznis/procura/internal/providers/storage"
	prdomain "github.com/smallbiznis/procura/internal/purchaserequest/domain"
	prrepository "github.com/smallbiznis/procura/internal/purchaserequest/repository"
	prservice "github.com/smallbiznis/procura/internal/purchaserequest/service"
	"github.com/smallbiznis/procura/internal/tasks"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
	userrepository "github.com/smallbiznis/procura/internal/user/repository"
	userservice "github.com/smallbiznis/procura/internal/user/service"
	"github.com/smallbiznis/procura/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Epoch is the fake clock's starting point.
var Epoch = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

type Env struct {
	DB       *gorm.DB
	Log      *zap.Logger
	Node     *snowflake.Node
	Clock    *clock.FakeClock
	Tasks    *tasks.Recorder
	Locker   lock.Locker
	Storage  *storage.LocalStorage
	Workflow *config.WorkflowConfigHolder
	Config   config.Config
	Settings cache.OrgSettingsCache

	Orgs        orgdomain.Service
	Users       userdomain.Service
	Audit       auditdomain.Service
	RequestRepo prdomain.Repository
	Requests    prdomain.Service
}

// Models lists every table the procurement services touch.
func Models() []any {
	return migration.Models()
}

func New(t testing.TB) *Env {
	t.Helper()

	db := dbtest.Open(t, Models()...)
	node := dbtest.MustNode(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(Epoch)

	cfg := config.Config{
		AppName:     "procura",
		Environment: "test",
		Storage: config.StorageConfig{
			Dir:       t.TempDir(),
			PublicURL: "http://files.test",
		},
		Tasks: config.TaskConfig{Workers: 0},
	}

	env := &Env{
		DB:       db,
		Log:      log,
		Node:     node,
		Clock:    clk,
		Tasks:    tasks.NewRecorder(),
		Locker:   lock.NewLocalLocker(),
		Storage:  storage.NewLocal(cfg, log),
		Workflow: config.NewStaticWorkflowConfigHolder(config.DefaultWorkflowConfig()),
		Config:   cfg,
		Settings: cache.NewMemorySettingsCache(time.Minute),
	}

	env.Orgs = orgservice.NewService(orgservice.ServiceParam{
		DB:    db,
		Log:   log,
		Repo:  orgrepository.NewRepository(db),
		GenID: node,
		Cache: env.Settings,
		Clock: clk,
	})
	env.Users = userservice.NewService(userservice.ServiceParam{
		Log:   log,
		Repo:  userrepository.NewRepository(db),
		GenID: node,
		Clock: clk,
	})
	env.Audit = auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  auditrepository.Provide(),
		Clock: clk,
	})
	env.RequestRepo = prrepository.NewRepository(db)
	env.Requests = prservice.NewService(prservice.ServiceParam{
		DB:       db,
		Log:      log,
		Repo:     env.RequestRepo,
		GenID:    node,
		Orgs:     env.Orgs,
		Audit:    env.Audit,
		Tasks:    env.Tasks,
		Storage:  env.Storage,
		Locker:   env.Locker,
		Clock:    clk,
		Workflow: env.Workflow,
	})
	return env
}

// ColdSettings drops the cached settings of org so the next read goes to
// the database.
func (e *Env) ColdSettings(org *orgdomain.Organization) {
	e.Settings.Invalidate(context.Background(), org.ID)
}

// Org creates an organization with the given settings.
func (e *Env) Org(t testing.TB, settings map[string]any) *orgdomain.Organization {
	t.Helper()
	org, err := e.Orgs.Create(context.Background(), orgdomain.CreateOrganizationRequest{
		Name:     fmt.Sprintf("Org %d", e.Node.Generate()),
		Settings: settings,
	})
	require.NoError(t, err)
	return org
}

// Staff registers a STAFF member of org.
func (e *Env) Staff(t testing.TB, org *orgdomain.Organization) userdomain.Principal {
	return e.member(t, org, userdomain.RoleStaff, nil)
}

// Approver registers an APPROVER of org at level.
func (e *Env) Approver(t testing.TB, org *orgdomain.Organization, level int) userdomain.Principal {
	return e.member(t, org, userdomain.RoleApprover, &level)
}

// Finance registers a FINANCE member of org.
func (e *Env) Finance(t testing.TB, org *orgdomain.Organization) userdomain.Principal {
	return e.member(t, org, userdomain.RoleFinance, nil)
}

func (e *Env) member(t testing.TB, org *orgdomain.Organization, role userdomain.Role, level *int) userdomain.Principal {
	t.Helper()
	ctx := context.Background()
	user, err := e.Users.Register(ctx, userdomain.CreateUserRequest{
		Email:          fmt.Sprintf("%s-%d@example.com", role, e.Node.Generate()),
		FirstName:      string(role),
		OrganizationID: &org.ID,
		Role:           role,
		ApprovalLevel:  level,
	})
	require.NoError(t, err)
	principal, err := e.Users.ResolvePrincipal(ctx, user.ID)
	require.NoError(t, err)
	return principal
}

// Request creates a PENDING request owned by staff.
func (e *Env) Request(t testing.TB, staff userdomain.Principal, amount string, items ...prdomain.ItemInput) *prdomain.PurchaseRequest {
	t.Helper()
	pr, err := e.Requests.Create(context.Background(), staff, prdomain.CreateRequest{
		Title:       "Laptops",
		Description: "Developer laptops",
		Amount:      decimal.RequireFromString(amount),
		Items:       items,
	})
	require.NoError(t, err)
	return pr
}

// Item is shorthand for an ItemInput.
func Item(description, quantity, unitPrice string) prdomain.ItemInput {
	return prdomain.ItemInput{
		Description: description,
		Quantity:    decimal.RequireFromString(quantity),
		UnitPrice:   decimal.RequireFromString(unitPrice),
	}
}

// Reload reads the request straight from the database.
func (e *Env) Reload(t testing.TB, id snowflake.ID) *prdomain.PurchaseRequest {
	t.Helper()
	pr, err := e.RequestRepo.FindUnscoped(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, pr)
	return pr
}
