package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPurchaseRequest = "purchase_request"
	ObjectStatistics      = "statistics"
	ObjectOrganization    = "organization"
	ObjectAuditLog        = "audit_log"
)

const (
	ActionPurchaseRequestView           = "purchase_request.view"
	ActionPurchaseRequestCreate         = "purchase_request.create"
	ActionPurchaseRequestUpdate         = "purchase_request.update"
	ActionPurchaseRequestApprove        = "purchase_request.approve"
	ActionPurchaseRequestReject         = "purchase_request.reject"
	ActionPurchaseRequestSubmitReceipt  = "purchase_request.submit_receipt"
	ActionPurchaseRequestAttachProforma = "purchase_request.attach_proforma"

	ActionStatisticsView = "statistics.view"

	ActionOrganizationView           = "organization.view"
	ActionOrganizationUpdateSettings = "organization.update_settings"

	ActionAuditLogView = "audit_log.view"

	actionAuthorizationDenied = "authorization.denied"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, principal userdomain.Principal, object string, action string) error {
	if principal.UserID == 0 || !principal.Role.Valid() {
		return ErrInvalidActor
	}
	if principal.OrgID == 0 {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%s", principal.UserID)
	roleName := fmt.Sprintf("role:%s", strings.ToLower(string(principal.Role)))
	domain := fmt.Sprintf("org:%s", principal.OrgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, principal, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per user and organization so a
// role change takes effect on the next check.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, principal userdomain.Principal, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	actorID := principal.UserID
	err := s.auditSvc.Record(ctx, nil, auditdomain.Entry{
		OrgID:      principal.OrgID,
		ActorID:    &actorID,
		Action:     actionAuthorizationDenied,
		TargetType: object,
		Metadata: map[string]any{
			"action": action,
			"role":   string(principal.Role),
		},
	})
	if err != nil {
		s.log.Warn("failed to audit denied authorization", zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Staff permissions
		{"role:staff", ObjectPurchaseRequest, ActionPurchaseRequestCreate},
		{"role:staff", ObjectPurchaseRequest, ActionPurchaseRequestUpdate},
		{"role:staff", ObjectPurchaseRequest, ActionPurchaseRequestSubmitReceipt},
		{"role:staff", ObjectPurchaseRequest, ActionPurchaseRequestAttachProforma},

		// Approver permissions
		{"role:approver", ObjectPurchaseRequest, ActionPurchaseRequestApprove},
		{"role:approver", ObjectPurchaseRequest, ActionPurchaseRequestReject},

		// Finance permissions
		{"role:finance", ObjectOrganization, ActionOrganizationUpdateSettings},
		{"role:finance", ObjectAuditLog, ActionAuditLogView},
	}
	for _, role := range []string{"role:staff", "role:approver", "role:finance"} {
		policies = append(policies,
			[]string{role, ObjectPurchaseRequest, ActionPurchaseRequestView},
			[]string{role, ObjectStatistics, ActionStatisticsView},
			[]string{role, ObjectOrganization, ActionOrganizationView},
		)
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
