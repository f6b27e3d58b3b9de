package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/apperror"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/lock"
	"github.com/smallbiznis/procura/internal/notification"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/procura/internal/organization/domain"
	"github.com/smallbiznis/procura/internal/providers/storage"
	prdomain "github.com/smallbiznis/procura/internal/purchaserequest/domain"
	"github.com/smallbiznis/procura/internal/tasks"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
	"github.com/smallbiznis/procura/internal/workflow/domain"
	"github.com/smallbiznis/procura/pkg/db"
	"github.com/smallbiznis/procura/pkg/log/ctxlogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockTTL = 30 * time.Second

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     prdomain.Repository
	GenID    *snowflake.Node
	Orgs     orgdomain.Service
	Audit    auditdomain.Service
	Tasks    tasks.Runner
	Storage  storage.Storage
	Locker   lock.Locker
	Clock    clock.Clock
	Workflow *config.WorkflowConfigHolder
	Metrics  *metrics.Metrics `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     prdomain.Repository
	genID    *snowflake.Node
	orgs     orgdomain.Service
	audit    auditdomain.Service
	tasks    tasks.Runner
	storage  storage.Storage
	locker   lock.Locker
	clock    clock.Clock
	workflow *config.WorkflowConfigHolder
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("workflow.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		orgs:     p.Orgs,
		audit:    p.Audit,
		tasks:    p.Tasks,
		storage:  p.Storage,
		locker:   p.Locker,
		clock:    p.Clock,
		workflow: p.Workflow,
		metrics:  p.Metrics,
		tracer:   otel.Tracer("procura/workflow"),
	}
}

func (s *service) CanActAtLevel(ctx context.Context, request *prdomain.PurchaseRequest, principal userdomain.Principal, level int) (domain.Decision, error) {
	return gate(ctx, s.repo, request, principal, level)
}

// gate applies the level rules in order. The first failing rule wins.
func gate(ctx context.Context, repo prdomain.Repository, pr *prdomain.PurchaseRequest, principal userdomain.Principal, level int) (domain.Decision, error) {
	if pr.Status != prdomain.StatusPending {
		return domain.Deny(domain.ReasonNotPending), nil
	}
	if principal.Role != userdomain.RoleApprover {
		return domain.Deny(domain.ReasonNotApprover), nil
	}
	if principal.ApprovalLevel == nil || *principal.ApprovalLevel != level {
		return domain.Deny(fmt.Sprintf(
			"User's approval level (%s) does not match required level (%d)",
			levelLabel(principal.ApprovalLevel), level,
		)), nil
	}

	if level > 1 {
		previous := level - 1
		ok, err := repo.HasApproval(ctx, pr.ID, previous, prdomain.ActionApproved)
		if err != nil {
			return domain.Decision{}, err
		}
		if !ok {
			return domain.Deny(fmt.Sprintf("Previous level (%d) has not been approved yet", previous)), nil
		}
	}

	done, err := repo.HasApproval(ctx, pr.ID, level, prdomain.ActionApproved)
	if err != nil {
		return domain.Decision{}, err
	}
	if done {
		return domain.Deny(fmt.Sprintf("Level %d has already approved this request", level)), nil
	}
	return domain.Allow(fmt.Sprintf("Can approve at level %d", level)), nil
}

func (s *service) Approve(ctx context.Context, principal userdomain.Principal, requestID snowflake.ID, comments string) (*prdomain.Approval, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.Approve", trace.WithAttributes(
		attribute.String("request_id", requestID.String()),
		attribute.Int("approval_level", principal.Level()),
	))
	defer span.End()

	approval, pr, err := s.decide(ctx, principal, requestID, prdomain.ActionApproved, strings.TrimSpace(comments))
	s.finishDecision(ctx, span, prdomain.ActionApproved, principal.Level(), err)
	if err != nil {
		return nil, err
	}

	if pr.Status == prdomain.StatusApproved {
		s.enqueue(ctx, tasks.TaskGeneratePurchaseOrder, tasks.PurchaseOrderArgs{RequestID: pr.ID})
		s.enqueue(ctx, tasks.TaskSendNotification, tasks.NotificationArgs{
			RequestID: pr.ID,
			Kind:      notification.KindApproved,
			ActorID:   &principal.UserID,
		})
	} else {
		s.enqueue(ctx, tasks.TaskSendNotification, tasks.NotificationArgs{
			RequestID: pr.ID,
			Kind:      notification.KindPendingNextLevel,
			ActorID:   &principal.UserID,
		})
	}

	ctxlogger.WithContext(ctx, s.log).Info("purchase request approved",
		zap.String("request_id", pr.ID.String()),
		zap.Int("level", approval.ApprovalLevel),
		zap.String("status", string(pr.Status)),
	)
	return approval, nil
}

func (s *service) Reject(ctx context.Context, principal userdomain.Principal, requestID snowflake.ID, comments string) (*prdomain.Approval, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.Reject", trace.WithAttributes(
		attribute.String("request_id", requestID.String()),
		attribute.Int("approval_level", principal.Level()),
	))
	defer span.End()

	approval, pr, err := s.decide(ctx, principal, requestID, prdomain.ActionRejected, strings.TrimSpace(comments))
	s.finishDecision(ctx, span, prdomain.ActionRejected, principal.Level(), err)
	if err != nil {
		return nil, err
	}

	s.enqueue(ctx, tasks.TaskSendNotification, tasks.NotificationArgs{
		RequestID: pr.ID,
		Kind:      notification.KindRejected,
		ActorID:   &principal.UserID,
	})

	ctxlogger.WithContext(ctx, s.log).Info("purchase request rejected",
		zap.String("request_id", pr.ID.String()),
		zap.Int("level", approval.ApprovalLevel),
	)
	return approval, nil
}

// decide records one approval decision. Gating, the approval row and the
// request mutation commit together while the request lock is held.
func (s *service) decide(ctx context.Context, principal userdomain.Principal, requestID snowflake.ID, action prdomain.ApprovalAction, comments string) (*prdomain.Approval, *prdomain.PurchaseRequest, error) {
	release, err := s.locker.Acquire(ctx, prdomain.LockKey(requestID), lockTTL)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	// Settings may come from the durable store on a cache miss, so they are
	// read before the transaction holds a connection.
	requiredLevels := 0
	if action == prdomain.ActionApproved {
		settings, err := s.orgs.Settings(ctx, principal.OrgID)
		if err != nil {
			return nil, nil, err
		}
		requiredLevels = settings.ApprovalLevelsCount()
	}

	var (
		approval *prdomain.Approval
		pr       *prdomain.PurchaseRequest
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		pr, err = repo.FindForDecision(ctx, principal.OrgID, requestID)
		if err != nil {
			return err
		}
		if pr == nil {
			return prdomain.ErrNotFound
		}

		if err := precheck(pr, principal, action, comments); err != nil {
			return err
		}

		level := principal.Level()
		decision, err := gate(ctx, repo, pr, principal, level)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			if action == prdomain.ActionRejected {
				return apperror.Validation("Cannot reject: " + decision.Reason)
			}
			return apperror.Validation(decision.Reason)
		}

		now := s.clock.Now()
		approval = &prdomain.Approval{
			ID:            s.genID.Generate(),
			RequestID:     pr.ID,
			ApproverID:    principal.UserID,
			ApprovalLevel: level,
			Action:        action,
			Comments:      comments,
			Timestamp:     now,
		}
		if err := repo.CreateApproval(ctx, approval); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrLevelAlreadyDecided
			}
			return err
		}

		pr.CurrentApprovalLevel = level
		pr.UpdatedBy = &principal.UserID
		pr.UpdatedAt = now

		auditAction := auditdomain.ActionRequestRejected
		if action == prdomain.ActionRejected {
			pr.Status = prdomain.StatusRejected
		} else {
			auditAction = auditdomain.ActionRequestApproved
			if pr.IsFinalLevel(requiredLevels) {
				pr.Status = prdomain.StatusApproved
			}
		}

		if err := repo.Save(ctx, pr); err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			OrgID:      pr.OrgID,
			ActorID:    &principal.UserID,
			Action:     auditAction,
			TargetType: auditdomain.TargetPurchaseRequest,
			TargetID:   pr.ID,
			Metadata: map[string]any{
				"level":    level,
				"status":   string(pr.Status),
				"comments": comments,
			},
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return approval, pr, nil
}

// precheck covers the checks made before gating, in the order callers see
// them. Rejections must carry comments.
func precheck(pr *prdomain.PurchaseRequest, principal userdomain.Principal, action prdomain.ApprovalAction, comments string) error {
	if pr.Status != prdomain.StatusPending {
		return domain.ErrNotPending
	}
	if principal.Role != userdomain.RoleApprover {
		return domain.ErrNotApprover
	}
	if action == prdomain.ActionRejected && comments == "" {
		return domain.ErrCommentsRequired
	}
	if principal.ApprovalLevel == nil {
		return domain.ErrApproverWithoutLevel
	}
	return nil
}

func (s *service) finishDecision(ctx context.Context, span trace.Span, action prdomain.ApprovalAction, level int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		if kind, ok := apperror.KindOf(err); ok {
			outcome = string(kind)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.metrics.RecordDecision(ctx, string(action), level, outcome)
}

func (s *service) SubmitReceipt(ctx context.Context, principal userdomain.Principal, requestID snowflake.ID, file storage.File) (*prdomain.PurchaseRequest, error) {
	if principal.Role != userdomain.RoleStaff {
		return nil, domain.ErrOnlyStaffReceipt
	}

	pr, url, err := s.storeReceipt(ctx, principal, requestID, file)
	if err != nil {
		return nil, err
	}

	// Reconciliation takes the request lock itself, so it is scheduled
	// only after the lock is released.
	s.enqueue(ctx, tasks.TaskProcessReceipt, tasks.DocumentArgs{RequestID: pr.ID, FileURL: url})

	ctxlogger.WithContext(ctx, s.log).Info("receipt submitted",
		zap.String("request_id", pr.ID.String()),
	)
	return pr, nil
}

func (s *service) storeReceipt(ctx context.Context, principal userdomain.Principal, requestID snowflake.ID, file storage.File) (*prdomain.PurchaseRequest, string, error) {
	release, err := s.locker.Acquire(ctx, prdomain.LockKey(requestID), lockTTL)
	if err != nil {
		return nil, "", err
	}
	defer release()

	pr, err := s.repo.FindByID(ctx, principal.OrgID, requestID)
	if err != nil {
		return nil, "", err
	}
	if pr == nil || pr.CreatedBy != principal.UserID {
		return nil, "", prdomain.ErrNotFound
	}
	if pr.Status != prdomain.StatusApproved {
		return nil, "", domain.ErrReceiptNotApproved
	}

	if err := storage.Validate(file, s.workflow.Get().Upload); err != nil {
		return nil, "", err
	}
	url, err := s.storage.Store(ctx, file, storage.ReceiptFolder(pr.OrgID.String()))
	if err != nil {
		return nil, "", err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pr.ReceiptFileURL = &url
		pr.UpdatedBy = &principal.UserID
		pr.UpdatedAt = s.clock.Now()
		if err := s.repo.WithTx(tx).Save(ctx, pr); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			OrgID:      pr.OrgID,
			ActorID:    &principal.UserID,
			Action:     auditdomain.ActionReceiptSubmitted,
			TargetType: auditdomain.TargetPurchaseRequest,
			TargetID:   pr.ID,
			Metadata:   map[string]any{"file_url": url},
		})
	})
	if err != nil {
		return nil, "", err
	}
	return pr, url, nil
}

// enqueue runs after commit; a scheduling failure never undoes the decision.
func (s *service) enqueue(ctx context.Context, name string, args ...any) {
	if err := s.tasks.Enqueue(ctx, name, args...); err != nil {
		ctxlogger.WithContext(ctx, s.log).Error("failed to enqueue task",
			zap.String("task", name),
			zap.Error(err),
		)
	}
}

func levelLabel(level *int) string {
	if level == nil {
		return "None"
	}
	return fmt.Sprintf("%d", *level)
}
