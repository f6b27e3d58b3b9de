// Package notification mails approvers and requesters about approval
// workflow progress. It runs as the notification.send task.
package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/procura/internal/organization/domain"
	"github.com/smallbiznis/procura/internal/providers/email"
	prdomain "github.com/smallbiznis/procura/internal/purchaserequest/domain"
	"github.com/smallbiznis/procura/internal/tasks"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
	"github.com/smallbiznis/procura/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	KindPendingNextLevel = "pending_next_level"
	KindApproved         = "approved"
	KindRejected         = "rejected"
)

const (
	templatePending  = "pending_next_level.html"
	templateApproved = "approved.html"
	templateRejected = "rejected.html"
)

var ErrUnknownKind = errors.New("unknown_notification_kind")

type Params struct {
	fx.In

	Log      *zap.Logger
	Requests prdomain.Repository
	Orgs     orgdomain.Service
	Users    userdomain.Service
	Mail     email.Provider
	Metrics  *metrics.Metrics `optional:"true"`
}

type Notifier struct {
	log      *zap.Logger
	requests prdomain.Repository
	orgs     orgdomain.Service
	users    userdomain.Service
	mail     email.Provider
	metrics  *metrics.Metrics
}

func NewNotifier(p Params) *Notifier {
	return &Notifier{
		log:      p.Log.Named("notification"),
		requests: p.Requests,
		orgs:     p.Orgs,
		users:    p.Users,
		mail:     p.Mail,
		metrics:  p.Metrics,
	}
}

// Handle adapts Notify to the task runner.
func (n *Notifier) Handle(ctx context.Context, args ...any) error {
	a, err := tasks.Arg[tasks.NotificationArgs](args, 0)
	if err != nil {
		return err
	}
	return n.Notify(ctx, a.RequestID, a.Kind, a.ActorID)
}

// Notify sends the mails for one workflow event. Delivery errors are returned
// so the runner retries the task.
func (n *Notifier) Notify(ctx context.Context, requestID snowflake.ID, kind string, actorID *snowflake.ID) error {
	log := ctxlogger.WithContext(ctx, n.log).With(
		zap.String("request_id", requestID.String()),
		zap.String("kind", kind),
	)

	pr, err := n.requests.FindUnscoped(ctx, requestID)
	if err != nil {
		return err
	}
	if pr == nil {
		log.Warn("purchase request not found, dropping notification")
		n.metrics.RecordNotification(ctx, kind, "dropped")
		return nil
	}

	settings, err := n.orgs.Settings(ctx, pr.OrgID)
	if err != nil {
		return err
	}
	if !settings.EmailNotificationsEnabled() {
		log.Info("email notifications disabled for organization", zap.String("org_id", pr.OrgID.String()))
		n.metrics.RecordNotification(ctx, kind, "disabled")
		return nil
	}

	switch kind {
	case KindPendingNextLevel:
		err = n.pendingNextLevel(ctx, pr, settings.ApprovalLevelsCount())
	case KindApproved:
		err = n.approved(ctx, pr)
	case KindRejected:
		err = n.rejected(ctx, pr, actorID)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	if err != nil {
		log.Error("failed to send notification", zap.Error(err))
		n.metrics.RecordNotification(ctx, kind, "failed")
		return err
	}
	n.metrics.RecordNotification(ctx, kind, "sent")
	return nil
}

func (n *Notifier) pendingNextLevel(ctx context.Context, pr *prdomain.PurchaseRequest, requiredLevels int) error {
	nextLevel := pr.CurrentApprovalLevel + 1
	if nextLevel > requiredLevels {
		return nil
	}

	approvers, err := n.users.ListActiveApprovers(ctx, pr.OrgID, nextLevel)
	if err != nil {
		return err
	}
	creator, err := n.creator(ctx, pr)
	if err != nil {
		return err
	}

	var errs []error
	for _, approver := range approvers {
		data := map[string]any{
			"subject":        "Purchase Request Pending Approval - " + pr.Title,
			"recipient_name": displayName(approver),
			"level":          nextLevel,
			"title":          pr.Title,
			"amount":         formatAmount(pr),
			"description":    pr.Description,
			"created_by":     creator.Email,
		}
		if err := n.mail.SendTemplate(ctx, []string{approver.Email}, templatePending, data); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", approver.Email, err))
			continue
		}
		ctxlogger.WithContext(ctx, n.log).Info("approval notification sent",
			zap.String("request_id", pr.ID.String()),
			zap.String("recipient", approver.Email),
		)
	}
	return errors.Join(errs...)
}

func (n *Notifier) approved(ctx context.Context, pr *prdomain.PurchaseRequest) error {
	creator, err := n.creator(ctx, pr)
	if err != nil {
		return err
	}
	return n.mail.SendTemplate(ctx, []string{creator.Email}, templateApproved, map[string]any{
		"subject":        "Purchase Request Approved - " + pr.Title,
		"recipient_name": displayName(*creator),
		"title":          pr.Title,
		"amount":         formatAmount(pr),
	})
}

func (n *Notifier) rejected(ctx context.Context, pr *prdomain.PurchaseRequest, actorID *snowflake.ID) error {
	creator, err := n.creator(ctx, pr)
	if err != nil {
		return err
	}

	approverName := "an approver"
	if actorID != nil {
		approver, err := n.users.GetByID(ctx, *actorID)
		switch {
		case err == nil:
			approverName = approver.Email
		case !errors.Is(err, userdomain.ErrUserNotFound):
			return err
		}
	}

	return n.mail.SendTemplate(ctx, []string{creator.Email}, templateRejected, map[string]any{
		"subject":        "Purchase Request Rejected - " + pr.Title,
		"recipient_name": displayName(*creator),
		"approver":       approverName,
		"title":          pr.Title,
		"amount":         formatAmount(pr),
	})
}

func (n *Notifier) creator(ctx context.Context, pr *prdomain.PurchaseRequest) (*userdomain.User, error) {
	return n.users.GetByID(ctx, pr.CreatedBy)
}

func displayName(u userdomain.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Email
}

func formatAmount(pr *prdomain.PurchaseRequest) string {
	return "$" + pr.Amount.StringFixed(2)
}
