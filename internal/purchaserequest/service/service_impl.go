package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/lock"
	orgdomain "github.com/smallbiznis/procura/internal/organization/domain"
	"github.com/smallbiznis/procura/internal/providers/storage"
	"github.com/smallbiznis/procura/internal/purchaserequest/domain"
	"github.com/smallbiznis/procura/internal/tasks"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
	"github.com/smallbiznis/procura/internal/visibility"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"github.com/smallbiznis/procura/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockTTL = 30 * time.Second

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	GenID    *snowflake.Node
	Orgs     orgdomain.Service
	Audit    auditdomain.Service
	Tasks    tasks.Runner
	Storage  storage.Storage
	Locker   lock.Locker
	Clock    clock.Clock
	Workflow *config.WorkflowConfigHolder
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	genID    *snowflake.Node
	orgs     orgdomain.Service
	audit    auditdomain.Service
	tasks    tasks.Runner
	storage  storage.Storage
	locker   lock.Locker
	clock    clock.Clock
	workflow *config.WorkflowConfigHolder
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("purchaserequest.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		orgs:     p.Orgs,
		audit:    p.Audit,
		tasks:    p.Tasks,
		storage:  p.Storage,
		locker:   p.Locker,
		clock:    p.Clock,
		workflow: p.Workflow,
	}
}

func (s *service) Create(ctx context.Context, principal userdomain.Principal, req domain.CreateRequest) (*domain.PurchaseRequest, error) {
	if principal.Role != userdomain.RoleStaff {
		return nil, domain.ErrOnlyStaffCreate
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domain.ErrTitleRequired
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, domain.ErrDescriptionRequired
	}
	if req.Amount.IsNegative() {
		return nil, domain.ErrNegativeAmount
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	items, err := s.buildItems(id, req.Items, now)
	if err != nil {
		return nil, err
	}

	pr := &domain.PurchaseRequest{
		ID:                   id,
		OrgID:                principal.OrgID,
		Title:                title,
		Description:          description,
		Amount:               req.Amount.Round(2),
		Status:               domain.StatusPending,
		CreatedBy:            principal.UserID,
		CurrentApprovalLevel: 0,
		ProformaFileURL:      normalizeURL(req.ProformaFileURL),
		CreatedAt:            now,
		UpdatedAt:            now,
		Items:                items,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, pr); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			OrgID:      pr.OrgID,
			ActorID:    &principal.UserID,
			Action:     auditdomain.ActionRequestCreated,
			TargetType: auditdomain.TargetPurchaseRequest,
			TargetID:   pr.ID,
			Metadata: map[string]any{
				"amount":     pr.Amount.String(),
				"item_count": len(items),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if pr.ProformaFileURL != nil {
		s.enqueue(ctx, tasks.TaskProcessProforma, tasks.DocumentArgs{RequestID: pr.ID, FileURL: *pr.ProformaFileURL})
	}

	ctxlogger.WithContext(ctx, s.log).Info("purchase request created",
		zap.String("request_id", pr.ID.String()),
		zap.String("org_id", pr.OrgID.String()),
	)
	return pr, nil
}

func (s *service) Update(ctx context.Context, principal userdomain.Principal, id snowflake.ID, req domain.UpdateRequest) (*domain.PurchaseRequest, error) {
	release, err := s.locker.Acquire(ctx, domain.LockKey(id), lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	var proformaChanged bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		pr, err := repo.FindForDecision(ctx, principal.OrgID, id)
		if err != nil {
			return err
		}
		if pr == nil {
			return domain.ErrNotFound
		}
		if pr.CreatedBy != principal.UserID {
			return domain.ErrOnlyCreatorUpdate
		}

		approvals, err := repo.CountApprovals(ctx, pr.ID)
		if err != nil {
			return err
		}
		if !pr.CanBeUpdated(approvals) {
			return domain.ErrNotUpdatable
		}

		changed := []string{}
		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			if title == "" {
				return domain.ErrTitleRequired
			}
			pr.Title = title
			changed = append(changed, "title")
		}
		if req.Description != nil {
			description := strings.TrimSpace(*req.Description)
			if description == "" {
				return domain.ErrDescriptionRequired
			}
			pr.Description = description
			changed = append(changed, "description")
		}
		if req.Amount != nil {
			if req.Amount.IsNegative() {
				return domain.ErrNegativeAmount
			}
			pr.Amount = req.Amount.Round(2)
			changed = append(changed, "amount")
		}
		if req.ProformaFileURL != nil {
			url := normalizeURL(req.ProformaFileURL)
			proformaChanged = url != nil && (pr.ProformaFileURL == nil || *pr.ProformaFileURL != *url)
			pr.ProformaFileURL = url
			changed = append(changed, "proforma_file_url")
		}

		now := s.clock.Now()
		if req.Items != nil {
			items, err := s.buildItems(pr.ID, *req.Items, now)
			if err != nil {
				return err
			}
			if err := repo.ReplaceItems(ctx, pr.ID, items); err != nil {
				return err
			}
			changed = append(changed, "items")
		}

		pr.UpdatedBy = &principal.UserID
		pr.UpdatedAt = now
		if err := repo.Save(ctx, pr); err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			OrgID:      pr.OrgID,
			ActorID:    &principal.UserID,
			Action:     auditdomain.ActionRequestUpdated,
			TargetType: auditdomain.TargetPurchaseRequest,
			TargetID:   pr.ID,
			Metadata:   map[string]any{"fields": changed},
		})
	})
	if err != nil {
		return nil, err
	}

	pr, err := s.repo.FindByID(ctx, principal.OrgID, id)
	if err != nil {
		return nil, err
	}
	if pr == nil {
		return nil, domain.ErrNotFound
	}
	if proformaChanged {
		s.enqueue(ctx, tasks.TaskProcessProforma, tasks.DocumentArgs{RequestID: pr.ID, FileURL: *pr.ProformaFileURL})
	}
	return pr, nil
}

func (s *service) Get(ctx context.Context, principal userdomain.Principal, id snowflake.ID) (*domain.PurchaseRequest, error) {
	settings, err := s.orgs.Settings(ctx, principal.OrgID)
	if err != nil {
		return nil, err
	}

	pr, err := s.repo.FindVisible(ctx, visibility.Scope(principal, settings), id)
	if err != nil {
		return nil, err
	}
	if pr == nil {
		return nil, domain.ErrNotFound
	}
	return pr, nil
}

func (s *service) List(ctx context.Context, principal userdomain.Principal, filter domain.ListFilter) (*domain.ListResult, error) {
	settings, err := s.orgs.Settings(ctx, principal.OrgID)
	if err != nil {
		return nil, err
	}

	limit := filter.Limit()
	query := domain.ListQuery{
		Status:    filter.Status,
		DateFrom:  filter.DateFrom,
		DateTo:    filter.DateTo,
		AmountMin: filter.AmountMin,
		AmountMax: filter.AmountMax,
		Limit:     limit + 1,
	}

	if token := strings.TrimSpace(filter.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil || afterID == 0 {
			return nil, domain.ErrInvalidPageToken
		}
		query.AfterCreatedAt = &createdAt
		query.AfterID = &afterID
	}

	items, err := s.repo.List(ctx, visibility.Scope(principal, settings), query)
	if err != nil {
		return nil, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, limit, func(pr domain.PurchaseRequest) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        pr.ID.String(),
			CreatedAt: pr.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if items == nil {
		items = []domain.PurchaseRequest{}
	}

	return &domain.ListResult{Requests: items, PageInfo: pageInfo}, nil
}

func (s *service) AttachProforma(ctx context.Context, principal userdomain.Principal, id snowflake.ID, file storage.File) (*domain.PurchaseRequest, error) {
	if principal.Role != userdomain.RoleStaff {
		return nil, domain.ErrOnlyCreatorUpdate
	}

	release, err := s.locker.Acquire(ctx, domain.LockKey(id), lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	pr, err := s.repo.FindByID(ctx, principal.OrgID, id)
	if err != nil {
		return nil, err
	}
	if pr == nil {
		return nil, domain.ErrNotFound
	}
	if pr.CreatedBy != principal.UserID {
		return nil, domain.ErrOnlyCreatorUpdate
	}
	approvals, err := s.repo.CountApprovals(ctx, pr.ID)
	if err != nil {
		return nil, err
	}
	if !pr.CanBeUpdated(approvals) {
		return nil, domain.ErrNotUpdatable
	}

	if err := storage.Validate(file, s.workflow.Get().Upload); err != nil {
		return nil, err
	}
	url, err := s.storage.Store(ctx, file, storage.ProformaFolder(pr.OrgID.String()))
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pr.ProformaFileURL = &url
		pr.UpdatedBy = &principal.UserID
		pr.UpdatedAt = s.clock.Now()
		if err := s.repo.WithTx(tx).Save(ctx, pr); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			OrgID:      pr.OrgID,
			ActorID:    &principal.UserID,
			Action:     auditdomain.ActionProformaAttached,
			TargetType: auditdomain.TargetPurchaseRequest,
			TargetID:   pr.ID,
			Metadata:   map[string]any{"file_url": url},
		})
	})
	if err != nil {
		return nil, err
	}

	s.enqueue(ctx, tasks.TaskProcessProforma, tasks.DocumentArgs{RequestID: pr.ID, FileURL: url})
	return pr, nil
}

func (s *service) RequiredApprovalLevels(ctx context.Context, orgID snowflake.ID) (int, error) {
	settings, err := s.orgs.Settings(ctx, orgID)
	if err != nil {
		return 0, err
	}
	return settings.ApprovalLevelsCount(), nil
}

func (s *service) buildItems(requestID snowflake.ID, inputs []domain.ItemInput, now time.Time) ([]domain.RequestItem, error) {
	items := make([]domain.RequestItem, 0, len(inputs))
	for i, in := range inputs {
		description := strings.TrimSpace(in.Description)
		if description == "" {
			return nil, domain.ErrItemDescription
		}
		if in.Quantity.IsNegative() || in.UnitPrice.IsNegative() {
			return nil, domain.ErrInvalidItem
		}
		item := domain.RequestItem{
			ID:          s.genID.Generate(),
			RequestID:   requestID,
			Position:    i,
			Description: description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			CreatedAt:   now,
		}
		item.ComputeTotal()
		items = append(items, item)
	}
	return items, nil
}

// enqueue schedules a follow-up task. The state change that triggered it is
// already committed, so a failure here is only logged.
func (s *service) enqueue(ctx context.Context, name string, args ...any) {
	if err := s.tasks.Enqueue(ctx, name, args...); err != nil {
		ctxlogger.WithContext(ctx, s.log).Error("failed to enqueue task",
			zap.String("task", name),
			zap.Error(err),
		)
	}
}

func normalizeURL(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
