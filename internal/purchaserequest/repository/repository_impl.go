package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/procura/internal/purchaserequest/domain"
	"github.com/smallbiznis/procura/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, req *domain.PurchaseRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindByID(ctx context.Context, orgID, id snowflake.ID) (*domain.PurchaseRequest, error) {
	return r.first(r.withDetails(r.db.WithContext(ctx)).Where("org_id = ? AND id = ?", orgID, id))
}

func (r *repository) FindForDecision(ctx context.Context, orgID, id snowflake.ID) (*domain.PurchaseRequest, error) {
	stmt := r.db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id)
	if db.SupportsRowLocking(r.db) {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.first(stmt)
}

func (r *repository) FindUnscoped(ctx context.Context, id snowflake.ID) (*domain.PurchaseRequest, error) {
	return r.first(r.withDetails(r.db.WithContext(ctx)).Where("id = ?", id))
}

func (r *repository) FindVisible(ctx context.Context, scope func(*gorm.DB) *gorm.DB, id snowflake.ID) (*domain.PurchaseRequest, error) {
	return r.first(r.withDetails(r.db.WithContext(ctx)).Scopes(scope).Where("purchase_requests.id = ?", id))
}

func (r *repository) List(ctx context.Context, scope func(*gorm.DB) *gorm.DB, q domain.ListQuery) ([]domain.PurchaseRequest, error) {
	stmt := r.db.WithContext(ctx).
		Model(&domain.PurchaseRequest{}).
		Scopes(scope)

	if q.Status != nil {
		stmt = stmt.Where("purchase_requests.status = ?", *q.Status)
	}
	if q.DateFrom != nil {
		stmt = stmt.Where("purchase_requests.created_at >= ?", *q.DateFrom)
	}
	if q.DateTo != nil {
		stmt = stmt.Where("purchase_requests.created_at <= ?", *q.DateTo)
	}
	if q.AmountMin != nil {
		stmt = stmt.Where("purchase_requests.amount >= ?", *q.AmountMin)
	}
	if q.AmountMax != nil {
		stmt = stmt.Where("purchase_requests.amount <= ?", *q.AmountMax)
	}
	if q.AfterCreatedAt != nil && q.AfterID != nil {
		stmt = stmt.Where(
			"(purchase_requests.created_at < ?) OR (purchase_requests.created_at = ? AND purchase_requests.id < ?)",
			*q.AfterCreatedAt, *q.AfterCreatedAt, *q.AfterID,
		)
	}
	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit)
	}

	var items []domain.PurchaseRequest
	err := r.withDetails(stmt).
		Order("purchase_requests.created_at DESC").
		Order("purchase_requests.id DESC").
		Find(&items).Error
	return items, err
}

func (r *repository) Save(ctx context.Context, req *domain.PurchaseRequest) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(req).Error
}

func (r *repository) UpdateStatusIf(ctx context.Context, id snowflake.ID, from, to domain.Status) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.PurchaseRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) ReplaceItems(ctx context.Context, requestID snowflake.ID, items []domain.RequestItem) error {
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).Delete(&domain.RequestItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) ListItems(ctx context.Context, requestID snowflake.ID) ([]domain.RequestItem, error) {
	var items []domain.RequestItem
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("position ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) CreateApproval(ctx context.Context, approval *domain.Approval) error {
	return r.db.WithContext(ctx).Create(approval).Error
}

func (r *repository) CountApprovals(ctx context.Context, requestID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Approval{}).Where("request_id = ?", requestID).Count(&count).Error
	return count, err
}

func (r *repository) HasApproval(ctx context.Context, requestID snowflake.ID, level int, action domain.ApprovalAction) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Approval{}).
		Where("request_id = ? AND approval_level = ? AND action = ?", requestID, level, action).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListApprovals(ctx context.Context, requestID snowflake.ID) ([]domain.Approval, error) {
	var approvals []domain.Approval
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("approval_level ASC").
		Find(&approvals).Error
	return approvals, err
}

func (r *repository) Count(ctx context.Context, scope func(*gorm.DB) *gorm.DB) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.PurchaseRequest{}).Scopes(scope).Count(&count).Error
	return count, err
}

func (r *repository) SumAmount(ctx context.Context, scope func(*gorm.DB) *gorm.DB) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&domain.PurchaseRequest{}).
		Scopes(scope).
		Select("COALESCE(SUM(purchase_requests.amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) CountApprovalsBy(ctx context.Context, approverID snowflake.ID, action *domain.ApprovalAction, since *time.Time) (int64, error) {
	stmt := r.db.WithContext(ctx).Model(&domain.Approval{}).Where("approver_id = ?", approverID)
	if action != nil {
		stmt = stmt.Where("action = ?", *action)
	}
	if since != nil {
		stmt = stmt.Where(clause.Gte{Column: clause.Column{Name: "timestamp"}, Value: *since})
	}
	var count int64
	err := stmt.Count(&count).Error
	return count, err
}

func (r *repository) withDetails(stmt *gorm.DB) *gorm.DB {
	return stmt.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Approvals", func(db *gorm.DB) *gorm.DB { return db.Order("approval_level ASC") }).
		Preload("Documents", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") })
}

func (r *repository) first(stmt *gorm.DB) (*domain.PurchaseRequest, error) {
	var req domain.PurchaseRequest
	err := stmt.First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}
