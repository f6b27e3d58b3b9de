package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *PurchaseRequest) error
	// FindByID returns nil, nil when the request does not exist in orgID.
	FindByID(ctx context.Context, orgID, id snowflake.ID) (*PurchaseRequest, error)
	// FindForDecision loads the request for a state transition, taking a row
	// lock on databases that support it.
	FindForDecision(ctx context.Context, orgID, id snowflake.ID) (*PurchaseRequest, error)
	// FindUnscoped is for background tasks that only hold a request id.
	FindUnscoped(ctx context.Context, id snowflake.ID) (*PurchaseRequest, error)
	FindVisible(ctx context.Context, scope func(*gorm.DB) *gorm.DB, id snowflake.ID) (*PurchaseRequest, error)
	List(ctx context.Context, scope func(*gorm.DB) *gorm.DB, filter ListQuery) ([]PurchaseRequest, error)
	Save(ctx context.Context, req *PurchaseRequest) error
	UpdateStatusIf(ctx context.Context, id snowflake.ID, from, to Status) (bool, error)
	ReplaceItems(ctx context.Context, requestID snowflake.ID, items []RequestItem) error
	ListItems(ctx context.Context, requestID snowflake.ID) ([]RequestItem, error)

	CreateApproval(ctx context.Context, approval *Approval) error
	CountApprovals(ctx context.Context, requestID snowflake.ID) (int64, error)
	HasApproval(ctx context.Context, requestID snowflake.ID, level int, action ApprovalAction) (bool, error)
	ListApprovals(ctx context.Context, requestID snowflake.ID) ([]Approval, error)

	Count(ctx context.Context, scope func(*gorm.DB) *gorm.DB) (int64, error)
	SumAmount(ctx context.Context, scope func(*gorm.DB) *gorm.DB) (decimal.Decimal, error)
	CountApprovalsBy(ctx context.Context, approverID snowflake.ID, action *ApprovalAction, since *time.Time) (int64, error)
}

// ListQuery is the storage-level form of ListFilter with the cursor decoded.
type ListQuery struct {
	Status         *Status
	DateFrom       *time.Time
	DateTo         *time.Time
	AmountMin      *decimal.Decimal
	AmountMax      *decimal.Decimal
	AfterCreatedAt *time.Time
	AfterID        *snowflake.ID
	Limit          int
}
