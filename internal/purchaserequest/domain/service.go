package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/procura/internal/apperror"
	"github.com/smallbiznis/procura/internal/providers/storage"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
	"github.com/smallbiznis/procura/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, principal userdomain.Principal, req CreateRequest) (*PurchaseRequest, error)
	Update(ctx context.Context, principal userdomain.Principal, id snowflake.ID, req UpdateRequest) (*PurchaseRequest, error)
	// Get returns NotFound for requests outside the principal's visibility,
	// including requests of other organizations.
	Get(ctx context.Context, principal userdomain.Principal, id snowflake.ID) (*PurchaseRequest, error)
	List(ctx context.Context, principal userdomain.Principal, filter ListFilter) (*ListResult, error)
	Statistics(ctx context.Context, principal userdomain.Principal) (Statistics, error)
	AttachProforma(ctx context.Context, principal userdomain.Principal, id snowflake.ID, file storage.File) (*PurchaseRequest, error)
	RequiredApprovalLevels(ctx context.Context, orgID snowflake.ID) (int, error)
}

type ItemInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

type CreateRequest struct {
	Title           string
	Description     string
	Amount          decimal.Decimal
	ProformaFileURL *string
	Items           []ItemInput
}

// UpdateRequest replaces only the non-nil fields. A non-nil Items replaces the
// whole item list, an empty slice clears it.
type UpdateRequest struct {
	Title           *string
	Description     *string
	Amount          *decimal.Decimal
	ProformaFileURL *string
	Items           *[]ItemInput
}

type ListFilter struct {
	Status    *Status
	DateFrom  *time.Time
	DateTo    *time.Time
	AmountMin *decimal.Decimal
	AmountMax *decimal.Decimal
	pagination.Pagination
}

type ListResult struct {
	Requests []PurchaseRequest   `json:"requests"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// Statistics carries the role-specific dashboard counters. Only the fields
// relevant to the principal's role are populated.
type Statistics struct {
	Role userdomain.Role `json:"role"`

	TotalRequests   *int64           `json:"total_requests,omitempty"`
	PendingApproval *int64           `json:"pending_approval,omitempty"`
	Approved        *int64           `json:"approved,omitempty"`
	Rejected        *int64           `json:"rejected,omitempty"`
	TotalAmount     *decimal.Decimal `json:"total_amount,omitempty"`

	PendingMyAction   *int64 `json:"pending_my_action,omitempty"`
	ApprovedThisMonth *int64 `json:"approved_this_month,omitempty"`
	RejectedThisMonth *int64 `json:"rejected_this_month,omitempty"`
	TotalReviewed     *int64 `json:"total_reviewed,omitempty"`

	TotalApprovedRequests *int64           `json:"total_approved_requests,omitempty"`
	TotalAmountApproved   *decimal.Decimal `json:"total_amount_approved,omitempty"`
	PendingPayments       *int64           `json:"pending_payments,omitempty"`
	ReceiptsPending       *int64           `json:"receipts_pending,omitempty"`
}

var (
	ErrNotFound            = apperror.New(apperror.KindNotFound, "Purchase request not found")
	ErrNotUpdatable        = apperror.New(apperror.KindNotUpdatable, "This request cannot be updated")
	ErrOnlyStaffCreate     = apperror.New(apperror.KindPermission, "Only staff can create purchase requests")
	ErrOnlyCreatorUpdate   = apperror.New(apperror.KindPermission, "Only the creator can modify this request")
	ErrStatisticsForbidden = apperror.New(apperror.KindPermission, "Statistics are not available for this role")
	ErrTitleRequired       = apperror.New(apperror.KindValidation, "Title is required")
	ErrDescriptionRequired = apperror.New(apperror.KindValidation, "Description is required")
	ErrNegativeAmount      = apperror.New(apperror.KindValidation, "Amount cannot be negative")
	ErrInvalidItem         = apperror.New(apperror.KindValidation, "Item quantity and unit price cannot be negative")
	ErrItemDescription     = apperror.New(apperror.KindValidation, "Item description is required")
	ErrInvalidPageToken    = apperror.New(apperror.KindValidation, "Invalid page token")
)
