// Package domain describes the approval workflow: who may decide a purchase
// request at which level, and the transitions those decisions drive.
package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/apperror"
	"github.com/smallbiznis/procura/internal/providers/storage"
	prdomain "github.com/smallbiznis/procura/internal/purchaserequest/domain"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
)

type Service interface {
	// CanActAtLevel evaluates the gating rules for approving or rejecting
	// request at level. It does not lock; Approve and Reject re-run it under
	// the request lock.
	CanActAtLevel(ctx context.Context, request *prdomain.PurchaseRequest, principal userdomain.Principal, level int) (Decision, error)
	Approve(ctx context.Context, principal userdomain.Principal, requestID snowflake.ID, comments string) (*prdomain.Approval, error)
	Reject(ctx context.Context, principal userdomain.Principal, requestID snowflake.ID, comments string) (*prdomain.Approval, error)
	SubmitReceipt(ctx context.Context, principal userdomain.Principal, requestID snowflake.ID, file storage.File) (*prdomain.PurchaseRequest, error)
}

// Decision is the outcome of the gating rules.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func Allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }

func Deny(reason string) Decision { return Decision{Reason: reason} }

const (
	ReasonNotPending  = "Request is not pending"
	ReasonNotApprover = "User is not an approver"
	ReasonNoLevel     = "User does not have an approval level"
)

var (
	ErrCommentsRequired     = apperror.New(apperror.KindValidation, "Rejection comments are required")
	ErrLevelAlreadyDecided  = apperror.New(apperror.KindValidation, "level already approved")
	ErrOnlyStaffReceipt     = apperror.New(apperror.KindPermission, "Only staff can submit receipts")
	ErrReceiptNotApproved   = apperror.New(apperror.KindNotApproved, "Receipt can only be submitted for approved requests.")
	ErrNotPending           = apperror.New(apperror.KindValidation, ReasonNotPending)
	ErrNotApprover          = apperror.New(apperror.KindValidation, ReasonNotApprover)
	ErrApproverWithoutLevel = apperror.New(apperror.KindValidation, ReasonNoLevel)
)
