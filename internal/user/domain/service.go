package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/apperror"
)

type Service interface {
	Register(ctx context.Context, req CreateUserRequest) (*User, error)
	GetByID(ctx context.Context, id snowflake.ID) (*User, error)
	// ResolvePrincipal loads an active, provisioned user as a Principal.
	ResolvePrincipal(ctx context.Context, id snowflake.ID) (Principal, error)
	ListActiveApprovers(ctx context.Context, orgID snowflake.ID, level int) ([]User, error)
}

type CreateUserRequest struct {
	Email          string
	FirstName      string
	LastName       string
	OrganizationID *snowflake.ID
	Role           Role
	ApprovalLevel  *int
}

var (
	ErrInvalidEmail            = apperror.New(apperror.KindValidation, "invalid_email")
	ErrInvalidRole             = apperror.New(apperror.KindValidation, "invalid_role")
	ErrApprovalLevelRequired   = apperror.New(apperror.KindValidation, "Approval level is required for approvers")
	ErrApprovalLevelNotAllowed = apperror.New(apperror.KindValidation, "Approval level should only be set for approvers")
	ErrInvalidApprovalLevel    = apperror.New(apperror.KindValidation, "Approval level must be at least 1")
	ErrEmailTaken              = apperror.New(apperror.KindValidation, "email_taken")
	ErrUserNotFound            = apperror.New(apperror.KindNotFound, "user not found")
	ErrInactiveUser            = apperror.New(apperror.KindPermission, "user is inactive")
	ErrNoOrganization          = apperror.New(apperror.KindPermission, "user has no organization")
)
