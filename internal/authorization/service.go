package authorization

import (
	"context"

	"github.com/smallbiznis/procura/internal/apperror"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
)

// Service checks role permissions for a principal inside its organization.
type Service interface {
	Authorize(ctx context.Context, principal userdomain.Principal, object string, action string) error
}

var (
	ErrForbidden           = apperror.New(apperror.KindPermission, "You do not have permission to perform this action")
	ErrInvalidActor        = apperror.New(apperror.KindPermission, "invalid_actor")
	ErrInvalidOrganization = apperror.New(apperror.KindPermission, "invalid_organization")
	ErrInvalidObject       = apperror.New(apperror.KindValidation, "invalid_object")
	ErrInvalidAction       = apperror.New(apperror.KindValidation, "invalid_action")
)
