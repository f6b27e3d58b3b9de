package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/apperror"
)

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (*Organization, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	// Settings is served from cache when possible.
	Settings(ctx context.Context, id snowflake.ID) (Settings, error)
	UpdateSettings(ctx context.Context, id snowflake.ID, patch map[string]any) (Settings, error)
}

type CreateOrganizationRequest struct {
	Name     string
	Slug     string
	Settings map[string]any
}

var (
	ErrInvalidName           = apperror.New(apperror.KindValidation, "invalid_name")
	ErrInvalidSlug           = apperror.New(apperror.KindValidation, "invalid_slug")
	ErrDuplicateName         = apperror.New(apperror.KindValidation, "organization_name_taken")
	ErrInvalidSetting        = apperror.New(apperror.KindValidation, "invalid_setting")
	ErrInvalidApprovalLevels = apperror.New(apperror.KindValidation, "approval_levels_count must be a positive integer")
	ErrNotFound              = apperror.New(apperror.KindNotFound, "organization not found")
)
