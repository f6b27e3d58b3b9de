package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/apperror"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"gorm.io/gorm"
)

// Entry describes one audited change. A nil ActorID records a system actor.
type Entry struct {
	OrgID      snowflake.ID
	ActorID    *snowflake.ID
	Action     string
	TargetType string
	TargetID   snowflake.ID
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	// Record writes entry using tx when given so the row commits together
	// with the change it describes.
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, orgID snowflake.ID, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidOrganization = apperror.New(apperror.KindValidation, "invalid_organization")
	ErrInvalidPageToken    = apperror.New(apperror.KindValidation, "invalid_page_token")
	ErrInvalidTimeRange    = apperror.New(apperror.KindValidation, "invalid_time_range")
	ErrInvalidAction       = apperror.New(apperror.KindValidation, "invalid_action")
)
